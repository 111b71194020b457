package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength is the minimum password length requirement
	MinPasswordLength = 8
	// BcryptCost is the cost factor for bcrypt hashing (10 = ~100ms)
	BcryptCost = 10
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserExists         = errors.New("user already exists")

	emailRegex = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	hasLetter  = regexp.MustCompile(`[a-zA-Z]`)
	hasNumber  = regexp.MustCompile(`[0-9]`)
)

// DB is the subset of *pgxpool.Pool the user store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// User is an account allowed to edit charts.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UserStore reads and writes the users table.
type UserStore struct {
	db DB
}

func NewUserStore(db DB) *UserStore {
	return &UserStore{db: db}
}

// EnsureSchema creates the users table if it does not exist.
func (s *UserStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id              UUID PRIMARY KEY,
			name            TEXT NOT NULL,
			email           TEXT NOT NULL UNIQUE,
			hashed_password TEXT NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	return nil
}

// Authenticate checks email and password and returns the matching user.
func (s *UserStore) Authenticate(ctx context.Context, email, password string) (*User, error) {
	ctx, span := otel.Tracer("user-store").Start(ctx, "users.authenticate")
	defer span.End()

	var u User
	var hashed string
	err := s.db.QueryRow(ctx,
		`SELECT id, name, email, hashed_password FROM users WHERE email = $1`,
		normalizeEmail(email),
	).Scan(&u.ID, &u.Name, &u.Email, &hashed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &u, nil
}

// CreateUser validates the input, hashes the password and inserts the user.
func (s *UserStore) CreateUser(ctx context.Context, name, email, password string) (*User, error) {
	ctx, span := otel.Tracer("user-store").Start(ctx, "users.create")
	defer span.End()

	if err := ValidateNewUser(name, email, password); err != nil {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &User{ID: uuid.NewString(), Name: strings.TrimSpace(name), Email: normalizeEmail(email)}
	_, err = s.db.Exec(ctx,
		`INSERT INTO users (id, name, email, hashed_password) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Name, u.Email, string(hashedPassword),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: %s", ErrUserExists, u.Email)
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return u, nil
}

// ValidateNewUser applies the account rules: a name, a well-formed email
// and a password of MinPasswordLength with letters and digits.
func ValidateNewUser(name, email, password string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name is required and cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLength)
	}
	if !hasLetter.MatchString(password) || !hasNumber.MatchString(password) {
		return fmt.Errorf("password must contain at least one letter and one number")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
