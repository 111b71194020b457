package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	jm, err := NewJWTManager("test-secret", time.Hour)
	require.NoError(t, err)

	token, err := jm.GenerateToken(context.Background(), "user-1", "ada")
	require.NoError(t, err)

	claims, err := jm.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "ada", claims.Username)
	assert.Equal(t, "chart-studio", claims.Issuer)
}

func TestJWTManager_Rejects(t *testing.T) {
	jm, err := NewJWTManager("test-secret", time.Hour)
	require.NoError(t, err)
	other, err := NewJWTManager("other-secret", time.Hour)
	require.NoError(t, err)

	foreign, err := other.GenerateToken(context.Background(), "user-1", "ada")
	require.NoError(t, err)
	_, err = jm.ValidateToken(context.Background(), foreign)
	assert.Error(t, err)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signed, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = jm.ValidateToken(context.Background(), signed)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	_, err = NewJWTManager("", time.Hour)
	assert.Error(t, err)
}

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jm, err := NewJWTManager("test-secret", time.Hour)
	require.NoError(t, err)
	token, err := jm.GenerateToken(context.Background(), "user-1", "ada")
	require.NoError(t, err)

	router := gin.New()
	router.GET("/protected", RequireAuth(jm), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
		wantBody   string
	}{
		{"bearer header", "Bearer " + token, "", http.StatusOK, "user-1"},
		{"lowercase scheme", "bearer " + token, "", http.StatusOK, "user-1"},
		{"query token", "", "?access_token=" + token, http.StatusOK, "user-1"},
		{"missing", "", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"wrong scheme", "Basic abc", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"garbage token", "Bearer not.a.jwt", "", http.StatusUnauthorized, "Invalid or expired token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		*(d.(*string)) = r.values[i].(string)
	}
	return nil
}

type fakeDB struct {
	users   map[string][]any
	execErr error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	if strings.Contains(sql, "INSERT INTO users") {
		f.users[args[2].(string)] = []any{args[0], args[1], args[2], args[3]}
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	row, ok := f.users[args[0].(string)]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{values: row}
}

func TestUserStore_CreateAndAuthenticate(t *testing.T) {
	db := &fakeDB{users: map[string][]any{}}
	users := NewUserStore(db)
	ctx := context.Background()

	created, err := users.CreateUser(ctx, " Ada Lovelace ", "Ada@Example.com", "analytical1")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", created.Email)
	assert.Equal(t, "Ada Lovelace", created.Name)

	hashed := db.users["ada@example.com"][3].(string)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hashed), []byte("analytical1")))

	u, err := users.Authenticate(ctx, "ADA@example.com ", "analytical1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, u.ID)

	_, err = users.Authenticate(ctx, "ada@example.com", "wrong-password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = users.Authenticate(ctx, "nobody@example.com", "analytical1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUserStore_DuplicateEmail(t *testing.T) {
	db := &fakeDB{users: map[string][]any{}, execErr: &pgconn.PgError{Code: "23505"}}
	_, err := NewUserStore(db).CreateUser(context.Background(), "Ada", "ada@example.com", "analytical1")
	assert.ErrorIs(t, err, ErrUserExists)

	db.execErr = errors.New("connection reset")
	_, err = NewUserStore(db).CreateUser(context.Background(), "Ada", "ada@example.com", "analytical1")
	assert.NotErrorIs(t, err, ErrUserExists)
}

func TestValidateNewUser(t *testing.T) {
	assert.NoError(t, ValidateNewUser("Ada", "ada@example.com", "analytical1"))
	assert.ErrorContains(t, ValidateNewUser(" ", "ada@example.com", "analytical1"), "name")
	assert.ErrorContains(t, ValidateNewUser("Ada", "not-an-email", "analytical1"), "email")
	assert.ErrorContains(t, ValidateNewUser("Ada", "ada@example.com", "short1"), "at least")
	assert.ErrorContains(t, ValidateNewUser("Ada", "ada@example.com", "onlyletters"), "letter and one number")
}
