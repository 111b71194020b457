package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/bizmatters/agent-builder/chart-studio/internal/auth"
	"github.com/bizmatters/agent-builder/chart-studio/internal/chartspec"
	"github.com/bizmatters/agent-builder/chart-studio/internal/config"
	"github.com/bizmatters/agent-builder/chart-studio/internal/database"
	"github.com/bizmatters/agent-builder/chart-studio/internal/gateway"
	"github.com/bizmatters/agent-builder/chart-studio/internal/history"
	"github.com/bizmatters/agent-builder/chart-studio/internal/metrics"
	"github.com/bizmatters/agent-builder/chart-studio/internal/orchestration"
	"github.com/bizmatters/agent-builder/chart-studio/internal/store"
	"github.com/bizmatters/agent-builder/chart-studio/internal/telemetry"
	"github.com/bizmatters/agent-builder/chart-studio/pkg/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("CHART_STUDIO_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		logger.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx := context.Background()

	providers, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		TraceExporter:  cfg.Telemetry.TraceExporter,
		MetricExporter: cfg.Telemetry.MetricExporter,
		PrettyPrint:    cfg.Telemetry.PrettyPrint,
	})
	if err != nil {
		logger.Fatalf("Failed to initialize telemetry: %v", err)
	}

	var pool *pgxpool.Pool
	if cfg.NeedsDatabase() {
		logger.Info("Connecting to PostgreSQL database...")
		pool, err = database.Connect(ctx, cfg.Database.URL, cfg.Database.ConnectRetries)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer pool.Close()
		logger.Info("Connected to PostgreSQL database")
	}

	persistence, closeHistory, err := openHistoryStore(ctx, cfg, pool)
	if err != nil {
		logger.Fatalf("Failed to open history store: %v", err)
	}
	defer closeHistory()

	hist := history.NewBuffer(persistence,
		history.WithCapacity(cfg.History.Capacity),
		history.WithKey(cfg.History.Key),
	)
	hist.Rehydrate(ctx)

	st := store.New()
	if cfg.Chart.SeedFile != "" {
		if err := seedChart(st, cfg.Chart.SeedFile); err != nil {
			logger.Fatalf("Failed to load seed chart: %v", err)
		}
	}

	editMetrics, err := metrics.NewEditMetrics(nil)
	if err != nil {
		logger.Fatalf("Failed to create metrics: %v", err)
	}

	aiClient := newAIClient(cfg.AI)
	editor := orchestration.NewEditor(st, hist, aiClient, editMetrics, orchestration.EditorConfig{
		Timeout:      cfg.AI.Timeout,
		ApplyRetries: cfg.AI.ApplyRetries,
	})

	deps := gateway.Deps{
		Store:   st,
		Editor:  editor,
		History: hist,
		Metrics: editMetrics,
		AI:      aiClient,
	}

	var jwtManager *auth.JWTManager
	if cfg.Auth.Enabled {
		jwtManager, err = auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		if err != nil {
			logger.Fatalf("Failed to initialize JWT manager: %v", err)
		}
		users := auth.NewUserStore(pool)
		if err := users.EnsureSchema(ctx); err != nil {
			logger.Fatalf("Failed to prepare users table: %v", err)
		}
		deps.Users = users
		deps.JWT = jwtManager
	}
	if pool != nil {
		deps.Ping = pool.Ping
	}

	stream := gateway.NewChartStream(st, cfg.Server.AllowedOrigins)
	defer stream.Close()

	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(cfg.Telemetry.ServiceName), gateway.RequestLogger())
	gateway.RegisterRoutes(router, gateway.NewHandler(deps), stream, jwtManager, providers.MetricsHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":       cfg.Server.Port,
			"ai_backend": aiClient.Name(),
			"history":    cfg.History.Store,
			"auth":       cfg.Auth.Enabled,
		}).Info("Starting chart studio API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Failed to flush telemetry: %v", err)
	}

	logger.Info("Server exited")
}

func newAIClient(cfg config.AIConfig) orchestration.AIClient {
	if cfg.Backend == "openai" {
		return orchestration.NewOpenAIClient(orchestration.OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		})
	}
	return orchestration.NewHTTPClient(cfg.BaseURL, cfg.Timeout)
}

// openHistoryStore returns the configured persistence and a function that
// releases it.
func openHistoryStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (history.PersistenceStore, func(), error) {
	noop := func() {}

	switch cfg.History.Store {
	case "file":
		fs, err := history.NewFileStore(cfg.History.Dir)
		return fs, noop, err
	case "badger":
		bs, err := history.OpenBadgerStore(history.BadgerConfig{
			Path:       cfg.History.BadgerPath,
			SyncWrites: true,
			Logger:     logger.L(),
		})
		if err != nil {
			return nil, noop, err
		}
		return bs, func() {
			if err := bs.Close(); err != nil {
				logger.Errorf("Failed to close history store: %v", err)
			}
		}, nil
	case "postgres":
		ps := history.NewPostgresStore(pool)
		if err := ps.EnsureSchema(ctx); err != nil {
			return nil, noop, err
		}
		return ps, noop, nil
	default:
		return history.NewMemoryStore(), noop, nil
	}
}

func seedChart(st *store.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	spec, err := chartspec.Decode(f)
	if err != nil {
		return err
	}
	if err := st.Load(spec); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"path": path, "version": spec.Version}).Info("Loaded seed chart")
	return nil
}
