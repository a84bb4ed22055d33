package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"penalty-service/internal/config"
	"penalty-service/internal/db"
	"penalty-service/internal/domain/penalty"
	"penalty-service/internal/email"
	httphandler "penalty-service/internal/http"
	"penalty-service/internal/metrics"
	"penalty-service/internal/repository"
	"penalty-service/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(start())
}

// start owns every deferred cleanup so that main can exit with its code.
func start() int {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	log := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("penalty service stopped")
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var live email.Generator
	if cfg.AIEnabled() {
		live = email.NewChatGenerator(cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.Model)
		log.Info().Str("model", cfg.AI.Model).Msg("live email generation enabled")
	} else {
		log.Warn().Msg("ai.api_key not set, violation emails use the template")
	}
	mailer := email.NewComposer(live, email.TemplateGenerator{Currency: cfg.Penalty.Currency}, cfg.AI.Timeout, log)

	svc := service.NewPenaltyService(
		store,
		penalty.NewRegistry(),
		mailer,
		m,
		cfg.Penalty.RatePerPoint,
		log.With().Str("component", "penalty_service").Logger(),
	)

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := httphandler.NewHandler(svc, m, log.With().Str("component", "http").Logger())
	router := httphandler.NewRouter(handler, cfg.HTTP.AllowedOrigins, log)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTP.Port).Str("store", cfg.Store.Driver).Msg("penalty service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (service.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		gdb, err := db.ConnectPostgres(cfg.Postgres.DSN, log)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if sqlDB, err := gdb.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return repository.NewPostgresStore(gdb), closeFn, nil

	case config.StoreMongo:
		client, err := db.ConnectMongo(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, nil, err
		}
		store, err := repository.NewMongoStore(ctx, client.Database(cfg.Mongo.Database))
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		closeFn := func() { _ = client.Disconnect(context.Background()) }
		log.Info().Str("database", cfg.Mongo.Database).Msg("connected to mongo")
		return store, closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store.driver %q", cfg.Store.Driver)
	}
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339

	var logger zerolog.Logger
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Str("service", "penalty-service").Logger()
}
