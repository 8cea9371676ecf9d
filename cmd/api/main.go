package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/docrisk/internal/application"
	"github.com/bryanwahyu/docrisk/internal/application/assessments"
	"github.com/bryanwahyu/docrisk/internal/bootstrap"
	"github.com/bryanwahyu/docrisk/internal/config"
	"github.com/bryanwahyu/docrisk/internal/domain/document"
	"github.com/bryanwahyu/docrisk/internal/infra/httpserver"
	minioStore "github.com/bryanwahyu/docrisk/internal/infra/storage"
	"github.com/bryanwahyu/docrisk/internal/logging"
	"github.com/bryanwahyu/docrisk/internal/middleware"
)

func main() {
	// load config
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, repo, err := bootstrap.Database(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	probe := &middleware.Probe{
		Required: map[string]middleware.HealthChecker{
			"database": &middleware.DatabaseHealthChecker{DB: db},
		},
		Optional: map[string]middleware.HealthChecker{},
	}
	for stage := range cfg.DisabledStages() {
		probe.DisabledStages = append(probe.DisabledStages, stage)
	}
	sort.Strings(probe.DisabledStages)

	// init minio; without an endpoint only the database row is kept
	var archive document.ArchiveStore
	if cfg.Minio.Endpoint != "" {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			return fmt.Errorf("minio init: %w", err)
		}
		archive = store
		probe.Required["archive"] = middleware.CheckFunc(store.Check)
	} else {
		logger.Warn("minio not configured; documents will not be archived")
	}

	orch, collab, err := bootstrap.Pipeline(cfg, logger)
	if err != nil {
		return err
	}
	if wl := collab.Watchlist; wl != nil {
		probe.Optional["watchlist"] = middleware.CheckFunc(func(context.Context) error {
			if wl.Len() == 0 {
				return errors.New("watchlist is empty")
			}
			return nil
		})
	}

	svc := assessments.NewService(orch, repo, archive, application.SystemClock{}, logger, cfg.Pipeline.Workers)

	if len(cfg.Auth.APIKeys) == 0 {
		logger.Warn("auth.apiKeys is empty; API is unauthenticated")
	}
	handler := httpserver.NewRouter(svc, httpserver.Options{
		Logger:         logger,
		APIKeys:        cfg.Auth.APIKeys,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		UploadLimiter:  middleware.NewRateLimiter(ctx, cfg.Server.UploadBurst, cfg.Server.UploadPerMinute),
		Probe:          probe,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	if wl := collab.Watchlist; wl != nil {
		g.Go(func() error { return wl.Watch(gctx) })
	}
	g.Go(func() error {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// graceful shutdown
		<-gctx.Done()
		logger.Info("shutting down server...")
		ctx2, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(ctx2)
	})
	return g.Wait()
}
