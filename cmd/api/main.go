package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/travel-enquiry-bot/internal/api/router"
	"github.com/wolfman30/travel-enquiry-bot/internal/app/bootstrap"
	appconfig "github.com/wolfman30/travel-enquiry-bot/internal/config"
	"github.com/wolfman30/travel-enquiry-bot/internal/contacts"
	"github.com/wolfman30/travel-enquiry-bot/internal/conversation"
	"github.com/wolfman30/travel-enquiry-bot/internal/enquiry"
	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

const (
	purgeInterval   = time.Hour
	shutdownTimeout = 30 * time.Second
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	logger.Info("api starting", "env", cfg.Env, "port", cfg.Port, "memory_queue", app.MemoryQueue)
	if err := run(ctx, app); err != nil {
		logger.Error("api stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("api stopped")
}

// run serves HTTP until ctx ends, then shuts the server down and, for the
// in-memory queue, waits for the in-process worker to finish its turns.
func run(ctx context.Context, app *bootstrap.App) error {
	cfg, logger := app.Config, app.Logger
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(app),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Nothing else can drain the in-memory queue.
	if app.MemoryQueue {
		app.Worker.Start(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", srv.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		bootstrap.RunProcessedPurge(gctx, app.Processed, cfg.ProcessedRetention, purgeInterval, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		if app.MemoryQueue {
			return stopWorker(shutdownCtx, app.Worker)
		}
		return nil
	})
	return g.Wait()
}

func newRouter(app *bootstrap.App) http.Handler {
	cfg := app.Config
	return router.New(&router.Config{
		Logger:             app.Logger,
		Webhook:            app.Webhook,
		Enquiries:          enquiry.NewHandler(app.Enquiries, app.Reconciler, app.Logger),
		Dashboard:          contacts.NewHandler(app.Contacts, app.Logger),
		Jobs:               conversation.NewJobsHandler(app.Jobs, app.Logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		WebhookLimiter:     app.WebhookLimiter,
		ReadinessChecks:    readinessChecks(app),
	})
}

func readinessChecks(app *bootstrap.App) map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if app.Pool != nil {
		checks["postgres"] = app.Pool.Ping
	}
	if app.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return app.Redis.Ping(ctx).Err()
		}
	}
	return checks
}

func stopWorker(ctx context.Context, worker *conversation.Worker) error {
	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("conversation worker: %w", ctx.Err())
	}
}
