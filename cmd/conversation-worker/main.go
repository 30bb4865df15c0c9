package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/travel-enquiry-bot/internal/app/bootstrap"
	appconfig "github.com/wolfman30/travel-enquiry-bot/internal/config"
	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

const drainTimeout = 30 * time.Second

type drainer interface {
	Wait()
}

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// The in-memory queue lives inside the API process, so a separate
	// worker would never see a turn.
	if app.MemoryQueue {
		logger.Error("conversation worker needs CONVERSATION_QUEUE_URL")
		os.Exit(1)
	}

	// Reconcile and outbound metrics are recorded here, not in the API.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           opsRouter(app.Registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker metrics listener failed", "error", err)
		}
	}()

	logger.Info("conversation worker started", "concurrency", cfg.WorkerCount, "queue", cfg.ConversationQueueURL, "metrics_port", cfg.Port)
	app.Worker.Start(ctx)

	<-ctx.Done()
	logger.Info("draining conversation worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	if err := drain(app.Worker, drainTimeout); err != nil {
		logger.Error("conversation worker did not drain", "error", err)
		os.Exit(1)
	}
	logger.Info("conversation worker stopped")
}

func opsRouter(registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return r
}

// drain waits for in-flight turns, giving up after timeout.
func drain(w drainer, timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		w.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return context.DeadlineExceeded
	}
}
