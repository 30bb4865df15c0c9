// Package router mounts every HTTP endpoint on a chi router.
package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/travel-enquiry-bot/internal/contacts"
	"github.com/wolfman30/travel-enquiry-bot/internal/conversation"
	"github.com/wolfman30/travel-enquiry-bot/internal/enquiry"
	httpmiddleware "github.com/wolfman30/travel-enquiry-bot/internal/http/middleware"
	"github.com/wolfman30/travel-enquiry-bot/internal/messaging"
	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

const readinessTimeout = 2 * time.Second

// Config holds router configuration
type Config struct {
	Logger    *logging.Logger
	Webhook   *messaging.WebhookHandler
	Enquiries *enquiry.Handler
	Dashboard *contacts.Handler
	Jobs      *conversation.JobsHandler

	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// WebhookLimiter throttles /webhook per client IP; nil disables it.
	WebhookLimiter httpmiddleware.Limiter

	// ReadinessChecks run on GET /health?deep=1; any error reports 503.
	ReadinessChecks map[string]func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/", index)
	r.Get("/health", health(cfg.ReadinessChecks))
	r.Get("/privacy-policy", privacyPolicy)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Webhook != nil {
		r.Group(func(public chi.Router) {
			public.Use(httpmiddleware.RateLimit(cfg.WebhookLimiter, cfg.Logger))
			public.Get("/webhook", cfg.Webhook.Verify)
			public.Post("/webhook", cfg.Webhook.Receive)
		})
	}

	r.Route("/admin", func(admin chi.Router) {
		if len(cfg.CORSAllowedOrigins) > 0 {
			admin.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
		}
		admin.Use(middleware.Compress(5))
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))

		if cfg.Enquiries != nil {
			admin.Route("/enquiries", cfg.Enquiries.RegisterRoutes)
		}
		if cfg.Dashboard != nil {
			admin.Route("/dashboard", cfg.Dashboard.RegisterRoutes)
		}
		if cfg.Jobs != nil {
			admin.Get("/jobs/{jobID}", cfg.Jobs.GetJob)
		}
	})

	return r
}

func index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("WhatsApp travel enquiry bot is running"))
}

func health(checks map[string]func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		resp := map[string]any{"status": "ok"}

		if r.URL.Query().Get("deep") != "" && len(checks) > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
			defer cancel()
			results := make(map[string]string, len(checks))
			for name, check := range checks {
				if err := check(ctx); err != nil {
					results[name] = err.Error()
					status = http.StatusServiceUnavailable
					resp["status"] = "degraded"
					continue
				}
				results[name] = "ok"
			}
			resp["checks"] = results
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

const privacyPolicyHTML = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Privacy Policy</title></head>
<body style="font-family: Arial, sans-serif; max-width: 720px; margin: 2rem auto; padding: 0 1rem;">
<h1>Privacy Policy</h1>
<p>This WhatsApp assistant answers travel enquiries on behalf of JET A FLY Tours &amp; Travels using the WhatsApp Cloud API.</p>
<p>We keep the trip details you share with us (destination, dates, travellers, budget and contact details) so our travel executives can call you back with a quote. Messages are processed by an automated assistant to prepare replies.</p>
<p>We do not sell or share your details with third parties for marketing.</p>
<p>To have your enquiry deleted, reply on WhatsApp asking us to remove your details.</p>
</body>
</html>`

func privacyPolicy(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(privacyPolicyHTML))
}
