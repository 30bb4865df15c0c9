package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/travel-enquiry-bot/internal/contacts"
	"github.com/wolfman30/travel-enquiry-bot/internal/conversation"
	"github.com/wolfman30/travel-enquiry-bot/internal/enquiry"
	"github.com/wolfman30/travel-enquiry-bot/internal/events"
	httpmiddleware "github.com/wolfman30/travel-enquiry-bot/internal/http/middleware"
	"github.com/wolfman30/travel-enquiry-bot/internal/messaging"
	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

const testSecret = "admin-secret"

func newTestRouter(t *testing.T, checks map[string]func(context.Context) error) http.Handler {
	t.Helper()
	logger := logging.New("error")
	repo := enquiry.NewInMemoryRepository()
	publisher := conversation.NewPublisher(conversation.NewMemoryQueue(8), nil, logger)
	jobs := conversation.NewMemoryJobStore()
	require.NoError(t, jobs.Open(context.Background(), &conversation.JobRecord{JobID: "wamid.1"}))

	return New(&Config{
		Logger:             logger,
		Webhook:            messaging.NewWebhookHandler(messaging.WebhookConfig{VerifyToken: "verify"}, publisher, events.NewMemoryProcessedStore(), nil, logger),
		Enquiries:          enquiry.NewHandler(repo, nil, logger),
		Dashboard:          contacts.NewHandler(contacts.NewMemoryStore(), logger),
		Jobs:               conversation.NewJobsHandler(jobs, logger),
		AdminAuthSecret:    testSecret,
		MetricsHandler:     promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{}),
		CORSAllowedOrigins: []string{"https://dashboard.jetafly.example"},
		ReadinessChecks:    checks,
	})
}

func adminRequest(t *testing.T, method, path string) *http.Request {
	t.Helper()
	token, err := httpmiddleware.IssueAdminToken(testSecret, "sales-desk", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPublicEndpoints(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "running")

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/privacy-policy", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html"))

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthDeepReportsFailingChecks(t *testing.T) {
	h := newTestRouter(t, map[string]func(context.Context) error{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/health?deep=1", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Checks["postgres"])
	assert.Equal(t, "connection refused", body.Checks["redis"])
}

func TestWebhookRoutes(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=verify&hub.challenge=42", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", rec.Body.String())

	rec = serve(h, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"object":"whatsapp_business_account","entry":[]}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRequiresToken(t *testing.T) {
	h := newTestRouter(t, nil)

	for _, path := range []string{"/admin/enquiries", "/admin/dashboard/contacts", "/admin/jobs/wamid.1"} {
		rec := serve(h, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestAdminRoutesWithToken(t *testing.T) {
	h := newTestRouter(t, nil)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/admin/enquiries", http.StatusOK},
		{"/admin/enquiries/stats", http.StatusOK},
		{"/admin/dashboard/contacts", http.StatusOK},
		{"/admin/dashboard/stats", http.StatusOK},
		{"/admin/jobs/wamid.1", http.StatusOK},
		{"/admin/jobs/missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := serve(h, adminRequest(t, http.MethodGet, tt.path))
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestAdminPreflight(t *testing.T) {
	h := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/admin/enquiries", nil)
	req.Header.Set("Origin", "https://dashboard.jetafly.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := serve(h, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dashboard.jetafly.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
