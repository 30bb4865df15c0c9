package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/travel-enquiry-bot/internal/app/bootstrap"
	appconfig "github.com/wolfman30/travel-enquiry-bot/internal/config"
	httpmiddleware "github.com/wolfman30/travel-enquiry-bot/internal/http/middleware"
	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

const adminSecret = "test-admin-secret"

func buildLocalApp(t *testing.T) *bootstrap.App {
	t.Helper()
	cfg := &appconfig.Config{
		Env:                       "development",
		UseMemoryQueue:            true,
		WorkerCount:               1,
		ExtractionStrategy:        "comprehensive",
		AutoCallbackOnProgress:    true,
		HistoryTurns:              5,
		SemanticExtractionTimeout: time.Second,
		ReplyTimeout:              time.Second,
		DefaultPhoneRegion:        "IN",
		WhatsAppVerifyToken:       "verify-me",
		AdminJWTSecret:            adminSecret,
	}
	app, err := bootstrap.Build(context.Background(), cfg, logging.New("error"))
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return app
}

func TestRouterServesPublicEndpoints(t *testing.T) {
	srv := httptest.NewServer(newRouter(buildLocalApp(t)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health?deep=1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=42")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouterProtectsAdmin(t *testing.T) {
	srv := httptest.NewServer(newRouter(buildLocalApp(t)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/admin/enquiries/stats")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := httpmiddleware.IssueAdminToken(adminSecret, "ops@jetafly.test", time.Hour)
	require.NoError(t, err)
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/admin/enquiries/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebhookToEnquiryInProcess(t *testing.T) {
	app := buildLocalApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app.Worker.Start(ctx)

	srv := httptest.NewServer(newRouter(app))
	defer srv.Close()

	payload := `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{
		"contacts":[{"wa_id":"919876543210","profile":{"name":"Krish"}}],
		"messages":[{"from":"919876543210","id":"wamid.E2E","timestamp":"1740819600","type":"text",
			"text":{"body":"Hi, I am Krish and I want to go to Goa from Mumbai"}}]}}]}]}`
	resp, err := http.Post(srv.URL+"/webhook", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		e, err := app.Enquiries.FindActive(context.Background(), "+919876543210")
		return err == nil && e != nil && e.Destination != nil && *e.Destination == "Domestic - Goa"
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, stopWorker(context.Background(), app.Worker))
}

func TestReadinessChecksSkipMissingInfrastructure(t *testing.T) {
	checks := readinessChecks(buildLocalApp(t))
	assert.Empty(t, checks)
}

func TestRunReturnsAfterCancel(t *testing.T) {
	app := buildLocalApp(t)
	app.Config.Port = "0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, app) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
