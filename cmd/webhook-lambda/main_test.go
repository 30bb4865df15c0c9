package main

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

func apiEvent(method, path string) events.APIGatewayV2HTTPRequest {
	evt := events.APIGatewayV2HTTPRequest{RawPath: path}
	evt.RequestContext.HTTP.Method = method
	evt.RequestContext.HTTP.Path = path
	evt.RequestContext.RequestID = "apigw-req-1"
	return evt
}

type relayed struct {
	method  string
	path    string
	query   string
	headers http.Header
	body    string
}

func fakeAPI(t *testing.T, status int, body string) (*forwarder, <-chan relayed) {
	t.Helper()
	seen := make(chan relayed, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		seen <- relayed{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, headers: r.Header.Clone(), body: string(raw)}
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	upstream, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return &forwarder{upstream: upstream, timeout: time.Second, client: srv.Client(), logger: logging.New("error")}, seen
}

type failingDoer struct{ calls int }

func (f *failingDoer) Do(*http.Request) (*http.Response, error) {
	f.calls++
	return nil, errors.New("connection refused")
}

func offlineForwarder() (*forwarder, *failingDoer) {
	doer := &failingDoer{}
	upstream, _ := url.Parse("https://api.jetafly.example")
	return &forwarder{upstream: upstream, timeout: time.Second, client: doer, logger: logging.New("error")}, doer
}

func TestServeLocalResponses(t *testing.T) {
	fwd, doer := offlineForwarder()

	tests := []struct {
		name   string
		evt    events.APIGatewayV2HTTPRequest
		status int
		body   string
	}{
		{"health", apiEvent(http.MethodGet, "/health"), http.StatusOK, "ok"},
		{"unknown path", apiEvent(http.MethodPost, "/webhooks/unknown"), http.StatusNotFound, ""},
		{"delete", apiEvent(http.MethodDelete, "/webhook"), http.StatusMethodNotAllowed, ""},
		{"get without handshake", apiEvent(http.MethodGet, "/webhook"), http.StatusBadRequest, "missing hub.mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := fwd.serve(context.Background(), tt.evt)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.body, resp.Body)
		})
	}
	assert.Zero(t, doer.calls, "none of these should reach the API")
}

func TestServeRejectsBadBodies(t *testing.T) {
	fwd, doer := offlineForwarder()

	garbled := apiEvent(http.MethodPost, "/webhook")
	garbled.Body = "not-base64"
	garbled.IsBase64Encoded = true

	huge := apiEvent(http.MethodPost, "/webhook")
	huge.Body = strings.Repeat("x", maxDeliveryBytes+1)

	for _, evt := range []events.APIGatewayV2HTTPRequest{garbled, huge} {
		resp, err := fwd.serve(context.Background(), evt)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "invalid body", resp.Body)
	}
	assert.Zero(t, doer.calls)
}

func TestServeRelaysVerification(t *testing.T) {
	fwd, seen := fakeAPI(t, http.StatusOK, "1158201444")
	evt := apiEvent(http.MethodGet, "/webhook")
	evt.RawQueryString = "hub.mode=subscribe&hub.verify_token=tok&hub.challenge=1158201444"

	resp, err := fwd.serve(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1158201444", resp.Body)

	got := <-seen
	assert.Equal(t, http.MethodGet, got.method)
	assert.Equal(t, evt.RawQueryString, got.query)
}

func TestServeRelaysSignedDelivery(t *testing.T) {
	fwd, seen := fakeAPI(t, http.StatusOK, "")
	payload := `{"object":"whatsapp_business_account","entry":[]}`

	evt := apiEvent(http.MethodPost, "/webhook")
	evt.Body = base64.StdEncoding.EncodeToString([]byte(payload))
	evt.IsBase64Encoded = true
	evt.Headers = map[string]string{
		"content-type":        "application/json",
		"x-hub-signature-256": "sha256=abc",
	}
	evt.RequestContext.DomainName = "hooks.jetafly.example"
	evt.RequestContext.HTTP.SourceIP = "157.240.1.1"

	resp, err := fwd.serve(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Headers["content-type"])

	select {
	case got := <-seen:
		assert.Equal(t, http.MethodPost, got.method)
		assert.Equal(t, "/webhook", got.path)
		assert.Equal(t, payload, got.body, "signed bytes must arrive unchanged")
		assert.Equal(t, "sha256=abc", got.headers.Get("X-Hub-Signature-256"))
		assert.Equal(t, "application/json", got.headers.Get("Content-Type"))
		assert.Equal(t, "157.240.1.1", got.headers.Get("X-Real-Ip"))
		assert.Equal(t, "hooks.jetafly.example", got.headers.Get("X-Forwarded-Host"))
		assert.Equal(t, "https", got.headers.Get("X-Forwarded-Proto"))
		assert.Equal(t, "apigw-req-1", got.headers.Get("X-Request-ID"))
	case <-time.After(time.Second):
		t.Fatal("API was not called")
	}
}

func TestServePassesUpstreamStatus(t *testing.T) {
	fwd, _ := fakeAPI(t, http.StatusUnauthorized, "invalid signature")
	resp, err := fwd.serve(context.Background(), apiEvent(http.MethodPost, "/webhook"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid signature", resp.Body)
}

func TestServeUpstreamDown(t *testing.T) {
	fwd, doer := offlineForwarder()
	resp, err := fwd.serve(context.Background(), apiEvent(http.MethodPost, "/webhook"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, 1, doer.calls)
}

func TestNewForwarderFromEnv(t *testing.T) {
	logger := logging.New("error")

	t.Setenv("UPSTREAM_BASE_URL", "")
	_, err := newForwarderFromEnv(logger)
	assert.Error(t, err)

	t.Setenv("UPSTREAM_BASE_URL", "api.jetafly.example")
	_, err = newForwarderFromEnv(logger)
	assert.ErrorContains(t, err, "invalid UPSTREAM_BASE_URL")

	t.Setenv("UPSTREAM_BASE_URL", "https://api.jetafly.example/")
	t.Setenv("UPSTREAM_TIMEOUT", "3s")
	fwd, err := newForwarderFromEnv(logger)
	require.NoError(t, err)
	assert.Equal(t, "https://api.jetafly.example", fwd.upstream.String())
	assert.Equal(t, 3*time.Second, fwd.timeout)

	t.Setenv("UPSTREAM_TIMEOUT", "soon")
	_, err = newForwarderFromEnv(logger)
	assert.Error(t, err)
}
