// Command webhook-lambda fronts the WhatsApp webhook on API Gateway. Meta's
// verification handshake and message deliveries are relayed byte for byte
// so the API can still check X-Hub-Signature-256.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

const (
	webhookPath = "/webhook"
	// Meta batches at most a few changes per delivery.
	maxDeliveryBytes = 1 << 20
	maxReplyBytes    = 64 << 10
)

type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

type forwarder struct {
	upstream *url.URL
	timeout  time.Duration
	client   httpDoer
	logger   *logging.Logger
}

func newForwarderFromEnv(logger *logging.Logger) (*forwarder, error) {
	raw := strings.TrimSpace(os.Getenv("UPSTREAM_BASE_URL"))
	if raw == "" {
		return nil, errors.New("UPSTREAM_BASE_URL is required")
	}
	upstream, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil || upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("invalid UPSTREAM_BASE_URL %q", raw)
	}

	timeout := 5 * time.Second
	if v := strings.TrimSpace(os.Getenv("UPSTREAM_TIMEOUT")); v != "" {
		if timeout, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("invalid UPSTREAM_TIMEOUT: %w", err)
		}
	}
	return &forwarder{
		upstream: upstream,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}, nil
}

func main() {
	logger := logging.New(os.Getenv("LOG_LEVEL"))
	fwd, err := newForwarderFromEnv(logger)
	if err != nil {
		logger.Error("webhook-lambda misconfigured", "error", err)
		os.Exit(1)
	}
	lambda.Start(fwd.serve)
}

func reply(status int, body string) events.APIGatewayV2HTTPResponse {
	return events.APIGatewayV2HTTPResponse{StatusCode: status, Body: body}
}

func (f *forwarder) serve(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := strings.ToUpper(evt.RequestContext.HTTP.Method)
	path := evt.RawPath
	if path == "" {
		path = evt.RequestContext.HTTP.Path
	}

	switch {
	case path == "/health" || path == "/_health":
		return reply(http.StatusOK, "ok"), nil
	case path != webhookPath:
		return reply(http.StatusNotFound, ""), nil
	case method == http.MethodGet:
		// Only the subscription handshake uses GET.
		if q, _ := url.ParseQuery(evt.RawQueryString); q.Get("hub.mode") == "" {
			return reply(http.StatusBadRequest, "missing hub.mode"), nil
		}
	case method == http.MethodPost:
	default:
		return reply(http.StatusMethodNotAllowed, ""), nil
	}

	req, err := f.buildUpstream(ctx, method, evt)
	if err != nil {
		f.logger.Warn("rejecting webhook delivery", "error", err, "request_id", evt.RequestContext.RequestID)
		return reply(http.StatusBadRequest, "invalid body"), nil
	}
	defer req.cancel()

	start := time.Now()
	resp, err := f.client.Do(req.Request)
	if err != nil {
		// Any non-2xx makes Meta redeliver; the API deduplicates by message id.
		f.logger.Error("upstream webhook call failed", "error", err, "request_id", evt.RequestContext.RequestID)
		return reply(http.StatusBadGateway, "upstream error"), nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	f.logger.Info("webhook relayed",
		"method", method,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"request_id", evt.RequestContext.RequestID,
	)
	out := reply(resp.StatusCode, string(body))
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		out.Headers = map[string]string{"content-type": ct}
	}
	return out, nil
}

type upstreamRequest struct {
	*http.Request
	cancel context.CancelFunc
}

func (f *forwarder) buildUpstream(ctx context.Context, method string, evt events.APIGatewayV2HTTPRequest) (upstreamRequest, error) {
	var payload []byte
	if method == http.MethodPost {
		var err error
		if payload, err = deliveryBytes(evt); err != nil {
			return upstreamRequest{}, err
		}
	}

	target := *f.upstream
	target.Path += webhookPath
	target.RawQuery = evt.RawQueryString

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), bytes.NewReader(payload))
	if err != nil {
		cancel()
		return upstreamRequest{}, err
	}

	headers := http.Header{}
	for k, v := range evt.Headers {
		headers.Set(k, v)
	}
	for _, h := range []string{"Content-Type", "X-Hub-Signature-256"} {
		if v := strings.TrimSpace(headers.Get(h)); v != "" {
			req.Header.Set(h, v)
		}
	}
	if ip := evt.RequestContext.HTTP.SourceIP; ip != "" {
		req.Header.Set("X-Real-Ip", ip)
	}
	if host := evt.RequestContext.DomainName; host != "" {
		req.Header.Set("X-Forwarded-Host", host)
	}
	if id := evt.RequestContext.RequestID; id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	req.Header.Set("X-Forwarded-Proto", "https")
	return upstreamRequest{Request: req, cancel: cancel}, nil
}

// deliveryBytes returns the exact bytes Meta signed.
func deliveryBytes(evt events.APIGatewayV2HTTPRequest) ([]byte, error) {
	body := []byte(evt.Body)
	if evt.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(evt.Body)
		if err != nil {
			return nil, fmt.Errorf("decode base64 body: %w", err)
		}
		body = decoded
	}
	if len(body) > maxDeliveryBytes {
		return nil, fmt.Errorf("delivery of %d bytes exceeds limit", len(body))
	}
	return body, nil
}
