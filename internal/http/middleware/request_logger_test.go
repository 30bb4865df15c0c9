package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "log line %q", buf.String())
	return entry
}

func TestRequestLoggerRecordsRoute(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(RequestLogger(logging.NewWithWriter("info", &buf)))
	r.Get("/admin/enquiries/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	})

	req := httptest.NewRequest(http.MethodGet, "/admin/enquiries/enq-7", nil)
	req.Header.Set("X-Request-ID", "req-1")
	req.Header.Set("X-Real-Ip", "198.51.100.4")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
	entry := logLine(t, &buf)
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "/admin/enquiries/enq-7", entry["path"])
	assert.Equal(t, "/admin/enquiries/{id}", entry["route"])
	assert.Equal(t, float64(http.StatusAccepted), entry["status"])
	assert.Equal(t, float64(2), entry["bytes"])
	assert.Equal(t, "198.51.100.4", entry["ip"])
}

func TestRequestLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		status    int
		wantLevel string
	}{
		{name: "server error", path: "/webhook", status: http.StatusInternalServerError, wantLevel: "ERROR"},
		{name: "client error", path: "/webhook", status: http.StatusForbidden, wantLevel: "WARN"},
		{name: "failing health check", path: "/health", status: http.StatusServiceUnavailable, wantLevel: "ERROR"},
		{name: "health check", path: "/health", status: http.StatusOK, wantLevel: "DEBUG"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := RequestLogger(logging.NewWithWriter("debug", &buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantLevel, logLine(t, &buf)["level"])
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"), "generated id")
		})
	}
}

func TestRequestLoggerQuietAtInfo(t *testing.T) {
	var buf bytes.Buffer
	h := RequestLogger(logging.NewWithWriter("info", &buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Zero(t, buf.Len())
}
