package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingWorker struct {
	release chan struct{}
}

func (b blockingWorker) Wait() {
	<-b.release
}

func TestDrain(t *testing.T) {
	done := blockingWorker{release: make(chan struct{})}
	close(done.release)
	require.NoError(t, drain(done, time.Second))

	stuck := blockingWorker{release: make(chan struct{})}
	defer close(stuck.release)
	assert.ErrorIs(t, drain(stuck, 20*time.Millisecond), context.DeadlineExceeded)
}

func TestOpsRouter(t *testing.T) {
	registry := prometheus.NewRegistry()
	turns := prometheus.NewCounter(prometheus.CounterOpts{Name: "travel_test_turns_total", Help: "test"})
	registry.MustRegister(turns)
	turns.Inc()
	router := opsRouter(registry)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "travel_test_turns_total 1")
}
