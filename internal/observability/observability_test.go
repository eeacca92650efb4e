package observability_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"MarginlyLedger/internal/observability"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := observability.ParseLogLevel(tt.in); got != tt.want {
			t.Errorf("%q: got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLoggerTo_Component(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLoggerTo(&buf, "reader", zerolog.InfoLevel)
	logger.Debug().Msg("hidden")
	logger.Info().Msg("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug line written at info level")
	}
	if !strings.Contains(out, `"component":"reader"`) {
		t.Errorf("missing component field: %s", out)
	}
}

func TestHealthChecker_Readiness(t *testing.T) {
	h := observability.NewHealthChecker()

	status := func() int {
		rec := httptest.NewRecorder()
		h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		return rec.Code
	}

	if got := status(); got != http.StatusServiceUnavailable {
		t.Errorf("before ready: got %d, want 503", got)
	}

	h.SetReady(true)
	if got := status(); got != http.StatusOK {
		t.Errorf("ready: got %d, want 200", got)
	}

	h.AddCheck("postgres", func(context.Context) error { return errors.New("down") })
	if got := status(); got != http.StatusServiceUnavailable {
		t.Errorf("failing check: got %d, want 503", got)
	}
}

func TestHealthChecker_Liveness(t *testing.T) {
	h := observability.NewHealthChecker()
	rec := httptest.NewRecorder()
	h.LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("got %d, want 200", rec.Code)
	}
}

func TestNewMetrics_IsolatedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	m.IntentsEncoded.WithLabelValues("Long").Inc()

	if got := testutil.ToFloat64(m.IntentsEncoded.WithLabelValues("Long")); got != 1 {
		t.Errorf("got %v, want 1", got)
	}

	// a second registry must not collide
	observability.NewMetrics(prometheus.NewRegistry())
}
