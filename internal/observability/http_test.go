package observability

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/myquery/myquery/internal/config"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTraceMiddlewarePreservesIncomingTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := TraceIDFromContext(r.Context()); got != "trace-1" {
			t.Fatalf("TraceIDFromContext() = %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(traceHeader, "trace-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get(traceHeader); got != "trace-1" {
		t.Fatalf("trace header = %q", got)
	}
}

func TestTraceMiddlewareGeneratesTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if TraceIDFromContext(r.Context()) == "" {
			t.Fatal("expected generated trace id")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Header().Get(traceHeader) == "" {
		t.Fatal("expected X-Trace-ID header")
	}
}

func TestTraceIDContextHelpers(t *testing.T) {
	ctx := ContextWithTraceID(context.Background(), "abc123")
	if got := TraceIDFromContext(ctx); got != "abc123" {
		t.Fatalf("TraceIDFromContext() = %q", got)
	}
	if got := TraceIDFromContext(context.Background()); got != "" {
		t.Fatalf("TraceIDFromContext(empty) = %q", got)
	}
}

func TestLoggingMiddlewareWritesRequestLine(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, "ok")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	line := buf.String()
	if !strings.Contains(line, `"msg":"http_request"`) || !strings.Contains(line, `"status":202`) {
		t.Fatalf("log line = %s", line)
	}
}

func TestMetricsMiddlewareUsesRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /mcp/context/{session_id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := MetricsMiddleware(mux)

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "GET /mcp/context/{session_id}", "200"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/mcp/context/abc", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "GET /mcp/context/{session_id}", "200"))
	if after-before != 1 {
		t.Fatalf("request counter delta = %v", after-before)
	}
}

func TestDomainMetricHelpers(t *testing.T) {
	before := testutil.ToFloat64(mergesTotal.WithLabelValues("union", "success"))
	ObserveMerge("union", true)
	if got := testutil.ToFloat64(mergesTotal.WithLabelValues("union", "success")); got-before != 1 {
		t.Fatalf("merge counter delta = %v", got-before)
	}

	blockedBefore := testutil.ToFloat64(queriesTotal.WithLabelValues("blocked"))
	ObserveQuery(false, true)
	if got := testutil.ToFloat64(queriesTotal.WithLabelValues("blocked")); got-blockedBefore != 1 {
		t.Fatalf("blocked counter delta = %v", got-blockedBefore)
	}

	SetActiveSessions(4)
	if got := testutil.ToFloat64(activeSessions); got != 4 {
		t.Fatalf("active sessions = %v", got)
	}

	ObserveFanoutSource(true, 10*time.Millisecond)
	ObserveAction("get_status", true, time.Millisecond)
	ObserveSessionEviction("idle")
}

func TestNewLoggerAttachesServiceAttributes(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{Profile: config.ProfileTest, Service: config.ServiceConfig{Name: "myquery-mcp"}}
	cfg.Observability.LogJSON = true
	cfg.Observability.LogLevel = slog.LevelInfo
	NewLogger(cfg, &buf).Info("hello")

	if !strings.Contains(buf.String(), `"service":"myquery-mcp"`) || !strings.Contains(buf.String(), `"profile":"test"`) {
		t.Fatalf("log = %s", buf.String())
	}
}
