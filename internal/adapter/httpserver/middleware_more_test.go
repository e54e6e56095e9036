package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/fairyhunter13/llm-chat-relay/internal/domain"
	obsctx "github.com/fairyhunter13/llm-chat-relay/internal/observability"
)

func Test_SecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(204) })).ServeHTTP(rec, r)
	res := rec.Result()
	if res.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing header")
	}
	if res.Header.Get("X-Frame-Options") != "DENY" {
		t.Fatalf("missing header")
	}
	if res.Header.Get("Content-Security-Policy") == "" {
		t.Fatalf("missing csp")
	}
}

func Test_RequestID_SetsHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	RequestID()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(204) })).ServeHTTP(rec, r)
	if rec.Result().Header.Get("X-Request-Id") == "" {
		t.Fatalf("missing request id header")
	}
}

func Test_Recoverer_HandlesPanic(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	Recoverer()(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) { panic("boom") })).ServeHTTP(rec, r)
	if rec.Result().StatusCode != http.StatusInternalServerError {
		t.Fatalf("want 500")
	}
	var e respErr
	if err := json.NewDecoder(rec.Body).Decode(&e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.Error.Code != "INTERNAL" || !strings.Contains(e.Error.Message, domain.ErrInternal.Error()) {
		t.Fatalf("unexpected error body: %+v", e)
	}
}

func Test_TimeoutMiddleware_GatewayTimeout(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	TimeoutMiddleware(5*time.Millisecond)(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		time.Sleep(20 * time.Millisecond)
	})).ServeHTTP(rec, r)
	if rec.Result().StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("want 503, got %d", rec.Result().StatusCode)
	}
}

func Test_TraceMiddleware_PassesThrough(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(204) })).ServeHTTP(rec, r)
	if rec.Result().StatusCode != 204 {
		t.Fatalf("want 204")
	}
}

func Test_newReqID_ReturnsNonEmpty(t *testing.T) {
	id := newReqID()
	if id == "" {
		t.Fatalf("expected non-empty request ID")
	}
}

func Test_newReqID_UniqueIDs(t *testing.T) {
	id1 := newReqID()
	id2 := newReqID()
	if id1 == id2 {
		t.Fatalf("expected unique request IDs, got %s and %s", id1, id2)
	}
}

func Test_newReqID_ConcurrentCallersGetDistinctULIDs(t *testing.T) {
	const workers, perWorker = 8, 200
	ids := make(chan string, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				ids <- newReqID()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{}, workers*perWorker)
	for id := range ids {
		if _, err := ulid.ParseStrict(id); err != nil {
			t.Fatalf("not a ULID: %q: %v", id, err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate request id %s", id)
		}
		seen[id] = struct{}{}
	}
	if len(seen) != workers*perWorker {
		t.Fatalf("want %d ids, got %d", workers*perWorker, len(seen))
	}
}

func Test_RequestID_ReplacesMalformedHeader(t *testing.T) {
	for _, in := range []string{"has space", strings.Repeat("x", maxRequestIDBytes+1), "tab\there", "ünïcode"} {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/x", nil)
		r.Header.Set("X-Request-Id", in)
		RequestID()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(204) })).ServeHTTP(rec, r)
		got := rec.Result().Header.Get("X-Request-Id")
		if got == in {
			t.Fatalf("malformed id %q was echoed", in)
		}
		if _, err := ulid.ParseStrict(got); err != nil {
			t.Fatalf("replacement is not a ULID: %q", got)
		}
	}
}

func Test_TraceMiddleware_NamesSpanByRoute(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	r := chi.NewRouter()
	r.Use(TraceMiddleware)
	r.Get("/v1/things/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/things/42", nil))

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("want 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "GET /v1/things/{id}" {
		t.Fatalf("span name = %q", spans[0].Name())
	}
	if spans[0].Status().Code != codes.Error {
		t.Fatalf("5xx must mark the span failed, got %v", spans[0].Status().Code)
	}
}

func Test_TraceMiddleware_ContinuesInboundTrace(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(httptest.NewRecorder(), req)

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("want 1 span, got %d", len(spans))
	}
	if got := spans[0].SpanContext().TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("trace id = %s", got)
	}
	if got := spans[0].Parent().SpanID().String(); got != "00f067aa0ba902b7" {
		t.Fatalf("parent span id = %s", got)
	}
}

func Test_AccessLog_SetsLogger(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/test", nil)
	AccessLog()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) })).ServeHTTP(rec, r)
	if rec.Result().StatusCode != 200 {
		t.Fatalf("want 200, got %d", rec.Result().StatusCode)
	}
}

func Test_LoggerFrom_ReturnsDefault(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/test", nil)
	lg := LoggerFrom(r)
	if lg == nil {
		t.Fatalf("expected non-nil logger")
	}
}

func Test_RequestID_PropagatesHeaderAndLogger(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.Header.Set("X-Request-Id", "rid-123")
	var gotID string
	var gotLogger bool
	RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = obsctx.RequestIDFromContext(r.Context())
		gotLogger = LoggerFrom(r) != slog.Default()
		w.WriteHeader(204)
	})).ServeHTTP(rec, r)
	if gotID != "rid-123" {
		t.Fatalf("request id not propagated, got %q", gotID)
	}
	if !gotLogger {
		t.Fatalf("expected request-scoped logger")
	}
	if rec.Result().Header.Get("X-Request-Id") != "rid-123" {
		t.Fatalf("expected echoed request id")
	}
}
