package router

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sitewatch/visitorfn/internal/metrics"
	"github.com/sitewatch/visitorfn/pkg/response"
)

// stubService answers every call with a canned response and records calls.
type stubService struct {
	calls       []string
	healthCode  int
	panicOn     string
	triggerCode int
}

func (s *stubService) answer(name string, code int) response.Response {
	s.calls = append(s.calls, name)
	if s.panicOn == name {
		panic("backend exploded: secret")
	}
	if code == 0 {
		code = http.StatusOK
	}
	return response.Create(code, response.Body{"message": name})
}

func (s *stubService) GetCount(context.Context) response.Response { return s.answer("get", 0) }
func (s *stubService) IncrementCount(context.Context) response.Response {
	return s.answer("increment", 0)
}
func (s *stubService) TriggerRenewal(context.Context) response.Response {
	return s.answer("trigger", s.triggerCode)
}
func (s *stubService) Status(context.Context) response.Response { return s.answer("status", 0) }
func (s *stubService) Health(context.Context) response.Response {
	return s.answer("health", s.healthCode)
}

func newTestRouter(t *testing.T) (*Router, *stubService, *stubService, *metrics.Recorder) {
	t.Helper()
	recorder, err := metrics.NewRecorder(nil)
	require.NoError(t, err)
	counter, renewal := &stubService{}, &stubService{}
	return New(counter, renewal, nil, recorder), counter, renewal, recorder
}

func decode(t *testing.T, r response.Response) response.Body {
	t.Helper()
	b, err := response.Decode(r)
	require.NoError(t, err)
	return b
}

func TestHandle_Preflight(t *testing.T) {
	router, counter, renewal, _ := newTestRouter(t)

	for _, path := range []string{"/", "/counter", "/ssl/renew", "/nowhere", ""} {
		r := router.Handle(context.Background(), Request{Method: "OPTIONS", Path: path})
		assert.Equal(t, http.StatusOK, r.StatusCode)
		assert.Equal(t, response.Body{"message": "CORS preflight successful"}, decode(t, r))
	}
	assert.Empty(t, counter.calls)
	assert.Empty(t, renewal.calls)
}

func TestHandle_Counter(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   string
	}{
		{"GET", "/", "get"},
		{"GET", "/counter", "get"},
		{"get", "/counter", "get"},
		{"POST", "/counter", "increment"},
		{"POST", "/", "increment"},
		{"GET", "/counter/extra", "get"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			router, counter, _, _ := newTestRouter(t)
			r := router.Handle(context.Background(), Request{Method: tt.method, Path: tt.path})
			assert.Equal(t, http.StatusOK, r.StatusCode)
			assert.Equal(t, []string{tt.want}, counter.calls)
		})
	}
}

func TestHandle_CounterMethodNotAllowed(t *testing.T) {
	router, counter, _, _ := newTestRouter(t)

	r := router.Handle(context.Background(), Request{Method: "DELETE", Path: "/counter"})
	assert.Equal(t, http.StatusMethodNotAllowed, r.StatusCode)
	b := decode(t, r)
	assert.Equal(t, "Method DELETE not allowed", b["message"])
	assert.Equal(t, []interface{}{"GET", "POST", "OPTIONS"},
		b["details"].(map[string]interface{})["supportedMethods"])
	assert.Empty(t, counter.calls)
}

func TestHandle_SSL(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   string
	}{
		{"POST", "/ssl/renew", "trigger"},
		{"GET", "/ssl/status", "status"},
		{"GET", "/ssl/health", "health"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			router, _, renewal, _ := newTestRouter(t)
			r := router.Handle(context.Background(), Request{Method: tt.method, Path: tt.path})
			assert.Equal(t, http.StatusOK, r.StatusCode)
			assert.Equal(t, []string{tt.want}, renewal.calls)
		})
	}
}

func TestHandle_SSLNotFound(t *testing.T) {
	for _, req := range []Request{
		{Method: "GET", Path: "/ssl/renew"},
		{Method: "POST", Path: "/ssl/status"},
		{Method: "GET", Path: "/ssl"},
		{Method: "GET", Path: "/sslfoo"},
	} {
		t.Run(req.Method+" "+req.Path, func(t *testing.T) {
			router, _, renewal, _ := newTestRouter(t)
			r := router.Handle(context.Background(), req)
			assert.Equal(t, http.StatusNotFound, r.StatusCode)
			b := decode(t, r)
			assert.Equal(t, "SSL endpoint "+req.Path+" not found or method "+req.Method+" not supported", b["message"])
			assert.Equal(t, []interface{}{"POST /ssl/renew", "GET /ssl/status", "GET /ssl/health"},
				b["details"].(map[string]interface{})["availableEndpoints"])
			assert.Empty(t, renewal.calls)
		})
	}
}

func TestHandle_UnknownPath(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	r := router.Handle(context.Background(), Request{Method: "GET", Path: "/admin"})
	assert.Equal(t, http.StatusNotFound, r.StatusCode)
	b := decode(t, r)
	assert.Equal(t, "Path /admin not found", b["message"])
	assert.Equal(t, []interface{}{"/counter", "/ssl", "/health"},
		b["details"].(map[string]interface{})["availablePaths"])

	r = router.Handle(context.Background(), Request{Method: "GET"})
	assert.Equal(t, "Path Unknown not found", decode(t, r)["message"])
}

func TestHandle_Health(t *testing.T) {
	tests := []struct {
		name        string
		counterCode int
		renewalCode int
		wantCode    int
		wantStatus  string
	}{
		{"both healthy", 200, 200, 200, "healthy"},
		{"counter down", 503, 200, 503, "degraded"},
		{"renewal down", 200, 503, 503, "degraded"},
		{"both down", 503, 503, 503, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, counter, renewal, _ := newTestRouter(t)
			counter.healthCode = tt.counterCode
			renewal.healthCode = tt.renewalCode

			r := router.Handle(context.Background(), Request{Method: "GET", Path: "/health", RequestID: "req-1"})
			assert.Equal(t, tt.wantCode, r.StatusCode)
			b := decode(t, r)
			assert.Equal(t, "multi-service-lambda", b["service"])
			assert.Equal(t, tt.wantStatus, b["status"])
			assert.Equal(t, "req-1", b["requestId"])
			services := b["services"].(map[string]interface{})
			assert.Equal(t, "health", services["visitorCounter"].(map[string]interface{})["message"])
			assert.Equal(t, "health", services["sslRenewal"].(map[string]interface{})["message"])
		})
	}
}

func TestHandle_HealthGeneratesRequestID(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	b := decode(t, router.Handle(context.Background(), Request{Method: "GET", Path: "/health"}))
	_, err := uuid.Parse(b["requestId"].(string))
	assert.NoError(t, err)
}

func TestHandle_HealthMethodNotAllowed(t *testing.T) {
	router, counter, _, _ := newTestRouter(t)

	r := router.Handle(context.Background(), Request{Method: "POST", Path: "/health"})
	assert.Equal(t, http.StatusMethodNotAllowed, r.StatusCode)
	assert.Empty(t, counter.calls)
}

func TestHandle_ScheduledSource(t *testing.T) {
	for _, source := range []string{SourceEventBridge, SourceAWSEvents} {
		router, _, renewal, _ := newTestRouter(t)

		r := router.Handle(context.Background(), Request{Source: source, Path: "/counter", Method: "GET"})
		assert.Equal(t, http.StatusOK, r.StatusCode)
		assert.Equal(t, []string{"trigger"}, renewal.calls)
	}
}

func TestHandle_PanicBoundary(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	recorder, err := metrics.NewRecorder(nil)
	require.NoError(t, err)
	counter := &stubService{panicOn: "increment"}
	router := New(counter, &stubService{}, zap.New(core), recorder)

	r := router.Handle(context.Background(), Request{Method: "POST", Path: "/counter", RequestID: "req-9"})
	assert.Equal(t, http.StatusInternalServerError, r.StatusCode)
	assert.Equal(t, response.Body{"message": "Internal server error occurred"}, decode(t, r))
	assert.NotContains(t, r.Body, "secret")

	entries := logs.FilterMessage("unhandled panic while handling request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-9", entries[0].ContextMap()["request_id"])

	expected := `
# HELP visitorfn_requests_total Total number of handled requests
# TYPE visitorfn_requests_total counter
visitorfn_requests_total{code="500",method="POST",route="counter"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(recorder.Registry(),
		strings.NewReader(expected), "visitorfn_requests_total"))
}

func TestRequest_Origin(t *testing.T) {
	assert.Equal(t, "https://a.example", Request{Headers: map[string]string{"origin": "https://a.example"}}.Origin())
	assert.Equal(t, "https://b.example", Request{Headers: map[string]string{"Origin": "https://b.example"}}.Origin())
	assert.Empty(t, Request{}.Origin())
}
