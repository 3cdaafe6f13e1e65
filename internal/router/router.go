// Package router dispatches HTTP-style requests to the counter and renewal
// services. Handle is the only place panics are recovered; every request
// gets a response.
package router

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitewatch/visitorfn/internal/metrics"
	"github.com/sitewatch/visitorfn/pkg/health"
	"github.com/sitewatch/visitorfn/pkg/response"
)

// Event sources that bypass routing and start a renewal.
const (
	SourceEventBridge = "eventbridge"
	SourceAWSEvents   = "aws.events"
)

// Route labels used for logging and metrics.
const (
	RoutePreflight = "preflight"
	RouteCounter   = "counter"
	RouteSSL       = "ssl"
	RouteHealth    = "health"
	RouteScheduled = "scheduled"
	RouteNotFound  = "not_found"
)

// AvailablePaths is listed by 404 responses for unknown paths.
var AvailablePaths = []string{"/counter", "/ssl", "/health"}

// AvailableSSLEndpoints is listed by 404 responses under /ssl.
var AvailableSSLEndpoints = []string{"POST /ssl/renew", "GET /ssl/status", "GET /ssl/health"}

// CounterService is the visitor counter as seen by the router.
type CounterService interface {
	GetCount(ctx context.Context) response.Response
	IncrementCount(ctx context.Context) response.Response
	Health(ctx context.Context) response.Response
}

// RenewalService is the certificate renewal as seen by the router.
type RenewalService interface {
	TriggerRenewal(ctx context.Context) response.Response
	Status(ctx context.Context) response.Response
	Health(ctx context.Context) response.Response
}

// Request is an inbound HTTP-style event.
type Request struct {
	Method    string
	Path      string
	Headers   map[string]string
	RequestID string
	// Source is set for events that did not come through the HTTP API.
	Source string
}

// Origin returns the Origin header, matched case-insensitively.
func (r Request) Origin() string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, "Origin") {
			return v
		}
	}
	return ""
}

// IsScheduledSource reports whether source identifies a scheduler event.
func IsScheduledSource(source string) bool {
	return source == SourceEventBridge || source == SourceAWSEvents
}

// Router dispatches requests by method and path.
type Router struct {
	counter CounterService
	renewal RenewalService
	logger  *zap.Logger
	metrics *metrics.Recorder
}

// New creates a router.
func New(counter CounterService, renewal RenewalService, logger *zap.Logger, recorder *metrics.Recorder) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		counter: counter,
		renewal: renewal,
		logger:  logger,
		metrics: recorder,
	}
}

// Handle routes req and always returns a response. A panic anywhere below
// becomes the generic 500.
func (r *Router) Handle(ctx context.Context, req Request) (resp response.Response) {
	start := time.Now()
	method := strings.ToUpper(req.Method)
	path := req.Path
	if path == "" {
		path = "Unknown"
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	route := classify(method, path, req.Source)

	logger := r.logger.With(zap.String("request_id", req.RequestID))

	defer func() {
		if p := recover(); p != nil {
			logger.Error("unhandled panic while handling request",
				zap.String("method", method),
				zap.String("path", path),
				zap.Any("panic", p),
				zap.Stack("stack"))
			resp = response.InternalServerError()
		}
		r.metrics.ObserveRequest(route, method, resp.StatusCode, time.Since(start))
	}()

	logger.Info("request received",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("origin", req.Origin()),
		zap.String("route", route))

	switch route {
	case RouteScheduled:
		logger.Info("scheduled event triggered renewal", zap.String("source", req.Source))
		return r.renewal.TriggerRenewal(ctx)
	case RoutePreflight:
		return response.CORSPreflight()
	case RouteSSL:
		return r.handleSSL(ctx, method, path)
	case RouteCounter:
		return r.handleCounter(ctx, method)
	case RouteHealth:
		return r.handleHealth(ctx, method, req.RequestID)
	default:
		return response.Error(http.StatusNotFound,
			fmt.Sprintf("Path %s not found", path),
			response.Body{"availablePaths": AvailablePaths}, false)
	}
}

func classify(method, path, source string) string {
	switch {
	case IsScheduledSource(source):
		return RouteScheduled
	case method == http.MethodOptions:
		return RoutePreflight
	case strings.HasPrefix(path, "/ssl"):
		return RouteSSL
	case strings.HasPrefix(path, "/counter") || path == "/":
		return RouteCounter
	case strings.HasPrefix(path, "/health"):
		return RouteHealth
	default:
		return RouteNotFound
	}
}

func (r *Router) handleSSL(ctx context.Context, method, path string) response.Response {
	switch {
	case path == "/ssl/renew" && method == http.MethodPost:
		return r.renewal.TriggerRenewal(ctx)
	case path == "/ssl/status" && method == http.MethodGet:
		return r.renewal.Status(ctx)
	case path == "/ssl/health" && method == http.MethodGet:
		return r.renewal.Health(ctx)
	default:
		return response.Error(http.StatusNotFound,
			fmt.Sprintf("SSL endpoint %s not found or method %s not supported", path, method),
			response.Body{"availableEndpoints": AvailableSSLEndpoints}, false)
	}
}

func (r *Router) handleCounter(ctx context.Context, method string) response.Response {
	switch method {
	case http.MethodGet:
		return r.counter.GetCount(ctx)
	case http.MethodPost:
		return r.counter.IncrementCount(ctx)
	default:
		return response.MethodNotAllowed(method)
	}
}

// handleHealth runs both service health checks. The result is healthy only
// when both report 200.
func (r *Router) handleHealth(ctx context.Context, method, requestID string) response.Response {
	if method != http.MethodGet {
		return response.MethodNotAllowed(method)
	}

	counterHealth := r.counter.Health(ctx)
	renewalHealth := r.renewal.Health(ctx)

	counterBody, err := response.Decode(counterHealth)
	if err != nil {
		return r.healthFailure(err)
	}
	renewalBody, err := response.Decode(renewalHealth)
	if err != nil {
		return r.healthFailure(err)
	}

	state := health.Combine(
		health.FromStatusCode(counterHealth.StatusCode),
		health.FromStatusCode(renewalHealth.StatusCode),
	)

	return response.Create(state.HTTPStatus(), response.Body{
		"service": "multi-service-lambda",
		"status":  state,
		"services": response.Body{
			"visitorCounter": counterBody,
			"sslRenewal":     renewalBody,
		},
		"requestId": requestID,
	})
}

func (r *Router) healthFailure(err error) response.Response {
	r.logger.Error("health check failed", zap.Error(err))
	return response.Error(http.StatusServiceUnavailable, "Health check failed",
		response.Body{"error": "service health response could not be read"}, false)
}
