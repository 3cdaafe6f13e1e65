// Package lambdafn adapts Lambda invocations to the router.
package lambdafn

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"go.uber.org/zap"

	"github.com/sitewatch/visitorfn/internal/router"
	"github.com/sitewatch/visitorfn/pkg/response"
)

// Router is the part of router.Router the handler needs.
type Router interface {
	Handle(ctx context.Context, req router.Request) response.Response
	HandleScheduled(ctx context.Context, requestID string) response.Response
}

// Handler serves both Lambda functions: the HTTP API function and the
// scheduled renewal function.
type Handler struct {
	router Router
	logger *zap.Logger
}

// NewHandler creates a handler over r.
func NewHandler(r Router, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{router: r, logger: logger}
}

// eventProbe reads just enough of a payload to tell scheduler events from
// API Gateway requests.
type eventProbe struct {
	Source     string `json:"source"`
	DetailType string `json:"detail-type"`
}

// Invoke handles the HTTP API function. Scheduler events are sent straight
// to the renewal trigger; anything else must be an API Gateway proxy request.
func (h *Handler) Invoke(ctx context.Context, payload json.RawMessage) (events.APIGatewayProxyResponse, error) {
	requestID := RequestID(ctx)

	var probe eventProbe
	if err := json.Unmarshal(payload, &probe); err != nil {
		h.logger.Warn("invocation payload is not a JSON object",
			zap.String("request_id", requestID), zap.Error(err))
		return toProxyResponse(response.ValidationFailed([]string{"event must be a JSON object"})), nil
	}

	if router.IsScheduledSource(probe.Source) {
		return toProxyResponse(h.router.Handle(ctx, router.Request{
			Source:    probe.Source,
			RequestID: requestID,
		})), nil
	}

	var event events.APIGatewayProxyRequest
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Warn("invocation payload is not an API Gateway request",
			zap.String("request_id", requestID), zap.Error(err))
		return toProxyResponse(response.ValidationFailed([]string{"event is not an API Gateway proxy request"})), nil
	}

	if requestID == "" {
		requestID = event.RequestContext.RequestID
	}

	return toProxyResponse(h.router.Handle(ctx, router.Request{
		Method:    event.HTTPMethod,
		Path:      event.Path,
		Headers:   event.Headers,
		RequestID: requestID,
	})), nil
}

// InvokeScheduled handles the dedicated scheduled renewal function. It never
// returns an error, so a failed renewal does not count as a failed
// invocation for the scheduler.
func (h *Handler) InvokeScheduled(ctx context.Context, event events.CloudWatchEvent) (response.Response, error) {
	h.logger.Info("scheduled renewal event received",
		zap.String("source", event.Source),
		zap.String("detail_type", event.DetailType),
		zap.Time("time", event.Time))
	return h.router.HandleScheduled(ctx, RequestID(ctx)), nil
}

// RequestID returns the Lambda request id carried by ctx, or "".
func RequestID(ctx context.Context) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		return lc.AwsRequestID
	}
	return ""
}

func toProxyResponse(r response.Response) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: r.StatusCode,
		Headers:    r.Headers,
		Body:       r.Body,
	}
}
