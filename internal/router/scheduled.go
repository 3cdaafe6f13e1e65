package router

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitewatch/visitorfn/pkg/response"
)

// HandleScheduled runs the renewal trigger for the scheduled function. The
// trigger's own response is returned as is; a panic becomes a 500 whose body
// names the failure, so the scheduler never sees an invocation error.
func (r *Router) HandleScheduled(ctx context.Context, requestID string) (resp response.Response) {
	start := time.Now()
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logger := r.logger.With(zap.String("request_id", requestID))

	defer func() {
		if p := recover(); p != nil {
			logger.Error("scheduled renewal failed",
				zap.Any("panic", p),
				zap.Stack("stack"))
			resp = response.Create(http.StatusInternalServerError, response.Body{
				"error":     "SSL renewal failed",
				"details":   fmt.Sprint(p),
				"requestId": requestID,
			})
		}
		r.metrics.ObserveRequest(RouteScheduled, "EVENT", resp.StatusCode, time.Since(start))
	}()

	logger.Info("scheduled renewal starting")
	resp = r.renewal.TriggerRenewal(ctx)
	logger.Info("scheduled renewal trigger finished", zap.Int("status_code", resp.StatusCode))
	return resp
}
