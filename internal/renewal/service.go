// Package renewal controls the EC2 instance that renews the site's TLS
// certificate: it starts the instance on demand or on a schedule, reports
// its progress and announces starts on an SNS topic.
package renewal

import (
	"context"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.uber.org/zap"

	"github.com/sitewatch/visitorfn/internal/metrics"
	apperrors "github.com/sitewatch/visitorfn/pkg/errors"
	"github.com/sitewatch/visitorfn/pkg/health"
	"github.com/sitewatch/visitorfn/pkg/response"
)

// Renewal progress derived from the instance state.
const (
	StatusInProgress      = "in_progress"
	StatusCompletedOrIdle = "completed_or_idle"
	StatusTransitioning   = "transitioning"
)

// Trigger results recorded in metrics.
const (
	resultStarted        = "started"
	resultAlreadyRunning = "already_running"
	resultRejected       = "rejected"
	resultFailed         = "failed"
)

// InstanceController is the instance contract of the renewal service.
type InstanceController interface {
	Describe(ctx context.Context, instanceID string) (*Instance, error)
	Start(ctx context.Context, instanceID string) (StartResult, error)
	HealthCheck(ctx context.Context, instanceID string) InstanceHealth
}

// Config configures the service
type Config struct {
	InstanceID        string
	EstimatedDuration string
}

// Service translates instance operations into responses.
type Service struct {
	controller InstanceController
	notifier   Notifier
	config     Config
	logger     *zap.Logger
	metrics    *metrics.Recorder
}

// NewService creates a renewal service. notifier may be nil.
func NewService(controller InstanceController, notifier Notifier, cfg Config, logger *zap.Logger, recorder *metrics.Recorder) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.EstimatedDuration == "" {
		cfg.EstimatedDuration = "10-15 minutes"
	}
	return &Service{
		controller: controller,
		notifier:   notifier,
		config:     cfg,
		logger:     logger,
		metrics:    recorder,
	}
}

// TriggerRenewal starts the renewal instance.
func (s *Service) TriggerRenewal(ctx context.Context) response.Response {
	result, err := s.controller.Start(ctx, s.config.InstanceID)
	if err != nil {
		return s.triggerFailure(err)
	}

	if result.Started {
		s.metrics.RecordRenewalTrigger(resultStarted)
		if s.notifier != nil {
			s.notifier.RenewalStarted(ctx, result.InstanceID)
		}
	} else {
		s.metrics.RecordRenewalTrigger(resultAlreadyRunning)
	}

	return response.Success(response.Body{
		"instanceId":        result.InstanceID,
		"status":            "SSL renewal process initiated",
		"estimatedDuration": s.config.EstimatedDuration,
	}, "SSL renewal instance started successfully")
}

func (s *Service) triggerFailure(err error) response.Response {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeInstanceNotFound:
		s.metrics.RecordRenewalTrigger(resultRejected)
		s.logger.Warn("renewal instance not found",
			zap.String("instance_id", s.config.InstanceID), zap.Error(err))
		return response.ResourceNotFound("SSL renewal EC2 instance")
	case apperrors.ErrCodeInvalidState:
		s.metrics.RecordRenewalTrigger(resultRejected)
		e, _ := apperrors.As(err)
		s.logger.Info("renewal instance cannot be started",
			zap.String("instance_id", s.config.InstanceID),
			zap.String("reason", e.Message))
		return response.Error(http.StatusBadRequest, "Instance cannot be started",
			response.Body{"reason": e.Message}, false)
	case apperrors.ErrCodeUnexpected:
		s.metrics.RecordRenewalTrigger(resultFailed)
		s.logger.Error("renewal trigger failed", zap.Error(err))
		return response.InternalServerError()
	default:
		s.metrics.RecordRenewalTrigger(resultFailed)
		s.logger.Warn("renewal trigger failed", zap.Error(err))
		return response.FromError(err, "SSL renewal EC2 instance", response.BackendEC2)
	}
}

// Status reports the instance attributes and the derived renewal progress.
func (s *Service) Status(ctx context.Context) response.Response {
	inst, err := s.controller.Describe(ctx, s.config.InstanceID)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.ErrCodeUnexpected {
			s.logger.Error("renewal status failed", zap.Error(err))
		}
		return response.FromError(err, "SSL renewal instance", response.BackendEC2)
	}

	var launchTime interface{}
	if inst.LaunchTime != nil {
		launchTime = inst.LaunchTime.UTC()
	}

	body := response.Body{
		"instanceId":       s.config.InstanceID,
		"state":            inst.State,
		"stateReason":      inst.StateReason,
		"instanceType":     inst.Type,
		"launchTime":       launchTime,
		"privateIpAddress": inst.PrivateIP,
		"publicIpAddress":  inst.PublicIP,
		"renewalStatus":    RenewalStatus(inst.State),
	}
	if inst.State == types.InstanceStateNameRunning {
		body["estimatedCompletion"] = s.config.EstimatedDuration + " from start"
	}

	return response.Success(body, "SSL renewal status retrieved successfully")
}

// Health reports whether the instance is reachable and in a usable state.
func (s *Service) Health(ctx context.Context) response.Response {
	h := s.controller.HealthCheck(ctx, s.config.InstanceID)

	body := response.Body{
		"service":     "ssl-renewal",
		"status":      h.Status,
		"ec2Service":  "inaccessible",
		"lastChecked": h.CheckedAt,
	}
	if h.Accessible {
		body["ec2Service"] = "accessible"
		body["instanceId"] = h.InstanceID
		body["instanceState"] = h.InstanceState
	}
	if h.Error != "" {
		body["error"] = h.Error
	}

	if h.Status != health.StateHealthy {
		s.logger.Warn("renewal health check failed",
			zap.String("instance_id", h.InstanceID),
			zap.String("state", string(h.InstanceState)),
			zap.String("error", h.Error))
	}
	return response.Create(h.Status.HTTPStatus(), body)
}

// RenewalStatus maps an instance state to renewal progress.
func RenewalStatus(state types.InstanceStateName) string {
	switch state {
	case types.InstanceStateNameRunning:
		return StatusInProgress
	case types.InstanceStateNameStopped:
		return StatusCompletedOrIdle
	default:
		return StatusTransitioning
	}
}
