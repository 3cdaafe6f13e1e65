package renewal

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.uber.org/zap"

	"github.com/sitewatch/visitorfn/internal/metrics"
	apperrors "github.com/sitewatch/visitorfn/pkg/errors"
	"github.com/sitewatch/visitorfn/pkg/health"
)

// NotAvailable fills instance attributes EC2 did not report.
const NotAvailable = "N/A"

// EC2API is the subset of the EC2 client used by the controller.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	StartInstances(ctx context.Context, params *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error)
}

// Instance is the renewal instance as reported by EC2.
type Instance struct {
	ID          string
	State       types.InstanceStateName
	StateReason string
	Type        string
	LaunchTime  *time.Time
	PrivateIP   string
	PublicIP    string
}

// StartResult reports what Start did.
type StartResult struct {
	InstanceID    string
	PreviousState types.InstanceStateName
	// Started is false when the instance was already running.
	Started bool
}

// InstanceHealth is the outcome of HealthCheck.
type InstanceHealth struct {
	Status        health.State
	Accessible    bool
	InstanceID    string
	InstanceState types.InstanceStateName
	Error         string
	CheckedAt     time.Time
}

var healthyStates = map[types.InstanceStateName]bool{
	types.InstanceStateNameRunning:  true,
	types.InstanceStateNameStopped:  true,
	types.InstanceStateNameStopping: true,
	types.InstanceStateNamePending:  true,
}

// EC2Controller inspects and starts a single EC2 instance. It never stops
// or terminates it.
type EC2Controller struct {
	client  EC2API
	logger  *zap.Logger
	metrics *metrics.Recorder
	now     func() time.Time
}

// NewEC2Controller creates a controller over client.
func NewEC2Controller(client EC2API, logger *zap.Logger, recorder *metrics.Recorder) *EC2Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EC2Controller{
		client:  client,
		logger:  logger,
		metrics: recorder,
		now:     time.Now,
	}
}

// Describe fetches the current attributes of the instance.
func (c *EC2Controller) Describe(ctx context.Context, instanceID string) (*Instance, error) {
	out, err := c.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return nil, c.translateError(err, "DescribeInstances", instanceID)
	}

	if len(out.Reservations) == 0 || len(out.Reservations[0].Instances) == 0 {
		return nil, apperrors.Errorf(apperrors.ErrCodeInstanceNotFound,
			"instance %s not found in response", instanceID).
			WithComponent("renewal").
			WithOperation("DescribeInstances")
	}
	return toInstance(instanceID, out.Reservations[0].Instances[0]), nil
}

// Start starts the instance when it is stopped. A running instance counts
// as success without a start call; pending and stopping instances, and any
// other state, are rejected with INVALID_STATE.
func (c *EC2Controller) Start(ctx context.Context, instanceID string) (StartResult, error) {
	inst, err := c.Describe(ctx, instanceID)
	if err != nil {
		return StartResult{}, err
	}

	result := StartResult{InstanceID: instanceID, PreviousState: inst.State}

	switch inst.State {
	case types.InstanceStateNameRunning:
		c.logger.Info("instance already running, renewal may be in progress",
			zap.String("instance_id", instanceID))
		return result, nil
	case types.InstanceStateNamePending, types.InstanceStateNameStopping:
		return result, apperrors.Errorf(apperrors.ErrCodeInvalidState,
			"Instance is %s, please wait", inst.State).
			WithComponent("renewal").
			WithOperation("StartInstances").
			WithDetail("state", string(inst.State))
	case types.InstanceStateNameStopped:
	default:
		return result, apperrors.Errorf(apperrors.ErrCodeInvalidState,
			"Instance in %s state cannot be started", inst.State).
			WithComponent("renewal").
			WithOperation("StartInstances").
			WithDetail("state", string(inst.State))
	}

	if _, err := c.client.StartInstances(ctx, &ec2.StartInstancesInput{
		InstanceIds: []string{instanceID},
	}); err != nil {
		return result, c.translateError(err, "StartInstances", instanceID)
	}

	c.logger.Info("renewal instance start initiated", zap.String("instance_id", instanceID))
	result.Started = true
	return result, nil
}

// HealthCheck reports whether the instance can be described and is in a
// usable state. It never returns an error.
func (c *EC2Controller) HealthCheck(ctx context.Context, instanceID string) InstanceHealth {
	h := InstanceHealth{InstanceID: instanceID, CheckedAt: c.now().UTC()}

	inst, err := c.Describe(ctx, instanceID)
	if err != nil {
		h.Status = health.StateUnhealthy
		h.Error = healthError(err)
		return h
	}

	h.Accessible = true
	h.InstanceState = inst.State
	h.Status = health.StateUnhealthy
	if healthyStates[inst.State] {
		h.Status = health.StateHealthy
	}
	return h
}

func toInstance(instanceID string, inst types.Instance) *Instance {
	out := &Instance{
		ID:          instanceID,
		StateReason: NotAvailable,
		Type:        string(inst.InstanceType),
		LaunchTime:  inst.LaunchTime,
		PrivateIP:   NotAvailable,
		PublicIP:    NotAvailable,
	}
	if inst.InstanceId != nil {
		out.ID = *inst.InstanceId
	}
	if inst.State != nil {
		out.State = inst.State.Name
	}
	if inst.StateReason != nil && aws.ToString(inst.StateReason.Message) != "" {
		out.StateReason = aws.ToString(inst.StateReason.Message)
	}
	if ip := aws.ToString(inst.PrivateIpAddress); ip != "" {
		out.PrivateIP = ip
	}
	if ip := aws.ToString(inst.PublicIpAddress); ip != "" {
		out.PublicIP = ip
	}
	return out
}

func healthError(err error) string {
	if e, ok := apperrors.As(err); ok {
		if e.BackendCode != "" {
			return e.BackendCode
		}
		return e.Message
	}
	return err.Error()
}

// translateError classifies an EC2 failure. The controller reports only
// INSTANCE_NOT_FOUND, INVALID_STATE and BACKEND_ERROR; throttling and
// validation codes from EC2 are backend errors here.
func (c *EC2Controller) translateError(err error, operation, instanceID string) error {
	e := apperrors.Restrict(apperrors.FromBackend(err, "renewal", operation),
		apperrors.ErrCodeInstanceNotFound, apperrors.ErrCodeInvalidState)
	c.metrics.RecordBackendError(metrics.BackendEC2, e.BackendCode)
	c.logger.Warn("ec2 call failed",
		zap.String("operation", operation),
		zap.String("instance_id", instanceID),
		zap.String("code", string(e.Code)),
		zap.String("backend_code", e.BackendCode),
		zap.Error(err))
	return e
}
