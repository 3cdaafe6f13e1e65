package renewal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"

	"github.com/sitewatch/visitorfn/internal/config"
	"github.com/sitewatch/visitorfn/internal/metrics"
	apperrors "github.com/sitewatch/visitorfn/pkg/errors"
)

// SNSAPI is the subset of the SNS client used by the notifier.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Notifier announces renewal events. Implementations must not fail the
// caller.
type Notifier interface {
	RenewalStarted(ctx context.Context, instanceID string)
}

// Event is the message published to the topic.
type Event struct {
	Event      string    `json:"event"`
	InstanceID string    `json:"instanceId"`
	StartedAt  time.Time `json:"startedAt"`
}

// SNSNotifier publishes renewal events to an SNS topic.
type SNSNotifier struct {
	client   SNSAPI
	topicARN string
	logger   *zap.Logger
	metrics  *metrics.Recorder
	now      func() time.Time
}

// NewSNSNotifier creates a notifier. An empty or placeholder topic disables it.
func NewSNSNotifier(client SNSAPI, topicARN string, logger *zap.Logger, recorder *metrics.Recorder) *SNSNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SNSNotifier{
		client:   client,
		topicARN: topicARN,
		logger:   logger,
		metrics:  recorder,
		now:      time.Now,
	}
}

// Enabled reports whether a real topic is configured.
func (n *SNSNotifier) Enabled() bool {
	return n.client != nil && n.topicARN != "" && n.topicARN != config.PlaceholderTopicARN
}

// RenewalStarted publishes a renewal_started event. Failures are logged.
func (n *SNSNotifier) RenewalStarted(ctx context.Context, instanceID string) {
	if !n.Enabled() {
		return
	}

	payload, err := json.Marshal(Event{
		Event:      "ssl_renewal_started",
		InstanceID: instanceID,
		StartedAt:  n.now().UTC(),
	})
	if err != nil {
		n.logger.Error("failed to encode renewal event", zap.Error(err))
		return
	}

	out, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String("SSL renewal started"),
		Message:  aws.String(string(payload)),
	})
	if err != nil {
		e := apperrors.FromBackend(err, "renewal", "Publish")
		n.metrics.RecordBackendError(metrics.BackendSNS, e.BackendCode)
		n.logger.Warn("renewal notification failed",
			zap.String("topic", n.topicARN),
			zap.String("backend_code", e.BackendCode),
			zap.Error(err))
		return
	}

	n.logger.Info("renewal notification sent",
		zap.String("topic", n.topicARN),
		zap.String("message_id", aws.ToString(out.MessageId)))
}
