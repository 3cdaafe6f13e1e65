package adapter

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/sitewatch/visitorfn/internal/awsclient"
	"github.com/sitewatch/visitorfn/internal/config"
	"github.com/sitewatch/visitorfn/internal/counter"
	"github.com/sitewatch/visitorfn/internal/logging"
	"github.com/sitewatch/visitorfn/internal/metrics"
	"github.com/sitewatch/visitorfn/internal/renewal"
	"github.com/sitewatch/visitorfn/internal/router"
)

var instanceIDPattern = regexp.MustCompile(`^i-([0-9a-f]{8}|[0-9a-f]{17})$`)

// Clients are the AWS clients the adapter wires into its components.
type Clients struct {
	DynamoDB counter.DynamoDBAPI
	EC2      renewal.EC2API
	SNS      renewal.SNSAPI
}

// Adapter holds the fully wired function: services, router and metrics.
// It is built once per process and shared by every invocation.
type Adapter struct {
	config  *config.Configuration
	logger  *zap.Logger
	metrics *metrics.Recorder

	counter *counter.Service
	renewal *renewal.Service
	router  *router.Router
}

// New loads the AWS clients described by cfg and wires the adapter.
func New(ctx context.Context, cfg *config.Configuration, logger *zap.Logger) (*Adapter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	logger = logging.OrNop(logger)

	cm, err := awsclient.NewClientManager(ctx, AWSConfig(cfg), logger.Named("aws"))
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS clients: %w", err)
	}
	logger.Info("aws clients ready", zap.String("region", cm.Region()))

	return NewWithClients(cfg, Clients{
		DynamoDB: cm.DynamoDB(),
		EC2:      cm.EC2(),
		SNS:      cm.SNS(),
	}, logger)
}

// NewWithClients wires the adapter over the given clients.
func NewWithClients(cfg *config.Configuration, clients Clients, logger *zap.Logger) (*Adapter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := validateInstanceID(cfg.Renewal.InstanceID); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger = logging.OrNop(logger)

	if cfg.Renewal.InstanceID == config.PlaceholderInstanceID {
		logger.Warn("renewal instance id not configured, renewal endpoints will report not found",
			zap.String("instance_id", cfg.Renewal.InstanceID))
	}

	var recorder *metrics.Recorder
	if cfg.Server.EnableMetrics {
		r, err := metrics.NewRecorder(MetricsConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics recorder: %w", err)
		}
		recorder = r
	}

	store := counter.NewDynamoStore(clients.DynamoDB, cfg.Counter.TableName, cfg.Counter.CounterID,
		logger.Named("counter"), recorder)
	counterSvc := counter.NewService(store, logger.Named("counter"), recorder)

	controller := renewal.NewEC2Controller(clients.EC2, logger.Named("renewal"), recorder)
	notifier := renewal.NewSNSNotifier(clients.SNS, cfg.Renewal.TopicARN, logger.Named("renewal"), recorder)
	renewalSvc := renewal.NewService(controller, notifier, renewal.Config{
		InstanceID:        cfg.Renewal.InstanceID,
		EstimatedDuration: cfg.Renewal.EstimatedDuration,
	}, logger.Named("renewal"), recorder)

	logger.Info("function wired",
		zap.String("table", cfg.Counter.TableName),
		zap.String("counter_id", cfg.Counter.CounterID),
		zap.String("instance_id", cfg.Renewal.InstanceID),
		zap.Bool("notifications", notifier.Enabled()),
		zap.Bool("metrics", recorder != nil))

	return &Adapter{
		config:  cfg,
		logger:  logger,
		metrics: recorder,
		counter: counterSvc,
		renewal: renewalSvc,
		router:  router.New(counterSvc, renewalSvc, logger.Named("router"), recorder),
	}, nil
}

// AWSConfig maps the function configuration onto the client settings.
func AWSConfig(cfg *config.Configuration) *awsclient.Config {
	return &awsclient.Config{
		Region:          cfg.AWS.Region,
		Endpoint:        cfg.AWS.Endpoint,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		MaxAttempts:     cfg.AWS.MaxAttempts,
		RetryMode:       cfg.AWS.RetryMode,
		PoolSize:        cfg.AWS.PoolSize,
		ConnectTimeout:  cfg.AWS.ConnectTimeout,
	}
}

// MetricsConfig labels every series with the counter the function serves.
func MetricsConfig(cfg *config.Configuration) *metrics.Config {
	return &metrics.Config{
		Namespace: metrics.DefaultNamespace,
		Labels: map[string]string{
			"table":      cfg.Counter.TableName,
			"counter_id": cfg.Counter.CounterID,
		},
	}
}

// Router returns the request router
func (a *Adapter) Router() *router.Router {
	return a.router
}

// Counter returns the visitor counter service
func (a *Adapter) Counter() *counter.Service {
	return a.counter
}

// Renewal returns the certificate renewal service
func (a *Adapter) Renewal() *renewal.Service {
	return a.renewal
}

// Metrics returns the recorder, nil when metrics are disabled.
func (a *Adapter) Metrics() *metrics.Recorder {
	return a.metrics
}

// Config returns the configuration the adapter was built from
func (a *Adapter) Config() *config.Configuration {
	return a.config
}

// Stop flushes buffered log entries.
func (a *Adapter) Stop(ctx context.Context) error {
	a.logger.Info("stopping function adapter")
	// Sync fails on stderr/stdout on some platforms; nothing else is buffered.
	_ = a.logger.Sync()
	return nil
}

// validateInstanceID accepts EC2 instance ids and the unconfigured placeholder.
func validateInstanceID(id string) error {
	if id == config.PlaceholderInstanceID {
		return nil
	}
	if !instanceIDPattern.MatchString(id) {
		return fmt.Errorf("renewal instance id %q is not an EC2 instance id", id)
	}
	return nil
}
