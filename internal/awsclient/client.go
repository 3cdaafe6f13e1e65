// Package awsclient builds the AWS clients used by the function. Clients are
// created once per process and shared by every invocation.
package awsclient

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"
)

// ClientManager holds the AWS clients for the counter table, the renewal
// instance and the notification topic.
type ClientManager struct {
	awsCfg aws.Config
	dynamo *dynamodb.Client
	ec2    *ec2.Client
	sns    *sns.Client
	config *Config
	logger *zap.Logger
}

// NewClientManager loads the AWS configuration and creates the clients.
func NewClientManager(ctx context.Context, cfg *Config, logger *zap.Logger) (*ClientManager, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	logger.Debug("AWS clients configured",
		zap.String("region", cfg.Region),
		zap.String("retry_mode", string(cfg.Mode())),
		zap.Int("max_attempts", cfg.MaxAttempts),
		zap.Int("pool_size", cfg.PoolSize),
		zap.Bool("custom_endpoint", cfg.Endpoint != ""))

	return &ClientManager{
		awsCfg: awsCfg,
		dynamo: dynamodb.NewFromConfig(awsCfg),
		ec2:    ec2.NewFromConfig(awsCfg),
		sns:    sns.NewFromConfig(awsCfg),
		config: cfg,
		logger: logger,
	}, nil
}

// LoadAWSConfig resolves the shared aws.Config: region, retryer, pooled HTTP
// client and, when given, static credentials and a base endpoint.
func LoadAWSConfig(ctx context.Context, cfg *Config) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithRetryer(NewRetryer(cfg)),
		config.WithHTTPClient(newHTTPClient(cfg)),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(cfg.Endpoint))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// NewRetryer returns the retryer factory for the configured mode. Adaptive
// mode adds client-side rate limiting on top of standard exponential backoff.
func NewRetryer(cfg *Config) func() aws.Retryer {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	standard := func(o *retry.StandardOptions) {
		o.MaxAttempts = attempts
	}

	if cfg.Mode() == aws.RetryModeStandard {
		return func() aws.Retryer {
			return retry.NewStandard(standard)
		}
	}
	return func() aws.Retryer {
		return retry.NewAdaptiveMode(func(o *retry.AdaptiveModeOptions) {
			o.StandardOptions = append(o.StandardOptions, standard)
		})
	}
}

func newHTTPClient(cfg *Config) *awshttp.BuildableClient {
	client := awshttp.NewBuildableClient().WithTransportOptions(func(tr *http.Transport) {
		if cfg.PoolSize > 0 {
			tr.MaxIdleConnsPerHost = cfg.PoolSize
			tr.MaxConnsPerHost = cfg.PoolSize
		}
	})
	if cfg.ConnectTimeout > 0 {
		client = client.WithDialerOptions(func(d *net.Dialer) {
			d.Timeout = cfg.ConnectTimeout
		})
	}
	return client
}

// DynamoDB returns the DynamoDB client
func (cm *ClientManager) DynamoDB() *dynamodb.Client {
	return cm.dynamo
}

// EC2 returns the EC2 client
func (cm *ClientManager) EC2() *ec2.Client {
	return cm.ec2
}

// SNS returns the SNS client
func (cm *ClientManager) SNS() *sns.Client {
	return cm.sns
}

// Region returns the region every client was built for
func (cm *ClientManager) Region() string {
	return cm.awsCfg.Region
}
