package awsclient

import (
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// Config represents the settings shared by every AWS client of the function
type Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string

	// Retry settings. Retries are performed by the SDK only.
	MaxAttempts int
	RetryMode   string // "standard" or "adaptive"

	// Connection settings
	PoolSize       int
	ConnectTimeout time.Duration
}

// NewDefaultConfig returns a configuration with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Region:         "us-east-1",
		MaxAttempts:    3,
		RetryMode:      string(aws.RetryModeAdaptive),
		PoolSize:       10,
		ConnectTimeout: 5 * time.Second,
	}
}

// Mode returns the SDK retry mode, defaulting to adaptive.
func (c *Config) Mode() aws.RetryMode {
	if strings.EqualFold(c.RetryMode, string(aws.RetryModeStandard)) {
		return aws.RetryModeStandard
	}
	return aws.RetryModeAdaptive
}
