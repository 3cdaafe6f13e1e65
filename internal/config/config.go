package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// PlaceholderInstanceID is used when SSL_INSTANCE_ID is not supplied.
const PlaceholderInstanceID = "i-xxxxxxxxxxxxxxxxx"

// PlaceholderTopicARN is used when SSL_SNS_TOPIC_ARN is not supplied.
const PlaceholderTopicARN = "arn:aws:sns:region:account:topic-name"

// Configuration represents the complete function configuration
type Configuration struct {
	AWS     AWSConfig     `yaml:"aws" mapstructure:"aws"`
	Counter CounterConfig `yaml:"counter" mapstructure:"counter"`
	Renewal RenewalConfig `yaml:"renewal" mapstructure:"renewal"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
}

// AWSConfig represents the shared AWS client settings
type AWSConfig struct {
	Region          string        `yaml:"region" mapstructure:"region"`
	Endpoint        string        `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	AccessKeyID     string        `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	MaxAttempts     int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryMode       string        `yaml:"retry_mode" mapstructure:"retry_mode"`
	PoolSize        int           `yaml:"pool_size" mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
}

// CounterConfig represents the visitor counter table settings
type CounterConfig struct {
	TableName string `yaml:"table_name" mapstructure:"table_name"`
	CounterID string `yaml:"counter_id" mapstructure:"counter_id"`
}

// RenewalConfig represents the certificate renewal instance settings
type RenewalConfig struct {
	InstanceID        string `yaml:"instance_id" mapstructure:"instance_id"`
	TopicARN          string `yaml:"topic_arn" mapstructure:"topic_arn"`
	EstimatedDuration string `yaml:"estimated_duration" mapstructure:"estimated_duration"`
}

// LoggingConfig represents logging settings
type LoggingConfig struct {
	Level       string `yaml:"level" mapstructure:"level"`
	Development bool   `yaml:"development" mapstructure:"development"`
}

// ServerConfig represents the local HTTP server settings
type ServerConfig struct {
	Address         string        `yaml:"address" mapstructure:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	EnableMetrics   bool          `yaml:"enable_metrics" mapstructure:"enable_metrics"`
}

// envBindings maps configuration keys to the environment variables of the
// deployment contract. Other keys are reachable as VISITORFN_<SECTION>_<KEY>.
var envBindings = map[string][]string{
	"aws.region":                 {"AWS_REGION", "AWS_DEFAULT_REGION"},
	"aws.endpoint":               {"AWS_ENDPOINT_URL"},
	"aws.max_attempts":           {"AWS_MAX_ATTEMPTS"},
	"aws.retry_mode":             {"AWS_RETRY_MODE"},
	"aws.pool_size":              {"DYNAMODB_MAX_POOL_CONNECTIONS"},
	"counter.table_name":         {"VISITOR_COUNTER_TABLE"},
	"counter.counter_id":         {"COUNTER_ID"},
	"renewal.instance_id":        {"SSL_INSTANCE_ID"},
	"renewal.topic_arn":          {"SSL_SNS_TOPIC_ARN"},
	"renewal.estimated_duration": {"RENEWAL_ESTIMATED_DURATION"},
	"logging.level":              {"LOG_LEVEL"},
	"logging.development":        {"LOG_DEVELOPMENT"},
	"server.address":             {"SERVER_ADDRESS"},
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		AWS: AWSConfig{
			Region:         "us-east-1",
			MaxAttempts:    3,
			RetryMode:      "adaptive",
			PoolSize:       10,
			ConnectTimeout: 5 * time.Second,
		},
		Counter: CounterConfig{
			CounterID: "homePage",
		},
		Renewal: RenewalConfig{
			InstanceID:        PlaceholderInstanceID,
			TopicARN:          PlaceholderTopicARN,
			EstimatedDuration: "10-15 minutes",
		},
		Logging: LoggingConfig{
			Level:       "INFO",
			Development: false,
		},
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			EnableMetrics:   true,
		},
	}
}

// Load builds a Configuration from defaults, an optional YAML file and the
// environment, in increasing order of precedence, and validates it.
func Load(path string) (*Configuration, error) {
	v := viper.New()
	v.SetEnvPrefix("VISITORFN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, NewDefault())

	for key, names := range envBindings {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Configuration{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Configuration) {
	v.SetDefault("aws.region", d.AWS.Region)
	v.SetDefault("aws.endpoint", d.AWS.Endpoint)
	v.SetDefault("aws.access_key_id", d.AWS.AccessKeyID)
	v.SetDefault("aws.secret_access_key", d.AWS.SecretAccessKey)
	v.SetDefault("aws.max_attempts", d.AWS.MaxAttempts)
	v.SetDefault("aws.retry_mode", d.AWS.RetryMode)
	v.SetDefault("aws.pool_size", d.AWS.PoolSize)
	v.SetDefault("aws.connect_timeout", d.AWS.ConnectTimeout)
	v.SetDefault("counter.table_name", d.Counter.TableName)
	v.SetDefault("counter.counter_id", d.Counter.CounterID)
	v.SetDefault("renewal.instance_id", d.Renewal.InstanceID)
	v.SetDefault("renewal.topic_arn", d.Renewal.TopicARN)
	v.SetDefault("renewal.estimated_duration", d.Renewal.EstimatedDuration)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.development", d.Logging.Development)
	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.enable_metrics", d.Server.EnableMetrics)
}

// Marshal renders the configuration as YAML with credentials redacted.
func (c *Configuration) Marshal() ([]byte, error) {
	redacted := *c
	if redacted.AWS.SecretAccessKey != "" {
		redacted.AWS.SecretAccessKey = "REDACTED"
	}
	data, err := yaml.Marshal(&redacted)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	if c.Counter.TableName == "" {
		return fmt.Errorf("counter table name is required (set VISITOR_COUNTER_TABLE)")
	}

	if c.Counter.CounterID == "" {
		return fmt.Errorf("counter_id must not be empty")
	}

	if c.AWS.Region == "" {
		return fmt.Errorf("aws region must not be empty")
	}

	if c.AWS.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}

	if c.AWS.PoolSize < 1 {
		return fmt.Errorf("pool_size must be at least 1")
	}

	switch strings.ToLower(c.AWS.RetryMode) {
	case "standard", "adaptive":
	default:
		return fmt.Errorf("invalid retry_mode: %s (must be one of: standard, adaptive)", c.AWS.RetryMode)
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if strings.ToUpper(c.Logging.Level) == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.Logging.Level, strings.Join(validLogLevels, ", "))
	}

	return nil
}
