package lambdafn

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/sitewatch/visitorfn/internal/adapter"
	"github.com/sitewatch/visitorfn/internal/config"
	"github.com/sitewatch/visitorfn/internal/logging"
)

// ConfigPathEnv optionally names a YAML file layered under the environment.
const ConfigPathEnv = "VISITORFN_CONFIG"

// Bootstrap loads configuration from the environment, builds the logger and
// wires the adapter. It runs once per cold start.
func Bootstrap(ctx context.Context) (*Handler, *zap.Logger, error) {
	cfg, err := config.Load(os.Getenv(ConfigPathEnv))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}

	a, err := adapter.New(ctx, cfg, logger)
	if err != nil {
		return nil, logger, err
	}

	return NewHandler(a.Router(), logger.Named("lambda")), logger, nil
}
