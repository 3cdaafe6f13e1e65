package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sitewatch/visitorfn/internal/adapter"
	"github.com/sitewatch/visitorfn/internal/config"
	"github.com/sitewatch/visitorfn/internal/logging"
	"github.com/sitewatch/visitorfn/internal/metrics"
	"github.com/sitewatch/visitorfn/internal/router"
	"github.com/sitewatch/visitorfn/pkg/response"
)

// App is what the commands drive. Tests swap in a fake through newApp.
type App interface {
	Handle(ctx context.Context, req router.Request) response.Response
	HandleScheduled(ctx context.Context, requestID string) response.Response
	InitializeCounter(ctx context.Context) response.Response
	CounterAnalytics(ctx context.Context) response.Response
	Metrics() *metrics.Recorder
	Close()
}

type adapterApp struct {
	*adapter.Adapter
}

func (a adapterApp) Handle(ctx context.Context, req router.Request) response.Response {
	return a.Router().Handle(ctx, req)
}

func (a adapterApp) HandleScheduled(ctx context.Context, requestID string) response.Response {
	return a.Router().HandleScheduled(ctx, requestID)
}

func (a adapterApp) InitializeCounter(ctx context.Context) response.Response {
	return a.Counter().Initialize(ctx)
}

func (a adapterApp) CounterAnalytics(ctx context.Context) response.Response {
	return a.Counter().Analytics(ctx)
}

func (a adapterApp) Close() {
	_ = a.Stop(context.Background())
}

// newApp is a variable so tests can replace the AWS-backed wiring.
var newApp = func(ctx context.Context, cfg *config.Configuration, logger *zap.Logger) (App, error) {
	a, err := adapter.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return adapterApp{a}, nil
}

// loadConfig is a variable so tests can run without VISITOR_COUNTER_TABLE.
var loadConfig = config.Load

type sessionKey struct{}

// session is built once per invocation by the root command.
type session struct {
	config *config.Configuration
	logger *zap.Logger
	app    App
}

func sessionFrom(cmd *cobra.Command) *session {
	s, _ := cmd.Context().Value(sessionKey{}).(*session)
	return s
}

// requireApp wires the services on first use; config needs none of it.
func requireApp(cmd *cobra.Command) (App, error) {
	s := sessionFrom(cmd)
	if s == nil {
		return nil, fmt.Errorf("command context is not initialized")
	}
	if s.app != nil {
		return s.app, nil
	}
	app, err := newApp(cmd.Context(), s.config, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	s.app = app
	return app, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	var debug bool

	cmd := &cobra.Command{
		Use:   "visitorctl",
		Short: "Operate the visitor counter and certificate renewal services",
		Long: `visitorctl talks to the same DynamoDB table, EC2 instance and SNS topic as the
deployed functions. Configuration comes from the environment, optionally
layered over a YAML file given with --config.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return err
			}
			if debug {
				cfg.Logging.Level = "DEBUG"
				cfg.Logging.Development = true
			}

			logger, err := logging.New(logging.Options{
				Level:       cfg.Logging.Level,
				Development: cfg.Logging.Development,
			})
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, sessionKey{}, &session{config: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if s := sessionFrom(cmd); s != nil {
				if s.app != nil {
					s.app.Close()
				}
				_ = s.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file layered under the environment")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	cmd.AddCommand(
		newServeCmd(),
		newCountCmd(),
		newIncrementCmd(),
		newInitCounterCmd(),
		newAnalyticsCmd(),
		newRenewCmd(),
		newRenewalStatusCmd(),
		newHealthCmd(),
		newConfigCmd(),
	)

	return cmd
}
