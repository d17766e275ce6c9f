package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/vyrodovalexey/alipaykernel/internal/client"
	"github.com/vyrodovalexey/alipaykernel/internal/config"
	"github.com/vyrodovalexey/alipaykernel/internal/observability"
)

// application holds the components built from the configuration.
type application struct {
	config        *config.Config
	logger        observability.Logger
	tracer        *observability.Tracer
	metrics       *observability.Metrics
	client        *client.Client
	metricsServer *http.Server
}

// initApplication loads the configuration and builds the client with its
// logger, tracer and metrics.
func initApplication(flags *cliFlags, mutate ...func(*config.Config)) (*application, error) {
	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	for _, m := range mutate {
		m(cfg)
	}

	logger, err := initLogger(cfg, flags)
	if err != nil {
		return nil, err
	}

	logger.Info("starting alipaykernel",
		observability.String("version", version),
		observability.String("config", flags.configPath),
	)

	tracer, err := observability.NewTracer(cfg.Tracing.TracerConfig())
	if err != nil {
		syncLogger(logger)
		return nil, err
	}

	metrics := observability.NewMetrics(observability.DefaultNamespace, observability.WithRuntimeMetrics())
	metrics.SetBuildInfo(version, gitCommit, buildTime)

	c, err := client.New(cfg, client.Options{
		Logger:  logger,
		Metrics: metrics,
		Tracer:  tracer,
	})
	if err != nil {
		_ = tracer.Shutdown(context.Background())
		syncLogger(logger)
		return nil, err
	}

	logger.Info("configuration loaded",
		observability.String("app_id", cfg.AppID),
		observability.String("endpoint", cfg.Endpoint()),
		observability.String("sign_type", cfg.SignType),
		observability.Bool("cert_mode", cfg.CertMode()),
	)

	return &application{
		config:  cfg,
		logger:  logger,
		tracer:  tracer,
		metrics: metrics,
		client:  c,
	}, nil
}

// initLogger builds the logger from the configuration. Flags override
// level and format. Logs go to stderr unless configured otherwise so
// that results on stdout stay machine readable.
func initLogger(cfg *config.Config, flags *cliFlags) (observability.Logger, error) {
	logCfg := cfg.Logging.LogConfig()
	if cfg.Logging == nil || cfg.Logging.Output == "" {
		logCfg.Output = "stderr"
	}
	if flags.logLevel != "" {
		logCfg.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		logCfg.Format = flags.logFormat
	}

	logger, err := observability.NewLogger(logCfg)
	if err != nil {
		return nil, err
	}
	observability.SetGlobalLogger(logger)
	return logger, nil
}

// close releases the application components in reverse order.
func (app *application) close(ctx context.Context) error {
	var errs []error

	if app.metricsServer != nil {
		app.logger.Info("stopping metrics server")
		if err := app.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := app.client.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := app.tracer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	if err != nil {
		app.logger.Error("shutdown completed with errors", observability.Error(err))
	}
	syncLogger(app.logger)
	return err
}
