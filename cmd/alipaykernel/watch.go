package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/alipaykernel/internal/certstate"
	"github.com/vyrodovalexey/alipaykernel/internal/config"
	"github.com/vyrodovalexey/alipaykernel/internal/observability"
)

type watchFlags struct {
	metricsAddr string
	metricsPath string
}

func newWatchCommand(root *cliFlags) *cobra.Command {
	flags := &watchFlags{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the certificate files and serve metrics",
		Long: `Load the configured certificates, reload them whenever the files
change and serve Prometheus metrics and the current certificate SNs
until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), root, flags, nil)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.metricsAddr, "metrics-addr", ":9090", "Address of the metrics server")
	f.StringVar(&flags.metricsPath, "metrics-path", "/metrics", "Path of the metrics endpoint")

	return cmd
}

// runWatch runs until ctx ends or a shutdown signal arrives. ready, when
// set, receives the application once it is serving.
func runWatch(ctx context.Context, root *cliFlags, flags *watchFlags, ready chan<- *application) error {
	app, err := initApplication(root, func(cfg *config.Config) {
		cfg.WatchCerts = true
	})
	if err != nil {
		return err
	}

	if err := app.client.Start(ctx); err != nil {
		_ = app.close(context.Background())
		return err
	}

	app.metricsServer = createMetricsServer(flags.metricsAddr, flags.metricsPath, app, app.logger)
	go runMetricsServer(app.metricsServer, app.logger)

	if ready != nil {
		ready <- app
	}
	return waitForShutdown(ctx, app)
}

// createMetricsServer creates the metrics HTTP server.
func createMetricsServer(addr, path string, app *application, logger observability.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, app.metrics.Handler())
	mux.HandleFunc("/certs", certsHandler(app.client.State()))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	logger.Info("starting metrics server",
		observability.String("address", addr),
		observability.String("metrics_path", path),
	)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// runMetricsServer runs the metrics HTTP server.
func runMetricsServer(server *http.Server, logger observability.Logger) {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server error", observability.Error(err))
	}
}

// certsHandler reports the cached certificate SNs.
func certsHandler(state *certstate.State) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		id := state.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			certstate.KindApp:     id.AppCertSN,
			certstate.KindGateway: id.GatewayCertSN,
			certstate.KindRoot:    id.RootCertSN,
		})
	}
}

// waitForShutdown blocks until a shutdown signal or the end of ctx and
// then releases the application.
func waitForShutdown(ctx context.Context, app *application) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		app.logger.Info("received shutdown signal", observability.String("signal", sig.String()))
	case <-ctx.Done():
		app.logger.Info("context done, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	app.logger.Info("stopping alipaykernel")
	return app.close(shutdownCtx)
}
