package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/banzaicloud/ess-billing-exporter/config"
	"github.com/banzaicloud/ess-billing-exporter/exporter"
	"github.com/banzaicloud/ess-billing-exporter/poller"
	"github.com/banzaicloud/ess-billing-exporter/sink"
)

var _ poller.Recorder = (*exporter.Exporter)(nil)

var (
	listenAddress string
	metricsPath   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the billing API and write documents until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(func(c *config.Config) {
			if listenAddress != "" {
				c.ListenAddress = listenAddress
			}
			if metricsPath != "" {
				c.MetricsPath = metricsPath
			}
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Infof("Starting ESS billing exporter. [log-level=%s, sink=%s, tick=%s]", log.GetLevel(), cfg.Sink.Type, cfg.Poll.Tick)

		out, err := sink.New(ctx, cfg.Sink)
		if err != nil {
			return err
		}
		defer out.Close()

		exp := exporter.NewExporter()
		prometheus.MustRegister(exp)

		srv := &http.Server{
			Addr:              cfg.ListenAddress,
			Handler:           exporter.NewServeMux(cfg.MetricsPath, prometheus.DefaultGatherer),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Infof("Starting metric http endpoint [address=%s, path=%s]", cfg.ListenAddress, cfg.MetricsPath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("metric http endpoint stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		p := poller.New(pollerConfig(cfg), newClient(cfg), out, poller.WithRecorder(exp))
		err = p.Run(ctx)
		if errors.Is(err, context.Canceled) {
			log.Info("Shutting down")
			return nil
		}
		logBulkFailures(err)
		return err
	},
}

func init() {
	runCmd.Flags().StringVar(&listenAddress, "listen-address", "", "The address to listen on for HTTP requests, overrides listen_address of the config.")
	runCmd.Flags().StringVar(&metricsPath, "metrics-path", "", "path to metrics endpoint, overrides metrics_path of the config")
}

// logBulkFailures logs every document a sink rejected.
func logBulkFailures(err error) {
	var be *sink.BulkError
	if !errors.As(err, &be) {
		return
	}
	for _, f := range be.Failures {
		log.Errorf("document not written [position=%d, index=%s, status=%d, reason=%s]", f.Position, f.Index, f.Status, f.Reason)
	}
}
