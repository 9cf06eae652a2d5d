// Package cmd provides the CLI commands of the ESS billing exporter.
package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/banzaicloud/ess-billing-exporter/billing"
	"github.com/banzaicloud/ess-billing-exporter/config"
	"github.com/banzaicloud/ess-billing-exporter/poller"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "ess-billing-exporter",
	Short: "Ship Elastic Cloud billing data to a datastore",
	Long: `ess-billing-exporter polls the Elastic Cloud billing API for organization,
deployment, itemized and chart cost data, flattens it into documents and
writes them to Elasticsearch, PostgreSQL, S3 or stdout.

Examples:
  ess-billing-exporter run --config config.yaml
  BILLING_API_KEY=... ess-billing-exporter once --dry-run`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level, overrides log_level of the config")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(onceCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the configuration and sets up logging from it.
func loadConfig(overrides ...func(*config.Config)) (*config.Config, error) {
	if logLevel != "" {
		overrides = append(overrides, func(c *config.Config) { c.LogLevel = logLevel })
	}
	cfg, err := config.Load(cfgFile, overrides...)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg)
	return cfg, nil
}

func setupLogging(cfg *config.Config) {
	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
	parsedLevel, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithError(err).Warnf("Couldn't parse log level, using default: %s", log.GetLevel())
		return
	}
	log.SetLevel(parsedLevel)
	log.Debugf("Set log level to %s", parsedLevel)
}

func newClient(cfg *config.Config) *billing.Client {
	return billing.NewClient(billing.Config{
		BaseURL: cfg.Billing.URL,
		APIKey:  cfg.Billing.APIKey,
		Window: billing.Window{
			FromDays: cfg.Billing.LookbackFromDays,
			ToDays:   cfg.Billing.LookbackToDays,
		},
		RequestsPerSecond: cfg.Billing.RequestsPerSecond,
		Burst:             cfg.Billing.Burst,
		Timeout:           cfg.Billing.Timeout,
	})
}

func pollerConfig(cfg *config.Config) poller.Config {
	return poller.Config{
		OrgID: cfg.Billing.OrgID,
		Tick:  cfg.Poll.Tick,
		Intervals: poller.Intervals{
			Organization: cfg.Poll.Organization,
			Deployments:  cfg.Poll.Deployments,
			Itemized:     cfg.Poll.Itemized,
			Charts:       cfg.Poll.Charts,
		},
		Indices: poller.Indices{
			Organization: cfg.Indices.Organization,
			Deployments:  cfg.Indices.Deployments,
			Itemized:     cfg.Indices.Itemized,
			Charts:       cfg.Indices.Charts,
		},
	}
}
