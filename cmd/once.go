package cmd

import (
	"errors"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/banzaicloud/ess-billing-exporter/config"
	"github.com/banzaicloud/ess-billing-exporter/poller"
	"github.com/banzaicloud/ess-billing-exporter/sink"
)

var dryRun bool

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single poll cycle with every pull due",
	Long: `once runs every billing pull one time and writes the batch to the
configured sink. With --dry-run the documents are printed to stdout as
NDJSON instead.

A summary of the cycle is printed to stderr.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var overrides []func(*config.Config)
		if dryRun {
			overrides = append(overrides, func(c *config.Config) { c.Sink.Type = config.SinkStdout })
		}
		cfg, err := loadConfig(overrides...)
		if err != nil {
			return err
		}

		out, err := sink.New(cmd.Context(), cfg.Sink)
		if err != nil {
			return err
		}
		defer out.Close()

		p := poller.New(pollerConfig(cfg), newClient(cfg), out)
		res, err := p.Cycle(cmd.Context())
		if res != nil {
			renderSummary(os.Stderr, res)
		}
		if err != nil {
			logBulkFailures(err)
			return err
		}
		if res.FetchErrors > 0 && res.Total() == 0 {
			return errors.New("no billing data could be fetched")
		}
		log.Infof("Cycle complete [cycle=%s, documents=%d]", res.CycleID, res.Total())
		return nil
	},
}

func init() {
	onceCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print documents as NDJSON to stdout instead of writing to the sink")
}
