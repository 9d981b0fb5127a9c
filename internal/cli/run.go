package cli

import (
	"github.com/anatolykoptev/go-imagecurate"
	"github.com/spf13/cobra"
)

var runReset bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Clean, then normalize the cleaned partition",
	Long: `Run both stages. Partitions are always written to the local --out
directory so the normalize stage can read the cleaned images; normalized
output goes to S3 when an S3 bucket is configured.

Examples:
  imagecurate run --src downloads --out curated --reset
  imagecurate run --config imagecurate.yaml --metrics-file /var/lib/node_exporter/imagecurate.prom`,
	RunE: runAll,
}

func init() {
	runCmd.Flags().BoolVar(&runReset, "reset", false, "remove existing partitions first")
}

func runAll(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	applyCompressFlags(cmd)

	sink, err := imagecurate.NewFsSink(nil, cfg.Output)
	if err != nil {
		return err
	}
	d, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer d.close()
	defer d.flushMetrics()

	report, err := cleanInto(ctx, d, sink, runReset)
	if report != nil {
		printCleanSummary(cmd.OutOrStdout(), report)
	}
	if err != nil {
		return err
	}

	nreport, err := normalizeFrom(ctx, d, cfg.CleanedDir())
	if nreport != nil {
		printNormalizeSummary(cmd.OutOrStdout(), nreport)
	}
	return err
}
