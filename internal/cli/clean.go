package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/anatolykoptev/go-imagecurate"
	"github.com/spf13/cobra"
)

var cleanReset bool

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Sort images into cleaned and rejected partitions",
	Long: `Probe, filter and deduplicate every image in the source directory.

Passed images are copied to cleaned/, rejected ones to rejected/<reason>/.
A JSON report with per-image outcomes and the run statistics is written
next to the partitions.

Examples:
  imagecurate clean --src downloads --out curated
  imagecurate clean --src downloads --out curated --reset
  imagecurate clean --src downloads --s3-endpoint localhost:9000 --s3-bucket images`,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().BoolVar(&cleanReset, "reset", false, "remove existing partitions first")
}

func runClean(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sink, err := partitionSink(ctx)
	if err != nil {
		return err
	}
	d, err := setup(ctx, false)
	if err != nil {
		return err
	}
	defer d.close()
	defer d.flushMetrics()

	report, err := cleanInto(ctx, d, sink, cleanReset)
	if report != nil {
		printCleanSummary(cmd.OutOrStdout(), report)
	}
	return err
}

// cleanInto runs the clean stage into sink and writes the report, also when
// the run was cancelled part way.
func cleanInto(ctx context.Context, d *deps, sink imagecurate.Sink, reset bool) (*imagecurate.Report, error) {
	if reset {
		if err := resetPartitions(ctx, sink); err != nil {
			return nil, err
		}
	}

	report, runErr := d.lib.Clean(ctx, cfg.Source, sink)
	if report == nil {
		return nil, runErr
	}

	reportPath := cfg.ReportPath()
	if err := os.MkdirAll(filepath.Dir(reportPath), 0o755); err != nil {
		return report, fmt.Errorf("create report directory: %w", err)
	}
	if err := imagecurate.WriteReport(nil, reportPath, report); err != nil {
		return report, err
	}
	logger.Info("imagecurate: report written", "path", reportPath)
	return report, runErr
}

func printCleanSummary(w io.Writer, r *imagecurate.Report) {
	s := r.Stats
	fmt.Fprintf(w, "Run %s: %d images, %d passed (%.1f%%), %d rejected\n",
		r.RunID, s.Total, s.Passed, s.PassRate()*100, s.RejectedTotal())
	for _, reason := range imagecurate.AllReasons {
		if n := s.Rejected[reason]; n > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", reason, n)
		}
	}
	if s.WriteFailures > 0 {
		fmt.Fprintf(w, "  write failures  %d\n", s.WriteFailures)
	}
	if r.Cancelled {
		fmt.Fprintln(w, "Run cancelled before all images were processed.")
	}
}
