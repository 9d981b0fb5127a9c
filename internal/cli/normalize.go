package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/anatolykoptev/go-imagecurate"
	"github.com/spf13/cobra"
)

var (
	normalizeMaxDim   int
	normalizeMaxBytes int
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Recompress cleaned images into small square JPEGs",
	Long: `Center-crop every image in the cleaned partition to a square, resize it to
at most --max-dim pixels and search JPEG quality and size until it fits in
--max-bytes. Images whose name starts with a record id are marked processed
in the records table when --db-url is set.

Examples:
  imagecurate normalize --out curated
  imagecurate normalize --src curated/cleaned --max-dim 400 --max-bytes 40000
  imagecurate normalize --out curated --db-url postgres://localhost/images`,
	RunE: runNormalize,
}

func init() {
	normalizeCmd.Flags().IntVar(&normalizeMaxDim, "max-dim", 0, "maximum output side in pixels (default 500)")
	normalizeCmd.Flags().IntVar(&normalizeMaxBytes, "max-bytes", 0, "output size budget in bytes (default 51200)")
	runCmd.Flags().IntVar(&normalizeMaxDim, "max-dim", 0, "maximum output side in pixels (default 500)")
	runCmd.Flags().IntVar(&normalizeMaxBytes, "max-bytes", 0, "output size budget in bytes (default 51200)")
}

func runNormalize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	applyCompressFlags(cmd)

	src := cfg.CleanedDir()
	if cmd.Flags().Changed("src") {
		src = cfg.Source
	}

	d, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer d.close()
	defer d.flushMetrics()

	report, err := normalizeFrom(ctx, d, src)
	if report != nil {
		printNormalizeSummary(cmd.OutOrStdout(), report)
	}
	return err
}

func normalizeFrom(ctx context.Context, d *deps, src string) (*imagecurate.NormalizeReport, error) {
	sink, err := normalizedSink(ctx)
	if err != nil {
		return nil, err
	}
	return d.lib.Normalize(ctx, src, sink)
}

func applyCompressFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("max-dim") {
		cfg.Compress.MaxDim = normalizeMaxDim
	}
	if cmd.Flags().Changed("max-bytes") {
		cfg.Compress.MaxBytes = normalizeMaxBytes
	}
}

func printNormalizeSummary(w io.Writer, r *imagecurate.NormalizeReport) {
	fmt.Fprintf(w, "Normalized %d images (%d failed, %d over budget, %d marked processed)\n",
		r.Processed, r.Failed, r.BudgetUnmet, r.Marked)
	if r.Processed > 0 {
		fmt.Fprintf(w, "  size: min %d, max %d, avg %.0f bytes\n", r.MinBytes, r.MaxBytes, r.AvgBytes)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  failed %s: %s\n", f.Name, f.Error)
	}
	if r.Cancelled {
		fmt.Fprintln(w, "Normalize cancelled before all images were processed.")
	}
}
