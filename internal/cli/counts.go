package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/anatolykoptev/go-imagecurate"
	"github.com/anatolykoptev/go-imagecurate/pgrecords"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var countsCmd = &cobra.Command{
	Use:   "counts",
	Short: "Show record counts from the images table",
	Long: `Print how many image records exist and how many are downloaded and
processed, the records per keyword, and the size of the cleaned images
against their normalized copies.

Example:
  imagecurate counts --db-url postgres://localhost/images`,
	RunE: runCounts,
}

func runCounts(cmd *cobra.Command, args []string) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("%w: database url is required (--db-url or IMAGECURATE_DATABASE_URL)", imagecurate.ErrConfig)
	}
	ctx := cmd.Context()

	store, err := pgrecords.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	c, err := store.Counts(ctx)
	if err != nil {
		return err
	}
	keywords, err := store.KeywordCounts(ctx)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "total: %d\ndownloaded: %d\nprocessed: %d\n", c.Total, c.Downloaded, c.Processed)
	printKeywordCounts(w, keywords)
	printFolderSizes(w, afero.NewOsFs(), cfg.CleanedDir(), cfg.NormalizedDir())
	return nil
}

func printKeywordCounts(w io.Writer, keywords []pgrecords.KeywordCount) {
	if len(keywords) == 0 {
		return
	}
	fmt.Fprintln(w, "keywords:")
	for _, kc := range keywords {
		name := kc.Keyword
		if name == "" {
			name = "(none)"
		}
		fmt.Fprintf(w, "  %-30s %d\n", name, kc.Count)
	}
}

type folderStats struct {
	Count int
	Bytes int64
}

// folderSize sums the image files directly inside dir. A missing dir is empty.
func folderSize(fs afero.Fs, dir string) folderStats {
	var st folderStats
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return st
	}
	for _, e := range entries {
		if e.IsDir() || !imagecurate.IsImageName(e.Name()) {
			continue
		}
		st.Count++
		st.Bytes += e.Size()
	}
	return st
}

func printFolderSizes(w io.Writer, fs afero.Fs, cleanedDir, normalizedDir string) {
	cleaned := folderSize(fs, cleanedDir)
	normalized := folderSize(fs, normalizedDir)
	fmt.Fprintf(w, "cleaned: %d files, %d bytes (%s)\n", cleaned.Count, cleaned.Bytes, filepath.Clean(cleanedDir))
	fmt.Fprintf(w, "normalized: %d files, %d bytes (%s)\n", normalized.Count, normalized.Bytes, filepath.Clean(normalizedDir))
	if cleaned.Bytes > 0 && normalized.Bytes > 0 {
		fmt.Fprintf(w, "compression ratio: %.1f%%\n", 100*float64(normalized.Bytes)/float64(cleaned.Bytes))
	}
}
