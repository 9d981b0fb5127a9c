package cli

import (
	"fmt"

	"github.com/anatolykoptev/go-imagecurate"
	"github.com/anatolykoptev/go-imagecurate/pgrecords"
	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register <src>...",
	Short: "Add image source URLs to the images table",
	Long: `Insert one row per source URL and print the assigned ids. Downloaded
files are expected to be named after their id (e.g. 42.jpg) so that
normalize can mark them processed. A URL that is already registered keeps
its id.

Example:
  imagecurate register --keyword "persian cat" --downloaded https://example.com/cat.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRegister,
}

var (
	registerKeyword    string
	registerAlt        string
	registerDownloaded bool
)

func init() {
	registerCmd.Flags().StringVarP(&registerKeyword, "keyword", "k", "", "search keyword the images were found with")
	registerCmd.Flags().StringVar(&registerAlt, "alt", "", "alt text stored with every row")
	registerCmd.Flags().BoolVar(&registerDownloaded, "downloaded", false, "also mark the rows as downloaded")
}

func runRegister(cmd *cobra.Command, args []string) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("%w: database url is required (--db-url or IMAGECURATE_DATABASE_URL)", imagecurate.ErrConfig)
	}
	ctx := cmd.Context()

	store, err := pgrecords.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	for _, src := range args {
		id, err := store.Insert(ctx, registerKeyword, src, registerAlt)
		if err != nil {
			return err
		}
		if registerDownloaded {
			if err := store.MarkDownloaded(ctx, id); err != nil {
				return err
			}
		}
		logger.Debug("imagecurate: registered image", "id", id, "src", src, "keyword", registerKeyword)
		fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", id, src)
	}
	return nil
}
