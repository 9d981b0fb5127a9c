// Package cli provides the command-line interface for imagecurate.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/anatolykoptev/go-imagecurate/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	configPath  string
	verbose     bool
	srcDir      string
	outDir      string
	workers     int
	dbURL       string
	redisAddr   string
	metricsFile string
	s3Endpoint  string
	s3Bucket    string
	s3Prefix    string

	// Loaded per invocation
	cfg      config.Config
	logger   *slog.Logger
	closeLog = func() error { return nil }
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "imagecurate",
	Short: "Curate and normalize scraped image collections",
	Long: `imagecurate sorts a directory of scraped images into a cleaned partition
and per-reason rejected partitions, removing undersized, badly shaped,
corrupt and near-duplicate images, then recompresses the survivors into
small square JPEGs.

Settings come from an optional YAML file (--config), IMAGECURATE_* environment
variables (a .env file is loaded when present) and command flags, in
increasing order of precedence.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		applyFlags(cmd)

		level := cfg.Level()
		if verbose {
			level = slog.LevelDebug
		}
		logger, closeLog = config.SetupLogger(cfg.LogFile, level)
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if err := closeLog(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
		}
	},
}

// Execute runs the root command with ctx, which cancels in-flight stages.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "YAML config file")
	pf.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	pf.StringVar(&srcDir, "src", "", "source image directory")
	pf.StringVarP(&outDir, "out", "o", "", "output directory for partitions and report")
	pf.IntVarP(&workers, "workers", "w", 0, "worker pool size (0 = CPU count, max 8)")
	pf.StringVar(&dbURL, "db-url", "", "PostgreSQL URL of the image records table")
	pf.StringVar(&redisAddr, "redis-addr", "", "Redis address for the fingerprint cache")
	pf.StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
	pf.StringVar(&s3Endpoint, "s3-endpoint", "", "S3-compatible endpoint (host:port)")
	pf.StringVar(&s3Bucket, "s3-bucket", "", "S3 bucket for outputs")
	pf.StringVar(&s3Prefix, "s3-prefix", "", "key prefix inside the S3 bucket")

	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(normalizeCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(countsCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(versionCmd)
}

// applyFlags overrides loaded settings with flags set on the command line.
func applyFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("src") {
		cfg.Source = srcDir
	}
	if flags.Changed("out") {
		cfg.Output = outDir
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if flags.Changed("db-url") {
		cfg.DatabaseURL = dbURL
	}
	if flags.Changed("redis-addr") {
		cfg.Redis.Addr = redisAddr
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = metricsFile
	}
	if flags.Changed("s3-endpoint") {
		cfg.S3.Endpoint = s3Endpoint
	}
	if flags.Changed("s3-bucket") {
		cfg.S3.Bucket = s3Bucket
	}
	if flags.Changed("s3-prefix") {
		cfg.S3.Prefix = s3Prefix
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "imagecurate %s\n", Version)
	},
}
