package imagecurate

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/spf13/afero"
)

const (
	// DefaultSimilarityThreshold is the maximum Hamming distance at which two
	// fingerprints are treated as near-duplicates.
	DefaultSimilarityThreshold = 5

	// ExactMatch as SimilarityThreshold treats only identical fingerprints as
	// duplicates. Zero selects the default.
	ExactMatch = -1

	// DefaultGranularity is the resolution parameter passed to the fingerprinter.
	DefaultGranularity = 16

	maxDefaultWorkers = 8
)

// Cache abstracts key-value caching (Redis, sync.Map, etc.)
type Cache interface {
	Key(prefix, value string) string
	Get(ctx context.Context, key string, dest any) bool
	Set(ctx context.Context, key string, value any)
}

// Config holds all dependencies injected by the consumer.
type Config struct {
	Fs            afero.Fs      // source filesystem (nil = OS filesystem)
	Fingerprinter Fingerprinter // nil = HashFingerprinter over Fs
	Cache         Cache         // optional: memoizes fingerprints
	Records       RecordStore   // optional: notified after normalization
	Logger        *slog.Logger  // nil = slog.Default()

	Rules               Rules         // zero value = DefaultRules()
	SimilarityThreshold int           // default: DefaultSimilarityThreshold (5); ExactMatch for distance 0
	Granularity         int           // default: DefaultGranularity (16)
	IndexStrategy       IndexStrategy // default: IndexBKTree

	// Workers bounds the probe/fingerprint and compression pools.
	// Default: runtime.NumCPU(), capped at 8.
	Workers int

	Compress CompressOptions // zero fields take defaults (500px, 50KB)

	// Optional callbacks for metrics/logging.
	OnOutcome    func(Outcome)
	OnCompressed func(CompressionEvent)
	OnPanic      func(tag string, r any)
}

// defaults fills zero-value fields with sensible defaults.
func (c *Config) defaults() {
	if c.Fs == nil {
		c.Fs = afero.NewOsFs()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	c.Rules = c.Rules.withDefaults()
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if c.Granularity <= 0 {
		c.Granularity = DefaultGranularity
	}
	if c.IndexStrategy == "" {
		c.IndexStrategy = IndexBKTree
	}
	if c.Workers <= 0 {
		c.Workers = min(runtime.NumCPU(), maxDefaultWorkers)
	}
	if c.Fingerprinter == nil {
		c.Fingerprinter = &HashFingerprinter{Fs: c.Fs}
	}
	c.Compress = c.Compress.withDefaults()
}
