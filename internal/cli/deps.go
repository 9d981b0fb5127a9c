package cli

import (
	"context"
	"fmt"
	"path"

	"github.com/anatolykoptev/go-imagecurate"
	"github.com/anatolykoptev/go-imagecurate/metrics"
	"github.com/anatolykoptev/go-imagecurate/pgrecords"
	"github.com/anatolykoptev/go-imagecurate/rediscache"
	"github.com/anatolykoptev/go-imagecurate/s3sink"
	"github.com/prometheus/client_golang/prometheus"
)

// deps bundles the collaborators built from cfg for one command.
type deps struct {
	lib      imagecurate.Config
	records  *pgrecords.Store
	cache    *rediscache.Cache
	registry *prometheus.Registry
}

// setup wires the library config with the optional record store, cache and
// metrics. An unreachable cache degrades to no cache; an unreachable record
// store is an error.
func setup(ctx context.Context, needRecords bool) (*deps, error) {
	d := &deps{lib: cfg.Library(logger)}

	if cfg.Redis.Addr != "" {
		c, err := rediscache.New(ctx, rediscache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
			Logger:   logger,
		})
		if err != nil {
			logger.Warn("imagecurate: redis unavailable, fingerprint cache disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			d.cache = c
			d.lib.Cache = c
		}
	}

	if needRecords && cfg.DatabaseURL != "" {
		store, err := pgrecords.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			d.close()
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			d.close()
			return nil, err
		}
		d.records = store
		d.lib.Records = store
	}

	if cfg.MetricsFile != "" {
		d.registry = prometheus.NewRegistry()
		metrics.New(d.registry).Attach(&d.lib)
	}
	return d, nil
}

func (d *deps) close() {
	if d.cache != nil {
		_ = d.cache.Close()
	}
	if d.records != nil {
		d.records.Close()
	}
}

// flushMetrics writes the metrics textfile when one is configured.
func (d *deps) flushMetrics() {
	if d.registry == nil {
		return
	}
	if err := metrics.WriteTextfile(cfg.MetricsFile, d.registry); err != nil {
		logger.Warn("imagecurate: write metrics failed", "file", cfg.MetricsFile, "error", err)
	}
}

// partitionSink returns the sink for the clean stage.
func partitionSink(ctx context.Context) (imagecurate.Sink, error) {
	if cfg.UseS3() {
		return s3sink.New(ctx, cfg.S3)
	}
	return imagecurate.NewFsSink(nil, cfg.Output)
}

// normalizedSink returns the sink for the normalize stage. On S3 it writes
// below <prefix>/normalized.
func normalizedSink(ctx context.Context) (imagecurate.Sink, error) {
	if cfg.UseS3() {
		s3cfg := cfg.S3
		s3cfg.Prefix = path.Join(s3cfg.Prefix, "normalized")
		return s3sink.New(ctx, s3cfg)
	}
	return imagecurate.NewFsSink(nil, cfg.NormalizedDir())
}

// resetPartitions clears the cleaned and rejected partitions before a run.
func resetPartitions(ctx context.Context, sink imagecurate.Sink) error {
	r, ok := sink.(imagecurate.Resetter)
	if !ok {
		return fmt.Errorf("%w: sink cannot be reset", imagecurate.ErrConfig)
	}
	return r.Reset(ctx, imagecurate.PartitionCleaned, imagecurate.PartitionRejected)
}
