package imagecurate

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// pendingAsset is an asset travelling from the worker pool to the committer.
type pendingAsset struct {
	asset *ImageAsset
	done  chan struct{}
	err   error // set when assessment was cancelled
}

// Clean classifies every candidate image in srcDir and copies it into the
// cleaned or rejected/<reason> partition of sink.
//
// Probing and fingerprinting run on a bounded worker pool. Duplicate lookups,
// placement and stats updates happen on the calling goroutine strictly in
// lexicographic name order, so repeated runs over the same input produce the
// same classifications.
//
// Per-asset failures become dispositions; only configuration errors are
// returned. On cancellation the partial report is returned together with
// ctx.Err(); every asset counted in it has been fully placed.
func (cfg *Config) Clean(ctx context.Context, srcDir string, sink Sink) (*Report, error) {
	cfg.defaults()

	if sink == nil {
		return nil, fmt.Errorf("%w: sink is required", ErrConfig)
	}
	if err := cfg.Rules.Validate(); err != nil {
		return nil, err
	}
	names, err := listImages(cfg.Fs, srcDir)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:     uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    srcDir,
		Config:    cfg.reportConfig(),
	}
	classifier := cfg.NewClassifier(nil)
	router := NewRouter(cfg.Fs, sink)
	stats := NewStatsAggregator()

	cfg.Logger.Info("imagecurate: clean started",
		"run", report.RunID, "source", srcDir, "images", len(names), "workers", cfg.Workers)

	items := make([]*pendingAsset, len(names))
	for i, name := range names {
		items[i] = &pendingAsset{asset: newAsset(srcDir, name), done: make(chan struct{})}
	}

	var g errgroup.Group
	jobs := make(chan *pendingAsset)
	g.Go(func() error {
		defer close(jobs)
		for _, it := range items {
			select {
			case <-ctx.Done():
				return nil
			case jobs <- it:
			}
		}
		return nil
	})
	for range cfg.Workers {
		g.Go(func() error {
			for it := range jobs {
				cfg.assessOne(ctx, classifier, it)
			}
			return nil
		})
	}

	for _, it := range items {
		select {
		case <-ctx.Done():
		case <-it.done:
		}
		if ctx.Err() != nil || it.err != nil {
			report.Cancelled = true
			break
		}
		report.Outcomes = append(report.Outcomes, cfg.commit(ctx, classifier, router, stats, it.asset))
	}
	_ = g.Wait()

	report.Stats = stats.Snapshot()
	cfg.Logger.Info("imagecurate: clean finished",
		"run", report.RunID,
		"total", report.Stats.Total,
		"passed", report.Stats.Passed,
		"rejected", report.Stats.RejectedTotal(),
		"write_failures", report.Stats.WriteFailures,
		"cancelled", report.Cancelled,
	)

	if report.Cancelled {
		return report, ctx.Err()
	}
	return report, nil
}

// assessOne runs the concurrent part of classification. Recovers from panics
// to protect the worker pool; a panicking asset is treated as corrupted.
func (cfg *Config) assessOne(ctx context.Context, c *Classifier, it *pendingAsset) {
	defer close(it.done)
	defer func() {
		if r := recover(); r != nil {
			cfg.Logger.Error("imagecurate: recovered panic", "stage", "assess", "path", it.asset.Path, "panic", r)
			if cfg.OnPanic != nil {
				cfg.OnPanic("assess", r)
			}
			it.asset.Reason = ReasonCorrupted
			it.asset.Fingerprint = ""
		}
	}()

	it.err = c.Assess(ctx, it.asset)
}

// commit decides, places and counts one asset. Placement is not interrupted
// by cancellation once the decision is made.
func (cfg *Config) commit(ctx context.Context, c *Classifier, router *Router, stats *StatsAggregator, asset *ImageAsset) Outcome {
	d := c.Decide(asset)

	out := Outcome{
		Name:        asset.Name,
		Status:      asset.Status,
		Reason:      d.Reason,
		DuplicateOf: d.DuplicateOf,
		Distance:    d.Distance,
		Fingerprint: d.Fingerprint,
	}
	if asset.HasID {
		id := asset.ID
		out.ID = &id
	}
	if d.Passed() {
		out.Provenance = asset.Provenance
	}

	loc, err := router.Materialize(context.WithoutCancel(ctx), asset, d)
	if err != nil {
		cfg.Logger.Warn("imagecurate: materialize failed", "name", asset.Name, "error", err.Error())
		out.WriteError = err.Error()
	} else {
		out.Location = loc.Key
	}

	stats.Record(out)
	cfg.Logger.Debug("imagecurate: asset committed", "name", asset.Name, "status", asset.StatusLabel(), "location", out.Location)
	if cfg.OnOutcome != nil {
		cfg.OnOutcome(out)
	}
	return out
}

func (cfg *Config) reportConfig() ReportConfig {
	return ReportConfig{
		Rules:               cfg.Rules,
		SimilarityThreshold: cfg.SimilarityThreshold,
		Granularity:         cfg.Granularity,
		IndexStrategy:       cfg.IndexStrategy,
	}
}

func newAsset(dir, name string) *ImageAsset {
	a := &ImageAsset{
		Name:   name,
		Path:   filepath.Join(dir, name),
		Status: StatusPending,
	}
	a.ID, a.HasID = ParseAssetID(name)
	return a
}

// listImages returns the candidate image names in dir, sorted.
func listImages(fs afero.Fs, dir string) ([]string, error) {
	info, err := fs.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: source %s: %v", ErrConfig, dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: source %s is not a directory", ErrConfig, dir)
	}

	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrConfig, dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !IsImageName(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
