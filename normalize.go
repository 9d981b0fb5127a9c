package imagecurate

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// CompressionEvent reports the outcome of normalizing one asset.
type CompressionEvent struct {
	Name      string
	Bytes     int
	Size      int
	Quality   int
	BudgetMet bool
	Err       error
}

// NormalizeFailure is a per-asset normalization error.
type NormalizeFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// NormalizeReport summarizes a normalize run.
type NormalizeReport struct {
	Source      string             `json:"source"`
	Options     CompressOptions    `json:"options"`
	Processed   int                `json:"processed"`
	Failed      int                `json:"failed"`
	BudgetUnmet int                `json:"budgetUnmet"`
	Marked      int                `json:"marked"` // records flagged processed in the record store
	TotalBytes  int64              `json:"totalBytes"`
	MinBytes    int                `json:"minBytes"`
	MaxBytes    int                `json:"maxBytes"`
	AvgBytes    float64            `json:"avgBytes"`
	Cancelled   bool               `json:"cancelled,omitempty"`
	Failures    []NormalizeFailure `json:"failures,omitempty"`
}

func (r *NormalizeReport) add(ev CompressionEvent, marked bool) {
	if ev.Err != nil {
		r.Failed++
		r.Failures = append(r.Failures, NormalizeFailure{Name: ev.Name, Error: ev.Err.Error()})
		return
	}
	r.Processed++
	if !ev.BudgetMet {
		r.BudgetUnmet++
	}
	if marked {
		r.Marked++
	}
	r.TotalBytes += int64(ev.Bytes)
	if r.Processed == 1 || ev.Bytes < r.MinBytes {
		r.MinBytes = ev.Bytes
	}
	if ev.Bytes > r.MaxBytes {
		r.MaxBytes = ev.Bytes
	}
	r.AvgBytes = float64(r.TotalBytes) / float64(r.Processed)
}

// NormalizedName returns the output name for a source image: its stem with a
// .jpg extension.
func NormalizedName(name string) string {
	base := path.Base(filepath.ToSlash(name))
	return strings.TrimSuffix(base, path.Ext(base)) + ".jpg"
}

// Normalize recompresses every candidate image in srcDir to a square JPEG
// within cfg.Compress and writes it to sink under its normalized name.
// Assets with an id in their name are marked processed in cfg.Records after
// a successful write. Failures are per asset; only configuration errors and
// cancellation are returned.
func (cfg *Config) Normalize(ctx context.Context, srcDir string, sink Sink) (*NormalizeReport, error) {
	cfg.defaults()

	if sink == nil {
		return nil, fmt.Errorf("%w: sink is required", ErrConfig)
	}
	names, err := listImages(cfg.Fs, srcDir)
	if err != nil {
		return nil, err
	}

	report := &NormalizeReport{Source: srcDir, Options: cfg.Compress}
	var mu sync.Mutex

	cfg.Logger.Info("imagecurate: normalize started",
		"source", srcDir, "images", len(names), "max_dim", cfg.Compress.MaxDim, "max_bytes", cfg.Compress.MaxBytes)

	// Names are sorted, so the first source with a given stem owns the output.
	owners := make(map[string]string, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, name := range names {
		if gctx.Err() != nil {
			break
		}
		out := NormalizedName(name)
		if owner, taken := owners[out]; taken {
			ev := CompressionEvent{Name: name, Err: fmt.Errorf("%w: %s already written from %s", ErrWriteFailure, out, owner)}
			cfg.Logger.Warn("imagecurate: output name collision", "name", name, "output", out, "owner", owner)
			mu.Lock()
			report.add(ev, false)
			mu.Unlock()
			if cfg.OnCompressed != nil {
				cfg.OnCompressed(ev)
			}
			continue
		}
		owners[out] = name
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			ev, marked := cfg.normalizeOne(gctx, srcDir, name, sink)
			if ev.Err != nil && gctx.Err() != nil {
				// Not attempted to completion; neither processed nor failed.
				return nil
			}
			mu.Lock()
			report.add(ev, marked)
			mu.Unlock()
			if cfg.OnCompressed != nil {
				cfg.OnCompressed(ev)
			}
			return nil
		})
	}
	_ = g.Wait()

	cfg.Logger.Info("imagecurate: normalize finished",
		"processed", report.Processed,
		"failed", report.Failed,
		"budget_unmet", report.BudgetUnmet,
		"avg_bytes", report.AvgBytes,
	)

	if err := ctx.Err(); err != nil {
		report.Cancelled = true
		return report, err
	}
	return report, nil
}

func (cfg *Config) normalizeOne(ctx context.Context, srcDir, name string, sink Sink) (ev CompressionEvent, marked bool) {
	ev.Name = name
	defer func() {
		if r := recover(); r != nil {
			cfg.Logger.Error("imagecurate: recovered panic", "stage", "normalize", "name", name, "panic", r)
			if cfg.OnPanic != nil {
				cfg.OnPanic("normalize", r)
			}
			ev.Err = fmt.Errorf("panic: %v", r)
			marked = false
		}
	}()

	f, err := cfg.Fs.Open(filepath.Join(srcDir, name))
	if err != nil {
		ev.Err = fmt.Errorf("%w: %v", ErrUnreadable, err)
		return ev, false
	}
	res, err := CompressReader(f, cfg.Compress)
	f.Close()
	if err != nil {
		ev.Err = err
		cfg.Logger.Warn("imagecurate: compress failed", "name", name, "error", err.Error())
		return ev, false
	}

	ev.Bytes = len(res.Data)
	ev.Size = res.Size
	ev.Quality = res.Quality
	ev.BudgetMet = res.BudgetMet
	if !res.BudgetMet {
		cfg.Logger.Warn("imagecurate: output exceeds byte budget",
			"name", name, "bytes", ev.Bytes, "budget", cfg.Compress.MaxBytes,
			"size", res.Size, "quality", res.Quality, "error", ErrBudgetUnmet)
	}

	if _, err := sink.Put(ctx, NormalizedName(name), bytes.NewReader(res.Data), int64(len(res.Data))); err != nil {
		ev.Err = fmt.Errorf("%w: %v", ErrWriteFailure, err)
		cfg.Logger.Warn("imagecurate: write failed", "name", name, "error", err.Error())
		return ev, false
	}

	if cfg.Records == nil {
		return ev, false
	}
	id, ok := ParseAssetID(name)
	if !ok {
		return ev, false
	}
	if err := cfg.Records.MarkProcessed(ctx, id); err != nil {
		cfg.Logger.Warn("imagecurate: mark processed failed", "name", name, "id", id, "error", err.Error())
		return ev, false
	}
	return ev, true
}
