package imagecurate

import (
	"context"
	"fmt"
	"path"

	"github.com/spf13/afero"
)

// Partition names inside a clean-stage sink.
const (
	PartitionCleaned  = "cleaned"
	PartitionRejected = "rejected"
)

// Router copies each classified asset into the cleaned partition or into the
// reject partition named after its reason. Sources are never modified.
type Router struct {
	src  afero.Fs
	sink Sink
}

// NewRouter returns a Router reading from src and writing to sink.
func NewRouter(src afero.Fs, sink Sink) *Router {
	if src == nil {
		src = afero.NewOsFs()
	}
	return &Router{src: src, sink: sink}
}

// KeyFor returns the destination key for a decision.
func KeyFor(name string, d Decision) string {
	if d.Passed() {
		return path.Join(PartitionCleaned, name)
	}
	return path.Join(PartitionRejected, string(d.Reason), name)
}

// Materialize copies the asset bytes to the destination of d. Errors wrap
// ErrWriteFailure and are meant to be reported per asset.
func (r *Router) Materialize(ctx context.Context, asset *ImageAsset, d Decision) (Location, error) {
	f, err := r.src.Open(asset.Path)
	if err != nil {
		return Location{}, fmt.Errorf("%w: open %s: %v", ErrWriteFailure, asset.Path, err)
	}
	defer f.Close()

	loc, err := r.sink.Put(ctx, KeyFor(asset.Name, d), f, asset.Facts.Size)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %s: %v", ErrWriteFailure, asset.Name, err)
	}
	return loc, nil
}
