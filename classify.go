package imagecurate

import (
	"context"
	"errors"
)

// Decision is the single disposition the Classifier assigns to an asset.
type Decision struct {
	Reason      Reason      // "" means pass
	Fingerprint Fingerprint // set on pass when fingerprinting succeeded
	DuplicateOf string      // original asset id for ReasonDuplicate
	Distance    int         // Hamming distance to DuplicateOf
}

// Passed reports whether the decision admits the asset.
func (d Decision) Passed() bool { return d.Reason == "" }

// Classifier sequences the rule filter and the duplicate index.
type Classifier struct {
	cfg   *Config
	index *DuplicateIndex
}

// NewClassifier returns a Classifier that records accepted fingerprints in
// index. A nil index gets a fresh one built from the config.
func (cfg *Config) NewClassifier(index *DuplicateIndex) *Classifier {
	cfg.defaults()
	if index == nil {
		index = NewDuplicateIndex(cfg.SimilarityThreshold, cfg.IndexStrategy)
	}
	return &Classifier{cfg: cfg, index: index}
}

// Index returns the duplicate index the classifier writes to.
func (c *Classifier) Index() *DuplicateIndex { return c.index }

// Classify runs Assess then Decide. It mutates asset exactly once.
func (c *Classifier) Classify(ctx context.Context, asset *ImageAsset) (Decision, error) {
	if err := c.Assess(ctx, asset); err != nil {
		return Decision{}, err
	}
	return c.Decide(asset), nil
}

// Assess probes the asset, applies the rules and, when they pass, requests a
// fingerprint. It touches no shared state, so it may run concurrently.
// Only context cancellation is returned as an error; every other failure is
// folded into asset.Reason.
func (c *Classifier) Assess(ctx context.Context, asset *ImageAsset) error {
	cfg := c.cfg

	facts, err := cfg.probe(ctx, asset.Path)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil && !errors.Is(err, ErrUndecodable) {
		// Unreadable files cannot be admitted.
		cfg.Logger.Debug("imagecurate: probe failed", "path", asset.Path, "error", err)
		asset.Facts = facts
		asset.Reason = ReasonCorrupted
		return nil
	}
	asset.Facts = facts

	if reason := cfg.Rules.Evaluate(facts); reason != "" {
		asset.Reason = reason
		return nil
	}

	fp, err := cfg.fingerprint(ctx, asset.Path)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		// Graceful degradation: an unavailable similarity check never blocks
		// an otherwise valid asset.
		cfg.Logger.Debug("imagecurate: fingerprint unavailable", "path", asset.Path, "error", err)
	} else {
		asset.Fingerprint = fp
	}
	asset.Provenance = cfg.readProvenance(asset.Path)
	return nil
}

// Decide consults the duplicate index for an assessed asset and finalizes its
// status. Calls must be serialized in the run's fixed asset order.
func (c *Classifier) Decide(asset *ImageAsset) Decision {
	if asset.Reason != "" {
		asset.Status = StatusRejected
		return Decision{Reason: asset.Reason}
	}

	if asset.Fingerprint == "" {
		asset.Status = StatusPassed
		return Decision{}
	}

	if m, dup := c.index.CheckAndInsert(asset.Fingerprint, asset.Name); dup {
		c.cfg.Logger.Info("imagecurate: duplicate image",
			"name", asset.Name,
			"original", m.Entry.AssetID,
			"fingerprint", string(asset.Fingerprint),
			"distance", m.Distance,
		)
		asset.Status = StatusRejected
		asset.Reason = ReasonDuplicate
		return Decision{
			Reason:      ReasonDuplicate,
			Fingerprint: asset.Fingerprint,
			DuplicateOf: m.Entry.AssetID,
			Distance:    m.Distance,
		}
	}

	asset.Status = StatusPassed
	return Decision{Fingerprint: asset.Fingerprint}
}
