package imagecurate

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/corona10/goimagehash"
	"github.com/spf13/afero"
)

// Fingerprint is a fixed-length perceptual hash rendered as symbols
// (lower-case hex for HashFingerprinter).
type Fingerprint string

// HammingDistance counts the positions at which a and b differ. When the
// lengths differ only the shorter length is compared and trailing symbols of
// the longer fingerprint are ignored.
func HammingDistance(a, b Fingerprint) int {
	n := min(len(a), len(b))
	dist := 0
	for i := range n {
		if a[i] != b[i] {
			dist++
		}
	}
	return dist
}

// Fingerprinter computes a perceptual fingerprint of the image at path.
// granularity is the hash resolution (16 → a 16×16 bit grid).
type Fingerprinter interface {
	Fingerprint(ctx context.Context, path string, granularity int) (Fingerprint, error)
}

// FingerprintFunc adapts a plain function to the Fingerprinter interface.
type FingerprintFunc func(ctx context.Context, path string, granularity int) (Fingerprint, error)

// Fingerprint calls f.
func (f FingerprintFunc) Fingerprint(ctx context.Context, path string, granularity int) (Fingerprint, error) {
	return f(ctx, path, granularity)
}

// HashFingerprinter computes a difference hash with goimagehash.
type HashFingerprinter struct {
	Fs afero.Fs // nil = OS filesystem
}

// Fingerprint decodes the image and returns the hex rendering of its
// granularity×granularity difference hash.
func (h *HashFingerprinter) Fingerprint(ctx context.Context, path string, granularity int) (Fingerprint, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fs := h.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	f, err := fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFingerprintUnavailable, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrFingerprintUnavailable, err)
	}
	return HashImage(img, granularity)
}

// HashImage computes the difference-hash fingerprint of an already decoded image.
func HashImage(img image.Image, granularity int) (Fingerprint, error) {
	hash, err := goimagehash.ExtDifferenceHash(img, granularity, granularity)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFingerprintUnavailable, err)
	}

	var b strings.Builder
	for _, word := range hash.GetHash() {
		fmt.Fprintf(&b, "%016x", word)
	}
	return Fingerprint(b.String()), nil
}

// fingerprint returns the asset's fingerprint, consulting cfg.Cache first.
// Cache keys include size and modification time so a rewritten file is
// hashed again.
func (cfg *Config) fingerprint(ctx context.Context, path string) (Fingerprint, error) {
	if cfg.Cache == nil {
		return cfg.Fingerprinter.Fingerprint(ctx, path, cfg.Granularity)
	}

	key := cfg.Cache.Key("fingerprint", cfg.fingerprintCacheValue(path))
	var cached string
	if cfg.Cache.Get(ctx, key, &cached) && cached != "" {
		return Fingerprint(cached), nil
	}

	fp, err := cfg.Fingerprinter.Fingerprint(ctx, path, cfg.Granularity)
	if err != nil {
		return "", err
	}
	cfg.Cache.Set(ctx, key, string(fp))
	return fp, nil
}

func (cfg *Config) fingerprintCacheValue(path string) string {
	parts := []string{path, strconv.Itoa(cfg.Granularity)}
	if info, err := cfg.Fs.Stat(path); err == nil {
		parts = append(parts,
			strconv.FormatInt(info.Size(), 10),
			strconv.FormatInt(info.ModTime().UnixNano(), 10),
		)
	}
	return strings.Join(parts, "|")
}
