package imagecurate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Location describes where an object was written.
type Location struct {
	Key string // canonical slash-separated key
	URL string // optional: file path or s3:// URL
}

// Sink persists materialized assets under slash-separated keys.
type Sink interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) (Location, error)
}

// Resetter is implemented by sinks that can clear partitions before a run.
type Resetter interface {
	Reset(ctx context.Context, prefixes ...string) error
}

// FsSink writes objects below BaseDir on an afero filesystem.
type FsSink struct {
	Fs      afero.Fs // nil = OS filesystem
	BaseDir string
}

// NewFsSink returns a sink rooted at baseDir, creating it when missing.
func NewFsSink(fs afero.Fs, baseDir string) (*FsSink, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	baseDir = strings.TrimSpace(baseDir)
	if baseDir == "" {
		return nil, fmt.Errorf("%w: sink base directory is required", ErrConfig)
	}
	if err := fs.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: ensure sink directory: %v", ErrConfig, err)
	}
	return &FsSink{Fs: fs, BaseDir: baseDir}, nil
}

// Put writes r to key through a temp file and a rename, creating parent
// directories on first use.
func (s *FsSink) Put(ctx context.Context, key string, r io.Reader, _ int64) (Location, error) {
	if s == nil || s.Fs == nil {
		return Location{}, errors.New("imagecurate: fs sink uninitialized")
	}
	if err := ctx.Err(); err != nil {
		return Location{}, err
	}

	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return Location{}, err
	}
	target := filepath.Join(s.BaseDir, filepath.FromSlash(cleanKey))
	if err := s.Fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Location{}, fmt.Errorf("ensure dir: %w", err)
	}

	tmp := target + ".tmp"
	f, err := s.Fs.Create(tmp)
	if err != nil {
		return Location{}, fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = s.Fs.Remove(tmp)
		return Location{}, fmt.Errorf("write file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = s.Fs.Remove(tmp)
		return Location{}, fmt.Errorf("sync file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = s.Fs.Remove(tmp)
		return Location{}, fmt.Errorf("close file: %w", err)
	}
	if err := s.Fs.Rename(tmp, target); err != nil {
		_ = s.Fs.Remove(tmp)
		return Location{}, fmt.Errorf("rename temp file: %w", err)
	}

	return Location{Key: cleanKey, URL: target}, nil
}

// Reset removes the given top-level partitions below BaseDir.
func (s *FsSink) Reset(ctx context.Context, prefixes ...string) error {
	for _, p := range prefixes {
		if err := ctx.Err(); err != nil {
			return err
		}
		cleanKey, err := sanitizeKey(p)
		if err != nil {
			return err
		}
		dir := filepath.Join(s.BaseDir, filepath.FromSlash(cleanKey))
		if err := s.Fs.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("reset %s: %w", cleanKey, err)
		}
	}
	return nil
}

// sanitizeKey normalizes a key and prevents escaping the sink root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("imagecurate: sink key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("imagecurate: invalid sink key %q", key)
	}
	return cleaned, nil
}
