package imagecurate

import (
	"bufio"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// Facts are the file-system and codec facts the rules are evaluated on.
type Facts struct {
	Size    int64
	Width   int
	Height  int
	Decoded bool // false when the codec could not read dimensions
}

// Probe stats the file at path and reads its dimensions from the image header.
// Returns ErrUnreadable when the file cannot be opened, or ErrUndecodable
// (with Size still set) when no codec recognises it.
func (cfg *Config) Probe(ctx context.Context, path string) (Facts, error) {
	cfg.defaults()
	return cfg.probe(ctx, path)
}

func (cfg *Config) probe(ctx context.Context, path string) (Facts, error) {
	if err := ctx.Err(); err != nil {
		return Facts{}, err
	}

	info, err := cfg.Fs.Stat(path)
	if err != nil {
		return Facts{}, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	facts := Facts{Size: info.Size()}

	f, err := cfg.Fs.Open(path)
	if err != nil {
		return facts, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	defer f.Close()

	// DecodeConfig stops after the frame header, however much metadata precedes it.
	imgCfg, _, err := image.DecodeConfig(bufio.NewReader(f))
	if err != nil || imgCfg.Width <= 0 || imgCfg.Height <= 0 {
		cfg.Logger.Debug("imagecurate: cannot decode dimensions", "path", path, "error", err)
		return facts, fmt.Errorf("%w: %s", ErrUndecodable, path)
	}

	facts.Width = imgCfg.Width
	facts.Height = imgCfg.Height
	facts.Decoded = true
	return facts, nil
}
