package imagecurate

import "fmt"

// Default admission thresholds.
const (
	DefaultMinWidth     = 100
	DefaultMinHeight    = 100
	DefaultMinAspect    = 0.33
	DefaultMaxAspect    = 3.0
	DefaultMinFileBytes = 5000
	DefaultMaxFileBytes = 10_000_000
)

// Rules are the hard admission thresholds applied to probe facts.
type Rules struct {
	MinWidth     int     `json:"minWidth" yaml:"min_width"`
	MinHeight    int     `json:"minHeight" yaml:"min_height"`
	MinAspect    float64 `json:"minAspectRatio" yaml:"min_aspect"`
	MaxAspect    float64 `json:"maxAspectRatio" yaml:"max_aspect"`
	MinFileBytes int64   `json:"minFileSize" yaml:"min_file_bytes"`
	MaxFileBytes int64   `json:"maxFileSize" yaml:"max_file_bytes"`
}

// DefaultRules returns the default thresholds.
func DefaultRules() Rules {
	return Rules{
		MinWidth:     DefaultMinWidth,
		MinHeight:    DefaultMinHeight,
		MinAspect:    DefaultMinAspect,
		MaxAspect:    DefaultMaxAspect,
		MinFileBytes: DefaultMinFileBytes,
		MaxFileBytes: DefaultMaxFileBytes,
	}
}

// withDefaults returns DefaultRules for the zero value. Otherwise it fills
// missing dimension, aspect and maximum size bounds; a zero MinFileBytes
// disables the lower file-size bound.
func (r Rules) withDefaults() Rules {
	d := DefaultRules()
	if r == (Rules{}) {
		return d
	}
	if r.MinWidth <= 0 {
		r.MinWidth = d.MinWidth
	}
	if r.MinHeight <= 0 {
		r.MinHeight = d.MinHeight
	}
	if r.MinAspect <= 0 {
		r.MinAspect = d.MinAspect
	}
	if r.MaxAspect <= 0 {
		r.MaxAspect = d.MaxAspect
	}
	if r.MaxFileBytes <= 0 {
		r.MaxFileBytes = d.MaxFileBytes
	}
	return r
}

// Validate reports inconsistent bounds as ErrConfig.
func (r Rules) Validate() error {
	switch {
	case r.MinWidth <= 0 || r.MinHeight <= 0:
		return fmt.Errorf("%w: minimum dimensions must be positive", ErrConfig)
	case r.MinAspect <= 0 || r.MaxAspect <= 0:
		return fmt.Errorf("%w: aspect bounds must be positive", ErrConfig)
	case r.MinAspect > r.MaxAspect:
		return fmt.Errorf("%w: min aspect %.2f exceeds max aspect %.2f", ErrConfig, r.MinAspect, r.MaxAspect)
	case r.MinFileBytes < 0 || r.MaxFileBytes <= 0:
		return fmt.Errorf("%w: file size bounds must be positive", ErrConfig)
	case r.MinFileBytes > r.MaxFileBytes:
		return fmt.Errorf("%w: min file size %d exceeds max file size %d", ErrConfig, r.MinFileBytes, r.MaxFileBytes)
	}
	return nil
}

// Evaluate applies the rules in their fixed order and returns the reason of
// the first failing rule, or "" when every rule passes. The order decides the
// reported reason when several rules fail at once.
func (r Rules) Evaluate(f Facts) Reason {
	switch {
	case f.Size < r.MinFileBytes:
		return ReasonTooSmallFile
	case f.Size > r.MaxFileBytes:
		return ReasonTooLargeFile
	case !f.Decoded || f.Width <= 0 || f.Height <= 0:
		return ReasonCorrupted
	case f.Width < r.MinWidth || f.Height < r.MinHeight:
		return ReasonTooSmall
	}

	aspect := float64(f.Width) / float64(f.Height)
	if aspect > r.MaxAspect || aspect < r.MinAspect {
		return ReasonBadAspectRatio
	}
	return ""
}
