package imagecurate

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
)

// Compression defaults and the fixed search schedule.
const (
	DefaultMaxDim   = 500
	DefaultMaxBytes = 50 * 1024

	initialQuality = 80
	minQuality     = 50
	qualityStep    = 10
	minSide        = 100
	shrinkFactor   = 0.8
)

// CompressOptions bounds the normalized output.
type CompressOptions struct {
	MaxDim   int `json:"maxDim" yaml:"max_dim"`     // square side cap in pixels
	MaxBytes int `json:"maxBytes" yaml:"max_bytes"` // encoded size budget
}

func (o CompressOptions) withDefaults() CompressOptions {
	if o.MaxDim <= 0 {
		o.MaxDim = DefaultMaxDim
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxBytes
	}
	return o
}

// CompressStep is one encode attempt of the search.
type CompressStep struct {
	Quality int
	Size    int
	Bytes   int
}

// CompressResult is the last buffer the search produced.
type CompressResult struct {
	Data      []byte
	Size      int  // square side of Data in pixels
	Quality   int  // JPEG quality of Data
	BudgetMet bool // len(Data) <= MaxBytes
	Steps     []CompressStep
}

// Compress center-crops img to a square, caps its side at MaxDim and encodes
// it as JPEG, then trades quality (80 down to 50 in steps of 10) and after
// that resolution (×0.8 per step, not below 100px) until the buffer fits
// MaxBytes or the schedule is exhausted. Quality and side never increase.
//
// An unmet budget is not an error: the last buffer is returned with
// BudgetMet=false.
func Compress(img image.Image, opts CompressOptions) (*CompressResult, error) {
	opts = opts.withDefaults()
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrUndecodable)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrUndecodable)
	}

	square := imaging.Crop(img, CenterSquare(b))
	quality := initialQuality
	size := min(square.Bounds().Dx(), opts.MaxDim)

	res := &CompressResult{}
	data, err := encodeSquare(square, size, quality)
	if err != nil {
		return nil, err
	}
	res.Steps = append(res.Steps, CompressStep{Quality: quality, Size: size, Bytes: len(data)})

	for len(data) > opts.MaxBytes && (quality > minQuality || size > minSide) {
		if quality > minQuality {
			quality = max(quality-qualityStep, minQuality)
		} else {
			size = max(int(float64(size)*shrinkFactor), minSide)
		}

		data, err = encodeSquare(square, size, quality)
		if err != nil {
			return nil, err
		}
		res.Steps = append(res.Steps, CompressStep{Quality: quality, Size: size, Bytes: len(data)})
	}

	res.Data = data
	res.Size = size
	res.Quality = quality
	res.BudgetMet = len(data) <= opts.MaxBytes
	return res, nil
}

// CompressReader decodes an image (honouring EXIF orientation) and compresses it.
func CompressReader(r io.Reader, opts CompressOptions) (*CompressResult, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return Compress(img, opts)
}

// CenterSquare returns the largest centered square inside b. Equal margins
// are removed from the longer axis; when the difference is odd the extra
// pixel comes off the trailing edge.
func CenterSquare(b image.Rectangle) image.Rectangle {
	w, h := b.Dx(), b.Dy()
	side := min(w, h)
	x0 := b.Min.X + (w-side)/2
	y0 := b.Min.Y + (h-side)/2
	return image.Rect(x0, y0, x0+side, y0+side)
}

func encodeSquare(square *image.NRGBA, size, quality int) ([]byte, error) {
	var img image.Image = square
	if square.Bounds().Dx() != size {
		img = imaging.Resize(square, size, size, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
