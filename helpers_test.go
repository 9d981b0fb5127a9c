package imagecurate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"math/rand"
	"path"
	"sync"
	"testing"

	"github.com/spf13/afero"
)

// makeJPEG returns a solid-color JPEG of the given dimensions.
func makeJPEG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: 100, G: 149, B: 237, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		panic("makeJPEG: " + err.Error())
	}
	return buf.Bytes()
}

// makePNG returns a horizontal gradient PNG of the given dimensions.
func makePNG(w, h int) []byte {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetGray(x, y, color.Gray{Y: uint8(x * 255 / max(w-1, 1))})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic("makePNG: " + err.Error())
	}
	return buf.Bytes()
}

// noiseImage returns an image of random pixels, which compresses badly.
func noiseImage(w, h int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return img
}

// padTo appends zero bytes after the image data until it is exactly n bytes.
// Decoders stop at the end-of-image marker, so the padding is ignored.
func padTo(data []byte, n int) []byte {
	if len(data) > n {
		panic("padTo: image larger than target size")
	}
	out := make([]byte, n)
	copy(out, data)
	return out
}

func writeFile(t *testing.T, fs afero.Fs, name string, data []byte) {
	t.Helper()
	if err := fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, name, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

// stubFingerprints serves fixed fingerprints keyed by base name. Names
// without an entry fail with ErrFingerprintUnavailable.
func stubFingerprints(fps map[string]Fingerprint) FingerprintFunc {
	return func(_ context.Context, p string, _ int) (Fingerprint, error) {
		if fp, ok := fps[path.Base(p)]; ok {
			return fp, nil
		}
		return "", ErrFingerprintUnavailable
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
	gets int
	sets int
}

func newMockCache() *mockCache { return &mockCache{data: make(map[string][]byte)} }

func (m *mockCache) Key(prefix, value string) string { return prefix + ":" + value }

func (m *mockCache) Get(_ context.Context, key string, dest any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	b, ok := m.data[key]
	if !ok {
		return false
	}
	return json.Unmarshal(b, dest) == nil
}

func (m *mockCache) Set(_ context.Context, key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	b, _ := json.Marshal(value)
	m.data[key] = b
}

// failingSink rejects every Put whose key is in fail.
type failingSink struct {
	Sink
	fail map[string]bool
}

func (s *failingSink) Put(ctx context.Context, key string, r io.Reader, size int64) (Location, error) {
	if s.fail[key] {
		return Location{}, errors.New("disk full")
	}
	return s.Sink.Put(ctx, key, r, size)
}

type fakeRecords struct {
	mu      sync.Mutex
	marked  []int64
	missing map[int64]bool
}

func (f *fakeRecords) MarkProcessed(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[id] {
		return errors.New("record not found")
	}
	f.marked = append(f.marked, id)
	return nil
}
