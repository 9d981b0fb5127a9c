package cli

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/anatolykoptev/go-imagecurate"
	"github.com/anatolykoptev/go-imagecurate/pgrecords"
	"github.com/spf13/afero"
)

// writeNoiseJPEG writes a w×h JPEG of random pixels, which keeps file sizes
// well above the minimum and fingerprints far apart.
func writeNoiseJPEG(t *testing.T, path string, w, h int, seed int64) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatal(err)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := Execute(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "imagecurate "+Version) {
		t.Errorf("output = %q", out)
	}
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "downloads")
	out := filepath.Join(dir, "curated")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	writeNoiseJPEG(t, filepath.Join(src, "1.jpg"), 300, 200, 1)
	writeNoiseJPEG(t, filepath.Join(src, "2.jpg"), 200, 200, 2)
	writeNoiseJPEG(t, filepath.Join(src, "3.jpg"), 600, 100, 3) // aspect 6:1
	if err := os.WriteFile(filepath.Join(src, "notes.txt"), []byte("skip"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("IMAGECURATE_LOG_FILE", filepath.Join(dir, "imagecurate.log"))
	metricsPath := filepath.Join(dir, "imagecurate.prom")

	stdout, err := execute(t, "run", "--src", src, "--out", out, "--workers", "2", "--metrics-file", metricsPath)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, stdout)
	}
	if !strings.Contains(stdout, "3 images, 2 passed") {
		t.Errorf("summary = %q", stdout)
	}

	cleaned, err := os.ReadDir(filepath.Join(out, imagecurate.PartitionCleaned))
	if err != nil {
		t.Fatalf("read cleaned: %v", err)
	}
	if len(cleaned) != 2 {
		t.Errorf("cleaned has %d files, want 2", len(cleaned))
	}
	if _, err := os.Stat(filepath.Join(out, imagecurate.PartitionRejected, "badAspectRatio", "3.jpg")); err != nil {
		t.Errorf("rejected copy missing: %v", err)
	}

	report, err := imagecurate.ReadReport(nil, filepath.Join(out, "cleaning-report.json"))
	if err != nil {
		t.Fatalf("ReadReport: %v", err)
	}
	if report.Stats.Total != 3 || report.Stats.Passed != 2 {
		t.Errorf("report stats = %+v", report.Stats)
	}

	for _, name := range []string{"1.jpg", "2.jpg"} {
		info, err := os.Stat(filepath.Join(out, "normalized", name))
		if err != nil {
			t.Errorf("normalized %s missing: %v", name, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("normalized %s is empty", name)
		}
	}

	metrics, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(metrics), "imagecurate_assets_total") {
		t.Errorf("metrics textfile missing counters")
	}
}

func TestRecordCommandsNeedDatabase(t *testing.T) {
	t.Setenv("IMAGECURATE_DATABASE_URL", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("IMAGECURATE_LOG_FILE", filepath.Join(t.TempDir(), "imagecurate.log"))

	for _, args := range [][]string{{"counts"}, {"register", "https://example.com/a.jpg"}} {
		if _, err := execute(t, args...); !errors.Is(err, imagecurate.ErrConfig) {
			t.Errorf("%s error = %v, want ErrConfig", args[0], err)
		}
	}
}

func TestPrintKeywordCounts(t *testing.T) {
	var buf bytes.Buffer
	printKeywordCounts(&buf, []pgrecords.KeywordCount{{Keyword: "cat", Count: 3}, {Keyword: "", Count: 1}})
	out := buf.String()
	if !strings.Contains(out, "keywords:") || !strings.Contains(out, "cat") || !strings.Contains(out, "(none)") {
		t.Errorf("output = %q", out)
	}

	buf.Reset()
	printKeywordCounts(&buf, nil)
	if buf.Len() != 0 {
		t.Errorf("empty keywords printed %q", buf.String())
	}
}

func TestPrintFolderSizes(t *testing.T) {
	fs := afero.NewMemMapFs()
	for name, size := range map[string]int{"/out/cleaned/1.jpg": 4000, "/out/cleaned/2.png": 6000, "/out/cleaned/notes.txt": 99, "/out/normalized/1.jpg": 2500} {
		if err := afero.WriteFile(fs, name, make([]byte, size), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	var buf bytes.Buffer
	printFolderSizes(&buf, fs, "/out/cleaned", "/out/normalized")
	out := buf.String()
	for _, want := range []string{"cleaned: 2 files, 10000 bytes", "normalized: 1 files, 2500 bytes", "compression ratio: 25.0%"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	printFolderSizes(&buf, fs, "/missing", "/out/normalized")
	if strings.Contains(buf.String(), "ratio") {
		t.Errorf("ratio printed without cleaned files: %q", buf.String())
	}
}
