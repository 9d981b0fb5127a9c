package imagecurate

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
)

// scenarioFs holds the three-image input set: one undersized image and two
// 200×200 images whose fingerprints are two symbols apart.
func scenarioFs(t *testing.T) (afero.Fs, map[string]Fingerprint) {
	t.Helper()
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/img1.jpg", padTo(makeJPEG(50, 50), 5000))
	writeFile(t, fs, "/src/img2.jpg", padTo(makeJPEG(200, 200), 20000))
	writeFile(t, fs, "/src/img3.jpg", padTo(makeJPEG(200, 200), 20000))
	writeFile(t, fs, "/src/readme.txt", []byte("not an image"))
	return fs, map[string]Fingerprint{
		"img1.jpg": "ffffffffffffffff",
		"img2.jpg": "0000000000000000",
		"img3.jpg": "00000000000000ff",
	}
}

func newMemSink(t *testing.T, fs afero.Fs) *FsSink {
	t.Helper()
	sink, err := NewFsSink(fs, "/out")
	if err != nil {
		t.Fatal(err)
	}
	return sink
}

func TestClean_Scenario(t *testing.T) {
	t.Parallel()

	fs, fps := scenarioFs(t)
	var outcomes []Outcome
	cfg := &Config{
		Fs:            fs,
		Logger:        discardLogger(),
		Fingerprinter: stubFingerprints(fps),
		Workers:       3,
		OnOutcome:     func(o Outcome) { outcomes = append(outcomes, o) },
	}

	report, err := cfg.Clean(context.Background(), "/src", newMemSink(t, fs))
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}

	s := report.Stats
	if s.Total != 3 || s.Passed != 1 || s.Rejected[ReasonTooSmall] != 1 || s.Rejected[ReasonDuplicate] != 1 {
		t.Errorf("stats = %+v, want total 3, passed 1, tooSmall 1, duplicate 1", s)
	}
	if s.Total != s.Passed+s.RejectedTotal() {
		t.Errorf("stats invariant broken: %+v", s)
	}
	if report.RunID == "" || report.Timestamp.IsZero() || report.Cancelled {
		t.Errorf("report header = %q %v cancelled=%v", report.RunID, report.Timestamp, report.Cancelled)
	}
	if report.Config.SimilarityThreshold != DefaultSimilarityThreshold || report.Config.Rules != DefaultRules() {
		t.Errorf("report config = %+v", report.Config)
	}

	if len(outcomes) != 3 {
		t.Fatalf("OnOutcome called %d times, want 3", len(outcomes))
	}
	for i, name := range []string{"img1.jpg", "img2.jpg", "img3.jpg"} {
		if outcomes[i].Name != name {
			t.Errorf("outcome %d = %s, want %s (sorted order)", i, outcomes[i].Name, name)
		}
	}
	if dup := outcomes[2]; dup.DuplicateOf != "img2.jpg" || dup.Distance != 2 {
		t.Errorf("img3 outcome = %+v, want duplicate of img2.jpg at 2", dup)
	}

	for _, p := range []string{
		"/out/cleaned/img2.jpg",
		"/out/rejected/tooSmall/img1.jpg",
		"/out/rejected/duplicate/img3.jpg",
	} {
		info, err := fs.Stat(p)
		if err != nil {
			t.Errorf("missing %s: %v", p, err)
			continue
		}
		if info.Size() != 5000 && info.Size() != 20000 {
			t.Errorf("%s has %d bytes, want a byte-for-byte copy", p, info.Size())
		}
	}
	if ok, _ := afero.Exists(fs, "/src/img3.jpg"); !ok {
		t.Error("source file was removed")
	}
}

func TestClean_Deterministic(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	fps := make(map[string]Fingerprint)
	for i := range 40 {
		name := fmt.Sprintf("%03d.jpg", i)
		writeFile(t, fs, "/src/"+name, padTo(makeJPEG(150, 150), 8000))
		// Groups of four share an eight-symbol prefix and differ from other
		// groups in all eight, so only the first of each group passes.
		fps[name] = Fingerprint(strings.Repeat(string("0123456789"[i/4]), 8) + fmt.Sprintf("%02x", i%4))
	}

	run := func(workers int) []Outcome {
		cfg := &Config{Fs: fs, Logger: discardLogger(), Fingerprinter: stubFingerprints(fps), Workers: workers}
		sink, err := NewFsSink(fs, fmt.Sprintf("/out-%d", workers))
		if err != nil {
			t.Fatal(err)
		}
		report, err := cfg.Clean(context.Background(), "/src", sink)
		if err != nil {
			t.Fatalf("Clean(workers=%d): %v", workers, err)
		}
		if report.Stats.Passed != 10 || report.Stats.Rejected[ReasonDuplicate] != 30 {
			t.Errorf("workers=%d stats = %+v", workers, report.Stats)
		}
		return report.Outcomes
	}

	serial, parallel := run(1), run(8)
	for i := range serial {
		a, b := serial[i], parallel[i]
		if a.Name != b.Name || a.Reason != b.Reason || a.DuplicateOf != b.DuplicateOf {
			t.Errorf("outcome %d differs: %+v vs %+v", i, a, b)
		}
	}
	if first := serial[1]; first.DuplicateOf != "000.jpg" {
		t.Errorf("001.jpg duplicate of %q, want 000.jpg", first.DuplicateOf)
	}
}

// snapshotTree maps every file under root to its contents.
func snapshotTree(t *testing.T, fs afero.Fs, root string) map[string]string {
	t.Helper()
	files := map[string]string{}
	err := afero.Walk(fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		data, err := afero.ReadFile(fs, p)
		files[p] = string(data)
		return err
	})
	if err != nil {
		t.Fatalf("walk %s: %v", root, err)
	}
	return files
}

func TestClean_IdempotentRerun(t *testing.T) {
	t.Parallel()

	fs, fps := scenarioFs(t)
	cfg := &Config{Fs: fs, Logger: discardLogger(), Fingerprinter: stubFingerprints(fps)}
	sink := newMemSink(t, fs)
	ctx := context.Background()

	first, err := cfg.Clean(ctx, "/src", sink)
	if err != nil {
		t.Fatal(err)
	}
	want := snapshotTree(t, fs, "/out")
	if len(want) != 3 {
		t.Fatalf("first run placed %d files, want 3", len(want))
	}

	// From cleared partitions.
	if err := sink.Reset(ctx, PartitionCleaned, PartitionRejected); err != nil {
		t.Fatal(err)
	}
	second, err := cfg.Clean(ctx, "/src", sink)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first.Stats, second.Stats) {
		t.Errorf("rerun stats %+v differ from %+v", second.Stats, first.Stats)
	}
	if !reflect.DeepEqual(first.Outcomes, second.Outcomes) {
		t.Errorf("rerun outcomes differ:\n%+v\n%+v", second.Outcomes, first.Outcomes)
	}
	if got := snapshotTree(t, fs, "/out"); !maps.Equal(got, want) {
		t.Errorf("rerun tree differs: %d files vs %d", len(got), len(want))
	}

	// Over existing partitions.
	third, err := cfg.Clean(ctx, "/src", sink)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first.Stats, third.Stats) {
		t.Errorf("third run stats %+v differ from %+v", third.Stats, first.Stats)
	}
	if got := snapshotTree(t, fs, "/out"); !maps.Equal(got, want) {
		t.Errorf("third run tree differs: %d files vs %d", len(got), len(want))
	}
}

func TestClean_WriteFailureIsCounted(t *testing.T) {
	t.Parallel()

	fs, fps := scenarioFs(t)
	var logged []string
	cfg := &Config{
		Fs:            fs,
		Logger:        discardLogger(),
		Fingerprinter: stubFingerprints(fps),
		OnOutcome: func(o Outcome) {
			if o.WriteError != "" {
				logged = append(logged, o.Name)
			}
		},
	}
	sink := &failingSink{Sink: newMemSink(t, fs), fail: map[string]bool{"cleaned/img2.jpg": true}}

	report, err := cfg.Clean(context.Background(), "/src", sink)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if report.Stats.WriteFailures != 1 || report.Stats.Passed != 1 {
		t.Errorf("stats = %+v, want 1 write failure counted under passed", report.Stats)
	}
	if len(logged) != 1 || logged[0] != "img2.jpg" {
		t.Errorf("write errors reported for %v, want [img2.jpg]", logged)
	}
	if report.Outcomes[1].Location != "" {
		t.Errorf("failed outcome has location %q", report.Outcomes[1].Location)
	}
}

func TestClean_PanicIsRecovered(t *testing.T) {
	t.Parallel()

	fs, _ := scenarioFs(t)
	var mu sync.Mutex
	var panics []string
	cfg := &Config{
		Fs:     fs,
		Logger: discardLogger(),
		Fingerprinter: FingerprintFunc(func(context.Context, string, int) (Fingerprint, error) {
			panic("decoder bug")
		}),
		OnPanic: func(tag string, _ any) {
			mu.Lock()
			panics = append(panics, tag)
			mu.Unlock()
		},
	}

	report, err := cfg.Clean(context.Background(), "/src", newMemSink(t, fs))
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if report.Stats.Rejected[ReasonCorrupted] != 2 || report.Stats.Rejected[ReasonTooSmall] != 1 {
		t.Errorf("stats = %+v, want both fingerprinted images corrupted", report.Stats)
	}
	if len(panics) != 2 || panics[0] != "assess" {
		t.Errorf("OnPanic calls = %v, want two assess panics", panics)
	}
}

func TestClean_Cancelled(t *testing.T) {
	t.Parallel()

	fs, fps := scenarioFs(t)
	cfg := &Config{Fs: fs, Logger: discardLogger(), Fingerprinter: stubFingerprints(fps)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := cfg.Clean(ctx, "/src", newMemSink(t, fs))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Clean error = %v, want context.Canceled", err)
	}
	if report == nil || !report.Cancelled {
		t.Fatalf("report = %+v, want cancelled report", report)
	}
	s := report.Stats
	if s.Total != s.Passed+s.RejectedTotal() || s.Total != len(report.Outcomes) {
		t.Errorf("partial stats inconsistent: %+v with %d outcomes", s, len(report.Outcomes))
	}
}

func TestClean_CancelMidRun(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	for i := range 20 {
		writeFile(t, fs, fmt.Sprintf("/src/%02d.jpg", i), padTo(makeJPEG(150, 150), 8000))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := &Config{
		Fs:      fs,
		Logger:  discardLogger(),
		Workers: 2,
		Fingerprinter: FingerprintFunc(func(_ context.Context, p string, _ int) (Fingerprint, error) {
			return Fingerprint(fmt.Sprintf("%064x", len(p))), nil
		}),
	}
	count := 0
	cfg.OnOutcome = func(Outcome) {
		count++
		if count == 5 {
			cancel()
		}
	}

	report, err := cfg.Clean(ctx, "/src", newMemSink(t, fs))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Clean error = %v, want context.Canceled", err)
	}
	if report.Stats.Total != 5 || len(report.Outcomes) != 5 {
		t.Errorf("total = %d outcomes = %d, want 5 fully placed", report.Stats.Total, len(report.Outcomes))
	}
	placed := 0
	for _, dir := range []string{"/out/cleaned", "/out/rejected/duplicate"} {
		entries, _ := afero.ReadDir(fs, dir)
		placed += len(entries)
	}
	if placed != 5 {
		t.Errorf("%d files placed, want 5", placed)
	}
}

func TestClean_ConfigErrors(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/file.jpg", makeJPEG(10, 10))
	sink := newMemSink(t, fs)

	tests := []struct {
		name string
		cfg  *Config
		src  string
		sink Sink
	}{
		{"missing source", &Config{Fs: fs}, "/nope", sink},
		{"source is a file", &Config{Fs: fs}, "/file.jpg", sink},
		{"nil sink", &Config{Fs: fs}, "/", nil},
		{"invalid rules", &Config{Fs: fs, Rules: Rules{MinAspect: 5, MaxAspect: 1}}, "/", sink},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tt.cfg.Logger = discardLogger()
			if _, err := tt.cfg.Clean(context.Background(), tt.src, tt.sink); !errors.Is(err, ErrConfig) {
				t.Errorf("Clean error = %v, want ErrConfig", err)
			}
		})
	}
}

func TestListImages(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	for _, name := range []string{"b.PNG", "a.jpg", "c.jpeg", "d.gif", "e.webp", "f.bmp", "notes.txt"} {
		writeFile(t, fs, "/src/"+name, []byte("x"))
	}
	if err := fs.MkdirAll("/src/sub.jpg", 0o755); err != nil {
		t.Fatal(err)
	}

	names, err := listImages(fs, "/src")
	if err != nil {
		t.Fatalf("listImages: %v", err)
	}
	want := []string{"a.jpg", "b.PNG", "c.jpeg", "d.gif", "e.webp"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Errorf("listImages = %v, want %v", names, want)
	}
}
