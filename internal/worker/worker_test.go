package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/yangwenmai/vidlens/internal/ingest"
	"github.com/yangwenmai/vidlens/internal/model"
)

type fakeIngester struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (f *fakeIngester) Ingest(_ context.Context, path string, _ ingest.Options) (*ingest.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, filepath.Base(path))
	if f.err != nil {
		return nil, f.err
	}
	return &ingest.Result{Status: model.StatusComplete, VideoID: "v"}, nil
}

func (f *fakeIngester) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScan_WaitsForStableSize(t *testing.T) {
	dir := t.TempDir()
	ing := &fakeIngester{}
	w := New(dir, ing, ingest.DefaultOptions(), time.Hour, nil)
	ctx := context.Background()

	clip := filepath.Join(dir, "clip.mp4")
	write(t, clip, "part")
	write(t, filepath.Join(dir, "readme.txt"), "not a video")

	if n, _ := w.Scan(ctx); n != 0 {
		t.Fatalf("first scan ingested %d, want 0", n)
	}

	write(t, clip, "partial-then-complete")
	if n, _ := w.Scan(ctx); n != 0 {
		t.Fatalf("scan after growth ingested %d, want 0", n)
	}

	if n, _ := w.Scan(ctx); n != 1 {
		t.Fatalf("stable scan ingested %d, want 1", n)
	}
	if n, _ := w.Scan(ctx); n != 0 {
		t.Fatalf("repeat scan ingested %d, want 0", n)
	}
	if got := ing.calls(); len(got) != 1 || got[0] != "clip.mp4" {
		t.Errorf("calls = %v", got)
	}
}

func TestScan_ReingestsChangedFile(t *testing.T) {
	dir := t.TempDir()
	ing := &fakeIngester{}
	w := New(dir, ing, ingest.DefaultOptions(), time.Hour, nil)
	ctx := context.Background()

	clip := filepath.Join(dir, "clip.mkv")
	write(t, clip, "v1")
	w.Scan(ctx)
	w.Scan(ctx)

	write(t, clip, "version-two")
	w.Scan(ctx)
	w.Scan(ctx)

	if got := ing.calls(); len(got) != 2 {
		t.Errorf("calls = %v, want 2", got)
	}
}

func TestScan_IngestErrorDoesNotRetry(t *testing.T) {
	dir := t.TempDir()
	ing := &fakeIngester{err: &model.IngestError{Path: "x", Stage: "probe", Err: errors.New("corrupt")}}
	w := New(dir, ing, ingest.DefaultOptions(), time.Hour, nil)
	ctx := context.Background()

	write(t, filepath.Join(dir, "bad.mp4"), "junk")
	for i := 0; i < 4; i++ {
		w.Scan(ctx)
	}
	if got := ing.calls(); len(got) != 1 {
		t.Errorf("calls = %v, want a single attempt", got)
	}
}

func TestScan_MissingDir(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "gone"), &fakeIngester{}, ingest.DefaultOptions(), time.Hour, nil)
	if _, err := w.Scan(context.Background()); err == nil {
		t.Fatal("expected error for missing dir")
	}
}

func TestStart_StopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.mp4"), "aaa")
	ing := &fakeIngester{}
	w := New(dir, ing, ingest.DefaultOptions(), 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(ing.calls()) == 0 {
		select {
		case <-deadline:
			t.Fatal("worker never ingested the file")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestStepOf(t *testing.T) {
	if got := stepOf(&model.IngestError{Stage: "embed", Err: errors.New("x")}); got != "embed" {
		t.Errorf("stepOf = %q", got)
	}
	if got := stepOf(errors.New("plain")); got != "unknown" {
		t.Errorf("stepOf = %q", got)
	}
}
