// Package worker watches a directory and ingests new video files one at a time.
package worker

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/yangwenmai/vidlens/internal/ingest"
	"github.com/yangwenmai/vidlens/internal/logger"
)

// Ingester ingests a single file.
type Ingester interface {
	Ingest(ctx context.Context, path string, opts ingest.Options) (*ingest.Result, error)
}

const defaultInterval = 30 * time.Second

type fileState struct {
	size    int64
	modTime time.Time
}

// Worker polls dir for video files. A file is ingested once its size has
// been stable across two scans, so files still being copied are left alone.
type Worker struct {
	dir      string
	ingester Ingester
	opts     ingest.Options
	interval time.Duration
	log      *logger.Logger

	pending map[string]fileState
	done    map[string]fileState
}

// New creates a new Worker.
func New(dir string, ing Ingester, opts ingest.Options, interval time.Duration, log *logger.Logger) *Worker {
	if log == nil {
		log = logger.Nop()
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Worker{
		dir:      dir,
		ingester: ing,
		opts:     opts,
		interval: interval,
		log:      log,
		pending:  make(map[string]fileState),
		done:     make(map[string]fileState),
	}
}

// Start begins the polling loop. It blocks until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("watch worker started", "dir", w.dir, "interval", w.interval.String())
	for {
		select {
		case <-ctx.Done():
			w.log.Info("watch worker stopped")
			return
		default:
		}

		if _, err := w.Scan(ctx); err != nil && ctx.Err() == nil {
			w.log.Error("watch scan error", "error", err)
		}
		w.sleep(ctx)
	}
}

// Scan runs one pass over the directory and returns how many files were
// handed to the ingester.
func (w *Worker) Scan(ctx context.Context) (int, error) {
	files, err := ingest.Discover(w.dir)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		st, err := os.Stat(path)
		if err != nil {
			continue
		}
		cur := fileState{size: st.Size(), modTime: st.ModTime()}
		if w.done[path] == cur {
			continue
		}
		if prev, ok := w.pending[path]; !ok || prev != cur {
			w.pending[path] = cur
			continue
		}

		delete(w.pending, path)
		w.done[path] = cur
		n++
		w.process(ctx, path)
	}
	return n, nil
}

func (w *Worker) process(ctx context.Context, path string) {
	w.log.Info("ingesting watched file", "path", path)
	res, err := w.ingester.Ingest(ctx, path, w.opts)
	if err != nil {
		w.log.Error("watched ingest failed", "path", path, "step", stepOf(err), "error", err)
		return
	}
	w.log.Info("watched ingest finished", "path", path, "status", res.Status,
		"video_id", res.VideoID, "warnings", len(res.Warnings))
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.interval):
	}
}

// stepNamer is implemented by errors that carry a pipeline step name.
type stepNamer interface {
	StepName() string
}

func stepOf(err error) string {
	var sn stepNamer
	if errors.As(err, &sn) {
		return sn.StepName()
	}
	return "unknown"
}
