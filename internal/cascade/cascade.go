// Package cascade captions a video in three layers: per-chunk multi-frame
// captions, a consolidated event log, and a final report.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/yangwenmai/vidlens/internal/logger"
	"github.com/yangwenmai/vidlens/internal/model"
	"github.com/yangwenmai/vidlens/internal/provider"
)

const (
	DefaultChunkDurationSec = 30
	DefaultFramesPerChunk   = 3
)

// FrameExtractor grabs single frames for chunk sampling.
type FrameExtractor interface {
	ExtractFrameAt(ctx context.Context, path string, ts float64, out string) error
	TempDir(pattern string) (string, error)
}

// Options configures one cascade run.
type Options struct {
	Topic            string
	ChunkDurationSec int
	FramesPerChunk   int
	VisionModel      string // recorded in artifact meta
	ChatModel        string // recorded in artifact meta
}

// Result holds the artifacts of each layer.
type Result struct {
	Layer0 []model.Artifact
	Layer1 []model.Artifact
	Layer2 []model.Artifact
}

// All returns every artifact, layer by layer.
func (r Result) All() []model.Artifact {
	out := make([]model.Artifact, 0, len(r.Layer0)+len(r.Layer1)+len(r.Layer2))
	out = append(out, r.Layer0...)
	out = append(out, r.Layer1...)
	return append(out, r.Layer2...)
}

// Chunk is one fixed-width slice of the video timeline.
type Chunk struct {
	Index    int
	StartSec float64
	EndSec   float64
}

// Chunks partitions [0, duration) into ceil(duration/chunkSec) chunks, at
// least one. The last chunk ends exactly at duration.
func Chunks(durationSec float64, chunkSec int) []Chunk {
	n := int(math.Ceil(durationSec / float64(chunkSec)))
	if n < 1 {
		n = 1
	}
	out := make([]Chunk, n)
	for i := range out {
		start := float64(i * chunkSec)
		end := math.Min(start+float64(chunkSec), durationSec)
		out[i] = Chunk{Index: i, StartSec: start, EndSec: end}
	}
	return out
}

// FrameTimestamps spaces n samples over [start, end]: the midpoint for one
// frame, both endpoints inclusive for more.
func FrameTimestamps(start, end float64, n int) []float64 {
	dur := end - start
	if dur <= 0 || n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{start + dur/2}
	}
	step := dur / float64(n-1)
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// Cascade runs the three captioning layers.
type Cascade struct {
	frames    FrameExtractor
	captioner provider.ChunkCaptioner
	completer provider.Completer
	log       *logger.Logger
}

// New creates a Cascade. completer may be nil, in which case only layer 0 runs.
func New(frames FrameExtractor, captioner provider.ChunkCaptioner, completer provider.Completer, log *logger.Logger) *Cascade {
	if log == nil {
		log = logger.Nop()
	}
	return &Cascade{frames: frames, captioner: captioner, completer: completer, log: log}
}

// Run captions the video. Each layer is best-effort: a failing layer leaves
// the earlier layers intact and stops the later ones. An error is returned
// only when the cascade cannot start at all.
func (c *Cascade) Run(ctx context.Context, videoPath, videoID string, durationSec float64, opts Options) (Result, error) {
	var res Result
	if c.captioner == nil {
		return res, errors.New("no chunk captioner configured")
	}
	if opts.ChunkDurationSec <= 0 {
		opts.ChunkDurationSec = DefaultChunkDurationSec
	}
	if opts.FramesPerChunk <= 0 {
		opts.FramesPerChunk = DefaultFramesPerChunk
	}
	if opts.Topic == "" {
		opts.Topic = "general"
	}

	var tempDirs []string
	defer func() {
		for _, d := range tempDirs {
			os.RemoveAll(d)
		}
	}()

	chunks := Chunks(durationSec, opts.ChunkDurationSec)
	log := c.log.With("video_id", videoID, "topic", opts.Topic)
	log.Info("cascade layer 0", "chunks", len(chunks), "frames_per_chunk", opts.FramesPerChunk)

	for _, ch := range chunks {
		text, dir, err := c.captionChunk(ctx, videoPath, ch, opts)
		if dir != "" {
			tempDirs = append(tempDirs, dir)
		}
		if err != nil {
			log.Warn("chunk caption failed", "chunk", ch.Index+1, "error", err)
			continue
		}
		if text == "" || strings.ToUpper(strings.TrimSpace(text)) == StaticSentinel {
			continue
		}
		res.Layer0 = append(res.Layer0, model.NewArtifact(uuid.NewString(), videoID, model.ArtifactCaption,
			ch.StartSec, model.Sec(ch.EndSec), text,
			model.ArtifactMeta{Model: opts.VisionModel, Topic: opts.Topic, Layer: model.Layer(0)}))
	}

	if len(res.Layer0) == 0 {
		log.Info("cascade found no events in layer 0")
		return res, nil
	}
	if c.completer == nil {
		log.Warn("no completer configured, skipping layers 1 and 2")
		return res, nil
	}

	summary, err := c.completer.Complete(ctx, Layer1SystemPrompt, eventLines(res.Layer0))
	if err != nil {
		log.Warn("layer 1 summarization failed", "error", err)
		return res, nil
	}
	summary = strings.TrimSpace(summary)
	if summary == "" || summary == NoEventsSentinel {
		return res, nil
	}
	res.Layer1 = append(res.Layer1, model.NewArtifact(uuid.NewString(), videoID, model.ArtifactSummary,
		0, model.Sec(durationSec), summary,
		model.ArtifactMeta{Model: opts.ChatModel, Topic: opts.Topic, Layer: model.Layer(1), SourceChunks: len(res.Layer0)}))

	report, err := c.completer.Complete(ctx, Layer2SystemPrompt, summary)
	if err != nil {
		log.Warn("layer 2 report failed", "error", err)
		return res, nil
	}
	if report = strings.TrimSpace(report); report != "" {
		res.Layer2 = append(res.Layer2, model.NewArtifact(uuid.NewString(), videoID, model.ArtifactReport,
			0, model.Sec(durationSec), report,
			model.ArtifactMeta{Model: opts.ChatModel, Topic: opts.Topic, Layer: model.Layer(2)}))
	}
	log.Info("cascade complete", "layer0", len(res.Layer0), "layer1", len(res.Layer1), "layer2", len(res.Layer2))
	return res, nil
}

// captionChunk samples the chunk's frames into a fresh directory and
// captions them in one request. The directory is returned for cleanup.
func (c *Cascade) captionChunk(ctx context.Context, videoPath string, ch Chunk, opts Options) (string, string, error) {
	timestamps := FrameTimestamps(ch.StartSec, ch.EndSec, opts.FramesPerChunk)
	if len(timestamps) == 0 {
		return "", "", nil
	}

	dir, err := c.frames.TempDir("vidlens-chunk-")
	if err != nil {
		return "", "", err
	}

	var paths []string
	var kept []float64
	for i, ts := range timestamps {
		out := filepath.Join(dir, fmt.Sprintf("chunk_%03d.jpg", i))
		if err := c.frames.ExtractFrameAt(ctx, videoPath, ts, out); err != nil {
			continue
		}
		if st, err := os.Stat(out); err != nil || st.Size() == 0 {
			continue
		}
		paths = append(paths, out)
		kept = append(kept, ts)
	}
	if len(paths) == 0 {
		return "", dir, nil
	}

	prompt := ChunkPrompt(opts.Topic, ch.StartSec, ch.EndSec, opts.ChunkDurationSec, opts.FramesPerChunk)
	text, err := c.captioner.CaptionChunk(ctx, paths, kept, prompt)
	return text, dir, err
}

// eventLines renders layer-0 captions as "[start–end] text" lines.
func eventLines(arts []model.Artifact) string {
	lines := make([]string, len(arts))
	for i, a := range arts {
		lines[i] = fmt.Sprintf("[%.0fs–%.0fs] %s", a.StartSec, a.End(), a.Text)
	}
	return strings.Join(lines, "\n")
}
