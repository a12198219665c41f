// Package audio transcribes extracted audio, splitting files that exceed
// the provider's upload limit and stitching the segment timelines back together.
package audio

import (
	"context"
	"fmt"
	"os"

	"github.com/yangwenmai/vidlens/internal/logger"
	"github.com/yangwenmai/vidlens/internal/model"
	"github.com/yangwenmai/vidlens/internal/provider"
)

const (
	// MaxUploadBytes is the single-request audio upload limit.
	MaxUploadBytes = 25 * 1024 * 1024

	minSegmentSec     = 60
	maxSegmentSec     = 1200
	defaultSegmentSec = 600
)

// Media is the subset of media.Tools the chunker needs.
type Media interface {
	Probe(ctx context.Context, path string) (model.MediaInfo, error)
	SplitAudio(ctx context.Context, path string, segSec int, dir string) ([]string, error)
	TempDir(pattern string) (string, error)
}

// Chunker transcribes audio directly or in segments, depending on size.
type Chunker struct {
	media       Media
	transcriber provider.Transcriber
	maxBytes    int64
	log         *logger.Logger
}

// NewChunker creates a Chunker using the default upload limit.
func NewChunker(m Media, t provider.Transcriber, log *logger.Logger) *Chunker {
	if log == nil {
		log = logger.Nop()
	}
	return &Chunker{media: m, transcriber: t, maxBytes: MaxUploadBytes, log: log}
}

// Transcribe returns the transcript of audioPath on one timeline. Files at
// or under the limit go out in a single request.
//
// Segments are hard cuts with no overlap, so a word spoken exactly at a
// boundary can be clipped or duplicated.
func (c *Chunker) Transcribe(ctx context.Context, audioPath string) ([]provider.Segment, error) {
	st, err := os.Stat(audioPath)
	if err != nil {
		return nil, err
	}
	if st.Size() <= c.maxBytes {
		return c.transcriber.Transcribe(ctx, audioPath)
	}

	segSec := c.SegmentSeconds(ctx, audioPath, st.Size())
	c.log.Info("audio over upload limit, using chunked transcription",
		"size_mb", st.Size()/1024/1024, "segment_sec", segSec)

	dir, err := c.media.TempDir("vidlens-audio-chunks-")
	if err != nil {
		return nil, fmt.Errorf("create chunk dir: %w", err)
	}
	defer os.RemoveAll(dir)

	chunks, err := c.media.SplitAudio(ctx, audioPath, segSec, dir)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return c.transcriber.Transcribe(ctx, audioPath)
	}

	var all []provider.Segment
	offset := 0.0
	for i, ch := range chunks {
		dur := float64(segSec)
		if info, err := c.media.Probe(ctx, ch); err == nil && info.DurationSec > 0 {
			dur = info.DurationSec
		}

		segs, err := c.transcriber.Transcribe(ctx, ch)
		if err != nil {
			c.log.Warn("audio chunk transcription failed", "chunk", i, "offset_sec", offset, "error", err)
		}
		for _, s := range segs {
			s.StartSec += offset
			s.EndSec += offset
			all = append(all, s)
		}
		os.Remove(ch)
		offset += dur
	}
	return all, nil
}

// SegmentSeconds picks a segment length that keeps each piece under the
// limit minus 1 MB of headroom, from the file's average byte rate.
func (c *Chunker) SegmentSeconds(ctx context.Context, audioPath string, size int64) int {
	if size <= 0 {
		return defaultSegmentSec
	}
	target := float64(c.maxBytes - 1024*1024)

	duration := 1.0
	if info, err := c.media.Probe(ctx, audioPath); err == nil && info.DurationSec > duration {
		duration = info.DurationSec
	}
	bytesPerSec := float64(size) / duration
	if bytesPerSec < 1 {
		bytesPerSec = 1
	}

	secs := target / bytesPerSec
	if secs < minSegmentSec {
		secs = minSegmentSec
	}
	if secs > maxSegmentSec {
		secs = maxSegmentSec
	}
	return int(secs)
}
