package ingest

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/yangwenmai/vidlens/internal/cascade"
	"github.com/yangwenmai/vidlens/internal/model"
)

// Default sampling settings.
const (
	DefaultFPSSample     = 0.5
	DefaultMaxFrames     = 200
	LongVideoWarnMinutes = 60
	embedBatchSize       = 100
	defaultTopic         = "general"
)

// Options controls one ingest run. It is stored on the video row as JSON.
// Captions selects the cascade and FrameCaptions the per-frame captioner;
// both are opt-in and at most one may be set.
type Options struct {
	Captions         bool    `json:"captions"`
	FrameCaptions    bool    `json:"frame_captions"`
	FPSSample        float64 `json:"fps_sample"`
	MaxFrames        int     `json:"max_frames"`
	NoEmbed          bool    `json:"no_embed"`
	Force            bool    `json:"force"`
	DryRun           bool    `json:"-"`
	DenseVision      bool    `json:"dense_vision"`
	PrinciplesPath   string  `json:"principles_path,omitempty"`
	Topic            string  `json:"topic"`
	ChunkDurationSec int     `json:"chunk_duration_sec"`
	FramesPerChunk   int     `json:"frames_per_chunk"`
}

// DefaultOptions transcribes and embeds with the default sampling
// settings. Captioning is off until requested.
func DefaultOptions() Options {
	return Options{
		FPSSample:        DefaultFPSSample,
		MaxFrames:        DefaultMaxFrames,
		Topic:            defaultTopic,
		ChunkDurationSec: cascade.DefaultChunkDurationSec,
		FramesPerChunk:   cascade.DefaultFramesPerChunk,
	}
}

// Validate rejects option combinations a run cannot honour.
func (o Options) Validate() error {
	if o.Captions && o.FrameCaptions {
		return fmt.Errorf("%w: captions and frame_captions are mutually exclusive", model.ErrInvalid)
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.FPSSample <= 0 {
		o.FPSSample = DefaultFPSSample
	}
	if o.MaxFrames <= 0 {
		o.MaxFrames = DefaultMaxFrames
	}
	if o.Topic == "" {
		o.Topic = defaultTopic
	}
	if o.ChunkDurationSec <= 0 {
		o.ChunkDurationSec = cascade.DefaultChunkDurationSec
	}
	if o.FramesPerChunk <= 0 {
		o.FramesPerChunk = cascade.DefaultFramesPerChunk
	}
	return o
}

func (o Options) toJSON() string {
	b, _ := json.Marshal(o)
	return string(b)
}

// Result is the outcome of ingesting one file. Which fields are serialized
// depends on Status.
type Result struct {
	Status           string
	VideoID          string
	Filename         string
	Reason           string
	DurationSec      float64
	ArtifactsCount   int
	ElapsedSec       float64
	Warnings         []string
	WouldCaption     bool
	WouldEmbed       bool
	WouldDenseVision bool
	Error            string
}

func (r Result) MarshalJSON() ([]byte, error) {
	m := map[string]interface{}{
		"status":   r.Status,
		"filename": r.Filename,
	}
	if r.VideoID != "" {
		m["video_id"] = r.VideoID
	}
	switch r.Status {
	case "skipped":
		m["reason"] = r.Reason
	case "dry_run":
		m["duration_sec"] = r.DurationSec
		m["would_caption"] = r.WouldCaption
		m["would_embed"] = r.WouldEmbed
		m["would_dense_vision"] = r.WouldDenseVision
	case "error":
		m["error"] = r.Error
	default:
		m["duration_sec"] = r.DurationSec
		m["artifacts_count"] = r.ArtifactsCount
		m["elapsed_sec"] = r.ElapsedSec
		if len(r.Warnings) > 0 {
			m["warnings"] = r.Warnings
		}
	}
	return json.Marshal(m)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
