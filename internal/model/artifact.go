package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Artifact type constants
const (
	ArtifactTranscript   = "transcript"
	ArtifactCaption      = "caption"
	ArtifactSummary      = "summary"
	ArtifactReport       = "report"
	ArtifactDenseCaption = "dense_caption"
	ArtifactScene        = "scene"
)

// Artifact is a single timestamped text unit tied to one Video.
type Artifact struct {
	ID        string   `json:"id"`
	VideoID   string   `json:"video_id"`
	Type      string   `json:"type"`
	StartSec  float64  `json:"start_sec"`
	EndSec    *float64 `json:"end_sec,omitempty"`
	Text      string   `json:"text"`
	Meta      string   `json:"meta,omitempty"` // JSON string
	CreatedAt string   `json:"created_at"`
}

// ArtifactMeta is the structured metadata stored alongside an artifact.
type ArtifactMeta struct {
	Model          string `json:"model,omitempty"`
	Topic          string `json:"topic,omitempty"`
	Layer          *int   `json:"layer,omitempty"`
	SourceChunks   int    `json:"source_chunks,omitempty"`
	PrinciplesPath string `json:"principles_path,omitempty"`
}

// ToJSON serializes ArtifactMeta to a JSON string.
func (m ArtifactMeta) ToJSON() string {
	b, _ := json.Marshal(m)
	return string(b)
}

// Layer returns a pointer to l, for ArtifactMeta.Layer.
func Layer(l int) *int { return &l }

// NewArtifact creates an Artifact. A nil end means the artifact is a point in time.
func NewArtifact(id, videoID, artifactType string, start float64, end *float64, text string, meta ArtifactMeta) Artifact {
	return Artifact{
		ID:        id,
		VideoID:   videoID,
		Type:      artifactType,
		StartSec:  start,
		EndSec:    end,
		Text:      text,
		Meta:      meta.ToJSON(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// End returns EndSec, defaulting to StartSec when absent.
func (a Artifact) End() float64 {
	if a.EndSec == nil {
		return a.StartSec
	}
	return *a.EndSec
}

// Validate checks the invariants enforced at the store boundary.
func (a Artifact) Validate() error {
	if a.ID == "" || a.VideoID == "" {
		return fmt.Errorf("%w: artifact id and video id are required", ErrInvalid)
	}
	if a.Type == "" {
		return fmt.Errorf("%w: artifact %s has no type", ErrInvalid, a.ID)
	}
	if a.StartSec < 0 {
		return fmt.Errorf("%w: artifact %s starts before 0", ErrInvalid, a.ID)
	}
	if a.EndSec != nil && *a.EndSec < a.StartSec {
		return fmt.Errorf("%w: artifact %s ends (%.3f) before it starts (%.3f)", ErrInvalid, a.ID, *a.EndSec, a.StartSec)
	}
	return nil
}

// Sec returns a pointer to s, for optional end times.
func Sec(s float64) *float64 { return &s }

// Embedding is a stored vector for one Artifact.
type Embedding struct {
	ID         string    `json:"id"`
	ArtifactID string    `json:"artifact_id"`
	Model      string    `json:"model"`
	Dim        int       `json:"dim"`
	Vector     []float32 `json:"-"`
}
