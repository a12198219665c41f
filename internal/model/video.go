package model

import (
	"fmt"
	"time"
)

// Video status constants
const (
	StatusPending              = "pending"
	StatusComplete             = "complete"
	StatusCompleteWithWarnings = "complete_with_warnings"
	StatusError                = "error"
	StatusSkipped              = "skipped"
	StatusDryRun               = "dry_run"
)

// Video is one ingested media file, unique by content fingerprint.
type Video struct {
	ID            string   `json:"video_id"`
	FilePath      string   `json:"file_path"`
	FileHash      string   `json:"file_hash"`
	FileSizeBytes int64    `json:"file_size_bytes"`
	Filename      string   `json:"filename"`
	DurationSec   float64  `json:"duration_sec"`
	Width         *int     `json:"width,omitempty"`
	Height        *int     `json:"height,omitempty"`
	FPS           *float64 `json:"fps,omitempty"`
	Codec         *string  `json:"codec,omitempty"`
	Bitrate       *int64   `json:"bitrate,omitempty"`
	Status        string   `json:"status"`
	ErrorMessage  *string  `json:"error_message,omitempty"`
	IngestConfig  string   `json:"ingest_config,omitempty"` // JSON string
	IngestedAt    string   `json:"ingested_at"`
}

// VideoSummary is a row of the video listing.
type VideoSummary struct {
	ID                string  `json:"video_id"`
	Filename          string  `json:"filename"`
	DurationSec       float64 `json:"duration_sec"`
	DurationFormatted string  `json:"duration_formatted"`
	Status            string  `json:"status"`
	ArtifactsCount    int     `json:"artifacts_count"`
}

// VideoInfo is a Video together with per-type artifact counts.
type VideoInfo struct {
	ID                string         `json:"video_id"`
	Filename          string         `json:"filename"`
	FilePath          string         `json:"file_path"`
	DurationSec       float64        `json:"duration_sec"`
	DurationFormatted string         `json:"duration_formatted"`
	Resolution        string         `json:"resolution,omitempty"`
	Status            string         `json:"status"`
	ErrorMessage      *string        `json:"error_message,omitempty"`
	Artifacts         map[string]int `json:"artifacts"`
	IngestedAt        string         `json:"ingested_at"`
}

// MediaInfo is the technical metadata reported by a media probe.
type MediaInfo struct {
	DurationSec float64  `json:"duration_sec"`
	Width       *int     `json:"width,omitempty"`
	Height      *int     `json:"height,omitempty"`
	FPS         *float64 `json:"fps,omitempty"`
	Codec       *string  `json:"codec,omitempty"`
	Bitrate     *int64   `json:"bitrate,omitempty"`
	SizeBytes   int64    `json:"size_bytes"`
}

// NewVideo creates a pending Video from probed media metadata.
func NewVideo(id, path, filename, hash string, info MediaInfo, ingestConfig string) Video {
	return Video{
		ID:            id,
		FilePath:      path,
		FileHash:      hash,
		FileSizeBytes: info.SizeBytes,
		Filename:      filename,
		DurationSec:   info.DurationSec,
		Width:         info.Width,
		Height:        info.Height,
		FPS:           info.FPS,
		Codec:         info.Codec,
		Bitrate:       info.Bitrate,
		Status:        StatusPending,
		IngestConfig:  ingestConfig,
		IngestedAt:    time.Now().UTC().Format(time.RFC3339),
	}
}

// Resolution returns "WxH", or "" when either dimension is unknown.
func (v Video) Resolution() string {
	if v.Width == nil || v.Height == nil || *v.Width == 0 || *v.Height == 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", *v.Width, *v.Height)
}

// IsTerminal reports whether status is a final ingest state.
func IsTerminal(status string) bool {
	switch status {
	case StatusComplete, StatusCompleteWithWarnings, StatusError:
		return true
	}
	return false
}

// FormatTimestamp renders seconds as HH:MM:SS.
func FormatTimestamp(secs float64) string {
	if secs < 0 {
		secs = 0
	}
	total := int(secs)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
