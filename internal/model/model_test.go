package model

import (
	"errors"
	"strings"
	"testing"
)

func TestNewVideo(t *testing.T) {
	w, h := 1920, 1080
	info := MediaInfo{DurationSec: 90, Width: &w, Height: &h, SizeBytes: 4096}
	v := NewVideo("vid-1", "/videos/a.mp4", "a.mp4", "abc", info, `{"captions":true}`)

	if v.ID != "vid-1" {
		t.Errorf("ID = %q, want %q", v.ID, "vid-1")
	}
	if v.Status != StatusPending {
		t.Errorf("Status = %q, want %q", v.Status, StatusPending)
	}
	if v.FileSizeBytes != 4096 {
		t.Errorf("FileSizeBytes = %d, want 4096", v.FileSizeBytes)
	}
	if v.IngestedAt == "" {
		t.Error("IngestedAt should not be empty")
	}
	if got := v.Resolution(); got != "1920x1080" {
		t.Errorf("Resolution = %q, want %q", got, "1920x1080")
	}
}

func TestVideoResolution_Unknown(t *testing.T) {
	w := 640
	if got := (Video{Width: &w}).Resolution(); got != "" {
		t.Errorf("Resolution = %q, want empty", got)
	}
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		secs float64
		want string
	}{
		{0, "00:00:00"},
		{59.9, "00:00:59"},
		{61, "00:01:01"},
		{3725, "01:02:05"},
		{-3, "00:00:00"},
	}
	for _, tt := range tests {
		if got := FormatTimestamp(tt.secs); got != tt.want {
			t.Errorf("FormatTimestamp(%v) = %q, want %q", tt.secs, got, tt.want)
		}
	}
}

func TestArtifactEnd(t *testing.T) {
	a := Artifact{StartSec: 12}
	if a.End() != 12 {
		t.Errorf("End() = %v, want 12 when EndSec is nil", a.End())
	}
	a.EndSec = Sec(20)
	if a.End() != 20 {
		t.Errorf("End() = %v, want 20", a.End())
	}
}

func TestArtifactValidate(t *testing.T) {
	tests := []struct {
		name    string
		a       Artifact
		wantErr bool
	}{
		{"point in time", Artifact{ID: "a", VideoID: "v", Type: ArtifactCaption, StartSec: 3}, false},
		{"span", Artifact{ID: "a", VideoID: "v", Type: ArtifactCaption, StartSec: 3, EndSec: Sec(5)}, false},
		{"zero length span", Artifact{ID: "a", VideoID: "v", Type: ArtifactCaption, StartSec: 3, EndSec: Sec(3)}, false},
		{"end before start", Artifact{ID: "a", VideoID: "v", Type: ArtifactCaption, StartSec: 3, EndSec: Sec(2)}, true},
		{"missing type", Artifact{ID: "a", VideoID: "v", StartSec: 3}, true},
		{"missing video", Artifact{ID: "a", Type: ArtifactCaption}, true},
		{"negative start", Artifact{ID: "a", VideoID: "v", Type: ArtifactCaption, StartSec: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.a.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestNewArtifact(t *testing.T) {
	a := NewArtifact("a-1", "vid-1", ArtifactSummary, 0, Sec(90), "text", ArtifactMeta{Model: "gpt-4-1", Layer: Layer(1)})
	if a.Type != ArtifactSummary {
		t.Errorf("Type = %q, want %q", a.Type, ArtifactSummary)
	}
	if a.CreatedAt == "" {
		t.Error("CreatedAt should not be empty")
	}
	if !strings.Contains(a.Meta, `"layer":1`) {
		t.Errorf("Meta missing layer, got %s", a.Meta)
	}
	if strings.Contains(a.Meta, "topic") {
		t.Errorf("Meta should omit empty topic, got %s", a.Meta)
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []string{StatusComplete, StatusCompleteWithWarnings, StatusError} {
		if !IsTerminal(s) {
			t.Errorf("IsTerminal(%q) = false, want true", s)
		}
	}
	for _, s := range []string{StatusPending, StatusSkipped, StatusDryRun} {
		if IsTerminal(s) {
			t.Errorf("IsTerminal(%q) = true, want false", s)
		}
	}
}

func TestProviderErrorRetryable(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{429, true},
		{500, true},
		{503, true},
		{400, false},
		{401, false},
		{0, false},
	}
	for _, tt := range tests {
		e := &ProviderError{Provider: "openai", Op: "chat", StatusCode: tt.code}
		if got := e.Retryable(); got != tt.want {
			t.Errorf("Retryable() for %d = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestIngestErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := &IngestError{Path: "a.mp4", Stage: "finalize", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("IngestError should unwrap to its cause")
	}
	if err.StepName() != "finalize" {
		t.Errorf("StepName = %q, want %q", err.StepName(), "finalize")
	}
}
