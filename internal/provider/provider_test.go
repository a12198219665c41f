package provider

import (
	"context"
	"math"
	"testing"
)

func TestNew_Capabilities(t *testing.T) {
	tests := []struct {
		name        string
		settings    Settings
		transcriber bool
		embedder    bool
	}{
		{"openai full", Settings{Provider: "openai", Models: Models{Transcribe: "whisper-1", Embed: "e"}}, true, true},
		{"openai no transcribe", Settings{Provider: "openai", Models: Models{Embed: "e"}}, false, true},
		{"anthropic", Settings{Provider: "anthropic", Models: Models{Transcribe: "x", Embed: "y"}}, false, false},
		{"gemini", Settings{Provider: "gemini", Models: Models{Embed: "text-embedding-004"}}, false, true},
		{"ollama no embed", Settings{Provider: "ollama"}, false, false},
		{"stub", Settings{Provider: "stub"}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := New(tt.settings, nil)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if (set.Transcriber != nil) != tt.transcriber {
				t.Errorf("transcriber present = %v, want %v", set.Transcriber != nil, tt.transcriber)
			}
			if (set.Embedder != nil) != tt.embedder {
				t.Errorf("embedder present = %v, want %v", set.Embedder != nil, tt.embedder)
			}
			if set.ChunkCaptioner == nil || set.Completer == nil || set.FrameCaptioner == nil {
				t.Error("captioning and completion should always be available")
			}
		})
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	if _, err := New(Settings{Provider: "nope"}, nil); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewLimiter(t *testing.T) {
	if NewLimiter(0) != nil {
		t.Error("rpm 0 should mean no limiter")
	}
	l := NewLimiter(120)
	if l == nil {
		t.Fatal("expected limiter")
	}
	if got := float64(l.Limit()); got != 2 {
		t.Errorf("limit = %v per second, want 2", got)
	}
}

func TestStubEmbed_Deterministic(t *testing.T) {
	p := &StubProvider{}
	a, dim, _ := p.Embed(context.Background(), []string{"red truck", "red truck", "blue sky"})
	if dim != stubDim {
		t.Errorf("dim = %d, want %d", dim, stubDim)
	}
	for i := range a[0] {
		if a[0][i] != a[1][i] {
			t.Fatal("same text should embed identically")
		}
	}
	var norm float64
	for _, x := range a[0] {
		norm += float64(x * x)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("norm = %v, want 1", norm)
	}
}

func TestStubCaptionChunk(t *testing.T) {
	p := &StubProvider{}
	got, _ := p.CaptionChunk(context.Background(), []string{"a", "b"}, []float64{0, 30}, "")
	if got != "Stub activity across 2 frames from 0.0s to 30.0s." {
		t.Errorf("CaptionChunk = %q", got)
	}
}

func TestCaptionEach_LengthMismatch(t *testing.T) {
	_, err := captionEach([]string{"a"}, nil, func(string) (string, error) { return "", nil })
	if err == nil {
		t.Fatal("expected error for mismatched lengths")
	}
}
