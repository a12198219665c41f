package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"path/filepath"
	"strings"
)

// stubDim is the dimensionality of StubProvider vectors.
const stubDim = 16

// StubProvider returns deterministic offline results (for development/testing).
type StubProvider struct{}

func (p *StubProvider) Transcribe(_ context.Context, audioPath string) ([]Segment, error) {
	return []Segment{
		{StartSec: 0, EndSec: 5, Text: "Stub transcript of " + filepath.Base(audioPath) + "."},
	}, nil
}

func (p *StubProvider) CaptionFrames(_ context.Context, framePaths []string, timestamps []float64, _ string) ([]Caption, error) {
	return captionEach(framePaths, timestamps, func(fp string) (string, error) {
		return "Stub caption for " + filepath.Base(fp) + ".", nil
	})
}

func (p *StubProvider) CaptionChunk(_ context.Context, framePaths []string, timestamps []float64, _ string) (string, error) {
	if len(timestamps) == 0 {
		return "STATIC", nil
	}
	return fmt.Sprintf("Stub activity across %d frames from %.1fs to %.1fs.",
		len(framePaths), timestamps[0], timestamps[len(timestamps)-1]), nil
}

// Embed hashes words into a fixed-size unit vector, so texts sharing words
// score higher under cosine similarity.
func (p *StubProvider) Embed(_ context.Context, texts []string) ([][]float32, int, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, stubDim)
		for _, w := range strings.Fields(strings.ToLower(t)) {
			h := fnv.New32a()
			h.Write([]byte(w))
			v[h.Sum32()%stubDim]++
		}
		var norm float64
		for _, x := range v {
			norm += float64(x * x)
		}
		if norm > 0 {
			n := float32(math.Sqrt(norm))
			for j := range v {
				v[j] /= n
			}
		}
		out[i] = v
	}
	return out, stubDim, nil
}

func (p *StubProvider) EmbedModel() string { return "stub-embed" }

func (p *StubProvider) Complete(_ context.Context, _, user string) (string, error) {
	lines := strings.Count(user, "\n") + 1
	return fmt.Sprintf("Stub answer based on %d lines of input.", lines), nil
}
