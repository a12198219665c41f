package dense

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yangwenmai/vidlens/internal/export"
	"github.com/yangwenmai/vidlens/internal/model"
	"github.com/yangwenmai/vidlens/internal/provider"
)

// Options configures a dense captioning pass.
type Options struct {
	PrinciplesPath string
	TemplatePath   string
	VisionModel    string
}

// Output is what a pass produced.
type Output struct {
	Artifacts []model.Artifact
	Rows      []Row
	JSONLPath string
	MDPath    string
}

// Run captions every frame with the principle-guided prompt, builds the
// dense_caption artifacts and exports the timeline to sink. sink may be nil
// to skip the export.
func Run(ctx context.Context, captioner provider.FrameCaptioner, sink export.Sink, videoID string,
	framePaths []string, timestamps []float64, opts Options) (Output, error) {
	var out Output
	if captioner == nil {
		return out, fmt.Errorf("no frame captioner configured")
	}
	if len(framePaths) == 0 {
		return out, nil
	}

	principles, err := LoadPrinciples(opts.PrinciplesPath)
	if err != nil {
		return out, err
	}
	tmpl, err := LoadTemplate(opts.TemplatePath)
	if err != nil {
		return out, err
	}

	caps, err := captioner.CaptionFrames(ctx, framePaths, timestamps, RenderPrompt(tmpl, principles))
	if err != nil {
		return out, err
	}

	meta := model.ArtifactMeta{Model: opts.VisionModel, PrinciplesPath: opts.PrinciplesPath}
	for _, c := range caps {
		out.Rows = append(out.Rows, Row{TimestampSec: c.TimestampSec, Text: c.Text, FramePath: c.FramePath})
		out.Artifacts = append(out.Artifacts, model.NewArtifact(uuid.NewString(), videoID,
			model.ArtifactDenseCaption, c.TimestampSec, nil, c.Text, meta))
	}

	if sink != nil {
		out.JSONLPath, out.MDPath, err = Export(ctx, sink, videoID, out.Rows)
		if err != nil {
			return out, fmt.Errorf("export dense timeline: %w", err)
		}
	}
	return out, nil
}
