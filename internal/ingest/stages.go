package ingest

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/yangwenmai/vidlens/internal/cascade"
	"github.com/yangwenmai/vidlens/internal/dense"
	"github.com/yangwenmai/vidlens/internal/model"
)

func (o *Orchestrator) transcribeStage(ctx context.Context, r *run) {
	if o.Transcriber == nil {
		r.warn("Transcription disabled (provider=%s).", o.ProviderName)
		return
	}

	r.log.Info("extracting audio")
	audioPath, err := o.Media.ExtractAudio(ctx, r.path)
	if err != nil {
		r.warn("Transcription skipped: %v", err)
		return
	}
	r.audio = audioPath

	r.log.Info("transcribing")
	segs, err := o.Transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		r.warn("Transcription skipped: %v", err)
		return
	}
	r.log.Info("transcript segments", "count", len(segs))

	meta := model.ArtifactMeta{Model: o.Models.Transcribe}
	arts := make([]model.Artifact, 0, len(segs))
	for _, s := range segs {
		end := s.EndSec
		if end < s.StartSec {
			end = s.StartSec
		}
		arts = append(arts, model.NewArtifact(uuid.NewString(), r.video.ID, model.ArtifactTranscript,
			s.StartSec, model.Sec(end), s.Text, meta))
	}
	if err := o.persist(ctx, r, arts); err != nil {
		r.warn("Transcription skipped: %v", err)
	}
}

func (o *Orchestrator) cascadeStage(ctx context.Context, r *run) {
	if !r.opts.Captions {
		return
	}
	if o.Cascade == nil {
		r.warn("Cascade captioning skipped: no chunk captioner configured")
		return
	}
	res, err := o.Cascade.Run(ctx, r.path, r.video.ID, r.video.DurationSec, cascade.Options{
		Topic:            r.opts.Topic,
		ChunkDurationSec: r.opts.ChunkDurationSec,
		FramesPerChunk:   r.opts.FramesPerChunk,
		VisionModel:      o.Models.Vision,
		ChatModel:        o.Models.Chat,
	})
	if err != nil {
		r.warn("Cascade captioning skipped: %v", err)
		return
	}
	if err := o.persist(ctx, r, res.All()); err != nil {
		r.warn("Cascade captioning skipped: %v", err)
	}
}

func (o *Orchestrator) frameCaptionStage(ctx context.Context, r *run) {
	if !r.opts.FrameCaptions {
		return
	}
	if o.FrameCaptioner == nil {
		r.warn("Frame captioning skipped: no frame captioner configured")
		return
	}
	r.log.Info("frame captioning", "fps", r.opts.FPSSample, "max_frames", r.opts.MaxFrames)
	if err := o.ensureFrames(ctx, r); err != nil {
		r.warn("Frame captioning skipped: %v", err)
		return
	}
	if len(r.frames.Frames) == 0 {
		return
	}

	caps, err := o.FrameCaptioner.CaptionFrames(ctx, r.frames.Paths(), r.frames.Timestamps(), "")
	if err != nil {
		r.warn("Frame captioning skipped: %v", err)
		return
	}
	meta := model.ArtifactMeta{Model: o.Models.Vision}
	arts := make([]model.Artifact, 0, len(caps))
	for _, c := range caps {
		arts = append(arts, model.NewArtifact(uuid.NewString(), r.video.ID, model.ArtifactCaption,
			c.TimestampSec, nil, c.Text, meta))
	}
	if err := o.persist(ctx, r, arts); err != nil {
		r.warn("Frame captioning skipped: %v", err)
	}
}

func (o *Orchestrator) denseStage(ctx context.Context, r *run) {
	if !r.opts.DenseVision {
		return
	}
	if err := o.ensureFrames(ctx, r); err != nil {
		r.warn("Dense vision skipped: %v", err)
		return
	}
	if len(r.frames.Frames) == 0 {
		return
	}

	r.log.Info("dense vision captioning", "frames", len(r.frames.Frames))
	out, err := dense.Run(ctx, o.FrameCaptioner, o.Sink, r.video.ID, r.frames.Paths(), r.frames.Timestamps(), dense.Options{
		PrinciplesPath: r.opts.PrinciplesPath,
		TemplatePath:   o.DenseTemplate,
		VisionModel:    o.Models.Vision,
	})
	if perr := o.persist(ctx, r, out.Artifacts); perr != nil {
		r.warn("Dense vision skipped: %v", perr)
		return
	}
	if err != nil {
		r.warn("Dense vision skipped: %v", err)
		return
	}
	if out.JSONLPath != "" {
		r.log.Info("dense timeline exported", "jsonl", out.JSONLPath, "md", out.MDPath)
	}
}

// ensureFrames extracts frames once per run; later stages reuse them.
func (o *Orchestrator) ensureFrames(ctx context.Context, r *run) error {
	if r.frames.Dir != "" {
		return nil
	}
	fs, err := o.Media.ExtractFrames(ctx, r.path, r.opts.FPSSample, r.opts.MaxFrames)
	if err != nil {
		return err
	}
	r.frames = fs
	return nil
}

func (o *Orchestrator) embedStage(ctx context.Context, r *run) {
	if r.opts.NoEmbed {
		return
	}
	if o.Embedder == nil {
		r.warn("Embeddings disabled (provider=%s).", o.ProviderName)
		return
	}
	if len(r.produced) == 0 {
		return
	}

	r.log.Info("generating embeddings", "artifacts", len(r.produced))
	embedModel := o.Embedder.EmbedModel()
	for i := 0; i < len(r.produced); i += embedBatchSize {
		end := i + embedBatchSize
		if end > len(r.produced) {
			end = len(r.produced)
		}
		batch := r.produced[i:end]
		texts := make([]string, len(batch))
		for j, a := range batch {
			texts[j] = a.Text
		}

		vectors, dim, err := o.Embedder.Embed(ctx, texts)
		if err == nil && len(vectors) != len(batch) {
			err = errors.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(batch))
		}
		if err != nil {
			r.warn("Embeddings skipped: %v", err)
			return
		}

		embs := make([]model.Embedding, len(batch))
		for j, a := range batch {
			embs[j] = model.Embedding{
				ID:         uuid.NewString(),
				ArtifactID: a.ID,
				Model:      embedModel,
				Dim:        dim,
				Vector:     vectors[j],
			}
		}
		if err := o.Store.InsertEmbeddings(ctx, embs); err != nil {
			r.warn("Embeddings skipped: %v", errors.Wrap(err, "store embeddings"))
			return
		}
	}
	r.log.Info("embedded artifacts", "count", len(r.produced))
}
