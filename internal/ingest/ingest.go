// Package ingest sequences probing, transcription, captioning and embedding
// of a video into the artifact store.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/yangwenmai/vidlens/internal/cascade"
	"github.com/yangwenmai/vidlens/internal/export"
	"github.com/yangwenmai/vidlens/internal/identity"
	"github.com/yangwenmai/vidlens/internal/logger"
	"github.com/yangwenmai/vidlens/internal/media"
	"github.com/yangwenmai/vidlens/internal/model"
	"github.com/yangwenmai/vidlens/internal/provider"
)

// Store is the persistence the orchestrator writes through.
type Store interface {
	GetVideoByHash(ctx context.Context, hash string) (*model.Video, error)
	InsertVideo(ctx context.Context, v model.Video) error
	UpdateVideoStatus(ctx context.Context, id, status string, errorMessage *string) error
	DeleteVideo(ctx context.Context, id string) error
	InsertArtifacts(ctx context.Context, artifacts []model.Artifact) error
	InsertEmbeddings(ctx context.Context, embeddings []model.Embedding) error
}

// Media probes and extracts from video files.
type Media interface {
	Probe(ctx context.Context, path string) (model.MediaInfo, error)
	ExtractAudio(ctx context.Context, path string) (string, error)
	ExtractFrames(ctx context.Context, path string, fps float64, maxFrames int) (media.FrameSet, error)
}

// Cascader runs the three-layer captioning cascade.
type Cascader interface {
	Run(ctx context.Context, videoPath, videoID string, durationSec float64, opts cascade.Options) (cascade.Result, error)
}

// Deps wires the orchestrator. Nil capabilities are reported as warnings
// when a run needs them.
type Deps struct {
	Store          Store
	Media          Media
	Transcriber    provider.Transcriber
	Cascade        Cascader
	FrameCaptioner provider.FrameCaptioner
	Embedder       provider.Embedder
	Sink           export.Sink
	ProviderName   string
	Models         provider.Models
	DenseTemplate  string
	Log            *logger.Logger
}

// Orchestrator ingests video files one at a time.
type Orchestrator struct {
	Deps
	log *logger.Logger
}

// New creates an Orchestrator.
func New(d Deps) *Orchestrator {
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	if d.ProviderName == "" {
		d.ProviderName = "current"
	}
	return &Orchestrator{Deps: d, log: log}
}

// run carries the state of one ingest call.
type run struct {
	path     string
	video    model.Video
	opts     Options
	log      *logger.Logger
	stage    string
	produced []model.Artifact
	count    int
	warnings []string
	audio    string
	frames   media.FrameSet
}

func (r *run) warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.warnings = append(r.warnings, msg)
	r.log.Warn(msg)
}

func (r *run) cleanup() {
	if r.audio != "" {
		os.Remove(r.audio)
	}
	if r.frames.Dir != "" {
		os.RemoveAll(r.frames.Dir)
	}
}

// Ingest processes a single video file. Stage failures become warnings on
// the result; a returned error means the ingest was aborted before the
// video row existed, or by cancellation, and in the latter case the row is
// marked as errored.
func (o *Orchestrator) Ingest(ctx context.Context, path string, opts Options) (*Result, error) {
	start := time.Now()
	if err := opts.Validate(); err != nil {
		return nil, &model.IngestError{Path: path, Stage: "options", Err: err}
	}
	opts = opts.withDefaults()

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &model.IngestError{Path: path, Stage: "open", Err: err}
	}
	st, err := os.Stat(abs)
	if err != nil {
		return nil, &model.IngestError{Path: abs, Stage: "open", Err: errors.Wrap(err, "file not found")}
	}
	if st.IsDir() {
		return nil, &model.IngestError{Path: abs, Stage: "open", Err: errors.New("not a file")}
	}
	filename := filepath.Base(abs)
	log := o.log.With("filename", filename)

	fp, err := identity.Compute(abs)
	if err != nil {
		return nil, &model.IngestError{Path: abs, Stage: "fingerprint", Err: err}
	}
	existing, err := o.Store.GetVideoByHash(ctx, fp.Hash)
	if err != nil {
		return nil, &model.IngestError{Path: abs, Stage: "lookup", Err: err}
	}
	if existing != nil {
		if !opts.Force {
			log.Info("skipping, already ingested", "video_id", existing.ID)
			return &Result{Status: model.StatusSkipped, VideoID: existing.ID, Filename: existing.Filename, Reason: "already_ingested"}, nil
		}
		log.Info("re-ingesting with force", "previous_id", existing.ID)
		if err := o.Store.DeleteVideo(ctx, existing.ID); err != nil {
			return nil, &model.IngestError{Path: abs, Stage: "delete", Err: err}
		}
	}

	log.Info("probing")
	info, err := o.Media.Probe(ctx, abs)
	if err != nil {
		return nil, &model.IngestError{Path: abs, Stage: "probe", Err: err}
	}
	if info.SizeBytes == 0 {
		info.SizeBytes = fp.Size
	}

	video := model.NewVideo(uuid.NewString(), abs, filename, fp.Hash, info, opts.toJSON())
	if opts.DryRun {
		return &Result{
			Status:           model.StatusDryRun,
			VideoID:          video.ID,
			Filename:         filename,
			DurationSec:      info.DurationSec,
			WouldCaption:     opts.Captions,
			WouldEmbed:       !opts.NoEmbed,
			WouldDenseVision: opts.DenseVision,
		}, nil
	}

	if info.DurationSec > LongVideoWarnMinutes*60 {
		log.Warn("long video, ingest may be slow and costly", "minutes", int(info.DurationSec/60))
	}

	if err := o.Store.InsertVideo(ctx, video); err != nil {
		return nil, &model.IngestError{Path: abs, Stage: "insert", Err: err}
	}

	r := &run{path: abs, video: video, opts: opts, log: log.With("video_id", video.ID)}
	defer r.cleanup()

	if err := o.process(ctx, r); err != nil {
		msg := err.Error()
		if uerr := o.Store.UpdateVideoStatus(context.WithoutCancel(ctx), video.ID, model.StatusError, &msg); uerr != nil {
			r.log.Error("failed to record error status", "error", uerr)
		}
		r.log.Error("ingest failed", "stage", r.stage, "error", err)
		return nil, errors.Wrapf(&model.IngestError{Path: abs, Stage: r.stage, Err: err}, "ingest failed for %s", filename)
	}

	status := model.StatusComplete
	if len(r.warnings) > 0 {
		status = model.StatusCompleteWithWarnings
	}
	r.log.Info("ingest finished", "status", status, "artifacts", r.count)
	return &Result{
		Status:         status,
		VideoID:        video.ID,
		Filename:       filename,
		DurationSec:    round2(info.DurationSec),
		ArtifactsCount: r.count,
		ElapsedSec:     round2(time.Since(start).Seconds()),
		Warnings:       r.warnings,
	}, nil
}

// IngestPath ingests a file, or every video under a directory in order.
// A failing file is reported in its result and does not stop the others.
func (o *Orchestrator) IngestPath(ctx context.Context, path string, opts Options) ([]*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	files, err := Discover(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no video files found at: %s", path)
	}
	o.log.Info("found videos to ingest", "count", len(files))

	results := make([]*Result, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := o.Ingest(ctx, f, opts)
		if err != nil {
			o.log.Error("ingest failed", "path", f, "error", err)
			res = &Result{Status: model.StatusError, Filename: filepath.Base(f), Error: err.Error()}
		}
		results = append(results, res)
	}
	return results, nil
}

// process runs the stages after the video row exists. Stage failures,
// including failed artifact or embedding writes, become warnings; only
// cancellation and the final status write are returned.
func (o *Orchestrator) process(ctx context.Context, r *run) error {
	stages := []struct {
		name string
		fn   func(context.Context, *run)
	}{
		{"transcribe", o.transcribeStage},
		{"caption", o.cascadeStage},
		{"frame_caption", o.frameCaptionStage},
		{"dense_vision", o.denseStage},
		{"embed", o.embedStage},
	}
	for _, s := range stages {
		r.stage = s.name
		if err := ctx.Err(); err != nil {
			return err
		}
		s.fn(ctx, r)
	}

	r.stage = "finalize"
	status := model.StatusComplete
	if len(r.warnings) > 0 {
		status = model.StatusCompleteWithWarnings
	}
	return o.Store.UpdateVideoStatus(ctx, r.video.ID, status, nil)
}

// persist stores a batch produced by a stage and tracks it for embedding.
// A failed batch is not tracked, so nothing of it is embedded.
func (o *Orchestrator) persist(ctx context.Context, r *run, arts []model.Artifact) error {
	if len(arts) == 0 {
		return nil
	}
	if err := o.Store.InsertArtifacts(ctx, arts); err != nil {
		return errors.Wrapf(err, "store %d artifacts", len(arts))
	}
	r.produced = append(r.produced, arts...)
	r.count += len(arts)
	return nil
}
