// Package app wires configuration, storage, media tools and providers into
// the services shared by the CLI and the HTTP server.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yangwenmai/vidlens/internal/audio"
	"github.com/yangwenmai/vidlens/internal/cascade"
	"github.com/yangwenmai/vidlens/internal/config"
	"github.com/yangwenmai/vidlens/internal/export"
	"github.com/yangwenmai/vidlens/internal/ingest"
	"github.com/yangwenmai/vidlens/internal/logger"
	"github.com/yangwenmai/vidlens/internal/media"
	"github.com/yangwenmai/vidlens/internal/provider"
	"github.com/yangwenmai/vidlens/internal/search"
	"github.com/yangwenmai/vidlens/internal/store"
)

// App is a fully wired vidlens instance.
type App struct {
	Config    config.Config
	Log       *logger.Logger
	Store     *store.Store
	Media     *media.Tools
	Providers *provider.Set
	Ingest    *ingest.Orchestrator
	Retriever *search.Retriever
	Composer  *search.Composer

	db *sql.DB
}

// Open builds an App from cfg. The caller must Close it.
func Open(ctx context.Context, cfg config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s, err := store.New(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init store: %w", err)
	}

	set, err := provider.New(cfg.ProviderSettings(), log)
	if err != nil {
		db.Close()
		return nil, err
	}

	sink, err := newSink(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	tools := media.New(media.WithLogger(log.With("component", "media")))

	deps := ingest.Deps{
		Store:          s,
		Media:          tools,
		FrameCaptioner: set.FrameCaptioner,
		Embedder:       set.Embedder,
		Sink:           sink,
		ProviderName:   set.Name,
		Models: provider.Models{
			Transcribe: cfg.TranscribeModel,
			Vision:     cfg.VisionModel,
			Embed:      cfg.EmbedModel,
			Chat:       cfg.ChatModel,
		},
		DenseTemplate: cfg.DenseTemplate,
		Log:           log.With("component", "ingest"),
	}
	if set.Transcriber != nil {
		deps.Transcriber = audio.NewChunker(tools, set.Transcriber, log.With("component", "audio"))
	}
	if set.ChunkCaptioner != nil {
		deps.Cascade = cascade.New(tools, set.ChunkCaptioner, set.Completer, log.With("component", "cascade"))
	}

	retriever := search.NewRetriever(s, set.Embedder, log.With("component", "search"))
	log.Info("vidlens ready", "provider", set.Name, "db", cfg.DBPath)

	return &App{
		Config:    cfg,
		Log:       log,
		Store:     s,
		Media:     tools,
		Providers: set,
		Ingest:    ingest.New(deps),
		Retriever: retriever,
		Composer:  search.NewComposer(retriever, set.Completer, log.With("component", "ask")),
		db:        db,
	}, nil
}

// IngestOptions returns the ingest options configured by default.
func (a *App) IngestOptions() ingest.Options {
	return DefaultIngestOptions(a.Config)
}

// DefaultIngestOptions maps the sampling settings of cfg onto ingest options.
func DefaultIngestOptions(cfg config.Config) ingest.Options {
	opts := ingest.DefaultOptions()
	opts.FPSSample = cfg.FPSSample
	opts.MaxFrames = cfg.MaxFrames
	opts.ChunkDurationSec = cfg.ChunkDurationSec
	opts.FramesPerChunk = cfg.FramesPerChunk
	opts.Topic = cfg.Topic
	opts.PrinciplesPath = cfg.PrinciplesPath
	return opts
}

// Close releases the database.
func (a *App) Close() error {
	return a.db.Close()
}

func newSink(ctx context.Context, cfg config.Config) (export.Sink, error) {
	if cfg.S3.Bucket != "" {
		s3, err := export.NewS3Sink(ctx, export.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		})
		if err != nil {
			return nil, err
		}
		return s3, nil
	}
	if cfg.DenseOutputDir == "" {
		return nil, nil
	}
	return export.NewDirSink(cfg.DenseOutputDir), nil
}
