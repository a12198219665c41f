package store

import (
	"context"

	"github.com/yangwenmai/vidlens/internal/model"
)

// VideoReader provides read access to videos.
type VideoReader interface {
	GetVideo(ctx context.Context, id string) (*model.Video, error)
	GetVideoByHash(ctx context.Context, hash string) (*model.Video, error)
	ListVideos(ctx context.Context) ([]model.VideoSummary, error)
	GetVideoInfo(ctx context.Context, id string) (*model.VideoInfo, error)
}

// VideoWriter provides write access to videos.
type VideoWriter interface {
	InsertVideo(ctx context.Context, v model.Video) error
	UpdateVideoStatus(ctx context.Context, id, status string, errorMessage *string) error
	DeleteVideo(ctx context.Context, id string) error
}

// ArtifactReader provides read access to artifacts.
type ArtifactReader interface {
	GetArtifacts(ctx context.Context, videoID, artifactType string) ([]model.Artifact, error)
	GetArtifact(ctx context.Context, id string) (*model.Artifact, error)
	CountArtifacts(ctx context.Context, videoID string) (int, error)
}

// ArtifactWriter provides write access to artifacts.
type ArtifactWriter interface {
	InsertArtifacts(ctx context.Context, artifacts []model.Artifact) error
	UpdateArtifactText(ctx context.Context, id, text string) error
	DeleteArtifact(ctx context.Context, id string) error
}

// EmbeddingStore provides access to embedding persistence.
type EmbeddingStore interface {
	InsertEmbeddings(ctx context.Context, embeddings []model.Embedding) error
	EmbeddingsFor(ctx context.Context, artifactIDs []string, embedModel string) (map[string][]float32, error)
}

// Searcher runs lexical queries over artifact text.
type Searcher interface {
	SearchFTS(ctx context.Context, query string, limit int, videoID string) ([]model.SearchResult, error)
}

// Repository combines all operations for the API layer.
type Repository interface {
	VideoReader
	VideoWriter
	ArtifactReader
	ArtifactWriter
	EmbeddingStore
	Searcher
}

var _ Repository = (*Store)(nil)
