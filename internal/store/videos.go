package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/yangwenmai/vidlens/internal/model"
)

const videoColumns = `id, file_path, file_hash, file_size_bytes, filename, duration_sec, width, height, fps, codec, bitrate, status, error_message, ingest_config, ingested_at`

// InsertVideo inserts a new video. A second video with the same fingerprint
// is rejected with model.ErrDuplicate.
func (s *Store) InsertVideo(ctx context.Context, v model.Video) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO videos (`+videoColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.FilePath, v.FileHash, v.FileSizeBytes, v.Filename, v.DurationSec,
		v.Width, v.Height, v.FPS, v.Codec, v.Bitrate,
		v.Status, v.ErrorMessage, v.IngestConfig, v.IngestedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert video %s: %w", v.Filename, model.ErrDuplicate)
		}
		return fmt.Errorf("insert video %s: %w", v.Filename, err)
	}
	return nil
}

// GetVideo returns the video with the given id.
func (s *Store) GetVideo(ctx context.Context, id string) (*model.Video, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("video %s: %w", id, model.ErrNotFound)
	}
	return v, err
}

// GetVideoByHash returns the video with the given fingerprint, or nil if none exists.
func (s *Store) GetVideoByHash(ctx context.Context, hash string) (*model.Video, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE file_hash = ?`, hash)
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

// UpdateVideoStatus sets the lifecycle status and error message of a video.
func (s *Store) UpdateVideoStatus(ctx context.Context, id, status string, errorMessage *string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE videos SET status = ?, error_message = ? WHERE id = ?`, status, errorMessage, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("video %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// DeleteVideo removes a video. Artifacts, embeddings and FTS entries go with it.
func (s *Store) DeleteVideo(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("video %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// ListVideos returns every video with its artifact count, newest first.
func (s *Store) ListVideos(ctx context.Context) ([]model.VideoSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id, v.filename, v.duration_sec, v.status, COUNT(a.seq)
		FROM videos v
		LEFT JOIN artifacts a ON a.video_id = v.id
		GROUP BY v.id
		ORDER BY v.ingested_at DESC, v.rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.VideoSummary
	for rows.Next() {
		var vs model.VideoSummary
		if err := rows.Scan(&vs.ID, &vs.Filename, &vs.DurationSec, &vs.Status, &vs.ArtifactsCount); err != nil {
			return nil, err
		}
		vs.DurationFormatted = model.FormatTimestamp(vs.DurationSec)
		out = append(out, vs)
	}
	return out, rows.Err()
}

// GetVideoInfo returns a video with per-type artifact counts.
func (s *Store) GetVideoInfo(ctx context.Context, id string) (*model.VideoInfo, error) {
	v, err := s.GetVideo(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM artifacts WHERE video_id = ? GROUP BY type`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		counts[typ] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &model.VideoInfo{
		ID:                v.ID,
		Filename:          v.Filename,
		FilePath:          v.FilePath,
		DurationSec:       v.DurationSec,
		DurationFormatted: model.FormatTimestamp(v.DurationSec),
		Resolution:        v.Resolution(),
		Status:            v.Status,
		ErrorMessage:      v.ErrorMessage,
		Artifacts:         counts,
		IngestedAt:        v.IngestedAt,
	}, nil
}

func scanVideo(row scanner) (*model.Video, error) {
	var v model.Video
	var ingestConfig sql.NullString
	err := row.Scan(&v.ID, &v.FilePath, &v.FileHash, &v.FileSizeBytes, &v.Filename, &v.DurationSec,
		&v.Width, &v.Height, &v.FPS, &v.Codec, &v.Bitrate,
		&v.Status, &v.ErrorMessage, &ingestConfig, &v.IngestedAt)
	if err != nil {
		return nil, err
	}
	v.IngestConfig = ingestConfig.String
	return &v, nil
}
