package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/yangwenmai/vidlens/internal/model"
)

const artifactColumns = `id, video_id, type, start_sec, end_sec, text, meta, created_at`

// InsertArtifacts inserts a batch of artifacts in one transaction: either
// every artifact lands (with its FTS entry) or none does.
func (s *Store) InsertArtifacts(ctx context.Context, artifacts []model.Artifact) error {
	if len(artifacts) == 0 {
		return nil
	}
	for _, a := range artifacts {
		if err := a.Validate(); err != nil {
			return err
		}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO artifacts (`+artifactColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare artifact insert: %w", err)
		}
		defer stmt.Close()

		for _, a := range artifacts {
			if _, err := stmt.ExecContext(ctx, a.ID, a.VideoID, a.Type, a.StartSec, a.EndSec, a.Text, a.Meta, a.CreatedAt); err != nil {
				return fmt.Errorf("insert artifact %s: %w", a.ID, err)
			}
		}
		return nil
	})
}

// GetArtifacts returns a video's artifacts ordered by start time, optionally
// restricted to one type.
func (s *Store) GetArtifacts(ctx context.Context, videoID, artifactType string) ([]model.Artifact, error) {
	query := `SELECT ` + artifactColumns + ` FROM artifacts WHERE video_id = ?`
	args := []interface{}{videoID}
	if artifactType != "" {
		query += ` AND type = ?`
		args = append(args, artifactType)
	}
	query += ` ORDER BY start_sec ASC, seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// GetArtifact returns one artifact by id.
func (s *Store) GetArtifact(ctx context.Context, id string) (*model.Artifact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE id = ?`, id)
	a, err := scanArtifact(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("artifact %s: %w", id, model.ErrNotFound)
	}
	return a, err
}

// CountArtifacts returns the number of artifacts stored for a video.
func (s *Store) CountArtifacts(ctx context.Context, videoID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM artifacts WHERE video_id = ?`, videoID).Scan(&n)
	return n, err
}

// UpdateArtifactText replaces an artifact's text. The FTS index follows via trigger.
func (s *Store) UpdateArtifactText(ctx context.Context, id, text string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE artifacts SET text = ? WHERE id = ?`, text, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("artifact %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// DeleteArtifact removes one artifact and its embeddings.
func (s *Store) DeleteArtifact(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("artifact %s: %w", id, model.ErrNotFound)
	}
	return nil
}

func scanArtifact(row scanner) (*model.Artifact, error) {
	var a model.Artifact
	var meta sql.NullString
	if err := row.Scan(&a.ID, &a.VideoID, &a.Type, &a.StartSec, &a.EndSec, &a.Text, &meta, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Meta = meta.String
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return &a, nil
}
