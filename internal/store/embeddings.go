package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/yangwenmai/vidlens/internal/model"
)

// InsertEmbeddings stores a batch of vectors in one transaction.
func (s *Store) InsertEmbeddings(ctx context.Context, embeddings []model.Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}
	for _, e := range embeddings {
		if e.ID == "" || e.ArtifactID == "" || e.Model == "" {
			return fmt.Errorf("%w: embedding id, artifact id and model are required", model.ErrInvalid)
		}
		if e.Dim != len(e.Vector) || e.Dim == 0 {
			return fmt.Errorf("%w: embedding %s has dim %d but %d values", model.ErrInvalid, e.ID, e.Dim, len(e.Vector))
		}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO embeddings (id, artifact_id, model, dim, vector) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare embedding insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range embeddings {
			if _, err := stmt.ExecContext(ctx, e.ID, e.ArtifactID, e.Model, e.Dim, PackVector(e.Vector)); err != nil {
				return fmt.Errorf("insert embedding for %s: %w", e.ArtifactID, err)
			}
		}
		return nil
	})
}

// EmbeddingsFor returns one vector per artifact id that has one. When
// embedModel is set only vectors from that model are considered; otherwise
// the most recently stored vector wins.
func (s *Store) EmbeddingsFor(ctx context.Context, artifactIDs []string, embedModel string) (map[string][]float32, error) {
	out := make(map[string][]float32)
	if len(artifactIDs) == 0 {
		return out, nil
	}

	query := `SELECT artifact_id, dim, vector FROM embeddings WHERE artifact_id IN (` + placeholders(len(artifactIDs)) + `)`
	args := make([]interface{}, 0, len(artifactIDs)+1)
	for _, id := range artifactIDs {
		args = append(args, id)
	}
	if embedModel != "" {
		query += ` AND model = ?`
		args = append(args, embedModel)
	}
	query += ` ORDER BY rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var artifactID string
		var dim int
		var blob []byte
		if err := rows.Scan(&artifactID, &dim, &blob); err != nil {
			return nil, err
		}
		vec, err := UnpackVector(blob, dim)
		if err != nil {
			return nil, fmt.Errorf("artifact %s: %w", artifactID, err)
		}
		out[artifactID] = vec
	}
	return out, rows.Err()
}

// CountEmbeddings returns the number of vectors stored for a video's artifacts.
func (s *Store) CountEmbeddings(ctx context.Context, videoID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM embeddings e
		JOIN artifacts a ON a.id = e.artifact_id
		WHERE a.video_id = ?`, videoID).Scan(&n)
	return n, err
}
