package store

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/yangwenmai/vidlens/internal/model"
)

// MatchQuery turns free text into an FTS5 MATCH expression: every word
// becomes a quoted term and terms are OR-ed, so punctuation in user input
// can never produce an FTS syntax error. bm25 still favours rows that
// match more terms. Returns "" when the text has no searchable words.
func MatchQuery(text string) string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(words))
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		w = strings.ToLower(w)
		if seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}

// SearchFTS runs a full-text query over artifact text ranked by bm25,
// optionally restricted to one video. Score is |bm25| rounded to 4 places.
func (s *Store) SearchFTS(ctx context.Context, query string, limit int, videoID string) ([]model.SearchResult, error) {
	match := MatchQuery(query)
	if match == "" || limit <= 0 {
		return nil, nil
	}

	q := `
		SELECT a.id, a.video_id, a.type, a.start_sec, a.text, v.filename, artifacts_fts.rank
		FROM artifacts_fts
		JOIN artifacts a ON a.seq = artifacts_fts.rowid
		JOIN videos v ON v.id = a.video_id
		WHERE artifacts_fts MATCH ?`
	args := []interface{}{match}
	if videoID != "" {
		q += ` AND a.video_id = ?`
		args = append(args, videoID)
	}
	q += ` ORDER BY artifacts_fts.rank LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SearchResult
	for rows.Next() {
		var r model.SearchResult
		var rank float64
		if err := rows.Scan(&r.ArtifactID, &r.VideoID, &r.SourceType, &r.TimestampSec, &r.Text, &r.Filename, &rank); err != nil {
			return nil, err
		}
		r.Rank = len(out) + 1
		r.Score = Round4(math.Abs(rank))
		r.TimestampFormatted = model.FormatTimestamp(r.TimestampSec)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Round4 rounds x to 4 decimal places.
func Round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
