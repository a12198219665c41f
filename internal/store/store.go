package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Verify at compile time that Store implements all interfaces.
var (
	_ VideoReader    = (*Store)(nil)
	_ VideoWriter    = (*Store)(nil)
	_ ArtifactReader = (*Store)(nil)
	_ ArtifactWriter = (*Store)(nil)
	_ EmbeddingStore = (*Store)(nil)
	_ Searcher       = (*Store)(nil)
)

// Store provides data access to the SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and initialises the schema.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// currentSchemaVersion is bumped whenever the schema changes.
// Add a new migration function in the migrations slice below.
const currentSchemaVersion = 3

// SchemaVersion returns the highest applied migration.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&v); err != nil {
		return 0, err
	}
	return int(v.Int64), nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version    INTEGER NOT NULL,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	version, err := s.SchemaVersion(context.Background())
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	// migrations is an ordered list of schema changes.
	// Index 0 = migration from v0 to v1, etc.
	migrations := []string{
		schemaV1, // v0 → v1: videos, artifacts, embeddings
		schemaV2, // v1 → v2: artifacts_fts shadow index + sync triggers
		schemaV3, // v2 → v3: embedding lookup index
	}

	for i := version; i < len(migrations); i++ {
		if err := s.applyMigration(i+1, migrations[i]); err != nil {
			return fmt.Errorf("migration v%d→v%d: %w", i, i+1, err)
		}
	}
	return nil
}

// applyMigration runs one schema change and records its version atomically.
func (s *Store) applyMigration(version int, schema string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, version); err != nil {
		return fmt.Errorf("record schema version %d: %w", version, err)
	}
	return tx.Commit()
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS videos (
	id              TEXT PRIMARY KEY,
	file_path       TEXT NOT NULL,
	file_hash       TEXT NOT NULL UNIQUE,
	file_size_bytes INTEGER NOT NULL,
	filename        TEXT NOT NULL,
	duration_sec    REAL NOT NULL,
	width           INTEGER,
	height          INTEGER,
	fps             REAL,
	codec           TEXT,
	bitrate         INTEGER,
	status          TEXT NOT NULL DEFAULT 'pending',
	error_message   TEXT,
	ingest_config   TEXT,
	ingested_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS artifacts (
	seq        INTEGER PRIMARY KEY,
	id         TEXT NOT NULL UNIQUE,
	video_id   TEXT NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
	type       TEXT NOT NULL,
	start_sec  REAL NOT NULL,
	end_sec    REAL,
	text       TEXT NOT NULL,
	meta       TEXT,
	created_at TEXT NOT NULL,
	CHECK (end_sec IS NULL OR end_sec >= start_sec)
);
CREATE INDEX IF NOT EXISTS idx_artifacts_video ON artifacts(video_id, start_sec);
CREATE INDEX IF NOT EXISTS idx_artifacts_type ON artifacts(video_id, type);

CREATE TABLE IF NOT EXISTS embeddings (
	id          TEXT PRIMARY KEY,
	artifact_id TEXT NOT NULL REFERENCES artifacts(id) ON DELETE CASCADE,
	model       TEXT NOT NULL,
	dim         INTEGER NOT NULL,
	vector      BLOB NOT NULL
);
`

const schemaV2 = `
CREATE VIRTUAL TABLE IF NOT EXISTS artifacts_fts USING fts5(
	text, content='artifacts', content_rowid='seq'
);

CREATE TRIGGER IF NOT EXISTS artifacts_ai AFTER INSERT ON artifacts BEGIN
	INSERT INTO artifacts_fts(rowid, text) VALUES (new.seq, new.text);
END;
CREATE TRIGGER IF NOT EXISTS artifacts_ad AFTER DELETE ON artifacts BEGIN
	INSERT INTO artifacts_fts(artifacts_fts, rowid, text) VALUES ('delete', old.seq, old.text);
END;
CREATE TRIGGER IF NOT EXISTS artifacts_au AFTER UPDATE ON artifacts BEGIN
	INSERT INTO artifacts_fts(artifacts_fts, rowid, text) VALUES ('delete', old.seq, old.text);
	INSERT INTO artifacts_fts(rowid, text) VALUES (new.seq, new.text);
END;

INSERT INTO artifacts_fts(artifacts_fts) VALUES ('rebuild');
`

const schemaV3 = `
CREATE INDEX IF NOT EXISTS idx_embeddings_artifact ON embeddings(artifact_id, model);
`

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

type scanner interface {
	Scan(dest ...interface{}) error
}

// withTx runs fn inside a transaction, committing only if fn succeeds.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
