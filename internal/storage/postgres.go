package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"github.com/Epistemic-Technology/exam-mcp/internal/config"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS results (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		title TEXT,
		description TEXT,
		revision_notes TEXT,
		mode TEXT,
		provider TEXT,
		question_count INTEGER,
		unanswered_count INTEGER,
		can_confirm BOOLEAN,
		zotero_id TEXT,
		url TEXT,
		created_at TEXT
	);

	CREATE TABLE IF NOT EXISTS questions (
		document_id TEXT NOT NULL REFERENCES results(id) ON DELETE CASCADE,
		question_index INTEGER NOT NULL,
		question_id TEXT,
		data TEXT NOT NULL,
		PRIMARY KEY (document_id, question_index)
	);

	CREATE TABLE IF NOT EXISTS images (
		document_id TEXT NOT NULL REFERENCES results(id) ON DELETE CASCADE,
		image_id TEXT NOT NULL,
		page INTEGER,
		format TEXT,
		source_kind TEXT,
		width INTEGER,
		height INTEGER,
		data BYTEA,
		PRIMARY KEY (document_id, image_id)
	);

	CREATE INDEX IF NOT EXISTS idx_results_zotero_id ON results(zotero_id);
	`

// PostgresStore implements the Store interface on Postgres through pgx
type PostgresStore struct {
	*sqlStore
}

// NewPostgresStore connects to the database at dsn and creates the schema
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s, err := newSQLStore(db, dialect{schema: postgresSchema, bindvars: dollarNumbers})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresStore{sqlStore: s}, nil
}

// Open returns the store selected by the configuration: Postgres when a
// database URL is set, SQLite otherwise
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	if cfg.DatabaseURL != "" {
		return NewPostgresStore(ctx, cfg.DatabaseURL)
	}
	dbPath, err := cfg.ResolveDBPath()
	if err != nil {
		return nil, err
	}
	return NewSQLiteStore(dbPath)
}

var _ Store = (*PostgresStore)(nil)
