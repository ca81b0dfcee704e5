package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
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
		document_id TEXT NOT NULL,
		question_index INTEGER NOT NULL,
		question_id TEXT,
		data TEXT NOT NULL,
		PRIMARY KEY (document_id, question_index),
		FOREIGN KEY (document_id) REFERENCES results(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS images (
		document_id TEXT NOT NULL,
		image_id TEXT NOT NULL,
		page INTEGER,
		format TEXT,
		source_kind TEXT,
		width INTEGER,
		height INTEGER,
		data BLOB,
		PRIMARY KEY (document_id, image_id),
		FOREIGN KEY (document_id) REFERENCES results(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_results_zotero_id ON results(zotero_id);
	`

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	*sqlStore
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s, err := newSQLStore(db, dialect{schema: sqliteSchema, bindvars: questionMarks})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{sqlStore: s}, nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
