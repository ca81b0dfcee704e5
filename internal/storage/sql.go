package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Epistemic-Technology/exam-mcp/models"
)

// dialect captures what differs between the SQL backends
type dialect struct {
	schema string
	// bindvars rewrites ? placeholders for drivers that use numbered ones
	bindvars func(query string) string
}

func questionMarks(query string) string { return query }

func dollarNumbers(query string) string {
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// sqlStore implements Store on database/sql. The backends differ only in
// schema types and placeholder syntax.
type sqlStore struct {
	db *sql.DB
	d  dialect
}

func newSQLStore(db *sql.DB, d dialect) (*sqlStore, error) {
	s := &sqlStore{db: db, d: d}
	if _, err := db.Exec(d.schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *sqlStore) q(query string) string {
	return s.d.bindvars(query)
}

// SaveResult stores a result under docID, replacing any earlier run
func (s *sqlStore) SaveResult(ctx context.Context, docID string, result *models.PipelineResult, opts SaveOptions) (string, error) {
	if result == nil {
		return "", errors.New("result is nil")
	}
	runID := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.deleteRows(ctx, tx, docID); err != nil {
		return "", err
	}

	_, err = tx.ExecContext(ctx, s.q(`
		INSERT INTO results (id, run_id, title, description, revision_notes, mode, provider,
			question_count, unanswered_count, can_confirm, zotero_id, url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), docID, runID, result.Title, result.Description, result.RevisionNotes, string(opts.Mode), opts.Provider,
		len(result.Questions), result.UnansweredCount, result.CanConfirm,
		opts.SourceInfo.ZoteroID, opts.SourceInfo.URL, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("failed to insert result: %w", err)
	}

	for i, question := range result.Questions {
		data, err := json.Marshal(question)
		if err != nil {
			return "", fmt.Errorf("failed to marshal question %d: %w", i+1, err)
		}
		_, err = tx.ExecContext(ctx, s.q(`
			INSERT INTO questions (document_id, question_index, question_id, data)
			VALUES (?, ?, ?, ?)
		`), docID, i+1, string(question.ID), string(data))
		if err != nil {
			return "", fmt.Errorf("failed to insert question %d: %w", i+1, err)
		}
	}

	for _, img := range result.Images {
		_, err = tx.ExecContext(ctx, s.q(`
			INSERT INTO images (document_id, image_id, page, format, source_kind, width, height, data)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`), docID, img.ID, img.Page, img.Format, string(img.SourceKind), img.Width, img.Height, img.Data)
		if err != nil {
			return "", fmt.Errorf("failed to insert image %s: %w", img.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return runID, nil
}

func (s *sqlStore) deleteRows(ctx context.Context, tx *sql.Tx, docID string) error {
	for _, table := range []string{"questions", "images"} {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM `+table+` WHERE document_id = ?`), docID); err != nil {
			return fmt.Errorf("failed to delete %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM results WHERE id = ?`), docID); err != nil {
		return fmt.Errorf("failed to delete result: %w", err)
	}
	return nil
}

const resultInfoColumns = `id, run_id, title, mode, provider, question_count, can_confirm, zotero_id, url, created_at`

func scanResultInfo(scan func(dest ...any) error) (*models.ResultInfo, error) {
	var info models.ResultInfo
	var mode string
	if err := scan(&info.DocumentID, &info.RunID, &info.Title, &mode, &info.Provider,
		&info.QuestionCount, &info.CanConfirm, &info.SourceInfo.ZoteroID, &info.SourceInfo.URL, &info.CreatedAt); err != nil {
		return nil, err
	}
	info.Mode = models.Mode(mode)
	return &info, nil
}

// GetResultInfo retrieves summary information for a document
func (s *sqlStore) GetResultInfo(ctx context.Context, docID string) (*models.ResultInfo, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+resultInfoColumns+` FROM results WHERE id = ?`), docID)
	info, err := scanResultInfo(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, docID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query result: %w", err)
	}
	return info, nil
}

// GetResult retrieves the full result for a document
func (s *sqlStore) GetResult(ctx context.Context, docID string) (*models.PipelineResult, error) {
	var result models.PipelineResult
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT title, description, revision_notes, unanswered_count, can_confirm
		FROM results
		WHERE id = ?
	`), docID).Scan(&result.Title, &result.Description, &result.RevisionNotes, &result.UnansweredCount, &result.CanConfirm)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, docID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query result: %w", err)
	}

	result.Questions, err = s.GetQuestions(ctx, docID)
	if err != nil {
		return nil, err
	}
	result.Images, err = s.getImages(ctx, docID)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetQuestions retrieves the question list for a document
func (s *sqlStore) GetQuestions(ctx context.Context, docID string) ([]models.QuestionUnit, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT data FROM questions
		WHERE document_id = ?
		ORDER BY question_index
	`), docID)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	defer rows.Close()

	questions := []models.QuestionUnit{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		var q models.QuestionUnit
		if err := json.Unmarshal([]byte(data), &q); err != nil {
			return nil, fmt.Errorf("failed to unmarshal question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating questions: %w", err)
	}
	return questions, nil
}

// GetQuestion retrieves one question by its 1-based index
func (s *sqlStore) GetQuestion(ctx context.Context, docID string, index int) (*models.QuestionUnit, error) {
	var data string
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT data FROM questions
		WHERE document_id = ? AND question_index = ?
	`), docID, index).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: question %d of %s", ErrNotFound, index, docID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query question: %w", err)
	}
	var q models.QuestionUnit
	if err := json.Unmarshal([]byte(data), &q); err != nil {
		return nil, fmt.Errorf("failed to unmarshal question: %w", err)
	}
	return &q, nil
}

const imageColumns = `image_id, page, format, source_kind, width, height, data`

func scanImage(scan func(dest ...any) error) (*models.VisualElement, error) {
	var img models.VisualElement
	var kind string
	if err := scan(&img.ID, &img.Page, &img.Format, &kind, &img.Width, &img.Height, &img.Data); err != nil {
		return nil, err
	}
	img.SourceKind = models.SourceKind(kind)
	return &img, nil
}

func (s *sqlStore) getImages(ctx context.Context, docID string) ([]models.VisualElement, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+imageColumns+` FROM images WHERE document_id = ? ORDER BY page, image_id`), docID)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	var images []models.VisualElement
	for rows.Next() {
		img, err := scanImage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		images = append(images, *img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating images: %w", err)
	}
	return images, nil
}

// GetImage retrieves a bound image by its IMG_n identifier
func (s *sqlStore) GetImage(ctx context.Context, docID string, imageID string) (*models.VisualElement, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+imageColumns+` FROM images WHERE document_id = ? AND image_id = ?`), docID, imageID)
	img, err := scanImage(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: image %s of %s", ErrNotFound, imageID, docID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query image: %w", err)
	}
	return img, nil
}

// ListResults returns summary information for every stored result, newest first
func (s *sqlStore) ListResults(ctx context.Context) ([]models.ResultInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+resultInfoColumns+` FROM results ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []models.ResultInfo
	for rows.Next() {
		info, err := scanResultInfo(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, *info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}
	return results, nil
}

// ResultExists reports whether a result is stored for docID
func (s *sqlStore) ResultExists(ctx context.Context, docID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM results WHERE id = ?`), docID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check result: %w", err)
	}
	return n > 0, nil
}

// DeleteResult removes a result and its questions and images
func (s *sqlStore) DeleteResult(ctx context.Context, docID string) error {
	exists, err := s.ResultExists(ctx, docID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, docID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := s.deleteRows(ctx, tx, docID); err != nil {
		return err
	}
	return tx.Commit()
}

// Close closes the database connection
func (s *sqlStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
