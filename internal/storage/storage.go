package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/Epistemic-Technology/exam-mcp/models"
)

// ErrNotFound is returned when a document ID has no stored result
var ErrNotFound = errors.New("result not found")

// SaveOptions describe where a result came from and how it was produced
type SaveOptions struct {
	Mode       models.Mode
	Provider   string
	SourceInfo models.SourceInfo
}

// Store defines the interface for storing and retrieving extraction results
type Store interface {
	// SaveResult stores a result under docID, replacing any earlier run,
	// and returns the new run ID
	SaveResult(ctx context.Context, docID string, result *models.PipelineResult, opts SaveOptions) (string, error)

	// GetResult retrieves the full result for a document
	GetResult(ctx context.Context, docID string) (*models.PipelineResult, error)

	// GetResultInfo retrieves summary information for a document
	GetResultInfo(ctx context.Context, docID string) (*models.ResultInfo, error)

	// GetQuestions retrieves the question list for a document
	GetQuestions(ctx context.Context, docID string) ([]models.QuestionUnit, error)

	// GetQuestion retrieves one question by its 1-based index
	GetQuestion(ctx context.Context, docID string, index int) (*models.QuestionUnit, error)

	// GetImage retrieves a bound image by its IMG_n identifier
	GetImage(ctx context.Context, docID string, imageID string) (*models.VisualElement, error)

	// ListResults returns summary information for every stored result
	ListResults(ctx context.Context) ([]models.ResultInfo, error)

	// ResultExists reports whether a result is stored for docID
	ResultExists(ctx context.Context, docID string) (bool, error)

	// DeleteResult removes a result and its questions and images
	DeleteResult(ctx context.Context, docID string) error

	// Close closes the database connection
	Close() error
}

// GenerateDocumentID creates a stable document ID from the source. Inputs
// without a Zotero ID or URL are identified by a hash of their content.
func GenerateDocumentID(sourceInfo models.SourceInfo, content []byte) string {
	if sourceInfo.ZoteroID != "" {
		return "zotero_" + sourceInfo.ZoteroID
	}
	if sourceInfo.URL != "" {
		return "url_" + shortHash([]byte(sourceInfo.URL))
	}
	return "sha_" + shortHash(content)
}

func shortHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
