package operations

import (
	"context"
	"errors"
	"fmt"

	"github.com/Epistemic-Technology/exam-mcp/internal/config"
	"github.com/Epistemic-Technology/exam-mcp/internal/documents"
	"github.com/Epistemic-Technology/exam-mcp/internal/logger"
	"github.com/Epistemic-Technology/exam-mcp/internal/pipeline"
	"github.com/Epistemic-Technology/exam-mcp/internal/storage"
	"github.com/Epistemic-Technology/exam-mcp/models"
)

// ExtractParams describes one exam document to extract. Exactly one of
// ZoteroID, URL and RawData is expected.
type ExtractParams struct {
	ZoteroID  string
	URL       string
	RawData   []byte
	Filename  string
	Mode      models.Mode
	AnswerKey []models.InputFile
	// Force re-runs extraction even when a stored result exists
	Force bool
}

// ExtractOutcome is the result of GetOrExtractExam
type ExtractOutcome struct {
	DocumentID string
	RunID      string
	Result     *models.PipelineResult
	Cached     bool
}

// DocumentIDFor returns the storage ID for a document in a given mode.
// Generated questions are stored apart from extracted ones.
func DocumentIDFor(source models.SourceInfo, content []byte, mode models.Mode) string {
	docID := storage.GenerateDocumentID(source, content)
	if mode == models.ModeGenerate {
		docID += "_generate"
	}
	return docID
}

// GetOrExtractExam retrieves a stored extraction result if it exists, or
// fetches the document, runs the pipeline on it and stores the result.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - p: The configured extraction pipeline
//   - store: Storage backend for cached results
//   - cfg: Configuration supplying the Zotero credentials
//   - params: The document source and extraction options
//   - log: Logger for recording operations
func GetOrExtractExam(ctx context.Context, p *pipeline.Pipeline, store storage.Store, cfg *config.Config, params ExtractParams, log logger.Logger) (*ExtractOutcome, error) {
	sourceInfo := models.SourceInfo{
		ZoteroID: params.ZoteroID,
		URL:      params.URL,
	}
	mode := params.Mode
	if mode == "" {
		mode = models.ModeExtract
	}

	var data models.DocumentData
	var err error
	if params.RawData != nil {
		data = models.DocumentData{
			Data:     params.RawData,
			Type:     documents.DetectDocumentType(params.RawData, params.Filename),
			Filename: params.Filename,
		}
	} else {
		data, err = documents.GetData(ctx, sourceInfo, cfg.ZoteroAPIKey, cfg.ZoteroLibraryID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch document data: %w", err)
		}
	}

	docID := DocumentIDFor(sourceInfo, data.Data, mode)

	if !params.Force {
		exists, err := store.ResultExists(ctx, docID)
		if err != nil {
			return nil, fmt.Errorf("failed to check result existence: %w", err)
		}
		if exists {
			result, err := store.GetResult(ctx, docID)
			if err != nil {
				return nil, fmt.Errorf("failed to retrieve existing result: %w", err)
			}
			log.Info("Using stored result for %s", docID)
			return &ExtractOutcome{DocumentID: docID, Result: result, Cached: true}, nil
		}
	}

	result, err := p.Run(ctx, pipeline.Input{
		Files:     []models.InputFile{{Filename: data.Filename, Content: data.Data}},
		AnswerKey: params.AnswerKey,
		Mode:      mode,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract exam: %w", err)
	}

	if sourceInfo.ZoteroID != "" {
		info, err := documents.FetchZoteroExamInfo(ctx, sourceInfo.ZoteroID, cfg.ZoteroAPIKey, cfg.ZoteroLibraryID)
		if err != nil {
			log.Warn("Zotero metadata unavailable for %s: %v", sourceInfo.ZoteroID, err)
		} else {
			documents.ApplyExamInfo(result, info)
		}
	}

	runID, err := store.SaveResult(ctx, docID, result, storage.SaveOptions{
		Mode:       mode,
		Provider:   p.Provider(),
		SourceInfo: sourceInfo,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store result: %w", err)
	}

	return &ExtractOutcome{DocumentID: docID, RunID: runID, Result: result}, nil
}

// AnswerKeyParams identifies a stored result and the answer key to apply to it
type AnswerKeyParams struct {
	DocumentID string
	ZoteroID   string
	URL        string
	RawData    []byte
	Filename   string
}

// ApplyStoredAnswerKey extracts an answer key and matches it onto a stored
// result, then saves the updated result. It returns the updated result and
// the number of questions matched.
func ApplyStoredAnswerKey(ctx context.Context, p *pipeline.Pipeline, store storage.Store, cfg *config.Config, params AnswerKeyParams, log logger.Logger) (*models.PipelineResult, int, error) {
	if params.DocumentID == "" {
		return nil, 0, errors.New("document_id is required")
	}

	info, err := store.GetResultInfo(ctx, params.DocumentID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to retrieve result info: %w", err)
	}
	result, err := store.GetResult(ctx, params.DocumentID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to retrieve result: %w", err)
	}

	key := models.InputFile{Filename: params.Filename, Content: params.RawData}
	if params.RawData == nil {
		data, err := documents.GetData(ctx, models.SourceInfo{ZoteroID: params.ZoteroID, URL: params.URL}, cfg.ZoteroAPIKey, cfg.ZoteroLibraryID)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to fetch answer key: %w", err)
		}
		key = models.InputFile{Filename: data.Filename, Content: data.Data}
	}

	matched, err := p.ApplyAnswerKey(ctx, result, []models.InputFile{key})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to apply answer key: %w", err)
	}
	log.Info("Matched %d of %d questions to the answer key for %s", matched, len(result.Questions), params.DocumentID)

	_, err = store.SaveResult(ctx, params.DocumentID, result, storage.SaveOptions{
		Mode:       info.Mode,
		Provider:   info.Provider,
		SourceInfo: info.SourceInfo,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to store result: %w", err)
	}
	return result, matched, nil
}
