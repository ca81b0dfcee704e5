package operations

import (
	"context"
	"fmt"

	"github.com/Epistemic-Technology/exam-mcp/internal/config"
	"github.com/Epistemic-Technology/exam-mcp/internal/llm"
	"github.com/Epistemic-Technology/exam-mcp/internal/logger"
	"github.com/Epistemic-Technology/exam-mcp/internal/pipeline"
	"github.com/Epistemic-Technology/exam-mcp/internal/storage"
	"github.com/Epistemic-Technology/exam-mcp/models"
)

// CollectionExtractParams contains parameters for extracting every exam in
// a Zotero collection.
type CollectionExtractParams struct {
	Collection string // Collection key
	Limit      int    // Max parent items (default 100)
	Mode       models.Mode
	MaxWorkers int // Documents processed at once (default 5)
	Force      bool
}

// CollectionItemResult is the outcome for one attachment of a collection
type CollectionItemResult struct {
	ZoteroID      string
	Filename      string
	DocumentID    string
	Title         string
	QuestionCount int
	Unanswered    int
	Cached        bool
	Error         string
}

// ExtractCollection finds the exam attachments of a Zotero collection and
// runs get-or-extract on each, one document per worker. Failed documents
// are reported in their result entry and do not stop the others.
func ExtractCollection(ctx context.Context, p *pipeline.Pipeline, store storage.Store, cfg *config.Config, params CollectionExtractParams, log logger.Logger) ([]CollectionItemResult, error) {
	if params.Collection == "" {
		return nil, fmt.Errorf("collection key is required")
	}

	attachments, err := FindExamAttachments(ctx, cfg.ZoteroAPIKey, cfg.ZoteroLibraryID, ExamSearchParams{
		Collection: params.Collection,
		Limit:      params.Limit,
	}, log)
	if err != nil {
		return nil, err
	}
	if len(attachments) == 0 {
		return []CollectionItemResult{}, nil
	}

	log.Info("Extracting %d exams from collection %s", len(attachments), params.Collection)

	outcomes, errs := llm.ParallelProcess(ctx, attachments, params.MaxWorkers, log,
		func(ctx context.Context, idx int, att ExamAttachment) (*ExtractOutcome, error) {
			return GetOrExtractExam(ctx, p, store, cfg, ExtractParams{
				ZoteroID: att.Key,
				Mode:     params.Mode,
				Force:    params.Force,
			}, log)
		})

	results := make([]CollectionItemResult, len(attachments))
	failed := 0
	for i, att := range attachments {
		item := CollectionItemResult{
			ZoteroID: att.Key,
			Filename: att.Filename,
		}
		if errs[i] != nil {
			failed++
			item.Error = errs[i].Error()
			log.Warn("Extraction failed for %s: %v", att.Key, errs[i])
		} else if out := outcomes[i]; out != nil {
			item.DocumentID = out.DocumentID
			item.Title = out.Result.Title
			item.QuestionCount = len(out.Result.Questions)
			item.Unanswered = out.Result.UnansweredCount
			item.Cached = out.Cached
		}
		results[i] = item
	}

	log.Info("Collection %s: %d extracted, %d failed", params.Collection, len(attachments)-failed, failed)
	return results, nil
}
