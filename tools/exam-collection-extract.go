package tools

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/exam-mcp/internal/config"
	"github.com/Epistemic-Technology/exam-mcp/internal/logger"
	"github.com/Epistemic-Technology/exam-mcp/internal/operations"
	"github.com/Epistemic-Technology/exam-mcp/internal/pipeline"
	"github.com/Epistemic-Technology/exam-mcp/internal/storage"
)

type ExamCollectionExtractQuery struct {
	Collection string `json:"collection"`            // Zotero collection key
	Limit      int    `json:"limit,omitempty"`       // Max items in the collection (default 100)
	Mode       string `json:"mode,omitempty"`        // "extract" (default) or "generate"
	MaxWorkers int    `json:"max_workers,omitempty"` // Documents processed at once (default 5)
	Provider   string `json:"provider,omitempty"`
	Force      bool   `json:"force,omitempty"`
}

type ExamCollectionExtractResponse struct {
	Items     []CollectionItem `json:"items"`
	Count     int              `json:"count"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
}

type CollectionItem struct {
	ZoteroID        string `json:"zotero_id"`
	Filename        string `json:"filename,omitempty"`
	DocumentID      string `json:"document_id,omitempty"`
	Title           string `json:"title,omitempty"`
	QuestionCount   int    `json:"question_count"`
	UnansweredCount int    `json:"unanswered_count"`
	Cached          bool   `json:"cached"`
	Error           string `json:"error,omitempty"`
}

func ExamCollectionExtractTool() *mcp.Tool {
	inputschema, err := jsonschema.For[ExamCollectionExtractQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "exam-collection-extract",
		Description: "Extract every exam paper in a Zotero collection. Finds the PDF and image attachments of the collection's items and extracts each one in parallel, storing the results. Exams already extracted are returned from storage unless force is set. Use exam-zotero-search to find attachment keys first.",
		InputSchema: inputschema,
	}
}

func ExamCollectionExtractToolHandler(ctx context.Context, req *mcp.CallToolRequest, query ExamCollectionExtractQuery, store storage.Store, cfg *config.Config, log logger.Logger) (*mcp.CallToolResult, *ExamCollectionExtractResponse, error) {
	log.Info("exam-collection-extract tool called")

	mode, err := parseMode(query.Mode)
	if err != nil {
		return nil, nil, err
	}
	p, err := pipeline.NewFromConfig(cfg, query.Provider, log)
	if err != nil {
		return nil, nil, err
	}

	results, err := operations.ExtractCollection(ctx, p, store, cfg, operations.CollectionExtractParams{
		Collection: query.Collection,
		Limit:      query.Limit,
		Mode:       mode,
		MaxWorkers: query.MaxWorkers,
		Force:      query.Force,
	}, log)
	if err != nil {
		log.Error("exam-collection-extract tool failed: %v", err)
		return nil, nil, err
	}

	response := &ExamCollectionExtractResponse{
		Items: make([]CollectionItem, len(results)),
		Count: len(results),
	}
	for i, r := range results {
		response.Items[i] = CollectionItem{
			ZoteroID:        r.ZoteroID,
			Filename:        r.Filename,
			DocumentID:      r.DocumentID,
			Title:           r.Title,
			QuestionCount:   r.QuestionCount,
			UnansweredCount: r.Unanswered,
			Cached:          r.Cached,
			Error:           r.Error,
		}
		if r.Error != "" {
			response.Failed++
		} else {
			response.Succeeded++
		}
	}

	return nil, response, nil
}
