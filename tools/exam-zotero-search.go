package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/exam-mcp/internal/config"
	"github.com/Epistemic-Technology/exam-mcp/internal/logger"
	"github.com/Epistemic-Technology/exam-mcp/internal/operations"
	"github.com/Epistemic-Technology/exam-mcp/internal/storage"
)

type ExamZoteroSearchQuery struct {
	Query      string   `json:"query,omitempty"`      // Quick search text (searches title, creator, year)
	Tags       []string `json:"tags,omitempty"`       // Filter by tags
	Collection string   `json:"collection,omitempty"` // Filter by collection key (optional)
	Limit      int      `json:"limit,omitempty"`      // Max items (default 25)
}

type ExamZoteroSearchResponse struct {
	Attachments []ExamAttachment `json:"attachments"`
	Count       int              `json:"count"`
}

type ExamAttachment struct {
	Key         string `json:"key"` // Use this as zotero_id in exam-extract
	ParentTitle string `json:"parent_title,omitempty"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	DocumentID  string `json:"document_id,omitempty"` // Set when the attachment has already been extracted
}

func ExamZoteroSearchTool() *mcp.Tool {
	inputschema, err := jsonschema.For[ExamZoteroSearchQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "exam-zotero-search",
		Description: "Search a Zotero library for exam papers. Returns the PDF and image attachments of the matching items; use an attachment key as zotero_id in exam-extract. Attachments that have already been extracted carry their document_id.",
		InputSchema: inputschema,
	}
}

func ExamZoteroSearchToolHandler(ctx context.Context, req *mcp.CallToolRequest, query ExamZoteroSearchQuery, store storage.Store, cfg *config.Config, log logger.Logger) (*mcp.CallToolResult, *ExamZoteroSearchResponse, error) {
	log.Info("exam-zotero-search tool called")

	if cfg.ZoteroAPIKey == "" {
		return nil, nil, fmt.Errorf("ZOTERO_API_KEY environment variable not set")
	}
	if cfg.ZoteroLibraryID == "" {
		return nil, nil, fmt.Errorf("ZOTERO_LIBRARY_ID environment variable not set")
	}

	found, err := operations.FindExamAttachments(ctx, cfg.ZoteroAPIKey, cfg.ZoteroLibraryID, operations.ExamSearchParams{
		Query:      query.Query,
		Tags:       query.Tags,
		Collection: query.Collection,
		Limit:      query.Limit,
	}, log)
	if err != nil {
		return nil, nil, err
	}

	// Map Zotero keys to stored document IDs
	extracted := make(map[string]string)
	infos, err := store.ListResults(ctx)
	if err != nil {
		// Don't fail the whole request, just skip the enrichment
		log.Error("Failed to list stored results: %v", err)
	}
	for _, info := range infos {
		if info.SourceInfo.ZoteroID != "" && !strings.HasSuffix(info.DocumentID, "_generate") {
			extracted[info.SourceInfo.ZoteroID] = info.DocumentID
		}
	}

	attachments := make([]ExamAttachment, len(found))
	for i, att := range found {
		attachments[i] = ExamAttachment{
			Key:         att.Key,
			ParentTitle: att.ParentTitle,
			Filename:    att.Filename,
			ContentType: att.ContentType,
			DocumentID:  extracted[att.Key],
		}
	}

	return nil, &ExamZoteroSearchResponse{
		Attachments: attachments,
		Count:       len(attachments),
	}, nil
}
