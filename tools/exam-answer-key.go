package tools

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/exam-mcp/internal/config"
	"github.com/Epistemic-Technology/exam-mcp/internal/logger"
	"github.com/Epistemic-Technology/exam-mcp/internal/operations"
	"github.com/Epistemic-Technology/exam-mcp/internal/pipeline"
	"github.com/Epistemic-Technology/exam-mcp/internal/storage"
)

type ExamAnswerKeyQuery struct {
	DocumentID string `json:"document_id"`
	ZoteroID   string `json:"zotero_id,omitempty"`
	URL        string `json:"url,omitempty"`
	RawData    []byte `json:"raw_data,omitempty"`
	Filename   string `json:"filename,omitempty"`
	Provider   string `json:"provider,omitempty"`
}

type ExamAnswerKeyResponse struct {
	DocumentID      string `json:"document_id"`
	Matched         int    `json:"matched"`
	QuestionCount   int    `json:"question_count"`
	UnansweredCount int    `json:"unanswered_count"`
	CanConfirm      bool   `json:"can_confirm"`
}

func ExamAnswerKeyTool() *mcp.Tool {
	inputschema, err := jsonschema.For[ExamAnswerKeyQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "exam-answer-key",
		Description: "Read an answer key document (PDF or image) and apply it to a previously extracted exam. Answers are matched to questions by normalized question number; letters become single-choice answers, lists become multiple-choice and numbers become numerical answers. Provide the document_id returned by exam-extract and exactly one of zotero_id, url or raw_data for the key.",
		InputSchema: inputschema,
	}
}

func ExamAnswerKeyToolHandler(ctx context.Context, req *mcp.CallToolRequest, query ExamAnswerKeyQuery, store storage.Store, cfg *config.Config, log logger.Logger) (*mcp.CallToolResult, *ExamAnswerKeyResponse, error) {
	log.Info("exam-answer-key tool called")

	if query.DocumentID == "" {
		return nil, nil, fmt.Errorf("document_id is required")
	}
	if err := exactlyOneSource(query.ZoteroID, query.URL, query.RawData); err != nil {
		return nil, nil, err
	}

	p, err := pipeline.NewFromConfig(cfg, query.Provider, log)
	if err != nil {
		return nil, nil, err
	}

	result, matched, err := operations.ApplyStoredAnswerKey(ctx, p, store, cfg, operations.AnswerKeyParams{
		DocumentID: query.DocumentID,
		ZoteroID:   query.ZoteroID,
		URL:        query.URL,
		RawData:    query.RawData,
		Filename:   query.Filename,
	}, log)
	if err != nil {
		log.Error("exam-answer-key tool failed: %v", err)
		return nil, nil, err
	}

	return nil, &ExamAnswerKeyResponse{
		DocumentID:      query.DocumentID,
		Matched:         matched,
		QuestionCount:   len(result.Questions),
		UnansweredCount: result.UnansweredCount,
		CanConfirm:      result.CanConfirm,
	}, nil
}
