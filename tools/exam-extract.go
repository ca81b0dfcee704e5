package tools

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/exam-mcp/internal/config"
	"github.com/Epistemic-Technology/exam-mcp/internal/documents"
	"github.com/Epistemic-Technology/exam-mcp/internal/logger"
	"github.com/Epistemic-Technology/exam-mcp/internal/operations"
	"github.com/Epistemic-Technology/exam-mcp/internal/pipeline"
	"github.com/Epistemic-Technology/exam-mcp/internal/storage"
	"github.com/Epistemic-Technology/exam-mcp/models"
)

type ExamExtractQuery struct {
	ZoteroID          string `json:"zotero_id,omitempty"`
	URL               string `json:"url,omitempty"`
	RawData           []byte `json:"raw_data,omitempty"`
	Filename          string `json:"filename,omitempty"`            // Used to recognize raw image data (e.g. "page1.png")
	Mode              string `json:"mode,omitempty"`                // "extract" (default) or "generate"
	AnswerKeyRaw      []byte `json:"answer_key_raw,omitempty"`      // Answer key document (PDF or image)
	AnswerKeyURL      string `json:"answer_key_url,omitempty"`      // Answer key document URL
	AnswerKeyFilename string `json:"answer_key_filename,omitempty"` // Filename for answer_key_raw
	Provider          string `json:"provider,omitempty"`            // "gemini" or "openai"
	Force             bool   `json:"force,omitempty"`               // Re-extract even if a stored result exists
}

type ExamExtractResponse struct {
	DocumentID      string   `json:"document_id"`
	RunID           string   `json:"run_id,omitempty"`
	ResourcePaths   []string `json:"resource_paths"`
	Title           string   `json:"title,omitempty"`
	Description     string   `json:"description,omitempty"`
	QuestionCount   int      `json:"question_count"`
	UnansweredCount int      `json:"unanswered_count"`
	CanConfirm      bool     `json:"can_confirm"`
	ImageCount      int      `json:"image_count"`
	AnswersMatched  int      `json:"answers_matched,omitempty"`
	Cached          bool     `json:"cached"`
}

func ExamExtractTool() *mcp.Tool {
	inputschema, err := jsonschema.For[ExamExtractQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "exam-extract",
		Description: "Extract the questions of an exam paper (PDF or page image) into structured JSON: question text, A-D options, question type, marks, bound diagrams and correct answers. Provide exactly one of zotero_id, url or raw_data. Mode 'generate' writes new practice questions from study material instead. An optional answer key document fills in correct answers. Results are stored and exposed as exam:// resources.",
		InputSchema: inputschema,
	}
}

func ExamExtractToolHandler(ctx context.Context, req *mcp.CallToolRequest, query ExamExtractQuery, store storage.Store, cfg *config.Config, log logger.Logger) (*mcp.CallToolResult, *ExamExtractResponse, error) {
	log.Info("exam-extract tool called")

	if err := exactlyOneSource(query.ZoteroID, query.URL, query.RawData); err != nil {
		return nil, nil, err
	}
	mode, err := parseMode(query.Mode)
	if err != nil {
		return nil, nil, err
	}

	var answerKey []models.InputFile
	switch {
	case query.AnswerKeyRaw != nil:
		answerKey = append(answerKey, models.InputFile{Filename: query.AnswerKeyFilename, Content: query.AnswerKeyRaw})
	case query.AnswerKeyURL != "":
		data, err := documents.GetFromURL(ctx, query.AnswerKeyURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to fetch answer key: %w", err)
		}
		answerKey = append(answerKey, models.InputFile{Filename: path.Base(query.AnswerKeyURL), Content: data})
	}

	p, err := pipeline.NewFromConfig(cfg, query.Provider, log)
	if err != nil {
		return nil, nil, err
	}

	outcome, err := operations.GetOrExtractExam(ctx, p, store, cfg, operations.ExtractParams{
		ZoteroID:  query.ZoteroID,
		URL:       query.URL,
		RawData:   query.RawData,
		Filename:  query.Filename,
		Mode:      mode,
		AnswerKey: answerKey,
		Force:     query.Force,
	}, log)
	if err != nil {
		log.Error("exam-extract tool failed: %v", err)
		return nil, nil, err
	}

	result := outcome.Result
	matched := 0
	// A stored result has not seen this answer key yet
	if outcome.Cached && len(answerKey) > 0 {
		result, matched, err = operations.ApplyStoredAnswerKey(ctx, p, store, cfg, operations.AnswerKeyParams{
			DocumentID: outcome.DocumentID,
			RawData:    answerKey[0].Content,
			Filename:   answerKey[0].Filename,
		}, log)
		if err != nil {
			log.Error("exam-extract tool failed: %v", err)
			return nil, nil, err
		}
	}

	response := summarize(outcome.DocumentID, result)
	response.RunID = outcome.RunID
	response.Cached = outcome.Cached
	response.AnswersMatched = matched
	return nil, response, nil
}

func summarize(docID string, result *models.PipelineResult) *ExamExtractResponse {
	return &ExamExtractResponse{
		DocumentID:      docID,
		ResourcePaths:   storage.CalculateResourcePaths(docID, result),
		Title:           result.Title,
		Description:     result.Description,
		QuestionCount:   len(result.Questions),
		UnansweredCount: result.UnansweredCount,
		CanConfirm:      result.CanConfirm,
		ImageCount:      len(result.Images),
	}
}

func parseMode(s string) (models.Mode, error) {
	switch models.Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", models.ModeExtract:
		return models.ModeExtract, nil
	case models.ModeGenerate:
		return models.ModeGenerate, nil
	}
	return "", fmt.Errorf("invalid mode: %s (expected '%s' or '%s')", s, models.ModeExtract, models.ModeGenerate)
}

func exactlyOneSource(zoteroID, url string, raw []byte) error {
	n := 0
	for _, set := range []bool{zoteroID != "", url != "", raw != nil} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("exactly one of zotero_id, url or raw_data is required")
	}
	return nil
}
