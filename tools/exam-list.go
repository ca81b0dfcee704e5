package tools

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/exam-mcp/internal/logger"
	"github.com/Epistemic-Technology/exam-mcp/internal/storage"
	"github.com/Epistemic-Technology/exam-mcp/models"
)

type ExamListQuery struct {
	Mode string `json:"mode,omitempty"` // Only list results of this mode
}

type ExamListResponse struct {
	Results []models.ResultInfo `json:"results"`
	Count   int                 `json:"count"`
}

func ExamListTool() *mcp.Tool {
	inputschema, err := jsonschema.For[ExamListQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "exam-list",
		Description: "List the stored exam extraction results, newest first, with their document IDs, titles, question counts and whether every question has an answer. Use the document IDs to read exam:// resources.",
		InputSchema: inputschema,
	}
}

func ExamListToolHandler(ctx context.Context, req *mcp.CallToolRequest, query ExamListQuery, store storage.Store, log logger.Logger) (*mcp.CallToolResult, *ExamListResponse, error) {
	log.Info("exam-list tool called")

	infos, err := store.ListResults(ctx)
	if err != nil {
		log.Error("exam-list tool failed: %v", err)
		return nil, nil, err
	}

	var filter models.Mode
	if query.Mode != "" {
		filter, err = parseMode(query.Mode)
		if err != nil {
			return nil, nil, err
		}
	}

	results := make([]models.ResultInfo, 0, len(infos))
	for _, info := range infos {
		if filter != "" && info.Mode != filter {
			continue
		}
		results = append(results, info)
	}

	return nil, &ExamListResponse{Results: results, Count: len(results)}, nil
}
