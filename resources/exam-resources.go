package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	"github.com/Epistemic-Technology/exam-mcp/internal/storage"
)

const scheme = "exam://"

// ExamResourceHandler handles resource requests for stored extraction results
type ExamResourceHandler struct {
	store storage.Store
}

// NewExamResourceHandler creates a new exam resource handler
func NewExamResourceHandler(store storage.Store) *ExamResourceHandler {
	return &ExamResourceHandler{store: store}
}

// ReadResource reads a specific resource by URI:
//
//	exam://{documentId}
//	exam://{documentId}/questions
//	exam://{documentId}/questions/{index}
//	exam://{documentId}/images/{imageId}
func (h *ExamResourceHandler) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	if !strings.HasPrefix(uri, scheme) {
		return nil, fmt.Errorf("invalid URI scheme, expected %s", scheme)
	}

	parts := strings.Split(strings.TrimPrefix(uri, scheme), "/")
	docID := parts[0]
	if docID == "" {
		return nil, fmt.Errorf("invalid URI, missing document ID")
	}

	resourceType := ""
	if len(parts) > 1 {
		resourceType = parts[1]
	}

	var value any
	var err error

	switch resourceType {
	case "":
		return h.readResult(ctx, uri, docID)
	case "questions":
		if len(parts) > 2 {
			index, convErr := strconv.Atoi(parts[2])
			if convErr != nil || index < 1 {
				return nil, fmt.Errorf("invalid question index: %s", parts[2])
			}
			value, err = h.store.GetQuestion(ctx, docID, index)
		} else {
			value, err = h.store.GetQuestions(ctx, docID)
		}
	case "images":
		if len(parts) < 3 || parts[2] == "" {
			return nil, fmt.Errorf("invalid URI, missing image ID")
		}
		return h.readImage(ctx, uri, docID, parts[2])
	default:
		return nil, fmt.Errorf("unknown resource type: %s", resourceType)
	}

	if err != nil {
		return nil, err
	}

	content, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return jsonContents(uri, content), nil
}

// readResult serves the full result with its resource paths. Image bytes
// are left to the images resource.
func (h *ExamResourceHandler) readResult(ctx context.Context, uri, docID string) (*mcp.ReadResourceResult, error) {
	result, err := h.store.GetResult(ctx, docID)
	if err != nil {
		return nil, err
	}
	for i := range result.Images {
		result.Images[i].Data = nil
	}

	content, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	content, err = sjson.SetBytes(content, "document_id", docID)
	if err != nil {
		return nil, fmt.Errorf("failed to set document_id: %w", err)
	}
	content, err = sjson.SetBytes(content, "available_resources", storage.CalculateResourcePaths(docID, result))
	if err != nil {
		return nil, fmt.Errorf("failed to set available_resources: %w", err)
	}
	return jsonContents(uri, content), nil
}

func jsonContents(uri string, content []byte) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(pretty.Pretty(content)),
			},
		},
	}
}

func (h *ExamResourceHandler) readImage(ctx context.Context, uri, docID, imageID string) (*mcp.ReadResourceResult, error) {
	img, err := h.store.GetImage(ctx, docID, imageID)
	if err != nil {
		return nil, err
	}
	mimeType := "image/" + img.Format
	if img.Format == "" {
		mimeType = "application/octet-stream"
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: mimeType,
				Blob:     img.Data,
			},
		},
	}, nil
}
