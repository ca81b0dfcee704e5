package operations

import (
	"context"
	"fmt"
	"strings"

	"github.com/Epistemic-Technology/exam-mcp/internal/documents"
	"github.com/Epistemic-Technology/exam-mcp/internal/logger"
	"github.com/Epistemic-Technology/zotero/zotero"
)

// ExamSearchParams contains parameters for finding exam papers in a Zotero library.
type ExamSearchParams struct {
	Query      string   // Quick search text (searches title, creator, year)
	Tags       []string // Filter by tags
	Collection string   // Filter by collection key (optional)
	Limit      int      // Max parent items (default 25, 100 inside a collection)
}

// ExamAttachment is a PDF or page image attached to a Zotero item
type ExamAttachment struct {
	Key         string // Use this as zotero_id in exam-extract
	ParentKey   string
	ParentTitle string
	Filename    string
	ContentType string
}

// IsExamAttachment reports whether a Zotero attachment can be fed to the
// extraction pipeline: a PDF or a raster page image.
func IsExamAttachment(contentType, filename string) bool {
	ct := strings.ToLower(contentType)
	if ct == "application/pdf" || strings.HasPrefix(ct, "image/") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(filename), ".pdf") || documents.IsImageFilename(filename)
}

// FindExamAttachments searches a Zotero library, or one collection of it,
// and returns the PDF and image attachments of the matching items.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - apiKey: Zotero API key for authentication
//   - libraryID: Zotero library ID (user or group)
//   - params: Search parameters
//   - log: Logger for recording operations
func FindExamAttachments(ctx context.Context, apiKey, libraryID string, params ExamSearchParams, log logger.Logger) ([]ExamAttachment, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Zotero API key is required")
	}
	if libraryID == "" {
		return nil, fmt.Errorf("Zotero library ID is required")
	}

	client := zotero.NewClient(libraryID, zotero.LibraryTypeUser, zotero.WithAPIKey(apiKey))

	queryParams := &zotero.QueryParams{
		Q:     params.Query,
		QMode: "titleCreatorYear",
		Tag:   params.Tags,
		Limit: params.Limit,
		Sort:  "title",
	}

	var items []zotero.Item
	var err error
	if params.Collection != "" {
		if queryParams.Limit == 0 {
			queryParams.Limit = 100
		}
		items, err = client.CollectionItems(ctx, params.Collection, queryParams)
		if err != nil {
			log.Error("Failed to search collection %s: %v", params.Collection, err)
			return nil, fmt.Errorf("failed to search collection %s: %w", params.Collection, err)
		}
	} else {
		if queryParams.Limit == 0 {
			queryParams.Limit = 25
		}
		items, err = client.Items(ctx, queryParams)
		if err != nil {
			log.Error("Failed to search Zotero library: %v", err)
			return nil, fmt.Errorf("failed to search Zotero library: %w", err)
		}
	}

	log.Info("Found %d items in Zotero library", len(items))

	var attachments []ExamAttachment
	for _, item := range items {
		// Standalone attachments are exams themselves
		if item.Data.ItemType == "attachment" {
			if IsExamAttachment(item.Data.ContentType, item.Data.Filename) {
				attachments = append(attachments, ExamAttachment{
					Key:         item.Key,
					ParentKey:   item.Data.ParentItem,
					ParentTitle: item.Data.Title,
					Filename:    item.Data.Filename,
					ContentType: item.Data.ContentType,
				})
			}
			continue
		}

		children, err := client.Children(ctx, item.Key, nil)
		if err != nil {
			log.Error("Failed to retrieve children for item %s: %v", item.Key, err)
			continue
		}

		for _, child := range children {
			if child.Data.ItemType != "attachment" || !IsExamAttachment(child.Data.ContentType, child.Data.Filename) {
				continue
			}
			attachments = append(attachments, ExamAttachment{
				Key:         child.Key,
				ParentKey:   item.Key,
				ParentTitle: item.Data.Title,
				Filename:    child.Data.Filename,
				ContentType: child.Data.ContentType,
			})
		}
	}

	log.Info("Returning %d exam attachments", len(attachments))

	return dedupeAttachments(attachments), nil
}

// dedupeAttachments keeps the first occurrence of each attachment key
func dedupeAttachments(in []ExamAttachment) []ExamAttachment {
	seen := make(map[string]bool, len(in))
	out := make([]ExamAttachment, 0, len(in))
	for _, a := range in {
		if seen[a.Key] {
			continue
		}
		seen[a.Key] = true
		out = append(out, a)
	}
	return out
}
