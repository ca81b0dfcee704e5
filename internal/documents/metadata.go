package documents

import (
	"context"
	"fmt"
	"strings"

	"github.com/Epistemic-Technology/exam-mcp/models"
	"github.com/Epistemic-Technology/zotero/zotero"
)

// ExamInfo is descriptive metadata for an exam paper held in Zotero
type ExamInfo struct {
	Title       string
	Description string
	Filename    string
	Creators    []string
}

// FetchZoteroExamInfo retrieves metadata for a Zotero attachment or item.
// If the zoteroID is an attachment, the parent item supplies title and
// description while the attachment supplies the filename.
func FetchZoteroExamInfo(ctx context.Context, zoteroID string, apiKey string, libraryID string) (*ExamInfo, error) {
	if zoteroID == "" || apiKey == "" || libraryID == "" {
		return nil, fmt.Errorf("zoteroID, apiKey, and libraryID are required")
	}

	client := zotero.NewClient(libraryID, zotero.LibraryTypeUser, zotero.WithAPIKey(apiKey))

	item, err := client.Item(ctx, zoteroID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch Zotero item %s: %w", zoteroID, err)
	}

	info := &ExamInfo{}
	if item.Data.ItemType == "attachment" {
		info.Filename = item.Data.Filename
		info.Title = strings.TrimSuffix(item.Data.Title, ".pdf")
		if item.Data.ParentItem == "" {
			return info, nil
		}
		parent, err := client.Item(ctx, item.Data.ParentItem, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch parent item %s: %w", item.Data.ParentItem, err)
		}
		item = parent
	}

	if item.Data.Title != "" {
		info.Title = item.Data.Title
	}
	info.Description = item.Data.AbstractNote

	for _, creator := range item.Data.Creators {
		var name string
		if creator.Name != "" {
			name = creator.Name
		} else if creator.FirstName != "" || creator.LastName != "" {
			name = strings.TrimSpace(creator.FirstName + " " + creator.LastName)
		}
		if name != "" {
			info.Creators = append(info.Creators, name)
		}
	}

	return info, nil
}

// ApplyExamInfo fills the result's title and description from library
// metadata. Library metadata takes priority; the oracle's values are kept
// only when the library has none.
func ApplyExamInfo(result *models.PipelineResult, info *ExamInfo) {
	if result == nil || info == nil {
		return
	}
	if info.Title != "" {
		result.Title = info.Title
	}
	if info.Description != "" {
		result.Description = info.Description
	}
}
