package storage

import (
	"fmt"

	"github.com/Epistemic-Technology/exam-mcp/models"
)

// CalculateResourcePaths generates the resource URIs available for a stored result
func CalculateResourcePaths(docID string, result *models.PipelineResult) []string {
	resourcePaths := []string{
		fmt.Sprintf("exam://%s", docID),
		fmt.Sprintf("exam://%s/questions", docID),
	}

	if n := len(result.Questions); n > 0 {
		resourcePaths = append(resourcePaths,
			fmt.Sprintf("exam://%s/questions/1", docID),
			fmt.Sprintf("exam://%s/questions/%d", docID, n),
			fmt.Sprintf("exam://%s/questions/{index}", docID),
		)
	}

	if len(result.Images) > 0 {
		resourcePaths = append(resourcePaths, fmt.Sprintf("exam://%s/images/{imageId}", docID))
	}

	return resourcePaths
}
