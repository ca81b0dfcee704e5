package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/Epistemic-Technology/exam-mcp/models"
	"github.com/Epistemic-Technology/zotero/zotero"
)

// Document types
const (
	TypePDF     = "pdf"
	TypeImage   = "image"
	TypeUnknown = "unknown"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// DetectDocumentType determines the type of an input file. PDFs are detected
// by their magic bytes; rasters by the filename extension.
func DetectDocumentType(data []byte, filename string) string {
	if IsPDF(data) {
		return TypePDF
	}
	if IsImageFilename(filename) {
		return TypeImage
	}
	return TypeUnknown
}

// IsPDF checks for the %PDF magic number
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF"))
}

// IsImageFilename reports whether filename has a known raster extension
func IsImageFilename(filename string) bool {
	return imageExtensions[strings.ToLower(path.Ext(filename))]
}

// FromInput wraps an input file with its detected type
func FromInput(in models.InputFile) models.DocumentData {
	return models.DocumentData{
		Data:     in.Content,
		Type:     DetectDocumentType(in.Content, in.Filename),
		Filename: in.Filename,
	}
}

// GetData retrieves document data from a source and detects its type
func GetData(ctx context.Context, sourceInfo models.SourceInfo, zoteroAPIKey, zoteroLibraryID string) (models.DocumentData, error) {
	var data []byte
	var filename string
	var err error

	if sourceInfo.ZoteroID != "" {
		data, err = GetFromZotero(ctx, sourceInfo.ZoteroID, zoteroAPIKey, zoteroLibraryID)
		if err != nil {
			return models.DocumentData{}, fmt.Errorf("failed to fetch Zotero item %s: %w", sourceInfo.ZoteroID, err)
		}
		filename = sourceInfo.ZoteroID
	} else if sourceInfo.URL != "" {
		data, err = GetFromURL(ctx, sourceInfo.URL)
		if err != nil {
			return models.DocumentData{}, fmt.Errorf("failed to fetch %s: %w", sourceInfo.URL, err)
		}
		filename = path.Base(sourceInfo.URL)
	} else {
		return models.DocumentData{}, errors.New("no data provided")
	}

	if len(data) == 0 {
		return models.DocumentData{}, errors.New("no data retrieved")
	}

	return models.DocumentData{
		Data:     data,
		Type:     DetectDocumentType(data, filename),
		Filename: filename,
	}, nil
}

// GetFromURL fetches document data from a URL
func GetFromURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// GetFromZotero fetches an attachment file from a Zotero library
func GetFromZotero(ctx context.Context, zoteroID string, apiKey string, libraryID string) ([]byte, error) {
	if apiKey == "" || libraryID == "" {
		return nil, errors.New("ZOTERO_API_KEY and ZOTERO_LIBRARY_ID must be set")
	}
	client := zotero.NewClient(libraryID, zotero.LibraryTypeUser, zotero.WithAPIKey(apiKey))
	data, err := client.File(ctx, zoteroID)
	if err != nil {
		return nil, err
	}
	return data, nil
}
