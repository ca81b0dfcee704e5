package documents

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Epistemic-Technology/exam-mcp/models"
)

// SplitPdf splits a PDF document into single-page PDFs. Page numbers are
// 1-indexed and start at firstPage.
func SplitPdf(data []byte, firstPage int) ([]models.PageImage, error) {
	reader := bytes.NewReader(data)
	conf := model.NewDefaultConfiguration()
	pdfContext, err := api.ReadValidateAndOptimize(reader, conf)
	if err != nil {
		return nil, err
	}
	pageCount := pdfContext.PageCount
	pages := make([]models.PageImage, 0, pageCount)
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		pageReader, err := api.ExtractPage(pdfContext, pageNum)
		if err != nil {
			return nil, fmt.Errorf("failed to extract page %d: %w", pageNum, err)
		}
		pageData, err := io.ReadAll(pageReader)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d: %w", pageNum, err)
		}
		pages = append(pages, models.PageImage{
			Number:   firstPage + pageNum - 1,
			MIMEType: "application/pdf",
			Data:     pageData,
		})
	}
	return pages, nil
}

// PageImages normalizes a set of input documents into an ordered list of
// pages for the oracle. PDFs are split into single-page PDFs and rasters are
// converted to PNG. Page numbers run across all inputs in order.
func PageImages(docs []models.DocumentData) ([]models.PageImage, error) {
	var pages []models.PageImage
	for _, doc := range docs {
		next := len(pages) + 1
		switch doc.Type {
		case TypePDF:
			split, err := SplitPdf(doc.Data, next)
			if err != nil {
				return nil, &models.DocumentError{Err: fmt.Errorf("%s: %w", doc.Filename, err)}
			}
			pages = append(pages, split...)
		default:
			// Unknown inputs are treated as images
			data, mimeType := NormalizeRaster(doc.Data)
			pages = append(pages, models.PageImage{
				Number:   next,
				MIMEType: mimeType,
				Data:     data,
			})
		}
	}
	return pages, nil
}
