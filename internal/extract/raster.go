package extract

import (
	"context"
	"fmt"

	"github.com/Epistemic-Technology/exam-mcp/internal/documents"
	"github.com/Epistemic-Technology/exam-mcp/models"
)

// ExtractRaster treats a page image as a one-page document. The page is
// measured in pixels and the image itself becomes an unplaced embedded
// element, so it is never bound to a question by position.
// Text comes from OCR when an engine is configured; otherwise the page has
// no lines and only the oracle can read it.
func (e *Extractor) ExtractRaster(ctx context.Context, data []byte) (*models.Primitives, error) {
	w, h, format, err := documents.ImageConfig(data)
	if err != nil {
		return nil, &models.DocumentError{Err: fmt.Errorf("unreadable image: %w", err)}
	}

	hashes := NewHashSet()
	ids := &idSequence{}
	raw := []rawImage{{Name: "page", Data: data, Format: format, Width: w, Height: h}}
	page := models.PagePrimitives{
		Number: 1,
		Width:  float64(w),
		Height: float64(h),
		Images: buildImageElements(1, raw, nil, float64(h), hashes, ids),
	}

	if e.opts.OCR != nil {
		lines, err := ocrPage(ctx, e.opts.OCR, 1, page.Width, page.Height, page.Images)
		if err != nil {
			e.log.Warn("%v", &models.PageExtractionError{Page: 1, Err: err})
		}
		for i := range lines {
			lines[i].ID = i
		}
		page.Lines = lines
		if len(lines) > 0 {
			page.Strategy = models.StrategyOCR
		}
	}
	for _, line := range page.Lines {
		if !isEquationLine(line.Text) {
			continue
		}
		if el, ok := regionElement(1, models.SourceEquationRegion, line.BBox, hashes, ids); ok {
			page.Images = append(page.Images, el)
		}
	}

	e.log.Debug("Raster page %dx%d: %d lines, %d visual elements", w, h, len(page.Lines), len(page.Images))
	return &models.Primitives{Pages: []models.PagePrimitives{page}}, nil
}
