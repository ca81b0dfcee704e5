// Package extract turns a PDF into positioned text lines and visual elements
// (embedded images, vector diagram regions and equation regions) per page.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Epistemic-Technology/exam-mcp/internal/documents"
	"github.com/Epistemic-Technology/exam-mcp/internal/geometry"
	"github.com/Epistemic-Technology/exam-mcp/internal/logger"
	"github.com/Epistemic-Technology/exam-mcp/models"
)

// Options configure an Extractor
type Options struct {
	// OCR is used on pages without a text layer. Nil disables OCR.
	OCR OCREngine
}

// Extractor reads geometry primitives from PDF documents
type Extractor struct {
	opts Options
	log  logger.Logger
}

func New(opts Options, log logger.Logger) *Extractor {
	return &Extractor{opts: opts, log: logger.WithComponent(log, "extract")}
}

// Extract reads every page of a PDF. A document that cannot be opened yields
// a *models.DocumentError; a page that fails is logged and returned empty so
// the remaining pages still come through.
func (e *Extractor) Extract(ctx context.Context, data []byte) (*models.Primitives, error) {
	if !documents.IsPDF(data) {
		return nil, &models.DocumentError{Err: errors.New("not a PDF")}
	}
	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		if isEncryptionError(err) {
			return nil, &models.DocumentError{Err: fmt.Errorf("%w: %v", models.ErrEncryptedDocument, err)}
		}
		return nil, &models.DocumentError{Err: err}
	}

	dims, err := pdfCtx.PageDims()
	if err != nil {
		e.log.Warn("Failed to read page dimensions: %v", err)
	}

	native, err := openTextLayer(data)
	if err != nil {
		e.log.Debug("Text layer reader unavailable, using content streams only: %v", err)
	}

	strategies := []Strategy{&nativeTextStrategy{reader: native}, contentWordsStrategy{}}
	if e.opts.OCR != nil {
		strategies = append(strategies, &ocrStrategy{engine: e.opts.OCR})
	}

	hashes := NewHashSet()
	ids := &idSequence{}
	size := func(pageNum int) (float64, float64) {
		if pageNum-1 < len(dims) {
			return dims[pageNum-1].Width, dims[pageNum-1].Height
		}
		return 0, 0
	}
	return e.collectPages(ctx, pdfCtx.PageCount, size, func(ctx context.Context, pageNum int, width, height float64) (models.PagePrimitives, error) {
		return e.extractPage(ctx, pdfCtx, strategies, pageNum, width, height, hashes, ids)
	})
}

// pageFunc extracts the primitives of one page
type pageFunc func(ctx context.Context, pageNum int, width, height float64) (models.PagePrimitives, error)

// collectPages runs extract for pages 1..count and numbers the lines of the
// whole document. A page that fails or panics is logged as a
// *models.PageExtractionError and kept as an empty page.
func (e *Extractor) collectPages(ctx context.Context, count int, size func(pageNum int) (float64, float64), extract pageFunc) (*models.Primitives, error) {
	lineID := 0
	result := &models.Primitives{Pages: make([]models.PagePrimitives, 0, count)}

	for pageNum := 1; pageNum <= count; pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		width, height := size(pageNum)

		page, err := safePage(ctx, extract, pageNum, width, height)
		if err != nil {
			e.log.Warn("%v", &models.PageExtractionError{Page: pageNum, Err: err})
			page = models.PagePrimitives{Number: pageNum, Width: width, Height: height}
		}
		for i := range page.Lines {
			page.Lines[i].ID = lineID
			lineID++
		}
		e.log.Debug("Page %d: %d lines (%s), %d visual elements", pageNum, len(page.Lines), page.Strategy, len(page.Images))
		result.Pages = append(result.Pages, page)
	}

	return result, nil
}

func safePage(ctx context.Context, extract pageFunc, pageNum int, width, height float64) (page models.PagePrimitives, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return extract(ctx, pageNum, width, height)
}

func (e *Extractor) extractPage(ctx context.Context, pdfCtx *model.Context, strategies []Strategy, pageNum int, width, height float64, hashes *HashSet, ids *idSequence) (models.PagePrimitives, error) {
	content, err := readPageContent(pdfCtx, pageNum)
	if err != nil {
		e.log.Debug("Page %d: content stream unreadable: %v", pageNum, err)
	}

	raws, err := readPageImages(pdfCtx, pageNum)
	if err != nil {
		e.log.Debug("Page %d: images unreadable: %v", pageNum, err)
	}

	src := &pageSource{Number: pageNum, Width: width, Height: height, Content: content}
	src.Images = buildImageElements(pageNum, raws, content.Placements, height, hashes, ids)

	page := models.PagePrimitives{Number: pageNum, Width: width, Height: height, Images: src.Images}
	page.Lines, page.Strategy = e.runStrategies(ctx, strategies, src)

	paths := make([]geometry.BBox, 0, len(content.Paths))
	for _, p := range content.Paths {
		paths = append(paths, toTopLeft(p, height))
	}
	for _, region := range detectVectorRegions(paths, width, height) {
		if el, ok := regionElement(pageNum, models.SourceVectorGraphic, region, hashes, ids); ok {
			page.Images = append(page.Images, el)
		}
	}
	for _, line := range page.Lines {
		if !isEquationLine(line.Text) {
			continue
		}
		if el, ok := regionElement(pageNum, models.SourceEquationRegion, line.BBox, hashes, ids); ok {
			page.Images = append(page.Images, el)
		}
	}
	return page, nil
}

func (e *Extractor) runStrategies(ctx context.Context, strategies []Strategy, src *pageSource) ([]models.TextLine, models.ExtractionStrategy) {
	for _, s := range strategies {
		lines, err := safeLines(ctx, s, src)
		if err != nil {
			e.log.Debug("Page %d: %s failed: %v", src.Number, s.Name(), err)
			continue
		}
		if len(lines) > 0 {
			return lines, s.Name()
		}
	}
	return nil, ""
}

// safeLines runs a strategy, turning a panic in a third-party parser into an error
func safeLines(ctx context.Context, s Strategy, src *pageSource) (lines []models.TextLine, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Lines(ctx, src)
}

func openTextLayer(data []byte) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r, err = nil, fmt.Errorf("panic: %v", rec)
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

func isEncryptionError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "encrypt") || strings.Contains(msg, "password")
}
