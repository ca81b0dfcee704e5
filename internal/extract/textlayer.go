package extract

import (
	"context"
	"io"
	"sort"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Epistemic-Technology/exam-mcp/models"
)

// pageSource is everything a strategy may read for one page
type pageSource struct {
	Number  int
	Width   float64
	Height  float64
	Content pageContent
	Images  []models.VisualElement
}

// Strategy produces the text lines of one page. Strategies are tried in
// order and the first non-empty result wins.
type Strategy interface {
	Name() models.ExtractionStrategy
	Lines(ctx context.Context, page *pageSource) ([]models.TextLine, error)
}

// nativeTextStrategy reads the text layer with ledongthuc/pdf
type nativeTextStrategy struct {
	reader *pdf.Reader
}

func (s *nativeTextStrategy) Name() models.ExtractionStrategy { return models.StrategyNativeText }

func (s *nativeTextStrategy) Lines(ctx context.Context, page *pageSource) ([]models.TextLine, error) {
	if s.reader == nil || page.Number > s.reader.NumPage() {
		return nil, nil
	}
	p := s.reader.Page(page.Number)
	if p.V.IsNull() {
		return nil, nil
	}
	content := p.Content()
	runs := make([]glyphRun, 0, len(content.Text))
	for _, t := range content.Text {
		runs = append(runs, glyphRun{X: t.X, Y: t.Y, W: t.W, Size: t.FontSize, Font: t.Font, Text: t.S})
	}
	return groupRuns(runs, page.Number, page.Height, models.StrategyNativeText), nil
}

// contentWordsStrategy uses the runs found by the content stream
// interpreter, which copes with fonts the text layer reader rejects
type contentWordsStrategy struct{}

func (contentWordsStrategy) Name() models.ExtractionStrategy { return models.StrategyContentWords }

func (contentWordsStrategy) Lines(ctx context.Context, page *pageSource) ([]models.TextLine, error) {
	return groupRuns(page.Content.Runs, page.Number, page.Height, models.StrategyContentWords), nil
}

// ocrStrategy recognizes text on the page's largest embedded raster
type ocrStrategy struct {
	engine OCREngine
}

func (s *ocrStrategy) Name() models.ExtractionStrategy { return models.StrategyOCR }

func (s *ocrStrategy) Lines(ctx context.Context, page *pageSource) ([]models.TextLine, error) {
	return ocrPage(ctx, s.engine, page.Number, page.Width, page.Height, page.Images)
}

// readPageContent interprets the page's content stream with pdfcpu
func readPageContent(pdfCtx *model.Context, pageNr int) (pageContent, error) {
	r, err := pdfcpu.ExtractPageContent(pdfCtx, pageNr)
	if err != nil {
		return pageContent{}, err
	}
	if r == nil {
		return pageContent{}, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return pageContent{}, err
	}
	return interpretContent(data, pageFonts(pdfCtx, pageNr)), nil
}

// pageFonts maps font resource names to base font names. Errors are ignored;
// the resource name is used instead.
func pageFonts(pdfCtx *model.Context, pageNr int) map[string]string {
	fonts := make(map[string]string)
	_, _, inherited, err := pdfCtx.PageDict(pageNr, false)
	if err != nil || inherited == nil || inherited.Resources == nil {
		return fonts
	}
	obj, found := inherited.Resources.Find("Font")
	if !found {
		return fonts
	}
	fontDict, err := pdfCtx.DereferenceDict(obj)
	if err != nil || fontDict == nil {
		return fonts
	}
	for name, ref := range fontDict {
		fd, err := pdfCtx.DereferenceDict(ref)
		if err != nil || fd == nil {
			continue
		}
		if base := fd.NameEntry("BaseFont"); base != nil {
			fonts[name] = *base
		}
	}
	return fonts
}

// readPageImages loads the raster XObjects referenced by a page
func readPageImages(pdfCtx *model.Context, pageNr int) ([]rawImage, error) {
	imgs, err := pdfcpu.ExtractPageImages(pdfCtx, pageNr, false)
	if err != nil {
		return nil, err
	}
	objNrs := make([]int, 0, len(imgs))
	for nr := range imgs {
		objNrs = append(objNrs, nr)
	}
	sort.Ints(objNrs)

	out := make([]rawImage, 0, len(imgs))
	for _, nr := range objNrs {
		img := imgs[nr]
		if img.Reader == nil {
			continue
		}
		data, err := io.ReadAll(img)
		if err != nil || len(data) == 0 {
			continue
		}
		out = append(out, rawImage{
			Name:   img.Name,
			Data:   data,
			Format: img.FileType,
			Width:  img.Width,
			Height: img.Height,
		})
	}
	return out, nil
}
