package extract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"golang.org/x/image/draw"

	"github.com/Epistemic-Technology/exam-mcp/internal/documents"
	"github.com/Epistemic-Technology/exam-mcp/internal/geometry"
	"github.com/Epistemic-Technology/exam-mcp/models"
)

const (
	// upscaleBelow doubles images narrower than this before recognition
	upscaleBelow = 1000
	// minOCRConfidence drops recognized lines Tesseract is unsure of (0-100)
	minOCRConfidence = 30.0
)

// OCRLine is one recognized line in image pixel coordinates
type OCRLine struct {
	Text       string
	Box        image.Rectangle
	Confidence float64
}

// OCREngine recognizes text lines in a raster image
type OCREngine interface {
	RecognizeLines(ctx context.Context, img []byte) ([]OCRLine, error)
}

// TesseractEngine runs Tesseract through gosseract. Each call uses a fresh
// client, so one engine may be shared across goroutines.
type TesseractEngine struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

func NewTesseractEngine(languages ...string) *TesseractEngine {
	return &TesseractEngine{languages: languages, clientFactory: gosseract.NewClient}
}

func (e *TesseractEngine) RecognizeLines(ctx context.Context, img []byte) ([]OCRLine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := e.clientFactory()
	defer c.Close()

	if len(e.languages) > 0 {
		if err := c.SetLanguage(e.languages...); err != nil {
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	if err := c.SetImageFromBytes(img); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("recognize lines: %w", err)
	}
	lines := make([]OCRLine, 0, len(boxes))
	for _, b := range boxes {
		lines = append(lines, OCRLine{Text: b.Word, Box: b.Box, Confidence: b.Confidence})
	}
	return lines, nil
}

// upscale doubles small images so Tesseract sees glyphs at a usable size.
// It returns the PNG bytes and the factor applied.
func upscale(data []byte) ([]byte, float64, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}
	b := src.Bounds()
	if b.Dx() >= upscaleBelow {
		out, _ := documents.NormalizeRaster(data)
		return out, 1, nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*2, b.Dy()*2))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), 2, nil
}

// ocrPage recognizes the largest raster on a page and maps the line boxes
// back into page coordinates through the image's placement
func ocrPage(ctx context.Context, engine OCREngine, page int, pageWidth, pageHeight float64, images []models.VisualElement) ([]models.TextLine, error) {
	var best *models.VisualElement
	for i := range images {
		img := &images[i]
		if img.SourceKind != models.SourceEmbedded || len(img.Data) == 0 {
			continue
		}
		if best == nil || img.Width*img.Height > best.Width*best.Height {
			best = img
		}
	}
	if best == nil {
		return nil, nil
	}

	data, factor, err := upscale(best.Data)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", best.ID, err)
	}
	recognized, err := engine.RecognizeLines(ctx, data)
	if err != nil {
		return nil, err
	}

	target := best.BBox
	if target.IsZero() {
		target = geometry.BBox{X1: pageWidth, Y1: pageHeight}
	}
	pxW := float64(best.Width) * factor
	pxH := float64(best.Height) * factor
	if pxW == 0 || pxH == 0 {
		return nil, nil
	}
	sx := target.Width() / pxW
	sy := target.Height() / pxH

	var lines []models.TextLine
	for _, l := range recognized {
		text := strings.TrimSpace(l.Text)
		if text == "" || l.Confidence < minOCRConfidence {
			continue
		}
		box := geometry.NewBBox(
			target.X0+float64(l.Box.Min.X)*sx,
			target.Y0+float64(l.Box.Min.Y)*sy,
			target.X0+float64(l.Box.Max.X)*sx,
			target.Y0+float64(l.Box.Max.Y)*sy,
		)
		size := box.Height() / (1 + descentRatio)
		if size <= 0 {
			size = defaultFontSize
		}
		lines = append(lines, models.TextLine{
			Page:     page,
			BBox:     box,
			Text:     text,
			FontSize: size,
			Strategy: models.StrategyOCR,
		})
	}
	return lines, nil
}
