package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/Epistemic-Technology/exam-mcp/internal/geometry"
	"github.com/Epistemic-Technology/exam-mcp/internal/logger"
	"github.com/Epistemic-Technology/exam-mcp/models"
)

// buildPDF assembles a one-page PDF with a Helvetica font and the given
// content stream, computing the xref offsets.
func buildPDF(content string) []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica-Bold >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestExtract_NotPDF(t *testing.T) {
	e := New(Options{}, logger.NewNoOpLogger())
	_, err := e.Extract(context.Background(), []byte("hello"))
	var docErr *models.DocumentError
	if !errors.As(err, &docErr) {
		t.Fatalf("expected DocumentError, got %v", err)
	}
}

func TestExtract_TruncatedPDF(t *testing.T) {
	e := New(Options{}, logger.NewNoOpLogger())
	_, err := e.Extract(context.Background(), []byte("%PDF-1.4\n1 0 obj\n<<"))
	var docErr *models.DocumentError
	if !errors.As(err, &docErr) {
		t.Fatalf("expected DocumentError, got %v", err)
	}
}

func TestExtract_TextPage(t *testing.T) {
	data := buildPDF("BT /F1 12 Tf 72 720 Td (1. What is the value) Tj 0 -20 Td (A. four) Tj ET")
	e := New(Options{}, logger.NewNoOpLogger())
	prims, err := e.Extract(context.Background(), data)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(prims.Pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(prims.Pages))
	}
	page := prims.Pages[0]
	if page.Number != 1 {
		t.Errorf("expected page number 1, got %d", page.Number)
	}
	if len(page.Lines) < 2 {
		t.Fatalf("expected at least 2 lines, got %d", len(page.Lines))
	}
	first := strings.ReplaceAll(page.Lines[0].Text, " ", "")
	if !strings.Contains(first, "Whatisthe") {
		t.Errorf("unexpected first line %q", page.Lines[0].Text)
	}
	if page.Lines[0].BBox.Y0 >= page.Lines[1].BBox.Y0 {
		t.Errorf("expected first line above second: %+v %+v", page.Lines[0].BBox, page.Lines[1].BBox)
	}
	for i, line := range page.Lines {
		if line.ID != i {
			t.Errorf("line %d has ID %d", i, line.ID)
		}
		if line.Page != 1 {
			t.Errorf("line %d has page %d", i, line.Page)
		}
	}
}

func TestCollectPages_FailedPagesStayEmpty(t *testing.T) {
	e := New(Options{}, logger.NewNoOpLogger())
	size := func(pageNum int) (float64, float64) { return 612, 792 }
	extract := func(ctx context.Context, pageNum int, width, height float64) (models.PagePrimitives, error) {
		switch pageNum {
		case 2:
			panic("corrupt content stream")
		case 3:
			return models.PagePrimitives{}, errors.New("unreadable page")
		}
		return models.PagePrimitives{
			Number: pageNum, Width: width, Height: height, Strategy: models.StrategyOCR,
			Lines: []models.TextLine{
				{Page: pageNum, Text: fmt.Sprintf("%d. first", pageNum)},
				{Page: pageNum, Text: "A. option"},
			},
		}, nil
	}

	prims, err := e.collectPages(context.Background(), 4, size, extract)
	if err != nil {
		t.Fatalf("collectPages failed: %v", err)
	}
	if len(prims.Pages) != 4 {
		t.Fatalf("expected 4 pages, got %d", len(prims.Pages))
	}
	for i, page := range prims.Pages {
		if page.Number != i+1 || page.Width != 612 || page.Height != 792 {
			t.Errorf("page %d: unexpected header %+v", i+1, page)
		}
	}
	for _, n := range []int{2, 3} {
		if page := prims.Pages[n-1]; len(page.Lines) != 0 || len(page.Images) != 0 {
			t.Errorf("failed page %d should be empty, got %+v", n, page)
		}
	}
	var ids []int
	for _, n := range []int{1, 4} {
		page := prims.Pages[n-1]
		if len(page.Lines) != 2 {
			t.Fatalf("page %d: expected 2 lines, got %d", n, len(page.Lines))
		}
		for _, l := range page.Lines {
			ids = append(ids, l.ID)
		}
	}
	if want := []int{0, 1, 2, 3}; fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Errorf("line IDs = %v, want %v", ids, want)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.collectPages(ctx, 4, size, extract); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestInterpretContent(t *testing.T) {
	stream := `q 200 0 0 100 50 600 cm /Im1 Do Q
BT /F1 10 Tf 1 0 0 1 72 500 Tm (Hello) Tj [(Wor) -300 (ld)] TJ T* ET
BI /W 2 /H 2 /BPC 8 /CS /G ID ab)(EI cd EI
10 10 m 100 10 l 100 80 l S
% comment with (parens
BT /F2 8 Tf 0 -12 TD <00410042> Tj ET`
	got := interpretContent([]byte(stream), map[string]string{"F1": "Times-Bold"})

	if len(got.Placements) != 1 {
		t.Fatalf("expected 1 placement, got %d", len(got.Placements))
	}
	want := geometry.BBox{X0: 50, Y0: 600, X1: 250, Y1: 700}
	if got.Placements[0].Name != "Im1" || got.Placements[0].BBox != want {
		t.Errorf("unexpected placement %+v", got.Placements[0])
	}

	if len(got.Runs) != 4 {
		t.Fatalf("expected 4 runs, got %d: %+v", len(got.Runs), got.Runs)
	}
	if got.Runs[0].Text != "Hello" || got.Runs[0].X != 72 || got.Runs[0].Y != 500 {
		t.Errorf("unexpected first run %+v", got.Runs[0])
	}
	if got.Runs[0].Font != "Times-Bold" || got.Runs[0].Size != 10 {
		t.Errorf("unexpected font %q size %v", got.Runs[0].Font, got.Runs[0].Size)
	}
	if got.Runs[1].X <= got.Runs[0].X {
		t.Errorf("expected text position to advance")
	}
	if got.Runs[2].X-(got.Runs[1].X+got.Runs[1].W) <= 0 {
		t.Errorf("expected TJ adjustment to leave a gap")
	}
	if got.Runs[3].Text != "AB" {
		t.Errorf("expected two-byte string decoded as AB, got %q", got.Runs[3].Text)
	}

	if len(got.Paths) != 1 {
		t.Fatalf("expected 1 path, got %d", len(got.Paths))
	}
	if got.Paths[0] != (geometry.BBox{X0: 10, Y0: 10, X1: 100, Y1: 80}) {
		t.Errorf("unexpected path %+v", got.Paths[0])
	}
}

func TestLiteralStringEscapes(t *testing.T) {
	l := lexer{data: []byte(`(a\(b\)c \101 (nested) \\)`)}
	tok := l.next()
	if tok.kind != tokString {
		t.Fatalf("expected string token, got %v", tok.kind)
	}
	if got := string(tok.text); got != `a(b)c A (nested) \` {
		t.Errorf("got %q", got)
	}
}

func TestGroupRuns_TwoColumns(t *testing.T) {
	runs := []glyphRun{
		{X: 300, Y: 700, W: 100, Size: 10, Text: "2. Right"},
		{X: 50, Y: 700, W: 100, Size: 10, Text: "1. Left"},
		{X: 50, Y: 685, W: 40, Size: 10, Text: "A."},
		{X: 95, Y: 685.5, W: 40, Size: 10, Text: "alpha"},
	}
	lines := groupRuns(runs, 1, 792, models.StrategyContentWords)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %+v", len(lines), lines)
	}
	if lines[0].Text != "1. Left" || lines[1].Text != "2. Right" {
		t.Errorf("unexpected order %q, %q", lines[0].Text, lines[1].Text)
	}
	if lines[2].Text != "A. alpha" {
		t.Errorf("expected space inserted across gap, got %q", lines[2].Text)
	}
	if lines[0].BBox.Y0 != 792-710 {
		t.Errorf("expected top-left origin, got %+v", lines[0].BBox)
	}
	if lines[0].Strategy != models.StrategyContentWords {
		t.Errorf("unexpected strategy %q", lines[0].Strategy)
	}
}

func TestFontStyle(t *testing.T) {
	tests := []struct {
		name         string
		bold, italic bool
	}{
		{"Helvetica", false, false},
		{"ABCDEF+Arial,BoldItalic", true, true},
		{"Times-Oblique", false, true},
		{"MinionPro-Semibold", true, false},
		{"", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bold, italic := fontStyle(tt.name)
			if bold != tt.bold || italic != tt.italic {
				t.Errorf("fontStyle(%q) = %v, %v; want %v, %v", tt.name, bold, italic, tt.bold, tt.italic)
			}
		})
	}
}

func testPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestBuildImageElements_DuplicateSuppression(t *testing.T) {
	data := testPNG(t, 40, 40, color.Black)
	images := []rawImage{
		{Name: "Im1", Data: data, Format: "png"},
		{Name: "Im2", Data: append([]byte(nil), data...), Format: "png"},
		{Name: "Tiny", Data: testPNG(t, 10, 10, color.White), Format: "png"},
	}
	placements := []placement{
		{Name: "Im1", BBox: geometry.BBox{X0: 10, Y0: 600, X1: 110, Y1: 700}},
		{Name: "Im2", BBox: geometry.BBox{X0: 200, Y0: 600, X1: 300, Y1: 700}},
		{Name: "Im1", BBox: geometry.BBox{X0: 10, Y0: 100, X1: 110, Y1: 200}},
		{Name: "Tiny", BBox: geometry.BBox{X0: 0, Y0: 0, X1: 5, Y1: 5}},
	}
	hashes := NewHashSet()
	ids := &idSequence{}
	got := buildImageElements(1, images, placements, 792, hashes, ids)
	if len(got) != 1 {
		t.Fatalf("expected 1 element, got %d", len(got))
	}
	el := got[0]
	if el.ID != "IMG_0" || el.Width != 40 || el.Height != 40 {
		t.Errorf("unexpected element %+v", el)
	}
	if el.BBox != (geometry.BBox{X0: 10, Y0: 92, X1: 110, Y1: 192}) {
		t.Errorf("expected first placement in top-left coords, got %+v", el.BBox)
	}
	if el.SizeClass != models.SizeIcon {
		t.Errorf("unexpected size class %q", el.SizeClass)
	}

	// The same bytes on a later page are suppressed too
	again := buildImageElements(2, images[:1], placements[:1], 792, hashes, ids)
	if len(again) != 0 {
		t.Errorf("expected duplicate across pages to be dropped, got %d", len(again))
	}
}

func TestDetectVectorRegions(t *testing.T) {
	paths := []geometry.BBox{
		{X0: 100, Y0: 100, X1: 160, Y1: 130},
		{X0: 120, Y0: 120, X1: 180, Y1: 170},
		{X0: 400, Y0: 400, X1: 410, Y1: 410},
		{X0: 0, Y0: 0, X1: 612, Y1: 792},
	}
	got := detectVectorRegions(paths, 612, 792)
	if len(got) != 1 {
		t.Fatalf("expected 1 region, got %d: %+v", len(got), got)
	}
	if got[0] != (geometry.BBox{X0: 100, Y0: 100, X1: 180, Y1: 170}) {
		t.Errorf("unexpected region %+v", got[0])
	}
}

func TestIsEquationLine(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"x^2 + y^2 = r^2", true},
		{"∫ f(x) dx = F(x)", true},
		{"What is the capital of France?", false},
		{"(A)", false},
	}
	for _, tt := range tests {
		if got := isEquationLine(tt.text); got != tt.want {
			t.Errorf("isEquationLine(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

type fakeOCR struct {
	lines []OCRLine
	got   []byte
}

func (f *fakeOCR) RecognizeLines(ctx context.Context, img []byte) ([]OCRLine, error) {
	f.got = img
	return f.lines, nil
}

func TestOCRPage_MapsToPlacement(t *testing.T) {
	engine := &fakeOCR{lines: []OCRLine{
		{Text: "1. Scanned question\n", Box: image.Rect(0, 0, 200, 20), Confidence: 90},
		{Text: "noise", Box: image.Rect(0, 40, 50, 60), Confidence: 5},
	}}
	images := []models.VisualElement{{
		ID: "IMG_0", SourceKind: models.SourceEmbedded, Width: 100, Height: 100,
		Data: testPNG(t, 100, 100, color.White),
		BBox: geometry.BBox{X0: 0, Y0: 0, X1: 100, Y1: 100},
	}}
	lines, err := ocrPage(context.Background(), engine, 3, 612, 792, images)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected 1 confident line, got %d", len(lines))
	}
	// 100px image upscaled to 200px and placed in a 100pt box
	if lines[0].BBox != (geometry.BBox{X0: 0, Y0: 0, X1: 100, Y1: 10}) {
		t.Errorf("unexpected bbox %+v", lines[0].BBox)
	}
	if lines[0].Text != "1. Scanned question" || lines[0].Page != 3 || lines[0].Strategy != models.StrategyOCR {
		t.Errorf("unexpected line %+v", lines[0])
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(engine.got))
	if err != nil || cfg.Width != 200 {
		t.Errorf("expected upscaled 200px image, got %v (%v)", cfg.Width, err)
	}
}

func TestExtractRaster(t *testing.T) {
	engine := &fakeOCR{lines: []OCRLine{
		{Text: "Q.1 Which gas is inert?", Box: image.Rect(100, 100, 500, 140), Confidence: 88},
	}}
	ex := New(Options{OCR: engine}, logger.NewNoOpLogger())

	prims, err := ex.ExtractRaster(context.Background(), testPNG(t, 1200, 600, color.White))
	if err != nil {
		t.Fatalf("ExtractRaster failed: %v", err)
	}
	if len(prims.Pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(prims.Pages))
	}
	page := prims.Pages[0]
	if page.Width != 1200 || page.Height != 600 {
		t.Errorf("page size = %vx%v, want 1200x600", page.Width, page.Height)
	}
	if len(page.Images) != 1 || !page.Images[0].BBox.IsZero() {
		t.Errorf("expected one unplaced page image, got %+v", page.Images)
	}
	if len(page.Lines) != 1 || page.Strategy != models.StrategyOCR {
		t.Fatalf("expected one OCR line, got %d (%s)", len(page.Lines), page.Strategy)
	}
	if got := page.Lines[0].BBox; got.X0 != 100 || got.Y0 != 100 || got.X1 != 500 {
		t.Errorf("line bbox = %+v", got)
	}

	if _, err := ex.ExtractRaster(context.Background(), []byte("not an image")); err == nil {
		t.Error("expected error for undecodable bytes")
	} else {
		var docErr *models.DocumentError
		if !errors.As(err, &docErr) {
			t.Errorf("expected DocumentError, got %T", err)
		}
	}
}
