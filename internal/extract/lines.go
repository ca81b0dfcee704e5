package extract

import (
	"math"
	"sort"
	"strings"

	"github.com/Epistemic-Technology/exam-mcp/internal/geometry"
	"github.com/Epistemic-Technology/exam-mcp/models"
)

const (
	// baselineTolerance is the fraction of the font size two runs may differ
	// by vertically and still share a line
	baselineTolerance = 0.3
	// columnGapRatio splits runs on the same baseline into separate lines
	// when the horizontal gap exceeds this many font sizes
	columnGapRatio = 2.5
	// spaceGapRatio inserts a space between runs separated by more than this
	// fraction of the font size
	spaceGapRatio = 0.25
	// descentRatio approximates the glyph descent below the baseline
	descentRatio = 0.2
)

type row struct {
	y    float64
	size float64
	runs []glyphRun
}

// groupRuns assembles positioned runs (PDF user space, y up) into text lines
// in top-left page coordinates. Lines come out top to bottom, left to right.
func groupRuns(runs []glyphRun, page int, pageHeight float64, strategy models.ExtractionStrategy) []models.TextLine {
	if len(runs) == 0 {
		return nil
	}

	sorted := make([]glyphRun, 0, len(runs))
	for _, r := range runs {
		if r.Text == "" {
			continue
		}
		if r.Size <= 0 {
			r.Size = defaultFontSize
		}
		sorted = append(sorted, r)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var rows []*row
	for _, r := range sorted {
		if n := len(rows); n > 0 {
			cur := rows[n-1]
			tol := math.Max(2, baselineTolerance*math.Max(cur.size, r.Size))
			if math.Abs(cur.y-r.Y) <= tol {
				cur.runs = append(cur.runs, r)
				continue
			}
		}
		rows = append(rows, &row{y: r.Y, size: r.Size, runs: []glyphRun{r}})
	}

	if pageHeight <= 0 {
		for _, r := range sorted {
			pageHeight = math.Max(pageHeight, r.Y+r.Size)
		}
	}

	var lines []models.TextLine
	for _, rw := range rows {
		sort.SliceStable(rw.runs, func(i, j int) bool { return rw.runs[i].X < rw.runs[j].X })
		var segment []glyphRun
		for _, r := range rw.runs {
			if n := len(segment); n > 0 {
				prev := segment[n-1]
				if r.X-(prev.X+prev.W) > columnGapRatio*math.Max(prev.Size, r.Size) {
					if line, ok := buildLine(segment, page, pageHeight, strategy); ok {
						lines = append(lines, line)
					}
					segment = nil
				}
			}
			segment = append(segment, r)
		}
		if line, ok := buildLine(segment, page, pageHeight, strategy); ok {
			lines = append(lines, line)
		}
	}
	return lines
}

func buildLine(runs []glyphRun, page int, pageHeight float64, strategy models.ExtractionStrategy) (models.TextLine, bool) {
	if len(runs) == 0 {
		return models.TextLine{}, false
	}

	var sb strings.Builder
	x0, x1 := math.Inf(1), math.Inf(-1)
	top, bottom := math.Inf(-1), math.Inf(1)
	dominant := runs[0]
	for i, r := range runs {
		if i > 0 {
			prev := runs[i-1]
			gap := r.X - (prev.X + prev.W)
			if gap > spaceGapRatio*r.Size &&
				!strings.HasSuffix(prev.Text, " ") && !strings.HasPrefix(r.Text, " ") {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(r.Text)
		x0 = math.Min(x0, r.X)
		x1 = math.Max(x1, r.X+r.W)
		top = math.Max(top, r.Y+r.Size)
		bottom = math.Min(bottom, r.Y-descentRatio*r.Size)
		if len(r.Text) > len(dominant.Text) {
			dominant = r
		}
	}

	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return models.TextLine{}, false
	}
	bold, italic := fontStyle(dominant.Font)
	return models.TextLine{
		Page:     page,
		BBox:     geometry.NewBBox(x0, pageHeight-top, x1, pageHeight-bottom),
		Text:     text,
		FontSize: dominant.Size,
		IsBold:   bold,
		IsItalic: italic,
		Strategy: strategy,
	}, true
}
