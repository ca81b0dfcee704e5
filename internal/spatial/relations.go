package spatial

import (
	"math"

	"github.com/tidwall/rtree"

	"github.com/Epistemic-Technology/exam-mcp/internal/geometry"
	"github.com/Epistemic-Technology/exam-mcp/models"
)

const (
	// confidenceScale is the distance at which confidence falls to 1/e
	confidenceScale = 100.0
	// initialRadius is the first search window half-size, in points
	initialRadius = 50.0
	// maxRadius bounds the window growth before falling back to a full scan
	maxRadius = 1 << 14
)

// lineIndex is an R-tree of line centers for one page
type lineIndex struct {
	tree  rtree.RTreeG[int]
	lines []models.TextLine
}

func newLineIndex(lines []models.TextLine) *lineIndex {
	idx := &lineIndex{lines: lines}
	for i, l := range lines {
		c := l.BBox.Center()
		pt := [2]float64{c.X, c.Y}
		idx.tree.Insert(pt, pt, i)
	}
	return idx
}

// nearest returns the index of the line whose center is closest to p.
// The search window grows until the best candidate found lies within it,
// which guarantees no center outside the window is closer.
func (idx *lineIndex) nearest(p geometry.Point) (int, float64) {
	if len(idx.lines) == 0 {
		return -1, 0
	}
	best, bestDist := -1, math.Inf(1)
	visit := func(lo, _ [2]float64, i int) bool {
		d := math.Hypot(lo[0]-p.X, lo[1]-p.Y)
		if d < bestDist || (d == bestDist && i < best) {
			best, bestDist = i, d
		}
		return true
	}
	for r := initialRadius; r <= maxRadius; r *= 2 {
		idx.tree.Search([2]float64{p.X - r, p.Y - r}, [2]float64{p.X + r, p.Y + r}, visit)
		if best >= 0 && bestDist <= r {
			return best, bestDist
		}
	}
	idx.tree.Scan(visit)
	return best, bestDist
}

// containmentRegion is the area around a line within which an image counts
// as inline with it
func containmentRegion(l models.TextLine) geometry.BBox {
	return l.BBox.Expand(l.FontSize / 2)
}

// direction classifies where the image sits relative to the line by the
// dominant axis of the center offset (y grows downward)
func direction(line, image geometry.BBox) models.RelationKind {
	dx := image.CenterX() - line.CenterX()
	dy := image.CenterY() - line.CenterY()
	if math.Abs(dy) >= math.Abs(dx) {
		if dy > 0 {
			return models.RelationBelow
		}
		return models.RelationAbove
	}
	if dx > 0 {
		return models.RelationRight
	}
	return models.RelationLeft
}

// RelateTextAndImages links every image to one text line on its page: a line
// whose region fully contains the image, or else the line with the nearest
// center. Images on pages without text get no relationship.
func RelateTextAndImages(lines []models.TextLine, images []models.VisualElement) []models.SpatialRelationship {
	byPage := make(map[int][]models.TextLine)
	for _, l := range lines {
		byPage[l.Page] = append(byPage[l.Page], l)
	}
	indexes := make(map[int]*lineIndex)

	var out []models.SpatialRelationship
	for _, img := range images {
		pageLines := byPage[img.Page]
		if len(pageLines) == 0 || img.BBox.IsZero() {
			continue
		}

		contained := false
		for _, l := range pageLines {
			if containmentRegion(l).Contains(img.BBox) {
				out = append(out, models.SpatialRelationship{
					TextLineID: l.ID,
					ImageID:    img.ID,
					Kind:       models.RelationContained,
					Confidence: 1,
				})
				contained = true
				break
			}
		}
		if contained {
			continue
		}

		idx, ok := indexes[img.Page]
		if !ok {
			idx = newLineIndex(pageLines)
			indexes[img.Page] = idx
		}
		i, dist := idx.nearest(img.BBox.Center())
		if i < 0 {
			continue
		}
		line := pageLines[i]
		out = append(out, models.SpatialRelationship{
			TextLineID: line.ID,
			ImageID:    img.ID,
			Kind:       direction(line.BBox, img.BBox),
			Distance:   dist,
			Confidence: math.Exp(-dist / confidenceScale),
		})
	}
	return out
}
