// Package spatial infers column layout and reading order for text lines and
// relates images to their nearest text.
package spatial

import (
	"math"
	"sort"

	"github.com/Epistemic-Technology/exam-mcp/models"
)

// columnThreshold is the share of the page width within which left edges
// belong to the same column
const columnThreshold = 0.1

// DetectColumns clusters the left edges of a page's lines and returns the
// cluster centroids in ascending order; the column count is their number.
// A cluster holding a single centered line (a title or section heading) is
// not a column.
func DetectColumns(lines []models.TextLine, pageWidth float64) []float64 {
	if len(lines) == 0 {
		return nil
	}
	left := 0.0
	if pageWidth <= 0 {
		x0, x1 := math.Inf(1), math.Inf(-1)
		for _, l := range lines {
			x0 = math.Min(x0, l.BBox.X0)
			x1 = math.Max(x1, l.BBox.X1)
		}
		left, pageWidth = x0, x1-x0
	}
	threshold := columnThreshold * pageWidth
	center := left + pageWidth/2

	sorted := make([]models.TextLine, len(lines))
	copy(sorted, lines)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].BBox.X0 < sorted[j].BBox.X0 })

	type cluster struct {
		sum   float64
		count int
		first models.TextLine
	}
	var clusters []cluster
	for _, l := range sorted {
		x := l.BBox.X0
		if n := len(clusters); n > 0 {
			c := &clusters[n-1]
			if x-c.sum/float64(c.count) <= threshold {
				c.sum += x
				c.count++
				continue
			}
		}
		clusters = append(clusters, cluster{sum: x, count: 1, first: l})
	}

	var centroids []float64
	best, bestCount := 0.0, 0
	for _, c := range clusters {
		centroid := c.sum / float64(c.count)
		if c.count > bestCount {
			best, bestCount = centroid, c.count
		}
		if c.count == 1 && len(clusters) > 1 && isCentered(c.first, center, threshold) {
			continue
		}
		centroids = append(centroids, centroid)
	}
	if len(centroids) == 0 {
		centroids = []float64{best}
	}
	return centroids
}

// isCentered reports whether a line's midpoint lies within tolerance of the
// page center
func isCentered(l models.TextLine, center, tolerance float64) bool {
	return math.Abs((l.BBox.X0+l.BBox.X1)/2-center) <= tolerance
}

// nearestColumn returns the index of the centroid closest to x
func nearestColumn(x float64, centroids []float64) int {
	best, bestDist := 0, math.Inf(1)
	for i, c := range centroids {
		if d := math.Abs(x - c); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// ComputeReadingOrder returns copies of the lines ordered page by page, with
// Column and ReadingOrder assigned. Single-column pages read top to bottom,
// left to right; multi-column pages read each column top to bottom before
// moving right. columns maps a page number to its DetectColumns result.
func ComputeReadingOrder(lines []models.TextLine, columns map[int][]float64) []models.TextLine {
	byPage := make(map[int][]models.TextLine)
	var pages []int
	for _, l := range lines {
		if _, ok := byPage[l.Page]; !ok {
			pages = append(pages, l.Page)
		}
		byPage[l.Page] = append(byPage[l.Page], l)
	}
	sort.Ints(pages)

	out := make([]models.TextLine, 0, len(lines))
	for _, page := range pages {
		pageLines := byPage[page]
		centroids := columns[page]
		for i := range pageLines {
			pageLines[i].Column = 0
			if len(centroids) > 1 {
				pageLines[i].Column = nearestColumn(pageLines[i].BBox.X0, centroids)
			}
		}
		sort.SliceStable(pageLines, func(i, j int) bool {
			a, b := pageLines[i], pageLines[j]
			if a.Column != b.Column {
				return a.Column < b.Column
			}
			if a.BBox.Y0 != b.BBox.Y0 {
				return a.BBox.Y0 < b.BBox.Y0
			}
			return a.BBox.X0 < b.BBox.X0
		})
		for i := range pageLines {
			pageLines[i].ReadingOrder = i
		}
		out = append(out, pageLines...)
	}
	return out
}

// OrderPage detects the columns of one page and returns its lines in
// reading order
func OrderPage(page models.PagePrimitives) []models.TextLine {
	cols := DetectColumns(page.Lines, page.Width)
	return ComputeReadingOrder(page.Lines, map[int][]float64{page.Number: cols})
}
