package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Epistemic-Technology/exam-mcp/internal/geometry"
	"github.com/Epistemic-Technology/exam-mcp/models"
)

const (
	// clusterDistance joins drawings whose centers are this close into one region
	clusterDistance = 50.0
	// minRegionSide drops vector regions smaller than this on either side
	minRegionSide = 50.0
	// frameCoverage marks a region as a page frame or background when it
	// covers this fraction of the page area
	frameCoverage = 0.8
	// equationRatio is the share of math characters a line needs to be
	// treated as an equation
	equationRatio = 0.2
	// minEquationLength ignores short lines such as "(A)"
	minEquationLength = 5
)

const mathSymbols = "∫∑∏√∞≈≠≤≥±×÷∂∇αβγδθλμπσω∈∉⊂⊃∪∩→⇒⇔"
const equationChars = "=+-/^()[]"

// detectVectorRegions clusters painted path envelopes into diagram regions.
// Input and output boxes are in top-left page coordinates.
func detectVectorRegions(paths []geometry.BBox, pageWidth, pageHeight float64) []geometry.BBox {
	var regions []geometry.BBox
	for _, p := range paths {
		if p.Width() == 0 && p.Height() == 0 {
			continue
		}
		merged := false
		for i, r := range regions {
			if r.CenterDistance(p) <= clusterDistance {
				regions[i] = r.Union(p)
				merged = true
				break
			}
		}
		if !merged {
			regions = append(regions, p)
		}
	}

	pageArea := pageWidth * pageHeight
	var out []geometry.BBox
	for _, r := range regions {
		if r.Width() < minRegionSide || r.Height() < minRegionSide {
			continue
		}
		if pageArea > 0 && r.Area() >= frameCoverage*pageArea {
			continue
		}
		out = append(out, r)
	}
	return out
}

// isEquationLine reports whether a line is dominated by math notation
func isEquationLine(text string) bool {
	text = strings.TrimSpace(text)
	n := utf8.RuneCountInString(text)
	if n < minEquationLength {
		return false
	}
	count := 0
	for _, r := range text {
		if strings.ContainsRune(mathSymbols, r) || strings.ContainsRune(equationChars, r) {
			count++
		}
	}
	return float64(count)/float64(n) > equationRatio
}

func regionElement(page int, kind models.SourceKind, box geometry.BBox, hashes *HashSet, ids *idSequence) (models.VisualElement, bool) {
	hash := HashBytes([]byte(fmt.Sprintf("%s:%d:%.1f,%.1f,%.1f,%.1f", kind, page, box.X0, box.Y0, box.X1, box.Y1)))
	if !hashes.Add(hash) {
		return models.VisualElement{}, false
	}
	return models.VisualElement{
		ID:         ids.id(),
		Page:       page,
		BBox:       box,
		SourceKind: kind,
		SizeClass:  sizeClass(box.Width(), box.Height()),
		Width:      int(box.Width()),
		Height:     int(box.Height()),
		Hash:       hash,
	}, true
}
