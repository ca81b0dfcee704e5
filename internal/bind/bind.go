// Package bind assigns page images to the question units they illustrate.
package bind

import (
	"math"

	"github.com/Epistemic-Technology/exam-mcp/models"
)

// Bindable reports whether a visual element can be bound to a question.
// Equation regions are hints for the oracle, not figures.
func Bindable(el models.VisualElement) bool {
	return el.SourceKind != models.SourceEquationRegion && !el.BBox.IsZero()
}

// BindPage binds every image on page to at most one unit on the same page.
// Images are taken in order: a unit whose box vertically contains the image
// center wins (first match); otherwise the unit whose bottom edge is the
// closest above the image top. A unit keeps only the last image bound to it.
// It returns the IDs of images that matched no unit.
func BindPage(units []models.QuestionUnit, images []models.VisualElement, page int) []string {
	var onPage []int
	for i := range units {
		if units[i].Page == page {
			onPage = append(onPage, i)
		}
	}

	var unbound []string
	for _, img := range images {
		if img.Page != page || !Bindable(img) {
			continue
		}
		target := -1
		centerY := img.BBox.CenterY()
		for _, i := range onPage {
			if units[i].BBox.ContainsY(centerY) {
				target = i
				break
			}
		}
		if target < 0 {
			bestGap := math.Inf(1)
			for _, i := range onPage {
				bottom := units[i].BBox.Y1
				if bottom > img.BBox.Y0 {
					continue
				}
				if gap := img.BBox.Y0 - bottom; gap < bestGap {
					bestGap = gap
					target = i
				}
			}
		}
		if target < 0 {
			unbound = append(unbound, img.ID)
			continue
		}
		units[target].BoundImageID = img.ID
	}
	return unbound
}

// Bind runs BindPage for every page that has images
func Bind(units []models.QuestionUnit, images []models.VisualElement) []string {
	var pages []int
	seen := make(map[int]bool)
	for _, img := range images {
		if !seen[img.Page] {
			seen[img.Page] = true
			pages = append(pages, img.Page)
		}
	}
	var unbound []string
	for _, page := range pages {
		unbound = append(unbound, BindPage(units, images, page)...)
	}
	return unbound
}
