package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/Epistemic-Technology/exam-mcp/internal/documents"
	"github.com/Epistemic-Technology/exam-mcp/internal/geometry"
	"github.com/Epistemic-Technology/exam-mcp/models"
)

// minImageSide drops decorative images smaller than this many pixels on
// either side
const minImageSide = 20

// HashSet records the content hashes of visual elements already emitted
// for a document
type HashSet struct {
	seen map[string]struct{}
}

func NewHashSet() *HashSet {
	return &HashSet{seen: make(map[string]struct{})}
}

// Add records hash and reports whether it was new
func (h *HashSet) Add(hash string) bool {
	if _, ok := h.seen[hash]; ok {
		return false
	}
	h.seen[hash] = struct{}{}
	return true
}

func (h *HashSet) Len() int {
	return len(h.seen)
}

// HashBytes returns the hex SHA-256 of data
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// rawImage is an image XObject read from a page's resources
type rawImage struct {
	Name   string
	Data   []byte
	Format string
	Width  int
	Height int
}

// idSequence hands out document-unique image IDs
type idSequence struct {
	next int
}

func (s *idSequence) id() string {
	id := fmt.Sprintf("IMG_%d", s.next)
	s.next++
	return id
}

func sizeClass(width, height float64) models.SizeClass {
	area := width * height
	switch {
	case area < 64*64:
		return models.SizeIcon
	case area < 200*200:
		return models.SizeSmall
	case area < 600*600:
		return models.SizeMedium
	default:
		return models.SizeLarge
	}
}

// buildImageElements turns the page's raster images into visual elements.
// Each placement of an image yields a candidate; candidates whose bytes were
// already emitted anywhere in the document are dropped, so repeated or
// duplicated images appear once with the bbox of their first placement.
// Images that are never placed directly (e.g. drawn inside a form) are
// emitted without a bbox.
func buildImageElements(page int, images []rawImage, placements []placement, pageHeight float64, hashes *HashSet, ids *idSequence) []models.VisualElement {
	byName := make(map[string]*rawImage, len(images))
	for i := range images {
		img := &images[i]
		if img.Width == 0 || img.Height == 0 {
			if w, h, format, err := documents.ImageConfig(img.Data); err == nil {
				img.Width, img.Height = w, h
				if img.Format == "" {
					img.Format = format
				}
			}
		}
		byName[img.Name] = img
	}

	var out []models.VisualElement
	emit := func(img *rawImage, box geometry.BBox) {
		if img.Width < minImageSide || img.Height < minImageSide {
			return
		}
		hash := HashBytes(img.Data)
		if !hashes.Add(hash) {
			return
		}
		out = append(out, models.VisualElement{
			ID:         ids.id(),
			Page:       page,
			BBox:       box,
			Data:       img.Data,
			Format:     img.Format,
			SourceKind: models.SourceEmbedded,
			SizeClass:  sizeClass(float64(img.Width), float64(img.Height)),
			Width:      img.Width,
			Height:     img.Height,
			Hash:       hash,
		})
	}

	placed := make(map[string]bool)
	for _, p := range placements {
		img, ok := byName[p.Name]
		if !ok {
			continue
		}
		placed[p.Name] = true
		emit(img, toTopLeft(p.BBox, pageHeight))
	}
	for i := range images {
		if !placed[images[i].Name] {
			emit(&images[i], geometry.BBox{})
		}
	}
	return out
}

// toTopLeft converts a user-space box (y up) to page coordinates with the
// origin at the top-left corner
func toTopLeft(b geometry.BBox, pageHeight float64) geometry.BBox {
	return geometry.NewBBox(b.X0, pageHeight-b.Y1, b.X1, pageHeight-b.Y0)
}
