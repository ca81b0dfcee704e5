package bind

import (
	"testing"

	"github.com/Epistemic-Technology/exam-mcp/internal/geometry"
	"github.com/Epistemic-Technology/exam-mcp/models"
)

func unit(id string, page int, y0, y1 float64) models.QuestionUnit {
	return models.QuestionUnit{
		ID:   models.QuestionID(id),
		Page: page,
		BBox: geometry.BBox{X0: 0, Y0: y0, X1: 100, Y1: y1},
	}
}

func image(id string, page int, y0, y1 float64) models.VisualElement {
	return models.VisualElement{
		ID:         id,
		Page:       page,
		BBox:       geometry.BBox{X0: 10, Y0: y0, X1: 20, Y1: y1},
		SourceKind: models.SourceEmbedded,
	}
}

func TestBindPage_ContainmentWins(t *testing.T) {
	units := []models.QuestionUnit{unit("1", 1, 0, 100), unit("2", 1, 200, 300)}
	unbound := BindPage(units, []models.VisualElement{image("IMG_0", 1, 10, 20)}, 1)
	if len(unbound) != 0 {
		t.Errorf("unexpected unbound images %v", unbound)
	}
	if units[0].BoundImageID != "IMG_0" {
		t.Errorf("expected IMG_0 on question 1, got %q", units[0].BoundImageID)
	}
	if units[1].BoundImageID != "" {
		t.Errorf("question 2 should stay unbound, got %q", units[1].BoundImageID)
	}
}

func TestBindPage(t *testing.T) {
	tests := []struct {
		name    string
		units   []models.QuestionUnit
		images  []models.VisualElement
		want    []string
		unbound []string
	}{
		{
			name:   "nearest above",
			units:  []models.QuestionUnit{unit("1", 1, 0, 100), unit("2", 1, 120, 180)},
			images: []models.VisualElement{image("IMG_0", 1, 190, 260)},
			want:   []string{"", "IMG_0"},
		},
		{
			name:    "above every question",
			units:   []models.QuestionUnit{unit("1", 1, 300, 400)},
			images:  []models.VisualElement{image("IMG_0", 1, 10, 50)},
			want:    []string{""},
			unbound: []string{"IMG_0"},
		},
		{
			name:   "last write wins",
			units:  []models.QuestionUnit{unit("1", 1, 0, 100)},
			images: []models.VisualElement{image("IMG_0", 1, 10, 20), image("IMG_1", 1, 150, 200)},
			want:   []string{"IMG_1"},
		},
		{
			name:   "other pages ignored",
			units:  []models.QuestionUnit{unit("1", 2, 0, 100)},
			images: []models.VisualElement{image("IMG_0", 1, 10, 20)},
			want:   []string{""},
		},
		{
			name:  "equation regions are not bound",
			units: []models.QuestionUnit{unit("1", 1, 0, 100)},
			images: []models.VisualElement{{
				ID: "IMG_0", Page: 1, SourceKind: models.SourceEquationRegion,
				BBox: geometry.BBox{X0: 10, Y0: 10, X1: 90, Y1: 20},
			}},
			want: []string{""},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unbound := BindPage(tt.units, tt.images, 1)
			for i, want := range tt.want {
				if got := tt.units[i].BoundImageID; got != want {
					t.Errorf("unit %d bound %q, want %q", i, got, want)
				}
			}
			if len(unbound) != len(tt.unbound) {
				t.Errorf("unbound = %v, want %v", unbound, tt.unbound)
			}
		})
	}
}

func TestBind_AllPages(t *testing.T) {
	units := []models.QuestionUnit{unit("1", 1, 0, 100), unit("2", 2, 0, 100)}
	images := []models.VisualElement{image("IMG_0", 2, 10, 20), image("IMG_1", 1, 50, 60)}
	Bind(units, images)
	if units[0].BoundImageID != "IMG_1" || units[1].BoundImageID != "IMG_0" {
		t.Errorf("unexpected bindings %q, %q", units[0].BoundImageID, units[1].BoundImageID)
	}
}
