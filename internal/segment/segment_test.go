package segment

import (
	"testing"

	"github.com/Epistemic-Technology/exam-mcp/internal/geometry"
	"github.com/Epistemic-Technology/exam-mcp/models"
)

func lines(page int, texts ...string) []models.TextLine {
	out := make([]models.TextLine, len(texts))
	for i, text := range texts {
		y := float64(100 + 20*i)
		out[i] = models.TextLine{
			ID:   i,
			Page: page,
			BBox: geometry.BBox{X0: 50, Y0: y, X1: 500, Y1: y + 12},
			Text: text,
		}
	}
	return out
}

func opt(o *models.Options, letter string) string {
	if v := o.Get(letter); v != nil {
		return *v
	}
	return "<nil>"
}

func TestSegment(t *testing.T) {
	input := lines(1,
		"PHYSICS MOCK TEST",
		"Instructions: answer all questions",
		"1. A ball is thrown upward",
		"with speed 10 m/s.",
		"(A) 5 m",
		"(B) 10 m",
		"continued option text",
		"Page 2",
		"C. 15 m",
		"d) 20 m",
		"Q2 Which is a vector?",
		"12",
		"A. mass",
		"Question 3 Define work.",
		"Copyright 2024 Institute",
	)
	units := Segment(input)
	if len(units) != 3 {
		t.Fatalf("expected 3 units, got %d", len(units))
	}

	q1 := units[0]
	if q1.Index != 1 || q1.ID != "1" {
		t.Errorf("unexpected index/id %d/%q", q1.Index, q1.ID)
	}
	if q1.Text != "1. A ball is thrown upward\nwith speed 10 m/s." {
		t.Errorf("unexpected body %q", q1.Text)
	}
	if got := opt(q1.Options, "B"); got != "(B) 10 m continued option text" {
		t.Errorf("option B = %q", got)
	}
	if got := opt(q1.Options, "C"); got != "C. 15 m" {
		t.Errorf("option C = %q", got)
	}
	if got := opt(q1.Options, "D"); got != "d) 20 m" {
		t.Errorf("option D = %q", got)
	}
	// anchor, body, four options and one continuation; noise excluded
	if len(q1.Lines) != 7 {
		t.Errorf("expected 7 lines, got %d", len(q1.Lines))
	}
	if q1.BBox != (geometry.BBox{X0: 50, Y0: 140, X1: 500, Y1: 292}) {
		t.Errorf("unexpected bbox %+v", q1.BBox)
	}
	if !q1.NeedsAnswer || q1.Type != models.TypeSingle || q1.Source != models.SourceDeterministic {
		t.Errorf("unexpected defaults %+v", q1)
	}

	q2 := units[1]
	if q2.ID != "2" || opt(q2.Options, "A") != "A. mass" || q2.Options.Get("B") != nil {
		t.Errorf("unexpected second unit %+v", q2)
	}

	q3 := units[2]
	if q3.ID != "3" || q3.Text != "Question 3 Define work." {
		t.Errorf("unexpected third unit id=%q text=%q", q3.ID, q3.Text)
	}
}

func TestSegment_NoAnchors(t *testing.T) {
	if got := Segment(lines(1, "Title", "Some prose")); len(got) != 0 {
		t.Errorf("expected no units, got %d", len(got))
	}
}

func TestSegment_CrossPage(t *testing.T) {
	input := append(lines(1, "5. Start of question"), lines(2, "rest of it", "6. Next")...)
	units := Segment(input)
	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d", len(units))
	}
	if !units[0].CrossPage || units[0].Page != 1 {
		t.Errorf("expected cross-page unit on page 1, got %+v", units[0])
	}
	if units[1].CrossPage || units[1].Page != 2 {
		t.Errorf("unexpected second unit %+v", units[1])
	}
}

func TestMatchAnchor(t *testing.T) {
	tests := []struct {
		text string
		id   models.QuestionID
		ok   bool
	}{
		{"12. What", "12", true},
		{"  q.7 Find", "7", true},
		{"Q 3 Find", "3", true},
		{"QUESTION 10 Find", "10", true},
		{"3.", "3", true},
		{fold("１２. 全角"), "12", true},
		{"1.5 is the answer", "", false},
		{"Quest 1", "", false},
		{"The 2. item", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			id, ok := matchAnchor(tt.text)
			if ok != tt.ok || id != tt.id {
				t.Errorf("matchAnchor(%q) = %q, %v; want %q, %v", tt.text, id, ok, tt.id, tt.ok)
			}
		})
	}
}

func TestIsNoise(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Page 3", true},
		{"  42  ", true},
		{"copyright reserved", true},
		{"Institute of Physics", true},
		{"1. Question", false},
		{"42 apples", false},
	}
	for _, tt := range tests {
		if got := IsNoise(tt.text); got != tt.want {
			t.Errorf("IsNoise(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestToCandidates(t *testing.T) {
	units := Segment(lines(1, "1. First line", "second line", "A) yes"))
	units[0].BoundImageID = "IMG_4"
	got := ToCandidates(units)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	c := got[0]
	if c.ID != "1" || len(c.Lines) != 2 || c.ImageID != "IMG_4" || !c.NeedsAnswer {
		t.Errorf("unexpected candidate %+v", c)
	}
	if opt(c.Options, "A") != "A) yes" {
		t.Errorf("unexpected options %+v", c.Options)
	}
}
