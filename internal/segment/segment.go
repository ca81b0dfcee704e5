// Package segment groups reading-ordered text lines into question units with
// their option slots. It is the deterministic path: cheap, always available,
// and used both as hints for the oracle and as the fallback result.
package segment

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/Epistemic-Technology/exam-mcp/internal/geometry"
	"github.com/Epistemic-Technology/exam-mcp/models"
)

var (
	anchorPattern = regexp.MustCompile(`(?i)^\s*(?:(\d+)\.|Q\.?\s*(\d+)|Question\s*(\d+))(?:\s|$)`)
	noisePattern  = regexp.MustCompile(`(?i)^\s*(?:Page\s*\d+|\d+\s*$|Copyright|Institute)`)
	optionPattern = regexp.MustCompile(`(?i)^\s*(?:([A-D])\.|([A-D])\)|\(([A-D])\))(?:\s|$)`)
)

type state int

const (
	noActiveQuestion state = iota
	inQuestion
)

// builder accumulates one open question unit
type builder struct {
	id         models.QuestionID
	lines      []models.TextLine
	body       []string
	options    *models.Options
	currentOpt string
}

func (b *builder) add(line models.TextLine, text string) {
	b.lines = append(b.lines, line)
	if letter := matchOption(text); letter != "" {
		b.currentOpt = letter
		b.options.Set(letter, line.Text)
		return
	}
	if b.currentOpt != "" {
		if prev := b.options.Get(b.currentOpt); prev != nil && *prev != "" {
			b.options.Set(b.currentOpt, *prev+" "+line.Text)
		} else {
			b.options.Set(b.currentOpt, line.Text)
		}
		return
	}
	b.body = append(b.body, line.Text)
}

func (b *builder) close(index int) models.QuestionUnit {
	boxes := make([]geometry.BBox, len(b.lines))
	pages := make(map[int]bool)
	for i, l := range b.lines {
		boxes[i] = l.BBox
		pages[l.Page] = true
	}
	id := b.id
	if id == "" {
		id = models.QuestionIDFromInt(index)
	}
	return models.QuestionUnit{
		Index:       index,
		ID:          id,
		Page:        b.lines[0].Page,
		Lines:       b.lines,
		BBox:        geometry.Envelope(boxes...),
		Text:        strings.Join(b.body, "\n"),
		Options:     b.options,
		NeedsAnswer: true,
		Type:        models.TypeSingle,
		CrossPage:   len(pages) > 1,
		Source:      models.SourceDeterministic,
	}
}

// fold normalizes text for pattern matching only, so full-width digits and
// letters anchor like their ASCII forms
func fold(text string) string {
	return norm.NFKC.String(text)
}

// matchAnchor returns the declared number of an anchor line
func matchAnchor(text string) (models.QuestionID, bool) {
	m := anchorPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	for _, g := range m[1:] {
		if g != "" {
			return models.QuestionID(strings.TrimLeft(g, "0")), true
		}
	}
	return "", true
}

// matchOption returns the upper-case option letter a line opens, or ""
func matchOption(text string) string {
	m := optionPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	for _, g := range m[1:] {
		if g != "" {
			return strings.ToUpper(g)
		}
	}
	return ""
}

// IsNoise reports whether a line is a page number or header to discard
func IsNoise(text string) bool {
	return noisePattern.MatchString(fold(text))
}

// Segment runs the question state machine over lines in reading order.
// Noise lines are always dropped; lines before the first anchor are dropped;
// an anchor closes the open unit and starts a new one.
func Segment(lines []models.TextLine) []models.QuestionUnit {
	var units []models.QuestionUnit
	st := noActiveQuestion
	var cur *builder

	for _, line := range lines {
		text := fold(line.Text)
		if noisePattern.MatchString(text) {
			continue
		}
		if id, ok := matchAnchor(text); ok {
			if st == inQuestion {
				units = append(units, cur.close(len(units)+1))
			}
			cur = &builder{id: id, options: &models.Options{}}
			cur.lines = append(cur.lines, line)
			cur.body = append(cur.body, line.Text)
			st = inQuestion
			continue
		}
		if st == inQuestion {
			cur.add(line, text)
		}
	}
	if st == inQuestion {
		units = append(units, cur.close(len(units)+1))
	}
	return units
}

// Candidate is the compact form of a deterministic unit sent to the oracle
// as a hint
type Candidate struct {
	ID          models.QuestionID `json:"id"`
	Page        int               `json:"page"`
	Lines       []string          `json:"raw_question_lines"`
	Options     *models.Options   `json:"options"`
	ImageID     string            `json:"image_id,omitempty"`
	NeedsAnswer bool              `json:"needsAnswer"`
}

// ToCandidates reshapes segmented units into oracle hints
func ToCandidates(units []models.QuestionUnit) []Candidate {
	out := make([]Candidate, 0, len(units))
	for _, u := range units {
		var body []string
		if u.Text != "" {
			body = strings.Split(u.Text, "\n")
		}
		out = append(out, Candidate{
			ID:          u.ID,
			Page:        u.Page,
			Lines:       body,
			Options:     u.Options,
			ImageID:     u.BoundImageID,
			NeedsAnswer: u.NeedsAnswer,
		})
	}
	return out
}
