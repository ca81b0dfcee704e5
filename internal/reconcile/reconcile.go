// Package reconcile merges question fragments produced by overlapping
// batches and applies an external answer key.
package reconcile

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Epistemic-Technology/exam-mcp/internal/geometry"
	"github.com/Epistemic-Technology/exam-mcp/models"
)

// textSeparator joins the texts of merged fragments
const textSeparator = " <br><br> "

var (
	idPrefix = regexp.MustCompile(`(?i)^(?:Question|Q|No\.?|#)\s*`)
	idSuffix = regexp.MustCompile(`[.:)\]]\s*$`)
)

// Key is a normalized question identifier. Numeric keys compare by value;
// anything else is an opaque string.
type Key struct {
	Num     int
	Raw     string
	Numeric bool
}

func (k Key) String() string {
	if k.Numeric {
		return strconv.Itoa(k.Num)
	}
	return k.Raw
}

// NormalizeQuestionID strips "Q", "Question", "No" and "#" prefixes and
// trailing punctuation, then parses an integer. Identifiers that are not
// numbers are returned as opaque keys.
func NormalizeQuestionID(id models.QuestionID) Key {
	raw := strings.TrimSpace(string(id))
	cleaned := idPrefix.ReplaceAllString(raw, "")
	cleaned = strings.TrimSpace(idSuffix.ReplaceAllString(cleaned, ""))
	if n, err := strconv.Atoi(cleaned); err == nil {
		return Key{Num: n, Numeric: true}
	}
	return Key{Raw: raw}
}

type group struct {
	key     Key
	members []models.QuestionUnit
}

// Merge groups units by normalized identifier, merges multi-member groups
// and sorts the result: numeric keys ascending, then other keys in the
// order they were first seen. Units without an identifier are never merged.
// Index is renumbered from 1. Merge is idempotent.
func Merge(units []models.QuestionUnit) []models.QuestionUnit {
	var groups []*group
	byKey := make(map[Key]*group)
	for i, u := range units {
		key := NormalizeQuestionID(u.ID)
		if !key.Numeric && key.Raw == "" {
			key.Raw = fmt.Sprintf("\x00%d", i)
		}
		g, ok := byKey[key]
		if !ok {
			g = &group{key: key}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.members = append(g.members, u)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i].key, groups[j].key
		if a.Numeric && b.Numeric {
			return a.Num < b.Num
		}
		return a.Numeric && !b.Numeric
	})

	out := make([]models.QuestionUnit, 0, len(groups))
	for _, g := range groups {
		var u models.QuestionUnit
		if len(g.members) == 1 {
			u = g.members[0]
		} else {
			u = mergeParts(g.members)
		}
		u.Index = len(out) + 1
		out = append(out, u)
	}
	return out
}

// mergeParts combines fragments of one question. The first fragment is the
// base; texts contained in another fragment's text are dropped.
func mergeParts(parts []models.QuestionUnit) models.QuestionUnit {
	merged := parts[0]
	merged.Lines = nil
	merged.CrossPage = true

	var texts []string
	var options, optionImages *models.Options
	for _, p := range parts {
		if t := strings.TrimSpace(p.Text); t != "" {
			texts = append(texts, t)
		}
		merged.Lines = append(merged.Lines, p.Lines...)

		if p.Options != nil {
			if options == nil {
				options = &models.Options{}
			}
			for _, letter := range models.OptionLetters {
				if cur := options.Get(letter); cur != nil && strings.TrimSpace(*cur) != "" {
					continue
				}
				if v := p.Options.Get(letter); v != nil && strings.TrimSpace(*v) != "" {
					options.Set(letter, *v)
				}
			}
		}
		if p.OptionImages != nil {
			if optionImages == nil {
				optionImages = &models.Options{}
			}
			for _, letter := range models.OptionLetters {
				if cur := optionImages.Get(letter); cur != nil && *cur != "" {
					continue
				}
				if v := p.OptionImages.Get(letter); v != nil && *v != "" {
					optionImages.Set(letter, *v)
				}
			}
		}

		if merged.CorrectAnswer.IsEmpty() && !p.CorrectAnswer.IsEmpty() {
			merged.CorrectAnswer = p.CorrectAnswer
		}
		if p.Type != "" && p.Type != models.TypeSingle {
			merged.Type = p.Type
		}
		if p.DiagramPage != nil && (merged.DiagramPage == nil || *p.DiagramPage < *merged.DiagramPage) {
			page := *p.DiagramPage
			merged.DiagramPage = &page
		}
		if merged.DiagramOption == nil && p.DiagramOption != nil {
			merged.DiagramOption = p.DiagramOption
		}
		if merged.BoundImageID == "" {
			merged.BoundImageID = p.BoundImageID
		}
		if merged.PassageContent == "" {
			merged.PassageContent = p.PassageContent
		}
		if merged.Marks == 0 {
			merged.Marks = p.Marks
		}
		if merged.NegativeMarks == 0 {
			merged.NegativeMarks = p.NegativeMarks
		}
		if p.Page > 0 && (merged.Page == 0 || p.Page < merged.Page) {
			merged.Page = p.Page
		}
		if p.Source == models.SourceOracle {
			merged.Source = models.SourceOracle
		}
	}

	merged.Text = strings.Join(dedupeTexts(texts), textSeparator)
	if merged.Type == models.TypeNumerical {
		merged.Options = nil
	} else {
		merged.Options = options
	}
	if merged.Options != nil {
		merged.OptionImages = optionImages
		if merged.OptionImages == nil {
			merged.OptionImages = &models.Options{}
		}
	}

	var boxes []geometry.BBox
	for _, p := range parts {
		if p.Page == merged.Page {
			boxes = append(boxes, p.BBox)
		}
	}
	merged.BBox = geometry.Envelope(boxes...)
	merged.NeedsAnswer = merged.CorrectAnswer.IsEmpty()
	return merged
}

// dedupeTexts drops every text that is a substring of another one, keeping
// the first of identical texts
func dedupeTexts(texts []string) []string {
	var out []string
	for i, t := range texts {
		dup := false
		for j, other := range texts {
			if i == j || !strings.Contains(other, t) {
				continue
			}
			if len(other) > len(t) || j < i {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, t)
		}
	}
	return out
}
