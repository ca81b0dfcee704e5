package oracle

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Epistemic-Technology/exam-mcp/internal/bind"
	"github.com/Epistemic-Technology/exam-mcp/models"
)

// Reconstruction is the parsed answer of one reconstruction call
type Reconstruction struct {
	Title         string
	Description   string
	RevisionNotes string
	Questions     []models.QuestionUnit
}

type markDefaults struct {
	marks, negative float64
}

func defaultsFor(mode models.Mode) markDefaults {
	if mode == models.ModeGenerate {
		return markDefaults{marks: 1, negative: 0}
	}
	return markDefaults{marks: 4, negative: 1}
}

// ParseReconstruction decodes a repaired oracle response. The response may
// be an object with a "questions" array or a bare array of questions.
// Questions without text are skipped.
func ParseReconstruction(text string, mode models.Mode) (*Reconstruction, error) {
	if !gjson.Valid(text) {
		return nil, models.ErrUnparseableResponse
	}
	doc := gjson.Parse(text)

	out := &Reconstruction{}
	questions := doc
	if doc.IsObject() {
		out.Title = stringField(doc.Get("title"))
		out.Description = stringField(doc.Get("description"))
		out.RevisionNotes = revisionNotes(doc.Get("revision_notes"))
		questions = doc.Get("questions")
	}
	if !questions.IsArray() {
		return out, nil
	}

	defaults := defaultsFor(mode)
	for i, q := range questions.Array() {
		if !q.IsObject() {
			continue
		}
		unit, ok := parseQuestion(q, i, defaults)
		if !ok {
			continue
		}
		out.Questions = append(out.Questions, unit)
	}
	return out, nil
}

func parseQuestion(q gjson.Result, i int, defaults markDefaults) (models.QuestionUnit, bool) {
	text := stringField(q.Get("question"))
	if text == "" {
		text = stringField(q.Get("questionText"))
	}
	if text == "" {
		return models.QuestionUnit{}, false
	}

	unit := models.QuestionUnit{
		Index:          i + 1,
		ID:             parseID(q.Get("id"), i),
		Text:           text,
		Type:           parseType(q.Get("type")),
		Marks:          numberOr(q.Get("marks"), defaults.marks),
		NegativeMarks:  numberOr(q.Get("negativeMarks"), defaults.negative),
		CrossPage:      q.Get("crossPage").Bool(),
		PassageContent: stringField(q.Get("passageContent")),
		Source:         models.SourceOracle,
	}

	if p := q.Get("diagramPage"); p.Type == gjson.Number && p.Int() > 0 {
		page := int(p.Int())
		unit.DiagramPage = &page
	}
	if o := strings.ToUpper(stringField(q.Get("diagramOption"))); len(o) == 1 && o >= "A" && o <= "D" {
		unit.DiagramOption = &o
	}
	if img := stringField(q.Get("image")); strings.HasPrefix(img, "IMG_") {
		unit.BoundImageID = img
	}

	unit.Options = parseOptions(q.Get("options"))
	if opts := q.Get("optionImages"); opts.IsObject() {
		unit.OptionImages = parseOptions(opts)
	}

	if raw := q.Get("correctAnswer"); raw.Exists() && raw.Type != gjson.Null {
		var answer models.Answer
		if err := json.Unmarshal([]byte(raw.Raw), &answer); err == nil && !answer.IsEmpty() {
			unit.CorrectAnswer = normalizeAnswer(&answer, unit.Type)
		}
	}

	if unit.Type == models.TypeNumerical {
		unit.Options = nil
	} else if unit.Options == nil {
		unit.Options = models.EmptyOptions()
	}
	if unit.Options != nil && unit.OptionImages == nil {
		unit.OptionImages = &models.Options{}
	}
	unit.NeedsAnswer = unit.CorrectAnswer == nil
	return unit, true
}

func stringField(r gjson.Result) string {
	if r.Type == gjson.Null || !r.Exists() {
		return ""
	}
	return strings.TrimSpace(r.String())
}

func numberOr(r gjson.Result, def float64) float64 {
	switch r.Type {
	case gjson.Number:
		return r.Float()
	case gjson.String:
		if v, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64); err == nil {
			return v
		}
	}
	return def
}

func parseID(r gjson.Result, i int) models.QuestionID {
	switch r.Type {
	case gjson.Number:
		if r.Float() == float64(r.Int()) {
			return models.QuestionIDFromInt(int(r.Int()))
		}
		return models.QuestionID(r.Raw)
	case gjson.String:
		if s := strings.TrimSpace(r.Str); s != "" {
			return models.QuestionID(s)
		}
	}
	return models.QuestionIDFromInt(i + 1)
}

func parseType(r gjson.Result) models.QuestionType {
	switch strings.ToLower(strings.TrimSpace(r.String())) {
	case "multiple", "multi", "multiple-correct", "msq":
		return models.TypeMultiple
	case "numerical", "numeric", "integer", "nat":
		return models.TypeNumerical
	default:
		return models.TypeSingle
	}
}

// parseOptions accepts {"A": "..."} objects and ["...", "..."] arrays
func parseOptions(r gjson.Result) *models.Options {
	switch {
	case r.IsObject():
		opts := &models.Options{}
		r.ForEach(func(key, value gjson.Result) bool {
			letter := strings.ToUpper(strings.Trim(strings.TrimSpace(key.String()), "().)"))
			if value.Type == gjson.Null {
				return true
			}
			text := value.String()
			if value.Type == gjson.JSON {
				text = value.Raw
			}
			opts.Set(letter, strings.TrimSpace(text))
			return true
		})
		return opts
	case r.IsArray():
		opts := &models.Options{}
		for i, value := range r.Array() {
			if i >= len(models.OptionLetters) {
				break
			}
			if value.Type != gjson.Null {
				opts.Set(models.OptionLetters[i], strings.TrimSpace(value.String()))
			}
		}
		return opts
	}
	return nil
}

// normalizeAnswer reconciles the wire shape of an answer with the declared
// question type.
func normalizeAnswer(a *models.Answer, qtype models.QuestionType) *models.Answer {
	switch qtype {
	case models.TypeMultiple:
		if a.Kind == models.AnswerLetter {
			return models.LettersAnswer([]string{a.Letter})
		}
	case models.TypeSingle:
		if a.Kind == models.AnswerLetters && len(a.Letters) == 1 {
			return models.LetterAnswer(a.Letters[0])
		}
	case models.TypeNumerical:
		if a.Kind == models.AnswerText {
			if v, err := strconv.ParseFloat(strings.TrimSpace(a.Text), 64); err == nil {
				return models.RangeAnswer(v, v)
			}
		}
	}
	return a
}

func revisionNotes(r gjson.Result) string {
	if r.IsArray() {
		var notes []string
		for _, n := range r.Array() {
			if s := stringField(n); s != "" {
				notes = append(notes, s)
			}
		}
		return strings.Join(notes, "<br>")
	}
	return stringField(r)
}

// ResolveDiagrams binds questions that name a diagram page to an image on
// that page: the first image when the diagram belongs to one option (which
// also fills that option's image slot), otherwise the largest one.
// Questions that already carry an image keep it.
func ResolveDiagrams(units []models.QuestionUnit, images []models.VisualElement) {
	byPage := make(map[int][]models.VisualElement)
	for _, img := range images {
		if bind.Bindable(img) || img.SourceKind == models.SourceEmbedded {
			byPage[img.Page] = append(byPage[img.Page], img)
		}
	}
	for i := range units {
		u := &units[i]
		if u.BoundImageID != "" || u.DiagramPage == nil {
			continue
		}
		candidates := byPage[*u.DiagramPage]
		if len(candidates) == 0 {
			continue
		}
		if u.DiagramOption != nil {
			u.BoundImageID = candidates[0].ID
			if u.OptionImages == nil {
				u.OptionImages = &models.Options{}
			}
			u.OptionImages.Set(*u.DiagramOption, candidates[0].ID)
			continue
		}
		best := candidates[0]
		for _, img := range candidates[1:] {
			if img.Width*img.Height > best.Width*best.Height {
				best = img
			}
		}
		u.BoundImageID = best.ID
	}
}
