package reconcile

import (
	"strconv"
	"strings"

	"github.com/Epistemic-Technology/exam-mcp/internal/logger"
	"github.com/Epistemic-Technology/exam-mcp/models"
)

// MatchAnswerKey overwrites correct answers and types from an answer key.
// Lists become multiple choice, letters A-E single choice, numbers an exact
// numerical range; anything else is kept as text. It returns the number of
// questions matched.
func MatchAnswerKey(units []models.QuestionUnit, entries []models.AnswerKeyEntry, log logger.Logger) int {
	lookup := make(map[Key]models.Answer, len(entries))
	for _, e := range entries {
		if e.QuestionNumber == "" || e.Answer.IsEmpty() {
			continue
		}
		lookup[NormalizeQuestionID(e.QuestionNumber)] = e.Answer
	}
	log.Info("Answer key contains %d normalized mappings", len(lookup))

	matched := 0
	var unmatched []string
	for i := range units {
		u := &units[i]
		key := NormalizeQuestionID(u.ID)
		answer, ok := lookup[key]
		if !ok {
			unmatched = append(unmatched, string(u.ID))
			continue
		}
		applyAnswer(u, answer)
		u.NeedsAnswer = false
		matched++
		log.Debug("Matched question %s as %s", key, u.Type)
	}

	log.Info("Matched %d/%d questions with answer key", matched, len(units))
	if len(unmatched) > 0 {
		log.Info("Unmatched questions: %s", strings.Join(unmatched, ", "))
	}
	return matched
}

func applyAnswer(u *models.QuestionUnit, answer models.Answer) {
	switch answer.Kind {
	case models.AnswerLetters:
		u.CorrectAnswer = models.LettersAnswer(answer.Letters)
		u.Type = models.TypeMultiple
	case models.AnswerRange:
		u.CorrectAnswer = models.RangeAnswer(answer.Range.Min, answer.Range.Max)
		u.Type = models.TypeNumerical
		u.Options = nil
	default:
		raw := strings.TrimSpace(answer.Letter)
		if answer.Kind == models.AnswerText {
			raw = strings.TrimSpace(answer.Text)
		}
		if len(raw) == 1 && strings.Contains("ABCDE", strings.ToUpper(raw)) {
			u.CorrectAnswer = models.LetterAnswer(raw)
			u.Type = models.TypeSingle
			return
		}
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			u.CorrectAnswer = models.RangeAnswer(v, v)
			u.Type = models.TypeNumerical
			u.Options = nil
			return
		}
		u.CorrectAnswer = models.TextAnswer(raw)
	}
}
