package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// QuestionID is a declared question identifier as it appeared in the source:
// either a plain number or free text such as "Q5" or "12(a)".
type QuestionID string

// QuestionIDFromInt builds a QuestionID from a number
func QuestionIDFromInt(n int) QuestionID {
	return QuestionID(strconv.Itoa(n))
}

// Int returns the identifier as an integer when it is a plain number
func (id QuestionID) Int() (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(string(id)))
	if err != nil {
		return 0, false
	}
	return n, true
}

// MarshalJSON writes plain numbers as JSON numbers and everything else as strings
func (id QuestionID) MarshalJSON() ([]byte, error) {
	if n, ok := id.Int(); ok {
		return []byte(strconv.Itoa(n)), nil
	}
	if id == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts a number or a string
func (id *QuestionID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = QuestionID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("question id must be a number or string: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*id = QuestionID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = QuestionID(n.String())
	return nil
}

// NumericRange is an accepted interval for a numerical answer
type NumericRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// AnswerKind tags which field of an Answer is populated
type AnswerKind string

const (
	AnswerLetter  AnswerKind = "letter"
	AnswerLetters AnswerKind = "letters"
	AnswerRange   AnswerKind = "range"
	AnswerText    AnswerKind = "text"
)

// Answer is a correct answer in one of its wire shapes: a single letter,
// a list of letters, a numeric range, or unrecognized text.
type Answer struct {
	Kind    AnswerKind
	Letter  string
	Letters []string
	Range   *NumericRange
	Text    string
}

// LetterAnswer builds a single-choice answer
func LetterAnswer(letter string) *Answer {
	return &Answer{Kind: AnswerLetter, Letter: strings.ToUpper(strings.TrimSpace(letter))}
}

// LettersAnswer builds a multiple-choice answer
func LettersAnswer(letters []string) *Answer {
	out := make([]string, 0, len(letters))
	for _, l := range letters {
		out = append(out, strings.ToUpper(strings.TrimSpace(l)))
	}
	return &Answer{Kind: AnswerLetters, Letters: out}
}

// RangeAnswer builds a numerical answer
func RangeAnswer(lo, hi float64) *Answer {
	return &Answer{Kind: AnswerRange, Range: &NumericRange{Min: lo, Max: hi}}
}

// TextAnswer builds an answer that could not be classified
func TextAnswer(text string) *Answer {
	return &Answer{Kind: AnswerText, Text: text}
}

// IsEmpty reports whether the answer carries no value
func (a *Answer) IsEmpty() bool {
	if a == nil {
		return true
	}
	switch a.Kind {
	case AnswerLetter:
		return a.Letter == ""
	case AnswerLetters:
		return len(a.Letters) == 0
	case AnswerRange:
		return a.Range == nil
	default:
		return strings.TrimSpace(a.Text) == ""
	}
}

// MarshalJSON writes the wire shape for the populated kind
func (a Answer) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case AnswerLetter:
		return json.Marshal(a.Letter)
	case AnswerLetters:
		if a.Letters == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(a.Letters)
	case AnswerRange:
		if a.Range == nil {
			return []byte("null"), nil
		}
		return json.Marshal(a.Range)
	default:
		return json.Marshal(a.Text)
	}
}

// UnmarshalJSON decodes any of the wire shapes
func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = Answer{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if isLetter(s) {
			*a = *LetterAnswer(s)
		} else {
			*a = *TextAnswer(s)
		}
		return nil
	case '[':
		var items []any
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		letters := make([]string, 0, len(items))
		for _, item := range items {
			letters = append(letters, strings.TrimSpace(fmt.Sprint(item)))
		}
		*a = *LettersAnswer(letters)
		return nil
	case '{':
		var r struct {
			Min *float64 `json:"min"`
			Max *float64 `json:"max"`
		}
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		switch {
		case r.Min != nil && r.Max != nil:
			*a = *RangeAnswer(*r.Min, *r.Max)
		case r.Min != nil:
			*a = *RangeAnswer(*r.Min, *r.Min)
		case r.Max != nil:
			*a = *RangeAnswer(*r.Max, *r.Max)
		default:
			*a = Answer{}
		}
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("unsupported answer shape: %s", string(data))
		}
		*a = *TextAnswer(n.String())
		return nil
	}
}

func isLetter(s string) bool {
	if len(s) != 1 {
		return false
	}
	c := s[0] | 0x20
	return c >= 'a' && c <= 'z'
}

// OptionLetters are the fixed option slots of a choice question
var OptionLetters = []string{"A", "B", "C", "D"}

// Options holds the four fixed option slots. A nil slot means the option
// was not found. All four keys are always present in JSON.
type Options struct {
	A *string `json:"A"`
	B *string `json:"B"`
	C *string `json:"C"`
	D *string `json:"D"`
}

// EmptyOptions returns options with all four slots set to empty strings
func EmptyOptions() *Options {
	empty := func() *string { s := ""; return &s }
	return &Options{A: empty(), B: empty(), C: empty(), D: empty()}
}

func (o *Options) slot(letter string) **string {
	switch strings.ToUpper(letter) {
	case "A":
		return &o.A
	case "B":
		return &o.B
	case "C":
		return &o.C
	case "D":
		return &o.D
	}
	return nil
}

// Get returns the text of an option slot, or nil when unset or unknown
func (o *Options) Get(letter string) *string {
	if o == nil {
		return nil
	}
	if s := o.slot(letter); s != nil {
		return *s
	}
	return nil
}

// Set stores text in an option slot. Unknown letters are ignored and
// reported as false.
func (o *Options) Set(letter, text string) bool {
	s := o.slot(letter)
	if s == nil {
		return false
	}
	*s = &text
	return true
}

// IsEmpty reports whether every slot is nil or blank
func (o *Options) IsEmpty() bool {
	if o == nil {
		return true
	}
	for _, l := range OptionLetters {
		if v := o.Get(l); v != nil && strings.TrimSpace(*v) != "" {
			return false
		}
	}
	return true
}
