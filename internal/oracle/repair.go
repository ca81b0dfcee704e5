package oracle

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/tidwall/gjson"

	"github.com/Epistemic-Technology/exam-mcp/models"
)

var bareImageRef = regexp.MustCompile(`:\s*(IMG_\d+)\s*([,}\]])`)

// Keys that close a question object in the extract schema, most reliable first
var questionTailKeys = []string{`"negativeMarks"`, `"marks"`, `"correctAnswer"`}

// StripCodeFences removes a surrounding markdown code fence
func StripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```json") {
		text = text[len("```json"):]
	} else if strings.HasPrefix(text, "```") {
		text = text[3:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// RepairJSON turns an oracle response into valid JSON. It strips code
// fences, quotes bare image references, escapes LaTeX backslashes and
// finally closes a truncated document at its last complete value.
func RepairJSON(text string) (string, error) {
	text = StripCodeFences(text)
	if text == "" {
		return "", models.ErrContentBlocked
	}
	if gjson.Valid(text) {
		return text, nil
	}

	text = sanitize(text)
	if gjson.Valid(text) {
		return text, nil
	}

	if repaired := repairTruncated(text); gjson.Valid(repaired) {
		return repaired, nil
	}
	if repaired := closeTruncated(text); gjson.Valid(repaired) {
		return repaired, nil
	}
	return "", models.ErrUnparseableResponse
}

func sanitize(text string) string {
	text = bareImageRef.ReplaceAllString(text, `: "$1"$2`)
	return escapeBackslashes(text)
}

// escapeBackslashes doubles backslashes that start LaTeX commands and drops
// the backslash from \( and \). Valid JSON escapes are kept.
func escapeBackslashes(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 16)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(text) {
			b.WriteString(`\\`)
			continue
		}
		next := text[i+1]
		switch {
		case next == '\\' || next == '"' || next == '/':
			b.WriteByte(c)
			b.WriteByte(next)
			i++
		case next == '(' || next == ')':
			b.WriteByte(next)
			i++
		case isASCIILetter(next):
			j := i + 1
			for j < len(text) && isASCIILetter(text[j]) {
				j++
			}
			word := text[i+1 : j]
			if validEscape(word, text[i+1:]) {
				b.WriteByte(c)
			} else {
				b.WriteString(`\\`)
			}
		default:
			b.WriteString(`\\`)
		}
	}
	return b.String()
}

// validEscape reports whether a backslash followed by word (the run of
// letters after it) is a JSON escape rather than a LaTeX command.
func validEscape(word, rest string) bool {
	if word[0] == 'u' && len(rest) >= 5 && isHex(rest[1:5]) {
		return true
	}
	return len(word) == 1 && strings.ContainsRune("bfnrt", rune(word[0]))
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'f') && !(c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

// repairTruncated cuts the document after the last question object that
// reached one of its closing keys, then closes the questions array.
func repairTruncated(text string) string {
	text = strings.TrimRightFunc(text, unicode.IsSpace)
	if strings.HasSuffix(text, "}") {
		return text
	}
	for _, key := range questionTailKeys {
		pos := strings.LastIndex(text, key)
		if pos < 0 {
			continue
		}
		end := strings.Index(text[pos:], "}")
		if end < 0 {
			return text
		}
		return text[:pos+end+1] + "\n  ]\n}"
	}
	return text
}

type scanMark struct {
	pos   int
	stack []byte
}

// closeTruncated cuts the document after its last complete value and
// appends the closing brackets that were open at that point.
func closeTruncated(text string) string {
	var (
		stack    []byte
		needKey  []bool
		inString bool
		isKey    bool
		escaped  bool
		last     scanMark
	)
	mark := func(pos int) {
		last = scanMark{pos: pos, stack: append([]byte(nil), stack...)}
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
				if !isKey {
					mark(i + 1)
				}
			}
			continue
		}
		switch c {
		case '"':
			inString = true
			isKey = len(stack) > 0 && stack[len(stack)-1] == '{' && needKey[len(needKey)-1]
		case '{', '[':
			stack = append(stack, c)
			needKey = append(needKey, c == '{')
		case '}', ']':
			if len(stack) == 0 {
				return text
			}
			stack = stack[:len(stack)-1]
			needKey = needKey[:len(needKey)-1]
			mark(i + 1)
		case ':':
			if len(needKey) > 0 {
				needKey[len(needKey)-1] = false
			}
		case ',':
			if len(stack) > 0 && stack[len(stack)-1] == '{' {
				needKey[len(needKey)-1] = true
			}
		default:
			if unicode.IsSpace(rune(c)) {
				continue
			}
			j := i
			for j < len(text) && !strings.ContainsRune(",}] \t\r\n", rune(text[j])) {
				j++
			}
			if gjson.Valid(text[i:j]) {
				mark(j)
			}
			i = j - 1
		}
	}

	if len(stack) == 0 && !inString {
		return text
	}
	if last.pos == 0 {
		return text
	}

	var b strings.Builder
	b.WriteString(text[:last.pos])
	for k := len(last.stack) - 1; k >= 0; k-- {
		if last.stack[k] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}
