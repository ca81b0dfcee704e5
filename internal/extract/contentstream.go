package extract

import (
	"bytes"
	"math"
	"strconv"
	"unicode/utf16"

	"github.com/Epistemic-Technology/exam-mcp/internal/geometry"
)

// matrix is a PDF transformation matrix [a b c d e f]
type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

func translate(tx, ty float64) matrix {
	return matrix{1, 0, 0, 1, tx, ty}
}

// mul returns m×n in PDF row-vector convention
func (m matrix) mul(n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

func (m matrix) apply(x, y float64) (float64, float64) {
	return x*m[0] + y*m[2] + m[4], x*m[1] + y*m[3] + m[5]
}

func (m matrix) scaleX() float64 { return math.Hypot(m[0], m[1]) }
func (m matrix) scaleY() float64 { return math.Hypot(m[2], m[3]) }

// glyphRun is a positioned piece of text in PDF user space (y up, Y is the baseline)
type glyphRun struct {
	X, Y, W, Size float64
	Font          string
	Text          string
}

// placement is one occurrence of an XObject painted by the Do operator,
// in PDF user space
type placement struct {
	Name string
	BBox geometry.BBox
}

// pageContent is everything the interpreter found in a page content stream
type pageContent struct {
	Runs       []glyphRun
	Placements []placement
	Paths      []geometry.BBox
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokName
	tokString
	tokArrayStart
	tokArrayEnd
	tokDictStart
	tokDictEnd
	tokOperator
)

type token struct {
	kind tokenKind
	num  float64
	text []byte
}

// lexer tokenizes a PDF content stream
type lexer struct {
	data []byte
	pos  int
}

func isWhite(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == 0
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if isWhite(c) {
			l.pos++
			continue
		}
		if c == '%' {
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		return
	}
}

func (l *lexer) next() token {
	l.skipSpace()
	if l.pos >= len(l.data) {
		return token{kind: tokEOF}
	}
	c := l.data[l.pos]
	switch {
	case c == '(':
		return token{kind: tokString, text: l.literalString()}
	case c == '<':
		if l.pos+1 < len(l.data) && l.data[l.pos+1] == '<' {
			l.pos += 2
			return token{kind: tokDictStart}
		}
		return token{kind: tokString, text: l.hexString()}
	case c == '>':
		l.pos++
		if l.pos < len(l.data) && l.data[l.pos] == '>' {
			l.pos++
		}
		return token{kind: tokDictEnd}
	case c == '[':
		l.pos++
		return token{kind: tokArrayStart}
	case c == ']':
		l.pos++
		return token{kind: tokArrayEnd}
	case c == '/':
		l.pos++
		start := l.pos
		for l.pos < len(l.data) && !isWhite(l.data[l.pos]) && !isDelim(l.data[l.pos]) {
			l.pos++
		}
		return token{kind: tokName, text: l.data[start:l.pos]}
	case c == '{' || c == '}' || c == ')':
		l.pos++
		return l.next()
	}

	start := l.pos
	for l.pos < len(l.data) && !isWhite(l.data[l.pos]) && !isDelim(l.data[l.pos]) {
		l.pos++
	}
	word := l.data[start:l.pos]
	if n, err := strconv.ParseFloat(string(word), 64); err == nil {
		return token{kind: tokNumber, num: n}
	}
	return token{kind: tokOperator, text: word}
}

func (l *lexer) literalString() []byte {
	l.pos++ // (
	var out []byte
	depth := 1
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		switch c {
		case '\\':
			if l.pos >= len(l.data) {
				return out
			}
			e := l.data[l.pos]
			l.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if l.pos < len(l.data) && l.data[l.pos] == '\n' {
					l.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && l.pos < len(l.data) && l.data[l.pos] >= '0' && l.data[l.pos] <= '7'; i++ {
						v = v*8 + int(l.data[l.pos]-'0')
						l.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return out
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return out
}

func (l *lexer) hexString() []byte {
	l.pos++ // <
	var digits []byte
	for l.pos < len(l.data) && l.data[l.pos] != '>' {
		c := l.data[l.pos]
		if !isWhite(c) {
			digits = append(digits, c)
		}
		l.pos++
	}
	l.pos++ // >
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, 0, len(digits)/2)
	for i := 0; i+1 < len(digits); i += 2 {
		v, err := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if err != nil {
			continue
		}
		out = append(out, byte(v))
	}
	return out
}

// skipInlineImage advances past the binary data of an inline image (BI ... ID data EI)
func (l *lexer) skipInlineImage() {
	idx := bytes.Index(l.data[l.pos:], []byte("ID"))
	if idx < 0 {
		l.pos = len(l.data)
		return
	}
	l.pos += idx + 2
	for l.pos < len(l.data) {
		idx := bytes.Index(l.data[l.pos:], []byte("EI"))
		if idx < 0 {
			l.pos = len(l.data)
			return
		}
		end := l.pos + idx
		before := end == 0 || isWhite(l.data[end-1])
		after := end+2 >= len(l.data) || isWhite(l.data[end+2])
		l.pos = end + 2
		if before && after {
			return
		}
	}
}

type operand struct {
	kind tokenKind
	num  float64
	text []byte
	arr  []operand
}

type graphicsState struct {
	ctm matrix
}

type textState struct {
	tm, tlm     matrix
	font        string
	size        float64
	leading     float64
	charSpacing float64
	wordSpacing float64
	hscale      float64
	rise        float64
}

// interpreter walks a content stream and records text runs, image
// placements and painted path envelopes
type interpreter struct {
	lex      lexer
	gs       graphicsState
	stack    []graphicsState
	ts       textState
	fonts    map[string]string
	out      pageContent
	path     geometry.BBox
	pathOpen bool
	curX     float64
	curY     float64
}

// interpretContent runs the interpreter over a content stream. fonts maps
// font resource names (F1) to base font names used for style detection.
func interpretContent(data []byte, fonts map[string]string) pageContent {
	in := &interpreter{
		lex:   lexer{data: data},
		gs:    graphicsState{ctm: identity},
		ts:    textState{tm: identity, tlm: identity, hscale: 100},
		fonts: fonts,
	}
	in.run()
	return in.out
}

func (in *interpreter) run() {
	var operands []operand
	for {
		tok := in.lex.next()
		switch tok.kind {
		case tokEOF:
			return
		case tokArrayStart:
			operands = append(operands, operand{kind: tokArrayStart, arr: in.readArray()})
		case tokDictStart:
			in.skipDict()
			operands = append(operands, operand{kind: tokDictStart})
		case tokOperator:
			op := string(tok.text)
			if op == "BI" {
				in.lex.skipInlineImage()
			} else {
				in.execute(op, operands)
			}
			operands = operands[:0]
		case tokArrayEnd, tokDictEnd:
		default:
			operands = append(operands, operand{kind: tok.kind, num: tok.num, text: tok.text})
		}
	}
}

func (in *interpreter) readArray() []operand {
	var arr []operand
	for {
		tok := in.lex.next()
		switch tok.kind {
		case tokEOF, tokArrayEnd:
			return arr
		case tokArrayStart:
			arr = append(arr, operand{kind: tokArrayStart, arr: in.readArray()})
		case tokDictStart:
			in.skipDict()
		default:
			arr = append(arr, operand{kind: tok.kind, num: tok.num, text: tok.text})
		}
	}
}

func (in *interpreter) skipDict() {
	depth := 1
	for depth > 0 {
		tok := in.lex.next()
		switch tok.kind {
		case tokEOF:
			return
		case tokDictStart:
			depth++
		case tokDictEnd:
			depth--
		}
	}
}

func nums(ops []operand, n int) ([]float64, bool) {
	if len(ops) < n {
		return nil, false
	}
	out := make([]float64, n)
	for i, op := range ops[len(ops)-n:] {
		if op.kind != tokNumber {
			return nil, false
		}
		out[i] = op.num
	}
	return out, true
}

func (in *interpreter) execute(op string, ops []operand) {
	switch op {
	case "q":
		in.stack = append(in.stack, in.gs)
	case "Q":
		if n := len(in.stack); n > 0 {
			in.gs = in.stack[n-1]
			in.stack = in.stack[:n-1]
		}
	case "cm":
		if v, ok := nums(ops, 6); ok {
			in.gs.ctm = matrix{v[0], v[1], v[2], v[3], v[4], v[5]}.mul(in.gs.ctm)
		}
	case "BT":
		in.ts.tm, in.ts.tlm = identity, identity
	case "Tf":
		if len(ops) >= 2 && ops[len(ops)-2].kind == tokName {
			name := string(ops[len(ops)-2].text)
			in.ts.font = name
			if base, ok := in.fonts[name]; ok {
				in.ts.font = base
			}
			in.ts.size = ops[len(ops)-1].num
		}
	case "Tc":
		if v, ok := nums(ops, 1); ok {
			in.ts.charSpacing = v[0]
		}
	case "Tw":
		if v, ok := nums(ops, 1); ok {
			in.ts.wordSpacing = v[0]
		}
	case "Tz":
		if v, ok := nums(ops, 1); ok {
			in.ts.hscale = v[0]
		}
	case "TL":
		if v, ok := nums(ops, 1); ok {
			in.ts.leading = v[0]
		}
	case "Ts":
		if v, ok := nums(ops, 1); ok {
			in.ts.rise = v[0]
		}
	case "Td":
		if v, ok := nums(ops, 2); ok {
			in.moveText(v[0], v[1])
		}
	case "TD":
		if v, ok := nums(ops, 2); ok {
			in.ts.leading = -v[1]
			in.moveText(v[0], v[1])
		}
	case "Tm":
		if v, ok := nums(ops, 6); ok {
			in.ts.tm = matrix{v[0], v[1], v[2], v[3], v[4], v[5]}
			in.ts.tlm = in.ts.tm
		}
	case "T*":
		in.moveText(0, -in.ts.leading)
	case "Tj":
		if len(ops) > 0 && ops[len(ops)-1].kind == tokString {
			in.show(ops[len(ops)-1].text)
		}
	case "'":
		in.moveText(0, -in.ts.leading)
		if len(ops) > 0 && ops[len(ops)-1].kind == tokString {
			in.show(ops[len(ops)-1].text)
		}
	case "\"":
		if len(ops) >= 3 {
			in.ts.wordSpacing = ops[len(ops)-3].num
			in.ts.charSpacing = ops[len(ops)-2].num
			in.moveText(0, -in.ts.leading)
			if ops[len(ops)-1].kind == tokString {
				in.show(ops[len(ops)-1].text)
			}
		}
	case "TJ":
		if len(ops) > 0 && ops[len(ops)-1].kind == tokArrayStart {
			for _, el := range ops[len(ops)-1].arr {
				switch el.kind {
				case tokString:
					in.show(el.text)
				case tokNumber:
					tx := -el.num / 1000 * in.ts.size * in.ts.hscale / 100
					in.ts.tm = translate(tx, 0).mul(in.ts.tm)
				}
			}
		}
	case "Do":
		if len(ops) > 0 && ops[len(ops)-1].kind == tokName {
			in.placeXObject(string(ops[len(ops)-1].text))
		}
	case "m":
		if v, ok := nums(ops, 2); ok {
			in.curX, in.curY = v[0], v[1]
			in.addPathPoint(v[0], v[1])
		}
	case "l":
		if v, ok := nums(ops, 2); ok {
			in.curX, in.curY = v[0], v[1]
			in.addPathPoint(v[0], v[1])
		}
	case "c":
		if v, ok := nums(ops, 6); ok {
			in.addPathPoint(v[0], v[1])
			in.addPathPoint(v[2], v[3])
			in.addPathPoint(v[4], v[5])
			in.curX, in.curY = v[4], v[5]
		}
	case "v", "y":
		if v, ok := nums(ops, 4); ok {
			in.addPathPoint(v[0], v[1])
			in.addPathPoint(v[2], v[3])
			in.curX, in.curY = v[2], v[3]
		}
	case "re":
		if v, ok := nums(ops, 4); ok {
			in.addPathPoint(v[0], v[1])
			in.addPathPoint(v[0]+v[2], v[1]+v[3])
		}
	case "S", "s", "f", "F", "f*", "B", "B*", "b", "b*":
		if in.pathOpen {
			in.out.Paths = append(in.out.Paths, in.path)
		}
		in.pathOpen = false
		in.path = geometry.BBox{}
	case "n":
		in.pathOpen = false
		in.path = geometry.BBox{}
	}
}

func (in *interpreter) moveText(tx, ty float64) {
	in.ts.tlm = translate(tx, ty).mul(in.ts.tlm)
	in.ts.tm = in.ts.tlm
}

func (in *interpreter) addPathPoint(x, y float64) {
	dx, dy := in.gs.ctm.apply(x, y)
	pt := geometry.BBox{X0: dx, Y0: dy, X1: dx, Y1: dy}
	if !in.pathOpen {
		in.path = pt
		in.pathOpen = true
		return
	}
	in.path = geometry.BBox{
		X0: math.Min(in.path.X0, dx),
		Y0: math.Min(in.path.Y0, dy),
		X1: math.Max(in.path.X1, dx),
		Y1: math.Max(in.path.Y1, dy),
	}
}

func (in *interpreter) placeXObject(name string) {
	ctm := in.gs.ctm
	x0, y0 := ctm.apply(0, 0)
	x1, y1 := ctm.apply(1, 1)
	x2, y2 := ctm.apply(1, 0)
	x3, y3 := ctm.apply(0, 1)
	box := geometry.BBox{
		X0: math.Min(math.Min(x0, x1), math.Min(x2, x3)),
		Y0: math.Min(math.Min(y0, y1), math.Min(y2, y3)),
		X1: math.Max(math.Max(x0, x1), math.Max(x2, x3)),
		Y1: math.Max(math.Max(y0, y1), math.Max(y2, y3)),
	}
	in.out.Placements = append(in.out.Placements, placement{Name: name, BBox: box})
}

// glyphWidth is the advance assumed for one glyph in text space units of
// 1/1000 em. Real widths need the font program.
const glyphWidth = 500.0

func (in *interpreter) show(raw []byte) {
	text := decodeText(raw)
	if in.ts.size == 0 {
		in.ts.size = 12
	}

	trm := in.ts.tm.mul(in.gs.ctm)
	x, y := trm.apply(0, in.ts.rise)

	advance := 0.0
	count := 0
	for _, r := range text {
		advance += glyphWidth/1000*in.ts.size + in.ts.charSpacing
		if r == ' ' {
			advance += in.ts.wordSpacing
		}
		count++
	}
	advance *= in.ts.hscale / 100

	if count > 0 && hasVisibleText(text) {
		in.out.Runs = append(in.out.Runs, glyphRun{
			X:    x,
			Y:    y,
			W:    advance * trm.scaleX(),
			Size: in.ts.size * trm.scaleY(),
			Font: in.ts.font,
			Text: text,
		})
	}
	in.ts.tm = translate(advance, 0).mul(in.ts.tm)
}

// decodeText turns string bytes into text. Two-byte strings whose high bytes
// are all zero (common for Identity-H fonts with ASCII CIDs) are decoded as
// UTF-16BE; everything else as Latin-1.
func decodeText(raw []byte) string {
	if len(raw) >= 2 && len(raw)%2 == 0 {
		if bytes.HasPrefix(raw, []byte{0xFE, 0xFF}) {
			return utf16BE(raw[2:])
		}
		wide := true
		for i := 0; i < len(raw); i += 2 {
			if raw[i] != 0 {
				wide = false
				break
			}
		}
		if wide {
			return utf16BE(raw)
		}
	}
	runes := make([]rune, 0, len(raw))
	for _, b := range raw {
		if b < 0x20 && b != '\t' {
			continue
		}
		runes = append(runes, rune(b))
	}
	return string(runes)
}

func utf16BE(raw []byte) string {
	units := make([]uint16, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		units = append(units, uint16(raw[i])<<8|uint16(raw[i+1]))
	}
	return string(utf16.Decode(units))
}

func hasVisibleText(s string) bool {
	for _, r := range s {
		if r > ' ' {
			return true
		}
	}
	return false
}
