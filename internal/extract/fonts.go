package extract

import "strings"

// defaultFontSize is used when a run carries no usable size
const defaultFontSize = 12.0

// fontStyle derives bold and italic flags from a PDF font name such as
// "ABCDEF+TimesNewRoman,BoldItalic" or "Helvetica-Oblique".
func fontStyle(name string) (bold, italic bool) {
	if i := strings.IndexByte(name, '+'); i == 6 {
		name = name[i+1:]
	}
	lower := strings.ToLower(name)
	for _, marker := range []string{"bold", "black", "heavy", "semibold", "demi"} {
		if strings.Contains(lower, marker) {
			bold = true
			break
		}
	}
	italic = strings.Contains(lower, "italic") || strings.Contains(lower, "oblique")
	return bold, italic
}
