package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeString trims input, folds runs of whitespace and control
// characters into single spaces and cuts the result to maxLen bytes without
// splitting a rune. maxLen <= 0 disables the cut.
func SanitizeString(input string, maxLen int) string {
	clean := strings.Join(strings.FieldsFunc(input, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}), " ")
	if maxLen <= 0 || len(clean) <= maxLen {
		return clean
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(clean[cut]) {
		cut--
	}
	return strings.TrimRightFunc(clean[:cut], unicode.IsSpace)
}
