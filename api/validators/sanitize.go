package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims input, drops control characters and keeps at most
// maxLen runes. A maxLen of zero or less disables the limit.
func SanitizeString(input string, maxLen int) string {
	var b strings.Builder
	kept := 0
	for _, r := range strings.TrimSpace(input) {
		if unicode.IsControl(r) {
			continue
		}
		if maxLen > 0 && kept == maxLen {
			break
		}
		b.WriteRune(r)
		kept++
	}
	return strings.TrimSpace(b.String())
}
