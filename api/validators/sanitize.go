package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims input, drops control characters, collapses runs of
// whitespace and truncates to maxLen runes. maxLen <= 0 disables truncation.
func SanitizeString(input string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(input))
	count := 0
	pendingSpace := false
	for _, r := range strings.TrimSpace(input) {
		if unicode.IsSpace(r) {
			pendingSpace = true
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		if pendingSpace {
			if maxLen > 0 && count+1 >= maxLen {
				break
			}
			b.WriteByte(' ')
			count++
			pendingSpace = false
		}
		if maxLen > 0 && count >= maxLen {
			break
		}
		b.WriteRune(r)
		count++
	}
	return b.String()
}
