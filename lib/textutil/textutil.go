package textutil

import (
	"regexp"
	"strings"
	"unicode"
)

// ContainsAny reports whether s contains at least one of the given
// substrings. Matching is case-sensitive; portal text is matched exactly as
// scraped.
func ContainsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(s, k) {
			return true
		}
	}
	return false
}

var (
	forbiddenChars    = regexp.MustCompile(`[\\/*?:"<>|,]`)
	repeatUnderscores = regexp.MustCompile(`_+`)
	repeatWhitespace  = regexp.MustCompile(`\s+`)
)

// SanitizeFilename strips characters that are not safe in a filename and
// collapses the leftover separators.
func SanitizeFilename(name string) string {
	name = forbiddenChars.ReplaceAllString(name, "_")
	name = repeatUnderscores.ReplaceAllString(name, "_")
	name = repeatWhitespace.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// SafeName keeps only alphanumerics plus ` _-.` (the charset the intake
// server accepts in upload filenames) and converts spaces to underscores.
func SafeName(name string) string {
	var b strings.Builder
	for _, c := range name {
		switch {
		case unicode.IsLetter(c) || unicode.IsDigit(c):
			b.WriteRune(c)
		case c == ' ':
			b.WriteRune('_')
		case c == '_' || c == '-' || c == '.':
			b.WriteRune(c)
		}
	}
	return b.String()
}

// Truncate cuts s down to at most n runes.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
