package collector

import (
	"strings"
	"unicode"
)

// stripTags flattens HTML-ish bodies (feed descriptions, fediverse status
// content) to plain text so word-boundary matching never trips over markup.
// Not a sanitizer; the output is only ever searched and snippeted.
func stripTags(s string) string {
	if !strings.ContainsRune(s, '<') {
		return strings.TrimSpace(s)
	}
	var b strings.Builder
	b.Grow(len(s))
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
			// Tag boundaries separate words in the source markup.
			b.WriteRune(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	out := strings.ReplaceAll(b.String(), "&amp;", "&")
	out = strings.ReplaceAll(out, "&lt;", "<")
	out = strings.ReplaceAll(out, "&gt;", ">")
	out = strings.ReplaceAll(out, "&quot;", `"`)
	out = strings.ReplaceAll(out, "&#39;", "'")
	out = strings.ReplaceAll(out, "&nbsp;", " ")
	return strings.TrimSpace(strings.Join(strings.Fields(out), " "))
}

// DetectLanguage is a cheap script-ratio heuristic: enough Cyrillic means
// uk or ru (Ukrainian-specific letters decide), enough Latin means en,
// anything else is und. Good enough for filtering and reporting; items are
// never dropped on its account.
func DetectLanguage(text string) string {
	var cyr, lat, ukr int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			cyr++
			switch unicode.ToLower(r) {
			case 'і', 'ї', 'є', 'ґ':
				ukr++
			}
		case r < 128 && unicode.IsLetter(r):
			lat++
		}
	}
	total := cyr + lat
	if total == 0 {
		return "und"
	}
	if float64(cyr)/float64(total) >= 0.3 {
		if ukr > 0 {
			return "uk"
		}
		return "ru"
	}
	return "en"
}
