package index

import (
	"strings"
	"unicode/utf8"
)

// snippetAround returns up to MaxSnippet runes of content centred on the first
// case-insensitive occurrence of any query term, or the head of content when
// no term occurs.
func snippetAround(content, query string) string {
	lower := strings.ToLower(content)
	at := -1
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if i := strings.Index(lower, term); i >= 0 && (at < 0 || i < at) {
			at = i
		}
	}
	if at < 0 || len(lower) != len(content) {
		// Lowercasing changed byte offsets; fall back to the head.
		at = 0
	}

	start := at - MaxSnippet/4
	if start < 0 {
		start = 0
	}
	for start > 0 && !utf8.RuneStart(content[start]) {
		start--
	}
	return truncate(content[start:], MaxSnippet)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// markTerms wraps case-insensitive occurrences of query terms in <mark> tags.
func markTerms(s, query string) string {
	lower := strings.ToLower(s)
	if len(lower) != len(s) {
		return s
	}
	terms := strings.Fields(strings.ToLower(query))
	var b strings.Builder
	for i := 0; i < len(s); {
		matched := ""
		for _, t := range terms {
			if strings.HasPrefix(lower[i:], t) && len(t) > len(matched) {
				matched = t
			}
		}
		if matched == "" {
			b.WriteByte(s[i])
			i++
			continue
		}
		b.WriteString("<mark>")
		b.WriteString(s[i : i+len(matched)])
		b.WriteString("</mark>")
		i += len(matched)
	}
	return b.String()
}
