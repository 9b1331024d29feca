package reusekey

import (
	"html"
	"regexp"
	"strings"
)

// Placeholder tokens substituted into normalized text. Incidental formatting
// differences (ids, urls, numbers, templated variables) collapse to the same
// token so the reuse-hash matches.
const (
	tokenVar  = "{var}"
	tokenUUID = "{uuid}"
	tokenURL  = "{url}"
	tokenNum  = "{num}"
)

var (
	tagRE  = regexp.MustCompile(`<\s*(/?)\s*([a-zA-Z][a-zA-Z0-9-]*)\b[^>]*?(/?)\s*>`)
	uuidRE = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`)
	urlRE  = regexp.MustCompile(`(?i)\bhttps?://[^\s<>"{}]+`)
	varRE  = regexp.MustCompile(`\{\s*[a-zA-Z_][a-zA-Z0-9_.]*\s*\}`)
	numRE  = regexp.MustCompile(`\b\d{1,3}(?:,\d{3})+(?:\.\d+)?\b|\b\d+(?:\.\d+)?\b`)
	wsRE   = regexp.MustCompile(`\s+`)
)

// NormalizeText reduces a source string to its reusable shape: HTML tags keep
// only their name and open/close form, entities are decoded, templated
// variables, UUIDs, URLs and numeric literals become canonical tokens, and
// whitespace runs collapse to a single space.
func NormalizeText(s string) string {
	s = tagRE.ReplaceAllString(s, "<$1$2$3>")
	s = html.UnescapeString(s)
	s = uuidRE.ReplaceAllString(s, tokenUUID)
	s = urlRE.ReplaceAllString(s, tokenURL)
	s = varRE.ReplaceAllStringFunc(s, func(m string) string {
		switch m {
		case tokenUUID, tokenURL, tokenNum:
			return m
		}
		return tokenVar
	})
	s = numRE.ReplaceAllString(s, tokenNum)
	s = wsRE.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// SourceFields extracts and normalizes the string-valued fields of a source
// payload. Non-string fields do not participate in reuse matching.
func SourceFields(payload map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range payload {
		if s, ok := v.(string); ok {
			out[k] = NormalizeText(s)
		}
	}
	return out
}
