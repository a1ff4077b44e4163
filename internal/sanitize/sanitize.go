// Package sanitize cleans untrusted user text before it is stored.
//
// Every function here is pure: no package-level policy is built at init
// time and nothing is shared between calls.
package sanitize

import (
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Text strips all markup from s and trims surrounding whitespace.
//
// The result is plain text, not HTML: bluemonday entity-encodes what it
// keeps, so the entities are decoded again before storing. Escaping is left
// to whatever renders the text (the web client, html/template in mail).
func Text(s string) string {
	return strings.TrimSpace(html.UnescapeString(bluemonday.StrictPolicy().Sanitize(s)))
}

// Texts applies Text to every element and drops the ones left empty.
func Texts(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if clean := Text(s); clean != "" {
			out = append(out, clean)
		}
	}
	return out
}

// URL returns s if it is an absolute http(s) URL, otherwise "".
// javascript: and data: links never reach the database.
func URL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return ""
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u.String()
	default:
		return ""
	}
}
