// Package fragment pulls status fragments out of pasted text.
package fragment

import (
	"net/url"
	"regexp"
	"strings"

	"statuslink/internal/codec"
)

var fragmentPattern = regexp.MustCompile(`#s=[^\s]+`)

// Extract returns one fragment per line of text that holds a status link, in
// line order. Blank lines and lines without the fragment prefix are skipped.
// When origin is non-empty, only lines starting with origin are considered.
func Extract(text, origin string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.Contains(line, codec.Prefix) {
			continue
		}
		if origin != "" && !strings.HasPrefix(line, origin) {
			continue
		}
		if frag := fromLine(line); frag != "" {
			out = append(out, frag)
		}
	}
	return out
}

func fromLine(line string) string {
	raw := line
	if !strings.HasPrefix(line, "http") {
		if strings.HasPrefix(line, "/") {
			raw = "http://localhost" + line
		} else {
			raw = "http://localhost/" + line
		}
	}
	u, err := url.Parse(raw)
	if err != nil {
		if strings.HasPrefix(line, codec.Prefix) {
			return line
		}
		return ""
	}
	if frag := u.EscapedFragment(); frag != "" {
		return "#" + frag
	}
	return ""
}

// FindAll returns every fragment-looking token in text, wherever it appears.
func FindAll(text string) []string {
	return fragmentPattern.FindAllString(text, -1)
}

// InvalidLines returns the non-blank lines of text that carry no fragment
// prefix at all. They are reported back to the user as skipped.
func InvalidLines(text string) []string {
	var bad []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.Contains(line, codec.Prefix) {
			bad = append(bad, line)
		}
	}
	return bad
}

// LinkFor appends fragment to baseURL, replacing any fragment baseURL already has.
func LinkFor(baseURL, fragment string) string {
	if i := strings.Index(baseURL, "#"); i >= 0 {
		baseURL = baseURL[:i]
	}
	return baseURL + fragment
}
