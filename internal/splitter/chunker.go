package splitter

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// Chunker breaks an HTML fragment into atomic blocks. Concatenating the
// returned chunks gives back the input, except for whitespace-only chunks.
type Chunker interface {
	Chunk(src string) []string
}

const (
	windowSize = 500
	backtrack  = 100
)

// NewChunker returns the chunker registered under name ("dom" or "regex").
// Unknown names get the DOM chunker.
func NewChunker(name string) Chunker {
	if strings.EqualFold(name, "regex") {
		return RegexChunker{}
	}
	return DOMChunker{}
}

var atomicTags = map[string]bool{
	"li": true, "p": true, "div": true, "blockquote": true, "pre": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

var listTags = map[string]bool{"ul": true, "ol": true}

// DOMChunker walks the markup with the x/net/html tokenizer and keeps every
// top-level block element whole. List container tags become chunks of their
// own so list items can be spread over several parts.
type DOMChunker struct{}

func (DOMChunker) Chunk(src string) []string {
	z := html.NewTokenizer(strings.NewReader(src))

	var (
		chunks []string
		cur    strings.Builder
		open   []string
	)
	flush := func() {
		if strings.TrimSpace(cur.String()) != "" {
			chunks = append(chunks, cur.String())
		}
		cur.Reset()
	}
	single := func(raw string) {
		flush()
		cur.WriteString(raw)
		flush()
	}

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := string(z.Raw())

		switch tt {
		case html.StartTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch {
			case len(open) == 0 && listTags[tag]:
				single(raw)
			case len(open) == 0 && atomicTags[tag]:
				flush()
				open = append(open, tag)
				cur.WriteString(raw)
			case len(open) == 0 && tag == "br":
				cur.WriteString(raw)
				flush()
			case len(open) == 1 && open[0] == tag && (tag == "li" || tag == "p"):
				// <li> and <p> close implicitly when a sibling opens.
				flush()
				cur.WriteString(raw)
			default:
				if atomicTags[tag] || listTags[tag] {
					open = append(open, tag)
				}
				cur.WriteString(raw)
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if len(open) == 0 {
				if listTags[tag] {
					single(raw)
					continue
				}
				cur.WriteString(raw)
				if atomicTags[tag] {
					flush()
				}
				continue
			}
			if listTags[tag] && !contains(open, tag) {
				open = nil
				single(raw)
				continue
			}
			cur.WriteString(raw)
			for i := len(open) - 1; i >= 0; i-- {
				if open[i] == tag {
					open = open[:i]
					break
				}
			}
			if len(open) == 0 {
				flush()
			}

		case html.SelfClosingTagToken:
			cur.WriteString(raw)
			name, _ := z.TagName()
			if len(open) == 0 && string(name) == "br" {
				flush()
			}

		default:
			cur.WriteString(raw)
		}
	}
	flush()

	if len(chunks) <= 1 {
		return windowText(src)
	}
	return chunks
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var (
	listBoundary = regexp.MustCompile(`(?i)^</?(?:ul|ol)(?:\s[^>]*)?>$`)
	anyBoundary  = regexp.MustCompile(`(?i)</(?:li|p|h[1-6]|div|blockquote|pre)\s*>|<br\s*/?>|</?(?:ul|ol)(?:\s[^>]*)?>`)
)

// RegexChunker cuts after closing tags of block elements and around list
// container tags. It does not understand nesting.
type RegexChunker struct{}

func (RegexChunker) Chunk(src string) []string {
	var chunks []string
	add := func(s string) {
		if strings.TrimSpace(s) != "" {
			chunks = append(chunks, s)
		}
	}

	last := 0
	for _, m := range anyBoundary.FindAllStringIndex(src, -1) {
		tok := src[m[0]:m[1]]
		if listBoundary.MatchString(tok) {
			add(src[last:m[0]])
			add(tok)
		} else {
			add(src[last:m[1]])
		}
		last = m[1]
	}
	add(src[last:])

	if len(chunks) <= 1 {
		return windowText(src)
	}
	return chunks
}

// windowText cuts unstructured text into windows of at most windowSize bytes,
// preferring to end a window just after a space, period or newline found in
// the last backtrack bytes. Cuts never land inside a UTF-8 sequence.
func windowText(s string) []string {
	var out []string
	for len(s) > windowSize {
		cut := windowSize
		for i := windowSize - 1; i >= windowSize-backtrack; i-- {
			if s[i] == ' ' || s[i] == '.' || s[i] == '\n' {
				cut = i + 1
				break
			}
		}
		for cut > 0 && cut < len(s) && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			cut = windowSize
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}
