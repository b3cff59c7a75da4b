// Package listid gives list items the stable data-id the weekly report tracks
// them by.
package listid

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"statuslink/internal/domain"
)

// IDLength is the length of every assigned id.
const IDLength = 12

const attrKey = "data-id"

// Assigner fills in missing list item ids. New generates a fresh id; nil
// means NewID.
type Assigner struct {
	New func() string
}

// NewID returns IDLength characters of a random UUID.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:IDLength]
}

// Assign returns html with a valid data-id on every <li>. Existing ids are kept
// unless they are missing, already used earlier in the document, or not
// IDLength long. Everything other than <li> start tags is copied unchanged.
func (a Assigner) Assign(src string) (string, error) {
	gen := a.New
	if gen == nil {
		gen = NewID
	}
	seen := map[string]bool{}
	return rewrite(src, func(tok *html.Token) {
		id := getAttr(tok, attrKey)
		if id == "" || seen[id] || len(id) != IDLength {
			id = gen()
			for seen[id] {
				id = gen()
			}
			setAttr(tok, attrKey, id)
		}
		seen[id] = true
	})
}

// Assign uses the default generator.
func Assign(src string) (string, error) {
	return Assigner{}.Assign(src)
}

// AssignPayload returns a copy of p with ids assigned in every application's
// content.
func AssignPayload(p domain.StatusPayload) (domain.StatusPayload, error) {
	return eachApp(p, "assign", Assign)
}

// StripPayload returns a copy of p without list item ids.
func StripPayload(p domain.StatusPayload) (domain.StatusPayload, error) {
	return eachApp(p, "strip", Strip)
}

func eachApp(p domain.StatusPayload, op string, fn func(string) (string, error)) (domain.StatusPayload, error) {
	out := p.Clone()
	for i, e := range out.Apps {
		content, err := fn(e.Content)
		if err != nil {
			return p, fmt.Errorf("%s ids for %s: %w", op, e.App, err)
		}
		out.Apps[i].Content = content
	}
	return out, nil
}

// Strip removes data-id from every <li>, so pasted content is tracked as new.
func Strip(src string) (string, error) {
	return rewrite(src, func(tok *html.Token) {
		removeAttr(tok, attrKey)
	})
}

// ids lists the data-ids of the <li> elements in src in document order.
func ids(src string) []string {
	var ids []string
	z := html.NewTokenizer(strings.NewReader(src))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return ids
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		tok := z.Token()
		if tok.Data == "li" {
			if id := getAttr(&tok, attrKey); id != "" {
				ids = append(ids, id)
			}
		}
	}
}

func rewrite(src string, fn func(tok *html.Token)) (string, error) {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(src))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); err != io.EOF {
				return "", err
			}
			return b.String(), nil
		}
		if tt == html.StartTagToken {
			raw := string(z.Raw())
			tok := z.Token()
			if tok.Data == "li" {
				fn(&tok)
				b.WriteString(tok.String())
				continue
			}
			b.WriteString(raw)
			continue
		}
		b.Write(z.Raw())
	}
}

func getAttr(tok *html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(tok *html.Token, key, val string) {
	for i, a := range tok.Attr {
		if a.Key == key {
			tok.Attr[i].Val = val
			return
		}
	}
	tok.Attr = append(tok.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(tok *html.Token, key string) {
	out := tok.Attr[:0]
	for _, a := range tok.Attr {
		if a.Key != key {
			out = append(out, a)
		}
	}
	tok.Attr = out
}
