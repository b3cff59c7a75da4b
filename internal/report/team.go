// Package report renders merged team updates and weekly reports as HTML,
// plain text, Markdown, email drafts and terminal output.
package report

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"statuslink/internal/domain"
)

type MergeMode string

const (
	AppWise    MergeMode = "app-wise"
	PersonWise MergeMode = "person-wise"
)

// AllApps disables the application filter of RenderTeamHTML.
const AllApps = "all"

var (
	paragraphTagRe = regexp.MustCompile(`(?i)</?p[^>]*>`)
	lineBreakRe    = regexp.MustCompile(`(?i)<br\s*/?>`)
	statusTagRe    = regexp.MustCompile(`\[[A-Z\s]+\]`)
	blankRunRe     = regexp.MustCompile(`\n{3,}`)
)

// ParseMergeMode accepts "app-wise" and "person-wise", case-insensitively.
// Anything else, including "", falls back to AppWise.
func ParseMergeMode(s string) MergeMode {
	if strings.EqualFold(strings.TrimSpace(s), string(PersonWise)) {
		return PersonWise
	}
	return AppWise
}

// CleanContentHTML flattens paragraphs and line breaks out of one person's
// content so it fits inside a list item. Bare text is wrapped in a span.
func CleanContentHTML(content string, showTags bool) string {
	if content == "" {
		return ""
	}
	cleaned := paragraphTagRe.ReplaceAllString(content, "")
	cleaned = strings.TrimSpace(lineBreakRe.ReplaceAllString(cleaned, "\n"))
	if !showTags {
		cleaned = RemoveStatusTags(cleaned)
	}
	if strings.TrimSpace(cleaned) == "" {
		return ""
	}
	if !strings.ContainsAny(cleaned, "<>") {
		cleaned = "<span>" + cleaned + "</span>"
	}
	return cleaned
}

// RemoveStatusTags drops every upper-case [TAG] token from s.
func RemoveStatusTags(s string) string {
	return statusTagRe.ReplaceAllString(s, "")
}

// RenderTeamHTML merges normalized entries into one document. App-wise output
// has one heading per application (case-insensitive, first spelling wins) and
// one item per person; person-wise output is the transpose. Groups keep the
// order in which they first appear. selectedApp narrows the output to one
// application unless it is "" or AllApps.
func RenderTeamHTML(entries []domain.NormalizedEntry, mode MergeMode, selectedApp string, showTags bool) string {
	filtered := entries
	if sel := strings.ToLower(strings.TrimSpace(selectedApp)); sel != "" && sel != AllApps {
		filtered = nil
		for _, e := range entries {
			if strings.ToLower(strings.TrimSpace(e.App)) == sel {
				filtered = append(filtered, e)
			}
		}
	}
	if len(filtered) == 0 {
		return ""
	}

	type group struct {
		heading string
		items   []domain.NormalizedEntry
	}
	var groups []*group
	index := map[string]*group{}
	for _, e := range filtered {
		heading, k := e.Name, e.Name
		if mode != PersonWise {
			heading = strings.TrimSpace(e.App)
			k = strings.ToLower(heading)
		}
		g, ok := index[k]
		if !ok {
			g = &group{heading: heading}
			index[k] = g
			groups = append(groups, g)
		}
		g.items = append(g.items, e)
	}

	var b strings.Builder
	for _, g := range groups {
		if mode == PersonWise {
			fmt.Fprintf(&b, "<h3>%s:</h3><ul>", html.EscapeString(g.heading))
		} else {
			fmt.Fprintf(&b, "<h3>%s Application:</h3><ul>", html.EscapeString(g.heading))
		}
		for _, e := range g.items {
			label := e.Name
			if mode == PersonWise {
				label = strings.TrimSpace(e.App)
			}
			fmt.Fprintf(&b, "<li><strong>%s:</strong> %s</li>", html.EscapeString(label), CleanContentHTML(e.Content, showTags))
		}
		b.WriteString("</ul>")
	}
	return b.String()
}

// PlainText converts merged HTML into the text pasted into chat tools:
// headings end with a colon, list items sit on their own lines, a person
// with a nested list becomes "Name:" followed by the items, and bold or
// italic runs keep Markdown markers.
func PlainText(content string) string {
	nodes, err := xhtml.ParseFragment(strings.NewReader(content), &xhtml.Node{
		Type:     xhtml.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	})
	if err != nil {
		return ""
	}
	root := &xhtml.Node{Type: xhtml.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	out := strings.TrimSpace(plainText(root, ""))
	return blankRunRe.ReplaceAllString(out, "\n\n")
}

func plainText(n *xhtml.Node, indent string) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xhtml.TextNode {
			if n.DataAtom == atom.Li {
				if text := strings.TrimSpace(c.Data); text != "" {
					b.WriteString(indent + text + " ")
				}
			}
			continue
		}
		if c.Type != xhtml.ElementNode {
			continue
		}
		text := strings.TrimSpace(textContent(c))
		switch c.DataAtom {
		case atom.H1, atom.H2, atom.H3, atom.H4:
			if text != "" {
				b.WriteString("\n" + indent + strings.TrimSuffix(text, ":") + ":\n")
			}
		case atom.Ul, atom.Ol:
			b.WriteString(listText(c, indent))
		case atom.Li:
			b.WriteString(listItemText(c, indent))
		case atom.P:
			if text != "" {
				b.WriteString(indent + text + "\n\n")
			}
		case atom.Strong, atom.B:
			if text != "" {
				b.WriteString("**" + text + "** ")
			}
		case atom.Em, atom.I:
			if text != "" {
				b.WriteString("*" + text + "* ")
			}
		default:
			if text != "" {
				b.WriteString(indent + text + " ")
			}
		}
	}
	return b.String()
}

func listText(list *xhtml.Node, indent string) string {
	var b strings.Builder
	for li := list.FirstChild; li != nil; li = li.NextSibling {
		if li.Type == xhtml.ElementNode && li.DataAtom == atom.Li {
			b.WriteString(listItemText(li, indent))
		}
	}
	return b.String()
}

func listItemText(li *xhtml.Node, indent string) string {
	if !hasNestedList(li) {
		if text := strings.TrimSpace(plainText(li, "")); text != "" {
			return indent + text + "\n"
		}
		return ""
	}

	var person, items string
	for c := li.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type == xhtml.ElementNode && (c.DataAtom == atom.Ul || c.DataAtom == atom.Ol):
			items = listText(c, indent)
		case c.Type == xhtml.ElementNode && c.DataAtom == atom.Strong:
			person = strings.TrimSpace(textContent(c))
		default:
			if text := strings.TrimSpace(textContent(c)); text != "" {
				if person != "" {
					person += " "
				}
				person += text
			}
		}
	}
	if person == "" {
		return items
	}
	return indent + strings.TrimSuffix(person, ":") + ":\n" + items
}

func hasNestedList(n *xhtml.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xhtml.ElementNode && (c.DataAtom == atom.Ul || c.DataAtom == atom.Ol) {
			return true
		}
		if hasNestedList(c) {
			return true
		}
	}
	return false
}

func textContent(n *xhtml.Node) string {
	if n.Type == xhtml.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}
