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

const noWeeklyItems = "No items found for this application with traceable IDs."

var whitespaceRunRe = regexp.MustCompile(`\s+`)

// RenderWeeklyHTML renders non-empty categories as a heading plus a list of
// their items. With showTags false every [TAG] token is removed and
// whitespace runs collapse to one space.
func RenderWeeklyHTML(reports []domain.CategorizedReport, showTags bool) string {
	var b strings.Builder
	for _, r := range reports {
		if len(r.Items) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("<p></p>")
		}
		fmt.Fprintf(&b, "<h3>%s</h3><ul>", html.EscapeString(r.Category))
		for _, item := range r.Items {
			b.WriteString("<li>" + item.Content + "</li>")
		}
		b.WriteString("</ul>")
	}
	if b.Len() == 0 {
		return "<p>" + noWeeklyItems + "</p>"
	}
	out := b.String()
	if !showTags {
		out = whitespaceRunRe.ReplaceAllString(RemoveStatusTags(out), " ")
	}
	return out
}

// RenderWeeklyMarkdown renders the report as a Markdown document with one
// "### Category" section per non-empty category and one bullet per item.
func RenderWeeklyMarkdown(title string, reports []domain.CategorizedReport, showTags bool) string {
	var b strings.Builder
	if title = strings.TrimSpace(title); title != "" {
		b.WriteString("# " + title + "\n\n")
	}
	wrote := false
	for _, r := range reports {
		if len(r.Items) == 0 {
			continue
		}
		if wrote {
			b.WriteString("\n")
		}
		wrote = true
		b.WriteString("### " + r.Category + "\n")
		for _, item := range r.Items {
			text := InlineText(item.Content)
			if !showTags {
				text = strings.TrimSpace(whitespaceRunRe.ReplaceAllString(RemoveStatusTags(text), " "))
			}
			b.WriteString("- " + text + "\n")
		}
	}
	if !wrote {
		b.WriteString("_" + noWeeklyItems + "_\n")
	}
	return b.String()
}

// InlineText returns the text of an HTML fragment on a single line.
func InlineText(content string) string {
	nodes, err := xhtml.ParseFragment(strings.NewReader(content), &xhtml.Node{
		Type:     xhtml.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	})
	if err != nil {
		return strings.TrimSpace(content)
	}
	var b strings.Builder
	for _, n := range nodes {
		b.WriteString(textContent(n))
		b.WriteString(" ")
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
