// Package weekly builds a categorized weekly report for one application from
// a week of daily payloads.
//
// Work items are tracked by the data-id of their <li>. An item missing from the
// last day of the week is treated as completed.
package weekly

import (
	"bytes"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"statuslink/internal/domain"
)

const (
	UncategorizedCategory = "Other / Uncategorized"
	DeployedCategory      = "Deployed / Completed"
)

type listItem struct {
	id      string
	content string
}

// GenerateWeeklyReport groups the list items of appName across payloads into
// the categories of configs, in config order, followed by uncategorized
// active items and, when no config claims them, completed items.
func GenerateWeeklyReport(payloads []domain.StatusPayload, appName string, configs []domain.CategoryConfig) []domain.CategorizedReport {
	target := normalize(appName)

	var relevant []domain.StatusPayload
	for _, p := range payloads {
		if _, ok := findApp(p, target); ok {
			relevant = append(relevant, p)
		}
	}
	if len(relevant) == 0 {
		return []domain.CategorizedReport{}
	}
	sort.SliceStable(relevant, func(i, j int) bool { return relevant[i].Date < relevant[j].Date })

	lastDate := relevant[len(relevant)-1].Date
	latestIDs := map[string]bool{}
	items := map[string]*domain.WeeklyItem{}
	var order []string

	for _, p := range relevant {
		app, _ := findApp(p, target)
		for _, li := range parseItems(app.Content) {
			if li.id == "" {
				continue
			}
			item, ok := items[li.id]
			if !ok {
				item = &domain.WeeklyItem{ID: li.id}
				items[li.id] = item
				order = append(order, li.id)
			}
			item.Content = li.content
			item.LastSeenDate = p.Date
			if p.Date == lastDate {
				latestIDs[li.id] = true
			}
		}
	}

	deployedIdx := -1
	for i, c := range configs {
		name := strings.ToLower(c.Name)
		if strings.Contains(name, "deployed") || strings.Contains(name, "completed") {
			deployedIdx = i
			break
		}
	}

	var deployedPatterns []*regexp.Regexp
	if deployedIdx >= 0 {
		deployedPatterns = tagPatterns(configs[deployedIdx].Tags)
	}

	var poolDeployed, poolActive []domain.WeeklyItem
	for _, id := range order {
		item := *items[id]
		if !latestIDs[id] || matchesAny(deployedPatterns, item.Content) {
			poolDeployed = append(poolDeployed, item)
		} else {
			poolActive = append(poolActive, item)
		}
	}

	result := []domain.CategorizedReport{}
	matched := map[string]bool{}
	usedDeployed := false

	for i, c := range configs {
		if i == deployedIdx {
			if len(poolDeployed) > 0 {
				result = append(result, domain.CategorizedReport{Category: c.Name, Items: poolDeployed})
			}
			usedDeployed = true
			continue
		}

		patterns := tagPatterns(c.Tags)
		if len(patterns) == 0 {
			continue
		}
		var hits []domain.WeeklyItem
		for _, item := range poolActive {
			if matchesAny(patterns, item.Content) {
				hits = append(hits, item)
				matched[item.ID] = true
			}
		}
		if len(hits) > 0 {
			result = append(result, domain.CategorizedReport{Category: c.Name, Items: hits})
		}
	}

	var leftovers []domain.WeeklyItem
	for _, item := range poolActive {
		if !matched[item.ID] {
			leftovers = append(leftovers, item)
		}
	}
	if len(leftovers) > 0 {
		result = append(result, domain.CategorizedReport{Category: UncategorizedCategory, Items: leftovers})
	}

	if !usedDeployed && len(poolDeployed) > 0 {
		result = append(result, domain.CategorizedReport{Category: DeployedCategory, Items: poolDeployed})
	}
	return result
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// findApp returns the first entry of p named like target (already normalized).
func findApp(p domain.StatusPayload, target string) (domain.AppEntry, bool) {
	for _, a := range p.Apps {
		if normalize(a.App) == target {
			return a, true
		}
	}
	return domain.AppEntry{}, false
}

// tagPatterns compiles each non-blank tag as a case-insensitive literal.
func tagPatterns(tags []string) []*regexp.Regexp {
	var out []*regexp.Regexp
	for _, t := range tags {
		if strings.TrimSpace(t) == "" {
			continue
		}
		out = append(out, regexp.MustCompile("(?i)"+regexp.QuoteMeta(t)))
	}
	return out
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// parseItems returns every <li> in document order, nested ones included,
// with its data-id and inner HTML.
func parseItems(content string) []listItem {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil
	}
	var items []listItem
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "li" {
			items = append(items, listItem{id: attr(n, "data-id"), content: InnerHTML(n)})
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return items
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// InnerHTML renders the children of n. Rendering stops at the first child
// that fails to render, keeping what was written so far.
func InnerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return buf.String()
		}
	}
	return buf.String()
}

// ExtractAppNames lists the application names found in payloads, trimmed and
// de-duplicated case-insensitively (first spelling kept), sorted.
func ExtractAppNames(payloads []domain.StatusPayload) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range payloads {
		for _, a := range p.Apps {
			name := strings.TrimSpace(a.App)
			if name == "" || seen[strings.ToLower(name)] {
				continue
			}
			seen[strings.ToLower(name)] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

var bracketTag = regexp.MustCompile(`\[[A-Za-z0-9\s\-_.]+\]`)

// ExtractAvailableTags lists the upper-cased bracket tokens ("[WORKING]")
// used in appName's content, sorted.
func ExtractAvailableTags(payloads []domain.StatusPayload, appName string) []string {
	target := normalize(appName)
	seen := map[string]bool{}
	var out []string
	for _, p := range payloads {
		for _, a := range p.Apps {
			if normalize(a.App) != target {
				continue
			}
			for _, tag := range bracketTag.FindAllString(a.Content, -1) {
				tag = strings.ToUpper(tag)
				if !seen[tag] {
					seen[tag] = true
					out = append(out, tag)
				}
			}
		}
	}
	sort.Strings(out)
	return out
}

// Items returns every item in reports once, in report order.
func Items(reports []domain.CategorizedReport) []domain.WeeklyItem {
	seen := map[string]bool{}
	var out []domain.WeeklyItem
	for _, r := range reports {
		for _, item := range r.Items {
			if !seen[item.ID] {
				seen[item.ID] = true
				out = append(out, item)
			}
		}
	}
	return out
}
