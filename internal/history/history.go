// Package history derives statistics and per-item timelines from stored
// snapshots.
package history

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"statuslink/internal/domain"
	"statuslink/internal/weekly"
)

const velocityDays = 7

var (
	doneTags       = []string{"[DONE]", "[DEPLOYED]", "[COMPLETED]"}
	blockedTags    = []string{"[BLOCKED]", "[ON HOLD]"}
	inProgressTags = []string{"[IN PROGRESS]", "[WORKING]", "[PLANNED]"}
)

type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type Stats struct {
	Done       int        `json:"done"`
	InProgress int        `json:"inProgress"`
	Blocked    int        `json:"blocked"`
	Total      int        `json:"total"`
	Velocity   []DayCount `json:"velocity"`
}

// ComputeStats counts list items of individual snapshots by their status tag.
// Velocity holds the done count for the last seven dates that had any.
func ComputeStats(snaps []domain.DailySnapshot) Stats {
	var st Stats
	perDate := map[string]int{}

	for _, s := range snaps {
		if s.Kind != domain.KindIndividual {
			continue
		}
		for _, app := range s.Payload.Apps {
			for _, li := range listItems(app.Content) {
				text := strings.ToUpper(textContent(li))
				switch {
				case containsAny(text, doneTags):
					st.Done++
					perDate[s.Date]++
				case containsAny(text, blockedTags):
					st.Blocked++
				case containsAny(text, inProgressTags):
					st.InProgress++
				}
				st.Total++
			}
		}
	}

	st.Velocity = []DayCount{}
	for date, n := range perDate {
		st.Velocity = append(st.Velocity, DayCount{Date: date, Count: n})
	}
	sort.Slice(st.Velocity, func(i, j int) bool { return st.Velocity[i].Date < st.Velocity[j].Date })
	if len(st.Velocity) > velocityDays {
		st.Velocity = st.Velocity[len(st.Velocity)-velocityDays:]
	}
	return st
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

type TimelineEntry struct {
	Date    string `json:"date"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

var firstBracket = regexp.MustCompile(`\[([^\]]+)\]`)

// Timeline follows one list item through the snapshots, oldest first. Status
// is the first bracketed token of the item's text.
func Timeline(snaps []domain.DailySnapshot, taskID string) []TimelineEntry {
	marker := fmt.Sprintf(`data-id="%s"`, taskID)
	sorted := append([]domain.DailySnapshot(nil), snaps...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date < sorted[j].Date })

	out := []TimelineEntry{}
	for _, s := range sorted {
		for _, app := range s.Payload.Apps {
			if !strings.Contains(app.Content, marker) {
				continue
			}
			entry := TimelineEntry{Date: s.Date, Status: "Unknown"}
			for _, li := range listItems(app.Content) {
				if attr(li, "data-id") != taskID {
					continue
				}
				entry.Content = weekly.InnerHTML(li)
				if m := firstBracket.FindStringSubmatch(textContent(li)); m != nil {
					entry.Status = m[1]
				}
				break
			}
			out = append(out, entry)
			break
		}
	}
	return out
}

// Group is the set of snapshots one person saved for one date and kind.
type Group struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Date      string                 `json:"date"`
	Kind      string                 `json:"kind"`
	Snapshots []domain.DailySnapshot `json:"snapshots"`
}

// GroupSnapshots groups snaps by person, date and kind, keeping first-seen order.
func GroupSnapshots(snaps []domain.DailySnapshot) []Group {
	var groups []Group
	index := map[string]int{}
	for _, s := range snaps {
		id := s.Payload.Name + "-" + s.Date + "-" + s.Kind
		i, ok := index[id]
		if !ok {
			i = len(groups)
			index[id] = i
			groups = append(groups, Group{ID: id, Name: s.Payload.Name, Date: s.Date, Kind: s.Kind})
		}
		groups[i].Snapshots = append(groups[i].Snapshots, s)
	}
	return groups
}

// Names lists the distinct, trimmed person names in snaps, sorted.
func Names(snaps []domain.DailySnapshot) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range snaps {
		n := strings.TrimSpace(s.Name)
		if n != "" && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// BatchLabel names a weekly batch link. Several people collapse to "Team";
// part is 1-based and only shown when there are several links.
func BatchLabel(names []string, from, to string, part, total int) string {
	who := "Team"
	if len(names) == 1 {
		who = names[0]
	}
	label := fmt.Sprintf("%s Weekly Status (%s to %s)", who, from, to)
	if total > 1 {
		label += fmt.Sprintf(" (%d)", part)
	}
	return label
}

func listItems(content string) []*html.Node {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil
	}
	var items []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "li" {
			items = append(items, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return items
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
