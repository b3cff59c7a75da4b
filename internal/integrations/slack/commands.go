package slackbot

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"statuslink/internal/config"
	"statuslink/internal/domain"
	"statuslink/internal/fragment"
	"statuslink/internal/listid"
	"statuslink/internal/reassembly"
	"statuslink/internal/report"
	"statuslink/internal/splitter"
	"statuslink/internal/storage/sqlite"
)

var errNoLinks = errors.New("no status links found")

var (
	// appLineRegex matches "App: item" lines of /status-link.
	appLineRegex = regexp.MustCompile(`^([^:]+):\s*(.+)$`)
	// slackLinkRegex matches Slack's <url> and <url|label> link markup.
	slackLinkRegex = regexp.MustCompile(`<(https?://[^|>\s]+)(\|[^>]*)?>`)
)

// unwrapSlackLinks replaces Slack link markup with the bare URLs.
func unwrapSlackLinks(text string) string {
	return slackLinkRegex.ReplaceAllString(text, "$1")
}

type saveOutcome struct {
	Payloads  int
	Snapshots int
	People    []string
	Dates     []string
	Invalid   int
}

// saveLinks reassembles the links pasted into text and stores one snapshot
// per person, date and application.
func saveLinks(db *sql.DB, text, origin, source string) (saveOutcome, error) {
	text = unwrapSlackLinks(text)
	out := saveOutcome{Invalid: len(fragment.InvalidLines(text))}
	payloads := reassembly.ReassemblePayloads(fragment.Extract(text, origin))
	if len(payloads) == 0 {
		return out, errNoLinks
	}

	people, dates := map[string]bool{}, map[string]bool{}
	for _, p := range payloads {
		n, err := sqlite.SaveDailyStatus(db, p, domain.KindIndividual, source)
		if err != nil {
			return out, fmt.Errorf("save %s %s: %w", p.Name, p.Date, err)
		}
		out.Payloads++
		out.Snapshots += n
		people[p.Name] = true
		dates[p.Date] = true
	}
	out.People = sortedKeys(people)
	out.Dates = sortedKeys(dates)
	return out, nil
}

func formatSaveReply(o saveOutcome) string {
	msg := fmt.Sprintf("Saved %d snapshot(s) from %d status(es) for %s on %s.",
		o.Snapshots, o.Payloads, strings.Join(o.People, ", "), strings.Join(o.Dates, ", "))
	if o.Invalid > 0 {
		msg += fmt.Sprintf(" Ignored %d line(s) without a status link.", o.Invalid)
	}
	return msg
}

// parseMergeArgs reads an optional leading merge mode from the command text.
func parseMergeArgs(text string) (report.MergeMode, string) {
	trimmed := strings.TrimSpace(text)
	first, rest := trimmed, ""
	if i := strings.IndexFunc(trimmed, unicode.IsSpace); i >= 0 {
		first, rest = trimmed[:i], trimmed[i:]
	}
	switch strings.ToLower(first) {
	case string(report.AppWise), string(report.PersonWise):
		return report.ParseMergeMode(first), strings.TrimSpace(rest)
	}
	return report.AppWise, trimmed
}

// mergeReply merges the pasted links into the plain text a lead pastes into
// a team update, with status tags removed.
func mergeReply(text, origin string) (string, error) {
	mode, links := parseMergeArgs(text)
	entries := reassembly.ReassembleText(unwrapSlackLinks(links), origin)
	if len(entries) == 0 {
		return "", errNoLinks
	}
	merged := report.RenderTeamHTML(entries, mode, report.AllApps, false)
	return report.PlainText(merged), nil
}

// buildStatus turns "App: item" lines into a payload. Consecutive lines for
// the same application become items of one list.
func buildStatus(name, date, text string) (domain.StatusPayload, error) {
	p := domain.StatusPayload{Version: domain.CurrentVersion, Name: name, Date: date}
	index := map[string]int{}
	var items [][]string
	for _, line := range strings.Split(text, "\n") {
		m := appLineRegex.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		app := strings.TrimSpace(m[1])
		k := strings.ToLower(app)
		i, ok := index[k]
		if !ok {
			i = len(p.Apps)
			index[k] = i
			p.Apps = append(p.Apps, domain.AppEntry{App: app})
			items = append(items, nil)
		}
		items[i] = append(items[i], strings.TrimSpace(m[2]))
	}
	if len(p.Apps) == 0 {
		return p, errors.New("expected lines like `Billing: [WORKING] invoice export`")
	}
	for i := range p.Apps {
		var b strings.Builder
		b.WriteString("<ul>")
		for _, item := range items[i] {
			b.WriteString("<li>" + htmlEscaper.Replace(item) + "</li>")
		}
		b.WriteString("</ul>")
		content, err := listid.Assign(b.String())
		if err != nil {
			return p, err
		}
		p.Apps[i].Content = content
	}
	return p, nil
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

// statusLinks splits p under the configured budget and returns shareable links.
func statusLinks(cfg config.Config, p domain.StatusPayload) ([]string, error) {
	s := splitter.New(splitter.Options{
		Budget:        cfg.FragmentBudget,
		ContentBudget: cfg.ContentBudget,
		Chunker:       splitter.NewChunker(cfg.Chunker),
	})
	res, err := s.Split(p)
	if err != nil {
		return nil, err
	}
	links := make([]string, 0, len(res.Fragments))
	for _, f := range res.Fragments {
		links = append(links, fragment.LinkFor(cfg.BaseURL, f))
	}
	return links, nil
}

func helpText() string {
	lines := []string{
		"*Status Link Commands*",
		"",
		"`/status-link <App: item lines>` — Create share links for today's status.",
		">```/status-link Billing: [WORKING] invoice export",
		">Billing: [BLOCKED] tax rules",
		">Search: [DONE] reindex```",
		"`/status-save <links>` — Store pasted status links in the history.",
		"`/status-merge [app-wise|person-wise] <links>` — Merge teammates' links into one update.",
		"`/weekly <app>` — Build this week's categorized report for an application.",
		"`/status-help` — Show this help.",
	}
	return strings.Join(lines, "\n")
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
