package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"statuslink/internal/domain"
)

func TestCleanContentHTML(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		showTags bool
		want     string
	}{
		{"empty", "", true, ""},
		{"paragraph becomes span", "<p>Done thing</p>", true, "<span>Done thing</span>"},
		{"paragraphs joined", "<p>a</p><P class='x'>b</P>", true, "<span>ab</span>"},
		{"line break", "line1<br>line2<br/>", true, "<span>line1\nline2</span>"},
		{"list kept", "<ul><li>[WORKING] x</li></ul>", true, "<ul><li>[WORKING] x</li></ul>"},
		{"tags removed", "<ul><li>[WORKING] x</li></ul>", false, "<ul><li> x</li></ul>"},
		{"only a tag", "<p>[DONE]</p>", false, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CleanContentHTML(tc.in, tc.showTags); got != tc.want {
				t.Fatalf("CleanContentHTML(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestRemoveStatusTags(t *testing.T) {
	if got := RemoveStatusTags("[DONE] a [IN PROGRESS] b [lower]"); got != " a  b [lower]" {
		t.Fatalf("RemoveStatusTags() = %q", got)
	}
}

func teamEntries() []domain.NormalizedEntry {
	return []domain.NormalizedEntry{
		{Name: "Ann", App: "Billing", Content: "<p>did a</p>"},
		{Name: "Bob", App: "billing ", Content: "<ul><li>b</li></ul>"},
		{Name: "Ann", App: "Search", Content: "[DONE] s"},
	}
}

func TestRenderTeamHTML(t *testing.T) {
	tests := []struct {
		name     string
		mode     MergeMode
		app      string
		showTags bool
		want     string
	}{
		{
			name:     "app-wise",
			mode:     AppWise,
			app:      AllApps,
			showTags: true,
			want: "<h3>Billing Application:</h3><ul><li><strong>Ann:</strong> <span>did a</span></li>" +
				"<li><strong>Bob:</strong> <ul><li>b</li></ul></li></ul>" +
				"<h3>Search Application:</h3><ul><li><strong>Ann:</strong> <span>[DONE] s</span></li></ul>",
		},
		{
			name:     "person-wise",
			mode:     PersonWise,
			showTags: true,
			want: "<h3>Ann:</h3><ul><li><strong>Billing:</strong> <span>did a</span></li>" +
				"<li><strong>Search:</strong> <span>[DONE] s</span></li></ul>" +
				"<h3>Bob:</h3><ul><li><strong>billing:</strong> <ul><li>b</li></ul></li></ul>",
		},
		{
			name: "filtered without tags",
			mode: AppWise,
			app:  "SEARCH",
			want: "<h3>Search Application:</h3><ul><li><strong>Ann:</strong> <span> s</span></li></ul>",
		},
		{
			name: "filter matches nothing",
			mode: AppWise,
			app:  "Payroll",
			want: "",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := RenderTeamHTML(teamEntries(), tc.mode, tc.app, tc.showTags); got != tc.want {
				t.Fatalf("RenderTeamHTML() =\n%s\nwant\n%s", got, tc.want)
			}
		})
	}
}

func TestRenderTeamHTMLEscapesNames(t *testing.T) {
	got := RenderTeamHTML([]domain.NormalizedEntry{{Name: "<b>Eve</b>", App: "A&B", Content: "x"}}, AppWise, "", true)
	if !strings.Contains(got, "<h3>A&amp;B Application:</h3>") || !strings.Contains(got, "&lt;b&gt;Eve&lt;/b&gt;:") {
		t.Fatalf("expected escaped headings and labels, got %s", got)
	}
}

func TestParseMergeMode(t *testing.T) {
	if ParseMergeMode(" Person-Wise ") != PersonWise || ParseMergeMode("") != AppWise || ParseMergeMode("bogus") != AppWise {
		t.Fatalf("unexpected merge mode parsing")
	}
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "team merge",
			in:   RenderTeamHTML(teamEntries(), AppWise, AllApps, true),
			want: "Billing Application:\n**Ann:** did a\nBob:\nb\n\nSearch Application:\n**Ann:** [DONE] s",
		},
		{
			name: "paragraphs",
			in:   "<p>One</p><p>Two</p><p></p>",
			want: "One\n\nTwo",
		},
		{
			name: "inline markers",
			in:   "<ul><li><em>soon</em> <strong>now</strong></li></ul>",
			want: "*soon* **now**",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := PlainText(tc.in); got != tc.want {
				t.Fatalf("PlainText() = %q, want %q", got, tc.want)
			}
		})
	}
}

func weeklyReports() []domain.CategorizedReport {
	return []domain.CategorizedReport{
		{Category: "In Progress", Items: []domain.WeeklyItem{{ID: "a", Content: "[WORKING] Build"}}},
		{Category: "Blocked", Items: []domain.WeeklyItem{}},
		{Category: "Deployed / Completed", Items: []domain.WeeklyItem{{ID: "b", Content: "Ship"}}},
	}
}

func TestRenderWeeklyHTML(t *testing.T) {
	want := "<h3>In Progress</h3><ul><li>[WORKING] Build</li></ul><p></p><h3>Deployed / Completed</h3><ul><li>Ship</li></ul>"
	if got := RenderWeeklyHTML(weeklyReports(), true); got != want {
		t.Fatalf("RenderWeeklyHTML() = %q, want %q", got, want)
	}
	want = "<h3>In Progress</h3><ul><li> Build</li></ul><p></p><h3>Deployed / Completed</h3><ul><li>Ship</li></ul>"
	if got := RenderWeeklyHTML(weeklyReports(), false); got != want {
		t.Fatalf("RenderWeeklyHTML(no tags) = %q, want %q", got, want)
	}
	if got := RenderWeeklyHTML(nil, true); got != "<p>No items found for this application with traceable IDs.</p>" {
		t.Fatalf("unexpected empty report: %q", got)
	}
}

func TestRenderWeeklyMarkdown(t *testing.T) {
	want := "# Billing weekly\n\n### In Progress\n- [WORKING] Build\n\n### Deployed / Completed\n- Ship\n"
	if got := RenderWeeklyMarkdown("Billing weekly", weeklyReports(), true); got != want {
		t.Fatalf("RenderWeeklyMarkdown() = %q, want %q", got, want)
	}
	got := RenderWeeklyMarkdown("", weeklyReports(), false)
	if !strings.HasPrefix(got, "### In Progress\n- Build\n") {
		t.Fatalf("unexpected markdown without tags: %q", got)
	}
	if got := RenderWeeklyMarkdown("T", nil, true); !strings.Contains(got, "No items found") {
		t.Fatalf("unexpected empty markdown: %q", got)
	}
}

func TestInlineText(t *testing.T) {
	if got := InlineText("<b>Fix</b>\n <i>login</i><ul><li>flow</li></ul>"); got != "Fix login flow" {
		t.Fatalf("InlineText() = %q", got)
	}
}

func TestWriteReportAndEmailDraftFiles(t *testing.T) {
	outDir := t.TempDir()
	date := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)

	reportPath, err := WriteReportFile("hello report\n", outDir, date, "Team A")
	if err != nil {
		t.Fatalf("WriteReportFile failed: %v", err)
	}
	if !strings.HasSuffix(reportPath, "Team A_20260220.md") {
		t.Fatalf("unexpected report file path: %s", reportPath)
	}
	if data, err := os.ReadFile(reportPath); err != nil || string(data) != "hello report\n" {
		t.Fatalf("unexpected report file content err=%v content=%q", err, string(data))
	}

	md := RenderWeeklyMarkdown("Billing weekly", weeklyReports(), true)
	emlPath, err := WriteEmailDraftFile(md, outDir, date, "Billing weekly")
	if err != nil {
		t.Fatalf("WriteEmailDraftFile failed: %v", err)
	}
	if !strings.HasSuffix(emlPath, "Billing weekly_20260220.eml") {
		t.Fatalf("unexpected eml file path: %s", emlPath)
	}
	data, err := os.ReadFile(filepath.Clean(emlPath))
	if err != nil {
		t.Fatalf("expected eml file to exist: %v", err)
	}
	eml := string(data)
	for _, want := range []string{
		"Subject: Billing weekly 2026-02-20\r\n",
		`boundary="statuslink-alt"`,
		"Content-Type: text/plain; charset=UTF-8",
		"Content-Type: text/html; charset=UTF-8",
		"<h3>In Progress</h3>",
		"<li>Ship</li>",
		"\r\nIn Progress\r\n- [WORKING] Build\r\n",
		"--statuslink-alt--\r\n",
	} {
		if !strings.Contains(eml, want) {
			t.Fatalf("eml missing %q:\n%s", want, eml)
		}
	}
	if strings.Contains(eml, "### ") {
		t.Fatalf("plain part should not keep heading markers:\n%s", eml)
	}
}

func TestWriteReportFileSanitizesTeamName(t *testing.T) {
	outDir := t.TempDir()
	date := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)

	reportPath, err := WriteReportFile("x", outDir, date, "../Ops\\Team")
	if err != nil {
		t.Fatalf("WriteReportFile failed: %v", err)
	}
	base := filepath.Base(reportPath)
	if base != "_Ops_Team_20260220.md" {
		t.Fatalf("unexpected sanitized report file name: %s", base)
	}
	if filepath.Dir(reportPath) != outDir {
		t.Fatalf("report escaped the output dir: %s", reportPath)
	}
}

func TestMarkdownToEmailPlain(t *testing.T) {
	got := markdownToEmailPlain("# T\n\n### A\n- **x**\n\n\n- y")
	if got != "T\n\nA\n- x\n\n- y\n" {
		t.Fatalf("markdownToEmailPlain() = %q", got)
	}
}

func TestRenderTerminal(t *testing.T) {
	if got := RenderTerminal("   ", 80); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
	got := RenderTerminal("### Deployed\n- Shipped\n", 60)
	if !strings.Contains(got, "Shipped") {
		t.Fatalf("rendered markdown lost its text: %q", got)
	}
}

func TestTerminalWidth(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"120", 120},
		{"", 80},
		{"wide", 80},
		{"-3", 80},
	}
	for _, tc := range tests {
		if got := TerminalWidth(tc.in, 80); got != tc.want {
			t.Fatalf("TerminalWidth(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
