package slackbot

import (
	"database/sql"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/slack-go/slack"

	"statuslink/internal/codec"
	"statuslink/internal/config"
	"statuslink/internal/domain"
	"statuslink/internal/fragment"
	"statuslink/internal/listid"
	"statuslink/internal/report"
	sqlitedb "statuslink/internal/storage/sqlite"
)

const baseURL = "https://status.test/"

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlitedb.InitDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("init test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func link(t *testing.T, name, date string, apps ...domain.AppEntry) string {
	t.Helper()
	f, err := codec.Encode(domain.StatusPayload{Name: name, Date: date, Apps: apps})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return fragment.LinkFor(baseURL, f)
}

func TestUnwrapSlackLinks(t *testing.T) {
	in := "<https://status.test/#s=abc|my status>\n<https://status.test/#s=def>\nplain <@U123>"
	want := "https://status.test/#s=abc\nhttps://status.test/#s=def\nplain <@U123>"
	if got := unwrapSlackLinks(in); got != want {
		t.Fatalf("unwrapSlackLinks() = %q, want %q", got, want)
	}
}

func TestSaveLinks(t *testing.T) {
	db := newTestDB(t)
	l := link(t, "Ann", "2024-03-04",
		domain.AppEntry{App: "Billing", Content: "<ul><li>a</li></ul>"},
		domain.AppEntry{App: "Search", Content: "<ul><li>b</li></ul>"},
	)
	text := "<" + l + "|status>\nhello team"

	got, err := saveLinks(db, text, "", "slack:U1")
	if err != nil {
		t.Fatalf("saveLinks failed: %v", err)
	}
	want := saveOutcome{Payloads: 1, Snapshots: 2, People: []string{"Ann"}, Dates: []string{"2024-03-04"}, Invalid: 1}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("saveLinks() = %+v, want %+v", got, want)
	}
	snaps, err := sqlitedb.ListSnapshots(db, sqlitedb.SnapshotFilter{})
	if err != nil || len(snaps) != 2 || snaps[0].SourceIdentifier != "slack:U1" {
		t.Fatalf("unexpected stored snapshots: %+v err=%v", snaps, err)
	}
	if reply := formatSaveReply(got); reply != "Saved 2 snapshot(s) from 1 status(es) for Ann on 2024-03-04. Ignored 1 line(s) without a status link." {
		t.Fatalf("unexpected reply %q", reply)
	}

	if _, err := saveLinks(db, "nothing here", "", "slack:U1"); !errors.Is(err, errNoLinks) {
		t.Fatalf("expected errNoLinks, got %v", err)
	}
}

func TestParseMergeArgs(t *testing.T) {
	tests := []struct {
		in       string
		wantMode report.MergeMode
		wantRest string
	}{
		{"person-wise https://a/#s=x", report.PersonWise, "https://a/#s=x"},
		{"APP-WISE\nhttps://a/#s=x\nhttps://a/#s=y", report.AppWise, "https://a/#s=x\nhttps://a/#s=y"},
		{"https://a/#s=x https://a/#s=y", report.AppWise, "https://a/#s=x https://a/#s=y"},
		{"", report.AppWise, ""},
	}
	for _, tc := range tests {
		mode, rest := parseMergeArgs(tc.in)
		if mode != tc.wantMode || rest != tc.wantRest {
			t.Fatalf("parseMergeArgs(%q) = %q, %q; want %q, %q", tc.in, mode, rest, tc.wantMode, tc.wantRest)
		}
	}
}

func TestMergeReply(t *testing.T) {
	text := strings.Join([]string{
		link(t, "Ann", "2024-03-04", domain.AppEntry{App: "Billing", Content: "<ul><li>[WORKING] a</li></ul>"}),
		"<" + link(t, "Bob", "2024-03-04", domain.AppEntry{App: "Billing", Content: "<p>b</p>"}) + ">",
	}, "\n")

	got, err := mergeReply(text, "")
	if err != nil {
		t.Fatalf("mergeReply failed: %v", err)
	}
	if want := "Billing Application:\nAnn:\na\n**Bob:** b"; got != want {
		t.Fatalf("mergeReply() = %q, want %q", got, want)
	}

	got, err = mergeReply("person-wise "+text, "")
	if err != nil || !strings.HasPrefix(got, "Ann:\n") {
		t.Fatalf("person-wise mergeReply() = %q err=%v", got, err)
	}

	if _, err := mergeReply("person-wise", ""); !errors.Is(err, errNoLinks) {
		t.Fatalf("expected errNoLinks, got %v", err)
	}
}

func TestBuildStatus(t *testing.T) {
	p, err := buildStatus("Ann", "2024-03-04", "Billing: [WORKING] a & b\nnoise\nbilling: two\n  Search:   s  ")
	if err != nil {
		t.Fatalf("buildStatus failed: %v", err)
	}
	if p.Name != "Ann" || p.Date != "2024-03-04" || p.Version != domain.CurrentVersion || len(p.Apps) != 2 {
		t.Fatalf("unexpected payload: %+v", p)
	}
	if p.Apps[0].App != "Billing" || p.Apps[1].App != "Search" {
		t.Fatalf("unexpected apps: %+v", p.Apps)
	}
	if n := strings.Count(p.Apps[0].Content, `data-id="`); n != 2 {
		t.Fatalf("expected two list ids in %q", p.Apps[0].Content)
	}
	stripped, err := listid.Strip(p.Apps[0].Content)
	if err != nil {
		t.Fatalf("Strip failed: %v", err)
	}
	if stripped != "<ul><li>[WORKING] a &amp; b</li><li>two</li></ul>" {
		t.Fatalf("unexpected content %q", stripped)
	}

	if _, err := buildStatus("Ann", "2024-03-04", "just words"); err == nil {
		t.Fatalf("expected an error for text without app lines")
	}
}

func TestStatusLinks(t *testing.T) {
	cfg := config.Config{BaseURL: "https://status.test", FragmentBudget: 1800, ContentBudget: 1700, Chunker: "dom"}
	p, err := buildStatus("Ann", "2024-03-04", "Billing: shipped")
	if err != nil {
		t.Fatalf("buildStatus failed: %v", err)
	}
	links, err := statusLinks(cfg, p)
	if err != nil {
		t.Fatalf("statusLinks failed: %v", err)
	}
	if len(links) != 1 || !strings.HasPrefix(links[0], "https://status.test#s=") {
		t.Fatalf("unexpected links: %v", links)
	}
	got, ok := codec.DecodeStatus(strings.TrimPrefix(links[0], "https://status.test"))
	if !ok || got.Name != "Ann" || got.Apps[0].App != "Billing" {
		t.Fatalf("link does not decode back: %+v ok=%v", got, ok)
	}
}

func TestDisplayName(t *testing.T) {
	users := []slack.User{
		{ID: "U1", Name: "ann", RealName: "Ann Lee", Profile: slack.UserProfile{DisplayName: "Annie"}},
		{ID: "U2", Name: "bob", RealName: "Bob Stone"},
		{ID: "U3", Name: "cat"},
	}
	tests := map[string]string{"U1": "Annie", "U2": "Bob Stone", "U3": "cat", "U9": "U9"}
	for id, want := range tests {
		if got := displayName(users, id); got != want {
			t.Fatalf("displayName(%s) = %q, want %q", id, got, want)
		}
	}
}

func TestHelpTextListsCommands(t *testing.T) {
	help := helpText()
	for _, cmd := range []string{"/status-link", "/status-save", "/status-merge", "/weekly", "/status-help"} {
		if !strings.Contains(help, cmd) {
			t.Fatalf("help text missing %s", cmd)
		}
	}
}
