package splitter

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"statuslink/internal/codec"
	"statuslink/internal/domain"
)

// noise returns roughly n bytes of words that deflate poorly, so fragment
// sizes grow with the input.
func noise(r *rand.Rand, n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	var b strings.Builder
	for b.Len() < n {
		w := 3 + r.Intn(6)
		for i := 0; i < w; i++ {
			b.WriteByte(letters[r.Intn(len(letters))])
		}
		b.WriteByte(' ')
	}
	return strings.TrimSpace(b.String())
}

func listOf(r *rand.Rand, items, size int) string {
	var b strings.Builder
	b.WriteString("<ul>")
	for i := 0; i < items; i++ {
		fmt.Fprintf(&b, `<li data-id="item%07d">%s</li>`, i, noise(r, size))
	}
	b.WriteString("</ul>")
	return b.String()
}

func basePayload(apps ...domain.AppEntry) domain.StatusPayload {
	return domain.StatusPayload{Version: domain.CurrentVersion, Name: "Ann", Date: "2024-03-04", Apps: apps}
}

func decodeAll(t *testing.T, frags []string) []domain.AppEntry {
	t.Helper()
	var apps []domain.AppEntry
	for i, f := range frags {
		p, ok := codec.DecodeStatus(f)
		if !ok {
			t.Fatalf("fragment %d does not decode", i)
		}
		apps = append(apps, p.Apps...)
	}
	return apps
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func TestSplitSmallPayloadIsSingleFragment(t *testing.T) {
	p := basePayload(domain.AppEntry{App: "Billing", Content: "<ul><li>[DONE] Fixed invoice</li></ul>"})
	frags, err := SplitPayload(p, DefaultBudget)
	if err != nil {
		t.Fatalf("SplitPayload failed: %v", err)
	}
	want, _ := codec.Encode(p)
	if len(frags) != 1 || frags[0] != want {
		t.Fatalf("expected the whole-payload fragment, got %d fragments", len(frags))
	}
}

func TestSplitPacksApplicationsInOrder(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	p := basePayload(
		domain.AppEntry{App: "A", Content: listOf(r, 3, 300)},
		domain.AppEntry{App: "B", Content: listOf(r, 3, 300)},
		domain.AppEntry{App: "C", Content: listOf(r, 3, 300)},
	)

	res, err := New(Options{}).Split(p)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(res.Fragments) < 2 {
		t.Fatalf("expected the payload to be split, got %d fragment(s)", len(res.Fragments))
	}
	for i, f := range res.Fragments {
		if len(f) > DefaultBudget {
			t.Fatalf("fragment %d has length %d over budget", i, len(f))
		}
	}
	if res.Oversized != 0 {
		t.Fatalf("expected no oversized fragments, got %d", res.Oversized)
	}

	got := decodeAll(t, res.Fragments)
	if !reflect.DeepEqual(got, p.Apps) {
		t.Fatalf("applications changed or reordered by packing")
	}
}

func TestSplitLargeApplicationIntoParts(t *testing.T) {
	for _, name := range []string{"dom", "regex"} {
		t.Run(name, func(t *testing.T) {
			r := rand.New(rand.NewSource(2))
			content := listOf(r, 20, 200)
			p := basePayload(domain.AppEntry{App: "Billing", Content: content})

			res, err := New(Options{Chunker: NewChunker(name)}).Split(p)
			if err != nil {
				t.Fatalf("Split failed: %v", err)
			}
			if len(res.Fragments) < 2 {
				t.Fatalf("expected several parts, got %d", len(res.Fragments))
			}

			apps := decodeAll(t, res.Fragments)
			var joined strings.Builder
			for i, app := range apps {
				if want := PartName("Billing", i+1); app.App != want {
					t.Fatalf("part %d named %q, want %q", i, app.App, want)
				}
				if app.Content != strings.TrimSpace(app.Content) {
					t.Fatalf("part %d content not trimmed", i)
				}
				joined.WriteString(app.Content)
			}
			if squash(joined.String()) != squash(content) {
				t.Fatalf("concatenated parts differ from original content")
			}
			for i, f := range res.Fragments {
				if len(f) > DefaultBudget {
					t.Fatalf("part %d has length %d over budget", i, len(f))
				}
			}
		})
	}
}

func TestSplitKeepsSmallAppsWholeNextToLargeOne(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	p := basePayload(
		domain.AppEntry{App: "Small", Content: "<p>ok</p>"},
		domain.AppEntry{App: "Huge", Content: listOf(r, 15, 250)},
		domain.AppEntry{App: "Tail", Content: "<p>bye</p>"},
	)
	res, err := New(Options{}).Split(p)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	apps := decodeAll(t, res.Fragments)
	if apps[0].App != "Small" || apps[len(apps)-1].App != "Tail" {
		t.Fatalf("unexpected order: first=%q last=%q", apps[0].App, apps[len(apps)-1].App)
	}
	for _, app := range apps[1 : len(apps)-1] {
		if !strings.HasPrefix(app.App, "Huge [Part ") {
			t.Fatalf("expected only parts of Huge in the middle, got %q", app.App)
		}
	}
}

func TestSplitOversizedChunkIsEmittedAnyway(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	content := "<ul><li>" + strings.ReplaceAll(noise(r, 3000), " ", "") + "</li></ul>"
	p := basePayload(domain.AppEntry{App: "Billing", Content: content})

	res, err := New(Options{}).Split(p)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if res.Oversized != 1 {
		t.Fatalf("expected one oversized fragment, got %d", res.Oversized)
	}
	var joined strings.Builder
	for _, app := range decodeAll(t, res.Fragments) {
		joined.WriteString(app.Content)
	}
	if squash(joined.String()) != squash(content) {
		t.Fatalf("oversized content was not preserved")
	}
}

func TestSplitEncodeFailureReturnsNoFragments(t *testing.T) {
	p := basePayload(domain.AppEntry{App: "Billing", Content: "x"})
	p.CustomTags = []json.RawMessage{json.RawMessage("{broken")}

	frags, err := SplitPayload(p, DefaultBudget)
	if err == nil {
		t.Fatalf("expected an error")
	}
	if !errors.Is(err, ErrEncode) || !errors.Is(err, codec.ErrEncode) {
		t.Fatalf("expected wrapped encode errors, got %v", err)
	}
	if frags != nil {
		t.Fatalf("expected no partial output, got %d fragments", len(frags))
	}
}

func TestSplitBatchPacksDaysAndSplitsLargeOnes(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	var days []domain.StatusPayload
	for i := 1; i <= 3; i++ {
		p := basePayload(domain.AppEntry{App: "Billing", Content: "<ul><li>short</li></ul>"})
		p.Date = fmt.Sprintf("2024-03-0%d", i)
		days = append(days, p)
	}
	big := basePayload(domain.AppEntry{App: "Billing", Content: listOf(r, 20, 200)})
	big.Date = "2024-03-04"
	days = append(days, big)

	frags, err := SplitBatch(days, DefaultBudget)
	if err != nil {
		t.Fatalf("SplitBatch failed: %v", err)
	}
	if len(frags) < 3 {
		t.Fatalf("expected the batch plus parts, got %d fragments", len(frags))
	}
	first, ok := codec.Decode(frags[0])
	if !ok || !first.Batch || len(first.Payloads) != 3 {
		t.Fatalf("expected first fragment to batch three days, got ok=%v %#v", ok, first)
	}
	for i, f := range frags[1:] {
		p, ok := codec.DecodeStatus(f)
		if !ok || p.Date != "2024-03-04" {
			t.Fatalf("fragment %d should be a part of the large day", i+1)
		}
	}
}

func TestDOMChunker(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "list items and nesting",
			in:   `<ul><li>a</li><li>b<ul><li>c</li></ul></li></ul><p>x</p>`,
			want: []string{"<ul>", "<li>a</li>", "<li>b<ul><li>c</li></ul></li>", "</ul>", "<p>x</p>"},
		},
		{
			name: "implicitly closed items",
			in:   `<ul><li>a<li>b</ul>`,
			want: []string{"<ul>", "<li>a", "<li>b", "</ul>"},
		},
		{
			name: "line breaks",
			in:   `first line<br>second line<br/>third`,
			want: []string{"first line<br>", "second line<br/>", "third"},
		},
		{
			name: "headings and whitespace",
			in:   "<h3>Title</h3>\n  <p>body <strong>bold</strong></p>\n",
			want: []string{"<h3>Title</h3>", "<p>body <strong>bold</strong></p>"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := DOMChunker{}.Chunk(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Chunk() = %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestRegexChunker(t *testing.T) {
	got := RegexChunker{}.Chunk(`<ul class="x"><li>a</li><li>b</li></ul><p>x</p>`)
	want := []string{`<ul class="x">`, "<li>a</li>", "<li>b</li>", "</ul>", "<p>x</p>"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Chunk() = %#v, want %#v", got, want)
	}
}

func TestChunkersFallBackToWindows(t *testing.T) {
	r := rand.New(rand.NewSource(6))
	text := noise(r, 1600)
	for _, c := range []Chunker{DOMChunker{}, RegexChunker{}} {
		chunks := c.Chunk(text)
		if len(chunks) < 3 {
			t.Fatalf("%T: expected windowed chunks, got %d", c, len(chunks))
		}
		if strings.Join(chunks, "") != text {
			t.Fatalf("%T: windows do not reproduce the input", c)
		}
	}
}

func TestWindowTextBreaksOnBoundariesAndRunes(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	text := noise(r, 2000)
	for _, w := range windowText(text) {
		if len(w) > windowSize {
			t.Fatalf("window of %d bytes", len(w))
		}
	}

	// A space right after the window must not stretch it by one byte.
	edge := strings.Repeat("a", windowSize) + " " + strings.Repeat("b", 50)
	edgeWindows := windowText(edge)
	if len(edgeWindows[0]) != windowSize || strings.Join(edgeWindows, "") != edge {
		t.Fatalf("unexpected windows at the boundary: %d bytes first, %d windows", len(edgeWindows[0]), len(edgeWindows))
	}

	wide := strings.Repeat("é", 700)
	windows := windowText(wide)
	if strings.Join(windows, "") != wide {
		t.Fatalf("windows do not reproduce multibyte input")
	}
	for i, w := range windows {
		if !utf8.ValidString(w) {
			t.Fatalf("window %d splits a rune", i)
		}
	}

	if got := windowText("short"); !reflect.DeepEqual(got, []string{"short"}) {
		t.Fatalf("short text should be one window, got %#v", got)
	}
}
