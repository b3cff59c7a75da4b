// Package reassembly turns a set of fragments back into one entry per person
// and application, joining split parts and dropping duplicates.
package reassembly

import (
	"encoding/json"
	"errors"
	"regexp"
	"sort"
	"strings"

	"statuslink/internal/codec"
	"statuslink/internal/domain"
	"statuslink/internal/fragment"
)

const (
	partSeparator = "\n\n"
	emptyContent  = "<ul><li></li></ul>"
)

var (
	ErrNoPayloads      = errors.New("no valid status links found")
	ErrMixedIdentities = errors.New("These status links belong to different people. Please paste links for the same person only.")
)

var partPattern = regexp.MustCompile(`^(.*) \[Part (\d+)\]$`)

// BaseName strips a trailing " [Part N]" marker. ok reports whether one was found.
func BaseName(app string) (base string, ok bool) {
	m := partPattern.FindStringSubmatch(app)
	if m == nil {
		return app, false
	}
	return m[1], true
}

func entryKey(name, base, date string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "|" + strings.ToLower(strings.TrimSpace(base)) + "|" + date
}

type partBuffer struct {
	name  string
	app   string
	parts []string
	seen  map[string]bool
}

// datedEntry is a reassembled entry that remembers the payload it came from.
type datedEntry struct {
	domain.NormalizedEntry
	date       string
	customTags []json.RawMessage
}

// Reassemble decodes fragments (invalid ones are skipped, batches flattened)
// and returns one entry per (person, application, date). The first complete
// entry for a key wins. Parts are joined in the order they were met and appear
// where the first part appeared, unless a complete entry for the same key
// exists. A repeated part number is ignored.
func Reassemble(fragments []string) []domain.NormalizedEntry {
	dated := reassemble(fragments)
	out := make([]domain.NormalizedEntry, 0, len(dated))
	for _, d := range dated {
		out = append(out, d.NormalizedEntry)
	}
	return out
}

// ReassemblePayloads reassembles fragments like Reassemble and regroups the
// entries into one payload per person and date, in first-seen order.
func ReassemblePayloads(fragments []string) []domain.StatusPayload {
	var (
		out   []domain.StatusPayload
		index = map[string]int{}
	)
	for _, d := range reassemble(fragments) {
		key := strings.ToLower(strings.TrimSpace(d.Name)) + "|" + d.date
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, domain.StatusPayload{
				Version:    domain.CurrentVersion,
				Name:       d.Name,
				Date:       d.date,
				CustomTags: d.customTags,
			})
		}
		out[i].Apps = append(out[i].Apps, domain.AppEntry{App: d.App, Content: d.Content})
	}
	return out
}

func reassemble(fragments []string) []datedEntry {
	type slot struct {
		entry *datedEntry
		key   string
	}

	var (
		slots   []slot
		emitted = map[string]bool{}
		buffers = map[string]*partBuffer{}
		origin  = map[string]domain.StatusPayload{}
	)

	for _, p := range codec.Flatten(fragments) {
		for _, app := range p.Apps {
			base, isPart := BaseName(app.App)
			key := entryKey(p.Name, base, p.Date)

			if isPart {
				buf, ok := buffers[key]
				if !ok {
					buf = &partBuffer{name: p.Name, app: base, seen: map[string]bool{}}
					buffers[key] = buf
					origin[key] = p
					slots = append(slots, slot{key: key})
				}
				// The same part pasted twice is kept once.
				marker := strings.ToLower(strings.TrimSpace(app.App))
				if buf.seen[marker] {
					continue
				}
				buf.seen[marker] = true
				buf.parts = append(buf.parts, app.Content)
				continue
			}

			if emitted[key] {
				continue
			}
			emitted[key] = true
			slots = append(slots, slot{entry: &datedEntry{
				NormalizedEntry: domain.NormalizedEntry{Name: p.Name, App: app.App, Content: app.Content},
				date:            p.Date,
				customTags:      p.CustomTags,
			}})
		}
	}

	out := make([]datedEntry, 0, len(slots))
	for _, s := range slots {
		if s.entry != nil {
			out = append(out, *s.entry)
			continue
		}
		if emitted[s.key] {
			continue
		}
		buf := buffers[s.key]
		out = append(out, datedEntry{
			NormalizedEntry: domain.NormalizedEntry{
				Name:    buf.name,
				App:     buf.app,
				Content: strings.Join(buf.parts, partSeparator),
			},
			date:       origin[s.key].Date,
			customTags: origin[s.key].CustomTags,
		})
	}
	return out
}

// ReassembleText extracts fragments from pasted text and reassembles them.
func ReassembleText(text, origin string) []domain.NormalizedEntry {
	return Reassemble(fragment.Extract(text, origin))
}

// MergeForEditing folds every payload in fragments into one payload so a
// person can keep editing an earlier, possibly split, status. All payloads
// must belong to the same person.
func MergeForEditing(fragments []string) (domain.StatusPayload, error) {
	payloads := codec.Flatten(fragments)
	if len(payloads) == 0 {
		return domain.StatusPayload{}, ErrNoPayloads
	}

	names := map[string]bool{}
	for _, p := range payloads {
		if n := strings.ToLower(strings.TrimSpace(p.Name)); n != "" {
			names[n] = true
		}
	}
	if len(names) > 1 {
		return domain.StatusPayload{}, ErrMixedIdentities
	}

	type merged struct {
		app      string
		contents []string
	}
	var (
		order  []string
		byKey  = map[string]*merged{}
		latest string
	)
	for _, p := range payloads {
		if p.Date > latest {
			latest = p.Date
		}
		for _, app := range p.Apps {
			base, _ := BaseName(app.App)
			key := strings.ToLower(strings.TrimSpace(base))
			m, ok := byKey[key]
			if !ok {
				m = &merged{app: base}
				byKey[key] = m
				order = append(order, key)
			}
			if strings.TrimSpace(app.Content) != "" {
				m.contents = append(m.contents, app.Content)
			}
		}
	}

	apps := make([]domain.AppEntry, 0, len(order))
	for _, key := range order {
		m := byKey[key]
		content := strings.Join(m.contents, partSeparator)
		if content == "" {
			content = emptyContent
		}
		apps = append(apps, domain.AppEntry{App: m.app, Content: content})
	}
	if len(apps) == 0 {
		apps = []domain.AppEntry{{App: "", Content: emptyContent}}
	}

	first := payloads[0]
	return domain.StatusPayload{
		Version:    domain.CurrentVersion,
		Name:       first.Name,
		Date:       latest,
		Apps:       apps,
		CustomTags: first.CustomTags,
	}, nil
}

// MergeTextForEditing finds fragments in pasted text, falling back to a loose
// scan when no line looks like a status link, and merges them.
func MergeTextForEditing(text, origin string) (domain.StatusPayload, error) {
	frags := fragment.Extract(text, origin)
	if len(frags) == 0 {
		frags = fragment.FindAll(text)
	}
	return MergeForEditing(frags)
}

// Apps returns the distinct application names in entries, compared
// case-insensitively, keeping the first spelling, sorted.
func Apps(entries []domain.NormalizedEntry) []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range entries {
		key := strings.ToLower(strings.TrimSpace(e.App))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(e.App))
	}
	sort.Strings(out)
	return out
}
