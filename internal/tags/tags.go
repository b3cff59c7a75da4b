// Package tags holds the bracketed status tags ([WORKING], [BLOCKED], ...)
// and the registry of user-defined ones.
package tags

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"statuslink/internal/domain"
)

var (
	ErrLabelTaken = errors.New("tag label already exists")
	ErrEmptyLabel = errors.New("tag label is empty")
	ErrNotFound   = errors.New("custom tag not found")
)

const defaultCustomColor = "#6b7280"

var builtin = []domain.TagDef{
	{ID: "enh", Label: "ENH", Color: "#3b82f6", BgColor: "#eff6ff", Description: "Enhancement"},
	{ID: "ticket", Label: "TICKET", Color: "#6366f1", BgColor: "#eef2ff", Description: "Ticket/Reference"},
	{ID: "working", Label: "WORKING", Color: "#f59e0b", BgColor: "#fffbeb", Description: "In Progress"},
	{ID: "pending", Label: "PENDING", Color: "#6b7280", BgColor: "#f9fafb", Description: "Pending Review"},
	{ID: "uat", Label: "UAT", Color: "#8b5cf6", BgColor: "#f3e8ff", Description: "User Acceptance Testing"},
	{ID: "approved", Label: "APPROVED", Color: "#10b981", BgColor: "#ecfdf5", Description: "Approved"},
	{ID: "blocked", Label: "BLOCKED", Color: "#ef4444", BgColor: "#fef2f2", Description: "Blocked"},
	{ID: "review", Label: "REVIEW", Color: "#06b6d4", BgColor: "#ecfeff", Description: "Under Review"},
	{ID: "qa", Label: "QA", Color: "#ec4899", BgColor: "#fdf2f8", Description: "Quality Assurance"},
	{ID: "hold", Label: "HOLD", Color: "#d97706", BgColor: "#fffbeb", Description: "On Hold"},
}

// Builtin returns a copy of the predefined status tags.
func Builtin() []domain.TagDef {
	return append([]domain.TagDef(nil), builtin...)
}

// ByLabel finds a predefined tag by its exact label.
func ByLabel(label string) (domain.TagDef, bool) {
	for _, t := range builtin {
		if t.Label == label {
			return t, true
		}
	}
	return domain.TagDef{}, false
}

// TagLookup is the tag registry as seen by editors and renderers.
type TagLookup interface {
	All() ([]domain.TagDef, error)
	Add(label, color string) (domain.TagDef, error)
	Remove(id string) error
	IsLabelTaken(label string) (bool, error)
}

// CustomTagStore persists user-defined tags.
type CustomTagStore interface {
	LoadCustomTags() ([]domain.TagDef, error)
	InsertCustomTag(tag domain.TagDef) error
	DeleteCustomTag(id string) error
}

// Registry implements TagLookup on top of a CustomTagStore.
type Registry struct {
	store CustomTagStore
	newID func() string
}

var _ TagLookup = (*Registry)(nil)

func NewRegistry(store CustomTagStore) *Registry {
	return &Registry{
		store: store,
		newID: func() string { return "custom-" + uuid.NewString() },
	}
}

// All returns custom tags first, then the predefined ones.
func (r *Registry) All() ([]domain.TagDef, error) {
	custom, err := r.store.LoadCustomTags()
	if err != nil {
		return nil, fmt.Errorf("load custom tags: %w", err)
	}
	return append(custom, builtin...), nil
}

func (r *Registry) IsLabelTaken(label string) (bool, error) {
	all, err := r.All()
	if err != nil {
		return false, err
	}
	label = strings.TrimSpace(label)
	for _, t := range all {
		if strings.EqualFold(t.Label, label) {
			return true, nil
		}
	}
	return false, nil
}

func (r *Registry) Add(label, color string) (domain.TagDef, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return domain.TagDef{}, ErrEmptyLabel
	}
	taken, err := r.IsLabelTaken(label)
	if err != nil {
		return domain.TagDef{}, err
	}
	if taken {
		return domain.TagDef{}, fmt.Errorf("%w: %s", ErrLabelTaken, strings.ToUpper(label))
	}
	color = strings.TrimSpace(color)
	if color == "" {
		color = defaultCustomColor
	}

	tag := domain.TagDef{
		ID:          r.newID(),
		Label:       strings.ToUpper(label),
		Color:       color,
		BgColor:     HexToRGBA(color, 0.1),
		Description: "Custom tag: " + label,
		IsCustom:    true,
	}
	if err := r.store.InsertCustomTag(tag); err != nil {
		return domain.TagDef{}, fmt.Errorf("save custom tag: %w", err)
	}
	return tag, nil
}

func (r *Registry) Remove(id string) error {
	return r.store.DeleteCustomTag(id)
}

// MemoryStore is a CustomTagStore kept in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	tags []domain.TagDef
}

func (m *MemoryStore) LoadCustomTags() ([]domain.TagDef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.TagDef(nil), m.tags...), nil
}

func (m *MemoryStore) InsertCustomTag(tag domain.TagDef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tags = append(m.tags, tag)
	return nil
}

func (m *MemoryStore) DeleteCustomTag(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.tags {
		if t.ID == id {
			m.tags = append(m.tags[:i], m.tags[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

var hexColor = regexp.MustCompile(`^#([A-Fa-f0-9]{3}){1,2}$`)

// HexToRGBA converts "#rgb" or "#rrggbb" to an rgba() string. rgb() inputs get
// the alpha appended; anything else is returned unchanged.
func HexToRGBA(color string, alpha float64) string {
	a := strconv.FormatFloat(alpha, 'f', -1, 64)
	if hexColor.MatchString(color) {
		h := color[1:]
		if len(h) == 3 {
			h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
		}
		v, err := strconv.ParseUint(h, 16, 32)
		if err != nil {
			return color
		}
		return fmt.Sprintf("rgba(%d, %d, %d, %s)", (v>>16)&255, (v>>8)&255, v&255, a)
	}
	if strings.HasPrefix(color, "rgb") {
		inner := strings.TrimPrefix(strings.TrimPrefix(color, "rgba("), "rgb(")
		inner = strings.TrimSuffix(inner, ")")
		inner = strings.Join(strings.Fields(inner), "")
		parts := strings.Split(inner, ",")
		if len(parts) == 3 {
			return "rgba(" + strings.Join(parts, ",") + "," + a + ")"
		}
	}
	return color
}

// Color returns the display colour for label: the predefined colour when the
// tag is known, otherwise a hue derived from the label so it stays stable.
func Color(label string) string {
	label = strings.ToUpper(label)
	if t, ok := ByLabel(label); ok {
		return t.Color
	}
	// The shift wraps at 32 bits, the running sum does not.
	var hash int64
	for _, r := range label {
		shifted := int64(int32(uint32(hash) << 5))
		hash = int64(r) + (shifted - hash)
	}
	if hash < 0 {
		hash = -hash
	}
	return fmt.Sprintf("hsl(%d, 70%%, 30%%)", hash%360)
}

// Style is the inline CSS used for a tag in rendered HTML.
func Style(label string) string {
	return "color: " + Color(label) + "; font-weight: 600; margin-left: 0.2rem;"
}

var upperTag = regexp.MustCompile(`\[([A-Z\s]+)\]`)

// RenderHTML wraps every upper-case bracket tag in a coloured span.
func RenderHTML(src string) string {
	if src == "" {
		return ""
	}
	return upperTag.ReplaceAllStringFunc(src, func(m string) string {
		label := m[1 : len(m)-1]
		return `<span class="visual-tag" style="` + Style(label) + `">[` + label + `]</span>`
	})
}

// DecodeCustomTags reads the custom tag definitions carried in a payload,
// skipping entries that do not parse.
func DecodeCustomTags(raw []json.RawMessage) []domain.TagDef {
	var out []domain.TagDef
	for _, r := range raw {
		var t domain.TagDef
		if err := json.Unmarshal(r, &t); err != nil || t.Label == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}

// EncodeCustomTags is the inverse of DecodeCustomTags.
func EncodeCustomTags(defs []domain.TagDef) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(defs))
	for _, d := range defs {
		b, err := json.Marshal(d)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
