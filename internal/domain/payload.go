package domain

import (
	"encoding/json"
	"time"
)

// CurrentVersion is the schema version written by the codec.
const CurrentVersion = 2

// StatusPayload is one person's status for one date.
type StatusPayload struct {
	Version    int               `json:"v"`
	Name       string            `json:"name"`
	Date       string            `json:"date"` // YYYY-MM-DD
	Apps       []AppEntry        `json:"apps"`
	CustomTags []json.RawMessage `json:"customTags"`
}

type AppEntry struct {
	App     string `json:"app"`
	Content string `json:"content"` // HTML fragment
}

// TagDef is display metadata for a bracketed status tag.
type TagDef struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Color       string `json:"color"`
	BgColor     string `json:"bgColor"`
	Description string `json:"description"`
	IsCustom    bool   `json:"isCustom,omitempty"`
}

// NormalizedEntry is one logical (person, application) pair after reassembly.
type NormalizedEntry struct {
	Name    string `json:"name"`
	App     string `json:"app"`
	Content string `json:"content"`
}

type WeeklyItem struct {
	ID           string `json:"id"`
	Content      string `json:"content"`
	LastSeenDate string `json:"lastSeenDate"`
}

type CategoryConfig struct {
	Name string   `json:"name" yaml:"name"`
	Tags []string `json:"tags" yaml:"tags"`
}

type CategorizedReport struct {
	Category string       `json:"category"`
	Items    []WeeklyItem `json:"items"`
}

// Snapshot kinds stored in the history.
const (
	KindIndividual = "individual"
	KindTeam       = "team"
)

// DailySnapshot is a stored single-application view of a payload.
type DailySnapshot struct {
	ID               int64         `json:"id"`
	Date             string        `json:"date"`
	AppName          string        `json:"appName"`
	Name             string        `json:"name"`
	Kind             string        `json:"kind"`
	SourceIdentifier string        `json:"sourceIdentifier"`
	Payload          StatusPayload `json:"payload"`
	CreatedAt        time.Time     `json:"createdAt"`
}

// Clone returns a copy whose slices can be modified without touching p.
func (p StatusPayload) Clone() StatusPayload {
	out := p
	out.Apps = append([]AppEntry(nil), p.Apps...)
	if p.CustomTags != nil {
		out.CustomTags = append([]json.RawMessage{}, p.CustomTags...)
	}
	return out
}
