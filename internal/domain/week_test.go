package domain

import (
	"testing"
	"time"

	"statuslink/internal/config"
)

func TestReportWeekRangeMondayCutoff(t *testing.T) {
	loc := time.FixedZone("UTC+0", 0)
	cfg := config.Config{MondayCutoffTime: "12:00"}

	mondayMorning := time.Date(2026, 2, 9, 9, 0, 0, 0, loc)
	from, to := ReportWeekRange(cfg, mondayMorning)
	if from.Format("20060102") != "20260202" || to.Format("20060102") != "20260209" {
		t.Fatalf("expected previous week for Monday morning, got %s -> %s", from.Format("20060102"), to.Format("20060102"))
	}

	mondayAfternoon := time.Date(2026, 2, 9, 13, 0, 0, 0, loc)
	from, to = ReportWeekRange(cfg, mondayAfternoon)
	if from.Format("20060102") != "20260209" || to.Format("20060102") != "20260216" {
		t.Fatalf("expected current week for Monday afternoon, got %s -> %s", from.Format("20060102"), to.Format("20060102"))
	}
}

func TestCurrentWeekRangeAtSunday(t *testing.T) {
	sunday := time.Date(2026, 2, 15, 18, 0, 0, 0, time.UTC)
	from, to := CurrentWeekRangeAt(sunday)
	if from.Format(DateLayout) != "2026-02-09" || to.Format(DateLayout) != "2026-02-16" {
		t.Fatalf("unexpected range for sunday: %s -> %s", from.Format(DateLayout), to.Format(DateLayout))
	}
}

func TestFridayOfWeek(t *testing.T) {
	loc := time.FixedZone("UTC+0", 0)

	tests := []struct {
		name     string
		monday   time.Time
		expected string
	}{
		{
			name:     "basic monday to friday",
			monday:   time.Date(2026, 2, 9, 0, 0, 0, 0, loc),
			expected: "20260213",
		},
		{
			name:     "year boundary - monday in december",
			monday:   time.Date(2025, 12, 29, 0, 0, 0, 0, loc),
			expected: "20260102",
		},
		{
			name:     "month boundary",
			monday:   time.Date(2026, 2, 23, 0, 0, 0, 0, loc),
			expected: "20260227",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			friday := FridayOfWeek(tt.monday)
			if got := friday.Format("20060102"); got != tt.expected {
				t.Errorf("FridayOfWeek(%s) = %s, want %s", tt.monday.Format("20060102"), got, tt.expected)
			}
			if friday.Weekday() != time.Friday {
				t.Errorf("FridayOfWeek(%s) returned weekday %s", tt.monday.Format("20060102"), friday.Weekday())
			}
		})
	}
}

func TestDateRangeIsInclusive(t *testing.T) {
	from := time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC)
	start, end := DateRange(from, from.AddDate(0, 0, 7))
	if start != "2026-02-09" || end != "2026-02-15" {
		t.Fatalf("DateRange = %s..%s", start, end)
	}
}

func TestStatusPayloadCloneIsIndependent(t *testing.T) {
	p := StatusPayload{Version: 2, Name: "Ann", Date: "2024-01-01", Apps: []AppEntry{{App: "A", Content: "x"}}}
	c := p.Clone()
	c.Apps[0].Content = "changed"
	if p.Apps[0].Content != "x" {
		t.Fatalf("clone shares apps slice with original")
	}
}
