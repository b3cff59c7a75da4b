package domain

import (
	"time"

	"statuslink/internal/config"
)

const DateLayout = "2006-01-02"

// CurrentWeekRange returns Monday 00:00:00 and next Monday 00:00:00 for the current calendar week.
func CurrentWeekRange(loc *time.Location) (time.Time, time.Time) {
	now := time.Now().In(loc)
	return CurrentWeekRangeAt(now)
}

func CurrentWeekRangeAt(now time.Time) (time.Time, time.Time) {
	weekday := now.Weekday()
	if weekday == time.Sunday {
		weekday = 7
	}
	daysFromMonday := int(weekday) - int(time.Monday)
	monday := time.Date(now.Year(), now.Month(), now.Day()-daysFromMonday, 0, 0, 0, 0, now.Location())
	nextMonday := monday.AddDate(0, 0, 7)
	return monday, nextMonday
}

// ReportWeekRange is the week a report generated at now should cover. Before
// the Monday cutoff the previous week is still being reported.
func ReportWeekRange(cfg config.Config, now time.Time) (time.Time, time.Time) {
	hour, min, err := config.ParseClock(cfg.MondayCutoffTime)
	if err != nil {
		return CurrentWeekRangeAt(now)
	}

	if now.Weekday() == time.Monday {
		cutoff := time.Date(now.Year(), now.Month(), now.Day(), hour, min, 0, 0, now.Location())
		if now.Before(cutoff) {
			return CurrentWeekRangeAt(now.AddDate(0, 0, -7))
		}
	}
	return CurrentWeekRangeAt(now)
}

func FridayOfWeek(monday time.Time) time.Time {
	return monday.AddDate(0, 0, 4)
}

// DateRange formats [from, to) as inclusive YYYY-MM-DD bounds.
func DateRange(from, to time.Time) (string, string) {
	return from.Format(DateLayout), to.AddDate(0, 0, -1).Format(DateLayout)
}
