// Package nudge reminds team members by Slack DM to share their daily status
// link, skipping anyone whose status for the day is already saved.
package nudge

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"statuslink/internal/config"
	"statuslink/internal/domain"
	"statuslink/internal/history"
	"statuslink/internal/storage/sqlite"
)

// Messenger is the part of *slack.Client the nudges need.
type Messenger interface {
	GetUsers(options ...slack.GetUsersOption) ([]slack.User, error)
	OpenConversation(params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error)
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

type member struct {
	id    string
	names []string
}

func StartNudgeScheduler(cfg config.Config, db *sql.DB, api *slack.Client) {
	if len(cfg.TeamMembers) == 0 {
		log.Println("No team_members configured, nudge disabled")
		return
	}

	members, unresolved, err := resolveMembers(api, cfg.TeamMembers)
	if err != nil {
		log.Printf("Error resolving team_members: %v", err)
		if len(members) == 0 {
			return
		}
	}
	if len(unresolved) > 0 {
		log.Printf("Unresolved team_members: %s", strings.Join(unresolved, ", "))
	}

	days, err := config.ParseWeekdays(cfg.NudgeDays)
	if err != nil || len(days) == 0 {
		log.Printf("Invalid nudge_days %v, using weekdays", cfg.NudgeDays)
		days = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	}
	hour, min, err := config.ParseClock(cfg.NudgeTime)
	if err != nil {
		log.Printf("Invalid nudge_time '%s': %v, using 17:00", cfg.NudgeTime, err)
		hour, min = 17, 0
	}

	log.Printf("Nudge scheduled on %d day(s) at %02d:%02d for %d team members", len(days), hour, min, len(members))

	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	go func() {
		for {
			now := time.Now().In(loc)
			next := nextNudge(now, days, hour, min)
			wait := next.Sub(now)
			log.Printf("Next nudge at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

			time.Sleep(wait)
			sendNudges(api, db, cfg, members, time.Now().In(loc))
		}
	}()
}

// nextNudge returns the first time at hour:min on one of days strictly after now.
func nextNudge(now time.Time, days []time.Weekday, hour, min int) time.Time {
	for offset := 0; offset <= 7; offset++ {
		d := now.AddDate(0, 0, offset)
		target := time.Date(d.Year(), d.Month(), d.Day(), hour, min, 0, 0, now.Location())
		if !target.After(now) {
			continue
		}
		for _, wd := range days {
			if target.Weekday() == wd {
				return target
			}
		}
	}
	return now.Add(24 * time.Hour)
}

func sendNudges(api Messenger, db *sql.DB, cfg config.Config, members []member, now time.Time) int {
	today := now.Format(domain.DateLayout)
	saved := map[string]bool{}
	if db != nil {
		snaps, err := sqlite.ListSnapshots(db, sqlite.SnapshotFilter{Kind: domain.KindIndividual, From: today, To: today})
		if err != nil {
			log.Printf("Error loading today's snapshots: %v", err)
		}
		for _, n := range history.Names(snaps) {
			saved[strings.ToLower(n)] = true
		}
	}

	channelRef := ""
	if cfg.ReportChannelID != "" {
		channelRef = fmt.Sprintf(" or paste it in <#%s>", cfg.ReportChannelID)
	}
	msg := fmt.Sprintf(
		"Hey! Friendly reminder to share your status for today (%s). Save your link with `/status-save <link>`%s.\n"+
			"No link yet? `/status-link App: what you did` builds one.",
		now.Format("Mon Jan 2"), channelRef,
	)

	sent := 0
	for _, m := range members {
		if m.hasSaved(saved) {
			log.Printf("Skip nudge for %s: status already saved for %s", m.id, today)
			continue
		}
		channel, _, _, err := api.OpenConversation(&slack.OpenConversationParameters{
			Users: []string{m.id},
		})
		if err != nil {
			log.Printf("Error opening DM with %s: %v", m.id, err)
			continue
		}

		_, _, err = api.PostMessage(channel.ID, slack.MsgOptionText(msg, false))
		if err != nil {
			log.Printf("Error sending nudge to %s: %v", m.id, err)
			continue
		}
		log.Printf("Sent nudge to %s", m.id)
		sent++
	}
	return sent
}

func (m member) hasSaved(saved map[string]bool) bool {
	for _, n := range m.names {
		if saved[strings.ToLower(strings.TrimSpace(n))] {
			return true
		}
	}
	return false
}

// resolveMembers turns Slack IDs and user names into members carrying every
// name a saved status might use for them.
func resolveMembers(api Messenger, identifiers []string) ([]member, []string, error) {
	users, err := api.GetUsers()
	if err != nil {
		var ids []member
		var names []string
		for _, raw := range identifiers {
			if val := strings.TrimSpace(raw); isLikelySlackID(val) {
				ids = append(ids, member{id: val})
			} else if val != "" {
				names = append(names, val)
			}
		}
		return ids, names, err
	}

	byID := map[string]slack.User{}
	byName := map[string]slack.User{}
	for _, u := range users {
		byID[u.ID] = u
		for _, n := range []string{u.Name, u.RealName, u.Profile.DisplayName} {
			if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
				if _, exists := byName[n]; !exists {
					byName[n] = u
				}
			}
		}
	}

	var (
		out        []member
		unresolved []string
	)
	seen := map[string]bool{}
	for _, raw := range identifiers {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		u, ok := byID[val]
		if !ok {
			u, ok = byName[strings.ToLower(val)]
		}
		if !ok {
			if isLikelySlackID(val) {
				u = slack.User{ID: val}
			} else {
				unresolved = append(unresolved, val)
				continue
			}
		}
		if seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		out = append(out, member{id: u.ID, names: []string{u.Name, u.RealName, u.Profile.DisplayName}})
	}
	return out, unresolved, nil
}

func isLikelySlackID(val string) bool {
	if len(val) < 9 {
		return false
	}
	for i, r := range val {
		if i == 0 {
			if r != 'U' && r != 'W' {
				return false
			}
			continue
		}
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
