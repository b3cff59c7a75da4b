package nudge

import (
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/slack-go/slack"

	"statuslink/internal/config"
	"statuslink/internal/domain"
	"statuslink/internal/storage/sqlite"
)

type fakeMessenger struct {
	users    []slack.User
	usersErr error
	opened   []string
	posted   []string
	postErr  error
}

func (f *fakeMessenger) GetUsers(options ...slack.GetUsersOption) ([]slack.User, error) {
	return f.users, f.usersErr
}

func (f *fakeMessenger) OpenConversation(params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error) {
	f.opened = append(f.opened, params.Users...)
	ch := &slack.Channel{}
	ch.ID = "D-" + params.Users[0]
	return ch, false, false, nil
}

func (f *fakeMessenger) PostMessage(channelID string, options ...slack.MsgOption) (string, string, error) {
	f.posted = append(f.posted, channelID)
	return channelID, "1", f.postErr
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.InitDB(filepath.Join(t.TempDir(), "nudge-test.db"))
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func user(id, name, real, display string) slack.User {
	u := slack.User{ID: id, Name: name, RealName: real}
	u.Profile.DisplayName = display
	return u
}

func TestNextNudge(t *testing.T) {
	loc := time.UTC
	weekdays := []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"same day before target", time.Date(2026, 2, 20, 9, 0, 0, 0, loc), time.Date(2026, 2, 20, 17, 0, 0, 0, loc)},
		{"friday after target skips the weekend", time.Date(2026, 2, 20, 18, 0, 0, 0, loc), time.Date(2026, 2, 23, 17, 0, 0, 0, loc)},
		{"exactly at target moves on", time.Date(2026, 2, 18, 17, 0, 0, 0, loc), time.Date(2026, 2, 19, 17, 0, 0, 0, loc)},
		{"sunday", time.Date(2026, 2, 22, 12, 0, 0, 0, loc), time.Date(2026, 2, 23, 17, 0, 0, 0, loc)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := nextNudge(tc.now, weekdays, 17, 0); !got.Equal(tc.want) {
				t.Fatalf("nextNudge(%v) = %v, want %v", tc.now, got, tc.want)
			}
		})
	}

	// A single weekday a week away.
	now := time.Date(2026, 2, 20, 11, 0, 0, 0, loc)
	if got, want := nextNudge(now, []time.Weekday{time.Friday}, 10, 0), time.Date(2026, 2, 27, 10, 0, 0, 0, loc); !got.Equal(want) {
		t.Fatalf("nextNudge rollover = %v, want %v", got, want)
	}
}

func TestResolveMembers(t *testing.T) {
	api := &fakeMessenger{users: []slack.User{
		user("U01AAAAAAA", "ann", "Ann Lee", "Ann"),
		user("U01BBBBBBB", "bob", "Bob Stone", ""),
	}}
	members, unresolved, err := resolveMembers(api, []string{"Ann Lee", "U01BBBBBBB", "ann", "ghost", "U09ZZZZZZZ", " "})
	if err != nil {
		t.Fatalf("resolveMembers returned error: %v", err)
	}
	if len(members) != 3 || members[0].id != "U01AAAAAAA" || members[1].id != "U01BBBBBBB" || members[2].id != "U09ZZZZZZZ" {
		t.Fatalf("unexpected members: %+v", members)
	}
	if len(unresolved) != 1 || unresolved[0] != "ghost" {
		t.Fatalf("unexpected unresolved: %v", unresolved)
	}

	api = &fakeMessenger{usersErr: errors.New("rate limited")}
	members, unresolved, err = resolveMembers(api, []string{"U01AAAAAAA", "ann"})
	if err == nil || len(members) != 1 || len(unresolved) != 1 {
		t.Fatalf("unexpected fallback result: %+v %v %v", members, unresolved, err)
	}
}

func TestSendNudgesSkipsSavedStatuses(t *testing.T) {
	db := newTestDB(t)
	if _, err := sqlite.SaveDailyStatus(db, domain.StatusPayload{
		Name: "ann lee", Date: "2026-02-20", Apps: []domain.AppEntry{{App: "Billing", Content: "x"}},
	}, "", ""); err != nil {
		t.Fatalf("SaveDailyStatus failed: %v", err)
	}

	members := []member{
		{id: "U01AAAAAAA", names: []string{"ann", "Ann Lee", "Ann"}},
		{id: "U01BBBBBBB", names: []string{"bob", "Bob Stone", ""}},
	}
	api := &fakeMessenger{}
	now := time.Date(2026, 2, 20, 17, 0, 0, 0, time.UTC)
	sent := sendNudges(api, db, config.Config{ReportChannelID: "C1"}, members, now)

	if sent != 1 || len(api.opened) != 1 || api.opened[0] != "U01BBBBBBB" {
		t.Fatalf("expected only bob to be nudged, sent=%d opened=%v", sent, api.opened)
	}
	if len(api.posted) != 1 || !strings.HasPrefix(api.posted[0], "D-") {
		t.Fatalf("unexpected posts: %v", api.posted)
	}
}

func TestSendNudgesCountsOnlyDelivered(t *testing.T) {
	api := &fakeMessenger{postErr: errors.New("channel_not_found")}
	sent := sendNudges(api, nil, config.Config{}, []member{{id: "U01AAAAAAA"}}, time.Now())
	if sent != 0 || len(api.posted) != 1 {
		t.Fatalf("unexpected result sent=%d posted=%v", sent, api.posted)
	}
}

func TestIsLikelySlackID(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"U01AAAAAAA", true},
		{"W0123ABCD", true},
		{"u01aaaaaaa", false},
		{"U01", false},
		{"Ann Lee", false},
	}
	for _, tc := range tests {
		if got := isLikelySlackID(tc.in); got != tc.want {
			t.Fatalf("isLikelySlackID(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
