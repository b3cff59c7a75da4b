package sqlite

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"statuslink/internal/domain"
	"statuslink/internal/tags"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nested", "statuslink-test.db")
	db, err := InitDB(dbPath)
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func status(name, date string, apps ...domain.AppEntry) domain.StatusPayload {
	return domain.StatusPayload{Version: domain.CurrentVersion, Name: name, Date: date, Apps: apps}
}

func TestSaveDailyStatusStoresOneSnapshotPerApp(t *testing.T) {
	db := newTestDB(t)
	p := status("Ann", "2024-03-04",
		domain.AppEntry{App: "Billing", Content: "<ul><li>a</li></ul>"},
		domain.AppEntry{App: "Search", Content: "<ul><li>b</li></ul>"},
		domain.AppEntry{App: "  ", Content: "ignored"},
	)
	n, err := SaveDailyStatus(db, p, "", "")
	if err != nil {
		t.Fatalf("SaveDailyStatus failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 snapshots, got %d", n)
	}

	got, ok, err := GetStatusForDate(db, "", "billing", "2024-03-04")
	if err != nil || !ok {
		t.Fatalf("GetStatusForDate ok=%v err=%v", ok, err)
	}
	if len(got.Apps) != 1 || got.Apps[0].App != "Billing" || got.Name != "Ann" {
		t.Fatalf("unexpected snapshot payload: %#v", got)
	}

	snaps, err := ListSnapshots(db, SnapshotFilter{})
	if err != nil {
		t.Fatalf("ListSnapshots failed: %v", err)
	}
	if len(snaps) != 2 || snaps[0].SourceIdentifier != DefaultSource || snaps[0].Kind != domain.KindIndividual {
		t.Fatalf("unexpected snapshots: %#v", snaps)
	}
	if snaps[0].CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be set")
	}
}

func TestSaveDailyStatusReplacesSameDay(t *testing.T) {
	db := newTestDB(t)
	if _, err := SaveDailyStatus(db, status("Ann", "2024-03-04", domain.AppEntry{App: "Billing", Content: "old"}), "", ""); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if _, err := SaveDailyStatus(db, status("ann", "2024-03-04", domain.AppEntry{App: "billing", Content: "new"}), "", "link"); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	snaps, err := ListSnapshots(db, SnapshotFilter{})
	if err != nil {
		t.Fatalf("ListSnapshots failed: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected the snapshot to be replaced, got %d rows", len(snaps))
	}
	if snaps[0].Payload.Apps[0].Content != "new" || snaps[0].SourceIdentifier != "link" {
		t.Fatalf("unexpected snapshot: %#v", snaps[0])
	}

	if _, err := SaveDailyStatus(db, status("Ann", "2024-03-04", domain.AppEntry{App: "Billing", Content: "team"}), domain.KindTeam, ""); err != nil {
		t.Fatalf("team save failed: %v", err)
	}
	snaps, _ = ListSnapshots(db, SnapshotFilter{})
	if len(snaps) != 2 {
		t.Fatalf("team snapshot should not replace the individual one, got %d rows", len(snaps))
	}
}

func TestLastStatusAndLatestDate(t *testing.T) {
	db := newTestDB(t)

	date, err := GetLatestStatusDate(db)
	if err != nil || date != "" {
		t.Fatalf("expected empty latest date, got %q err=%v", date, err)
	}

	for _, p := range []domain.StatusPayload{
		status("Ann", "2024-03-01", domain.AppEntry{App: "Billing", Content: "mon"}),
		status("Ann", "2024-03-03", domain.AppEntry{App: "Billing", Content: "wed"}),
		status("Bob", "2024-03-04", domain.AppEntry{App: "Billing", Content: "bob"}),
		status("Ann", "2024-03-05", domain.AppEntry{App: "Billing", Content: "fri"}),
	} {
		if _, err := SaveDailyStatus(db, p, "", ""); err != nil {
			t.Fatalf("SaveDailyStatus failed: %v", err)
		}
	}

	got, ok, err := GetLastStatus(db, "ann", "Billing", "2024-03-05")
	if err != nil || !ok || got.Apps[0].Content != "wed" {
		t.Fatalf("GetLastStatus(ann) = %#v ok=%v err=%v", got, ok, err)
	}
	got, ok, err = GetLastStatus(db, "", "Billing", "2024-03-05")
	if err != nil || !ok || got.Apps[0].Content != "bob" {
		t.Fatalf("GetLastStatus(any) = %#v ok=%v err=%v", got, ok, err)
	}
	if _, ok, err := GetLastStatus(db, "", "Billing", "2024-03-01"); err != nil || ok {
		t.Fatalf("expected nothing before the first day, ok=%v err=%v", ok, err)
	}

	date, err = GetLatestStatusDate(db)
	if err != nil || date != "2024-03-05" {
		t.Fatalf("GetLatestStatusDate() = %q err=%v", date, err)
	}

	apps, err := GetAppsForDate(db, "2024-03-04")
	if err != nil || len(apps) != 1 || apps[0].Name != "Bob" {
		t.Fatalf("GetAppsForDate() = %#v err=%v", apps, err)
	}

	week, err := GetSnapshotsByDateRange(db, "2024-03-03", "2024-03-05", "Ann")
	if err != nil {
		t.Fatalf("GetSnapshotsByDateRange failed: %v", err)
	}
	if len(week) != 2 || week[0].Date != "2024-03-03" || week[1].Date != "2024-03-05" {
		t.Fatalf("unexpected range result: %#v", week)
	}
}

func TestListSnapshotsFiltersAndDelete(t *testing.T) {
	db := newTestDB(t)
	if _, err := SaveDailyStatus(db, status("Ann", "2024-03-01", domain.AppEntry{App: "Billing", Content: "invoice export"}), "", ""); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := SaveDailyStatus(db, status("Bob", "2024-03-02", domain.AppEntry{App: "Search", Content: "reindex"}), "", ""); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := SaveDailyStatus(db, status("Team", "2024-03-02", domain.AppEntry{App: "Search", Content: "merged"}), domain.KindTeam, ""); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	tests := []struct {
		name   string
		filter SnapshotFilter
		want   int
	}{
		{"all", SnapshotFilter{}, 3},
		{"search content", SnapshotFilter{Search: "INVOICE"}, 1},
		{"search app", SnapshotFilter{Search: "search"}, 2},
		{"kind", SnapshotFilter{Kind: domain.KindTeam}, 1},
		{"person", SnapshotFilter{Name: "bob"}, 1},
		{"range", SnapshotFilter{From: "2024-03-02", To: "2024-03-02"}, 2},
		{"paging", SnapshotFilter{Limit: 1, Offset: 1}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ListSnapshots(db, tc.filter)
			if err != nil {
				t.Fatalf("ListSnapshots failed: %v", err)
			}
			if len(got) != tc.want {
				t.Fatalf("expected %d snapshots, got %d", tc.want, len(got))
			}
		})
	}

	all, _ := ListSnapshots(db, SnapshotFilter{})
	if all[len(all)-1].Date != "2024-03-01" {
		t.Fatalf("expected newest first, got %#v", all)
	}
	if err := DeleteSnapshot(db, all[0].ID); err != nil {
		t.Fatalf("DeleteSnapshot failed: %v", err)
	}
	if err := DeleteSnapshot(db, all[0].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTagStoreBacksRegistry(t *testing.T) {
	db := newTestDB(t)
	r := tags.NewRegistry(TagStore{DB: db})

	added, err := r.Add("spike", "#123456")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	loaded, err := LoadCustomTags(db)
	if err != nil {
		t.Fatalf("LoadCustomTags failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0] != added {
		t.Fatalf("stored tag differs: %#v vs %#v", loaded, added)
	}
	if _, err := r.Add("SPIKE", ""); !errors.Is(err, tags.ErrLabelTaken) {
		t.Fatalf("expected ErrLabelTaken, got %v", err)
	}
	if err := r.Remove(added.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := DeleteCustomTag(db, added.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := r.Remove(added.ID); !errors.Is(err, tags.ErrNotFound) {
		t.Fatalf("expected tags.ErrNotFound from the store adapter, got %v", err)
	}
}
