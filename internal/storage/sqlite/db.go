// Package sqlite stores daily status snapshots and custom tags.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"statuslink/internal/domain"
)

// DefaultSource marks snapshots saved by hand rather than imported from links.
const DefaultSource = "manual-save"

var ErrNotFound = errors.New("not found")

func InitDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS daily_payloads (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		date              TEXT NOT NULL,
		app_name          TEXT NOT NULL,
		app_key           TEXT NOT NULL,
		name              TEXT NOT NULL,
		name_key          TEXT NOT NULL,
		kind              TEXT NOT NULL DEFAULT 'individual',
		source_identifier TEXT NOT NULL DEFAULT 'manual-save',
		payload           TEXT NOT NULL,
		created_at        DATETIME NOT NULL,
		UNIQUE(date, app_key, name_key, kind)
	);
	CREATE INDEX IF NOT EXISTS idx_daily_payloads_date ON daily_payloads(date);
	CREATE INDEX IF NOT EXISTS idx_daily_payloads_app ON daily_payloads(app_key, date);

	CREATE TABLE IF NOT EXISTS custom_tags (
		id          TEXT PRIMARY KEY,
		label       TEXT NOT NULL UNIQUE COLLATE NOCASE,
		color       TEXT NOT NULL,
		bg_color    TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func key(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// SaveDailyStatus stores one snapshot per application of p, replacing an
// earlier snapshot of the same person, application, date and kind. It returns
// the number of snapshots written.
func SaveDailyStatus(db *sql.DB, p domain.StatusPayload, kind, source string) (int, error) {
	if kind == "" {
		kind = domain.KindIndividual
	}
	if source == "" {
		source = DefaultSource
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO daily_payloads (date, app_name, app_key, name, name_key, kind, source_identifier, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(date, app_key, name_key, kind) DO UPDATE SET
		   app_name = excluded.app_name,
		   name = excluded.name,
		   source_identifier = excluded.source_identifier,
		   payload = excluded.payload,
		   created_at = excluded.created_at`,
	)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	saved := 0
	for _, app := range p.Apps {
		if strings.TrimSpace(app.App) == "" {
			continue
		}
		snap := p.Clone()
		snap.Version = domain.CurrentVersion
		snap.Apps = []domain.AppEntry{app}
		data, err := json.Marshal(snap)
		if err != nil {
			return saved, fmt.Errorf("marshal snapshot: %w", err)
		}
		if _, err := stmt.Exec(
			p.Date, strings.TrimSpace(app.App), key(app.App), strings.TrimSpace(p.Name), key(p.Name),
			kind, source, string(data), now,
		); err != nil {
			return saved, err
		}
		saved++
	}
	return saved, tx.Commit()
}

const snapshotColumns = `id, date, app_name, name, kind, source_identifier, payload, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (domain.DailySnapshot, error) {
	var (
		s   domain.DailySnapshot
		raw string
	)
	if err := row.Scan(&s.ID, &s.Date, &s.AppName, &s.Name, &s.Kind, &s.SourceIdentifier, &raw, &s.CreatedAt); err != nil {
		return s, err
	}
	if err := json.Unmarshal([]byte(raw), &s.Payload); err != nil {
		return s, fmt.Errorf("decode snapshot %d: %w", s.ID, err)
	}
	return s, nil
}

func querySnapshots(db *sql.DB, query string, args ...any) ([]domain.DailySnapshot, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DailySnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetLastStatus returns the newest individual snapshot of app dated strictly
// before beforeDate. An empty name matches anyone.
func GetLastStatus(db *sql.DB, name, app, beforeDate string) (domain.StatusPayload, bool, error) {
	row := db.QueryRow(
		`SELECT `+snapshotColumns+` FROM daily_payloads
		 WHERE app_key = ? AND date < ? AND kind = ? AND (? = '' OR name_key = ?)
		 ORDER BY date DESC, id DESC LIMIT 1`,
		key(app), beforeDate, domain.KindIndividual, key(name), key(name),
	)
	s, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StatusPayload{}, false, nil
	}
	if err != nil {
		return domain.StatusPayload{}, false, err
	}
	return s.Payload, true, nil
}

// GetStatusForDate returns the individual snapshot of app on date.
func GetStatusForDate(db *sql.DB, name, app, date string) (domain.StatusPayload, bool, error) {
	row := db.QueryRow(
		`SELECT `+snapshotColumns+` FROM daily_payloads
		 WHERE app_key = ? AND date = ? AND kind = ? AND (? = '' OR name_key = ?)
		 ORDER BY id DESC LIMIT 1`,
		key(app), date, domain.KindIndividual, key(name), key(name),
	)
	s, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StatusPayload{}, false, nil
	}
	if err != nil {
		return domain.StatusPayload{}, false, err
	}
	return s.Payload, true, nil
}

// GetLatestStatusDate returns the newest snapshot date, or "" when empty.
func GetLatestStatusDate(db *sql.DB) (string, error) {
	var date string
	err := db.QueryRow(`SELECT COALESCE(MAX(date), '') FROM daily_payloads`).Scan(&date)
	return date, err
}

func GetAppsForDate(db *sql.DB, date string) ([]domain.StatusPayload, error) {
	snaps, err := querySnapshots(db,
		`SELECT `+snapshotColumns+` FROM daily_payloads WHERE date = ? ORDER BY app_key, name_key, id`,
		date,
	)
	if err != nil {
		return nil, err
	}
	return Payloads(snaps), nil
}

// GetSnapshotsByDateRange returns individual snapshots dated from..to
// inclusive, oldest first. An empty name matches anyone.
func GetSnapshotsByDateRange(db *sql.DB, from, to, name string) ([]domain.DailySnapshot, error) {
	return querySnapshots(db,
		`SELECT `+snapshotColumns+` FROM daily_payloads
		 WHERE date >= ? AND date <= ? AND kind = ? AND (? = '' OR name_key = ?)
		 ORDER BY date, id`,
		from, to, domain.KindIndividual, key(name), key(name),
	)
}

type SnapshotFilter struct {
	Search string
	Kind   string
	Name   string
	From   string
	To     string
	Limit  int
	Offset int
}

// ListSnapshots returns snapshots matching f, newest first. Search matches the
// person, the application or the stored content, case-insensitively.
func ListSnapshots(db *sql.DB, f SnapshotFilter) ([]domain.DailySnapshot, error) {
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.Name != "" {
		where = append(where, "name_key = ?")
		args = append(args, key(f.Name))
	}
	if f.From != "" {
		where = append(where, "date >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		where = append(where, "date <= ?")
		args = append(args, f.To)
	}
	if s := key(f.Search); s != "" {
		like := "%" + s + "%"
		where = append(where, "(name_key LIKE ? OR app_key LIKE ? OR lower(payload) LIKE ?)")
		args = append(args, like, like, like)
	}

	query := `SELECT ` + snapshotColumns + ` FROM daily_payloads`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, created_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}
	return querySnapshots(db, query, args...)
}

func DeleteSnapshot(db *sql.DB, id int64) error {
	res, err := db.Exec(`DELETE FROM daily_payloads WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("snapshot %d: %w", id, ErrNotFound)
	}
	return nil
}

// Payloads extracts the stored payloads from snaps, keeping their order.
func Payloads(snaps []domain.DailySnapshot) []domain.StatusPayload {
	out := make([]domain.StatusPayload, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, s.Payload)
	}
	return out
}
