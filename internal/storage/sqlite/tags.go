package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"statuslink/internal/domain"
	"statuslink/internal/tags"
)

func LoadCustomTags(db *sql.DB) ([]domain.TagDef, error) {
	rows, err := db.Query(`SELECT id, label, color, bg_color, description FROM custom_tags ORDER BY created_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TagDef
	for rows.Next() {
		t := domain.TagDef{IsCustom: true}
		if err := rows.Scan(&t.ID, &t.Label, &t.Color, &t.BgColor, &t.Description); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func InsertCustomTag(db *sql.DB, t domain.TagDef) error {
	_, err := db.Exec(
		`INSERT INTO custom_tags (id, label, color, bg_color, description) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Label, t.Color, t.BgColor, t.Description,
	)
	return err
}

func DeleteCustomTag(db *sql.DB, id string) error {
	res, err := db.Exec(`DELETE FROM custom_tags WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("custom tag %s: %w", id, ErrNotFound)
	}
	return nil
}

// TagStore adapts the custom tag table to tags.CustomTagStore.
type TagStore struct {
	DB *sql.DB
}

func (s TagStore) LoadCustomTags() ([]domain.TagDef, error) { return LoadCustomTags(s.DB) }

func (s TagStore) InsertCustomTag(t domain.TagDef) error { return InsertCustomTag(s.DB, t) }

func (s TagStore) DeleteCustomTag(id string) error {
	err := DeleteCustomTag(s.DB, id)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s", tags.ErrNotFound, id)
	}
	return err
}
