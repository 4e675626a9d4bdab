// TagCore - Bilingual Content Tagging and Trend Ranking
// Copyright 2026 Minbar Media Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/minbar/tagcore

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/minbar/tagcore/internal/models"
	"github.com/minbar/tagcore/internal/normalize"
)

// tagColumns is the shared select list for scanning tag rows.
const tagColumns = `CAST(id AS VARCHAR), key, display_name, display_name_ar,
	usage_count, is_deleted, created_at`

// scanTag scans one tag row.
func scanTag(row interface{ Scan(...interface{}) error }) (*models.Tag, error) {
	var tag models.Tag
	var id string
	if err := row.Scan(&id, &tag.Key, &tag.DisplayName, &tag.DisplayNameAr,
		&tag.UsageCount, &tag.IsDeleted, &tag.CreatedAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("malformed tag id %q: %w", id, err)
	}
	tag.ID = parsed
	return &tag, nil
}

// GetTagByKey looks a tag up by its canonical key. Missing and soft-deleted
// tags both yield (nil, nil): an explicit absent result, not an error.
func (db *DB) GetTagByKey(ctx context.Context, key string) (*models.Tag, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE key = ? AND NOT is_deleted`, key)

	tag, err := scanTag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tag %q: %v: %w", key, err, ErrUnavailable)
	}
	return tag, nil
}

// ActiveTags returns all non-deleted tags with at least one active
// association. Raw input for the popular ranking.
func (db *DB) ActiveTags(ctx context.Context) ([]models.Tag, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE NOT is_deleted AND usage_count > 0`)
	if err != nil {
		return nil, fmt.Errorf("list active tags: %v: %w", err, ErrUnavailable)
	}
	defer rows.Close()

	var tags []models.Tag
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan active tag: %v: %w", err, ErrUnavailable)
		}
		tags = append(tags, *tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active tags: %v: %w", err, ErrUnavailable)
	}
	return tags, nil
}

// TagsByIDs returns the non-deleted tags among ids, keyed by id.
func (db *DB) TagsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Tag, error) {
	result := make(map[uuid.UUID]models.Tag, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+tagColumns+` FROM tags
		 WHERE NOT is_deleted AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("tags by ids: %v: %w", err, ErrUnavailable)
	}
	defer rows.Close()

	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tag: %v: %w", err, ErrUnavailable)
		}
		result[tag.ID] = *tag
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %v: %w", err, ErrUnavailable)
	}
	return result, nil
}

// SoftDeleteTag marks a tag deleted through an explicit administrative
// action. The engine itself never calls this: a tag dropping to zero usage
// stays addressable. Returns false when no such tag exists.
func (db *DB) SoftDeleteTag(ctx context.Context, key string) (bool, error) {
	var found bool
	err := db.withConflictRetry(ctx, "soft delete tag", func() error {
		res, err := db.conn.ExecContext(ctx,
			`UPDATE tags SET is_deleted = true WHERE key = ? AND NOT is_deleted`, key)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		found = affected > 0
		return nil
	})
	return found, err
}

// ensureTag returns the id of the tag with the given key, creating the tag
// on first reference. A concurrent create for the same key resolves via the
// uniqueness constraint and a re-read.
//
// The display form fills whichever locale slot matches its script, but only
// if that slot is still empty: the first surface spelling seen wins.
func (db *DB) ensureTag(ctx context.Context, mention models.TagMention) (uuid.UUID, error) {
	var tagID uuid.UUID

	err := db.withConflictRetry(ctx, "ensure tag", func() error {
		row := db.conn.QueryRowContext(ctx,
			`SELECT CAST(id AS VARCHAR) FROM tags WHERE key = ?`, mention.Key)
		var id string
		err := row.Scan(&id)
		if err == nil {
			tagID, err = uuid.Parse(id)
			if err != nil {
				return err
			}
			return db.fillDisplayName(ctx, mention)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		newID := uuid.New()
		displayEn, displayAr := splitDisplay(mention.Display)
		_, err = db.conn.ExecContext(ctx,
			`INSERT INTO tags (id, key, display_name, display_name_ar, usage_count, is_deleted, created_at)
			 VALUES (?, ?, ?, ?, 0, false, ?)
			 ON CONFLICT (key) DO NOTHING`,
			newID.String(), mention.Key, displayEn, displayAr, db.now().UTC())
		if err != nil && !isDuplicateKey(err) {
			return err
		}

		// Re-read: either our insert landed or a concurrent one did.
		row = db.conn.QueryRowContext(ctx,
			`SELECT CAST(id AS VARCHAR) FROM tags WHERE key = ?`, mention.Key)
		if err := row.Scan(&id); err != nil {
			return err
		}
		tagID, err = uuid.Parse(id)
		return err
	})

	return tagID, err
}

// fillDisplayName backfills the locale slot matching the display's script
// when that slot is still empty.
func (db *DB) fillDisplayName(ctx context.Context, mention models.TagMention) error {
	displayEn, displayAr := splitDisplay(mention.Display)
	if displayAr != "" {
		_, err := db.conn.ExecContext(ctx,
			`UPDATE tags SET display_name_ar = ? WHERE key = ? AND display_name_ar = ''`,
			displayAr, mention.Key)
		return err
	}
	_, err := db.conn.ExecContext(ctx,
		`UPDATE tags SET display_name = ? WHERE key = ? AND display_name = ''`,
		displayEn, mention.Key)
	return err
}

// splitDisplay routes a display form to its locale slot by script.
func splitDisplay(display string) (en, ar string) {
	if normalize.ContainsArabic(display) {
		return "", display
	}
	return display, ""
}
