// TagCore - Bilingual Content Tagging and Trend Ranking
// Copyright 2026 Minbar Media Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/minbar/tagcore

package database

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/minbar/tagcore/internal/models"
)

// ListAssociations returns the associations for one tag, newest
// reinforcement first. A positive window filters to pairs reinforced within
// the trailing window; window <= 0 means all.
func (db *DB) ListAssociations(ctx context.Context, tagID uuid.UUID, window time.Duration) ([]models.Association, error) {
	query := `SELECT content_id, CAST(tag_id AS VARCHAR), created_at, reinforced_at
		FROM tag_associations WHERE tag_id = ?`
	args := []interface{}{tagID.String()}

	if window > 0 {
		query += ` AND reinforced_at >= ?`
		args = append(args, db.now().UTC().Add(-window))
	}
	query += ` ORDER BY reinforced_at DESC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapUnavailable("list associations", err)
	}
	defer rows.Close()

	return scanAssociations(rows)
}

// RecentAssociations returns every association reinforced within the
// trailing window whose tag is not soft-deleted. Raw input for the trending
// ranking.
func (db *DB) RecentAssociations(ctx context.Context, window time.Duration) ([]models.Association, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT a.content_id, CAST(a.tag_id AS VARCHAR), a.created_at, a.reinforced_at
		 FROM tag_associations a
		 JOIN tags t ON t.id = a.tag_id
		 WHERE NOT t.is_deleted AND a.reinforced_at >= ?`,
		db.now().UTC().Add(-window))
	if err != nil {
		return nil, wrapUnavailable("recent associations", err)
	}
	defer rows.Close()

	return scanAssociations(rows)
}

// TagsForContent returns the active tags associated with a content item,
// ordered by canonical key.
func (db *DB) TagsForContent(ctx context.Context, contentID string) ([]models.Tag, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+prefixedTagColumns("t")+`
		 FROM tag_associations a
		 JOIN tags t ON t.id = a.tag_id
		 WHERE a.content_id = ? AND NOT t.is_deleted
		 ORDER BY t.key`, contentID)
	if err != nil {
		return nil, wrapUnavailable("tags for content", err)
	}
	defer rows.Close()

	var tags []models.Tag
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, wrapUnavailable("scan content tag", err)
		}
		tags = append(tags, *tag)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapUnavailable("iterate content tags", err)
	}
	return tags, nil
}

// HasAssociations reports whether a content item has any stored
// associations. Backs the reprocessor's not-force short-circuit.
func (db *DB) HasAssociations(ctx context.Context, contentID string) (bool, error) {
	var count int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT count(*) FROM tag_associations WHERE content_id = ?`, contentID).Scan(&count)
	if err != nil {
		return false, wrapUnavailable("count associations", err)
	}
	return count > 0, nil
}

// prefixedTagColumns qualifies the tag select list with a table alias.
func prefixedTagColumns(alias string) string {
	return `CAST(` + alias + `.id AS VARCHAR), ` + alias + `.key, ` +
		alias + `.display_name, ` + alias + `.display_name_ar, ` +
		alias + `.usage_count, ` + alias + `.is_deleted, ` + alias + `.created_at`
}

// scanAssociations drains association rows.
func scanAssociations(rows interface {
	Next() bool
	Scan(...interface{}) error
	Err() error
}) ([]models.Association, error) {
	var associations []models.Association
	for rows.Next() {
		var a models.Association
		var id string
		if err := rows.Scan(&a.ContentID, &id, &a.CreatedAt, &a.ReinforcedAt); err != nil {
			return nil, wrapUnavailable("scan association row", err)
		}
		tagID, err := uuid.Parse(id)
		if err != nil {
			return nil, wrapUnavailable("parse association tag id", err)
		}
		a.TagID = tagID
		associations = append(associations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapUnavailable("iterate association rows", err)
	}
	return associations, nil
}
