// TagCore - Bilingual Content Tagging and Trend Ranking
// Copyright 2026 Minbar Media Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/minbar/tagcore

package database

import (
	"context"

	"github.com/minbar/tagcore/internal/models"
)

// UpsertContentItem stores the text-field snapshot from a change
// notification, replacing any previous snapshot for the item. The
// snapshot is what the batch reprocessor re-extracts from.
func (db *DB) UpsertContentItem(ctx context.Context, item *models.ContentItem) error {
	return db.withConflictRetry(ctx, "upsert content item", func() error {
		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO content_items (id, title, title_ar, summary, summary_ar, body, body_ar, status, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET
				title = excluded.title,
				title_ar = excluded.title_ar,
				summary = excluded.summary,
				summary_ar = excluded.summary_ar,
				body = excluded.body,
				body_ar = excluded.body_ar,
				status = excluded.status,
				updated_at = excluded.updated_at`,
			item.ID, item.Title, item.TitleAr, item.Summary, item.SummaryAr,
			item.Body, item.BodyAr, item.Status, db.now().UTC())
		return err
	})
}

// ListContent returns stored content snapshots, optionally narrowed to one
// item id or one lifecycle status. Ordered by id so batches are
// deterministic.
func (db *DB) ListContent(ctx context.Context, contentID, status string) ([]models.ContentItem, error) {
	query := `SELECT id, title, title_ar, summary, summary_ar, body, body_ar, status
		FROM content_items`
	var args []interface{}
	var clauses []string

	if contentID != "" {
		clauses = append(clauses, `id = ?`)
		args = append(args, contentID)
	}
	if status != "" {
		clauses = append(clauses, `status = ?`)
		args = append(args, status)
	}
	for i, clause := range clauses {
		if i == 0 {
			query += ` WHERE ` + clause
		} else {
			query += ` AND ` + clause
		}
	}
	query += ` ORDER BY id`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapUnavailable("list content", err)
	}
	defer rows.Close()

	var items []models.ContentItem
	for rows.Next() {
		var item models.ContentItem
		if err := rows.Scan(&item.ID, &item.Title, &item.TitleAr, &item.Summary,
			&item.SummaryAr, &item.Body, &item.BodyAr, &item.Status); err != nil {
			return nil, wrapUnavailable("scan content item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapUnavailable("iterate content items", err)
	}
	return items, nil
}
