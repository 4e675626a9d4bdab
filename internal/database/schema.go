// TagCore - Bilingual Content Tagging and Trend Ranking
// Copyright 2026 Minbar Media Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/minbar/tagcore

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createSchema creates tables and indexes if they do not exist.
//
// The composite primary key on tag_associations is the uniqueness
// constraint that makes duplicate-creation races resolve to idempotent
// success: a second insert for the same (content, tag) pair conflicts
// instead of duplicating.
func (db *DB) createSchema() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		`CREATE TABLE IF NOT EXISTS tags (
			id UUID PRIMARY KEY,
			key TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL DEFAULT '',
			display_name_ar TEXT NOT NULL DEFAULT '',
			usage_count BIGINT NOT NULL DEFAULT 0,
			is_deleted BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS tag_associations (
			content_id TEXT NOT NULL,
			tag_id UUID NOT NULL,
			created_at TIMESTAMP NOT NULL,
			reinforced_at TIMESTAMP NOT NULL,
			PRIMARY KEY (content_id, tag_id)
		)`,

		// Trending scans filter by reinforced_at per tag.
		`CREATE INDEX IF NOT EXISTS idx_assoc_tag_reinforced
			ON tag_associations(tag_id, reinforced_at)`,

		// Reconcile reads the current set per content item.
		`CREATE INDEX IF NOT EXISTS idx_assoc_content
			ON tag_associations(content_id)`,

		// Popular ranking orders by usage.
		`CREATE INDEX IF NOT EXISTS idx_tags_usage
			ON tags(usage_count)`,

		// Snapshot of the text fields from the last change notification per
		// content item. Feeds the batch reprocessor.
		`CREATE TABLE IF NOT EXISTS content_items (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			title_ar TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			summary_ar TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			body_ar TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_content_status
			ON content_items(status)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}
