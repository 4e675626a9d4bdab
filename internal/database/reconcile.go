// TagCore - Bilingual Content Tagging and Trend Ranking
// Copyright 2026 Minbar Media Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/minbar/tagcore

package database

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/minbar/tagcore/internal/logging"
	"github.com/minbar/tagcore/internal/metrics"
	"github.com/minbar/tagcore/internal/models"
)

// ReconcileResult reports the delta one reconcile applied, by canonical key.
type ReconcileResult struct {
	Added    []string
	Removed  []string
	Retained []string
}

// Writes reports how many association rows the reconcile touched or would
// touch. Retained rows only get a timestamp bump and do not count.
func (r *ReconcileResult) Writes() int {
	return len(r.Added) + len(r.Removed)
}

// Reconcile drives the stored association set for a content item to match
// the freshly extracted mention set. It is the single write entry point:
// first extraction and reprocessor re-runs both go through it, which is
// what makes repeated reprocessing idempotent - reconciling twice with no
// content change produces zero writes the second time.
//
// Missing associations are created, stale ones deleted, retained ones get
// their reinforced_at bumped. Usage counters move in the same transaction
// as the association row they count, so a failure mid-write leaves no
// counted-but-absent or present-but-uncounted pair behind. A
// duplicate-creation race with a concurrent reconcile resolves to
// idempotent success.
func (db *DB) Reconcile(ctx context.Context, contentID string, mentions []models.TagMention) (*ReconcileResult, error) {
	start := time.Now()
	defer func() {
		metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	}()

	current, err := db.associationKeys(ctx, contentID)
	if err != nil {
		return nil, err
	}

	desired := make(map[string]models.TagMention, len(mentions))
	for _, m := range mentions {
		desired[m.Key] = m
	}

	result := &ReconcileResult{}
	now := db.now().UTC()

	for key, mention := range desired {
		if _, ok := current[key]; ok {
			if err := db.reinforceAssociation(ctx, contentID, current[key], now); err != nil {
				return nil, err
			}
			metrics.ReconcileWrites.WithLabelValues("reinforced").Inc()
			result.Retained = append(result.Retained, key)
			continue
		}

		tagID, err := db.ensureTag(ctx, mention)
		if err != nil {
			return nil, err
		}
		created, err := db.createAssociation(ctx, contentID, key, tagID, now)
		if err != nil {
			return nil, err
		}
		if created {
			metrics.ReconcileWrites.WithLabelValues("created").Inc()
			result.Added = append(result.Added, key)
		} else {
			// Lost a duplicate-creation race: the association already
			// exists, the winner incremented the counter. Success.
			metrics.ReconcileWrites.WithLabelValues("reinforced").Inc()
			result.Retained = append(result.Retained, key)
		}
	}

	for key, tagID := range current {
		if _, ok := desired[key]; ok {
			continue
		}
		deleted, err := db.deleteAssociation(ctx, contentID, key, tagID)
		if err != nil {
			return nil, err
		}
		if deleted {
			metrics.ReconcileWrites.WithLabelValues("deleted").Inc()
			result.Removed = append(result.Removed, key)
		}
	}

	sort.Strings(result.Added)
	sort.Strings(result.Removed)
	sort.Strings(result.Retained)

	if result.Writes() > 0 {
		logger := logging.Ctx(ctx)
		logger.Debug().
			Str("content_id", contentID).
			Strs("added", result.Added).
			Strs("removed", result.Removed).
			Msg("associations reconciled")
	}

	return result, nil
}

// DiffAssociations computes the delta Reconcile would apply, without
// writing. Backs the reprocessor's dry-run mode.
func (db *DB) DiffAssociations(ctx context.Context, contentID string, mentions []models.TagMention) (*ReconcileResult, error) {
	current, err := db.associationKeys(ctx, contentID)
	if err != nil {
		return nil, err
	}

	desired := make(map[string]struct{}, len(mentions))
	for _, m := range mentions {
		desired[m.Key] = struct{}{}
	}

	result := &ReconcileResult{}
	for key := range desired {
		if _, ok := current[key]; ok {
			result.Retained = append(result.Retained, key)
		} else {
			result.Added = append(result.Added, key)
		}
	}
	for key := range current {
		if _, ok := desired[key]; !ok {
			result.Removed = append(result.Removed, key)
		}
	}

	sort.Strings(result.Added)
	sort.Strings(result.Removed)
	sort.Strings(result.Retained)
	return result, nil
}

// associationKeys returns the canonical keys currently associated with a
// content item, mapped to their tag ids. Soft-deleted tags are included so
// their stale associations still reconcile away.
func (db *DB) associationKeys(ctx context.Context, contentID string) (map[string]uuid.UUID, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT t.key, CAST(t.id AS VARCHAR)
		 FROM tag_associations a
		 JOIN tags t ON t.id = a.tag_id
		 WHERE a.content_id = ?`, contentID)
	if err != nil {
		return nil, wrapUnavailable("read associations", err)
	}
	defer rows.Close()

	current := make(map[string]uuid.UUID)
	for rows.Next() {
		var key, id string
		if err := rows.Scan(&key, &id); err != nil {
			return nil, wrapUnavailable("scan association", err)
		}
		tagID, err := uuid.Parse(id)
		if err != nil {
			return nil, wrapUnavailable("parse tag id", err)
		}
		current[key] = tagID
	}
	if err := rows.Err(); err != nil {
		return nil, wrapUnavailable("iterate associations", err)
	}
	return current, nil
}

// createAssociation inserts the (content, tag) pair and increments the
// tag's usage counter in a single transaction, reporting whether a new row
// landed. A conflicting concurrent insert reports false. Row and counter
// commit together or not at all: after a failure between the two writes,
// a retry still sees the pair as absent and applies both.
func (db *DB) createAssociation(ctx context.Context, contentID, key string, tagID uuid.UUID, now time.Time) (bool, error) {
	mu := db.acquireTagLock(key)
	defer mu.Unlock()

	var created bool
	err := db.withConflictRetry(ctx, "create association", func() error {
		created = false
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx,
			`INSERT INTO tag_associations (content_id, tag_id, created_at, reinforced_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (content_id, tag_id) DO NOTHING`,
			contentID, tagID.String(), now, now)
		if err != nil {
			if isDuplicateKey(err) {
				return nil
			}
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}

		if db.beforeCounterUpdate != nil {
			db.beforeCounterUpdate()
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE tags SET usage_count = usage_count + 1 WHERE id = ?`,
			tagID.String()); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

// reinforceAssociation bumps reinforced_at on a retained pair.
func (db *DB) reinforceAssociation(ctx context.Context, contentID string, tagID uuid.UUID, now time.Time) error {
	return db.withConflictRetry(ctx, "reinforce association", func() error {
		_, err := db.conn.ExecContext(ctx,
			`UPDATE tag_associations SET reinforced_at = ?
			 WHERE content_id = ? AND tag_id = ?`,
			now, contentID, tagID.String())
		return err
	})
}

// deleteAssociation removes the pair and decrements the tag's usage
// counter in a single transaction, reporting whether a row was deleted.
func (db *DB) deleteAssociation(ctx context.Context, contentID, key string, tagID uuid.UUID) (bool, error) {
	mu := db.acquireTagLock(key)
	defer mu.Unlock()

	var deleted bool
	err := db.withConflictRetry(ctx, "delete association", func() error {
		deleted = false
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx,
			`DELETE FROM tag_associations WHERE content_id = ? AND tag_id = ?`,
			contentID, tagID.String())
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}

		if db.beforeCounterUpdate != nil {
			db.beforeCounterUpdate()
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE tags SET usage_count = usage_count - 1 WHERE id = ?`,
			tagID.String()); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}
