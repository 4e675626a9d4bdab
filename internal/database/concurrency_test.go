// TagCore - Bilingual Content Tagging and Trend Ranking
// Copyright 2026 Minbar Media Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/minbar/tagcore

package database

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

// Concurrent reconciles of distinct content items sharing one tag must
// land exactly one increment each: no lost updates, no duplicate pairs.
func TestConcurrentReconcileSharedTag(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			contentID := fmt.Sprintf("post-%d", n)
			if _, err := db.Reconcile(ctx, contentID, mentions("education")); err != nil {
				errs <- fmt.Errorf("reconcile %s: %w", contentID, err)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	if got := usageCount(t, db, "education"); got != workers {
		t.Errorf("usage after %d concurrent reconciles = %d, want %d", workers, got, workers)
	}

	var pairs int64
	err := db.conn.QueryRow(`SELECT count(*) FROM tag_associations`).Scan(&pairs)
	if err != nil {
		t.Fatal(err)
	}
	if pairs != workers {
		t.Errorf("association rows = %d, want %d", pairs, workers)
	}
}

// Racing reconciles of the same content item must converge to a single
// association and a counter of exactly 1.
func TestConcurrentReconcileSameContent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := db.Reconcile(ctx, "post-1", mentions("economy")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	if got := usageCount(t, db, "economy"); got != 1 {
		t.Errorf("usage after racing reconciles = %d, want 1", got)
	}

	tags, err := db.TagsForContent(ctx, "post-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 1 {
		t.Errorf("post-1 has %d tags, want 1", len(tags))
	}
}
