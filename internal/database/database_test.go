// TagCore - Bilingual Content Tagging and Trend Ranking
// Copyright 2026 Minbar Media Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/minbar/tagcore

package database

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/minbar/tagcore/internal/config"
	"github.com/minbar/tagcore/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "500MB",
	}
	db, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})
	return db
}

func mentions(keys ...string) []models.TagMention {
	ms := make([]models.TagMention, len(keys))
	for i, k := range keys {
		ms[i] = models.TagMention{Key: k, Display: k}
	}
	return ms
}

func usageCount(t *testing.T, db *DB, key string) int64 {
	t.Helper()
	tag, err := db.GetTagByKey(context.Background(), key)
	if err != nil {
		t.Fatalf("GetTagByKey(%q) failed: %v", key, err)
	}
	if tag == nil {
		t.Fatalf("tag %q not found", key)
	}
	return tag.UsageCount
}

func TestReconcileCreatesTagsAndAssociations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	result, err := db.Reconcile(ctx, "post-1", mentions("education", "economy"))
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if want := []string{"economy", "education"}; !reflect.DeepEqual(result.Added, want) {
		t.Errorf("Added = %v, want %v", result.Added, want)
	}
	if len(result.Removed) != 0 || len(result.Retained) != 0 {
		t.Errorf("fresh reconcile should only add, got %+v", result)
	}

	if got := usageCount(t, db, "education"); got != 1 {
		t.Errorf("education usage = %d, want 1", got)
	}

	tags, err := db.TagsForContent(ctx, "post-1")
	if err != nil {
		t.Fatalf("TagsForContent failed: %v", err)
	}
	if len(tags) != 2 {
		t.Fatalf("expected 2 tags for post-1, got %d", len(tags))
	}
	if tags[0].Key != "economy" || tags[1].Key != "education" {
		t.Errorf("tags not ordered by key: %v, %v", tags[0].Key, tags[1].Key)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.Reconcile(ctx, "post-1", mentions("education")); err != nil {
		t.Fatalf("first reconcile failed: %v", err)
	}

	// Same set again: zero writes, the pair is only reinforced.
	result, err := db.Reconcile(ctx, "post-1", mentions("education"))
	if err != nil {
		t.Fatalf("second reconcile failed: %v", err)
	}
	if result.Writes() != 0 {
		t.Errorf("unchanged reconcile produced %d writes, want 0", result.Writes())
	}
	if !reflect.DeepEqual(result.Retained, []string{"education"}) {
		t.Errorf("Retained = %v, want [education]", result.Retained)
	}
	if got := usageCount(t, db, "education"); got != 1 {
		t.Errorf("usage after re-reconcile = %d, want 1", got)
	}
}

func TestReconcileRemovesStaleAssociation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.Reconcile(ctx, "post-1", mentions("education", "economy")); err != nil {
		t.Fatal(err)
	}

	// Content edited to drop its only mention of economy.
	result, err := db.Reconcile(ctx, "post-1", mentions("education"))
	if err != nil {
		t.Fatalf("reconcile after edit failed: %v", err)
	}
	if !reflect.DeepEqual(result.Removed, []string{"economy"}) {
		t.Errorf("Removed = %v, want [economy]", result.Removed)
	}

	// Counter drops by exactly 1; the zero-usage tag remains addressable.
	tag, err := db.GetTagByKey(ctx, "economy")
	if err != nil {
		t.Fatal(err)
	}
	if tag == nil {
		t.Fatal("zero-usage tag should remain addressable")
	}
	if tag.UsageCount != 0 {
		t.Errorf("economy usage = %d, want 0", tag.UsageCount)
	}

	tags, err := db.TagsForContent(ctx, "post-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 1 || tags[0].Key != "education" {
		t.Errorf("post-1 tags = %v, want [education]", tags)
	}
}

func TestReconcileAgainstEmptySetDeletesAll(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.Reconcile(ctx, "post-1", mentions("education", "economy")); err != nil {
		t.Fatal(err)
	}

	// Content item deleted: reconcile against the empty set.
	result, err := db.Reconcile(ctx, "post-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Removed) != 2 {
		t.Errorf("Removed = %v, want both tags", result.Removed)
	}
	if got := usageCount(t, db, "education"); got != 0 {
		t.Errorf("education usage = %d, want 0", got)
	}
}

func TestSharedTagCountsAcrossContent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"post-1", "post-2", "post-3"} {
		if _, err := db.Reconcile(ctx, id, mentions("education")); err != nil {
			t.Fatalf("reconcile %s failed: %v", id, err)
		}
	}

	if got := usageCount(t, db, "education"); got != 3 {
		t.Errorf("shared tag usage = %d, want 3", got)
	}

	// Removing one item's mention only drops one.
	if _, err := db.Reconcile(ctx, "post-2", nil); err != nil {
		t.Fatal(err)
	}
	if got := usageCount(t, db, "education"); got != 2 {
		t.Errorf("usage after one removal = %d, want 2", got)
	}
}

func TestGetTagByKeyAbsent(t *testing.T) {
	db := setupTestDB(t)

	tag, err := db.GetTagByKey(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("absent tag should not be an error, got %v", err)
	}
	if tag != nil {
		t.Errorf("expected nil for absent tag, got %+v", tag)
	}
}

func TestSoftDeleteTag(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.Reconcile(ctx, "post-1", mentions("education")); err != nil {
		t.Fatal(err)
	}

	found, err := db.SoftDeleteTag(ctx, "education")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Error("SoftDeleteTag should report the tag as found")
	}

	// Soft-deleted tags read as absent.
	tag, err := db.GetTagByKey(ctx, "education")
	if err != nil {
		t.Fatal(err)
	}
	if tag != nil {
		t.Errorf("soft-deleted tag should be absent, got %+v", tag)
	}

	// And drop out of content listings.
	tags, err := db.TagsForContent(ctx, "post-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 0 {
		t.Errorf("soft-deleted tag should not list for content, got %v", tags)
	}

	found, err = db.SoftDeleteTag(ctx, "missing")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("SoftDeleteTag on missing tag should report not found")
	}
}

func TestListAssociationsWindow(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// Three items reinforce the tag at day 0, 3 and 10.
	for i, offset := range []time.Duration{0, 3 * 24 * time.Hour, 10 * 24 * time.Hour} {
		db.SetClock(func() time.Time { return base.Add(offset) })
		if _, err := db.Reconcile(ctx, "post-"+string(rune('a'+i)), mentions("education")); err != nil {
			t.Fatal(err)
		}
	}

	tag, err := db.GetTagByKey(ctx, "education")
	if err != nil || tag == nil {
		t.Fatalf("GetTagByKey failed: %v", err)
	}

	// Now = day 10; a 7-day window keeps the day-3 and day-10 reinforcements.
	db.SetClock(func() time.Time { return base.Add(10 * 24 * time.Hour) })
	windowed, err := db.ListAssociations(ctx, tag.ID, 7*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(windowed) != 2 {
		t.Errorf("windowed associations = %d, want 2", len(windowed))
	}

	all, err := db.ListAssociations(ctx, tag.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("unbounded associations = %d, want 3", len(all))
	}

	// Newest reinforcement first.
	if len(all) > 1 && all[0].ReinforcedAt.Before(all[1].ReinforcedAt) {
		t.Error("associations not ordered newest first")
	}
}

func TestDiffAssociationsDoesNotWrite(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.Reconcile(ctx, "post-1", mentions("education")); err != nil {
		t.Fatal(err)
	}

	diff, err := db.DiffAssociations(ctx, "post-1", mentions("economy"))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(diff.Added, []string{"economy"}) {
		t.Errorf("diff Added = %v, want [economy]", diff.Added)
	}
	if !reflect.DeepEqual(diff.Removed, []string{"education"}) {
		t.Errorf("diff Removed = %v, want [education]", diff.Removed)
	}

	// Nothing changed on disk.
	tags, err := db.TagsForContent(ctx, "post-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 1 || tags[0].Key != "education" {
		t.Errorf("dry diff must not write, post-1 tags = %v", tags)
	}
	if tag, _ := db.GetTagByKey(ctx, "economy"); tag != nil {
		t.Error("dry diff must not create tags")
	}
}

func TestDisplayNameLocaleSlots(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// Arabic surface form lands in the Arabic slot.
	if _, err := db.Reconcile(ctx, "post-1", []models.TagMention{
		{Key: "التعليم", Display: "التَعليم"},
	}); err != nil {
		t.Fatal(err)
	}

	tag, err := db.GetTagByKey(ctx, "التعليم")
	if err != nil || tag == nil {
		t.Fatalf("GetTagByKey failed: %v", err)
	}
	if tag.DisplayNameAr != "التَعليم" {
		t.Errorf("DisplayNameAr = %q, want the vocalized surface form", tag.DisplayNameAr)
	}
	if tag.DisplayName != "" {
		t.Errorf("Latin slot should stay empty, got %q", tag.DisplayName)
	}

	// Latin surface form for the same key fills the other slot, first seen wins.
	if _, err := db.Reconcile(ctx, "post-2", []models.TagMention{
		{Key: "education", Display: "Education"},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Reconcile(ctx, "post-3", []models.TagMention{
		{Key: "education", Display: "EDUCATION"},
	}); err != nil {
		t.Fatal(err)
	}

	tag, err = db.GetTagByKey(ctx, "education")
	if err != nil || tag == nil {
		t.Fatalf("GetTagByKey failed: %v", err)
	}
	if tag.DisplayName != "Education" {
		t.Errorf("DisplayName = %q, want first-seen form Education", tag.DisplayName)
	}
}

func TestContentSnapshotRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	item := models.ContentItem{
		ID:      "post-1",
		Title:   "Budget season",
		TitleAr: "موسم الميزانية",
		Body:    "On the #economy.",
		Status:  models.StatusPublished,
	}
	if err := db.UpsertContentItem(ctx, &item); err != nil {
		t.Fatalf("UpsertContentItem failed: %v", err)
	}

	// Re-notification replaces the snapshot.
	item.Body = "Now about #education."
	item.Status = models.StatusArchived
	if err := db.UpsertContentItem(ctx, &item); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	items, err := db.ListContent(ctx, "post-1", "")
	if err != nil {
		t.Fatalf("ListContent failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d snapshots, want 1", len(items))
	}
	if items[0].Body != "Now about #education." || items[0].Status != models.StatusArchived {
		t.Errorf("snapshot not replaced: %+v", items[0])
	}
	if items[0].TitleAr != "موسم الميزانية" {
		t.Errorf("TitleAr = %q, lost in round trip", items[0].TitleAr)
	}
}

func TestListContentFilters(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, item := range []models.ContentItem{
		{ID: "post-1", Status: models.StatusPublished},
		{ID: "post-2", Status: models.StatusDraft},
		{ID: "post-3", Status: models.StatusPublished},
	} {
		if err := db.UpsertContentItem(ctx, &item); err != nil {
			t.Fatal(err)
		}
	}

	published, err := db.ListContent(ctx, "", models.StatusPublished)
	if err != nil {
		t.Fatal(err)
	}
	if len(published) != 2 {
		t.Errorf("published snapshots = %d, want 2", len(published))
	}
	if published[0].ID != "post-1" || published[1].ID != "post-3" {
		t.Errorf("snapshots not ordered by id: %v", published)
	}

	one, err := db.ListContent(ctx, "post-2", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(one) != 1 || one[0].ID != "post-2" {
		t.Errorf("id filter returned %v", one)
	}
}

func TestHasAssociations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	has, err := db.HasAssociations(ctx, "post-1")
	if err != nil {
		t.Fatal(err)
	}
	if has {
		t.Error("fresh content should have no associations")
	}

	if _, err := db.Reconcile(ctx, "post-1", mentions("education")); err != nil {
		t.Fatal(err)
	}

	has, err = db.HasAssociations(ctx, "post-1")
	if err != nil {
		t.Fatal(err)
	}
	if !has {
		t.Error("expected associations after reconcile")
	}
}

// A failure between the association insert and the counter increment must
// roll both back, so the retried reconcile applies row and counter together.
func TestReconcileRetryAfterFailedCounterWrite(t *testing.T) {
	db := setupTestDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	db.beforeCounterUpdate = cancel
	if _, err := db.Reconcile(ctx, "post-1", mentions("education")); err == nil {
		t.Fatal("reconcile canceled mid-write should fail")
	}
	db.beforeCounterUpdate = nil

	var associations int
	if err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM tag_associations WHERE content_id = 'post-1'`).Scan(&associations); err != nil {
		t.Fatal(err)
	}
	if associations != 0 {
		t.Fatalf("aborted reconcile left %d association rows", associations)
	}

	result, err := db.Reconcile(context.Background(), "post-1", mentions("education"))
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if want := []string{"education"}; !reflect.DeepEqual(result.Added, want) {
		t.Errorf("retry Added = %v, want %v", result.Added, want)
	}
	if got := usageCount(t, db, "education"); got != 1 {
		t.Errorf("usage after retry = %d, want 1", got)
	}
}

func TestReconcileRetryAfterFailedDecrement(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.Reconcile(context.Background(), "post-1", mentions("education")); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	db.beforeCounterUpdate = cancel
	if _, err := db.Reconcile(ctx, "post-1", nil); err == nil {
		t.Fatal("reconcile canceled mid-delete should fail")
	}
	db.beforeCounterUpdate = nil

	// Rolled back: the pair is still present and still counted.
	if got := usageCount(t, db, "education"); got != 1 {
		t.Fatalf("usage after aborted delete = %d, want 1", got)
	}

	result, err := db.Reconcile(context.Background(), "post-1", nil)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if want := []string{"education"}; !reflect.DeepEqual(result.Removed, want) {
		t.Errorf("retry Removed = %v, want %v", result.Removed, want)
	}
	if got := usageCount(t, db, "education"); got != 0 {
		t.Errorf("usage after retried delete = %d, want 0", got)
	}
}
