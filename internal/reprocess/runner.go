// TagCore - Bilingual Content Tagging and Trend Ranking
// Copyright 2026 Minbar Media Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/minbar/tagcore

// Package reprocess re-runs extraction and reconciliation over stored
// content in bulk: after normalization rule changes, after imports, or to
// repair drift. Because every item goes through the same reconcile entry
// point as live updates, a rerun over unchanged content produces zero
// writes, so the whole batch is idempotent and safe to repeat after a
// partial failure.
package reprocess

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/minbar/tagcore/internal/database"
	"github.com/minbar/tagcore/internal/extract"
	"github.com/minbar/tagcore/internal/logging"
	"github.com/minbar/tagcore/internal/metrics"
	"github.com/minbar/tagcore/internal/models"
)

// Selector narrows a batch to one content item, one lifecycle status, or
// both. The zero value selects everything the source offers.
type Selector struct {
	ContentID string `json:"content_id,omitempty"`
	Status    string `json:"status,omitempty" validate:"omitempty,oneof=draft published archived deleted"`
}

// ContentSource yields the content items a batch should visit. The
// content system owns storage of the items themselves; the engine only
// reads the designated text fields and status.
type ContentSource interface {
	EligibleContent(ctx context.Context, sel Selector) ([]models.ContentItem, error)
}

// SnapshotStore is the content-snapshot slice of the association store.
type SnapshotStore interface {
	ListContent(ctx context.Context, contentID, status string) ([]models.ContentItem, error)
}

// StoreSource adapts the store's content snapshots to ContentSource, so a
// server that only ever hears about content through the change hook can
// still reprocess everything it has seen.
type StoreSource struct {
	Store SnapshotStore
}

// EligibleContent implements ContentSource over stored snapshots.
func (s StoreSource) EligibleContent(ctx context.Context, sel Selector) ([]models.ContentItem, error) {
	return s.Store.ListContent(ctx, sel.ContentID, sel.Status)
}

// Options controls one batch run.
type Options struct {
	Selector Selector `json:"selector"`

	// Force revisits items that already have associations. Without it,
	// already-tagged items are skipped, so a default run only fills gaps.
	Force bool `json:"force"`

	// DryRun computes and reports per-item diffs without writing.
	DryRun bool `json:"dry_run"`
}

// Report summarizes what a batch did, or would do under DryRun.
type Report struct {
	Processed   int  `json:"processed"`
	Skipped     int  `json:"skipped"`
	TagsAdded   int  `json:"tags_added"`
	TagsRemoved int  `json:"tags_removed"`
	DryRun      bool `json:"dry_run"`
}

// Eligibility decides which lifecycle statuses carry tags. Items in any
// other status reconcile against the empty set, clearing stale
// associations left behind by a status change.
type Eligibility interface {
	IsEligible(status string) bool
}

// Runner executes reprocessing batches.
type Runner struct {
	source      ContentSource
	db          *database.DB
	extractor   *extract.Extractor
	eligibility Eligibility
	limiter     *rate.Limiter
}

// NewRunner builds a batch runner. ratePerSecond <= 0 disables the write
// throttle.
func NewRunner(source ContentSource, db *database.DB, extractor *extract.Extractor, eligibility Eligibility, ratePerSecond float64) *Runner {
	var limiter *rate.Limiter
	if ratePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}
	return &Runner{
		source:      source,
		db:          db,
		extractor:   extractor,
		eligibility: eligibility,
		limiter:     limiter,
	}
}

// Run executes one batch. Cancellation is cooperative: the context is
// checked between items, never mid-reconcile, so an interrupted run
// leaves every visited item fully reconciled and a rerun picks up the
// rest. A store failure aborts the batch with the partial report.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()

	items, err := r.source.EligibleContent(ctx, opts.Selector)
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}

	report := &Report{DryRun: opts.DryRun}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("batch canceled after %d items: %w", report.Processed, err)
		}

		if !opts.Force {
			has, err := r.db.HasAssociations(ctx, item.ID)
			if err != nil {
				metrics.ReprocessItems.WithLabelValues("failed").Inc()
				return report, err
			}
			if has {
				metrics.ReprocessItems.WithLabelValues("skipped").Inc()
				report.Skipped++
				continue
			}
		}

		if r.limiter != nil && !opts.DryRun {
			if err := r.limiter.Wait(ctx); err != nil {
				return report, fmt.Errorf("batch canceled after %d items: %w", report.Processed, err)
			}
		}

		var mentions []models.TagMention
		if r.eligibility.IsEligible(item.Status) {
			mentions = r.extractor.Extract(&item)
		}

		var result *database.ReconcileResult
		if opts.DryRun {
			result, err = r.db.DiffAssociations(ctx, item.ID, mentions)
		} else {
			result, err = r.db.Reconcile(ctx, item.ID, mentions)
		}
		if err != nil {
			metrics.ReprocessItems.WithLabelValues("failed").Inc()
			return report, fmt.Errorf("item %s: %w", item.ID, err)
		}

		metrics.ReprocessItems.WithLabelValues("processed").Inc()
		report.Processed++
		report.TagsAdded += len(result.Added)
		report.TagsRemoved += len(result.Removed)
	}

	logger := logging.Ctx(ctx)
	logger.Info().
		Int("processed", report.Processed).
		Int("skipped", report.Skipped).
		Int("tags_added", report.TagsAdded).
		Int("tags_removed", report.TagsRemoved).
		Bool("dry_run", report.DryRun).
		Dur("elapsed", time.Since(start)).
		Msg("reprocess batch finished")

	return report, nil
}
