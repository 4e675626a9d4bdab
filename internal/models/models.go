// TagCore - Bilingual Content Tagging and Trend Ranking
// Copyright 2026 Minbar Media Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/minbar/tagcore

// Package models defines the domain types shared across TagCore packages.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Content lifecycle statuses as reported by the content collaborator.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
	StatusDeleted   = "deleted"
)

// Tag is a canonical topical label extracted from content text.
//
// Key is the normalized, script-and-diacritic-insensitive identity of the tag:
// re-normalizing any surface spelling of the same tag yields the same Key.
// DisplayName and DisplayNameAr hold the surface form first seen for each
// script, so clients can render the tag the way an author typed it.
type Tag struct {
	ID            uuid.UUID `json:"id"`
	Key           string    `json:"key"`
	DisplayName   string    `json:"display_name,omitempty"`
	DisplayNameAr string    `json:"display_name_ar,omitempty"`

	// UsageCount is the number of active associations referencing this tag.
	// Maintained atomically by the association store, never recomputed
	// read-modify-write at the application layer.
	UsageCount int64 `json:"usage_count"`

	// IsDeleted marks administrative soft deletion. The engine itself never
	// sets this; zero-usage tags stay addressable.
	IsDeleted bool      `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Association records that a content item currently references a tag.
// At most one association exists per (content, tag) pair.
type Association struct {
	ContentID string    `json:"content_id"`
	TagID     uuid.UUID `json:"tag_id"`
	CreatedAt time.Time `json:"created_at"`

	// ReinforcedAt is bumped whenever the content item is re-extracted and
	// still references the tag. Trending weights decay from this timestamp,
	// not from CreatedAt.
	ReinforcedAt time.Time `json:"reinforced_at"`
}

// ContentItem is the slice of a content record the engine consumes: the
// designated bilingual text fields plus the lifecycle status that decides
// extraction eligibility. The content collaborator owns everything else.
type ContentItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	TitleAr   string `json:"title_ar"`
	Summary   string `json:"summary"`
	SummaryAr string `json:"summary_ar"`
	Body      string `json:"body"`
	BodyAr    string `json:"body_ar"`
	Status    string `json:"status"`
}

// TextFields returns the designated scan fields in a fixed order.
func (c *ContentItem) TextFields() []string {
	return []string{c.Title, c.TitleAr, c.Summary, c.SummaryAr, c.Body, c.BodyAr}
}

// TagMention is a single extracted tag reference: the canonical key plus
// the surface form the author typed (marker stripped, diacritics intact).
type TagMention struct {
	Key     string `json:"key"`
	Display string `json:"display"`
}

// TagScore is one entry of a ranked tag list.
type TagScore struct {
	Tag   Tag     `json:"tag"`
	Score float64 `json:"score"`

	// WindowCount is the raw number of in-window associations backing the
	// score. Used as the first tie-breaker for trending and surfaced to
	// clients for display.
	WindowCount int64 `json:"window_count,omitempty"`
}
