// TagCore - Bilingual Content Tagging and Trend Ranking
// Copyright 2026 Minbar Media Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/minbar/tagcore

package models

import (
	"time"
)

// APIResponse is the standardized envelope used by every HTTP endpoint.
//
// Status is "success" or "error". Data carries the payload on success;
// Error is populated only on failure. Metadata is always present.
//
// Example:
//
//	{
//	  "status": "success",
//	  "data": {"rankings": [...]},
//	  "metadata": {"timestamp": "2026-08-23T12:00:00Z", "query_time_ms": 4, "cached": true}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries per-response observability fields.
// QueryTimeMS is 0 and Cached true when the response came from cache.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	Cached      bool      `json:"cached,omitempty"`
}

// APIError is a structured error payload.
//
// Common codes: VALIDATION_ERROR, NOT_FOUND, DATABASE_ERROR,
// RANKING_UNAVAILABLE, RATE_LIMIT_EXCEEDED.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// RankingsResponse is the payload of the trending and popular endpoints.
type RankingsResponse struct {
	Rankings []TagScore `json:"rankings"`

	// Window is the trailing window the trending scores were computed over,
	// in seconds. Zero for the popular ranking (all time).
	WindowSeconds int64 `json:"window_seconds,omitempty"`
}

// ContentTagsResponse is the payload of GET /content/{id}/tags.
type ContentTagsResponse struct {
	ContentID string `json:"content_id"`
	Tags      []Tag  `json:"tags"`
}

// ContentChangedRequest is the body of the onContentItemChanged hook.
// The content collaborator calls it synchronously after every save.
type ContentChangedRequest struct {
	Title     string `json:"title"`
	TitleAr   string `json:"title_ar"`
	Summary   string `json:"summary"`
	SummaryAr string `json:"summary_ar"`
	Body      string `json:"body"`
	BodyAr    string `json:"body_ar"`
	Status    string `json:"status" validate:"required,oneof=draft published archived deleted"`
}

// ReconcileResponse reports the delta a reconcile produced.
type ReconcileResponse struct {
	ContentID string   `json:"content_id"`
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	Retained  []string `json:"retained"`
}

// ReprocessRequest is the body of the administrative reprocess endpoint.
type ReprocessRequest struct {
	ContentID string `json:"content_id,omitempty"`
	Status    string `json:"status,omitempty" validate:"omitempty,oneof=draft published archived deleted"`
	Force     bool   `json:"force"`
	DryRun    bool   `json:"dry_run"`
}
