// TagCore - Bilingual Content Tagging and Trend Ranking
// Copyright 2026 Minbar Media Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/minbar/tagcore

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/minbar/tagcore/internal/cache"
	"github.com/minbar/tagcore/internal/config"
	"github.com/minbar/tagcore/internal/database"
	"github.com/minbar/tagcore/internal/extract"
	"github.com/minbar/tagcore/internal/logging"
	"github.com/minbar/tagcore/internal/models"
	"github.com/minbar/tagcore/internal/reprocess"
	"github.com/minbar/tagcore/internal/trending"
)

// rankingCachePrefix groups every ranking cache key so a single prefix
// delete invalidates all of them after a write.
const rankingCachePrefix = "rankings:"

// recomputeTimeout bounds one ranking recompute. The recompute context is
// detached from the leading request: coalesced callers share the result,
// so the leader disconnecting must not fail the computation for everyone.
const recomputeTimeout = 15 * time.Second

// recomputeContext derives the context a shared ranking recompute runs
// under. Request-scoped values (request id) survive; cancellation does not.
func recomputeContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), recomputeTimeout)
}

// Handler implements the HTTP endpoints of the tagging engine.
type Handler struct {
	cfg       *config.Config
	db        *database.DB
	scorer    *trending.Scorer
	cache     *cache.Cache
	extractor *extract.Extractor
	runner    *reprocess.Runner
}

// NewHandler wires the engine components into an HTTP handler set.
func NewHandler(cfg *config.Config, db *database.DB, scorer *trending.Scorer, c *cache.Cache, extractor *extract.Extractor, runner *reprocess.Runner) *Handler {
	return &Handler{
		cfg:       cfg,
		db:        db,
		scorer:    scorer,
		cache:     c,
		extractor: extractor,
		runner:    runner,
	}
}

// rankingParams are the validated query parameters of the ranking endpoints.
type rankingParams struct {
	Limit         int `validate:"min=1"`
	WindowSeconds int `validate:"min=0"`
}

// TrendingTags serves GET /api/v1/tags/trending.
//
// The ranking is cached per (window, limit) and recomputed at most once
// concurrently per key. When recompute fails and a stale ranking exists,
// the stale ranking is served; RANKING_UNAVAILABLE appears only when there
// is nothing at all to show.
func (h *Handler) TrendingTags(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	limit, err := getIntParam(r, "limit", h.cfg.Trending.DefaultLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	winSecs, err := getIntParam(r, "window", int(h.cfg.Trending.Window.Seconds()))
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	params := rankingParams{Limit: limit, WindowSeconds: winSecs}
	if params.Limit > h.cfg.Trending.MaxLimit {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR",
			fmt.Sprintf("limit must be at most %d", h.cfg.Trending.MaxLimit), nil)
		return
	}
	if apiErr := validateRequest(&params); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	window := time.Duration(params.WindowSeconds) * time.Second
	if window <= 0 {
		window = h.cfg.Trending.Window
	}

	ctx, cancel := recomputeContext(r)
	defer cancel()
	key := fmt.Sprintf("%strending:%d:%d", rankingCachePrefix, int(window.Seconds()), params.Limit)

	value, cached, err := h.cache.GetOrCompute(key, h.cfg.Trending.CacheTTL, func() (interface{}, error) {
		scores, err := h.scorer.Trending(ctx, params.Limit, window)
		if err != nil {
			return nil, err
		}
		return &models.RankingsResponse{Rankings: scores, WindowSeconds: int64(window.Seconds())}, nil
	})
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "RANKING_UNAVAILABLE",
			"Trending ranking is temporarily unavailable", err)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   value,
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
			Cached:      cached,
		},
	})
}

// PopularTags serves GET /api/v1/tags/popular: the all-time usage ranking.
func (h *Handler) PopularTags(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	limit, err := getIntParam(r, "limit", h.cfg.Trending.DefaultLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	params := rankingParams{Limit: limit}
	if params.Limit > h.cfg.Trending.MaxLimit {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR",
			fmt.Sprintf("limit must be at most %d", h.cfg.Trending.MaxLimit), nil)
		return
	}
	if apiErr := validateRequest(&params); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	ctx, cancel := recomputeContext(r)
	defer cancel()
	key := fmt.Sprintf("%spopular:%d", rankingCachePrefix, params.Limit)

	value, cached, err := h.cache.GetOrCompute(key, h.cfg.Trending.CacheTTL, func() (interface{}, error) {
		scores, err := h.scorer.Popular(ctx, params.Limit)
		if err != nil {
			return nil, err
		}
		return &models.RankingsResponse{Rankings: scores}, nil
	})
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "RANKING_UNAVAILABLE",
			"Popular ranking is temporarily unavailable", err)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   value,
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
			Cached:      cached,
		},
	})
}

// TagByKey serves GET /api/v1/tags/{key}. Soft-deleted tags read as absent.
func (h *Handler) TagByKey(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key := chi.URLParam(r, "key")

	tag, err := h.db.GetTagByKey(r.Context(), key)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "DATABASE_ERROR",
			"Tag lookup failed", err)
		return
	}
	if tag == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND",
			fmt.Sprintf("No tag with key %q", key), nil)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   tag,
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}

// ContentTags serves GET /api/v1/content/{id}/tags: the active tags of one
// content item, ordered by canonical key. An untagged item yields an empty
// list, not 404.
func (h *Handler) ContentTags(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	contentID := chi.URLParam(r, "id")

	tags, err := h.db.TagsForContent(r.Context(), contentID)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "DATABASE_ERROR",
			"Content tag lookup failed", err)
		return
	}
	if tags == nil {
		tags = []models.Tag{}
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   &models.ContentTagsResponse{ContentID: contentID, Tags: tags},
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}

// ContentChanged serves POST /api/v1/content/{id}/changed: the hook the
// content system calls synchronously after every save.
//
// Eligible statuses get their text extracted and reconciled; any other
// status reconciles against the empty set, clearing the item's
// associations. Ranking caches are invalidated only when the reconcile
// actually wrote.
func (h *Handler) ContentChanged(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	contentID := chi.URLParam(r, "id")

	var req models.ContentChangedRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR",
			"Malformed JSON body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	item := models.ContentItem{
		ID:        contentID,
		Title:     req.Title,
		TitleAr:   req.TitleAr,
		Summary:   req.Summary,
		SummaryAr: req.SummaryAr,
		Body:      req.Body,
		BodyAr:    req.BodyAr,
		Status:    req.Status,
	}

	if err := h.db.UpsertContentItem(r.Context(), &item); err != nil {
		respondError(w, http.StatusServiceUnavailable, "DATABASE_ERROR",
			"Content snapshot write failed; retry the notification", err)
		return
	}

	var mentions []models.TagMention
	if h.cfg.Tagging.IsEligible(item.Status) {
		mentions = h.extractor.Extract(&item)
	}

	result, err := h.db.Reconcile(r.Context(), contentID, mentions)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "DATABASE_ERROR",
			"Association reconcile failed; retry the notification", err)
		return
	}

	if result.Writes() > 0 {
		h.cache.DeletePrefix(rankingCachePrefix)
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data: &models.ReconcileResponse{
			ContentID: contentID,
			Added:     result.Added,
			Removed:   result.Removed,
			Retained:  result.Retained,
		},
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}

// AdminReprocess serves POST /api/v1/admin/reprocess: batch re-extraction
// over stored content. The batch runs synchronously; repeated calls are
// safe because every item reconciles idempotently.
func (h *Handler) AdminReprocess(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req models.ReprocessRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR",
			"Malformed JSON body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	report, err := h.runner.Run(r.Context(), reprocess.Options{
		Selector: reprocess.Selector{ContentID: req.ContentID, Status: req.Status},
		Force:    req.Force,
		DryRun:   req.DryRun,
	})
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "DATABASE_ERROR",
			"Reprocess batch aborted; rerun to resume", err)
		return
	}

	if !report.DryRun && report.TagsAdded+report.TagsRemoved > 0 {
		h.cache.DeletePrefix(rankingCachePrefix)
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   report,
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}

// AdminDeleteTag serves DELETE /api/v1/admin/tags/{key}: administrative
// soft delete. The tag row and its counters survive; it just stops
// appearing in lookups and rankings.
func (h *Handler) AdminDeleteTag(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key := chi.URLParam(r, "key")

	found, err := h.db.SoftDeleteTag(r.Context(), key)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "DATABASE_ERROR",
			"Tag delete failed", err)
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "NOT_FOUND",
			fmt.Sprintf("No tag with key %q", key), nil)
		return
	}

	h.cache.DeletePrefix(rankingCachePrefix)
	logger := logging.Ctx(r.Context())
	logger.Info().Str("key", sanitizeLogValue(key)).Msg("tag soft-deleted")

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   map[string]interface{}{"key": key, "deleted": true},
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}

// Health serves GET /api/v1/health: store reachability plus cache counters.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r, 2*time.Second)
	defer cancel()

	status := "healthy"
	httpStatus := http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
		logging.Error().Err(err).Msg("health check: store unreachable")
	}

	stats := h.cache.GetStats()
	respondJSON(w, httpStatus, &models.APIResponse{
		Status: "success",
		Data: map[string]interface{}{
			"status": status,
			"cache": map[string]interface{}{
				"hits":         stats.Hits,
				"misses":       stats.Misses,
				"coalesced":    stats.Coalesced,
				"stale_served": stats.StaleServed,
				"keys":         stats.TotalKeys,
			},
		},
		Metadata: models.Metadata{Timestamp: time.Now()},
	})
}
