// TagCore - Bilingual Content Tagging and Trend Ranking
// Copyright 2026 Minbar Media Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/minbar/tagcore

// Package trending ranks tags two ways: popular (all-time usage counters)
// and trending (exponentially decayed recency of reinforcement inside a
// trailing window). Both rankings are pure recomputations over the
// association store; callers layer caching on top.
package trending

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/minbar/tagcore/internal/logging"
	"github.com/minbar/tagcore/internal/metrics"
	"github.com/minbar/tagcore/internal/models"
)

// Store is the slice of the association store the scorer reads.
type Store interface {
	ActiveTags(ctx context.Context) ([]models.Tag, error)
	RecentAssociations(ctx context.Context, window time.Duration) ([]models.Association, error)
	TagsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Tag, error)
}

// Scorer computes tag rankings from the association store.
//
// Store reads go through a circuit breaker: a store outage trips the
// breaker so ranking recomputes fail fast while cached rankings keep
// serving. The breaker uses real time for its recovery window; tests
// exercise scoring through a fake store instead of waiting it out.
type Scorer struct {
	store    Store
	halfLife time.Duration
	cb       *gobreaker.CircuitBreaker[any]

	// now is the clock. Overridable in tests via SetClock.
	now func() time.Time
}

// NewScorer builds a scorer decaying with the given half-life.
func NewScorer(store Store, halfLife time.Duration) *Scorer {
	cbName := "association-store"
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).
				Msg("circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &Scorer{
		store:    store,
		halfLife: halfLife,
		cb:       cb,
		now:      time.Now,
	}
}

// SetClock overrides the scorer's clock. Tests only.
func (s *Scorer) SetClock(now func() time.Time) {
	s.now = now
}

// Popular ranks tags by all-time usage count, descending. Ties break on
// earlier creation, then canonical key, so equal-count rankings are
// stable across recomputes. Zero-usage and soft-deleted tags never
// appear.
func (s *Scorer) Popular(ctx context.Context, limit int) ([]models.TagScore, error) {
	start := time.Now()
	defer func() {
		metrics.RankingRecomputeDuration.WithLabelValues("popular").Observe(time.Since(start).Seconds())
	}()

	tags, err := breakerDo(s.cb, func() ([]models.Tag, error) {
		return s.store.ActiveTags(ctx)
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(tags, func(i, j int) bool {
		if tags[i].UsageCount != tags[j].UsageCount {
			return tags[i].UsageCount > tags[j].UsageCount
		}
		if !tags[i].CreatedAt.Equal(tags[j].CreatedAt) {
			return tags[i].CreatedAt.Before(tags[j].CreatedAt)
		}
		return tags[i].Key < tags[j].Key
	})

	if limit > 0 && len(tags) > limit {
		tags = tags[:limit]
	}

	scores := make([]models.TagScore, len(tags))
	for i, tag := range tags {
		scores[i] = models.TagScore{Tag: tag, Score: float64(tag.UsageCount)}
	}
	return scores, nil
}

// Trending ranks tags by decayed recency: each association reinforced
// within the trailing window contributes exp(-lambda * age), with
// lambda = ln 2 / half-life, so a reinforcement one half-life old weighs
// half as much as one from just now. Ties break on the raw in-window
// count, then canonical key. Tags with nothing in the window score zero
// and are excluded.
func (s *Scorer) Trending(ctx context.Context, limit int, window time.Duration) ([]models.TagScore, error) {
	start := time.Now()
	defer func() {
		metrics.RankingRecomputeDuration.WithLabelValues("trending").Observe(time.Since(start).Seconds())
	}()

	associations, err := breakerDo(s.cb, func() ([]models.Association, error) {
		return s.store.RecentAssociations(ctx, window)
	})
	if err != nil {
		return nil, err
	}
	if len(associations) == 0 {
		return []models.TagScore{}, nil
	}

	lambda := math.Ln2 / s.halfLife.Seconds()
	now := s.now().UTC()

	type accum struct {
		score float64
		count int64
	}
	byTag := make(map[uuid.UUID]*accum)
	for _, a := range associations {
		age := now.Sub(a.ReinforcedAt).Seconds()
		if age < 0 {
			age = 0
		}
		acc, ok := byTag[a.TagID]
		if !ok {
			acc = &accum{}
			byTag[a.TagID] = acc
		}
		acc.score += math.Exp(-lambda * age)
		acc.count++
	}

	ids := make([]uuid.UUID, 0, len(byTag))
	for id := range byTag {
		ids = append(ids, id)
	}
	tags, err := breakerDo(s.cb, func() (map[uuid.UUID]models.Tag, error) {
		return s.store.TagsByIDs(ctx, ids)
	})
	if err != nil {
		return nil, err
	}

	scores := make([]models.TagScore, 0, len(byTag))
	for id, acc := range byTag {
		tag, ok := tags[id]
		if !ok {
			// Soft-deleted since the association read.
			continue
		}
		scores = append(scores, models.TagScore{
			Tag:         tag,
			Score:       acc.score,
			WindowCount: acc.count,
		})
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		if scores[i].WindowCount != scores[j].WindowCount {
			return scores[i].WindowCount > scores[j].WindowCount
		}
		return scores[i].Tag.Key < scores[j].Tag.Key
	})

	if limit > 0 && len(scores) > limit {
		scores = scores[:limit]
	}
	return scores, nil
}

// breakerDo routes a typed store read through the shared breaker.
func breakerDo[T any](cb *gobreaker.CircuitBreaker[any], fn func() (T, error)) (T, error) {
	result, err := cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
