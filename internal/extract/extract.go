// TagCore - Bilingual Content Tagging and Trend Ranking
// Copyright 2026 Minbar Media Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/minbar/tagcore

// Package extract scans content text fields for marker-prefixed tag tokens.
package extract

import (
	"sort"
	"unicode"

	"github.com/minbar/tagcore/internal/logging"
	"github.com/minbar/tagcore/internal/metrics"
	"github.com/minbar/tagcore/internal/models"
	"github.com/minbar/tagcore/internal/normalize"
)

// Extractor finds tag mentions in bilingual content text.
// Safe for concurrent use.
type Extractor struct {
	norm *normalize.Normalizer
}

// New creates an Extractor on top of the given normalizer.
func New(n *normalize.Normalizer) *Extractor {
	return &Extractor{norm: n}
}

// Extract scans every designated text field of the content item and returns
// the deduplicated set of tag mentions, sorted by canonical key. A tag
// mentioned five times yields exactly one mention; the display form is the
// first surface spelling seen.
//
// Malformed tokens are skipped (debug-logged), never fatal: a single bad
// token cannot abort the scan. Eligibility is the caller's decision -
// Extract scans whatever it is handed.
func (e *Extractor) Extract(item *models.ContentItem) []models.TagMention {
	seen := make(map[string]string)

	for _, field := range item.TextFields() {
		e.scanField(field, seen)
	}

	mentions := make([]models.TagMention, 0, len(seen))
	for key, display := range seen {
		mentions = append(mentions, models.TagMention{Key: key, Display: display})
	}
	sort.Slice(mentions, func(i, j int) bool { return mentions[i].Key < mentions[j].Key })

	return mentions
}

// Keys returns just the sorted canonical keys of the item's mentions.
func (e *Extractor) Keys(item *models.ContentItem) []string {
	mentions := e.Extract(item)
	keys := make([]string, len(mentions))
	for i, m := range mentions {
		keys[i] = m.Key
	}
	return keys
}

// scanField walks the field once, normalizing each marker-prefixed token
// into seen. Tokens end at the first rune outside {letter, digit, _}.
func (e *Extractor) scanField(field string, seen map[string]string) {
	marker := e.norm.Marker()
	runes := []rune(field)

	for i := 0; i < len(runes); i++ {
		if runes[i] != marker {
			continue
		}

		start := i + 1
		end := start
		for end < len(runes) && isTokenRune(runes[end]) {
			end++
		}
		i = end - 1
		if end == start {
			continue
		}

		raw := string(runes[start:end])
		key, display, err := e.norm.Normalize(raw)
		if err != nil {
			metrics.ExtractionTokens.WithLabelValues("rejected").Inc()
			logging.Debug().Str("token", raw).Err(err).Msg("skipped malformed tag token")
			continue
		}

		metrics.ExtractionTokens.WithLabelValues("accepted").Inc()
		if _, ok := seen[key]; !ok {
			seen[key] = display
		}
	}
}

// isTokenRune reports whether r can be part of an in-text tag token.
// Combining marks are included so vocalized Arabic tokens survive the scan
// intact; the normalizer strips them from the key afterwards.
func isTokenRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.Is(unicode.Mn, r)
}
