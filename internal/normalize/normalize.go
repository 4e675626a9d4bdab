// TagCore - Bilingual Content Tagging and Trend Ranking
// Copyright 2026 Minbar Media Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/minbar/tagcore

// Package normalize turns raw tag tokens into canonical tag keys.
//
// The canonical key is a pure function of the surface spelling: any valid
// spelling of the same tag (with or without Arabic tashkeel, any Latin
// casing) maps to the same key. This property is what makes association
// writes idempotent downstream.
//
// Rules, applied in order:
//
//  1. Strip a single leading marker character if present.
//  2. Collapse internal whitespace runs to a single underscore.
//  3. Reject tokens shorter than MinLength or longer than MaxLength runes.
//  4. Decompose to NFD and drop combining marks (Arabic tashkeel,
//     Latin diacritics), then recompose to NFC.
//  5. Lowercase Latin-script letters. Arabic has no case and is untouched.
//  6. Reject tokens containing anything but letters, digits and underscore,
//     and tokens with no letter at all (digit- or underscore-only).
package normalize

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Rejection errors. Callers that scan free text treat every rejection as
// skip-and-continue, never as a fatal condition.
var (
	// ErrTooShort rejects tokens below the minimum length (or empty after
	// marker stripping).
	ErrTooShort = errors.New("tag token too short")

	// ErrTooLong rejects tokens above the maximum length.
	ErrTooLong = errors.New("tag token too long")

	// ErrInvalidChar rejects tokens containing characters outside
	// letters, digits and underscore.
	ErrInvalidChar = errors.New("tag token contains invalid characters")

	// ErrNoLetters rejects digit-only and underscore-only tokens.
	ErrNoLetters = errors.New("tag token contains no letters")
)

// Normalizer converts raw tokens to canonical keys.
// The zero value is not usable; construct with New.
type Normalizer struct {
	marker    rune
	minLength int
	maxLength int
}

// Options configures a Normalizer.
type Options struct {
	// Marker is the tag prefix character. Default '#'.
	Marker rune

	// MinLength and MaxLength bound the token rune count after marker
	// stripping and whitespace collapsing.
	MinLength int
	MaxLength int
}

// New creates a Normalizer. Zero option fields fall back to
// marker '#', min 2, max 50.
func New(opts Options) *Normalizer {
	if opts.Marker == 0 {
		opts.Marker = '#'
	}
	if opts.MinLength <= 0 {
		opts.MinLength = 2
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = 50
	}
	return &Normalizer{
		marker:    opts.Marker,
		minLength: opts.MinLength,
		maxLength: opts.MaxLength,
	}
}

// Marker returns the configured tag prefix character.
func (n *Normalizer) Marker() rune {
	return n.marker
}

// Normalize converts a raw token into its canonical key and display form.
//
// The key is diacritic-stripped and Latin-lowercased; the display form keeps
// the author's diacritics and casing (marker stripped, whitespace collapsed,
// NFC). Identical raw input always yields identical output.
func (n *Normalizer) Normalize(raw string) (key, display string, err error) {
	token := strings.TrimPrefix(raw, string(n.marker))

	token = collapseWhitespace(token)
	if token == "" {
		return "", "", ErrTooShort
	}

	length := len([]rune(token))
	if length < n.minLength {
		return "", "", ErrTooShort
	}
	if length > n.maxLength {
		return "", "", ErrTooLong
	}

	key = foldKey(token)

	hasLetter := false
	for _, r := range key {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r) || r == '_':
		default:
			return "", "", ErrInvalidChar
		}
	}
	if !hasLetter {
		return "", "", ErrNoLetters
	}

	return key, norm.NFC.String(token), nil
}

// collapseWhitespace replaces each internal whitespace run with a single
// underscore and trims leading/trailing whitespace.
func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inRun := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			inRun = true
			continue
		}
		if inRun && b.Len() > 0 {
			b.WriteByte('_')
		}
		inRun = false
		b.WriteRune(r)
	}
	return b.String()
}

// foldKey strips combining marks and lowercases Latin letters,
// returning the NFC-recomposed canonical key.
func foldKey(token string) string {
	decomposed := norm.NFD.String(token)

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if unicode.Is(unicode.Latin, r) {
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}

	return norm.NFC.String(b.String())
}

// ContainsArabic reports whether s contains at least one Arabic-script rune.
// Used to decide which locale slot a display form belongs to.
func ContainsArabic(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Arabic, r) {
			return true
		}
	}
	return false
}
