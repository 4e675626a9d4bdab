// TagCore - Bilingual Content Tagging and Trend Ranking
// Copyright 2026 Minbar Media Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/minbar/tagcore

package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/minbar/tagcore/internal/metrics"
)

// ErrUnavailable wraps persistence failures that the caller may retry.
// Reconcile is idempotent per content item, so a retry after this error
// never double-applies writes.
var ErrUnavailable = errors.New("association store unavailable")

// isTransactionConflict checks whether an error is a DuckDB optimistic
// concurrency conflict, which is transient and safe to retry.
func isTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "Transaction conflict") ||
		strings.Contains(errStr, "Conflict on update") ||
		strings.Contains(errStr, "cannot update a table that has been altered")
}

// isDuplicateKey checks whether an error is a uniqueness violation.
// Duplicate association creation is resolved as idempotent success, never
// surfaced to the caller.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "Duplicate key") ||
		strings.Contains(errStr, "violates primary key constraint") ||
		strings.Contains(errStr, "violates unique constraint")
}

// wrapUnavailable classifies a read failure as a retryable store error.
func wrapUnavailable(operation string, err error) error {
	metrics.DBQueryErrors.WithLabelValues(operation).Inc()
	return fmt.Errorf("%s: %v: %w", operation, err, ErrUnavailable)
}

// withConflictRetry runs op, retrying transaction conflicts with
// exponential backoff. Other errors are classified as retryable store
// failures and returned wrapped in ErrUnavailable.
func (db *DB) withConflictRetry(ctx context.Context, operation string, op func() error) error {
	const maxRetries = 3
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("%s canceled: %w", operation, ctx.Err())
		}

		if !isTransactionConflict(err) {
			metrics.DBQueryErrors.WithLabelValues(operation).Inc()
			return fmt.Errorf("%s: %v: %w", operation, err, ErrUnavailable)
		}

		// 1ms, 2ms, 4ms
		backoff := time.Millisecond * time.Duration(1<<uint(attempt))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operation, ctx.Err())
		}
	}

	metrics.DBQueryErrors.WithLabelValues(operation).Inc()
	return fmt.Errorf("%s: max retries exceeded: %v: %w", operation, lastErr, ErrUnavailable)
}
