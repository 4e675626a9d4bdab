// TagCore - Bilingual Content Tagging and Trend Ranking
// Copyright 2026 Minbar Media Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/minbar/tagcore

package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetOrComputeBasic(t *testing.T) {
	c := New()

	calls := 0
	v, cached, err := c.GetOrCompute("trending", time.Minute, func() (interface{}, error) {
		calls++
		return "computed", nil
	})
	if err != nil {
		t.Fatalf("GetOrCompute failed: %v", err)
	}
	if cached {
		t.Error("first call should not be served from cache")
	}
	if v != "computed" {
		t.Errorf("value = %v, want computed", v)
	}

	// Second call within TTL hits the cache without recomputing.
	v, cached, err = c.GetOrCompute("trending", time.Minute, func() (interface{}, error) {
		calls++
		return "recomputed", nil
	})
	if err != nil {
		t.Fatalf("GetOrCompute failed: %v", err)
	}
	if !cached {
		t.Error("second call should be a cache hit")
	}
	if v != "computed" {
		t.Errorf("value = %v, want cached value", v)
	}
	if calls != 1 {
		t.Errorf("computeFn called %d times, want 1", calls)
	}
}

func TestGetOrComputeExpiry(t *testing.T) {
	c := New()

	calls := 0
	compute := func() (interface{}, error) {
		calls++
		return calls, nil
	}

	if _, _, err := c.GetOrCompute("k", 10*time.Millisecond, compute); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	v, cached, err := c.GetOrCompute("k", 10*time.Millisecond, compute)
	if err != nil {
		t.Fatal(err)
	}
	if cached {
		t.Error("expired entry should trigger recompute")
	}
	if v != 2 {
		t.Errorf("value = %v, want fresh value 2", v)
	}
}

func TestGetOrComputeCoalescing(t *testing.T) {
	c := New()

	const callers = 50
	var invocations atomic.Int64
	release := make(chan struct{})

	compute := func() (interface{}, error) {
		invocations.Add(1)
		<-release
		return "shared", nil
	}

	var wg sync.WaitGroup
	results := make([]interface{}, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := c.GetOrCompute("hot-key", time.Minute, compute)
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
				return
			}
			results[i] = v
		}(i)
	}

	// Let all callers pile onto the in-flight computation, then release it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := invocations.Load(); n != 1 {
		t.Errorf("computeFn invoked %d times for %d concurrent callers, want 1", n, callers)
	}
	for i, v := range results {
		if v != "shared" {
			t.Errorf("caller %d got %v, want shared", i, v)
		}
	}
}

func TestDistinctKeysIndependent(t *testing.T) {
	c := New()

	var trendingCalls, popularCalls atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, _ = c.GetOrCompute("trending", time.Minute, func() (interface{}, error) {
				trendingCalls.Add(1)
				return "t", nil
			})
		}()
		go func() {
			defer wg.Done()
			_, _, _ = c.GetOrCompute("popular", time.Minute, func() (interface{}, error) {
				popularCalls.Add(1)
				return "p", nil
			})
		}()
	}
	wg.Wait()

	if trendingCalls.Load() < 1 || popularCalls.Load() < 1 {
		t.Error("both keys should have been computed at least once")
	}

	if v, ok := c.Get("trending"); !ok || v != "t" {
		t.Errorf("trending = %v, want t", v)
	}
	if v, ok := c.Get("popular"); !ok || v != "p" {
		t.Errorf("popular = %v, want p", v)
	}
}

func TestStaleServedOnComputeError(t *testing.T) {
	c := New()

	// Seed a value with a tiny TTL, let it expire, then fail the recompute.
	if _, _, err := c.GetOrCompute("k", time.Millisecond, func() (interface{}, error) {
		return "last-good", nil
	}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)

	v, cached, err := c.GetOrCompute("k", time.Millisecond, func() (interface{}, error) {
		return nil, errors.New("store unavailable")
	})
	if err != nil {
		t.Fatalf("stale value should suppress the error, got %v", err)
	}
	if !cached {
		t.Error("stale response should be flagged as cached")
	}
	if v != "last-good" {
		t.Errorf("value = %v, want last-good", v)
	}

	stats := c.GetStats()
	if stats.StaleServed != 1 {
		t.Errorf("StaleServed = %d, want 1", stats.StaleServed)
	}
}

func TestComputeErrorWithoutStaleValue(t *testing.T) {
	c := New()

	wantErr := errors.New("store unavailable")
	_, _, err := c.GetOrCompute("missing", time.Minute, func() (interface{}, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want %v", err, wantErr)
	}
}

func TestDeleteForcesRecompute(t *testing.T) {
	c := New()

	calls := 0
	compute := func() (interface{}, error) {
		calls++
		return calls, nil
	}

	_, _, _ = c.GetOrCompute("k", time.Minute, compute)
	c.Delete("k")
	v, cached, _ := c.GetOrCompute("k", time.Minute, compute)

	if cached {
		t.Error("deleted key should recompute")
	}
	if v != 2 {
		t.Errorf("value = %v, want 2", v)
	}
}

func TestDeletePrefix(t *testing.T) {
	c := New()

	c.set("rankings:trending:168h", 1, time.Minute)
	c.set("rankings:popular", 2, time.Minute)
	c.set("other", 3, time.Minute)

	if removed := c.DeletePrefix("rankings:"); removed != 2 {
		t.Errorf("DeletePrefix removed %d, want 2", removed)
	}
	if _, ok := c.Get("other"); !ok {
		t.Error("unrelated key should survive")
	}
}

func TestCleanupKeepsStaleWithinRetention(t *testing.T) {
	c := New()

	c.set("fresh", 1, time.Minute)
	c.set("recently-expired", 2, -time.Minute)
	c.set("long-expired", 3, -2*staleRetention)

	c.Cleanup()

	if _, ok := c.lookup("fresh", false); !ok {
		t.Error("fresh entry should survive cleanup")
	}
	if _, ok := c.lookup("recently-expired", true); !ok {
		t.Error("recently expired entry should survive as stale fallback")
	}
	if _, ok := c.lookup("long-expired", true); ok {
		t.Error("entry past stale retention should be evicted")
	}
}
