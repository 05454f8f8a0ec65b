package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"rss_relay/internal/benefits"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func profileWithCap(limit int) benefits.Profile {
	return benefits.Profile{ArticleRateLimits: []benefits.RateLimit{{Max: limit, Window: 86400 * time.Second}}}
}

func TestAdmit(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewWithClock(clock.Now)
	prof := profileWithCap(3)

	var got []bool
	for range 4 {
		got = append(got, l.Admit("acc", prof))
	}
	if diff := cmp.Diff([]bool{true, true, true, false}, got); diff != "" {
		t.Errorf("Admit() sequence mismatch (-want +got):\n%s", diff)
	}

	clock.Advance(86400 * time.Second)
	if !l.Admit("acc", prof) {
		t.Error("Admit() after window elapsed = false, want true")
	}
}

func TestAdmitAccountsAreIndependent(t *testing.T) {
	l := New()
	prof := profileWithCap(1)

	if !l.Admit("a", prof) {
		t.Fatal("first admit for a rejected")
	}
	if l.Admit("a", prof) {
		t.Error("second admit for a allowed, want rejected")
	}
	if !l.Admit("b", prof) {
		t.Error("first admit for b rejected, want allowed")
	}
}

func TestAdmitMultipleWindows(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewWithClock(clock.Now)
	prof := benefits.Profile{ArticleRateLimits: []benefits.RateLimit{
		{Max: 2, Window: time.Hour},
		{Max: 3, Window: 24 * time.Hour},
	}}

	want := []bool{true, true, false}
	var got []bool
	for range 3 {
		got = append(got, l.Admit("acc", prof))
	}
	clock.Advance(time.Hour)
	want = append(want, true, false)
	got = append(got, l.Admit("acc", prof), l.Admit("acc", prof))

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Admit() sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestAdmitConcurrentNeverExceedsCap(t *testing.T) {
	l := New()
	prof := profileWithCap(50)

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				if l.Admit("shared", prof) {
					admitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if diff := cmp.Diff(int64(50), admitted.Load()); diff != "" {
		t.Errorf("admitted count mismatch (-want +got):\n%s", diff)
	}
}

func TestRemaining(t *testing.T) {
	l := New()
	prof := profileWithCap(3)

	if diff := cmp.Diff(3, l.Remaining("acc", prof)); diff != "" {
		t.Errorf("Remaining() before admits mismatch (-want +got):\n%s", diff)
	}
	l.Admit("acc", prof)
	if diff := cmp.Diff(2, l.Remaining("acc", prof)); diff != "" {
		t.Errorf("Remaining() after admit mismatch (-want +got):\n%s", diff)
	}
}

func TestPrune(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewWithClock(clock.Now)
	prof := profileWithCap(1)

	l.Admit("old", prof)
	clock.Advance(48 * time.Hour)
	l.Admit("new", prof)

	if diff := cmp.Diff(1, l.Prune(24*time.Hour)); diff != "" {
		t.Errorf("Prune() mismatch (-want +got):\n%s", diff)
	}
	if !l.Admit("old", prof) {
		t.Error("pruned account should start with a fresh window")
	}
}

func TestPruneSkipsRemovedRecord(t *testing.T) {
	l := New()
	prof := profileWithCap(1)

	stale := l.account("acc")
	if diff := cmp.Diff(1, l.Prune(-time.Second)); diff != "" {
		t.Fatalf("Prune() mismatch (-want +got):\n%s", diff)
	}
	if !l.Admit("acc", prof) {
		t.Fatal("Admit() after prune = false, want true")
	}

	acc := l.lock("acc")
	defer acc.mu.Unlock()
	if acc == stale {
		t.Error("lock() returned the pruned record")
	}
	if diff := cmp.Diff(0, len(stale.windows)); diff != "" {
		t.Errorf("pruned record was counted (-want +got):\n%s", diff)
	}
}

func TestAdmitConcurrentWithPrune(t *testing.T) {
	weekly := benefits.Profile{ArticleRateLimits: []benefits.RateLimit{{Max: 5, Window: 7 * 24 * time.Hour}}}

	for range 200 {
		clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
		l := NewWithClock(clock.Now)
		l.Admit("acc", weekly)
		clock.Advance(48 * time.Hour)

		var admitted atomic.Int64
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Prune(24 * time.Hour)
		}()
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if l.Admit("acc", weekly) {
					admitted.Add(1)
				}
			}()
		}
		wg.Wait()

		// Either the prune ran first and the account restarted from zero, or
		// an admission refreshed it and the primed article still counts.
		if got := admitted.Load(); got != 4 && got != 5 {
			t.Fatalf("admitted %d articles, want 4 or 5", got)
		}
	}
}
