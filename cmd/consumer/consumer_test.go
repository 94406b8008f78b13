package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/ride-bidding/internal/models"
)

// fakeUpdater implements StatusUpdater for tests
type fakeUpdater struct {
	failHSet int // number of times to fail HSet before succeeding
	hCalls   int
	fields   map[string]string
	incrs    map[string]int64
}

func newFakeUpdater() *fakeUpdater {
	return &fakeUpdater{fields: make(map[string]string), incrs: make(map[string]int64)}
}

func (f *fakeUpdater) HGet(ctx context.Context, key, field string) (string, error) {
	return f.fields[field], nil
}

func (f *fakeUpdater) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	f.hCalls++
	if f.hCalls <= f.failHSet {
		return errors.New("hset fail")
	}
	for k, v := range values {
		f.fields[k] = v.(string)
	}
	return nil
}

func (f *fakeUpdater) HIncrBy(ctx context.Context, key, field string, incr int64) error {
	f.incrs[field] += incr
	return nil
}

func (f *fakeUpdater) Expire(ctx context.Context, key string, ttl time.Duration) error { return nil }

func bidEvent(amount string) *models.AuctionEvent {
	return &models.AuctionEvent{
		Type:      models.EventBidPlaced,
		BookingID: "b1",
		State:     models.BiddingOpen,
		Bid:       &models.Bid{ID: "bid1", BookingID: "b1", Amount: decimal.RequireFromString(amount)},
		At:        time.Now(),
	}
}

func TestApplyEventTracksLowestBid(t *testing.T) {
	f := newFakeUpdater()
	ctx := context.Background()

	if err := applyEvent(ctx, f, bidEvent("100")); err != nil {
		t.Fatalf("first event: %v", err)
	}
	if f.fields["lowest_bid"] != "100" {
		t.Fatalf("expected lowest 100, got %q", f.fields["lowest_bid"])
	}

	if err := applyEvent(ctx, f, bidEvent("90")); err != nil {
		t.Fatalf("second event: %v", err)
	}
	if f.fields["lowest_bid"] != "90" {
		t.Fatalf("expected lowest 90, got %q", f.fields["lowest_bid"])
	}

	// a higher bid must not raise the cached lowest
	if err := applyEvent(ctx, f, bidEvent("95")); err != nil {
		t.Fatalf("third event: %v", err)
	}
	if f.fields["lowest_bid"] != "90" {
		t.Fatalf("lowest must stay 90, got %q", f.fields["lowest_bid"])
	}
	if f.incrs["bid_count"] != 3 {
		t.Fatalf("expected 3 counted bids, got %d", f.incrs["bid_count"])
	}
}

func TestApplyEventTerminalState(t *testing.T) {
	f := newFakeUpdater()
	ev := &models.AuctionEvent{Type: models.EventAuctionExpired, BookingID: "b1", State: models.BiddingExpired, At: time.Now()}
	if err := applyEvent(context.Background(), f, ev); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if f.fields["state"] != "EXPIRED" {
		t.Fatalf("expected EXPIRED, got %q", f.fields["state"])
	}
	if f.incrs["bid_count"] != 0 {
		t.Fatalf("terminal event must not bump bid_count, got %d", f.incrs["bid_count"])
	}
}

func TestUpdateCacheWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := newFakeUpdater()
	f.failHSet = 1
	ctx := context.Background()
	start := time.Now()
	if err := updateCacheWithRetry(ctx, f, bidEvent("100"), 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.hCalls < 2 {
		t.Fatalf("expected retries, got hset=%d", f.hCalls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
}

func TestUpdateCacheWithRetry_FailsWhenExhausted(t *testing.T) {
	f := newFakeUpdater()
	f.failHSet = 5
	if err := updateCacheWithRetry(context.Background(), f, bidEvent("100"), 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
}
