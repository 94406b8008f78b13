package auction

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/ride-bidding/internal/models"
)

func bid(id string, amount string, submitted time.Time, expires time.Time, status models.BidStatus) models.Bid {
	return models.Bid{
		ID:          id,
		Amount:      decimal.RequireFromString(amount),
		SubmittedAt: submitted,
		ExpiresAt:   expires,
		Status:      status,
	}
}

func TestSelectWinnerLowestAmount(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Minute)
	bids := []models.Bid{
		bid("b1", "100", now, later, models.BidActive),
		bid("b2", "90", now.Add(time.Second), later, models.BidActive),
		bid("b3", "95", now.Add(2*time.Second), later, models.BidActive),
	}
	w := SelectWinner(bids, now)
	if w == nil || w.ID != "b2" {
		t.Fatalf("expected b2, got %+v", w)
	}
}

func TestSelectWinnerTieBreakEarliestSubmission(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Minute)
	bids := []models.Bid{
		bid("late", "90", now.Add(10*time.Second), later, models.BidActive),
		bid("early", "90", now, later, models.BidActive),
	}
	w := SelectWinner(bids, now)
	if w == nil || w.ID != "early" {
		t.Fatalf("expected early, got %+v", w)
	}
}

func TestSelectWinnerSkipsExpiredAndInactive(t *testing.T) {
	now := time.Now()
	bids := []models.Bid{
		bid("expired", "50", now.Add(-2*time.Minute), now.Add(-time.Second), models.BidActive),
		bid("rejected", "60", now, now.Add(time.Minute), models.BidRejected),
		bid("live", "70", now, now.Add(time.Minute), models.BidActive),
	}
	w := SelectWinner(bids, now)
	if w == nil || w.ID != "live" {
		t.Fatalf("expected live, got %+v", w)
	}
}

func TestSelectWinnerNoEligibleBids(t *testing.T) {
	now := time.Now()
	bids := []models.Bid{
		bid("expired", "50", now.Add(-2*time.Minute), now.Add(-time.Second), models.BidActive),
	}
	if w := SelectWinner(bids, now); w != nil {
		t.Fatalf("expected nil winner, got %+v", w)
	}
	if w := SelectWinner(nil, now); w != nil {
		t.Fatalf("expected nil winner for empty input, got %+v", w)
	}
}
