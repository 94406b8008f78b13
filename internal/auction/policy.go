package auction

import (
	"time"

	"github.com/example/ride-bidding/internal/models"
)

// SelectWinner applies the automatic resolution policy: lowest amount wins,
// ties broken by earliest submission. Only bids that are ACTIVE and
// unexpired at now are considered. Returns nil when no bid is eligible.
//
// This policy runs only on the expiry path; an explicit accept always
// honors the rider's chosen bid.
func SelectWinner(bids []models.Bid, now time.Time) *models.Bid {
	var winner *models.Bid
	for i := range bids {
		b := &bids[i]
		if !b.Live(now) {
			continue
		}
		if winner == nil {
			winner = b
			continue
		}
		if b.Amount.LessThan(winner.Amount) {
			winner = b
			continue
		}
		if b.Amount.Equal(winner.Amount) && b.SubmittedAt.Before(winner.SubmittedAt) {
			winner = b
		}
	}
	if winner == nil {
		return nil
	}
	cp := *winner
	return &cp
}
