package notify

import (
	"context"
	"log/slog"

	"github.com/example/ride-bidding/internal/models"
)

// Notifier mirrors the engine boundary so implementations can be fanned
// out without importing the auction package.
type Notifier interface {
	NotifyNewBid(ctx context.Context, bookingID string, bid models.Bid) error
	NotifyBidAccepted(ctx context.Context, bookingID string, bid models.Bid) error
	NotifyAuctionExpired(ctx context.Context, bookingID string) error
	NotifyAuctionCancelled(ctx context.Context, bookingID string) error
}

// LogNotifier writes announcements to the log. Used as the fallback when
// no delivery channel is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l *LogNotifier) log() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l *LogNotifier) NotifyNewBid(ctx context.Context, bookingID string, bid models.Bid) error {
	l.log().Info("new bid", "booking_id", bookingID, "bid_id", bid.ID, "driver_id", bid.DriverID, "amount", bid.Amount.String())
	return nil
}

func (l *LogNotifier) NotifyBidAccepted(ctx context.Context, bookingID string, bid models.Bid) error {
	l.log().Info("bid accepted", "booking_id", bookingID, "bid_id", bid.ID, "driver_id", bid.DriverID, "amount", bid.Amount.String())
	return nil
}

func (l *LogNotifier) NotifyAuctionExpired(ctx context.Context, bookingID string) error {
	l.log().Info("auction expired", "booking_id", bookingID)
	return nil
}

func (l *LogNotifier) NotifyAuctionCancelled(ctx context.Context, bookingID string) error {
	l.log().Info("auction cancelled", "booking_id", bookingID)
	return nil
}

// Multi fans an announcement out to several channels. The first error is
// returned after every channel has been tried; the caller treats it as
// non-fatal anyway.
type Multi []Notifier

func (m Multi) NotifyNewBid(ctx context.Context, bookingID string, bid models.Bid) error {
	var first error
	for _, n := range m {
		if err := n.NotifyNewBid(ctx, bookingID, bid); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) NotifyBidAccepted(ctx context.Context, bookingID string, bid models.Bid) error {
	var first error
	for _, n := range m {
		if err := n.NotifyBidAccepted(ctx, bookingID, bid); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) NotifyAuctionExpired(ctx context.Context, bookingID string) error {
	var first error
	for _, n := range m {
		if err := n.NotifyAuctionExpired(ctx, bookingID); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) NotifyAuctionCancelled(ctx context.Context, bookingID string) error {
	var first error
	for _, n := range m {
		if err := n.NotifyAuctionCancelled(ctx, bookingID); err != nil && first == nil {
			first = err
		}
	}
	return first
}
