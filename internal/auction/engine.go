package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/ride-bidding/internal/models"
	"github.com/example/ride-bidding/internal/observability"
	"github.com/example/ride-bidding/internal/store"
)

// Notifier is the boundary the engine announces transitions through.
// Delivery is someone else's problem: a notification failure is logged and
// never rolls back a committed transition.
type Notifier interface {
	NotifyNewBid(ctx context.Context, bookingID string, bid models.Bid) error
	NotifyBidAccepted(ctx context.Context, bookingID string, bid models.Bid) error
	NotifyAuctionExpired(ctx context.Context, bookingID string) error
	NotifyAuctionCancelled(ctx context.Context, bookingID string) error
}

// EventPublisher pushes committed transitions onto the event stream.
type EventPublisher interface {
	Publish(ctx context.Context, ev models.AuctionEvent) error
}

// Engine runs the bidding lifecycle for bookings. Every operation takes
// the caller's now so timing rules are checked against one instant and
// tests can drive the clock.
type Engine struct {
	Store  store.AuctionStore
	Notify Notifier
	Events EventPublisher // optional
	Timers *Scheduler     // optional; armed per booking at creation
	Logger *slog.Logger

	BiddingWindow       time.Duration
	BidTTL              time.Duration
	AutoResolveOnExpiry bool
}

// OpenBookingInput carries the rider's request to open a booking for
// bidding. Location descriptors are opaque here.
type OpenBookingInput struct {
	RiderID        string
	Pickup         string
	Drop           string
	PickupCoord    models.Coord
	DropCoord      models.Coord
	VehicleType    string
	EstimatedPrice decimal.Decimal
}

// OpenBooking creates a booking in OPEN state with the bidding window
// fixed at creation and arms the expiry trigger.
func (e *Engine) OpenBooking(ctx context.Context, in OpenBookingInput, now time.Time) (*models.Booking, error) {
	if in.RiderID == "" {
		return nil, fmt.Errorf("%w: rider_id required", models.ErrInvalidBid)
	}
	b := &models.Booking{
		ID:             uuid.NewString(),
		RiderID:        in.RiderID,
		Pickup:         in.Pickup,
		Drop:           in.Drop,
		PickupCoord:    in.PickupCoord,
		DropCoord:      in.DropCoord,
		VehicleType:    in.VehicleType,
		EstimatedPrice: in.EstimatedPrice,
		BiddingState:   models.BiddingOpen,
		BiddingEndTime: now.Add(e.window()),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.Store.CreateBooking(ctx, b); err != nil {
		return nil, err
	}
	observability.AuctionsOpen.Inc()
	if e.Timers != nil {
		id := b.ID
		e.Timers.Arm(id, b.BiddingEndTime, func() {
			if err := e.ResolveOnExpiry(context.Background(), id, time.Now()); err != nil {
				e.logger().Error("expiry resolution failed", "booking_id", id, "error", err)
			}
		})
	}
	return b, nil
}

// SubmitBid records a driver's bid against an open booking. A driver may
// revise their live bid by resubmitting with different values; an
// identical resubmission is rejected as a duplicate.
func (e *Engine) SubmitBid(ctx context.Context, bookingID, driverID string, amount decimal.Decimal, etaMinutes int, now time.Time) (*models.Bid, error) {
	if driverID == "" {
		observability.BidsRejectedTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: driver_id required", models.ErrInvalidBid)
	}
	if !amount.IsPositive() {
		observability.BidsRejectedTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: amount must be > 0", models.ErrInvalidBid)
	}
	if etaMinutes <= 0 {
		observability.BidsRejectedTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: eta_minutes must be > 0", models.ErrInvalidBid)
	}

	b, err := e.Store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	// the deadline check stands on its own: a stored OPEN past the window
	// is still closed
	if b.BiddingState != models.BiddingOpen || !now.Before(b.BiddingEndTime) {
		observability.BidsRejectedTotal.WithLabelValues("closed").Inc()
		return nil, fmt.Errorf("%w: booking %s is %s", models.ErrAuctionClosed, bookingID, b.BiddingState)
	}

	bid := &models.Bid{
		ID:          uuid.NewString(),
		BookingID:   bookingID,
		DriverID:    driverID,
		Amount:      amount,
		ETAMinutes:  etaMinutes,
		SubmittedAt: now,
		ExpiresAt:   now.Add(e.ttl()),
		Status:      models.BidActive,
	}
	if existing, err := e.Store.GetDriverBid(ctx, bookingID, driverID); err == nil && existing.Live(now) {
		if existing.Amount.Equal(amount) && existing.ETAMinutes == etaMinutes {
			observability.BidsRejectedTotal.WithLabelValues("duplicate").Inc()
			return nil, fmt.Errorf("%w: driver %s already has this bid on booking %s", models.ErrDuplicateBid, driverID, bookingID)
		}
		bid.ID = existing.ID // revision, not a second bid
	} else if err != nil && !errors.Is(err, models.ErrBidNotFound) {
		return nil, err
	}

	if err := e.Store.UpsertBid(ctx, bid); err != nil {
		return nil, err
	}
	observability.BidsTotal.Inc()

	e.emit(ctx, models.AuctionEvent{Type: models.EventBidPlaced, BookingID: bookingID, State: b.BiddingState, Bid: bid, At: now})
	if err := e.Notify.NotifyNewBid(ctx, bookingID, *bid); err != nil {
		e.logger().Warn("new-bid notification failed", "booking_id", bookingID, "bid_id", bid.ID, "error", err)
	}
	return bid, nil
}

// AcceptBid resolves the auction to the rider's chosen bid. The store's
// conditional update guarantees a booking is resolved at most once; a
// losing concurrent caller gets ErrAuctionAlreadyResolved.
func (e *Engine) AcceptBid(ctx context.Context, bookingID, bidID string, now time.Time) (*models.Booking, error) {
	b, err := e.Store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.BiddingState.Terminal() {
		return nil, fmt.Errorf("%w: booking %s is %s", models.ErrAuctionAlreadyResolved, bookingID, b.BiddingState)
	}
	bid, err := e.Store.GetBid(ctx, bookingID, bidID)
	if err != nil {
		return nil, err
	}
	if !bid.Live(now) {
		// an ACCEPTED or REJECTED status means the auction closed under us
		if bid.Status == models.BidAccepted || bid.Status == models.BidRejected {
			return nil, fmt.Errorf("%w: booking %s", models.ErrAuctionAlreadyResolved, bookingID)
		}
		return nil, fmt.Errorf("%w: bid %s expired at %s", models.ErrBidExpired, bidID, bid.ExpiresAt.Format(time.RFC3339))
	}

	closed, err := e.Store.CloseAuction(ctx, bookingID, bidID, models.BiddingResolved, now)
	if err != nil {
		return nil, err
	}
	if !closed {
		return nil, fmt.Errorf("%w: booking %s", models.ErrAuctionAlreadyResolved, bookingID)
	}
	e.finishClose(bookingID)
	observability.AuctionsResolvedTotal.WithLabelValues("accepted").Inc()

	bid.Status = models.BidAccepted
	e.emit(ctx, models.AuctionEvent{Type: models.EventBidAccepted, BookingID: bookingID, State: models.BiddingResolved, Bid: bid, At: now})
	if err := e.Notify.NotifyBidAccepted(ctx, bookingID, *bid); err != nil {
		e.logger().Warn("accept notification failed", "booking_id", bookingID, "bid_id", bidID, "error", err)
	}
	return e.Store.GetBooking(ctx, bookingID)
}

// ResolveOnExpiry closes the auction once the bidding window has elapsed.
// It is driven by the expiry trigger, never by a user request, and is a
// no-op when the booking is already terminal.
func (e *Engine) ResolveOnExpiry(ctx context.Context, bookingID string, now time.Time) error {
	b, err := e.Store.GetBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, models.ErrBookingNotFound) {
			return nil
		}
		return err
	}
	if b.BiddingState.Terminal() {
		return nil
	}
	if now.Before(b.BiddingEndTime) {
		return nil // early fire, the real trigger is still armed
	}

	// claim the close: exactly one resolver moves OPEN to CLOSING; if the
	// booking is already CLOSING a previous attempt died mid-close, so
	// finishing it here is safe
	claimed, err := e.Store.MarkClosing(ctx, bookingID, now)
	if err != nil {
		return err
	}
	if !claimed {
		b, err = e.Store.GetBooking(ctx, bookingID)
		if err != nil || b.BiddingState != models.BiddingClosing {
			return err
		}
	}

	var winner *models.Bid
	if e.AutoResolveOnExpiry {
		bids, err := e.Store.ListBids(ctx, bookingID)
		if err != nil {
			return err
		}
		winner = SelectWinner(bids, now)
	}

	if winner != nil {
		closed, err := e.Store.CloseAuction(ctx, bookingID, winner.ID, models.BiddingResolved, now)
		if err != nil && !errors.Is(err, models.ErrBidExpired) && !errors.Is(err, models.ErrBidNotFound) {
			return err
		}
		if closed {
			e.finishClose(bookingID)
			observability.AuctionsResolvedTotal.WithLabelValues("auto_resolved").Inc()
			winner.Status = models.BidAccepted
			e.emit(ctx, models.AuctionEvent{Type: models.EventBidAccepted, BookingID: bookingID, State: models.BiddingResolved, Bid: winner, At: now})
			if err := e.Notify.NotifyBidAccepted(ctx, bookingID, *winner); err != nil {
				e.logger().Warn("accept notification failed", "booking_id", bookingID, "bid_id", winner.ID, "error", err)
			}
			return nil
		}
		if err == nil {
			return nil // lost the race to an explicit accept
		}
		// the chosen bid expired between selection and close; fall through
	}

	closed, err := e.Store.CloseAuction(ctx, bookingID, "", models.BiddingExpired, now)
	if err != nil {
		return err
	}
	if !closed {
		return nil
	}
	e.finishClose(bookingID)
	observability.AuctionsResolvedTotal.WithLabelValues("expired").Inc()
	e.emit(ctx, models.AuctionEvent{Type: models.EventAuctionExpired, BookingID: bookingID, State: models.BiddingExpired, At: now})
	if err := e.Notify.NotifyAuctionExpired(ctx, bookingID); err != nil {
		e.logger().Warn("expiry notification failed", "booking_id", bookingID, "error", err)
	}
	return nil
}

// CancelAuction withdraws the booking before resolution. All bids are
// rejected and the state is terminal.
func (e *Engine) CancelAuction(ctx context.Context, bookingID string, now time.Time) (*models.Booking, error) {
	closed, err := e.Store.CloseAuction(ctx, bookingID, "", models.BiddingCancelled, now)
	if err != nil {
		return nil, err
	}
	if !closed {
		b, err := e.Store.GetBooking(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: booking %s is %s", models.ErrAuctionAlreadyResolved, bookingID, b.BiddingState)
	}
	e.finishClose(bookingID)
	observability.AuctionsResolvedTotal.WithLabelValues("cancelled").Inc()
	e.emit(ctx, models.AuctionEvent{Type: models.EventAuctionCancelled, BookingID: bookingID, State: models.BiddingCancelled, At: now})
	if err := e.Notify.NotifyAuctionCancelled(ctx, bookingID); err != nil {
		e.logger().Warn("cancel notification failed", "booking_id", bookingID, "error", err)
	}
	return e.Store.GetBooking(ctx, bookingID)
}

// ListBids returns every bid for the booking ordered by amount ascending.
// Individually expired bids are reported EXPIRED regardless of their
// stored status.
func (e *Engine) ListBids(ctx context.Context, bookingID string, now time.Time) ([]models.Bid, error) {
	if _, err := e.Store.GetBooking(ctx, bookingID); err != nil {
		return nil, err
	}
	bids, err := e.Store.ListBids(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	for i := range bids {
		if bids[i].Status == models.BidActive && !bids[i].ExpiresAt.After(now) {
			bids[i].Status = models.BidExpired
		}
	}
	return bids, nil
}

// GetAuctionStatus summarizes the auction for polling clients.
func (e *Engine) GetAuctionStatus(ctx context.Context, bookingID string, now time.Time) (*models.AuctionStatus, error) {
	b, err := e.Store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	bids, err := e.Store.ListBids(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	st := &models.AuctionStatus{
		BookingID:      bookingID,
		BiddingState:   b.BiddingState,
		BiddingEndTime: b.BiddingEndTime,
	}
	if b.BiddingState.Terminal() {
		st.BidCount = len(bids)
		return st, nil
	}
	for i := range bids {
		if !bids[i].Live(now) {
			continue
		}
		st.BidCount++
		if st.LowestBidAmount == nil || bids[i].Amount.LessThan(*st.LowestBidAmount) {
			amt := bids[i].Amount
			st.LowestBidAmount = &amt
		}
	}
	return st, nil
}

// finishClose cancels the expiry trigger and updates the open gauge after
// any successful terminal transition.
func (e *Engine) finishClose(bookingID string) {
	if e.Timers != nil {
		e.Timers.Cancel(bookingID)
	}
	observability.AuctionsOpen.Dec()
}

func (e *Engine) emit(ctx context.Context, ev models.AuctionEvent) {
	if e.Events == nil {
		return
	}
	if err := e.Events.Publish(ctx, ev); err != nil {
		e.logger().Warn("event publish failed", "type", ev.Type, "booking_id", ev.BookingID, "error", err)
	}
}

func (e *Engine) window() time.Duration {
	if e.BiddingWindow <= 0 {
		return 2 * time.Minute
	}
	return e.BiddingWindow
}

func (e *Engine) ttl() time.Duration {
	if e.BidTTL <= 0 {
		return 45 * time.Second
	}
	return e.BidTTL
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
