package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/ride-bidding/internal/models"
)

// AuctionStore defines persistence for bookings and their bids.
//
// MarkClosing and CloseAuction are the conditional-update primitives the
// engine relies on: each succeeds for exactly one caller when racing, so a
// booking leaves OPEN/CLOSING exactly once.
type AuctionStore interface {
	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)

	// UpsertBid inserts the bid or replaces the driver's existing bid on
	// the same booking. Writes for the same (booking, driver) pair are
	// serialized by the store.
	UpsertBid(ctx context.Context, bid *models.Bid) error
	GetBid(ctx context.Context, bookingID, bidID string) (*models.Bid, error)
	GetDriverBid(ctx context.Context, bookingID, driverID string) (*models.Bid, error)
	// ListBids returns all bids for the booking ordered by amount
	// ascending, ties by earliest submission.
	ListBids(ctx context.Context, bookingID string) ([]models.Bid, error)

	// MarkClosing transitions the booking from OPEN to CLOSING. Returns
	// false without error if the booking is not OPEN.
	MarkClosing(ctx context.Context, bookingID string, now time.Time) (bool, error)

	// CloseAuction atomically moves the booking from OPEN or CLOSING into
	// the given terminal state. For RESOLVED, winningBidID must name a bid
	// that is still ACTIVE with expires_at > now; it becomes ACCEPTED and
	// every other ACTIVE bid becomes REJECTED. For EXPIRED, remaining
	// ACTIVE bids become EXPIRED; for CANCELLED, REJECTED.
	//
	// Returns false without error if the booking is already terminal.
	// Returns models.ErrBidExpired or models.ErrBidNotFound if the chosen
	// winner is no longer eligible (the booking is left untouched).
	CloseAuction(ctx context.Context, bookingID, winningBidID string, state models.BiddingState, now time.Time) (bool, error)
}

type MemoryStore struct {
	mu       sync.RWMutex
	bookings map[string]*models.Booking
	bids     map[string]map[string]*models.Bid // bookingID -> bidID -> bid
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings: make(map[string]*models.Booking),
		bids:     make(map[string]map[string]*models.Bid),
	}
}

func (m *MemoryStore) CreateBooking(ctx context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.bookings[b.ID] = &cp
	return nil
}

func (m *MemoryStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, models.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) UpsertBid(ctx context.Context, bid *models.Bid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[bid.BookingID]; !ok {
		return models.ErrBookingNotFound
	}
	byID := m.bids[bid.BookingID]
	if byID == nil {
		byID = make(map[string]*models.Bid)
		m.bids[bid.BookingID] = byID
	}
	// one bid per driver: drop any previous bid by the same driver
	for id, existing := range byID {
		if existing.DriverID == bid.DriverID && id != bid.ID {
			delete(byID, id)
		}
	}
	cp := *bid
	byID[bid.ID] = &cp
	return nil
}

func (m *MemoryStore) GetBid(ctx context.Context, bookingID, bidID string) (*models.Bid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bids[bookingID][bidID]
	if !ok {
		return nil, models.ErrBidNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) GetDriverBid(ctx context.Context, bookingID, driverID string) (*models.Bid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.bids[bookingID] {
		if b.DriverID == driverID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, models.ErrBidNotFound
}

func (m *MemoryStore) ListBids(ctx context.Context, bookingID string) ([]models.Bid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Bid, 0, len(m.bids[bookingID]))
	for _, b := range m.bids[bookingID] {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Amount.Equal(out[j].Amount) {
			return out[i].Amount.LessThan(out[j].Amount)
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out, nil
}

func (m *MemoryStore) MarkClosing(ctx context.Context, bookingID string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok {
		return false, models.ErrBookingNotFound
	}
	if b.BiddingState != models.BiddingOpen {
		return false, nil
	}
	b.BiddingState = models.BiddingClosing
	b.UpdatedAt = now
	return true, nil
}

func (m *MemoryStore) CloseAuction(ctx context.Context, bookingID, winningBidID string, state models.BiddingState, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok {
		return false, models.ErrBookingNotFound
	}
	if b.BiddingState != models.BiddingOpen && b.BiddingState != models.BiddingClosing {
		return false, nil
	}

	if state == models.BiddingResolved {
		winner, ok := m.bids[bookingID][winningBidID]
		if !ok {
			return false, models.ErrBidNotFound
		}
		if !winner.Live(now) {
			return false, models.ErrBidExpired
		}
		winner.Status = models.BidAccepted
		b.WinningBidID = winningBidID
	}

	loserStatus := models.BidRejected
	if state == models.BiddingExpired {
		loserStatus = models.BidExpired
	}
	for id, bid := range m.bids[bookingID] {
		if id == winningBidID && state == models.BiddingResolved {
			continue
		}
		if bid.Status == models.BidActive {
			bid.Status = loserStatus
		}
	}

	b.BiddingState = state
	b.UpdatedAt = now
	return true, nil
}
