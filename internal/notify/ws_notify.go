package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/ride-bidding/internal/models"
)

var ErrNoSession = errors.New("no ws session")

// WSSession is one connected rider client.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// WSRegistry holds live rider sessions keyed by rider id.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
}

func NewWSRegistry() *WSRegistry { return &WSRegistry{sessions: make(map[string]*WSSession)} }

func (r *WSRegistry) Add(riderID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[riderID] = &WSSession{conn: conn}
}

func (r *WSRegistry) Remove(riderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, riderID)
}

func (r *WSRegistry) Send(riderID string, v interface{}) error {
	r.mu.RLock()
	s, ok := r.sessions[riderID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	if err := s.Send(v); err != nil {
		slog.Default().Warn("ws send failed", "rider_id", riderID, "error", err)
		return err
	}
	return nil
}

// RiderLookupFunc maps a booking to the rider who should hear about it.
type RiderLookupFunc func(ctx context.Context, bookingID string) (string, error)

// WSNotifier pushes auction announcements over a rider's live websocket.
// A rider without a connected session is not an error worth surfacing.
type WSNotifier struct {
	Registry *WSRegistry
	Rider    RiderLookupFunc
}

type wsMessage struct {
	Type      string              `json:"type"`
	BookingID string              `json:"booking_id"`
	State     models.BiddingState `json:"state,omitempty"`
	Bid       *models.Bid         `json:"bid,omitempty"`
}

func (w *WSNotifier) push(ctx context.Context, bookingID string, msg wsMessage) error {
	riderID, err := w.Rider(ctx, bookingID)
	if err != nil {
		return err
	}
	if err := w.Registry.Send(riderID, msg); errors.Is(err, ErrNoSession) {
		return nil
	} else if err != nil {
		return err
	}
	return nil
}

func (w *WSNotifier) NotifyNewBid(ctx context.Context, bookingID string, bid models.Bid) error {
	return w.push(ctx, bookingID, wsMessage{Type: models.EventBidPlaced, BookingID: bookingID, Bid: &bid})
}

func (w *WSNotifier) NotifyBidAccepted(ctx context.Context, bookingID string, bid models.Bid) error {
	return w.push(ctx, bookingID, wsMessage{Type: models.EventBidAccepted, BookingID: bookingID, State: models.BiddingResolved, Bid: &bid})
}

func (w *WSNotifier) NotifyAuctionExpired(ctx context.Context, bookingID string) error {
	return w.push(ctx, bookingID, wsMessage{Type: models.EventAuctionExpired, BookingID: bookingID, State: models.BiddingExpired})
}

func (w *WSNotifier) NotifyAuctionCancelled(ctx context.Context, bookingID string) error {
	return w.push(ctx, bookingID, wsMessage{Type: models.EventAuctionCancelled, BookingID: bookingID, State: models.BiddingCancelled})
}
