package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BiddingState is the auction lifecycle state of a booking.
type BiddingState string

const (
	BiddingOpen      BiddingState = "OPEN"
	BiddingClosing   BiddingState = "CLOSING" // transient: claimed by the expiry resolver
	BiddingResolved  BiddingState = "RESOLVED"
	BiddingExpired   BiddingState = "EXPIRED"
	BiddingCancelled BiddingState = "CANCELLED"
)

// Terminal reports whether no further transitions may leave the state.
func (s BiddingState) Terminal() bool {
	return s == BiddingResolved || s == BiddingExpired || s == BiddingCancelled
}

// BidStatus is the stored status of a single bid. The stored value is a
// cache: a bid with ExpiresAt <= now is expired no matter what it says.
type BidStatus string

const (
	BidActive   BidStatus = "ACTIVE"
	BidExpired  BidStatus = "EXPIRED"
	BidAccepted BidStatus = "ACCEPTED"
	BidRejected BidStatus = "REJECTED"
)

// Booking is the subject of an auction. Pickup/drop descriptors are opaque
// to this service; they exist for display only.
type Booking struct {
	ID             string          `json:"id"`
	RiderID        string          `json:"rider_id"`
	Pickup         string          `json:"pickup"`
	Drop           string          `json:"drop"`
	PickupCoord    Coord           `json:"pickup_coord"`
	DropCoord      Coord           `json:"drop_coord"`
	VehicleType    string          `json:"vehicle_type"`
	EstimatedPrice decimal.Decimal `json:"estimated_price"`
	BiddingState   BiddingState    `json:"bidding_state"`
	BiddingEndTime time.Time       `json:"bidding_end_time"` // immutable once set
	WinningBidID   string          `json:"winning_bid_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type Bid struct {
	ID          string          `json:"id"`
	BookingID   string          `json:"booking_id"`
	DriverID    string          `json:"driver_id"`
	Amount      decimal.Decimal `json:"amount"`
	ETAMinutes  int             `json:"eta_minutes"`
	SubmittedAt time.Time       `json:"submitted_at"` // server-assigned
	ExpiresAt   time.Time       `json:"expires_at"`   // SubmittedAt + bid TTL
	Status      BidStatus       `json:"status"`
}

// Live reports whether the bid is accept-eligible at the given instant.
func (b *Bid) Live(now time.Time) bool {
	return b.Status == BidActive && b.ExpiresAt.After(now)
}

// AuctionStatus is the poll-friendly snapshot served to clients.
type AuctionStatus struct {
	BookingID       string           `json:"booking_id"`
	BiddingState    BiddingState     `json:"bidding_state"`
	BiddingEndTime  time.Time        `json:"bidding_end_time"`
	BidCount        int              `json:"bid_count"`
	LowestBidAmount *decimal.Decimal `json:"lowest_bid_amount,omitempty"`
}

// AuctionEvent is the record published to the event stream after a
// committed transition.
type AuctionEvent struct {
	Type      string       `json:"type"`
	BookingID string       `json:"booking_id"`
	State     BiddingState `json:"state"`
	Bid       *Bid         `json:"bid,omitempty"`
	At        time.Time    `json:"at"`
}

const (
	EventBidPlaced        = "bid_placed"
	EventBidAccepted      = "bid_accepted"
	EventAuctionExpired   = "auction_expired"
	EventAuctionCancelled = "auction_cancelled"
)
