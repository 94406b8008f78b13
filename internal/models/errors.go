package models

import "errors"

// Error taxonomy for auction operations. Conflict errors mean the caller's
// view of the auction is stale; the HTTP layer attaches the current
// bidding state so clients can refresh and decide whether to retry.
var (
	ErrBookingNotFound        = errors.New("booking not found")
	ErrBidNotFound            = errors.New("bid not found")
	ErrInvalidBid             = errors.New("invalid bid")
	ErrDuplicateBid           = errors.New("duplicate bid")
	ErrBidExpired             = errors.New("bid expired")
	ErrAuctionClosed          = errors.New("auction closed")
	ErrAuctionAlreadyResolved = errors.New("auction already resolved")
)
