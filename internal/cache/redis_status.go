package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/example/ride-bidding/internal/models"
)

// StatusCache mirrors auction status snapshots into Redis for polling UIs.
// It is a read-through convenience, never the source of truth: a miss or a
// stale entry just falls back to the store.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStatusCache(addr, password string, ttl time.Duration) *StatusCache {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &StatusCache{client: c, ttl: ttl}
}

func statusKey(bookingID string) string { return "auction:status:" + bookingID }

func (s *StatusCache) Set(ctx context.Context, st *models.AuctionStatus) error {
	vals := map[string]interface{}{
		"state":     string(st.BiddingState),
		"end_time":  st.BiddingEndTime.Format(time.RFC3339Nano),
		"bid_count": strconv.Itoa(st.BidCount),
	}
	if st.LowestBidAmount != nil {
		vals["lowest_bid"] = st.LowestBidAmount.String()
	}
	key := statusKey(st.BookingID)
	if err := s.client.HSet(ctx, key, vals).Err(); err != nil {
		return err
	}
	return s.client.Expire(ctx, key, s.ttl).Err()
}

// Get returns the cached snapshot, or (nil, nil) on a miss.
func (s *StatusCache) Get(ctx context.Context, bookingID string) (*models.AuctionStatus, error) {
	m, err := s.client.HGetAll(ctx, statusKey(bookingID)).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, nil
	}
	st := &models.AuctionStatus{BookingID: bookingID, BiddingState: models.BiddingState(m["state"])}
	if v, ok := m["end_time"]; ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.BiddingEndTime = t
		}
	}
	if v, ok := m["bid_count"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			st.BidCount = n
		}
	}
	if v, ok := m["lowest_bid"]; ok {
		if d, err := decimal.NewFromString(v); err == nil {
			st.LowestBidAmount = &d
		}
	}
	return st, nil
}

func (s *StatusCache) Close() error { return s.client.Close() }
