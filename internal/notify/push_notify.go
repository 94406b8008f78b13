package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/ride-bidding/internal/models"
)

// PushNotifier posts auction announcements as JSON to an external delivery
// backend (push gateway, SMS bridge, whatever answers at the endpoint).
type PushNotifier struct {
	Endpoint string
	Key      string
	Client   *http.Client
}

func NewPushNotifier(endpoint, key string) *PushNotifier {
	return &PushNotifier{Endpoint: endpoint, Key: key, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (p *PushNotifier) post(ctx context.Context, payload map[string]interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.Key != "" {
		req.Header.Set("Authorization", "Bearer "+p.Key)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("push endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (p *PushNotifier) NotifyNewBid(ctx context.Context, bookingID string, bid models.Bid) error {
	return p.post(ctx, map[string]interface{}{"type": models.EventBidPlaced, "booking_id": bookingID, "bid": bid})
}

func (p *PushNotifier) NotifyBidAccepted(ctx context.Context, bookingID string, bid models.Bid) error {
	return p.post(ctx, map[string]interface{}{"type": models.EventBidAccepted, "booking_id": bookingID, "bid": bid})
}

func (p *PushNotifier) NotifyAuctionExpired(ctx context.Context, bookingID string) error {
	return p.post(ctx, map[string]interface{}{"type": models.EventAuctionExpired, "booking_id": bookingID})
}

func (p *PushNotifier) NotifyAuctionCancelled(ctx context.Context, bookingID string) error {
	return p.post(ctx, map[string]interface{}{"type": models.EventAuctionCancelled, "booking_id": bookingID})
}
