package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/ride-bidding/internal/config"
	"github.com/example/ride-bidding/internal/models"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.ServerConfig{
		BiddingWindow:       2 * time.Minute,
		BidTTL:              45 * time.Second,
		AutoResolveOnExpiry: true,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewServer(cfg, logger)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return s
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func openTestBooking(t *testing.T, s *Server) models.Booking {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/api/v1/bookings", map[string]any{
		"rider_id":        "r1",
		"pickup":          "MG Road",
		"drop":            "Airport",
		"vehicle_type":    "sedan",
		"estimated_price": "250",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("open booking: status %d body %s", w.Code, w.Body.String())
	}
	var b models.Booking
	if err := json.Unmarshal(w.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode booking: %v", err)
	}
	return b
}

func submitTestBid(t *testing.T, s *Server, bookingID, driverID, amount string) models.Bid {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/api/v1/bookings/"+bookingID+"/bids", map[string]any{
		"driver_id":   driverID,
		"amount":      amount,
		"eta_minutes": 4,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("submit bid: status %d body %s", w.Code, w.Body.String())
	}
	var b models.Bid
	if err := json.Unmarshal(w.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode bid: %v", err)
	}
	return b
}

func TestBookingBidAcceptFlow(t *testing.T) {
	s := newTestServer(t)
	b := openTestBooking(t, s)
	if b.BiddingState != models.BiddingOpen {
		t.Fatalf("expected OPEN, got %s", b.BiddingState)
	}

	bid1 := submitTestBid(t, s, b.ID, "d1", "100")
	submitTestBid(t, s, b.ID, "d2", "90")

	w := doJSON(t, s, http.MethodGet, "/api/v1/bookings/"+b.ID+"/bids", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list bids: %d", w.Code)
	}
	var listed struct {
		Bids []models.Bid `json:"bids"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Bids) != 2 || listed.Bids[0].DriverID != "d2" {
		t.Fatalf("expected d2 first (lowest), got %+v", listed.Bids)
	}

	w = doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%s/bids/%s/accept", b.ID, bid1.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("accept: status %d body %s", w.Code, w.Body.String())
	}
	var resolved models.Booking
	if err := json.Unmarshal(w.Body.Bytes(), &resolved); err != nil {
		t.Fatalf("decode resolved: %v", err)
	}
	if resolved.BiddingState != models.BiddingResolved || resolved.WinningBidID != bid1.ID {
		t.Fatalf("resolved booking: %+v", resolved)
	}

	// second accept conflicts and reports it
	w = doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%s/bids/%s/accept", b.ID, bid1.ID), nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("second accept: expected 409, got %d", w.Code)
	}
}

func TestSubmitBidErrorMapping(t *testing.T) {
	s := newTestServer(t)
	b := openTestBooking(t, s)

	w := doJSON(t, s, http.MethodPost, "/api/v1/bookings/"+b.ID+"/bids", map[string]any{
		"driver_id": "d1", "amount": "0", "eta_minutes": 4,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid amount: expected 400, got %d", w.Code)
	}

	w = doJSON(t, s, http.MethodPost, "/api/v1/bookings/nope/bids", map[string]any{
		"driver_id": "d1", "amount": "90", "eta_minutes": 4,
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown booking: expected 404, got %d", w.Code)
	}

	submitTestBid(t, s, b.ID, "d1", "90")
	w = doJSON(t, s, http.MethodPost, "/api/v1/bookings/"+b.ID+"/bids", map[string]any{
		"driver_id": "d1", "amount": "90", "eta_minutes": 4,
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate bid: expected 409, got %d", w.Code)
	}
}

func TestCancelEndpointClosesAuction(t *testing.T) {
	s := newTestServer(t)
	b := openTestBooking(t, s)
	submitTestBid(t, s, b.ID, "d1", "100")

	w := doJSON(t, s, http.MethodPost, "/api/v1/bookings/"+b.ID+"/cancel", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: status %d", w.Code)
	}
	var cancelled models.Booking
	if err := json.Unmarshal(w.Body.Bytes(), &cancelled); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cancelled.BiddingState != models.BiddingCancelled {
		t.Fatalf("expected CANCELLED, got %s", cancelled.BiddingState)
	}

	// bidding against a cancelled auction is gone
	w = doJSON(t, s, http.MethodPost, "/api/v1/bookings/"+b.ID+"/bids", map[string]any{
		"driver_id": "d2", "amount": "80", "eta_minutes": 3,
	})
	if w.Code != http.StatusGone {
		t.Fatalf("bid after cancel: expected 410, got %d", w.Code)
	}
}

func TestAuctionStatusEndpoint(t *testing.T) {
	s := newTestServer(t)
	b := openTestBooking(t, s)
	submitTestBid(t, s, b.ID, "d1", "100")
	submitTestBid(t, s, b.ID, "d2", "90")

	w := doJSON(t, s, http.MethodGet, "/api/v1/bookings/"+b.ID+"/auction", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	var st models.AuctionStatus
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.BiddingState != models.BiddingOpen || st.BidCount != 2 {
		t.Fatalf("status: %+v", st)
	}
	if st.LowestBidAmount == nil || st.LowestBidAmount.String() != "90" {
		t.Fatalf("lowest bid: %v", st.LowestBidAmount)
	}

	w = doJSON(t, s, http.MethodGet, "/api/v1/bookings/nope/auction", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown booking status: expected 404, got %d", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("healthz: %d", w.Code)
	}
}
