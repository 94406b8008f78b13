package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/example/ride-bidding/internal/auction"
	"github.com/example/ride-bidding/internal/cache"
	"github.com/example/ride-bidding/internal/config"
	"github.com/example/ride-bidding/internal/ingest"
	"github.com/example/ride-bidding/internal/models"
	"github.com/example/ride-bidding/internal/notify"
	"github.com/example/ride-bidding/internal/store"
)

type Server struct {
	Engine *auction.Engine
	Cache  *cache.StatusCache // optional fast path for status polling
	WSReg  *notify.WSRegistry

	mux    *mux.Router
	logger *slog.Logger
}

// NewServer wires the auction engine from config: Postgres when PG_DSN is
// set (memory store otherwise), Kafka events and the Redis status cache
// when their endpoints are configured.
func NewServer(cfg config.ServerConfig, logger *slog.Logger) (*Server, error) {
	var st store.AuctionStore
	if cfg.PGDSN != "" {
		ps, err := store.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		st = ps
	} else {
		st = store.NewMemoryStore()
	}

	wsreg := notify.NewWSRegistry()
	notifiers := notify.Multi{
		&notify.WSNotifier{
			Registry: wsreg,
			Rider: func(ctx context.Context, bookingID string) (string, error) {
				b, err := st.GetBooking(ctx, bookingID)
				if err != nil {
					return "", err
				}
				return b.RiderID, nil
			},
		},
	}
	if cfg.NotifyEndpoint != "" {
		notifiers = append(notifiers, notify.NewPushNotifier(cfg.NotifyEndpoint, cfg.NotifyKey))
	}
	notifiers = append(notifiers, &notify.LogNotifier{Logger: logger})

	eng := &auction.Engine{
		Store:               st,
		Notify:              notifiers,
		Timers:              auction.NewScheduler(),
		Logger:              logger,
		BiddingWindow:       cfg.BiddingWindow,
		BidTTL:              cfg.BidTTL,
		AutoResolveOnExpiry: cfg.AutoResolveOnExpiry,
	}
	if len(cfg.KafkaBrokers) > 0 {
		eng.Events = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	var sc *cache.StatusCache
	if cfg.RedisAddr != "" {
		sc = cache.NewStatusCache(cfg.RedisAddr, cfg.RedisPassword, cfg.StatusCacheTTL)
	}

	s := &Server{Engine: eng, Cache: sc, WSReg: wsreg, mux: mux.NewRouter(), logger: logger}
	s.registerMiddleware()
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/bookings", s.handleOpenBooking).Methods("POST")
	s.mux.HandleFunc("/api/v1/bookings/{booking_id}/bids", s.handleSubmitBid).Methods("POST")
	s.mux.HandleFunc("/api/v1/bookings/{booking_id}/bids", s.handleListBids).Methods("GET")
	s.mux.HandleFunc("/api/v1/bookings/{booking_id}/bids/{bid_id}/accept", s.handleAcceptBid).Methods("POST")
	s.mux.HandleFunc("/api/v1/bookings/{booking_id}/cancel", s.handleCancel).Methods("POST")
	s.mux.HandleFunc("/api/v1/bookings/{booking_id}/auction", s.handleAuctionStatus).Methods("GET")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{rider_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type openBookingRequest struct {
	RiderID        string          `json:"rider_id"`
	Pickup         string          `json:"pickup"`
	Drop           string          `json:"drop"`
	PickupCoord    models.Coord    `json:"pickup_coord"`
	DropCoord      models.Coord    `json:"drop_coord"`
	VehicleType    string          `json:"vehicle_type"`
	EstimatedPrice decimal.Decimal `json:"estimated_price"`
}

func (s *Server) handleOpenBooking(w http.ResponseWriter, r *http.Request) {
	var req openBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b, err := s.Engine.OpenBooking(r.Context(), auction.OpenBookingInput{
		RiderID:        req.RiderID,
		Pickup:         req.Pickup,
		Drop:           req.Drop,
		PickupCoord:    req.PickupCoord,
		DropCoord:      req.DropCoord,
		VehicleType:    req.VehicleType,
		EstimatedPrice: req.EstimatedPrice,
	}, time.Now())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

type submitBidRequest struct {
	DriverID   string          `json:"driver_id"`
	Amount     decimal.Decimal `json:"amount"`
	ETAMinutes int             `json:"eta_minutes"`
}

func (s *Server) handleSubmitBid(w http.ResponseWriter, r *http.Request) {
	bookingID := mux.Vars(r)["booking_id"]
	var req submitBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	bid, err := s.Engine.SubmitBid(r.Context(), bookingID, req.DriverID, req.Amount, req.ETAMinutes, time.Now())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bid)
}

func (s *Server) handleListBids(w http.ResponseWriter, r *http.Request) {
	bookingID := mux.Vars(r)["booking_id"]
	bids, err := s.Engine.ListBids(r.Context(), bookingID, time.Now())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"booking_id": bookingID, "bids": bids})
}

func (s *Server) handleAcceptBid(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	b, err := s.Engine.AcceptBid(r.Context(), vars["booking_id"], vars["bid_id"], time.Now())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	bookingID := mux.Vars(r)["booking_id"]
	b, err := s.Engine.CancelAuction(r.Context(), bookingID, time.Now())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleAuctionStatus(w http.ResponseWriter, r *http.Request) {
	bookingID := mux.Vars(r)["booking_id"]
	if s.Cache != nil {
		if st, err := s.Cache.Get(r.Context(), bookingID); err == nil && st != nil {
			writeJSON(w, http.StatusOK, st)
			return
		}
	}
	st, err := s.Engine.GetAuctionStatus(r.Context(), bookingID, time.Now())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if s.Cache != nil {
		if err := s.Cache.Set(r.Context(), st); err != nil {
			s.logger.Warn("status cache fill failed", "booking_id", bookingID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, st)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["rider_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.WSReg.Add(id, conn)
}

type errorResponse struct {
	Error        string              `json:"error"`
	BiddingState models.BiddingState `json:"bidding_state,omitempty"`
}

// writeError maps the error taxonomy onto status codes. Conflict responses
// carry the booking's current state so a stale client can refresh.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrInvalidBid):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrBookingNotFound), errors.Is(err, models.ErrBidNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrDuplicateBid), errors.Is(err, models.ErrAuctionAlreadyResolved), errors.Is(err, models.ErrBidExpired):
		status = http.StatusConflict
	case errors.Is(err, models.ErrAuctionClosed):
		status = http.StatusGone
	default:
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
