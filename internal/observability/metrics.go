package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BidsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_bidding", Name: "bids_total", Help: "Total bids accepted into open auctions"})
	BidsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_bidding", Name: "bids_rejected_total", Help: "Bid submissions rejected, by reason"},
		[]string{"reason"},
	)
	AuctionsOpen = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_bidding", Name: "auctions_open", Help: "Auctions currently accepting bids"})
	AuctionsResolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_bidding", Name: "auctions_resolved_total", Help: "Auctions closed, by outcome"},
		[]string{"outcome"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_bidding", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_bidding",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
