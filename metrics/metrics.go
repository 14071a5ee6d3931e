// Package metrics holds the jackpot's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicketsSold = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jackpot_tickets_sold_total",
		Help: "Tickets sold across all rounds.",
	})

	PurchaseFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jackpot_purchase_failures_total",
		Help: "Rejected ticket purchases by error code.",
	}, []string{"code"})

	Draws = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jackpot_draws_total",
		Help: "Draw executions by method and outcome.",
	}, []string{"method", "outcome"})

	DrawDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "jackpot_draw_duration_seconds",
		Help:    "Time from the drawing transition to the committed result.",
		Buckets: prometheus.DefBuckets,
	})

	PrizePayouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jackpot_prize_payouts_total",
		Help: "Per-winner prize credits by outcome.",
	}, []string{"outcome"})

	RoundProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jackpot_round_progress_ratio",
		Help: "Tickets sold over capacity for the current round.",
	})

	StreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jackpot_stream_clients",
		Help: "Connected live-feed clients.",
	})

	StreamDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jackpot_stream_dropped_total",
		Help: "Live-feed frames dropped because a client was too slow.",
	})
)
