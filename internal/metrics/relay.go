package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		fetchTotal,
		newItemsTotal,
		watermarkGauge,
		deliveriesTotal,
		destinationsGauge,
		membershipTotal,
		tickDuration,
	)
}

var (
	fetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsrelay_fetch_total",
			Help: "News endpoint requests by result (ok/error).",
		},
		[]string{"result"},
	)

	newItemsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "newsrelay_news_items_new_total",
			Help: "News items found above the watermark.",
		},
	)

	watermarkGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "newsrelay_watermark",
			Help: "Highest news item id processed.",
		},
	)

	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsrelay_deliveries_total",
			Help: "Per-destination delivery attempts by result (ok/error).",
		},
		[]string{"result"},
	)

	destinationsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "newsrelay_destinations",
			Help: "Registered broadcast destinations.",
		},
	)

	membershipTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsrelay_membership_changes_total",
			Help: "Destination registry changes caused by membership events (join/leave).",
		},
		[]string{"change"},
	)

	tickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "newsrelay_tick_duration_seconds",
			Help:    "Duration of one poll loop tick (fetch plus broadcast).",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
)

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

func ObserveFetch(ok bool) { fetchTotal.WithLabelValues(result(ok)).Inc() }

func AddNewItems(n int) {
	if n > 0 {
		newItemsTotal.Add(float64(n))
	}
}

func SetWatermark(id int64) { watermarkGauge.Set(float64(id)) }

func ObserveDelivery(ok bool) { deliveriesTotal.WithLabelValues(result(ok)).Inc() }

func SetDestinations(n int) { destinationsGauge.Set(float64(n)) }

func IncMembership(change string) { membershipTotal.WithLabelValues(change).Inc() }

func ObserveTick(d time.Duration) { tickDuration.Observe(d.Seconds()) }
