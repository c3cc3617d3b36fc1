package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "parkaro"

var (
	once sync.Once

	checkIns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkins_total",
			Help:      "Check-in attempts by result.",
		},
		[]string{"result"},
	)

	checkOuts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Completed check-outs.",
		},
	)

	revenue = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revenue_total",
			Help:      "Sum of amounts billed at check-out.",
		},
	)

	slots = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "slots",
			Help:      "Slots by state in the latest occupancy snapshot.",
		},
		[]string{"state"},
	)

	sensorDegraded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_degraded",
			Help:      "1 while the occupancy sensor is unavailable.",
		},
	)

	reconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of one occupancy reconciliation cycle.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 3},
		},
	)

	chargingUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "charging_updates_total",
			Help:      "Charge-level updates by outcome.",
		},
		[]string{"outcome"},
	)

	staleSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stale_sessions",
			Help:      "Active parking sessions older than the stale threshold.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(checkIns, checkOuts, revenue, slots, sensorDegraded,
			reconcileDuration, chargingUpdates, staleSessions)
	})
}

func IncCheckIn(result string) {
	checkIns.WithLabelValues(result).Inc()
}

func ObserveCheckOut(amount float64) {
	checkOuts.Inc()
	if amount > 0 {
		revenue.Add(amount)
	}
}

func SetSlots(free, occupied int) {
	slots.WithLabelValues("free").Set(float64(free))
	slots.WithLabelValues("occupied").Set(float64(occupied))
}

func SetSensorDegraded(degraded bool) {
	if degraded {
		sensorDegraded.Set(1)
		return
	}
	sensorDegraded.Set(0)
}

func ObserveReconcile(seconds float64) {
	reconcileDuration.Observe(seconds)
}

func IncChargingUpdate(outcome string) {
	chargingUpdates.WithLabelValues(outcome).Inc()
}

func SetStaleSessions(n int) {
	staleSessions.Set(float64(n))
}
