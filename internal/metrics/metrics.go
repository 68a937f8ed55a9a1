// Package metrics declares the Prometheus collectors of the press notifier.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pressTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "press_notifier_presses_total",
		Help: "Press events seen by the dispatch worker by result (accepted, rejected, unknown)",
	}, []string{"result"})

	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "press_notifier_dispatch_total",
		Help: "Outbound action attempts by source and result (success, retry, dropped)",
	}, []string{"source", "result"})

	dispatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "press_notifier_dispatch_latency_seconds",
		Help:    "Duration of outbound action calls",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms .. ~100s
	})

	pollTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "press_notifier_poll_total",
		Help: "Long-poll calls by result (new, empty, malformed, error)",
	}, []string{"result"})

	pollCursor = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "press_notifier_poll_cursor",
		Help: "Current long-poll cursor offset",
	})

	alertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "press_notifier_alerts_total",
		Help: "Alert transitions on the status indicator",
	})

	workerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "press_notifier_worker_state",
		Help: "Current named state per worker (1 for the active state, 0 otherwise)",
	}, []string{"worker", "state"})
)

// RecordPress counts a press decision.
func RecordPress(result string) {
	pressTotal.WithLabelValues(result).Inc()
}

// RecordDispatch counts an outbound action attempt.
func RecordDispatch(source, result string) {
	dispatchTotal.WithLabelValues(source, result).Inc()
}

// ObserveDispatchLatency records how long an outbound call took.
func ObserveDispatchLatency(seconds float64) {
	dispatchLatency.Observe(seconds)
}

// RecordPoll counts a long-poll outcome.
func RecordPoll(result string) {
	pollTotal.WithLabelValues(result).Inc()
}

// SetPollCursor exports the long-poll cursor.
func SetPollCursor(offset int64) {
	pollCursor.Set(float64(offset))
}

// RecordAlert counts an alert transition.
func RecordAlert() {
	alertsTotal.Inc()
}

var workerStates = []string{"IDLE", "AWAITING_RESPONSE", "BACKING_OFF", "STOPPED"}

// SetWorkerState records the active named state for a worker.
func SetWorkerState(worker, state string) {
	for _, s := range workerStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		workerState.WithLabelValues(worker, s).Set(value)
	}
}

// RegisterDropped exports the capture drop counter, read on scrape so the
// edge handler never touches a collector.
func RegisterDropped(reg prometheus.Registerer, dropped func() uint64) error {
	return reg.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "press_notifier_presses_dropped_total",
		Help: "Edges dropped because the event channel was full",
	}, func() float64 {
		return float64(dropped())
	}))
}
