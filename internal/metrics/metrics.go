package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "yoyaku"

// Reservation outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeConflict = "conflict"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	reservationAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_attempts_total",
			Help:      "Reservation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	lockWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "item_lock_wait_seconds",
			Help:      "Time spent waiting for an item lock.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		},
	)

	noticeDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notice_deliveries_total",
			Help:      "Notice broadcast deliveries by channel and result.",
		},
		[]string{"channel", "result"},
	)

	syncTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sheets_sync_tasks_total",
			Help:      "Sheets sync tasks by result.",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, reservationAttempts, lockWait, noticeDeliveries, syncTasks)
	})
}

func IncHTTP(route, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}

func IncReservation(outcome string) {
	reservationAttempts.WithLabelValues(outcome).Inc()
}

func ObserveLockWait(d time.Duration) {
	lockWait.Observe(d.Seconds())
}

func IncNoticeDelivery(channel string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	noticeDeliveries.WithLabelValues(channel, result).Inc()
}

func IncSyncTask(result string) {
	syncTasks.WithLabelValues(result).Inc()
}
