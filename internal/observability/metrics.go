package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// lifecycleTransitions counts committed lifecycle transitions by edge.
	lifecycleTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_transitions_total",
			Help: "Committed service request status transitions.",
		},
		[]string{"from", "to"},
	)

	// lifecycleRejections counts lifecycle operations that failed, by
	// operation and error kind (not_found, conflict, forbidden, validation, internal).
	lifecycleRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_rejections_total",
			Help: "Rejected lifecycle operations by operation and error kind.",
		},
		[]string{"op", "kind"},
	)

	// notificationFailures counts notification dispatches that errored.
	// Failures never fail the transition that triggered them.
	notificationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_dispatch_failures_total",
			Help: "Notification dispatch attempts that returned an error.",
		},
	)
)

func init() {
	prometheus.MustRegister(lifecycleTransitions, lifecycleRejections, notificationFailures)
}

// RecordTransition increments the transition counter for from -> to.
func RecordTransition(from, to string) {
	lifecycleTransitions.WithLabelValues(from, to).Inc()
}

// RecordRejection increments the rejection counter for op and kind.
func RecordRejection(op, kind string) {
	lifecycleRejections.WithLabelValues(op, kind).Inc()
}

// RecordDispatchFailure increments the notification failure counter.
func RecordDispatchFailure() {
	notificationFailures.Inc()
}
