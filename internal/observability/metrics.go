package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	framesDecoded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "klimate",
			Subsystem: "link",
			Name:      "frames_decoded_total",
			Help:      "Status frames decoded from the HVAC unit.",
		},
	)
	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "klimate",
			Subsystem: "link",
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped as malformed.",
		},
		[]string{"reason"},
	)
	reconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "klimate",
			Subsystem: "link",
			Name:      "reconnect_attempts_total",
			Help:      "Reconnect attempts to the HVAC unit.",
		},
	)
	commandsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "klimate",
			Subsystem: "control",
			Name:      "commands_sent_total",
			Help:      "Setpoint command frames transmitted.",
		},
	)
	requestTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "klimate",
			Subsystem: "control",
			Name:      "request_timeouts_total",
			Help:      "Outstanding requests that hit the response timeout.",
		},
	)
	unsolicitedStatus = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "klimate",
			Subsystem: "control",
			Name:      "unsolicited_status_total",
			Help:      "Status frames received with no request outstanding.",
		},
	)
	commandRoundTrip = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "klimate",
			Subsystem: "control",
			Name:      "command_round_trip_seconds",
			Help:      "Send-to-status latency for correlated requests.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			framesDecoded, framesDropped, reconnects,
			commandsSent, requestTimeouts, unsolicitedStatus, commandRoundTrip,
		)
	})
}

func RecordFrameDecoded() {
	RegisterMetrics()
	framesDecoded.Inc()
}

func RecordFrameDropped(reason string) {
	RegisterMetrics()
	framesDropped.WithLabelValues(reason).Inc()
}

func RecordReconnectAttempt() {
	RegisterMetrics()
	reconnects.Inc()
}

func RecordCommandSent() {
	RegisterMetrics()
	commandsSent.Inc()
}

func RecordRequestTimeout() {
	RegisterMetrics()
	requestTimeouts.Inc()
}

func RecordUnsolicitedStatus() {
	RegisterMetrics()
	unsolicitedStatus.Inc()
}

func RecordCommandRoundTrip(d time.Duration) {
	RegisterMetrics()
	commandRoundTrip.Observe(d.Seconds())
}
