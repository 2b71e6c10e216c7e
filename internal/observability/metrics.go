package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "simlink"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total status HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Status HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	connectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Dial attempts towards the simulator, by outcome.",
		},
		[]string{"agent", "outcome"},
	)
	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames written to the simulator.",
		},
		[]string{"agent"},
	)
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames read from the simulator.",
		},
		[]string{"agent"},
	)
	sendFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Batches lost to write errors.",
		},
		[]string{"agent"},
	)
	sendDeferred = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_deferred_total",
			Help:      "Flushes skipped because inbound data was pending.",
		},
		[]string{"agent"},
	)
	barrierNudges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "barrier_nudges_total",
			Help:      "Sync markers sent to peers while waiting on the startup barrier.",
		},
		[]string{"agent"},
	)
	entitiesSeen = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_total",
			Help:      "Visual entities classified, by kind.",
		},
		[]string{"kind"},
	)
	malformedEntities = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_entities_total",
			Help:      "Perception objects dropped because they failed to parse.",
		},
	)
	parseDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "perception_parse_seconds",
			Help:      "Time spent extracting and classifying one perception frame.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			connectAttempts,
			framesSent,
			framesReceived,
			sendFailures,
			sendDeferred,
			barrierNudges,
			entitiesSeen,
			malformedEntities,
			parseDuration,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordConnectAttempt(agent string, ok bool) {
	RegisterMetrics()
	outcome := "refused"
	if ok {
		outcome = "connected"
	}
	connectAttempts.WithLabelValues(agent, outcome).Inc()
}

func RecordFrameSent(agent string) {
	RegisterMetrics()
	framesSent.WithLabelValues(agent).Inc()
}

func RecordFrameReceived(agent string) {
	RegisterMetrics()
	framesReceived.WithLabelValues(agent).Inc()
}

func RecordSendFailure(agent string) {
	RegisterMetrics()
	sendFailures.WithLabelValues(agent).Inc()
}

func RecordSendDeferred(agent string) {
	RegisterMetrics()
	sendDeferred.WithLabelValues(agent).Inc()
}

func RecordBarrierNudge(agent string) {
	RegisterMetrics()
	barrierNudges.WithLabelValues(agent).Inc()
}

func RecordPerception(kinds map[string]int, dropped int, duration time.Duration) {
	RegisterMetrics()
	for kind, n := range kinds {
		entitiesSeen.WithLabelValues(kind).Add(float64(n))
	}
	if dropped > 0 {
		malformedEntities.Add(float64(dropped))
	}
	parseDuration.Observe(duration.Seconds())
}
