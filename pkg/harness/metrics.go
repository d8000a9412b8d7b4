package harness

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	connectionsStarted   prometheus.Counter
	connectionsCompleted *prometheus.CounterVec
	connectionsInFlight  *prometheus.GaugeVec
	connectionDuration   *prometheus.HistogramVec
	timeToFirstByte      prometheus.Histogram
	bytesSent            prometheus.Counter
	bytesReceived        prometheus.Counter
	chunksReceived       prometheus.Counter
	wouldBlock           *prometheus.CounterVec
	runsCompleted        prometheus.Counter
}

func newMetrics(r prometheus.Registerer) *metrics {
	m := &metrics{}

	m.connectionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "connburst_connections_started_total",
		Help: "Total number of connection workers started.",
	})
	m.connectionsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "connburst_connections_completed_total",
		Help: "Total number of connection workers that reached a terminal state.",
	}, []string{"state", "phase"})
	m.connectionsInFlight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "connburst_connections_in_flight",
		Help: "The number of connection workers currently in a non-terminal state.",
	}, []string{"state"})
	m.connectionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "connburst_connection_duration_seconds",
		Help:    "Duration of a connection lifecycle, from connect to terminal state.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
	}, []string{"state"})
	m.timeToFirstByte = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "connburst_time_to_first_byte_seconds",
		Help:    "Time from connect to the first response byte.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
	})
	m.bytesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "connburst_sent_bytes_total",
		Help: "Total number of request bytes written.",
	})
	m.bytesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "connburst_received_bytes_total",
		Help: "Total number of response bytes read.",
	})
	m.chunksReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "connburst_received_chunks_total",
		Help: "Total number of non-empty reads.",
	})
	m.wouldBlock = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "connburst_would_block_total",
		Help: "Total number of socket operations that would have blocked.",
	}, []string{"phase"})
	m.runsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "connburst_runs_completed_total",
		Help: "Total number of runs whose join barrier was released.",
	})

	if r != nil {
		r.MustRegister(
			m.connectionsStarted,
			m.connectionsCompleted,
			m.connectionsInFlight,
			m.connectionDuration,
			m.timeToFirstByte,
			m.bytesSent,
			m.bytesReceived,
			m.chunksReceived,
			m.wouldBlock,
			m.runsCompleted,
		)
	}
	return m
}
