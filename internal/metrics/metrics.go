package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	messagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_messages_total",
			Help: "Total inbound MQTT messages by processing outcome.",
		},
		[]string{"outcome"},
	)
	parseFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_parse_failures_total",
			Help: "Total payloads dropped because no device token could be extracted or the payload was malformed.",
		},
	)
	writeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_write_failures_total",
			Help: "Total best-effort storage write failures by kind.",
		},
		[]string{"kind"},
	)
	devicesProvisioned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_devices_provisioned_total",
			Help: "Total devices auto-provisioned on first sighting.",
		},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_sessions_active",
			Help: "Broker sessions currently registered.",
		},
	)
	sessionReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_session_reconnects_total",
			Help: "Total manual session reconnect attempts.",
		},
	)
	processLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_process_duration_seconds",
			Help:    "End-to-end message processing latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func Register() {
	prometheus.MustRegister(messagesProcessed, parseFailures, writeFailures, devicesProvisioned, sessionsActive, sessionReconnects, processLatency)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func IncMessageProcessed(outcome string) {
	messagesProcessed.WithLabelValues(outcome).Inc()
}

func IncParseFailure() {
	parseFailures.Inc()
}

func IncWriteFailure(kind string) {
	writeFailures.WithLabelValues(kind).Inc()
}

func IncDeviceProvisioned() {
	devicesProvisioned.Inc()
}

func SetSessionsActive(n int) {
	sessionsActive.Set(float64(n))
}

func IncSessionReconnect() {
	sessionReconnects.Inc()
}

func ObserveProcessLatency(d time.Duration) {
	processLatency.Observe(d.Seconds())
}
