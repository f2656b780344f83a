package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ota",
			Subsystem: "protocol",
			Name:      "frames_total",
			Help:      "A counter for decoded request frames by packet type.",
		},
		[]string{"type"},
	)

	errorFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ota",
			Subsystem: "protocol",
			Name:      "error_responses_total",
			Help:      "A counter for error responses sent to devices by error code.",
		},
		[]string{"code"},
	)

	droppedBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ota",
			Subsystem: "protocol",
			Name:      "dropped_bytes_total",
			Help:      "Bytes discarded because they did not start with the frame magic.",
		},
	)

	sentBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ota",
			Subsystem: "protocol",
			Name:      "sent_bytes_total",
			Help:      "Bytes written to devices.",
		},
	)

	connections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ota",
			Subsystem: "server",
			Name:      "connections",
			Help:      "The number of currently open device connections.",
		},
	)

	catalogArtifacts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ota",
			Subsystem: "catalog",
			Name:      "artifacts",
			Help:      "The number of firmware images in the published catalog.",
		},
	)

	catalogBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ota",
			Subsystem: "catalog",
			Name:      "bytes",
			Help:      "The total size of all firmware images in the published catalog.",
		},
	)

	refreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ota",
			Subsystem: "catalog",
			Name:      "refreshes_total",
			Help:      "A counter for catalog refreshes by result.",
		},
		[]string{"result"},
	)

	upgrades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ota",
			Subsystem: "history",
			Name:      "records_total",
			Help:      "A counter for upgrade history writes by reported outcome and write result.",
		},
		[]string{"outcome", "result"},
	)
)

func init() {
	prometheus.MustRegister(frames, errorFrames, droppedBytes, sentBytes, connections, catalogArtifacts, catalogBytes, refreshes, upgrades)
}

// Handler serves the registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

func FrameReceived(packetType string) {
	frames.WithLabelValues(packetType).Inc()
}

func ErrorSent(code string) {
	errorFrames.WithLabelValues(code).Inc()
}

func Dropped(n int) {
	droppedBytes.Add(float64(n))
}

func Sent(n int) {
	sentBytes.Add(float64(n))
}

func ConnectionOpened() {
	connections.Inc()
}

func ConnectionClosed() {
	connections.Dec()
}

// CatalogPublished records a successful refresh and the size of the new catalog.
func CatalogPublished(artifacts int, bytes uint64) {
	refreshes.WithLabelValues("success").Inc()
	catalogArtifacts.Set(float64(artifacts))
	catalogBytes.Set(float64(bytes))
}

// CatalogRefreshFailed records a refresh that kept the previous catalog.
func CatalogRefreshFailed() {
	refreshes.WithLabelValues("error").Inc()
}

// UpgradeRecorded counts a history write for a reported upgrade outcome.
func UpgradeRecorded(success bool, err error) {
	outcome := "failed"
	if success {
		outcome = "succeeded"
	}
	result := "stored"
	if err != nil {
		result = "error"
	}
	upgrades.WithLabelValues(outcome, result).Inc()
}
