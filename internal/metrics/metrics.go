// Package metrics provides Prometheus metrics for the bridge server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	bridgeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filebridge_requests_total",
			Help: "Total number of bridge operation requests",
		},
		[]string{"action", "status"},
	)

	bridgeRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filebridge_request_duration_seconds",
			Help:    "Bridge request round-trip duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	agentConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filebridge_agent_connected",
			Help: "Whether an authenticated agent connection is live (0 or 1)",
		},
	)

	pendingRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filebridge_pending_requests",
			Help: "Number of in-flight bridge requests",
		},
	)

	downloadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filebridge_download_bytes_total",
			Help: "Total bytes downloaded from the remote agent",
		},
	)
)

// ObserveRequest records one completed bridge round trip.
func ObserveRequest(action, status string, duration time.Duration) {
	bridgeRequestsTotal.WithLabelValues(action, status).Inc()
	bridgeRequestDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// SetAgentConnected records whether an agent session is live.
func SetAgentConnected(connected bool) {
	if connected {
		agentConnected.Set(1)
	} else {
		agentConnected.Set(0)
	}
}

// SetPendingRequests records the pending-request table size.
func SetPendingRequests(n int) {
	pendingRequests.Set(float64(n))
}

// AddDownloadBytes records bytes transferred by a download operation.
func AddDownloadBytes(n int64) {
	downloadBytesTotal.Add(float64(n))
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
