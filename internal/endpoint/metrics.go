// ABOUTME: Prometheus metrics for the agent service HTTP surface
// ABOUTME: Registered once at package load via promauto

package endpoint

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "everlight_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "everlight_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	messagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "everlight_messages_received_total",
			Help: "Total channel messages accepted by the endpoint",
		},
	)

	agentRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "everlight_agent_runs_total",
			Help: "Total agent processing runs by outcome",
		},
		[]string{"status"},
	)
)
