package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the engagement engine
type Metrics struct {
	// Connection metrics
	ActiveConnections prometheus.Gauge
	EventsSubmitted   *prometheus.CounterVec
	BroadcastDrops    prometheus.Counter

	// Scoring metrics
	ScoreUpdates prometheus.Counter
	LeadScores   prometheus.Histogram
	HotLeads     prometheus.Counter

	// Automation metrics
	JobsExecuted *prometheus.CounterVec

	// Connection manager reference for dynamic metrics
	connManager *ConnectionManager
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics
func InitMetrics(connManager *ConnectionManager) *Metrics {
	metrics := &Metrics{
		connManager: connManager,

		ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "leadpulse_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		}),

		EventsSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "leadpulse_events_submitted_total",
			Help: "Total inbound events by kind and outcome",
		}, []string{"kind", "outcome"}), // outcome: accepted, unauthorized, rate_limited, invalid

		BroadcastDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "leadpulse_broadcast_drops_total",
			Help: "Messages dropped on full or closed outbound buffers",
		}),

		ScoreUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "leadpulse_score_updates_total",
			Help: "Total score recomputations",
		}),

		LeadScores: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "leadpulse_lead_score",
			Help:    "Distribution of recomputed lead scores",
			Buckets: []float64{0, 25, 50, 65, 80, 100, 125, 150},
		}),

		HotLeads: promauto.NewCounter(prometheus.CounterOpts{
			Name: "leadpulse_hot_leads_total",
			Help: "Leads upgraded into the HOT category",
		}),

		JobsExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "leadpulse_automation_jobs_executed_total",
			Help: "Automation jobs executed by kind and status",
		}, []string{"kind", "status"}),
	}

	// Register a collector that reads the live connection count
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "leadpulse_websocket_connections_current",
			Help: "Current number of active WebSocket connections (from connection manager)",
		},
		func() float64 {
			if connManager != nil {
				return float64(connManager.Count())
			}
			return 0
		},
	))

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	return globalMetrics
}
