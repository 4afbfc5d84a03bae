// Package telemetry exposes the engine's Prometheus metrics: node counts
// per group per state, scale-lock counts, bandwidth usage percent, and
// scaling actions taken.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NodesByState counts tracked nodes per group per state.
	NodesByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "edge_autoscaler_nodes",
			Help: "Number of nodes tracked per group per observable state",
		},
		[]string{"group", "state"},
	)

	// ScaleLocksActive counts in-flight scale locks per group.
	ScaleLocksActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "edge_autoscaler_scale_locks_active",
			Help: "Number of active scale locks per group",
		},
		[]string{"group"},
	)

	// BandwidthUsagePercent is the floored bandwidth-usage percentage the
	// active-node scaling decision reads (scaler.bandwidthUsagePercent).
	BandwidthUsagePercent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "edge_autoscaler_bandwidth_usage_percent",
			Help: "Aggregate bandwidth usage percent of active nodes per group",
		},
		[]string{"group"},
	)

	// ScaleActionsTotal counts every scaling decision the scaler commits to,
	// keyed by group, direction ("spare_up","spare_down","active_up",
	// "active_down") and the action taken ("provision","activate",
	// "deprovision","reactivate").
	ScaleActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_autoscaler_scale_actions_total",
			Help: "Total number of scaling actions committed by the scaler",
		},
		[]string{"group", "direction", "action"},
	)

	// GroupsTracked is the number of groups the controller currently holds a
	// machine for (Initializing, Running or Discarding).
	GroupsTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edge_autoscaler_groups_tracked",
			Help: "Number of node groups currently tracked by the controller",
		},
	)
)

// RecordScaleAction increments ScaleActionsTotal for one committed decision.
func RecordScaleAction(group, direction, action string) {
	ScaleActionsTotal.WithLabelValues(group, direction, action).Inc()
}
