package model

import "time"

// BandwidthCapacity is the configured per-node capacity a group's nodes are
// assumed to offer.
type BandwidthCapacity struct {
	TxBps float64
	RxBps float64
}

// BandwidthThresholds drive the active-node scaling decision.
type BandwidthThresholds struct {
	ScaleUpPercent   float64
	ScaleDownPercent float64
}

// GroupConfig is the scaling configuration for one node group. A group
// without a config is observed-only: it is tracked but never scaled.
type GroupConfig struct {
	NodeBandwidthCapacity BandwidthCapacity
	BandwidthThresholds   BandwidthThresholds
	MinActiveNodes        int
	MaxNodes              int // 0 means unset/unbounded
	MinSpareNodes         int
	MaxSpareNodes         int // 0 means unset/unbounded
	MaxNodesSet           bool
	MaxSpareNodesSet      bool
}

// NodeGroup is the identity plus optional configuration of one logical
// fleet. Config == nil means observed-only.
type NodeGroup struct {
	Name   string
	Config *GroupConfig
}

// GroupDiscoveryEvent is delivered by the group-discovery poller.
type GroupDiscoveryEvent struct {
	Group    NodeGroup
	Observed time.Time
}

// NodeDiscoveryEvent is delivered by the node-discovery poller.
type NodeDiscoveryEvent struct {
	Group string
	Data  NodeDiscoveryData
}

// NodeExplorationEvent is delivered by the node-exploration poller.
type NodeExplorationEvent struct {
	Group string
	Info  CloudNodeInfo
}
