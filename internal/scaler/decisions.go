package scaler

import (
	"context"

	"github.com/payperplay/hosting/internal/model"
	"github.com/payperplay/hosting/internal/nodestate"
	"github.com/payperplay/hosting/pkg/telemetry"
)

// scaleSpare reconciles the Ready pool to [min_spare_nodes, max_spare_nodes].
func (s *Scaler) scaleSpare(ctx context.Context) {
	cfg := s.config
	min, hasMin := cfg.MinSpareNodes, true
	max, hasMax := cfg.MaxSpareNodes, cfg.MaxSpareNodesSet
	if hasMax && hasMin && min > max {
		max = min
	}

	projected := s.projectedReady()

	if hasMax && len(projected) > max {
		excess := len(projected) - max
		for host := range projected {
			if excess == 0 {
				break
			}
			if _, locked := s.spareDown[host]; locked {
				continue
			}
			if _, locked := s.spareUp[host]; locked {
				continue
			}
			t, ok := s.nodes[host]
			if !ok || t.state != model.StateReady {
				continue
			}
			t.machine.Handle(ctx, nodestate.DeprovisionNode{Cause: model.CauseTermination})
			s.spareDown[host] = s.newLock(host, model.ExpectNodeGone())
			s.recordScaleAction(host, "spare_down", "deprovision")
			excess--
		}
		return
	}

	if min > 0 && len(projected) < min {
		if s.atNodeLimit() {
			s.deps.logger().Info("scale-spare: at max_nodes, skipping provision", map[string]any{"group": s.deps.Group})
			return
		}
		deficit := min - len(projected)
		for i := 0; i < deficit; i++ {
			if s.atNodeLimit() {
				break
			}
			host := s.newHostname()
			t := s.nodeFor(host)
			t.machine.Handle(ctx, nodestate.ProvisionNode{TargetState: model.StateReady})
			s.spareUp[host] = s.newLock(host, model.ExpectNodeState(model.StateReady))
			s.recordScaleAction(host, "spare_up", "provision")
		}
	}
}

// projectedReady is the current Ready set, plus hosts with a pending spare
// up-lock, minus hosts with a pending spare down-lock.
func (s *Scaler) projectedReady() map[string]struct{} {
	out := make(map[string]struct{})
	for host, t := range s.nodes {
		if t.state == model.StateReady {
			out[host] = struct{}{}
		}
	}
	for host := range s.spareUp {
		out[host] = struct{}{}
	}
	for host := range s.spareDown {
		delete(out, host)
	}
	return out
}

func (s *Scaler) atNodeLimit() bool {
	if !s.config.MaxNodesSet {
		return false
	}
	return len(s.nodes) >= s.config.MaxNodes
}

// scaleActive reconciles min_active_nodes and the bandwidth signal.
func (s *Scaler) scaleActive(ctx context.Context) {
	cfg := s.config
	active := s.activeHosts()

	if len(active) < cfg.MinActiveNodes {
		deficit := cfg.MinActiveNodes - len(active)
		for i := 0; i < deficit; i++ {
			if s.atNodeLimit() {
				s.deps.logger().Info("scale: at max_nodes, skipping provision", map[string]any{"group": s.deps.Group})
				break
			}
			host := s.newHostname()
			t := s.nodeFor(host)
			t.machine.Handle(ctx, nodestate.ProvisionNode{TargetState: model.StateActive})
			s.activeLocks = append(s.activeLocks, s.newLock(host, model.ExpectNodeState(model.StateActive)))
			s.recordScaleAction(host, "active_up", "provision")
		}
		return
	}

	usage := s.bandwidthUsagePercent(active)
	telemetry.BandwidthUsagePercent.WithLabelValues(s.deps.Group).Set(float64(usage))

	if usage > cfg.BandwidthThresholds.ScaleUpPercent {
		if host, ok := s.findDrainingScalingCandidate(); ok {
			s.nodes[host].machine.Handle(ctx, nodestate.ActivateNode{})
			s.activeLocks = append(s.activeLocks, s.newLock(host, model.ExpectNodeState(model.StateActive)))
			s.recordScaleAction(host, "active_up", "reactivate")
			return
		}
		if host, ok := s.findReadyCandidate(); ok {
			delete(s.spareUp, host)
			delete(s.spareDown, host)
			s.nodes[host].machine.Handle(ctx, nodestate.ActivateNode{})
			s.activeLocks = append(s.activeLocks, s.newLock(host, model.ExpectNodeState(model.StateActive)))
			s.recordScaleAction(host, "active_up", "activate")
			return
		}
		if s.atNodeLimit() {
			return
		}
		host := s.newHostname()
		t := s.nodeFor(host)
		t.machine.Handle(ctx, nodestate.ProvisionNode{TargetState: model.StateReady})
		s.activeLocks = append(s.activeLocks, s.newLock(host, model.ExpectNodeState(model.StateReady)))
		s.recordScaleAction(host, "active_up", "provision")
		return
	}

	if usage < cfg.BandwidthThresholds.ScaleDownPercent && len(active) > cfg.MinActiveNodes {
		host := active[0]
		s.nodes[host].machine.Handle(ctx, nodestate.DeprovisionNode{Cause: model.CauseScaling})
		s.activeLocks = append(s.activeLocks, s.newLock(host, model.ExpectNodeState(model.StateReady)))
		s.recordScaleAction(host, "active_down", "deprovision")
	}
}

func (s *Scaler) activeHosts() []string {
	var out []string
	for host, t := range s.nodes {
		if t.state == model.StateActive {
			out = append(out, host)
		}
	}
	return out
}

func (s *Scaler) findDrainingScalingCandidate() (string, bool) {
	for host, t := range s.nodes {
		if t.state == model.StateDraining && t.cause == model.CauseScaling {
			return host, true
		}
	}
	return "", false
}

func (s *Scaler) findReadyCandidate() (string, bool) {
	for host, t := range s.nodes {
		if t.state == model.StateReady {
			return host, true
		}
	}
	return "", false
}

// bandwidthUsagePercent: for each active node use its last tx_bps sample,
// or half capacity if unknown; percent is floored, 0 if there are no
// active nodes.
func (s *Scaler) bandwidthUsagePercent(active []string) int {
	if len(active) == 0 {
		return 0
	}
	capacityPerNode := s.config.NodeBandwidthCapacity.TxBps
	var usage float64
	for _, host := range active {
		t := s.nodes[host]
		if t.lastStats != nil {
			usage += t.lastStats.TxBps
		} else {
			usage += capacityPerNode / 2
		}
	}
	capacity := float64(len(active)) * capacityPerNode
	if capacity <= 0 {
		return 0
	}
	return int(usage * 100 / capacity)
}
