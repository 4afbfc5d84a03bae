package nodestate

import (
	"context"
	"time"

	"github.com/payperplay/hosting/internal/model"
)

type ready struct {
	enteredAt        time.Time
	lastDiscoveredAt time.Time
	markedReady      bool
	streamer         StatsStreamer
	nodeInfo         model.CloudNodeInfo
}

func (ready) Kind() model.NodeState { return model.StateReady }

func (s ready) Handle(ctx context.Context, d *Deps, ev Event) State {
	switch ev.(type) {
	case DiscoveredNode:
		s.lastDiscoveredAt = d.now()
		return s
	case ActivateNode:
		return active{enteredAt: d.now(), lastDiscoveredAt: d.now(), streamer: s.streamer, nodeInfo: s.nodeInfo}
	case DeprovisionNode:
		if s.streamer != nil {
			s.streamer.Stop()
		}
		info := s.nodeInfo
		return deprovisioning{nodeInfo: &info}
	case Tick:
		return s.tick(ctx, d)
	default:
		return s
	}
}

func (s ready) tick(ctx context.Context, d *Deps) State {
	if d.now().Sub(s.lastDiscoveredAt) >= d.Timeouts.DiscoveryTimeout {
		if s.streamer != nil {
			s.streamer.Stop()
		}
		info := s.nodeInfo
		return deprovisioning{nodeInfo: &info}
	}

	if !s.markedReady {
		if err := d.Registry.UpdateState(ctx, d.Hostname, model.DiscoveryReady, model.CauseScaling); err != nil {
			d.logger().Error("ready: update_state failed", err, map[string]any{
				"hostname": d.Hostname,
			})
			return s
		}
		s.markedReady = true
	}

	if s.streamer == nil && d.Stats != nil {
		s.streamer = startStatsStreamer(d, d.Hostname)
	}
	return s
}
