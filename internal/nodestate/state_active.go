package nodestate

import (
	"context"
	"time"

	"github.com/payperplay/hosting/internal/model"
)

type active struct {
	enteredAt        time.Time
	lastDiscoveredAt time.Time
	markedActive     bool
	streamer         StatsStreamer
	nodeInfo         model.CloudNodeInfo
}

func (active) Kind() model.NodeState { return model.StateActive }

func (s active) Handle(ctx context.Context, d *Deps, ev Event) State {
	switch e := ev.(type) {
	case DiscoveredNode:
		s.lastDiscoveredAt = d.now()
		return s
	case DeprovisionNode:
		return draining{cause: e.Cause, enteredAt: d.now(), streamer: s.streamer, nodeInfo: s.nodeInfo}
	case Tick:
		return s.tick(ctx, d)
	default:
		return s
	}
}

func (s active) tick(ctx context.Context, d *Deps) State {
	if d.now().Sub(s.lastDiscoveredAt) >= d.Timeouts.DiscoveryTimeout {
		if s.streamer != nil {
			s.streamer.Stop()
		}
		info := s.nodeInfo
		return deprovisioning{nodeInfo: &info}
	}

	if !s.markedActive {
		if err := d.Registry.UpdateState(ctx, d.Hostname, model.DiscoveryActive, model.CauseScaling); err != nil {
			d.logger().Error("active: update_state failed", err, map[string]any{
				"hostname": d.Hostname,
			})
			return s
		}
		s.markedActive = true
	}

	if s.streamer == nil && d.Stats != nil {
		s.streamer = startStatsStreamer(d, d.Hostname)
	}
	return s
}
