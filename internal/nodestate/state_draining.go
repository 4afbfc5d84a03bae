package nodestate

import (
	"context"
	"time"

	"github.com/payperplay/hosting/internal/model"
)

type draining struct {
	cause     model.DrainCause
	enteredAt time.Time
	marked    bool
	streamer  StatsStreamer
	nodeInfo  model.CloudNodeInfo
}

func (draining) Kind() model.NodeState { return model.StateDraining }

func (s draining) Handle(ctx context.Context, d *Deps, ev Event) State {
	switch ev.(type) {
	case ActivateNode:
		if !s.cause.Reversible() {
			return s
		}
		return active{enteredAt: d.now(), lastDiscoveredAt: d.now(), streamer: s.streamer, nodeInfo: s.nodeInfo}
	case Tick:
		return s.tick(ctx, d)
	default:
		return s
	}
}

func (s draining) tick(ctx context.Context, d *Deps) State {
	if !s.marked {
		if err := d.Registry.UpdateState(ctx, d.Hostname, model.DiscoveryDraining, s.cause); err != nil {
			d.logger().Error("draining: update_state failed", err, map[string]any{
				"hostname": d.Hostname,
			})
		} else {
			s.marked = true
		}
		if s.streamer == nil && d.Stats != nil {
			s.streamer = startStatsStreamer(d, d.Hostname)
		}
	}

	if d.now().Sub(s.enteredAt) >= d.Timeouts.DrainingTime {
		if s.streamer != nil {
			s.streamer.Stop()
		}
		info := s.nodeInfo
		return deprovisioning{nodeInfo: &info}
	}
	return s
}
