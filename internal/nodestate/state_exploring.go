package nodestate

import (
	"context"
	"time"

	"github.com/payperplay/hosting/internal/cloudprovider"
	"github.com/payperplay/hosting/internal/model"
)

type exploring struct {
	discoveryData model.NodeDiscoveryData
	enteredAt     time.Time
	lastAttempt   time.Time
}

func (exploring) Kind() model.NodeState { return model.StateExploring }

func (s exploring) Handle(ctx context.Context, d *Deps, ev Event) State {
	switch e := ev.(type) {
	case ExploredNode:
		return s.route(e.Info, d.now())
	case DiscoveredNode:
		s.discoveryData = e.Data
		return s
	case DeprovisionNode:
		return deprovisioning{}
	case Tick:
		return s.tick(ctx, d)
	default:
		return s
	}
}

func (s exploring) tick(ctx context.Context, d *Deps) State {
	if d.now().Sub(s.enteredAt) >= d.Timeouts.ExplorationTimeout {
		return deprovisioning{}
	}
	if d.now().Sub(s.lastAttempt) < ExplorationThrottle {
		return s
	}
	s.lastAttempt = d.now()

	info, err := d.Cloud.GetNodeInfo(ctx, d.Hostname)
	if err != nil {
		if err != cloudprovider.ErrNotFound {
			d.logger().Error("exploring: get_node_info failed", err, map[string]any{
				"hostname": d.Hostname,
			})
		}
		return s
	}
	return s.route(info, d.now())
}

func (s exploring) route(info model.CloudNodeInfo, now time.Time) State {
	switch s.discoveryData.State {
	case model.DiscoveryActive:
		return active{enteredAt: now, lastDiscoveredAt: now, nodeInfo: info, markedActive: true}
	case model.DiscoveryDraining:
		return draining{cause: s.discoveryData.Cause, enteredAt: now, nodeInfo: info}
	default:
		return ready{enteredAt: now, lastDiscoveredAt: now, nodeInfo: info}
	}
}
