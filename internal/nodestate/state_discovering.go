package nodestate

import (
	"context"
	"time"

	"github.com/payperplay/hosting/internal/model"
)

type discovering struct {
	nodeInfo  model.CloudNodeInfo
	enteredAt time.Time
}

func (discovering) Kind() model.NodeState { return model.StateDiscovering }

func (s discovering) Handle(_ context.Context, d *Deps, ev Event) State {
	switch e := ev.(type) {
	case DiscoveredNode:
		return s.route(e.Data, d.now())
	case Tick:
		if d.now().Sub(s.enteredAt) >= d.Timeouts.DiscoveryTimeout {
			info := s.nodeInfo
			return deprovisioning{nodeInfo: &info}
		}
		return s
	default:
		return s
	}
}

func (s discovering) route(data model.NodeDiscoveryData, now time.Time) State {
	switch data.State {
	case model.DiscoveryActive:
		return active{enteredAt: now, lastDiscoveredAt: now, nodeInfo: s.nodeInfo}
	case model.DiscoveryDraining:
		return draining{cause: data.Cause, enteredAt: now, nodeInfo: s.nodeInfo}
	default:
		return ready{enteredAt: now, lastDiscoveredAt: now, nodeInfo: s.nodeInfo}
	}
}
