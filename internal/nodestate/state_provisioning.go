package nodestate

import (
	"context"
	"time"

	"github.com/payperplay/hosting/internal/model"
)

type provisioning struct {
	targetState model.NodeState
	enteredAt   time.Time
	nodeInfo    *model.CloudNodeInfo
	dnsCreated  bool
}

func (provisioning) Kind() model.NodeState { return model.StateProvisioning }

func (s provisioning) Handle(ctx context.Context, d *Deps, ev Event) State {
	switch e := ev.(type) {
	case DiscoveredNode:
		if matchesTarget(e.Data, s.targetState) {
			return toReadyOrActive(s.targetState, d.now(), s.nodeInfo)
		}
		return deprovisioning{nodeInfo: s.nodeInfo}
	case DeprovisionNode:
		return deprovisioning{nodeInfo: s.nodeInfo}
	case Tick:
		return s.tick(ctx, d)
	default:
		return s
	}
}

func (s provisioning) tick(ctx context.Context, d *Deps) State {
	if d.now().Sub(s.enteredAt) >= d.Timeouts.ProvisioningTimeout {
		return deprovisioning{nodeInfo: s.nodeInfo}
	}

	if s.nodeInfo == nil {
		info, err := d.Cloud.CreateNode(ctx, d.Hostname, d.Group, s.targetState)
		if err != nil {
			d.logger().Error("provisioning: create_node failed", err, map[string]any{
				"hostname": d.Hostname, "group": d.Group,
			})
			return s
		}
		s.nodeInfo = &info
		return s
	}

	if !s.dnsCreated {
		if err := d.DNS.CreateRecords(ctx, d.Hostname, s.nodeInfo.IPv4, s.nodeInfo.IPv6); err != nil {
			d.logger().Error("provisioning: create_records failed", err, map[string]any{
				"hostname": d.Hostname,
			})
			return s
		}
		s.dnsCreated = true
		return s
	}

	return s
}

func matchesTarget(data model.NodeDiscoveryData, target model.NodeState) bool {
	switch target {
	case model.StateReady:
		return data.State == model.DiscoveryReady
	case model.StateActive:
		return data.State == model.DiscoveryActive
	default:
		return false
	}
}

func toReadyOrActive(target model.NodeState, now time.Time, nodeInfo *model.CloudNodeInfo) State {
	var info model.CloudNodeInfo
	if nodeInfo != nil {
		info = *nodeInfo
	}
	if target == model.StateActive {
		return active{enteredAt: now, lastDiscoveredAt: now, nodeInfo: info}
	}
	return ready{enteredAt: now, lastDiscoveredAt: now, nodeInfo: info}
}
