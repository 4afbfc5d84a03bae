package nodestate

import (
	"context"

	"github.com/payperplay/hosting/internal/cloudprovider"
	"github.com/payperplay/hosting/internal/model"
)

type deprovisioning struct {
	nodeInfo    *model.CloudNodeInfo
	deletedNode bool
	deletedDNS  bool
}

func (deprovisioning) Kind() model.NodeState { return model.StateDeprovisioning }

func (s deprovisioning) Handle(ctx context.Context, d *Deps, ev Event) State {
	if _, ok := ev.(Tick); !ok {
		return s
	}
	return s.tick(ctx, d)
}

func (s deprovisioning) tick(ctx context.Context, d *Deps) State {
	if s.nodeInfo != nil && !s.deletedNode {
		err := d.Cloud.DeleteNode(ctx, *s.nodeInfo)
		if err != nil && err != cloudprovider.ErrNotFound {
			d.logger().Error("deprovisioning: delete_node failed", err, map[string]any{
				"hostname": d.Hostname,
			})
			return s
		}
		s.deletedNode = true
	}

	if !s.deletedDNS {
		if err := d.DNS.DeleteRecords(ctx, d.Hostname); err != nil {
			d.logger().Error("deprovisioning: delete_records failed", err, map[string]any{
				"hostname": d.Hostname,
			})
			return s
		}
		s.deletedDNS = true
	}

	return deprovisioned{}
}
