package nodestate

import (
	"context"
	"time"

	"github.com/payperplay/hosting/internal/model"
)

type initializing struct {
	enteredAt time.Time
}

func (initializing) Kind() model.NodeState { return model.StateInitializing }

func (s initializing) Handle(_ context.Context, d *Deps, ev Event) State {
	switch e := ev.(type) {
	case ProvisionNode:
		return provisioning{targetState: e.TargetState, enteredAt: d.now()}
	case DiscoveredNode:
		return exploring{discoveryData: e.Data, enteredAt: d.now()}
	case ExploredNode:
		return discovering{nodeInfo: e.Info, enteredAt: d.now()}
	default:
		return s
	}
}
