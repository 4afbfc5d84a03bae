package nodestate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/payperplay/hosting/internal/cloudprovider"
	"github.com/payperplay/hosting/internal/dnsprovider"
	"github.com/payperplay/hosting/internal/model"
	"github.com/payperplay/hosting/internal/registry"
)

func newTestDeps(t *testing.T, clock *time.Time) (Deps, *cloudprovider.Mock, *dnsprovider.Mock, *registry.Mock, []model.NodeStateInfo) {
	t.Helper()
	cloud := cloudprovider.NewMock()
	dns := dnsprovider.NewMock()
	reg := registry.NewMock()
	var observed []model.NodeStateInfo

	deps := Deps{
		Hostname: "edge-eu-abcdefgh",
		Group:    "edge-eu",
		Cloud:    cloud,
		DNS:      dns,
		Registry: reg,
		Now:      func() time.Time { return *clock },
		Timeouts: Timeouts{
			ProvisioningTimeout: 5 * time.Minute,
			DiscoveryTimeout:    5 * time.Minute,
			ExplorationTimeout:  5 * time.Minute,
			DrainingTime:        5 * time.Minute,
		},
		Observer: func(info model.NodeStateInfo) { observed = append(observed, info) },
	}
	return deps, cloud, dns, reg, observed
}

func TestProvisioningToActive(t *testing.T) {
	now := time.Now()
	deps, _, dnsMock, regMock, _ := newTestDeps(t, &now)
	_ = regMock
	m := New(deps)
	ctx := context.Background()

	m.Handle(ctx, ProvisionNode{TargetState: model.StateActive})
	require.Equal(t, model.StateProvisioning, m.State().Kind())

	m.Handle(ctx, Tick{}) // creates node
	require.Equal(t, model.StateProvisioning, m.State().Kind())

	m.Handle(ctx, Tick{}) // creates dns records
	require.Equal(t, model.StateProvisioning, m.State().Kind())
	require.Len(t, dnsMock.Records(deps.Hostname), 1)

	m.Handle(ctx, DiscoveredNode{Data: model.NodeDiscoveryData{State: model.DiscoveryActive}})
	require.Equal(t, model.StateActive, m.State().Kind())
}

func TestProvisioningTimeoutDeprovisions(t *testing.T) {
	now := time.Now()
	deps, _, _, _, _ := newTestDeps(t, &now)
	deps.Timeouts.ProvisioningTimeout = time.Second
	m := New(deps)
	ctx := context.Background()

	m.Handle(ctx, ProvisionNode{TargetState: model.StateReady})
	now = now.Add(2 * time.Second)
	m.Handle(ctx, Tick{})
	require.Equal(t, model.StateDeprovisioning, m.State().Kind())
}

func TestReadyDiscoveryTimeoutDeprovisions(t *testing.T) {
	now := time.Now()
	deps, _, _, _, _ := newTestDeps(t, &now)
	m := New(deps)
	ctx := context.Background()

	m.Handle(ctx, ExploredNode{Info: model.CloudNodeInfo{Hostname: deps.Hostname}})
	m.Handle(ctx, DiscoveredNode{Data: model.NodeDiscoveryData{State: model.DiscoveryReady}})
	require.Equal(t, model.StateReady, m.State().Kind())

	now = now.Add(deps.Timeouts.DiscoveryTimeout + time.Second)
	m.Handle(ctx, Tick{})
	require.Equal(t, model.StateDeprovisioning, m.State().Kind())
}

func TestDrainingReversibleReactivation(t *testing.T) {
	now := time.Now()
	deps, _, _, _, _ := newTestDeps(t, &now)
	m := New(deps)
	ctx := context.Background()

	m.Handle(ctx, ExploredNode{Info: model.CloudNodeInfo{Hostname: deps.Hostname}})
	m.Handle(ctx, DiscoveredNode{Data: model.NodeDiscoveryData{State: model.DiscoveryActive}})
	require.Equal(t, model.StateActive, m.State().Kind())

	m.Handle(ctx, DeprovisionNode{Cause: model.CauseScaling})
	require.Equal(t, model.StateDraining, m.State().Kind())

	m.Handle(ctx, ActivateNode{})
	require.Equal(t, model.StateActive, m.State().Kind())
}

func TestDrainingIrreversibleIgnoresActivate(t *testing.T) {
	now := time.Now()
	deps, _, _, _, _ := newTestDeps(t, &now)
	m := New(deps)
	ctx := context.Background()

	m.Handle(ctx, ExploredNode{Info: model.CloudNodeInfo{Hostname: deps.Hostname}})
	m.Handle(ctx, DiscoveredNode{Data: model.NodeDiscoveryData{State: model.DiscoveryActive}})
	m.Handle(ctx, DeprovisionNode{Cause: model.CauseTermination})
	require.Equal(t, model.StateDraining, m.State().Kind())

	m.Handle(ctx, ActivateNode{})
	require.Equal(t, model.StateDraining, m.State().Kind(), "termination drains must ignore reactivation")
}

func TestDeprovisioningReachesTerminal(t *testing.T) {
	now := time.Now()
	deps, cloudMock, _, _, _ := newTestDeps(t, &now)
	m := New(deps)
	ctx := context.Background()

	info, err := cloudMock.CreateNode(ctx, deps.Hostname, deps.Group, model.StateReady)
	require.NoError(t, err)

	m.Handle(ctx, ExploredNode{Info: info})
	m.Handle(ctx, DiscoveredNode{Data: model.NodeDiscoveryData{State: model.DiscoveryReady}})
	m.Handle(ctx, DeprovisionNode{Cause: model.CauseTermination})
	require.Equal(t, model.StateDeprovisioning, m.State().Kind())

	m.Handle(ctx, Tick{}) // delete node and dns records -> Deprovisioned
	m.Handle(ctx, Tick{}) // already terminal: no-op
	require.True(t, m.Terminal())

	_, err = cloudMock.GetNodeInfo(ctx, deps.Hostname)
	require.ErrorIs(t, err, cloudprovider.ErrNotFound)
}

func TestDeprovisioningTreatsNotFoundAsSuccess(t *testing.T) {
	now := time.Now()
	deps, _, _, _, _ := newTestDeps(t, &now)
	m := New(deps)
	ctx := context.Background()

	// Never actually created in the cloud mock: DeleteNode will return
	// ErrNotFound, which deprovisioning must treat as success.
	info := model.CloudNodeInfo{Hostname: deps.Hostname}
	m.Handle(ctx, ExploredNode{Info: info})
	m.Handle(ctx, DiscoveredNode{Data: model.NodeDiscoveryData{State: model.DiscoveryReady}})
	m.Handle(ctx, DeprovisionNode{Cause: model.CauseTermination})

	m.Handle(ctx, Tick{})
	m.Handle(ctx, Tick{})
	require.True(t, m.Terminal())
}
