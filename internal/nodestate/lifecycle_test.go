package nodestate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/payperplay/hosting/internal/cloudprovider"
	"github.com/payperplay/hosting/internal/model"
)

// countingDNS counts create/delete calls so a node's whole lifetime can be
// checked for exactly one create matched by exactly one delete.
type countingDNS struct {
	creates int
	deletes int
}

func (c *countingDNS) CreateRecords(context.Context, string, []string, []string) error {
	c.creates++
	return nil
}

func (c *countingDNS) DeleteRecords(context.Context, string) error {
	c.deletes++
	return nil
}

// countingCloud wraps the mock provider and counts GetNodeInfo calls.
type countingCloud struct {
	*cloudprovider.Mock
	lookups int
}

func (c *countingCloud) GetNodeInfo(ctx context.Context, hostname string) (model.CloudNodeInfo, error) {
	c.lookups++
	return c.Mock.GetNodeInfo(ctx, hostname)
}

func TestDNSRecordsCreatedOnceDeletedOnce(t *testing.T) {
	now := time.Now()
	deps, _, _, _, _ := newTestDeps(t, &now)
	dns := &countingDNS{}
	deps.DNS = dns
	m := New(deps)
	ctx := context.Background()

	m.Handle(ctx, ProvisionNode{TargetState: model.StateReady})
	m.Handle(ctx, Tick{}) // cloud create
	m.Handle(ctx, Tick{}) // dns create
	m.Handle(ctx, Tick{}) // idle: flags gate re-execution
	require.Equal(t, 1, dns.creates)

	m.Handle(ctx, DiscoveredNode{Data: model.NodeDiscoveryData{State: model.DiscoveryReady}})
	require.Equal(t, model.StateReady, m.State().Kind())

	m.Handle(ctx, DeprovisionNode{Cause: model.CauseTermination})
	m.Handle(ctx, Tick{})
	m.Handle(ctx, Tick{})
	require.True(t, m.Terminal())
	require.Equal(t, 1, dns.creates)
	require.Equal(t, 1, dns.deletes)

	// Terminal state ignores everything; no further provider calls.
	m.Handle(ctx, Tick{})
	m.Handle(ctx, DeprovisionNode{Cause: model.CauseTermination})
	require.Equal(t, 1, dns.deletes)
}

func TestRepeatedDiscoveryIsIdempotent(t *testing.T) {
	now := time.Now()
	deps, _, _, _, _ := newTestDeps(t, &now)
	m := New(deps)
	ctx := context.Background()

	m.Handle(ctx, ExploredNode{Info: model.CloudNodeInfo{Hostname: deps.Hostname}})
	data := model.NodeDiscoveryData{Hostname: deps.Hostname, State: model.DiscoveryReady}
	m.Handle(ctx, DiscoveredNode{Data: data})
	require.Equal(t, model.StateReady, m.State().Kind())

	m.Handle(ctx, DiscoveredNode{Data: data})
	require.Equal(t, model.StateReady, m.State().Kind())

	// The repeat refreshed last_discovered_at, so the discovery timeout is
	// measured from the second delivery.
	now = now.Add(deps.Timeouts.DiscoveryTimeout - time.Second)
	m.Handle(ctx, Tick{})
	require.Equal(t, model.StateReady, m.State().Kind())
}

func TestExplorationPollIsThrottled(t *testing.T) {
	now := time.Now()
	deps, _, _, _, _ := newTestDeps(t, &now)
	cloud := &countingCloud{Mock: cloudprovider.NewMock()}
	deps.Cloud = cloud
	m := New(deps)
	ctx := context.Background()

	m.Handle(ctx, DiscoveredNode{Data: model.NodeDiscoveryData{State: model.DiscoveryReady}})
	require.Equal(t, model.StateExploring, m.State().Kind())

	for i := 0; i < 5; i++ {
		m.Handle(ctx, Tick{})
	}
	require.Equal(t, 1, cloud.lookups, "failed lookups within the throttle window are not retried")

	now = now.Add(ExplorationThrottle + time.Second)
	m.Handle(ctx, Tick{})
	require.Equal(t, 2, cloud.lookups)
}

func TestExplorationTimeoutDeprovisions(t *testing.T) {
	now := time.Now()
	deps, _, _, _, _ := newTestDeps(t, &now)
	deps.Timeouts.ExplorationTimeout = time.Minute
	m := New(deps)
	ctx := context.Background()

	m.Handle(ctx, DiscoveredNode{Data: model.NodeDiscoveryData{State: model.DiscoveryReady}})
	now = now.Add(2 * time.Minute)
	m.Handle(ctx, Tick{})
	require.Equal(t, model.StateDeprovisioning, m.State().Kind())
}

func TestDiscoveringTimeoutDeprovisions(t *testing.T) {
	now := time.Now()
	deps, _, _, _, _ := newTestDeps(t, &now)
	deps.Timeouts.DiscoveryTimeout = time.Minute
	m := New(deps)
	ctx := context.Background()

	m.Handle(ctx, ExploredNode{Info: model.CloudNodeInfo{Hostname: deps.Hostname}})
	require.Equal(t, model.StateDiscovering, m.State().Kind())

	now = now.Add(2 * time.Minute)
	m.Handle(ctx, Tick{})
	require.Equal(t, model.StateDeprovisioning, m.State().Kind())
}

func TestProvisioningWrongStateDiscoveryDeprovisions(t *testing.T) {
	now := time.Now()
	deps, _, _, _, _ := newTestDeps(t, &now)
	m := New(deps)
	ctx := context.Background()

	m.Handle(ctx, ProvisionNode{TargetState: model.StateActive})
	m.Handle(ctx, Tick{})
	m.Handle(ctx, DiscoveredNode{Data: model.NodeDiscoveryData{State: model.DiscoveryDraining, Cause: model.CauseTermination}})
	require.Equal(t, model.StateDeprovisioning, m.State().Kind(), "discovery in a non-target state means the machine is not what we asked for")
}

func TestObserverSeesEveryTransition(t *testing.T) {
	now := time.Now()
	deps, _, _, _, _ := newTestDeps(t, &now)
	var observed []model.NodeStateInfo
	deps.Observer = func(info model.NodeStateInfo) { observed = append(observed, info) }
	m := New(deps)
	ctx := context.Background()

	m.Handle(ctx, ExploredNode{Info: model.CloudNodeInfo{Hostname: deps.Hostname}})
	m.Handle(ctx, DiscoveredNode{Data: model.NodeDiscoveryData{State: model.DiscoveryActive}})
	m.Handle(ctx, DeprovisionNode{Cause: model.CauseRollingUpdate})

	require.Equal(t, []model.NodeState{
		model.StateInitializing,
		model.StateDiscovering,
		model.StateActive,
		model.StateDraining,
	}, statesOf(observed))
	require.Equal(t, model.CauseRollingUpdate, observed[len(observed)-1].Cause)
}

func statesOf(infos []model.NodeStateInfo) []model.NodeState {
	out := make([]model.NodeState, len(infos))
	for i, info := range infos {
		out[i] = info.State
	}
	return out
}
