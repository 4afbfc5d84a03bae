package scaler

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/payperplay/hosting/internal/model"
	"github.com/payperplay/hosting/internal/nodestate"
)

// seedNode drives a node into the scaler via discovery + exploration, the
// same two events the pollers would deliver for a machine that already
// exists, leaving it in the state the registry reports.
func seedNode(t *testing.T, s *Scaler, ctx context.Context, host string, state model.NodeDiscoveryState) {
	t.Helper()
	s.HandleNodeDiscovery(ctx, model.NodeDiscoveryData{Hostname: host, Group: s.deps.Group, State: state})
	s.HandleNodeExploration(ctx, model.CloudNodeInfo{Hostname: host, Group: s.deps.Group, IPv4: []string{"10.0.0.1"}})
}

func TestBandwidthUsagePercent(t *testing.T) {
	now := time.Now()
	deps := testDeps(t, &now)
	cfg := &model.GroupConfig{
		NodeBandwidthCapacity: model.BandwidthCapacity{TxBps: 1_000_000_000},
	}
	s := New(deps, cfg)
	ctx := context.Background()

	require.Equal(t, 0, s.bandwidthUsagePercent(nil), "no active nodes reads as zero usage")

	seedNode(t, s, ctx, "a", model.DiscoveryActive)
	seedNode(t, s, ctx, "b", model.DiscoveryActive)

	// Both unknown: assumed half capacity each.
	require.Equal(t, 50, s.bandwidthUsagePercent([]string{"a", "b"}))

	s.HandleStats(model.NodeStats{Hostname: "a", TxBps: 800_000_000})
	s.HandleStats(model.NodeStats{Hostname: "b", TxBps: 800_000_000})
	require.Equal(t, 80, s.bandwidthUsagePercent([]string{"a", "b"}))

	// Floored, not rounded.
	s.HandleStats(model.NodeStats{Hostname: "b", TxBps: 799_000_000})
	require.Equal(t, 79, s.bandwidthUsagePercent([]string{"a", "b"}))
}

func TestBandwidthScaleUpHoldsLock(t *testing.T) {
	now := time.Now()
	deps := testDeps(t, &now)
	cfg := &model.GroupConfig{
		NodeBandwidthCapacity: model.BandwidthCapacity{TxBps: 1_000_000_000},
		BandwidthThresholds:   model.BandwidthThresholds{ScaleUpPercent: 70, ScaleDownPercent: 30},
		MinActiveNodes:        1,
		MaxNodes:              5,
		MaxNodesSet:           true,
	}
	s := New(deps, cfg)
	ctx := context.Background()

	seedNode(t, s, ctx, "a", model.DiscoveryActive)
	seedNode(t, s, ctx, "b", model.DiscoveryActive)
	s.HandleStats(model.NodeStats{Hostname: "a", TxBps: 800_000_000})
	s.HandleStats(model.NodeStats{Hostname: "b", TxBps: 800_000_000})

	require.NoError(t, s.Tick(ctx))
	require.Len(t, s.nodes, 3, "80%% usage provisions a third node")
	require.Len(t, s.activeLocks, 1)

	// The lock suppresses any further scale action until it resolves.
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Tick(ctx))
	}
	require.Len(t, s.nodes, 3)
	require.Len(t, s.activeLocks, 1)
}

func TestScaleDownRespectsMinActive(t *testing.T) {
	now := time.Now()
	deps := testDeps(t, &now)
	cfg := &model.GroupConfig{
		NodeBandwidthCapacity: model.BandwidthCapacity{TxBps: 1_000_000_000},
		BandwidthThresholds:   model.BandwidthThresholds{ScaleUpPercent: 70, ScaleDownPercent: 30},
		MinActiveNodes:        2,
	}
	s := New(deps, cfg)
	ctx := context.Background()

	seedNode(t, s, ctx, "a", model.DiscoveryActive)
	seedNode(t, s, ctx, "b", model.DiscoveryActive)
	s.HandleStats(model.NodeStats{Hostname: "a", TxBps: 0})
	s.HandleStats(model.NodeStats{Hostname: "b", TxBps: 0})

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Tick(ctx))
	}
	require.Len(t, s.activeHosts(), 2, "zero usage must not drain below min_active_nodes")
	require.Empty(t, s.activeLocks)
}

func TestScaleDownDrainsOneAboveFloor(t *testing.T) {
	now := time.Now()
	deps := testDeps(t, &now)
	cfg := &model.GroupConfig{
		NodeBandwidthCapacity: model.BandwidthCapacity{TxBps: 1_000_000_000},
		BandwidthThresholds:   model.BandwidthThresholds{ScaleUpPercent: 70, ScaleDownPercent: 30},
		MinActiveNodes:        1,
	}
	s := New(deps, cfg)
	ctx := context.Background()

	seedNode(t, s, ctx, "a", model.DiscoveryActive)
	seedNode(t, s, ctx, "b", model.DiscoveryActive)
	s.HandleStats(model.NodeStats{Hostname: "a", TxBps: 0})
	s.HandleStats(model.NodeStats{Hostname: "b", TxBps: 0})

	require.NoError(t, s.Tick(ctx))
	require.Len(t, s.activeHosts(), 1)
	require.Len(t, s.activeLocks, 1)
	host, ok := s.findDrainingScalingCandidate()
	require.True(t, ok)
	require.Equal(t, model.CauseScaling, s.nodes[host].cause, "scale-down drains must stay reversible")
}

func TestScaleUpReactivatesDrainingNode(t *testing.T) {
	now := time.Now()
	deps := testDeps(t, &now)
	cfg := &model.GroupConfig{
		NodeBandwidthCapacity: model.BandwidthCapacity{TxBps: 1_000_000_000},
		BandwidthThresholds:   model.BandwidthThresholds{ScaleUpPercent: 70, ScaleDownPercent: 30},
		MinActiveNodes:        1,
	}
	s := New(deps, cfg)
	ctx := context.Background()

	seedNode(t, s, ctx, "a", model.DiscoveryActive)
	seedNode(t, s, ctx, "b", model.DiscoveryActive)
	s.nodes["b"].machine.Handle(ctx, nodestate.DeprovisionNode{Cause: model.CauseScaling})
	require.Equal(t, model.StateDraining, s.nodes["b"].state)

	// Traffic rises past the threshold on the one remaining active node.
	s.HandleStats(model.NodeStats{Hostname: "a", TxBps: 900_000_000})

	require.NoError(t, s.Tick(ctx))
	require.Equal(t, model.StateActive, s.nodes["b"].state, "draining(scaling) node is reactivated before provisioning anything new")
	require.Len(t, s.nodes, 2)
	require.Len(t, s.activeLocks, 1)
}

func TestScaleUpActivatesReadyBeforeProvisioning(t *testing.T) {
	now := time.Now()
	deps := testDeps(t, &now)
	cfg := &model.GroupConfig{
		NodeBandwidthCapacity: model.BandwidthCapacity{TxBps: 1_000_000_000},
		BandwidthThresholds:   model.BandwidthThresholds{ScaleUpPercent: 70, ScaleDownPercent: 30},
		MinActiveNodes:        1,
	}
	s := New(deps, cfg)
	ctx := context.Background()

	seedNode(t, s, ctx, "a", model.DiscoveryActive)
	seedNode(t, s, ctx, "spare", model.DiscoveryReady)
	s.HandleStats(model.NodeStats{Hostname: "a", TxBps: 900_000_000})

	require.NoError(t, s.Tick(ctx))
	require.Equal(t, model.StateActive, s.nodes["spare"].state)
	require.Len(t, s.nodes, 2, "no new machine while a spare is available")
}

func TestScaleSpareDeprovisionsExcess(t *testing.T) {
	now := time.Now()
	deps := testDeps(t, &now)
	cfg := &model.GroupConfig{MaxSpareNodes: 1, MaxSpareNodesSet: true}
	s := New(deps, cfg)
	ctx := context.Background()

	for _, host := range []string{"a", "b", "c"} {
		seedNode(t, s, ctx, host, model.DiscoveryReady)
	}

	require.NoError(t, s.Tick(ctx))
	require.Len(t, s.spareDown, 2)

	// Deprovisioning runs to completion over the next ticks and the down
	// locks release once the nodes are gone.
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Tick(ctx))
	}
	ready := 0
	for _, tn := range s.nodes {
		if tn.state == model.StateReady {
			ready++
		}
	}
	require.Equal(t, 1, ready)
	require.Empty(t, s.spareDown)
}

func TestScaleSpareMinMaxInversionTreatsMaxAsMin(t *testing.T) {
	now := time.Now()
	deps := testDeps(t, &now)
	cfg := &model.GroupConfig{MinSpareNodes: 2, MaxSpareNodes: 1, MaxSpareNodesSet: true}
	s := New(deps, cfg)
	ctx := context.Background()

	require.NoError(t, s.Tick(ctx))
	require.Len(t, s.spareUp, 2, "min > max is resolved permissively as max := min")
	require.Empty(t, s.spareDown)
}

func TestNilConfigNeverScales(t *testing.T) {
	now := time.Now()
	deps := testDeps(t, &now)
	s := New(deps, nil)
	ctx := context.Background()

	seedNode(t, s, ctx, "a", model.DiscoveryActive)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Tick(ctx))
		now = now.Add(time.Second)
	}
	require.Len(t, s.nodes, 1, "an observed-only group tracks nodes but never alters fleet size")
	require.Empty(t, s.activeLocks)
	require.Empty(t, s.spareUp)
	require.Empty(t, s.spareDown)
}

func TestStartupCooldownDelaysFirstDecision(t *testing.T) {
	now := time.Now()
	deps := testDeps(t, &now)
	deps.StartupCooldown = 30 * time.Second
	cfg := &model.GroupConfig{MinActiveNodes: 1}
	s := New(deps, cfg)
	ctx := context.Background()

	require.NoError(t, s.Tick(ctx))
	require.Empty(t, s.nodes, "no decisions inside the startup cooldown")

	now = now.Add(31 * time.Second)
	require.NoError(t, s.Tick(ctx))
	require.Len(t, s.nodes, 1)
}

func TestNodeCountNeverExceedsMaxNodes(t *testing.T) {
	now := time.Now()
	deps := testDeps(t, &now)
	cfg := &model.GroupConfig{
		NodeBandwidthCapacity: model.BandwidthCapacity{TxBps: 1_000_000_000},
		BandwidthThresholds:   model.BandwidthThresholds{ScaleUpPercent: 10, ScaleDownPercent: 1},
		MinActiveNodes:        5,
		MinSpareNodes:         3,
		MaxNodes:              3,
		MaxNodesSet:           true,
	}
	s := New(deps, cfg)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	// Constant provisioning pressure (min_active and min_spare both above
	// the node limit) under randomized clock advances and discovery
	// confirmations: the limit must hold after every single tick.
	for i := 0; i < 100; i++ {
		now = now.Add(time.Duration(rng.Intn(40)) * time.Second)
		if rng.Intn(3) == 0 {
			for host := range s.nodes {
				s.HandleNodeDiscovery(ctx, model.NodeDiscoveryData{
					Hostname: host, Group: s.deps.Group, State: model.DiscoveryActive,
				})
				break
			}
		}
		require.NoError(t, s.Tick(ctx))
		require.LessOrEqual(t, len(s.nodes), 3, fmt.Sprintf("tick %d", i))
	}
}

func TestSpareLockReleasesOnFulfilledExpectation(t *testing.T) {
	now := time.Now()
	deps := testDeps(t, &now)
	cfg := &model.GroupConfig{MinSpareNodes: 1}
	s := New(deps, cfg)
	ctx := context.Background()

	require.NoError(t, s.Tick(ctx))
	require.Len(t, s.spareUp, 1)
	var host string
	for h := range s.spareUp {
		host = h
	}

	// Drive the provisioned node to Ready: cloud create, dns create, then
	// the discovery confirmation in its target state.
	require.NoError(t, s.Tick(ctx))
	require.NoError(t, s.Tick(ctx))
	s.HandleNodeDiscovery(ctx, model.NodeDiscoveryData{Hostname: host, Group: s.deps.Group, State: model.DiscoveryReady})
	require.Equal(t, model.StateReady, s.nodes[host].state)

	require.NoError(t, s.Tick(ctx))
	require.Empty(t, s.spareUp, "fulfilled expectation with no min cooldown releases on the next tick")
}
