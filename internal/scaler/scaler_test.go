package scaler

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/payperplay/hosting/internal/cloudprovider"
	"github.com/payperplay/hosting/internal/dnsprovider"
	"github.com/payperplay/hosting/internal/model"
	"github.com/payperplay/hosting/internal/nodestate"
	"github.com/payperplay/hosting/internal/registry"
)

func testDeps(t *testing.T, clock *time.Time) Deps {
	t.Helper()
	return Deps{
		Group:           "edge-eu",
		Cloud:           cloudprovider.NewMock(),
		DNS:             dnsprovider.NewMock(),
		Registry:        registry.NewMock(),
		HostnameSuffix:  "nodes.example.com",
		Rng:             rand.New(rand.NewSource(1)),
		Now:             func() time.Time { return *clock },
		Timeouts:        nodestate.Timeouts{ProvisioningTimeout: time.Minute, DiscoveryTimeout: time.Minute, ExplorationTimeout: time.Minute, DrainingTime: time.Minute},
		StartupCooldown: 0,
		ScaleLockMax:    time.Minute,
	}
}

func driveToActive(t *testing.T, s *Scaler, ctx context.Context, host string) {
	t.Helper()
	tn := s.nodes[host]
	require.NotNil(t, tn)
	tn.machine.Handle(ctx, nodestate.Tick{})
	tn.machine.Handle(ctx, nodestate.Tick{})
	tn.machine.Handle(ctx, nodestate.DiscoveredNode{Data: model.NodeDiscoveryData{State: model.DiscoveryActive}})
}

func TestScaleSpareProvisionsToMin(t *testing.T) {
	now := time.Now()
	deps := testDeps(t, &now)
	cfg := &model.GroupConfig{MinSpareNodes: 2}
	s := New(deps, cfg)
	ctx := context.Background()

	require.NoError(t, s.Tick(ctx))
	require.Len(t, s.nodes, 2)
	require.Len(t, s.spareUp, 2)
}

func TestScaleActiveColdStartToMin(t *testing.T) {
	now := time.Now()
	deps := testDeps(t, &now)
	cfg := &model.GroupConfig{MinActiveNodes: 3, MaxNodes: 10, MaxNodesSet: true}
	s := New(deps, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Tick(ctx))
	}
	require.Len(t, s.nodes, 3)
	require.Len(t, s.activeLocks, 3)
}

func TestNodeLimitBlocksProvisioning(t *testing.T) {
	now := time.Now()
	deps := testDeps(t, &now)
	cfg := &model.GroupConfig{MinActiveNodes: 3, MaxNodes: 1, MaxNodesSet: true}
	s := New(deps, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Tick(ctx))
	}
	require.LessOrEqual(t, len(s.nodes), 1)
}

func TestTerminateDrainsAllAndReturnsFatal(t *testing.T) {
	now := time.Now()
	deps := testDeps(t, &now)
	cfg := &model.GroupConfig{MinActiveNodes: 1, MaxNodes: 5, MaxNodesSet: true}
	s := New(deps, cfg)
	ctx := context.Background()

	require.NoError(t, s.Tick(ctx))
	require.Len(t, s.nodes, 1)
	var host string
	for h := range s.nodes {
		host = h
	}
	driveToActive(t, s, ctx, host)

	s.Terminate(ctx)
	now = now.Add(2 * time.Minute) // past draining_time so the drain resolves immediately
	var err error
	for i := 0; i < 5 && len(s.nodes) > 0; i++ {
		err = s.Tick(ctx)
	}
	require.Error(t, err)
	require.Empty(t, s.nodes)
}
