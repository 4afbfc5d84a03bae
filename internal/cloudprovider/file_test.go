package cloudprovider

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/payperplay/hosting/internal/model"
)

func TestFileProviderLifecycle(t *testing.T) {
	dir := t.TempDir()
	exploration := filepath.Join(dir, "machines.json")
	discovery := filepath.Join(dir, "discovery.json")
	f := NewFile(exploration, discovery)
	ctx := context.Background()

	info, err := f.CreateNode(ctx, "edge-eu-abcdefgh", "edge-eu", model.StateActive)
	require.NoError(t, err)
	require.Equal(t, "edge-eu", info.Group)

	nodes, err := f.ListNodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	got, err := f.GetNodeInfo(ctx, "edge-eu-abcdefgh")
	require.NoError(t, err)
	require.Equal(t, info.ProviderID, got.ProviderID)

	// Creation is mirrored into the discovery fixture in the node's target
	// state, standing in for the machine registering itself on boot.
	var discovered []fileDiscoveryRecord
	data, err := os.ReadFile(discovery)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &discovered))
	require.Len(t, discovered, 1)
	require.Equal(t, "active", discovered[0].State)

	require.NoError(t, f.DeleteNode(ctx, info))
	data, err = os.ReadFile(discovery)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &discovered))
	require.Empty(t, discovered)

	// Deleting again is NotFound, which callers treat as success.
	require.ErrorIs(t, f.DeleteNode(ctx, info), ErrNotFound)

	_, err = f.GetNodeInfo(ctx, "edge-eu-abcdefgh")
	require.ErrorIs(t, err, ErrNotFound)
}
