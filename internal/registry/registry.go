// Package registry is the typed interface boundary to concrete discovery
// registries: file fixtures, a key/value store, a service catalog.
package registry

import (
	"context"

	"github.com/payperplay/hosting/internal/model"
)

// NodeDiscovery enumerates the live, healthy nodes the registry currently
// knows about, and lets node controllers publish their own state into it.
type NodeDiscovery interface {
	// ListNodes returns the current discovery data for every node the
	// registry reports, across every group at once; each record carries
	// its own Group — a node discovery event can name a group the
	// controller hasn't seen yet.
	ListNodes(ctx context.Context) ([]model.NodeDiscoveryData, error)

	// UpdateState pushes this process's view of a node's state into the
	// registry, so other consumers of the registry observe it too. cause
	// is only meaningful when state is DiscoveryDraining — a draining
	// node's cause must round-trip through the registry intact, or a
	// machine rebuilt from discovery after a restart would come back with
	// the wrong reversibility.
	UpdateState(ctx context.Context, hostname string, state model.NodeDiscoveryState, cause model.DrainCause) error
}

// GroupDiscovery enumerates the node groups a registry source knows about.
// Several sources can be configured at once; the poller merges their
// output.
type GroupDiscovery interface {
	ListGroups(ctx context.Context) ([]model.NodeGroup, error)
}
