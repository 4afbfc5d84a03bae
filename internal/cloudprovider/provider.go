// Package cloudprovider is the typed interface boundary to concrete cloud
// providers. Everything here is a collaborator: the reconciliation core
// only ever talks to the Provider interface.
package cloudprovider

import (
	"context"
	"errors"

	"github.com/payperplay/hosting/internal/model"
)

// ErrNotFound is returned by DeleteNode when the machine is already gone.
// The node state machine treats this as success — delete is idempotent, or
// a restart mid-deprovision would loop forever.
var ErrNotFound = errors.New("cloudprovider: node not found")

// Provider is the typed boundary to a concrete cloud backend. Every method
// blocks the caller and is expected to be safe to retry.
type Provider interface {
	// CreateNode asks the provider to create a machine for hostname in
	// group, booted toward targetState (Ready or Active — used only to
	// shape cloud-init/labels, the provider has no notion of node state
	// machines). It must tag the machine with the group label so
	// exploration can find it.
	CreateNode(ctx context.Context, hostname, group string, targetState model.NodeState) (model.CloudNodeInfo, error)

	// DeleteNode removes the machine. ErrNotFound is success (idempotent).
	DeleteNode(ctx context.Context, info model.CloudNodeInfo) error

	// ListNodes enumerates every machine carrying the group label, across
	// every group at once; each CloudNodeInfo carries the group the label
	// resolved to. Machines missing the label are invisible (filtered
	// upstream of this boundary, never returned here) — lazy group
	// creation depends on being able to see every group's machines
	// without knowing the group names up front.
	ListNodes(ctx context.Context) ([]model.CloudNodeInfo, error)

	// GetNodeInfo looks up a single machine by hostname (used by the
	// Exploring state). Returns ErrNotFound if it doesn't exist (or is
	// missing its group label).
	GetNodeInfo(ctx context.Context, hostname string) (model.CloudNodeInfo, error)
}
