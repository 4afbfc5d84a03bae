// Package model holds the data shared by every layer of the autoscaler:
// node groups, nodes, discovery facts and the scale-lock protocol.
package model

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// NodeDiscoveryState is what the discovery registry reports about a node.
type NodeDiscoveryState int

const (
	DiscoveryReady NodeDiscoveryState = iota
	DiscoveryActive
	DiscoveryDraining
)

func (s NodeDiscoveryState) String() string {
	switch s {
	case DiscoveryReady:
		return "ready"
	case DiscoveryActive:
		return "active"
	case DiscoveryDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// DrainCause explains why a node is being drained.
type DrainCause int

const (
	// CauseScaling drains are reversible: ActivateNode returns the node
	// to Active if it arrives before draining_time elapses.
	CauseScaling DrainCause = iota
	CauseRollingUpdate
	CauseTermination
)

func (c DrainCause) String() string {
	switch c {
	case CauseScaling:
		return "scaling"
	case CauseRollingUpdate:
		return "rolling_update"
	case CauseTermination:
		return "termination"
	default:
		return "unknown"
	}
}

// Reversible reports whether a drain with this cause can be undone by a
// later ActivateNode event.
func (c DrainCause) Reversible() bool {
	return c == CauseScaling
}

// NodeDiscoveryData is what the registry knows about one host. Group is
// carried on the record itself (rather than implied by the query) so a
// single discovery poll can enumerate every group's nodes at once and the
// group controller can route, or lazily create a group for, hosts whose
// group hasn't been rediscovered yet.
type NodeDiscoveryData struct {
	Hostname string
	Group    string
	State    NodeDiscoveryState
	Cause    DrainCause // only meaningful when State == DiscoveryDraining
	Observed time.Time
}

// CloudNodeInfo is what the cloud provider knows about one machine.
type CloudNodeInfo struct {
	ProviderID string
	Hostname   string
	Group      string
	CreatedAt  time.Time
	IPv4       []string
	IPv6       []string
	Labels     map[string]string
}

// NodeState is the internal, richer lifecycle state of a node. It is a
// strict refinement of NodeDiscoveryState: several NodeStates collapse to
// the same externally observable state (see Observable).
type NodeState int

const (
	StateInitializing NodeState = iota
	StateProvisioning
	StateExploring
	StateDiscovering
	StateReady
	StateActive
	StateDraining
	StateDeprovisioning
	StateDeprovisioned
)

func (s NodeState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateProvisioning:
		return "provisioning"
	case StateExploring:
		return "exploring"
	case StateDiscovering:
		return "discovering"
	case StateReady:
		return "ready"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateDeprovisioning:
		return "deprovisioning"
	case StateDeprovisioned:
		return "deprovisioned"
	default:
		return "unknown"
	}
}

// ObservableState is the externally visible projection of NodeState:
// Initializing/Provisioning/Exploring/Discovering/Deprovisioning collapse
// to Unready; Ready/Active/Draining/Deprovisioned map identically.
type ObservableState int

const (
	ObservableUnready ObservableState = iota
	ObservableReady
	ObservableActive
	ObservableDraining
	ObservableDeprovisioned
)

func (s NodeState) Observable() ObservableState {
	switch s {
	case StateReady:
		return ObservableReady
	case StateActive:
		return ObservableActive
	case StateDraining:
		return ObservableDraining
	case StateDeprovisioned:
		return ObservableDeprovisioned
	default:
		return ObservableUnready
	}
}

// NodeStateInfo is emitted by the node state machine's observer contract
// after every handled event.
type NodeStateInfo struct {
	Hostname string
	Group    string
	State    NodeState
	Cause    DrainCause // only meaningful when State == StateDraining
}

// Node identifies one machine the engine tracks. Hostname is globally
// unique within the process.
type Node struct {
	Hostname string
	Group    string
}

// NodeStats is one bandwidth sample delivered by the stats streamer.
type NodeStats struct {
	Hostname  string
	TxBps     float64
	RxBps     float64
	Timestamp time.Time
}

const hostnameAlphabet = "abcdefghijklmnopqrstuvwxyz"

// GenerateHostname builds a hostname of the form
// "<group>-<8 random lowercase letters>.<suffix>".
func GenerateHostname(group, suffix string, rng *rand.Rand) string {
	b := make([]byte, 8)
	for i := range b {
		b[i] = hostnameAlphabet[rng.Intn(len(hostnameAlphabet))]
	}
	host := fmt.Sprintf("%s-%s", group, string(b))
	if suffix == "" {
		return host
	}
	return fmt.Sprintf("%s.%s", host, strings.TrimPrefix(suffix, "."))
}
