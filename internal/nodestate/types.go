// Package nodestate implements the per-node lifecycle state machine:
// Initializing → Provisioning → {Exploring|Discovering} → Ready ⇄ Active →
// Draining → Deprovisioning → Deprovisioned. One state type per state,
// each carrying only the data that state needs, rather than one struct
// with a field per possible state.
package nodestate

import (
	"context"
	"time"

	"github.com/payperplay/hosting/internal/cloudprovider"
	"github.com/payperplay/hosting/internal/dnsprovider"
	"github.com/payperplay/hosting/internal/model"
	"github.com/payperplay/hosting/internal/registry"
	"github.com/payperplay/hosting/pkg/logging"
)

// Event is any input the machine can receive, including the implicit
// periodic Tick.
type Event interface{ isEvent() }

type ProvisionNode struct{ TargetState model.NodeState }
type DiscoveredNode struct{ Data model.NodeDiscoveryData }
type ExploredNode struct{ Info model.CloudNodeInfo }
type ActivateNode struct{}
type DeprovisionNode struct{ Cause model.DrainCause }
type Tick struct{}

func (ProvisionNode) isEvent()   {}
func (DiscoveredNode) isEvent()  {}
func (ExploredNode) isEvent()    {}
func (ActivateNode) isEvent()    {}
func (DeprovisionNode) isEvent() {}
func (Tick) isEvent()            {}

// StatsStreamer is the handle to a running per-node telemetry stream. The
// node state machine only needs to stop it; the concrete implementation
// lives in internal/statsstream.
type StatsStreamer interface {
	Stop()
}

// StatsStreamFactory starts a stats streamer for hostname, delivering each
// sample to onSample until the streamer is stopped.
type StatsStreamFactory func(hostname string, onSample func(model.NodeStats)) StatsStreamer

// Timeouts mirrors the node_controller.{...} config group.
type Timeouts struct {
	ProvisioningTimeout time.Duration
	DiscoveryTimeout    time.Duration
	ExplorationTimeout  time.Duration
	DrainingTime        time.Duration
}

// ExplorationThrottle bounds how often the Exploring state re-polls the
// cloud provider for a node that keeps failing to resolve.
const ExplorationThrottle = 30 * time.Second

// ReconnectBackoff is the stats streamer's wait between connection attempts.
const ReconnectBackoff = 10 * time.Second

// Deps are the collaborators and callbacks a Machine needs. None of them
// are retried internally beyond what each state's tick does — failures are
// logged and the tick returns without advancing, so the next tick retries.
type Deps struct {
	Hostname string
	Group    string

	Cloud    cloudprovider.Provider
	DNS      dnsprovider.Provider
	Registry registry.NodeDiscovery
	Stats    StatsStreamFactory

	Now      func() time.Time
	Timeouts Timeouts

	// Observer receives a NodeStateInfo after every handled event.
	Observer func(model.NodeStateInfo)
	// StatsObserver receives every bandwidth sample forwarded by the
	// stats streamer (typically the owning scaler).
	StatsObserver func(model.NodeStats)

	Log *logging.Logger
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deps) logger() *logging.Logger {
	if d.Log != nil {
		return d.Log
	}
	return logging.Default()
}

// State is one node lifecycle state. Handle processes ev and returns the
// next state (itself, if the event didn't advance anything) — errors from
// external calls are logged by the implementation, not returned, so a
// failed step simply leaves the machine where it was for the next tick to
// retry.
type State interface {
	Kind() model.NodeState
	Handle(ctx context.Context, d *Deps, ev Event) State
}

// Machine drives one node's lifecycle.
type Machine struct {
	deps  Deps
	state State
}

// New starts a fresh machine in Initializing.
func New(deps Deps) *Machine {
	m := &Machine{deps: deps, state: initializing{enteredAt: deps.now()}}
	m.notify()
	return m
}

// Handle dispatches ev to the current state and notifies the observer.
func (m *Machine) Handle(ctx context.Context, ev Event) {
	next := m.state.Handle(ctx, &m.deps, ev)
	if next == nil {
		next = m.state
	}
	m.state = next
	m.notify()
}

// State returns the machine's current state value (for tests/inspection).
func (m *Machine) State() State { return m.state }

// Terminal reports whether the machine has reached Deprovisioned.
func (m *Machine) Terminal() bool { return m.state.Kind() == model.StateDeprovisioned }

func (m *Machine) notify() {
	if m.deps.Observer == nil {
		return
	}
	info := model.NodeStateInfo{
		Hostname: m.deps.Hostname,
		Group:    m.deps.Group,
		State:    m.state.Kind(),
	}
	if dr, ok := m.state.(draining); ok {
		info.Cause = dr.cause
	}
	m.deps.Observer(info)
}
