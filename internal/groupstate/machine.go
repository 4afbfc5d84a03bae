// Package groupstate implements the group lifecycle state machine:
// Initializing → Running → Discarding → Discarded.
package groupstate

import (
	"context"
	"time"

	"github.com/payperplay/hosting/internal/model"
	"github.com/payperplay/hosting/internal/scaler"
)

// Phase is the group's lifecycle phase.
type Phase int

const (
	PhaseInitializing Phase = iota
	PhaseRunning
	PhaseDiscarding
	PhaseDiscarded
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseRunning:
		return "running"
	case PhaseDiscarding:
		return "discarding"
	case PhaseDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// ScalerFactory builds a scaler for a freshly initialized group.
type ScalerFactory func(config *model.GroupConfig) *scaler.Scaler

// Machine drives one node group's lifecycle.
type Machine struct {
	name   string
	phase  Phase
	config *model.GroupConfig

	newScaler ScalerFactory
	scaler    *scaler.Scaler

	now                 func() time.Time
	discoveryTimeout    time.Duration
	lastDiscovery       time.Time
	discardingSinceTick bool
}

// New creates a machine in Initializing. config may be nil — observed-only;
// lazily-created groups start this way.
func New(name string, config *model.GroupConfig, newScaler ScalerFactory, now func() time.Time, discoveryTimeout time.Duration) *Machine {
	return &Machine{
		name:             name,
		phase:            PhaseInitializing,
		config:           config,
		newScaler:        newScaler,
		now:              now,
		discoveryTimeout: discoveryTimeout,
	}
}

func (m *Machine) Phase() Phase { return m.phase }

func (m *Machine) clock() time.Time {
	if m.now != nil {
		return m.now()
	}
	return time.Now()
}

// Initialize spawns the scaler and enters Running (Initializing+Initialize).
func (m *Machine) Initialize() {
	if m.phase != PhaseInitializing {
		return
	}
	m.scaler = m.newScaler(m.config)
	m.lastDiscovery = m.clock()
	m.phase = PhaseRunning
}

// Discovered forwards an updated group config to the scaler and refreshes
// last_discovery (Running+Discovered{g}).
func (m *Machine) Discovered(config *model.GroupConfig) {
	if m.phase != PhaseRunning {
		return
	}
	m.config = config
	if m.scaler != nil {
		m.scaler.UpdateConfig(config)
	}
	m.lastDiscovery = m.clock()
}

// DiscoveredNode forwards a node discovery event to the scaler.
func (m *Machine) DiscoveredNode(ctx context.Context, data model.NodeDiscoveryData) {
	if m.phase != PhaseRunning || m.scaler == nil {
		return
	}
	m.scaler.HandleNodeDiscovery(ctx, data)
}

// ExploredNode forwards a node exploration event to the scaler.
func (m *Machine) ExploredNode(ctx context.Context, info model.CloudNodeInfo) {
	if m.phase != PhaseRunning || m.scaler == nil {
		return
	}
	m.scaler.HandleNodeExploration(ctx, info)
}

// Discard transitions Running → Discarding.
func (m *Machine) Discard() {
	if m.phase != PhaseRunning {
		return
	}
	m.phase = PhaseDiscarding
}

// Tick advances the machine by one 1Hz step.
func (m *Machine) Tick(ctx context.Context) error {
	switch m.phase {
	case PhaseRunning:
		if m.clock().Sub(m.lastDiscovery) > m.discoveryTimeout {
			m.Discard()
			return nil
		}
		if m.scaler != nil {
			return m.scaler.Tick(ctx)
		}
		return nil
	case PhaseDiscarding:
		if m.scaler == nil {
			m.phase = PhaseDiscarded
			return nil
		}
		if !m.discardingSinceTick {
			m.scaler.Terminate(ctx)
			m.discardingSinceTick = true
			return nil
		}
		if err := m.scaler.Tick(ctx); err != nil {
			m.phase = PhaseDiscarded
		}
		return nil
	default:
		return nil
	}
}

// Discarded reports whether the machine has reached its terminal phase.
func (m *Machine) Discarded() bool { return m.phase == PhaseDiscarded }
