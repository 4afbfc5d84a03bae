// Package groupcontroller implements the top-level router: it owns every
// live group state machine, routes discovery/exploration events to the
// right one, lazily creates machines for groups it hasn't seen a
// group-discovery event for yet, and drops discarded groups on tick.
package groupcontroller

import (
	"context"
	"time"

	"github.com/payperplay/hosting/internal/actorkit"
	"github.com/payperplay/hosting/internal/groupstate"
	"github.com/payperplay/hosting/internal/model"
	"github.com/payperplay/hosting/internal/scaler"
	"github.com/payperplay/hosting/pkg/logging"
	"github.com/payperplay/hosting/pkg/telemetry"
)

// Deps are shared across every group machine the controller creates.
type Deps struct {
	NewScaler        func(group string) groupstate.ScalerFactory
	Now              func() time.Time
	DiscoveryTimeout time.Duration
	Log              *logging.Logger
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

// Controller is the process-wide group router. It is itself an actor: the
// three pollers and the main 1Hz ticker each run on their own goroutine and
// call into it concurrently, but every call is serialized into a single
// actorkit actor's mailbox, so the groups map below is only ever touched
// from that one goroutine and needs no locks.
type Controller struct {
	deps   Deps
	groups map[string]*groupstate.Machine
	actor  *actorkit.Actor[func()]
}

func New(deps Deps) *Controller {
	c := &Controller{deps: deps, groups: make(map[string]*groupstate.Machine)}
	c.actor = actorkit.Spawn(actorkit.DefaultMailboxSize, func(fn func()) { fn() })
	return c
}

// call suspends the caller's goroutine (not the actor's worker) until fn
// has run on the controller's own goroutine.
func (c *Controller) call(fn func()) {
	done := make(chan struct{})
	c.actor.Address().Send(func() {
		fn()
		close(done)
	})
	<-done
}

// Stop terminates the controller's actor. Queued calls already in flight
// finish; no further Handle*/Tick call should be made afterward.
func (c *Controller) Stop() { c.actor.Address().Stop() }

// HandleGroupDiscovery routes or lazily creates a group machine for a
// group-discovery event.
func (c *Controller) HandleGroupDiscovery(group model.NodeGroup) {
	c.call(func() {
		if m, ok := c.groups[group.Name]; ok {
			m.Discovered(group.Config)
			return
		}
		m := c.newMachine(group.Name, group.Config)
		m.Initialize()
		c.groups[group.Name] = m
	})
}

// HandleNodeDiscovery routes a node-discovery event to its group, lazily
// creating an empty-config group machine if the group hasn't been
// rediscovered yet — a node known to the registry must be tracked even
// before its group is.
func (c *Controller) HandleNodeDiscovery(ctx context.Context, group string, data model.NodeDiscoveryData) {
	c.call(func() {
		m := c.ensureMachine(group)
		m.DiscoveredNode(ctx, data)
	})
}

// HandleNodeExploration does the same for exploration events.
func (c *Controller) HandleNodeExploration(ctx context.Context, group string, info model.CloudNodeInfo) {
	c.call(func() {
		m := c.ensureMachine(group)
		m.ExploredNode(ctx, info)
	})
}

func (c *Controller) ensureMachine(group string) *groupstate.Machine {
	if m, ok := c.groups[group]; ok {
		return m
	}
	m := c.newMachine(group, nil)
	m.Initialize()
	c.groups[group] = m
	return m
}

func (c *Controller) newMachine(group string, config *model.GroupConfig) *groupstate.Machine {
	var factory groupstate.ScalerFactory
	if c.deps.NewScaler != nil {
		factory = c.deps.NewScaler(group)
	} else {
		factory = func(cfg *model.GroupConfig) *scaler.Scaler { return nil }
	}
	return groupstate.New(group, config, factory, c.deps.Now, c.deps.DiscoveryTimeout)
}

// Tick steps every group machine and removes discarded ones.
func (c *Controller) Tick(ctx context.Context) {
	c.call(func() {
		for name, m := range c.groups {
			if err := m.Tick(ctx); err != nil {
				c.deps.logger().Warn("group tick returned error", map[string]any{"group": name, "err": err.Error()})
			}
			if m.Discarded() {
				delete(c.groups, name)
				c.deps.logger().Info("group discarded, removed", map[string]any{"group": name})
			}
		}
		telemetry.GroupsTracked.Set(float64(len(c.groups)))
	})
}

// Groups returns the names of every currently tracked group, for tests and
// diagnostics.
func (c *Controller) Groups() []string {
	var out []string
	c.call(func() {
		out = make([]string, 0, len(c.groups))
		for name := range c.groups {
			out = append(out, name)
		}
	})
	return out
}
