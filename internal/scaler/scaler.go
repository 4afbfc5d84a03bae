// Package scaler implements the group scaler: the 1Hz decision loop that
// reconciles one node group's spare pool and active fleet against its
// config, driving a per-node nodestate.Machine for every tracked host and
// serializing decisions with a scale-lock protocol.
package scaler

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/payperplay/hosting/internal/actorkit"
	"github.com/payperplay/hosting/internal/cloudprovider"
	"github.com/payperplay/hosting/internal/dnsprovider"
	"github.com/payperplay/hosting/internal/model"
	"github.com/payperplay/hosting/internal/nodestate"
	"github.com/payperplay/hosting/internal/registry"
	"github.com/payperplay/hosting/pkg/logging"
	"github.com/payperplay/hosting/pkg/telemetry"
)

type trackedNode struct {
	machine   *nodestate.Machine
	lastStats *model.NodeStats
	state     model.NodeState
	cause     model.DrainCause
}

// Deps are the scaler's collaborators.
type Deps struct {
	Group string

	Cloud    cloudprovider.Provider
	DNS      dnsprovider.Provider
	Registry registry.NodeDiscovery
	Stats    nodestate.StatsStreamFactory

	HostnameSuffix string
	Rng            *rand.Rand

	Now             func() time.Time
	Timeouts        nodestate.Timeouts
	StartupCooldown time.Duration
	ScaleLockMin    time.Duration
	HasScaleLockMin bool
	ScaleLockMax    time.Duration

	// EventSink, if set, receives every node state transition for
	// operational visibility (internal/debugserver's /ws/events). Never
	// consulted by the reconciliation logic itself.
	EventSink func(model.NodeStateInfo)

	// StatsSink, if set, receives every bandwidth sample for historical
	// charting (internal/telemetrysink). Never consulted by the
	// reconciliation logic itself — lastStats below remains the only
	// thing scale decisions read.
	StatsSink func(group string, sample model.NodeStats)

	// AuditSink, if set, records every scale decision for after-the-fact
	// debugging (internal/audit). Not engine truth — never read back.
	AuditSink func(group, hostname, kind string, detail any)

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

func (d *Deps) cooldowns() model.Cooldowns {
	return model.Cooldowns{Min: d.ScaleLockMin, HasMin: d.HasScaleLockMin, Max: d.ScaleLockMax}
}

// Scaler is one node group's spare/active fleet manager.
type Scaler struct {
	deps      Deps
	config    *model.GroupConfig
	createdAt time.Time

	nodes map[string]*trackedNode

	activeLocks []model.ScaleLock
	spareUp     map[string]model.ScaleLock
	spareDown   map[string]model.ScaleLock

	terminating bool
}

// New creates a scaler for group with its current config (possibly nil —
// an observed-only group is never scaled).
func New(deps Deps, config *model.GroupConfig) *Scaler {
	return &Scaler{
		deps:      deps,
		config:    config,
		createdAt: deps.now(),
		nodes:     make(map[string]*trackedNode),
		spareUp:   make(map[string]model.ScaleLock),
		spareDown: make(map[string]model.ScaleLock),
	}
}

// UpdateConfig replaces the scaler's config on a fresh group-discovery event.
func (s *Scaler) UpdateConfig(config *model.GroupConfig) { s.config = config }

// HandleNodeDiscovery routes a discovery event to the right node controller,
// creating a tracked node if the host is new.
func (s *Scaler) HandleNodeDiscovery(ctx context.Context, data model.NodeDiscoveryData) {
	t := s.nodeFor(data.Hostname)
	t.machine.Handle(ctx, nodestate.DiscoveredNode{Data: data})
}

// HandleNodeExploration routes an exploration event the same way.
func (s *Scaler) HandleNodeExploration(ctx context.Context, info model.CloudNodeInfo) {
	t := s.nodeFor(info.Hostname)
	t.machine.Handle(ctx, nodestate.ExploredNode{Info: info})
}

// HandleStats records the latest bandwidth sample for hostname.
func (s *Scaler) HandleStats(stats model.NodeStats) {
	if t, ok := s.nodes[stats.Hostname]; ok {
		cp := stats
		t.lastStats = &cp
	}
	if s.deps.StatsSink != nil {
		s.deps.StatsSink(s.deps.Group, stats)
	}
}

func (s *Scaler) nodeFor(hostname string) *trackedNode {
	if t, ok := s.nodes[hostname]; ok {
		return t
	}
	t := &trackedNode{}
	t.machine = nodestate.New(s.newNodeDeps(hostname, t))
	s.nodes[hostname] = t
	return t
}

func (s *Scaler) newNodeDeps(hostname string, t *trackedNode) nodestate.Deps {
	return nodestate.Deps{
		Hostname: hostname,
		Group:    s.deps.Group,
		Cloud:    s.deps.Cloud,
		DNS:      s.deps.DNS,
		Registry: s.deps.Registry,
		Stats:    s.deps.Stats,
		Now:      s.deps.Now,
		Timeouts: s.deps.Timeouts,
		Observer: func(info model.NodeStateInfo) {
			t.state = info.State
			t.cause = info.Cause
			if s.deps.EventSink != nil {
				s.deps.EventSink(info)
			}
		},
		StatsObserver: s.HandleStats,
		Log:           s.deps.Log,
	}
}

// errTerminated is the scaler's fatal death signal: the group state
// machine polls Tick's error to know when every node has finished draining
// away.
type errTerminated struct{}

func (errTerminated) Error() string { return "scaler: terminated, node map empty" }

// Tick runs one 1Hz decision cycle.
func (s *Scaler) Tick(ctx context.Context) error {
	for hostname, t := range s.nodes {
		t.machine.Handle(ctx, nodestate.Tick{})
		if t.machine.Terminal() {
			delete(s.nodes, hostname)
			delete(s.spareUp, hostname)
			delete(s.spareDown, hostname)
		}
	}

	if s.terminating {
		if len(s.nodes) == 0 {
			return actorkit.AsFatal(errTerminated{})
		}
		return nil
	}

	if !s.eligible() {
		return nil
	}

	s.releaseLocks()
	s.scaleSpare(ctx)
	if len(s.activeLocks) == 0 {
		s.scaleActive(ctx)
	}
	s.reportMetrics()
	return nil
}

// reportMetrics refreshes this group's gauges. Counters (scale actions)
// are incremented at the point of decision instead, in decisions.go.
func (s *Scaler) reportMetrics() {
	counts := make(map[string]int)
	for _, t := range s.nodes {
		counts[t.state.String()]++
	}
	for state, n := range counts {
		telemetry.NodesByState.WithLabelValues(s.deps.Group, state).Set(float64(n))
	}
	telemetry.ScaleLocksActive.WithLabelValues(s.deps.Group).Set(float64(len(s.activeLocks) + len(s.spareUp) + len(s.spareDown)))
}

func (s *Scaler) eligible() bool {
	if s.config == nil || s.terminating {
		return false
	}
	return s.deps.now().Sub(s.createdAt) >= s.deps.StartupCooldown
}

func (s *Scaler) releaseLocks() {
	now := s.deps.now()

	kept := s.activeLocks[:0]
	for _, lock := range s.activeLocks {
		present, state := s.observe(lock.Hostname)
		if !lock.ReadyToRelease(now, present, state) {
			kept = append(kept, lock)
		}
	}
	s.activeLocks = kept

	for host, lock := range s.spareUp {
		present, state := s.observe(host)
		if lock.ReadyToRelease(now, present, state) {
			delete(s.spareUp, host)
		}
	}
	for host, lock := range s.spareDown {
		present, state := s.observe(host)
		if lock.ReadyToRelease(now, present, state) {
			delete(s.spareDown, host)
		}
	}
}

func (s *Scaler) observe(hostname string) (present bool, state model.NodeState) {
	t, ok := s.nodes[hostname]
	if !ok {
		return false, 0
	}
	return true, t.state
}

// newLock mints a scale lock. IDs are uuids rather than a counter so they
// stay unique across restarts and are safe to correlate in audit events.
func (s *Scaler) newLock(hostname string, exp model.ScaleExpectation) model.ScaleLock {
	return model.ScaleLock{
		ID:          uuid.NewString(),
		Hostname:    hostname,
		Expectation: exp,
		Cooldowns:   s.deps.cooldowns(),
		CreatedAt:   s.deps.now(),
	}
}

// Terminate begins group teardown: every node is commanded to deprovision
// with cause Termination; Tick returns errTerminated once the node map is
// empty.
func (s *Scaler) Terminate(ctx context.Context) {
	s.terminating = true
	for _, t := range s.nodes {
		t.machine.Handle(ctx, nodestate.DeprovisionNode{Cause: model.CauseTermination})
	}
}

func (s *Scaler) newHostname() string {
	return model.GenerateHostname(s.deps.Group, s.deps.HostnameSuffix, s.deps.Rng)
}

// recordScaleAction reports a committed decision to both pkg/telemetry's
// counter and the optional audit sink.
func (s *Scaler) recordScaleAction(hostname, direction, action string) {
	telemetry.RecordScaleAction(s.deps.Group, direction, action)
	if s.deps.AuditSink != nil {
		s.deps.AuditSink(s.deps.Group, hostname, "scale_action", direction+"/"+action)
	}
}
