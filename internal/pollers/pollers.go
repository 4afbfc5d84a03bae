// Package pollers implements the three periodic signal sources that feed
// the group controller: group discovery, node discovery, and node
// exploration. Each runs on its own configured interval via
// actorkit.Ticker and never overlaps itself.
package pollers

import (
	"context"
	"time"

	"github.com/payperplay/hosting/internal/actorkit"
	"github.com/payperplay/hosting/internal/cloudprovider"
	"github.com/payperplay/hosting/internal/groupcontroller"
	"github.com/payperplay/hosting/internal/registry"
	"github.com/payperplay/hosting/pkg/logging"
)

// GroupDiscoveryPoller enumerates every configured registry.GroupDiscovery
// source and hands each group found to the controller's HandleGroupDiscovery.
type GroupDiscoveryPoller struct {
	sources    []registry.GroupDiscovery
	controller *groupcontroller.Controller
	ticker     *actorkit.Ticker
	log        *logging.Logger
}

func StartGroupDiscoveryPoller(interval time.Duration, sources []registry.GroupDiscovery, controller *groupcontroller.Controller, log *logging.Logger) *GroupDiscoveryPoller {
	p := &GroupDiscoveryPoller{sources: sources, controller: controller, log: log}
	p.ticker = actorkit.StartTicker(interval, p.poll)
	return p
}

func (p *GroupDiscoveryPoller) poll() {
	ctx := context.Background()
	for _, src := range p.sources {
		groups, err := src.ListGroups(ctx)
		if err != nil {
			p.logger().Warn("group discovery poll failed", map[string]any{"err": err.Error()})
			continue
		}
		for _, g := range groups {
			p.controller.HandleGroupDiscovery(g)
		}
	}
}

func (p *GroupDiscoveryPoller) logger() *logging.Logger {
	if p.log != nil {
		return p.log
	}
	return logging.Default()
}

func (p *GroupDiscoveryPoller) Stop() { p.ticker.Stop() }

// NodeDiscoveryPoller enumerates every node the registry currently reports,
// across every group at once, and routes each by its own Group field — a
// group the controller hasn't rediscovered yet is lazily initialized, so a
// node known to the registry always has a home.
type NodeDiscoveryPoller struct {
	source     registry.NodeDiscovery
	controller *groupcontroller.Controller
	ticker     *actorkit.Ticker
	log        *logging.Logger
}

func StartNodeDiscoveryPoller(interval time.Duration, source registry.NodeDiscovery, controller *groupcontroller.Controller, log *logging.Logger) *NodeDiscoveryPoller {
	p := &NodeDiscoveryPoller{source: source, controller: controller, log: log}
	p.ticker = actorkit.StartTicker(interval, p.poll)
	return p
}

func (p *NodeDiscoveryPoller) poll() {
	ctx := context.Background()
	nodes, err := p.source.ListNodes(ctx)
	if err != nil {
		p.logger().Warn("node discovery poll failed", map[string]any{"err": err.Error()})
		return
	}
	for _, n := range nodes {
		p.controller.HandleNodeDiscovery(ctx, n.Group, n)
	}
}

func (p *NodeDiscoveryPoller) logger() *logging.Logger {
	if p.log != nil {
		return p.log
	}
	return logging.Default()
}

func (p *NodeDiscoveryPoller) Stop() { p.ticker.Stop() }

// NodeExplorationPoller enumerates every cloud machine carrying the
// group-label contract, across every group at once, and routes each by its
// own Group field — same lazy-initialization behavior as
// NodeDiscoveryPoller.
type NodeExplorationPoller struct {
	provider   cloudprovider.Provider
	controller *groupcontroller.Controller
	ticker     *actorkit.Ticker
	log        *logging.Logger
}

func StartNodeExplorationPoller(interval time.Duration, provider cloudprovider.Provider, controller *groupcontroller.Controller, log *logging.Logger) *NodeExplorationPoller {
	p := &NodeExplorationPoller{provider: provider, controller: controller, log: log}
	p.ticker = actorkit.StartTicker(interval, p.poll)
	return p
}

func (p *NodeExplorationPoller) poll() {
	ctx := context.Background()
	infos, err := p.provider.ListNodes(ctx)
	if err != nil {
		p.logger().Warn("node exploration poll failed", map[string]any{"err": err.Error()})
		return
	}
	for _, info := range infos {
		p.controller.HandleNodeExploration(ctx, info.Group, info)
	}
}

func (p *NodeExplorationPoller) logger() *logging.Logger {
	if p.log != nil {
		return p.log
	}
	return logging.Default()
}

func (p *NodeExplorationPoller) Stop() { p.ticker.Stop() }
