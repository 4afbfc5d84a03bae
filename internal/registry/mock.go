package registry

import (
	"context"
	"sync"

	"github.com/payperplay/hosting/internal/model"
)

// Mock is an in-memory NodeDiscovery + GroupDiscovery for tests.
type Mock struct {
	mu     sync.Mutex
	nodes  map[string][]model.NodeDiscoveryData // group -> nodes
	groups []model.NodeGroup
}

func NewMock() *Mock {
	return &Mock{nodes: make(map[string][]model.NodeDiscoveryData)}
}

// SeedGroups installs the groups ListGroups will report.
func (m *Mock) SeedGroups(groups ...model.NodeGroup) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups = groups
}

// SeedNodes installs the discovery data ListNodes will report for group.
// Each record's Group field is set to group, overriding whatever the
// caller passed so callers can't accidentally seed under a mismatched key.
func (m *Mock) SeedNodes(group string, nodes ...model.NodeDiscoveryData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range nodes {
		nodes[i].Group = group
	}
	m.nodes[group] = nodes
}

func (m *Mock) ListGroups(_ context.Context) ([]model.NodeGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.NodeGroup, len(m.groups))
	copy(out, m.groups)
	return out, nil
}

func (m *Mock) ListNodes(_ context.Context) ([]model.NodeDiscoveryData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.NodeDiscoveryData
	for _, nodes := range m.nodes {
		out = append(out, nodes...)
	}
	return out, nil
}

func (m *Mock) UpdateState(_ context.Context, hostname string, state model.NodeDiscoveryState, cause model.DrainCause) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for group, nodes := range m.nodes {
		for i, n := range nodes {
			if n.Hostname == hostname {
				m.nodes[group][i].State = state
				m.nodes[group][i].Cause = cause
				return nil
			}
		}
	}
	return nil
}
