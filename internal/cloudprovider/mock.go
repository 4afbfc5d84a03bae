package cloudprovider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/payperplay/hosting/internal/model"
)

// GroupLabelKey is the default label key every managed machine must carry;
// machines missing it are invisible to exploration.
const GroupLabelKey = "edge-autoscaler/group"

// Mock is an in-memory Provider for tests and local runs without a real
// cloud account.
type Mock struct {
	mu    sync.Mutex
	nodes map[string]model.CloudNodeInfo
	seq   int
}

func NewMock() *Mock {
	return &Mock{nodes: make(map[string]model.CloudNodeInfo)}
}

func (m *Mock) CreateNode(_ context.Context, hostname, group string, _ model.NodeState) (model.CloudNodeInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	info := model.CloudNodeInfo{
		ProviderID: fmt.Sprintf("mock-%d", m.seq),
		Hostname:   hostname,
		Group:      group,
		CreatedAt:  time.Now(),
		IPv4:       []string{fmt.Sprintf("10.0.%d.%d", m.seq/254, (m.seq%254)+1)},
		Labels:     map[string]string{GroupLabelKey: group},
	}
	m.nodes[hostname] = info
	return info, nil
}

func (m *Mock) DeleteNode(_ context.Context, info model.CloudNodeInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[info.Hostname]; !ok {
		return ErrNotFound
	}
	delete(m.nodes, info.Hostname)
	return nil
}

func (m *Mock) ListNodes(_ context.Context) ([]model.CloudNodeInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.CloudNodeInfo
	for _, n := range m.nodes {
		if group, ok := n.Labels[GroupLabelKey]; ok && group != "" {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *Mock) GetNodeInfo(_ context.Context, hostname string) (model.CloudNodeInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[hostname]
	if !ok {
		return model.CloudNodeInfo{}, ErrNotFound
	}
	return n, nil
}
