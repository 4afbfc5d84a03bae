package cloudprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/payperplay/hosting/internal/model"
)

// File is a JSON-file-backed Provider: the exploration file lists the
// machines that "exist", and create/delete actions are written back to it,
// useful for local development without a real cloud account. When a
// discovery path is configured, create/delete are mirrored into it in the
// node-discovery fixture format, standing in for a freshly booted machine
// registering itself — so a file-backed setup works end to end through the
// file node-discovery provider.
type File struct {
	mu              sync.Mutex
	explorationPath string
	discoveryPath   string
}

type fileRecord struct {
	ProviderID string            `json:"provider_id"`
	Hostname   string            `json:"hostname"`
	Group      string            `json:"group"`
	CreatedAt  time.Time         `json:"created_at"`
	IPv4       []string          `json:"ipv4"`
	IPv6       []string          `json:"ipv6"`
	Labels     map[string]string `json:"labels"`
}

func NewFile(explorationPath, discoveryPath string) *File {
	return &File{explorationPath: explorationPath, discoveryPath: discoveryPath}
}

func (f *File) load() (map[string]fileRecord, error) {
	data, err := os.ReadFile(f.explorationPath)
	if os.IsNotExist(err) {
		return map[string]fileRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cloudprovider/file: read %s: %w", f.explorationPath, err)
	}
	var records []fileRecord
	if len(data) > 0 {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("cloudprovider/file: parse %s: %w", f.explorationPath, err)
		}
	}
	out := make(map[string]fileRecord, len(records))
	for _, r := range records {
		out[r.Hostname] = r
	}
	return out, nil
}

func (f *File) save(recordsByHost map[string]fileRecord) error {
	records := make([]fileRecord, 0, len(recordsByHost))
	for _, r := range recordsByHost {
		records = append(records, r)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("cloudprovider/file: marshal: %w", err)
	}
	if err := os.WriteFile(f.explorationPath, data, 0o644); err != nil {
		return fmt.Errorf("cloudprovider/file: write %s: %w", f.explorationPath, err)
	}
	return nil
}

func toInfo(r fileRecord) model.CloudNodeInfo {
	return model.CloudNodeInfo{
		ProviderID: r.ProviderID,
		Hostname:   r.Hostname,
		Group:      r.Group,
		CreatedAt:  r.CreatedAt,
		IPv4:       r.IPv4,
		IPv6:       r.IPv6,
		Labels:     r.Labels,
	}
}

func (f *File) CreateNode(_ context.Context, hostname, group string, targetState model.NodeState) (model.CloudNodeInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.load()
	if err != nil {
		return model.CloudNodeInfo{}, err
	}
	r := fileRecord{
		ProviderID: fmt.Sprintf("file-%d", time.Now().UnixNano()),
		Hostname:   hostname,
		Group:      group,
		CreatedAt:  time.Now(),
		IPv4:       []string{"127.0.0.1"},
		Labels:     map[string]string{GroupLabelKey: group},
	}
	records[hostname] = r
	if err := f.save(records); err != nil {
		return model.CloudNodeInfo{}, err
	}
	if err := f.updateDiscovery(hostname, group, targetState, true); err != nil {
		return model.CloudNodeInfo{}, err
	}
	return toInfo(r), nil
}

func (f *File) DeleteNode(_ context.Context, info model.CloudNodeInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := records[info.Hostname]; !ok {
		return ErrNotFound
	}
	delete(records, info.Hostname)
	if err := f.save(records); err != nil {
		return err
	}
	return f.updateDiscovery(info.Hostname, info.Group, 0, false)
}

type fileDiscoveryRecord struct {
	Hostname string `json:"hostname"`
	Group    string `json:"group"`
	State    string `json:"state"`
}

// updateDiscovery rewrites the discovery fixture with the node added (in
// its target state) or removed. A File without a discovery path skips the
// mirroring entirely.
func (f *File) updateDiscovery(hostname, group string, targetState model.NodeState, present bool) error {
	if f.discoveryPath == "" {
		return nil
	}
	data, err := os.ReadFile(f.discoveryPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cloudprovider/file: read %s: %w", f.discoveryPath, err)
	}
	var records []fileDiscoveryRecord
	if len(data) > 0 {
		if err := json.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("cloudprovider/file: parse %s: %w", f.discoveryPath, err)
		}
	}
	out := records[:0]
	for _, r := range records {
		if r.Hostname != hostname {
			out = append(out, r)
		}
	}
	if present {
		state := "ready"
		if targetState == model.StateActive {
			state = "active"
		}
		out = append(out, fileDiscoveryRecord{Hostname: hostname, Group: group, State: state})
	}
	data, err = json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("cloudprovider/file: marshal %s: %w", f.discoveryPath, err)
	}
	if err := os.WriteFile(f.discoveryPath, data, 0o644); err != nil {
		return fmt.Errorf("cloudprovider/file: write %s: %w", f.discoveryPath, err)
	}
	return nil
}

func (f *File) ListNodes(_ context.Context) ([]model.CloudNodeInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.load()
	if err != nil {
		return nil, err
	}
	var out []model.CloudNodeInfo
	for _, r := range records {
		if group, ok := r.Labels[GroupLabelKey]; ok && group != "" {
			out = append(out, toInfo(r))
		}
	}
	return out, nil
}

func (f *File) GetNodeInfo(_ context.Context, hostname string) (model.CloudNodeInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.load()
	if err != nil {
		return model.CloudNodeInfo{}, err
	}
	r, ok := records[hostname]
	if !ok {
		return model.CloudNodeInfo{}, ErrNotFound
	}
	return toInfo(r), nil
}
