package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/payperplay/hosting/internal/model"
)

// FileNodeDiscovery implements NodeDiscovery by reading a JSON file of
// discovery data, the same load-whole-file idiom as cloudprovider.File.
type FileNodeDiscovery struct {
	path string
}

func NewFileNodeDiscovery(path string) *FileNodeDiscovery {
	return &FileNodeDiscovery{path: path}
}

type fileNodeRecord struct {
	Hostname string `json:"hostname"`
	Group    string `json:"group"`
	State    string `json:"state"`
	Cause    string `json:"cause,omitempty"`
}

func parseDiscoveryState(s string) model.NodeDiscoveryState {
	switch s {
	case "active":
		return model.DiscoveryActive
	case "draining":
		return model.DiscoveryDraining
	default:
		return model.DiscoveryReady
	}
}

func parseDrainCause(s string) model.DrainCause {
	switch s {
	case "rolling_update":
		return model.CauseRollingUpdate
	case "termination":
		return model.CauseTermination
	default:
		return model.CauseScaling
	}
}

func (f *FileNodeDiscovery) ListNodes(_ context.Context) ([]model.NodeDiscoveryData, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry/file: read %s: %w", f.path, err)
	}
	var records []fileNodeRecord
	if len(data) > 0 {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("registry/file: parse %s: %w", f.path, err)
		}
	}
	now := time.Now()
	out := make([]model.NodeDiscoveryData, 0, len(records))
	for _, r := range records {
		out = append(out, model.NodeDiscoveryData{
			Hostname: r.Hostname,
			Group:    r.Group,
			State:    parseDiscoveryState(r.State),
			Cause:    parseDrainCause(r.Cause),
			Observed: now,
		})
	}
	return out, nil
}

// UpdateState is a no-op: the file-backed registry is a read-only fixture
// for local development, not a real writable registry.
func (f *FileNodeDiscovery) UpdateState(context.Context, string, model.NodeDiscoveryState, model.DrainCause) error {
	return nil
}

// FileGroupDiscovery implements GroupDiscovery from a JSON file listing
// group names and optional scaling config.
type FileGroupDiscovery struct {
	path string
}

func NewFileGroupDiscovery(path string) *FileGroupDiscovery {
	return &FileGroupDiscovery{path: path}
}

type fileGroupRecord struct {
	Name   string             `json:"name"`
	Config *fileGroupConfigDTO `json:"config,omitempty"`
}

type fileGroupConfigDTO struct {
	NodeBandwidthCapacityTxBps float64 `json:"node_bandwidth_capacity_tx_bps"`
	NodeBandwidthCapacityRxBps float64 `json:"node_bandwidth_capacity_rx_bps"`
	ScaleUpPercent             float64 `json:"scale_up_percent"`
	ScaleDownPercent           float64 `json:"scale_down_percent"`
	MinActiveNodes             int     `json:"min_active_nodes"`
	MaxNodes                   *int    `json:"max_nodes,omitempty"`
	MinSpareNodes              int     `json:"min_spare_nodes"`
	MaxSpareNodes              *int    `json:"max_spare_nodes,omitempty"`
}

func (f *FileGroupDiscovery) ListGroups(_ context.Context) ([]model.NodeGroup, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry/file: read %s: %w", f.path, err)
	}
	var records []fileGroupRecord
	if len(data) > 0 {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("registry/file: parse %s: %w", f.path, err)
		}
	}
	out := make([]model.NodeGroup, 0, len(records))
	for _, r := range records {
		g := model.NodeGroup{Name: r.Name}
		if r.Config != nil {
			cfg := model.GroupConfig{
				NodeBandwidthCapacity: model.BandwidthCapacity{
					TxBps: r.Config.NodeBandwidthCapacityTxBps,
					RxBps: r.Config.NodeBandwidthCapacityRxBps,
				},
				BandwidthThresholds: model.BandwidthThresholds{
					ScaleUpPercent:   r.Config.ScaleUpPercent,
					ScaleDownPercent: r.Config.ScaleDownPercent,
				},
				MinActiveNodes: r.Config.MinActiveNodes,
				MinSpareNodes:  r.Config.MinSpareNodes,
			}
			if r.Config.MaxNodes != nil {
				cfg.MaxNodes = *r.Config.MaxNodes
				cfg.MaxNodesSet = true
			}
			if r.Config.MaxSpareNodes != nil {
				cfg.MaxSpareNodes = *r.Config.MaxSpareNodes
				cfg.MaxSpareNodesSet = true
			}
			g.Config = &cfg
		}
		out = append(out, g)
	}
	return out, nil
}
