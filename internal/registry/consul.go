package registry

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/payperplay/hosting/internal/model"
)

// ConsulNodeDiscovery implements NodeDiscovery against a Consul service
// catalog, talking to the HTTP API directly with net/http — the same
// raw-client idiom the cloud provider adapters use.
type ConsulNodeDiscovery struct {
	address     string
	serviceName string
	httpClient  *http.Client
}

func NewConsulNodeDiscovery(address, serviceName string) *ConsulNodeDiscovery {
	return &ConsulNodeDiscovery{
		address:     strings.TrimSuffix(address, "/"),
		serviceName: serviceName,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

type consulServiceEntry struct {
	Service struct {
		ID      string   `json:"ID"`
		Address string   `json:"Address"`
		Tags    []string `json:"Tags"`
	} `json:"Service"`
	Checks []struct {
		Status string `json:"Status"`
	} `json:"Checks"`
}

func (c *ConsulNodeDiscovery) ListNodes(ctx context.Context) ([]model.NodeDiscoveryData, error) {
	path := fmt.Sprintf("/v1/health/service/%s", url.PathEscape(c.serviceName))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.address+path, nil)
	if err != nil {
		return nil, fmt.Errorf("consul registry: create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("consul registry: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("consul registry: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("consul registry: API error (status %d): %s", resp.StatusCode, string(body))
	}

	var entries []consulServiceEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("consul registry: parse response: %w", err)
	}

	now := time.Now()
	out := make([]model.NodeDiscoveryData, 0, len(entries))
	for _, e := range entries {
		group, ok := consulGroupFromTags(e.Service.Tags)
		if !ok {
			// No group tag: invisible to discovery, same filtering
			// principle as the group-label contract on the cloud side.
			continue
		}
		state, cause := consulStateFromTags(e.Service.Tags)
		if !consulPassing(e.Checks) {
			state = model.DiscoveryDraining
		}
		out = append(out, model.NodeDiscoveryData{
			Hostname: e.Service.ID,
			Group:    group,
			State:    state,
			Cause:    cause,
			Observed: now,
		})
	}
	return out, nil
}

func consulGroupFromTags(tags []string) (string, bool) {
	for _, t := range tags {
		if rest, ok := strings.CutPrefix(t, "group:"); ok {
			return rest, true
		}
	}
	return "", false
}

func consulPassing(checks []struct {
	Status string `json:"Status"`
}) bool {
	for _, c := range checks {
		if c.Status != "passing" {
			return false
		}
	}
	return true
}

// consulStateTag is the inverse of consulStateFromTags: what UpdateState
// writes must decode back to the same state and cause on the next poll.
func consulStateTag(state model.NodeDiscoveryState, cause model.DrainCause) string {
	if state != model.DiscoveryDraining {
		return "state:" + state.String()
	}
	switch cause {
	case model.CauseRollingUpdate:
		return "state:draining:rolling_update"
	case model.CauseTermination:
		return "state:draining:termination"
	default:
		return "state:draining"
	}
}

func consulStateFromTags(tags []string) (model.NodeDiscoveryState, model.DrainCause) {
	for _, t := range tags {
		switch {
		case t == "state:active":
			return model.DiscoveryActive, model.CauseScaling
		case t == "state:draining:rolling_update":
			return model.DiscoveryDraining, model.CauseRollingUpdate
		case t == "state:draining:termination":
			return model.DiscoveryDraining, model.CauseTermination
		case t == "state:draining":
			return model.DiscoveryDraining, model.CauseScaling
		}
	}
	return model.DiscoveryReady, model.CauseScaling
}

func (c *ConsulNodeDiscovery) UpdateState(ctx context.Context, hostname string, state model.NodeDiscoveryState, cause model.DrainCause) error {
	path := "/v1/agent/service/register"
	body := map[string]interface{}{
		"ID":   hostname,
		"Name": c.serviceName,
		"Tags": []string{consulStateTag(state, cause)},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("consul registry: marshal register body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.address+path, strings.NewReader(string(data)))
	if err != nil {
		return fmt.Errorf("consul registry: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("consul registry: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("consul registry: API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// ConsulGroupDiscovery implements GroupDiscovery against a Consul KV
// prefix: one key per group holding its JSON config, mirroring
// FileGroupDiscovery's DTO.
type ConsulGroupDiscovery struct {
	address    string
	keyPrefix  string
	httpClient *http.Client
}

func NewConsulGroupDiscovery(address, keyPrefix string) *ConsulGroupDiscovery {
	return &ConsulGroupDiscovery{
		address:    strings.TrimSuffix(address, "/"),
		keyPrefix:  strings.TrimSuffix(keyPrefix, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type consulKVEntry struct {
	Key   string `json:"Key"`
	Value string `json:"Value"` // base64
}

func (c *ConsulGroupDiscovery) ListGroups(ctx context.Context) ([]model.NodeGroup, error) {
	path := fmt.Sprintf("/v1/kv/%s?recurse=true", url.PathEscape(c.keyPrefix))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.address+path, nil)
	if err != nil {
		return nil, fmt.Errorf("consul registry: create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("consul registry: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("consul registry: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("consul registry: API error (status %d): %s", resp.StatusCode, string(body))
	}

	var entries []consulKVEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("consul registry: parse response: %w", err)
	}

	out := make([]model.NodeGroup, 0, len(entries))
	for _, e := range entries {
		raw, err := base64.StdEncoding.DecodeString(e.Value)
		if err != nil {
			return nil, fmt.Errorf("consul registry: decode value for %s: %w", e.Key, err)
		}
		var rec fileGroupRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("consul registry: parse value for %s: %w", e.Key, err)
		}
		g := model.NodeGroup{Name: rec.Name}
		if rec.Config != nil {
			cfg := model.GroupConfig{
				NodeBandwidthCapacity: model.BandwidthCapacity{
					TxBps: rec.Config.NodeBandwidthCapacityTxBps,
					RxBps: rec.Config.NodeBandwidthCapacityRxBps,
				},
				BandwidthThresholds: model.BandwidthThresholds{
					ScaleUpPercent:   rec.Config.ScaleUpPercent,
					ScaleDownPercent: rec.Config.ScaleDownPercent,
				},
				MinActiveNodes: rec.Config.MinActiveNodes,
				MinSpareNodes:  rec.Config.MinSpareNodes,
			}
			if rec.Config.MaxNodes != nil {
				cfg.MaxNodes = *rec.Config.MaxNodes
				cfg.MaxNodesSet = true
			}
			if rec.Config.MaxSpareNodes != nil {
				cfg.MaxSpareNodes = *rec.Config.MaxSpareNodes
				cfg.MaxSpareNodesSet = true
			}
			g.Config = &cfg
		}
		out = append(out, g)
	}
	return out, nil
}
