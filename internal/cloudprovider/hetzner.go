package cloudprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/payperplay/hosting/internal/model"
)

const defaultHetznerAPIBase = "https://api.hetzner.cloud/v1"

// HetznerConfig configures the Hetzner Cloud adapter (cloud_provider:
// hetzner{server_type,image,ssh_keys,group_label_name,api_address,
// api_token,location?}).
type HetznerConfig struct {
	ServerType     string
	Image          string
	SSHKeys        []string
	GroupLabelName string
	APIAddress     string // defaults to defaultHetznerAPIBase
	APIToken       string
	Location       string // optional
}

// Hetzner implements Provider against the Hetzner Cloud API: manual JSON
// marshal, bearer auth header, status-code range check — no SDK, the API
// surface this system needs is four endpoints.
type Hetzner struct {
	cfg        HetznerConfig
	httpClient *http.Client
	userData   UserDataFunc
}

// UserDataFunc renders the cloud-init user-data for a freshly provisioned
// machine.
type UserDataFunc func(hostname, group string, targetState model.NodeState) (string, error)

func NewHetzner(cfg HetznerConfig, userData UserDataFunc) *Hetzner {
	if cfg.APIAddress == "" {
		cfg.APIAddress = defaultHetznerAPIBase
	}
	if cfg.GroupLabelName == "" {
		cfg.GroupLabelName = GroupLabelKey
	}
	return &Hetzner{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userData:   userData,
	}
}

type hetznerServer struct {
	ID        int64             `json:"id"`
	Name      string            `json:"name"`
	Status    string            `json:"status"`
	Created   time.Time         `json:"created"`
	PublicNet hetznerPublicNet  `json:"public_net"`
	Labels    map[string]string `json:"labels"`
}

type hetznerPublicNet struct {
	IPv4 hetznerIPv4 `json:"ipv4"`
	IPv6 hetznerIPv6 `json:"ipv6"`
}

type hetznerIPv4 struct {
	IP string `json:"ip"`
}

type hetznerIPv6 struct {
	IP string `json:"ip"` // a /64 network; the host address is ::1 within it
}

func (h *Hetzner) CreateNode(ctx context.Context, hostname, group string, targetState model.NodeState) (model.CloudNodeInfo, error) {
	userData := ""
	if h.userData != nil {
		rendered, err := h.userData(hostname, group, targetState)
		if err != nil {
			return model.CloudNodeInfo{}, fmt.Errorf("hetzner cloud: render user-data for %s: %w", hostname, err)
		}
		userData = rendered
	}

	body := map[string]any{
		"name":        hostname,
		"server_type": h.cfg.ServerType,
		"image":       h.cfg.Image,
		"user_data":   userData,
		"ssh_keys":    h.cfg.SSHKeys,
		"labels":      map[string]string{h.cfg.GroupLabelName: group},
	}
	if h.cfg.Location != "" {
		body["location"] = h.cfg.Location
	}

	resp, err := h.request(ctx, "POST", "/servers", body)
	if err != nil {
		return model.CloudNodeInfo{}, fmt.Errorf("hetzner cloud: create server %s: %w", hostname, err)
	}
	var result struct {
		Server hetznerServer `json:"server"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return model.CloudNodeInfo{}, fmt.Errorf("hetzner cloud: parse create response: %w", err)
	}
	return h.toInfo(result.Server, group), nil
}

func (h *Hetzner) DeleteNode(ctx context.Context, info model.CloudNodeInfo) error {
	_, err := h.request(ctx, "DELETE", "/servers/"+info.ProviderID, nil)
	if err != nil {
		if isHetznerNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("hetzner cloud: delete server %s: %w", info.Hostname, err)
	}
	return nil
}

// ListNodes enumerates every server carrying the configured group label,
// across every group at once — lazy group creation depends on seeing every
// group's machines without knowing the names up front.
func (h *Hetzner) ListNodes(ctx context.Context) ([]model.CloudNodeInfo, error) {
	resp, err := h.request(ctx, "GET", "/servers?label_selector="+h.cfg.GroupLabelName, nil)
	if err != nil {
		return nil, fmt.Errorf("hetzner cloud: list servers: %w", err)
	}
	var result struct {
		Servers []hetznerServer `json:"servers"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("hetzner cloud: parse list response: %w", err)
	}
	out := make([]model.CloudNodeInfo, 0, len(result.Servers))
	for _, s := range result.Servers {
		group, ok := s.Labels[h.cfg.GroupLabelName]
		if !ok || group == "" {
			continue // missing the group label: invisible to exploration
		}
		out = append(out, h.toInfo(s, group))
	}
	return out, nil
}

func (h *Hetzner) GetNodeInfo(ctx context.Context, hostname string) (model.CloudNodeInfo, error) {
	resp, err := h.request(ctx, "GET", "/servers?name="+hostname, nil)
	if err != nil {
		return model.CloudNodeInfo{}, fmt.Errorf("hetzner cloud: get server %s: %w", hostname, err)
	}
	var result struct {
		Servers []hetznerServer `json:"servers"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return model.CloudNodeInfo{}, fmt.Errorf("hetzner cloud: parse get response: %w", err)
	}
	if len(result.Servers) == 0 {
		return model.CloudNodeInfo{}, ErrNotFound
	}
	s := result.Servers[0]
	group, ok := s.Labels[h.cfg.GroupLabelName]
	if !ok || group == "" {
		return model.CloudNodeInfo{}, ErrNotFound
	}
	return h.toInfo(s, group), nil
}

func (h *Hetzner) toInfo(s hetznerServer, group string) model.CloudNodeInfo {
	info := model.CloudNodeInfo{
		ProviderID: strconv.FormatInt(s.ID, 10),
		Hostname:   s.Name,
		Group:      group,
		CreatedAt:  s.Created,
		Labels:     s.Labels,
	}
	if s.PublicNet.IPv4.IP != "" {
		info.IPv4 = []string{s.PublicNet.IPv4.IP}
	}
	if s.PublicNet.IPv6.IP != "" {
		info.IPv6 = []string{s.PublicNet.IPv6.IP}
	}
	return info
}

func (h *Hetzner) request(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.cfg.APIAddress+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+h.cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, &hetznerAPIError{status: resp.StatusCode, body: string(respBody)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

type hetznerAPIError struct {
	status int
	body   string
}

func (e *hetznerAPIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.status, e.body)
}

func isHetznerNotFound(err error) bool {
	apiErr, ok := err.(*hetznerAPIError)
	return ok && apiErr.status == http.StatusNotFound
}
