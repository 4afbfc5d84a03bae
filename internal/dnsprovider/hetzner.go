package dnsprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/payperplay/hosting/internal/dnsprovider/recordstore"
)

const hetznerDNSBaseURL = "https://dns.hetzner.com/api/v1"

// Hetzner implements Provider against the Hetzner DNS API with raw
// net/http, the same idiom as the Hetzner cloud adapter.
type Hetzner struct {
	token      string
	zoneID     string
	recordTTL  int
	httpClient *http.Client
	store      *recordstore.Store
}

// NewHetzner builds a Hetzner DNS adapter. recordTTL of 0 falls back to 60
// seconds, Hetzner's own console default.
func NewHetzner(token, zoneID string, recordTTL int) *Hetzner {
	if recordTTL == 0 {
		recordTTL = 60
	}
	return &Hetzner{
		token:      token,
		zoneID:     zoneID,
		recordTTL:  recordTTL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		store:      recordstore.New(),
	}
}

type hetznerDNSRecord struct {
	ID     string `json:"id"`
	ZoneID string `json:"zone_id"`
	Type   string `json:"type"`
	Name   string `json:"name"`
	Value  string `json:"value"`
	TTL    int    `json:"ttl"`
}

func (h *Hetzner) ensureLoaded(ctx context.Context) error {
	if !h.store.IsEmpty() {
		return nil
	}
	resp, err := h.request(ctx, "GET", "/records?zone_id="+h.zoneID, nil)
	if err != nil {
		return fmt.Errorf("hetzner dns: list records: %w", err)
	}
	var result struct {
		Records []hetznerDNSRecord `json:"records"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("hetzner dns: parse records: %w", err)
	}
	for _, r := range result.Records {
		h.store.Add(Record{ID: r.ID, Name: r.Name, Type: RecordType(r.Type), Value: r.Value, TTL: r.TTL})
	}
	h.store.MarkLoaded()
	return nil
}

func (h *Hetzner) CreateRecords(ctx context.Context, hostname string, ipv4, ipv6 []string) error {
	if err := h.ensureLoaded(ctx); err != nil {
		return err
	}
	for _, ip := range ipv4 {
		if err := h.createOne(ctx, hostname, A, ip); err != nil {
			return err
		}
	}
	for _, ip := range ipv6 {
		if err := h.createOne(ctx, hostname, AAAA, ip); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hetzner) createOne(ctx context.Context, hostname string, t RecordType, value string) error {
	body := map[string]interface{}{
		"zone_id": h.zoneID,
		"type":    string(t),
		"name":    hostname,
		"value":   value,
		"ttl":     h.recordTTL,
	}
	resp, err := h.request(ctx, "POST", "/records", body)
	if err != nil {
		return fmt.Errorf("hetzner dns: create %s record for %s: %w", t, hostname, err)
	}
	var result struct {
		Record hetznerDNSRecord `json:"record"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("hetzner dns: parse create response: %w", err)
	}
	h.store.Add(Record{ID: result.Record.ID, Name: hostname, Type: t, Value: value, TTL: h.recordTTL})
	return nil
}

func (h *Hetzner) DeleteRecords(ctx context.Context, hostname string) error {
	if err := h.ensureLoaded(ctx); err != nil {
		return err
	}
	var ids []string
	for _, t := range []RecordType{A, AAAA} {
		for _, r := range h.store.Get(hostname, t) {
			ids = append(ids, r.ID)
		}
	}
	for _, id := range ids {
		if _, err := h.request(ctx, "DELETE", "/records/"+id, nil); err != nil {
			return fmt.Errorf("hetzner dns: delete record %s: %w", id, err)
		}
		h.store.Remove(id)
	}
	return nil
}

func (h *Hetzner) request(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, hetznerDNSBaseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Auth-API-Token", h.token)
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
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
