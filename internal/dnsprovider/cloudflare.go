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

const cloudflareBaseURL = "https://api.cloudflare.com/client/v4"

// Cloudflare implements Provider against the Cloudflare DNS API, the same
// raw-http idiom as Hetzner.
type Cloudflare struct {
	token      string
	zoneID     string
	recordTTL  int
	httpClient *http.Client
	store      *recordstore.Store
}

// NewCloudflare builds a Cloudflare DNS adapter. recordTTL of 0 falls back
// to Cloudflare's "automatic" TTL sentinel value of 1.
func NewCloudflare(token, zoneID string, recordTTL int) *Cloudflare {
	if recordTTL == 0 {
		recordTTL = 1
	}
	return &Cloudflare{
		token:      token,
		zoneID:     zoneID,
		recordTTL:  recordTTL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		store:      recordstore.New(),
	}
}

type cloudflareDNSRecord struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
}

func (c *Cloudflare) ensureLoaded(ctx context.Context) error {
	if !c.store.IsEmpty() {
		return nil
	}
	resp, err := c.request(ctx, "GET", "/zones/"+c.zoneID+"/dns_records", nil)
	if err != nil {
		return fmt.Errorf("cloudflare dns: list records: %w", err)
	}
	var result struct {
		Result []cloudflareDNSRecord `json:"result"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("cloudflare dns: parse records: %w", err)
	}
	for _, r := range result.Result {
		c.store.Add(Record{ID: r.ID, Name: r.Name, Type: RecordType(r.Type), Value: r.Content, TTL: r.TTL})
	}
	c.store.MarkLoaded()
	return nil
}

func (c *Cloudflare) CreateRecords(ctx context.Context, hostname string, ipv4, ipv6 []string) error {
	if err := c.ensureLoaded(ctx); err != nil {
		return err
	}
	for _, ip := range ipv4 {
		if err := c.createOne(ctx, hostname, A, ip); err != nil {
			return err
		}
	}
	for _, ip := range ipv6 {
		if err := c.createOne(ctx, hostname, AAAA, ip); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cloudflare) createOne(ctx context.Context, hostname string, t RecordType, value string) error {
	body := map[string]interface{}{
		"type":    string(t),
		"name":    hostname,
		"content": value,
		"ttl":     c.recordTTL,
		"proxied": false,
	}
	resp, err := c.request(ctx, "POST", "/zones/"+c.zoneID+"/dns_records", body)
	if err != nil {
		return fmt.Errorf("cloudflare dns: create %s record for %s: %w", t, hostname, err)
	}
	var result struct {
		Result cloudflareDNSRecord `json:"result"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("cloudflare dns: parse create response: %w", err)
	}
	c.store.Add(Record{ID: result.Result.ID, Name: hostname, Type: t, Value: value, TTL: c.recordTTL})
	return nil
}

func (c *Cloudflare) DeleteRecords(ctx context.Context, hostname string) error {
	if err := c.ensureLoaded(ctx); err != nil {
		return err
	}
	var ids []string
	for _, t := range []RecordType{A, AAAA} {
		for _, r := range c.store.Get(hostname, t) {
			ids = append(ids, r.ID)
		}
	}
	for _, id := range ids {
		if _, err := c.request(ctx, "DELETE", "/zones/"+c.zoneID+"/dns_records/"+id, nil); err != nil {
			return fmt.Errorf("cloudflare dns: delete record %s: %w", id, err)
		}
		c.store.Remove(id)
	}
	return nil
}

func (c *Cloudflare) request(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, cloudflareBaseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
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
