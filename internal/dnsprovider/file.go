package dnsprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// File is a JSON-file-backed Provider for local development without a real
// DNS account.
type File struct {
	mu   sync.Mutex
	path string
	seq  int
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) load() (map[string][]Record, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return map[string][]Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dnsprovider/file: read %s: %w", f.path, err)
	}
	out := make(map[string][]Record)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("dnsprovider/file: parse %s: %w", f.path, err)
		}
	}
	return out, nil
}

func (f *File) save(byHost map[string][]Record) error {
	data, err := json.MarshalIndent(byHost, "", "  ")
	if err != nil {
		return fmt.Errorf("dnsprovider/file: marshal: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0o644); err != nil {
		return fmt.Errorf("dnsprovider/file: write %s: %w", f.path, err)
	}
	return nil
}

func (f *File) CreateRecords(_ context.Context, hostname string, ipv4, ipv6 []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	byHost, err := f.load()
	if err != nil {
		return err
	}
	var recs []Record
	for _, ip := range ipv4 {
		f.seq++
		recs = append(recs, Record{ID: fmt.Sprintf("file-%d", f.seq), Name: hostname, Type: A, Value: ip, TTL: 60})
	}
	for _, ip := range ipv6 {
		f.seq++
		recs = append(recs, Record{ID: fmt.Sprintf("file-%d", f.seq), Name: hostname, Type: AAAA, Value: ip, TTL: 60})
	}
	byHost[hostname] = append(byHost[hostname], recs...)
	return f.save(byHost)
}

func (f *File) DeleteRecords(_ context.Context, hostname string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	byHost, err := f.load()
	if err != nil {
		return err
	}
	delete(byHost, hostname)
	return f.save(byHost)
}
