package dnsprovider

import (
	"context"
	"fmt"
	"sync"
)

// Mock is an in-memory Provider for tests.
type Mock struct {
	mu      sync.Mutex
	seq     int
	records map[string][]Record // hostname -> records
}

func NewMock() *Mock {
	return &Mock{records: make(map[string][]Record)}
}

func (m *Mock) CreateRecords(_ context.Context, hostname string, ipv4, ipv6 []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var recs []Record
	for _, ip := range ipv4 {
		m.seq++
		recs = append(recs, Record{ID: fmt.Sprintf("mock-%d", m.seq), Name: hostname, Type: A, Value: ip, TTL: 60})
	}
	for _, ip := range ipv6 {
		m.seq++
		recs = append(recs, Record{ID: fmt.Sprintf("mock-%d", m.seq), Name: hostname, Type: AAAA, Value: ip, TTL: 60})
	}
	m.records[hostname] = append(m.records[hostname], recs...)
	return nil
}

func (m *Mock) DeleteRecords(_ context.Context, hostname string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, hostname)
	return nil
}

// Records returns a copy of the records currently held for hostname, for
// test assertions.
func (m *Mock) Records(hostname string) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records[hostname]))
	copy(out, m.records[hostname])
	return out
}
