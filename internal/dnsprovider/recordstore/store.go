// Package recordstore is the in-memory index layered over a DNS provider's
// list API. Concrete DNS adapters (Hetzner, Cloudflare) use it to avoid
// re-listing the whole zone on every lookup.
package recordstore

import (
	"sync"

	"github.com/payperplay/hosting/internal/dnsprovider"
)

// Store indexes records by id and by (name, type). Entries are unique by
// id; Get never returns a record that Remove has already dropped.
type Store struct {
	mu      sync.RWMutex
	records map[string]*dnsprovider.Record
	byName  map[string]map[dnsprovider.RecordType][]*dnsprovider.Record
	loaded  bool
}

func New() *Store {
	return &Store{
		records: make(map[string]*dnsprovider.Record),
		byName:  make(map[string]map[dnsprovider.RecordType][]*dnsprovider.Record),
	}
}

// Add inserts or replaces a record and re-indexes it.
func (s *Store) Add(r dnsprovider.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[r.ID]; ok {
		s.deindexLocked(existing)
	}
	rec := r
	s.records[rec.ID] = &rec
	s.indexLocked(&rec)
}

// Remove deletes a record by id and de-indexes it.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return
	}
	delete(s.records, id)
	s.deindexLocked(rec)
}

// Get returns every live record at name with the given type.
func (s *Store) Get(name string, t dnsprovider.RecordType) []dnsprovider.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byType := s.byName[name]
	if byType == nil {
		return nil
	}
	refs := byType[t]
	out := make([]dnsprovider.Record, 0, len(refs))
	for _, r := range refs {
		out = append(out, *r)
	}
	return out
}

// IsEmpty reports whether the store has never been populated, signalling
// the caller should perform an initial bulk load from the provider's list
// API.
func (s *Store) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.loaded
}

// MarkLoaded flags the store as having completed its initial bulk load.
func (s *Store) MarkLoaded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
}

func (s *Store) indexLocked(r *dnsprovider.Record) {
	byType := s.byName[r.Name]
	if byType == nil {
		byType = make(map[dnsprovider.RecordType][]*dnsprovider.Record)
		s.byName[r.Name] = byType
	}
	byType[r.Type] = append(byType[r.Type], r)
}

func (s *Store) deindexLocked(r *dnsprovider.Record) {
	byType := s.byName[r.Name]
	if byType == nil {
		return
	}
	list := byType[r.Type]
	for i, existing := range list {
		if existing.ID == r.ID {
			byType[r.Type] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(byType[r.Type]) == 0 {
		delete(byType, r.Type)
	}
	if len(byType) == 0 {
		delete(s.byName, r.Name)
	}
}
