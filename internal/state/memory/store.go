// Package memory is an in-process state store, used by tests and by the
// memory cloud backend.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/schedulegen/stackwire-go/internal/state"
)

// Store keeps records in a map. Records are deep-copied in and out.
type Store struct {
	mu      sync.RWMutex
	records map[string]*state.StackRecord
}

// New creates an empty store.
func New() *Store {
	return &Store{records: make(map[string]*state.StackRecord)}
}

func (s *Store) Close() error { return nil }

func clone(r *state.StackRecord) (*state.StackRecord, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var out state.StackRecord
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) Get(ctx context.Context, name string) (*state.StackRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[name]
	if !ok {
		return nil, fmt.Errorf("stack %s: %w", name, state.ErrNotFound)
	}
	return clone(r)
}

func (s *Store) Save(ctx context.Context, record *state.StackRecord) error {
	if record == nil || record.Name == "" {
		return fmt.Errorf("record name is required")
	}
	c, err := clone(record)
	if err != nil {
		return fmt.Errorf("copying record %s: %w", record.Name, err)
	}
	c.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.records[record.Name]; ok {
		c.ID = prev.ID
		c.CreatedAt = prev.CreatedAt
	}
	s.records[record.Name] = c
	return nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[name]; !ok {
		return fmt.Errorf("stack %s: %w", name, state.ErrNotFound)
	}
	delete(s.records, name)
	return nil
}

func (s *Store) List(ctx context.Context) ([]*state.StackRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*state.StackRecord, 0, len(s.records))
	for _, r := range s.records {
		c, err := clone(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
