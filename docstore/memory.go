package docstore

import (
	"context"
	"fmt"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps entries in process memory and ranks them by brute-force
// cosine distance. Nothing survives Close.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Upsert(ctx context.Context, entries []Entry) error {
	if err := validateEntries(entries); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		e.Vector = append([]float32(nil), e.Vector...)
		s.entries[e.ID] = e
	}

	return nil
}

func (s *MemoryStore) DeleteWhere(ctx context.Context, filter Filter) error {
	if _, ok := metaValue(Metadata{}, filter.Key); !ok {
		return fmt.Errorf("unsupported filter key %q", filter.Key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.entries {
		if v, _ := metaValue(e.Meta, filter.Key); v == filter.Value {
			delete(s.entries, id)
		}
	}

	return nil
}

func (s *MemoryStore) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]Match, 0, len(s.entries))
	for _, e := range s.entries {
		d, err := cosineDistance(vector, e.Vector)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", e.ID, err)
		}
		matches = append(matches, Match{
			ID:       e.ID,
			Text:     e.Text,
			Meta:     e.Meta,
			Distance: d,
		})
	}

	return topK(matches, k), nil
}

func (s *MemoryStore) ListMetadata(ctx context.Context) ([]Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]Metadata, 0, len(s.entries))
	for _, e := range s.entries {
		res = append(res, e.Meta)
	}

	return res, nil
}

// IDs returns the ids stored for a filename.
func (s *MemoryStore) IDs(filename string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, e := range s.entries {
		if e.Meta.Filename == filename {
			ids = append(ids, id)
		}
	}

	return ids
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) Close() error {
	return nil
}
