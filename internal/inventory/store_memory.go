package inventory

import (
	"context"
	"sync"
)

type MemStore struct {
	mu   sync.RWMutex
	recs []Record
	err  error
}

func NewMemStore(seed ...Product) *MemStore {
	s := &MemStore{recs: make([]Record, 0, len(seed))}
	for _, p := range seed {
		s.recs = append(s.recs, p.Record())
	}
	return s
}

// Fail makes every subsequent call return err until it is called with nil.
func (s *MemStore) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *MemStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *MemStore) Load(ctx context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.err != nil {
		return nil, s.err
	}
	out := make([]Record, len(s.recs))
	copy(out, s.recs)
	return out, nil
}

func (s *MemStore) Save(ctx context.Context, recs []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	s.recs = make([]Record, len(recs))
	copy(s.recs, recs)
	return nil
}
