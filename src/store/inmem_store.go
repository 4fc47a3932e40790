package store

import "sync"

// InmemStore implements the Store interface with a map.
type InmemStore struct {
	sync.RWMutex
	values map[uint64]struct{}
	closed bool
}

// NewInmemStore returns an empty InmemStore.
func NewInmemStore() *InmemStore {
	return &InmemStore{
		values: make(map[uint64]struct{}),
	}
}

// Insert implements the Store interface.
func (s *InmemStore) Insert(v uint64) (bool, error) {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return false, ErrStoreClosed
	}

	if _, ok := s.values[v]; ok {
		return false, nil
	}

	s.values[v] = struct{}{}

	return true, nil
}

// Snapshot implements the Store interface.
func (s *InmemStore) Snapshot() ([]uint64, error) {
	s.RLock()
	defer s.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	res := make([]uint64, 0, len(s.values))
	for v := range s.values {
		res = append(res, v)
	}

	return res, nil
}

// Len implements the Store interface.
func (s *InmemStore) Len() int {
	s.RLock()
	defer s.RUnlock()

	return len(s.values)
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	s.Lock()
	defer s.Unlock()

	s.closed = true

	return nil
}
