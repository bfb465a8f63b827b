package checkpoint

import (
	"sort"
	"sync"
)

// MemoryStore keeps snapshots in process memory. Intended for tests and for
// deployments that do not need durability.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]map[int]Snapshot // runID -> sequence -> snapshot
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]map[int]Snapshot)}
}

// Put implements Store.
func (s *MemoryStore) Put(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	run, ok := s.runs[snap.RunID]
	if !ok {
		run = make(map[int]Snapshot)
		s.runs[snap.RunID] = run
	}

	// Copy the state so callers can reuse their buffer.
	stored := snap
	stored.State = append([]byte(nil), snap.State...)
	run[snap.Sequence] = stored
	return nil
}

// Latest implements Store.
func (s *MemoryStore) Latest(runID string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Snapshot{}, ErrStoreClosed
	}

	run, ok := s.runs[runID]
	if !ok || len(run) == 0 {
		return Snapshot{}, ErrNotFound
	}

	best := -1
	for seq := range run {
		if seq > best {
			best = seq
		}
	}
	return run[best], nil
}

// History implements Store.
func (s *MemoryStore) History(runID string) ([]Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	run := s.runs[runID]
	snaps := make([]Snapshot, 0, len(run))
	for _, snap := range run {
		snaps = append(snaps, snap)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Sequence < snaps[j].Sequence })
	return snaps, nil
}

// Purge implements Store.
func (s *MemoryStore) Purge(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	delete(s.runs, runID)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.runs = nil
	return nil
}
