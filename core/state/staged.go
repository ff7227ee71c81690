package state

import (
	"errors"
	"sync"

	"swapescrow/storage"
)

// Staged buffers writes and deletes on top of a backing database so an entire
// operation can be validated before any of its mutations become visible.
// Commit flushes the buffer through a single atomic database batch; dropping
// the overlay without committing leaves the backing store untouched.
//
// Staged is not safe for concurrent use; callers serialize operations on the
// same ledger behind the node's state lock.
type Staged struct {
	db      storage.Database
	mu      sync.Mutex
	writes  map[string][]byte
	deletes map[string]struct{}
}

// NewStaged creates an empty overlay on top of the provided database.
func NewStaged(db storage.Database) *Staged {
	return &Staged{
		db:      db,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

// Get returns the staged value when one exists, falling through to the
// backing database otherwise. A staged delete hides the underlying value.
func (s *Staged) Get(key []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, gone := s.deletes[string(key)]; gone {
		return nil, storage.ErrKeyNotFound
	}
	if value, ok := s.writes[string(key)]; ok {
		return append([]byte(nil), value...), nil
	}
	return s.db.Get(key)
}

// Has reports whether a value is visible through the overlay.
func (s *Staged) Has(key []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, gone := s.deletes[string(key)]; gone {
		return false, nil
	}
	if _, ok := s.writes[string(key)]; ok {
		return true, nil
	}
	return s.db.Has(key)
}

// Put stages an insert or update.
func (s *Staged) Put(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deletes, string(key))
	s.writes[string(key)] = append([]byte(nil), value...)
	return nil
}

// Delete stages a removal.
func (s *Staged) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.writes, string(key))
	s.deletes[string(key)] = struct{}{}
	return nil
}

// Dirty reports whether the overlay holds any pending mutations.
func (s *Staged) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes) > 0 || len(s.deletes) > 0
}

// Commit flushes all staged mutations to the backing database in one atomic
// batch and resets the overlay.
func (s *Staged) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return errors.New("state: staged overlay has no backing database")
	}
	batch := storage.NewBatch()
	for key, value := range s.writes {
		batch.Put([]byte(key), value)
	}
	for key := range s.deletes {
		batch.Delete([]byte(key))
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := s.db.Write(batch); err != nil {
		return err
	}
	s.writes = make(map[string][]byte)
	s.deletes = make(map[string]struct{})
	return nil
}

// Discard drops every pending mutation without touching the backing store.
func (s *Staged) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = make(map[string][]byte)
	s.deletes = make(map[string]struct{})
}
