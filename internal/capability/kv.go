package capability

import (
	"sync"

	"github.com/filament-run/filament/internal/codec"
)

// KVStore backs filament/kv/get|set: reads are snapshot-isolated as of the
// current Weave's start; writes buffer until commit and apply atomically,
// last-write-wins per key within a Weave.
type KVStore struct {
	mu       sync.RWMutex
	data     map[string]codec.Value
	snapshot map[string]codec.Value
	pending  map[string]codec.Value
}

// NewKVStore creates an empty store.
func NewKVStore() *KVStore {
	return &KVStore{
		data:    make(map[string]codec.Value),
		pending: make(map[string]codec.Value),
	}
}

// BeginWeave takes the read snapshot every Get within the weave observes.
func (s *KVStore) BeginWeave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := make(map[string]codec.Value, len(s.data))
	for k, v := range s.data {
		snap[k] = v
	}
	s.snapshot = snap
	s.pending = make(map[string]codec.Value)
}

// Get reads key as of the weave's start snapshot, ignoring any writes
// buffered so far in the current weave (snapshot isolation).
func (s *KVStore) Get(key string) (codec.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.snapshot[key]
	return v, ok
}

// Set buffers a write; last-write-wins if called more than once for the same
// key within a weave.
func (s *KVStore) Set(key string, value codec.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[key] = value
}

// Commit applies every buffered write atomically.
func (s *KVStore) Commit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.pending {
		s.data[k] = v
	}
	s.pending = make(map[string]codec.Value)
}

// Discard drops every buffered write without applying it.
func (s *KVStore) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = make(map[string]codec.Value)
}
