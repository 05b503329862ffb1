// Package store provides the keyed entry storage behind the cache server.
//
// Entries are immutable once stored: Insert copies the value bytes into a
// fresh Entry and swaps the pointer, Delete unlinks it. A caller holding a
// *Entry from Lookup can therefore keep reading it while other goroutines
// insert or delete under the same key; the old record stays byte-stable
// until the last holder drops it.
package store

import (
	"sync"

	"github.com/zeebo/xxh3"
)

// DefaultShardCount is the number of shards used by New.
const DefaultShardCount = 8

// Entry is a stored record: opaque client flags and the value bytes.
// Entries returned by Lookup must be treated as read-only.
type Entry struct {
	Flags uint32
	Value []byte
}

// Store maps key bytes to entries. It is safe for concurrent use: keys are
// spread over shards, each guarded by its own RWMutex, so reads proceed in
// parallel and writers serialize per shard only.
type Store struct {
	shards []shard
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// New returns an empty store with DefaultShardCount shards.
func New() *Store {
	return NewSharded(DefaultShardCount)
}

// NewSharded returns an empty store with the given shard count.
// Counts below 1 are raised to 1.
func NewSharded(count int) *Store {
	if count < 1 {
		count = 1
	}
	s := &Store{shards: make([]shard, count)}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]*Entry)
	}
	return s
}

func (s *Store) shardFor(key []byte) *shard {
	if len(s.shards) == 1 {
		return &s.shards[0]
	}
	return &s.shards[jumpHash(xxh3.Hash(key), len(s.shards))]
}

// Lookup returns the entry stored under key. The returned entry remains
// valid and unchanged even if the key is replaced or deleted afterwards.
// Does not allocate.
func (s *Store) Lookup(key []byte) (*Entry, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	e, ok := sh.entries[string(key)]
	sh.mu.RUnlock()
	return e, ok
}

// Insert stores e under key, replacing any prior entry. The value bytes are
// copied, so the caller may reuse its buffer; a replaced entry is left
// intact for readers still holding it.
func (s *Store) Insert(key []byte, e Entry) {
	stored := &Entry{Flags: e.Flags}
	if len(e.Value) > 0 {
		stored.Value = make([]byte, len(e.Value))
		copy(stored.Value, e.Value)
	}

	sh := s.shardFor(key)
	sh.mu.Lock()
	sh.entries[string(key)] = stored
	sh.mu.Unlock()
}

// Delete removes the entry under key, reporting whether one was present.
// Outstanding references to the removed entry stay readable.
func (s *Store) Delete(key []byte) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	_, ok := sh.entries[string(key)]
	if ok {
		delete(sh.entries, string(key))
	}
	sh.mu.Unlock()
	return ok
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}
