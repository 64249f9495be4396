package gateway

import (
	"sync"
	"time"
)

// CallRecord tracks one idempotency key: attempt count, last outcome and
// whether a terminal success was reached. One record exists per key and is
// overwritten on each attempt.
type CallRecord struct {
	Key      string
	Attempts int
	Outcome  any
	LastErr  string
	Done     bool
	Updated  time.Time
}

// recordStore holds call records plus a per-key mutex so concurrent invokes
// sharing an idempotency key serialize against each other while unrelated
// keys proceed in parallel.
type recordStore struct {
	mu      sync.Mutex
	records map[string]*CallRecord
	locks   map[string]*sync.Mutex
}

func newRecordStore() *recordStore {
	return &recordStore{
		records: make(map[string]*CallRecord),
		locks:   make(map[string]*sync.Mutex),
	}
}

// lock returns the mutex guarding the given key, creating it on first use.
func (s *recordStore) lock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// get returns the record for the key, if any. Caller must hold the key lock.
func (s *recordStore) get(key string) (*CallRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key]
	return r, ok
}

// put overwrites the record for the key. Caller must hold the key lock.
func (s *recordStore) put(rec *CallRecord) {
	rec.Updated = time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Key] = rec
}
