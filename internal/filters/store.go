package filters

import (
	"encoding/json"
	"sort"
	"sync"
)

// Snapshot is an immutable view of the filter set at one point in time.
type Snapshot struct {
	values  map[string]Value
	version uint64
}

func (s Snapshot) Get(key string) (Value, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s Snapshot) Len() int { return len(s.values) }

// Version increases with every effective change to the store.
func (s Snapshot) Version() uint64 { return s.version }

// Keys returns the filter keys in sorted order.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a copy of the values.
func (s Snapshot) Map() map[string]Value {
	out := make(map[string]Value, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	if s.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.values)
}

// Store holds the cross-widget filter set of one dashboard session. It is
// passed by handle to every dependent; there is no package-level instance.
//
// Observers run synchronously after each effective change, in subscription
// order, and must not mutate the store from inside the callback.
type Store struct {
	mu      sync.Mutex
	values  map[string]Value
	version uint64

	notifyMu sync.Mutex
	subs     []subscription
	nextSub  int
}

type subscription struct {
	id int
	fn func(Snapshot)
}

func NewStore() *Store {
	return &Store{values: map[string]Value{}}
}

// Apply sets key to value, or removes key when it already holds an equal
// value (toggle-off, so clicking a selected chart item again unselects it).
func (s *Store) Apply(key string, value Value) Snapshot {
	s.mu.Lock()
	if cur, ok := s.values[key]; ok && cur.Equal(value) {
		delete(s.values, key)
	} else {
		s.values[key] = value
	}
	snap := s.commitLocked()
	s.mu.Unlock()

	s.notify(snap)
	return snap
}

// Clear removes key unconditionally.
func (s *Store) Clear(key string) Snapshot {
	s.mu.Lock()
	if _, ok := s.values[key]; !ok {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap
	}
	delete(s.values, key)
	snap := s.commitLocked()
	s.mu.Unlock()

	s.notify(snap)
	return snap
}

// Reset removes every key.
func (s *Store) Reset() Snapshot {
	s.mu.Lock()
	if len(s.values) == 0 {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap
	}
	s.values = map[string]Value{}
	snap := s.commitLocked()
	s.mu.Unlock()

	s.notify(snap)
	return snap
}

// Seed sets every default whose key is absent; values already present win.
func (s *Store) Seed(defaults map[string]Value) Snapshot {
	s.mu.Lock()
	changed := false
	for k, v := range defaults {
		if _, ok := s.values[k]; ok || v.IsEmpty() {
			continue
		}
		s.values[k] = v
		changed = true
	}
	if !changed {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap
	}
	snap := s.commitLocked()
	s.mu.Unlock()

	s.notify(snap)
	return snap
}

func (s *Store) Get(key string) (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.notifyMu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	s.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.notifyMu.Lock()
			defer s.notifyMu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Store) commitLocked() Snapshot {
	s.version++
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	values := make(map[string]Value, len(s.values))
	for k, v := range s.values {
		values[k] = v
	}
	return Snapshot{values: values, version: s.version}
}

// notify delivers snap to every observer. notifyMu serialises deliveries so
// observers never see versions out of order; older snapshots that lost the
// race to a newer one are dropped.
func (s *Store) notify(snap Snapshot) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if current := s.Snapshot(); current.version > snap.version {
		return
	}
	for _, sub := range s.subs {
		sub.fn(snap)
	}
}
