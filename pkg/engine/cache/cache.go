// Package cache provides the namespaced TTL+LRU cache shared by the
// scenario graph, the objection matcher, and the model registry. Each
// namespace carries its own lock so loads in one namespace never block
// lookups in another.
package cache

import (
	"sync"
	"time"
)

// Well-known namespaces. Callers may register additional ones.
const (
	NamespaceScenarios  = "scenarios"
	NamespaceObjections = "objections"
	NamespaceModels     = "models"
)

// Default policies per well-known namespace.
const (
	ScenarioTTL       = time.Hour
	ScenarioCapacity  = 50
	ObjectionTTL      = 30 * time.Minute
	ObjectionCapacity = 20
)

type entry struct {
	value      any
	insertedAt time.Time
	lastAccess time.Time
	hits       int
}

type namespace struct {
	mu  sync.Mutex
	ttl time.Duration // 0 means unbounded
	cap int           // 0 means unbounded

	entries map[string]*entry
	order   []string // insertion order, oldest first
}

// Store is a thread-safe cache keyed by (namespace, key).
type Store struct {
	mu         sync.RWMutex
	namespaces map[string]*namespace
	now        func() time.Time
}

// New creates a Store with the three well-known namespaces registered.
func New() *Store {
	s := &Store{
		namespaces: make(map[string]*namespace),
		now:        time.Now,
	}
	s.Register(NamespaceScenarios, ScenarioTTL, ScenarioCapacity)
	s.Register(NamespaceObjections, ObjectionTTL, ObjectionCapacity)
	s.Register(NamespaceModels, 0, 0)
	return s
}

// Register adds a namespace with the given policy. ttl=0 disables expiry,
// capacity=0 disables eviction. Re-registering an existing namespace
// replaces its policy but keeps its entries.
func (s *Store) Register(name string, ttl time.Duration, capacity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ns, ok := s.namespaces[name]; ok {
		ns.mu.Lock()
		ns.ttl = ttl
		ns.cap = capacity
		ns.mu.Unlock()
		return
	}
	s.namespaces[name] = &namespace{
		ttl:     ttl,
		cap:     capacity,
		entries: make(map[string]*entry),
	}
}

func (s *Store) namespaceFor(name string) *namespace {
	s.mu.RLock()
	ns := s.namespaces[name]
	s.mu.RUnlock()
	return ns
}

// Get returns the live value for key, or ok=false on a miss. An expired
// entry is evicted and reported as a miss. A hit refreshes recency.
func (s *Store) Get(nsName, key string) (any, bool) {
	ns := s.namespaceFor(nsName)
	if ns == nil {
		return nil, false
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()

	e, ok := ns.entries[key]
	if !ok {
		return nil, false
	}
	now := s.now()
	if ns.ttl > 0 && now.Sub(e.insertedAt) > ns.ttl {
		ns.removeLocked(key)
		return nil, false
	}
	e.lastAccess = now
	e.hits++
	return e.value, true
}

// Set inserts or replaces the value for key. When the namespace is at
// capacity, the single oldest-inserted entry is evicted first.
func (s *Store) Set(nsName, key string, value any) {
	ns := s.namespaceFor(nsName)
	if ns == nil {
		return
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()

	now := s.now()
	if e, ok := ns.entries[key]; ok {
		e.value = value
		e.insertedAt = now
		e.lastAccess = now
		return
	}

	if ns.cap > 0 && len(ns.entries) >= ns.cap && len(ns.order) > 0 {
		oldest := ns.order[0]
		ns.removeLocked(oldest)
	}

	ns.entries[key] = &entry{value: value, insertedAt: now, lastAccess: now}
	ns.order = append(ns.order, key)
}

// Delete removes key from the namespace if present.
func (s *Store) Delete(nsName, key string) {
	ns := s.namespaceFor(nsName)
	if ns == nil {
		return
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.removeLocked(key)
}

// Len reports the number of live entries in the namespace.
func (s *Store) Len(nsName string) int {
	ns := s.namespaceFor(nsName)
	if ns == nil {
		return 0
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return len(ns.entries)
}

func (ns *namespace) removeLocked(key string) {
	if _, ok := ns.entries[key]; !ok {
		return
	}
	delete(ns.entries, key)
	for i, k := range ns.order {
		if k == key {
			ns.order = append(ns.order[:i], ns.order[i+1:]...)
			break
		}
	}
}
