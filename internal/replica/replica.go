// Package replica models the replicated area a supplier serves: its root
// DN, the local replica identity, and the bookkeeping shared by every
// agreement covering the area.
package replica

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// ID is a replica identity: a small integer uniquely identifying a writable
// replica within a topology. Zero means unknown.
type ID uint16

// Engine identifies the backend storage engine family serving an area. The
// flow-control defaults of an agreement depend on it.
type Engine string

const (
	// EngineBDB is the higher-throughput engine family.
	EngineBDB Engine = "bdb"
	// EngineLMDB is the lower-throughput engine family.
	EngineLMDB Engine = "lmdb"
)

// Replica is one replicated area owned by this supplier.
type Replica struct {
	mu sync.Mutex

	root       string
	id         ID
	engine     Engine
	agmtCount  int
	reapActive bool

	log logrus.FieldLogger
}

// New returns a replica for the area rooted at root with the given local
// identity.
func New(root string, id ID, engine Engine, log logrus.FieldLogger) *Replica {
	return &Replica{
		root:   root,
		id:     id,
		engine: engine,
		log:    log.WithField("replica", root),
	}
}

// Root returns the DN at the root of the replicated area.
func (r *Replica) Root() string { return r.root }

// LocalID returns this replica's own identity.
func (r *Replica) LocalID() ID { return r.id }

// Engine returns the backend engine family serving the area.
func (r *Replica) Engine() Engine { return r.engine }

// IncrAgmtCount records one more agreement covering this area.
func (r *Replica) IncrAgmtCount() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agmtCount++
}

// DecrAgmtCount records one fewer agreement covering this area.
func (r *Replica) DecrAgmtCount() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.agmtCount > 0 {
		r.agmtCount--
	}
}

// AgmtCount returns the number of agreements covering this area.
func (r *Replica) AgmtCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.agmtCount
}

// SetTombstoneReapActive records whether the tombstone reaper is currently
// running for this area.
func (r *Replica) SetTombstoneReapActive(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reapActive = active
}

// TombstoneReapActive reports whether the tombstone reaper is running.
func (r *Replica) TombstoneReapActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reapActive
}

// Registry resolves replicas by area root.
type Registry struct {
	mu     sync.RWMutex
	byRoot map[string]*Replica
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byRoot: map[string]*Replica{}}
}

// Add registers a replica. A replica already registered for the same root
// is replaced.
func (g *Registry) Add(r *Replica) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.byRoot[normalizeDN(r.Root())] = r
}

// Get returns the replica rooted exactly at root.
func (g *Registry) Get(root string) (*Replica, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.byRoot[normalizeDN(root)]
	return r, ok
}

// ForDN returns the replica whose area contains dn, choosing the longest
// matching root when areas nest.
func (g *Registry) ForDN(dn string) (*Replica, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var best *Replica
	var bestLen int
	for root, r := range g.byRoot {
		if !IsSuffix(dn, root) {
			continue
		}
		if best == nil || len(root) > bestLen {
			best, bestLen = r, len(root)
		}
	}
	return best, best != nil
}

// IsSuffix reports whether suffix is dn itself or an ancestor of dn,
// comparing DN components case-insensitively.
func IsSuffix(dn, suffix string) bool {
	d, s := normalizeDN(dn), normalizeDN(suffix)
	if d == s {
		return true
	}
	return strings.HasSuffix(d, ","+s)
}

func normalizeDN(dn string) string { return strings.ToLower(strings.TrimSpace(dn)) }
