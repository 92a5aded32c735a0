package agreement

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"gitlab.com/dirsrv-org/replmgr/internal/consistency"
	"gitlab.com/dirsrv-org/replmgr/internal/replica"
)

// Registry tracks every live agreement by its entry DN and fans replicated
// changes out to the consistency tracking of each matching agreement.
type Registry struct {
	mu   sync.RWMutex
	byDN map[string]*Agreement

	markers *consistency.Store
	log     logrus.FieldLogger
}

// NewRegistry returns an empty agreement registry.
func NewRegistry(markers *consistency.Store, log logrus.FieldLogger) *Registry {
	return &Registry{
		byDN:    map[string]*Agreement{},
		markers: markers,
		log:     log.WithField("component", "agreement.Registry"),
	}
}

// Add registers an agreement, refusing a duplicate DN.
func (reg *Registry) Add(a *Agreement) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.byDN[a.DN()]; ok {
		return fmt.Errorf("agreement %q already registered", a.DN())
	}
	reg.byDN[a.DN()] = a
	return nil
}

// Get returns the agreement registered under the DN.
func (reg *Registry) Get(dn string) (*Agreement, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	a, ok := reg.byDN[dn]
	return a, ok
}

// Remove deregisters the agreement under the DN.
func (reg *Registry) Remove(dn string) {
	reg.mu.Lock()
	delete(reg.byDN, dn)
	reg.mu.Unlock()
}

// All returns a snapshot of every registered agreement.
func (reg *Registry) All() []*Agreement {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*Agreement, 0, len(reg.byDN))
	for _, a := range reg.byDN {
		out = append(out, a)
	}
	return out
}

// ForArea returns the agreements replicating the given area.
func (reg *Registry) ForArea(area string) []*Agreement {
	var out []*Agreement
	for _, a := range reg.All() {
		if a.ReplArea() == area {
			out = append(out, a)
		}
	}
	return out
}

// UpdateMaxCSN offers a committed change to every agreement serving the
// change's replica, letting each advance its consistency marker.
func (reg *Registry) UpdateMaxCSN(r *replica.Replica, dn string, op OpType, modTypes []string, csn consistency.CSN) {
	for _, a := range reg.All() {
		a.updateMaxCSN(r, dn, op, modTypes, csn)
	}
}

// AddMaxCSNs appends the current marker of every enabled agreement on the
// area to the given list, replacing any stale marker for the same agreement
// tuple. Disabled and Windows-variant agreements contribute nothing.
func (reg *Registry) AddMaxCSNs(markers []string, area string) []string {
	for _, a := range reg.ForArea(area) {
		if !a.IsEnabled() || a.VariantType() == VariantWindows {
			continue
		}
		m := a.MaxCSN()
		if m == "" {
			continue
		}
		replaced := false
		for i, existing := range markers {
			if consistency.MatchesAgreement(existing, area, a.Name(), a.Host(), a.Port()) {
				markers[i] = m
				replaced = true
				break
			}
		}
		if !replaced {
			markers = append(markers, m)
		}
	}
	return markers
}

// PersistMaxCSNs merges the live markers for the area into the persisted
// set and writes it back.
func (reg *Registry) PersistMaxCSNs(area string) error {
	stored, err := reg.markers.Load(area)
	if err != nil {
		return err
	}
	return reg.markers.Replace(area, reg.AddMaxCSNs(stored, area))
}

// MaxCSN returns the agreement's current consistency marker in encoded
// form, empty until the first tracked change or marker seed.
func (a *Agreement) MaxCSN() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.maxcsn
}

// RemoveMaxCSN drops the agreement's persisted consistency marker. Removal
// is best-effort and tolerates an absent marker.
func (a *Agreement) RemoveMaxCSN() error {
	a.mu.Lock()
	area, name, host, port := a.replArea, a.name, a.host, a.port
	a.maxcsn = ""
	a.mu.Unlock()
	return a.deps.Markers.Remove(area, name, host, port)
}

// updateMaxCSN advances the agreement's consistency marker for one
// committed change, when the change concerns this agreement at all:
//
//   - the agreement must be enabled and of the multi-supplier variant,
//   - the changed entry must live under the agreement's replicated area,
//   - a modify whose attributes would ALL be filtered out (fractional
//     exclude list or strip list) never reaches the consumer, so it must
//     not advance the marker either.
//
// While the consumer's identity is still unknown the marker is written in
// its "unavailable" form unconditionally; once the identity is known, only
// changes originated by the local replica advance the marker.
func (a *Agreement) updateMaxCSN(r *replica.Replica, dn string, op OpType, modTypes []string, csn consistency.CSN) {
	if csn.IsZero() {
		return
	}

	a.mu.Lock()
	if !a.enabled || a.variant == VariantWindows || a.replica != r || !replica.IsSuffix(dn, a.replArea) {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	if op == OpModify && len(modTypes) > 0 {
		a.attrMu.RLock()
		excluded := 0
		for _, typ := range modTypes {
			if a.excludedFromIncremental(typ) {
				excluded++
			}
		}
		a.attrMu.RUnlock()
		if excluded == len(modTypes) {
			return
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	marker := consistency.Marker{
		Area:  a.replArea,
		Name:  a.name,
		Host:  a.host,
		Port:  a.port,
		Stamp: csn.String(),
	}
	if a.consumerID == 0 {
		a.maxcsn = marker.Format()
		return
	}
	if csn.Origin() != r.LocalID() {
		return
	}
	marker.ConsumerID = a.consumerID
	marker.IdentityKnown = true
	a.maxcsn = marker.Format()
}
