// Package consistency implements the per-agreement consistency-tracking
// protocol: the maxcsn marker that records the highest change stamp handed
// to (or in flight toward) a consumer, keyed by that consumer's replica
// identity. Markers are persisted on the replicated area's marker entry so
// that change logs can be trimmed safely across supplier restarts.
package consistency

import (
	"fmt"
	"strconv"
	"strings"

	"gitlab.com/dirsrv-org/replmgr/internal/replica"
)

// CSN is a change stamp: a totally ordered identifier assigned to each
// replicated change, carrying the identity of the replica that originated
// it. The stamp text is opaque to this package.
type CSN struct {
	stamp  string
	origin replica.ID
}

// NewCSN returns a change stamp originated by the given replica.
func NewCSN(stamp string, origin replica.ID) CSN {
	return CSN{stamp: stamp, origin: origin}
}

// String returns the stamp text.
func (c CSN) String() string { return c.stamp }

// Origin returns the identity of the replica that originated the change.
func (c CSN) Origin() replica.ID { return c.origin }

// IsZero reports whether the stamp is unset.
func (c CSN) IsZero() bool { return c.stamp == "" }

// RUV is an update-vector: a compact summary, per known replica, of the
// highest change stamp already incorporated. An RUV is immutable once
// built; holders replace it wholesale rather than mutating it, so a reader
// keeps a consistent snapshot across concurrent replacement.
type RUV struct {
	elements map[replica.ID]string
}

// NewRUV builds an update-vector from a per-replica max-stamp map. The map
// is copied.
func NewRUV(elements map[replica.ID]string) *RUV {
	copied := make(map[replica.ID]string, len(elements))
	for id, stamp := range elements {
		copied[id] = stamp
	}
	return &RUV{elements: copied}
}

// ParseRUVValue parses one stored update-vector element of the form
//
//	{replica 7 ldap://host:port} <min-stamp> <max-stamp>
//
// returning the replica identity and its max stamp. Shorter forms with the
// max stamp as the last field are accepted.
func ParseRUVValue(value string) (replica.ID, string, error) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "{replica ") {
		return 0, "", fmt.Errorf("malformed update-vector element %q", value)
	}
	close := strings.IndexByte(value, '}')
	if close < 0 {
		return 0, "", fmt.Errorf("malformed update-vector element %q: unterminated descriptor", value)
	}
	desc := strings.Fields(value[len("{replica "):close])
	if len(desc) == 0 {
		return 0, "", fmt.Errorf("malformed update-vector element %q: missing replica id", value)
	}
	id, err := strconv.ParseUint(desc[0], 10, 16)
	if err != nil {
		return 0, "", fmt.Errorf("malformed update-vector element %q: %v", value, err)
	}
	stamps := strings.Fields(value[close+1:])
	var max string
	if len(stamps) > 0 {
		max = stamps[len(stamps)-1]
	}
	return replica.ID(id), max, nil
}

// Max returns the highest stamp recorded for the given replica, or an empty
// string when the replica is unknown to this vector.
func (r *RUV) Max(id replica.ID) string {
	if r == nil {
		return ""
	}
	return r.elements[id]
}

// IDs returns the replica identities the vector covers.
func (r *RUV) IDs() []replica.ID {
	if r == nil {
		return nil
	}
	ids := make([]replica.ID, 0, len(r.elements))
	for id := range r.elements {
		ids = append(ids, id)
	}
	return ids
}

// FormatValue renders the element for one replica in the stored form.
func (r *RUV) FormatValue(id replica.ID) string {
	return fmt.Sprintf("{replica %d} %s", id, r.elements[id])
}
