package consistency

import (
	"fmt"
	"strconv"
	"strings"

	"gitlab.com/dirsrv-org/replmgr/internal/replica"
)

// Unavailable is the identity slot placeholder used while the consumer's
// replica identity has not yet been learned.
const Unavailable = "unavailable"

// MarkerAttr is the attribute carrying persisted markers on the replicated
// area's marker entry.
const MarkerAttr = "nsds5agmtmaxcsn"

// Marker is one agreement's consistency marker: the most recent change
// stamp handed toward the consumer identified by the
// (area, name, host, port) tuple.
type Marker struct {
	// Area is the replicated area root DN.
	Area string
	// Name is the agreement's short name (its RDN value).
	Name string
	// Host and Port identify the consumer.
	Host string
	Port int64
	// ConsumerID is the consumer's replica identity; zero (with
	// IdentityKnown false) means the identity slot reads "unavailable".
	ConsumerID    replica.ID
	IdentityKnown bool
	// Stamp is the change stamp text.
	Stamp string
}

// Format renders the marker in its wire-compatible text form:
//
//	area;name;host;port;identity;stamp
//
// with "unavailable" in the identity slot when the identity is unknown.
func (m Marker) Format() string {
	identity := Unavailable
	if m.IdentityKnown {
		identity = strconv.FormatUint(uint64(m.ConsumerID), 10)
	}
	return fmt.Sprintf("%s;%s;%s;%d;%s;%s", m.Area, m.Name, m.Host, m.Port, identity, m.Stamp)
}

// ParseMarker decodes a marker from its text form, reporting an explicit
// error for any malformed field.
func ParseMarker(s string) (Marker, error) {
	fields := strings.SplitN(s, ";", 6)
	if len(fields) != 6 {
		return Marker{}, fmt.Errorf("malformed consistency marker %q: want 6 fields, got %d", s, len(fields))
	}
	port, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return Marker{}, fmt.Errorf("malformed consistency marker %q: bad port: %v", s, err)
	}
	m := Marker{
		Area:  fields[0],
		Name:  fields[1],
		Host:  fields[2],
		Port:  port,
		Stamp: fields[5],
	}
	if !strings.EqualFold(fields[4], Unavailable) {
		id, err := strconv.ParseUint(fields[4], 10, 16)
		if err != nil {
			return Marker{}, fmt.Errorf("malformed consistency marker %q: bad consumer identity: %v", s, err)
		}
		m.ConsumerID = replica.ID(id)
		m.IdentityKnown = true
	}
	return m, nil
}

// ConsumerIDOf extracts just the consumer identity from an encoded marker,
// returning zero when the identity slot is "unavailable" or unparsable.
func ConsumerIDOf(s string) replica.ID {
	m, err := ParseMarker(s)
	if err != nil || !m.IdentityKnown {
		return 0
	}
	return m.ConsumerID
}

// MatchesAgreement reports whether the encoded marker belongs to the
// (area, name, host, port) tuple, in either the identified or the
// "unavailable" form.
func MatchesAgreement(encoded, area, name, host string, port int64) bool {
	prefix := fmt.Sprintf("%s;%s;%s;%d;", area, name, host, port)
	return strings.HasPrefix(encoded, prefix)
}

// FindMarker returns the first of the encoded markers matching the
// agreement tuple.
func FindMarker(encoded []string, area, name, host string, port int64) (string, bool) {
	for _, s := range encoded {
		if MatchesAgreement(s, area, name, host, port) {
			return s, true
		}
	}
	return "", false
}
