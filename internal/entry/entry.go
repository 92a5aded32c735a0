// Package entry provides the directory-entry representation consumed by the
// replication agreement manager. An entry is a DN plus an attribute multimap
// with case-insensitive attribute types. It is the unit of exchange with the
// entry store and the object the read-time status hook decorates.
package entry

import (
	"strings"
)

// Entry is a directory entry. Attribute types compare case-insensitively
// and are stored normalized; Types lists them in first-appearance order.
type Entry struct {
	dn    string
	order []string
	attrs map[string][]string
}

// New returns an empty entry with the given DN.
func New(dn string) *Entry {
	return &Entry{
		dn:    dn,
		attrs: make(map[string][]string),
	}
}

// DN returns the entry's distinguished name.
func (e *Entry) DN() string { return e.dn }

// RDNValue returns the value of the entry's first RDN component, e.g.
// "example-agreement" for "cn=example-agreement,cn=replica,...". It returns
// an empty string if the DN has no attribute=value form.
func (e *Entry) RDNValue() string {
	rdn := e.dn
	if idx := strings.IndexByte(rdn, ','); idx >= 0 {
		rdn = rdn[:idx]
	}
	if idx := strings.IndexByte(rdn, '='); idx >= 0 {
		return strings.TrimSpace(rdn[idx+1:])
	}
	return ""
}

func normalize(typ string) string { return strings.ToLower(typ) }

// Add appends values to an attribute, creating it if needed.
func (e *Entry) Add(typ string, values ...string) {
	key := normalize(typ)
	if _, ok := e.attrs[key]; !ok {
		e.order = append(e.order, key)
	}
	e.attrs[key] = append(e.attrs[key], values...)
}

// Set replaces all values of an attribute.
func (e *Entry) Set(typ string, values ...string) {
	e.Delete(typ)
	e.Add(typ, values...)
}

// Delete removes an attribute and all its values. Removing an absent
// attribute is a no-op.
func (e *Entry) Delete(typ string) {
	key := normalize(typ)
	if _, ok := e.attrs[key]; !ok {
		return
	}
	delete(e.attrs, key)
	for i, k := range e.order {
		if k == key {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

// DeleteValue removes a single value from an attribute, dropping the
// attribute entirely when its last value goes away. It reports whether the
// value was present.
func (e *Entry) DeleteValue(typ, value string) bool {
	key := normalize(typ)
	values, ok := e.attrs[key]
	if !ok {
		return false
	}
	for i, v := range values {
		if v == value {
			values = append(values[:i], values[i+1:]...)
			if len(values) == 0 {
				e.Delete(typ)
			} else {
				e.attrs[key] = values
			}
			return true
		}
	}
	return false
}

// Has reports whether the attribute is present with at least one value.
func (e *Entry) Has(typ string) bool {
	return len(e.attrs[normalize(typ)]) > 0
}

// HasValue reports whether the attribute carries the given value,
// comparing case-insensitively as directory string matching does.
func (e *Entry) HasValue(typ, value string) bool {
	for _, v := range e.attrs[normalize(typ)] {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}

// Value returns the first value of the attribute, or an empty string.
func (e *Entry) Value(typ string) string {
	if values := e.attrs[normalize(typ)]; len(values) > 0 {
		return values[0]
	}
	return ""
}

// Values returns a copy of all values of the attribute.
func (e *Entry) Values(typ string) []string {
	values := e.attrs[normalize(typ)]
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

// Types returns the attribute types present on the entry in
// first-appearance order.
func (e *Entry) Types() []string {
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	clone := New(e.dn)
	for _, key := range e.order {
		clone.Add(key, e.attrs[key]...)
	}
	return clone
}
