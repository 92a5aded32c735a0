// Package entrystore provides the search/modify primitives the agreement
// manager needs from the directory backend. The backend itself is out of
// scope; Memory is the canonical implementation used for wiring and tests.
package entrystore

import (
	"errors"

	"gitlab.com/dirsrv-org/replmgr/internal/entry"
)

// ErrNotFound is returned when no entry exists at the requested DN.
var ErrNotFound = errors.New("entry not found")

// ReadHook decorates an entry as it is read back, letting live state be
// injected into agreement entries without ever persisting it.
type ReadHook func(*entry.Entry)

// Store is the directory-entry seam: base-scope search plus targeted
// modifications. All DNs compare case-insensitively.
type Store interface {
	// Get performs a base-scope lookup. The returned entry is a private
	// copy, decorated by any registered read hook.
	Get(dn string) (*entry.Entry, error)
	// Put stores the entry wholesale, replacing any previous one.
	Put(e *entry.Entry) error
	// AddValue appends a value to an attribute of an existing entry.
	AddValue(dn, typ, value string) error
	// DeleteValue removes a single attribute value. Absence of the value
	// is not an error.
	DeleteValue(dn, typ, value string) error
	// DeleteAttr removes an attribute and all its values. Absence is not
	// an error.
	DeleteAttr(dn, typ string) error
	// ReplaceValues replaces all values of an attribute. An empty value
	// list removes the attribute.
	ReplaceValues(dn, typ string, values []string) error
	// Delete removes the entry at dn.
	Delete(dn string) error

	// RegisterReadHook installs a hook run against copies returned by Get
	// for the given DN. A second registration replaces the first.
	RegisterReadHook(dn string, hook ReadHook)
	// RemoveReadHook removes any read hook registered for the DN.
	RemoveReadHook(dn string)

	// UniqueID returns the stable storage identifier for the entry at dn,
	// assigning one on first use.
	UniqueID(dn string) string
}
