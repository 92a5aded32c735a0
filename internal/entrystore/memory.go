package entrystore

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"gitlab.com/dirsrv-org/replmgr/internal/entry"
)

// NewMemory returns an in-memory implementation of Store.
func NewMemory() *Memory {
	return &Memory{
		entries:   map[string]*entry.Entry{},
		hooks:     map[string]ReadHook{},
		uniqueIDs: map[string]string{},
	}
}

// Memory implements Store with a mutex-guarded map.
type Memory struct {
	mu        sync.RWMutex
	entries   map[string]*entry.Entry
	hooks     map[string]ReadHook
	uniqueIDs map[string]string
}

func normalizeDN(dn string) string { return strings.ToLower(dn) }

func (m *Memory) Get(dn string) (*entry.Entry, error) {
	m.mu.RLock()
	e, ok := m.entries[normalizeDN(dn)]
	var clone *entry.Entry
	if ok {
		clone = e.Clone()
	}
	hook := m.hooks[normalizeDN(dn)]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	// The hook runs outside the store lock: it reaches back into the
	// agreement, whose own lock must never nest inside ours.
	if hook != nil {
		hook(clone)
	}
	return clone, nil
}

func (m *Memory) Put(e *entry.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[normalizeDN(e.DN())] = e.Clone()
	return nil
}

func (m *Memory) AddValue(dn, typ, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[normalizeDN(dn)]
	if !ok {
		return ErrNotFound
	}
	e.Add(typ, value)
	return nil
}

func (m *Memory) DeleteValue(dn, typ, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[normalizeDN(dn)]
	if !ok {
		return ErrNotFound
	}
	e.DeleteValue(typ, value)
	return nil
}

func (m *Memory) DeleteAttr(dn, typ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[normalizeDN(dn)]
	if !ok {
		return ErrNotFound
	}
	e.Delete(typ)
	return nil
}

func (m *Memory) ReplaceValues(dn, typ string, values []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[normalizeDN(dn)]
	if !ok {
		return ErrNotFound
	}
	if len(values) == 0 {
		e.Delete(typ)
		return nil
	}
	e.Set(typ, values...)
	return nil
}

func (m *Memory) Delete(dn string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := normalizeDN(dn)
	if _, ok := m.entries[key]; !ok {
		return ErrNotFound
	}
	delete(m.entries, key)
	return nil
}

func (m *Memory) RegisterReadHook(dn string, hook ReadHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[normalizeDN(dn)] = hook
}

func (m *Memory) RemoveReadHook(dn string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hooks, normalizeDN(dn))
}

func (m *Memory) UniqueID(dn string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := normalizeDN(dn)
	if id, ok := m.uniqueIDs[key]; ok {
		return id
	}
	id := uuid.New().String()
	m.uniqueIDs[key] = id
	return id
}
