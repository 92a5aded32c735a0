package consistency

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gitlab.com/dirsrv-org/replmgr/internal/entry"
	"gitlab.com/dirsrv-org/replmgr/internal/entrystore"
)

// Store persists consistency markers on the per-area marker entry: a
// tombstone child of the replicated area root, addressed by the root's
// storage unique ID so it survives renames of the root itself.
type Store struct {
	entries entrystore.Store
	log     logrus.FieldLogger
}

// NewStore returns a marker store backed by the given entry store.
func NewStore(entries entrystore.Store, log logrus.FieldLogger) *Store {
	return &Store{
		entries: entries,
		log:     log.WithField("component", "consistency.Store"),
	}
}

// markerDN resolves the DN of the area's marker entry. The unique ID is
// assigned by the backend on first use, so the DN is stable per area.
func (s *Store) markerDN(area string) string {
	return fmt.Sprintf("nsuniqueid=%s,%s", s.entries.UniqueID(area), area)
}

// Load returns all markers persisted for the area. A missing marker entry
// yields an empty list, not an error: lookups are best-effort.
func (s *Store) Load(area string) ([]string, error) {
	e, err := s.entries.Get(s.markerDN(area))
	if err != nil {
		if errors.Is(err, entrystore.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load markers for %q: %w", area, err)
	}
	return e.Values(MarkerAttr), nil
}

// Replace overwrites the persisted marker set for the area, creating the
// marker entry if it does not exist yet.
func (s *Store) Replace(area string, markers []string) error {
	dn := s.markerDN(area)
	err := s.entries.ReplaceValues(dn, MarkerAttr, markers)
	if errors.Is(err, entrystore.ErrNotFound) {
		e := entry.New(dn)
		for _, m := range markers {
			e.Add(MarkerAttr, m)
		}
		err = s.entries.Put(e)
	}
	if err != nil {
		return fmt.Errorf("replace markers for %q: %w", area, err)
	}
	return nil
}

// Remove deletes the marker matching the agreement tuple, in either the
// identified or the "unavailable" form. Removal is best-effort: absence of
// the marker entry or of a matching marker is not an error.
func (s *Store) Remove(area, name, host string, port int64) error {
	values, err := s.Load(area)
	if err != nil {
		return err
	}
	encoded, ok := FindMarker(values, area, name, host, port)
	if !ok {
		s.log.WithFields(logrus.Fields{
			"area": area,
			"name": name,
		}).Debug("no persisted consistency marker to remove")
		return nil
	}
	if err := s.entries.DeleteValue(s.markerDN(area), MarkerAttr, encoded); err != nil && !errors.Is(err, entrystore.ErrNotFound) {
		return fmt.Errorf("remove marker %q: %w", encoded, err)
	}
	return nil
}
