package agreement

import (
	"fmt"
	"sort"
	"strconv"

	"gitlab.com/dirsrv-org/replmgr/internal/consistency"
	"gitlab.com/dirsrv-org/replmgr/internal/replica"
)

// ConsumerRUV returns the cached snapshot of the consumer's update-vector,
// nil before the first session established one. The snapshot is immutable;
// callers may hold it as long as they like.
func (a *Agreement) ConsumerRUV() *consistency.RUV {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.consumerRUV
}

// SetConsumerRUV replaces the cached consumer update-vector snapshot.
func (a *Agreement) SetConsumerRUV(ruv *consistency.RUV) {
	a.mu.Lock()
	a.consumerRUV = ruv
	a.mu.Unlock()
}

// ConsumerSchemaCSN returns the stamp of the schema most recently pushed to
// the consumer.
func (a *Agreement) ConsumerSchemaCSN() consistency.CSN {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.consumerSchemaCSN
}

// SetConsumerSchemaCSN records the stamp of the schema pushed to the
// consumer, so later sessions can skip redundant schema transfers.
func (a *Agreement) SetConsumerSchemaCSN(csn consistency.CSN) {
	a.mu.Lock()
	a.consumerSchemaCSN = csn
	a.mu.Unlock()
}

// ConsumerID returns the consumer's replica identity. The value is learned
// lazily: a cached identity seeded from a persisted marker is provisional
// and gets refreshed over the live connection, reading the replica
// configuration entry under the consumer's mapping tree. A consumer that
// does not expose the identity yields zero, which consistency tracking
// renders as "unavailable".
func (a *Agreement) ConsumerID(conn Conn) replica.ID {
	a.mu.Lock()
	id, provisional, area := a.consumerID, a.tmpConsumerID, a.replArea
	a.mu.Unlock()
	if id != 0 && !provisional {
		return id
	}
	if conn == nil {
		return id
	}

	dn := fmt.Sprintf("cn=replica,cn=\"%s\",cn=mapping tree,cn=config", area)
	values, err := conn.ReadEntryAttribute(dn, consumerReplicaIDAttr)

	var fresh replica.ID
	if err != nil || len(values) == 0 {
		a.log.WithError(err).Debug("consumer replica identity unavailable")
	} else if n, perr := strconv.ParseUint(values[0], 10, 16); perr == nil {
		fresh = replica.ID(n)
	}

	a.mu.Lock()
	a.consumerID = fresh
	a.tmpConsumerID = false
	a.mu.Unlock()
	return fresh
}

// UpdateConsumerRUV writes the cached consumer update-vector back onto the
// agreement's stored entry, one value per known replica, so it survives a
// restart. The store write happens outside the agreement lock.
func (a *Agreement) UpdateConsumerRUV() {
	a.mu.Lock()
	ruv := a.consumerRUV
	a.mu.Unlock()
	if ruv == nil {
		return
	}

	ids := ruv.IDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	values := make([]string, 0, len(ids))
	for _, id := range ids {
		values = append(values, ruv.FormatValue(id))
	}

	if err := a.deps.Entries.ReplaceValues(a.dn, AttrRUVElement, values); err != nil {
		a.log.WithError(err).Error("failed to persist consumer update-vector")
	}
}

// UpdateInitStatus writes the total-update bookkeeping back onto the stored
// entry so the last initialization's times and status survive a restart.
func (a *Agreement) UpdateInitStatus() {
	a.mu.Lock()
	start, end := a.lastInitStart, a.lastInitEnd
	status := a.lastInitStatus
	a.mu.Unlock()

	write := func(attr, value string) {
		if err := a.deps.Entries.ReplaceValues(a.dn, attr, []string{value}); err != nil {
			a.log.WithError(err).Errorf("failed to persist %s", attr)
		}
	}
	if !start.IsZero() {
		write(AttrLastInitStart, formatGenTime(start))
	}
	if !end.IsZero() {
		write(AttrLastInitEnd, formatGenTime(end))
	}
	if status.text != "" {
		write(AttrLastInitStatus, status.text)
	}
}

// ResetIgnoreMissing downgrades a one-shot ignore-missing-change policy back
// to never once it has been consumed, removing the stored attribute so the
// reset also survives a restart.
func (a *Agreement) ResetIgnoreMissing() {
	a.mu.Lock()
	if a.ignoreMissing != IgnoreMissingOnce {
		a.mu.Unlock()
		return
	}
	a.ignoreMissing = IgnoreMissingNever
	a.mu.Unlock()

	if err := a.deps.Entries.DeleteAttr(a.dn, AttrIgnoreMissingChange); err != nil {
		a.log.WithError(err).Error("failed to clear stored ignore-missing-change policy")
	}
}
