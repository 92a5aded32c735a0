package agreement

import (
	"fmt"

	"gitlab.com/dirsrv-org/replmgr/internal/consistency"
)

// Start brings up a replication session for the agreement. Starting a
// disabled agreement and starting an already started one are both no-ops.
//
// Before the session runs, the persisted consistency marker for the
// replicated area is loaded so the in-memory max CSN and consumer identity
// survive restarts. The load happens before the agreement lock is taken;
// the marker store reads the entry store, and nothing under our lock may
// do that.
func (a *Agreement) Start() error {
	a.mu.Lock()
	if !a.enabled || a.protocol != nil {
		a.mu.Unlock()
		return nil
	}
	area, name, host, port := a.replArea, a.name, a.host, a.port
	initState := a.autoInitialize
	a.mu.Unlock()

	markers, err := a.deps.Markers.Load(area)
	if err != nil {
		a.log.WithError(err).Warn("failed to load persisted consistency markers")
	}
	marker, found := consistency.FindMarker(markers, area, name, host, port)

	prot, err := a.deps.Protocols(a, initState)
	if err != nil {
		return fmt.Errorf("failed to begin a replication session: %w", err)
	}

	a.mu.Lock()
	if a.protocol != nil {
		// Lost the race against a concurrent Start.
		a.mu.Unlock()
		prot.Stop()
		return nil
	}
	a.protocol = prot
	a.autoInitialize = InitIncremental
	if a.maxcsn == "" && found {
		a.maxcsn = marker
		a.consumerID = consistency.ConsumerIDOf(marker)
		a.tmpConsumerID = true
	}
	a.mu.Unlock()

	prot.Start()
	a.log.Info("replication session started")
	return nil
}

// Stop shuts the replication session down and waits for it to finish.
// While the stop is in progress every configuration mutator fails with
// ErrStopInProgress; the session's own shutdown path may still read the
// agreement freely.
func (a *Agreement) Stop() error {
	a.mu.Lock()
	if a.stopInProgress {
		a.mu.Unlock()
		return ErrStopInProgress
	}
	prot := a.protocol
	if prot == nil {
		a.mu.Unlock()
		return nil
	}
	a.stopInProgress = true
	a.mu.Unlock()

	prot.Stop()

	a.mu.Lock()
	a.protocol = nil
	a.stopInProgress = false
	a.mu.Unlock()

	a.log.Info("replication session stopped")
	return nil
}

// ReplicateNow nudges a live session to run an update pass outside the
// normal schedule. Without a live session there is nothing to nudge and the
// call succeeds trivially.
func (a *Agreement) ReplicateNow() error {
	a.mu.Lock()
	prot, name := a.protocol, a.longName
	a.mu.Unlock()
	if prot != nil {
		prot.NotifyAgreementChanged(name)
	}
	return nil
}
