package agreement

import (
	"strings"
	"sync/atomic"
	"time"

	"gitlab.com/dirsrv-org/replmgr/internal/fractional"
	"gitlab.com/dirsrv-org/replmgr/internal/replica"
)

// mutate runs apply under the agreement lock, refusing the mutation while a
// stop is in progress, then signals the live session outside the lock. The
// signal must stay outside: the session's notification path takes locks of
// its own and nesting them under ours would invert the order.
func (a *Agreement) mutate(apply func() error) error {
	a.mu.Lock()
	if a.stopInProgress {
		a.mu.Unlock()
		return ErrStopInProgress
	}
	if err := apply(); err != nil {
		a.mu.Unlock()
		return err
	}
	prot, name := a.protocol, a.longName
	a.mu.Unlock()

	if prot != nil {
		prot.NotifyAgreementChanged(name)
	}
	return nil
}

// SetCredentials replaces the bind credential.
func (a *Agreement) SetCredentials(creds []byte) error {
	return a.mutate(func() error {
		a.creds = append([]byte(nil), creds...)
		return nil
	})
}

// SetBindDN replaces the bind DN.
func (a *Agreement) SetBindDN(dn string) error {
	return a.mutate(func() error {
		a.bindDN = dn
		return nil
	})
}

// SetBindMethod changes the bind method, refusing SSL client auth on a
// plain transport.
func (a *Agreement) SetBindMethod(method BindMethod) error {
	return a.mutate(func() error {
		prev := a.bindMethod
		a.bindMethod = method
		if verr := a.validate(); verr != nil {
			a.bindMethod = prev
			return verr
		}
		return nil
	})
}

// SetTransport changes the transport mode, refusing a downgrade to plain
// LDAP while the bind method is SSL client auth.
func (a *Agreement) SetTransport(transport Transport) error {
	return a.mutate(func() error {
		prev := a.transport
		a.transport = transport
		if verr := a.validate(); verr != nil {
			a.transport = prev
			return verr
		}
		return nil
	})
}

// SetBootstrapCredentials replaces the bootstrap bind credential.
func (a *Agreement) SetBootstrapCredentials(creds []byte) error {
	return a.mutate(func() error {
		a.bootstrapCreds = append([]byte(nil), creds...)
		return nil
	})
}

// SetBootstrapBindDN replaces the bootstrap bind DN.
func (a *Agreement) SetBootstrapBindDN(dn string) error {
	return a.mutate(func() error {
		a.bootstrapBindDN = dn
		return nil
	})
}

// SetBootstrapBindMethod changes the bootstrap bind method.
func (a *Agreement) SetBootstrapBindMethod(method BindMethod) error {
	return a.mutate(func() error {
		a.bootstrapBindMethod = method
		return nil
	})
}

// SetBootstrapTransport changes the bootstrap transport mode.
func (a *Agreement) SetBootstrapTransport(transport Transport) error {
	return a.mutate(func() error {
		a.bootstrapTransport = transport
		return nil
	})
}

// SetSchedule replaces the update schedule specification.
func (a *Agreement) SetSchedule(spec []string) error {
	return a.mutate(func() error {
		return a.sched.Set(spec)
	})
}

// SetTimeout sets the outbound connection timeout in seconds.
func (a *Agreement) SetTimeout(seconds int64) error {
	return a.mutate(func() error {
		prev := a.timeout
		a.timeout = seconds
		if verr := a.validate(); verr != nil {
			a.timeout = prev
			return verr
		}
		return nil
	})
}

// SetBusyWaitTime sets the post-busy wait in seconds.
func (a *Agreement) SetBusyWaitTime(seconds int64) error {
	return a.mutate(func() error {
		prev := a.busyWaitTime
		a.busyWaitTime = seconds
		if verr := a.validate(); verr != nil {
			a.busyWaitTime = prev
			return verr
		}
		return nil
	})
}

// SetPauseTime sets the inter-session pause in seconds.
func (a *Agreement) SetPauseTime(seconds int64) error {
	return a.mutate(func() error {
		prev := a.pauseTime
		a.pauseTime = seconds
		if verr := a.validate(); verr != nil {
			a.pauseTime = prev
			return verr
		}
		return nil
	})
}

// SetFlowControlWindow sets the number of entries sent without
// acknowledgment.
func (a *Agreement) SetFlowControlWindow(window int64) error {
	return a.mutate(func() error {
		a.flowControlWindow = window
		return nil
	})
}

// SetFlowControlPause sets the flow-control pause in milliseconds.
func (a *Agreement) SetFlowControlPause(pause int64) error {
	return a.mutate(func() error {
		a.flowControlPause = pause
		return nil
	})
}

// SetWaitForAsyncResults sets the async-result poll interval in
// milliseconds.
func (a *Agreement) SetWaitForAsyncResults(msec int64) error {
	return a.mutate(func() error {
		if msec <= 0 {
			msec = defaultWaitForAsyncResults
		}
		a.waitForAsyncResults = msec
		return nil
	})
}

// SetIgnoreMissingChange sets the ignore-missing-change policy from its
// configuration spelling.
func (a *Agreement) SetIgnoreMissingChange(value string) error {
	return a.mutate(func() error {
		ignore, err := ParseIgnoreMissing(value)
		if err != nil {
			return err
		}
		a.ignoreMissing = ignore
		return nil
	})
}

// SetAttrsToStrip replaces the space-delimited strip list.
func (a *Agreement) SetAttrsToStrip(value string) error {
	a.mu.Lock()
	if a.stopInProgress {
		a.mu.Unlock()
		return ErrStopInProgress
	}
	prot, name := a.protocol, a.longName
	a.mu.Unlock()

	a.attrMu.Lock()
	a.attrsToStrip = strings.Fields(value)
	a.attrMu.Unlock()

	if prot != nil {
		prot.NotifyAgreementChanged(name)
	}
	return nil
}

// SetReplicatedAttributes resets the incremental exclude list from the
// per-agreement specification merged over the process-wide default list.
// Forbidden attributes are stripped from the result and returned; whether a
// non-empty rejection is fatal is the caller's policy.
func (a *Agreement) SetReplicatedAttributes(spec string) ([]string, error) {
	a.mu.Lock()
	if a.stopInProgress {
		a.mu.Unlock()
		return nil, ErrStopInProgress
	}
	prot, name := a.protocol, a.longName
	a.mu.Unlock()

	a.attrMu.Lock()
	err := a.setReplicatedAttributes(spec)
	kept, rejected := fractional.Validate(a.fracAttrs)
	a.fracAttrs = kept
	a.attrMu.Unlock()

	if prot != nil {
		prot.NotifyAgreementChanged(name)
	}
	return rejected, err
}

// SetReplicatedAttributesTotal resets the total-update exclude list. An
// empty specification removes it, making total-update lookups fall back to
// the incremental list.
func (a *Agreement) SetReplicatedAttributesTotal(spec string) ([]string, error) {
	a.mu.Lock()
	if a.stopInProgress {
		a.mu.Unlock()
		return nil, ErrStopInProgress
	}
	prot, name := a.protocol, a.longName
	a.mu.Unlock()

	a.attrMu.Lock()
	err := a.setReplicatedAttributesTotal(spec)
	kept, rejected := fractional.Validate(a.fracAttrsTotal)
	a.fracAttrsTotal = kept
	a.attrMu.Unlock()

	if prot != nil {
		prot.NotifyAgreementChanged(name)
	}
	return rejected, err
}

// setReplicatedAttributes rebuilds the incremental list: default spec
// first, then the per-agreement spec, deduplicated in first-appearance
// order. Callers hold attrMu (or own the agreement exclusively during
// construction).
func (a *Agreement) setReplicatedAttributes(spec string) error {
	a.fracAttrs = a.defaultFractionalAttrs()
	if spec == "" {
		return nil
	}
	attrs, err := fractional.ParseSpec(spec, a.fracAttrs)
	a.fracAttrs = attrs
	return err
}

func (a *Agreement) setReplicatedAttributesTotal(spec string) error {
	a.fracAttrsTotal = nil
	a.fracTotalDefined = false
	if spec == "" {
		return nil
	}
	attrs, err := fractional.ParseSpec(spec, nil)
	a.fracAttrsTotal = attrs
	if err == nil {
		a.fracTotalDefined = true
	}
	return err
}

// defaultFractionalAttrs reads the process-wide default exclude
// specification from its well-known configuration entry. Absence of the
// entry is tolerated; malformed values are skipped with whatever parsed.
func (a *Agreement) defaultFractionalAttrs() []string {
	e, err := a.deps.Entries.Get(DefaultConfigDN)
	if err != nil {
		return nil
	}
	var attrs []string
	for _, v := range e.Values(AttrReplicatedAttributeList) {
		var perr error
		attrs, perr = fractional.ParseSpec(v, attrs)
		if perr != nil {
			a.log.WithError(perr).Errorf("failed to parse default config %s value", AttrReplicatedAttributeList)
		}
	}
	return attrs
}

// SetEnabled enables or disables the agreement. Disabling stops the live
// session, flushes consumer state, and records "agreement disabled" in the
// update status; enabling starts a fresh session.
func (a *Agreement) SetEnabled(enabled bool) error {
	a.mu.Lock()
	if a.stopInProgress {
		a.mu.Unlock()
		return ErrStopInProgress
	}
	if a.enabled == enabled {
		a.mu.Unlock()
		return nil
	}
	a.enabled = enabled
	a.mu.Unlock()

	if enabled {
		a.log.Info("agreement is now enabled")
		return a.Start()
	}

	a.log.Info("agreement is now disabled")
	if err := a.Stop(); err != nil {
		return err
	}
	a.UpdateConsumerRUV()
	a.UpdateInitStatus()
	a.SetLastUpdateStatus(0, ReplAgreementDisabled, "agreement disabled")
	return nil
}

// Getters. Each copies under the appropriate lock; none is held across a
// return.

// DN returns the agreement entry's distinguished name.
func (a *Agreement) DN() string { return a.dn }

// Name returns the agreement's short name (its RDN value).
func (a *Agreement) Name() string { return a.name }

// LongName returns the durable display name used in logs and status text.
func (a *Agreement) LongName() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.longName
}

// Host returns the remote replica's hostname.
func (a *Agreement) Host() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.host
}

// Port returns the remote replica's port.
func (a *Agreement) Port() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.port
}

// TransportInfo returns the transport mode.
func (a *Agreement) TransportInfo() Transport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.transport
}

// BindDN returns the bind DN; it may be empty for SASL or certificate
// authentication.
func (a *Agreement) BindDN() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bindDN
}

// Credentials returns a copy of the bind credential.
func (a *Agreement) Credentials() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]byte(nil), a.creds...)
}

// Method returns the bind method.
func (a *Agreement) Method() BindMethod {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bindMethod
}

// BootstrapBindDN returns the bootstrap bind DN.
func (a *Agreement) BootstrapBindDN() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bootstrapBindDN
}

// BootstrapCredentials returns a copy of the bootstrap credential.
func (a *Agreement) BootstrapCredentials() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]byte(nil), a.bootstrapCreds...)
}

// BootstrapMethod returns the bootstrap bind method.
func (a *Agreement) BootstrapMethod() BindMethod {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bootstrapBindMethod
}

// BootstrapTransportInfo returns the bootstrap transport mode.
func (a *Agreement) BootstrapTransportInfo() Transport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bootstrapTransport
}

// ReplArea returns the root DN of the replicated area.
func (a *Agreement) ReplArea() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.replArea
}

// Replica returns the replicated area's owner.
func (a *Agreement) Replica() *replica.Replica {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.replica
}

// Timeout returns the outbound connection timeout in seconds.
func (a *Agreement) Timeout() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timeout
}

// BusyWaitTime returns the post-busy wait in seconds.
func (a *Agreement) BusyWaitTime() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.busyWaitTime
}

// PauseTime returns the inter-session pause in seconds.
func (a *Agreement) PauseTime() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pauseTime
}

// FlowControlWindow returns the number of entries sent without
// acknowledgment.
func (a *Agreement) FlowControlWindow() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flowControlWindow
}

// FlowControlPause returns the flow-control pause in milliseconds.
func (a *Agreement) FlowControlPause() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flowControlPause
}

// WaitForAsyncResults returns the async-result poll interval in
// milliseconds.
func (a *Agreement) WaitForAsyncResults() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.waitForAsyncResults
}

// ProtocolTimeout returns the per-agreement protocol timeout in seconds,
// zero meaning the replica-wide default applies.
func (a *Agreement) ProtocolTimeout() int64 {
	return atomic.LoadInt64(&a.protocolTimeout)
}

// SetProtocolTimeout sets the per-agreement protocol timeout.
func (a *Agreement) SetProtocolTimeout(seconds int64) {
	atomic.StoreInt64(&a.protocolTimeout, seconds)
}

// IgnoreMissingChange returns the ignore-missing-change policy.
func (a *Agreement) IgnoreMissingChange() IgnoreMissing {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ignoreMissing
}

// IsEnabled reports whether the agreement is enabled.
func (a *Agreement) IsEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// VariantType returns the agreement variant.
func (a *Agreement) VariantType() Variant { return a.variant }

// AutoInitialize returns the initial transfer mode derived from the
// one-shot refresh trigger set at creation time.
func (a *Agreement) AutoInitialize() InitState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.autoInitialize
}

// HasProtocol reports whether a session is currently live.
func (a *Agreement) HasProtocol() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.protocol != nil
}

// Conn returns the live session's consumer connection, or nil.
func (a *Agreement) Conn() Conn {
	a.mu.Lock()
	prot := a.protocol
	a.mu.Unlock()
	if prot == nil {
		return nil
	}
	return prot.Conn()
}

// InWindow reports whether the update schedule permits replication at t.
func (a *Agreement) InWindow(t time.Time) bool {
	a.mu.Lock()
	sched := a.sched
	a.mu.Unlock()
	if sched == nil {
		return false
	}
	return sched.InWindow(t)
}

// AttrsToStrip returns a copy of the strip list.
func (a *Agreement) AttrsToStrip() []string {
	a.attrMu.RLock()
	defer a.attrMu.RUnlock()
	return append([]string(nil), a.attrsToStrip...)
}

// IsFractional reports whether the agreement has an incremental exclude
// list.
func (a *Agreement) IsFractional() bool {
	a.attrMu.RLock()
	defer a.attrMu.RUnlock()
	return len(a.fracAttrs) > 0
}

// FractionalAttrs returns a copy of the incremental exclude list.
func (a *Agreement) FractionalAttrs() []string {
	a.attrMu.RLock()
	defer a.attrMu.RUnlock()
	return append([]string(nil), a.fracAttrs...)
}

// FractionalAttrsTotal returns a copy of the total-update exclude list,
// falling back to the incremental list when none is defined.
func (a *Agreement) FractionalAttrsTotal() []string {
	a.attrMu.RLock()
	defer a.attrMu.RUnlock()
	if !a.fracTotalDefined {
		return append([]string(nil), a.fracAttrs...)
	}
	return append([]string(nil), a.fracAttrsTotal...)
}

// IsFractionalAttr reports whether the attribute is excluded from
// incremental updates.
func (a *Agreement) IsFractionalAttr(name string) bool {
	a.attrMu.RLock()
	defer a.attrMu.RUnlock()
	return containsAttr(a.fracAttrs, name)
}

// IsFractionalAttrTotal reports whether the attribute is excluded from
// total updates, falling back to the incremental list when no total list is
// defined.
func (a *Agreement) IsFractionalAttrTotal(name string) bool {
	a.attrMu.RLock()
	defer a.attrMu.RUnlock()
	if !a.fracTotalDefined {
		return containsAttr(a.fracAttrs, name)
	}
	return containsAttr(a.fracAttrsTotal, name)
}

// excludedFromIncremental reports whether a modified attribute would be
// filtered out on the incremental path, by the fractional list or the
// strip list. Callers hold attrMu for reading.
func (a *Agreement) excludedFromIncremental(name string) bool {
	return containsAttr(a.fracAttrs, name) || containsAttr(a.attrsToStrip, name)
}

func containsAttr(list []string, name string) bool {
	for _, v := range list {
		if v == name {
			return true
		}
	}
	return false
}
