package agreement

import (
	"encoding/json"
	"fmt"
	"time"

	"gitlab.com/dirsrv-org/replmgr/internal/entry"
)

// ReplCode is the replication-level result of a session attempt, reported
// alongside the LDAP result code.
type ReplCode int

const (
	ReplSuccess ReplCode = iota
	ReplReplicaBusy
	ReplTransientError
	ReplBackoff
	ReplReleaseSucceeded
	ReplUpToDate
	ReplConnError
	ReplInternalError
	// ReplAreaDisabled means the replicated area refused updates;
	// ReplAgreementDisabled means this agreement itself was switched off.
	// They carry distinct messages because the operator's remedy differs.
	ReplAreaDisabled
	ReplAgreementDisabled
)

func (c ReplCode) String() string {
	switch c {
	case ReplSuccess:
		return "success"
	case ReplReplicaBusy:
		return "replica busy"
	case ReplTransientError:
		return "transient error"
	case ReplBackoff:
		return "backoff"
	case ReplReleaseSucceeded:
		return "replica released"
	case ReplUpToDate:
		return "up to date"
	case ReplConnError:
		return "connection error"
	case ReplInternalError:
		return "internal error"
	case ReplAreaDisabled:
		return "replicated area disabled"
	case ReplAgreementDisabled:
		return "agreement disabled"
	default:
		return fmt.Sprintf("unknown (%d)", int(c))
	}
}

// Health states surfaced through the structured status form.
const (
	StateGreen = "green"
	StateAmber = "amber"
	StateRed   = "red"
)

// statusRecord holds both renderings of one status: the human-readable
// line and the structured form.
type statusRecord struct {
	text string
	json string
}

type statusJSON struct {
	State   string `json:"state"`
	LdapRC  int    `json:"ldap_rc"`
	ReplRC  int    `json:"repl_rc"`
	ConnRC  int    `json:"conn_rc,omitempty"`
	Date    string `json:"date"`
	Message string `json:"message"`
}

func makeStatus(state string, ldaprc int, replrc ReplCode, connrc int, message string) statusRecord {
	rec := statusRecord{text: bound(message)}
	buf, err := json.Marshal(statusJSON{
		State:   state,
		LdapRC:  ldaprc,
		ReplRC:  int(replrc),
		ConnRC:  connrc,
		Date:    time.Now().UTC().Format(time.RFC3339),
		Message: rec.text,
	})
	if err == nil {
		rec.json = bound(string(buf))
	}
	return rec
}

// classify maps a session result onto a health state. An LDAP failure is
// always red. Replication-level busy, transient and backoff results are
// amber: the session expects to recover on its own. A disabled area or
// agreement is red so it cannot hide behind an otherwise clean session.
func classify(ldaprc int, replrc ReplCode) string {
	if ldaprc != 0 {
		return StateRed
	}
	switch replrc {
	case ReplSuccess, ReplReleaseSucceeded, ReplUpToDate:
		return StateGreen
	case ReplReplicaBusy, ReplTransientError, ReplBackoff:
		return StateAmber
	default:
		return StateRed
	}
}

// SetLastUpdateStatus records the outcome of an incremental update pass.
func (a *Agreement) SetLastUpdateStatus(ldaprc int, replrc ReplCode, message string) {
	state := classify(ldaprc, replrc)
	text := message
	switch {
	case ldaprc != 0:
		text = fmt.Sprintf("Error (%d) - LDAP error - %s", ldaprc, message)
	case replrc != ReplSuccess:
		text = fmt.Sprintf("Error (%d) - %s - %s", int(replrc), replrc, message)
	default:
		text = fmt.Sprintf("Error (0) %s", message)
	}
	rec := makeStatus(state, ldaprc, replrc, 0, text)

	a.mu.Lock()
	a.lastUpdateStatus = rec
	a.mu.Unlock()

	if state != StateGreen {
		a.log.WithField("state", state).Warn(rec.text)
	}
}

// SetLastInitStatus records the outcome of a total update (initialization),
// including the connection-level result the incremental path does not have.
func (a *Agreement) SetLastInitStatus(ldaprc int, replrc ReplCode, connrc int, message string) {
	state := classify(ldaprc, replrc)
	if connrc != 0 && state == StateGreen {
		state = StateRed
	}
	text := message
	switch {
	case ldaprc != 0:
		text = fmt.Sprintf("Error (%d) - LDAP error - %s", ldaprc, message)
	case connrc != 0:
		text = fmt.Sprintf("Error (%d) - connection error - %s", connrc, message)
	case replrc != ReplSuccess:
		text = fmt.Sprintf("Error (%d) - %s - %s", int(replrc), replrc, message)
	default:
		text = fmt.Sprintf("Error (0) %s", message)
	}
	rec := makeStatus(state, ldaprc, replrc, connrc, text)

	a.mu.Lock()
	a.lastInitStatus = rec
	a.mu.Unlock()

	if state != StateGreen {
		a.log.WithField("state", state).Warn(rec.text)
	}
}

// LastUpdateStatus returns the human and structured status of the most
// recent incremental update.
func (a *Agreement) LastUpdateStatus() (text, structured string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastUpdateStatus.text, a.lastUpdateStatus.json
}

// LastInitStatus returns the human and structured status of the most
// recent total update.
func (a *Agreement) LastInitStatus() (text, structured string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastInitStatus.text, a.lastInitStatus.json
}

// SetLastUpdateStart stamps the beginning of an incremental update pass.
func (a *Agreement) SetLastUpdateStart(t time.Time) {
	a.mu.Lock()
	a.lastUpdateStart = t
	a.mu.Unlock()
}

// SetLastUpdateEnd stamps the end of an incremental update pass.
func (a *Agreement) SetLastUpdateEnd(t time.Time) {
	a.mu.Lock()
	a.lastUpdateEnd = t
	a.mu.Unlock()
}

// SetLastInitStart stamps the beginning of a total update.
func (a *Agreement) SetLastInitStart(t time.Time) {
	a.mu.Lock()
	a.lastInitStart = t
	a.mu.Unlock()
}

// SetLastInitEnd stamps the end of a total update.
func (a *Agreement) SetLastInitEnd(t time.Time) {
	a.mu.Lock()
	a.lastInitEnd = t
	a.mu.Unlock()
}

// LastInitTimes returns the stamps of the most recent total update.
func (a *Agreement) LastInitTimes() (start, end time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastInitStart, a.lastInitEnd
}

// SetUpdateInProgress marks whether an update pass is currently running.
func (a *Agreement) SetUpdateInProgress(inProgress bool) {
	a.mu.Lock()
	a.updateInProgress = inProgress
	a.mu.Unlock()
}

// UpdateInProgress reports whether an update pass is currently running.
func (a *Agreement) UpdateInProgress() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.updateInProgress
}

// defaultUpdateStatus is reported until the first session runs.
const defaultUpdateStatus = "Error (0) No replication sessions started since server startup"

// InjectStatus is the read-time hook registered for the agreement's entry:
// it strips any stale derived attributes from the returned copy and re-adds
// the live values, so a reader always sees current state without the store
// ever persisting it.
func (a *Agreement) InjectStatus(e *entry.Entry) {
	for _, attr := range []string{
		AttrReapActive,
		AttrLastUpdateStart, AttrLastUpdateEnd,
		AttrChangesSent,
		AttrLastUpdateStatus, AttrLastUpdateStatusJSON,
		AttrUpdateInProgress,
		AttrLastInitStart, AttrLastInitEnd,
		AttrLastInitStatus, AttrLastInitStatusJSON,
	} {
		e.Delete(attr)
	}

	a.mu.Lock()
	reap := a.replica != nil && a.replica.TombstoneReapActive()
	updateStart, updateEnd := a.lastUpdateStart, a.lastUpdateEnd
	initStart, initEnd := a.lastInitStart, a.lastInitEnd
	updateStatus, initStatus := a.lastUpdateStatus, a.lastInitStatus
	inProgress := a.updateInProgress
	summary := a.changeCountSummary()
	a.mu.Unlock()

	reapValue := "0"
	if reap {
		reapValue = "1"
	}
	e.Add(AttrReapActive, reapValue)

	e.Add(AttrLastUpdateStart, formatGenTime(updateStart))
	e.Add(AttrLastUpdateEnd, formatGenTime(updateEnd))

	if summary != "" {
		e.Add(AttrChangesSent, summary)
	}

	if updateStatus.text == "" {
		updateStatus = makeStatus(StateGreen, 0, ReplSuccess, 0, defaultUpdateStatus)
	}
	e.Add(AttrLastUpdateStatus, updateStatus.text)
	if updateStatus.json != "" {
		e.Add(AttrLastUpdateStatusJSON, updateStatus.json)
	}

	progressValue := "FALSE"
	if inProgress {
		progressValue = "TRUE"
	}
	e.Add(AttrUpdateInProgress, progressValue)

	e.Add(AttrLastInitStart, formatGenTime(initStart))
	e.Add(AttrLastInitEnd, formatGenTime(initEnd))
	if initStatus.text != "" {
		e.Add(AttrLastInitStatus, initStatus.text)
		if initStatus.json != "" {
			e.Add(AttrLastInitStatusJSON, initStatus.json)
		}
	}
}
