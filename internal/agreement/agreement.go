// Package agreement implements the replication-agreement state machine: the
// concurrency-safe container for one agreement's connection parameters,
// scheduling, fractional-attribute filters and consistency bookkeeping,
// together with its lifecycle against a concurrently running replication
// session.
package agreement

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"gitlab.com/dirsrv-org/replmgr/internal/consistency"
	"gitlab.com/dirsrv-org/replmgr/internal/entry"
	"gitlab.com/dirsrv-org/replmgr/internal/entrystore"
	"gitlab.com/dirsrv-org/replmgr/internal/fractional"
	"gitlab.com/dirsrv-org/replmgr/internal/replica"
	"gitlab.com/dirsrv-org/replmgr/internal/schedule"
)

// Tuning defaults. Flow-control defaults depend on the backend engine
// family serving the replicated area.
const (
	DefaultTimeout = 120 // seconds, outbound connection

	DefaultFlowControlWindow     = 1000 // entries in flight, bdb family
	DefaultFlowControlPause      = 2000 // msec, bdb family
	lmdbDefaultFlowControlWindow = 50
	lmdbDefaultFlowControlPause  = 200

	defaultWaitForAsyncResults = 100 // msec

	statusLen = 2048 // bound on human and structured status text
)

// Deps carries the external collaborators an agreement is built against.
type Deps struct {
	// Replicas resolves the replicated area's owner.
	Replicas *replica.Registry
	// Entries is the directory-entry store: default exclude-list lookup,
	// status write-back, read-hook registration.
	Entries entrystore.Store
	// Markers persists consistency markers per replicated area.
	Markers *consistency.Store
	// Protocols builds replication sessions.
	Protocols ProtocolFactory
	// LocalHost and the local ports seed the session-id prefix.
	LocalHost       string
	LocalPort       int
	LocalSecurePort int

	Log logrus.FieldLogger
}

// Agreement is the per-consumer replication agreement. Scalar and session
// fields are guarded by mu; the fractional-attribute lists and the strip
// list are guarded separately by attrMu because they sit on the hot
// change-capture path.
type Agreement struct {
	mu     sync.Mutex
	attrMu sync.RWMutex

	deps Deps
	log  logrus.FieldLogger

	dn   string
	name string // RDN value, the agreement's short name

	host      string
	port      int64
	transport Transport

	bindDN     string
	creds      []byte
	bindMethod BindMethod

	bootstrapBindDN     string
	bootstrapCreds      []byte
	bootstrapBindMethod BindMethod
	bootstrapTransport  Transport

	replArea string
	replica  *replica.Replica

	fracAttrs        []string
	fracAttrsTotal   []string
	fracTotalDefined bool
	attrsToStrip     []string

	sched          schedule.Schedule
	autoInitialize InitState
	variant        Variant

	longName        string
	sessionIDPrefix string
	sessionIDCnt    int
	sessionID       string

	protocol Protocol

	counters []*changeCounter

	lastUpdateStart  time.Time
	lastUpdateEnd    time.Time
	lastUpdateStatus statusRecord
	updateInProgress bool

	lastInitStart  time.Time
	lastInitEnd    time.Time
	lastInitStatus statusRecord

	enabled        bool
	stopInProgress bool

	consumerRUV       *consistency.RUV
	consumerSchemaCSN consistency.CSN
	consumerID        replica.ID
	tmpConsumerID     bool

	maxcsn string // encoded consistency marker, empty until first update

	timeout             int64 // seconds
	busyWaitTime        int64 // seconds
	pauseTime           int64 // seconds
	flowControlWindow   int64 // entries
	flowControlPause    int64 // msec
	waitForAsyncResults int64 // msec
	protocolTimeout     int64 // seconds, read/written atomically
	ignoreMissing       IgnoreMissing
}

// New builds an agreement from its directory-entry representation. On any
// failure the partially constructed agreement is released and an error
// returned; a half-built agreement is never handed out.
func New(e *entry.Entry, deps Deps) (*Agreement, error) {
	a := &Agreement{
		deps:    deps,
		dn:      e.DN(),
		name:    e.RDNValue(),
		enabled: true,
		timeout: DefaultTimeout,
		log:     deps.Log.WithField("agreement", e.DN()),
	}

	if err := a.initFromEntry(e); err != nil {
		a.free()
		a.log.WithError(err).Error("failed to parse agreement, skipping")
		return nil, err
	}

	// Adorn the agreement's entry with live status whenever it is read.
	deps.Entries.RegisterReadHook(a.dn, a.InjectStatus)

	return a, nil
}

func (a *Agreement) initFromEntry(e *entry.Entry) error {
	// One-shot auto-initialize trigger: agreement creation with the
	// refresh attribute set to "start" makes the first session a total
	// update.
	a.autoInitialize = InitIncremental
	if strings.EqualFold(e.Value(AttrBeginReplicaRefresh), "start") {
		a.autoInitialize = InitTotal
	}

	a.host = e.Value(AttrHost)
	if v := e.Value(AttrPort); v != "" {
		port, err := parseBoundedInt(AttrPort, v, 1, 65535)
		if err != nil {
			return err
		}
		a.port = port
	}

	transport, err := ParseTransport(e.Value(AttrTransportInfo))
	if err != nil {
		return err
	}
	a.transport = transport

	a.waitForAsyncResults = defaultWaitForAsyncResults
	if v := e.Value(AttrWaitForAsyncResults); v != "" {
		if wait, err := strconv.ParseInt(v, 10, 64); err == nil && wait > 0 {
			a.waitForAsyncResults = wait
		}
	}

	// Bind DN may be empty when SASL or certificate auth carries the
	// identity.
	a.bindDN = e.Value(AttrBindDN)
	a.creds = []byte(e.Value(AttrCredentials))
	method, err := ParseBindMethod(e.Value(AttrBindMethod))
	if err != nil {
		return err
	}
	a.bindMethod = method

	// Bootstrap identity, used for first contact before the real identity
	// is provisioned. All parts optional.
	a.bootstrapBindDN = e.Value(AttrBootstrapBindDN)
	a.bootstrapCreds = []byte(e.Value(AttrBootstrapCredentials))
	if a.bootstrapTransport, err = ParseTransport(e.Value(AttrBootstrapTransportInfo)); err != nil {
		return err
	}
	if a.bootstrapBindMethod, err = ParseBindMethod(e.Value(AttrBootstrapBindMethod)); err != nil {
		return err
	}

	if v := e.Value(AttrTimeout); v != "" {
		timeout, err := parseBoundedInt(AttrTimeout, v, 0, math.MaxInt64)
		if err != nil {
			return err
		}
		a.timeout = timeout
	}

	a.replArea = e.Value(AttrRoot)
	r, ok := a.deps.Replicas.Get(a.replArea)
	if !ok {
		return fmt.Errorf("failed to get replica for agreement %s on replicated suffix %q", a.dn, a.replArea)
	}
	a.replica = r
	r.IncrAgmtCount()

	a.flowControlWindow = DefaultFlowControlWindow
	a.flowControlPause = DefaultFlowControlPause
	if r.Engine() == replica.EngineLMDB {
		a.flowControlWindow = lmdbDefaultFlowControlWindow
		a.flowControlPause = lmdbDefaultFlowControlPause
	}
	if v := e.Value(AttrFlowControlWindow); v != "" {
		window, err := parseBoundedInt(AttrFlowControlWindow, v, 0, math.MaxInt64)
		if err != nil {
			return err
		}
		a.flowControlWindow = window
	}
	if v := e.Value(AttrFlowControlPause); v != "" {
		pause, err := parseBoundedInt(AttrFlowControlPause, v, 0, math.MaxInt64)
		if err != nil {
			return err
		}
		a.flowControlPause = pause
	}

	if v := e.Value(AttrIgnoreMissingChange); v != "" {
		ignore, err := ParseIgnoreMissing(v)
		if err != nil {
			return err
		}
		a.ignoreMissing = ignore
	}

	if v := e.Value(AttrProtocolTimeout); v != "" {
		ptimeout, err := parseBoundedInt(AttrProtocolTimeout, v, 0, math.MaxInt64)
		if err != nil {
			return err
		}
		atomic.StoreInt64(&a.protocolTimeout, ptimeout)
	}

	if v := e.Value(AttrEnabled); v != "" {
		switch strings.ToLower(v) {
		case "on":
			a.enabled = true
		case "off":
			a.enabled = false
		default:
			return fmt.Errorf("invalid value for %s (%q), value must be \"on\" or \"off\"", AttrEnabled, v)
		}
	}

	a.sched = schedule.Always(a.windowStateChanged)
	if spec := e.Values(AttrUpdateSchedule); len(spec) > 0 {
		if err := a.sched.Set(spec); err != nil {
			return err
		}
	}

	if v := e.Value(AttrBusyWaitTime); v != "" {
		busy, err := parseBoundedInt(AttrBusyWaitTime, v, 0, math.MaxInt64)
		if err != nil {
			return err
		}
		a.busyWaitTime = busy
	}
	if v := e.Value(AttrSessionPauseTime); v != "" {
		pause, err := parseBoundedInt(AttrSessionPauseTime, v, 0, math.MaxInt64)
		if err != nil {
			return err
		}
		a.pauseTime = pause
	}

	// Consumer update-vector stored on the entry from an earlier session.
	if values := e.Values(AttrRUVElement); len(values) > 0 {
		elements := map[replica.ID]string{}
		for _, v := range values {
			id, max, err := consistency.ParseRUVValue(v)
			if err != nil {
				a.log.WithError(err).Warn("ignoring malformed consumer update-vector element")
				continue
			}
			elements[id] = max
		}
		if len(elements) > 0 {
			a.consumerRUV = consistency.NewRUV(elements)
		}
	}

	a.longName = longName(a.name, a.host, a.port)
	a.initSessionID()

	a.variant = VariantMultiSupplier
	if e.HasValue("objectclass", windowsAgreementObjectClass) {
		a.variant = VariantWindows
	}

	// Last-init bookkeeping survives restarts through the stored entry.
	a.lastInitStart = parseGenTime(e.Value(AttrLastInitStart))
	a.lastInitEnd = parseGenTime(e.Value(AttrLastInitEnd))
	if v := e.Value(AttrLastInitStatus); v != "" {
		a.lastInitStatus.text = bound(v)
	}

	if err := a.setReplicatedAttributes(e.Value(AttrReplicatedAttributeList)); err != nil {
		a.log.WithError(err).Warn("failed to set replicated attributes")
	}
	if kept, rejected := fractional.Validate(a.fracAttrs); len(rejected) > 0 {
		a.fracAttrs = kept
		return &ForbiddenAttributeError{Rejected: rejected}
	}

	if e.Has(AttrReplicatedAttributeListTotal) {
		if err := a.setReplicatedAttributesTotal(e.Value(AttrReplicatedAttributeListTotal)); err != nil {
			a.log.WithError(err).Warn("failed to parse total update replicated attributes")
		}
		if kept, rejected := fractional.Validate(a.fracAttrsTotal); len(rejected) > 0 {
			a.fracAttrsTotal = kept
			return &ForbiddenAttributeError{Rejected: rejected}
		}
	}

	if v := e.Value(AttrStripAttrs); v != "" {
		a.attrsToStrip = strings.Fields(v)
	}

	if verr := a.validate(); verr != nil {
		return verr
	}
	return nil
}

// validate runs the cross-field validation of spec and agreement state,
// returning a ValidationError listing every reason found.
func (a *Agreement) validate() *ValidationError {
	var reasons []string
	if a.host == "" {
		reasons = append(reasons, "missing host name")
	}
	if a.port <= 0 || a.port > 65535 {
		reasons = append(reasons, fmt.Sprintf("invalid port number %d", a.port))
	}
	if a.timeout < 0 {
		reasons = append(reasons, fmt.Sprintf("invalid timeout %d", a.timeout))
	}
	if a.busyWaitTime < 0 {
		reasons = append(reasons, fmt.Sprintf("invalid busy wait time %d", a.busyWaitTime))
	}
	if a.pauseTime < 0 {
		reasons = append(reasons, fmt.Sprintf("invalid pausetime %d", a.pauseTime))
	}
	if a.bindMethod == BindSSLClientAuth && !a.transport.Secure() {
		reasons = append(reasons, "cannot use SSLCLIENTAUTH if using plain LDAP - change the transport to LDAPS or StartTLS first")
	}
	if a.bindMethod.NeedsBindIdentity() && (a.bindDN == "" || len(a.creds) == 0) {
		reasons = append(reasons, fmt.Sprintf("a bind DN and password must be supplied for authentication method %q", a.bindMethod))
	}
	if a.bootstrapBindDN != "" && a.bootstrapBindMethod == BindSSLClientAuth && !a.bootstrapTransport.Secure() {
		reasons = append(reasons, "bootstrap bind method SSLCLIENTAUTH requires a TLS-capable bootstrap transport")
	}
	if len(reasons) == 0 {
		return nil
	}
	return &ValidationError{DN: a.dn, Reasons: reasons}
}

// IsValid reports whether the agreement passes cross-field validation,
// returning the reasons when it does not.
func (a *Agreement) IsValid() (bool, []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if verr := a.validate(); verr != nil {
		return false, verr.Reasons
	}
	return true, nil
}

// free releases everything the agreement owns. It is safe to call on a
// partially constructed agreement and is idempotent.
func (a *Agreement) free() {
	if a.replica != nil {
		a.replica.DecrAgmtCount()
		a.replica = nil
	}
	if a.sched != nil {
		a.sched.Destroy()
		a.sched = nil
	}
	a.consumerRUV = nil
	a.fracAttrs = nil
	a.fracAttrsTotal = nil
	a.fracTotalDefined = false
	a.attrsToStrip = nil
	a.counters = nil
	a.creds = nil
	a.bootstrapCreds = nil
	a.maxcsn = ""
}

// Delete tears the agreement down: the session must already be stopped.
// The persisted consistency marker is removed best-effort, the read-time
// status hook deregistered, the replicated area's agreement count
// decremented, and all owned state released.
func (a *Agreement) Delete() error {
	a.mu.Lock()
	if a.protocol != nil {
		a.mu.Unlock()
		return ErrSessionLive
	}
	a.mu.Unlock()

	a.deps.Entries.RemoveReadHook(a.dn)

	if err := a.RemoveMaxCSN(); err != nil {
		a.log.WithError(err).Error("failed to remove persisted consistency marker")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.free()
	return nil
}

func (a *Agreement) windowStateChanged(opened bool) {
	a.mu.Lock()
	prot := a.protocol
	a.mu.Unlock()
	if prot == nil {
		return
	}
	if opened {
		prot.NotifyWindowOpened()
	} else {
		prot.NotifyWindowClosed()
	}
}

// longName is the durable display name used in logs and status text:
// agmt="name" (shorthost:port).
func longName(name, host string, port int64) string {
	short := host
	if short == "" {
		short = "(unknown)"
	}
	if dot := strings.IndexByte(short, '.'); dot >= 0 {
		short = short[:dot]
	}
	return fmt.Sprintf("agmt=%q (%s:%d)", name, short, port)
}

func parseBoundedInt(attr, value string, min, max int64) (int64, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s (%q): %v", attr, value, err)
	}
	if n < min || n > max {
		return 0, fmt.Errorf("invalid value for %s (%d): out of range [%d, %d]", attr, n, min, max)
	}
	return n, nil
}

// genTimeFormat is the stored generalized-time form, 19700101000000Z when
// unset.
const genTimeFormat = "20060102150405Z"

func parseGenTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(genTimeFormat, value)
	if err != nil || t.Unix() <= 0 {
		return time.Time{}
	}
	return t
}

func formatGenTime(t time.Time) string {
	if t.IsZero() {
		return time.Unix(0, 0).UTC().Format(genTimeFormat)
	}
	return t.UTC().Format(genTimeFormat)
}

func bound(s string) string {
	if len(s) > statusLen {
		return s[:statusLen]
	}
	return s
}
