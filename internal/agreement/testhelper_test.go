package agreement

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/dirsrv-org/replmgr/internal/consistency"
	"gitlab.com/dirsrv-org/replmgr/internal/entry"
	"gitlab.com/dirsrv-org/replmgr/internal/entrystore"
	"gitlab.com/dirsrv-org/replmgr/internal/replica"
	"gitlab.com/dirsrv-org/replmgr/internal/testhelper"
)

const (
	testArea = "dc=example,dc=com"
	testDN   = `cn=example-agreement,cn=replica,cn="dc=example,dc=com",cn=mapping tree,cn=config`
)

// fakeProtocol is a controllable session double. Stop blocks while
// blockStop is held open, letting tests observe stop-in-progress behavior.
type fakeProtocol struct {
	mu        sync.Mutex
	started   int
	stopped   int
	changed   []string
	opened    int
	closed    int
	conn      Conn
	blockStop chan struct{}
}

func (p *fakeProtocol) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started++
}

func (p *fakeProtocol) Stop() {
	if p.blockStop != nil {
		<-p.blockStop
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped++
}

func (p *fakeProtocol) NotifyAgreementChanged(longName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, longName)
}

func (p *fakeProtocol) NotifyWindowOpened() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opened++
}

func (p *fakeProtocol) NotifyWindowClosed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
}

func (p *fakeProtocol) Conn() Conn { return p.conn }

func (p *fakeProtocol) changeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.changed)
}

// fakeConn serves canned attribute reads keyed by DN.
type fakeConn struct {
	values map[string][]string
	err    error
}

func (c *fakeConn) ReadEntryAttribute(dn, attr string) ([]string, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.values[dn], nil
}

type testEnv struct {
	entries  *entrystore.Memory
	replicas *replica.Registry
	markers  *consistency.Store
	replica  *replica.Replica
	deps     Deps

	protocolsMu sync.Mutex
	protocols   []*fakeProtocol
	initStates  []InitState
}

func newTestEnv(t *testing.T) *testEnv {
	log := testhelper.NewDiscardingLogEntry(t)

	env := &testEnv{
		entries:  entrystore.NewMemory(),
		replicas: replica.NewRegistry(),
	}
	env.markers = consistency.NewStore(env.entries, log)
	env.replica = replica.New(testArea, 7, replica.EngineBDB, log)
	env.replicas.Add(env.replica)

	env.deps = Deps{
		Replicas:        env.replicas,
		Entries:         env.entries,
		Markers:         env.markers,
		Protocols:       env.newProtocol,
		LocalHost:       "supplier.example.com",
		LocalPort:       389,
		LocalSecurePort: 636,
		Log:             log,
	}
	return env
}

func (env *testEnv) newProtocol(a *Agreement, state InitState) (Protocol, error) {
	env.protocolsMu.Lock()
	defer env.protocolsMu.Unlock()
	p := &fakeProtocol{}
	env.protocols = append(env.protocols, p)
	env.initStates = append(env.initStates, state)
	return p, nil
}

func (env *testEnv) lastProtocol(t *testing.T) *fakeProtocol {
	env.protocolsMu.Lock()
	defer env.protocolsMu.Unlock()
	require.NotEmpty(t, env.protocols)
	return env.protocols[len(env.protocols)-1]
}

// testEntry returns a minimal valid agreement entry.
func testEntry() *entry.Entry {
	e := entry.New(testDN)
	e.Add("objectclass", "top", "nsds5ReplicationAgreement")
	e.Add("cn", "example-agreement")
	e.Add(AttrRoot, testArea)
	e.Add(AttrHost, "consumer.example.com")
	e.Add(AttrPort, "389")
	e.Add(AttrBindDN, "cn=replication manager,cn=config")
	e.Add(AttrCredentials, "opensesame")
	e.Add(AttrBindMethod, "SIMPLE")
	return e
}

func newTestAgreement(t *testing.T, env *testEnv, e *entry.Entry) *Agreement {
	require.NoError(t, env.entries.Put(e))
	a, err := New(e, env.deps)
	require.NoError(t, err)
	return a
}
