package agreement

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/dirsrv-org/replmgr/internal/consistency"
)

func newTestRegistry(t *testing.T, env *testEnv, a *Agreement) *Registry {
	reg := NewRegistry(env.markers, env.deps.Log)
	require.NoError(t, reg.Add(a))
	return reg
}

func TestRegistryAddGetRemove(t *testing.T) {
	env := newTestEnv(t)
	a := newTestAgreement(t, env, testEntry())
	reg := newTestRegistry(t, env, a)

	got, ok := reg.Get(testDN)
	require.True(t, ok)
	require.Equal(t, a, got)

	require.Error(t, reg.Add(a))

	require.Equal(t, []*Agreement{a}, reg.All())
	require.Equal(t, []*Agreement{a}, reg.ForArea(testArea))
	require.Empty(t, reg.ForArea("dc=other"))

	reg.Remove(testDN)
	_, ok = reg.Get(testDN)
	require.False(t, ok)
}

func TestUpdateMaxCSNTracksLocalChanges(t *testing.T) {
	env := newTestEnv(t)
	a := newTestAgreement(t, env, testEntry())
	reg := newTestRegistry(t, env, a)

	csn := consistency.NewCSN("stamp1", 7)
	reg.UpdateMaxCSN(env.replica, "uid=jdoe,"+testArea, OpAdd, nil, csn)

	// Identity still unknown: the marker carries the unavailable slot.
	require.Equal(t, testArea+";example-agreement;consumer.example.com;389;unavailable;stamp1", a.MaxCSN())
}

func TestUpdateMaxCSNUnknownIdentityPrecedesOriginCheck(t *testing.T) {
	env := newTestEnv(t)
	a := newTestAgreement(t, env, testEntry())
	reg := newTestRegistry(t, env, a)

	// While the consumer identity is unavailable even a foreign-origin
	// change advances the marker; identity refresh happens lazily and the
	// marker must not stall until then.
	csn := consistency.NewCSN("foreign", 99)
	reg.UpdateMaxCSN(env.replica, "uid=jdoe,"+testArea, OpAdd, nil, csn)
	require.Contains(t, a.MaxCSN(), ";unavailable;foreign")
}

func TestUpdateMaxCSNWithKnownIdentity(t *testing.T) {
	env := newTestEnv(t)
	a := newTestAgreement(t, env, testEntry())
	reg := newTestRegistry(t, env, a)

	require.EqualValues(t, 9, a.ConsumerID(&fakeConn{values: map[string][]string{
		consumerReplicaDN: {"9"},
	}}))

	// Foreign-origin changes no longer advance the marker.
	reg.UpdateMaxCSN(env.replica, "uid=jdoe,"+testArea, OpAdd, nil, consistency.NewCSN("foreign", 99))
	require.Empty(t, a.MaxCSN())

	// Locally originated ones do, with the identity slot filled in.
	reg.UpdateMaxCSN(env.replica, "uid=jdoe,"+testArea, OpAdd, nil, consistency.NewCSN("local", 7))
	require.Equal(t, testArea+";example-agreement;consumer.example.com;389;9;local", a.MaxCSN())
}

func TestUpdateMaxCSNSkipsIrrelevantChanges(t *testing.T) {
	e := testEntry()
	e.Set(AttrReplicatedAttributeList, "(objectclass=*) $ EXCLUDE jpegPhoto")
	e.Set(AttrStripAttrs, "modifiersname")

	env := newTestEnv(t)
	a := newTestAgreement(t, env, e)
	reg := newTestRegistry(t, env, a)

	target := "uid=jdoe," + testArea
	csn := consistency.NewCSN("stamp", 7)

	// Outside the replicated area.
	reg.UpdateMaxCSN(env.replica, "uid=jdoe,dc=other", OpAdd, nil, csn)
	require.Empty(t, a.MaxCSN())

	// A modify whose attributes are all filtered out never reaches the
	// consumer: excluded list, strip list, or a mix of both.
	reg.UpdateMaxCSN(env.replica, target, OpModify, []string{"jpegPhoto"}, csn)
	reg.UpdateMaxCSN(env.replica, target, OpModify, []string{"modifiersname"}, csn)
	reg.UpdateMaxCSN(env.replica, target, OpModify, []string{"jpegPhoto", "modifiersname"}, csn)
	require.Empty(t, a.MaxCSN())

	// A zero stamp is ignored.
	reg.UpdateMaxCSN(env.replica, target, OpAdd, nil, consistency.CSN{})
	require.Empty(t, a.MaxCSN())

	// One surviving attribute makes the modify relevant.
	reg.UpdateMaxCSN(env.replica, target, OpModify, []string{"jpegPhoto", "description"}, csn)
	require.Contains(t, a.MaxCSN(), ";unavailable;stamp")
}

func TestUpdateMaxCSNSkipsDisabledAndWindowsAgreements(t *testing.T) {
	env := newTestEnv(t)

	disabled := testEntry()
	disabled.Set(AttrEnabled, "off")
	a := newTestAgreement(t, env, disabled)
	reg := newTestRegistry(t, env, a)

	csn := consistency.NewCSN("stamp", 7)
	reg.UpdateMaxCSN(env.replica, "uid=jdoe,"+testArea, OpAdd, nil, csn)
	require.Empty(t, a.MaxCSN())

	windows := testEntry()
	windows.Add("objectclass", "nsDSWindowsReplicationAgreement")
	env2 := newTestEnv(t)
	w := newTestAgreement(t, env2, windows)
	reg2 := newTestRegistry(t, env2, w)

	reg2.UpdateMaxCSN(env2.replica, "uid=jdoe,"+testArea, OpAdd, nil, csn)
	require.Empty(t, w.MaxCSN())
}

func TestUpdateMaxCSNKeepsSeededIdentity(t *testing.T) {
	env := newTestEnv(t)
	persisted := testArea + ";example-agreement;consumer.example.com;389;5;oldstamp"
	require.NoError(t, env.markers.Replace(testArea, []string{persisted}))

	a := newTestAgreement(t, env, testEntry())
	reg := newTestRegistry(t, env, a)

	require.NoError(t, a.Start())
	defer func() { require.NoError(t, a.Stop()) }()
	require.Equal(t, persisted, a.MaxCSN())

	// The identity seeded from the persisted marker is provisional but
	// still an identity: local changes keep advancing the identified
	// marker instead of regressing it to the unavailable form.
	reg.UpdateMaxCSN(env.replica, "uid=jdoe,"+testArea, OpAdd, nil, consistency.NewCSN("newstamp", 7))
	require.Equal(t, testArea+";example-agreement;consumer.example.com;389;5;newstamp", a.MaxCSN())

	// And foreign-origin changes are filtered, as with a refreshed identity.
	reg.UpdateMaxCSN(env.replica, "uid=jdoe,"+testArea, OpAdd, nil, consistency.NewCSN("foreign", 99))
	require.Equal(t, testArea+";example-agreement;consumer.example.com;389;5;newstamp", a.MaxCSN())
}

func TestAddMaxCSNsReplacesStaleMarker(t *testing.T) {
	env := newTestEnv(t)
	a := newTestAgreement(t, env, testEntry())
	reg := newTestRegistry(t, env, a)

	reg.UpdateMaxCSN(env.replica, "uid=jdoe,"+testArea, OpAdd, nil, consistency.NewCSN("fresh", 7))

	stale := testArea + ";example-agreement;consumer.example.com;389;unavailable;stale"
	other := testArea + ";other-agreement;elsewhere.example.com;389;3;kept"

	merged := reg.AddMaxCSNs([]string{stale, other}, testArea)
	require.Equal(t, []string{a.MaxCSN(), other}, merged)
}

func TestAddMaxCSNsSkipsDisabledAgreements(t *testing.T) {
	env := newTestEnv(t)
	a := newTestAgreement(t, env, testEntry())
	reg := newTestRegistry(t, env, a)

	reg.UpdateMaxCSN(env.replica, "uid=jdoe,"+testArea, OpAdd, nil, consistency.NewCSN("stamp1", 7))
	require.NotEmpty(t, a.MaxCSN())

	require.NoError(t, a.SetEnabled(false))
	require.Empty(t, reg.AddMaxCSNs(nil, testArea))

	require.NoError(t, reg.PersistMaxCSNs(testArea))
	stored, err := env.markers.Load(testArea)
	require.NoError(t, err)
	require.Empty(t, stored)
}

func TestAddMaxCSNsSkipsWindowsVariant(t *testing.T) {
	e := testEntry()
	e.Add("objectclass", "nsDSWindowsReplicationAgreement")

	env := newTestEnv(t)
	w := newTestAgreement(t, env, e)
	reg := newTestRegistry(t, env, w)

	w.mu.Lock()
	w.maxcsn = testArea + ";example-agreement;consumer.example.com;389;unavailable;stamp"
	w.mu.Unlock()

	require.Empty(t, reg.AddMaxCSNs(nil, testArea))
}

func TestPersistMaxCSNs(t *testing.T) {
	env := newTestEnv(t)
	a := newTestAgreement(t, env, testEntry())
	reg := newTestRegistry(t, env, a)

	reg.UpdateMaxCSN(env.replica, "uid=jdoe,"+testArea, OpAdd, nil, consistency.NewCSN("stamp1", 7))
	require.NoError(t, reg.PersistMaxCSNs(testArea))

	stored, err := env.markers.Load(testArea)
	require.NoError(t, err)
	require.Equal(t, []string{a.MaxCSN()}, stored)
}

func TestRemoveMaxCSN(t *testing.T) {
	env := newTestEnv(t)
	a := newTestAgreement(t, env, testEntry())
	reg := newTestRegistry(t, env, a)

	reg.UpdateMaxCSN(env.replica, "uid=jdoe,"+testArea, OpAdd, nil, consistency.NewCSN("stamp1", 7))
	require.NoError(t, reg.PersistMaxCSNs(testArea))

	require.NoError(t, a.RemoveMaxCSN())
	require.Empty(t, a.MaxCSN())

	stored, err := env.markers.Load(testArea)
	require.NoError(t, err)
	require.Empty(t, stored)
}
