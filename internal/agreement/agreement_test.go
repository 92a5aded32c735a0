package agreement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gitlab.com/dirsrv-org/replmgr/internal/entry"
	"gitlab.com/dirsrv-org/replmgr/internal/replica"
	"gitlab.com/dirsrv-org/replmgr/internal/testhelper"
)

func TestNewAppliesDefaults(t *testing.T) {
	env := newTestEnv(t)
	a := newTestAgreement(t, env, testEntry())

	require.Equal(t, testDN, a.DN())
	require.Equal(t, "example-agreement", a.Name())
	require.Equal(t, `agmt="example-agreement" (consumer:389)`, a.LongName())
	require.Equal(t, "consumer.example.com", a.Host())
	require.EqualValues(t, 389, a.Port())
	require.Equal(t, TransportPlain, a.TransportInfo())
	require.Equal(t, BindSimple, a.Method())
	require.EqualValues(t, DefaultTimeout, a.Timeout())
	require.EqualValues(t, DefaultFlowControlWindow, a.FlowControlWindow())
	require.EqualValues(t, DefaultFlowControlPause, a.FlowControlPause())
	require.EqualValues(t, 100, a.WaitForAsyncResults())
	require.Equal(t, IgnoreMissingNever, a.IgnoreMissingChange())
	require.True(t, a.IsEnabled())
	require.False(t, a.IsFractional())
	require.Equal(t, InitIncremental, a.AutoInitialize())
	require.Equal(t, VariantMultiSupplier, a.VariantType())
	require.Equal(t, env.replica, a.Replica())
	require.Equal(t, 1, env.replica.AgmtCount())

	valid, reasons := a.IsValid()
	require.True(t, valid, reasons)
}

func TestNewLMDBFlowControlDefaults(t *testing.T) {
	log := testhelper.NewDiscardingLogEntry(t)
	env := newTestEnv(t)
	env.replicas.Add(replica.New(testArea, 7, replica.EngineLMDB, log))

	a := newTestAgreement(t, env, testEntry())
	require.EqualValues(t, 50, a.FlowControlWindow())
	require.EqualValues(t, 200, a.FlowControlPause())
}

func TestNewParsesConfiguredValues(t *testing.T) {
	e := testEntry()
	e.Set(AttrTransportInfo, "LDAPS")
	e.Set(AttrTimeout, "600")
	e.Set(AttrBusyWaitTime, "5")
	e.Set(AttrSessionPauseTime, "10")
	e.Set(AttrFlowControlWindow, "250")
	e.Set(AttrFlowControlPause, "750")
	e.Set(AttrWaitForAsyncResults, "400")
	e.Set(AttrProtocolTimeout, "90")
	e.Set(AttrIgnoreMissingChange, "always")
	e.Set(AttrEnabled, "off")
	e.Set(AttrBeginReplicaRefresh, "start")
	e.Set(AttrStripAttrs, "modifiersname internalModifiersname")
	e.Set(AttrReplicatedAttributeList, "(objectclass=*) $ EXCLUDE jpegPhoto")

	env := newTestEnv(t)
	a := newTestAgreement(t, env, e)

	require.Equal(t, TransportLDAPS, a.TransportInfo())
	require.EqualValues(t, 600, a.Timeout())
	require.EqualValues(t, 5, a.BusyWaitTime())
	require.EqualValues(t, 10, a.PauseTime())
	require.EqualValues(t, 250, a.FlowControlWindow())
	require.EqualValues(t, 750, a.FlowControlPause())
	require.EqualValues(t, 400, a.WaitForAsyncResults())
	require.EqualValues(t, 90, a.ProtocolTimeout())
	require.Equal(t, IgnoreMissingAlways, a.IgnoreMissingChange())
	require.False(t, a.IsEnabled())
	require.Equal(t, InitTotal, a.AutoInitialize())
	require.Equal(t, []string{"modifiersname", "internalModifiersname"}, a.AttrsToStrip())
	require.True(t, a.IsFractional())
	require.Equal(t, []string{"jpegPhoto"}, a.FractionalAttrs())
}

func TestNewRejectsMalformedEntries(t *testing.T) {
	for _, tc := range []struct {
		desc   string
		modify func(e *entryMod)
	}{
		{desc: "missing host", modify: func(e *entryMod) { e.del(AttrHost) }},
		{desc: "missing port", modify: func(e *entryMod) { e.del(AttrPort) }},
		{desc: "port out of range", modify: func(e *entryMod) { e.set(AttrPort, "70000") }},
		{desc: "port not a number", modify: func(e *entryMod) { e.set(AttrPort, "ldap") }},
		{desc: "bad transport", modify: func(e *entryMod) { e.set(AttrTransportInfo, "carrier-pigeon") }},
		{desc: "bad bind method", modify: func(e *entryMod) { e.set(AttrBindMethod, "SASL/NTLM") }},
		{desc: "bad enabled value", modify: func(e *entryMod) { e.set(AttrEnabled, "maybe") }},
		{desc: "bad ignore missing", modify: func(e *entryMod) { e.set(AttrIgnoreMissingChange, "sometimes") }},
		{desc: "negative timeout", modify: func(e *entryMod) { e.set(AttrTimeout, "-1") }},
		{desc: "unknown replicated area", modify: func(e *entryMod) { e.set(AttrRoot, "dc=unknown") }},
		{
			desc:   "sslclientauth over plain ldap",
			modify: func(e *entryMod) { e.set(AttrBindMethod, "SSLCLIENTAUTH") },
		},
		{
			desc: "simple bind without credentials",
			modify: func(e *entryMod) {
				e.del(AttrBindDN)
				e.del(AttrCredentials)
			},
		},
		{
			desc:   "forbidden fractional attribute",
			modify: func(e *entryMod) { e.set(AttrReplicatedAttributeList, "(objectclass=*) $ EXCLUDE nsuniqueid") },
		},
		{
			desc: "forbidden total fractional attribute",
			modify: func(e *entryMod) {
				e.set(AttrReplicatedAttributeListTotal, "(objectclass=*) $ EXCLUDE objectclass")
			},
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			env := newTestEnv(t)
			e := testEntry()
			tc.modify(&entryMod{e})

			_, err := New(e, env.deps)
			require.Error(t, err)

			// Construction failure must not leak the agreement-count
			// increment.
			require.Equal(t, 0, env.replica.AgmtCount())
		})
	}
}

func TestNewAcceptsSSLClientAuthOverTLS(t *testing.T) {
	e := testEntry()
	e.Set(AttrBindMethod, "SSLCLIENTAUTH")
	e.Set(AttrTransportInfo, "StartTLS")
	e.Delete(AttrBindDN)
	e.Delete(AttrCredentials)

	env := newTestEnv(t)
	a := newTestAgreement(t, env, e)
	require.Equal(t, BindSSLClientAuth, a.Method())
	require.Equal(t, TransportStartTLS, a.TransportInfo())
}

func TestNewWindowsVariant(t *testing.T) {
	e := testEntry()
	e.Add("objectclass", "nsDSWindowsReplicationAgreement")

	env := newTestEnv(t)
	a := newTestAgreement(t, env, e)
	require.Equal(t, VariantWindows, a.VariantType())
}

func TestNewRestoresLastInitBookkeeping(t *testing.T) {
	e := testEntry()
	e.Add(AttrLastInitStart, "20260801120000Z")
	e.Add(AttrLastInitEnd, "20260801120500Z")
	e.Add(AttrLastInitStatus, "Error (0) Total update succeeded")

	env := newTestEnv(t)
	a := newTestAgreement(t, env, e)

	start, end := a.LastInitTimes()
	require.Equal(t, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC), start)
	require.Equal(t, time.Date(2026, 8, 1, 12, 5, 0, 0, time.UTC), end)

	text, _ := a.LastInitStatus()
	require.Equal(t, "Error (0) Total update succeeded", text)
}

func TestNewMergesDefaultExcludeList(t *testing.T) {
	env := newTestEnv(t)

	defaults := entry.New(DefaultConfigDN)
	defaults.Add(AttrReplicatedAttributeList, "(objectclass=*) $ EXCLUDE memberOf")
	require.NoError(t, env.entries.Put(defaults))

	e := testEntry()
	e.Set(AttrReplicatedAttributeList, "(objectclass=*) $ EXCLUDE jpegPhoto memberOf")

	a := newTestAgreement(t, env, e)
	require.Equal(t, []string{"memberOf", "jpegPhoto"}, a.FractionalAttrs())
}

func TestFractionalTotalFallsBackToIncremental(t *testing.T) {
	e := testEntry()
	e.Set(AttrReplicatedAttributeList, "(objectclass=*) $ EXCLUDE jpegPhoto")

	env := newTestEnv(t)
	a := newTestAgreement(t, env, e)

	require.Equal(t, []string{"jpegPhoto"}, a.FractionalAttrsTotal())
	require.True(t, a.IsFractionalAttrTotal("jpegPhoto"))

	_, err := a.SetReplicatedAttributesTotal("(objectclass=*) $ EXCLUDE telephoneNumber")
	require.NoError(t, err)
	require.Equal(t, []string{"telephoneNumber"}, a.FractionalAttrsTotal())
	require.False(t, a.IsFractionalAttrTotal("jpegPhoto"))
	require.True(t, a.IsFractionalAttr("jpegPhoto"))

	// Clearing the total list restores the fallback.
	_, err = a.SetReplicatedAttributesTotal("")
	require.NoError(t, err)
	require.Equal(t, []string{"jpegPhoto"}, a.FractionalAttrsTotal())
}

func TestDelete(t *testing.T) {
	env := newTestEnv(t)
	a := newTestAgreement(t, env, testEntry())
	require.NoError(t, a.Start())

	// A live session blocks deletion.
	require.ErrorIs(t, a.Delete(), ErrSessionLive)

	require.NoError(t, a.Stop())
	require.NoError(t, a.Delete())
	require.Equal(t, 0, env.replica.AgmtCount())

	// The read-time hook is gone: reading the entry back yields no
	// injected status.
	got, err := env.entries.Get(testDN)
	require.NoError(t, err)
	require.False(t, got.Has(AttrLastUpdateStatus))
}

// entryMod gives the malformed-entry table terser mutators.
type entryMod struct{ e *entry.Entry }

func (m *entryMod) set(attr, value string) { m.e.Set(attr, value) }
func (m *entryMod) del(attr string)        { m.e.Delete(attr) }
