package replica

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/dirsrv-org/replmgr/internal/testhelper"
)

func TestIsSuffix(t *testing.T) {
	for _, tc := range []struct {
		dn     string
		suffix string
		exp    bool
	}{
		{dn: "dc=example,dc=com", suffix: "dc=example,dc=com", exp: true},
		{dn: "uid=jdoe,ou=people,dc=example,dc=com", suffix: "dc=example,dc=com", exp: true},
		{dn: "UID=JDoe,DC=Example,DC=Com", suffix: "dc=example,dc=com", exp: true},
		{dn: "dc=example,dc=com", suffix: "dc=other,dc=com", exp: false},
		// Component boundaries matter: "xdc=com" must not match "dc=com".
		{dn: "dc=examplexdc=com", suffix: "dc=com", exp: false},
	} {
		require.Equal(t, tc.exp, IsSuffix(tc.dn, tc.suffix), "%s / %s", tc.dn, tc.suffix)
	}
}

func TestRegistryGetAndForDN(t *testing.T) {
	log := testhelper.NewDiscardingLogEntry(t)
	reg := NewRegistry()

	outer := New("dc=example,dc=com", 7, EngineBDB, log)
	inner := New("ou=people,dc=example,dc=com", 8, EngineLMDB, log)
	reg.Add(outer)
	reg.Add(inner)

	got, ok := reg.Get("DC=Example,DC=Com")
	require.True(t, ok)
	require.Equal(t, outer, got)

	_, ok = reg.Get("dc=missing")
	require.False(t, ok)

	// Nested areas resolve to the longest matching root.
	got, ok = reg.ForDN("uid=jdoe,ou=people,dc=example,dc=com")
	require.True(t, ok)
	require.Equal(t, inner, got)

	got, ok = reg.ForDN("uid=jdoe,ou=groups,dc=example,dc=com")
	require.True(t, ok)
	require.Equal(t, outer, got)

	_, ok = reg.ForDN("uid=jdoe,dc=elsewhere")
	require.False(t, ok)
}

func TestReplicaAgmtCount(t *testing.T) {
	r := New("dc=example,dc=com", 7, EngineBDB, testhelper.NewDiscardingLogEntry(t))

	r.IncrAgmtCount()
	r.IncrAgmtCount()
	require.Equal(t, 2, r.AgmtCount())

	r.DecrAgmtCount()
	r.DecrAgmtCount()
	r.DecrAgmtCount() // never goes negative
	require.Equal(t, 0, r.AgmtCount())
}

func TestReplicaTombstoneReapActive(t *testing.T) {
	r := New("dc=example,dc=com", 7, EngineBDB, testhelper.NewDiscardingLogEntry(t))

	require.False(t, r.TombstoneReapActive())
	r.SetTombstoneReapActive(true)
	require.True(t, r.TombstoneReapActive())
}
