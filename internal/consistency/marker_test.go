package consistency

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarkerFormatParseRoundTrip(t *testing.T) {
	m := Marker{
		Area:          "dc=example,dc=com",
		Name:          "example-agreement",
		Host:          "consumer.example.com",
		Port:          389,
		ConsumerID:    7,
		IdentityKnown: true,
		Stamp:         "5f3a1b2c000000070000",
	}

	encoded := m.Format()
	require.Equal(t, "dc=example,dc=com;example-agreement;consumer.example.com;389;7;5f3a1b2c000000070000", encoded)

	parsed, err := ParseMarker(encoded)
	require.NoError(t, err)
	require.Equal(t, m, parsed)
}

func TestMarkerUnavailableIdentity(t *testing.T) {
	m := Marker{
		Area:  "dc=example,dc=com",
		Name:  "example-agreement",
		Host:  "consumer.example.com",
		Port:  389,
		Stamp: "5f3a1b2c000000070000",
	}

	encoded := m.Format()
	require.Equal(t, "dc=example,dc=com;example-agreement;consumer.example.com;389;unavailable;5f3a1b2c000000070000", encoded)

	parsed, err := ParseMarker(encoded)
	require.NoError(t, err)
	require.False(t, parsed.IdentityKnown)
	require.Equal(t, m, parsed)

	require.EqualValues(t, 0, ConsumerIDOf(encoded))
}

func TestParseMarkerErrors(t *testing.T) {
	for _, tc := range []struct {
		desc    string
		encoded string
	}{
		{desc: "too few fields", encoded: "dc=example,dc=com;name;host;389;7"},
		{desc: "bad port", encoded: "dc=example,dc=com;name;host;none;7;stamp"},
		{desc: "bad identity", encoded: "dc=example,dc=com;name;host;389;seven;stamp"},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := ParseMarker(tc.encoded)
			require.Error(t, err)
		})
	}
}

func TestMatchesAgreement(t *testing.T) {
	identified := "dc=example,dc=com;agmt;host;389;7;stamp"
	unavailable := "dc=example,dc=com;agmt;host;389;unavailable;stamp"

	require.True(t, MatchesAgreement(identified, "dc=example,dc=com", "agmt", "host", 389))
	require.True(t, MatchesAgreement(unavailable, "dc=example,dc=com", "agmt", "host", 389))
	require.False(t, MatchesAgreement(identified, "dc=example,dc=com", "agmt", "host", 636))
	require.False(t, MatchesAgreement(identified, "dc=example,dc=com", "other", "host", 389))
}

func TestFindMarker(t *testing.T) {
	markers := []string{
		"dc=example,dc=com;first;host;389;7;stamp1",
		"dc=example,dc=com;second;host;389;unavailable;stamp2",
	}

	got, ok := FindMarker(markers, "dc=example,dc=com", "second", "host", 389)
	require.True(t, ok)
	require.Equal(t, markers[1], got)

	_, ok = FindMarker(markers, "dc=example,dc=com", "third", "host", 389)
	require.False(t, ok)
}
