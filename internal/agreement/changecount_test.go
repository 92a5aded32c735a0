package agreement

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChangeCounts(t *testing.T) {
	env := newTestEnv(t)
	a := newTestAgreement(t, env, testEntry())

	replayed, skipped := a.ChangeCounts()
	require.Zero(t, replayed)
	require.Zero(t, skipped)

	a.IncChangeCount(7, false)
	a.IncChangeCount(7, false)
	a.IncChangeCount(7, true)
	a.IncChangeCount(8, true)

	replayed, skipped = a.ChangeCounts()
	require.EqualValues(t, 2, replayed)
	require.EqualValues(t, 2, skipped)
}

func TestChangeCountSummary(t *testing.T) {
	env := newTestEnv(t)
	a := newTestAgreement(t, env, testEntry())

	a.mu.Lock()
	summary := a.changeCountSummary()
	a.mu.Unlock()
	require.Empty(t, summary)

	a.IncChangeCount(7, false)
	a.IncChangeCount(8, true)
	a.IncChangeCount(7, true)

	a.mu.Lock()
	summary = a.changeCountSummary()
	a.mu.Unlock()
	require.Equal(t, "7:1/1 8:0/1", summary)
}
