package gateway

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmission_CeilingEnforced(t *testing.T) {
	a := NewAdmission(2)

	require.NoError(t, a.Admit("org-1"))
	require.NoError(t, a.Admit("org-1"))
	err := a.Admit("org-1")
	require.Error(t, err)
	// The rejected attempt must not have mutated the count.
	assert.Equal(t, 2, a.Count("org-1"))

	// Other organizations are unaffected.
	require.NoError(t, a.Admit("org-2"))
}

func TestAdmission_ReleaseFreesSlot(t *testing.T) {
	a := NewAdmission(1)
	require.NoError(t, a.Admit("org-1"))
	require.Error(t, a.Admit("org-1"))

	a.Release("org-1")
	require.NoError(t, a.Admit("org-1"))
}

func TestAdmission_NeverNegative(t *testing.T) {
	a := NewAdmission(5)
	a.Release("org-1")
	a.Release("org-1")
	assert.Equal(t, 0, a.Count("org-1"))

	require.NoError(t, a.Admit("org-1"))
	assert.Equal(t, 1, a.Count("org-1"))
}

func TestAdmission_ConcurrentConnectDisconnect(t *testing.T) {
	const workers = 64
	const rounds = 200

	a := NewAdmission(workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				if a.Admit("org-1") == nil {
					a.Release("org-1")
				}
			}
		}()
	}
	wg.Wait()

	// admitted == released, so the final count must be exactly zero.
	assert.Equal(t, 0, a.Count("org-1"))
	assert.Equal(t, 0, a.Total())
}

func TestAdmission_Snapshot(t *testing.T) {
	a := NewAdmission(10)
	require.NoError(t, a.Admit("org-1"))
	require.NoError(t, a.Admit("org-1"))
	require.NoError(t, a.Admit("org-2"))

	counts := a.Counts()
	assert.Equal(t, map[string]int{"org-1": 2, "org-2": 1}, counts)
	assert.Equal(t, 3, a.Total())

	// The snapshot is a copy.
	counts["org-1"] = 99
	assert.Equal(t, 2, a.Count("org-1"))
}

func TestAdmission_DefaultCeiling(t *testing.T) {
	a := NewAdmission(0)
	for i := 0; i < DefaultCeiling; i++ {
		require.NoError(t, a.Admit("org-1"))
	}
	assert.Error(t, a.Admit("org-1"))
}
