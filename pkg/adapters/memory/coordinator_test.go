package memory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/lattice/pkg/adapters/memory"
	"github.com/aretw0/lattice/pkg/domain"
	contract "github.com/aretw0/lattice/pkg/ports/tests"
)

func TestMemoryCoordinator_Contract(t *testing.T) {
	coord := memory.New()
	require.NoError(t, coord.Start(time.Second))
	defer coord.Close()

	contract.RunCoordinatorContract(t, coord)
}

func TestMemoryCoordinator_FailureInjection(t *testing.T) {
	coord := memory.New()
	require.NoError(t, coord.Start(time.Second))
	defer coord.Close()

	require.NoError(t, coord.Create("/a", []byte("x"), true))

	coord.SetFailure(domain.ErrConnectionLoss)
	_, _, err := coord.Get("/a")
	assert.ErrorIs(t, err, domain.ErrConnectionLoss)

	coord.SetFailure(nil)
	_, _, err = coord.Get("/a")
	assert.NoError(t, err)
}

func TestMemoryCoordinator_ReclaimEphemeral(t *testing.T) {
	coord := memory.New()
	require.NoError(t, coord.Start(time.Second))
	defer coord.Close()

	p, err := coord.NewParty("/party", "m1")
	require.NoError(t, err)
	require.NoError(t, p.Join())

	l := coord.NewLock("/lock", "m1")
	ok, err := l.Acquire(time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	coord.ReclaimEphemeral()

	members, err := p.Members()
	require.NoError(t, err)
	assert.Empty(t, members)

	// The lock node is reclaimed, so another holder can acquire.
	l2 := coord.NewLock("/lock", "m2")
	ok, err = l2.Acquire(100 * time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCoordinator_SessionDelivery(t *testing.T) {
	coord := memory.New()

	var seen []domain.SessionState
	coord.OnSessionChange(func(s domain.SessionState) {
		seen = append(seen, s)
	})

	require.NoError(t, coord.Start(time.Second))
	coord.FireSession(domain.SessionSuspended)
	coord.FireSession(domain.SessionConnected)

	assert.Equal(t, []domain.SessionState{
		domain.SessionConnected,
		domain.SessionSuspended,
		domain.SessionConnected,
	}, seen)
}
