package lattice_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lattice "github.com/aretw0/lattice"
	"github.com/aretw0/lattice/pkg/adapters/memory"
	"github.com/aretw0/lattice/pkg/domain"
)

func TestGetLock_Acquire(t *testing.T) {
	c, _ := newTestConn(t)

	got, err := c.GetLock(time.Second, time.Second)
	require.NoError(t, err)
	assert.True(t, got)
	assert.True(t, c.HaveLock())
}

func TestGetLock_HeldLockShortCircuits(t *testing.T) {
	c, coord := newTestConn(t)

	got, err := c.GetLock(time.Second, time.Second)
	require.NoError(t, err)
	require.True(t, got)

	// With a valid lock no remote call is made, so an injected failure
	// must not be observed.
	coord.SetFailure(domain.ErrConnectionLoss)
	got, err = c.GetLock(time.Second, time.Second)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestHaveLock_InvalidatedByDisruption(t *testing.T) {
	c, coord := newTestConn(t)

	got, err := c.GetLock(time.Second, time.Second)
	require.NoError(t, err)
	require.True(t, got)
	epochAtAcquire := c.Epoch()

	// A full suspend/reconnect round trip leaves the session connected but
	// moves the epoch past the one captured at acquisition.
	coord.FireSession(domain.SessionSuspended)
	coord.FireSession(domain.SessionConnected)
	require.Eventually(t, func() bool {
		return c.IsConnected() && c.Epoch() > epochAtAcquire
	}, time.Second, testTick)

	assert.False(t, c.HaveLock())
	// The invalidation released local state, so the answer is stable.
	assert.False(t, c.HaveLock())

	// Reacquiring under the current epoch works.
	got, err = c.GetLock(time.Second, time.Second)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestHaveLock_InvalidatedWhileDisconnected(t *testing.T) {
	c, coord := newTestConn(t)

	got, err := c.GetLock(time.Second, time.Second)
	require.NoError(t, err)
	require.True(t, got)

	coord.FireSession(domain.SessionSuspended)
	require.Eventually(t, func() bool { return !c.IsConnected() },
		time.Second, testTick)

	assert.False(t, c.HaveLock())
}

func TestGetLock_ContendedTimesOut(t *testing.T) {
	coord := memory.New()
	c1 := lattice.New(coord, 1, 2, "bs", "host1")
	require.NoError(t, c1.Start())
	t.Cleanup(func() { _ = c1.Close() })
	c2 := lattice.New(coord, 1, 2, "bs", "host2")
	require.NoError(t, c2.Start())
	t.Cleanup(func() { _ = c2.Close() })
	require.Eventually(t, func() bool {
		return c1.IsConnected() && c2.IsConnected()
	}, time.Second, testTick)

	got, err := c1.GetLock(time.Second, time.Second)
	require.NoError(t, err)
	require.True(t, got)

	// The holder is alive, so the contender runs out its budget. That is
	// not an error, only an unsuccessful attempt.
	got, err = c2.GetLock(30*time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.False(t, got)
	assert.False(t, c2.HaveLock())

	// Once released, the contender gets through.
	c1.ReleaseLock()
	got, err = c2.GetLock(time.Second, time.Second)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestReleaseLock_BestEffort(t *testing.T) {
	c, coord := newTestConn(t)

	got, err := c.GetLock(time.Second, time.Second)
	require.NoError(t, err)
	require.True(t, got)

	// The remote release fails, but the local belief is revoked anyway.
	coord.SetFailure(domain.ErrConnectionLoss)
	c.ReleaseLock()
	coord.SetFailure(nil)
	assert.False(t, c.HaveLock())

	got, err = c.GetLock(time.Second, time.Second)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestWaitLock(t *testing.T) {
	c, _ := newTestConn(t)

	done := make(chan struct{})
	go func() {
		c.WaitLock()
		close(done)
	}()

	got, err := c.GetLock(time.Second, time.Second)
	require.NoError(t, err)
	require.True(t, got)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitLock not woken by acquisition")
	}
}
