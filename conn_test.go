package lattice_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lattice "github.com/aretw0/lattice"
	"github.com/aretw0/lattice/pkg/adapters/memory"
	"github.com/aretw0/lattice/pkg/domain"
)

const testTick = 2 * time.Millisecond

func newTestConn(t *testing.T, opts ...lattice.Option) (*lattice.Conn, *memory.Coordinator) {
	t.Helper()
	coord := memory.New()
	c := lattice.New(coord, 1, 2, "bs", "host1", opts...)
	require.NoError(t, c.Start())
	t.Cleanup(func() { _ = c.Close() })
	require.Eventually(t, c.IsConnected, time.Second, testTick)
	return c, coord
}

func TestConn_StartEstablishesSession(t *testing.T) {
	c, coord := newTestConn(t)

	assert.Equal(t, uint64(1), c.Epoch())
	assert.Equal(t, "/ISD1-AD2/bs", c.Prefix())
	assert.Equal(t, "host1", c.MemberID())

	_, ok, err := coord.Exists("/ISD1-AD2/bs")
	require.NoError(t, err)
	assert.True(t, ok, "namespace root should be created on connect")
}

func TestConn_StartFailureIsFatal(t *testing.T) {
	coord := memory.New()
	coord.SetFailure(domain.ErrConnectionLoss)

	var fatal atomic.Bool
	c := lattice.New(coord, 1, 2, "bs", "host1",
		lattice.WithFatalFunc(func() { fatal.Store(true) }),
		lattice.WithStartupTimeout(50*time.Millisecond),
	)
	err := c.Start()
	require.Error(t, err)
	assert.True(t, fatal.Load(), "startup failure must invoke the fatal hook")
}

func TestConn_HandlersFireOnlyOnStateChange(t *testing.T) {
	var connects, disconnects atomic.Int32
	c, coord := newTestConn(t,
		lattice.WithOnConnect(func() { connects.Add(1) }),
		lattice.WithOnDisconnect(func() { disconnects.Add(1) }),
	)
	require.Eventually(t, func() bool { return connects.Load() == 1 },
		time.Second, testTick)

	coord.FireSession(domain.SessionSuspended)
	coord.FireSession(domain.SessionSuspended) // duplicate, no transition
	coord.FireSession(domain.SessionConnected)
	coord.FireSession(domain.SessionLost)

	require.Eventually(t, func() bool {
		return connects.Load() == 2 && disconnects.Load() == 2
	}, time.Second, testTick)
	assert.False(t, c.IsConnected())
	// Five notifications total, including the duplicate.
	assert.Equal(t, uint64(5), c.Epoch())
}

func TestConn_EpochCountsEveryNotification(t *testing.T) {
	c, coord := newTestConn(t)

	for i := 0; i < 3; i++ {
		coord.FireSession(domain.SessionConnected)
	}
	// Duplicate notifications bump the epoch even though no transition
	// handler runs and the connection stays up.
	require.Eventually(t, func() bool { return c.Epoch() == 4 },
		time.Second, testTick)
	assert.True(t, c.IsConnected())
}

func TestConn_WaitConnected(t *testing.T) {
	c, coord := newTestConn(t)

	// Already connected: returns without waiting.
	require.NoError(t, c.WaitConnected(time.Hour))

	coord.FireSession(domain.SessionSuspended)
	require.Eventually(t, func() bool { return !c.IsConnected() },
		time.Second, testTick)

	err := c.WaitConnected(30 * time.Millisecond)
	require.Error(t, err)
	assert.True(t, domain.IsConnError(err))

	done := make(chan error, 1)
	go func() { done <- c.WaitConnected(5 * time.Second) }()
	coord.FireSession(domain.SessionConnected)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter not woken by reconnect")
	}
}

func TestConn_CloseUnblocksWaiters(t *testing.T) {
	coord := memory.New()
	c := lattice.New(coord, 1, 2, "bs", "host1")
	require.NoError(t, c.Start())
	coord.FireSession(domain.SessionSuspended)
	require.Eventually(t, func() bool { return !c.IsConnected() },
		time.Second, testTick)

	done := make(chan error, 1)
	go func() { done <- c.WaitConnected(0) }()
	require.NoError(t, c.Close())
	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, domain.IsConnError(err))
	case <-time.After(time.Second):
		t.Fatal("waiter not unblocked by Close")
	}
}

func TestConn_EnsurePath(t *testing.T) {
	c, coord := newTestConn(t)

	require.NoError(t, c.EnsurePath("shared/cache"))
	_, ok, err := coord.Exists("/ISD1-AD2/bs/shared/cache")
	require.NoError(t, err)
	assert.True(t, ok)

	coord.SetFailure(domain.ErrConnectionLoss)
	err = c.EnsurePath("other")
	require.Error(t, err)
	assert.True(t, domain.IsConnError(err))
}

func TestConn_ReconnectRetriesNamespaceSetup(t *testing.T) {
	var connects atomic.Int32
	c, coord := newTestConn(t,
		lattice.WithOnConnect(func() { connects.Add(1) }),
	)
	require.Eventually(t, func() bool { return connects.Load() == 1 },
		time.Second, testTick)

	coord.FireSession(domain.SessionSuspended)
	require.Eventually(t, func() bool { return !c.IsConnected() },
		time.Second, testTick)

	// Namespace setup fails on this reconnect, so the transition is not
	// treated as connected.
	coord.SetFailure(domain.ErrConnectionLoss)
	coord.FireSession(domain.SessionConnected)
	time.Sleep(50 * time.Millisecond)
	assert.False(t, c.IsConnected())
	assert.Equal(t, int32(1), connects.Load())

	// The next round trip through suspended succeeds.
	coord.SetFailure(nil)
	coord.FireSession(domain.SessionSuspended)
	coord.FireSession(domain.SessionConnected)
	require.Eventually(t, c.IsConnected, time.Second, testTick)
	assert.Equal(t, int32(2), connects.Load())
}
