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

func TestPartySetup_JoinsAndLists(t *testing.T) {
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

	p1, err := c1.PartySetup("", true)
	require.NoError(t, err)
	_, err = c2.PartySetup("", true)
	require.NoError(t, err)

	members, err := p1.List()
	require.NoError(t, err)
	assert.Contains(t, members, "host1")
	assert.Contains(t, members, "host2")
}

func TestPartySetup_RequiresConnection(t *testing.T) {
	c, coord := newTestConn(t)

	coord.FireSession(domain.SessionSuspended)
	require.Eventually(t, func() bool { return !c.IsConnected() },
		time.Second, testTick)

	_, err := c.PartySetup("", true)
	require.Error(t, err)
	assert.True(t, domain.IsConnError(err))
}

func TestPartySetup_WithoutAutojoin(t *testing.T) {
	c, _ := newTestConn(t)

	p, err := c.PartySetup("", false)
	require.NoError(t, err)

	members, err := p.List()
	require.NoError(t, err)
	assert.NotContains(t, members, "host1")

	require.NoError(t, p.Join())
	members, err = p.List()
	require.NoError(t, err)
	assert.Contains(t, members, "host1")
}

func TestParty_RejoinsOnReconnect(t *testing.T) {
	c, coord := newTestConn(t)

	p, err := c.PartySetup("", true)
	require.NoError(t, err)

	// A session expiry wipes ephemeral membership on the service side.
	coord.ReclaimEphemeral()
	members, err := p.List()
	require.NoError(t, err)
	assert.NotContains(t, members, "host1")

	coord.FireSession(domain.SessionSuspended)
	coord.FireSession(domain.SessionConnected)
	require.Eventually(t, func() bool {
		members, err := p.List()
		if err != nil {
			return false
		}
		_, ok := members["host1"]
		return ok
	}, time.Second, testTick)
}

func TestPartySetup_CustomPrefix(t *testing.T) {
	c, coord := newTestConn(t)

	p, err := c.PartySetup("/shared/domain", true)
	require.NoError(t, err)

	_, ok, err := coord.Exists("/shared/domain/party")
	require.NoError(t, err)
	assert.True(t, ok)

	members, err := p.List()
	require.NoError(t, err)
	assert.Contains(t, members, "host1")
}
