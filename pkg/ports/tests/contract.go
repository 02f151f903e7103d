// Package tests provides a reusable contract suite that verifies a
// Coordinator adapter against the semantics the lattice core relies on,
// in particular the error-taxonomy translation at the port boundary.
package tests

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/ports"
)

// RunCoordinatorContract exercises node CRUD, children listing, party
// membership and lock behavior of a started Coordinator. The coordinator
// must be connected when the suite runs; the caller owns Start/Close.
func RunCoordinatorContract(t *testing.T, coord ports.Coordinator) {
	t.Helper()

	t.Run("EnsurePath", func(t *testing.T) {
		require.NoError(t, coord.EnsurePath("/contract/a/b"))
		// Idempotent.
		require.NoError(t, coord.EnsurePath("/contract/a/b"))

		_, ok, err := coord.Exists("/contract/a")
		require.NoError(t, err)
		assert.True(t, ok, "intermediate path should exist")
	})

	t.Run("CreateGetSet", func(t *testing.T) {
		path := "/contract/node"
		require.NoError(t, coord.Create(path, []byte("v1"), true))

		err := coord.Create(path, []byte("v1"), false)
		require.ErrorIs(t, err, domain.ErrNodeExists)

		value, stat, err := coord.Get(path)
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), value)
		assert.EqualValues(t, 0, stat.Version)

		require.NoError(t, coord.Set(path, []byte("v2")))
		value, stat2, err := coord.Get(path)
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), value)
		assert.Greater(t, stat2.Version, stat.Version)
		assert.False(t, stat2.LastModified.Before(stat.LastModified))
	})

	t.Run("MissingNode", func(t *testing.T) {
		_, _, err := coord.Get("/contract/absent")
		require.ErrorIs(t, err, domain.ErrNoNode)

		err = coord.Set("/contract/absent", []byte("x"))
		require.ErrorIs(t, err, domain.ErrNoNode)

		err = coord.Delete("/contract/absent")
		require.ErrorIs(t, err, domain.ErrNoNode)

		_, ok, err := coord.Exists("/contract/absent")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Children", func(t *testing.T) {
		base := "/contract/dir"
		require.NoError(t, coord.Create(base+"/x", []byte("x"), true))
		require.NoError(t, coord.Create(base+"/y", []byte("y"), true))

		names, err := coord.Children(base)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"x", "y"}, names)

		_, err = coord.Children("/contract/nodir")
		require.ErrorIs(t, err, domain.ErrNoNode)
	})

	t.Run("Delete", func(t *testing.T) {
		path := "/contract/doomed"
		require.NoError(t, coord.Create(path, nil, true))
		require.NoError(t, coord.Delete(path))
		_, ok, err := coord.Exists(path)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Party", func(t *testing.T) {
		p1, err := coord.NewParty("/contract/party", "member-1")
		require.NoError(t, err)
		require.NoError(t, p1.Join())

		p2, err := coord.NewParty("/contract/party", "member-2")
		require.NoError(t, err)
		require.NoError(t, p2.Join())
		// Joining twice is fine.
		require.NoError(t, p2.Join())

		members, err := p1.Members()
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"member-1", "member-2"}, members)
	})

	t.Run("Lock", func(t *testing.T) {
		l1 := coord.NewLock("/contract/lock", "holder-1")
		l2 := coord.NewLock("/contract/lock", "holder-2")

		ok, err := l1.Acquire(time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, l1.IsAcquired())

		// Contended acquire must time out without error.
		ok, err = l2.Acquire(50 * time.Millisecond)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.False(t, l2.IsAcquired())

		require.NoError(t, l1.Release())
		assert.False(t, l1.IsAcquired())

		ok, err = l2.Acquire(time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, l2.Release())
	})
}
