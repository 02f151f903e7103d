package ports

import (
	"time"

	"github.com/aretw0/lattice/pkg/domain"
)

// SessionListener receives session-state change notifications. It is invoked
// on the adapter's own delivery goroutine and must return quickly without
// blocking or performing remote calls.
type SessionListener func(state domain.SessionState)

// Coordinator defines the capability consumed from a ZooKeeper-style
// coordination service: a hierarchical namespace of small nodes, session
// tracking, ephemeral group membership, and a mutual-exclusion primitive.
//
// Implementations MUST translate their native failures into the domain
// taxonomy (domain.ErrConnectionLoss, domain.ErrNoNode, domain.ErrNodeExists)
// before returning. The contract suite in pkg/ports/tests verifies this.
type Coordinator interface {
	// Start establishes the session, bounded by timeout.
	Start(timeout time.Duration) error

	// Close tears the session down. Ephemeral state owned by the session
	// is reclaimed by the service.
	Close() error

	// OnSessionChange registers a listener for session-state transitions.
	// Must be called before Start.
	OnSessionChange(l SessionListener)

	// SessionID identifies the current session, for logging.
	SessionID() string

	// EnsurePath creates path (and any missing parents) if absent.
	EnsurePath(path string) error

	// Create creates a node at path with the given value. Returns
	// domain.ErrNodeExists if it is already there. With makePath, missing
	// parents are created too.
	Create(path string, value []byte, makePath bool) error

	// Set overwrites the value of an existing node. Returns
	// domain.ErrNoNode if the node is absent.
	Set(path string, value []byte) error

	// Get returns the value and metadata of a node.
	Get(path string) ([]byte, domain.Stat, error)

	// Exists stats a node without fetching its value. The boolean reports
	// presence; a missing node is not an error.
	Exists(path string) (domain.Stat, bool, error)

	// Children lists the names (not full paths) of the direct children of
	// path. Returns domain.ErrNoNode if path itself is absent.
	Children(path string) ([]string, error)

	// Delete removes a node. Returns domain.ErrNoNode if already gone.
	Delete(path string) error

	// NewLock constructs (but does not acquire) a mutual-exclusion
	// primitive rooted at path, identifying the holder as id.
	NewLock(path, id string) Lock

	// NewParty registers an ephemeral group membership at path under the
	// given member id. Registration may touch the service and can fail
	// with domain.ErrConnectionLoss.
	NewParty(path, id string) (GroupParty, error)
}

// Lock is a distributed mutual-exclusion primitive. It tracks a local
// belief of being acquired; validity across session disruptions is the
// caller's problem (see the epoch guard in the lattice package).
type Lock interface {
	// Acquire blocks until the lock is held or timeout elapses. A zero
	// timeout means no deadline. Returns false when the deadline passed
	// without acquisition.
	Acquire(timeout time.Duration) (bool, error)

	// Release gives the lock up remotely and clears the local belief.
	Release() error

	// IsAcquired reports the local belief of holding the lock.
	IsAcquired() bool

	// Abandon clears the local belief without a remote call. Used when
	// the session is gone and the service will reclaim the lock node via
	// ephemeral semantics.
	Abandon()
}

// GroupParty is an ephemeral membership registration in a named group.
type GroupParty interface {
	// Join adds (or re-adds) this member to the group.
	Join() error

	// Members lists the ids currently present in the group.
	Members() ([]string, error)
}
