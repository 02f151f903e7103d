package lattice

import (
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/lattice/pkg/domain"
)

// GetLock attempts to take the distributed lock at <prefix>/lock. If a
// valid lock is already held locally it returns true without remote calls.
// Acquisition timeouts and connectivity failures are both reported as
// connection loss; neither is fatal, the caller may simply retry.
func (c *Conn) GetLock(lockTimeout, connTimeout time.Duration) (bool, error) {
	if c.HaveLock() {
		return true, nil
	}

	c.lockMu.Lock()
	if c.remote == nil {
		c.remote = c.coord.NewLock(c.prefix+"/lock", c.memberID)
	}
	remote := c.remote
	c.lockMu.Unlock()

	if err := c.WaitConnected(connTimeout); err != nil {
		return false, err
	}

	// Capture the candidate epoch before touching the wire: a disruption
	// during acquisition must read as a mismatch afterwards.
	c.lockMu.Lock()
	c.lockEpoch = c.epoch.Load()
	c.lockMu.Unlock()

	acquired, err := remote.Acquire(lockTimeout)
	if err != nil {
		return false, fmt.Errorf("lock acquisition (%v): %w",
			err, domain.ErrConnectionLoss)
	}
	if acquired {
		c.lockHeld.Set()
		c.metrics.LockAcquired.Inc()
	}
	return c.HaveLock(), nil
}

// HaveLock reports whether the lock held locally is still valid: the
// session must be connected, the connection epoch must equal the epoch
// captured at acquisition, and the lock signal must be set. Any failed
// condition releases the lock as a side effect, making this the single
// enforcement point against operating on a lock that survived a session
// disruption only in local memory.
func (c *Conn) HaveLock() bool {
	c.lockMu.Lock()
	lockEpoch := c.lockEpoch
	c.lockMu.Unlock()

	if c.IsConnected() && lockEpoch == c.epoch.Load() && c.lockHeld.IsSet() {
		return true
	}
	if c.lockHeld.IsSet() {
		c.metrics.LockInvalidated.Inc()
		c.logger.Info("held lock no longer valid, releasing",
			"lock_epoch", lockEpoch,
			"conn_epoch", c.epoch.Load(),
			"connected", c.IsConnected(),
		)
	}
	c.ReleaseLock()
	return false
}

// ReleaseLock gives the lock up. The local belief is revoked first,
// unconditionally. When disconnected the remote state is unknown and is
// abandoned without a remote call: the service reclaims the lock node via
// ephemeral semantics once the session truly expires. The remote release
// itself is best effort.
func (c *Conn) ReleaseLock() {
	c.lockHeld.Clear()

	c.lockMu.Lock()
	remote := c.remote
	c.lockMu.Unlock()
	if remote == nil {
		return
	}

	if !c.IsConnected() {
		remote.Abandon()
		c.logger.Debug("disconnected, abandoning lock to ephemeral reclamation")
		return
	}

	if err := remote.Release(); err != nil {
		if errors.Is(err, domain.ErrNoNode) || domain.IsConnError(err) {
			c.logger.Debug("best-effort lock release failed", "err", err)
			return
		}
		c.logger.Warn("unexpected error releasing lock", "err", err)
	}
}

// WaitLock blocks until the lock signal is set. There is no timeout;
// callers race this against their own deadline if they need one.
func (c *Conn) WaitLock() {
	c.lockHeld.Wait(0)
}
