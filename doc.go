/*
Package lattice is a coordination client layered over an external,
ZooKeeper-style coordination service. It gives distributed application
processes session tracking that survives flaky networks, a distributed
mutual-exclusion lock whose validity is tied to an unbroken session,
group-membership registration, and (via pkg/cache) a replicated shared
cache of small blobs.

# Concept

Every remote capability is consumed through the ports.Coordinator
interface, so the same code runs against the in-memory fake in tests and a
real backend in production. One Conn owns the session: a listener feeds
state changes into a queue, a single goroutine drains it and runs all
transition side effects serially, and everything else observes the session
only through the connected signal and a monotonically increasing
connection epoch.

The epoch is the correctness backbone. A lock captures the epoch at
acquisition; if the session round-trips through a disruption the epoch
moves on and HaveLock refuses the stale handle instead of letting the
process act on a lock it may no longer hold. The shared cache uses the
same counter to throw away its "latest seen" bookmark after a reconnect.

# Usage

	coord := redis.New("localhost:6379")
	conn := lattice.New(coord, 1, 2, "beacon", "bs-1",
		lattice.WithLogger(logger),
	)
	if err := conn.Start(); err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	if err := conn.WaitConnected(5 * time.Second); err != nil {
		// session not available, back off and retry
	}
	held, err := conn.GetLock(10*time.Second, 5*time.Second)
*/
package lattice
