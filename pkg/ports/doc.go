/*
Package ports defines the driven port for the lattice module: the
Coordinator capability consumed from an external coordination service.

The interfaces decouple the connection manager, lock manager, party and
shared cache from any concrete client, allowing the module to run against
the in-memory fake (pkg/adapters/memory) in tests and a real backend
(pkg/adapters/redis) in deployments.

# Key Interfaces

  - Coordinator: node CRUD, session lifecycle and listener registration.
  - Lock: the remote mutual-exclusion primitive.
  - GroupParty: ephemeral group membership ("party").
*/
package ports
