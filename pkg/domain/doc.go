/*
Package domain holds the shared vocabulary of the lattice module: the
session-state enum, node metadata, and the error taxonomy every public
operation translates coordinator failures into.

Three kinds of failure cross package boundaries:

  - ErrConnectionLoss: the session is unusable right now. Recoverable.
  - ErrNoNode: the target path is absent. Recoverable where documented.
  - RetryLimitError: a bounded retry budget ran out. Terminal.

No adapter-native error type is allowed to escape a port implementation.
*/
package domain
