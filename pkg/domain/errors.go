package domain

import (
	"errors"
	"fmt"
)

// ErrConnectionLoss is returned when the session to the coordination service
// is unusable right now. It is always recoverable: callers may wait for the
// connection to come back and retry.
var ErrConnectionLoss = errors.New("coordination connection loss")

// ErrNoNode is returned when the target path does not exist.
var ErrNoNode = errors.New("no such node")

// ErrNodeExists is returned when creating a path that already exists.
var ErrNodeExists = errors.New("node already exists")

// ErrLockTimeout is returned by lock adapters when acquisition exceeds its
// deadline. The lock manager folds it into ErrConnectionLoss before it
// reaches callers.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// RetryLimitError is returned when a bounded retry budget is exhausted.
// It is terminal for that call.
type RetryLimitError struct {
	Desc     string
	Attempts int
}

func (e *RetryLimitError) Error() string {
	return fmt.Sprintf("%s: failed %d times", e.Desc, e.Attempts)
}

// IsConnError reports whether err is (or wraps) a connection-loss condition.
func IsConnError(err error) bool {
	return errors.Is(err, ErrConnectionLoss)
}
