package domain

import "time"

// Stat is the metadata the coordination service stamps on a node.
type Stat struct {
	// Version counts modifications of the node, starting at 0.
	Version int64

	// LastModified is the server-side timestamp of the last write.
	LastModified time.Time
}
