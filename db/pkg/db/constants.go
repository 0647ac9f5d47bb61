package db

import "time"

const (
	// DefaultPageSize is the size for query results to request from DB
	DefaultPageSize = 20

	// MaxPageSize caps caller-requested page sizes.
	MaxPageSize = 200

	// StorageTimeout is the per-hop budget for storage calls. Requests
	// carry a tighter deadline; this bounds stray callers.
	StorageTimeout = 50 * time.Millisecond

	// MaxRoleDepth bounds the role inheritance chain.
	MaxRoleDepth = 10
)
