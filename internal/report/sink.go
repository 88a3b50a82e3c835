// Package report renders a completed replay into a human-readable summary
// and archives it to a local directory or an S3-compatible bucket.
package report

import "context"

// Sink is the archive backend for rendered reports. Reports are append-only
// artifacts; sinks expose no delete.
type Sink interface {
	// Put stores a rendered report at the given key
	Put(ctx context.Context, key string, data []byte) error

	// Get retrieves a stored report
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns all report keys matching the prefix
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists checks whether a report is already archived at the key
	Exists(ctx context.Context, key string) (bool, error)
}
