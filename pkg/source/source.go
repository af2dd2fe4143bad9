// Package source defines the contracts every backend-specific query
// executor implements. A Source is built once per extraction from a
// descriptor (and, when available, a shared pool); each partition then
// acquires its own PartitionConn, executes its slice of the query, and
// streams backend-native rows.
package source

import (
	"context"

	"github.com/sjtechdev/connector-x-pooling/pkg/types"
)

// RowStream is one partition's ordered sequence of rows. Within a stream
// the row order is preserved end to end into the destination region.
type RowStream interface {
	// Next advances to the next row, returning false at the end of the
	// stream or on error (check Err).
	Next() bool
	// Values returns the current row's cells. The slice is only valid
	// until the next call to Next.
	Values() ([]any, error)
	// Err returns the first error encountered while iterating.
	Err() error
	// Close releases the stream's resources. Safe to call more than once.
	Close() error
}

// PartitionConn is one partition's physical connection, checked out from
// the pool or opened ad hoc. Close returns it to the pool (or drops it if
// ephemeral) and must be called on every exit path.
type PartitionConn interface {
	Execute(ctx context.Context, query string) (RowStream, error)
	Close() error
}

// Source executes queries against one backend with one protocol variant.
type Source interface {
	// TypeSystem tags the value shape this backend+protocol produces.
	TypeSystem() types.TypeSystem
	// Schema introspects the result layout of the given query without
	// fetching rows.
	Schema(ctx context.Context, query string) (*types.Schema, error)
	// SetPreExecutionQueries records statements run once per connection
	// before the partition query (session setup such as isolation level).
	// A pre-execution failure aborts that partition's extraction.
	SetPreExecutionQueries(queries []string)
	// Connect acquires a connection for one partition. Checkout from a
	// pool is bounded by the pool's connection timeout.
	Connect(ctx context.Context) (PartitionConn, error)
	// Close releases resources the source itself owns. It never closes a
	// shared pool passed in at construction.
	Close() error
}
