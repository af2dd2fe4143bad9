// Package destination provides the columnar sinks extraction results are
// written into. Storage is allocated per partition; a partition's writer
// region is owned exclusively by that partition's goroutine until
// finalization, which is the engine's core concurrency-safety argument:
// no synchronization is needed on the write path.
package destination

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/sjtechdev/connector-x-pooling/pkg/types"
)

// Writer is one partition's exclusive destination region. Converted cells
// are appended to Columns by the transport; EndRow commits the row.
// Finish seals the region; no writes may follow it.
type Writer interface {
	Columns() []array.Builder
	EndRow() error
	Finish() error
}

// Sink is the destination contract the dispatcher drives. Allocate is
// called exactly once, before any writer is handed out, and pre-sizes
// storage for the partition layout.
type Sink interface {
	Allocate(partitions int, schema *types.Schema) error
	Writer(partition int) (Writer, error)
}

// Result is a finalized extraction: record batches in partition order,
// partition 0's rows preceding partition 1's.
type Result struct {
	Schema  *arrow.Schema
	Batches []arrow.Record
	Rows    int64
}

// Release frees the underlying Arrow buffers.
func (r *Result) Release() {
	for _, b := range r.Batches {
		b.Release()
	}
	r.Batches = nil
}
