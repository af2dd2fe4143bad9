package destination

import (
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/sjtechdev/connector-x-pooling/pkg/cxerrors"
	"github.com/sjtechdev/connector-x-pooling/pkg/transport"
	"github.com/sjtechdev/connector-x-pooling/pkg/types"
)

// ArrowDestination materializes the whole extraction as one in-memory
// result with a record batch per partition.
type ArrowDestination struct {
	mem memory.Allocator

	mu          sync.Mutex
	schema      *types.Schema
	arrowSchema *arrow.Schema
	parts       []*arrowPartition
	allocated   bool
}

type arrowPartition struct {
	builder  *array.RecordBuilder
	rows     int64
	finished bool
	record   arrow.Record
}

// NewArrowDestination creates an empty destination.
func NewArrowDestination() *ArrowDestination {
	return &ArrowDestination{mem: memory.NewGoAllocator()}
}

// Allocate pre-sizes one builder per partition. It may be called once.
func (d *ArrowDestination) Allocate(partitions int, schema *types.Schema) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.allocated {
		return cxerrors.New(cxerrors.ErrorTypeProgramming, "destination already allocated")
	}
	if partitions <= 0 {
		return cxerrors.New(cxerrors.ErrorTypeProgramming, "partition count must be positive")
	}

	d.schema = schema
	d.arrowSchema = transport.ArrowSchema(schema)
	d.parts = make([]*arrowPartition, partitions)
	for i := range d.parts {
		d.parts[i] = &arrowPartition{builder: array.NewRecordBuilder(d.mem, d.arrowSchema)}
	}
	d.allocated = true
	return nil
}

// Writer returns partition i's exclusive region.
func (d *ArrowDestination) Writer(partition int) (Writer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.allocated {
		return nil, cxerrors.New(cxerrors.ErrorTypeProgramming, "destination not allocated")
	}
	if partition < 0 || partition >= len(d.parts) {
		return nil, cxerrors.Newf(cxerrors.ErrorTypeProgramming, "partition %d out of range", partition)
	}
	return d.parts[partition], nil
}

func (p *arrowPartition) Columns() []array.Builder {
	return p.builder.Fields()
}

func (p *arrowPartition) EndRow() error {
	p.rows++
	return nil
}

func (p *arrowPartition) Finish() error {
	if p.finished {
		return nil
	}
	p.record = p.builder.NewRecord()
	p.builder.Release()
	p.finished = true
	return nil
}

// Finalize merges the partitions in partition order. It must only be
// called after every partition writer has finished.
func (d *ArrowDestination) Finalize() (*Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.allocated {
		return nil, cxerrors.New(cxerrors.ErrorTypeProgramming, "destination not allocated")
	}

	res := &Result{Schema: d.arrowSchema}
	for i, p := range d.parts {
		if !p.finished {
			return nil, cxerrors.Newf(cxerrors.ErrorTypeInternal, "partition %d not finished", i)
		}
		if !p.record.Schema().Equal(d.arrowSchema) {
			return nil, cxerrors.Newf(cxerrors.ErrorTypeSchemaMismatch,
				"partition %d reported an incompatible schema", i)
		}
		res.Batches = append(res.Batches, p.record)
		res.Rows += p.rows
	}
	return res, nil
}
