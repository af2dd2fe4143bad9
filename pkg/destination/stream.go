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

// RecordBatchIterator is a lazy, finite, single-pass sequence of record
// batches. Batches arrive as partitions produce them; order across
// partitions is not defined, order within a partition is preserved.
type RecordBatchIterator interface {
	// Next blocks until a batch is available, returning false when the
	// stream ends. Check Err after Next returns false.
	Next() bool
	// Record returns the current batch. The caller owns it and must
	// Release it.
	Record() arrow.Record
	// Err returns the terminal extraction error, if any.
	Err() error
	// Close abandons the iteration and releases undelivered batches.
	Close()
}

// ArrowStreamDestination yields record batches of bounded size instead of
// one materialized result. Writers flush a batch to the shared channel
// whenever their builder reaches the batch size; the channel send applies
// backpressure to the extraction.
type ArrowStreamDestination struct {
	mem       memory.Allocator
	batchSize int64
	ch        chan arrow.Record

	mu          sync.Mutex
	arrowSchema *arrow.Schema
	allocated   bool
	parts       []*streamPartition
	err         error
	done        chan struct{}
}

type streamPartition struct {
	dest     *ArrowStreamDestination
	builder  *array.RecordBuilder
	pending  int64
	finished bool
}

// NewArrowStreamDestination creates a streaming destination with the
// given batch size.
func NewArrowStreamDestination(batchSize int) *ArrowStreamDestination {
	if batchSize <= 0 {
		batchSize = 65536
	}
	return &ArrowStreamDestination{
		mem:       memory.NewGoAllocator(),
		batchSize: int64(batchSize),
		ch:        make(chan arrow.Record, 2),
		done:      make(chan struct{}),
	}
}

// Allocate prepares one builder per partition.
func (d *ArrowStreamDestination) Allocate(partitions int, schema *types.Schema) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.allocated {
		return cxerrors.New(cxerrors.ErrorTypeProgramming, "destination already allocated")
	}
	d.arrowSchema = transport.ArrowSchema(schema)
	d.parts = make([]*streamPartition, partitions)
	for i := range d.parts {
		d.parts[i] = &streamPartition{dest: d, builder: array.NewRecordBuilder(d.mem, d.arrowSchema)}
	}
	d.allocated = true
	return nil
}

// Writer returns partition i's region.
func (d *ArrowStreamDestination) Writer(partition int) (Writer, error) {
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

func (p *streamPartition) Columns() []array.Builder {
	return p.builder.Fields()
}

func (p *streamPartition) EndRow() error {
	p.pending++
	if p.pending >= p.dest.batchSize {
		return p.flush()
	}
	return nil
}

func (p *streamPartition) Finish() error {
	if p.finished {
		return nil
	}
	if p.pending > 0 {
		if err := p.flush(); err != nil {
			return err
		}
	}
	p.builder.Release()
	p.finished = true
	return nil
}

func (p *streamPartition) flush() error {
	rec := p.builder.NewRecord()
	p.pending = 0
	select {
	case p.dest.ch <- rec:
		return nil
	case <-p.dest.done:
		rec.Release()
		return cxerrors.New(cxerrors.ErrorTypeInternal, "batch iterator closed")
	}
}

// End records the terminal extraction status and closes the batch stream.
// Called exactly once by the engine after all partitions have joined.
func (d *ArrowStreamDestination) End(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
	close(d.ch)
}

// Iterator returns the consumer side of the stream.
func (d *ArrowStreamDestination) Iterator() RecordBatchIterator {
	return &streamIterator{dest: d}
}

type streamIterator struct {
	dest   *ArrowStreamDestination
	cur    arrow.Record
	closed bool
}

func (it *streamIterator) Next() bool {
	if it.closed {
		return false
	}
	if it.cur != nil {
		it.cur.Release()
		it.cur = nil
	}
	rec, ok := <-it.dest.ch
	if !ok {
		return false
	}
	it.cur = rec
	return true
}

func (it *streamIterator) Record() arrow.Record { return it.cur }

func (it *streamIterator) Err() error {
	it.dest.mu.Lock()
	defer it.dest.mu.Unlock()
	return it.dest.err
}

func (it *streamIterator) Close() {
	if it.closed {
		return
	}
	it.closed = true
	if it.cur != nil {
		it.cur.Release()
		it.cur = nil
	}
	close(it.dest.done)
	// Drain so blocked writers observe done and unwind.
	go func() {
		for rec := range it.dest.ch {
			rec.Release()
		}
	}()
}
