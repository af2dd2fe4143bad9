package destination

import (
	"sync"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjtechdev/connector-x-pooling/pkg/cxerrors"
	"github.com/sjtechdev/connector-x-pooling/pkg/types"
)

func idSchema() *types.Schema {
	return &types.Schema{Fields: []types.Field{
		{Name: "id", Type: types.Int64},
	}}
}

func writeIDs(t *testing.T, w Writer, ids ...int64) {
	t.Helper()
	b := w.Columns()[0].(*array.Int64Builder)
	for _, id := range ids {
		b.Append(id)
		require.NoError(t, w.EndRow())
	}
}

func TestArrowDestination_PartitionOrder(t *testing.T) {
	d := NewArrowDestination()
	require.NoError(t, d.Allocate(3, idSchema()))

	// Finish partitions out of order; the result must still come back in
	// partition order.
	for _, part := range []int{2, 0, 1} {
		w, err := d.Writer(part)
		require.NoError(t, err)
		writeIDs(t, w, int64(part*10), int64(part*10+1))
		require.NoError(t, w.Finish())
	}

	res, err := d.Finalize()
	require.NoError(t, err)
	defer res.Release()

	assert.Equal(t, int64(6), res.Rows)
	require.Len(t, res.Batches, 3)
	for part, batch := range res.Batches {
		col := batch.Column(0).(*array.Int64)
		assert.Equal(t, int64(part*10), col.Value(0))
		assert.Equal(t, int64(part*10+1), col.Value(1))
	}
}

func TestArrowDestination_ConcurrentPartitions(t *testing.T) {
	const partitions = 8
	d := NewArrowDestination()
	require.NoError(t, d.Allocate(partitions, idSchema()))

	var wg sync.WaitGroup
	for i := 0; i < partitions; i++ {
		wg.Add(1)
		go func(part int) {
			defer wg.Done()
			w, err := d.Writer(part)
			require.NoError(t, err)
			writeIDs(t, w, int64(part))
			require.NoError(t, w.Finish())
		}(i)
	}
	wg.Wait()

	res, err := d.Finalize()
	require.NoError(t, err)
	defer res.Release()
	assert.Equal(t, int64(partitions), res.Rows)
}

func TestArrowDestination_Misuse(t *testing.T) {
	t.Run("double allocate", func(t *testing.T) {
		d := NewArrowDestination()
		require.NoError(t, d.Allocate(1, idSchema()))
		err := d.Allocate(1, idSchema())
		require.Error(t, err)
		assert.True(t, cxerrors.IsType(err, cxerrors.ErrorTypeProgramming))
	})

	t.Run("writer before allocate", func(t *testing.T) {
		_, err := NewArrowDestination().Writer(0)
		require.Error(t, err)
		assert.True(t, cxerrors.IsType(err, cxerrors.ErrorTypeProgramming))
	})

	t.Run("writer out of range", func(t *testing.T) {
		d := NewArrowDestination()
		require.NoError(t, d.Allocate(2, idSchema()))
		_, err := d.Writer(2)
		require.Error(t, err)
		assert.True(t, cxerrors.IsType(err, cxerrors.ErrorTypeProgramming))
	})

	t.Run("finalize with unfinished partition", func(t *testing.T) {
		d := NewArrowDestination()
		require.NoError(t, d.Allocate(1, idSchema()))
		_, err := d.Finalize()
		require.Error(t, err)
	})
}

func TestArrowStreamDestination_BatchBoundary(t *testing.T) {
	d := NewArrowStreamDestination(4)
	require.NoError(t, d.Allocate(1, idSchema()))

	go func() {
		w, err := d.Writer(0)
		if err != nil {
			d.End(err)
			return
		}
		b := w.Columns()[0].(*array.Int64Builder)
		for i := int64(0); i < 10; i++ {
			b.Append(i)
			if err := w.EndRow(); err != nil {
				d.End(err)
				return
			}
		}
		d.End(w.Finish())
	}()

	it := d.Iterator()
	defer it.Close()

	var sizes []int64
	var total int64
	for it.Next() {
		sizes = append(sizes, it.Record().NumRows())
		total += it.Record().NumRows()
	}
	require.NoError(t, it.Err())
	assert.Equal(t, int64(10), total)
	// Full batches at the configured size, remainder at finish.
	assert.Equal(t, []int64{4, 4, 2}, sizes)
}

func TestArrowStreamDestination_ErrorSurfacesOnIterator(t *testing.T) {
	d := NewArrowStreamDestination(0)
	require.NoError(t, d.Allocate(1, idSchema()))

	want := cxerrors.New(cxerrors.ErrorTypeQueryExecution, "boom")
	go d.End(want)

	it := d.Iterator()
	defer it.Close()
	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), want)
}

func TestArrowStreamDestination_CloseUnblocksWriters(t *testing.T) {
	d := NewArrowStreamDestination(1)
	require.NoError(t, d.Allocate(1, idSchema()))

	done := make(chan error, 1)
	go func() {
		w, err := d.Writer(0)
		if err != nil {
			done <- err
			return
		}
		b := w.Columns()[0].(*array.Int64Builder)
		// Overfill the channel so the writer blocks, then rely on Close.
		var werr error
		for i := int64(0); i < 100 && werr == nil; i++ {
			b.Append(i)
			werr = w.EndRow()
		}
		done <- werr
	}()

	it := d.Iterator()
	it.Close()

	err := <-done
	require.Error(t, err)
	assert.True(t, cxerrors.IsType(err, cxerrors.ErrorTypeInternal))
}
