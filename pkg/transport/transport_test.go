package transport

import (
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjtechdev/connector-x-pooling/pkg/cxerrors"
	"github.com/sjtechdev/connector-x-pooling/pkg/types"
)

func testSchema(fields ...types.Field) *types.Schema {
	return &types.Schema{Fields: fields}
}

func newBuilders(t *testing.T, s *types.Schema) (*array.RecordBuilder, []array.Builder) {
	t.Helper()
	rb := array.NewRecordBuilder(memory.NewGoAllocator(), ArrowSchema(s))
	t.Cleanup(rb.Release)
	return rb, rb.Fields()
}

func TestNewPlan_ResolvesEveryColumnUpFront(t *testing.T) {
	schema := testSchema(
		types.Field{Name: "id", Type: types.Int64},
		types.Field{Name: "name", Type: types.String, Nullable: true},
		types.Field{Name: "score", Type: types.Float64, Nullable: true},
	)

	for _, ts := range []types.TypeSystem{types.NativeValues, types.TextValues} {
		plan, err := NewPlan(ts, schema)
		require.NoError(t, err)
		require.NotNil(t, plan)
	}
}

func TestPlan_WriteRow_Native(t *testing.T) {
	schema := testSchema(
		types.Field{Name: "id", Type: types.Int64},
		types.Field{Name: "name", Type: types.String, Nullable: true},
		types.Field{Name: "ok", Type: types.Bool},
		types.Field{Name: "at", Type: types.Timestamp},
	)
	plan, err := NewPlan(types.NativeValues, schema)
	require.NoError(t, err)

	rb, builders := newBuilders(t, schema)
	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	require.NoError(t, plan.WriteRow(builders, []any{int64(7), "alice", true, at}))
	require.NoError(t, plan.WriteRow(builders, []any{int64(8), nil, int64(0), at}))

	rec := rb.NewRecord()
	defer rec.Release()

	ids := rec.Column(0).(*array.Int64)
	assert.Equal(t, int64(7), ids.Value(0))
	assert.Equal(t, int64(8), ids.Value(1))

	names := rec.Column(1).(*array.String)
	assert.Equal(t, "alice", names.Value(0))
	assert.True(t, names.IsNull(1))

	oks := rec.Column(2).(*array.Boolean)
	assert.True(t, oks.Value(0))
	assert.False(t, oks.Value(1)) // integer zero reads as false

	ats := rec.Column(3).(*array.Timestamp)
	assert.Equal(t, arrow.Timestamp(at.UnixMicro()), ats.Value(0))
}

func TestPlan_WriteRow_Text(t *testing.T) {
	schema := testSchema(
		types.Field{Name: "id", Type: types.Int32},
		types.Field{Name: "ok", Type: types.Bool},
		types.Field{Name: "price", Type: types.Decimal},
		types.Field{Name: "day", Type: types.Date},
	)
	plan, err := NewPlan(types.TextValues, schema)
	require.NoError(t, err)

	rb, builders := newBuilders(t, schema)
	require.NoError(t, plan.WriteRow(builders, []any{"42", "t", "19.99", "2024-03-01"}))
	require.NoError(t, plan.WriteRow(builders, []any{[]byte("43"), []byte("f"), nil, nil}))

	rec := rb.NewRecord()
	defer rec.Release()

	assert.Equal(t, int32(42), rec.Column(0).(*array.Int32).Value(0))
	assert.Equal(t, int32(43), rec.Column(0).(*array.Int32).Value(1))
	assert.True(t, rec.Column(1).(*array.Boolean).Value(0))
	assert.False(t, rec.Column(1).(*array.Boolean).Value(1))
	assert.InDelta(t, 19.99, rec.Column(2).(*array.Float64).Value(0), 1e-9)
	assert.True(t, rec.Column(2).IsNull(1))

	day := rec.Column(3).(*array.Date32).Value(0).ToTime()
	assert.Equal(t, "2024-03-01", day.Format("2006-01-02"))
}

func TestPlan_WriteRow_SchemaMismatch(t *testing.T) {
	schema := testSchema(types.Field{Name: "id", Type: types.Int64})
	plan, err := NewPlan(types.NativeValues, schema)
	require.NoError(t, err)

	_, builders := newBuilders(t, schema)
	err = plan.WriteRow(builders, []any{int64(1), "extra"})
	require.Error(t, err)
	assert.True(t, cxerrors.IsType(err, cxerrors.ErrorTypeSchemaMismatch))
}

func TestPlan_ConversionErrors(t *testing.T) {
	t.Run("uint64 above MaxInt64 is rejected", func(t *testing.T) {
		schema := testSchema(types.Field{Name: "n", Type: types.Int64})
		plan, err := NewPlan(types.NativeValues, schema)
		require.NoError(t, err)

		_, builders := newBuilders(t, schema)
		err = plan.WriteRow(builders, []any{uint64(1) << 63})
		require.Error(t, err)
		assert.True(t, cxerrors.IsType(err, cxerrors.ErrorTypeConversion))
	})

	t.Run("int16 range check", func(t *testing.T) {
		schema := testSchema(types.Field{Name: "n", Type: types.Int16})
		plan, err := NewPlan(types.NativeValues, schema)
		require.NoError(t, err)

		_, builders := newBuilders(t, schema)
		err = plan.WriteRow(builders, []any{int64(100000)})
		require.Error(t, err)
		assert.True(t, cxerrors.IsType(err, cxerrors.ErrorTypeConversion))
	})

	t.Run("error names the column", func(t *testing.T) {
		schema := testSchema(types.Field{Name: "flagged", Type: types.Bool})
		plan, err := NewPlan(types.TextValues, schema)
		require.NoError(t, err)

		_, builders := newBuilders(t, schema)
		err = plan.WriteRow(builders, []any{"maybe"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "flagged")
	})
}

func TestTextConversions(t *testing.T) {
	t.Run("hex bytea", func(t *testing.T) {
		schema := testSchema(types.Field{Name: "blob", Type: types.Bytes})
		plan, err := NewPlan(types.TextValues, schema)
		require.NoError(t, err)

		rb, builders := newBuilders(t, schema)
		require.NoError(t, plan.WriteRow(builders, []any{`\x4142`}))
		rec := rb.NewRecord()
		defer rec.Release()
		assert.Equal(t, []byte("AB"), rec.Column(0).(*array.Binary).Value(0))
	})

	t.Run("timestamp layouts", func(t *testing.T) {
		schema := testSchema(types.Field{Name: "at", Type: types.Timestamp})
		plan, err := NewPlan(types.TextValues, schema)
		require.NoError(t, err)

		for _, s := range []string{
			"2024-03-01 12:30:00",
			"2024-03-01 12:30:00.123456",
			"2024-03-01 12:30:00+02:00",
			"2024-03-01T12:30:00Z",
		} {
			_, builders := newBuilders(t, schema)
			assert.NoError(t, plan.WriteRow(builders, []any{s}), "layout %q", s)
		}
	})

	t.Run("driver-decoded time passes through", func(t *testing.T) {
		schema := testSchema(types.Field{Name: "at", Type: types.Timestamp})
		plan, err := NewPlan(types.TextValues, schema)
		require.NoError(t, err)

		_, builders := newBuilders(t, schema)
		assert.NoError(t, plan.WriteRow(builders, []any{time.Now()}))
	})
}

func TestArrowSchema(t *testing.T) {
	s := ArrowSchema(testSchema(
		types.Field{Name: "id", Type: types.Int64},
		types.Field{Name: "price", Type: types.Decimal, Nullable: true},
		types.Field{Name: "day", Type: types.Date},
		types.Field{Name: "raw", Type: types.Bytes},
	))

	assert.Equal(t, arrow.PrimitiveTypes.Int64, s.Field(0).Type)
	assert.Equal(t, arrow.PrimitiveTypes.Float64, s.Field(1).Type)
	assert.True(t, s.Field(1).Nullable)
	assert.Equal(t, arrow.FixedWidthTypes.Date32, s.Field(2).Type)
	assert.Equal(t, arrow.BinaryTypes.Binary, s.Field(3).Type)
}
