// Package transport fixes the conversion contract between one backend
// protocol's value shape and the Arrow destination. A Plan is resolved
// once per extraction, before any row is fetched: every column's logical
// type must have a registered cell writer, so an unsupported conversion is
// a construction-time error and never a surprise mid-extraction.
//
// Numeric policy: integers are never narrowed; unsigned 64-bit values
// above MaxInt64 are rejected with a conversion error. Decimal values
// convert to float64, losing precision beyond 53 bits.
//
// Cell writers are side-effect free apart from appending into the
// designated column builder, and do not allocate per cell on the native
// paths.
package transport

import (
	"encoding/hex"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/sjtechdev/connector-x-pooling/pkg/cxerrors"
	"github.com/sjtechdev/connector-x-pooling/pkg/types"
)

// CellFunc appends one converted cell to a column builder. A nil value
// appends null.
type CellFunc func(b array.Builder, v any) error

// Plan is the per-extraction conversion plan: one CellFunc per column,
// fixed by (type system, logical type).
type Plan struct {
	schema *types.Schema
	cells  []CellFunc
}

// NewPlan resolves a conversion plan. It fails with a conversion error if
// any column's logical type has no registered writer for the type system.
func NewPlan(ts types.TypeSystem, schema *types.Schema) (*Plan, error) {
	table := nativeCells
	if ts == types.TextValues {
		table = textCells
	}

	cells := make([]CellFunc, schema.Len())
	for i, f := range schema.Fields {
		fn, ok := table[f.Type]
		if !ok {
			return nil, cxerrors.Newf(cxerrors.ErrorTypeConversion,
				"no %s conversion for column %q of type %s", ts, f.Name, f.Type)
		}
		cells[i] = fn
	}
	return &Plan{schema: schema, cells: cells}, nil
}

// WriteRow converts one row into the partition's column builders. The row
// length must match the planned schema.
func (p *Plan) WriteRow(builders []array.Builder, row []any) error {
	if len(row) != len(p.cells) {
		return cxerrors.Newf(cxerrors.ErrorTypeSchemaMismatch,
			"row has %d columns, schema has %d", len(row), len(p.cells))
	}
	for i, v := range row {
		if err := p.cells[i](builders[i], v); err != nil {
			return cxerrors.Wrap(err, cxerrors.ErrorTypeConversion,
				"column "+p.schema.Fields[i].Name)
		}
	}
	return nil
}

// ArrowSchema maps the logical schema onto Arrow field types. This is the
// single place the logical→Arrow mapping lives; destinations build their
// record builders from it and transports append through it.
func ArrowSchema(s *types.Schema) *arrow.Schema {
	fields := make([]arrow.Field, s.Len())
	for i, f := range s.Fields {
		fields[i] = arrow.Field{Name: f.Name, Type: arrowType(f.Type), Nullable: f.Nullable}
	}
	return arrow.NewSchema(fields, nil)
}

func arrowType(t types.LogicalType) arrow.DataType {
	switch t {
	case types.Bool:
		return arrow.FixedWidthTypes.Boolean
	case types.Int16:
		return arrow.PrimitiveTypes.Int16
	case types.Int32:
		return arrow.PrimitiveTypes.Int32
	case types.Int64:
		return arrow.PrimitiveTypes.Int64
	case types.Float32:
		return arrow.PrimitiveTypes.Float32
	case types.Float64, types.Decimal:
		return arrow.PrimitiveTypes.Float64
	case types.String:
		return arrow.BinaryTypes.String
	case types.Bytes:
		return arrow.BinaryTypes.Binary
	case types.Timestamp:
		return arrow.FixedWidthTypes.Timestamp_us
	case types.Date:
		return arrow.FixedWidthTypes.Date32
	default:
		return arrow.BinaryTypes.String
	}
}

func conversionErr(want string, v any) error {
	return cxerrors.Newf(cxerrors.ErrorTypeConversion, "cannot convert %T to %s", v, want)
}

// ── Native value writers ───────────────────────────────────────────────

var nativeCells = map[types.LogicalType]CellFunc{
	types.Bool:      nativeBool,
	types.Int16:     nativeInt16,
	types.Int32:     nativeInt32,
	types.Int64:     nativeInt64,
	types.Float32:   nativeFloat32,
	types.Float64:   nativeFloat64,
	types.Decimal:   nativeDecimal,
	types.String:    nativeString,
	types.Bytes:     nativeBytes,
	types.Timestamp: nativeTimestamp,
	types.Date:      nativeDate,
}

func nativeBool(b array.Builder, v any) error {
	bb := b.(*array.BooleanBuilder)
	switch x := v.(type) {
	case nil:
		bb.AppendNull()
	case bool:
		bb.Append(x)
	case int64:
		// SQLite and MySQL surface booleans as integers.
		bb.Append(x != 0)
	default:
		return conversionErr("bool", v)
	}
	return nil
}

func toInt64(v any) (int64, bool, error) {
	switch x := v.(type) {
	case nil:
		return 0, true, nil
	case int64:
		return x, false, nil
	case int32:
		return int64(x), false, nil
	case int16:
		return int64(x), false, nil
	case int8:
		return int64(x), false, nil
	case int:
		return int64(x), false, nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, false, cxerrors.Newf(cxerrors.ErrorTypeConversion, "unsigned value %d overflows int64", x)
		}
		return int64(x), false, nil
	case uint32:
		return int64(x), false, nil
	case uint16:
		return int64(x), false, nil
	case uint8:
		return int64(x), false, nil
	default:
		return 0, false, conversionErr("integer", v)
	}
}

func nativeInt16(b array.Builder, v any) error {
	bb := b.(*array.Int16Builder)
	n, null, err := toInt64(v)
	if err != nil {
		return err
	}
	if null {
		bb.AppendNull()
		return nil
	}
	if n < math.MinInt16 || n > math.MaxInt16 {
		return cxerrors.Newf(cxerrors.ErrorTypeConversion, "value %d out of int16 range", n)
	}
	bb.Append(int16(n))
	return nil
}

func nativeInt32(b array.Builder, v any) error {
	bb := b.(*array.Int32Builder)
	n, null, err := toInt64(v)
	if err != nil {
		return err
	}
	if null {
		bb.AppendNull()
		return nil
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return cxerrors.Newf(cxerrors.ErrorTypeConversion, "value %d out of int32 range", n)
	}
	bb.Append(int32(n))
	return nil
}

func nativeInt64(b array.Builder, v any) error {
	bb := b.(*array.Int64Builder)
	n, null, err := toInt64(v)
	if err != nil {
		return err
	}
	if null {
		bb.AppendNull()
		return nil
	}
	bb.Append(n)
	return nil
}

func nativeFloat32(b array.Builder, v any) error {
	bb := b.(*array.Float32Builder)
	switch x := v.(type) {
	case nil:
		bb.AppendNull()
	case float32:
		bb.Append(x)
	case float64:
		bb.Append(float32(x))
	default:
		return conversionErr("float32", v)
	}
	return nil
}

func toFloat64(v any) (float64, bool, error) {
	switch x := v.(type) {
	case nil:
		return 0, true, nil
	case float64:
		return x, false, nil
	case float32:
		return float64(x), false, nil
	case int64:
		return float64(x), false, nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false, cxerrors.Wrap(err, cxerrors.ErrorTypeConversion, "cannot parse numeric")
		}
		return f, false, nil
	case []byte:
		f, err := strconv.ParseFloat(string(x), 64)
		if err != nil {
			return 0, false, cxerrors.Wrap(err, cxerrors.ErrorTypeConversion, "cannot parse numeric")
		}
		return f, false, nil
	default:
		return 0, false, conversionErr("float64", v)
	}
}

func nativeFloat64(b array.Builder, v any) error {
	bb := b.(*array.Float64Builder)
	f, null, err := toFloat64(v)
	if err != nil {
		return err
	}
	if null {
		bb.AppendNull()
		return nil
	}
	bb.Append(f)
	return nil
}

// nativeDecimal accepts the string forms drivers use for arbitrary
// precision numerics (MySQL DECIMAL arrives as []byte, Oracle NUMBER may
// arrive as string) in addition to floats.
func nativeDecimal(b array.Builder, v any) error {
	return nativeFloat64(b, v)
}

func nativeString(b array.Builder, v any) error {
	bb := b.(*array.StringBuilder)
	switch x := v.(type) {
	case nil:
		bb.AppendNull()
	case string:
		bb.Append(x)
	case []byte:
		bb.Append(string(x))
	default:
		return conversionErr("string", v)
	}
	return nil
}

func nativeBytes(b array.Builder, v any) error {
	bb := b.(*array.BinaryBuilder)
	switch x := v.(type) {
	case nil:
		bb.AppendNull()
	case []byte:
		bb.Append(x)
	case string:
		bb.Append([]byte(x))
	default:
		return conversionErr("bytes", v)
	}
	return nil
}

func nativeTimestamp(b array.Builder, v any) error {
	bb := b.(*array.TimestampBuilder)
	switch x := v.(type) {
	case nil:
		bb.AppendNull()
	case time.Time:
		bb.Append(arrow.Timestamp(x.UnixMicro()))
	default:
		return conversionErr("timestamp", v)
	}
	return nil
}

func nativeDate(b array.Builder, v any) error {
	bb := b.(*array.Date32Builder)
	switch x := v.(type) {
	case nil:
		bb.AppendNull()
	case time.Time:
		bb.Append(arrow.Date32FromTime(x))
	default:
		return conversionErr("date", v)
	}
	return nil
}

// ── Text value writers ─────────────────────────────────────────────────

var textCells = map[types.LogicalType]CellFunc{
	types.Bool:      textBool,
	types.Int16:     textInt16,
	types.Int32:     textInt32,
	types.Int64:     textInt64,
	types.Float32:   textFloat32,
	types.Float64:   textFloat64,
	types.Decimal:   textFloat64,
	types.String:    nativeString,
	types.Bytes:     textBytes,
	types.Timestamp: textTimestamp,
	types.Date:      textDate,
}

func asText(v any) (string, bool, error) {
	switch x := v.(type) {
	case nil:
		return "", true, nil
	case string:
		return x, false, nil
	case []byte:
		return string(x), false, nil
	default:
		return "", false, conversionErr("text", v)
	}
}

func textBool(b array.Builder, v any) error {
	bb := b.(*array.BooleanBuilder)
	s, null, err := asText(v)
	if err != nil {
		return err
	}
	if null {
		bb.AppendNull()
		return nil
	}
	switch s {
	case "t", "true", "TRUE", "1", "y", "yes":
		bb.Append(true)
	case "f", "false", "FALSE", "0", "n", "no":
		bb.Append(false)
	default:
		return cxerrors.Newf(cxerrors.ErrorTypeConversion, "cannot parse %q as bool", s)
	}
	return nil
}

func textInt(v any, bits int) (int64, bool, error) {
	s, null, err := asText(v)
	if err != nil || null {
		return 0, null, err
	}
	n, err := strconv.ParseInt(s, 10, bits)
	if err != nil {
		return 0, false, cxerrors.Wrap(err, cxerrors.ErrorTypeConversion, "cannot parse integer")
	}
	return n, false, nil
}

func textInt16(b array.Builder, v any) error {
	bb := b.(*array.Int16Builder)
	n, null, err := textInt(v, 16)
	if err != nil {
		return err
	}
	if null {
		bb.AppendNull()
		return nil
	}
	bb.Append(int16(n))
	return nil
}

func textInt32(b array.Builder, v any) error {
	bb := b.(*array.Int32Builder)
	n, null, err := textInt(v, 32)
	if err != nil {
		return err
	}
	if null {
		bb.AppendNull()
		return nil
	}
	bb.Append(int32(n))
	return nil
}

func textInt64(b array.Builder, v any) error {
	bb := b.(*array.Int64Builder)
	n, null, err := textInt(v, 64)
	if err != nil {
		return err
	}
	if null {
		bb.AppendNull()
		return nil
	}
	bb.Append(n)
	return nil
}

func textFloat32(b array.Builder, v any) error {
	bb := b.(*array.Float32Builder)
	s, null, err := asText(v)
	if err != nil {
		return err
	}
	if null {
		bb.AppendNull()
		return nil
	}
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return cxerrors.Wrap(err, cxerrors.ErrorTypeConversion, "cannot parse float")
	}
	bb.Append(float32(f))
	return nil
}

func textFloat64(b array.Builder, v any) error {
	bb := b.(*array.Float64Builder)
	s, null, err := asText(v)
	if err != nil {
		return err
	}
	if null {
		bb.AppendNull()
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return cxerrors.Wrap(err, cxerrors.ErrorTypeConversion, "cannot parse float")
	}
	bb.Append(f)
	return nil
}

// textBytes decodes the Postgres hex form (\x4142) and passes raw bytes
// through otherwise.
func textBytes(b array.Builder, v any) error {
	bb := b.(*array.BinaryBuilder)
	s, null, err := asText(v)
	if err != nil {
		return err
	}
	if null {
		bb.AppendNull()
		return nil
	}
	if strings.HasPrefix(s, `\x`) {
		raw, err := hex.DecodeString(s[2:])
		if err != nil {
			return cxerrors.Wrap(err, cxerrors.ErrorTypeConversion, "cannot decode hex bytea")
		}
		bb.Append(raw)
		return nil
	}
	bb.Append([]byte(s))
	return nil
}

// timestampLayouts covers the textual forms the supported backends emit.
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
}

func textTimestamp(b array.Builder, v any) error {
	bb := b.(*array.TimestampBuilder)
	// MySQL's driver decodes temporal columns even on the text protocol.
	if t, ok := v.(time.Time); ok {
		bb.Append(arrow.Timestamp(t.UnixMicro()))
		return nil
	}
	s, null, err := asText(v)
	if err != nil {
		return err
	}
	if null {
		bb.AppendNull()
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			bb.Append(arrow.Timestamp(t.UnixMicro()))
			return nil
		}
	}
	return cxerrors.Newf(cxerrors.ErrorTypeConversion, "cannot parse %q as timestamp", s)
}

func textDate(b array.Builder, v any) error {
	bb := b.(*array.Date32Builder)
	if t, ok := v.(time.Time); ok {
		bb.Append(arrow.Date32FromTime(t))
		return nil
	}
	s, null, err := asText(v)
	if err != nil {
		return err
	}
	if null {
		bb.AppendNull()
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return cxerrors.Wrap(err, cxerrors.ErrorTypeConversion, "cannot parse date")
	}
	bb.Append(arrow.Date32FromTime(t))
	return nil
}
