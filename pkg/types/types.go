// Package types defines the logical type system shared by every source,
// transport, and destination in the extraction engine. A source maps its
// backend-native column types onto these logical types once, at schema
// introspection time; transports are planned against them before any row
// is fetched.
package types

import "fmt"

// LogicalType is the backend-neutral tag carried by every column.
type LogicalType int

const (
	Bool LogicalType = iota
	Int16
	Int32
	Int64
	Float32
	Float64
	// Decimal covers arbitrary-precision numerics (NUMBER, NUMERIC,
	// DECIMAL). Values are converted to float64 on write; precision beyond
	// 53 bits is lost. This is the documented narrowing policy.
	Decimal
	String
	Bytes
	Timestamp
	Date
)

func (t LogicalType) String() string {
	switch t {
	case Bool:
		return "bool"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Decimal:
		return "decimal"
	case String:
		return "string"
	case Bytes:
		return "bytes"
	case Timestamp:
		return "timestamp"
	case Date:
		return "date"
	default:
		return fmt.Sprintf("logical(%d)", int(t))
	}
}

// TypeSystem tags the shape of the values a (backend, protocol) pair
// produces. Native sources hand over decoded Go values; text sources hand
// over wire text that still needs parsing. The transport picks its
// conversion table from this tag.
type TypeSystem int

const (
	// NativeValues means rows carry decoded Go values (int64, float64,
	// time.Time, []byte, ...).
	NativeValues TypeSystem = iota
	// TextValues means rows carry textual cells (string or []byte) that
	// must be parsed per logical type.
	TextValues
)

func (ts TypeSystem) String() string {
	if ts == TextValues {
		return "text"
	}
	return "native"
}

// Field describes a single result column.
type Field struct {
	Name     string
	Type     LogicalType
	Nullable bool
}

// Schema is the ordered column layout of one extraction. It is produced
// once from the origin query and shared, read-only, by every partition.
type Schema struct {
	Fields []Field
}

// Len returns the number of columns.
func (s *Schema) Len() int { return len(s.Fields) }

// Names returns the column names in order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Equal reports whether two schemas have identical column names and types.
func (s *Schema) Equal(other *Schema) bool {
	if s.Len() != other.Len() {
		return false
	}
	for i, f := range s.Fields {
		if other.Fields[i].Name != f.Name || other.Fields[i].Type != f.Type {
			return false
		}
	}
	return true
}
