package trino

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sjtechdev/connector-x-pooling/pkg/types"
)

func TestLogicalTypeMapping(t *testing.T) {
	tests := []struct {
		dbType string
		want   types.LogicalType
	}{
		{"BOOLEAN", types.Bool},
		{"TINYINT", types.Int16},
		{"SMALLINT", types.Int16},
		{"INTEGER", types.Int32},
		{"BIGINT", types.Int64},
		{"REAL", types.Float32},
		{"DOUBLE", types.Float64},
		{"DECIMAL", types.Decimal},
		{"VARBINARY", types.Bytes},
		{"DATE", types.Date},
		{"TIMESTAMP", types.Timestamp},
		{"TIMESTAMP WITH TIME ZONE", types.Timestamp},
		{"VARCHAR", types.String},
		{"JSON", types.String},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, logicalTypeFor(tt.dbType), "type %s", tt.dbType)
	}
}
