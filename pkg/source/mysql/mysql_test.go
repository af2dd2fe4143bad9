package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjtechdev/connector-x-pooling/pkg/pool"
	"github.com/sjtechdev/connector-x-pooling/pkg/types"
)

func TestTypeSystem(t *testing.T) {
	src, err := New("mysql://u@host/db", ProtocolBinary, nil, 1, pool.DefaultConfig())
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, types.NativeValues, src.TypeSystem())

	text, err := New("mysql://u@host/db", ProtocolText, nil, 1, pool.DefaultConfig())
	require.NoError(t, err)
	defer text.Close()
	assert.Equal(t, types.TextValues, text.TypeSystem())
}

func TestLogicalTypeMapping(t *testing.T) {
	tests := []struct {
		dbType string
		want   types.LogicalType
	}{
		{"TINYINT", types.Int16},
		{"SMALLINT", types.Int16},
		{"YEAR", types.Int16},
		{"INT", types.Int32},
		{"MEDIUMINT", types.Int32},
		{"BIGINT", types.Int64},
		{"UNSIGNED BIGINT", types.Int64},
		{"FLOAT", types.Float32},
		{"DOUBLE", types.Float64},
		{"DECIMAL", types.Decimal},
		// The driver surfaces BIT as raw bytes, not bool.
		{"BIT", types.Bytes},
		{"BLOB", types.Bytes},
		{"VARBINARY", types.Bytes},
		{"DATETIME", types.Timestamp},
		{"TIMESTAMP", types.Timestamp},
		{"DATE", types.Date},
		{"VARCHAR", types.String},
		{"JSON", types.String},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, logicalTypeFor(tt.dbType), "type %s", tt.dbType)
	}
}

func TestNew_InvalidConnectionString(t *testing.T) {
	_, err := New("://not-a-url", ProtocolBinary, nil, 1, pool.DefaultConfig())
	require.Error(t, err)
}
