package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjtechdev/connector-x-pooling/pkg/pool"
	"github.com/sjtechdev/connector-x-pooling/pkg/types"
)

func fixtureDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE events (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			score REAL,
			payload BLOB,
			price DECIMAL(10,2),
			active BOOLEAN
		)`)
	require.NoError(t, err)
	_, err = db.Exec(`
		INSERT INTO events (id, name, score, payload, price, active) VALUES
			(1, 'alpha', 1.5, x'4142', 9.99, 1),
			(2, 'beta', NULL, NULL, NULL, 0),
			(3, 'gamma', 3.25, x'43', 0.50, 1)`)
	require.NoError(t, err)
	return path
}

func TestSource_Schema(t *testing.T) {
	src, err := New(fixtureDB(t), nil, 1, pool.DefaultConfig())
	require.NoError(t, err)
	defer src.Close()

	schema, err := src.Schema(context.Background(), "SELECT * FROM events")
	require.NoError(t, err)
	require.Equal(t, 6, schema.Len())

	assert.Equal(t, []string{"id", "name", "score", "payload", "price", "active"}, schema.Names())
	assert.Equal(t, types.Int64, schema.Fields[0].Type)
	assert.Equal(t, types.String, schema.Fields[1].Type)
	assert.Equal(t, types.Float64, schema.Fields[2].Type)
	assert.Equal(t, types.Bytes, schema.Fields[3].Type)
	assert.Equal(t, types.Decimal, schema.Fields[4].Type)
	assert.Equal(t, types.Bool, schema.Fields[5].Type)
}

func TestSource_Schema_InvalidQuery(t *testing.T) {
	src, err := New(fixtureDB(t), nil, 1, pool.DefaultConfig())
	require.NoError(t, err)
	defer src.Close()

	_, err = src.Schema(context.Background(), "SELECT * FROM missing_table")
	require.Error(t, err)
}

func TestSource_ExecuteStreamsRowsInOrder(t *testing.T) {
	src, err := New(fixtureDB(t), nil, 1, pool.DefaultConfig())
	require.NoError(t, err)
	defer src.Close()

	conn, err := src.Connect(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	stream, err := conn.Execute(context.Background(), "SELECT id, name FROM events ORDER BY id")
	require.NoError(t, err)
	defer stream.Close()

	var ids []int64
	for stream.Next() {
		vals, err := stream.Values()
		require.NoError(t, err)
		require.Len(t, vals, 2)
		ids = append(ids, vals[0].(int64))
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestSource_PreExecutionQueries(t *testing.T) {
	src, err := New(fixtureDB(t), nil, 1, pool.DefaultConfig())
	require.NoError(t, err)
	defer src.Close()

	src.SetPreExecutionQueries([]string{"PRAGMA query_only = 1"})

	conn, err := src.Connect(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	// The pragma applies to this connection: writes must fail.
	_, err = conn.Execute(context.Background(), "DELETE FROM events")
	require.Error(t, err)
}

func TestSource_PreExecutionFailureAbortsConnect(t *testing.T) {
	src, err := New(fixtureDB(t), nil, 1, pool.DefaultConfig())
	require.NoError(t, err)
	defer src.Close()

	src.SetPreExecutionQueries([]string{"THIS IS NOT SQL"})

	_, err = src.Connect(context.Background())
	require.Error(t, err)
}

func TestSource_SharedPoolIsNotClosed(t *testing.T) {
	path := fixtureDB(t)
	shared, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer shared.Close()

	src, err := New(path, shared, 1, pool.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, src.Close())

	// The shared handle survives the source.
	assert.NoError(t, shared.Ping())
}

func TestLogicalTypeAffinity(t *testing.T) {
	tests := []struct {
		decl string
		want types.LogicalType
	}{
		{"INTEGER", types.Int64},
		{"INT", types.Int64},
		{"BIGINT", types.Int64},
		{"REAL", types.Float64},
		{"DOUBLE PRECISION", types.Float64},
		{"DECIMAL(10,2)", types.Decimal},
		{"NUMERIC", types.Decimal},
		{"BLOB", types.Bytes},
		{"BOOLEAN", types.Bool},
		{"TEXT", types.String},
		{"VARCHAR(40)", types.String},
		{"DATETIME", types.String},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, logicalTypeFor(tt.decl), "decl %q", tt.decl)
	}
}
