// Package trino implements the Trino source. Trino connections are HTTP
// sessions under the hood, so the engine never pools them; every
// extraction opens its own handle sized to the partition count.
package trino

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/trinodb/trino-go-client/trino" // database/sql driver

	"github.com/sjtechdev/connector-x-pooling/pkg/cxerrors"
	"github.com/sjtechdev/connector-x-pooling/pkg/pool"
	"github.com/sjtechdev/connector-x-pooling/pkg/source"
	"github.com/sjtechdev/connector-x-pooling/pkg/types"
)

// Source runs partition queries over a coordinator handle.
type Source struct {
	db      *sql.DB
	cfg     pool.Config
	preExec []string
}

// New opens a handle against the coordinator. dsn is the driver form
// produced by router.TrinoDSN; nconn bounds concurrent partition
// sessions.
func New(dsn string, nconn int, cfg pool.Config) (*Source, error) {
	db, err := sql.Open("trino", dsn)
	if err != nil {
		return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeInvalidConnectionString, "invalid trino dsn")
	}
	db.SetMaxOpenConns(nconn)
	return &Source{db: db, cfg: cfg}, nil
}

func (s *Source) TypeSystem() types.TypeSystem { return types.NativeValues }

func (s *Source) SetPreExecutionQueries(queries []string) { s.preExec = queries }

func (s *Source) Close() error { return s.db.Close() }

// Schema wraps the query with LIMIT 0 and reads column metadata from the
// empty result.
func (s *Source) Schema(ctx context.Context, query string) (*types.Schema, error) {
	probe := fmt.Sprintf("SELECT * FROM (%s) AS cx_schema LIMIT 0", query)
	rows, err := s.db.QueryContext(ctx, probe)
	if err != nil {
		return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeQueryExecution, "schema introspection failed")
	}
	defer rows.Close()

	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeQueryExecution, "cannot read column types")
	}
	schema := &types.Schema{Fields: make([]types.Field, len(cols))}
	for i, c := range cols {
		nullable, known := c.Nullable()
		schema.Fields[i] = types.Field{
			Name:     c.Name(),
			Type:     logicalTypeFor(c.DatabaseTypeName()),
			Nullable: nullable || !known,
		}
	}
	return schema, nil
}

func (s *Source) Connect(ctx context.Context) (source.PartitionConn, error) {
	return source.AcquireSQLConn(ctx, s.db, s.cfg.ConnectionTimeout, s.cfg.TestOnCheckout, s.preExec)
}

func logicalTypeFor(dbType string) types.LogicalType {
	switch dbType {
	case "BOOLEAN":
		return types.Bool
	case "TINYINT", "SMALLINT":
		return types.Int16
	case "INTEGER":
		return types.Int32
	case "BIGINT":
		return types.Int64
	case "REAL":
		return types.Float32
	case "DOUBLE":
		return types.Float64
	case "DECIMAL":
		return types.Decimal
	case "VARBINARY":
		return types.Bytes
	case "DATE":
		return types.Date
	default:
		switch {
		case len(dbType) >= 9 && dbType[:9] == "TIMESTAMP":
			return types.Timestamp
		}
		return types.String
	}
}
