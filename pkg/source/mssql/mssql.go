// Package mssql implements the SQL Server source. SQL Server has no pool
// arm in the pool variant; every extraction opens its own ad-hoc
// connections and drops them when the partitions finish.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver

	"github.com/sjtechdev/connector-x-pooling/pkg/cxerrors"
	"github.com/sjtechdev/connector-x-pooling/pkg/pool"
	"github.com/sjtechdev/connector-x-pooling/pkg/source"
	"github.com/sjtechdev/connector-x-pooling/pkg/types"
)

// Source executes partition queries against SQL Server.
type Source struct {
	db      *sql.DB
	cfg     pool.Config
	preExec []string
}

// New opens an ad-hoc connection set sized to the partition count. The
// source owns it; Close drops every connection.
func New(conn string, nconn int, cfg pool.Config) (*Source, error) {
	db, err := sql.Open("sqlserver", conn)
	if err != nil {
		return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeConnectionAcquire, "cannot open sqlserver connection")
	}
	db.SetMaxOpenConns(nconn)
	return &Source{db: db, cfg: cfg}, nil
}

func (s *Source) TypeSystem() types.TypeSystem { return types.NativeValues }

// SetPreExecutionQueries records per-connection session setup statements.
func (s *Source) SetPreExecutionQueries(queries []string) { s.preExec = queries }

func (s *Source) Close() error { return s.db.Close() }

// Schema introspects the result layout with a zero-row execution.
func (s *Source) Schema(ctx context.Context, query string) (*types.Schema, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT TOP 0 * FROM (%s) AS cx_schema", query))
	if err != nil {
		return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeQueryExecution, "schema introspection failed")
	}
	defer rows.Close()

	cts, err := rows.ColumnTypes()
	if err != nil {
		return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeQueryExecution, "cannot read column types")
	}

	schema := &types.Schema{Fields: make([]types.Field, len(cts))}
	for i, ct := range cts {
		nullable, ok := ct.Nullable()
		schema.Fields[i] = types.Field{
			Name:     ct.Name(),
			Type:     logicalTypeFor(ct.DatabaseTypeName()),
			Nullable: nullable || !ok,
		}
	}
	return schema, nil
}

// Connect opens one partition's ephemeral connection.
func (s *Source) Connect(ctx context.Context) (source.PartitionConn, error) {
	return source.AcquireSQLConn(ctx, s.db, s.cfg.ConnectionTimeout, s.cfg.TestOnCheckout, s.preExec)
}

func logicalTypeFor(dbType string) types.LogicalType {
	switch strings.ToUpper(dbType) {
	case "TINYINT", "SMALLINT":
		return types.Int16
	case "INT":
		return types.Int32
	case "BIGINT":
		return types.Int64
	case "REAL":
		return types.Float32
	case "FLOAT":
		return types.Float64
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		return types.Decimal
	case "BIT":
		return types.Bool
	case "BINARY", "VARBINARY", "IMAGE":
		return types.Bytes
	case "DATETIME", "DATETIME2", "SMALLDATETIME", "DATETIMEOFFSET":
		return types.Timestamp
	case "DATE":
		return types.Date
	default:
		// CHAR, VARCHAR, NCHAR, NVARCHAR, TEXT, UNIQUEIDENTIFIER, XML.
		return types.String
	}
}
