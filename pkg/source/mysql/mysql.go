// Package mysql implements the MySQL source. The binary protocol routes
// partition queries through prepared statements (the prepared-statement
// wire protocol); the text protocol issues plain queries, which MySQL's
// compatibility dialects (ClickHouse) also understand.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sjtechdev/connector-x-pooling/pkg/cxerrors"
	"github.com/sjtechdev/connector-x-pooling/pkg/pool"
	"github.com/sjtechdev/connector-x-pooling/pkg/router"
	"github.com/sjtechdev/connector-x-pooling/pkg/source"
	"github.com/sjtechdev/connector-x-pooling/pkg/types"
)

// Protocol selects the wire mode.
type Protocol string

const (
	ProtocolBinary Protocol = "binary"
	ProtocolText   Protocol = "text"
)

// Source executes partition queries against MySQL.
type Source struct {
	db      *sql.DB
	owned   bool
	proto   Protocol
	cfg     pool.Config
	preExec []string
}

// New builds a source. When db is nil an ad-hoc pool sized to the
// partition count is opened and owned by the source.
func New(conn string, proto Protocol, db *sql.DB, nconn int, cfg pool.Config) (*Source, error) {
	s := &Source{db: db, proto: proto, cfg: cfg}
	if db == nil {
		dsn, err := router.MySQLDSN(conn)
		if err != nil {
			return nil, err
		}
		owned, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeConnectionAcquire, "cannot open mysql connection")
		}
		owned.SetMaxOpenConns(nconn)
		s.db = owned
		s.owned = true
	}
	return s, nil
}

// TypeSystem is text for the text protocol: every cell arrives as wire
// text ([]byte). The binary protocol decodes to native Go values.
func (s *Source) TypeSystem() types.TypeSystem {
	if s.proto == ProtocolText {
		return types.TextValues
	}
	return types.NativeValues
}

// SetPreExecutionQueries records per-connection session setup statements.
func (s *Source) SetPreExecutionQueries(queries []string) { s.preExec = queries }

// Close tears down the ad-hoc pool if the source owns one.
func (s *Source) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

// Schema introspects the result layout with a zero-row execution.
func (s *Source) Schema(ctx context.Context, query string) (*types.Schema, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM (%s) AS cx_schema LIMIT 0", query))
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

// Connect acquires one partition's connection.
func (s *Source) Connect(ctx context.Context) (source.PartitionConn, error) {
	conn, err := source.AcquireSQLConn(ctx, s.db, s.cfg.ConnectionTimeout, s.cfg.TestOnCheckout, s.preExec)
	if err != nil {
		return nil, err
	}
	conn.Prepared = s.proto == ProtocolBinary
	return conn, nil
}

func logicalTypeFor(dbType string) types.LogicalType {
	switch strings.ToUpper(dbType) {
	case "TINYINT", "SMALLINT", "YEAR":
		return types.Int16
	case "INT", "MEDIUMINT", "UNSIGNED SMALLINT", "UNSIGNED TINYINT":
		return types.Int32
	case "BIGINT", "UNSIGNED INT", "UNSIGNED BIGINT":
		return types.Int64
	case "FLOAT":
		return types.Float32
	case "DOUBLE":
		return types.Float64
	case "DECIMAL":
		return types.Decimal
	case "BOOL", "BOOLEAN":
		return types.Bool
	case "BIT", "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BINARY", "VARBINARY":
		return types.Bytes
	case "DATETIME", "TIMESTAMP":
		return types.Timestamp
	case "DATE":
		return types.Date
	default:
		return types.String
	}
}
