// Package oracle implements the Oracle source over the pure-Go go-ora
// driver.
package oracle

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/sijms/go-ora/v2" // Oracle driver

	"github.com/sjtechdev/connector-x-pooling/pkg/cxerrors"
	"github.com/sjtechdev/connector-x-pooling/pkg/pool"
	"github.com/sjtechdev/connector-x-pooling/pkg/source"
	"github.com/sjtechdev/connector-x-pooling/pkg/types"
)

// Source executes partition queries against Oracle.
type Source struct {
	db      *sql.DB
	owned   bool
	cfg     pool.Config
	preExec []string
}

// New builds a source. When db is nil an ad-hoc pool sized to the
// partition count is opened and owned by the source.
func New(conn string, db *sql.DB, nconn int, cfg pool.Config) (*Source, error) {
	s := &Source{db: db, cfg: cfg}
	if db == nil {
		owned, err := sql.Open("oracle", conn)
		if err != nil {
			return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeConnectionAcquire, "cannot open oracle connection")
		}
		owned.SetMaxOpenConns(nconn)
		s.db = owned
		s.owned = true
	}
	return s, nil
}

func (s *Source) TypeSystem() types.TypeSystem { return types.NativeValues }

// SetPreExecutionQueries records per-connection session setup statements.
func (s *Source) SetPreExecutionQueries(queries []string) { s.preExec = queries }

func (s *Source) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

// Schema introspects the result layout with a zero-row execution.
func (s *Source) Schema(ctx context.Context, query string) (*types.Schema, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM (%s) WHERE ROWNUM < 1", query))
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
	return source.AcquireSQLConn(ctx, s.db, s.cfg.ConnectionTimeout, s.cfg.TestOnCheckout, s.preExec)
}

func logicalTypeFor(dbType string) types.LogicalType {
	t := strings.ToUpper(dbType)
	switch {
	case t == "NUMBER", t == "DECIMAL", t == "NUMERIC":
		return types.Decimal
	case t == "BINARY_FLOAT":
		return types.Float32
	case t == "BINARY_DOUBLE", t == "FLOAT":
		return types.Float64
	case t == "DATE", strings.HasPrefix(t, "TIMESTAMP"):
		return types.Timestamp
	case t == "RAW", t == "LONG RAW", t == "BLOB":
		return types.Bytes
	default:
		// VARCHAR2, NVARCHAR2, CHAR, NCHAR, CLOB and anything unmapped.
		return types.String
	}
}
