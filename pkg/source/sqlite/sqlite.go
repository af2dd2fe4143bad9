// Package sqlite implements the SQLite source. The connection string
// carries a file path, percent-decoded before opening. SQLite's type
// system is dynamic; logical types are inferred from declared column
// types with the usual affinity heuristics.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/sjtechdev/connector-x-pooling/pkg/cxerrors"
	"github.com/sjtechdev/connector-x-pooling/pkg/pool"
	"github.com/sjtechdev/connector-x-pooling/pkg/source"
	"github.com/sjtechdev/connector-x-pooling/pkg/types"
)

// Source executes partition queries against a SQLite database file.
type Source struct {
	db      *sql.DB
	owned   bool
	cfg     pool.Config
	preExec []string
}

// New builds a source from a decoded file path. When db is nil an ad-hoc
// pool sized to the partition count is opened and owned by the source.
func New(path string, db *sql.DB, nconn int, cfg pool.Config) (*Source, error) {
	s := &Source{db: db, cfg: cfg}
	if db == nil {
		owned, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeConnectionAcquire, "cannot open sqlite database")
		}
		owned.SetMaxOpenConns(nconn)
		s.db = owned
		s.owned = true
	}
	return s, nil
}

func (s *Source) TypeSystem() types.TypeSystem { return types.NativeValues }

// SetPreExecutionQueries records per-connection setup statements
// (pragmas, typically).
func (s *Source) SetPreExecutionQueries(queries []string) { s.preExec = queries }

func (s *Source) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

// Schema introspects the result layout with a zero-row execution.
func (s *Source) Schema(ctx context.Context, query string) (*types.Schema, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM (%s) LIMIT 0", query))
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

// logicalTypeFor applies SQLite affinity rules to a declared type.
func logicalTypeFor(declType string) types.LogicalType {
	t := strings.ToUpper(declType)
	switch {
	case t == "BOOLEAN" || t == "BOOL":
		return types.Bool
	case strings.Contains(t, "INT"):
		return types.Int64
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"):
		return types.Float64
	case strings.Contains(t, "DEC"), strings.Contains(t, "NUMERIC"):
		return types.Decimal
	case t == "BLOB":
		return types.Bytes
	default:
		// TEXT affinity, including declared DATE/DATETIME columns, which
		// SQLite stores as text anyway.
		return types.String
	}
}
