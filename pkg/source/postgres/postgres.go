// Package postgres implements the Postgres source. Four protocol
// variants are supported: binary (extended wire protocol, the default and
// most efficient), csv (bulk COPY export, textual), cursor (server-side
// paging that bounds peak memory on huge result sets), and simple (plain
// textual protocol kept as a compatibility fallback).
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sjtechdev/connector-x-pooling/pkg/cxerrors"
	"github.com/sjtechdev/connector-x-pooling/pkg/pool"
	"github.com/sjtechdev/connector-x-pooling/pkg/source"
	"github.com/sjtechdev/connector-x-pooling/pkg/types"
)

// Protocol selects the wire/execution mode rows are fetched with.
type Protocol string

const (
	ProtocolCSV    Protocol = "csv"
	ProtocolBinary Protocol = "binary"
	ProtocolCursor Protocol = "cursor"
	ProtocolSimple Protocol = "simple"
)

// cursorFetchSize rows are pulled per FETCH on the cursor protocol.
const cursorFetchSize = 2048

// Source executes partition queries against Postgres. When a shared pool
// is supplied, partitions check connections out of it; otherwise each
// partition dials an ephemeral connection.
type Source struct {
	connCfg *pgx.ConnConfig
	pool    *pgxpool.Pool
	proto   Protocol
	cfg     pool.Config
	preExec []string
}

// New builds a source. pgPool may be nil.
func New(conn string, proto Protocol, pgPool *pgxpool.Pool, cfg pool.Config) (*Source, error) {
	connCfg, err := pgx.ParseConfig(conn)
	if err != nil {
		return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeInvalidConnectionString, "invalid postgres connection string")
	}
	return &Source{connCfg: connCfg, pool: pgPool, proto: proto, cfg: cfg}, nil
}

// TypeSystem is text for the csv protocol and native otherwise: COPY
// hands over wire text, the other protocols decode to Go values.
func (s *Source) TypeSystem() types.TypeSystem {
	if s.proto == ProtocolCSV {
		return types.TextValues
	}
	return types.NativeValues
}

// SetPreExecutionQueries records per-connection session setup statements.
func (s *Source) SetPreExecutionQueries(queries []string) { s.preExec = queries }

// Close releases nothing: the source owns no resources beyond the shared
// pool, which belongs to the caller.
func (s *Source) Close() error { return nil }

// Schema introspects the result layout by executing the query with no
// rows and reading the field descriptions.
func (s *Source) Schema(ctx context.Context, query string) (*types.Schema, error) {
	conn, err := s.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	pc := conn.(*partConn)
	rows, err := pc.conn().Query(ctx, fmt.Sprintf("SELECT * FROM (%s) AS cx_schema LIMIT 0", query))
	if err != nil {
		return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeQueryExecution, "schema introspection failed")
	}
	defer rows.Close()
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeQueryExecution, "schema introspection failed")
	}

	fds := rows.FieldDescriptions()
	schema := &types.Schema{Fields: make([]types.Field, len(fds))}
	for i, fd := range fds {
		schema.Fields[i] = types.Field{
			Name: fd.Name,
			Type: logicalTypeForOID(fd.DataTypeOID),
			// Field descriptions do not carry nullability.
			Nullable: true,
		}
	}
	return schema, nil
}

// Connect acquires one partition's connection and runs the pre-execution
// statements on it.
func (s *Source) Connect(ctx context.Context) (source.PartitionConn, error) {
	pc := &partConn{proto: s.proto}

	if s.pool != nil {
		acquireCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectionTimeout)
		defer cancel()
		c, err := s.pool.Acquire(acquireCtx)
		if err != nil {
			return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeConnectionAcquire, "cannot check out postgres connection")
		}
		if s.cfg.TestOnCheckout {
			if err := c.Ping(acquireCtx); err != nil {
				c.Release()
				return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeConnectionAcquire, "checkout validation failed")
			}
		}
		pc.pooled = c
	} else {
		dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectionTimeout)
		defer cancel()
		c, err := pgx.ConnectConfig(dialCtx, s.connCfg)
		if err != nil {
			return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeConnectionAcquire, "cannot dial postgres")
		}
		pc.ephemeral = c
	}

	for _, q := range s.preExec {
		if _, err := pc.conn().Exec(ctx, q); err != nil {
			_ = pc.Close()
			return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeQueryExecution, "pre-execution query failed")
		}
	}
	return pc, nil
}

// partConn wraps either a pooled or an ephemeral physical connection.
type partConn struct {
	pooled    *pgxpool.Conn
	ephemeral *pgx.Conn
	proto     Protocol
}

func (c *partConn) conn() *pgx.Conn {
	if c.pooled != nil {
		return c.pooled.Conn()
	}
	return c.ephemeral
}

func (c *partConn) Execute(ctx context.Context, query string) (source.RowStream, error) {
	switch c.proto {
	case ProtocolBinary:
		rows, err := c.conn().Query(ctx, query)
		if err != nil {
			return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeQueryExecution, "query failed")
		}
		return &pgxStream{rows: rows}, nil
	case ProtocolSimple:
		rows, err := c.conn().Query(ctx, query, pgx.QueryExecModeSimpleProtocol)
		if err != nil {
			return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeQueryExecution, "query failed")
		}
		return &pgxStream{rows: rows}, nil
	case ProtocolCursor:
		return newCursorStream(ctx, c.conn(), query)
	case ProtocolCSV:
		return newCSVStream(ctx, c.conn(), query)
	default:
		return nil, cxerrors.Newf(cxerrors.ErrorTypeUnsupportedBackend, "postgres protocol %q not supported", c.proto)
	}
}

// Close releases the connection to the pool, or closes it if ephemeral.
func (c *partConn) Close() error {
	if c.pooled != nil {
		c.pooled.Release()
		c.pooled = nil
		return nil
	}
	if c.ephemeral != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := c.ephemeral.Close(closeCtx)
		c.ephemeral = nil
		return err
	}
	return nil
}

func logicalTypeForOID(oid uint32) types.LogicalType {
	switch oid {
	case pgtype.Int2OID:
		return types.Int16
	case pgtype.Int4OID:
		return types.Int32
	case pgtype.Int8OID:
		return types.Int64
	case pgtype.Float4OID:
		return types.Float32
	case pgtype.Float8OID:
		return types.Float64
	case pgtype.NumericOID:
		return types.Decimal
	case pgtype.BoolOID:
		return types.Bool
	case pgtype.ByteaOID:
		return types.Bytes
	case pgtype.TimestampOID, pgtype.TimestamptzOID:
		return types.Timestamp
	case pgtype.DateOID:
		return types.Date
	default:
		// text, varchar, char, name, uuid, json and anything unmapped
		// travel as strings.
		return types.String
	}
}
