// Package engine is the public entry point of the extraction engine. It
// parses the connection string, selects the backend source for the
// requested protocol, resolves the conversion plan up front, and fans the
// partition queries out over pooled or ephemeral connections into an
// Arrow destination.
package engine

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sjtechdev/connector-x-pooling/pkg/cxerrors"
	"github.com/sjtechdev/connector-x-pooling/pkg/destination"
	"github.com/sjtechdev/connector-x-pooling/pkg/logger"
	"github.com/sjtechdev/connector-x-pooling/pkg/pool"
	"github.com/sjtechdev/connector-x-pooling/pkg/router"
	"github.com/sjtechdev/connector-x-pooling/pkg/source"
	"github.com/sjtechdev/connector-x-pooling/pkg/source/bigquery"
	"github.com/sjtechdev/connector-x-pooling/pkg/source/mssql"
	"github.com/sjtechdev/connector-x-pooling/pkg/source/mysql"
	"github.com/sjtechdev/connector-x-pooling/pkg/source/oracle"
	"github.com/sjtechdev/connector-x-pooling/pkg/source/postgres"
	"github.com/sjtechdev/connector-x-pooling/pkg/source/sqlite"
	"github.com/sjtechdev/connector-x-pooling/pkg/source/trino"
	"github.com/sjtechdev/connector-x-pooling/pkg/transport"
	"github.com/sjtechdev/connector-x-pooling/pkg/types"
)

// Options tunes one extraction. The zero value is usable.
type Options struct {
	// Protocol overrides the backend's default protocol. A "+protocol"
	// scheme suffix in the connection string overrides this in turn.
	Protocol string
	// OriginQuery, when set, is introspected for the result schema
	// instead of the first partition query. Use it when partition
	// predicates would change inferred types.
	OriginQuery string
	// PreExecutionQueries run once on every partition connection before
	// its query (session setup, pragmas, isolation level).
	PreExecutionQueries []string
	// PoolConfig supplies the checkout policy for ephemeral connections
	// when no shared pool is passed. Zero fields take defaults.
	PoolConfig pool.Config
	// BatchSize caps record batch length for streaming extractions.
	BatchSize int
}

// BuildPool parses the connection string and builds its connection pool.
// Backends without pool support (MsSQL, BigQuery, Trino) return
// (nil, nil); passing the nil pool to GetArrow is valid and selects
// ephemeral connections.
func BuildPool(ctx context.Context, connStr string, cfg pool.Config) (*pool.Variant, error) {
	desc, err := router.ParseSource(connStr, "")
	if err != nil {
		return nil, err
	}
	return pool.Build(ctx, desc, cfg)
}

// ClosePool tears down a pool built with BuildPool. A nil pool (an
// ephemeral-only backend) is valid and a no-op; closing twice is safe.
func ClosePool(pl *pool.Variant) error {
	if pl == nil {
		return nil
	}
	return pl.Close()
}

// GetArrow runs the partition queries and materializes the full result.
// All partitions must share one result schema; rows appear in partition
// order, each partition's rows in source order.
func GetArrow(ctx context.Context, connStr string, queries []string, pl *pool.Variant, opts Options) (*destination.Result, error) {
	prep, err := prepare(ctx, connStr, queries, pl, opts)
	if err != nil {
		return nil, err
	}
	defer prep.src.Close()

	dest := destination.NewArrowDestination()
	if err := dest.Allocate(len(queries), prep.schema); err != nil {
		return nil, err
	}
	if err := dispatch(ctx, prep, queries, dest); err != nil {
		return nil, err
	}
	return dest.Finalize()
}

// NewRecordBatchIterator starts the extraction in the background and
// returns a pull iterator over bounded record batches. The extraction
// runs ahead of the consumer by at most a couple of batches; Close
// abandons it.
func NewRecordBatchIterator(ctx context.Context, connStr string, queries []string, pl *pool.Variant, opts Options) (destination.RecordBatchIterator, error) {
	prep, err := prepare(ctx, connStr, queries, pl, opts)
	if err != nil {
		return nil, err
	}

	dest := destination.NewArrowStreamDestination(opts.BatchSize)
	if err := dest.Allocate(len(queries), prep.schema); err != nil {
		prep.src.Close()
		return nil, err
	}

	go func() {
		defer prep.src.Close()
		dest.End(dispatch(ctx, prep, queries, dest))
	}()
	return dest.Iterator(), nil
}

// prepared carries everything resolved before the first row is fetched.
type prepared struct {
	desc   *router.SourceDescriptor
	src    source.Source
	schema *types.Schema
	plan   *transport.Plan
}

func prepare(ctx context.Context, connStr string, queries []string, pl *pool.Variant, opts Options) (*prepared, error) {
	if len(queries) == 0 {
		return nil, cxerrors.New(cxerrors.ErrorTypeProgramming, "no partition queries")
	}

	desc, err := router.ParseSource(connStr, opts.Protocol)
	if err != nil {
		return nil, err
	}

	cfg := opts.PoolConfig
	if pl != nil {
		cfg = pl.Config()
	}
	cfg = cfg.WithDefaults()

	src, err := newSource(ctx, desc, pl, len(queries), cfg)
	if err != nil {
		return nil, err
	}
	src.SetPreExecutionQueries(opts.PreExecutionQueries)

	schemaQuery := opts.OriginQuery
	if schemaQuery == "" {
		schemaQuery = queries[0]
	}
	schema, err := src.Schema(ctx, schemaQuery)
	if err != nil {
		src.Close()
		return nil, err
	}

	plan, err := transport.NewPlan(src.TypeSystem(), schema)
	if err != nil {
		src.Close()
		return nil, err
	}

	logger.Debug("extraction prepared",
		zap.Stringer("backend", desc.Backend),
		zap.String("protocol", desc.Protocol),
		zap.Int("partitions", len(queries)),
		zap.Int("columns", schema.Len()),
		zap.Bool("pooled", pl != nil))
	return &prepared{desc: desc, src: src, schema: schema, plan: plan}, nil
}

// newSource is the backend and protocol selection matrix. pl may be nil,
// in which case every backend falls back to ephemeral connections. A
// non-nil pool's tag must match the descriptor; the pool accessors fail
// fast on a mismatch.
func newSource(ctx context.Context, desc *router.SourceDescriptor, pl *pool.Variant, nconn int, cfg pool.Config) (source.Source, error) {
	switch desc.Backend {
	case router.BackendPostgres:
		var pgPool *pgxpool.Pool
		if pl != nil {
			var err error
			if desc.TLS {
				pgPool, err = pl.PostgresTLS()
			} else {
				pgPool, err = pl.PostgresNoTLS()
			}
			if err != nil {
				return nil, err
			}
		}
		return postgres.New(desc.Conn, postgres.Protocol(desc.Protocol), pgPool, cfg)

	case router.BackendMySQL:
		db, err := sqlPool(pl, (*pool.Variant).MySQL)
		if err != nil {
			return nil, err
		}
		return mysql.New(desc.Conn, mysql.Protocol(desc.Protocol), db, nconn, cfg)

	case router.BackendSQLite:
		db, err := sqlPool(pl, (*pool.Variant).SQLite)
		if err != nil {
			return nil, err
		}
		path, err := router.SQLitePath(desc.Conn)
		if err != nil {
			return nil, err
		}
		return sqlite.New(path, db, nconn, cfg)

	case router.BackendOracle:
		db, err := sqlPool(pl, (*pool.Variant).Oracle)
		if err != nil {
			return nil, err
		}
		return oracle.New(desc.Conn, db, nconn, cfg)

	case router.BackendMsSQL:
		return mssql.New(desc.Conn, nconn, cfg)

	case router.BackendBigQuery:
		creds, err := router.BigQueryCredentials(desc.Conn)
		if err != nil {
			return nil, err
		}
		return bigquery.New(ctx, creds)

	case router.BackendTrino:
		dsn, err := router.TrinoDSN(desc.Conn)
		if err != nil {
			return nil, err
		}
		return trino.New(dsn, nconn, cfg)

	default:
		return nil, cxerrors.Newf(cxerrors.ErrorTypeUnsupportedBackend, "no source for backend %s", desc.Backend)
	}
}

// sqlPool unwraps a database/sql backed pool arm, tolerating a nil pool.
func sqlPool(pl *pool.Variant, arm func(*pool.Variant) (*sql.DB, error)) (*sql.DB, error) {
	if pl == nil {
		return nil, nil
	}
	return arm(pl)
}
