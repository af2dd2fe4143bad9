// Package pool builds and owns the per-backend connection pools. A
// Variant is a closed tagged union over the pool-capable backends; exactly
// one arm is populated, the tag is fixed by the descriptor that built it,
// and the typed accessors fail fast when called for the wrong arm.
//
// Pooling is an optimization, not a requirement: backends that cannot pool
// (MsSQL, BigQuery, Trino) build to nil without error and always open
// ephemeral connections instead.
package pool

import (
	"context"
	"database/sql"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/sijms/go-ora/v2"     // Oracle driver
	_ "modernc.org/sqlite"             // pure-Go SQLite driver

	"github.com/sjtechdev/connector-x-pooling/pkg/cxerrors"
	"github.com/sjtechdev/connector-x-pooling/pkg/logger"
	"github.com/sjtechdev/connector-x-pooling/pkg/router"
)

// Tag identifies which arm of the union a Variant holds. TLS and plain
// Postgres are distinct tags: the negotiated transport changes the
// physical connection configuration, so the pools are not interchangeable.
type Tag int

const (
	TagPostgresNoTLS Tag = iota
	TagPostgresTLS
	TagMySQL
	TagSQLite
	TagOracle
)

func (t Tag) String() string {
	switch t {
	case TagPostgresNoTLS:
		return "postgres"
	case TagPostgresTLS:
		return "postgres+tls"
	case TagMySQL:
		return "mysql"
	case TagSQLite:
		return "sqlite"
	case TagOracle:
		return "oracle"
	default:
		return "invalid"
	}
}

// Variant is the lifecycle-guarded shared pool handle. It is cheap to
// share across partitions; Close transitions it to the closed state, after
// which checkouts fail explicitly. Close is idempotent.
type Variant struct {
	tag Tag
	cfg Config

	mu     sync.Mutex
	closed bool

	pg *pgxpool.Pool // postgres arms
	db *sql.DB       // mysql, sqlite, oracle arms
}

// Build constructs the pool for a descriptor. Backends without pooling
// support return (nil, nil). Connection parameters are validated eagerly:
// Build pings the target within cfg.ConnectionTimeout, so unreachable
// hosts and rejected credentials surface here as pool_build errors rather
// than at first checkout.
func Build(ctx context.Context, desc *router.SourceDescriptor, cfg Config) (*Variant, error) {
	cfg = cfg.WithDefaults()

	switch desc.Backend {
	case router.BackendPostgres:
		return buildPostgres(ctx, desc, cfg)
	case router.BackendMySQL:
		dsn, err := router.MySQLDSN(desc.Conn)
		if err != nil {
			return nil, err
		}
		return buildSQL(ctx, TagMySQL, "mysql", dsn, cfg)
	case router.BackendSQLite:
		path, err := router.SQLitePath(desc.Conn)
		if err != nil {
			return nil, err
		}
		return buildSQL(ctx, TagSQLite, "sqlite", path, cfg)
	case router.BackendOracle:
		return buildSQL(ctx, TagOracle, "oracle", desc.Conn, cfg)
	default:
		// MsSQL, BigQuery, Trino: no pool support.
		return nil, nil
	}
}

func buildPostgres(ctx context.Context, desc *router.SourceDescriptor, cfg Config) (*Variant, error) {
	pgCfg, err := pgxpool.ParseConfig(desc.Conn)
	if err != nil {
		return nil, cxerrors.Wrap(err, cxerrors.ErrorTypePoolBuild, "invalid postgres connection parameters")
	}
	pgCfg.MaxConns = cfg.MaxSize
	pgCfg.MaxConnIdleTime = cfg.IdleTimeout
	pgCfg.MaxConnLifetime = cfg.MaxLifetime
	pgCfg.ConnConfig.ConnectTimeout = cfg.ConnectionTimeout

	pg, err := pgxpool.NewWithConfig(ctx, pgCfg)
	if err != nil {
		return nil, cxerrors.Wrap(err, cxerrors.ErrorTypePoolBuild, "cannot create postgres pool")
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectionTimeout)
	defer cancel()
	if err := pg.Ping(pingCtx); err != nil {
		pg.Close()
		return nil, cxerrors.Wrap(err, cxerrors.ErrorTypePoolBuild, "postgres pool validation failed")
	}

	tag := TagPostgresNoTLS
	if desc.TLS {
		tag = TagPostgresTLS
	}
	logger.Debug("connection pool built",
		zap.Stringer("tag", tag),
		zap.Int32("max_size", cfg.MaxSize))
	return &Variant{tag: tag, cfg: cfg, pg: pg}, nil
}

func buildSQL(ctx context.Context, tag Tag, driver, dsn string, cfg Config) (*Variant, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, cxerrors.Wrap(err, cxerrors.ErrorTypePoolBuild, "invalid "+tag.String()+" connection parameters")
	}
	db.SetMaxOpenConns(int(cfg.MaxSize))
	db.SetMaxIdleConns(int(cfg.MaxSize))
	db.SetConnMaxIdleTime(cfg.IdleTimeout)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectionTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, cxerrors.Wrap(err, cxerrors.ErrorTypePoolBuild, tag.String()+" pool validation failed")
	}

	logger.Debug("connection pool built",
		zap.Stringer("tag", tag),
		zap.Int32("max_size", cfg.MaxSize))
	return &Variant{tag: tag, cfg: cfg, db: db}, nil
}

// Tag returns the populated arm.
func (v *Variant) Tag() Tag { return v.tag }

// Config returns the policy the pool was built with.
func (v *Variant) Config() Config { return v.cfg }

// Close tears the pool down. Idempotent; checkouts after Close fail with
// an explicit error rather than handing out dead connections.
func (v *Variant) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true

	if v.pg != nil {
		v.pg.Close()
		return nil
	}
	if v.db != nil {
		return v.db.Close()
	}
	return nil
}

func (v *Variant) live() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return cxerrors.New(cxerrors.ErrorTypeConnectionAcquire, "pool is closed")
	}
	return nil
}

// mismatch aborts immediately: the caller selected an accessor that does
// not match the descriptor the pool was built from, which is a caller bug,
// not a recoverable condition.
func (v *Variant) mismatch(accessor string) {
	panic(cxerrors.Newf(cxerrors.ErrorTypeProgramming,
		"pool.Variant.%s called on %s variant", accessor, v.tag))
}

// PostgresNoTLS returns the plain Postgres pool. Panics if the variant
// holds any other tag; fails with connection_acquire after Close.
func (v *Variant) PostgresNoTLS() (*pgxpool.Pool, error) {
	if v.tag != TagPostgresNoTLS {
		v.mismatch("PostgresNoTLS")
	}
	if err := v.live(); err != nil {
		return nil, err
	}
	return v.pg, nil
}

// PostgresTLS returns the TLS Postgres pool. Panics on tag mismatch.
func (v *Variant) PostgresTLS() (*pgxpool.Pool, error) {
	if v.tag != TagPostgresTLS {
		v.mismatch("PostgresTLS")
	}
	if err := v.live(); err != nil {
		return nil, err
	}
	return v.pg, nil
}

// MySQL returns the MySQL pool. Panics on tag mismatch.
func (v *Variant) MySQL() (*sql.DB, error) {
	if v.tag != TagMySQL {
		v.mismatch("MySQL")
	}
	if err := v.live(); err != nil {
		return nil, err
	}
	return v.db, nil
}

// SQLite returns the SQLite pool. Panics on tag mismatch.
func (v *Variant) SQLite() (*sql.DB, error) {
	if v.tag != TagSQLite {
		v.mismatch("SQLite")
	}
	if err := v.live(); err != nil {
		return nil, err
	}
	return v.db, nil
}

// Oracle returns the Oracle pool. Panics on tag mismatch.
func (v *Variant) Oracle() (*sql.DB, error) {
	if v.tag != TagOracle {
		v.mismatch("Oracle")
	}
	if err := v.live(); err != nil {
		return nil, err
	}
	return v.db, nil
}
