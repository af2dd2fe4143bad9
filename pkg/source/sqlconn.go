package source

import (
	"context"
	"database/sql"
	"time"

	"github.com/sjtechdev/connector-x-pooling/pkg/cxerrors"
)

// SQLConn is the PartitionConn shared by every database/sql backed
// backend. With Prepared set, queries go through a prepared statement so
// drivers that distinguish wire protocols (MySQL) use the binary one.
type SQLConn struct {
	conn *sql.Conn
	// Prepared routes the partition query through PrepareContext.
	Prepared bool
}

// AcquireSQLConn checks a connection out of db, bounded by timeout,
// optionally validates it, and runs the pre-execution statements in order.
// Any pre-execution failure closes the connection and aborts the acquire.
func AcquireSQLConn(ctx context.Context, db *sql.DB, timeout time.Duration, testOnCheckout bool, preExec []string) (*SQLConn, error) {
	acquireCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	conn, err := db.Conn(acquireCtx)
	if err != nil {
		return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeConnectionAcquire, "cannot check out connection")
	}
	if testOnCheckout {
		if err := conn.PingContext(acquireCtx); err != nil {
			_ = conn.Close()
			return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeConnectionAcquire, "checkout validation failed")
		}
	}

	for _, q := range preExec {
		if _, err := conn.ExecContext(ctx, q); err != nil {
			_ = conn.Close()
			return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeQueryExecution, "pre-execution query failed")
		}
	}
	return &SQLConn{conn: conn}, nil
}

// Execute runs the partition query and returns its row stream.
func (c *SQLConn) Execute(ctx context.Context, query string) (RowStream, error) {
	var (
		rows    *sql.Rows
		err     error
		closers []func() error
	)
	if c.Prepared {
		stmt, perr := c.conn.PrepareContext(ctx, query)
		if perr != nil {
			return nil, cxerrors.Wrap(perr, cxerrors.ErrorTypeQueryExecution, "cannot prepare query")
		}
		rows, err = stmt.QueryContext(ctx)
		if err != nil {
			_ = stmt.Close()
			return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeQueryExecution, "query failed")
		}
		closers = append(closers, stmt.Close)
	} else {
		rows, err = c.conn.QueryContext(ctx, query)
		if err != nil {
			return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeQueryExecution, "query failed")
		}
	}

	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeQueryExecution, "cannot read result columns")
	}
	return NewSQLRowStream(rows, len(cols), closers...), nil
}

// Close returns the connection to its pool.
func (c *SQLConn) Close() error { return c.conn.Close() }
