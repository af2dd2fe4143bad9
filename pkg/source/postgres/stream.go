package postgres

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/sjtechdev/connector-x-pooling/pkg/cxerrors"
)

// pgxStream adapts pgx.Rows to source.RowStream for the binary and
// simple protocols.
type pgxStream struct {
	rows pgx.Rows
	vals []any
}

func (s *pgxStream) Next() bool { return s.rows.Next() }

func (s *pgxStream) Values() ([]any, error) {
	vals, err := s.rows.Values()
	if err != nil {
		return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeQueryExecution, "cannot read row values")
	}
	if s.vals == nil {
		s.vals = make([]any, len(vals))
	}
	for i, v := range vals {
		s.vals[i] = normalizeValue(v)
	}
	return s.vals, nil
}

func (s *pgxStream) Err() error { return s.rows.Err() }

func (s *pgxStream) Close() error {
	s.rows.Close()
	return nil
}

// normalizeValue rewrites pgx-specific value types into the plain Go
// values the transport understands. Numerics lose precision beyond 53
// bits per the documented policy.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case pgtype.Numeric:
		if !x.Valid {
			return nil
		}
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case pgtype.Time:
		if !x.Valid {
			return nil
		}
		us := x.Microseconds
		return fmt.Sprintf("%02d:%02d:%02d.%06d",
			us/3_600_000_000, us/60_000_000%60, us/1_000_000%60, us%1_000_000)
	case [16]byte:
		// uuid
		return fmt.Sprintf("%x-%x-%x-%x-%x", x[0:4], x[4:6], x[6:8], x[8:10], x[10:16])
	default:
		return v
	}
}

// cursorStream implements the cursor protocol: rows are pulled in fixed
// FETCH batches from a server-side cursor inside one transaction, which
// bounds peak memory regardless of result size.
type cursorStream struct {
	ctx       context.Context
	tx        pgx.Tx
	rows      pgx.Rows
	vals      []any
	batchRows int
	done      bool
	err       error
}

func newCursorStream(ctx context.Context, conn *pgx.Conn, query string) (*cursorStream, error) {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeQueryExecution, "cannot begin cursor transaction")
	}
	if _, err := tx.Exec(ctx, "DECLARE cx_cursor NO SCROLL CURSOR FOR "+query); err != nil {
		_ = tx.Rollback(ctx)
		return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeQueryExecution, "cannot declare cursor")
	}
	return &cursorStream{ctx: ctx, tx: tx}, nil
}

func (s *cursorStream) Next() bool {
	for {
		if s.rows != nil {
			if s.rows.Next() {
				s.batchRows++
				return true
			}
			if err := s.rows.Err(); err != nil {
				s.err = err
				return false
			}
			if s.batchRows < cursorFetchSize {
				s.done = true
			}
			s.rows = nil
		}
		if s.done || s.err != nil {
			return false
		}
		rows, err := s.tx.Query(s.ctx, fmt.Sprintf("FETCH %d FROM cx_cursor", cursorFetchSize))
		if err != nil {
			s.err = err
			return false
		}
		s.rows = rows
		s.batchRows = 0
	}
}

func (s *cursorStream) Values() ([]any, error) {
	vals, err := s.rows.Values()
	if err != nil {
		return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeQueryExecution, "cannot read row values")
	}
	if s.vals == nil {
		s.vals = make([]any, len(vals))
	}
	for i, v := range vals {
		s.vals[i] = normalizeValue(v)
	}
	return s.vals, nil
}

func (s *cursorStream) Err() error { return s.err }

func (s *cursorStream) Close() error {
	if s.rows != nil {
		s.rows.Close()
		s.rows = nil
	}
	if s.tx != nil {
		_, _ = s.tx.Exec(s.ctx, "CLOSE cx_cursor")
		err := s.tx.Commit(s.ctx)
		s.tx = nil
		return err
	}
	return nil
}

// csvNull is the marker COPY emits for NULL. Postgres quotes data values
// that collide with it, but encoding/csv cannot report quoting, so a
// literal unquoted `\N` string is indistinguishable from NULL. The binary
// protocol is the right choice when that matters.
const csvNull = `\N`

// csvStream implements the csv protocol by streaming a COPY TO STDOUT
// export through a pipe.
type csvStream struct {
	reader *csv.Reader
	pr     *io.PipeReader
	vals   []any
	err    error
	copyCh chan error
}

func newCSVStream(ctx context.Context, conn *pgx.Conn, query string) (*csvStream, error) {
	pr, pw := io.Pipe()
	copySQL := fmt.Sprintf(`COPY (%s) TO STDOUT WITH (FORMAT csv, NULL '%s')`, query, csvNull)

	copyCh := make(chan error, 1)
	go func() {
		_, err := conn.PgConn().CopyTo(ctx, pw, copySQL)
		pw.CloseWithError(err)
		copyCh <- err
	}()

	r := csv.NewReader(pr)
	r.ReuseRecord = true
	return &csvStream{reader: r, pr: pr, copyCh: copyCh}, nil
}

func (s *csvStream) Next() bool {
	if s.err != nil {
		return false
	}
	record, err := s.reader.Read()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			s.err = err
		} else if copyErr := <-s.copyCh; copyErr != nil {
			s.err = copyErr
		}
		return false
	}
	if s.vals == nil {
		s.vals = make([]any, len(record))
	}
	for i, f := range record {
		if f == csvNull {
			s.vals[i] = nil
		} else {
			s.vals[i] = f
		}
	}
	return true
}

func (s *csvStream) Values() ([]any, error) { return s.vals, nil }

func (s *csvStream) Err() error { return s.err }

func (s *csvStream) Close() error {
	return s.pr.Close()
}
