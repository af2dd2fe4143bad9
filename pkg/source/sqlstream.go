package source

import (
	"database/sql"

	"github.com/sjtechdev/connector-x-pooling/pkg/cxerrors"
)

// SQLRowStream adapts *sql.Rows to RowStream. It scans every cell through
// an *any destination so drivers hand over their native representations
// (int64, float64, []byte, time.Time, ...). The scan buffers are reused
// across rows.
type SQLRowStream struct {
	rows *sql.Rows
	vals []any
	ptrs []any
	// closers run after the rows are exhausted (prepared statements,
	// transactions).
	closers []func() error
}

// NewSQLRowStream wraps rows with the given column count. Extra closers
// are invoked, in order, when the stream is closed.
func NewSQLRowStream(rows *sql.Rows, columns int, closers ...func() error) *SQLRowStream {
	s := &SQLRowStream{
		rows:    rows,
		vals:    make([]any, columns),
		ptrs:    make([]any, columns),
		closers: closers,
	}
	for i := range s.vals {
		s.ptrs[i] = &s.vals[i]
	}
	return s
}

func (s *SQLRowStream) Next() bool { return s.rows.Next() }

func (s *SQLRowStream) Values() ([]any, error) {
	if err := s.rows.Scan(s.ptrs...); err != nil {
		return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeQueryExecution, "cannot scan row")
	}
	return s.vals, nil
}

func (s *SQLRowStream) Err() error { return s.rows.Err() }

func (s *SQLRowStream) Close() error {
	err := s.rows.Close()
	for _, c := range s.closers {
		if cerr := c(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
