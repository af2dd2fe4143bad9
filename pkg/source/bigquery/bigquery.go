// Package bigquery implements the BigQuery source. BigQuery has no pool
// arm in the pool variant; each extraction shares one API client and each
// partition runs its own query job. The connection string carries the
// path to a service-account credentials file; the project is read from it.
package bigquery

import (
	"context"
	"math/big"
	"os"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/goccy/go-json"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/sjtechdev/connector-x-pooling/pkg/cxerrors"
	"github.com/sjtechdev/connector-x-pooling/pkg/source"
	"github.com/sjtechdev/connector-x-pooling/pkg/types"
)

// Source executes partition queries as BigQuery jobs.
type Source struct {
	client  *bigquery.Client
	preExec []string
}

// New reads the credentials file named by the connection string and
// builds the API client for its project.
func New(ctx context.Context, credsPath string) (*Source, error) {
	raw, err := os.ReadFile(credsPath)
	if err != nil {
		return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeInvalidConnectionString, "cannot read credentials file")
	}
	var creds struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeInvalidConnectionString, "cannot parse credentials file")
	}
	if creds.ProjectID == "" {
		return nil, cxerrors.New(cxerrors.ErrorTypeInvalidConnectionString, "credentials file has no project_id")
	}

	client, err := bigquery.NewClient(ctx, creds.ProjectID, option.WithCredentialsFile(credsPath))
	if err != nil {
		return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeConnectionAcquire, "cannot create bigquery client")
	}
	return &Source{client: client}, nil
}

func (s *Source) TypeSystem() types.TypeSystem { return types.NativeValues }

// SetPreExecutionQueries records statements run once per partition before
// its query job.
func (s *Source) SetPreExecutionQueries(queries []string) { s.preExec = queries }

func (s *Source) Close() error { return s.client.Close() }

// Schema dry-runs the query and reads the result schema from job
// statistics; no rows are billed or fetched.
func (s *Source) Schema(ctx context.Context, query string) (*types.Schema, error) {
	q := s.client.Query(query)
	q.DryRun = true
	job, err := q.Run(ctx)
	if err != nil {
		return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeQueryExecution, "schema introspection failed")
	}
	stats, ok := job.LastStatus().Statistics.Details.(*bigquery.QueryStatistics)
	if !ok || stats.Schema == nil {
		return nil, cxerrors.New(cxerrors.ErrorTypeQueryExecution, "dry run returned no schema")
	}

	schema := &types.Schema{Fields: make([]types.Field, len(stats.Schema))}
	for i, f := range stats.Schema {
		schema.Fields[i] = types.Field{
			Name:     f.Name,
			Type:     logicalTypeFor(f.Type),
			Nullable: !f.Required,
		}
	}
	return schema, nil
}

// Connect prepares one partition's execution context. There is no
// physical connection; pre-execution statements run as their own jobs.
func (s *Source) Connect(ctx context.Context) (source.PartitionConn, error) {
	for _, q := range s.preExec {
		it, err := s.client.Query(q).Read(ctx)
		if err != nil {
			return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeQueryExecution, "pre-execution query failed")
		}
		// Drain so the job completes.
		var row []bigquery.Value
		for {
			if err := it.Next(&row); err != nil {
				if err == iterator.Done {
					break
				}
				return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeQueryExecution, "pre-execution query failed")
			}
		}
	}
	return &jobConn{client: s.client}, nil
}

type jobConn struct {
	client *bigquery.Client
}

func (c *jobConn) Execute(ctx context.Context, query string) (source.RowStream, error) {
	it, err := c.client.Query(query).Read(ctx)
	if err != nil {
		return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeQueryExecution, "query failed")
	}
	return &rowStream{it: it}, nil
}

func (c *jobConn) Close() error { return nil }

type rowStream struct {
	it   *bigquery.RowIterator
	row  []bigquery.Value
	vals []any
	err  error
	done bool
}

func (s *rowStream) Next() bool {
	if s.done || s.err != nil {
		return false
	}
	if err := s.it.Next(&s.row); err != nil {
		if err == iterator.Done {
			s.done = true
		} else {
			s.err = err
		}
		return false
	}
	return true
}

func (s *rowStream) Values() ([]any, error) {
	if s.vals == nil {
		s.vals = make([]any, len(s.row))
	}
	for i, v := range s.row {
		s.vals[i] = normalizeValue(v)
	}
	return s.vals, nil
}

func (s *rowStream) Err() error { return s.err }

func (s *rowStream) Close() error { return nil }

// normalizeValue rewrites BigQuery value types into plain Go values.
// NUMERIC arrives as *big.Rat and converts to float64 per the documented
// precision policy.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case *big.Rat:
		if x == nil {
			return nil
		}
		f, _ := x.Float64()
		return f
	case civil.Date:
		return x.In(time.UTC)
	case civil.DateTime:
		return x.In(time.UTC)
	case civil.Time:
		return x.String()
	default:
		return v
	}
}

func logicalTypeFor(t bigquery.FieldType) types.LogicalType {
	switch t {
	case bigquery.IntegerFieldType:
		return types.Int64
	case bigquery.FloatFieldType:
		return types.Float64
	case bigquery.NumericFieldType, bigquery.BigNumericFieldType:
		return types.Decimal
	case bigquery.BooleanFieldType:
		return types.Bool
	case bigquery.BytesFieldType:
		return types.Bytes
	case bigquery.TimestampFieldType, bigquery.DateTimeFieldType:
		return types.Timestamp
	case bigquery.DateFieldType:
		return types.Date
	default:
		return types.String
	}
}
