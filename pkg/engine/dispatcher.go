package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sjtechdev/connector-x-pooling/pkg/cxerrors"
	"github.com/sjtechdev/connector-x-pooling/pkg/destination"
	"github.com/sjtechdev/connector-x-pooling/pkg/logger"
	"github.com/sjtechdev/connector-x-pooling/pkg/metrics"
)

// dispatch fans the partition queries out, one goroutine per partition,
// and joins them all before returning. Each partition walks the same
// sequence: acquire a connection, execute its query, stream rows through
// the conversion plan into its exclusive destination region, seal the
// region. The connection is released on every exit path.
//
// The first failure cancels the shared context so sibling partitions
// unwind at their next blocking call, but every goroutine still runs to
// its release path and is joined. When several partitions fail, the
// error of the lowest partition index is returned so the outcome does
// not depend on goroutine scheduling; cancellation-induced errors never
// mask the failure that triggered the cancellation.
func dispatch(ctx context.Context, prep *prepared, queries []string, sink destination.Sink) error {
	backend := prep.desc.Backend.String()
	start := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, len(queries))
	for i, query := range queries {
		wg.Add(1)
		go func(part int, query string) {
			defer wg.Done()
			if err := runPartition(ctx, prep, sink, part, query); err != nil {
				errs[part] = cxerrors.WithPartition(err, part)
				metrics.PartitionsCompleted.WithLabelValues(backend, "failure").Inc()
				logger.Warn("partition failed",
					zap.String("backend", backend),
					zap.Int("partition", part),
					zap.Error(err))
				cancel()
				return
			}
			metrics.PartitionsCompleted.WithLabelValues(backend, "success").Inc()
		}(i, query)
	}
	wg.Wait()

	metrics.ExtractionDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
	var firstAbort error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if firstAbort == nil {
				firstAbort = err
			}
			continue
		}
		return err
	}
	return firstAbort
}

func runPartition(ctx context.Context, prep *prepared, sink destination.Sink, part int, query string) error {
	backend := prep.desc.Backend.String()
	metrics.PartitionsStarted.WithLabelValues(backend).Inc()

	writer, err := sink.Writer(part)
	if err != nil {
		return err
	}

	conn, err := prep.src.Connect(ctx)
	if err != nil {
		if cxerrors.IsType(err, cxerrors.ErrorTypeConnectionAcquire) {
			metrics.CheckoutFailures.WithLabelValues(backend).Inc()
		}
		return err
	}
	defer conn.Close()

	stream, err := conn.Execute(ctx, query)
	if err != nil {
		return err
	}
	defer stream.Close()

	builders := writer.Columns()
	var rows int64
	for stream.Next() {
		vals, err := stream.Values()
		if err != nil {
			return err
		}
		if err := prep.plan.WriteRow(builders, vals); err != nil {
			return err
		}
		if err := writer.EndRow(); err != nil {
			return err
		}
		rows++
	}
	if err := stream.Err(); err != nil {
		return cxerrors.Wrap(err, cxerrors.ErrorTypeQueryExecution, "row stream failed")
	}
	if err := ctx.Err(); err != nil {
		// A sibling failed; its error wins, but this region must not be
		// sealed as complete.
		return cxerrors.Wrap(err, cxerrors.ErrorTypeQueryExecution, "extraction aborted")
	}

	if err := writer.Finish(); err != nil {
		return err
	}
	metrics.RowsExtracted.WithLabelValues(backend).Add(float64(rows))
	logger.Debug("partition complete",
		zap.String("backend", backend),
		zap.Int("partition", part),
		zap.Int64("rows", rows))
	return nil
}
