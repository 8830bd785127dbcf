package refresh

import (
	"context"
	"log/slog"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/goliatone/go-bgg-cache/thing"
)

// TextCodeBatchFetchFailed marks a batch whose upstream call failed.
const TextCodeBatchFetchFailed = "BATCH_FETCH_FAILED"

// Defaults matching the upstream API's practical limits.
const (
	DefaultBatchSize = 20
	DefaultDelay     = time.Second
)

// Gateway fetches parsed records for an ordered batch of ids. An error means
// the whole batch failed.
type Gateway interface {
	FetchBatch(ctx context.Context, ids []string) ([]thing.Parsed, error)
}

// Writer persists one record.
type Writer interface {
	Upsert(ctx context.Context, rec thing.Parsed, schemaVersion int) (*thing.Thing, error)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config tunes the refresher. Zero values select the defaults; a negative
// Delay disables the pause between batches.
type Config struct {
	BatchSize     int
	Delay         time.Duration
	SchemaVersion int
	Sleep         SleepFunc
	Logger        *slog.Logger
	Tracer        trace.Tracer
	// MaxRecordErrors caps the record errors kept in a report. Zero keeps all.
	MaxRecordErrors int
}

// Refresher fetches stale records in sequential batches and writes them.
type Refresher struct {
	gateway Gateway
	writer  Writer
	cfg     Config
}

// New creates a Refresher.
func New(gateway Gateway, writer Writer, cfg Config) *Refresher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	switch {
	case cfg.Delay == 0:
		cfg.Delay = DefaultDelay
	case cfg.Delay < 0:
		cfg.Delay = 0
	}
	if cfg.SchemaVersion <= 0 {
		cfg.SchemaVersion = thing.CurrentSchemaVersion
	}
	if cfg.Sleep == nil {
		cfg.Sleep = Sleep
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("github.com/goliatone/go-bgg-cache/refresh")
	}
	return &Refresher{gateway: gateway, writer: writer, cfg: cfg}
}

// BatchSize returns the configured batch size.
func (r *Refresher) BatchSize() int {
	return r.cfg.BatchSize
}

// Refresh fetches and writes ids batch by batch in input order.
//
// A failed batch is recorded and skipped. A record that fails validation is
// recorded and the rest of its batch is still written; a persistence failure
// stops the rest of that batch only. Records written before any failure are
// kept. The only error returned is the context's, together with the partial
// report gathered so far.
func (r *Refresher) Refresh(ctx context.Context, ids []string) (Report, error) {
	report := Report{Refreshed: []*thing.Thing{}}

	batches := Batches(thing.UniqueIDs(ids), r.cfg.BatchSize)
	if len(batches) == 0 {
		return report, nil
	}

	var opts []goerrors.CollectorOption
	if r.cfg.MaxRecordErrors > 0 {
		opts = append(opts, goerrors.WithMaxErrors(r.cfg.MaxRecordErrors))
	}
	collector := goerrors.NewCollector(opts...)

	for i, batch := range batches {
		if i > 0 {
			if err := r.cfg.Sleep(ctx, r.cfg.Delay); err != nil {
				return r.interrupted(report, collector, i, len(batches), err)
			}
		}
		if err := ctx.Err(); err != nil {
			return r.interrupted(report, collector, i, len(batches), err)
		}

		report.Batches++
		written, rejected, failure := r.runBatch(ctx, i, batch, collector)
		report.Refreshed = append(report.Refreshed, written...)
		report.RejectedRecords += rejected
		if failure != nil {
			report.FailedBatches = append(report.FailedBatches, *failure)
		}
	}

	report.RecordErrors = collector.Errors()
	if collector.HasErrors() {
		collector.LogErrors(r.cfg.Logger)
	}

	r.cfg.Logger.Info("refresh finished",
		"requested", len(ids),
		"batches", report.Batches,
		"failed_batches", len(report.FailedBatches),
		"refreshed", len(report.Refreshed),
		"rejected", report.RejectedRecords,
	)
	return report, nil
}

func (r *Refresher) interrupted(report Report, collector *goerrors.ErrorCollector, next, total int, err error) (Report, error) {
	report.RecordErrors = collector.Errors()
	report.Interrupted = true
	r.cfg.Logger.Warn("refresh interrupted",
		"completed_batches", next,
		"total_batches", total,
		"refreshed", len(report.Refreshed),
		"error", err,
	)
	return report, err
}

func (r *Refresher) runBatch(ctx context.Context, index int, ids []string, collector *goerrors.ErrorCollector) ([]*thing.Thing, int, *BatchFailure) {
	ctx, span := r.cfg.Tracer.Start(ctx, "refresh.batch", trace.WithAttributes(
		attribute.Int("batch.index", index),
		attribute.Int("batch.size", len(ids)),
	))
	defer span.End()

	records, err := r.gateway.FetchBatch(ctx, ids)
	if err != nil {
		fetchErr := goerrors.Wrap(err, goerrors.CategoryExternal, "fetch batch").
			WithTextCode(TextCodeBatchFetchFailed).
			WithMetadata(map[string]any{"batch": index, "ids": strings.Join(ids, ",")})

		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		r.cfg.Logger.Error("refresh batch failed",
			"batch", index,
			"first_id", ids[0],
			"size", len(ids),
			"error", err,
		)
		return nil, 0, &BatchFailure{Index: index, IDs: ids, Err: fetchErr}
	}

	written := make([]*thing.Thing, 0, len(records))
	rejected := 0
	for _, rec := range records {
		stored, err := r.writer.Upsert(ctx, rec, r.cfg.SchemaVersion)
		if err == nil {
			written = append(written, stored)
			continue
		}

		if goerrors.IsValidation(err) {
			collector.Add(err)
			rejected++
			continue
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		r.cfg.Logger.Error("refresh batch write failed",
			"batch", index,
			"id", rec.ID,
			"written", len(written),
			"error", err,
		)
		return written, rejected, &BatchFailure{Index: index, IDs: ids, Err: err}
	}

	span.SetAttributes(
		attribute.Int("batch.written", len(written)),
		attribute.Int("batch.rejected", rejected),
	)
	return written, rejected, nil
}

// Batches splits ids into contiguous, non-overlapping batches of at most
// size elements, preserving order.
func Batches(ids []string, size int) [][]string {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if len(ids) == 0 {
		return nil
	}

	out := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end:end])
	}
	return out
}

// Sleep waits for d unless ctx ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
