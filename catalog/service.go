package catalog

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

	"github.com/goliatone/go-bgg-cache/query"
	"github.com/goliatone/go-bgg-cache/refresh"
	"github.com/goliatone/go-bgg-cache/thing"
)

// TextCodeCollectionsUnavailable marks collection lookups on a service built
// without a collection source.
const TextCodeCollectionsUnavailable = "COLLECTIONS_UNAVAILABLE"

// DefaultRefreshTimeout bounds the refresh step of a read.
const DefaultRefreshTimeout = 2 * time.Minute

// DefaultReadTimeout bounds a read that runs after the caller's context ended.
const DefaultReadTimeout = 10 * time.Second

// Classifier returns the ids that need a refresh.
type Classifier interface {
	Stale(ctx context.Context, ids []string) ([]string, error)
}

// Refresher fetches and stores records.
type Refresher interface {
	Refresh(ctx context.Context, ids []string) (refresh.Report, error)
}

// Reader reads stored records.
type Reader interface {
	Find(ctx context.Context, ids []string, spec query.Spec) ([]*thing.Thing, error)
	Get(ctx context.Context, id string) (*thing.Thing, error)
}

// Invalidator drops cached reads after records were written.
type Invalidator interface {
	InvalidateIDs(ctx context.Context, ids []string) error
}

// CollectionSource resolves a user's owned games to ids.
type CollectionSource interface {
	Collection(ctx context.Context, username string) ([]string, error)
}

// Result is the answer to a read. Things is whatever storage holds after
// the refresh step. Partial reports that the refresh step did not fully
// succeed, so some records may be stale or missing.
type Result struct {
	Things  []*thing.Thing
	Partial bool
	Report  refresh.Report
}

// Config tunes the service.
type Config struct {
	// RefreshTimeout bounds the refresh step. Zero means DefaultRefreshTimeout.
	RefreshTimeout time.Duration
	// ReadTimeout bounds the read step when the caller's context ended during
	// the refresh. Zero means DefaultReadTimeout.
	ReadTimeout time.Duration
	Logger      *slog.Logger
	Tracer         trace.Tracer
}

// Option configures optional collaborators.
type Option func(*Service)

// WithInvalidator drops cached reads whenever a refresh writes records.
func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) {
		s.invalidator = inv
	}
}

// WithCollections enables collection reads.
func WithCollections(src CollectionSource) Option {
	return func(s *Service) {
		s.collections = src
	}
}

// Service refreshes stale records before reading them.
type Service struct {
	classifier  Classifier
	refresher   Refresher
	reader      Reader
	invalidator Invalidator
	collections CollectionSource
	timeout     time.Duration
	readTimeout time.Duration
	logger      *slog.Logger
	tracer      trace.Tracer
}

// New creates a Service.
func New(classifier Classifier, refresher Refresher, reader Reader, cfg Config, opts ...Option) *Service {
	s := &Service{
		classifier: classifier,
		refresher:  refresher,
		reader:     reader,
		timeout:     cfg.RefreshTimeout,
		readTimeout: cfg.ReadTimeout,
		logger:      cfg.Logger,
		tracer:      cfg.Tracer,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultRefreshTimeout
	}
	if s.readTimeout <= 0 {
		s.readTimeout = DefaultReadTimeout
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/goliatone/go-bgg-cache/catalog")
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RefreshAndRead refreshes the stale subset of ids and then reads all of
// them with the given filters and sort.
//
// A classification failure or a read failure is returned. Anything that goes
// wrong during the refresh itself, including hitting the refresh timeout or
// the caller's own deadline, only marks the result as partial and the stored
// records are still read.
func (s *Service) RefreshAndRead(ctx context.Context, ids []string, filters map[string]any, sortField, sortDirection string) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.RefreshAndRead", trace.WithAttributes(
		attribute.Int("ids.requested", len(ids)),
		attribute.String("sort.field", sortField),
		attribute.String("sort.direction", sortDirection),
	))
	defer span.End()

	stale, err := s.classifier.Stale(ctx, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "classification failed")
		return Result{}, err
	}
	span.SetAttributes(attribute.Int("ids.stale", len(stale)))

	report, partial := s.refresh(ctx, stale)

	spec := query.Parse(filters, sortField, sortDirection)
	rctx, cancel := s.readContext(ctx)
	defer cancel()

	things, err := s.reader.Find(rctx, ids, spec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return Result{}, err
	}

	span.SetAttributes(
		attribute.Int("things.returned", len(things)),
		attribute.Bool("result.partial", partial),
	)
	return Result{Things: things, Partial: partial, Report: report}, nil
}

// Refresh refreshes the stale subset of ids, or every id when force is set.
// Only a classification failure is returned as an error.
func (s *Service) Refresh(ctx context.Context, ids []string, force bool) (refresh.Report, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.Refresh", trace.WithAttributes(
		attribute.Int("ids.requested", len(ids)),
		attribute.Bool("force", force),
	))
	defer span.End()

	targets := ids
	if !force {
		stale, err := s.classifier.Stale(ctx, ids)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "classification failed")
			return refresh.Report{}, err
		}
		targets = stale
	}

	report, _ := s.refresh(ctx, targets)
	return report, nil
}

// Get refreshes id if it is stale and returns the stored record.
func (s *Service) Get(ctx context.Context, id string) (*thing.Thing, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.Get", trace.WithAttributes(attribute.String("id", id)))
	defer span.End()

	stale, err := s.classifier.Stale(ctx, []string{id})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.refresh(ctx, stale)

	rctx, cancel := s.readContext(ctx)
	defer cancel()

	t, err := s.reader.Get(rctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return t, nil
}

// Collection resolves username's owned games and reads them like
// RefreshAndRead.
func (s *Service) Collection(ctx context.Context, username string, filters map[string]any, sortField, sortDirection string) (Result, error) {
	if s.collections == nil {
		return Result{}, goerrors.New("collections are not configured", goerrors.CategoryBadInput).
			WithTextCode(TextCodeCollectionsUnavailable)
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return Result{}, goerrors.NewValidation("invalid collection request",
			goerrors.FieldError{Field: "username", Message: "cannot be blank"},
		)
	}

	ids, err := s.collections.Collection(ctx, username)
	if err != nil {
		return Result{}, err
	}
	s.logger.Debug("collection resolved", "username", username, "ids", len(ids))
	return s.RefreshAndRead(ctx, ids, filters, sortField, sortDirection)
}

// refresh runs the refresher on ids under the refresh timeout. It reports
// whether the outcome was partial.
func (s *Service) refresh(ctx context.Context, ids []string) (refresh.Report, bool) {
	if len(ids) == 0 {
		return refresh.Report{Refreshed: []*thing.Thing{}}, false
	}

	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report, err := s.refresher.Refresh(rctx, ids)
	partial := report.Partial()
	if err != nil {
		partial = true
		s.logger.Warn("refresh did not complete, serving stored records",
			"stale", len(ids),
			"refreshed", len(report.Refreshed),
			"error", err,
		)
	} else if partial {
		s.logger.Warn("refresh completed with failures",
			"stale", len(ids),
			"refreshed", len(report.Refreshed),
			"failed_ids", len(report.FailedIDs()),
			"rejected", report.RejectedRecords,
		)
	}

	if written := report.RefreshedIDs(); len(written) > 0 && s.invalidator != nil {
		if err := s.invalidator.InvalidateIDs(context.WithoutCancel(ctx), written); err != nil {
			s.logger.Warn("read cache invalidation failed", "ids", len(written), "error", err)
		}
	}
	return report, partial
}

// readContext returns the context for the read step. Once the caller's
// context has ended the read is detached from it and bounded by the read
// timeout instead, so stored records are still served.
func (s *Service) readContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return ctx, func() {}
	}
	s.logger.Debug("caller context ended during refresh, reading detached", "error", ctx.Err())
	return context.WithTimeout(context.WithoutCancel(ctx), s.readTimeout)
}
