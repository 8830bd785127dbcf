package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-bgg-cache/thing"
)

// Store persists things and their mechanic associations.
type Store struct {
	db        *bun.DB
	mechanics *mechanicRepository
	now       func() time.Time
	logger    *slog.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithClock sets the clock used for last_cached timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Store over an open database. Call EnsureSchema first.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:        db,
		mechanics: newMechanicRepository(db),
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the underlying handle.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Snapshot is the freshness relevant state of one stored thing.
type Snapshot struct {
	ID            string
	LastCached    time.Time
	SchemaVersion int
}

// Snapshots returns the freshness state of the stored subset of ids.
// Ids with no stored record are absent from the map.
func (s *Store) Snapshots(ctx context.Context, ids []string) (map[string]Snapshot, error) {
	out := make(map[string]Snapshot, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []thing.Thing
	err := s.db.NewSelect().
		Model(&rows).
		Column("id", "last_cached", "schema_version").
		Where("?TableAlias.id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, readError(err, "load freshness snapshots")
	}

	for _, row := range rows {
		out[row.ID] = Snapshot{
			ID:            row.ID,
			LastCached:    row.LastCached,
			SchemaVersion: row.SchemaVersion,
		}
	}
	return out, nil
}
