package freshness

import (
	"context"
	"log/slog"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-bgg-cache/store"
	"github.com/goliatone/go-bgg-cache/thing"
)

// TextCodeClassificationFailed marks errors reading freshness state.
const TextCodeClassificationFailed = "CLASSIFICATION_FAILED"

// DefaultWindow is the maximum age of a fresh record.
const DefaultWindow = 7 * 24 * time.Hour

// SnapshotSource reads the freshness state of stored records.
type SnapshotSource interface {
	Snapshots(ctx context.Context, ids []string) (map[string]store.Snapshot, error)
}

// Config tunes the freshness rule.
type Config struct {
	// Window is the maximum age of a fresh record. Zero means DefaultWindow.
	Window time.Duration
	// MinSchemaVersion is the lowest schema version considered fresh.
	// Zero means thing.CurrentSchemaVersion.
	MinSchemaVersion int
	Now              func() time.Time
	Logger           *slog.Logger
}

// Partition splits requested ids. Together Fresh and Stale hold every
// distinct requested id exactly once, in request order.
type Partition struct {
	Fresh []string
	Stale []string
}

// Classifier decides which records need a refresh.
type Classifier struct {
	source     SnapshotSource
	window     time.Duration
	minVersion int
	now        func() time.Time
	logger     *slog.Logger
}

// New creates a Classifier.
func New(source SnapshotSource, cfg Config) *Classifier {
	c := &Classifier{
		source:     source,
		window:     cfg.Window,
		minVersion: cfg.MinSchemaVersion,
		now:        cfg.Now,
		logger:     cfg.Logger,
	}
	if c.window <= 0 {
		c.window = DefaultWindow
	}
	if c.minVersion <= 0 {
		c.minVersion = thing.CurrentSchemaVersion
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// IsFresh applies the freshness rule to one snapshot.
func IsFresh(snap store.Snapshot, now time.Time, window time.Duration, minVersion int) bool {
	if snap.LastCached.IsZero() {
		return false
	}
	if snap.SchemaVersion < minVersion {
		return false
	}
	return now.Sub(snap.LastCached) <= window
}

// Classify partitions ids into fresh and stale. Ids absent from storage are
// stale. A storage failure is returned as a CLASSIFICATION_FAILED error and
// no partition is produced.
func (c *Classifier) Classify(ctx context.Context, ids []string) (Partition, error) {
	unique := thing.UniqueIDs(ids)
	if len(unique) == 0 {
		return Partition{Fresh: []string{}, Stale: []string{}}, nil
	}

	snaps, err := c.source.Snapshots(ctx, unique)
	if err != nil {
		return Partition{}, goerrors.Wrap(err, goerrors.CategoryInternal, "classify freshness").
			WithTextCode(TextCodeClassificationFailed).
			WithMetadata(map[string]any{"requested": len(unique)})
	}

	now := c.now()
	part := Partition{
		Fresh: make([]string, 0, len(unique)),
		Stale: make([]string, 0, len(unique)),
	}
	for _, id := range unique {
		snap, ok := snaps[id]
		if ok && IsFresh(snap, now, c.window, c.minVersion) {
			part.Fresh = append(part.Fresh, id)
			continue
		}
		part.Stale = append(part.Stale, id)
	}

	c.logger.Debug("freshness classified",
		"requested", len(unique),
		"fresh", len(part.Fresh),
		"stale", len(part.Stale),
	)
	return part, nil
}

// Stale returns only the stale subset of ids.
func (c *Classifier) Stale(ctx context.Context, ids []string) ([]string, error) {
	part, err := c.Classify(ctx, ids)
	if err != nil {
		return nil, err
	}
	return part.Stale, nil
}
