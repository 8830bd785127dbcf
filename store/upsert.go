package store

import (
	"context"
	"database/sql"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/goliatone/go-bgg-cache/thing"
)

// Upsert validates rec and writes it in a single record transaction.
//
// The stored schema version never decreases. Mechanic associations are only
// rewritten when the checksum of the supplied names differs from the stored
// one, and then as a diff: removed associations are deleted and new ones
// inserted. The returned thing carries its mechanics.
//
// Validation failures are go-errors validation errors; everything else is a
// PERSISTENCE_FAILED internal error.
func (s *Store) Upsert(ctx context.Context, rec thing.Parsed, schemaVersion int) (*thing.Thing, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	record := rec.ToThing()
	names := thing.NormalizeMechanicNames(rec.Mechanics)
	checksum := thing.MechanicsChecksum(names)

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, found, err := s.lockCurrent(ctx, tx, record.ID)
		if err != nil {
			return err
		}

		seq, err := nextSeq(ctx, tx)
		if err != nil {
			return err
		}

		record.LastCached = s.now().UTC()
		record.CachedSeq = seq
		record.SchemaVersion = schemaVersion
		if found && current.SchemaVersion > schemaVersion {
			record.SchemaVersion = current.SchemaVersion
		}
		record.MechanicsChecksum = checksum

		if _, err := tx.NewInsert().
			Model(record).
			On("CONFLICT (id) DO UPDATE").
			Exec(ctx); err != nil {
			return persistenceError(err, "upsert thing "+record.ID)
		}

		if found && current.MechanicsChecksum == checksum {
			return nil
		}

		mechanics, err := s.mechanics.Ensure(ctx, tx, names)
		if err != nil {
			return err
		}
		return replaceAssociations(ctx, tx, record.ID, mechanics)
	})
	if err != nil {
		var e *goerrors.Error
		if goerrors.As(err, &e) {
			return nil, e
		}
		return nil, persistenceError(err, "upsert thing "+record.ID)
	}

	stored, err := s.Get(ctx, record.ID)
	if err != nil {
		return nil, persistenceError(err, "reload thing "+record.ID)
	}

	s.logger.Debug("thing upserted",
		"id", stored.ID,
		"schema_version", stored.SchemaVersion,
		"mechanics", len(stored.Mechanics),
	)
	return stored, nil
}

// lockCurrent reads the stored checksum and schema version, taking a row
// lock where the dialect supports it.
func (s *Store) lockCurrent(ctx context.Context, tx bun.Tx, id string) (thing.Thing, bool, error) {
	var current thing.Thing
	q := tx.NewSelect().
		Model(&current).
		Column("id", "mechanics_checksum", "schema_version").
		Where("?TableAlias.id = ?", id)
	if s.db.Dialect().Name() == dialect.PG {
		q = q.For("UPDATE")
	}

	err := q.Scan(ctx)
	switch {
	case err == nil:
		return current, true, nil
	case goerrors.Is(err, sql.ErrNoRows):
		return current, false, nil
	default:
		return current, false, persistenceError(err, "read thing "+id)
	}
}

// nextSeq returns the next write order sequence. Ties under concurrent
// postgres writers are broken by id when sorting.
func nextSeq(ctx context.Context, tx bun.Tx) (int64, error) {
	var seq int64
	err := tx.NewSelect().
		Model((*thing.Thing)(nil)).
		ColumnExpr("COALESCE(MAX(?TableAlias.cached_seq), 0) + 1").
		Scan(ctx, &seq)
	if err != nil {
		return 0, persistenceError(err, "next cache sequence")
	}
	return seq, nil
}

func replaceAssociations(ctx context.Context, tx bun.Tx, thingID string, mechanics []*thing.Mechanic) error {
	var existing []thing.ThingMechanic
	if err := tx.NewSelect().
		Model(&existing).
		Column("thing_id", "mechanic_id").
		Where("?TableAlias.thing_id = ?", thingID).
		Scan(ctx); err != nil {
		return persistenceError(err, "load associations "+thingID)
	}

	want := make(map[uuid.UUID]struct{}, len(mechanics))
	for _, m := range mechanics {
		want[m.ID] = struct{}{}
	}

	have := make(map[uuid.UUID]struct{}, len(existing))
	var removed []uuid.UUID
	for _, row := range existing {
		have[row.MechanicID] = struct{}{}
		if _, ok := want[row.MechanicID]; !ok {
			removed = append(removed, row.MechanicID)
		}
	}

	if len(removed) > 0 {
		if _, err := tx.NewDelete().
			Model((*thing.ThingMechanic)(nil)).
			Where("thing_id = ?", thingID).
			Where("mechanic_id IN (?)", bun.In(removed)).
			Exec(ctx); err != nil {
			return persistenceError(err, "remove associations "+thingID)
		}
	}

	var added []thing.ThingMechanic
	for _, m := range mechanics {
		if _, ok := have[m.ID]; ok {
			continue
		}
		added = append(added, thing.ThingMechanic{ThingID: thingID, MechanicID: m.ID})
	}

	if len(added) > 0 {
		if _, err := tx.NewInsert().
			Model(&added).
			On("CONFLICT DO NOTHING").
			Exec(ctx); err != nil {
			return persistenceError(err, "add associations "+thingID)
		}
	}

	return nil
}
