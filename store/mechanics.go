package store

import (
	"context"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-bgg-cache/thing"
)

// mechanicRepository resolves mechanic names to stored tags, creating them on
// first use. Creation tolerates concurrent writers of the same tag.
type mechanicRepository struct {
	repo repository.Repository[*thing.Mechanic]
}

func newMechanicRepository(db *bun.DB) *mechanicRepository {
	handlers := repository.ModelHandlers[*thing.Mechanic]{
		NewRecord: func() *thing.Mechanic {
			return &thing.Mechanic{}
		},
		GetID: func(m *thing.Mechanic) uuid.UUID {
			if m == nil {
				return uuid.Nil
			}
			return m.ID
		},
		SetID: func(m *thing.Mechanic, id uuid.UUID) {
			m.ID = id
		},
		GetIdentifier: func() string {
			return "slug"
		},
	}

	return &mechanicRepository{
		repo: repository.NewRepository[*thing.Mechanic](db, handlers),
	}
}

// Ensure returns the stored mechanics for names, in the order given.
// Names must already be normalized.
func (r *mechanicRepository) Ensure(ctx context.Context, idb bun.IDB, names []string) ([]*thing.Mechanic, error) {
	out := make([]*thing.Mechanic, 0, len(names))
	seen := make(map[uuid.UUID]struct{}, len(names))

	for _, name := range names {
		m, err := r.ensureOne(ctx, idb, name)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	return out, nil
}

func (r *mechanicRepository) ensureOne(ctx context.Context, idb bun.IDB, name string) (*thing.Mechanic, error) {
	slug := thing.MechanicSlug(name)

	existing, err := r.bySlug(ctx, idb, slug)
	if err == nil {
		return existing, nil
	}
	if !isNotFound(err) {
		return nil, persistenceError(err, "lookup mechanic "+slug)
	}

	candidate := &thing.Mechanic{ID: uuid.New(), Name: name, Slug: slug}
	_, err = r.repo.CreateTx(ctx, idb, candidate, func(q *bun.InsertQuery) *bun.InsertQuery {
		return q.On("CONFLICT DO NOTHING")
	})
	// another writer may have created the tag between lookup and insert
	if err != nil && !isUniqueViolation(err) && !isNotFound(err) {
		return nil, persistenceError(err, "create mechanic "+slug)
	}

	// re-read so the caller always holds the stored row, not the candidate
	stored, err := r.bySlug(ctx, idb, slug)
	if err != nil {
		return nil, persistenceError(err, "resolve mechanic "+slug)
	}
	return stored, nil
}

func (r *mechanicRepository) bySlug(ctx context.Context, idb bun.IDB, slug string) (*thing.Mechanic, error) {
	return r.repo.GetTx(ctx, idb, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.slug = ?", slug)
	})
}
