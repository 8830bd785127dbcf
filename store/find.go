package store

import (
	"context"
	"sort"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-bgg-cache/query"
	"github.com/goliatone/go-bgg-cache/thing"
)

// Find returns the stored things among ids that match spec, ordered by the
// spec's sort with mechanics attached. Ids with no stored record are skipped.
func (s *Store) Find(ctx context.Context, ids []string, spec query.Spec) ([]*thing.Thing, error) {
	ids = thing.UniqueIDs(ids)
	if len(ids) == 0 {
		return []*thing.Thing{}, nil
	}

	things := make([]*thing.Thing, 0, len(ids))
	q := s.db.NewSelect().
		Model(&things).
		Relation("Mechanics").
		Where("?TableAlias.id IN (?)", bun.In(ids))

	q = applyFilters(s.db, q, spec)
	q = applySort(q, spec)

	if err := q.Scan(ctx); err != nil {
		return nil, readError(err, "find things")
	}

	for _, t := range things {
		sortMechanics(t)
	}
	return things, nil
}

// Get returns one stored thing with its mechanics.
func (s *Store) Get(ctx context.Context, id string) (*thing.Thing, error) {
	t := new(thing.Thing)
	err := s.db.NewSelect().
		Model(t).
		Relation("Mechanics").
		Where("?TableAlias.id = ?", id).
		Scan(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, goerrors.New("thing not found", goerrors.CategoryNotFound).
				WithTextCode("NOT_FOUND").
				WithMetadata(map[string]any{"id": id})
		}
		return nil, readError(err, "get thing "+id)
	}
	sortMechanics(t)
	return t, nil
}

func applyFilters(db *bun.DB, q *bun.SelectQuery, spec query.Spec) *bun.SelectQuery {
	if spec.NameContains != "" {
		q = q.Where("?TableAlias.name_folded LIKE ? ESCAPE '\\'", containsPattern(spec.NameContains))
	}
	if spec.DescriptionContains != "" {
		q = q.Where("?TableAlias.description_folded LIKE ? ESCAPE '\\'", containsPattern(spec.DescriptionContains))
	}
	if spec.Players != nil {
		q = q.Where("?TableAlias.min_players <= ?", *spec.Players).
			Where("?TableAlias.max_players >= ?", *spec.Players)
	}
	if spec.Playtime != nil {
		q = q.Where("?TableAlias.min_playtime <= ?", *spec.Playtime).
			Where("?TableAlias.max_playtime >= ?", *spec.Playtime)
	}
	if spec.Rank != nil {
		q = q.Where("?TableAlias.board_rank > 0").
			Where("?TableAlias.board_rank <= ?", *spec.Rank)
	}
	if spec.Rating != nil {
		q = q.Where("?TableAlias.average_rating >= ?", *spec.Rating)
	}
	if spec.HasWeight() {
		q = q.Where("?TableAlias.average_weight >= ?", *spec.WeightMin).
			Where("?TableAlias.average_weight <= ?", *spec.WeightMax)
	}
	if len(spec.Mechanics) > 0 {
		// every listed mechanic must be attached
		sub := db.NewSelect().
			TableExpr("thing_mechanics AS tmf").
			ColumnExpr("tmf.thing_id").
			Join("JOIN mechanics AS mf ON mf.id = tmf.mechanic_id").
			Where("mf.slug IN (?)", bun.In(spec.Mechanics)).
			GroupExpr("tmf.thing_id").
			Having("COUNT(DISTINCT mf.id) = ?", len(spec.Mechanics))
		q = q.Where("?TableAlias.id IN (?)", sub)
	}
	return q
}

// applySort orders by the requested column with nulls last in both
// directions, then by write order and id.
func applySort(q *bun.SelectQuery, spec query.Spec) *bun.SelectQuery {
	field, dir := spec.Sort, spec.Direction
	if field == "" {
		field, dir = query.ParseSort("", string(dir))
	}

	var column string
	switch field {
	case query.SortMinPlayers:
		column = "?TableAlias.min_players"
	case query.SortRating:
		column = "?TableAlias.average_rating"
	case query.SortWeight:
		column = "?TableAlias.average_weight"
	default:
		column = "?TableAlias.name_folded"
	}

	direction := "ASC"
	if dir == query.Desc {
		direction = "DESC"
	}

	return q.
		OrderExpr("CASE WHEN " + column + " IS NULL THEN 1 ELSE 0 END ASC").
		OrderExpr(column + " " + direction).
		OrderExpr("?TableAlias.cached_seq ASC").
		OrderExpr("?TableAlias.id ASC")
}

func containsPattern(s string) string {
	s = thing.Fold(s)
	s = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
	return "%" + s + "%"
}

func sortMechanics(t *thing.Thing) {
	sort.SliceStable(t.Mechanics, func(i, j int) bool {
		return thing.Fold(t.Mechanics[i].Name) < thing.Fold(t.Mechanics[j].Name)
	})
}
