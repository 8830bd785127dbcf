package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-bgg-cache/thing"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config selects and tunes the database connection.
type Config struct {
	Driver string
	DSN    string
	// MaxOpenConns is ignored for sqlite, which always uses one connection.
	MaxOpenConns int
	// BusyTimeoutMS is the sqlite busy_timeout pragma.
	BusyTimeoutMS int
	// Debug logs every query at debug level on Logger.
	Debug  bool
	Logger *slog.Logger
}

// DefaultConfig returns a file backed sqlite configuration.
func DefaultConfig() Config {
	return Config{
		Driver:        DriverSQLite,
		DSN:           "file:bggcache.db?cache=shared",
		MaxOpenConns:  10,
		BusyTimeoutMS: 5000,
	}
}

// Open connects to the configured database and returns a bun handle with the
// thing models registered.
func Open(ctx context.Context, cfg Config) (*bun.DB, error) {
	var db *bun.DB

	switch normalizeDriver(cfg.Driver) {
	case DriverSQLite:
		sqldb, err := sql.Open(DriverSQLite, cfg.DSN)
		if err != nil {
			return nil, persistenceError(err, "open sqlite database")
		}
		// a single connection serializes writers and keeps in-memory databases alive
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())

		pragmas := []string{
			"PRAGMA foreign_keys = ON",
			fmt.Sprintf("PRAGMA busy_timeout = %d", max(cfg.BusyTimeoutMS, 0)),
		}
		for _, pragma := range pragmas {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				_ = db.Close()
				return nil, persistenceError(err, "configure sqlite")
			}
		}

	case DriverPostgres:
		sqldb, err := sql.Open(DriverPostgres, cfg.DSN)
		if err != nil {
			return nil, persistenceError(err, "open postgres database")
		}
		if cfg.MaxOpenConns > 0 {
			sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		db = bun.NewDB(sqldb, pgdialect.New())

		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, persistenceError(err, "connect postgres")
		}

	default:
		return nil, goerrors.New(fmt.Sprintf("unsupported database driver %q", cfg.Driver), goerrors.CategoryBadInput).
			WithTextCode("INVALID_CONFIG")
	}

	if cfg.Debug {
		logger := cfg.Logger
		if logger == nil {
			logger = slog.Default()
		}
		db.AddQueryHook(queryLogger{logger: logger})
	}

	RegisterModels(db)
	return db, nil
}

type queryLogger struct {
	logger *slog.Logger
}

func (h queryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h queryLogger) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	attrs := []any{
		"operation", event.Operation(),
		"duration", time.Since(event.StartTime),
		"query", event.Query,
	}
	if event.Err != nil && event.Err != sql.ErrNoRows {
		h.logger.DebugContext(ctx, "query failed", append(attrs, "error", event.Err)...)
		return
	}
	h.logger.DebugContext(ctx, "query", attrs...)
}

// RegisterModels registers the join model needed for m2m relation loading.
func RegisterModels(db *bun.DB) {
	db.RegisterModel((*thing.ThingMechanic)(nil))
}

// EnsureSchema creates the tables and association indexes when missing.
func EnsureSchema(ctx context.Context, db *bun.DB) error {
	models := []any{
		(*thing.Thing)(nil),
		(*thing.Mechanic)(nil),
		(*thing.ThingMechanic)(nil),
	}
	for _, model := range models {
		if _, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			WithForeignKeys().
			Exec(ctx); err != nil {
			return persistenceError(err, "create table")
		}
	}

	indexes := []struct {
		name   string
		column string
	}{
		{name: "idx_thing_mechanics_thing", column: "thing_id"},
		{name: "idx_thing_mechanics_mechanic", column: "mechanic_id"},
	}
	for _, idx := range indexes {
		if _, err := db.NewCreateIndex().
			Model((*thing.ThingMechanic)(nil)).
			Index(idx.name).
			Column(idx.column).
			IfNotExists().
			Exec(ctx); err != nil {
			return persistenceError(err, "create index "+idx.name)
		}
	}

	if _, err := db.NewCreateIndex().
		Model((*thing.Thing)(nil)).
		Index("idx_things_last_cached").
		Column("last_cached").
		IfNotExists().
		Exec(ctx); err != nil {
		return persistenceError(err, "create index idx_things_last_cached")
	}

	return ensureFoldedColumns(ctx, db)
}

// ensureFoldedColumns adds the search columns to things tables created before
// they existed and fills them from the stored names and descriptions.
func ensureFoldedColumns(ctx context.Context, db *bun.DB) error {
	columns := []struct {
		name string
		expr string
	}{
		{name: "name_folded", expr: "name_folded VARCHAR NOT NULL DEFAULT ''"},
		{name: "description_folded", expr: "description_folded TEXT NOT NULL DEFAULT ''"},
	}

	added := false
	for _, col := range columns {
		rows, err := db.NewSelect().
			Model((*thing.Thing)(nil)).
			ColumnExpr("?", bun.Ident(col.name)).
			Limit(1).
			Rows(ctx)
		if err == nil {
			_ = rows.Close()
			continue
		}

		if _, err := db.NewAddColumn().
			Model((*thing.Thing)(nil)).
			ColumnExpr(col.expr).
			Exec(ctx); err != nil {
			return persistenceError(err, "add column "+col.name)
		}
		added = true
	}
	if !added {
		return nil
	}

	var rows []thing.Thing
	if err := db.NewSelect().
		Model(&rows).
		Column("id", "name", "description").
		Scan(ctx); err != nil {
		return persistenceError(err, "load things for backfill")
	}
	for i := range rows {
		row := &rows[i]
		if _, err := db.NewUpdate().
			Model((*thing.Thing)(nil)).
			Set("name_folded = ?", thing.Fold(row.Name)).
			Set("description_folded = ?", thing.Fold(row.Description)).
			Where("id = ?", row.ID).
			Exec(ctx); err != nil {
			return persistenceError(err, "backfill thing "+row.ID)
		}
	}
	return nil
}

func normalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite
	case "postgres", "postgresql", "pg":
		return DriverPostgres
	default:
		return driver
	}
}

// isUniqueViolation reports whether err is a unique constraint failure from
// either supported driver.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var sqliteErr sqlite3.Error
	if goerrors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	var pqErr *pq.Error
	if goerrors.As(err, &pqErr) {
		return pqErr.Code.Name() == "unique_violation"
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
