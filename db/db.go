// Package db holds the partitioned Postgres schema and the repository
// methods the work-claim coordinator (C4), plan executor (C6), and
// recovery tool (C7) use to read and mutate medium/inode/path/blob
// rows.
//
// No example file in the retrieval pack exercises pgx or goose
// directly — both only appeared in a dependency manifest, with their
// own source filtered down to tests — so this package's use of them
// follows the libraries' documented public APIs rather than an
// in-pack usage site. See DESIGN.md.
package db

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Querier is the subset of pgx's connection/pool/transaction surface
// this package depends on. Production code is handed a *pgxpool.Pool;
// tests substitute an in-memory fake, since no real Postgres instance
// is assumed to be available.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Tx extends Querier with the commit/rollback pair the batch-commit
// path (CommitBatch) needs.
type Tx interface {
	Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Beginner starts transactions; *pgxpool.Pool implements it.
type Beginner interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Open connects to Postgres via pgxpool and pings it before returning.
// It does not apply migrations; Migrate does that separately. The
// pool's MaxConns defaults to pgx's
// own heuristic; callers needing a fixed worker-to-connection ratio
// pass a DSN with a "pool_max_conns" query parameter.
func Open(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// Migrate applies every embedded migration in migrations/ using goose
// in its library (non-CLI) mode, against a plain database/sql handle —
// goose does not speak pgx's native protocol, so Migrate opens its own
// database/sql connection (driver name "pgx") scoped to just this call.
func Migrate(databaseURL string) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	sqlDB, err := goose.OpenDBWithDriver("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer sqlDB.Close()

	if err := goose.Up(sqlDB, "migrations"); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
