package migrations

import (
	"database/sql"

	// Registers the "pgx" database/sql driver as a process-wide side
	// effect. golang-migrate's postgres driver needs a *sql.DB, not a pgx
	// pool; importing stdlib here is the one place that global
	// registration happens, and it must stay idempotent since OpenDB may
	// be called more than once per process.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// OpenDB opens a database/sql.DB against dsn for exclusive use by Run.
// Callers should Close it once migrations have been applied; it is not the
// pool the rest of the program uses to talk to Postgres.
func OpenDB(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}
