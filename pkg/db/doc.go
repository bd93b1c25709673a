// Package db wires PostgreSQL for the mail pipeline: a pgx pool with startup
// retries, transaction helper, goose migrations and a readiness check.
//
// The queue store, the user directory and River all share the pool returned by
// [Connect]:
//
//	pool, err := db.Connect(ctx, cfg.Database, log)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := db.Migrate(ctx, pool, pgstore.Migrations, "migrations", cfg.Database.MigrationsTable, log); err != nil {
//		return err
//	}
//
// [WithTx] rolls back on error or panic and commits otherwise. It accepts any
// [Beginner], so a pgx.Tx nests as a savepoint.
//
// Errors are wrapped with [errors.Join] around the sentinels in errors.go.
package db
