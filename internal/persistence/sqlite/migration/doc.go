// Package migration applies versioned SQL files to a SQLite database.
//
// Files are read from an fs.FS, usually an embed.FS compiled into the
// binary, and must be named {version}_{description}.sql with a numeric
// version. Applied versions are tracked in the schema_migrations table and
// each file runs in its own transaction together with its bookkeeping row.
//
// Example usage:
//
//	manager := migration.NewManager(migration.NewScanner(), migration.NewSQLiteExecutor(db), files, "migrations", logger)
//	if err := manager.Run(ctx); err != nil {
//		return fmt.Errorf("migrate: %w", err)
//	}
package migration
