package repository

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"messenger/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate применяет встроенные SQL-миграции по порядку имен файлов.
// Все скрипты идемпотентны (IF NOT EXISTS).
func Migrate(ctx context.Context, db *pgxpool.Pool, log logger.Logger) error {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		script, err := migrationsFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := db.Exec(ctx, string(script)); err != nil {
			log.Error("Migration failed", "error", err, "file", name)
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		log.Info("Migration applied", "file", name)
	}

	return nil
}
