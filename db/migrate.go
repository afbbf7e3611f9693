package db

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate executes every .sql file at the root of fsys in lexical order. The
// scripts are written to be re-runnable.
func Migrate(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("db: read migrations: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	var applied []string
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}

		data, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return applied, fmt.Errorf("db: read %s: %w", e.Name(), err)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return applied, fmt.Errorf("db: apply %s: %w", e.Name(), err)
		}
		applied = append(applied, e.Name())
	}
	return applied, nil
}
