package database

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"rollguard/migrations"
)

// Migrate executes every embedded *.up.sql migration for the pool's dialect
// in lexical order. Migrations are written to be re-runnable.
func Migrate(ctx context.Context, p *Pool) error {
	dir := p.dialect.Name()
	entries, err := fs.ReadDir(migrations.FS, dir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := fs.ReadFile(migrations.FS, dir+"/"+file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if _, err := p.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", file, err)
		}
	}
	return nil
}
