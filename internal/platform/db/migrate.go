package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationFile is one SQL file from the migrations directory. The numeric
// filename prefix is the version: "001_core.sql" is version 1.
type migrationFile struct {
	version int
	name    string
	sql     string
}

// MigrationStatus is one row of `measurekit-server migrate status`.
type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt *time.Time
}

// Migrator applies SQL files in version order, recording progress in a
// schema_migrations table. Each file runs in its own transaction, so a
// failing migration leaves the earlier ones applied and itself fully
// rolled back.
type Migrator struct {
	pool *pgxpool.Pool
	dir  string
}

func NewMigrator(pool *pgxpool.Pool, dir string) *Migrator {
	return &Migrator{pool: pool, dir: dir}
}

const trackingTableDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// loadFiles collects the .sql files carrying a positive numeric prefix,
// sorted by version. Anything else in the directory (README, editor
// droppings) is ignored. Two files with the same version is an error:
// apply order would be ambiguous.
func (m *Migrator) loadFiles() ([]migrationFile, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir %s: %w", m.dir, err)
	}

	seen := make(map[int]string)
	var files []migrationFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil || version <= 0 {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %d: %s and %s", version, prev, e.Name())
		}
		seen[version] = e.Name()

		body, err := os.ReadFile(filepath.Join(m.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		files = append(files, migrationFile{version: version, name: e.Name(), sql: string(body)})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

// appliedAt ensures the tracking table exists and returns the applied
// versions with their timestamps.
func (m *Migrator) appliedAt(ctx context.Context) (map[int]time.Time, error) {
	if _, err := m.pool.Exec(ctx, trackingTableDDL); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations: %w", err)
	}

	rows, err := m.pool.Query(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var v int
		var at time.Time
		if err := rows.Scan(&v, &at); err != nil {
			return nil, fmt.Errorf("scan schema_migrations row: %w", err)
		}
		applied[v] = at
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema_migrations: %w", err)
	}
	return applied, nil
}

// Up applies every pending migration and returns how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	files, err := m.loadFiles()
	if err != nil {
		return 0, err
	}
	applied, err := m.appliedAt(ctx)
	if err != nil {
		return 0, err
	}

	ran := 0
	for _, f := range files {
		if _, done := applied[f.version]; done {
			continue
		}
		err := RunInTx(ctx, m.pool, func(txCtx context.Context) error {
			tx := TxFromContext(txCtx)
			if _, err := tx.Exec(txCtx, f.sql); err != nil {
				return err
			}
			_, err := tx.Exec(txCtx,
				`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
				f.version, f.name)
			return err
		})
		if err != nil {
			return ran, fmt.Errorf("migration %s: %w", f.name, err)
		}
		ran++
	}
	return ran, nil
}

// Status lists every known migration, applied and pending, in version order.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	files, err := m.loadFiles()
	if err != nil {
		return nil, err
	}
	applied, err := m.appliedAt(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]MigrationStatus, 0, len(files))
	for _, f := range files {
		s := MigrationStatus{Version: f.version, Name: f.name}
		if at, ok := applied[f.version]; ok {
			s.Applied = true
			t := at
			s.AppliedAt = &t
		}
		out = append(out, s)
	}
	return out, nil
}
