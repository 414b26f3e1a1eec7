package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationStatus represents the status of migrations.
type MigrationStatus struct {
	UpToDate bool     `json:"up_to_date"`
	Applied  []string `json:"applied"`
	Pending  []string `json:"pending"`
	Total    int      `json:"total"`
}

// Migrator applies the embedded schema migrations.
//
// Files named NNNN_name.sql are used for postgres. A NNNN_name_sqlite.sql
// file, when present, replaces it for sqlite.
type Migrator struct {
	db     *sql.DB
	driver string
	files  fs.FS
}

// NewMigrator creates a migrator for the given driver.
func NewMigrator(db *sql.DB, driver string) *Migrator {
	if driver == "sqlite3" {
		driver = DriverSQLite
	}
	sub, _ := fs.Sub(migrationFiles, "migrations")
	return &Migrator{db: db, driver: driver, files: sub}
}

// Status reports applied and pending migrations.
func (m *Migrator) Status(ctx context.Context) (*MigrationStatus, error) {
	if err := m.ensureSchemaMigrationsTable(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	available, err := m.listMigrationFiles()
	if err != nil {
		return nil, fmt.Errorf("list migration files: %w", err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}

	status := &MigrationStatus{Total: len(available), Pending: []string{}}
	for _, file := range available {
		version := versionOf(file)
		if applied[version] {
			status.Applied = append(status.Applied, version)
			continue
		}
		status.Pending = append(status.Pending, file)
	}
	status.UpToDate = len(status.Pending) == 0
	return status, nil
}

// Run applies every pending migration in order and returns the versions applied.
func (m *Migrator) Run(ctx context.Context) ([]string, error) {
	status, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}

	var done []string
	for _, file := range status.Pending {
		if err := m.runMigration(ctx, file); err != nil {
			return done, fmt.Errorf("run migration %s: %w", file, err)
		}
		done = append(done, versionOf(file))
	}
	return done, nil
}

func (m *Migrator) ensureSchemaMigrationsTable(ctx context.Context) error {
	var query string
	switch m.driver {
	case DriverSQLite:
		query = `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version TEXT PRIMARY KEY,
				applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)
		`
	default:
		query = `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version TEXT PRIMARY KEY,
				applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)
		`
	}
	_, err := m.db.ExecContext(ctx, query)
	return err
}

// listMigrationFiles returns the files for this driver sorted by version.
func (m *Migrator) listMigrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(m.files, ".")
	if err != nil {
		return nil, err
	}

	sqlite := make(map[string]string)
	regular := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		if strings.HasSuffix(name, "_sqlite.sql") {
			sqlite[strings.TrimSuffix(name, "_sqlite.sql")] = name
		} else {
			regular[strings.TrimSuffix(name, ".sql")] = name
		}
	}

	var files []string
	for base, file := range regular {
		if m.driver == DriverSQLite {
			if alt, ok := sqlite[base]; ok {
				file = alt
			}
		}
		files = append(files, file)
	}
	if m.driver == DriverSQLite {
		for base, file := range sqlite {
			if _, ok := regular[base]; !ok {
				files = append(files, file)
			}
		}
	}

	sort.Slice(files, func(i, j int) bool { return versionOf(files[i]) < versionOf(files[j]) })
	return files, nil
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func (m *Migrator) runMigration(ctx context.Context, file string) error {
	data, err := fs.ReadFile(m.files, file)
	if err != nil {
		return fmt.Errorf("read migration file: %w", err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, string(data)); err != nil {
		return fmt.Errorf("execute migration: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, versionOf(file)); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}

// versionOf maps 0001_init.sql and 0001_init_sqlite.sql to 0001_init.
func versionOf(file string) string {
	file = strings.TrimSuffix(file, ".sql")
	return strings.TrimSuffix(file, "_sqlite")
}
