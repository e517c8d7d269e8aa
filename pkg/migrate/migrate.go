// Package migrate applies the goose SQL migrations that define the Postgres
// schema. The default directory is embedded into every binary so the api can
// auto-migrate in dev without the source tree.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
)

const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// EmbeddedFS returns the compiled-in migrations rooted at the sql files.
func EmbeddedFS() fs.FS {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// SourceFS resolves dir to the embedded migrations when it names DefaultDir
// and to the local filesystem otherwise.
func SourceFS(dir string) fs.FS {
	if dir == "" || filepath.Clean(dir) == filepath.Clean(DefaultDir) {
		return EmbeddedFS()
	}
	return os.DirFS(dir)
}

// Migrator drives one database through the migrations in a source directory.
// It never closes the *sql.DB it was given.
type Migrator struct {
	provider *goose.Provider
}

func New(db *sql.DB, dir string) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, SourceFS(dir))
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Migrator{provider: provider}, nil
}

// Result is one applied or rolled back migration.
type Result struct {
	Version   int64
	Path      string
	Direction string
}

func (m *Migrator) Up(ctx context.Context) ([]Result, error) {
	results, err := m.provider.Up(ctx)
	return collect(results), wrap("up", err)
}

func (m *Migrator) Down(ctx context.Context) ([]Result, error) {
	result, err := m.provider.Down(ctx)
	if errors.Is(err, goose.ErrNoNextVersion) {
		return nil, nil
	}
	return collect([]*goose.MigrationResult{result}), wrap("down", err)
}

// Redo rolls back the latest migration and applies it again.
func (m *Migrator) Redo(ctx context.Context) ([]Result, error) {
	down, err := m.Down(ctx)
	if err != nil || len(down) == 0 {
		return down, err
	}
	up, err := m.provider.UpByOne(ctx)
	return append(down, collect([]*goose.MigrationResult{up})...), wrap("redo", err)
}

// Reset rolls back every applied migration.
func (m *Migrator) Reset(ctx context.Context) ([]Result, error) {
	results, err := m.provider.DownTo(ctx, 0)
	return collect(results), wrap("reset", err)
}

// MigrateTo moves the schema up or down until target is the newest applied
// version.
func (m *Migrator) MigrateTo(ctx context.Context, target int64) ([]Result, error) {
	current, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return nil, wrap("version", err)
	}
	var results []*goose.MigrationResult
	switch {
	case current == target:
		return nil, nil
	case current < target:
		results, err = m.provider.UpTo(ctx, target)
	default:
		results, err = m.provider.DownTo(ctx, target)
	}
	return collect(results), wrap(fmt.Sprintf("migrate to %d", target), err)
}

// Status is the applied state of one migration file.
type Status struct {
	Version int64
	Path    string
	Applied bool
}

func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, wrap("status", err)
	}
	out := make([]Status, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, Status{Version: s.Source.Version, Path: s.Source.Path, Applied: s.State == goose.StateApplied})
	}
	return out, nil
}

func (m *Migrator) Version(ctx context.Context) (int64, error) {
	v, err := m.provider.GetDBVersion(ctx)
	return v, wrap("version", err)
}

func collect(results []*goose.MigrationResult) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		out = append(out, Result{Version: r.Source.Version, Path: r.Source.Path, Direction: r.Direction})
	}
	return out
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("goose %s: %w", op, err)
}
