package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	bulkedit "github.com/goliatone/go-bulkedit"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	migrationsPath = "data/sql/migrations"
	sqliteDir      = "sqlite"
	upSuffix       = ".up.sql"
	downSuffix     = ".down.sql"
)

// Source is the migration tree of one SQL dialect. Versions lists the
// migration names without the .up.sql suffix, in apply order.
type Source struct {
	Dialect  string
	Path     string
	FS       fs.FS
	Versions []string
}

type RegisterFunc func(ctx context.Context, source Source) error

type options struct {
	root     fs.FS
	dialects []string
}

type Option func(*options)

// WithDialects limits registration to the given dialects.
func WithDialects(dialects ...string) Option {
	return func(o *options) {
		next := make([]string, 0, len(dialects))
		for _, dialect := range dialects {
			dialect = strings.TrimSpace(strings.ToLower(dialect))
			if dialect != "" && !slices.Contains(next, dialect) {
				next = append(next, dialect)
			}
		}
		if len(next) > 0 {
			o.dialects = next
		}
	}
}

// WithRoot reads migrations from fsys instead of the embedded tree.
func WithRoot(fsys fs.FS) Option {
	return func(o *options) {
		if fsys != nil {
			o.root = fsys
		}
	}
}

// DialectForDriver maps a database/sql driver name onto a migration dialect.
func DialectForDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("migrations: no dialect for driver %q", driver)
	}
}

// Sources returns the postgres and sqlite trees under root. Every up
// migration needs a down pair and both dialects must carry the same versions.
func Sources(root fs.FS) ([]Source, error) {
	if root == nil {
		root = bulkedit.GetMigrationsFS()
	}
	base, basePath, err := migrationsRoot(root)
	if err != nil {
		return nil, err
	}
	sqliteFS, err := fs.Sub(base, sqliteDir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite tree: %w", err)
	}

	sources := []Source{
		{Dialect: DialectPostgres, Path: basePath, FS: base},
		{Dialect: DialectSQLite, Path: joinPath(basePath, sqliteDir), FS: sqliteFS},
	}
	for i := range sources {
		versions, err := pairedVersions(sources[i].FS)
		if err != nil {
			return nil, fmt.Errorf("migrations: %s %s: %w", sources[i].Dialect, sources[i].Path, err)
		}
		sources[i].Versions = versions
	}

	postgres, sqlite := sources[0].Versions, sources[1].Versions
	for _, version := range postgres {
		if !slices.Contains(sqlite, version) {
			return nil, fmt.Errorf("migrations: %s has no sqlite counterpart", version)
		}
	}
	for _, version := range sqlite {
		if !slices.Contains(postgres, version) {
			return nil, fmt.Errorf("migrations: %s has no postgres counterpart", version)
		}
	}
	return sources, nil
}

// Register validates the migration trees and hands each selected dialect to
// registerFn. Both dialects are selected by default.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) ([]Source, error) {
	if registerFn == nil {
		return nil, fmt.Errorf("migrations: register function is required")
	}
	o := options{dialects: []string{DialectPostgres, DialectSQLite}}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	for _, dialect := range o.dialects {
		if dialect != DialectPostgres && dialect != DialectSQLite {
			return nil, fmt.Errorf("migrations: unsupported dialect %q", dialect)
		}
	}

	sources, err := Sources(o.root)
	if err != nil {
		return nil, err
	}
	selected := make([]Source, 0, len(o.dialects))
	for _, source := range sources {
		if !slices.Contains(o.dialects, source.Dialect) {
			continue
		}
		if err := registerFn(ctx, source); err != nil {
			return nil, fmt.Errorf("migrations: register %s: %w", source.Dialect, err)
		}
		selected = append(selected, source)
	}
	return selected, nil
}

func pairedVersions(fsys fs.FS) ([]string, error) {
	ups, err := fs.Glob(fsys, "*"+upSuffix)
	if err != nil {
		return nil, err
	}
	if len(ups) == 0 {
		return nil, fmt.Errorf("no %s files", upSuffix)
	}
	versions := make([]string, 0, len(ups))
	for _, name := range ups {
		version := strings.TrimSuffix(name, upSuffix)
		if _, err := fs.Stat(fsys, version+downSuffix); err != nil {
			return nil, fmt.Errorf("%s has no down migration", version)
		}
		versions = append(versions, version)
	}
	slices.Sort(versions)
	return versions, nil
}

func migrationsRoot(root fs.FS) (fs.FS, string, error) {
	if _, err := fs.Stat(root, migrationsPath); err == nil {
		sub, err := fs.Sub(root, migrationsPath)
		if err != nil {
			return nil, "", fmt.Errorf("migrations: resolve %s: %w", migrationsPath, err)
		}
		return sub, migrationsPath, nil
	}
	if ups, _ := fs.Glob(root, "*"+upSuffix); len(ups) > 0 {
		return root, ".", nil
	}
	return nil, "", fmt.Errorf("migrations: %s not found", migrationsPath)
}

func joinPath(base string, dir string) string {
	if base == "." {
		return dir
	}
	return strings.TrimSuffix(base, "/") + "/" + dir
}
