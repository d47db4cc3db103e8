// Package migrate applies the embedded users/vaults schema with goose.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
	"github.com/pressly/goose/v3/lock"
	_ "modernc.org/sqlite"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

// VersionTable records applied schema versions.
const VersionTable = "schema_migrations"

// Options defines how to run migrations.
type Options struct {
	Driver  string      // sqlite or postgres
	DSN     string      // file path for sqlite, connection string for postgres
	Command string      // up, up-by-one, down, status, version, up-to, down-to, redo, reset
	Target  int64       // used with up-to/down-to
	Logger  *log.Logger // optional; results are printed here
}

// Run executes one migration command. Empty Driver or DSN is a no-op.
// On postgres the run holds an advisory lock, so instances that start
// together apply each version once.
func Run(ctx context.Context, opts Options) error {
	if strings.TrimSpace(opts.Driver) == "" || strings.TrimSpace(opts.DSN) == "" {
		return nil
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[migrate] ", log.LstdFlags)
	}

	db, err := sql.Open(driverName(opts.Driver), opts.DSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	p, err := newProvider(db, opts.Driver, logger)
	if err != nil {
		return err
	}

	var results []*goose.MigrationResult
	switch strings.ToLower(strings.TrimSpace(opts.Command)) {
	case "", "up":
		results, err = p.Up(ctx)
	case "up-by-one":
		results, err = one(p.UpByOne(ctx))
	case "up-to":
		results, err = p.UpTo(ctx, opts.Target)
	case "down":
		results, err = one(p.Down(ctx))
	case "down-to":
		results, err = p.DownTo(ctx, opts.Target)
	case "reset":
		results, err = p.DownTo(ctx, 0)
	case "redo":
		results, err = redo(ctx, p)
	case "version":
		v, verr := p.GetDBVersion(ctx)
		if verr != nil {
			return fmt.Errorf("read version: %w", verr)
		}
		logger.Printf("schema version %d", v)
		return nil
	case "status":
		return printStatus(ctx, p, logger)
	default:
		return fmt.Errorf("unknown migration command: %s", opts.Command)
	}
	for _, r := range results {
		logger.Printf("%s", r)
	}
	if errors.Is(err, goose.ErrNoNextVersion) {
		logger.Printf("nothing to %s", opts.Command)
		return nil
	}
	return err
}

// Pending reports whether the database lags behind the embedded schema.
func Pending(ctx context.Context, driver, dsn string) (bool, error) {
	db, err := sql.Open(driverName(driver), dsn)
	if err != nil {
		return false, fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	p, err := newProvider(db, driver, log.New(os.Stderr, "", 0))
	if err != nil {
		return false, err
	}
	return p.HasPending(ctx)
}

func newProvider(db *sql.DB, driver string, logger *log.Logger) (*goose.Provider, error) {
	dialect := dialectFor(driver)
	st, err := database.NewStore(dialect, VersionTable)
	if err != nil {
		return nil, fmt.Errorf("migration store: %w", err)
	}
	dir, err := fs.Sub(migrationsFS, "sql")
	if err != nil {
		return nil, err
	}
	opts := []goose.ProviderOption{
		goose.WithStore(st),
		goose.WithLogger(logger),
		goose.WithDisableGlobalRegistry(true),
	}
	if dialect == database.DialectPostgres {
		locker, err := lock.NewPostgresSessionLocker()
		if err != nil {
			return nil, fmt.Errorf("session locker: %w", err)
		}
		opts = append(opts, goose.WithSessionLocker(locker))
	}
	return goose.NewProvider("", db, dir, opts...)
}

func one(r *goose.MigrationResult, err error) ([]*goose.MigrationResult, error) {
	if r == nil {
		return nil, err
	}
	return []*goose.MigrationResult{r}, err
}

// redo rolls back the latest version and applies it again.
func redo(ctx context.Context, p *goose.Provider) ([]*goose.MigrationResult, error) {
	down, err := p.Down(ctx)
	if err != nil {
		return nil, err
	}
	up, err := p.ApplyVersion(ctx, down.Source.Version, true)
	return []*goose.MigrationResult{down, up}, err
}

func printStatus(ctx context.Context, p *goose.Provider, logger *log.Logger) error {
	statuses, err := p.Status(ctx)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	for _, s := range statuses {
		applied := "-"
		if s.State == goose.StateApplied {
			applied = s.AppliedAt.Format("2006-01-02 15:04:05")
		}
		logger.Printf("%-8s %-20s %s", s.State, applied, s.Source.Path)
	}
	return nil
}

// driverName maps a configured driver to its registered database/sql name.
func driverName(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return "postgres"
	}
}

func dialectFor(driver string) database.Dialect {
	if driverName(driver) == "sqlite" {
		return database.DialectSQLite3
	}
	return database.DialectPostgres
}

// RunFromEnv runs migrations when SYNCD_MIGRATE_ON_START is truthy.
//
//   - SYNCD_MIGRATE_DRIVER: sqlite or postgres (default postgres)
//   - SYNCD_MIGRATE_DSN: connection string
//   - SYNCD_MIGRATE_CMD: command, default up
//   - SYNCD_MIGRATE_TARGET: version for up-to/down-to
func RunFromEnv(ctx context.Context) error {
	if !isTruthy(os.Getenv("SYNCD_MIGRATE_ON_START")) {
		return nil
	}
	return Run(ctx, OptionsFromEnv())
}

// OptionsFromEnv reads the SYNCD_MIGRATE_* variables.
func OptionsFromEnv() Options {
	opts := Options{
		Driver:  strings.TrimSpace(os.Getenv("SYNCD_MIGRATE_DRIVER")),
		DSN:     strings.TrimSpace(os.Getenv("SYNCD_MIGRATE_DSN")),
		Command: strings.TrimSpace(os.Getenv("SYNCD_MIGRATE_CMD")),
	}
	if opts.Driver == "" {
		opts.Driver = "postgres"
	}
	if v := strings.TrimSpace(os.Getenv("SYNCD_MIGRATE_TARGET")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			opts.Target = n
		}
	}
	return opts
}

func isTruthy(v string) bool {
	s := strings.TrimSpace(strings.ToLower(v))
	return s == "1" || s == "true" || s == "yes" || s == "y"
}
