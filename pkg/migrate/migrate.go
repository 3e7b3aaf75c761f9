package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

// DefaultDir is relative to the repository root, where the binaries are started.
const DefaultDir = "pkg/migrate/migrations"

// Commands lists what Migrator.Run accepts.
var Commands = []string{"up", "up-by-one", "down", "redo", "status", "version"}

// Migrator applies the Postgres migrations in a directory through a goose provider.
type Migrator struct {
	provider *goose.Provider
	logg     *logger.Logger
}

func New(db *sql.DB, dir string, logg *logger.Logger) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if dir == "" {
		return nil, errors.New("migrations dir is required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Migrator{provider: provider, logg: logg}, nil
}

// Run executes command. version is only read by "version", which moves the schema up
// or down to the given YYYYMMDDHHMMSS migration.
func (m *Migrator) Run(ctx context.Context, command, version string) error {
	switch command {
	case "up":
		results, err := m.provider.Up(ctx)
		m.logResults(ctx, results...)
		return wrapCommand(command, err)
	case "up-by-one":
		result, err := m.provider.UpByOne(ctx)
		m.logResults(ctx, result)
		return wrapCommand(command, err)
	case "down":
		result, err := m.provider.Down(ctx)
		m.logResults(ctx, result)
		return wrapCommand(command, err)
	case "redo":
		down, err := m.provider.Down(ctx)
		m.logResults(ctx, down)
		if err != nil {
			return wrapCommand(command, err)
		}
		up, err := m.provider.UpByOne(ctx)
		m.logResults(ctx, up)
		return wrapCommand(command, err)
	case "status":
		return wrapCommand(command, m.logStatus(ctx))
	case "version":
		return wrapCommand(command, m.migrateTo(ctx, version))
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
}

func (m *Migrator) migrateTo(ctx context.Context, raw string) error {
	if raw == "" {
		return errors.New("target version is required")
	}
	target, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", raw, err)
	}
	current, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("read db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current < target:
		results, err = m.provider.UpTo(ctx, target)
	case current > target:
		results, err = m.provider.DownTo(ctx, target)
	}
	m.logResults(ctx, results...)
	return err
}

func (m *Migrator) logStatus(ctx context.Context) error {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return err
	}
	for _, st := range statuses {
		fields := map[string]any{
			"version": st.Source.Version,
			"file":    st.Source.Path,
			"state":   string(st.State),
		}
		if !st.AppliedAt.IsZero() {
			fields["applied_at"] = st.AppliedAt
		}
		m.info(m.withFields(ctx, fields), "migration status")
	}
	return nil
}

func (m *Migrator) logResults(ctx context.Context, results ...*goose.MigrationResult) {
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		m.info(m.withFields(ctx, map[string]any{
			"version":     res.Source.Version,
			"file":        res.Source.Path,
			"direction":   res.Direction,
			"duration_ms": res.Duration.Milliseconds(),
		}), "migration applied")
	}
}

func (m *Migrator) withFields(ctx context.Context, fields map[string]any) context.Context {
	if m.logg == nil {
		return ctx
	}
	return m.logg.WithFields(ctx, fields)
}

func (m *Migrator) info(ctx context.Context, msg string) {
	if m.logg != nil {
		m.logg.Info(ctx, msg)
	}
}

func wrapCommand(command string, err error) error {
	if err == nil || errors.Is(err, goose.ErrNoNextVersion) {
		return nil
	}
	return fmt.Errorf("goose %s: %w", command, err)
}
