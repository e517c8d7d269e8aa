package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/rfqmarket-backend/pkg/config"
	"github.com/angelmondragon/rfqmarket-backend/pkg/db"
	"github.com/angelmondragon/rfqmarket-backend/pkg/logger"
	"github.com/angelmondragon/rfqmarket-backend/pkg/migrate"
)

type options struct {
	dir     string
	name    string
	version string
	env     config.AppConfig
}

// command is one migrate subcommand. Offline commands never open a database.
type command struct {
	offline bool
	run     func(ctx context.Context, sqlDB *sql.DB, opts options) error
}

var commands = map[string]command{
	"create": {offline: true, run: func(_ context.Context, _ *sql.DB, opts options) error {
		if opts.name == "" {
			return errors.New("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name, time.Now())
		if err != nil {
			return fmt.Errorf("create migration: %w", err)
		}
		fmt.Println("created migration:", path)
		return nil
	}},
	"validate": {offline: true, run: func(_ context.Context, _ *sql.DB, opts options) error {
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return fmt.Errorf("migration validation failed: %w", err)
		}
		fmt.Println("migration validation passed")
		return nil
	}},
	"up":   applying((*migrate.Migrator).Up),
	"down": applying((*migrate.Migrator).Down),
	"redo": applying((*migrate.Migrator).Redo),
	"reset": {run: func(ctx context.Context, sqlDB *sql.DB, opts options) error {
		if !opts.env.IsDev() {
			return fmt.Errorf("reset is only allowed when %s=%s", config.EnvAppEnv, config.AppEnvDev)
		}
		return applying((*migrate.Migrator).Reset).run(ctx, sqlDB, opts)
	}},
	"version": {run: func(ctx context.Context, sqlDB *sql.DB, opts options) error {
		if opts.version == "" {
			return errors.New("missing -version for version command")
		}
		target, err := strconv.ParseInt(opts.version, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid -version %q (expected YYYYMMDDHHMMSS): %w", opts.version, err)
		}
		return applying(func(m *migrate.Migrator, ctx context.Context) ([]migrate.Result, error) {
			return m.MigrateTo(ctx, target)
		}).run(ctx, sqlDB, opts)
	}},
	"status": {run: func(ctx context.Context, sqlDB *sql.DB, opts options) error {
		migrator, err := migrate.New(sqlDB, opts.dir)
		if err != nil {
			return err
		}
		statuses, err := migrator.Status(ctx)
		if err != nil {
			return err
		}
		for _, s := range statuses {
			state := "pending"
			if s.Applied {
				state = "applied"
			}
			fmt.Printf("%-8s %d %s\n", state, s.Version, s.Path)
		}
		return nil
	}},
}

// applying wraps a Migrator step and prints each migration it touched.
func applying(step func(*migrate.Migrator, context.Context) ([]migrate.Result, error)) command {
	return command{run: func(ctx context.Context, sqlDB *sql.DB, opts options) error {
		migrator, err := migrate.New(sqlDB, opts.dir)
		if err != nil {
			return err
		}
		results, err := step(migrator, ctx)
		for _, r := range results {
			fmt.Printf("%-4s %d %s\n", r.Direction, r.Version, r.Path)
		}
		if len(results) == 0 && err == nil {
			fmt.Println("nothing to do")
		}
		return err
	}}
}

func commandNames() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmdName := flag.String("cmd", "up", "migration command: "+commandNames())
	dir := flag.String("dir", migrate.DefaultDir, "goose migrations directory")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	cmd, ok := commands[*cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown -cmd value %q, want one of %s\n", *cmdName, commandNames())
		os.Exit(1)
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.ForService("migrate", cfg.App)
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmdName,
		"dir": *dir,
	})
	opts := options{dir: *dir, name: *name, version: *version, env: cfg.App}

	var sqlDB *sql.DB
	if !cmd.offline {
		dbClient, err := db.New(ctx, cfg.DB, logg)
		requireResource(ctx, logg, "database", err)
		defer dbClient.Close()

		sqlDB, err = dbClient.DB().DB()
		requireResource(ctx, logg, "sql database", err)
	}

	logg.Info(ctx, "migrate ready")
	if err := cmd.run(ctx, sqlDB, opts); err != nil {
		logg.Error(ctx, "migration command failed", err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
