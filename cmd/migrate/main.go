package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/db"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/migrate"
)

const usage = "up|down|status|pending|version|create|validate"

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: "+usage)
	dir := flag.String("dir", "", "migrations directory; blank uses the set compiled into this binary")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source := "embedded"
	if strings.TrimSpace(*dir) != "" {
		source = *dir
	}

	// create and validate work on files only.
	switch *cmd {
	case "create":
		if *name == "" {
			fail("missing -name for create")
		}
		target := *dir
		if strings.TrimSpace(target) == "" {
			target = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(target, *name)
		if err != nil {
			fail("failed to create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return

	case "validate":
		if err := migrate.Validate(migrate.Source(*dir)); err != nil {
			fail("migration validation failed: %v", err)
		}
		fmt.Printf("migration validation passed (%s)\n", source)
		return
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.ForService("migrate", cfg.App)
	ctx = logg.WithFields(ctx, map[string]any{
		"env":    cfg.App.Env,
		"cmd":    *cmd,
		"source": source,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)

	fsys := migrate.Source(*dir)
	logg.Info(ctx, "migrate ready")

	switch *cmd {
	case "up":
		applied, err := migrate.Up(ctx, sqlDB, fsys)
		if err != nil {
			fail("%v", err)
		}
		if len(applied) == 0 {
			fmt.Println("no pending migrations")
			return
		}
		for _, v := range applied {
			fmt.Println("applied", v)
		}

	case "down":
		v, err := migrate.Down(ctx, sqlDB, fsys)
		if err != nil {
			fail("%v", err)
		}
		fmt.Println("rolled back", v)

	case "status":
		rows, err := migrate.Statuses(ctx, sqlDB, fsys)
		if err != nil {
			fail("%v", err)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tAPPLIED AT\tFILE")
		for _, row := range rows {
			appliedAt := row.AppliedAt
			if !row.Applied {
				appliedAt = "pending"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\n", row.Version, appliedAt, row.Path)
		}
		_ = tw.Flush()

	case "pending":
		pending, err := migrate.HasPending(ctx, sqlDB, fsys)
		if err != nil {
			fail("%v", err)
		}
		if pending {
			// Non-zero exit lets deploy scripts gate on it.
			fmt.Println("pending migrations")
			os.Exit(1)
		}
		fmt.Println("schema up to date")

	case "version":
		if *version == "" {
			fail("missing -version for version command")
		}
		if err := migrate.MigrateToVersion(ctx, sqlDB, fsys, *version); err != nil {
			fail("%v", err)
		}
		fmt.Println("schema at version", *version)

	default:
		fail("unknown -cmd value %q (want %s)", *cmd, usage)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
