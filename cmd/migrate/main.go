package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/tripdesk/backend/internal/infrastructure/config"
	"github.com/tripdesk/backend/internal/infrastructure/logger"
	"github.com/tripdesk/backend/internal/infrastructure/migration"
)

const defaultMigrationsPath = "migrations"

func main() {
	var (
		migrationsPath string
		logLevel       string
	)
	flag.StringVar(&migrationsPath, "path", "", "Path to migrations directory (default: ./migrations)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	if err := run(args, migrationsPath, log); err != nil {
		log.Fatal("Migration command failed", zap.Error(err))
	}
}

func run(args []string, migrationsPath string, log *zap.Logger) error {
	command := args[0]

	path, err := resolveMigrationsPath(migrationsPath)
	if err != nil {
		return err
	}

	log.Info("Migration CLI started",
		zap.String("command", command),
		zap.String("migrations_path", path),
	)

	// create and list work off the filesystem alone
	switch command {
	case "create":
		return createMigration(args[1:], path, log)
	case "list":
		return listMigrations(path, log)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	m, err := migration.New(db, path, log)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	switch command {
	case "up":
		return m.Up()

	case "down":
		return m.Down()

	case "step":
		if len(args) < 2 {
			return fmt.Errorf("step count required, usage: migrate step <n>")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid step count %q", args[1])
		}
		return m.Steps(n)

	case "goto":
		if len(args) < 2 {
			return fmt.Errorf("version required, usage: migrate goto <version>")
		}
		version, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version number %q", args[1])
		}
		return m.GoTo(uint(version))

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		if version == 0 {
			log.Info("No migrations applied")
		} else {
			log.Info("Current migration version",
				zap.Uint("version", version),
				zap.Bool("dirty", dirty),
			)
		}
		return nil

	case "force":
		if len(args) < 2 {
			return fmt.Errorf("version required, usage: migrate force <version>")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version number %q", args[1])
		}
		log.Warn("Forcing migration version - use with caution!")
		return m.Force(version)

	case "drop":
		if !hasConfirmFlag(args[1:]) {
			return fmt.Errorf("drop cancelled, use 'migrate drop -confirm' to confirm")
		}
		return m.Drop()

	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func createMigration(args []string, path string, log *zap.Logger) error {
	if len(args) == 0 {
		return fmt.Errorf("migration name required, usage: migrate create <name> [description]")
	}
	name := args[0]
	description := ""
	if len(args) > 1 {
		description = args[1]
	}

	mf, err := migration.CreateMigration(path, name, description)
	if err != nil {
		return err
	}

	log.Info("Migration created successfully",
		zap.String("version", mf.Version),
		zap.String("up_file", mf.UpPath),
		zap.String("down_file", mf.DownPath),
	)
	return nil
}

func listMigrations(path string, log *zap.Logger) error {
	migrations, err := migration.ListMigrations(path)
	if err != nil {
		return err
	}
	if len(migrations) == 0 {
		log.Info("No migrations found")
		return nil
	}

	log.Info("Available migrations", zap.Int("count", len(migrations)))
	for _, m := range migrations {
		fmt.Println("  -", m)
	}
	return nil
}

// resolveMigrationsPath falls back from the working directory to the
// directory next to the binary, so the CLI works both from the repo
// root and from a deployed artifact.
func resolveMigrationsPath(path string) (string, error) {
	if path == "" {
		path = defaultMigrationsPath
		if _, err := os.Stat(path); err != nil {
			if execPath, err := os.Executable(); err == nil {
				candidate := filepath.Join(filepath.Dir(execPath), "..", "..", defaultMigrationsPath)
				if _, err := os.Stat(candidate); err == nil {
					path = candidate
				}
			}
		}
	}
	return filepath.Abs(path)
}

func hasConfirmFlag(args []string) bool {
	for _, arg := range args {
		if arg == "-confirm" || arg == "--confirm" {
			return true
		}
	}
	return false
}

func printUsage() {
	fmt.Println(`TripDesk Database Migration Tool

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down                  Roll back all migrations
  step <n>              Apply n migrations (positive=up, negative=down)
  goto <version>        Migrate to a specific version
  version               Show current migration version
  force <version>       Force set migration version (use with caution)
  drop -confirm         Drop all database objects (DANGEROUS)
  create <name> [desc]  Create a new migration file pair
  list                  List available migrations

Flags:
  -path string          Path to migrations directory (default: ./migrations)
  -log-level string     Log level: debug, info, warn, error (default: info)

Environment Variables:
  TRIPDESK_DATABASE_HOST, TRIPDESK_DATABASE_PORT, TRIPDESK_DATABASE_USER,
  TRIPDESK_DATABASE_PASSWORD, TRIPDESK_DATABASE_NAME, TRIPDESK_DATABASE_SSLMODE

Examples:
  # Apply all pending migrations
  migrate up

  # Roll back the last migration
  migrate step -1

  # Create a new migration
  migrate create add_invoices_table "Create invoices table"

  # Check current version
  migrate version`)
}
