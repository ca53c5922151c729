package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"viola-joke/internal/config"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var (
	flags = flag.NewFlagSet("migrator", flag.ExitOnError)
	dir   = flags.String("dir", "migrations", "directory with migration files")
)

func main() {
	flags.Usage = usage
	flags.Parse(os.Args[1:])
	args := flags.Args()

	if len(args) < 1 {
		flags.Usage()
		os.Exit(1)
	}

	// Only the database section matters here, so the full config (and its
	// validation of bot and storage settings) is skipped.
	var env struct {
		Database config.DatabaseConfig `env-prefix:"DB_"`
	}
	if err := cleanenv.ReadEnv(&env); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read database config: %v\n", err)
		os.Exit(1)
	}
	dbCfg := env.Database

	ctx := context.Background()

	db, err := sql.Open("pgx", dbCfg.ConnectionString())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set dialect: %v\n", err)
		os.Exit(1)
	}
	goose.SetTableName("schema_migrations")

	if err := goose.RunContext(ctx, args[0], db, *dir, args[1:]...); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(usagePrefix)
	flags.PrintDefaults()
	fmt.Println(usageCommands)
}

var (
	usagePrefix = `Usage: migrator [OPTIONS] COMMAND

Connection settings come from the environment:
DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME

Options:
`

	usageCommands = `
Commands:
    up                   Migrate the database to the most recent version available
    up-by-one            Migrate the database up by 1
    up-to VERSION        Migrate the database to a specific VERSION
    down                 Roll back the version by 1
    down-to VERSION      Roll back to a specific VERSION
    redo                 Re-run the latest migration
    reset                Roll back all migrations
    status               Dump the migration status
    version              Print the current version
    create NAME [sql|go] Creates new migration file with the current timestamp
    fix                  Apply sequential ordering to migrations
`
)
