// Command migrate applies or inspects the SQL schema migrations.
//
//	migrate [--dsn DSN] [--dir DIR] up|down|version|force N|to N
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"ms-club-ticketing/internal/config"
	"ms-club-ticketing/internal/database"
	"ms-club-ticketing/internal/database/migrations"
	"ms-club-ticketing/internal/logger"
)

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	flagSet := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	dsn := flagSet.String("dsn", cfg.Database.DSN, "PostgreSQL connection string")
	dir := flagSet.String("dir", cfg.Database.MigrationsDir, "directory holding the .up.sql/.down.sql files")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	args := flagSet.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: migrate [--dsn DSN] [--dir DIR] up|down|version|force N|to N")
		flagSet.PrintDefaults()
		os.Exit(2)
	}

	log, err := logger.NewLogger(cfg.LogDir, "migrate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}

	dbCfg := cfg.Database
	dbCfg.DSN = *dsn
	bunDB, err := database.Open(context.Background(), dbCfg, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.Options{Dir: *dir}, log)
	defer runner.Close()

	if err := run(runner, args); err != nil {
		log.Fatal("MIGRATE", err.Error())
	}
}

func run(runner *migrations.Runner, args []string) error {
	switch args[0] {
	case "up":
		return runner.Up()
	case "down":
		return runner.Down()
	case "version":
		v, dirty, err := runner.Version()
		if err != nil {
			return err
		}
		fmt.Printf("version %d dirty=%t\n", v, dirty)
		return nil
	case "force", "to":
		if len(args) < 2 {
			return fmt.Errorf("%s needs a version", args[0])
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 0 {
			return fmt.Errorf("invalid version %q", args[1])
		}
		if args[0] == "force" {
			return runner.Force(n)
		}
		return runner.To(uint(n))
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}
