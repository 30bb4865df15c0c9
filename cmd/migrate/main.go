// Command migrate applies the embedded schema migrations to DATABASE_URL.
//
//	migrate              apply every pending migration
//	migrate up <n>       apply the next n migrations
//	migrate down <n>     roll back n migrations
//	migrate goto <v>     move to version v in either direction
//	migrate force <v>    mark the schema as version v after a failed run
//	migrate version      print the current version
package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	appmigrations "github.com/wolfman30/travel-enquiry-bot/migrations"
	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

const statementTimeout = 2 * time.Minute

type migrator interface {
	Up() error
	Steps(n int) error
	Migrate(version uint) error
	Force(version int) error
	Version() (uint, bool, error)
}

func main() {
	_ = godotenv.Load()
	logger := logging.New(os.Getenv("LOG_LEVEL"))

	m, closeAll, err := open(strings.TrimSpace(os.Getenv("DATABASE_URL")))
	if err != nil {
		logger.Error("migrate setup failed", "error", err)
		os.Exit(1)
	}
	err = run(m, os.Args[1:], os.Stdout)
	closeAll()
	if err != nil {
		logger.Error("migrate failed", "error", err)
		os.Exit(1)
	}
}

func open(databaseURL string) (*migrate.Migrate, func(), error) {
	if databaseURL == "" {
		return nil, nil, errors.New("DATABASE_URL is required")
	}
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping db: %w", err)
	}
	target, err := postgres.WithInstance(db, &postgres.Config{StatementTimeout: statementTimeout})
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("postgres driver: %w", err)
	}
	source, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", target)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("new migrator: %w", err)
	}
	return m, func() { _, _ = m.Close() }, nil
}

func run(m migrator, args []string, out io.Writer) error {
	cmd := "up"
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "up":
		if len(args) < 2 {
			return report(out, ignoreNoChange(m.Up()), "schema up to date")
		}
		n, err := countArg(args)
		if err != nil {
			return err
		}
		return report(out, ignoreNoChange(m.Steps(n)), fmt.Sprintf("applied %d migration(s)", n))
	case "down":
		n, err := countArg(args)
		if err != nil {
			return err
		}
		return report(out, ignoreNoChange(m.Steps(-n)), fmt.Sprintf("rolled back %d migration(s)", n))
	case "goto":
		v, err := numberArg(args)
		if err != nil {
			return err
		}
		return report(out, ignoreNoChange(m.Migrate(uint(v))), fmt.Sprintf("at version %d", v))
	case "force":
		v, err := numberArg(args)
		if err != nil {
			return err
		}
		return report(out, m.Force(v), fmt.Sprintf("forced version %d", v))
	case "version":
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			_, err = fmt.Fprintln(out, "no migrations applied")
			return err
		}
		if err != nil {
			return fmt.Errorf("version: %w", err)
		}
		_, err = fmt.Fprintf(out, "version %d dirty=%t\n", v, dirty)
		return err
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

func report(out io.Writer, err error, done string) error {
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, done)
	return err
}

func numberArg(args []string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%s needs a number", args[0])
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s: invalid number %q", args[0], args[1])
	}
	return n, nil
}

// countArg is numberArg for step counts, which must be positive.
func countArg(args []string) (int, error) {
	n, err := numberArg(args)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("%s needs a positive count", args[0])
	}
	return n, nil
}
