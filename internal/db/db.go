// internal/db/db.go
package db

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"sort"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Open connects to Postgres and waits for the first ping.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("database url is empty")
	}
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	conn.SetMaxOpenConns(20)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	log.Info().Msg("connected to database")
	return conn, nil
}

// Migrate applies every embedded migration in file name order. Each file is
// written to be re-runnable.
func Migrate(ctx context.Context, conn *sql.DB) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return errors.Wrap(err, "list migrations")
	}
	sort.Strings(names)
	for _, name := range names {
		content, err := migrations.ReadFile(name)
		if err != nil {
			return errors.Wrapf(err, "read %s", name)
		}
		if _, err := conn.ExecContext(ctx, string(content)); err != nil {
			return errors.Wrapf(err, "apply %s", name)
		}
		log.Info().Str("migration", name).Msg("applied")
	}
	return nil
}
