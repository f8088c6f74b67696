package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/mintline/marketwatch/internal/logger"
	_ "github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"
)

const upDownSeparator = "-- +migrate Up"

// Migration is one embedded SQL migration. The SQL text contains the Down
// section first, then the "-- +migrate Up" separator, then the Up section.
type Migration struct {
	ID  string
	SQL string
}

// RunMigrations executes pending migrations to keep the database
// updated with the latest schema.
func RunMigrations(db *sql.DB, log *logger.Logger, migrationsParam []Migration) error {
	migs := &migrate.MemoryMigrationSource{Migrations: []*migrate.Migration{}}

	for _, m := range migrationsParam {
		splitted := strings.Split(m.SQL, upDownSeparator)
		if len(splitted) < 2 {
			return fmt.Errorf("migration %s missing '-- +migrate Up' separator", m.ID)
		}

		downSQL := splitted[0]
		if idx := strings.Index(downSQL, "-- +migrate Down"); idx != -1 {
			downSQL = downSQL[idx+len("-- +migrate Down"):]
		}

		migs.Migrations = append(migs.Migrations, &migrate.Migration{
			Id:   m.ID,
			Up:   []string{strings.TrimSpace(splitted[1])},
			Down: []string{strings.TrimSpace(downSQL)},
		})
	}

	n, err := migrate.Exec(db, "sqlite3", migs, migrate.Up)
	if err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	log.Debugf("successfully ran %d migrations", n)
	return nil
}
