package migrations

import (
	"database/sql"
	_ "embed"

	"github.com/mintline/marketwatch/internal/db"
	"github.com/mintline/marketwatch/internal/logger"
)

//go:embed 001_market_entities.sql
var mig001 string

//go:embed 002_dead_letters.sql
var mig002 string

// RunMigrations applies the entity store schema to the given database.
func RunMigrations(database *sql.DB, log *logger.Logger) error {
	migrations := []db.Migration{
		{
			ID:  "001_market_entities.sql",
			SQL: mig001,
		},
		{
			ID:  "002_dead_letters.sql",
			SQL: mig002,
		},
	}

	return db.RunMigrations(database, log, migrations)
}
