package state

import (
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	_ "github.com/trustsignal/behaviorsync/state/migrations"
)

// Migrate brings the schema up to date. Go migrations register themselves via
// init() in the migrations package.
func Migrate(db *sqlx.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	goose.SetLogger(gooseLogger{})
	return goose.Up(db.DB, ".")
}

type gooseLogger struct{}

func (gooseLogger) Fatalf(format string, v ...interface{}) {
	logger.Fatal().Msgf(format, v...)
}

func (gooseLogger) Printf(format string, v ...interface{}) {
	logger.Info().Msgf(format, v...)
}
