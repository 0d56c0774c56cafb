package state

import (
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

// Max number of parameters in a single SQL command
const MaxPostgresParameters = 65535

// Storage aggregates the postgres tables behind the persistence and query/read
// endpoints.
type Storage struct {
	DB                *sqlx.DB
	BehaviorDataTable *BehaviorDataTable
	TransactionsTable *TransactionsTable
	UsersTable        *UsersTable
	AlertsTable       *AlertsTable
	ProfilesTable     *ProfilesTable
}

func NewStorage(postgresURI string) *Storage {
	db, err := sqlx.Open("postgres", postgresURI)
	if err != nil {
		sentry.CaptureException(err)
		logger.Panic().Err(err).Str("uri", postgresURI).Msg("failed to open SQL DB")
	}
	return NewStorageWithDB(db)
}

func NewStorageWithDB(db *sqlx.DB) *Storage {
	if err := Migrate(db); err != nil {
		sentry.CaptureException(err)
		logger.Panic().Err(err).Msg("failed to run storage migrations")
	}
	return &Storage{
		DB:                db,
		BehaviorDataTable: NewBehaviorDataTable(db),
		TransactionsTable: NewTransactionsTable(db),
		UsersTable:        NewUsersTable(db),
		AlertsTable:       NewAlertsTable(db),
		ProfilesTable:     NewProfilesTable(db),
	}
}

func (s *Storage) Teardown() {
	if err := s.DB.Close(); err != nil {
		panic("Storage.Teardown: " + err.Error())
	}
}
