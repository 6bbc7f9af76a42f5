package sqlite

import (
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	bindata "github.com/golang-migrate/migrate/v4/source/go_bindata"
	"github.com/jmoiron/sqlx"
)

const walJournalMode = "_journal_mode=WAL"

// New opens the sqlite database at dataSourceName and migrates its schema to
// the latest version using the given assets. On-disk databases get WAL mode;
// in-memory ones are left alone since WAL makes no sense there.
func New(dataSourceName string, assetNames []string, asset func(name string) ([]byte, error)) (*sqlx.DB, error) {
	if !isInMemory(dataSourceName) {
		dataSourceName += "?" + walJournalMode
	}
	db, err := sqlx.Connect("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DB: %v", err)
	}

	s := bindata.Resource(assetNames, asset)
	sourceDriver, err := bindata.WithInstance(s)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB source driver: %v", err)
	}

	dbDriver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to init DB migration driver: %v", err)
	}

	m, err := migrate.NewWithInstance("go-bindata", sourceDriver, "sqlite3", dbDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB migration instance: %v", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return nil, fmt.Errorf("failed to migrate DB to the latest version: %v", err)
	}

	return db, nil
}

func isInMemory(dataSourceName string) bool {
	return dataSourceName == ":memory:" || strings.Contains(dataSourceName, "mode=memory")
}
