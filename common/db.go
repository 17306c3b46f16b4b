package common

import (
	"strings"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"weblog/fulltext"
)

// ConnectDb opens the store named by the config and returns the full-text
// dialect that matches it.
func ConnectDb(cfg Config) (*gorm.DB, fulltext.Dialect, error) {
	switch cfg.DBDriver {
	case "postgres":
		Log.WithField("driver", cfg.DBDriver).Info("opening postgres database")
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
		if err != nil {
			return nil, nil, errors.Wrap(err, "open postgres")
		}
		return db, fulltext.Postgres{}, nil
	case "", "sqlite":
		if cfg.DatabaseURL == "" {
			return nil, nil, errors.New("DATABASE_URL not set")
		}
		Log.WithField("path", cfg.DatabaseURL).Info("opening sqlite database")
		return OpenSQLite(cfg.DatabaseURL)
	}
	return nil, nil, errors.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
}

// OpenSQLite opens a SQLite database through the driver carrying the
// websearch SQL functions.
func OpenSQLite(dsn string) (*gorm.DB, fulltext.Dialect, error) {
	fulltext.RegisterSQLiteDriver()

	db, err := gorm.Open(sqlite.New(sqlite.Config{
		DriverName: fulltext.SQLiteDriverName,
		DSN:        dsn,
	}), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "open sqlite")
	}

	// every connection to :memory: is a separate database
	if strings.Contains(dsn, ":memory:") {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, errors.Wrap(err, "sqlite pool")
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, fulltext.SQLite{}, nil
}
