package store

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// driver opens a dialector and sizes the connection pool for one backend
type driver struct {
	open      func(dsn string) gorm.Dialector
	configure func(db *gorm.DB) error
}

var drivers = map[string]driver{
	// SQLite serialises writers anyway; a single connection also keeps
	// ":memory:" databases alive and shared for the lifetime of the pool.
	DriverSQLite: {
		open: sqlite.Open,
		configure: func(db *gorm.DB) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			sqlDB.SetMaxOpenConns(1)
			return nil
		},
	},
	DriverPostgres: {
		open: postgres.Open,
		configure: func(db *gorm.DB) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			sqlDB.SetMaxOpenConns(25)
			sqlDB.SetMaxIdleConns(5)
			sqlDB.SetConnMaxLifetime(30 * time.Minute)
			return nil
		},
	},
}

// lookupDriver returns the backend registered under name
func lookupDriver(name string) (driver, error) {
	d, ok := drivers[name]
	if !ok {
		return driver{}, fmt.Errorf("unsupported database driver: %s", name)
	}
	return d, nil
}
