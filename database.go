package main

import (
	"strings"
	"time"

	"github.com/godocompany/meetsession-api/models"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ParseDatabaseDriver gets the gorm dialector for a DB_URL value of the form
// mysql://<dsn> or sqlite://<path>. Returns nil for anything else.
func ParseDatabaseDriver(dbURL string) gorm.Dialector {
	switch {
	case strings.HasPrefix(dbURL, "mysql://"):
		return mysql.Open(strings.TrimPrefix(dbURL, "mysql://"))
	case strings.HasPrefix(dbURL, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(dbURL, "sqlite://"))
	default:
		return nil
	}
}

// OpenDatabase connects to the database and migrates the schema
func OpenDatabase(dbURL string) (*gorm.DB, error) {

	// Get the database driver for the database string
	dbDriver := ParseDatabaseDriver(dbURL)
	if dbDriver == nil {
		return nil, errInvalidDatabaseURL
	}

	// Create the database connection
	db, err := gorm.Open(dbDriver, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}

	// Migrate the schema
	if err := db.AutoMigrate(
		&models.Meeting{},
		&models.MeetingMessage{},
		&models.MeetingFile{},
	); err != nil {
		return nil, err
	}
	return db, nil

}
