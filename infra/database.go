package infra

import (
	"errors"
	"fmt"
	"time"

	"github.com/amirasaad/retailpay/pkg/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDBConnection opens the database named by cnf. PostgreSQL is the store
// of record; sqlite is accepted for local runs and tests, where DATABASE_URL
// defaults to a private in-memory database.
func NewDBConnection(
	cnf *config.DB,
	appEnv string,
) (*gorm.DB, error) {
	if cnf == nil {
		return nil, errors.New("database config is missing")
	}

	var logMode logger.LogLevel
	if appEnv == "development" {
		logMode = logger.Warn
	} else {
		logMode = logger.Silent
	}
	gormCfg := &gorm.Config{
		Logger:                 logger.Default.LogMode(logMode),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	}

	var (
		connection *gorm.DB
		err        error
	)
	switch cnf.Driver {
	case "", "postgres":
		if cnf.Url == "" {
			return nil, errors.New("DATABASE_URL is not set")
		}
		connection, err = gorm.Open(postgres.Open(cnf.Url), gormCfg)
	case "sqlite":
		dsn := cnf.Url
		if dsn == "" {
			dsn = "file:retailpay?mode=memory&cache=shared"
		}
		connection, err = gorm.Open(sqlite.Open(dsn), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", cnf.Driver)
	}
	if err != nil {
		return nil, err
	}

	sqlDB, err := connection.DB()
	if err != nil {
		return nil, err
	}
	if cnf.Driver == "sqlite" {
		// sqlite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
		return connection, nil
	}
	maxConns := cnf.MaxOpenConns
	if maxConns <= 0 {
		maxConns = 25
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	return connection, nil
}

// MigrationsURL turns a migrations directory into a golang-migrate source URL.
func MigrationsURL(path string) string {
	if path == "" {
		path = "internal/migrations"
	}
	if len(path) > 7 && path[:7] == "file://" {
		return path
	}
	return "file://" + path
}
