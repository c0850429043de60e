package database

import (
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/config"
)

// Connect opens the configured database and tunes the pool. MySQL is the
// production store; the CGO-free sqlite driver serves local runs and tests.
func Connect(cfg *config.DBConfig) (*sqlx.DB, error) {
	switch cfg.Driver {
	case "mysql":
		db, err := sqlx.Connect("mysql", cfg.MySQLDSN())
		if err != nil {
			return nil, fmt.Errorf("connect mysql: %w", err)
		}
		db.SetMaxIdleConns(5)
		db.SetMaxOpenConns(20)
		db.SetConnMaxLifetime(time.Hour)
		return db, nil

	case "sqlite":
		dsn := cfg.SQLitePath + "?" + url.Values{
			"_pragma": []string{
				"busy_timeout(30000)",
				"journal_mode(WAL)",
				"foreign_keys(ON)",
			},
		}.Encode()
		db, err := sqlx.Connect("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("connect sqlite: %w", err)
		}
		// SQLite works best with a single writer connection.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		return db, nil

	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}
}

// Open connects and applies pending migrations.
func Open(cfg *config.DBConfig) (*sqlx.DB, error) {
	db, err := Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	log.Info().Str("driver", cfg.Driver).Msg("database ready")
	return db, nil
}
