// Package db owns the Postgres handle the payout engine runs on. Payouts
// and the reserve ledger are written with compare-and-set updates and
// append-only inserts, so correctness lives in SQL semantics, not in the
// ORM; this package keeps the handle boring and the pool bounded.
package db

import (
	"database/sql"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"payouts/internal/config"
)

// DB bundles the gorm handle with the underlying sql.DB so pool tuning and
// health checks don't have to unwrap gorm at every call site.
type DB struct {
	Gorm *gorm.DB
	SQL  *sql.DB
}

// Open connects to Postgres and applies the pool limits from config. Gorm's
// query logging stays silent; the services log their own outcomes through
// zap. All gorm-written timestamps use UTC to match the timestamptz
// columns and the hold-period math done against them.
func Open(cfg config.DBConfig) (*DB, error) {
	gcfg := &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: NowUTC,
	}

	gdb, err := gorm.Open(postgres.Open(cfg.DSN), gcfg)
	if err != nil {
		return nil, err
	}

	sqldb, err := gdb.DB()
	if err != nil {
		return nil, err
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return &DB{Gorm: gdb, SQL: sqldb}, nil
}

func Close(db *DB) error {
	if db == nil || db.SQL == nil {
		return nil
	}
	return db.SQL.Close()
}

func Ping(db *DB) error {
	if db == nil || db.SQL == nil {
		return nil
	}
	return db.SQL.Ping()
}

// SetTimezone pins the session timezone, normally UTC, so eligibility and
// hold-period comparisons in SQL agree with the times the engine computes.
func SetTimezone(db *DB, tz string) error {
	if tz == "" {
		return nil
	}
	_, err := db.SQL.Exec("SET TIME ZONE '" + tz + "'")
	return err
}

// NowUTC is the single clock for rows the engine writes.
func NowUTC() time.Time {
	return time.Now().UTC()
}
