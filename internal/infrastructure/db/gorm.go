package db

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"consigned-credit/internal/domain/loan"
)

// Pool sizes the underlying sql.DB.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
	// SlowQuery is the threshold above which gorm logs a statement at warn.
	SlowQuery time.Duration
}

func DefaultPool() Pool {
	return Pool{
		MaxOpen:     30,
		MaxIdle:     10,
		MaxLifetime: 30 * time.Minute,
		MaxIdleTime: 10 * time.Minute,
		SlowQuery:   200 * time.Millisecond,
	}
}

func OpenGorm(dsn string, pool Pool, log *slog.Logger) (*gorm.DB, error) {
	return OpenGormWithDialector(mysql.Open(dsn), pool, log)
}

// OpenGormWithDialector lets tests hand in a mocked connection.
func OpenGormWithDialector(dial gorm.Dialector, pool Pool, log *slog.Logger) (*gorm.DB, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := gorm.Open(dial, &gorm.Config{Logger: gormLogger(log, pool.SlowQuery)})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(pool.MaxOpen)
	sqlDB.SetMaxIdleConns(pool.MaxIdle)
	sqlDB.SetConnMaxLifetime(pool.MaxLifetime)
	sqlDB.SetConnMaxIdleTime(pool.MaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, err
	}
	log.Info("gorm: connected", "max_open", pool.MaxOpen, "max_idle", pool.MaxIdle)
	return db, nil
}

// gormLogger routes gorm's printf-style output through slog at warn level.
// Missing rows are expected lookups, not noise.
func gormLogger(log *slog.Logger, slow time.Duration) logger.Interface {
	return logger.New(
		slog.NewLogLogger(log.Handler(), slog.LevelWarn),
		logger.Config{
			SlowThreshold:             slow,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// Migrate creates or updates the tables backing the loan domain.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&loan.Borrower{}, &loan.Product{}, &loan.Contract{}, &loan.Proposal{})
}
