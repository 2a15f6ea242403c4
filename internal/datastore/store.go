// Package datastore persists identified tracks and the attempt log with GORM
// on SQLite or MySQL.
package datastore

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/trackid-go/internal/conf"
	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// Store wraps a GORM connection. It implements history.Repository.
type Store struct {
	DB      *gorm.DB
	dialect string
	log     logger.Logger
}

// Open connects to the configured database and migrates the schema.
func Open(settings *conf.DatastoreSettings, log logger.Logger) (*Store, error) {
	if settings == nil {
		return nil, errors.Newf("datastore settings are nil").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if log == nil {
		log = GetLogger()
	}

	var (
		dialector gorm.Dialector
		err       error
	)
	dialect := strings.ToLower(settings.Type)
	switch dialect {
	case "", "sqlite":
		dialect = "sqlite"
		dialector, err = sqliteDialector(settings.SQLite)
	case "mysql":
		dialector, err = mysqlDialector(settings.MySQL)
	default:
		err = errors.Newf("unsupported datastore type %q", settings.Type).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err != nil {
		return nil, err
	}
	return openDialector(dialect, dialector, log)
}

func openDialector(dialect string, dialector gorm.Dialector, log logger.Logger) (*Store, error) {
	start := time.Now()
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log, slowQueryThreshold),
	})
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("dialect", dialect).
			Context("operation", "open").
			Build()
	}

	s := &Store{DB: db, dialect: dialect, log: log}
	if err := s.migrate(); err != nil {
		_ = s.Close()
		return nil, err
	}
	log.Info("datastore opened",
		logger.String("dialect", dialect),
		logger.Duration("elapsed", time.Since(start)))
	return s, nil
}

func (s *Store) migrate() error {
	if err := s.DB.AutoMigrate(&TrackRecord{}, &AttemptRecord{}); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("dialect", s.dialect).
			Context("operation", "auto_migrate").
			Build()
	}
	return nil
}

// Dialect returns "sqlite" or "mysql".
func (s *Store) Dialect() string { return s.dialect }

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return dbError(err, "close")
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close")
	}
	return nil
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return dbError(err, "ping")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return dbError(err, "ping")
	}
	return nil
}

func dbError(err error, op string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", op).
		Build()
}
