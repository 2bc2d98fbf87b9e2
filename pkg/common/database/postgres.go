package database

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/cohort-builder/pkg/common/config"
	"github.com/synaptica-ai/cohort-builder/pkg/common/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	db     *gorm.DB
	dbOnce sync.Once
	dbErr  error
)

// PostgresDSN tags connections with the application name so cohort review
// queries can be told apart in pg_stat_activity.
func PostgresDSN(cfg *config.Config) string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s application_name=%s",
		cfg.PostgresHost,
		cfg.PostgresUser,
		cfg.PostgresPassword,
		cfg.PostgresDB,
		cfg.PostgresPort,
		cfg.PostgresSSLMode,
		cfg.PostgresAppName,
	)
}

func gormLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

// GetPostgres opens the shared pool backing cohort definitions and review
// statuses.
func GetPostgres(cfg *config.Config) (*gorm.DB, error) {
	dbOnce.Do(func() {
		fields := logrus.Fields{
			"host":     cfg.PostgresHost,
			"port":     cfg.PostgresPort,
			"database": cfg.PostgresDB,
		}
		db, dbErr = gorm.Open(postgres.Open(PostgresDSN(cfg)), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormLogLevel(cfg.PostgresLogLevel)),
		})
		if dbErr != nil {
			logger.WithFields(fields).WithError(dbErr).Error("Failed to open cohort database")
			return
		}

		sqlDB, err := db.DB()
		if err != nil {
			dbErr = err
			return
		}
		sqlDB.SetMaxOpenConns(cfg.PostgresMaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.PostgresMaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.PostgresConnMaxLifetime)

		fields["max_open_conns"] = cfg.PostgresMaxOpenConns
		logger.WithFields(fields).Info("Cohort database ready")
	})

	return db, dbErr
}

func ClosePostgres() error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
