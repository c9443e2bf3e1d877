// Package sqldb opens the MySQL connection pool used by the relational order store.
package sqldb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	drivermysql "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Abdullah97825/Matjary-sub000/internal/platform/config"
	"github.com/Abdullah97825/Matjary-sub000/internal/platform/observability"
)

const (
	slowQueryThreshold = 200 * time.Millisecond
	pingTimeout        = 5 * time.Second
)

// Open parses the DSN, forces the options the store relies on, and returns a pooled gorm handle.
func Open(ctx context.Context, cfg config.MySQLConfig, log *zap.Logger) (*gorm.DB, error) {
	dsn, err := normaliseDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	gormLogger := logger.New(observability.NewPrintfAdapter(log.Named("gorm")), logger.Config{
		SlowThreshold:             slowQueryThreshold,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})

	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("sqldb: open: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("sqldb: pool: %w", err)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqldb: ping: %w", err)
	}
	return gdb, nil
}

// normaliseDSN enables time parsing in UTC and makes UPDATE report matched rather than changed rows.
func normaliseDSN(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", errors.New("sqldb: dsn is required")
	}
	parsed, err := drivermysql.ParseDSN(raw)
	if err != nil {
		return "", fmt.Errorf("sqldb: parse dsn: %w", err)
	}
	parsed.ParseTime = true
	parsed.Loc = time.UTC
	parsed.ClientFoundRows = true
	if parsed.Params == nil {
		parsed.Params = map[string]string{}
	}
	if _, ok := parsed.Params["charset"]; !ok {
		parsed.Params["charset"] = "utf8mb4"
	}
	return parsed.FormatDSN(), nil
}
