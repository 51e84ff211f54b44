package db

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultSQLitePath = "tubekit.db"

// Open connects to the database described by dsn.
// postgres:// and key=value DSNs select PostgreSQL; anything else is a SQLite path.
func Open(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("db: empty dsn")
	}
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	if isPostgresDSN(dsn) {
		return openPostgres(dsn, gormCfg)
	}
	conn, errOpen := gorm.Open(sqlite.Open(BuildSQLiteDSN(dsn)), gormCfg)
	if errOpen != nil {
		return nil, fmt.Errorf("db: open sqlite: %w", errOpen)
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		return nil, fmt.Errorf("db: sqlite handle: %w", errDB)
	}
	// SQLite allows a single writer; one connection keeps upserts from failing with SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	return conn, nil
}

func openPostgres(dsn string, gormCfg *gorm.Config) (*gorm.DB, error) {
	connCfg, errParse := pgx.ParseConfig(dsn)
	if errParse != nil {
		return nil, fmt.Errorf("db: parse postgres dsn: %w", errParse)
	}
	sqlDB := stdlib.OpenDB(*connCfg)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	conn, errOpen := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormCfg)
	if errOpen != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("db: open postgres: %w", errOpen)
	}
	return conn, nil
}

func isPostgresDSN(dsn string) bool {
	lowered := strings.ToLower(dsn)
	if strings.HasPrefix(lowered, "postgres://") || strings.HasPrefix(lowered, "postgresql://") {
		return true
	}
	return strings.Contains(lowered, "host=") && strings.Contains(lowered, "dbname=")
}

// BuildSQLiteDSN turns a file path into a glebarez/sqlite DSN with WAL and a busy timeout.
func BuildSQLiteDSN(path string) string {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = defaultSQLitePath
	}
	if strings.Contains(dsn, "_pragma=") || strings.Contains(dsn, "mode=memory") {
		return dsn
	}
	if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
		dsn = "file:" + dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + strings.Join([]string{
		"_pragma=busy_timeout(5000)",
		"_pragma=journal_mode(WAL)",
		"_pragma=foreign_keys(1)",
		"_pragma=synchronous(NORMAL)",
	}, "&")
}

// IsUniqueViolation reports whether err is a unique constraint failure on either dialect.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
