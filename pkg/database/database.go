package database

import (
	"fmt"
	"lms/pkg/models"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config describes how to reach the backing store.
type Config struct {
	Driver     string
	DSN        string
	LogLevel   string
	MaxRetries int
	RetryDelay time.Duration
}

// ConfigFromEnv reads DB_* variables. An explicit DSN wins over the
// individual host/port/user parts.
func ConfigFromEnv() Config {
	return ConfigForDriver(getEnv("DB_DRIVER", DriverPostgres))
}

// ConfigForDriver is ConfigFromEnv with the driver fixed by the caller.
func ConfigForDriver(driver string) Config {
	driver = strings.ToLower(driver)
	retries, err := strconv.Atoi(getEnv("DB_CONNECT_RETRIES", "10"))
	if err != nil || retries < 1 {
		retries = 10
	}

	cfg := Config{
		Driver:     driver,
		DSN:        os.Getenv("DB_DSN"),
		LogLevel:   getEnv("DB_LOG_LEVEL", "warn"),
		MaxRetries: retries,
		RetryDelay: 5 * time.Second,
	}
	if cfg.DSN != "" {
		return cfg
	}

	if driver == DriverSQLite {
		cfg.DSN = getEnv("SQLITE_PATH", "library.db")
		return cfg
	}

	host := getEnv("DB_HOST", "postgres")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "program")
	password := getEnv("DB_PASSWORD", "test")
	dbname := getEnv("DB_NAME", "library")
	sslmode := getEnv("DB_SSLMODE", "disable")

	cfg.DSN = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		host, user, password, dbname, port, sslmode)
	return cfg
}

// Open connects with retries, tunes the pool and migrates the circulation
// tables.
func Open(cfg Config) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logLevel(cfg.LogLevel))}

	attempts := cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var db *gorm.DB
	for i := 0; i < attempts; i++ {
		db, err = gorm.Open(dialector, gormCfg)
		if err == nil {
			break
		}
		log.Printf("Database connection attempt %d/%d failed: %v", i+1, attempts, err)
		if i < attempts-1 {
			time.Sleep(cfg.RetryDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get database instance: %w", err)
	}
	if cfg.Driver == DriverSQLite {
		// one writer; also keeps ":memory:" databases on a single connection
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Printf("Database connection established (%s)", cfg.Driver)
	return db, nil
}

// Migrate creates or updates the members, books and borrow_records tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	return nil
}

// Ping checks the connection is alive.
func Ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func dialectorFor(cfg Config) (gorm.Dialector, error) {
	switch cfg.Driver {
	case DriverPostgres:
		return postgres.Open(cfg.DSN), nil
	case DriverSQLite:
		return SQLite(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}
}

func logLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
