package database

import (
	"fmt"
	"net/url"
	"time"

	"github.com/ManuelReschke/PixelPremium/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// Config describes the database connection and the per-operation deadline
// applied to engine calls whose context carries none.
type Config struct {
	Driver          string
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	OpTimeout       time.Duration
}

func ConfigFromEnv() Config {
	driver := env.GetEnv("DB_DRIVER", DriverMySQL)
	defaultPort := "3306"
	if driver == DriverPostgres {
		defaultPort = "5432"
	}

	return Config{
		Driver:          driver,
		Host:            env.GetEnv("DB_HOST", "127.0.0.1"),
		Port:            env.GetEnv("DB_PORT", defaultPort),
		User:            env.GetEnv("DB_USER", ""),
		Password:        env.GetEnv("DB_PASSWORD", ""),
		Name:            env.GetEnv("DB_NAME", ""),
		MaxOpenConns:    env.GetEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    env.GetEnvInt("DB_MAX_IDLE_CONNS", 10),
		ConnMaxLifetime: env.GetEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		OpTimeout:       env.GetEnvDuration("DB_OP_TIMEOUT", 10*time.Second),
	}
}

func (c Config) dialector() (gorm.Dialector, error) {
	switch c.Driver {
	case DriverMySQL:
		// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=UTC"
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			c.User, c.Password, c.Host, c.Port, c.Name)
		return mysql.New(mysql.Config{
			DSN:                       dsn,   // data source name
			DefaultStringSize:         256,   // default size for string fields
			DisableDatetimePrecision:  true,  // timestamps are stored with second precision
			DontSupportRenameIndex:    true,  // drop & create when rename index, rename index not supported before MySQL 5.7, MariaDB
			DontSupportRenameColumn:   true,  // `change` when rename column, rename column not supported before MySQL 8, MariaDB
			SkipInitializeWithVersion: false, // auto configure based on currently MySQL version
		}), nil
	case DriverPostgres:
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			c.Host, c.User, c.Password, c.Name, c.Port)
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", c.Driver)
	}
}

// MigrateURL returns the golang-migrate database URL for the configured driver.
func (c Config) MigrateURL() string {
	switch c.Driver {
	case DriverPostgres:
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.User, c.Password),
			Host:     fmt.Sprintf("%s:%s", c.Host, c.Port),
			Path:     "/" + c.Name,
			RawQuery: "sslmode=disable",
		}
		return u.String()
	default:
		return fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true",
			c.User, c.Password, c.Host, c.Port, c.Name)
	}
}

// GormConfig is shared by production connections and test databases. Every
// timestamp GORM writes is UTC with second precision.
func GormConfig(logLevel logger.LogLevel) *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		NowFunc:        func() time.Time { return time.Now().UTC().Truncate(time.Second) },
		TranslateError: true,
	}
}

// Open connects to the configured database, retrying while it comes up.
func Open(cfg Config) (*gorm.DB, error) {
	dialector, err := cfg.dialector()
	if err != nil {
		return nil, err
	}

	logLevel := logger.Warn
	if env.IsDev() {
		logLevel = logger.Info
	}

	var db *gorm.DB
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(dialector, GormConfig(logLevel))
		if err == nil {
			sqlDB, dbErr := db.DB()
			if dbErr != nil {
				return nil, dbErr
			}
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
			sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

			log.Infof("[Database] Connected to %s at %s:%s/%s", cfg.Driver, cfg.Host, cfg.Port, cfg.Name)
			return db, nil
		}

		log.Warnf("[Database] Failed to connect (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Infof("[Database] Retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	return nil, fmt.Errorf("connect to database after %d tries: %w", maxRetries, err)
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
