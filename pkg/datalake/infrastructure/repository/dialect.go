package repository

import (
	"errors"
	"fmt"
	"sync"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tigerroll/datalake-export/pkg/datalake/core/config"
	"github.com/tigerroll/datalake-export/pkg/datalake/support/util/logger"
)

// DialectorFactory creates a gorm.Dialector from database settings.
type DialectorFactory func(cfg config.DatabaseConfig) (gorm.Dialector, error)

var (
	dialectorRegistry = make(map[string]DialectorFactory)
	dialectorMutex    sync.RWMutex
)

// RegisterDialector registers a DialectorFactory for a repository type.
func RegisterDialector(dbType string, factory DialectorFactory) {
	dialectorMutex.Lock()
	defer dialectorMutex.Unlock()
	if _, exists := dialectorRegistry[dbType]; exists {
		logger.Warnf("Dialector for type '%s' already registered. Overwriting.", dbType)
	}
	dialectorRegistry[dbType] = factory
}

// GetDialectorFactory returns the factory registered for dbType.
func GetDialectorFactory(dbType string) (DialectorFactory, error) {
	dialectorMutex.RLock()
	defer dialectorMutex.RUnlock()
	factory, ok := dialectorRegistry[dbType]
	if !ok {
		return nil, fmt.Errorf("no dialector registered for database type: %s", dbType)
	}
	return factory, nil
}

// ConnectionString builds the DSN expected by the gorm driver of dbType.
func ConnectionString(dbType string, c config.DatabaseConfig) (string, error) {
	switch dbType {
	case "sqlite":
		// The sqlite driver takes the file path directly.
		if c.Database == "" {
			return "", errors.New("SQLite database path cannot be empty")
		}
		return c.Database, nil
	case "postgres":
		sslmode := c.Sslmode
		if sslmode == "" {
			sslmode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Database, sslmode), nil
	case "mysql":
		var authPart string
		if c.User != "" {
			authPart = c.User
			if c.Password != "" {
				authPart = fmt.Sprintf("%s:%s", c.User, c.Password)
			}
			authPart += "@"
		}
		return fmt.Sprintf("%stcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			authPart, c.Host, c.Port, c.Database), nil
	}
	return "", fmt.Errorf("unsupported database type: %s", dbType)
}

func init() {
	RegisterDialector("sqlite", func(cfg config.DatabaseConfig) (gorm.Dialector, error) {
		dsn, err := ConnectionString("sqlite", cfg)
		if err != nil {
			return nil, err
		}
		return sqlite.Open(dsn), nil
	})
	RegisterDialector("postgres", func(cfg config.DatabaseConfig) (gorm.Dialector, error) {
		dsn, err := ConnectionString("postgres", cfg)
		if err != nil {
			return nil, err
		}
		return postgres.Open(dsn), nil
	})
	RegisterDialector("mysql", func(cfg config.DatabaseConfig) (gorm.Dialector, error) {
		dsn, err := ConnectionString("mysql", cfg)
		if err != nil {
			return nil, err
		}
		return mysql.Open(dsn), nil
	})
}
