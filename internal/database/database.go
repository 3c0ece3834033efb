package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"shellac/internal/logging"
	"shellac/internal/models"
)

// Manager manages the local state database connection
type Manager struct {
	path   string
	gormDB *gorm.DB
	sqlDB  *sql.DB
	logger *logging.Logger
}

// GORMConfig represents GORM configuration for the state database
var GORMConfig = &gorm.Config{
	Logger:                 logger.Default.LogMode(logger.Silent),
	SkipDefaultTransaction: true,
	PrepareStmt:            true,

	NamingStrategy: schema.NamingStrategy{
		TablePrefix:   "",
		SingularTable: false,
	},
}

// NewManager opens the state database at path and migrates the schema
func NewManager(path string, log *logging.Logger) (*Manager, error) {
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL"

	db, err := gorm.Open(sqlite.Open(dsn), GORMConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// SQLite permits a single writer; one connection avoids busy errors
	// when workers persist concurrently
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping state database: %w", err)
	}

	if err := runHealthCheck(db); err != nil {
		return nil, fmt.Errorf("state database health check failed: %w", err)
	}

	if err := db.AutoMigrate(
		&models.ScanRecord{},
		&models.Artist{},
		&models.Album{},
		&models.Track{},
		&models.Run{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Manager{
		path:   path,
		gormDB: db,
		sqlDB:  sqlDB,
		logger: log,
	}, nil
}

// runHealthCheck performs a basic query to verify database connectivity
func runHealthCheck(db *gorm.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var result int
	return db.WithContext(ctx).Raw("SELECT 1").Scan(&result).Error
}

// GetGormDB returns the GORM database instance
func (m *Manager) GetGormDB() *gorm.DB {
	return m.gormDB
}

// GetPath returns the database file path
func (m *Manager) GetPath() string {
	return m.path
}

// Close closes the database connection
func (m *Manager) Close() error {
	return m.sqlDB.Close()
}
