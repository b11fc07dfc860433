package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/cache"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"unipulse/internal/config"
)

// Entry is one durable key/value pair.
type Entry struct {
	ID        uint      `gorm:"primaryKey"`
	Key       string    `gorm:"uniqueIndex;not null"`
	Value     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:milli"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:milli"`
}

// TableName pins the table name so it does not depend on gorm's pluralizer.
func (Entry) TableName() string {
	return "storage_entries"
}

const readCacheTTL = 5 * time.Minute

// SQLiteStore is the durable Store, persisted in a SQLite database through
// gorm. Reads are served from a short-lived cache that is dropped on write.
type SQLiteStore struct {
	db     *gorm.DB
	logger *slog.Logger
	reads  *cache.Cache[string, string]
}

// NewSQLiteStore wraps an open, migrated database.
func NewSQLiteStore(db *gorm.DB, logger *slog.Logger) *SQLiteStore {
	s := &SQLiteStore{db: db, logger: logger}
	s.reads = cache.NewCache[string, string](logger, readCacheTTL, s.fetch)
	return s
}

// Migrate creates the storage table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Entry{})
}

func (s *SQLiteStore) fetch(key string) (string, error) {
	var value string
	err := s.db.WithContext(context.Background()).
		Raw("SELECT value FROM storage_entries WHERE key = ? LIMIT 1", key).
		Scan(&value).Error
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *SQLiteStore) Get(key string) (string, error) {
	value, err := s.reads.Get(key)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	if value == "" {
		return "", ErrNotFound
	}
	return value, nil
}

func (s *SQLiteStore) Set(key, value string) error {
	err := sqlite.PerformWrite(s.logger, s.db, func(tx *gorm.DB) error {
		now := time.Now().UTC()
		return tx.Exec(`
			INSERT INTO storage_entries (key, value, created_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, value, now, now).Error
	})
	s.reads.Clear()
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(key string) error {
	err := sqlite.PerformWrite(s.logger, s.db, func(tx *gorm.DB) error {
		return tx.Where("key = ?", key).Delete(&Entry{}).Error
	})
	s.reads.Clear()
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Database owns the SQLite connection backing the durable scope of a
// long-running client process.
type Database struct {
	*sqlite.Manager
	logger *slog.Logger
}

// OpenDatabase connects to the configured SQLite file and migrates it.
func OpenDatabase(cfg *config.Config, logger *slog.Logger) (*Database, error) {
	manager := sqlite.NewManager(sqlite.Config{
		Path:         cfg.GetDatabasePath(),
		MaxOpenConns: cfg.GetMaxOpenConns(),
		MaxIdleConns: cfg.GetMaxIdleConns(),
		Logger:       logger,
		EnableWAL:    true,
		TxImmediate:  true,
		BusyTimeout:  5000,
	})
	if _, err := manager.Connect(); err != nil {
		return nil, fmt.Errorf("failed to open storage database: %w", err)
	}

	db := manager.GetConnection()
	if db == nil {
		return nil, gorm.ErrInvalidDB
	}
	if err := db.Transaction(func(tx *gorm.DB) error { return Migrate(tx) }); err != nil {
		logger.Error("Failed to migrate storage database", slog.Any("error", err))
		return nil, err
	}

	return &Database{Manager: manager, logger: logger}, nil
}

// Store returns the durable Store backed by this database.
func (d *Database) Store() *SQLiteStore {
	return NewSQLiteStore(d.GetConnection(), d.logger)
}

// Close flushes the WAL and closes the underlying connection pool.
func (d *Database) Close() error {
	if err := d.CheckpointWAL("FULL"); err != nil {
		d.logger.Warn("Failed to checkpoint WAL before close", slog.Any("error", err))
	}
	db := d.GetConnection()
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		if errors.Is(err, gorm.ErrInvalidDB) {
			return nil
		}
		return err
	}
	return sqlDB.Close()
}
