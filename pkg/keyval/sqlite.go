package keyval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/harvestly/cart-engine/pkg/config"
)

// kvEntry is the single-table schema backing the SQLite store.
type kvEntry struct {
	Key   string `gorm:"column:key;primaryKey"`
	Value string `gorm:"column:value;not null"`
}

func (kvEntry) TableName() string { return "kv_entries" }

// SQLite keeps keys in an embedded database file, for hosts where a plain
// JSON file is too fragile and redis is unavailable.
type SQLite struct {
	conn *gorm.DB
}

// NewSQLite opens (and if needed creates) the embedded database.
func NewSQLite(cfg config.SQLiteConfig) (*SQLite, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path is required")
	}

	gormLogger := gormlogger.New(
		log.New(io.Discard, "", log.LstdFlags),
		gormlogger.Config{LogLevel: gormlogger.Silent},
	)

	conn, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store: %w", err)
	}
	if err := conn.AutoMigrate(&kvEntry{}); err != nil {
		return nil, fmt.Errorf("migrating kv schema: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) (string, error) {
	var entry kvEntry
	err := s.conn.WithContext(ctx).First(&entry, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return entry.Value, nil
}

func (s *SQLite) Set(ctx context.Context, key, value string) error {
	entry := kvEntry{Key: key, Value: value}
	return s.conn.WithContext(ctx).Save(&entry).Error
}

func (s *SQLite) Del(ctx context.Context, key string) error {
	return s.conn.WithContext(ctx).Delete(&kvEntry{}, "key = ?", key).Error
}

func (s *SQLite) Has(ctx context.Context, key string) (bool, error) {
	var count int64
	err := s.conn.WithContext(ctx).Model(&kvEntry{}).Where("key = ?", key).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SQLite) Close() error {
	sqlDB, err := s.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
