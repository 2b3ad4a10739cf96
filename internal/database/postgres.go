package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ghibli-bot/internal/config"
	"ghibli-bot/internal/models"
)

func ConnectPostgres(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		cfg.Postgres.Host, cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.Name, cfg.Postgres.Port)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Connected to PostgreSQL")

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates the document and snapshot tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.LedgerDocument{}, &models.LedgerSnapshot{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// SQLBackend stores the ledger document as one row keyed by Key.
type SQLBackend struct {
	DB  *gorm.DB
	Key string
}

func NewSQLBackend(db *gorm.DB, key string) *SQLBackend {
	return &SQLBackend{DB: db, Key: key}
}

func (b *SQLBackend) Read(ctx context.Context) ([]byte, error) {
	var doc models.LedgerDocument
	err := b.DB.WithContext(ctx).Where("id = ?", b.Key).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoDocument
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read document %s: %v", ErrStorageIO, b.Key, err)
	}
	return []byte(doc.Body), nil
}

func (b *SQLBackend) Write(ctx context.Context, data []byte) error {
	doc := models.LedgerDocument{ID: b.Key, Body: string(data), UpdatedAt: time.Now()}
	err := b.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
	}).Create(&doc).Error
	if err != nil {
		return fmt.Errorf("%w: failed to write document %s: %v", ErrStorageIO, b.Key, err)
	}
	return nil
}

func (b *SQLBackend) Quarantine(ctx context.Context, at time.Time) (string, error) {
	base := fmt.Sprintf("%s.corrupt.%d", b.Key, at.Unix())
	var target string
	err := b.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc models.LedgerDocument
		if err := tx.Where("id = ?", b.Key).First(&doc).Error; err != nil {
			return err
		}
		for n := 1; ; n++ {
			target = uniqueName(base, "", n)
			var taken int64
			if err := tx.Model(&models.LedgerDocument{}).Where("id = ?", target).Count(&taken).Error; err != nil {
				return err
			}
			if taken == 0 {
				break
			}
		}
		if err := tx.Create(&models.LedgerDocument{ID: target, Body: doc.Body, UpdatedAt: at}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", b.Key).Delete(&models.LedgerDocument{}).Error
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to quarantine document %s: %v", ErrStorageIO, b.Key, err)
	}
	return target, nil
}

func (b *SQLBackend) Snapshot(ctx context.Context, data []byte, at time.Time) (string, error) {
	base := "backup_" + at.Format(backupLayout)
	snap := models.LedgerSnapshot{DocumentID: b.Key, Body: string(data), CreatedAt: at}
	err := b.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for n := 1; ; n++ {
			snap.Name = uniqueName(base, "", n)
			var taken int64
			err := tx.Model(&models.LedgerSnapshot{}).
				Where("document_id = ? AND name = ?", b.Key, snap.Name).
				Count(&taken).Error
			if err != nil {
				return err
			}
			if taken == 0 {
				break
			}
		}
		return tx.Create(&snap).Error
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to write snapshot: %v", ErrStorageIO, err)
	}
	return snap.Name, nil
}
