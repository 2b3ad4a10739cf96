package models

import (
	"time"
)

// LedgerDocument holds the serialized Store when the SQL backend is used.
type LedgerDocument struct {
	ID        string `gorm:"primaryKey;size:191"`
	Body      string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// LedgerSnapshot is one backup copy of a LedgerDocument.
type LedgerSnapshot struct {
	ID         uint   `gorm:"primaryKey"`
	DocumentID string `gorm:"size:191;index"`
	Name       string `gorm:"size:255"`
	Body       string `gorm:"type:text;not null"`
	CreatedAt  time.Time
}
