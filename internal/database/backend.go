package database

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoDocument is returned by Backend.Read when nothing was persisted yet.
	ErrNoDocument = errors.New("ledger document does not exist")
	// ErrStorageIO wraps read/write failures of the backing document.
	ErrStorageIO = errors.New("ledger storage i/o failure")
	// ErrStorageCorrupt is returned when the document cannot be parsed and the
	// corruption policy forbids recreating it.
	ErrStorageCorrupt = errors.New("ledger document is corrupt")
)

// Backend persists the serialized ledger as a single document.
type Backend interface {
	// Read returns the current document or ErrNoDocument.
	Read(ctx context.Context) ([]byte, error)
	// Write atomically replaces the document. A failed Write leaves the
	// previous document intact.
	Write(ctx context.Context, data []byte) error
	// Quarantine moves the current document aside and returns where it went.
	Quarantine(ctx context.Context, at time.Time) (string, error)
	// Snapshot stores a backup copy of data and returns its name.
	Snapshot(ctx context.Context, data []byte, at time.Time) (string, error)
}

const backupLayout = "20060102_150405"

// uniqueName returns base+ext for the first attempt and base_<n>+ext after.
func uniqueName(base, ext string, n int) string {
	if n <= 1 {
		return base + ext
	}
	return fmt.Sprintf("%s_%d%s", base, n, ext)
}
