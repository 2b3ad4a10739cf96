package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FileBackend keeps the ledger in a JSON file and backups in a directory.
type FileBackend struct {
	Path      string
	BackupDir string

	// beforeRename runs between writing the temp file and replacing the
	// primary document. Tests use it to simulate a crash.
	beforeRename func(tmpPath string) error
}

func NewFileBackend(path, backupDir string) *FileBackend {
	return &FileBackend{Path: path, BackupDir: backupDir}
}

func (b *FileBackend) Read(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoDocument
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrStorageIO, b.Path, err)
	}
	return data, nil
}

func (b *FileBackend) Write(_ context.Context, data []byte) (err error) {
	dir := filepath.Dir(b.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: failed to create %s: %v", ErrStorageIO, dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(b.Path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file: %v", ErrStorageIO, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("%w: failed to write temp file: %v", ErrStorageIO, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("%w: failed to sync temp file: %v", ErrStorageIO, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: failed to close temp file: %v", ErrStorageIO, err)
	}
	if b.beforeRename != nil {
		if err = b.beforeRename(tmpPath); err != nil {
			return fmt.Errorf("%w: %v", ErrStorageIO, err)
		}
	}
	if err = os.Rename(tmpPath, b.Path); err != nil {
		return fmt.Errorf("%w: failed to replace %s: %v", ErrStorageIO, b.Path, err)
	}
	return nil
}

// Quarantine moves the primary document aside. Names never overwrite an
// earlier quarantine or snapshot; repeats within one second get a
// numeric suffix.
func (b *FileBackend) Quarantine(_ context.Context, at time.Time) (string, error) {
	base := fmt.Sprintf("%s.corrupt.%d", b.Path, at.Unix())
	for n := 1; ; n++ {
		target := uniqueName(base, "", n)
		err := os.Link(b.Path, target)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("%w: failed to quarantine %s: %v", ErrStorageIO, b.Path, err)
		}
		if err := os.Remove(b.Path); err != nil {
			return "", fmt.Errorf("%w: failed to quarantine %s: %v", ErrStorageIO, b.Path, err)
		}
		return target, nil
	}
}

func (b *FileBackend) Snapshot(_ context.Context, data []byte, at time.Time) (string, error) {
	if err := os.MkdirAll(b.BackupDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: failed to create backup dir: %v", ErrStorageIO, err)
	}
	base := filepath.Join(b.BackupDir, "backup_"+at.Format(backupLayout))
	for n := 1; ; n++ {
		name := uniqueName(base, ".json", n)
		f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("%w: failed to create backup: %v", ErrStorageIO, err)
		}
		_, err = f.Write(data)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(name)
			return "", fmt.Errorf("%w: failed to write backup: %v", ErrStorageIO, err)
		}
		return name, nil
	}
}
