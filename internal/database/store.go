package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ghibli-bot/internal/config"
	"ghibli-bot/internal/models"
)

// DocumentStore loads and saves the whole ledger through a Backend.
// It does no locking; callers serialize load-mutate-save with a Locker.
type DocumentStore struct {
	backend        Backend
	logger         *slog.Logger
	version        string
	onCorrupt      string
	autoBackup     bool
	backupInterval time.Duration
	now            func() time.Time
}

func NewDocumentStore(backend Backend, cfg *config.Config, logger *slog.Logger) *DocumentStore {
	return &DocumentStore{
		backend:        backend,
		logger:         logger,
		version:        cfg.Bot.Version,
		onCorrupt:      cfg.Storage.OnCorrupt,
		autoBackup:     cfg.Storage.AutoBackup,
		backupInterval: cfg.Storage.BackupInterval,
		now:            time.Now,
	}
}

// SetClock replaces the time source.
func (s *DocumentStore) SetClock(now func() time.Time) {
	s.now = now
}

// Load returns the persisted ledger, creating it when absent. An unparsable
// document is quarantined and replaced by defaults unless the corruption
// policy is config.OnCorruptFail.
func (s *DocumentStore) Load(ctx context.Context) (*models.Store, error) {
	data, err := s.backend.Read(ctx)
	switch {
	case errors.Is(err, ErrNoDocument):
		return s.recreate(ctx)
	case err != nil:
		return nil, err
	}

	var store models.Store
	if err := json.Unmarshal(data, &store); err != nil {
		if s.onCorrupt == config.OnCorruptFail {
			return nil, fmt.Errorf("%w: %v", ErrStorageCorrupt, err)
		}
		s.logger.Error("failed to parse ledger document", slog.String("error", err.Error()))
		target, qerr := s.backend.Quarantine(ctx, s.now())
		if qerr != nil {
			return nil, qerr
		}
		s.logger.Warn("corrupt ledger document quarantined, starting from defaults",
			slog.String("quarantine", target))
		return s.recreate(ctx)
	}

	now := s.now()
	store.Normalize(s.version, now)
	store.Meta.UpdatedAt = now
	return &store, nil
}

func (s *DocumentStore) recreate(ctx context.Context) (*models.Store, error) {
	store := models.NewStore(s.version, s.now())
	if err := s.Save(ctx, store); err != nil {
		return nil, err
	}
	return store, nil
}

// Save writes the whole ledger atomically. An automatic backup may follow;
// its failure is logged and never reported to the caller.
func (s *DocumentStore) Save(ctx context.Context, store *models.Store) error {
	store.Meta.UpdatedAt = s.now()
	data, err := encode(store)
	if err != nil {
		return err
	}
	if err := s.backend.Write(ctx, data); err != nil {
		return err
	}

	if s.autoBackup && s.backupDue(store) {
		if err := s.backup(ctx, store, data); err != nil {
			s.logger.Error("automatic backup failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// Backup snapshots the current document regardless of the interval.
func (s *DocumentStore) Backup(ctx context.Context, store *models.Store) (string, error) {
	data, err := encode(store)
	if err != nil {
		return "", err
	}
	name, err := s.backend.Snapshot(ctx, data, s.now())
	if err != nil {
		return "", err
	}
	if err := s.markBackedUp(ctx, store); err != nil {
		return name, err
	}
	s.logger.Info("ledger backup created", slog.String("name", name))
	return name, nil
}

func (s *DocumentStore) backupDue(store *models.Store) bool {
	last := store.Meta.LastBackup
	return last == nil || s.now().Sub(*last) > s.backupInterval
}

func (s *DocumentStore) backup(ctx context.Context, store *models.Store, data []byte) error {
	name, err := s.backend.Snapshot(ctx, data, s.now())
	if err != nil {
		return err
	}
	s.logger.Info("ledger backup created", slog.String("name", name))
	return s.markBackedUp(ctx, store)
}

func (s *DocumentStore) markBackedUp(ctx context.Context, store *models.Store) error {
	at := s.now()
	store.Meta.LastBackup = &at
	data, err := encode(store)
	if err != nil {
		return err
	}
	return s.backend.Write(ctx, data)
}

func encode(store *models.Store) ([]byte, error) {
	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode ledger: %w", err)
	}
	return data, nil
}
