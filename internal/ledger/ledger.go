// Package ledger keeps quotas, roles and the referral graph of bot users
// consistent on top of a single persisted document.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"ghibli-bot/internal/config"
	"ghibli-bot/internal/database"
	"ghibli-bot/internal/models"
)

// Profile carries the display fields observed on an interaction.
type Profile struct {
	Username  string
	FirstName string
	LastName  string
}

type Ledger struct {
	store  *database.DocumentStore
	locker database.Locker
	cfg    *config.Config
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time
}

func New(store *database.DocumentStore, locker database.Locker, cfg *config.Config, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		locker: locker,
		cfg:    cfg,
		loc:    cfg.Location(),
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the time source of the ledger and its store.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
	l.store.SetClock(now)
}

// update runs fn inside the exclusive section and saves the document when
// fn reports a change. An error from fn discards every mutation.
func (l *Ledger) update(ctx context.Context, fn func(s *models.Store) (bool, error)) error {
	unlock, err := l.locker.Lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	store, err := l.store.Load(ctx)
	if err != nil {
		return err
	}
	changed, err := fn(store)
	if err != nil || !changed {
		return err
	}
	return l.store.Save(ctx, store)
}

func (l *Ledger) mutate(ctx context.Context, fn func(s *models.Store) error) error {
	return l.update(ctx, func(s *models.Store) (bool, error) {
		return true, fn(s)
	})
}

func (l *Ledger) view(ctx context.Context, fn func(s *models.Store)) error {
	return l.update(ctx, func(s *models.Store) (bool, error) {
		fn(s)
		return false, nil
	})
}

func (l *Ledger) today() string {
	return l.now().In(l.loc).Format(models.DateLayout)
}

// ensureUser returns the record for id, creating it from schema defaults.
// It reports whether the store changed (creation or daily reset).
func (l *Ledger) ensureUser(s *models.Store, id string) (*models.UserRecord, bool) {
	u, ok := s.Users[id]
	if !ok {
		role := l.resolveRole(s, id)
		u = models.NewUser(id, l.allowance(role), l.cfg.Features.DefaultStrength, l.now().In(l.loc))
		s.Users[id] = u
		s.Stats.TotalUsers = len(s.Users)
		return u, true
	}
	return u, l.resetIfNewDay(s, u)
}

// Backup forces a snapshot of the ledger document.
func (l *Ledger) Backup(ctx context.Context) (string, error) {
	var name string
	err := l.update(ctx, func(s *models.Store) (bool, error) {
		var err error
		name, err = l.store.Backup(ctx, s)
		return false, err
	})
	return name, err
}

// Summary is a read-only view of the aggregate counters.
type Summary struct {
	TotalUsers       int
	TotalGenerations int
	TotalConversions int
	ActiveLinks      int
	LastBackup       *time.Time
}

func (l *Ledger) Stats(ctx context.Context) (Summary, error) {
	var sum Summary
	err := l.view(ctx, func(s *models.Store) {
		sum = Summary{
			TotalUsers:       s.Stats.TotalUsers,
			TotalGenerations: s.Stats.TotalGenerations,
			TotalConversions: s.Referrals.TotalConversions,
			ActiveLinks:      len(s.Referrals.ActiveLinks),
			LastBackup:       s.Meta.LastBackup,
		}
	})
	return sum, err
}

// UserIDs lists every known identity.
func (l *Ledger) UserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := l.view(ctx, func(s *models.Store) {
		ids = make([]string, 0, len(s.Users))
		for id := range s.Users {
			ids = append(ids, id)
		}
		slices.Sort(ids)
	})
	return ids, err
}

// FindUser looks a user up by id, or by username when query starts with
// "@". It never creates a record.
func (l *Ledger) FindUser(ctx context.Context, query string) (*models.UserRecord, error) {
	var out *models.UserRecord
	err := l.view(ctx, func(s *models.Store) {
		username, byName := strings.CutPrefix(query, "@")
		if !byName {
			if u, ok := s.Users[query]; ok {
				out = u.Clone()
			}
			return
		}
		ids := make([]string, 0, len(s.Users))
		for id := range s.Users {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			if u := s.Users[id]; username != "" && strings.EqualFold(u.Username, username) {
				out = u.Clone()
				return
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, query)
	}
	return out, nil
}
