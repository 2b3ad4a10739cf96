package ledger

import (
	"context"
	"math"

	"ghibli-bot/internal/models"
)

// resetIfNewDay restores the daily allowance once per calendar day in the
// reference timezone.
func (l *Ledger) resetIfNewDay(s *models.Store, u *models.UserRecord) bool {
	today := l.today()
	if u.LastResetDate == today {
		return false
	}
	u.RemainingLimit = l.allowance(l.resolveRole(s, u.UserID))
	u.LastResetDate = today
	return true
}

func applyProfile(u *models.UserRecord, p *Profile) bool {
	if p == nil {
		return false
	}
	if u.Username == p.Username && u.FirstName == p.FirstName && u.LastName == p.LastName {
		return false
	}
	u.Username, u.FirstName, u.LastName = p.Username, p.FirstName, p.LastName
	return true
}

// GetOrCreate returns the user's record, creating it on first sight and
// applying the daily reset. A non-nil profile overwrites display fields.
func (l *Ledger) GetOrCreate(ctx context.Context, id string, profile *Profile) (*models.UserRecord, error) {
	var out *models.UserRecord
	err := l.update(ctx, func(s *models.Store) (bool, error) {
		u, changed := l.ensureUser(s, id)
		if applyProfile(u, profile) {
			changed = true
		}
		out = u.Clone()
		return changed, nil
	})
	return out, err
}

// ModifyQuota adds delta to today's remaining quota, clamped at zero, and
// returns the new value.
func (l *Ledger) ModifyQuota(ctx context.Context, id string, delta int) (int, error) {
	var remaining int
	err := l.mutate(ctx, func(s *models.Store) error {
		u, _ := l.ensureUser(s, id)
		remaining = addQuota(u, delta)
		return nil
	})
	return remaining, err
}

// addQuota applies delta saturating at math.MaxInt and clamped at zero.
func addQuota(u *models.UserRecord, delta int) int {
	switch {
	case delta > 0 && u.RemainingLimit > math.MaxInt-delta:
		u.RemainingLimit = math.MaxInt
	default:
		u.RemainingLimit = max(0, u.RemainingLimit+delta)
	}
	return u.RemainingLimit
}

// CheckQuota is the read side of a generation: it reports the remaining
// quota and ErrQuotaExhausted when nothing is left. Call it before the
// image transformation, then CommitGeneration once it succeeded.
func (l *Ledger) CheckQuota(ctx context.Context, id string) (int, error) {
	u, err := l.GetOrCreate(ctx, id, nil)
	if err != nil {
		return 0, err
	}
	if u.RemainingLimit <= 0 {
		return 0, ErrQuotaExhausted
	}
	return u.RemainingLimit, nil
}

// CommitGeneration debits one unit and records the generation in the
// user's and the global statistics in a single save.
func (l *Ledger) CommitGeneration(ctx context.Context, id string) (*models.UserRecord, error) {
	var out *models.UserRecord
	err := l.mutate(ctx, func(s *models.Store) error {
		u, _ := l.ensureUser(s, id)
		now := l.now()

		addQuota(u, -1)
		u.TotalGenerations++
		u.LastGenerationTime = &now
		s.Stats.TotalGenerations++

		s.Stats.TopUsers = updateRanking(s.Stats.TopUsers, u, u.TotalGenerations)
		out = u.Clone()
		return nil
	})
	return out, err
}

// UpdateUser applies fn to an existing record. Unlike GetOrCreate it never
// creates one.
func (l *Ledger) UpdateUser(ctx context.Context, id string, fn func(u *models.UserRecord)) (*models.UserRecord, error) {
	var out *models.UserRecord
	err := l.mutate(ctx, func(s *models.Store) error {
		u, ok := s.Users[id]
		if !ok {
			return ErrNotFound
		}
		before := u.Clone()
		fn(u)
		guardInvariants(before, u)
		out = u.Clone()
		return nil
	})
	return out, err
}

// guardInvariants undoes edits to fields owned by the quota and referral
// logic: identity, the referral sub-record, the generation counter and
// roles that only configuration may grant.
func guardInvariants(before, after *models.UserRecord) {
	after.UserID = before.UserID
	after.Referral = before.Referral
	after.RemainingLimit = max(0, after.RemainingLimit)
	after.TotalGenerations = max(before.TotalGenerations, after.TotalGenerations)
	if after.Role != models.RoleVIP && after.Role != models.RoleUser {
		after.Role = before.Role
	}
}

// SetStrength stores the preferred transformation strength.
func (l *Ledger) SetStrength(ctx context.Context, id string, strength float64) (*models.UserRecord, error) {
	f := l.cfg.Features
	if strength < f.MinStrength || strength > f.MaxStrength {
		return nil, ErrInvalidStrength
	}
	var out *models.UserRecord
	err := l.mutate(ctx, func(s *models.Store) error {
		u, _ := l.ensureUser(s, id)
		u.Preferences.Strength = strength
		out = u.Clone()
		return nil
	})
	return out, err
}
