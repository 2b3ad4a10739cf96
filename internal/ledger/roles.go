package ledger

import (
	"context"
	"slices"

	"ghibli-bot/internal/config"
	"ghibli-bot/internal/models"
)

// Permission names checked by the bot's admin commands.
const (
	PermManageLimits = "manage_limits"
	PermBroadcast    = "broadcast"
	PermViewStats    = "view_stats"
	PermAddLimit     = "add_limit"
	PermAll          = "all"
)

type roleBinding struct {
	role models.Role
	conf config.RoleConfig
}

// staticRoles lists configured roles in precedence order.
func staticRoles(cfg *config.Config) []roleBinding {
	return []roleBinding{
		{models.RoleOwner, cfg.Roles.Owner},
		{models.RoleAdmin, cfg.Roles.Admin},
		{models.RoleModerator, cfg.Roles.Moderator},
	}
}

func (l *Ledger) staticRole(id string) (models.Role, bool) {
	for _, r := range staticRoles(l.cfg) {
		if slices.Contains(r.conf.UserIDs, id) {
			return r.role, true
		}
	}
	return "", false
}

func (l *Ledger) resolveRole(s *models.Store, id string) models.Role {
	if role, ok := l.staticRole(id); ok {
		return role
	}
	if u, ok := s.Users[id]; ok && u.Role != "" {
		return u.Role
	}
	return models.RoleUser
}

// ResolveRole returns the configured role of id, else its stored role.
func (l *Ledger) ResolveRole(ctx context.Context, id string) (models.Role, error) {
	if role, ok := l.staticRole(id); ok {
		return role, nil
	}
	role := models.RoleUser
	err := l.view(ctx, func(s *models.Store) {
		role = l.resolveRole(s, id)
	})
	return role, err
}

func (l *Ledger) permissions(role models.Role) []string {
	for _, r := range staticRoles(l.cfg) {
		if r.role == role {
			return r.conf.Permissions
		}
	}
	return nil
}

// HasPermission reports whether id may use perm. Owners may do anything.
func (l *Ledger) HasPermission(ctx context.Context, id, perm string) (bool, error) {
	role, err := l.ResolveRole(ctx, id)
	if err != nil {
		return false, err
	}
	if role == models.RoleOwner {
		return true, nil
	}
	perms := l.permissions(role)
	return slices.Contains(perms, perm) || slices.Contains(perms, PermAll), nil
}

// SetRole switches a user between the runtime tiers vip and user.
func (l *Ledger) SetRole(ctx context.Context, id string, role models.Role) (*models.UserRecord, error) {
	switch role {
	case models.RoleVIP, models.RoleUser:
	case models.RoleOwner, models.RoleAdmin, models.RoleModerator:
		return nil, ErrRoleImmutable
	default:
		return nil, ErrInvalidRole
	}
	if _, ok := l.staticRole(id); ok {
		return nil, ErrRoleImmutable
	}

	var out *models.UserRecord
	err := l.mutate(ctx, func(s *models.Store) error {
		u, _ := l.ensureUser(s, id)
		u.Role = role
		out = u.Clone()
		return nil
	})
	return out, err
}

// allowance is the daily quota granted to role on reset.
func (l *Ledger) allowance(role models.Role) int {
	if role == models.RoleVIP {
		return l.cfg.Features.VIPDailyLimit
	}
	return l.cfg.Features.DailyLimit
}
