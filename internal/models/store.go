package models

import (
	"sort"
	"time"
)

// Store is the whole ledger. It is loaded and saved as one document.
type Store struct {
	Users     map[string]*UserRecord `json:"users"`
	Stats     Stats                  `json:"stats"`
	Referrals ReferralIndex          `json:"referrals"`
	Meta      Meta                   `json:"meta"`
}

type Stats struct {
	TotalGenerations int                `json:"total_generations"`
	TotalUsers       int                `json:"total_users"`
	TopUsers         []LeaderboardEntry `json:"top_users"`
	TopReferrers     []LeaderboardEntry `json:"top_referrers"`
}

type ReferralIndex struct {
	ActiveLinks      map[string]*ReferralLink `json:"active_links"`
	TotalConversions int                      `json:"total_conversions"`
}

type Meta struct {
	Version    string     `json:"version"`
	LastBackup *time.Time `json:"last_backup"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NewStore returns the schema default for an empty ledger.
func NewStore(version string, now time.Time) *Store {
	return &Store{
		Users: make(map[string]*UserRecord),
		Stats: Stats{
			TopUsers:     []LeaderboardEntry{},
			TopReferrers: []LeaderboardEntry{},
		},
		Referrals: ReferralIndex{
			ActiveLinks: make(map[string]*ReferralLink),
		},
		Meta: Meta{
			Version:   version,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// Normalize fills sections missing from older or hand-edited documents.
func (s *Store) Normalize(version string, now time.Time) {
	if s.Users == nil {
		s.Users = make(map[string]*UserRecord)
	}
	if s.Referrals.ActiveLinks == nil {
		s.Referrals.ActiveLinks = make(map[string]*ReferralLink)
	}
	for code, link := range s.Referrals.ActiveLinks {
		if link == nil {
			delete(s.Referrals.ActiveLinks, code)
		}
	}
	s.Stats.TopUsers = normalizeBoard(s.Stats.TopUsers)
	s.Stats.TopReferrers = normalizeBoard(s.Stats.TopReferrers)
	if s.Meta.Version == "" {
		s.Meta.Version = version
	}
	if s.Meta.CreatedAt.IsZero() {
		s.Meta.CreatedAt = now
	}
	for id, u := range s.Users {
		if u == nil {
			delete(s.Users, id)
			continue
		}
		if u.Referral.ReferredUsers == nil {
			u.Referral.ReferredUsers = []string{}
		}
		if u.Role == "" {
			u.Role = RoleUser
		}
	}
}

// normalizeBoard drops repeated users (keeping the first entry), sorts by
// descending score and truncates to MaxLeaderboardEntries.
func normalizeBoard(list []LeaderboardEntry) []LeaderboardEntry {
	out := make([]LeaderboardEntry, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, e := range list {
		if seen[e.UserID] {
			continue
		}
		seen[e.UserID] = true
		out = append(out, e)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	if len(out) > MaxLeaderboardEntries {
		out = out[:MaxLeaderboardEntries]
	}
	return out
}
