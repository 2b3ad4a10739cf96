package ledger

import (
	"context"
	"slices"
	"sort"

	"ghibli-bot/internal/models"
)

// updateRanking upserts u with score, keeps the list sorted by descending
// score (ties in first-seen order) and bounded to MaxLeaderboardEntries.
func updateRanking(list []models.LeaderboardEntry, u *models.UserRecord, score int) []models.LeaderboardEntry {
	entry := models.LeaderboardEntry{
		UserID:    u.UserID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Score:     score,
	}

	i := slices.IndexFunc(list, func(e models.LeaderboardEntry) bool { return e.UserID == u.UserID })
	if i >= 0 {
		list[i] = entry
	} else {
		list = append(list, entry)
	}

	sort.SliceStable(list, func(a, b int) bool { return list[a].Score > list[b].Score })
	if len(list) > models.MaxLeaderboardEntries {
		list = list[:models.MaxLeaderboardEntries]
	}
	return list
}

// TopGenerations returns the users with the most generations.
func (l *Ledger) TopGenerations(ctx context.Context) ([]models.LeaderboardEntry, error) {
	var out []models.LeaderboardEntry
	err := l.view(ctx, func(s *models.Store) {
		out = slices.Clone(s.Stats.TopUsers)
	})
	return out, err
}

// TopReferrers returns the users with the most referrals.
func (l *Ledger) TopReferrers(ctx context.Context) ([]models.LeaderboardEntry, error) {
	var out []models.LeaderboardEntry
	err := l.view(ctx, func(s *models.Store) {
		out = slices.Clone(s.Stats.TopReferrers)
	})
	return out, err
}
