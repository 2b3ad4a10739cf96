package models

// LeaderboardEntry is a user's identity plus one ranked metric.
type LeaderboardEntry struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Score     int    `json:"score"`
}

// MaxLeaderboardEntries bounds both top lists.
const MaxLeaderboardEntries = 10
