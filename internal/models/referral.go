package models

import (
	"time"
)

// ReferralLink is registered once per issued referral code.
type ReferralLink struct {
	OwnerID   string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	Uses      int       `json:"uses"`
}
