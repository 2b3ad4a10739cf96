package models

import (
	"slices"
	"time"
)

type Role string

const (
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleVIP       Role = "vip"
	RoleUser      Role = "user"
)

// DateLayout is the format of UserRecord.LastResetDate.
const DateLayout = "2006-01-02"

type UserRecord struct {
	UserID             string      `json:"user_id"`
	Username           string      `json:"username"`
	FirstName          string      `json:"first_name"`
	LastName           string      `json:"last_name"`
	JoinDate           time.Time   `json:"join_date"`
	Status             string      `json:"status"`
	Role               Role        `json:"role"`
	RemainingLimit     int         `json:"remaining_limit"`
	TotalGenerations   int         `json:"total_generations"`
	LastResetDate      string      `json:"last_reset_date"`
	LastGenerationTime *time.Time  `json:"last_generation_time"`
	Referral           Referral    `json:"referral"`
	Preferences        Preferences `json:"preferences"`
}

type Referral struct {
	Code           string     `json:"referral_code"`
	ReferredBy     *string    `json:"referred_by"`
	ReferredUsers  []string   `json:"referred_users"`
	TotalReferrals int        `json:"total_referrals"`
	BonusClaimed   bool       `json:"bonus_claimed"`
	LinkCreatedAt  *time.Time `json:"link_created_at"`
}

type Preferences struct {
	Strength      float64 `json:"strength"`
	Notifications bool    `json:"notifications"`
}

// NewUser returns the schema default for a user seen for the first time.
func NewUser(id string, quota int, strength float64, now time.Time) *UserRecord {
	return &UserRecord{
		UserID:         id,
		JoinDate:       now,
		Status:         "active",
		Role:           RoleUser,
		RemainingLimit: quota,
		LastResetDate:  now.Format(DateLayout),
		Referral: Referral{
			ReferredUsers: []string{},
		},
		Preferences: Preferences{
			Strength:      strength,
			Notifications: true,
		},
	}
}

// Clone returns a deep copy safe to hand out of the ledger's critical section.
func (u *UserRecord) Clone() *UserRecord {
	c := *u
	if u.LastGenerationTime != nil {
		t := *u.LastGenerationTime
		c.LastGenerationTime = &t
	}
	if u.Referral.ReferredBy != nil {
		s := *u.Referral.ReferredBy
		c.Referral.ReferredBy = &s
	}
	if u.Referral.LinkCreatedAt != nil {
		t := *u.Referral.LinkCreatedAt
		c.Referral.LinkCreatedAt = &t
	}
	c.Referral.ReferredUsers = slices.Clone(u.Referral.ReferredUsers)
	if c.Referral.ReferredUsers == nil {
		c.Referral.ReferredUsers = []string{}
	}
	return &c
}

// HasReferred reports whether id is already in the referred set.
func (r *Referral) HasReferred(id string) bool {
	return slices.Contains(r.ReferredUsers, id)
}

// DisplayName picks the most readable name for messages.
func (u *UserRecord) DisplayName() string {
	switch {
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return "@" + u.Username
	default:
		return "User " + u.UserID
	}
}
