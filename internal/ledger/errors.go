package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("user not found")

	// ErrReferralInvalid is the common cause of every rejected redemption.
	ErrReferralInvalid  = errors.New("referral rejected")
	ErrUnknownCode      = fmt.Errorf("%w: unknown referral code", ErrReferralInvalid)
	ErrSelfReferral     = fmt.Errorf("%w: cannot use own referral code", ErrReferralInvalid)
	ErrAlreadyReferred  = fmt.Errorf("%w: user was already referred", ErrReferralInvalid)
	ErrReferralDisabled = errors.New("referral system is disabled")

	ErrInvalidRole     = errors.New("unknown role")
	ErrRoleImmutable   = errors.New("role is assigned by configuration")
	ErrInvalidStrength = errors.New("strength out of range")
	ErrQuotaExhausted  = errors.New("daily limit exhausted")
)
