package ledger

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"log/slog"

	"ghibli-bot/internal/models"
)

const codeLength = 8

// generateCode derives a short URL-safe code from the user id, a salt and
// the issuance time.
func (l *Ledger) generateCode(id string, attempt int) string {
	data := fmt.Sprintf("%s:%s:%d:%d", id, l.cfg.Bot.Username, l.now().UnixNano(), attempt)
	sum := md5.Sum([]byte(data))
	return base64.URLEncoding.EncodeToString(sum[:])[:codeLength]
}

// IssueCode returns the user's referral code, issuing one on first request.
func (l *Ledger) IssueCode(ctx context.Context, id string) (string, error) {
	var code string
	err := l.update(ctx, func(s *models.Store) (bool, error) {
		u, changed := l.ensureUser(s, id)
		if u.Referral.Code != "" {
			code = u.Referral.Code
			if _, ok := s.Referrals.ActiveLinks[code]; !ok {
				s.Referrals.ActiveLinks[code] = &models.ReferralLink{OwnerID: id, CreatedAt: l.now()}
				changed = true
			}
			return changed, nil
		}

		for attempt := 0; ; attempt++ {
			code = l.generateCode(id, attempt)
			if _, taken := s.Referrals.ActiveLinks[code]; !taken {
				break
			}
		}
		now := l.now()
		u.Referral.Code = code
		u.Referral.LinkCreatedAt = &now
		s.Referrals.ActiveLinks[code] = &models.ReferralLink{OwnerID: id, CreatedAt: now}
		return true, nil
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// ReferralLink formats the deep link that starts the bot with code.
func (l *Ledger) ReferralLink(code string) string {
	return fmt.Sprintf(l.cfg.Referral.LinkFormat, l.cfg.Bot.Username, code)
}

// Redeem registers refereeID as referred through code and grants every
// bonus in one save. Rejections leave the ledger untouched. It returns a
// copy of the referrer's updated record.
func (l *Ledger) Redeem(ctx context.Context, refereeID, code string) (*models.UserRecord, error) {
	rc := l.cfg.Referral
	if !rc.Enabled {
		return nil, ErrReferralDisabled
	}

	var out *models.UserRecord
	err := l.update(ctx, func(s *models.Store) (bool, error) {
		link, ok := s.Referrals.ActiveLinks[code]
		if !ok || link == nil {
			return false, ErrUnknownCode
		}
		referrerID := link.OwnerID
		if refereeID == referrerID {
			return false, ErrSelfReferral
		}
		if u, ok := s.Users[refereeID]; ok && u.Referral.ReferredBy != nil {
			return false, ErrAlreadyReferred
		}

		referee, _ := l.ensureUser(s, refereeID)
		addQuota(referee, rc.RefereeBonus)
		by := referrerID
		referee.Referral.ReferredBy = &by

		referrer, _ := l.ensureUser(s, referrerID)
		addQuota(referrer, rc.ReferrerBonus)
		if !referrer.Referral.HasReferred(refereeID) {
			referrer.Referral.ReferredUsers = append(referrer.Referral.ReferredUsers, refereeID)
		}
		referrer.Referral.TotalReferrals++

		link.Uses++
		s.Referrals.TotalConversions++

		if !referrer.Referral.BonusClaimed && len(referrer.Referral.ReferredUsers) >= rc.MinUsesExtra {
			addQuota(referrer, rc.ExtraBonus)
			referrer.Referral.BonusClaimed = true
			l.logger.Info("referral extra bonus granted", slog.String("user_id", referrerID))
		}

		s.Stats.TopReferrers = updateRanking(s.Stats.TopReferrers, referrer, referrer.Referral.TotalReferrals)
		out = referrer.Clone()
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("referral redeemed",
		slog.String("referrer", out.UserID),
		slog.String("referee", refereeID),
		slog.String("code", code))
	return out, nil
}
