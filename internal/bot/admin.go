package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"ghibli-bot/internal/ledger"
	"ghibli-bot/internal/models"
	"ghibli-bot/internal/utils"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
)

// authorize reports whether the sender holds any of perms and tells them
// when they do not.
func (b *Bot) authorize(ctx *th.Context, message *telego.Message, perms ...string) bool {
	for _, perm := range perms {
		ok, err := b.Ledger.HasPermission(ctx.Context(), userID(message.From), perm)
		if err != nil {
			b.fail(ctx, message.Chat.ID, err)
			return false
		}
		if ok {
			return true
		}
	}
	b.reply(ctx, message.Chat.ID, "❌ You don't have permission to use this command.")
	return false
}

// maxLimitChange bounds a single /addlimit or /reducelimit.
const maxLimitChange = 10000

// targetAndAmount parses "<user_id> <amount>".
func targetAndAmount(text string) (string, int, bool) {
	args := commandArgs(text)
	if len(args) != 2 {
		return "", 0, false
	}
	if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
		return "", 0, false
	}
	amount, err := strconv.Atoi(args[1])
	if err != nil || amount <= 0 || amount > maxLimitChange {
		return "", 0, false
	}
	return args[0], amount, true
}

func (b *Bot) changeLimit(ctx *th.Context, message *telego.Message, sign int, usage string) {
	target, amount, ok := targetAndAmount(message.Text)
	if !ok {
		b.reply(ctx, message.Chat.ID, usage)
		return
	}
	remaining, err := b.Ledger.ModifyQuota(ctx.Context(), target, sign*amount)
	if err != nil {
		b.fail(ctx, message.Chat.ID, err)
		return
	}
	b.Logger.Info("limit changed",
		slog.Int64("by", message.From.ID), slog.String("user_id", target), slog.Int("delta", sign*amount))
	b.reply(ctx, message.Chat.ID, fmt.Sprintf("✅ User `%s` now has `%d` generations left today.", target, remaining))
}

func (b *Bot) handleAddLimit(ctx *th.Context, update telego.Update) error {
	if b.authorize(ctx, update.Message, ledger.PermAddLimit, ledger.PermManageLimits) {
		b.changeLimit(ctx, update.Message, 1, "Usage: /addlimit <user_id> <amount>")
	}
	return nil
}

func (b *Bot) handleReduceLimit(ctx *th.Context, update telego.Update) error {
	if b.authorize(ctx, update.Message, ledger.PermManageLimits) {
		b.changeLimit(ctx, update.Message, -1, "Usage: /reducelimit <user_id> <amount>")
	}
	return nil
}

func (b *Bot) handleSetRole(role models.Role) th.Handler {
	return func(ctx *th.Context, update telego.Update) error {
		message := update.Message
		if !b.authorize(ctx, message, ledger.PermManageLimits) {
			return nil
		}
		args := commandArgs(message.Text)
		if len(args) != 1 {
			b.reply(ctx, message.Chat.ID, "Usage: /vip <user_id> or /unvip <user_id>")
			return nil
		}

		u, err := b.Ledger.SetRole(ctx.Context(), args[0], role)
		if err != nil {
			if errors.Is(err, ledger.ErrRoleImmutable) {
				b.reply(ctx, message.Chat.ID, "❌ That user's role comes from the configuration.")
				return nil
			}
			b.fail(ctx, message.Chat.ID, err)
			return nil
		}
		b.reply(ctx, message.Chat.ID, fmt.Sprintf("✅ User `%s` is now `%s`.", u.UserID, u.Role))
		return nil
	}
}

func (b *Bot) handleStats(ctx *th.Context, update telego.Update) error {
	message := update.Message
	if !b.authorize(ctx, message, ledger.PermViewStats) {
		return nil
	}
	sum, err := b.Ledger.Stats(ctx.Context())
	if err != nil {
		b.fail(ctx, message.Chat.ID, err)
		return nil
	}

	lastBackup := "never"
	if sum.LastBackup != nil {
		lastBackup = sum.LastBackup.Format("02.01.2006 15:04")
	}
	b.reply(ctx, message.Chat.ID, fmt.Sprintf("📊 *Bot statistics*\n\n"+
		"👥 Users: `%d`\n🖼 Generations: `%d`\n🔗 Referral links: `%d`\n🤝 Conversions: `%d`\n💾 Last backup: %s",
		sum.TotalUsers, sum.TotalGenerations, sum.ActiveLinks, sum.TotalConversions, lastBackup))
	return nil
}

func (b *Bot) handleBroadcast(ctx *th.Context, update telego.Update) error {
	message := update.Message
	if !b.authorize(ctx, message, ledger.PermBroadcast) {
		return nil
	}
	_, text, _ := strings.Cut(message.Text, " ")
	if text = strings.TrimSpace(text); text == "" {
		b.reply(ctx, message.Chat.ID, "Usage: /broadcast <message>")
		return nil
	}

	ids, err := b.Ledger.UserIDs(ctx.Context())
	if err != nil {
		b.fail(ctx, message.Chat.ID, err)
		return nil
	}
	sent := 0
	for _, id := range ids {
		chatID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		if _, err := ctx.Bot().SendMessage(ctx.Context(), textMessage(chatID, "📢 "+text)); err != nil {
			b.Logger.Warn("broadcast delivery failed", slog.String("user_id", id), slog.String("error", err.Error()))
			continue
		}
		sent++
	}
	b.reply(ctx, message.Chat.ID, fmt.Sprintf("✅ Broadcast delivered to %d/%d users.", sent, len(ids)))
	return nil
}

func (b *Bot) handleBackup(ctx *th.Context, update telego.Update) error {
	message := update.Message
	role, err := b.Ledger.ResolveRole(ctx.Context(), userID(message.From))
	if err != nil {
		b.fail(ctx, message.Chat.ID, err)
		return nil
	}
	if role != models.RoleOwner {
		b.reply(ctx, message.Chat.ID, "❌ Only the owner can create backups.")
		return nil
	}

	name, err := b.Ledger.Backup(ctx.Context())
	if err != nil {
		b.fail(ctx, message.Chat.ID, err)
		return nil
	}
	b.reply(ctx, message.Chat.ID, fmt.Sprintf("💾 Backup created: `%s`", name))
	return nil
}

func userStatsText(u *models.UserRecord, now time.Time) string {
	referredBy := "none"
	if u.Referral.ReferredBy != nil {
		referredBy = *u.Referral.ReferredBy
	}
	username := "none"
	if u.Username != "" {
		username = "@" + u.Username
	}
	return fmt.Sprintf("📊 *User statistics*\n\n"+
		"👤 *User ID:* `%s`\n👤 *Username:* `%s`\n👤 *Name:* `%s`\n"+
		"📅 *Joined:* %s\n🔢 *Total generations:* `%d`\n🔄 *Remaining today:* `%d`\n"+
		"🎯 *Status:* `%s`\n👑 *Role:* `%s`\n\n"+
		"*🔗 Referral*\n📌 *Referred by:* `%s`\n🔢 *Referrals:* `%d`\n🎁 *Bonus claimed:* `%t`\n\n"+
		"🕒 *Last generation:* %s",
		u.UserID, username, strings.TrimSpace(u.FirstName+" "+u.LastName),
		utils.FormatTimeAgo(&u.JoinDate, now), u.TotalGenerations, u.RemainingLimit,
		u.Status, u.Role,
		referredBy, len(u.Referral.ReferredUsers), u.Referral.BonusClaimed,
		utils.FormatTimeAgo(u.LastGenerationTime, now))
}

func (b *Bot) handleUserStats(ctx *th.Context, update telego.Update) error {
	message := update.Message
	if !b.authorize(ctx, message, ledger.PermViewStats) {
		return nil
	}
	args := commandArgs(message.Text)
	if len(args) != 1 {
		b.reply(ctx, message.Chat.ID, "Usage: /userstats <user_id> or /userstats @username")
		return nil
	}

	u, err := b.Ledger.FindUser(ctx.Context(), args[0])
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		b.reply(ctx, message.Chat.ID, "❌ User not found, check the id or username.")
	case err != nil:
		b.fail(ctx, message.Chat.ID, err)
	default:
		b.reply(ctx, message.Chat.ID, userStatsText(u, time.Now()))
	}
	return nil
}
