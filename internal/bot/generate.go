package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"ghibli-bot/internal/ledger"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
)

// isSubscribed asks Telegram whether userID joined every required channel.
func (b *Bot) isSubscribed(ctx context.Context, userID int64) (bool, error) {
	for _, channelID := range b.Config.Channels.RequiredChannels {
		member, err := b.Instance.GetChatMember(ctx, &telego.GetChatMemberParams{
			ChatID: tu.ID(channelID),
			UserID: userID,
		})
		if err != nil {
			return false, fmt.Errorf("failed to check membership in %d: %w", channelID, err)
		}
		switch member.MemberStatus() {
		case "left", "kicked":
			return false, nil
		}
	}
	return true, nil
}

func (b *Bot) handleGenerate(ctx *th.Context, update telego.Update) error {
	message := update.Message
	chatID := message.Chat.ID
	id := userID(message.From)

	if !b.isAllowedGroup(chatID) {
		b.reply(ctx, chatID, "❌ This bot only works in the allowed groups.")
		return nil
	}

	subscribed, err := b.isSubscribed(ctx.Context(), message.From.ID)
	if err != nil {
		b.Logger.Error("membership check failed", slog.Int64("user_id", message.From.ID), slog.String("error", err.Error()))
		b.reply(ctx, chatID, "❌ Could not verify your channel subscriptions, try again later.")
		return nil
	}
	if !subscribed {
		b.reply(ctx, chatID, "❌ Join all required channels first, then try again.")
		return nil
	}

	u, err := b.Ledger.GetOrCreate(ctx.Context(), id, profileOf(message.From))
	if err != nil {
		b.fail(ctx, chatID, err)
		return nil
	}
	if _, err := b.Ledger.CheckQuota(ctx.Context(), id); err != nil {
		if errors.Is(err, ledger.ErrQuotaExhausted) {
			b.reply(ctx, chatID, "❌ Your daily limit is used up. It resets at midnight, or invite friends with /referral for bonus limits.")
			return nil
		}
		b.fail(ctx, chatID, err)
		return nil
	}

	input, err := b.downloadPhoto(ctx, message)
	if err != nil {
		b.Logger.Error("failed to download photo", slog.String("user_id", id), slog.String("error", err.Error()))
		b.reply(ctx, chatID, "❌ Could not download your photo.")
		return nil
	}
	b.keepTemp(id, "input", input)

	b.reply(ctx, chatID, "🔄 Processing your photo...")

	// The ledger is not locked while the model runs.
	tctx, cancel := context.WithTimeout(ctx.Context(), b.Config.Image.Timeout)
	defer cancel()
	result, err := b.Transformer.Transform(tctx, input, u.Preferences.Strength)
	if err != nil {
		b.Logger.Error("image transformation failed", slog.String("user_id", id), slog.String("error", err.Error()))
		b.reply(ctx, chatID, "❌ Error while processing the image. Your limit was not used.")
		return nil
	}
	b.keepTemp(id, "output", result.Image)

	u, err = b.Ledger.CommitGeneration(ctx.Context(), id)
	if err != nil {
		b.fail(ctx, chatID, err)
		return nil
	}

	caption := fmt.Sprintf("✨ Your Ghibli photo is ready! ✨\n\n"+
		"👤 *By:* [%s](tg://user?id=%d)\n"+
		"⏱ *Processing time:* `%.2f`s\n"+
		"🔄 *Limit left:* `%d`",
		message.From.FirstName, message.From.ID, result.Elapsed.Seconds(), u.RemainingLimit)

	photo := tu.Photo(tu.ID(chatID), tu.File(tu.NameReader(bytes.NewReader(result.Image), "ghibli.jpg"))).
		WithCaption(caption).
		WithParseMode(telego.ModeMarkdown).
		WithReplyParameters(&telego.ReplyParameters{MessageID: message.MessageID})
	if _, err := ctx.Bot().SendPhoto(ctx.Context(), photo); err != nil {
		b.Logger.Error("failed to send result photo", slog.String("user_id", id), slog.String("error", err.Error()))
	}
	return nil
}

func (b *Bot) downloadPhoto(ctx *th.Context, message *telego.Message) ([]byte, error) {
	largest := message.Photo[len(message.Photo)-1]
	file, err := ctx.Bot().GetFile(ctx.Context(), &telego.GetFileParams{FileID: largest.FileID})
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	data, err := tu.DownloadFile(ctx.Bot().FileDownloadURL(file.FilePath))
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	return data, nil
}

// keepTemp stores a copy of an image in the temp dir for troubleshooting;
// the cleaner worker removes it later.
func (b *Bot) keepTemp(id, kind string, data []byte) {
	dir := b.Config.Storage.TempDir
	if dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		b.Logger.Warn("failed to create temp dir", slog.String("error", err.Error()))
		return
	}
	name := filepath.Join(dir, fmt.Sprintf("%s_%d_%s.jpg", id, time.Now().Unix(), kind))
	if err := os.WriteFile(name, data, 0o644); err != nil {
		b.Logger.Warn("failed to write temp image", slog.String("error", err.Error()))
	}
}
