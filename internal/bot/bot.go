package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"ghibli-bot/internal/config"
	"ghibli-bot/internal/imagegen"
	"ghibli-bot/internal/ledger"
	"ghibli-bot/internal/models"
	"ghibli-bot/internal/utils"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
)

// Transformer is the external image-to-image model.
type Transformer interface {
	Transform(ctx context.Context, image []byte, strength float64) (*imagegen.Result, error)
}

type Bot struct {
	Instance    *telego.Bot
	Ledger      *ledger.Ledger
	Transformer Transformer
	Config      *config.Config
	Logger      *slog.Logger
}

func NewBot(cfg *config.Config, l *ledger.Ledger, transformer Transformer, logger *slog.Logger) (*Bot, error) {
	tgBot, err := telego.NewBot(cfg.Bot.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		Instance:    tgBot,
		Ledger:      l,
		Transformer: transformer,
		Config:      cfg,
		Logger:      logger,
	}, nil
}

func (b *Bot) Start(ctx context.Context) error {
	updates, err := b.Instance.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	handler, err := th.NewBotHandler(b.Instance, updates)
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}

	handler.Handle(b.handleStart, th.CommandEqual("start"))
	handler.Handle(b.command(b.helpText), th.CommandEqual("help"))
	handler.Handle(b.handleLimit, th.CommandEqual("limit"))
	handler.Handle(b.handleReferral, th.CommandEqual("referral"))
	handler.Handle(b.handleTop, th.CommandEqual("top"))
	handler.Handle(b.handleTopReferrers, th.CommandEqual("topref"))
	handler.Handle(b.handleStrength, th.CommandEqual("strength"))
	handler.Handle(b.handleStats, th.CommandEqual("stats"))
	handler.Handle(b.handleUserStats, th.CommandEqual("userstats"))
	handler.Handle(b.handleAddLimit, th.CommandEqual("addlimit"))
	handler.Handle(b.handleReduceLimit, th.CommandEqual("reducelimit"))
	handler.Handle(b.handleSetRole(models.RoleVIP), th.CommandEqual("vip"))
	handler.Handle(b.handleSetRole(models.RoleUser), th.CommandEqual("unvip"))
	handler.Handle(b.handleBroadcast, th.CommandEqual("broadcast"))
	handler.Handle(b.handleBackup, th.CommandEqual("backup"))
	handler.Handle(b.handleGenerate, photoWithCaptionCommand("ghibli"))

	handler.Handle(b.callback(b.limitText), th.CallbackDataEqual("check_limit"))
	handler.Handle(b.callback(b.referralText), th.CallbackDataEqual("referral"))
	handler.Handle(b.callback(b.topText), th.CallbackDataEqual("top_users"))
	handler.Handle(b.callback(b.topReferrersText), th.CallbackDataEqual("top_referrers"))
	handler.Handle(b.callback(b.tutorialText), th.CallbackDataEqual("tutorial"))
	handler.Handle(b.callback(b.aboutText), th.CallbackDataEqual("about"))

	// Long polling stops with ctx, which closes updates and ends the handler.
	handler.Start()
	return nil
}

func photoWithCaptionCommand(command string) th.Predicate {
	return func(_ context.Context, update telego.Update) bool {
		m := update.Message
		if m == nil || len(m.Photo) == 0 {
			return false
		}
		fields := strings.Fields(m.Caption)
		if len(fields) == 0 {
			return false
		}
		name, _, _ := strings.Cut(strings.TrimPrefix(fields[0], "/"), "@")
		return strings.HasPrefix(fields[0], "/") && name == command
	}
}

func userID(u *telego.User) string {
	return strconv.FormatInt(u.ID, 10)
}

func profileOf(u *telego.User) *ledger.Profile {
	return &ledger.Profile{Username: u.Username, FirstName: u.FirstName, LastName: u.LastName}
}

func commandArgs(text string) []string {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return nil
	}
	return fields[1:]
}

func textMessage(chatID int64, text string) *telego.SendMessageParams {
	return tu.Message(tu.ID(chatID), text)
}

func (b *Bot) reply(ctx *th.Context, chatID int64, text string) {
	_, err := ctx.Bot().SendMessage(ctx.Context(), textMessage(chatID, text).WithParseMode(telego.ModeMarkdown))
	if err != nil {
		b.Logger.Error("failed to send message", slog.Int64("chat_id", chatID), slog.String("error", err.Error()))
	}
}

// fail reports a ledger error to the user and logs storage failures.
func (b *Bot) fail(ctx *th.Context, chatID int64, err error) {
	b.Logger.Error("ledger operation failed", slog.Int64("chat_id", chatID), slog.String("error", err.Error()))
	b.reply(ctx, chatID, "❌ Something went wrong, please try again later.")
}

func (b *Bot) callback(render func(ctx context.Context, from *telego.User) (string, error)) th.Handler {
	return func(ctx *th.Context, update telego.Update) error {
		q := update.CallbackQuery
		text, err := render(ctx.Context(), &q.From)
		if err != nil {
			b.fail(ctx, q.From.ID, err)
		} else {
			b.reply(ctx, q.From.ID, text)
		}
		_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(q.ID))
		return nil
	}
}

func (b *Bot) handleStart(ctx *th.Context, update telego.Update) error {
	message := update.Message
	from := message.From
	id := userID(from)

	if args := commandArgs(message.Text); len(args) > 0 {
		if code, ok := utils.ExtractReferralCode(args[0]); ok {
			b.redeem(ctx, from, code)
		}
	}

	u, err := b.Ledger.GetOrCreate(ctx.Context(), id, profileOf(from))
	if err != nil {
		b.fail(ctx, message.Chat.ID, err)
		return nil
	}

	keyboard := tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("🔄 Check limit").WithCallbackData("check_limit"),
			tu.InlineKeyboardButton("🔗 Referral").WithCallbackData("referral"),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("🏆 Top users").WithCallbackData("top_users"),
			tu.InlineKeyboardButton("🤝 Top referrers").WithCallbackData("top_referrers"),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("ℹ️ Tutorial").WithCallbackData("tutorial"),
			tu.InlineKeyboardButton("🤖 About").WithCallbackData("about"),
		),
	)

	text := fmt.Sprintf("🌟 Hi %s! Welcome to the Ghibli bot 🌟\n\n"+
		"*Daily limit:* `%d` photos left\n"+
		"*Last generation:* %s\n\n"+
		"Send a photo with the caption /ghibli in one of the allowed groups.",
		from.FirstName, u.RemainingLimit, utils.FormatTimeAgo(u.LastGenerationTime, time.Now()))

	_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(message.Chat.ID), text).
		WithParseMode(telego.ModeMarkdown).
		WithReplyMarkup(keyboard))
	return nil
}

func (b *Bot) redeem(ctx *th.Context, from *telego.User, code string) {
	referrer, err := b.Ledger.Redeem(ctx.Context(), userID(from), code)
	switch {
	case errors.Is(err, ledger.ErrReferralInvalid), errors.Is(err, ledger.ErrReferralDisabled):
		b.Logger.Info("referral rejected", slog.Int64("user_id", from.ID), slog.String("reason", err.Error()))
		return
	case err != nil:
		b.fail(ctx, from.ID, err)
		return
	}

	rc := b.Config.Referral
	b.reply(ctx, from.ID, fmt.Sprintf("👋 You joined through %s's referral and got +%d limit!",
		referrer.DisplayName(), rc.RefereeBonus))

	referrerChat, err := strconv.ParseInt(referrer.UserID, 10, 64)
	if err != nil {
		return
	}
	name := from.FirstName
	if name == "" {
		name = "a new user"
	}
	b.reply(ctx, referrerChat, fmt.Sprintf("🎉 %s used your referral link! You got +%d limit.", name, rc.ReferrerBonus))
}

func (b *Bot) limitText(ctx context.Context, from *telego.User) (string, error) {
	u, err := b.Ledger.GetOrCreate(ctx, userID(from), profileOf(from))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("📊 *Remaining today:* `%d`\n*Total generations:* `%d`\n\nLimits reset at midnight (%s).",
		u.RemainingLimit, u.TotalGenerations, b.Config.Features.Timezone), nil
}

func (b *Bot) referralText(ctx context.Context, from *telego.User) (string, error) {
	code, err := b.Ledger.IssueCode(ctx, userID(from))
	if err != nil {
		return "", err
	}
	u, err := b.Ledger.GetOrCreate(ctx, userID(from), nil)
	if err != nil {
		return "", err
	}
	rc := b.Config.Referral
	return fmt.Sprintf("🔗 Your referral link: %s\n\n"+
		"Everyone who joins with it gets +%d limit and you get +%d.\n"+
		"Reach %d referrals for a one-time +%d bonus.\n\n"+
		"👥 Referred so far: %d",
		b.Ledger.ReferralLink(code), rc.RefereeBonus, rc.ReferrerBonus, rc.MinUsesExtra, rc.ExtraBonus,
		u.Referral.TotalReferrals), nil
}

func (b *Bot) helpText(_ context.Context, _ *telego.User) (string, error) {
	f, rc := b.Config.Features, b.Config.Referral
	return fmt.Sprintf("🚀 *Ghibli bot help*\n\n"+
		"1️⃣ Join the required channels first\n"+
		"2️⃣ The bot only works inside the allowed groups\n"+
		"3️⃣ You get *%d* generations per day (%d for VIP)\n"+
		"4️⃣ Send a photo with the caption `/ghibli` in the group\n\n"+
		"*Commands*\n"+
		"/start - main menu\n/help - this help\n/limit - remaining generations\n"+
		"/referral - your referral link\n/top - top users\n/topref - top referrers\n"+
		"/strength - style strength (%.1f-%.1f)\n\n"+
		"*Referrals*\n"+
		"Friends who join with your link get +%d, you get +%d per friend, "+
		"and +%d once %d friends joined.",
		f.DailyLimit, f.VIPDailyLimit, f.MinStrength, f.MaxStrength,
		rc.RefereeBonus, rc.ReferrerBonus, rc.ExtraBonus, rc.MinUsesExtra), nil
}

func (b *Bot) tutorialText(_ context.Context, _ *telego.User) (string, error) {
	return fmt.Sprintf("📚 *Tutorial*\n\n"+
		"1️⃣ Join all %d required channels\n"+
		"2️⃣ Make sure you are in an allowed group\n"+
		"3️⃣ Send a photo with the caption `/ghibli`\n"+
		"4️⃣ Wait for the result, usually 10-30 seconds\n\n"+
		"Limits reset at midnight (%s).\n\n"+
		"💡 Well-lit close-up photos give the best results.",
		len(b.Config.Channels.RequiredChannels), b.Config.Features.Timezone), nil
}

func (b *Bot) aboutText(_ context.Context, _ *telego.User) (string, error) {
	return fmt.Sprintf("🤖 *About*\n\n"+
		"@%s turns your photos into Studio Ghibli style artwork.\n\n"+
		"Version: `%s`",
		b.Config.Bot.Username, b.Config.Bot.Version), nil
}

func formatBoard(title string, entries []models.LeaderboardEntry) string {
	if len(entries) == 0 {
		return title + "\n\nNo entries yet."
	}
	var sb strings.Builder
	sb.WriteString(title + "\n")
	for i, e := range entries {
		name := e.FirstName
		if name == "" && e.Username != "" {
			name = "@" + e.Username
		}
		if name == "" {
			name = "User " + e.UserID
		}
		fmt.Fprintf(&sb, "\n%d. %s — %d", i+1, name, e.Score)
	}
	return sb.String()
}

func (b *Bot) topText(ctx context.Context, _ *telego.User) (string, error) {
	entries, err := b.Ledger.TopGenerations(ctx)
	if err != nil {
		return "", err
	}
	return formatBoard("🏆 *Top users*", entries), nil
}

func (b *Bot) topReferrersText(ctx context.Context, _ *telego.User) (string, error) {
	entries, err := b.Ledger.TopReferrers(ctx)
	if err != nil {
		return "", err
	}
	return formatBoard("🤝 *Top referrers*", entries), nil
}

func (b *Bot) command(render func(ctx context.Context, from *telego.User) (string, error)) func(*th.Context, telego.Update) error {
	return func(ctx *th.Context, update telego.Update) error {
		text, err := render(ctx.Context(), update.Message.From)
		if err != nil {
			b.fail(ctx, update.Message.Chat.ID, err)
			return nil
		}
		b.reply(ctx, update.Message.Chat.ID, text)
		return nil
	}
}

func (b *Bot) handleLimit(ctx *th.Context, update telego.Update) error {
	return b.command(b.limitText)(ctx, update)
}

func (b *Bot) handleReferral(ctx *th.Context, update telego.Update) error {
	return b.command(b.referralText)(ctx, update)
}

func (b *Bot) handleTop(ctx *th.Context, update telego.Update) error {
	return b.command(b.topText)(ctx, update)
}

func (b *Bot) handleTopReferrers(ctx *th.Context, update telego.Update) error {
	return b.command(b.topReferrersText)(ctx, update)
}

func (b *Bot) handleStrength(ctx *th.Context, update telego.Update) error {
	message := update.Message
	f := b.Config.Features
	args := commandArgs(message.Text)
	if len(args) != 1 {
		b.reply(ctx, message.Chat.ID, fmt.Sprintf("Usage: /strength <%.1f-%.1f>", f.MinStrength, f.MaxStrength))
		return nil
	}
	s, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		b.reply(ctx, message.Chat.ID, "❌ Strength must be a number.")
		return nil
	}

	u, err := b.Ledger.SetStrength(ctx.Context(), userID(message.From), s)
	switch {
	case errors.Is(err, ledger.ErrInvalidStrength):
		b.reply(ctx, message.Chat.ID, fmt.Sprintf("❌ Strength must be between %.1f and %.1f.", f.MinStrength, f.MaxStrength))
	case err != nil:
		b.fail(ctx, message.Chat.ID, err)
	default:
		b.reply(ctx, message.Chat.ID, fmt.Sprintf("✅ Strength set to `%.2f`.", u.Preferences.Strength))
	}
	return nil
}

func (b *Bot) isAllowedGroup(chatID int64) bool {
	return slices.Contains(b.Config.Channels.AllowedGroups, chatID)
}
