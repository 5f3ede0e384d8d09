package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/rs/zerolog"

	"mining-bot/internal/metrics"
	"mining-bot/internal/models"
	"mining-bot/internal/referral"
	"mining-bot/internal/store"
)

// maxPayloadLen matches the width of the user id column.
const maxPayloadLen = 64

type Bot struct {
	Instance *telego.Bot
	Linker   *referral.Linker
	Store    store.Store
	Notifier *Notifier
	Metrics  *metrics.Metrics
	Username string
	log      zerolog.Logger
}

// NewBot creates the Telegram client. When username is empty it is looked up
// with getMe, since referral links need it.
func NewBot(ctx context.Context, token, username string, opts NotifierOptions, linker *referral.Linker, st store.Store, m *metrics.Metrics, log zerolog.Logger) (*Bot, error) {
	tgBot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	if username == "" {
		me, err := tgBot.GetMe(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get bot info: %w", err)
		}
		username = me.Username
	}

	log = log.With().Str("component", "bot").Logger()
	return &Bot{
		Instance: tgBot,
		Linker:   linker,
		Store:    st,
		Notifier: NewNotifier(tgBot, opts, log),
		Metrics:  m,
		Username: username,
		log:      log,
	}, nil
}

// Start handles updates until ctx is cancelled.
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
	handler.Handle(b.handleBalance, th.CommandEqual("balance"))

	go func() {
		<-ctx.Done()
		handler.Stop()
	}()

	b.log.Info().Str("username", b.Username).Msg("Bot started")
	handler.Start()
	return nil
}

func (b *Bot) handleStart(ctx *th.Context, update telego.Update) error {
	message := update.Message
	if message.From == nil {
		return nil
	}
	chatID := message.Chat.ID
	userID := strconv.FormatInt(chatID, 10)

	contact := referral.Contact{
		UserID:      userID,
		DisplayName: message.From.FirstName,
		AvatarURL:   b.avatarURL(ctx.Context(), chatID),
	}
	res, err := b.Linker.Attach(ctx.Context(), contact, startPayload(message.Text))
	b.Metrics.ObserveContact(res, err)
	if err != nil {
		b.log.Error().Err(err).Str("user_id", userID).Msg("Failed to register user")
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
			tu.ID(chatID),
			"Something went wrong, please send /start again in a moment.",
		))
		return nil
	}

	err = b.Notifier.Welcome(ctx.Context(), Welcome{
		ChatID:       chatID,
		DisplayName:  message.From.FirstName,
		ReferralLink: ReferralLink(b.Username, userID),
	})
	if err != nil {
		b.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to send welcome")
	}
	return nil
}

func (b *Bot) handleBalance(ctx *th.Context, update telego.Update) error {
	chatID := update.Message.Chat.ID
	userID := strconv.FormatInt(chatID, 10)

	text := "Send /start to begin mining."
	rec, err := b.Store.Get(ctx.Context(), userID)
	switch {
	case err == nil:
		text = profileText(rec, ReferralLink(b.Username, userID), time.Now())
	case !errors.Is(err, store.ErrNotFound):
		b.log.Error().Err(err).Str("user_id", userID).Msg("Failed to load profile")
		text = "Profile is unavailable right now, try again later."
	}

	_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(chatID), text).WithParseMode(telego.ModeHTML))
	return nil
}

// avatarURL returns the download url of the user's first profile photo, or "".
func (b *Bot) avatarURL(ctx context.Context, userID int64) string {
	photos, err := b.Instance.GetUserProfilePhotos(ctx, &telego.GetUserProfilePhotosParams{UserID: userID, Limit: 1})
	if err != nil {
		b.log.Debug().Err(err).Int64("user_id", userID).Msg("Failed to get profile photos")
		return ""
	}
	if photos.TotalCount == 0 || len(photos.Photos) == 0 || len(photos.Photos[0]) == 0 {
		return ""
	}

	file, err := b.Instance.GetFile(ctx, &telego.GetFileParams{FileID: photos.Photos[0][0].FileID})
	if err != nil {
		b.log.Debug().Err(err).Int64("user_id", userID).Msg("Failed to get profile photo file")
		return ""
	}
	return b.Instance.FileDownloadURL(file.FilePath)
}

// startPayload extracts the referrer id from "/start <id>".
func startPayload(text string) string {
	fields := strings.Fields(text)
	if len(fields) < 2 || len(fields[1]) > maxPayloadLen {
		return ""
	}
	return fields[1]
}

func profileText(rec *models.UserRecord, link string, now time.Time) string {
	var window string
	switch rec.AccrualState(now) {
	case models.NoWindow:
		window = "no bonus window"
	case models.ActiveWindow:
		window = "bonus window until " + rec.AccrualWindowExpiry.UTC().Format("02.01.2006 15:04 UTC")
	case models.Expired:
		window = "bonus window expired, mining paused until the daily reset"
	}

	return fmt.Sprintf("⛏ <b>Your mining</b>\n\n"+
		"Balance: %s\n"+
		"Hashrate: %s per tick (%s)\n"+
		"Referrals: %d / %d / %d\n\n"+
		"Referral link: %s",
		rec.Balance, rec.AccrualRate, window,
		len(rec.Descendants(models.Level1)),
		len(rec.Descendants(models.Level2)),
		len(rec.Descendants(models.Level3)),
		html.EscapeString(link),
	)
}
