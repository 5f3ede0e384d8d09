package bot

import (
	"context"
	"fmt"
	"html"
	"os"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/rs/zerolog"
)

// Sender is the part of *telego.Bot the notifier needs.
type Sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	SendPhoto(ctx context.Context, params *telego.SendPhotoParams) (*telego.Message, error)
}

// Welcome is emitted once per /start after the linker finished.
type Welcome struct {
	ChatID       int64
	DisplayName  string
	ReferralLink string
}

// ReferralLink is the deep link that starts the bot with userID as referrer.
func ReferralLink(botUsername, userID string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", botUsername, userID)
}

type NotifierOptions struct {
	CommunityURL string
	WebAppURL    string
	// LogoPath is sent as the welcome photo; empty sends a text message.
	LogoPath string
}

// Notifier sends the onboarding message.
type Notifier struct {
	sender Sender
	opts   NotifierOptions
	log    zerolog.Logger
}

func NewNotifier(sender Sender, opts NotifierOptions, log zerolog.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		opts:   opts,
		log:    log.With().Str("component", "onboarding_notifier").Logger(),
	}
}

// Welcome greets the user and hands out their personal referral link.
func (n *Notifier) Welcome(ctx context.Context, w Welcome) error {
	caption := welcomeText(w)
	keyboard := n.keyboard()

	if n.opts.LogoPath != "" {
		logo, err := os.Open(n.opts.LogoPath)
		if err == nil {
			defer logo.Close()
			params := tu.Photo(tu.ID(w.ChatID), tu.File(logo)).
				WithCaption(caption).
				WithParseMode(telego.ModeHTML)
			if keyboard != nil {
				params = params.WithReplyMarkup(keyboard)
			}
			if _, err := n.sender.SendPhoto(ctx, params); err != nil {
				return fmt.Errorf("send welcome photo to %d: %w", w.ChatID, err)
			}
			return nil
		}
		n.log.Warn().Err(err).Str("path", n.opts.LogoPath).Msg("Logo unavailable, sending text welcome")
	}

	params := tu.Message(tu.ID(w.ChatID), caption).WithParseMode(telego.ModeHTML)
	if keyboard != nil {
		params = params.WithReplyMarkup(keyboard)
	}
	if _, err := n.sender.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send welcome to %d: %w", w.ChatID, err)
	}
	return nil
}

func (n *Notifier) keyboard() *telego.InlineKeyboardMarkup {
	var rows [][]telego.InlineKeyboardButton
	if n.opts.CommunityURL != "" {
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("Join Community 🧑‍💻").WithURL(n.opts.CommunityURL),
		))
	}
	if n.opts.WebAppURL != "" {
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("Start Mining").WithWebApp(&telego.WebAppInfo{URL: n.opts.WebAppURL}),
		))
	}
	if len(rows) == 0 {
		return nil
	}
	return tu.InlineKeyboard(rows...)
}

func welcomeText(w Welcome) string {
	link := html.EscapeString(w.ReferralLink)
	return fmt.Sprintf("Hello %s! Welcome.\n\nYour referral link is: \n<a href=\"%s\">%s</a>",
		html.EscapeString(w.DisplayName), link, link)
}
