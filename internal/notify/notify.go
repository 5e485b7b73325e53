// Package notify sends short operator messages about account runs.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/ratelimit"
)

// MaxMessageLength is the Telegram limit for one text message.
const MaxMessageLength = 4096

// DefaultMessagesPerSecond paces messages to a single chat.
const DefaultMessagesPerSecond = 1

// ErrNoChat is returned when a Telegram notifier is built without a chat id.
var ErrNoChat = errors.New("notify: telegram chat id is required")

// Notifier delivers a message to the operator.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Nop discards every message.
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }

// Sender is the part of the Telegram bot API the notifier uses. *telego.Bot
// implements it.
type Sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// Telegram posts messages to one chat.
type Telegram struct {
	sender  Sender
	chatID  int64
	limiter ratelimit.Limiter
	logger  *slog.Logger
}

// TelegramOption configures a Telegram notifier.
type TelegramOption func(*telegramOptions)

type telegramOptions struct {
	client    *http.Client
	apiServer string
	rate      int
}

// WithHTTPClient sends bot API requests through client.
func WithHTTPClient(client *http.Client) TelegramOption {
	return func(o *telegramOptions) { o.client = client }
}

// WithAPIServer points the bot at a different API server.
func WithAPIServer(url string) TelegramOption {
	return func(o *telegramOptions) { o.apiServer = url }
}

// WithRate sets the number of messages allowed per second.
func WithRate(perSecond int) TelegramOption {
	return func(o *telegramOptions) { o.rate = perSecond }
}

// NewTelegram creates a bot for token that writes to chatID.
func NewTelegram(token string, chatID int64, logger *slog.Logger, opts ...TelegramOption) (*Telegram, error) {
	if chatID == 0 {
		return nil, ErrNoChat
	}
	o := telegramOptions{rate: DefaultMessagesPerSecond}
	for _, opt := range opts {
		opt(&o)
	}

	botOpts := []telego.BotOption{telego.WithDiscardLogger()}
	if o.client != nil {
		botOpts = append(botOpts, telego.WithHTTPClient(o.client))
	}
	if o.apiServer != "" {
		botOpts = append(botOpts, telego.WithAPIServer(o.apiServer))
	}
	bot, err := telego.NewBot(token, botOpts...)
	if err != nil {
		return nil, fmt.Errorf("notify: create telegram bot: %w", err)
	}
	return NewTelegramSender(bot, chatID, o.rate, logger), nil
}

// NewTelegramSender wraps an existing sender.
func NewTelegramSender(sender Sender, chatID int64, perSecond int, logger *slog.Logger) *Telegram {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if perSecond <= 0 {
		perSecond = DefaultMessagesPerSecond
	}
	return &Telegram{
		sender:  sender,
		chatID:  chatID,
		limiter: ratelimit.New(perSecond),
		logger:  logger,
	}
}

// Notify sends text, truncated to the message limit.
func (t *Telegram) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.limiter.Take()

	text = truncate(text, MaxMessageLength)
	if _, err := t.sender.SendMessage(ctx, tu.Message(tu.ID(t.chatID), text)); err != nil {
		return fmt.Errorf("notify: send to chat %d: %w", t.chatID, err)
	}
	t.logger.Debug("notification sent", "chat_id", t.chatID, "length", len(text))
	return nil
}

// truncate cuts s to at most limit runes, marking the cut with an ellipsis.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
