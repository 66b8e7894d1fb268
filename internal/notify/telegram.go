package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramConfig configures a TelegramSender.
type TelegramConfig struct {
	Token  string
	ChatID string
	// APIEndpoint overrides the Bot API URL template (tgbotapi.APIEndpoint).
	APIEndpoint string
	MaxRetries  int
	RetryDelay  time.Duration
}

// TelegramSender delivers notifications through the Telegram Bot API with
// linear-backoff retries.
type TelegramSender struct {
	bot        *tgbotapi.BotAPI
	chatID     int64
	maxRetries int
	retryDelay time.Duration
}

// NewTelegramSender connects to the Bot API (it calls getMe) and returns a
// sender for cfg.ChatID.
func NewTelegramSender(cfg TelegramConfig) (*TelegramSender, error) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(cfg.ChatID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("telegram: invalid chat id: %w", err)
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.Token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &TelegramSender{
		bot:        bot,
		chatID:     chatID,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}, nil
}

// Send posts a MarkdownV2 message with the title in bold.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	msg := tgbotapi.NewMessage(t.chatID, fmt.Sprintf("*%s*\n%s", escapeMarkdownV2(title), escapeMarkdownV2(message)))
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < t.maxRetries; i++ {
		if _, err := t.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if i == t.maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("telegram: send: %w", ctx.Err())
		case <-time.After(t.retryDelay * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("telegram: send failed after %d attempts: %w", t.maxRetries, lastErr)
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}

// escapeMarkdownV2 escapes the characters MarkdownV2 reserves.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, r := range text {
		switch r {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
