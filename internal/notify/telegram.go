package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"joke-pipeline/internal/config"
	"joke-pipeline/pkg/logger"

	"gopkg.in/telebot.v4"
)

var (
	ErrEmptyToken  = errors.New("telegram bot token is required")
	ErrEmptyChat   = errors.New("telegram chat id is required")
	ErrRateLimited = errors.New("telegram rate limited")
)

type sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// Telegram reports failed pipeline runs to a single chat.
type Telegram struct {
	bot        sender
	chat       *telebot.Chat
	maxRetries int
	retryDelay time.Duration
}

func NewTelegram(cfg config.NotifyConfig) (*Telegram, error) {
	if cfg.Token == "" {
		return nil, ErrEmptyToken
	}
	if cfg.ChatID == 0 {
		return nil, ErrEmptyChat
	}

	bot, err := telebot.NewBot(telebot.Settings{
		Token:   cfg.Token,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return newTelegram(bot, cfg.ChatID), nil
}

func newTelegram(bot sender, chatID int64) *Telegram {
	return &Telegram{
		bot:        bot,
		chat:       &telebot.Chat{ID: chatID},
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

func FailureMessage(runID, stage string, err error) string {
	return fmt.Sprintf("Pipeline run %s failed at stage %s: %v", runID, stage, err)
}

func (t *Telegram) NotifyFailure(ctx context.Context, runID, stage string, runErr error) error {
	return t.sendWithRetry(ctx, FailureMessage(runID, stage, runErr))
}

func (t *Telegram) sendWithRetry(ctx context.Context, text string) error {
	retryDelay := t.retryDelay

	for i := 0; i < t.maxRetries; i++ {
		_, err := t.bot.Send(t.chat, text)
		if err == nil {
			return nil
		}

		if !isRateLimit(err) {
			return fmt.Errorf("failed to send message: %w", err)
		}

		logger.Warn("Rate limited, retrying...",
			logger.Int("retry", i+1),
			logger.Int("max_retries", t.maxRetries),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
		retryDelay *= 2
	}

	return ErrRateLimited
}

func isRateLimit(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "retry after")
}
