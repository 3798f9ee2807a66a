// Package notify delivers rendered alerts to Telegram.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/brandon/alert-bridge/internal/config"
	"github.com/brandon/alert-bridge/pkg/types"
)

// maxCaptionLength is Telegram's limit for photo captions, in UTF-16
// code units
const maxCaptionLength = 1024

var (
	// ErrDelivery is wrapped by every failed send
	ErrDelivery = errors.New("telegram delivery failed")
	// ErrNoImage is returned for alerts without a screenshot
	ErrNoImage = errors.New("alert has no image")
)

// sender is the subset of *tgbotapi.BotAPI the notifier uses
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts alerts as photos with a caption and an optional
// link button
type TelegramNotifier struct {
	config  *config.TelegramConfig
	logger  *logrus.Logger
	connect func() (sender, error)
	bot     sender
}

// NewTelegramNotifier creates a notifier. The Bot API client is created on
// the first delivery, so a network outage at startup is not fatal.
func NewTelegramNotifier(cfg *config.TelegramConfig, timeout time.Duration, logger *logrus.Logger) *TelegramNotifier {
	httpClient := &http.Client{Timeout: timeout}

	return &TelegramNotifier{
		config: cfg,
		logger: logger,
		connect: func() (sender, error) {
			bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, httpClient)
			if err != nil {
				return nil, err
			}
			return bot, nil
		},
	}
}

// Notify sends the alert. The screenshot is written to the configured
// image path for the upload and removed afterwards.
func (n *TelegramNotifier) Notify(ctx context.Context, alert types.Alert) error {
	if alert.Image == nil {
		return ErrNoImage
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	if n.bot == nil {
		bot, err := n.connect()
		if err != nil {
			return fmt.Errorf("%w: failed to create bot client: %v", ErrDelivery, err)
		}
		n.bot = bot
	}

	path := n.config.ImagePath
	if err := writeImage(path, alert.Image); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			n.logger.WithError(err).WithField("path", path).Warn("Failed to remove temp image")
		}
	}()

	msg, err := n.bot.Send(n.buildPhoto(alert, path))
	if err != nil {
		entry := n.logger.WithError(err).WithField("chat_id", n.config.ChatID)
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) {
			entry = entry.WithFields(logrus.Fields{
				"code":        apiErr.Code,
				"retry_after": apiErr.RetryAfter,
			})
		}
		entry.Debug("Telegram rejected photo")
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	n.logger.WithFields(logrus.Fields{
		"chat_id":    n.config.ChatID,
		"message_id": msg.MessageID,
		"has_link":   alert.HasLink(),
	}).Info("Alert sent to Telegram")

	return nil
}

func (n *TelegramNotifier) buildPhoto(alert types.Alert, path string) tgbotapi.PhotoConfig {
	photo := tgbotapi.NewPhoto(n.config.ChatID, tgbotapi.FilePath(path))
	photo.Caption = truncate(alert.Summary, maxCaptionLength)

	if alert.HasLink() {
		photo.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonURL(n.config.ButtonLabel, alert.Link),
			),
		)
	}

	return photo
}

func writeImage(path string, image []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create image directory: %w", err)
		}
	}
	if err := os.WriteFile(path, image, 0o600); err != nil {
		return fmt.Errorf("failed to write temp image: %w", err)
	}
	return nil
}

// truncate cuts s to at most limit UTF-16 code units without splitting
// a character
func truncate(s string, limit int) string {
	units := 0
	for i, r := range s {
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		if units+n > limit {
			return s[:i]
		}
		units += n
	}
	return s
}
