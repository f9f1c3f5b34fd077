// internal/notify/telegram.go
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/launch-sniper/internal/utils/httpclient"
)

const DefaultTelegramURL = "https://api.telegram.org"

// ErrTelegram is returned when the Bot API reports a failure.
var ErrTelegram = errors.New("telegram api error")

// TelegramConfig configures the Bot API client.
type TelegramConfig struct {
	Token       string `mapstructure:"token"`
	AdminChatID string `mapstructure:"admin_chat_id"`
	BaseURL     string `mapstructure:"base_url"`
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type botResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// Telegram sends messages through the Bot API sendMessage method.
type Telegram struct {
	http   *httpclient.Client
	token  string
	path   string
	logger *zap.Logger
}

// NewTelegram creates a Bot API notifier limited to 25 messages per second.
// Requests are not retried so the token never reaches retry logs.
func NewTelegram(cfg TelegramConfig, logger *zap.Logger) (*Telegram, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTelegramURL
	}
	logger = logger.Named("telegram")
	return &Telegram{
		http: httpclient.New(httpclient.Config{
			BaseURL:       cfg.BaseURL,
			Timeout:       10 * time.Second,
			RatePerSecond: 25,
			Burst:         5,
		}, logger),
		token:  cfg.Token,
		path:   "/bot" + cfg.Token + "/sendMessage",
		logger: logger,
	}, nil
}

// Notify sends text as Markdown to chatID.
func (t *Telegram) Notify(ctx context.Context, chatID, text string) error {
	if chatID == "" {
		return nil
	}
	var resp botResponse
	err := t.http.PostJSON(ctx, t.path, sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             "Markdown",
		DisableWebPagePreview: true,
	}, &resp)
	if err != nil {
		// The request URL carries the bot token.
		var status *httpclient.StatusError
		if errors.As(err, &status) {
			return fmt.Errorf("%w: status %d: %s", ErrTelegram, status.Code, status.Body)
		}
		return fmt.Errorf("send message: %s", strings.ReplaceAll(err.Error(), t.token, "<token>"))
	}
	if !resp.OK {
		return fmt.Errorf("%w: %d %s", ErrTelegram, resp.ErrorCode, resp.Description)
	}
	return nil
}
