// Package notify delivers run messages to an operator chat.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aluiziolira/go-product-monitor/config"
)

// MaxMessageLength is the Telegram limit on message text, in characters.
const MaxMessageLength = 4096

// Notifier sends a text message. Delivery failures are logged, never returned.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// Nop drops every message.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, string) {}

// Telegram posts messages through the Bot API sendMessage method.
type Telegram struct {
	Client  *http.Client
	APIBase string
	Token   string
	ChatID  string
	Logger  *slog.Logger
}

// New returns a Telegram notifier, or Nop when either credential is missing.
func New(cfg *config.Config, logger *slog.Logger) Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.NotifierEnabled() {
		logger.Warn("telegram credentials missing, notifications disabled")
		return Nop{}
	}
	return &Telegram{
		Client:  &http.Client{Timeout: cfg.Timeout},
		APIBase: cfg.TelegramAPIBase,
		Token:   cfg.TelegramToken,
		ChatID:  cfg.TelegramChatID,
		Logger:  logger,
	}
}

// Notify sends message to the configured chat.
func (t *Telegram) Notify(ctx context.Context, message string) {
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := t.send(ctx, Truncate(message, MaxMessageLength)); err != nil {
		logger.Error("telegram notification failed", slog.Any("error", err))
		return
	}
	logger.Info("telegram notification sent", slog.String("chat_id", t.ChatID))
}

func (t *Telegram) send(ctx context.Context, text string) error {
	endpoint := strings.TrimRight(t.APIBase, "/") + "/bot" + t.Token + "/sendMessage"
	form := url.Values{}
	form.Set("chat_id", t.ChatID)
	form.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		// the request error embeds the URL and with it the bot token
		return fmt.Errorf("send message: %w", redact(err, t.Token))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("send message: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// Truncate shortens s to at most limit characters.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func redact(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), token, "<redacted>"))
}
