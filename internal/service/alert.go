package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/TaroHarado/copytrade-key/internal/config"
	"github.com/TaroHarado/copytrade-key/internal/pkg/logger"
)

// AlertSink receives guard-breach notifications. Delivery is best-effort:
// a sink failure must never fail the request that triggered it.
type AlertSink interface {
	Send(ctx context.Context, message string)
}

// TelegramAlerter posts alerts to the Telegram Bot API.
type TelegramAlerter struct {
	botToken   string
	chatID     string
	httpClient *http.Client
}

func NewTelegramAlerter(cfg config.AlertsConfig) *TelegramAlerter {
	return &TelegramAlerter{
		botToken: cfg.TelegramBotToken,
		chatID:   cfg.TelegramChatID,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (t *TelegramAlerter) Send(ctx context.Context, message string) {
	if t.botToken == "" || t.chatID == "" {
		// No channel configured: keep the alert visible in the log stream.
		logger.Error("ALERT (telegram not configured)", "message", message)
		return
	}

	payload, err := json.Marshal(map[string]string{
		"chat_id": t.chatID,
		"text":    message,
	})
	if err != nil {
		return
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		logger.Error("failed to build telegram alert request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		logger.Error("failed to send telegram alert", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Error("telegram alert rejected", "status", resp.StatusCode)
	}
}
