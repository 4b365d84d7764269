package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// TelegramChannel 通过 Telegram Bot API 推送告警。
// HTTPClient 可注入 httptest，便于不出网测试。
type TelegramChannel struct {
	BotToken   string
	ChatID     string
	BaseURL    string
	HTTPClient *http.Client
}

func NewTelegramChannel(botToken, chatID string) *TelegramChannel {
	return &TelegramChannel{
		BotToken:   botToken,
		ChatID:     chatID,
		BaseURL:    "https://api.telegram.org",
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Send(alert Alert) error {
	if c.BotToken == "" || c.ChatID == "" {
		return fmt.Errorf("telegram channel not configured")
	}

	text := fmt.Sprintf("[%s] %s", alert.Level, alert.Message)
	for k, v := range alert.Fields {
		text += fmt.Sprintf("\n%s: %v", k, v)
	}

	body, err := json.Marshal(map[string]string{
		"chat_id": c.ChatID,
		"text":    text,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.BaseURL, c.BotToken)
	resp, err := c.HTTPClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("telegram send status %d", resp.StatusCode)
	}
	return nil
}
