package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"sync"
	"time"
)

// Bot sends notifications through the Telegram Bot API
type Bot struct {
	mu         sync.RWMutex
	botToken   string
	chatID     string
	enabled    bool
	httpClient *http.Client
}

// Config holds Telegram bot configuration
type Config struct {
	BotToken string
	ChatID   string
	Enabled  bool
}

// apiResponse is the envelope every Bot API call returns
type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// NewBot creates a bot instance
func NewBot(config Config) *Bot {
	return &Bot{
		botToken:   config.BotToken,
		chatID:     config.ChatID,
		enabled:    config.Enabled,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// IsEnabled returns whether the bot is enabled
func (b *Bot) IsEnabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.enabled
}

// SetEnabled enables or disables the bot
func (b *Bot) SetEnabled(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = enabled
}

// UpdateConfig replaces the bot configuration
func (b *Bot) UpdateConfig(config Config) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.botToken = config.BotToken
	b.chatID = config.ChatID
	b.enabled = config.Enabled
}

func (b *Bot) credentials() (token, chatID string, err error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.enabled {
		return "", "", fmt.Errorf("telegram bot is disabled")
	}
	if b.botToken == "" || b.chatID == "" {
		return "", "", fmt.Errorf("telegram bot token or chat ID not configured")
	}
	return b.botToken, b.chatID, nil
}

// SendMessage sends an HTML-formatted text message
func (b *Bot) SendMessage(ctx context.Context, message string) error {
	token, chatID, err := b.credentials()
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"chat_id":    chatID,
		"text":       message,
		"parse_mode": "HTML",
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", token)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	return handleResponse(resp)
}

// SendPhoto sends a photo with an optional HTML caption using multipart
// form data
func (b *Bot) SendPhoto(ctx context.Context, photoData []byte, caption string) error {
	token, chatID, err := b.credentials()
	if err != nil {
		return err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("chat_id", chatID); err != nil {
		return fmt.Errorf("failed to write chat_id field: %w", err)
	}
	if caption != "" {
		if err := writer.WriteField("caption", caption); err != nil {
			return fmt.Errorf("failed to write caption field: %w", err)
		}
		if err := writer.WriteField("parse_mode", "HTML"); err != nil {
			return fmt.Errorf("failed to write parse_mode field: %w", err)
		}
	}

	part, err := writer.CreateFormFile("photo", "alert_frame.jpg")
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(photoData); err != nil {
		return fmt.Errorf("failed to write photo data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendPhoto", token)
	req, err := http.NewRequestWithContext(ctx, "POST", url, &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send photo: %w", err)
	}
	defer resp.Body.Close()

	return handleResponse(resp)
}

// SendTestMessage verifies the bot configuration end to end
func (b *Bot) SendTestMessage(ctx context.Context) error {
	now := time.Now()
	zoneName, _ := now.Zone()
	message := fmt.Sprintf(
		"🤖 <b>Face Tracker Test Message</b>\n\n"+
			"✅ Telegram bot is working correctly!\n"+
			"🕐 Test sent at: %s %s",
		now.Format("2 Jan 2006, 15:04:05"), zoneName,
	)
	return b.SendMessage(ctx, message)
}

func handleResponse(resp *http.Response) error {
	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !apiResp.OK {
		return fmt.Errorf("telegram API error %d: %s", apiResp.ErrorCode, apiResp.Description)
	}
	return nil
}
