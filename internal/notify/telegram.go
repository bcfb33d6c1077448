package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const telegramTimeout = 10 * time.Second

// TelegramSender renders alerts as Markdown messages via the Bot API's
// sendMessage method.
type TelegramSender struct {
	token  string
	chatID string
	client *http.Client
}

// NewTelegramSender creates a sender for the given bot token and chat ID.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: telegramTimeout},
	}
}

func (t *TelegramSender) Name() string { return "telegram" }

// Send posts the alert as a single message: bold title, optional body, then
// one "Label: Value" line per field.
func (t *TelegramSender) Send(ctx context.Context, a Alert) error {
	var text strings.Builder
	fmt.Fprintf(&text, "*%s*", a.Title)
	if a.Body != "" {
		fmt.Fprintf(&text, "\n%s", a.Body)
	}
	for _, f := range a.Fields {
		fmt.Fprintf(&text, "\n%s: %s", f.Label, f.Value)
	}

	body, err := json.Marshal(map[string]string{
		"chat_id":    t.chatID,
		"text":       text.String(),
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	// The Bot API reports failures in the response body, not only in the
	// status code.
	var apiResp struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return fmt.Errorf("telegram: decode response (status %d): %w", resp.StatusCode, err)
	}
	if !apiResp.OK {
		return fmt.Errorf("telegram: api error (status %d): %s", resp.StatusCode, apiResp.Description)
	}
	return nil
}
