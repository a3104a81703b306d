package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// URLSource resolves the webhook URL on each send so rotations take effect
// without a restart.
type URLSource func(ctx context.Context) (string, error)

// StaticURL returns a URLSource for a fixed URL.
func StaticURL(url string) URLSource {
	return func(context.Context) (string, error) { return url, nil }
}

// Webhook posts messages to a Slack incoming webhook.
type Webhook struct {
	url    URLSource
	client *http.Client
}

// NewWebhook creates a webhook sink. A nil client uses a 10s timeout client.
func NewWebhook(url URLSource, client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Webhook{url: url, client: client}
}

type webhookPayload struct {
	Channel   string `json:"channel,omitempty"`
	Text      string `json:"text"`
	Username  string `json:"username"`
	IconEmoji string `json:"icon_emoji"`
}

func (w *Webhook) Send(ctx context.Context, msg Message) error {
	url, err := w.url(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve slack webhook: %w", err)
	}
	if url == "" {
		return fmt.Errorf("slack webhook url is empty")
	}

	body, err := json.Marshal(webhookPayload{
		Channel:   msg.Channel,
		Text:      msg.Text,
		Username:  "VPN Automation",
		IconEmoji: ":lock:",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post to slack: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("slack webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}
