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

// discordContentLimit is the maximum message length Discord accepts.
const discordContentLimit = 2000

// DiscordSender delivers notifications via a Discord webhook.
type DiscordSender struct {
	webhookURL string
	username   string
	client     *http.Client
}

type discordMessage struct {
	Content  string `json:"content"`
	Username string `json:"username,omitempty"`
}

// NewDiscordSender creates a DiscordSender for webhookURL. username, if set,
// overrides the webhook's display name.
func NewDiscordSender(webhookURL, username string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		username:   username,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the message with the title in bold, truncated to Discord's
// content limit.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	content := fmt.Sprintf("**%s**\n%s", title, message)
	if r := []rune(content); len(r) > discordContentLimit {
		content = string(r[:discordContentLimit-1]) + "…"
	}

	body, err := json.Marshal(discordMessage{Content: content, Username: d.username})
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	// 204 No Content on success.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
