package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alanyoungcy/predictledger/internal/crypto"
	"github.com/alanyoungcy/predictledger/internal/domain"
)

// WebhookSink POSTs each event as JSON to a URL, signed with the shared
// secret so receivers can authenticate the delivery.
type WebhookSink struct {
	url    string
	signer *crypto.WebhookSigner
	client *http.Client
}

// NewWebhookSink creates a WebhookSink. An empty secret sends unsigned
// deliveries.
func NewWebhookSink(url, secret string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var signer *crypto.WebhookSigner
	if secret != "" {
		signer = &crypto.WebhookSigner{Secret: secret}
	}
	return &WebhookSink{
		url:    url,
		signer: signer,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Deliver(ctx context.Context, evt domain.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("webhook: marshal %s: %w", evt.Topic, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Ledger-Event", string(evt.Topic))
	if s.signer != nil {
		for k, v := range s.signer.Headers(body) {
			req.Header.Set(k, v)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
