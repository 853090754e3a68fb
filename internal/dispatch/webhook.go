package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookSender posts matches to per-destination webhook URLs, typically
// Discord channel webhooks. Destinations without a configured URL fail the
// delivery so the miss shows up in stats instead of vanishing.
type WebhookSender struct {
	urls   map[string]string
	client *http.Client
}

func NewWebhookSender(urls map[string]string) *WebhookSender {
	return &WebhookSender{
		urls:   urls,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *WebhookSender) Send(ctx context.Context, destinationID string, msg Message) error {
	url, ok := s.urls[destinationID]
	if !ok || url == "" {
		return fmt.Errorf("no webhook configured for destination %q", destinationID)
	}
	payload, err := json.Marshal(map[string]string{"content": msg.Content})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %q: status %d", destinationID, resp.StatusCode)
	}
	return nil
}
