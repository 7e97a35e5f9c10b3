package notifiers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/daniacca/molviz/internal/molviz"
)

// WebhookNotifier posts scene events as JSON to a URL.
type WebhookNotifier struct {
	id      string
	url     string
	client  *http.Client
	headers map[string]string
	kinds   map[molviz.EventKind]bool
}

// NewWebhookNotifier creates a webhook notifier. With no kinds every event
// is delivered; otherwise only the listed kinds are.
func NewWebhookNotifier(id, url string, kinds ...molviz.EventKind) *WebhookNotifier {
	wn := &WebhookNotifier{
		id:      id,
		url:     url,
		client:  &http.Client{Timeout: 5 * time.Second},
		headers: make(map[string]string),
	}
	if len(kinds) > 0 {
		wn.kinds = make(map[molviz.EventKind]bool, len(kinds))
		for _, k := range kinds {
			wn.kinds[k] = true
		}
	}
	return wn
}

// SetHeader sets a custom header to include in webhook requests
func (wn *WebhookNotifier) SetHeader(key, value string) {
	wn.headers[key] = value
}

// ID returns the notifier ID
func (wn *WebhookNotifier) ID() string {
	return wn.id
}

// Type returns the notifier type
func (wn *WebhookNotifier) Type() string {
	return "webhook"
}

// URL is the delivery target.
func (wn *WebhookNotifier) URL() string {
	return wn.url
}

// Notify posts the event. Filtered kinds are skipped without error.
func (wn *WebhookNotifier) Notify(ctx context.Context, event molviz.SceneEvent) error {
	if wn.kinds != nil && !wn.kinds[event.Kind] {
		return nil
	}

	jsonData, err := event.JSON()
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wn.url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Molviz-Event", string(event.Kind))
	for key, value := range wn.headers {
		req.Header.Set(key, value)
	}

	resp, err := wn.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Close is a no-op for webhooks.
func (wn *WebhookNotifier) Close() error {
	return nil
}
