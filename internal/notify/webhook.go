package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Webhook posts alerts as JSON to an HTTP endpoint, e.g. a chat incoming
// webhook.
type Webhook struct {
	client *resty.Client
	url    string
}

// NewWebhook creates a webhook notifier. Retries are disabled.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetRetryCount(0).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &Webhook{client: client, url: url}
}

func (w *Webhook) Publish(ctx context.Context, subject, message string) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"subject": subject,
			"text":    subject + "\n" + message,
		}).
		Post(w.url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
