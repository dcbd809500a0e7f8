package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WebhookDeliverer posts formatted messages over HTTP. Discord targets
// get the webhook JSON shape discord expects, one request per chunk;
// other targets get a generic {title, body} document.
type WebhookDeliverer struct {
	client *http.Client
}

func NewWebhookDeliverer() *WebhookDeliverer {
	return &WebhookDeliverer{
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (w *WebhookDeliverer) Deliver(ctx context.Context, t *Target, msg Message) error {
	if strings.HasPrefix(t.Service, "discord") {
		for _, body := range msg.Bodies {
			if err := w.post(ctx, t.URL, map[string]string{"content": body}); err != nil {
				return err
			}
		}
		return nil
	}
	return w.post(ctx, t.URL, map[string]string{
		"title": msg.Title,
		"body":  strings.Join(msg.Bodies, "\n\n"),
	})
}

func (w *WebhookDeliverer) post(ctx context.Context, url string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
