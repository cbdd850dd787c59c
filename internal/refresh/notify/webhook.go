package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Message is one rendered transition plus the block it refers to.
type Message struct {
	Content    string
	TariffCode string
	Event      string
	From       string
	To         string
	BlockStart time.Time
	BlockEnd   time.Time
}

// Channel delivers rendered messages.
type Channel interface {
	Send(ctx context.Context, msg Message) error
}

type webhookPayload struct {
	MsgType string        `json:"msgtype"`
	Text    webhookText   `json:"text"`
	Tariff  *webhookBlock `json:"tariff,omitempty"`
}

type webhookText struct {
	Content string `json:"content"`
}

type webhookBlock struct {
	Code       string `json:"code"`
	Event      string `json:"event"`
	From       string `json:"from,omitempty"`
	To         string `json:"to,omitempty"`
	BlockStart string `json:"block_start,omitempty"`
	BlockEnd   string `json:"block_end,omitempty"`
}

// WebhookChannel sends notifications to a webhook endpoint.
type WebhookChannel struct {
	url    string
	client *http.Client
}

// WebhookOption configures the webhook channel.
type WebhookOption func(*WebhookChannel)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(ch *WebhookChannel) {
		if client != nil {
			ch.client = client
		}
	}
}

// NewWebhookChannel constructs a webhook channel.
func NewWebhookChannel(url string, opts ...WebhookOption) (*WebhookChannel, error) {
	if url == "" {
		return nil, errors.New("webhook channel: empty url")
	}
	channel := &WebhookChannel{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(channel)
	}
	return channel, nil
}

// Send posts the message as text, with the block window attached when the
// message names a tariff.
func (w *WebhookChannel) Send(ctx context.Context, msg Message) error {
	if w == nil || w.url == "" {
		return errors.New("webhook channel: empty url")
	}
	payload := webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: msg.Content},
	}
	if msg.TariffCode != "" {
		payload.Tariff = &webhookBlock{
			Code:       msg.TariffCode,
			Event:      msg.Event,
			From:       msg.From,
			To:         msg.To,
			BlockStart: formatInstant(msg.BlockStart),
			BlockEnd:   formatInstant(msg.BlockEnd),
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook channel: http %d", resp.StatusCode)
	}
	return nil
}

func formatInstant(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
