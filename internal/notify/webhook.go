package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"kalshi-trader/internal/domain"
)

const webhookFooter = "kalshi-trader"

// Webhook posts Discord-style embeds to a webhook URL.
// An empty URL disables delivery.
type Webhook struct {
	client *resty.Client
	url    string
	now    func() time.Time
}

// NewWebhook creates a webhook notifier.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")
	client.SetRetryCount(2)
	client.SetRetryWaitTime(time.Second)

	return &Webhook{
		client: client,
		url:    url,
		now:    time.Now,
	}
}

type embedFooter struct {
	Text string `json:"text"`
}

type embed struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Color       int         `json:"color"`
	Footer      embedFooter `json:"footer"`
	Timestamp   string      `json:"timestamp"`
}

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

// Startup implements Notifier.
func (w *Webhook) Startup(ctx context.Context, s Startup) error {
	return w.send(ctx, startupMessage(s))
}

// Entry implements Notifier.
func (w *Webhook) Entry(ctx context.Context, sig domain.Signal, exec *domain.Execution) error {
	return w.send(ctx, entryMessage(sig, exec))
}

// Skipped implements Notifier.
func (w *Webhook) Skipped(ctx context.Context, sig domain.Signal, reason string) error {
	return w.send(ctx, skippedMessage(sig, reason))
}

// Resting implements Notifier.
func (w *Webhook) Resting(ctx context.Context, sig domain.Signal, order RestingOrder) error {
	return w.send(ctx, restingMessage(sig, order))
}

// Closed implements Notifier.
func (w *Webhook) Closed(ctx context.Context, pos domain.Position) error {
	return w.send(ctx, closedMessage(pos))
}

func (w *Webhook) send(ctx context.Context, m Message) error {
	if w.url == "" {
		return nil
	}

	payload := webhookPayload{Embeds: []embed{{
		Title:       m.Title,
		Description: m.Body,
		Color:       m.Color,
		Footer:      embedFooter{Text: webhookFooter},
		Timestamp:   w.now().UTC().Format(time.RFC3339),
	}}}

	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}

var _ Notifier = (*Webhook)(nil)
