// Package notification sends a message through one or more channels.
//
//	type OrderPaid struct{ Order models.Order }
//	func (n *OrderPaid) Via() []string { return []string{"mail", "slack"} }
//	func (n *OrderPaid) ToMail() notification.MailData { ... }
//	func (n *OrderPaid) ToSlack() notification.SlackData { ... }
//
//	notification.Send(ctx, customerEmail, &OrderPaid{Order: o})
package notification

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"sync"
	"time"

	"github.com/shashiranjanraj/bunkar/pkg/http"
	"github.com/shashiranjanraj/bunkar/pkg/logger"
	"github.com/shashiranjanraj/bunkar/pkg/mail"
)

// MailData carries the data needed to send an email notification.
type MailData struct {
	To       string // overrides the notifiable address if set
	Subject  string
	Template *template.Template
	Data     any
	Text     string // used when Template is nil
}

// SlackData carries a Slack message payload.
type SlackData struct {
	WebhookURL  string // overrides the default if set
	Text        string
	Attachments []SlackAttachment
}

// SlackAttachment is a single Slack message attachment block.
type SlackAttachment struct {
	Color  string `json:"color,omitempty"` // "good" | "warning" | "danger"
	Title  string `json:"title,omitempty"`
	Text   string `json:"text,omitempty"`
	Footer string `json:"footer,omitempty"`
}

// WebhookData carries an arbitrary JSON payload to POST to a URL.
type WebhookData struct {
	URL     string
	Payload any
	Headers map[string]string
}

// Notification is implemented by every notification.
type Notification interface {
	// Via returns the channel names: "mail", "slack", "webhook".
	Via() []string
}

type Mailable interface {
	ToMail() MailData
}

type Slackable interface {
	ToSlack() SlackData
}

type Webhookable interface {
	ToWebhook() WebhookData
}

var (
	cfgMu               sync.RWMutex
	defaultSlackWebhook string
)

// SetSlackWebhook sets the default Slack incoming webhook URL.
func SetSlackWebhook(url string) {
	cfgMu.Lock()
	defaultSlackWebhook = url
	cfgMu.Unlock()
}

// Send dispatches the notification through all channels returned by Via
// and joins the channel errors.
func Send(ctx context.Context, address string, n Notification) error {
	var errs []error
	for _, channel := range n.Via() {
		if err := dispatch(ctx, address, channel, n); err != nil {
			logger.WithCtx(ctx).Error("notification: channel failed",
				"channel", channel, "type", fmt.Sprintf("%T", n), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func dispatch(ctx context.Context, address, channel string, n Notification) error {
	switch channel {
	case "mail":
		m, ok := n.(Mailable)
		if !ok {
			return fmt.Errorf("notification: %T does not implement Mailable", n)
		}
		return sendMail(address, m.ToMail())

	case "slack":
		s, ok := n.(Slackable)
		if !ok {
			return fmt.Errorf("notification: %T does not implement Slackable", n)
		}
		return sendSlack(ctx, s.ToSlack())

	case "webhook":
		wh, ok := n.(Webhookable)
		if !ok {
			return fmt.Errorf("notification: %T does not implement Webhookable", n)
		}
		return sendWebhook(ctx, wh.ToWebhook())

	default:
		return fmt.Errorf("notification: unknown channel %q", channel)
	}
}

func sendMail(address string, d MailData) error {
	to := d.To
	if to == "" {
		to = address
	}
	if to == "" {
		return errors.New("notification: mail has no recipient")
	}

	msg := mail.To(to).Subject(d.Subject)
	if d.Template != nil {
		msg.Render(d.Template, d.Data)
	} else {
		msg.Text(d.Text)
	}
	return msg.Send()
}

type slackPayload struct {
	Text        string            `json:"text,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

func sendSlack(ctx context.Context, d SlackData) error {
	url := d.WebhookURL
	if url == "" {
		cfgMu.RLock()
		url = defaultSlackWebhook
		cfgMu.RUnlock()
	}
	if url == "" {
		return errors.New("notification: slack webhook URL not configured")
	}

	resp, err := http.Post(url).
		WithContext(ctx).
		Timeout(5 * time.Second).
		Body(slackPayload{Text: d.Text, Attachments: d.Attachments}).
		Send()
	if err != nil {
		return fmt.Errorf("notification: slack post: %w", err)
	}
	return resp.Throw()
}

func sendWebhook(ctx context.Context, d WebhookData) error {
	if d.URL == "" {
		return errors.New("notification: webhook URL is empty")
	}

	resp, err := http.Post(d.URL).
		WithContext(ctx).
		Headers(d.Headers).
		Timeout(10 * time.Second).
		Retry(2, 500*time.Millisecond).
		Body(d.Payload).
		Send()
	if err != nil {
		return fmt.Errorf("notification: webhook send: %w", err)
	}
	return resp.Throw()
}
