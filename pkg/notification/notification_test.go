package notification_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/bunkar/pkg/mail"
	"github.com/shashiranjanraj/bunkar/pkg/notification"
)

type paidNotice struct{ webhook string }

func (n *paidNotice) Via() []string { return []string{"mail", "slack"} }

func (n *paidNotice) ToMail() notification.MailData {
	return notification.MailData{Subject: "Paid", Text: "thanks"}
}

func (n *paidNotice) ToSlack() notification.SlackData {
	return notification.SlackData{WebhookURL: n.webhook, Text: "order paid"}
}

type mailOnly struct{}

func (mailOnly) Via() []string { return []string{"slack"} }

func TestSendAllChannels(t *testing.T) {
	var slackBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &slackBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var mailedTo []string
	restore := mail.UseSender(func(_ mail.SMTP, to []string, _ []byte) error {
		mailedTo = to
		return nil
	})
	defer restore()

	err := notification.Send(context.Background(), "buyer@example.com", &paidNotice{webhook: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, []string{"buyer@example.com"}, mailedTo)
	assert.Equal(t, "order paid", slackBody["text"])
}

func TestSendReportsMissingChannelImplementation(t *testing.T) {
	err := notification.Send(context.Background(), "x@example.com", mailOnly{})
	assert.ErrorContains(t, err, "does not implement Slackable")
}

func TestSlackErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	restore := mail.UseSender(func(mail.SMTP, []string, []byte) error { return nil })
	defer restore()

	err := notification.Send(context.Background(), "x@example.com", &paidNotice{webhook: srv.URL})
	assert.ErrorContains(t, err, "403")
}
