// Package listeners wires order and contact events to their side effects:
// the audit trail, the live feeds and customer mail.
package listeners

import (
	"context"
	"errors"
	"time"

	"github.com/shashiranjanraj/bunkar/app/notifications"
	"github.com/shashiranjanraj/bunkar/app/services"
	"github.com/shashiranjanraj/bunkar/pkg/audit"
	"github.com/shashiranjanraj/bunkar/pkg/event"
	"github.com/shashiranjanraj/bunkar/pkg/logger"
	"github.com/shashiranjanraj/bunkar/pkg/mail"
	"github.com/shashiranjanraj/bunkar/pkg/notification"
	"github.com/shashiranjanraj/bunkar/pkg/reqid"
	"github.com/shashiranjanraj/bunkar/pkg/sse"
	"github.com/shashiranjanraj/bunkar/pkg/ws"
)

// Deps are the sinks listeners write to. Nil sinks are skipped.
type Deps struct {
	Audit   audit.Recorder
	Hub     *ws.Hub
	Broker  *sse.Broker
	Contact *services.ContactService
}

// FeedMessage is what staff feed and tracking subscribers receive.
type FeedMessage struct {
	Event   string    `json:"event"`
	OrderID string    `json:"order_id"`
	From    string    `json:"from,omitempty"`
	To      string    `json:"to"`
	Total   string    `json:"total"`
	At      time.Time `json:"at"`
}

// TrackingTopic is the SSE topic for one order.
func TrackingTopic(orderID string) string { return "order:" + orderID }

var orderEvents = []string{
	services.EventOrderCreated,
	services.EventOrderPaid,
	services.EventOrderStatusChanged,
}

// Register installs every listener.
func Register(d Deps) {
	for _, name := range orderEvents {
		name := name
		if d.Audit != nil {
			event.ListenAsync(name, func(ctx context.Context, payload any) { record(ctx, d.Audit, name, payload) })
		}
		if d.Hub != nil || d.Broker != nil {
			event.Listen(name, func(ctx context.Context, payload any) { publish(d, name, payload) })
		}
	}
	event.ListenAsync(services.EventOrderPaid, confirmPayment)
	if d.Contact != nil {
		event.ListenAsync(services.EventContactReceived, d.Contact.NotifyInbox)
	}
}

func record(ctx context.Context, rec audit.Recorder, name string, payload any) {
	ev, ok := payload.(services.OrderEvent)
	if !ok {
		return
	}
	entry := audit.Entry{
		Time:      time.Now().UTC(),
		Action:    name,
		OrderID:   ev.Order.ID,
		ActorID:   ev.ActorID,
		From:      string(ev.From),
		To:        string(ev.To),
		RequestID: reqid.FromCtx(ctx),
		Data: map[string]any{
			"total":            ev.Order.Total.StringFixed(2),
			"gateway_order_id": ev.Order.GatewayOrderID,
		},
	}
	if ev.Order.GatewayPaymentID != nil {
		entry.Data["gateway_payment_id"] = *ev.Order.GatewayPaymentID
	}
	if err := rec.Record(ctx, entry); err != nil {
		logger.WithCtx(ctx).Error("audit record failed", "order_id", ev.Order.ID, "error", err)
	}
}

func publish(d Deps, name string, payload any) {
	ev, ok := payload.(services.OrderEvent)
	if !ok {
		return
	}
	msg := FeedMessage{
		Event:   name,
		OrderID: ev.Order.ID,
		From:    string(ev.From),
		To:      string(ev.To),
		Total:   ev.Order.Total.StringFixed(2),
		At:      time.Now().UTC(),
	}
	if d.Hub != nil {
		_ = d.Hub.BroadcastJSON(msg)
	}
	if d.Broker != nil {
		d.Broker.Publish(TrackingTopic(ev.Order.ID), name, msg)
	}
}

func confirmPayment(ctx context.Context, payload any) {
	ev, ok := payload.(services.OrderEvent)
	if !ok || ev.Order.Shipping.Email == "" {
		return
	}
	err := notification.Send(ctx, ev.Order.Shipping.Email, &notifications.OrderPaid{Order: ev.Order})
	if err != nil && !errors.Is(err, mail.ErrNotConfigured) {
		logger.WithCtx(ctx).Error("order confirmation mail failed", "order_id", ev.Order.ID, "error", err)
	}
}
