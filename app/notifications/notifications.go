// Package notifications holds the messages the storefront sends to
// customers and staff.
package notifications

import (
	"fmt"
	"html/template"

	"github.com/shashiranjanraj/bunkar/app/models"
	"github.com/shashiranjanraj/bunkar/config"
	"github.com/shashiranjanraj/bunkar/pkg/notification"
)

var orderPaidTmpl = template.Must(template.New("order_paid").Parse(`<h2>Thank you for your order, {{.Shipping.Name}}</h2>
<p>We have received your payment for order <strong>{{.ID}}</strong>.</p>
<table>
{{range .Items}}<tr><td>{{.ProductName}}</td><td>× {{.Quantity}}</td><td>{{$.Currency}} {{.UnitPrice.StringFixed 2}}</td></tr>
{{end}}</table>
<p>Total: <strong>{{.Currency}} {{.Total.StringFixed 2}}</strong></p>
<p>It will be shipped to {{.Shipping.Address}}, {{.Shipping.City}} {{.Shipping.PostalCode}}.</p>`))

var contactTmpl = template.Must(template.New("contact").Parse(`<p><strong>{{.Name}}</strong> &lt;{{.Email}}&gt; wrote:</p>
<blockquote>{{.Message}}</blockquote>
<p>Spam score: {{printf "%.2f" .Score}}</p>`))

func channels(base ...string) []string {
	if config.SlackWebhook() != "" {
		return append(base, "slack")
	}
	return base
}

// OrderPaid confirms a verified payment to the customer.
type OrderPaid struct {
	Order models.Order
}

func (n *OrderPaid) Via() []string { return []string{"mail"} }

func (n *OrderPaid) ToMail() notification.MailData {
	return notification.MailData{
		To:       n.Order.Shipping.Email,
		Subject:  fmt.Sprintf("Your Bunkar order %s is confirmed", n.Order.ID),
		Template: orderPaidTmpl,
		Data:     n.Order,
	}
}

// PaymentNeedsReconcile tells staff a customer paid for an order that
// could not be fulfilled automatically.
type PaymentNeedsReconcile struct {
	OrderID          string
	GatewayOrderID   string
	GatewayPaymentID string
	Reason           string

	// MailOnly suppresses the Slack alert when several recipients are mailed.
	MailOnly bool
}

func (n *PaymentNeedsReconcile) Via() []string {
	if n.MailOnly {
		return []string{"mail"}
	}
	return channels("mail")
}

func (n *PaymentNeedsReconcile) text() string {
	return fmt.Sprintf("Order %s was paid (payment %s, gateway order %s) but could not be completed: %s. Refund or restock manually.",
		n.OrderID, n.GatewayPaymentID, n.GatewayOrderID, n.Reason)
}

func (n *PaymentNeedsReconcile) ToMail() notification.MailData {
	return notification.MailData{
		Subject: "Action needed: paid order " + n.OrderID,
		Text:    n.text(),
	}
}

func (n *PaymentNeedsReconcile) ToSlack() notification.SlackData {
	return notification.SlackData{
		Text: "Paid order needs reconciliation",
		Attachments: []notification.SlackAttachment{{
			Color: "danger",
			Title: "Order " + n.OrderID,
			Text:  n.text(),
		}},
	}
}

// ContactReceived forwards a contact-form message to the store inbox.
type ContactReceived struct {
	Message models.ContactMessage
}

func (n *ContactReceived) Via() []string { return channels("mail") }

func (n *ContactReceived) ToMail() notification.MailData {
	return notification.MailData{
		Subject:  "New message from " + n.Message.Name,
		Template: contactTmpl,
		Data:     n.Message,
	}
}

func (n *ContactReceived) ToSlack() notification.SlackData {
	return notification.SlackData{Text: fmt.Sprintf("New contact message from %s <%s>", n.Message.Name, n.Message.Email)}
}
