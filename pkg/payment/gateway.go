// Package payment talks to the hosted payment gateway: it creates gateway
// orders for checkout, voids them when local persistence fails, and
// verifies the signature the gateway attaches to a payment callback.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shashiranjanraj/bunkar/config"
	khttp "github.com/shashiranjanraj/bunkar/pkg/http"
	"github.com/shashiranjanraj/bunkar/pkg/metrics"
)

// ErrGateway wraps every failure talking to the gateway.
var ErrGateway = errors.New("payment: gateway error")

// CreateOrderRequest is the outbound "create payment intent" call.
type CreateOrderRequest struct {
	Amount   int64             `json:"amount"` // minor units
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// Order is the gateway's view of a created order.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Gateway is the outbound side of the payment provider.
type Gateway interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error)
	// VoidOrder marks a gateway order as abandoned so it can never be paid.
	VoidOrder(ctx context.Context, gatewayOrderID, reason string) error
	KeyID() string
}

// Client is the HTTP implementation of Gateway (Razorpay-compatible API).
type Client struct {
	BaseURL   string
	KeyIDVal  string
	KeySecret string
	Timeout   time.Duration
	Retries   int
}

// NewClientFromConfig builds a Client from PAYMENT_* settings.
func NewClientFromConfig() *Client {
	return &Client{
		BaseURL:   config.PaymentBaseURL(),
		KeyIDVal:  config.PaymentKeyID(),
		KeySecret: config.PaymentKeySecret(),
		Timeout:   config.PaymentTimeout(),
		Retries:   1,
	}
}

func (c *Client) KeyID() string { return c.KeyIDVal }

// CreateOrder is not retried: a retry after a lost response could create a
// second gateway order for the same receipt.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	start := time.Now()
	out, err := c.createOrder(ctx, req)
	metrics.ObserveGateway("create_order", start, err)
	return out, err
}

func (c *Client) createOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	resp, err := khttp.Post(c.BaseURL+"/v1/orders").
		BasicAuth(c.KeyIDVal, c.KeySecret).
		Body(req).
		Timeout(c.Timeout).
		WithContext(ctx).
		Send()
	if err != nil {
		return nil, fmt.Errorf("%w: create order: %v", ErrGateway, err)
	}
	if err := resp.Throw(); err != nil {
		return nil, fmt.Errorf("%w: create order: %v", ErrGateway, err)
	}

	var out Order
	if err := resp.JSON(&out); err != nil {
		return nil, fmt.Errorf("%w: create order: %v", ErrGateway, err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("%w: create order: empty order id", ErrGateway)
	}
	return &out, nil
}

// VoidOrder tags the gateway order as void through its notes. Voiding is
// idempotent on the gateway side so it is safe to retry.
func (c *Client) VoidOrder(ctx context.Context, gatewayOrderID, reason string) error {
	start := time.Now()
	retries := c.Retries
	if retries < 2 {
		retries = 2
	}

	resp, err := khttp.Patch(c.BaseURL+"/v1/orders/"+gatewayOrderID).
		BasicAuth(c.KeyIDVal, c.KeySecret).
		Body(map[string]any{"notes": map[string]string{"status": "void", "reason": reason}}).
		Timeout(c.Timeout).
		Retry(retries, 200*time.Millisecond).
		WithContext(ctx).
		Send()
	if err == nil {
		err = resp.Throw()
	}
	metrics.ObserveGateway("void_order", start, err)
	if err != nil {
		return fmt.Errorf("%w: void order %s: %v", ErrGateway, gatewayOrderID, err)
	}
	return nil
}
