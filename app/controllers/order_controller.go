package controllers

import (
	"time"

	"github.com/shashiranjanraj/bunkar/app/listeners"
	"github.com/shashiranjanraj/bunkar/app/models"
	"github.com/shashiranjanraj/bunkar/app/resources"
	"github.com/shashiranjanraj/bunkar/app/services"
	"github.com/shashiranjanraj/bunkar/pkg/audit"
	"github.com/shashiranjanraj/bunkar/pkg/cart"
	"github.com/shashiranjanraj/bunkar/pkg/collection"
	"github.com/shashiranjanraj/bunkar/pkg/ctx"
	"github.com/shashiranjanraj/bunkar/pkg/logger"
	"github.com/shashiranjanraj/bunkar/pkg/resource"
	"github.com/shashiranjanraj/bunkar/pkg/sse"
)

// IdempotencyHeader lets clients retry checkout without creating a second
// order.
const IdempotencyHeader = "Idempotency-Key"

const trackingKeepalive = 15 * time.Second

type OrderController struct {
	orders *services.OrderService
	broker *sse.Broker
	audit  audit.Recorder
}

func NewOrderController(orders *services.OrderService, broker *sse.Broker, rec audit.Recorder) *OrderController {
	return &OrderController{orders: orders, broker: broker, audit: rec}
}

var orderResource = resources.Order{}

// Checkout handles POST /api/orders. Without items in the body the session
// cart is checked out and emptied once the order exists.
func (oc *OrderController) Checkout(c *ctx.Context) {
	var in services.CheckoutInput
	if !c.BindJSON(&in) {
		return
	}
	in.IdempotencyKey = c.Header(IdempotencyHeader)

	sess, crt := sessionCart(c)
	fromCart := len(in.Items) == 0
	if fromCart {
		in.Items = collection.Map(crt.Items(), func(it cart.Item) services.CheckoutItem {
			return services.CheckoutItem{ProductID: it.ProductID, Quantity: it.Quantity}
		})
	}

	result, err := oc.orders.CreateOrder(c.Context(), c.Principal(), in)
	if err != nil {
		fail(c, err)
		return
	}

	if fromCart {
		crt.Clear()
		if err := storeCart(c, sess, crt); err != nil {
			logger.WithCtx(c.Context()).Warn("checkout: could not clear cart", "order_id", result.OrderID, "error", err)
		}
	}
	c.Created(result)
}

// Verify handles POST /api/orders/{id}/verify, the gateway's success
// callback relayed by the client.
func (oc *OrderController) Verify(c *ctx.Context) {
	var cb services.PaymentCallback
	if !c.BindJSON(&cb) {
		return
	}
	order, err := oc.orders.VerifyPayment(c.Context(), c.Principal(), c.Param("id"), cb)
	if err != nil {
		fail(c, err)
		return
	}
	c.Success(resource.One[models.Order](orderResource, *order))
}

// Index handles GET /api/orders.
func (oc *OrderController) Index(c *ctx.Context) {
	orders, err := oc.orders.ListMine(c.Context(), c.Principal())
	if err != nil {
		fail(c, err)
		return
	}
	c.Success(resource.Many[models.Order](orderResource, orders))
}

// Show handles GET /api/orders/{id}.
func (oc *OrderController) Show(c *ctx.Context) {
	order, err := oc.orders.Get(c.Context(), c.Principal(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.Success(resource.One[models.Order](orderResource, *order))
}

// Track handles GET /api/orders/{id}/events. The stream opens with the
// current status and then relays every change until the client leaves.
func (oc *OrderController) Track(c *ctx.Context) {
	order, err := oc.orders.Get(c.Context(), c.Principal(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	events, cancel := oc.broker.Subscribe(listeners.TrackingTopic(order.ID))
	defer cancel()

	stream := sse.New(c.W, c.R)
	if stream == nil {
		return
	}
	snapshot := listeners.FeedMessage{
		Event:   "order.snapshot",
		OrderID: order.ID,
		To:      string(order.Status),
		Total:   order.Total.StringFixed(2),
		At:      order.UpdatedAt,
	}
	if err := stream.Send(snapshot.Event, snapshot); err != nil {
		return
	}
	stream.Pipe(events, trackingKeepalive)
}

// AdminIndex handles GET /api/admin/orders?status=.
func (oc *OrderController) AdminIndex(c *ctx.Context) {
	orders, err := oc.orders.ListAll(c.Context(), c.Principal(), c.Query("status"))
	if err != nil {
		fail(c, err)
		return
	}
	c.Success(resource.Many[models.Order](orderResource, orders))
}

type statusInput struct {
	Status string `json:"status" validate:"required"`
}

// UpdateStatus handles PATCH /api/admin/orders/{id}/status.
func (oc *OrderController) UpdateStatus(c *ctx.Context) {
	var in statusInput
	if !c.BindJSON(&in) {
		return
	}
	order, err := oc.orders.UpdateStatus(c.Context(), c.Principal(), c.Param("id"), in.Status)
	if err != nil {
		fail(c, err)
		return
	}
	c.Success(resource.One[models.Order](orderResource, *order))
}

// Trail handles GET /api/admin/orders/{id}/audit.
func (oc *OrderController) Trail(c *ctx.Context) {
	order, err := oc.orders.Get(c.Context(), c.Principal(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	entries, err := oc.audit.Trail(c.Context(), order.ID)
	if err != nil {
		fail(c, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	c.Success(entries)
}
