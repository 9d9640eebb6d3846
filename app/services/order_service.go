package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/bunkar/app/jobs"
	"github.com/shashiranjanraj/bunkar/app/models"
	"github.com/shashiranjanraj/bunkar/app/repositories"
	"github.com/shashiranjanraj/bunkar/config"
	"github.com/shashiranjanraj/bunkar/pkg/auth"
	"github.com/shashiranjanraj/bunkar/pkg/collection"
	"github.com/shashiranjanraj/bunkar/pkg/event"
	"github.com/shashiranjanraj/bunkar/pkg/logger"
	"github.com/shashiranjanraj/bunkar/pkg/metrics"
	"github.com/shashiranjanraj/bunkar/pkg/payment"
	"github.com/shashiranjanraj/bunkar/pkg/queue"
	"github.com/shashiranjanraj/bunkar/pkg/rbac"
	"github.com/shashiranjanraj/bunkar/pkg/validate"
)

// Order lifecycle events.
const (
	EventOrderCreated       = "order.created"
	EventOrderPaid          = "order.paid"
	EventOrderStatusChanged = "order.status_changed"
)

// OrderEvent is the payload of every order lifecycle event.
type OrderEvent struct {
	Order   models.Order
	From    models.OrderStatus
	To      models.OrderStatus
	ActorID string // "system" for scheduled work
}

type CheckoutItem struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0,lte=99"`
}

type ShippingInput struct {
	Name       string `json:"name" validate:"required,max=255"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"required,max=32"`
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required,max=120"`
	State      string `json:"state" validate:"max=120"`
	PostalCode string `json:"postal_code" validate:"required,max=20"`
}

// CheckoutInput is what the customer submits at checkout. Prices are never
// part of it.
type CheckoutInput struct {
	Items          []CheckoutItem `json:"items" validate:"dive"`
	Shipping       ShippingInput  `json:"shipping"`
	IdempotencyKey string         `json:"-"`
}

// CheckoutResult is what the client needs to open the gateway's payment
// widget.
type CheckoutResult struct {
	OrderID        string          `json:"order_id"`
	GatewayOrderID string          `json:"gateway_order_id"`
	Amount         int64           `json:"amount"`
	Currency       string          `json:"currency"`
	KeyID          string          `json:"key_id"`
	Total          decimal.Decimal `json:"total"`
}

// PaymentCallback is the gateway's signed success callback.
type PaymentCallback struct {
	GatewayOrderID   string `json:"gateway_order_id" validate:"required"`
	GatewayPaymentID string `json:"gateway_payment_id" validate:"required"`
	Signature        string `json:"signature" validate:"required"`
}

// OrderConfig holds the order flow's secrets and time budgets.
type OrderConfig struct {
	Secret         string
	Currency       string
	PaymentTimeout time.Duration
	DBTimeout      time.Duration
	PendingTTL     time.Duration
}

// OrderConfigFromEnv reads PAYMENT_*, DB_TIMEOUT and PENDING_ORDER_TTL.
func OrderConfigFromEnv() OrderConfig {
	return OrderConfig{
		Secret:         config.PaymentKeySecret(),
		Currency:       config.PaymentCurrency(),
		PaymentTimeout: config.PaymentTimeout(),
		DBTimeout:      config.DatabaseTimeout(),
		PendingTTL:     config.PendingOrderTTL(),
	}
}

type OrderService struct {
	db       *gorm.DB
	products *repositories.ProductRepository
	orders   *repositories.OrderRepository
	users    *repositories.UserRepository
	gateway  payment.Gateway
	cfg      OrderConfig
	now      func() time.Time

	// stockChanged runs after a committed stock decrement.
	stockChanged func(context.Context)
}

func NewOrderService(db *gorm.DB, gateway payment.Gateway, cfg OrderConfig) *OrderService {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.PaymentTimeout <= 0 {
		cfg.PaymentTimeout = 10 * time.Second
	}
	if cfg.DBTimeout <= 0 {
		cfg.DBTimeout = 5 * time.Second
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 24 * time.Hour
	}
	return &OrderService{
		db:       db,
		products: repositories.NewProductRepository(db),
		orders:   repositories.NewOrderRepository(db),
		users:    repositories.NewUserRepository(db),
		gateway:  gateway,
		cfg:      cfg,
		now:      time.Now,

		stockChanged: InvalidateCatalog,
	}
}

// principalUser resolves the caller to a stored user.
func (s *OrderService) principalUser(ctx context.Context, p *auth.Principal) (*models.User, error) {
	if p == nil || p.UserID == "" {
		return nil, ErrAuthenticationRequired
	}
	u, err := s.users.FindByID(ctx, p.UserID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrSessionExpired
	}
	if err != nil {
		return nil, fmt.Errorf("orders: load user: %w", err)
	}
	return u, nil
}

// mergeItems folds duplicate product ids together, keeping first-seen order.
func mergeItems(items []CheckoutItem) []CheckoutItem {
	index := make(map[string]int, len(items))
	out := make([]CheckoutItem, 0, len(items))
	for _, it := range items {
		if i, ok := index[it.ProductID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out
}

func (s *OrderService) result(o *models.Order) *CheckoutResult {
	return &CheckoutResult{
		OrderID:        o.ID,
		GatewayOrderID: o.GatewayOrderID,
		Amount:         payment.ToMinorUnits(o.Total),
		Currency:       o.Currency,
		KeyID:          s.gateway.KeyID(),
		Total:          o.Total,
	}
}

// CreateOrder prices the cart from stored products, opens a gateway order
// and persists a PENDING order. The gateway call happens outside the
// database transaction; if the transaction then fails the gateway order is
// voided.
func (s *OrderService) CreateOrder(ctx context.Context, p *auth.Principal, in CheckoutInput) (*CheckoutResult, error) {
	outcome := "created"
	defer func() { metrics.OrdersCreated.WithLabelValues(outcome).Inc() }()
	fail := func(o string, e error) (*CheckoutResult, error) {
		outcome = o
		return nil, e
	}

	user, err := s.principalUser(ctx, p)
	if err != nil {
		return fail("unauthenticated", err)
	}
	if len(in.Items) == 0 {
		return fail("invalid", ErrEmptyCart)
	}
	if err := invalid(validate.Struct(in)); err != nil {
		return fail("invalid", err)
	}

	if in.IdempotencyKey != "" {
		existing, err := s.orders.FindByIdempotencyKey(ctx, user.ID, in.IdempotencyKey)
		if err == nil {
			outcome = "replayed"
			return s.result(existing), nil
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return fail("persistence_error", fmt.Errorf("%w: %v", ErrPersistence, err))
		}
	}

	lines := mergeItems(in.Items)
	ids := collection.Map(lines, func(l CheckoutItem) string { return l.ProductID })

	dbCtx, cancel := context.WithTimeout(ctx, s.cfg.DBTimeout)
	products, err := s.products.FindMany(dbCtx, ids)
	cancel()
	if err != nil {
		return fail("persistence_error", fmt.Errorf("%w: %v", ErrPersistence, err))
	}

	items := make([]models.OrderItem, 0, len(lines))
	for _, l := range lines {
		prod, ok := products[l.ProductID]
		if !ok {
			return fail("product_not_found", fmt.Errorf("orders: product %s: %w", l.ProductID, ErrProductNotFound))
		}
		if !prod.InStock(l.Quantity) {
			return fail("insufficient_stock", fmt.Errorf("orders: %s has %d left, %d requested: %w",
				prod.Name, prod.Stock, l.Quantity, ErrInsufficientStock))
		}
		items = append(items, models.OrderItem{
			ProductID:   prod.ID,
			ProductName: prod.Name,
			Quantity:    l.Quantity,
			UnitPrice:   prod.Price,
		})
	}
	total := models.SumItems(items)

	order := &models.Order{
		Base:     models.Base{ID: uuid.NewString()},
		UserID:   user.ID,
		Total:    total,
		Currency: s.cfg.Currency,
		Status:   models.StatusPending,
		Shipping: models.Shipping(in.Shipping),
		Items:    items,
	}
	if in.IdempotencyKey != "" {
		key := in.IdempotencyKey
		order.IdempotencyKey = &key
	}

	gwCtx, gwCancel := context.WithTimeout(ctx, s.cfg.PaymentTimeout)
	gwOrder, err := s.gateway.CreateOrder(gwCtx, payment.CreateOrderRequest{
		Amount:   payment.ToMinorUnits(total),
		Currency: s.cfg.Currency,
		Receipt:  order.ID,
		Notes:    map[string]string{"user_id": user.ID},
	})
	gwCancel()
	if err != nil {
		logger.WithCtx(ctx).Error("payment gateway create order failed", "order_id", order.ID, "error", err)
		return fail("gateway_error", fmt.Errorf("orders: create gateway order: %w", ErrPaymentGateway))
	}
	order.GatewayOrderID = gwOrder.ID

	dbCtx, cancel = context.WithTimeout(ctx, s.cfg.DBTimeout)
	err = s.db.WithContext(dbCtx).Transaction(func(tx *gorm.DB) error {
		return s.orders.WithTx(tx).Create(dbCtx, order)
	})
	cancel()
	if err != nil {
		logger.WithCtx(ctx).Error("persist order failed", "order_id", order.ID, "gateway_order_id", gwOrder.ID, "error", err)
		s.voidGatewayOrder(ctx, gwOrder.ID, "order could not be saved")

		// A concurrent retry with the same key may have won the unique index.
		if in.IdempotencyKey != "" {
			if existing, ferr := s.orders.FindByIdempotencyKey(ctx, user.ID, in.IdempotencyKey); ferr == nil {
				outcome = "replayed"
				return s.result(existing), nil
			}
		}
		return fail("persistence_error", fmt.Errorf("%w: %v", ErrPersistence, err))
	}

	logger.WithCtx(ctx).Info("order created",
		"order_id", order.ID, "gateway_order_id", order.GatewayOrderID, "total", total.StringFixed(2))
	event.Fire(ctx, EventOrderCreated, OrderEvent{Order: *order, To: models.StatusPending, ActorID: user.ID})

	return s.result(order), nil
}

// voidGatewayOrder runs the compensating void with its own timeout, detached
// from the caller's cancellation. A failed void is queued for retry.
func (s *OrderService) voidGatewayOrder(ctx context.Context, gatewayOrderID, reason string) {
	bg := context.WithoutCancel(ctx)
	vctx, cancel := context.WithTimeout(bg, s.cfg.PaymentTimeout)
	defer cancel()

	err := s.gateway.VoidOrder(vctx, gatewayOrderID, reason)
	if err == nil {
		return
	}

	logger.WithCtx(ctx).Warn("void gateway order failed, queueing retry", "gateway_order_id", gatewayOrderID, "error", err)
	if qerr := queue.Dispatch(bg, &jobs.VoidGatewayOrderJob{GatewayOrderID: gatewayOrderID, Reason: reason}); qerr != nil {
		logger.WithCtx(ctx).Error("queue void job failed", "gateway_order_id", gatewayOrderID, "error", qerr)
	}
}

// VerifyPayment applies a signed gateway callback to an order: it marks
// the order PAID and takes the purchased quantities out of stock in one
// transaction. A payment is applied at most once.
func (s *OrderService) VerifyPayment(ctx context.Context, p *auth.Principal, orderID string, cb PaymentCallback) (*models.Order, error) {
	outcome := "paid"
	defer func() { metrics.PaymentVerifications.WithLabelValues(outcome).Inc() }()
	fail := func(o string, e error) (*models.Order, error) {
		outcome = o
		return nil, e
	}

	if p == nil || p.UserID == "" {
		return fail("unauthenticated", ErrAuthenticationRequired)
	}
	if !payment.VerifySignature(s.cfg.Secret, cb.GatewayOrderID, cb.GatewayPaymentID, cb.Signature) {
		logger.WithCtx(ctx).Warn("payment signature mismatch", "order_id", orderID, "gateway_order_id", cb.GatewayOrderID)
		return fail("signature_mismatch", ErrSignatureMismatch)
	}

	dbCtx, cancel := context.WithTimeout(ctx, s.cfg.DBTimeout)
	defer cancel()

	order, err := s.orders.Find(dbCtx, orderID)
	if errors.Is(err, repositories.ErrNotFound) {
		return fail("not_found", ErrOrderNotFound)
	}
	if err != nil {
		return fail("error", fmt.Errorf("%w: %v", ErrPersistence, err))
	}
	if order.GatewayOrderID != cb.GatewayOrderID {
		logger.WithCtx(ctx).Warn("callback gateway order does not match", "order_id", orderID, "gateway_order_id", cb.GatewayOrderID)
		return fail("signature_mismatch", ErrSignatureMismatch)
	}
	if !rbac.Can(p, rbac.OrderPay, order) {
		return fail("denied", ErrAuthorizationDenied)
	}
	if order.Status == models.StatusCancelled {
		s.queueReconcile(ctx, order, cb.GatewayPaymentID, "payment captured after the order was cancelled")
		return fail("cancelled", ErrAlreadyProcessed)
	}
	if order.Status != models.StatusPending {
		return fail("already_processed", ErrAlreadyProcessed)
	}

	paidAt := s.now().UTC()
	var short *models.OrderItem
	err = s.db.WithContext(dbCtx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.orders.WithTx(tx).MarkPaid(dbCtx, order.ID, cb.GatewayPaymentID, paidAt)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyProcessed
		}
		products := s.products.WithTx(tx)
		for i := range order.Items {
			it := &order.Items[i]
			ok, err := products.DecrementStock(dbCtx, it.ProductID, it.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				short = it
				return ErrInsufficientStock
			}
		}
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyProcessed):
		// Lost the race: a cancellation in between still leaves a captured payment.
		if current, ferr := s.orders.Find(dbCtx, order.ID); ferr == nil && current.Status == models.StatusCancelled {
			s.queueReconcile(ctx, order, cb.GatewayPaymentID, "payment captured after the order was cancelled")
			return fail("cancelled", ErrAlreadyProcessed)
		}
		return fail("already_processed", ErrAlreadyProcessed)
	case errors.Is(err, ErrInsufficientStock):
		logger.WithCtx(ctx).Error("paid order cannot be fulfilled", "order_id", order.ID, "product_id", short.ProductID)
		s.queueReconcile(ctx, order, cb.GatewayPaymentID, fmt.Sprintf("%s (%s) is out of stock", short.ProductName, short.ProductID))
		return fail("insufficient_stock", fmt.Errorf("orders: %s: %w", short.ProductName, ErrInsufficientStock))
	default:
		logger.WithCtx(ctx).Error("apply payment failed", "order_id", order.ID, "error", err)
		return fail("error", fmt.Errorf("%w: %v", ErrPersistence, err))
	}

	payID := cb.GatewayPaymentID
	order.Status = models.StatusPaid
	order.GatewayPaymentID = &payID
	order.PaidAt = &paidAt

	s.stockChanged(context.WithoutCancel(ctx))

	logger.WithCtx(ctx).Info("order paid", "order_id", order.ID, "gateway_payment_id", payID)
	event.Fire(ctx, EventOrderPaid, OrderEvent{Order: *order, From: models.StatusPending, To: models.StatusPaid, ActorID: p.UserID})
	return order, nil
}

// queueReconcile hands a captured payment that cannot be applied to staff
// for refund or manual fulfilment.
func (s *OrderService) queueReconcile(ctx context.Context, order *models.Order, paymentID, reason string) {
	logger.WithCtx(ctx).Error("captured payment needs reconciliation",
		"order_id", order.ID, "gateway_payment_id", paymentID, "reason", reason)
	job := &jobs.PaymentReconcileJob{
		OrderID:          order.ID,
		GatewayOrderID:   order.GatewayOrderID,
		GatewayPaymentID: paymentID,
		Reason:           reason,
	}
	if err := queue.Dispatch(context.WithoutCancel(ctx), job); err != nil {
		logger.WithCtx(ctx).Error("queue reconcile job failed", "order_id", order.ID, "error", err)
	}
}

// UpdateStatus moves an order one step along its lifecycle on behalf of
// staff. The move only lands if the order is still in the status it was
// read in. Cancelling an unpaid order also voids its gateway order.
func (s *OrderService) UpdateStatus(ctx context.Context, p *auth.Principal, orderID, next string) (*models.Order, error) {
	if p == nil {
		return nil, ErrAuthenticationRequired
	}
	if !rbac.Can(p, rbac.OrderUpdateStatus, nil) {
		return nil, ErrAuthorizationDenied
	}
	to, ok := models.ParseOrderStatus(next)
	if !ok {
		return nil, invalid(map[string]string{"status": "status must be one of [PENDING PAID PROCESSING SHIPPED DELIVERED CANCELLED]"})
	}

	dbCtx, cancel := context.WithTimeout(ctx, s.cfg.DBTimeout)
	defer cancel()

	order, err := s.orders.Find(dbCtx, orderID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	from := order.Status
	if !from.CanTransitionTo(to) {
		return nil, fmt.Errorf("orders: %s → %s: %w", from, to, ErrInvalidTransition)
	}
	moved, err := s.orders.TransitionStatus(dbCtx, order.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !moved {
		return nil, fmt.Errorf("orders: %s changed concurrently: %w", order.ID, ErrInvalidTransition)
	}
	order.Status = to

	if from == models.StatusPending && to == models.StatusCancelled {
		s.voidGatewayOrder(ctx, order.GatewayOrderID, "cancelled by staff")
	}

	metrics.StatusTransitions.WithLabelValues(string(to)).Inc()
	logger.WithCtx(ctx).Info("order status changed", "order_id", order.ID, "from", from, "to", to, "actor", p.UserID)
	event.Fire(ctx, EventOrderStatusChanged, OrderEvent{Order: *order, From: from, To: to, ActorID: p.UserID})
	return order, nil
}

// ListMine returns the caller's own orders, newest first.
func (s *OrderService) ListMine(ctx context.Context, p *auth.Principal) ([]models.Order, error) {
	user, err := s.principalUser(ctx, p)
	if err != nil {
		return nil, err
	}
	orders, err := s.orders.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return orders, nil
}

// Get returns one order to its owner or to staff.
func (s *OrderService) Get(ctx context.Context, p *auth.Principal, orderID string) (*models.Order, error) {
	if p == nil {
		return nil, ErrAuthenticationRequired
	}
	order, err := s.orders.Find(ctx, orderID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !rbac.Can(p, rbac.OrderView, order) {
		// Foreign orders look missing rather than forbidden.
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// ListAll returns every order for staff, optionally filtered by status.
func (s *OrderService) ListAll(ctx context.Context, p *auth.Principal, status string) ([]models.Order, error) {
	if p == nil {
		return nil, ErrAuthenticationRequired
	}
	if !rbac.Can(p, rbac.OrderListAll, nil) {
		return nil, ErrAuthorizationDenied
	}
	var st models.OrderStatus
	if status != "" {
		parsed, ok := models.ParseOrderStatus(status)
		if !ok {
			return nil, invalid(map[string]string{"status": "unknown order status"})
		}
		st = parsed
	}
	orders, err := s.orders.ListAll(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return orders, nil
}

// ExpirePending cancels PENDING orders older than the pending TTL and voids
// their gateway orders. It returns how many orders were cancelled.
func (s *OrderService) ExpirePending(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.PendingTTL)
	stale, err := s.orders.PendingBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	n := 0
	for i := range stale {
		o := &stale[i]
		moved, err := s.orders.TransitionStatus(ctx, o.ID, models.StatusPending, models.StatusCancelled)
		if err != nil {
			return n, err
		}
		if !moved {
			continue // paid or cancelled meanwhile
		}
		n++
		o.Status = models.StatusCancelled
		s.voidGatewayOrder(ctx, o.GatewayOrderID, "payment window expired")
		metrics.StatusTransitions.WithLabelValues(string(models.StatusCancelled)).Inc()
		event.Fire(ctx, EventOrderStatusChanged, OrderEvent{Order: *o, From: models.StatusPending, To: models.StatusCancelled, ActorID: "system"})
	}
	if n > 0 {
		logger.WithCtx(ctx).Info("expired pending orders", "count", n, "cutoff", cutoff)
	}
	return n, nil
}
