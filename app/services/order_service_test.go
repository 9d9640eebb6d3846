package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/bunkar/app/models"
	"github.com/shashiranjanraj/bunkar/app/services"
	"github.com/shashiranjanraj/bunkar/pkg/auth"
	"github.com/shashiranjanraj/bunkar/pkg/event"
	"github.com/shashiranjanraj/bunkar/pkg/metrics"
)

var ctx = context.Background()

func TestCreateOrderPricesFromStorage(t *testing.T) {
	f := newFixture(t)

	res, err := f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p1.ID, 2)))
	require.NoError(t, err)

	assert.Equal(t, "2400.00", res.Total.StringFixed(2))
	assert.Equal(t, int64(240000), res.Amount)
	assert.Equal(t, "INR", res.Currency)
	assert.Equal(t, "rzp_test_fake", res.KeyID)
	assert.Equal(t, "order_fake_1", res.GatewayOrderID)

	require.Len(t, f.gw.Created, 1)
	assert.Equal(t, int64(240000), f.gw.Created[0].Amount)
	assert.Equal(t, res.OrderID, f.gw.Created[0].Receipt)

	o := f.order(t, res.OrderID)
	assert.Equal(t, models.StatusPending, o.Status)
	assert.Equal(t, f.customer.UserID, o.UserID)
	assert.Equal(t, "Kolkata", o.Shipping.City)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Jamdani Saree", o.Items[0].ProductName)
	assert.Equal(t, "1200.00", o.Items[0].UnitPrice.StringFixed(2))
	assert.True(t, o.Total.Equal(models.SumItems(o.Items)))

	// Checkout never touches stock.
	assert.Equal(t, 10, f.stock(t, f.p1.ID))
}

func TestCreateOrderExactDecimalTotal(t *testing.T) {
	f := newFixture(t)

	res, err := f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p1.ID, 1), line(f.p2.ID, 3)))
	require.NoError(t, err)

	assert.Equal(t, "2551.50", res.Total.StringFixed(2))
	assert.Equal(t, int64(255150), res.Amount)
}

func TestCreateOrderMergesDuplicateLines(t *testing.T) {
	f := newFixture(t)

	res, err := f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p2.ID, 1), line(f.p2.ID, 2)))
	require.NoError(t, err)

	o := f.order(t, res.OrderID)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 3, o.Items[0].Quantity)
}

func TestCreateOrderUnknownProduct(t *testing.T) {
	f := newFixture(t)

	_, err := f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p1.ID, 1), line("no-such-product", 1)))
	require.ErrorIs(t, err, services.ErrProductNotFound)

	assert.Zero(t, f.count(t, &models.Order{}))
	assert.Zero(t, f.count(t, &models.OrderItem{}))
	assert.Zero(t, f.gw.CreatedCount())
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	f := newFixture(t)

	_, err := f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p2.ID, 6)))
	require.ErrorIs(t, err, services.ErrInsufficientStock)
	assert.Zero(t, f.count(t, &models.Order{}))
	assert.Zero(t, f.gw.CreatedCount())
}

func TestCreateOrderRequiresAuthenticatedUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.orders.CreateOrder(ctx, nil, checkout(line(f.p1.ID, 1)))
	assert.ErrorIs(t, err, services.ErrAuthenticationRequired)

	ghost := &auth.Principal{UserID: "deleted-user", Role: auth.RoleUser}
	_, err = f.orders.CreateOrder(ctx, ghost, checkout(line(f.p1.ID, 1)))
	assert.ErrorIs(t, err, services.ErrSessionExpired)
}

func TestCreateOrderValidatesInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.orders.CreateOrder(ctx, f.customer, checkout())
	assert.ErrorIs(t, err, services.ErrEmptyCart)

	_, err = f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p1.ID, 0)))
	require.ErrorIs(t, err, services.ErrValidation)
	var verr *services.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "items[0].quantity")

	in := checkout(line(f.p1.ID, 1))
	in.Shipping.Email = "not-an-email"
	_, err = f.orders.CreateOrder(ctx, f.customer, in)
	assert.ErrorIs(t, err, services.ErrValidation)

	assert.Zero(t, f.gw.CreatedCount())
}

func TestCreateOrderGatewayFailure(t *testing.T) {
	f := newFixture(t)
	f.gw.CreateErr = errors.New("503 from gateway")

	_, err := f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p1.ID, 1)))
	require.ErrorIs(t, err, services.ErrPaymentGateway)
	assert.Zero(t, f.count(t, &models.Order{}))
}

func TestCreateOrderIdempotencyKeyReplays(t *testing.T) {
	f := newFixture(t)
	in := checkout(line(f.p1.ID, 1))
	in.IdempotencyKey = "checkout-42"

	first, err := f.orders.CreateOrder(ctx, f.customer, in)
	require.NoError(t, err)
	second, err := f.orders.CreateOrder(ctx, f.customer, in)
	require.NoError(t, err)

	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, first.GatewayOrderID, second.GatewayOrderID)
	assert.Equal(t, 1, f.gw.CreatedCount())
	assert.Equal(t, int64(1), f.count(t, &models.Order{}))

	// The key is scoped per customer.
	_, err = f.orders.CreateOrder(ctx, f.other, in)
	require.NoError(t, err)
	assert.Equal(t, 2, f.gw.CreatedCount())
}

// failOrderInserts makes every insert into the orders table fail.
func failOrderInserts(t *testing.T, db *gorm.DB) {
	t.Helper()
	err := db.Callback().Create().Before("gorm:create").Register("test:fail_orders", func(tx *gorm.DB) {
		if tx.Statement.Table == "orders" {
			_ = tx.AddError(errors.New("disk I/O error"))
		}
	})
	require.NoError(t, err)
}

func TestCreateOrderVoidsGatewayOrderWhenPersistenceFails(t *testing.T) {
	f := newFixture(t)
	failOrderInserts(t, f.db)

	_, err := f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p1.ID, 1)))
	require.ErrorIs(t, err, services.ErrPersistence)

	assert.Equal(t, []string{"order_fake_1"}, f.gw.VoidedIDs())
	assert.Zero(t, f.count(t, &models.Order{}))
	assert.Zero(t, f.count(t, &models.OrderItem{}))
	assert.Zero(t, f.jobs.Len())
}

func TestCreateOrderQueuesVoidWhenCompensationFails(t *testing.T) {
	f := newFixture(t)
	failOrderInserts(t, f.db)
	f.gw.VoidErr = errors.New("gateway down")

	_, err := f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p1.ID, 1)))
	require.ErrorIs(t, err, services.ErrPersistence)
	assert.Empty(t, f.gw.VoidedIDs())

	require.Equal(t, 1, f.jobs.Len())
	raw, err := f.jobs.Pop(ctx)
	require.NoError(t, err)

	var env struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, "*jobs.VoidGatewayOrderJob", env.Type)
	assert.JSONEq(t, `{"gateway_order_id":"order_fake_1","reason":"order could not be saved"}`, string(env.Payload))
}

func TestCreateOrderFiresEvent(t *testing.T) {
	f := newFixture(t)
	var got []services.OrderEvent
	event.Listen(services.EventOrderCreated, func(_ context.Context, payload any) {
		got = append(got, payload.(services.OrderEvent))
	})

	res, err := f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p1.ID, 1)))
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, res.OrderID, got[0].Order.ID)
	assert.Equal(t, models.StatusPending, got[0].To)
}

func TestVerifyPaymentMarksPaidAndDecrementsStock(t *testing.T) {
	f := newFixture(t)
	target, err := f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p1.ID, 2), line(f.p2.ID, 1)))
	require.NoError(t, err)
	untouched, err := f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p1.ID, 1)))
	require.NoError(t, err)

	var paidEvents int
	event.Listen(services.EventOrderPaid, func(context.Context, any) { paidEvents++ })

	o, err := f.orders.VerifyPayment(ctx, f.customer, target.OrderID, paid(target.GatewayOrderID, "pay_001"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, o.Status)

	stored := f.order(t, target.OrderID)
	assert.Equal(t, models.StatusPaid, stored.Status)
	require.NotNil(t, stored.GatewayPaymentID)
	assert.Equal(t, "pay_001", *stored.GatewayPaymentID)
	assert.NotNil(t, stored.PaidAt)

	assert.Equal(t, 8, f.stock(t, f.p1.ID))
	assert.Equal(t, 4, f.stock(t, f.p2.ID))
	assert.Equal(t, models.StatusPending, f.order(t, untouched.OrderID).Status)
	assert.Equal(t, 1, paidEvents)
}

func TestPaidOrderRetiresCachedCatalog(t *testing.T) {
	f := newFixture(t)
	var bumps int
	services.SetStockChanged(f.orders, func(context.Context) { bumps++ })

	res, err := f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p1.ID, 2)))
	require.NoError(t, err)
	assert.Zero(t, bumps, "a pending order holds no stock")

	_, err = f.orders.VerifyPayment(ctx, f.customer, res.OrderID, paid(res.GatewayOrderID, "pay_001"))
	require.NoError(t, err)
	assert.Equal(t, 1, bumps)

	// Rolled back payments leave stock, and so the cache, untouched.
	short, err := f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p2.ID, 5)))
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.Product{}).Where("id = ?", f.p2.ID).Update("stock", 1).Error)
	_, err = f.orders.VerifyPayment(ctx, f.customer, short.OrderID, paid(short.GatewayOrderID, "pay_002"))
	require.ErrorIs(t, err, services.ErrInsufficientStock)
	assert.Equal(t, 1, bumps)
}

func TestGatewayLatencyIsLeftToTheGatewayClient(t *testing.T) {
	f := newFixture(t)
	before := testutil.CollectAndCount(metrics.GatewayDuration)

	res, err := f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p1.ID, 1)))
	require.NoError(t, err)
	_, err = f.orders.UpdateStatus(ctx, f.staff, res.OrderID, "CANCELLED")
	require.NoError(t, err)

	// The fake gateway records nothing, so neither create nor void may add a series here.
	assert.Equal(t, before, testutil.CollectAndCount(metrics.GatewayDuration))
}

func TestVerifyPaymentTwiceIsAlreadyProcessed(t *testing.T) {
	f := newFixture(t)
	res, err := f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p1.ID, 2)))
	require.NoError(t, err)

	_, err = f.orders.VerifyPayment(ctx, f.customer, res.OrderID, paid(res.GatewayOrderID, "pay_001"))
	require.NoError(t, err)
	_, err = f.orders.VerifyPayment(ctx, f.customer, res.OrderID, paid(res.GatewayOrderID, "pay_001"))
	require.ErrorIs(t, err, services.ErrAlreadyProcessed)

	assert.Equal(t, 8, f.stock(t, f.p1.ID))
}

func TestVerifyPaymentTamperedSignature(t *testing.T) {
	f := newFixture(t)
	res, err := f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p1.ID, 2)))
	require.NoError(t, err)

	cb := paid(res.GatewayOrderID, "pay_001")
	cb.GatewayPaymentID = "pay_999"

	_, err = f.orders.VerifyPayment(ctx, f.customer, res.OrderID, cb)
	require.ErrorIs(t, err, services.ErrSignatureMismatch)

	assert.Equal(t, models.StatusPending, f.order(t, res.OrderID).Status)
	assert.Equal(t, 10, f.stock(t, f.p1.ID))
}

func TestVerifyPaymentForAnotherGatewayOrder(t *testing.T) {
	f := newFixture(t)
	a, err := f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p1.ID, 1)))
	require.NoError(t, err)
	b, err := f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p2.ID, 1)))
	require.NoError(t, err)

	// A validly signed callback for order b cannot pay order a.
	_, err = f.orders.VerifyPayment(ctx, f.customer, a.OrderID, paid(b.GatewayOrderID, "pay_001"))
	require.ErrorIs(t, err, services.ErrSignatureMismatch)
	assert.Equal(t, models.StatusPending, f.order(t, a.OrderID).Status)
}

func TestVerifyPaymentByAnotherCustomer(t *testing.T) {
	f := newFixture(t)
	res, err := f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p1.ID, 1)))
	require.NoError(t, err)

	_, err = f.orders.VerifyPayment(ctx, f.other, res.OrderID, paid(res.GatewayOrderID, "pay_001"))
	require.ErrorIs(t, err, services.ErrAuthorizationDenied)

	_, err = f.orders.VerifyPayment(ctx, f.customer, "missing", paid(res.GatewayOrderID, "pay_001"))
	require.ErrorIs(t, err, services.ErrOrderNotFound)
}

func TestVerifyPaymentWithoutStockRollsBackAndAlertsStaff(t *testing.T) {
	f := newFixture(t)
	res, err := f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p2.ID, 1), line(f.p1.ID, 3)))
	require.NoError(t, err)

	// Someone else bought the last Jamdani units in the meantime.
	require.NoError(t, f.db.Model(&models.Product{}).Where("id = ?", f.p1.ID).Update("stock", 2).Error)

	_, err = f.orders.VerifyPayment(ctx, f.customer, res.OrderID, paid(res.GatewayOrderID, "pay_001"))
	require.ErrorIs(t, err, services.ErrInsufficientStock)

	o := f.order(t, res.OrderID)
	assert.Equal(t, models.StatusPending, o.Status)
	assert.Nil(t, o.GatewayPaymentID)
	assert.Equal(t, 5, f.stock(t, f.p2.ID))
	assert.Equal(t, 2, f.stock(t, f.p1.ID))

	require.Equal(t, 1, f.jobs.Len())
	raw, err := f.jobs.Pop(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"*jobs.PaymentReconcileJob"`)
	assert.Contains(t, string(raw), res.OrderID)
}

func TestUpdateStatusForwardPath(t *testing.T) {
	f := newFixture(t)
	res, err := f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p1.ID, 1)))
	require.NoError(t, err)
	_, err = f.orders.VerifyPayment(ctx, f.customer, res.OrderID, paid(res.GatewayOrderID, "pay_001"))
	require.NoError(t, err)

	var changes []services.OrderEvent
	event.Listen(services.EventOrderStatusChanged, func(_ context.Context, payload any) {
		changes = append(changes, payload.(services.OrderEvent))
	})

	for _, next := range []string{"PROCESSING", "SHIPPED", "DELIVERED"} {
		o, err := f.orders.UpdateStatus(ctx, f.staff, res.OrderID, next)
		require.NoError(t, err, next)
		assert.Equal(t, models.OrderStatus(next), o.Status)
	}

	require.Len(t, changes, 3)
	assert.Equal(t, models.StatusPaid, changes[0].From)
	assert.Equal(t, models.StatusDelivered, changes[2].To)
	assert.Equal(t, f.staff.UserID, changes[2].ActorID)

	// Delivered is terminal.
	_, err = f.orders.UpdateStatus(ctx, f.staff, res.OrderID, "CANCELLED")
	assert.ErrorIs(t, err, services.ErrInvalidTransition)
}

func TestUpdateStatusRejectsRevertsAndManualPayment(t *testing.T) {
	f := newFixture(t)
	res, err := f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p1.ID, 1)))
	require.NoError(t, err)

	_, err = f.orders.UpdateStatus(ctx, f.staff, res.OrderID, "PAID")
	assert.ErrorIs(t, err, services.ErrInvalidTransition)

	_, err = f.orders.VerifyPayment(ctx, f.customer, res.OrderID, paid(res.GatewayOrderID, "pay_001"))
	require.NoError(t, err)
	_, err = f.orders.UpdateStatus(ctx, f.staff, res.OrderID, "PROCESSING")
	require.NoError(t, err)

	_, err = f.orders.UpdateStatus(ctx, f.staff, res.OrderID, "PAID")
	assert.ErrorIs(t, err, services.ErrInvalidTransition)
	assert.Equal(t, models.StatusProcessing, f.order(t, res.OrderID).Status)

	_, err = f.orders.UpdateStatus(ctx, f.staff, res.OrderID, "LOST")
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestUpdateStatusIsStaffOnly(t *testing.T) {
	f := newFixture(t)
	res, err := f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p1.ID, 1)))
	require.NoError(t, err)

	_, err = f.orders.UpdateStatus(ctx, f.customer, res.OrderID, "CANCELLED")
	assert.ErrorIs(t, err, services.ErrAuthorizationDenied)

	_, err = f.orders.UpdateStatus(ctx, nil, res.OrderID, "CANCELLED")
	assert.ErrorIs(t, err, services.ErrAuthenticationRequired)

	_, err = f.orders.UpdateStatus(ctx, f.staff, "missing", "CANCELLED")
	assert.ErrorIs(t, err, services.ErrOrderNotFound)
}

func TestCancellingPendingOrderVoidsGatewayOrder(t *testing.T) {
	f := newFixture(t)
	res, err := f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p1.ID, 1)))
	require.NoError(t, err)

	o, err := f.orders.UpdateStatus(ctx, f.staff, res.OrderID, "CANCELLED")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, o.Status)
	assert.Equal(t, []string{res.GatewayOrderID}, f.gw.VoidedIDs())

	// A late callback for a cancelled order changes nothing in the store.
	_, err = f.orders.VerifyPayment(ctx, f.customer, res.OrderID, paid(res.GatewayOrderID, "pay_late"))
	assert.ErrorIs(t, err, services.ErrAlreadyProcessed)
	assert.Equal(t, 10, f.stock(t, f.p1.ID))
	assert.Equal(t, models.StatusCancelled, f.order(t, res.OrderID).Status)
}

func TestPaymentOnCancelledOrderIsHandedToStaff(t *testing.T) {
	f := newFixture(t)
	res, err := f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p1.ID, 1)))
	require.NoError(t, err)
	_, err = f.orders.UpdateStatus(ctx, f.staff, res.OrderID, "CANCELLED")
	require.NoError(t, err)
	require.Zero(t, f.jobs.Len())

	_, err = f.orders.VerifyPayment(ctx, f.customer, res.OrderID, paid(res.GatewayOrderID, "pay_late"))
	require.ErrorIs(t, err, services.ErrAlreadyProcessed)

	require.Equal(t, 1, f.jobs.Len())
	raw, err := f.jobs.Pop(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"*jobs.PaymentReconcileJob"`)
	assert.Contains(t, string(raw), res.OrderID)
	assert.Contains(t, string(raw), "pay_late")
}

func TestPaymentOnPaidOrderQueuesNothing(t *testing.T) {
	f := newFixture(t)
	res, err := f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p1.ID, 1)))
	require.NoError(t, err)
	_, err = f.orders.VerifyPayment(ctx, f.customer, res.OrderID, paid(res.GatewayOrderID, "pay_001"))
	require.NoError(t, err)

	_, err = f.orders.VerifyPayment(ctx, f.customer, res.OrderID, paid(res.GatewayOrderID, "pay_001"))
	require.ErrorIs(t, err, services.ErrAlreadyProcessed)
	assert.Zero(t, f.jobs.Len())
}

func TestOrderReads(t *testing.T) {
	f := newFixture(t)
	mine, err := f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p1.ID, 1)))
	require.NoError(t, err)
	theirs, err := f.orders.CreateOrder(ctx, f.other, checkout(line(f.p2.ID, 1)))
	require.NoError(t, err)

	list, err := f.orders.ListMine(ctx, f.customer)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, mine.OrderID, list[0].ID)
	assert.Len(t, list[0].Items, 1)

	_, err = f.orders.Get(ctx, f.customer, theirs.OrderID)
	assert.ErrorIs(t, err, services.ErrOrderNotFound)

	o, err := f.orders.Get(ctx, f.staff, theirs.OrderID)
	require.NoError(t, err)
	assert.Equal(t, f.other.UserID, o.UserID)

	_, err = f.orders.ListAll(ctx, f.customer, "")
	assert.ErrorIs(t, err, services.ErrAuthorizationDenied)

	all, err := f.orders.ListAll(ctx, f.staff, "PENDING")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	none, err := f.orders.ListAll(ctx, f.staff, "SHIPPED")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestExpirePendingCancelsStaleOrders(t *testing.T) {
	f := newFixture(t)
	stale, err := f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p1.ID, 1)))
	require.NoError(t, err)
	fresh, err := f.orders.CreateOrder(ctx, f.customer, checkout(line(f.p2.ID, 1)))
	require.NoError(t, err)

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, f.db.Model(&models.Order{}).Where("id = ?", stale.OrderID).UpdateColumn("created_at", old).Error)

	n, err := f.orders.ExpirePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, models.StatusCancelled, f.order(t, stale.OrderID).Status)
	assert.Equal(t, models.StatusPending, f.order(t, fresh.OrderID).Status)
	assert.Equal(t, []string{stale.GatewayOrderID}, f.gw.VoidedIDs())

	n, err = f.orders.ExpirePending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
