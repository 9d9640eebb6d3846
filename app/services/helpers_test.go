package services_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/bunkar/app/models"
	"github.com/shashiranjanraj/bunkar/app/services"
	_ "github.com/shashiranjanraj/bunkar/database/migrations"
	"github.com/shashiranjanraj/bunkar/pkg/auth"
	"github.com/shashiranjanraj/bunkar/pkg/database"
	"github.com/shashiranjanraj/bunkar/pkg/event"
	"github.com/shashiranjanraj/bunkar/pkg/migration"
	"github.com/shashiranjanraj/bunkar/pkg/payment"
	"github.com/shashiranjanraj/bunkar/pkg/queue"
)

const testSecret = "test_key_secret"

// openDB returns a migrated in-memory database private to the test.
func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Open("sqlite", "file:"+name+"?mode=memory&cache=shared")
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	_, err = migration.New(db).Run(context.Background())
	require.NoError(t, err)
	return db
}

type fixture struct {
	db       *gorm.DB
	gw       *payment.Fake
	jobs     *queue.MemoryDriver
	orders   *services.OrderService
	customer *auth.Principal
	other    *auth.Principal
	staff    *auth.Principal
	p1, p2   *models.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := openDB(t)

	jobs := queue.NewMemoryDriver()
	queue.SetDriver(jobs)
	t.Cleanup(event.Flush)

	f := &fixture{
		db:   db,
		gw:   payment.NewFake(),
		jobs: jobs,
	}
	f.orders = services.NewOrderService(db, f.gw, services.OrderConfig{
		Secret:         testSecret,
		Currency:       "INR",
		PaymentTimeout: time.Second,
		DBTimeout:      time.Second,
		PendingTTL:     time.Hour,
	})

	f.customer = f.user(t, "asha@example.com", auth.RoleUser)
	f.other = f.user(t, "ravi@example.com", auth.RoleUser)
	f.staff = f.user(t, "desk@example.com", auth.RoleSalesperson)

	f.p1 = f.product(t, "Jamdani Saree", models.FabricJamdani, "1200.00", 10)
	f.p2 = f.product(t, "Muslin Stole", models.FabricMuslin, "450.50", 5)
	return f
}

func (f *fixture) user(t *testing.T, email, role string) *auth.Principal {
	t.Helper()
	u := &models.User{Name: email, Email: email, Role: role}
	require.NoError(t, f.db.Create(u).Error)
	return &auth.Principal{UserID: u.ID, Role: role}
}

func (f *fixture) product(t *testing.T, name string, fabric models.FabricType, price string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:       name,
		Price:      decimal.RequireFromString(price),
		FabricType: fabric,
		Stock:      stock,
	}
	require.NoError(t, f.db.Create(p).Error)
	return p
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	var p models.Product
	require.NoError(t, f.db.First(&p, "id = ?", id).Error)
	return p.Stock
}

func (f *fixture) order(t *testing.T, id string) models.Order {
	t.Helper()
	var o models.Order
	require.NoError(t, f.db.Preload("Items").First(&o, "id = ?", id).Error)
	return o
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func shipping() services.ShippingInput {
	return services.ShippingInput{
		Name:       "Asha Roy",
		Email:      "asha@example.com",
		Phone:      "+91 98300 00000",
		Address:    "12 Loom Lane",
		City:       "Kolkata",
		State:      "WB",
		PostalCode: "700001",
	}
}

func checkout(items ...services.CheckoutItem) services.CheckoutInput {
	return services.CheckoutInput{Items: items, Shipping: shipping()}
}

func line(productID string, qty int) services.CheckoutItem {
	return services.CheckoutItem{ProductID: productID, Quantity: qty}
}

// paid returns a callback signed with the test secret.
func paid(gatewayOrderID, paymentID string) services.PaymentCallback {
	return services.PaymentCallback{
		GatewayOrderID:   gatewayOrderID,
		GatewayPaymentID: paymentID,
		Signature:        payment.Sign(testSecret, gatewayOrderID, paymentID),
	}
}
