package server_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/bunkar/app/listeners"
	"github.com/shashiranjanraj/bunkar/app/models"
	"github.com/shashiranjanraj/bunkar/app/services"
	_ "github.com/shashiranjanraj/bunkar/database/migrations"
	"github.com/shashiranjanraj/bunkar/internal/server"
	"github.com/shashiranjanraj/bunkar/pkg/audit"
	"github.com/shashiranjanraj/bunkar/pkg/auth"
	"github.com/shashiranjanraj/bunkar/pkg/database"
	"github.com/shashiranjanraj/bunkar/pkg/event"
	"github.com/shashiranjanraj/bunkar/pkg/migration"
	"github.com/shashiranjanraj/bunkar/pkg/payment"
	"github.com/shashiranjanraj/bunkar/pkg/queue"
	"github.com/shashiranjanraj/bunkar/pkg/recaptcha"
	"github.com/shashiranjanraj/bunkar/pkg/sse"
	"github.com/shashiranjanraj/bunkar/pkg/testkit"
	"github.com/shashiranjanraj/bunkar/pkg/workerpool"
	"github.com/shashiranjanraj/bunkar/pkg/ws"
)

const paymentSecret = "flow_key_secret"

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open("sqlite", "file:server_flows?mode=memory&cache=shared")
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	_, err = migration.New(db).Run(context.Background())
	require.NoError(t, err)
	return db
}

// newApp wires the services the way Boot does, over sqlite, the fake
// gateway and a recaptcha client whose calls testkit answers.
func newApp(t *testing.T) *server.App {
	t.Helper()
	db := openDB(t)
	queue.SetDriver(queue.NewMemoryDriver())

	pool := workerpool.New(2)
	event.UsePool(pool)
	t.Cleanup(func() {
		event.Flush()
		_ = pool.Shutdown(context.Background())
	})

	gw := payment.NewFake()
	verifier := &recaptcha.Client{URL: "https://recaptcha.test/siteverify", Secret: "flow-secret", Timeout: time.Second}

	a := &server.App{
		DB:      db,
		Gateway: gw,
		Audit:   audit.NewMemory(),
		Hub:     ws.NewHub(),
		Broker:  sse.NewBroker(),
		Pool:    pool,
		Auth:    services.NewAuthService(db),
		Catalog: services.NewCatalogService(db, 0),
		Orders: services.NewOrderService(db, gw, services.OrderConfig{
			Secret:         paymentSecret,
			Currency:       "INR",
			PaymentTimeout: time.Second,
			DBTimeout:      time.Second,
			PendingTTL:     time.Hour,
		}),
		Contact: services.NewContactService(db, verifier, 0.5, ""),
	}
	listeners.Register(listeners.Deps{Audit: a.Audit, Hub: a.Hub, Broker: a.Broker, Contact: a.Contact})
	return a
}

func staffToken(t *testing.T, db *gorm.DB, email, role string) string {
	t.Helper()
	u := &models.User{Name: email, Email: email, Role: role}
	require.NoError(t, db.Create(u).Error)
	token, err := auth.GenerateToken(u.ID, role)
	require.NoError(t, err)
	return token
}

func TestAPIFlows(t *testing.T) {
	a := newApp(t)

	saree := &models.Product{
		Name:       "Jamdani Saree",
		Price:      decimal.RequireFromString("1200.00"),
		FabricType: models.FabricJamdani,
		Stock:      5,
	}
	require.NoError(t, a.DB.Create(saree).Error)
	stole := &models.Product{
		Name:       "Muslin Stole",
		Price:      decimal.RequireFromString("450.50"),
		FabricType: models.FabricMuslin,
		Stock:      8,
	}
	require.NoError(t, a.DB.Create(stole).Error)

	handler, err := a.Handler()
	require.NoError(t, err)

	testkit.RunDir(t, handler, "testdata", testkit.Vars{
		"saree":       saree.ID,
		"signature":   payment.Sign(paymentSecret, "order_fake_1", "pay_flow_1"),
		"staff_token": staffToken(t, a.DB, "desk@example.com", auth.RoleSalesperson),
		"admin_token": staffToken(t, a.DB, "owner@example.com", auth.RoleAdmin),
	})
}
