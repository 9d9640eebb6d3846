// Package jobs holds the background work the order flow hands to the queue.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shashiranjanraj/bunkar/app/notifications"
	"github.com/shashiranjanraj/bunkar/app/repositories"
	"github.com/shashiranjanraj/bunkar/config"
	"github.com/shashiranjanraj/bunkar/pkg/logger"
	"github.com/shashiranjanraj/bunkar/pkg/mail"
	"github.com/shashiranjanraj/bunkar/pkg/notification"
	"github.com/shashiranjanraj/bunkar/pkg/payment"
	"github.com/shashiranjanraj/bunkar/pkg/queue"
	"gorm.io/gorm"
)

// Deps are the collaborators jobs need when a worker runs them.
type Deps struct {
	Gateway payment.Gateway
	DB      *gorm.DB
}

var (
	mu   sync.RWMutex
	deps Deps

	registerOnce sync.Once
)

// Configure sets the collaborators and registers every job type with the
// queue. Safe to call more than once; the last Deps win.
func Configure(d Deps) {
	mu.Lock()
	deps = d
	mu.Unlock()

	registerOnce.Do(func() {
		queue.Register(&VoidGatewayOrderJob{}, func() queue.Job { return &VoidGatewayOrderJob{} })
		queue.Register(&PaymentReconcileJob{}, func() queue.Job { return &PaymentReconcileJob{} })
	})
}

func current() Deps {
	mu.RLock()
	defer mu.RUnlock()
	return deps
}

// VoidGatewayOrderJob retries voiding a gateway order whose local order
// was never persisted.
type VoidGatewayOrderJob struct {
	GatewayOrderID string `json:"gateway_order_id"`
	Reason         string `json:"reason"`
}

func (j *VoidGatewayOrderJob) Handle(ctx context.Context) error {
	gw := current().Gateway
	if gw == nil {
		return errors.New("jobs: payment gateway not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, config.PaymentTimeout())
	defer cancel()

	if err := gw.VoidOrder(ctx, j.GatewayOrderID, j.Reason); err != nil {
		return fmt.Errorf("jobs: void %s: %w", j.GatewayOrderID, err)
	}
	logger.WithCtx(ctx).Info("gateway order voided", "gateway_order_id", j.GatewayOrderID)
	return nil
}

// PaymentReconcileJob alerts staff that a customer paid for an order the
// store could not fulfil automatically.
type PaymentReconcileJob struct {
	OrderID          string `json:"order_id"`
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Reason           string `json:"reason"`
}

func (j *PaymentReconcileJob) Handle(ctx context.Context) error {
	n := &notifications.PaymentNeedsReconcile{
		OrderID:          j.OrderID,
		GatewayOrderID:   j.GatewayOrderID,
		GatewayPaymentID: j.GatewayPaymentID,
		Reason:           j.Reason,
	}

	recipients := []string{}
	if inbox := config.StoreInbox(); inbox != "" {
		recipients = append(recipients, inbox)
	}
	if db := current().DB; db != nil {
		staff, err := repositories.NewUserRepository(db).StaffEmails(ctx)
		if err != nil {
			return err
		}
		recipients = append(recipients, staff...)
	}

	logger.WithCtx(ctx).Warn("paid order needs reconciliation",
		"order_id", j.OrderID, "gateway_payment_id", j.GatewayPaymentID, "reason", j.Reason)

	var errs []error
	for i, to := range recipients {
		msg := *n
		msg.MailOnly = i > 0
		if err := notification.Send(ctx, to, &msg); err != nil && !errors.Is(err, mail.ErrNotConfigured) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
