package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/shashiranjanraj/bunkar/app/models"
	"github.com/shashiranjanraj/bunkar/pkg/orm"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) WithTx(tx *gorm.DB) *OrderRepository {
	return &OrderRepository{db: tx}
}

// Create inserts the order together with its items.
func (r *OrderRepository) Create(ctx context.Context, o *models.Order) error {
	if err := r.db.WithContext(ctx).Create(o).Error; err != nil {
		return fmt.Errorf("repositories: create order: %w", err)
	}
	return nil
}

func (r *OrderRepository) Find(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	err := orm.On(r.db).WithContext(ctx).Model(&models.Order{}).
		Preload("Items").
		Where("id = ?", id).
		First(&o)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repositories: find order: %w", err)
	}
	return &o, nil
}

// FindByIdempotencyKey returns the order a user already placed with key.
func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, userID, key string) (*models.Order, error) {
	var o models.Order
	err := orm.On(r.db).WithContext(ctx).Model(&models.Order{}).
		Preload("Items").
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&o)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repositories: find order by key: %w", err)
	}
	return &o, nil
}

// ListByUser returns a customer's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]models.Order, error) {
	var out []models.Order
	err := orm.On(r.db).WithContext(ctx).Model(&models.Order{}).
		Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Get(&out)
	if err != nil {
		return nil, fmt.Errorf("repositories: list orders: %w", err)
	}
	return out, nil
}

// ListAll returns every order, optionally limited to one status.
func (r *OrderRepository) ListAll(ctx context.Context, status models.OrderStatus) ([]models.Order, error) {
	var out []models.Order
	err := orm.On(r.db).WithContext(ctx).Model(&models.Order{}).
		Preload("Items").
		WhereIf(status != "", "status = ?", status).
		Order("created_at DESC").
		Get(&out)
	if err != nil {
		return nil, fmt.Errorf("repositories: list orders: %w", err)
	}
	return out, nil
}

// MarkPaid flips a PENDING order to PAID. It reports false when the order
// was no longer PENDING, so a payment can only be applied once.
func (r *OrderRepository) MarkPaid(ctx context.Context, id, paymentID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, models.StatusPending).
		Updates(map[string]interface{}{
			"status":             models.StatusPaid,
			"gateway_payment_id": paymentID,
			"paid_at":            at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("repositories: mark paid: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// TransitionStatus moves an order from one status to another only if it is
// still in from.
func (r *OrderRepository) TransitionStatus(ctx context.Context, id string, from, to models.OrderStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, fmt.Errorf("repositories: transition status: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// PendingBefore returns PENDING orders created before cutoff.
func (r *OrderRepository) PendingBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	var out []models.Order
	err := orm.On(r.db).WithContext(ctx).Model(&models.Order{}).
		Where("status = ? AND created_at < ?", models.StatusPending, cutoff).
		Order("created_at ASC").
		Get(&out)
	if err != nil {
		return nil, fmt.Errorf("repositories: pending orders: %w", err)
	}
	return out, nil
}
