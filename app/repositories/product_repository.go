// Package repositories holds the gorm queries behind the services. Every
// repository can be rebound to a transaction with WithTx.
package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/bunkar/app/models"
	"github.com/shashiranjanraj/bunkar/pkg/collection"
	"github.com/shashiranjanraj/bunkar/pkg/orm"
)

// ErrNotFound is returned when a lookup by id matches no row.
var ErrNotFound = errors.New("repositories: record not found")

// ProductFilter narrows a catalog query. Zero values mean "any".
type ProductFilter struct {
	FabricType  models.FabricType
	FabricCount *int
	MinPrice    *decimal.Decimal
	MaxPrice    *decimal.Decimal
	Search      string
	Featured    *bool
}

// Key is a stable string form of the filter, used in cache keys.
func (f ProductFilter) Key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "t=%s", f.FabricType)
	if f.FabricCount != nil {
		fmt.Fprintf(&b, "|c=%d", *f.FabricCount)
	}
	if f.MinPrice != nil {
		fmt.Fprintf(&b, "|min=%s", f.MinPrice.String())
	}
	if f.MaxPrice != nil {
		fmt.Fprintf(&b, "|max=%s", f.MaxPrice.String())
	}
	if f.Featured != nil {
		fmt.Fprintf(&b, "|f=%t", *f.Featured)
	}
	fmt.Fprintf(&b, "|q=%s", strings.ToLower(strings.TrimSpace(f.Search)))
	return b.String()
}

type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// WithTx returns a copy bound to tx.
func (r *ProductRepository) WithTx(tx *gorm.DB) *ProductRepository {
	return &ProductRepository{db: tx}
}

func (r *ProductRepository) filtered(ctx context.Context, f ProductFilter) *orm.Query {
	q := orm.On(r.db).WithContext(ctx).Model(&models.Product{}).
		WhereIf(f.FabricType != "", "fabric_type = ?", f.FabricType).
		WhereIf(f.FabricCount != nil, "fabric_count = ?", derefInt(f.FabricCount)).
		WhereIf(f.MinPrice != nil, "price >= ?", derefDecimal(f.MinPrice)).
		WhereIf(f.MaxPrice != nil, "price <= ?", derefDecimal(f.MaxPrice)).
		WhereIf(f.Featured != nil, "featured = ?", f.Featured != nil && *f.Featured)

	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + escapeLike(strings.ToLower(term)) + "%"
		q = q.Where("(LOWER(name) LIKE ? ESCAPE '!' OR LOWER(description) LIKE ? ESCAPE '!')", like, like)
	}
	return q.Order("created_at DESC").Order("id DESC")
}

// List returns products matching f, newest first. No pagination.
func (r *ProductRepository) List(ctx context.Context, f ProductFilter) ([]models.Product, error) {
	var out []models.Product
	if err := r.filtered(ctx, f).Get(&out); err != nil {
		return nil, fmt.Errorf("repositories: list products: %w", err)
	}
	return out, nil
}

// ListCached is List through the read-through cache under key.
func (r *ProductRepository) ListCached(ctx context.Context, f ProductFilter, key string, ttl time.Duration) ([]models.Product, error) {
	var out []models.Product
	if err := r.filtered(ctx, f).Cache(ctx, key, ttl, &out); err != nil {
		return nil, fmt.Errorf("repositories: list products: %w", err)
	}
	return out, nil
}

func (r *ProductRepository) Find(ctx context.Context, id string) (*models.Product, error) {
	var p models.Product
	err := orm.On(r.db).WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).First(&p)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repositories: find product: %w", err)
	}
	return &p, nil
}

// FindMany loads products by id, keyed by id. Missing ids are simply absent.
func (r *ProductRepository) FindMany(ctx context.Context, ids []string) (map[string]models.Product, error) {
	if len(ids) == 0 {
		return map[string]models.Product{}, nil
	}

	var rows []models.Product
	if err := orm.On(r.db).WithContext(ctx).Model(&models.Product{}).Where("id IN ?", ids).Get(&rows); err != nil {
		return nil, fmt.Errorf("repositories: find products: %w", err)
	}
	return collection.KeyBy(rows, func(p models.Product) string { return p.ID }), nil
}

func (r *ProductRepository) Create(ctx context.Context, p *models.Product) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *ProductRepository) Save(ctx context.Context, p *models.Product) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Product{})
	if res.Error != nil {
		return fmt.Errorf("repositories: delete product: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DecrementStock removes qty units only if that many are in stock.
// It reports false, without error, when stock is insufficient.
func (r *ProductRepository) DecrementStock(ctx context.Context, id string, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND stock >= ?", id, qty).
		UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return false, fmt.Errorf("repositories: decrement stock: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func derefDecimal(p *decimal.Decimal) decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	return *p
}

func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}
