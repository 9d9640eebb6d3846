package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/bunkar/app/models"
	"github.com/shashiranjanraj/bunkar/app/repositories"
	"github.com/shashiranjanraj/bunkar/pkg/auth"
	"github.com/shashiranjanraj/bunkar/pkg/cache"
	"github.com/shashiranjanraj/bunkar/pkg/collection"
	"github.com/shashiranjanraj/bunkar/pkg/logger"
	"github.com/shashiranjanraj/bunkar/pkg/rbac"
	"github.com/shashiranjanraj/bunkar/pkg/storage"
	"github.com/shashiranjanraj/bunkar/pkg/validate"
)

const catalogGenerationKey = "bunkar:catalog:generation"

// ProductInput is the admin form for creating or replacing a product.
type ProductInput struct {
	Name        string          `json:"name" validate:"required,max=255"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price" validate:"gte=0"`
	FabricType  string          `json:"fabric_type" validate:"required,oneof=MUSLIN SILK_SAREE SILK_THAN JAMDANI COTTON_SAREE KHADI"`
	FabricCount *int            `json:"fabric_count" validate:"omitempty,gt=0"`
	Stock       int             `json:"stock" validate:"gte=0"`
	Images      []string        `json:"images" validate:"dive,required"`
	Featured    bool            `json:"featured"`
}

func (in ProductInput) apply(p *models.Product) {
	p.Name = in.Name
	p.Description = in.Description
	p.Price = in.Price.Round(2)
	p.FabricType = models.FabricType(in.FabricType)
	p.FabricCount = in.FabricCount
	p.Stock = in.Stock
	p.Images = models.StringList(in.Images)
	p.Featured = in.Featured
}

// CatalogService answers catalog queries and runs admin product changes.
type CatalogService struct {
	products *repositories.ProductRepository
	ttl      time.Duration
	disk     func() storage.Disk
}

func NewCatalogService(db *gorm.DB, ttl time.Duration) *CatalogService {
	return &CatalogService{
		products: repositories.NewProductRepository(db),
		ttl:      ttl,
		disk:     storage.Default,
	}
}

// cacheKey namespaces a filter under the current catalog generation, so a
// bump makes every cached listing unreachable at once.
func (s *CatalogService) cacheKey(ctx context.Context, f repositories.ProductFilter) string {
	gen := cache.Int(ctx, catalogGenerationKey)
	return fmt.Sprintf("bunkar:catalog:v%d:%s", gen, f.Key())
}

// List returns the products matching f, newest first.
func (s *CatalogService) List(ctx context.Context, f repositories.ProductFilter) ([]models.Product, error) {
	if s.ttl <= 0 || !cache.Available() {
		return s.products.List(ctx, f)
	}
	return s.products.ListCached(ctx, f, s.cacheKey(ctx, f), s.ttl)
}

func (s *CatalogService) Get(ctx context.Context, id string) (*models.Product, error) {
	p, err := s.products.Find(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	return p, err
}

// Lookup resolves ids to products. Missing ids are absent from the map.
func (s *CatalogService) Lookup(ctx context.Context, ids []string) (map[string]models.Product, error) {
	if len(ids) == 0 {
		return map[string]models.Product{}, nil
	}
	return s.products.FindMany(ctx, ids)
}

func (s *CatalogService) invalidate(ctx context.Context) { InvalidateCatalog(ctx) }

// InvalidateCatalog retires every cached listing by bumping the generation
// that listing keys embed. Stock changes made outside the catalog call it too.
func InvalidateCatalog(ctx context.Context) {
	if _, err := cache.Incr(ctx, catalogGenerationKey); err != nil {
		logger.WithCtx(ctx).Warn("catalog cache invalidation failed", "error", err)
	}
}

func (s *CatalogService) authorize(p *auth.Principal) error {
	if p == nil {
		return ErrAuthenticationRequired
	}
	if !rbac.Can(p, rbac.ProductManage, nil) {
		return ErrAuthorizationDenied
	}
	return nil
}

func (s *CatalogService) Create(ctx context.Context, p *auth.Principal, in ProductInput) (*models.Product, error) {
	if err := s.authorize(p); err != nil {
		return nil, err
	}
	if err := invalid(validate.Struct(in)); err != nil {
		return nil, err
	}

	prod := &models.Product{}
	in.apply(prod)
	if err := s.products.Create(ctx, prod); err != nil {
		return nil, fmt.Errorf("catalog: create: %w", err)
	}
	s.invalidate(ctx)
	logger.WithCtx(ctx).Info("product created", "product_id", prod.ID, "actor", p.UserID)
	return prod, nil
}

func (s *CatalogService) Update(ctx context.Context, p *auth.Principal, id string, in ProductInput) (*models.Product, error) {
	if err := s.authorize(p); err != nil {
		return nil, err
	}
	if err := invalid(validate.Struct(in)); err != nil {
		return nil, err
	}

	prod, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	removed := droppedImages(prod.Images, in.Images)
	in.apply(prod)
	if err := s.products.Save(ctx, prod); err != nil {
		return nil, fmt.Errorf("catalog: update: %w", err)
	}
	s.invalidate(ctx)
	s.deleteImages(ctx, removed)
	return prod, nil
}

// Delete removes the product and its stored images.
func (s *CatalogService) Delete(ctx context.Context, p *auth.Principal, id string) error {
	if err := s.authorize(p); err != nil {
		return err
	}
	prod, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.products.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrProductNotFound
		}
		return fmt.Errorf("catalog: delete: %w", err)
	}
	s.invalidate(ctx)
	s.deleteImages(ctx, prod.Images)
	logger.WithCtx(ctx).Info("product deleted", "product_id", id, "actor", p.UserID)
	return nil
}

// deleteImages is best effort; a leftover file never blocks the change.
func (s *CatalogService) deleteImages(ctx context.Context, paths []string) {
	if len(paths) == 0 {
		return
	}
	disk := s.disk()
	if disk == nil {
		return
	}
	for _, path := range paths {
		if err := disk.Delete(ctx, path); err != nil {
			logger.WithCtx(ctx).Warn("delete product image failed", "path", path, "error", err)
		}
	}
}

func droppedImages(before, after []string) []string {
	keep := make(map[string]struct{}, len(after))
	for _, p := range after {
		keep[p] = struct{}{}
	}
	return collection.Filter(before, func(p string) bool {
		_, ok := keep[p]
		return !ok
	})
}
