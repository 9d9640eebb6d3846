package controllers

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/shashiranjanraj/bunkar/app/models"
	"github.com/shashiranjanraj/bunkar/app/repositories"
	"github.com/shashiranjanraj/bunkar/app/resources"
	"github.com/shashiranjanraj/bunkar/app/services"
	"github.com/shashiranjanraj/bunkar/pkg/ctx"
	"github.com/shashiranjanraj/bunkar/pkg/resource"
	"github.com/shashiranjanraj/bunkar/pkg/storage"
)

type ProductController struct {
	catalog *services.CatalogService
}

func NewProductController(catalog *services.CatalogService) *ProductController {
	return &ProductController{catalog: catalog}
}

func productResource() resources.Product {
	return resources.Product{Disk: storage.Default()}
}

// ParseProductFilter reads catalog filters from query parameters:
// fabric_type, fabric_count, min_price, max_price, featured and q.
func ParseProductFilter(get func(string) string) (repositories.ProductFilter, map[string]string) {
	var f repositories.ProductFilter
	errs := map[string]string{}

	if v := strings.TrimSpace(get("fabric_type")); v != "" {
		ft := models.FabricType(strings.ToUpper(v))
		if !ft.Valid() {
			errs["fabric_type"] = "unknown fabric type"
		}
		f.FabricType = ft
	}
	if v := get("fabric_count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs["fabric_count"] = "fabric_count must be a positive integer"
		} else {
			f.FabricCount = &n
		}
	}
	for _, key := range []string{"min_price", "max_price"} {
		v := get(key)
		if v == "" {
			continue
		}
		d, err := decimal.NewFromString(v)
		if err != nil || d.IsNegative() {
			errs[key] = key + " must be a non-negative amount"
			continue
		}
		if key == "min_price" {
			f.MinPrice = &d
		} else {
			f.MaxPrice = &d
		}
	}
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		errs["min_price"] = "min_price must not exceed max_price"
	}
	if v := get("featured"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs["featured"] = "featured must be true or false"
		} else {
			f.Featured = &b
		}
	}
	f.Search = strings.TrimSpace(get("q"))
	return f, errs
}

// Index handles GET /api/products.
func (pc *ProductController) Index(c *ctx.Context) {
	filter, errs := ParseProductFilter(c.Query)
	if len(errs) > 0 {
		c.ValidationError(errs)
		return
	}
	products, err := pc.catalog.List(c.Context(), filter)
	if err != nil {
		fail(c, err)
		return
	}
	c.Success(resource.Many[models.Product](productResource(), products))
}

// Show handles GET /api/products/{id}.
func (pc *ProductController) Show(c *ctx.Context) {
	p, err := pc.catalog.Get(c.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.Success(resource.One[models.Product](productResource(), *p))
}

// Store handles POST /api/admin/products.
func (pc *ProductController) Store(c *ctx.Context) {
	var in services.ProductInput
	if !c.BindJSON(&in) {
		return
	}
	p, err := pc.catalog.Create(c.Context(), c.Principal(), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.Created(resource.One[models.Product](productResource(), *p))
}

// Update handles PUT /api/admin/products/{id}.
func (pc *ProductController) Update(c *ctx.Context) {
	var in services.ProductInput
	if !c.BindJSON(&in) {
		return
	}
	p, err := pc.catalog.Update(c.Context(), c.Principal(), c.Param("id"), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.Success(resource.One[models.Product](productResource(), *p))
}

// Destroy handles DELETE /api/admin/products/{id}.
func (pc *ProductController) Destroy(c *ctx.Context) {
	if err := pc.catalog.Delete(c.Context(), c.Principal(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.NoContent()
}
