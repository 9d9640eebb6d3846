// Package resources defines the JSON shapes the API returns.
package resources

import (
	"github.com/shopspring/decimal"

	"github.com/shashiranjanraj/bunkar/app/models"
	"github.com/shashiranjanraj/bunkar/pkg/cart"
	"github.com/shashiranjanraj/bunkar/pkg/resource"
	"github.com/shashiranjanraj/bunkar/pkg/storage"
)

// Product renders a product with absolute image URLs from Disk.
type Product struct {
	Disk storage.Disk
}

func (r Product) ToArray(p models.Product) resource.Map {
	images := make([]string, 0, len(p.Images))
	for _, path := range p.Images {
		if r.Disk != nil {
			images = append(images, r.Disk.URL(path))
		} else {
			images = append(images, path)
		}
	}
	out := resource.Map{
		"id":          p.ID,
		"name":        p.Name,
		"description": p.Description,
		"price":       p.Price.StringFixed(2),
		"fabric_type": p.FabricType,
		"stock":       p.Stock,
		"in_stock":    p.Stock > 0,
		"images":      images,
		"featured":    p.Featured,
		"created_at":  p.CreatedAt,
	}
	if p.FabricCount != nil {
		out["fabric_count"] = *p.FabricCount
	}
	return out
}

// Order renders an order with its item snapshots.
type Order struct{}

func (Order) ToArray(o models.Order) resource.Map {
	items := make([]resource.Map, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, resource.Map{
			"product_id":   it.ProductID,
			"product_name": it.ProductName,
			"quantity":     it.Quantity,
			"unit_price":   it.UnitPrice.StringFixed(2),
			"subtotal":     it.Subtotal().StringFixed(2),
		})
	}
	out := resource.Map{
		"id":               o.ID,
		"user_id":          o.UserID,
		"status":           o.Status,
		"total":            o.Total.StringFixed(2),
		"currency":         o.Currency,
		"gateway_order_id": o.GatewayOrderID,
		"shipping":         o.Shipping,
		"items":            items,
		"created_at":       o.CreatedAt,
		"updated_at":       o.UpdatedAt,
	}
	if o.GatewayPaymentID != nil {
		out["gateway_payment_id"] = *o.GatewayPaymentID
	}
	if o.PaidAt != nil {
		out["paid_at"] = *o.PaidAt
	}
	return out
}

// User renders an account without its password hash.
var User = resource.Func[models.User](func(u models.User) resource.Map {
	return resource.Map{
		"id":         u.ID,
		"name":       u.Name,
		"email":      u.Email,
		"role":       u.Role,
		"created_at": u.CreatedAt,
	}
})

// CartLine is one cart line joined with its product.
type CartLine struct {
	Item    cart.Item
	Product *models.Product // nil when the product was deleted
}

// Cart renders cart lines with live prices. Lines whose product is gone are
// flagged rather than dropped so the client can tell the customer.
type Cart struct {
	Products Product
}

func (r Cart) ToArray(lines []CartLine) resource.Map {
	out := make([]resource.Map, 0, len(lines))
	count := 0
	for _, l := range lines {
		count += l.Item.Quantity
		row := resource.Map{"product_id": l.Item.ProductID, "quantity": l.Item.Quantity, "available": l.Product != nil}
		if l.Product != nil {
			row["product"] = r.Products.ToArray(*l.Product)
			row["subtotal"] = l.Product.Price.Mul(decimal.NewFromInt(int64(l.Item.Quantity))).StringFixed(2)
		}
		out = append(out, row)
	}
	return resource.Map{"items": out, "count": count}
}
