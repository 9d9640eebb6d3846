package controllers

import (
	"fmt"

	"github.com/shashiranjanraj/bunkar/app/resources"
	"github.com/shashiranjanraj/bunkar/app/services"
	"github.com/shashiranjanraj/bunkar/pkg/cart"
	"github.com/shashiranjanraj/bunkar/pkg/collection"
	"github.com/shashiranjanraj/bunkar/pkg/ctx"
	"github.com/shashiranjanraj/bunkar/pkg/session"
)

// CartController keeps the shopper's cart in the HTTP session.
type CartController struct {
	catalog *services.CatalogService
}

func NewCartController(catalog *services.CatalogService) *CartController {
	return &CartController{catalog: catalog}
}

type cartLineInput struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0,lte=99"`
}

type cartQuantityInput struct {
	Quantity int `json:"quantity" validate:"gte=0,lte=99"`
}

func sessionCart(c *ctx.Context) (*session.Session, *cart.Cart) {
	sess := session.FromCtx(c.R)
	crt := cart.New()
	sess.Get(cart.SessionKey, crt)
	return sess, crt
}

func storeCart(c *ctx.Context, sess *session.Session, crt *cart.Cart) error {
	if crt.Empty() {
		sess.Delete(cart.SessionKey)
	} else if err := sess.Set(cart.SessionKey, crt); err != nil {
		return err
	}
	return sess.Save(c.Context(), c.W)
}

// respond saves the session and renders the cart with live product data.
func (cc *CartController) respond(c *ctx.Context, sess *session.Session, crt *cart.Cart) {
	if err := storeCart(c, sess, crt); err != nil {
		fail(c, fmt.Errorf("cart: %w", err))
		return
	}

	items := crt.Items()
	ids := collection.Map(items, func(it cart.Item) string { return it.ProductID })
	products, err := cc.catalog.Lookup(c.Context(), ids)
	if err != nil {
		fail(c, err)
		return
	}

	lines := make([]resources.CartLine, 0, len(items))
	for _, it := range items {
		line := resources.CartLine{Item: it}
		if p, ok := products[it.ProductID]; ok {
			line.Product = &p
		}
		lines = append(lines, line)
	}
	c.Success(resources.Cart{Products: productResource()}.ToArray(lines))
}

// Show handles GET /api/cart.
func (cc *CartController) Show(c *ctx.Context) {
	sess, crt := sessionCart(c)
	cc.respond(c, sess, crt)
}

// Add handles POST /api/cart/items. Quantities accumulate on an existing
// line and may not exceed the product's stock.
func (cc *CartController) Add(c *ctx.Context) {
	var in cartLineInput
	if !c.BindJSON(&in) {
		return
	}
	p, err := cc.catalog.Get(c.Context(), in.ProductID)
	if err != nil {
		fail(c, err)
		return
	}

	sess, crt := sessionCart(c)
	if !p.InStock(crt.Quantity(p.ID) + in.Quantity) {
		fail(c, services.ErrInsufficientStock)
		return
	}
	if err := crt.Add(p.ID, in.Quantity); err != nil {
		fail(c, err)
		return
	}
	cc.respond(c, sess, crt)
}

// Update handles PUT /api/cart/items/{productID}. A quantity of zero
// removes the line.
func (cc *CartController) Update(c *ctx.Context) {
	var in cartQuantityInput
	if !c.BindJSON(&in) {
		return
	}
	id := c.Param("productID")
	sess, crt := sessionCart(c)
	if crt.Quantity(id) == 0 {
		fail(c, cart.ErrNotInCart)
		return
	}
	if in.Quantity > 0 {
		p, err := cc.catalog.Get(c.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		if !p.InStock(in.Quantity) {
			fail(c, services.ErrInsufficientStock)
			return
		}
	}
	if err := crt.SetQuantity(id, in.Quantity); err != nil {
		fail(c, err)
		return
	}
	cc.respond(c, sess, crt)
}

// Remove handles DELETE /api/cart/items/{productID}.
func (cc *CartController) Remove(c *ctx.Context) {
	sess, crt := sessionCart(c)
	crt.Remove(c.Param("productID"))
	cc.respond(c, sess, crt)
}

// Clear handles DELETE /api/cart.
func (cc *CartController) Clear(c *ctx.Context) {
	sess, crt := sessionCart(c)
	crt.Clear()
	cc.respond(c, sess, crt)
}
