package routes

import (
	"net/http"
	"time"

	"github.com/shashiranjanraj/bunkar/app/controllers"
	"github.com/shashiranjanraj/bunkar/pkg/ctx"
	"github.com/shashiranjanraj/bunkar/pkg/middleware"
	"github.com/shashiranjanraj/bunkar/pkg/rbac"
	"github.com/shashiranjanraj/bunkar/pkg/router"
	"github.com/shashiranjanraj/bunkar/pkg/ws"
)

// Deps are the handlers the API is built from.
type Deps struct {
	Auth     *controllers.AuthController
	Products *controllers.ProductController
	Cart     *controllers.CartController
	Orders   *controllers.OrderController
	Contact  *controllers.ContactController
	GraphQL  http.Handler
	Hub      *ws.Hub
}

func RegisterAPI(r *router.Router, d Deps) {
	api := r.Group("/api")

	guest := api.Group("/auth", middleware.OptionalAuth, rbac.Guest, middleware.RateLimit(10, time.Minute))
	guest.Post("/register", "auth.register", ctx.Wrap(d.Auth.Register))
	guest.Post("/login", "auth.login", ctx.Wrap(d.Auth.Login))
	api.Get("/auth/me", "auth.me", ctx.Wrap(d.Auth.Me), middleware.AuthMiddleware)

	api.Get("/products", "products.index", ctx.Wrap(d.Products.Index))
	api.Get("/products/{id}", "products.show", ctx.Wrap(d.Products.Show))

	api.Get("/cart", "cart.show", ctx.Wrap(d.Cart.Show))
	api.Delete("/cart", "cart.clear", ctx.Wrap(d.Cart.Clear))
	api.Post("/cart/items", "cart.items.store", ctx.Wrap(d.Cart.Add))
	api.Put("/cart/items/{productID}", "cart.items.update", ctx.Wrap(d.Cart.Update))
	api.Delete("/cart/items/{productID}", "cart.items.destroy", ctx.Wrap(d.Cart.Remove))

	api.Post("/contact", "contact.store", ctx.Wrap(d.Contact.Submit), middleware.RateLimit(5, time.Minute))

	orders := api.Group("/orders", middleware.AuthMiddleware)
	orders.Post("/", "orders.store", ctx.Wrap(d.Orders.Checkout))
	orders.Get("/", "orders.index", ctx.Wrap(d.Orders.Index))
	orders.Get("/{id}", "orders.show", ctx.Wrap(d.Orders.Show))
	orders.Post("/{id}/verify", "orders.verify", ctx.Wrap(d.Orders.Verify))
	orders.Get("/{id}/events", "orders.events", ctx.Wrap(d.Orders.Track))

	admin := api.Group("/admin", middleware.AuthMiddleware)

	products := admin.Group("/products", rbac.Authorize(rbac.ProductManage))
	products.Post("/", "admin.products.store", ctx.Wrap(d.Products.Store))
	products.Put("/{id}", "admin.products.update", ctx.Wrap(d.Products.Update))
	products.Delete("/{id}", "admin.products.destroy", ctx.Wrap(d.Products.Destroy))

	staff := admin.Group("/orders", rbac.Authorize(rbac.OrderListAll))
	staff.Get("/", "admin.orders.index", ctx.Wrap(d.Orders.AdminIndex))
	staff.Patch("/{id}/status", "admin.orders.status", ctx.Wrap(d.Orders.UpdateStatus))
	staff.Get("/{id}/audit", "admin.orders.audit", ctx.Wrap(d.Orders.Trail))

	admin.Get("/contact", "admin.contact.index", ctx.Wrap(d.Contact.Index), rbac.Authorize(rbac.ContactList))

	if d.GraphQL != nil {
		r.Post("/graphql", "graphql", d.GraphQL.ServeHTTP)
		r.Get("/graphql", "graphql.get", d.GraphQL.ServeHTTP)
	}
	if d.Hub != nil {
		r.Get("/ws/staff/orders", "ws.staff.orders", func(w http.ResponseWriter, req *http.Request) {
			ws.Upgrade(w, req, d.Hub)
		}, middleware.AuthMiddleware, rbac.Authorize(rbac.StaffFeed))
	}
}
