package router_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/bunkar/pkg/router"
)

func tag(name string) router.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("X-Trail", name)
			next.ServeHTTP(w, r)
		})
	}
}

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestGroupsJoinPrefixesAndStackMiddleware(t *testing.T) {
	r := router.New()
	api := r.Group("/api", tag("api"))
	orders := api.Group("orders/", tag("auth"))
	orders.Post("/", "orders.store", ok)
	orders.Patch("/{id}/status", "orders.status", ok, tag("staff"))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/api/orders/o-1/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"api", "auth", "staff"}, rec.Header().Values("X-Trail"))

	rec = httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/orders", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []router.Route{
		{Name: "orders.store", Method: http.MethodPost, Path: "/api/orders"},
		{Name: "orders.status", Method: http.MethodPatch, Path: "/api/orders/{id}/status"},
	}, r.Routes())
}

func TestUnknownRoutesUseEnvelope(t *testing.T) {
	r := router.New()
	r.Get("/api/products", "products.index", ok)

	cases := map[string]struct {
		method, path string
		code         int
	}{
		"unknown path":  {http.MethodGet, "/api/looms", http.StatusNotFound},
		"wrong method":  {http.MethodDelete, "/api/products", http.StatusMethodNotAllowed},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.Handler().ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
			assert.Equal(t, tc.code, rec.Code)

			var body struct {
				Status  int  `json:"status"`
				Success bool `json:"success"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.Status)
			assert.False(t, body.Success)
		})
	}
}

func TestDuplicateRouteNamePanics(t *testing.T) {
	r := router.New()
	r.Get("/api/cart", "cart.show", ok)
	assert.Panics(t, func() { r.Post("/api/cart/items", "cart.show", ok) })
}
