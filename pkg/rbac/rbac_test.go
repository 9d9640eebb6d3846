package rbac_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shashiranjanraj/bunkar/pkg/auth"
	"github.com/shashiranjanraj/bunkar/pkg/rbac"
)

type order struct{ owner string }

func (o order) OwnerID() string { return o.owner }

var (
	admin    = &auth.Principal{UserID: "a", Role: auth.RoleAdmin}
	sales    = &auth.Principal{UserID: "s", Role: auth.RoleSalesperson}
	customer = &auth.Principal{UserID: "u1", Role: auth.RoleUser}
	other    = &auth.Principal{UserID: "u2", Role: auth.RoleUser}
)

func TestCanRoleScoped(t *testing.T) {
	assert.True(t, rbac.Can(admin, rbac.ProductManage, nil))
	assert.False(t, rbac.Can(sales, rbac.ProductManage, nil))
	assert.False(t, rbac.Can(customer, rbac.ProductManage, nil))

	for _, a := range []rbac.Action{rbac.OrderListAll, rbac.OrderUpdateStatus, rbac.StaffFeed} {
		assert.True(t, rbac.Can(admin, a, nil), a)
		assert.True(t, rbac.Can(sales, a, nil), a)
		assert.False(t, rbac.Can(customer, a, nil), a)
	}

	assert.True(t, rbac.Can(admin, rbac.ContactList, nil))
	assert.False(t, rbac.Can(sales, rbac.ContactList, nil))
	assert.False(t, rbac.Can(nil, rbac.ContactList, nil))
	assert.False(t, rbac.Can(admin, rbac.Action("unknown"), nil))
}

func TestCanOwnerScoped(t *testing.T) {
	mine := order{owner: "u1"}

	assert.True(t, rbac.Can(customer, rbac.OrderView, mine))
	assert.False(t, rbac.Can(other, rbac.OrderView, mine))
	assert.True(t, rbac.Can(sales, rbac.OrderView, mine))

	assert.True(t, rbac.Can(customer, rbac.OrderPay, mine))
	assert.False(t, rbac.Can(other, rbac.OrderPay, mine))
	assert.False(t, rbac.Can(admin, rbac.OrderPay, mine), "staff cannot pay for a customer")
	assert.False(t, rbac.Can(customer, rbac.OrderPay, nil))
	assert.False(t, rbac.Can(&auth.Principal{}, rbac.OrderView, order{}))
}

func TestAuthorizeMiddleware(t *testing.T) {
	h := rbac.Authorize(rbac.OrderListAll)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	serve := func(p *auth.Principal) int {
		r := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
		if p != nil {
			r = r.WithContext(auth.WithPrincipal(r.Context(), p))
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusUnauthorized, serve(nil))
	assert.Equal(t, http.StatusForbidden, serve(customer))
	assert.Equal(t, http.StatusTeapot, serve(sales))
}

func TestGuestRejectsSignedInCallers(t *testing.T) {
	h := rbac.Guest(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/register", nil))
	assert.Equal(t, http.StatusCreated, w.Code)

	r := httptest.NewRequest(http.MethodPost, "/api/auth/register", nil)
	r = r.WithContext(auth.WithPrincipal(r.Context(), customer))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusConflict, w.Code)
}
