// Package rbac is the single place that decides who may do what.
package rbac

import (
	"net/http"

	"github.com/shashiranjanraj/bunkar/pkg/auth"
	"github.com/shashiranjanraj/bunkar/pkg/response"
)

// Action names a protected operation.
type Action string

const (
	ProductManage     Action = "product.manage"
	OrderListAll      Action = "order.list_all"
	OrderUpdateStatus Action = "order.update_status"
	OrderView         Action = "order.view"
	OrderPay          Action = "order.pay"
	StaffFeed         Action = "staff.feed"
	ContactList       Action = "contact.list"
)

// Owned is implemented by resources that belong to a user.
type Owned interface {
	OwnerID() string
}

var roleActions = map[Action][]string{
	ProductManage:     {auth.RoleAdmin},
	OrderListAll:      {auth.RoleAdmin, auth.RoleSalesperson},
	OrderUpdateStatus: {auth.RoleAdmin, auth.RoleSalesperson},
	StaffFeed:         {auth.RoleAdmin, auth.RoleSalesperson},
	ContactList:       {auth.RoleAdmin},
}

// Can reports whether p may perform action on resource. resource is only
// consulted for owner-scoped actions and may be nil otherwise.
func Can(p *auth.Principal, action Action, resource Owned) bool {
	if p == nil {
		return false
	}

	switch action {
	case OrderView:
		return p.IsStaff() || owns(p, resource)
	case OrderPay:
		return owns(p, resource)
	}

	for _, role := range roleActions[action] {
		if p.Role == role {
			return true
		}
	}
	return false
}

func owns(p *auth.Principal, resource Owned) bool {
	return resource != nil && resource.OwnerID() != "" && resource.OwnerID() == p.UserID
}

// Authorize returns middleware allowing only principals that Can perform a
// role-scoped action. Requires AuthMiddleware to have run.
func Authorize(action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.PrincipalFrom(r.Context())
			if p == nil {
				response.Unauthorized(w, "Authentication required")
				return
			}
			if !Can(p, action, nil) {
				response.Forbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Guest blocks authenticated users (login and register).
func Guest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.PrincipalFrom(r.Context()) != nil {
			response.Error(w, http.StatusConflict, "Already authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}
