// Package ctx provides the request context handed to every controller action.
//
//	func (pc *ProductController) Show(c *ctx.Context) {
//	    p, err := pc.catalog.Get(c.Context(), c.Param("id"))
//	    ...
//	    c.Success(resource.One[models.Product](productResource(), *p))
//	}
//
//	router.Get("/products/{id}", "products.show", ctx.Wrap(pc.Show))
package ctx

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/shashiranjanraj/bunkar/pkg/auth"
	"github.com/shashiranjanraj/bunkar/pkg/bind"
	"github.com/shashiranjanraj/bunkar/pkg/response"
	"github.com/shashiranjanraj/bunkar/pkg/validate"
)

// HandlerFunc is the controller action signature.
type HandlerFunc func(c *Context)

// Wrap adapts a HandlerFunc for the router.
func Wrap(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := pool.Get().(*Context)
		c.W, c.R = w, r
		defer func() {
			c.W, c.R = nil, nil
			pool.Put(c)
		}()
		h(c)
	}
}

// Context wraps one request/response pair. It is recycled after the action
// returns and must not be retained.
type Context struct {
	W http.ResponseWriter
	R *http.Request
}

var pool = sync.Pool{New: func() any { return &Context{} }}

// Param returns a path parameter ("/orders/{id}" → c.Param("id")).
func (c *Context) Param(key string) string { return chi.URLParam(c.R, key) }

func (c *Context) Query(key string) string { return c.R.URL.Query().Get(key) }

func (c *Context) Header(key string) string { return c.R.Header.Get(key) }

func (c *Context) Method() string { return c.R.Method }

func (c *Context) Path() string { return c.R.URL.Path }

// ClientIP prefers the first X-Forwarded-For hop, then X-Real-Ip, then the
// socket address without its port.
func (c *Context) ClientIP() string {
	if fwd := c.R.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
	}
	if real := c.R.Header.Get("X-Real-Ip"); real != "" {
		return real
	}
	if host, _, err := net.SplitHostPort(c.R.RemoteAddr); err == nil {
		return host
	}
	return c.R.RemoteAddr
}

func (c *Context) Context() context.Context { return c.R.Context() }

// Principal returns the authenticated caller, or nil for guests.
func (c *Context) Principal() *auth.Principal { return auth.PrincipalFrom(c.R.Context()) }

// BindJSON decodes and validates the body into dest. On failure it has
// already answered (400 for a malformed body, 422 with field errors) and
// returns false.
//
//	var in services.ContactInput
//	if !c.BindJSON(&in) {
//	    return
//	}
func (c *Context) BindJSON(dest any) bool {
	errs, err := bind.JSON(c.R, dest)
	switch {
	case err != nil:
		c.Error(http.StatusBadRequest, err.Error())
		return false
	case validate.HasErrors(errs):
		c.ValidationError(errs)
		return false
	}
	return true
}

// Status writes a bare status code.
func (c *Context) Status(code int) { c.W.WriteHeader(code) }

// JSON writes v as is, outside the envelope.
func (c *Context) JSON(code int, v any) {
	c.W.Header().Set("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.W).Encode(v)
}

func (c *Context) Success(data any) { c.envelope(http.StatusOK, response.Envelope{Data: data}) }

func (c *Context) Created(data any) { c.envelope(http.StatusCreated, response.Envelope{Data: data}) }

func (c *Context) NoContent() { c.Status(http.StatusNoContent) }

func (c *Context) Error(code int, message string) {
	c.envelope(code, response.Envelope{Message: message})
}

// ValidationError answers 422 with one message per field.
func (c *Context) ValidationError(errs map[string]string) {
	c.envelope(http.StatusUnprocessableEntity, response.Envelope{Message: "Validation failed", Errors: errs})
}

func (c *Context) envelope(code int, body response.Envelope) { response.Write(c.W, code, body) }
