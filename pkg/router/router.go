// Package router is a thin layer over chi that names every route and lets
// groups stack middleware on a shared path prefix.
//
//	api := r.Group("/api")
//	orders := api.Group("/orders", middleware.AuthMiddleware)
//	orders.Get("/{id}", "orders.show", ctx.Wrap(oc.Show))
package router

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/shashiranjanraj/bunkar/pkg/response"
)

type Middleware func(http.Handler) http.Handler

// Route is one named entry of the route table.
type Route struct {
	Name   string
	Method string
	Path   string
}

type Router struct {
	root *Group
	mux  chi.Router

	mu    sync.RWMutex
	named map[string]Route
}

// Group registers routes under a prefix with its own middleware.
type Group struct {
	router      *Router
	prefix      string
	middlewares []Middleware
}

// New returns a router whose unknown paths and methods answer with the
// JSON error envelope.
func New() *Router {
	mux := chi.NewRouter()
	mux.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "Not Found")
	})
	mux.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	r := &Router{mux: mux, named: make(map[string]Route)}
	r.root = &Group{router: r, prefix: "/"}
	return r
}

func (r *Router) Handler() http.Handler { return r.mux }

func (r *Router) Group(prefix string, middlewares ...Middleware) *Group {
	return r.root.Group(prefix, middlewares...)
}

func (r *Router) Get(path, name string, h http.HandlerFunc, mw ...Middleware) {
	r.root.Get(path, name, h, mw...)
}

func (r *Router) Post(path, name string, h http.HandlerFunc, mw ...Middleware) {
	r.root.Post(path, name, h, mw...)
}

// Use adds global middleware. It runs before routing, so it also sees
// requests that match no route. Call it before registering any route.
func (r *Router) Use(middlewares ...Middleware) {
	for _, mw := range middlewares {
		r.mux.Use(mw)
	}
}

// Handle mounts h for every method, bypassing the route table.
func (r *Router) Handle(path string, h http.Handler) {
	r.mux.Handle(joinPath(path), h)
}

// Routes returns the named routes sorted by path, then method.
func (r *Router) Routes() []Route {
	r.mu.RLock()
	out := make([]Route, 0, len(r.named))
	for _, rt := range r.named {
		out = append(out, rt)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Path == out[j].Path {
			return out[i].Method < out[j].Method
		}
		return out[i].Path < out[j].Path
	})
	return out
}

// Group nests a prefix; its middleware runs after the parent's.
func (g *Group) Group(prefix string, middlewares ...Middleware) *Group {
	return &Group{
		router:      g.router,
		prefix:      joinPath(g.prefix, prefix),
		middlewares: append(append([]Middleware(nil), g.middlewares...), middlewares...),
	}
}

func (g *Group) Get(path, name string, h http.HandlerFunc, mw ...Middleware) {
	g.mount(http.MethodGet, path, name, h, mw)
}

func (g *Group) Post(path, name string, h http.HandlerFunc, mw ...Middleware) {
	g.mount(http.MethodPost, path, name, h, mw)
}

func (g *Group) Put(path, name string, h http.HandlerFunc, mw ...Middleware) {
	g.mount(http.MethodPut, path, name, h, mw)
}

func (g *Group) Patch(path, name string, h http.HandlerFunc, mw ...Middleware) {
	g.mount(http.MethodPatch, path, name, h, mw)
}

func (g *Group) Delete(path, name string, h http.HandlerFunc, mw ...Middleware) {
	g.mount(http.MethodDelete, path, name, h, mw)
}

// mount panics on a duplicate route name; that is a wiring bug caught at
// startup.
func (g *Group) mount(method, path, name string, h http.HandlerFunc, mw []Middleware) {
	full := joinPath(g.prefix, path)

	var wrapped http.Handler = h
	stack := append(append([]Middleware(nil), g.middlewares...), mw...)
	for i := len(stack) - 1; i >= 0; i-- {
		wrapped = stack[i](wrapped)
	}
	g.router.mux.Method(method, full, wrapped)

	if name == "" {
		return
	}
	g.router.mu.Lock()
	defer g.router.mu.Unlock()
	if prev, dup := g.router.named[name]; dup {
		panic(fmt.Sprintf("router: route name %q already used by %s %s", name, prev.Method, prev.Path))
	}
	g.router.named[name] = Route{Name: name, Method: method, Path: full}
}

func joinPath(parts ...string) string {
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.Trim(part, "/"); trimmed != "" {
			segments = append(segments, trimmed)
		}
	}
	return "/" + strings.Join(segments, "/")
}
