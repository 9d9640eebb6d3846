// Package session provides cookie-identified HTTP sessions stored in Redis,
// or in process memory when Redis is not connected.
//
//	r.Use(session.Middleware(session.DefaultOptions()))
//
//	sess := session.FromCtx(r)
//	sess.Set("cart", cart)
//	if err := sess.Save(r.Context(), w); err != nil { ... }
//	var c cart.Cart
//	sess.Get("cart", &c)
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shashiranjanraj/bunkar/config"
	"github.com/shashiranjanraj/bunkar/pkg/cache"
	"github.com/shashiranjanraj/bunkar/pkg/crypt"
)

// Options configures session behaviour.
type Options struct {
	CookieName string
	TTL        time.Duration
	HTTPOnly   bool
	Secure     bool
	SameSite   http.SameSite
	Path       string
	Store      Store
}

// DefaultOptions uses Redis when it is connected and memory otherwise.
func DefaultOptions() Options {
	var store Store = NewMemoryStore()
	if cache.Available() {
		store = RedisStore{}
	}
	return Options{
		CookieName: "bunkar_session",
		TTL:        7 * 24 * time.Hour,
		HTTPOnly:   true,
		Secure:     config.AppEnv() == "production",
		SameSite:   http.SameSiteLaxMode,
		Path:       "/",
		Store:      store,
	}
}

type Data map[string]json.RawMessage

// Store persists session data by id.
type Store interface {
	Load(ctx context.Context, id string) (Data, error)
	Save(ctx context.Context, id string, data Data, ttl time.Duration) error
	Destroy(ctx context.Context, id string) error
}

// RedisStore keeps sessions under bunkar:session:<id> via pkg/cache.
type RedisStore struct{}

func redisKey(id string) string { return "bunkar:session:" + id }

func (RedisStore) Load(ctx context.Context, id string) (Data, error) {
	data := Data{}
	cache.Get(ctx, redisKey(id), &data)
	return data, nil
}

func (RedisStore) Save(ctx context.Context, id string, data Data, ttl time.Duration) error {
	return cache.Set(ctx, redisKey(id), data, ttl)
}

func (RedisStore) Destroy(ctx context.Context, id string) error {
	return cache.Del(ctx, redisKey(id))
}

// MemoryStore is a process-local store for development and tests.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
}

type memoryItem struct {
	data    Data
	expires time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]memoryItem{}}
}

func (m *MemoryStore) Load(_ context.Context, id string) (Data, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || time.Now().After(it.expires) {
		delete(m.items, id)
		return Data{}, nil
	}
	out := make(Data, len(it.data))
	for k, v := range it.data {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) Save(_ context.Context, id string, data Data, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(Data, len(data))
	for k, v := range data {
		cp[k] = v
	}
	m.items[id] = memoryItem{data: cp, expires: time.Now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Destroy(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.items, id)
	m.mu.Unlock()
	return nil
}

type ctxKey struct{}

// Session is an in-request session handle. It is not safe for concurrent
// use by multiple goroutines.
type Session struct {
	id      string
	data    Data
	opts    Options
	changed bool
}

func newID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// Set stores value under key as JSON.
func (s *Session) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("session: marshal %s: %w", key, err)
	}
	s.data[key] = raw
	s.changed = true
	return nil
}

// Get decodes the value under key into dest and reports whether it existed.
func (s *Session) Get(key string, dest any) bool {
	raw, ok := s.data[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

// Has reports whether key is set.
func (s *Session) Has(key string) bool {
	_, ok := s.data[key]
	return ok
}

// Delete removes a key from the session.
func (s *Session) Delete(key string) {
	if _, ok := s.data[key]; ok {
		delete(s.data, key)
		s.changed = true
	}
}

// Invalidate clears the data and rotates the id (login and logout).
func (s *Session) Invalidate(ctx context.Context) error {
	if err := s.opts.Store.Destroy(ctx, s.id); err != nil {
		return fmt.Errorf("session: destroy: %w", err)
	}
	id, err := newID()
	if err != nil {
		return fmt.Errorf("session: new id: %w", err)
	}
	s.id = id
	s.data = Data{}
	s.changed = true
	return nil
}

// Save persists the session and writes the cookie. It must run before the
// response body is written.
func (s *Session) Save(ctx context.Context, w http.ResponseWriter) error {
	if !s.changed {
		return nil
	}

	if err := s.opts.Store.Save(ctx, s.id, s.data, s.opts.TTL); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}

	sealed, err := crypt.Encrypt(s.id)
	if err != nil {
		return fmt.Errorf("session: seal cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    sealed,
		Path:     s.opts.Path,
		MaxAge:   int(s.opts.TTL.Seconds()),
		HttpOnly: s.opts.HTTPOnly,
		Secure:   s.opts.Secure,
		SameSite: s.opts.SameSite,
	})

	s.changed = false
	return nil
}

// cookieID opens the sealed session cookie. Forged or stale cookies are
// treated as absent.
func cookieID(r *http.Request, name string) (string, bool) {
	cookie, err := r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	id, err := crypt.Decrypt(cookie.Value)
	if err != nil || id == "" {
		return "", false
	}
	return id, true
}

// Middleware loads (or creates) the session for every request and stores
// it in the request context.
func Middleware(opts Options) func(http.Handler) http.Handler {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := &Session{opts: opts}

			if id, ok := cookieID(r, opts.CookieName); ok {
				sess.id = id
				data, err := opts.Store.Load(r.Context(), sess.id)
				if err != nil || data == nil {
					data = Data{}
				}
				sess.data = data
			} else {
				id, err := newID()
				if err != nil {
					http.Error(w, "session unavailable", http.StatusInternalServerError)
					return
				}
				sess.id = id
				sess.data = Data{}
			}

			ctx := context.WithValue(r.Context(), ctxKey{}, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromCtx retrieves the session from the request context. Without the
// middleware it returns a detached session backed by a throwaway store.
func FromCtx(r *http.Request) *Session {
	if s, ok := r.Context().Value(ctxKey{}).(*Session); ok {
		return s
	}
	id, _ := newID()
	opts := DefaultOptions()
	opts.Store = NewMemoryStore()
	return &Session{id: id, data: Data{}, opts: opts}
}
