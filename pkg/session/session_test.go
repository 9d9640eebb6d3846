package session_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/bunkar/pkg/session"
)

func testOptions() session.Options {
	opts := session.DefaultOptions()
	opts.Store = session.NewMemoryStore()
	return opts
}

func TestSessionRoundTripThroughCookie(t *testing.T) {
	opts := testOptions()

	write := session.Middleware(opts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := session.FromCtx(r)
		require.NoError(t, s.Set("cart", map[string]int{"p1": 2}))
		require.NoError(t, s.Save(r.Context(), w))
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	write.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "bunkar_session", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	var got map[string]int
	read := session.Middleware(opts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, session.FromCtx(r).Get("cart", &got))
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	read.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, map[string]int{"p1": 2}, got)
}

func TestUnchangedSessionWritesNoCookie(t *testing.T) {
	h := session.Middleware(testOptions())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, session.FromCtx(r).Save(r.Context(), w))
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, w.Result().Cookies())
}

func TestInvalidateRotatesID(t *testing.T) {
	h := session.Middleware(testOptions())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := session.FromCtx(r)
		require.NoError(t, s.Set("k", "v"))
		before := s.ID()
		require.NoError(t, s.Invalidate(r.Context()))
		assert.NotEqual(t, before, s.ID())
		assert.False(t, s.Has("k"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := session.NewMemoryStore()
	ctx := t.Context()
	require.NoError(t, store.Save(ctx, "id", session.Data{"a": []byte(`1`)}, time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	data, err := store.Load(ctx, "id")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestForgedCookieStartsFreshSession(t *testing.T) {
	opts := testOptions()
	require.NoError(t, opts.Store.Save(t.Context(), "known-id", session.Data{"cart": []byte(`{"p1":1}`)}, time.Hour))

	h := session.Middleware(opts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := session.FromCtx(r)
		assert.NotEqual(t, "known-id", s.ID())
		assert.False(t, s.Has("cart"))
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "bunkar_session", Value: "known-id"})
	h.ServeHTTP(httptest.NewRecorder(), req)
}
