package http_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bhttp "github.com/shashiranjanraj/bunkar/pkg/http"
	"github.com/shashiranjanraj/bunkar/pkg/reqid"
)

func TestPostJSONWithBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_key", user)
		assert.Equal(t, "rzp_secret", pass)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "req-42", r.Header.Get(reqid.Header))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_1","amount":240000}`))
	}))
	defer srv.Close()

	ctx := reqid.WithValue(context.Background(), "req-42")
	resp, err := bhttp.Post(srv.URL).
		BasicAuth("rzp_key", "rzp_secret").
		Body(map[string]any{"amount": 240000}).
		WithContext(ctx).
		Send()
	require.NoError(t, err)
	require.NoError(t, resp.Throw())

	var out struct {
		ID     string `json:"id"`
		Amount int64  `json:"amount"`
	}
	require.NoError(t, resp.JSON(&out))
	assert.Equal(t, "order_1", out.ID)
	assert.Equal(t, int64(240000), out.Amount)
}

func TestFormBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "tok", r.PostForm.Get("response"))
		_, _ = w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	resp, err := bhttp.Post(srv.URL).Form(url.Values{"response": {"tok"}}).Send()
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text())
}

func TestRetriesUnavailableUpstream(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	resp, err := bhttp.Patch(srv.URL).Retry(3, time.Millisecond).Send()
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer srv.Close()

	resp, err := bhttp.Post(srv.URL).Retry(3, time.Millisecond).Send()
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var se *bhttp.StatusError
	require.True(t, errors.As(resp.Throw(), &se))
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Len(t, se.Body, 512)
}

type failing struct{ calls int }

func (f *failing) RoundTrip(*http.Request) (*http.Response, error) {
	f.calls++
	return nil, errors.New("connection refused")
}

func TestTransportErrorsExhaustAttempts(t *testing.T) {
	ft := &failing{}
	bhttp.DefaultClient.Transport = ft
	defer bhttp.ResetTransport()

	_, err := bhttp.Get("https://gateway.test/v1/orders/x").Retry(2, time.Millisecond).Send()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempt(s)")
	assert.Equal(t, 2, ft.calls)
}

func TestCancelledContextStopsRetrying(t *testing.T) {
	ft := &failing{}
	bhttp.DefaultClient.Transport = ft
	defer bhttp.ResetTransport()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := bhttp.Get("https://gateway.test/").Retry(5, time.Second).WithContext(ctx).Send()
	require.Error(t, err)
	assert.LessOrEqual(t, ft.calls, 1)
}
