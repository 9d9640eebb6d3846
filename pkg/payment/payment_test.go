package payment_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/bunkar/pkg/metrics"
	"github.com/shashiranjanraj/bunkar/pkg/payment"
)

func TestSignMatchesKnownDigest(t *testing.T) {
	sig := payment.Sign("secret", "order_1", "pay_1")
	assert.Len(t, sig, 64)
	assert.Equal(t, sig, payment.Sign("secret", "order_1", "pay_1"))
	assert.NotEqual(t, sig, payment.Sign("secret", "order_1", "pay_2"))
	assert.NotEqual(t, sig, payment.Sign("other", "order_1", "pay_1"))
}

func TestVerifySignature(t *testing.T) {
	good := payment.Sign("secret", "order_1", "pay_1")

	assert.True(t, payment.VerifySignature("secret", "order_1", "pay_1", good))
	assert.False(t, payment.VerifySignature("secret", "order_1", "pay_1", good[:63]+"0"), "tampered digest")
	assert.False(t, payment.VerifySignature("secret", "order_2", "pay_1", good), "swapped order id")
	assert.False(t, payment.VerifySignature("", "order_1", "pay_1", payment.Sign("", "order_1", "pay_1")), "empty secret")
	assert.False(t, payment.VerifySignature("secret", "order_1", "pay_1", ""))
}

func TestVerifySignatureIsCaseSensitive(t *testing.T) {
	good := payment.Sign("secret", "order_1", "pay_1")
	upper := []byte(good)
	for i, c := range upper {
		if c >= 'a' && c <= 'f' {
			upper[i] = c - 32
		}
	}
	if string(upper) != good {
		assert.False(t, payment.VerifySignature("secret", "order_1", "pay_1", string(upper)))
	}
}

func TestToMinorUnits(t *testing.T) {
	cases := map[string]int64{
		"2400.00": 240000,
		"1200":    120000,
		"0.01":    1,
		"10.005":  1001,
		"10.004":  1000,
		"0":       0,
	}
	for in, want := range cases {
		assert.Equal(t, want, payment.ToMinorUnits(decimal.RequireFromString(in)), in)
	}
	assert.True(t, payment.FromMinorUnits(240000).Equal(decimal.RequireFromString("2400")))
}

func TestClientCreateOrder(t *testing.T) {
	var got payment.CreateOrderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key_id", user)
		assert.Equal(t, "key_secret", pass)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_abc","amount":240000,"currency":"INR","receipt":"r-1","status":"created"}`))
	}))
	defer srv.Close()

	c := &payment.Client{BaseURL: srv.URL, KeyIDVal: "key_id", KeySecret: "key_secret", Timeout: time.Second}
	order, err := c.CreateOrder(context.Background(), payment.CreateOrderRequest{Amount: 240000, Currency: "INR", Receipt: "r-1"})

	require.NoError(t, err)
	assert.Equal(t, "order_abc", order.ID)
	assert.Equal(t, int64(240000), got.Amount)
	assert.Equal(t, "r-1", got.Receipt)
	assert.Equal(t, "key_id", c.KeyID())
}

func TestClientCreateOrderRejectedByGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"description":"amount too small"}}`))
	}))
	defer srv.Close()

	c := &payment.Client{BaseURL: srv.URL, Timeout: time.Second}
	_, err := c.CreateOrder(context.Background(), payment.CreateOrderRequest{Amount: 1, Currency: "INR"})
	assert.True(t, errors.Is(err, payment.ErrGateway))
}

func TestClientVoidOrder(t *testing.T) {
	var path, method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, method = r.URL.Path, r.Method
		_, _ = w.Write([]byte(`{"id":"order_abc"}`))
	}))
	defer srv.Close()

	c := &payment.Client{BaseURL: srv.URL, Timeout: time.Second}
	require.NoError(t, c.VoidOrder(context.Background(), "order_abc", "persistence failed"))
	assert.Equal(t, "/v1/orders/order_abc", path)
	assert.Equal(t, http.MethodPatch, method)
}

func gatewaySamples(t *testing.T, op, outcome string) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, metrics.GatewayDuration.WithLabelValues(op, outcome).(prometheus.Metric).Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func TestClientTimesEachCallOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"id":"order_abc","amount":100,"currency":"INR","status":"created"}`))
	}))
	defer srv.Close()

	created := gatewaySamples(t, "create_order", "ok")
	voidFailed := gatewaySamples(t, "void_order", "error")

	c := &payment.Client{BaseURL: srv.URL, Timeout: time.Second}
	_, err := c.CreateOrder(context.Background(), payment.CreateOrderRequest{Amount: 100, Currency: "INR"})
	require.NoError(t, err)
	require.Error(t, c.VoidOrder(context.Background(), "order_abc", "persistence failed"))

	assert.Equal(t, created+1, gatewaySamples(t, "create_order", "ok"))
	assert.Equal(t, voidFailed+1, gatewaySamples(t, "void_order", "error"))
}

func TestFakeGateway(t *testing.T) {
	f := payment.NewFake()
	o, err := f.CreateOrder(context.Background(), payment.CreateOrderRequest{Amount: 100, Currency: "INR", Receipt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "order_fake_1", o.ID)
	require.NoError(t, f.VoidOrder(context.Background(), o.ID, "test"))
	assert.Equal(t, []string{"order_fake_1"}, f.VoidedIDs())

	f.CreateErr = errors.New("down")
	_, err = f.CreateOrder(context.Background(), payment.CreateOrderRequest{})
	assert.ErrorIs(t, err, payment.ErrGateway)
}
