package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"examprep-marketplace/pkg/config"
	"examprep-marketplace/pkg/errutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestClient(url string, timeout time.Duration) *Razorpay {
	cfg := &config.Config{}
	cfg.Gateway.BaseURL = url
	cfg.Gateway.KeyID = "rzp_test_key"
	cfg.Gateway.KeySecret = "secret"
	cfg.Gateway.Timeout = timeout
	return NewRazorpay(cfg)
}

func TestCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "rzp_test_key", user)
		require.Equal(t, "secret", pass)

		var req OrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, int64(50000), req.Amount)
		require.Equal(t, "c1", req.Notes["courseId"])
		require.Equal(t, "application/json", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Order{ID: "order_1", Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Status: "created"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, time.Second)
	order, err := c.CreateOrder(context.Background(), OrderRequest{
		Amount: 50000, Currency: "INR", Receipt: "rcpt_1", Notes: map[string]string{"courseId": "c1"},
	})
	require.NoError(t, err)
	require.Equal(t, "order_1", order.ID)
	require.Equal(t, "rzp_test_key", c.KeyID())
}

func TestCreateOrder_UnlabelledResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// no Content-Type on the response
		_, _ = w.Write([]byte(`{"id":"order_2","amount":19999,"currency":"INR","receipt":"rcpt_2","status":"created"}`))
	}))
	defer srv.Close()

	order, err := newTestClient(srv.URL, time.Second).CreateOrder(context.Background(), OrderRequest{
		Amount: 19999, Currency: "INR", Receipt: "rcpt_2",
	})
	require.NoError(t, err)
	require.Equal(t, "order_2", order.ID)
	require.Equal(t, int64(19999), order.Amount)
}

func TestCreateOrder_RejectedUnlabelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"Authentication failed"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, time.Second).CreateOrder(context.Background(), OrderRequest{Amount: 1})
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, "GATEWAY_REJECTED", be.Reason)
}

func TestCreateOrder_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount too small"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, time.Second).CreateOrder(context.Background(), OrderRequest{Amount: 1})
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusBadGateway, be.Status())
	require.True(t, be.Code.Retryable())
}

func TestCreateOrder_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 20*time.Millisecond).CreateOrder(context.Background(), OrderRequest{Amount: 1})
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusGatewayTimeout, be.Status())
}

func TestVerifyPayment(t *testing.T) {
	c := newTestClient("http://localhost", time.Second)
	sig := PaymentSignature("secret", "order_1", "pay_1")

	require.Len(t, sig, 64)
	require.True(t, c.VerifyPayment("order_1", "pay_1", sig))
	require.False(t, c.VerifyPayment("order_1", "pay_2", sig))
	require.False(t, c.VerifyPayment("order_2", "pay_1", sig))
	tampered := []byte(sig)
	if tampered[0] == 'a' {
		tampered[0] = 'b'
	} else {
		tampered[0] = 'a'
	}
	require.False(t, c.VerifyPayment("order_1", "pay_1", string(tampered)))
	require.False(t, c.VerifyPayment("order_1", "pay_1", ""))

	require.False(t, NewHMACVerifier("").VerifyPayment("order_1", "pay_1", PaymentSignature("", "order_1", "pay_1")))
}
