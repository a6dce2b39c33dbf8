// Package gateway is the outbound client for the payment gateway's order API.
package gateway

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"examprep-marketplace/pkg/config"
	"examprep-marketplace/pkg/errutil"

	"github.com/go-resty/resty/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("gateway",
	fx.Provide(
		NewRazorpay,
		func(c *Razorpay) OrderCreator { return c },
		func(c *Razorpay) SignatureVerifier { return c },
	),
)

// OrderRequest is the body of POST /v1/orders. Amount is in minor units.
type OrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type Order struct {
	ID        string            `json:"id"`
	Entity    string            `json:"entity"`
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency"`
	Receipt   string            `json:"receipt"`
	Status    string            `json:"status"`
	Notes     map[string]string `json:"notes,omitempty"`
	CreatedAt int64             `json:"created_at"`
}

type OrderCreator interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
}

type apiError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

type Razorpay struct {
	client   *resty.Client
	verifier *HMACVerifier
	keyID    string
	timeout  time.Duration
}

func NewRazorpay(cfg *config.Config) *Razorpay {
	timeout := cfg.Gateway.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Gateway.BaseURL, "/")).
		SetBasicAuth(cfg.Gateway.KeyID, cfg.Gateway.KeySecret).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Razorpay{
		client:   client,
		verifier: NewHMACVerifier(cfg.Gateway.KeySecret),
		keyID:    cfg.Gateway.KeyID,
		timeout:  timeout,
	}
}

// KeyID is the public key the checkout widget needs.
func (r *Razorpay) KeyID() string {
	return r.keyID
}

// CreateOrder is not retried here; failures are reported as retryable so the
// client can start a fresh checkout.
func (r *Razorpay) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		out    Order
		apiErr apiError
	)
	resp, err := r.client.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/orders")
	if err != nil {
		if isTimeout(err) {
			zap.L().Warn("gateway order request timed out", zap.String("receipt", req.Receipt))
			return nil, errutil.New(errutil.StatusGatewayTimeout, "payment gateway timed out",
				errutil.WithReason("GATEWAY_TIMEOUT"), errutil.WithErr(err))
		}
		zap.L().Error("gateway order request failed", zap.String("receipt", req.Receipt), zap.Error(err))
		return nil, errutil.BadGateway("payment gateway unavailable", err, errutil.WithReason("GATEWAY_UNAVAILABLE"))
	}

	if resp.IsError() {
		zap.L().Error("gateway rejected order",
			zap.Int("status", resp.StatusCode()),
			zap.String("gateway_code", apiErr.Error.Code),
			zap.String("gateway_description", apiErr.Error.Description),
			zap.String("receipt", req.Receipt),
		)
		return nil, errutil.BadGateway("payment gateway rejected the order", nil, errutil.WithReason("GATEWAY_REJECTED"))
	}

	if out.ID == "" {
		return nil, errutil.BadGateway("payment gateway returned no order id", nil, errutil.WithReason("GATEWAY_INVALID_RESPONSE"))
	}

	return &out, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
