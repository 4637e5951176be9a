package library

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/openshelf/openshelf-go/internal/rest"
)

// Payment statuses reported by the gateway via the backend.
const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentFailed   = "failed"
	PaymentCanceled = "canceled"
)

// Checkout is the backend's answer to a started payment: an opaque reference
// plus the path the user must be redirected to on the gateway.
type Checkout struct {
	Reference   string `json:"reference"`
	RedirectURL string `json:"redirectUrl"`
}

// PaymentStatus is one poll result for a pending payment.
type PaymentStatus struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Detail    string `json:"detail"`
}

// Payments starts checkouts and polls their outcome. The gateway itself is
// opaque; the backend brokers every call, the client only resolves the
// redirect target against the configured gateway base URL.
type Payments struct {
	client     *rest.Client
	gatewayURL string
}

// NewPayments builds the payment service. gatewayURL is the external gateway
// base the redirect path resolves against; empty means the backend returns
// absolute URLs.
func NewPayments(client *rest.Client, gatewayURL string) *Payments {
	return &Payments{client: client, gatewayURL: gatewayURL}
}

// StartCheckout opens a payment for the given product and returns where to
// send the user. Checkout requests are never cached or retried; a replay could
// double-charge.
func (p *Payments) StartCheckout(ctx context.Context, userID, productID int64) (Checkout, error) {
	raw, err := p.client.Resource("payments").
		WithBody(map[string]any{
			"userId":    userID,
			"productId": productID,
		}).
		Retries(0).
		Create(ctx)
	if err != nil {
		return Checkout{}, err
	}
	var checkout Checkout
	if err := json.Unmarshal(raw, &checkout); err != nil {
		return Checkout{}, fmt.Errorf("library: decode checkout: %w", err)
	}
	checkout.RedirectURL, err = p.resolveRedirect(checkout.RedirectURL)
	if err != nil {
		return Checkout{}, err
	}
	return checkout, nil
}

// CheckStatus polls the payment outcome for a checkout reference.
func (p *Payments) CheckStatus(ctx context.Context, reference string) (PaymentStatus, error) {
	raw, err := p.client.Resource("payments").
		WithID(url.PathEscape(reference)).
		Cache(false).
		Get(ctx)
	if err != nil {
		return PaymentStatus{}, err
	}
	var status PaymentStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return PaymentStatus{}, fmt.Errorf("library: decode payment status: %w", err)
	}
	return status, nil
}

func (p *Payments) resolveRedirect(raw string) (string, error) {
	if raw == "" {
		return "", &rest.APIError{Message: "checkout returned no redirect", Code: rest.CodeAPI}
	}
	if strings.Contains(raw, "://") || p.gatewayURL == "" {
		return raw, nil
	}
	base, err := url.Parse(p.gatewayURL)
	if err != nil {
		return "", fmt.Errorf("library: gateway url: %w", err)
	}
	rel, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("library: redirect url: %w", err)
	}
	return base.ResolveReference(rel).String(), nil
}
