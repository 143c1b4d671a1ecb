// Package gateway implements payment gateway integration: the per-provider
// strategies for signature and parameter handling, checkout descriptor
// building, and the shared return-callback processor.
package gateway

import (
	"marketpay/internal/common/money"
	"marketpay/internal/wallet/domain"
)

// Params is the flat key/value parameter set of a gateway callback,
// decoded from the query string or form body.
type Params map[string]string

// Get returns the value for key, or "" when absent.
func (p Params) Get(key string) string { return p[key] }

// Has reports whether key is present, even with an empty value.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// CheckoutRequest carries the inputs for building a provider checkout.
type CheckoutRequest struct {
	PaymentID string
	Amount    money.Amount
	BookingID string
	UserID    string
	ClientIP  string
	OrderInfo string
}

// Checkout is the provider-specific signed checkout descriptor returned
// to the client. RedirectURL is always set; QRCode and Deeplink are
// provider-dependent extras.
type Checkout struct {
	Provider    domain.Provider   `json:"provider"`
	RedirectURL string            `json:"redirect_url"`
	QRCode      string            `json:"qr_code,omitempty"`
	Deeplink    string            `json:"deeplink,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Strategy is the per-provider contract the return processor and the
// checkout initiator are parameterized by. Implementations are stateless
// after construction and safe for concurrent use.
type Strategy interface {
	// Name identifies the provider.
	Name() domain.Provider

	// ConfigValid reports whether the provider settings are complete
	// enough to verify callbacks and build checkouts.
	ConfigValid() bool

	// VerifySignature checks the callback's signature over the
	// provider's canonicalized parameter form.
	VerifySignature(p Params) bool

	// UserHint extracts the user id hint from callback parameters, or
	// "" when the provider carries none.
	UserHint(p Params) string

	// PaymentID extracts our payment id from callback parameters using
	// the provider's convention.
	PaymentID(p Params) (string, bool)

	// Amount extracts and normalizes the callback amount to minor
	// currency units.
	Amount(p Params) (money.Amount, bool)

	// Succeeded evaluates the provider's success predicate over the
	// response and status codes.
	Succeeded(p Params) bool

	// GatewayTxnID extracts the provider's own transaction reference.
	GatewayTxnID(p Params) string

	// BuildCheckout builds the signed checkout descriptor for a new
	// payment.
	BuildCheckout(req CheckoutRequest) (*Checkout, error)
}

// Registry holds the configured strategies keyed by provider.
type Registry struct {
	strategies map[domain.Provider]Strategy
}

// NewRegistry creates a registry from the given strategies.
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[domain.Provider]Strategy, len(strategies))}
	for _, s := range strategies {
		r.strategies[s.Name()] = s
	}
	return r
}

// Get returns the strategy for a provider.
func (r *Registry) Get(provider domain.Provider) (Strategy, bool) {
	s, ok := r.strategies[provider]
	return s, ok
}

// Providers lists the registered providers.
func (r *Registry) Providers() []domain.Provider {
	out := make([]domain.Provider, 0, len(r.strategies))
	for p := range r.strategies {
		out = append(out, p)
	}
	return out
}
