// Package vnpay implements the VNPay payment gateway strategy. VNPay is
// a redirect-based gateway: the checkout is a signed URL, and results
// come back as signed query parameters on the return URL.
package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"marketpay/internal/common/money"
	"marketpay/internal/gateway"
	"marketpay/internal/wallet/domain"
)

// Config holds VNPay gateway settings.
type Config struct {
	TmnCode    string `envconfig:"VNPAY_TMN_CODE"`
	HashSecret string `envconfig:"VNPAY_HASH_SECRET"`
	PayURL     string `envconfig:"VNPAY_PAY_URL" default:"https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"`
	ReturnURL  string `envconfig:"VNPAY_RETURN_URL"`
	Version    string `envconfig:"VNPAY_VERSION" default:"2.1.0"`
	Locale     string `envconfig:"VNPAY_LOCALE" default:"vn"`
}

// Strategy implements the VNPay gateway contract.
type Strategy struct {
	cfg Config
}

// New creates a VNPay strategy from config.
func New(cfg Config) *Strategy {
	return &Strategy{cfg: cfg}
}

// Name identifies the provider.
func (s *Strategy) Name() domain.Provider { return domain.ProviderVNPay }

// ConfigValid reports whether the VNPay settings are complete.
func (s *Strategy) ConfigValid() bool {
	return s.cfg.TmnCode != "" && s.cfg.HashSecret != "" &&
		s.cfg.PayURL != "" && s.cfg.ReturnURL != ""
}

// VerifySignature checks vnp_SecureHash against the HMAC-SHA512 of the
// sorted, URL-encoded vnp_ parameters.
func (s *Strategy) VerifySignature(p gateway.Params) bool {
	got := p.Get("vnp_SecureHash")
	if got == "" {
		return false
	}

	signed := make(map[string]string, len(p))
	for k, v := range p {
		if k == "vnp_SecureHash" || k == "vnp_SecureHashType" {
			continue
		}
		if strings.HasPrefix(k, "vnp_") {
			signed[k] = v
		}
	}

	want := s.sign(signed)
	return hmac.Equal([]byte(strings.ToLower(got)), []byte(want))
}

// UserHint extracts the user id embedded in vnp_OrderInfo at checkout.
func (s *Strategy) UserHint(p gateway.Params) string {
	info := p.Get("vnp_OrderInfo")
	if !strings.HasPrefix(info, "uid:") {
		return ""
	}
	hint := strings.TrimPrefix(info, "uid:")
	if i := strings.IndexByte(hint, ';'); i >= 0 {
		hint = hint[:i]
	}
	return hint
}

// PaymentID extracts our payment id from vnp_TxnRef.
func (s *Strategy) PaymentID(p gateway.Params) (string, bool) {
	id := p.Get("vnp_TxnRef")
	return id, id != ""
}

// Amount extracts vnp_Amount, which VNPay reports multiplied by 100.
func (s *Strategy) Amount(p gateway.Params) (money.Amount, bool) {
	raw, err := strconv.ParseInt(p.Get("vnp_Amount"), 10, 64)
	if err != nil || raw%100 != 0 {
		return 0, false
	}
	return money.Amount(raw / 100), true
}

// Succeeded reports success when both the response code and the
// transaction status are "00".
func (s *Strategy) Succeeded(p gateway.Params) bool {
	return p.Get("vnp_ResponseCode") == "00" && p.Get("vnp_TransactionStatus") == "00"
}

// GatewayTxnID extracts VNPay's transaction number.
func (s *Strategy) GatewayTxnID(p gateway.Params) string {
	return p.Get("vnp_TransactionNo")
}

// BuildCheckout builds the signed redirect URL for a new payment.
func (s *Strategy) BuildCheckout(req gateway.CheckoutRequest) (*gateway.Checkout, error) {
	orderInfo := "uid:" + req.UserID
	if req.OrderInfo != "" {
		orderInfo += ";" + req.OrderInfo
	}

	params := map[string]string{
		"vnp_Version":    s.cfg.Version,
		"vnp_Command":    "pay",
		"vnp_TmnCode":    s.cfg.TmnCode,
		"vnp_Amount":     strconv.FormatInt(req.Amount.Int64()*100, 10),
		"vnp_CurrCode":   money.DefaultCurrency,
		"vnp_TxnRef":     req.PaymentID,
		"vnp_OrderInfo":  orderInfo,
		"vnp_OrderType":  "other",
		"vnp_Locale":     s.cfg.Locale,
		"vnp_ReturnUrl":  s.cfg.ReturnURL,
		"vnp_IpAddr":     req.ClientIP,
		"vnp_CreateDate": time.Now().Format("20060102150405"),
	}

	query := canonical(params)
	redirect := s.cfg.PayURL + "?" + query + "&vnp_SecureHash=" + s.sign(params)

	return &gateway.Checkout{
		Provider:    domain.ProviderVNPay,
		RedirectURL: redirect,
	}, nil
}

// sign computes the lowercase hex HMAC-SHA512 over the canonical form.
func (s *Strategy) sign(params map[string]string) string {
	mac := hmac.New(sha512.New, []byte(s.cfg.HashSecret))
	mac.Write([]byte(canonical(params)))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonical renders params as sorted, URL-encoded key=value pairs joined
// by "&", the form VNPay signs.
func canonical(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}
