// Package momo implements the MoMo e-wallet gateway strategy. Checkouts
// are created through MoMo's create-order API; MoMo calls back with a
// flat parameter set signed over a fixed-order canonical string.
package momo

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"marketpay/internal/common/money"
	"marketpay/internal/gateway"
	"marketpay/internal/wallet/domain"
)

// Config holds MoMo gateway settings.
type Config struct {
	PartnerCode string        `envconfig:"MOMO_PARTNER_CODE"`
	AccessKey   string        `envconfig:"MOMO_ACCESS_KEY"`
	SecretKey   string        `envconfig:"MOMO_SECRET_KEY"`
	Endpoint    string        `envconfig:"MOMO_ENDPOINT" default:"https://test-payment.momo.vn"`
	RedirectURL string        `envconfig:"MOMO_REDIRECT_URL"`
	IPNURL      string        `envconfig:"MOMO_IPN_URL"`
	RequestType string        `envconfig:"MOMO_REQUEST_TYPE" default:"captureWallet"`
	Timeout     time.Duration `envconfig:"MOMO_TIMEOUT" default:"30s"`
}

// extraData is the base64 JSON side channel MoMo echoes back untouched.
type extraData struct {
	PaymentID string `json:"payment_id"`
	UserID    string `json:"user_id,omitempty"`
}

// Strategy implements the MoMo gateway contract.
type Strategy struct {
	cfg    Config
	client *http.Client
}

// New creates a MoMo strategy from config.
func New(cfg Config) *Strategy {
	return &Strategy{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name identifies the provider.
func (s *Strategy) Name() domain.Provider { return domain.ProviderMoMo }

// ConfigValid reports whether the MoMo settings are complete.
func (s *Strategy) ConfigValid() bool {
	return s.cfg.PartnerCode != "" && s.cfg.AccessKey != "" &&
		s.cfg.SecretKey != "" && s.cfg.Endpoint != "" && s.cfg.RedirectURL != ""
}

// callbackSignatureFields is the fixed canonical order MoMo signs
// callback parameters in.
var callbackSignatureFields = []string{
	"accessKey", "amount", "extraData", "message", "orderId", "orderInfo",
	"orderType", "partnerCode", "payType", "requestId", "responseTime",
	"resultCode", "transId",
}

// VerifySignature checks the callback signature against HMAC-SHA256 over
// the fixed-order key=value canonical string.
func (s *Strategy) VerifySignature(p gateway.Params) bool {
	got := p.Get("signature")
	if got == "" {
		return false
	}

	var b strings.Builder
	for i, field := range callbackSignatureFields {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(field)
		b.WriteByte('=')
		if field == "accessKey" {
			b.WriteString(s.cfg.AccessKey)
		} else {
			b.WriteString(p.Get(field))
		}
	}

	want := s.sign(b.String())
	return hmac.Equal([]byte(got), []byte(want))
}

// UserHint extracts the user id from the extraData side channel.
func (s *Strategy) UserHint(p gateway.Params) string {
	extra, ok := decodeExtra(p.Get("extraData"))
	if !ok {
		return ""
	}
	return extra.UserID
}

// PaymentID extracts our payment id from orderId, falling back to the
// extraData side channel.
func (s *Strategy) PaymentID(p gateway.Params) (string, bool) {
	if id := p.Get("orderId"); id != "" {
		return id, true
	}
	extra, ok := decodeExtra(p.Get("extraData"))
	if !ok || extra.PaymentID == "" {
		return "", false
	}
	return extra.PaymentID, true
}

// Amount extracts the callback amount, already in minor units.
func (s *Strategy) Amount(p gateway.Params) (money.Amount, bool) {
	raw, err := strconv.ParseInt(p.Get("amount"), 10, 64)
	if err != nil {
		return 0, false
	}
	return money.Amount(raw), true
}

// Succeeded reports success when resultCode is zero.
func (s *Strategy) Succeeded(p gateway.Params) bool {
	return p.Get("resultCode") == "0"
}

// GatewayTxnID extracts MoMo's transaction id.
func (s *Strategy) GatewayTxnID(p gateway.Params) string {
	return p.Get("transId")
}

type createRequest struct {
	PartnerCode string `json:"partnerCode"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IPNURL      string `json:"ipnUrl"`
	RequestType string `json:"requestType"`
	ExtraData   string `json:"extraData"`
	Lang        string `json:"lang"`
	Signature   string `json:"signature"`
}

type createResponse struct {
	ResultCode int    `json:"resultCode"`
	Message    string `json:"message"`
	PayURL     string `json:"payUrl"`
	QRCodeURL  string `json:"qrCodeUrl"`
	Deeplink   string `json:"deeplink"`
}

// BuildCheckout creates a MoMo order and returns its pay URL, QR code
// and deeplink.
func (s *Strategy) BuildCheckout(req gateway.CheckoutRequest) (*gateway.Checkout, error) {
	extraBytes, err := json.Marshal(extraData{PaymentID: req.PaymentID, UserID: req.UserID})
	if err != nil {
		return nil, fmt.Errorf("encoding extra data: %w", err)
	}
	extra := base64.StdEncoding.EncodeToString(extraBytes)

	requestID := uuid.NewString()
	orderInfo := req.OrderInfo
	if orderInfo == "" {
		orderInfo = "wallet payment " + req.PaymentID
	}

	raw := fmt.Sprintf(
		"accessKey=%s&amount=%d&extraData=%s&ipnUrl=%s&orderId=%s&orderInfo=%s&partnerCode=%s&redirectUrl=%s&requestId=%s&requestType=%s",
		s.cfg.AccessKey, req.Amount.Int64(), extra, s.cfg.IPNURL, req.PaymentID,
		orderInfo, s.cfg.PartnerCode, s.cfg.RedirectURL, requestID, s.cfg.RequestType,
	)

	body, err := json.Marshal(createRequest{
		PartnerCode: s.cfg.PartnerCode,
		RequestID:   requestID,
		Amount:      req.Amount.Int64(),
		OrderID:     req.PaymentID,
		OrderInfo:   orderInfo,
		RedirectURL: s.cfg.RedirectURL,
		IPNURL:      s.cfg.IPNURL,
		RequestType: s.cfg.RequestType,
		ExtraData:   extra,
		Lang:        "vi",
		Signature:   s.sign(raw),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding create request: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.cfg.Endpoint+"/v2/gateway/api/create", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling momo: %w", err)
	}
	defer resp.Body.Close()

	var created createResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("decoding momo response: %w", err)
	}
	if created.ResultCode != 0 {
		return nil, fmt.Errorf("momo rejected order: %s (code %d)", created.Message, created.ResultCode)
	}

	return &gateway.Checkout{
		Provider:    domain.ProviderMoMo,
		RedirectURL: created.PayURL,
		QRCode:      created.QRCodeURL,
		Deeplink:    created.Deeplink,
	}, nil
}

func (s *Strategy) sign(raw string) string {
	mac := hmac.New(sha256.New, []byte(s.cfg.SecretKey))
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

func decodeExtra(encoded string) (extraData, bool) {
	if encoded == "" {
		return extraData{}, false
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return extraData{}, false
	}
	var extra extraData
	if err := json.Unmarshal(decoded, &extra); err != nil {
		return extraData{}, false
	}
	return extra, true
}
