// Package zalopay implements the ZaloPay gateway strategy. Orders are
// created through ZaloPay's create API with an app transaction id that
// encodes our payment id; redirect callbacks are verified with a
// pipe-joined HMAC over a fixed field order.
package zalopay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marketpay/internal/common/money"
	"marketpay/internal/gateway"
	"marketpay/internal/wallet/domain"
)

// Config holds ZaloPay gateway settings. Key1 signs outbound create
// requests; Key2 verifies inbound callbacks.
type Config struct {
	AppID       string        `envconfig:"ZALOPAY_APP_ID"`
	Key1        string        `envconfig:"ZALOPAY_KEY1"`
	Key2        string        `envconfig:"ZALOPAY_KEY2"`
	Endpoint    string        `envconfig:"ZALOPAY_ENDPOINT" default:"https://sb-openapi.zalopay.vn"`
	CallbackURL string        `envconfig:"ZALOPAY_CALLBACK_URL"`
	RedirectURL string        `envconfig:"ZALOPAY_REDIRECT_URL"`
	Timeout     time.Duration `envconfig:"ZALOPAY_TIMEOUT" default:"30s"`
}

// Strategy implements the ZaloPay gateway contract.
type Strategy struct {
	cfg    Config
	client *http.Client
}

// New creates a ZaloPay strategy from config.
func New(cfg Config) *Strategy {
	return &Strategy{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name identifies the provider.
func (s *Strategy) Name() domain.Provider { return domain.ProviderZaloPay }

// ConfigValid reports whether the ZaloPay settings are complete.
func (s *Strategy) ConfigValid() bool {
	return s.cfg.AppID != "" && s.cfg.Key1 != "" && s.cfg.Key2 != "" && s.cfg.Endpoint != ""
}

// VerifySignature checks the redirect checksum: HMAC-SHA256 with Key2
// over appid|apptransid|pmcid|bankcode|amount|discountamount|status.
func (s *Strategy) VerifySignature(p gateway.Params) bool {
	got := p.Get("checksum")
	if got == "" {
		return false
	}

	raw := strings.Join([]string{
		p.Get("appid"),
		p.Get("apptransid"),
		p.Get("pmcid"),
		p.Get("bankcode"),
		p.Get("amount"),
		p.Get("discountamount"),
		p.Get("status"),
	}, "|")

	want := sign(s.cfg.Key2, raw)
	return hmac.Equal([]byte(got), []byte(want))
}

// UserHint returns "" because ZaloPay redirects carry no user field; the
// processor falls back to the user recorded at checkout.
func (s *Strategy) UserHint(gateway.Params) string { return "" }

// PaymentID extracts our payment id from apptransid, formatted as
// yymmdd_<payment id> at checkout.
func (s *Strategy) PaymentID(p gateway.Params) (string, bool) {
	ref := p.Get("apptransid")
	i := strings.IndexByte(ref, '_')
	if i < 0 || i+1 == len(ref) {
		return "", false
	}
	return ref[i+1:], true
}

// Amount extracts the callback amount, already in minor units.
func (s *Strategy) Amount(p gateway.Params) (money.Amount, bool) {
	raw, err := strconv.ParseInt(p.Get("amount"), 10, 64)
	if err != nil {
		return 0, false
	}
	return money.Amount(raw), true
}

// Succeeded reports success when status is 1.
func (s *Strategy) Succeeded(p gateway.Params) bool {
	return p.Get("status") == "1"
}

// GatewayTxnID extracts ZaloPay's transaction id, falling back to the
// app transaction id.
func (s *Strategy) GatewayTxnID(p gateway.Params) string {
	if id := p.Get("zptransid"); id != "" {
		return id
	}
	return p.Get("apptransid")
}

type createResponse struct {
	ReturnCode    int    `json:"returncode"`
	ReturnMessage string `json:"returnmessage"`
	OrderURL      string `json:"orderurl"`
	ZPTransToken  string `json:"zptranstoken"`
}

// BuildCheckout creates a ZaloPay order and returns its order URL and
// transaction token.
func (s *Strategy) BuildCheckout(req gateway.CheckoutRequest) (*gateway.Checkout, error) {
	now := time.Now()
	appTransID := now.Format("060102") + "_" + req.PaymentID
	appTime := strconv.FormatInt(now.UnixMilli(), 10)
	amount := strconv.FormatInt(req.Amount.Int64(), 10)

	embedBytes, err := json.Marshal(map[string]string{
		"redirecturl": s.cfg.RedirectURL,
		"payment_id":  req.PaymentID,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding embed data: %w", err)
	}
	embed := string(embedBytes)
	item := "[]"

	appUser := req.UserID
	if appUser == "" {
		appUser = "guest"
	}

	raw := strings.Join([]string{
		s.cfg.AppID, appTransID, appUser, amount, appTime, embed, item,
	}, "|")

	form := url.Values{
		"appid":       {s.cfg.AppID},
		"apptransid":  {appTransID},
		"appuser":     {appUser},
		"apptime":     {appTime},
		"amount":      {amount},
		"embeddata":   {embed},
		"item":        {item},
		"description": {req.OrderInfo},
		"bankcode":    {"zalopayapp"},
		"callbackurl": {s.cfg.CallbackURL},
		"mac":         {sign(s.cfg.Key1, raw)},
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.cfg.Endpoint+"/v2/create", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling zalopay: %w", err)
	}
	defer resp.Body.Close()

	var created createResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("decoding zalopay response: %w", err)
	}
	if created.ReturnCode != 1 {
		return nil, fmt.Errorf("zalopay rejected order: %s (code %d)", created.ReturnMessage, created.ReturnCode)
	}

	return &gateway.Checkout{
		Provider:    domain.ProviderZaloPay,
		RedirectURL: created.OrderURL,
		QRCode:      created.ZPTransToken,
		Extra:       map[string]string{"app_trans_id": appTransID},
	}, nil
}

func sign(key, raw string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}
