package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"testing"

	"marketpay/internal/gateway"
)

func testConfig() Config {
	return Config{
		TmnCode:    "DEMO01",
		HashSecret: "test-secret",
		PayURL:     "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		ReturnURL:  "https://example.com/api/v1/gateway/vnpay/return",
		Version:    "2.1.0",
		Locale:     "vn",
	}
}

// signParams reproduces the documented signature: HMAC-SHA512 over the
// sorted, URL-encoded vnp_ pairs.
func signParams(secret string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, url.QueryEscape(k)+"="+url.QueryEscape(params[k]))
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}

func signedCallback(secret string) gateway.Params {
	base := map[string]string{
		"vnp_TxnRef":            "pay-1",
		"vnp_Amount":            "5000000",
		"vnp_ResponseCode":      "00",
		"vnp_TransactionStatus": "00",
		"vnp_TransactionNo":     "14422574",
		"vnp_OrderInfo":         "uid:u1;wallet deposit",
		"vnp_BankCode":          "NCB",
	}
	p := gateway.Params{}
	for k, v := range base {
		p[k] = v
	}
	p["vnp_SecureHash"] = signParams(secret, base)
	return p
}

func TestVerifySignature(t *testing.T) {
	s := New(testConfig())
	params := signedCallback("test-secret")
	if !s.VerifySignature(params) {
		t.Fatal("valid signature rejected")
	}

	// non-vnp_ parameters must not affect the signature
	params["extra"] = "ignored"
	if !s.VerifySignature(params) {
		t.Error("unrelated parameter broke verification")
	}

	// uppercase hashes are accepted
	params["vnp_SecureHash"] = strings.ToUpper(params["vnp_SecureHash"])
	if !s.VerifySignature(params) {
		t.Error("uppercase signature rejected")
	}

	params["vnp_Amount"] = "9900000"
	if s.VerifySignature(params) {
		t.Error("tampered amount passed verification")
	}

	if s.VerifySignature(gateway.Params{"vnp_TxnRef": "pay-1"}) {
		t.Error("missing signature passed verification")
	}
}

func TestUserHint(t *testing.T) {
	s := New(testConfig())
	tests := []struct {
		info string
		want string
	}{
		{"uid:u1;wallet deposit", "u1"},
		{"uid:u1", "u1"},
		{"wallet deposit", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := s.UserHint(gateway.Params{"vnp_OrderInfo": tt.info}); got != tt.want {
			t.Errorf("UserHint(%q) = %q, want %q", tt.info, got, tt.want)
		}
	}
}

func TestAmount(t *testing.T) {
	s := New(testConfig())
	tests := []struct {
		raw  string
		want int64
		ok   bool
	}{
		{"5000000", 50000, true}, // VNPay multiplies by 100
		{"100", 1, true},
		{"5000050", 0, false}, // not a whole amount in minor units
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := s.Amount(gateway.Params{"vnp_Amount": tt.raw})
		if ok != tt.ok || got.Int64() != tt.want {
			t.Errorf("Amount(%q) = (%d, %v), want (%d, %v)", tt.raw, got.Int64(), ok, tt.want, tt.ok)
		}
	}
}

func TestSucceeded(t *testing.T) {
	s := New(testConfig())
	if !s.Succeeded(gateway.Params{"vnp_ResponseCode": "00", "vnp_TransactionStatus": "00"}) {
		t.Error("00/00 not reported as success")
	}
	if s.Succeeded(gateway.Params{"vnp_ResponseCode": "24", "vnp_TransactionStatus": "00"}) {
		t.Error("cancelled response reported as success")
	}
	if s.Succeeded(gateway.Params{"vnp_ResponseCode": "00", "vnp_TransactionStatus": "02"}) {
		t.Error("failed transaction status reported as success")
	}
}

func TestBuildCheckout(t *testing.T) {
	s := New(testConfig())
	checkout, err := s.BuildCheckout(gateway.CheckoutRequest{
		PaymentID: "pay-1",
		Amount:    50000,
		UserID:    "u1",
		ClientIP:  "203.0.113.7",
		OrderInfo: "wallet deposit",
	})
	if err != nil {
		t.Fatalf("BuildCheckout: %v", err)
	}

	u, err := url.Parse(checkout.RedirectURL)
	if err != nil {
		t.Fatalf("redirect URL unparsable: %v", err)
	}
	q := u.Query()
	if got := q.Get("vnp_Amount"); got != "5000000" {
		t.Errorf("vnp_Amount = %q, want 5000000", got)
	}
	if got := q.Get("vnp_TxnRef"); got != "pay-1" {
		t.Errorf("vnp_TxnRef = %q, want pay-1", got)
	}
	if got := q.Get("vnp_OrderInfo"); got != "uid:u1;wallet deposit" {
		t.Errorf("vnp_OrderInfo = %q", got)
	}
	if got := q.Get("vnp_TmnCode"); got != "DEMO01" {
		t.Errorf("vnp_TmnCode = %q, want DEMO01", got)
	}

	// the URL must verify with its own embedded signature
	params := gateway.Params{}
	for k := range q {
		params[k] = q.Get(k)
	}
	if !s.VerifySignature(params) {
		t.Error("checkout URL does not verify against its own signature")
	}
}

func TestConfigValid(t *testing.T) {
	if !New(testConfig()).ConfigValid() {
		t.Error("complete config reported invalid")
	}
	incomplete := testConfig()
	incomplete.HashSecret = ""
	if New(incomplete).ConfigValid() {
		t.Error("config without hash secret reported valid")
	}
}
