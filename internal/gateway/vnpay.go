// Package gateway speaks the VNPay signed-redirect protocol: it builds the
// signed payment URL the buyer is redirected to and verifies the signed
// callback the gateway sends back.
package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/config"
)

const (
	paramSecureHash     = "vnp_SecureHash"
	paramSecureHashType = "vnp_SecureHashType"

	// ResponseSuccess is the only result code that means the buyer paid.
	ResponseSuccess = "00"

	timeLayout = "20060102150405"
)

var vietnam = time.FixedZone("ICT", 7*60*60)

type PaymentRequest struct {
	AmountMinor int64
	OrderInfo   string
	TxnRef      string
	ClientIP    string
	CreatedAt   time.Time
}

// Callback is the verified subset of the gateway's return parameters.
type Callback struct {
	TxnRef        string
	AmountMinor   int64
	OrderInfo     string
	ResponseCode  string
	TransactionNo string
	BankCode      string
	PayDate       string
}

func (c Callback) Succeeded() bool {
	return c.ResponseCode == ResponseSuccess
}

type VNPay struct {
	cfg config.GatewayConfig
}

func NewVNPay(cfg config.GatewayConfig) (*VNPay, error) {
	if cfg.TmnCode == "" || cfg.HashSecret == "" {
		return nil, errors.New("gateway merchant code and hash secret are required")
	}
	if cfg.PayURL == "" || cfg.ReturnURL == "" {
		return nil, errors.New("gateway pay url and return url are required")
	}
	return &VNPay{cfg: cfg}, nil
}

// BuildPaymentURL returns the redirect URL for req with vnp_SecureHash appended.
func (g *VNPay) BuildPaymentURL(req PaymentRequest) (string, error) {
	if req.AmountMinor <= 0 {
		return "", apperrors.Validation("amount", "payment amount must be positive")
	}
	if req.TxnRef == "" || req.OrderInfo == "" {
		return "", apperrors.Validation("txn_ref", "txn ref and order info are required")
	}
	created := req.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	clientIP := req.ClientIP
	if clientIP == "" {
		clientIP = "127.0.0.1"
	}

	params := url.Values{}
	params.Set("vnp_Version", g.cfg.Version)
	params.Set("vnp_Command", "pay")
	params.Set("vnp_TmnCode", g.cfg.TmnCode)
	params.Set("vnp_Amount", strconv.FormatInt(req.AmountMinor, 10))
	params.Set("vnp_CurrCode", g.cfg.CurrCode)
	params.Set("vnp_TxnRef", req.TxnRef)
	params.Set("vnp_OrderInfo", req.OrderInfo)
	params.Set("vnp_OrderType", g.cfg.OrderType)
	params.Set("vnp_Locale", g.cfg.Locale)
	params.Set("vnp_ReturnUrl", g.cfg.ReturnURL)
	params.Set("vnp_IpAddr", clientIP)
	params.Set("vnp_CreateDate", created.In(vietnam).Format(timeLayout))
	if g.cfg.ExpireIn > 0 {
		params.Set("vnp_ExpireDate", created.Add(g.cfg.ExpireIn).In(vietnam).Format(timeLayout))
	}

	query := Canonicalize(params)
	return g.cfg.PayURL + "?" + query + "&" + paramSecureHash + "=" + Sign(g.cfg.HashSecret, query), nil
}

// VerifyCallback checks vnp_SecureHash over every other vnp_ parameter and
// decodes the result. A bad signature yields an AuthenticityError.
func (g *VNPay) VerifyCallback(params url.Values) (Callback, error) {
	received := params.Get(paramSecureHash)
	if received == "" {
		return Callback{}, &apperrors.AuthenticityError{Source: "gateway", Reason: "missing secure hash"}
	}

	signed := url.Values{}
	for k, v := range params {
		if k == paramSecureHash || k == paramSecureHashType || !strings.HasPrefix(k, "vnp_") {
			continue
		}
		signed[k] = v
	}
	expected := Sign(g.cfg.HashSecret, Canonicalize(signed))
	if !hmac.Equal([]byte(strings.ToLower(received)), []byte(expected)) {
		return Callback{}, &apperrors.AuthenticityError{Source: "gateway", Reason: "secure hash mismatch"}
	}

	amount, err := strconv.ParseInt(signed.Get("vnp_Amount"), 10, 64)
	if err != nil {
		return Callback{}, apperrors.Validation("vnp_Amount", fmt.Sprintf("invalid amount %q", signed.Get("vnp_Amount")))
	}
	cb := Callback{
		TxnRef:        signed.Get("vnp_TxnRef"),
		AmountMinor:   amount,
		OrderInfo:     signed.Get("vnp_OrderInfo"),
		ResponseCode:  signed.Get("vnp_ResponseCode"),
		TransactionNo: signed.Get("vnp_TransactionNo"),
		BankCode:      signed.Get("vnp_BankCode"),
		PayDate:       signed.Get("vnp_PayDate"),
	}
	if cb.TxnRef == "" || cb.ResponseCode == "" {
		return Callback{}, apperrors.Validation("vnp_TxnRef", "callback is missing txn ref or response code")
	}
	return cb, nil
}

// Canonicalize joins the non-empty parameters as key=value pairs in key order,
// with values query-escaped.
func Canonicalize(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if params.Get(k) != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params.Get(k)))
	}
	return b.String()
}

// Sign is the lowercase hex HMAC-SHA512 of data.
func Sign(secret, data string) string {
	h := hmac.New(sha512.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}
