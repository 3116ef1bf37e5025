package gateway

import (
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/config"
)

func testConfig() config.GatewayConfig {
	return config.GatewayConfig{
		TmnCode:    "DEMO0001",
		HashSecret: "gateway-secret",
		PayURL:     "https://sandbox.example/pay",
		ReturnURL:  "http://localhost:8084/api/payments/vnpay/callback",
		Version:    "2.1.0",
		Locale:     "vn",
		CurrCode:   "VND",
		OrderType:  "other",
		ExpireIn:   15 * time.Minute,
	}
}

// signedCallback builds callback parameters the way the gateway would.
func signedCallback(secret string, params url.Values) url.Values {
	params.Set(paramSecureHash, Sign(secret, Canonicalize(params)))
	params.Set(paramSecureHashType, "HmacSHA512")
	return params
}

func TestCanonicalize_SortsEscapesAndDropsEmpty(t *testing.T) {
	params := url.Values{}
	params.Set("vnp_TxnRef", "u1_5_1")
	params.Set("vnp_Amount", "30000")
	params.Set("vnp_BankCode", "")
	params.Set("vnp_OrderInfo", "pay order a/b")

	assert.Equal(t, "vnp_Amount=30000&vnp_OrderInfo=pay+order+a%2Fb&vnp_TxnRef=u1_5_1", Canonicalize(params))
}

func TestBuildPaymentURL_IsVerifiable(t *testing.T) {
	g, err := NewVNPay(testConfig())
	require.NoError(t, err)

	raw, err := g.BuildPaymentURL(PaymentRequest{
		AmountMinor: 30000,
		OrderInfo:   "descriptor.token.sig",
		TxnRef:      "u1_5_1700000000_000001",
		ClientIP:    "10.0.0.1",
		CreatedAt:   time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(raw, "https://sandbox.example/pay?"))

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "30000", q.Get("vnp_Amount"))
	assert.Equal(t, "20260301100000", q.Get("vnp_CreateDate"))
	assert.Equal(t, "20260301101500", q.Get("vnp_ExpireDate"))

	hash := q.Get(paramSecureHash)
	q.Del(paramSecureHash)
	assert.Equal(t, Sign("gateway-secret", Canonicalize(q)), hash)
}

func TestBuildPaymentURL_RejectsNonPositiveAmount(t *testing.T) {
	g, _ := NewVNPay(testConfig())
	_, err := g.BuildPaymentURL(PaymentRequest{AmountMinor: 0, OrderInfo: "x", TxnRef: "y"})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func callbackParams() url.Values {
	params := url.Values{}
	params.Set("vnp_Amount", "30000")
	params.Set("vnp_TxnRef", "u1_5_1700000000_000001")
	params.Set("vnp_OrderInfo", "descriptor.token.sig")
	params.Set("vnp_ResponseCode", "00")
	params.Set("vnp_TransactionNo", "14000001")
	params.Set("vnp_BankCode", "NCB")
	params.Set("vnp_TmnCode", "DEMO0001")
	return params
}

func TestVerifyCallback_Valid(t *testing.T) {
	g, _ := NewVNPay(testConfig())

	cb, err := g.VerifyCallback(signedCallback("gateway-secret", callbackParams()))
	require.NoError(t, err)
	assert.True(t, cb.Succeeded())
	assert.Equal(t, int64(30000), cb.AmountMinor)
	assert.Equal(t, "14000001", cb.TransactionNo)
	assert.Equal(t, "descriptor.token.sig", cb.OrderInfo)
}

func TestVerifyCallback_TamperedAmount(t *testing.T) {
	g, _ := NewVNPay(testConfig())
	params := signedCallback("gateway-secret", callbackParams())
	params.Set("vnp_Amount", "30001")

	_, err := g.VerifyCallback(params)
	var authErr *apperrors.AuthenticityError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "gateway", authErr.Source)
}

func TestVerifyCallback_WrongSecretAndMissingHash(t *testing.T) {
	g, _ := NewVNPay(testConfig())

	_, err := g.VerifyCallback(signedCallback("other-secret", callbackParams()))
	assert.True(t, errors.Is(err, apperrors.ErrAuthenticity))

	_, err = g.VerifyCallback(callbackParams())
	assert.True(t, errors.Is(err, apperrors.ErrAuthenticity))
}

func TestVerifyCallback_UppercaseHashAccepted(t *testing.T) {
	g, _ := NewVNPay(testConfig())
	params := signedCallback("gateway-secret", callbackParams())
	params.Set(paramSecureHash, strings.ToUpper(params.Get(paramSecureHash)))

	_, err := g.VerifyCallback(params)
	assert.NoError(t, err)
}

func TestVerifyCallback_FailureCode(t *testing.T) {
	g, _ := NewVNPay(testConfig())
	params := callbackParams()
	params.Set("vnp_ResponseCode", "24")

	cb, err := g.VerifyCallback(signedCallback("gateway-secret", params))
	require.NoError(t, err)
	assert.False(t, cb.Succeeded())
}

func TestNewVNPay_RequiresCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.HashSecret = ""
	_, err := NewVNPay(cfg)
	assert.Error(t, err)
}
