package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/wallbox-server/internal/apperr"
	cfgpkg "github.com/taoyao-code/wallbox-server/internal/config"
	"github.com/taoyao-code/wallbox-server/internal/storage/models"
)

const testSecret = "s3cret"

func newGateway(t *testing.T, h http.HandlerFunc) *HTTPGateway {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	g := NewHTTPGateway(cfgpkg.PaymentConfig{BaseURL: srv.URL, APIKey: "key", Secret: testSecret, Retries: 2, ReturnURL: "app://paid"}, nil)
	g.backoff = []time.Duration{time.Millisecond}
	return g
}

func TestCreatePaymentLinkSignsRequest(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ok := Verify(testSecret, r.Method, r.URL.Path, r.Header.Get("X-Timestamp"), r.Header.Get("X-Nonce"), r.Header.Get("X-Signature"), body, time.Now(), time.Minute)
		if !ok || r.Header.Get("X-Api-Key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var in map[string]interface{}
		_ = json.Unmarshal(body, &in)
		assert.Equal(t, "25.00", in["amount"])
		assert.Equal(t, "app://paid", in["return_url"])
		_, _ = w.Write([]byte(`{"url":"https://pay/abc","reference":"PAY-1"}`))
	})

	link, err := g.CreatePaymentLink(context.Background(), LinkRequest{RequestRef: "CR-1", OrderID: 1, CustomerID: 2, AmountCent: 2500})
	require.NoError(t, err)
	assert.Equal(t, "https://pay/abc", link.URL)
	assert.Equal(t, "PAY-1", link.Reference)
}

func TestCaptureRetriesOn5xx(t *testing.T) {
	var calls atomic.Int32
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions/PAY-1/capture", r.URL.Path)
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, g.Capture(context.Background(), CaptureRequest{Reference: "PAY-1", AmountCent: 120}))
	assert.Equal(t, int32(3), calls.Load())
}

func TestCaptureDoesNotRetry4xx(t *testing.T) {
	var calls atomic.Int32
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"detail":"already captured"}`))
	})

	err := g.Capture(context.Background(), CaptureRequest{Reference: "PAY-1", AmountCent: 120})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrExternal)
	assert.Contains(t, err.Error(), "already captured")
	assert.Equal(t, int32(1), calls.Load())
}

func TestUnconfiguredGateway(t *testing.T) {
	g := NewHTTPGateway(cfgpkg.PaymentConfig{}, nil)
	_, err := g.CreatePaymentLink(context.Background(), LinkRequest{AmountCent: 1})
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
}

func TestProviders(t *testing.T) {
	p := NewProviders(nil)
	gw, err := p.Get(models.ProviderManual)
	require.NoError(t, err)
	assert.NoError(t, gw.Capture(context.Background(), CaptureRequest{Reference: "CASH-1", AmountCent: 10}))

	_, err = p.Get(models.ProviderGateway)
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
}

func TestVerifyRejectsSkewAndTamper(t *testing.T) {
	now := time.Unix(1700000000, 0)
	body := []byte(`{"a":1}`)
	sig := Sign(testSecret, Canonical("POST", "/cb", now.Unix(), "n1", body))

	assert.True(t, Verify(testSecret, "POST", "/cb", "1700000000", "n1", sig, body, now, time.Minute))
	assert.False(t, Verify(testSecret, "POST", "/cb", "1700000000", "n1", sig, []byte(`{"a":2}`), now, time.Minute))
	assert.False(t, Verify(testSecret, "POST", "/cb", "1700000000", "n1", sig, body, now.Add(time.Hour), time.Minute))
	assert.Len(t, sig, 64)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0.05", FormatAmount(5))
	assert.Equal(t, "12.34", FormatAmount(1234))
	assert.Equal(t, "-1.00", FormatAmount(-100))
}
