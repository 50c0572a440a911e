package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukahub/dukahub/internal/config"
	"github.com/dukahub/dukahub/internal/subscription/domain"
)

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestValidSignature(t *testing.T) {
	body := []byte(`{"event":"charge.success","data":{"reference":"abc"}}`)
	secret := "whsec_test"

	assert.True(t, ValidSignature(body, sign(body, secret), secret))
	assert.False(t, ValidSignature(body, sign(body, "other_secret"), secret))
	assert.False(t, ValidSignature(body, "", secret))
	assert.False(t, ValidSignature([]byte("tampered"), sign(body, secret), secret))
}

func testClient(baseURL string) Client {
	return NewClient(config.Config{
		GatewayBaseURL: baseURL,
		GatewaySecret:  "sk_test",
	})
}

func TestInitializeTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": true,
			"message": "Authorization URL created",
			"data": {"authorization_url": "https://pay.example/abc", "access_code": "ac_1"}
		}`))
	}))
	defer srv.Close()

	auth, err := testClient(srv.URL).InitializeTransaction(context.Background(), InitializeParams{
		Reference: "ref-1",
		Amount:    2000,
		Currency:  "KES",
		Email:     "billing@demo.dukahub.app",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/abc", auth.AuthorizationURL)
	assert.Equal(t, "ref-1", auth.Reference, "reference backfilled from the request")
}

func TestVerifyTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/verify/ref-1", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": true,
			"message": "Verification successful",
			"data": {"reference": "ref-1", "status": "success", "amount": 2000, "authorization_code": "AUTH_x"}
		}`))
	}))
	defer srv.Close()

	tx, err := testClient(srv.URL).VerifyTransaction(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.True(t, tx.Succeeded())
	assert.Equal(t, "AUTH_x", tx.AuthorizationCode)
}

func TestVerifyTransactionDeclined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": false, "message": "Transaction reference not found"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).VerifyTransaction(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrGatewayDeclined)
}

func TestVerifyTransactionGatewayDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	srv.Close() // refuse connections

	_, err := testClient(srv.URL).VerifyTransaction(context.Background(), "ref-1")
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
}

func TestVerifyTransactionServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).VerifyTransaction(context.Background(), "ref-1")
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
}
