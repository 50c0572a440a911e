// Package gateway adapts the external payment gateway: transaction
// initialize/verify over HTTP and webhook signature verification.
package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dukahub/dukahub/internal/config"
	"github.com/dukahub/dukahub/internal/subscription/domain"
)

// Gateway calls stay well under the request deadline so a slow
// gateway degrades to a retryable pending verify.
const defaultTimeout = 10 * time.Second

type InitializeParams struct {
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Email     string `json:"email"`
}

type Authorization struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// Transaction is the gateway's view of a charge. Status is the
// gateway's vocabulary; anything but "success" is a non-success.
type Transaction struct {
	Reference         string `json:"reference"`
	Status            string `json:"status"`
	Amount            int64  `json:"amount"`
	AuthorizationCode string `json:"authorization_code"`
}

func (t *Transaction) Succeeded() bool {
	return t.Status == "success"
}

type Client interface {
	InitializeTransaction(ctx context.Context, params InitializeParams) (*Authorization, error)
	VerifyTransaction(ctx context.Context, reference string) (*Transaction, error)
}

type httpClient struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

func NewClient(cfg config.Config) Client {
	return &httpClient{
		baseURL:   cfg.GatewayBaseURL,
		secretKey: cfg.GatewaySecret,
		client:    &http.Client{Timeout: defaultTimeout},
	}
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *httpClient) InitializeTransaction(ctx context.Context, params InitializeParams) (*Authorization, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	var auth Authorization
	if err := c.do(req, &auth); err != nil {
		return nil, err
	}
	if auth.Reference == "" {
		auth.Reference = params.Reference
	}
	return &auth, nil
}

func (c *httpClient) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	var tx Transaction
	if err := c.do(req, &tx); err != nil {
		return nil, err
	}
	if tx.Reference == "" {
		tx.Reference = reference
	}
	return &tx, nil
}

func (c *httpClient) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", domain.ErrGatewayUnavailable, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	if !env.Status {
		return fmt.Errorf("%w: %s", domain.ErrGatewayDeclined, env.Message)
	}
	return json.Unmarshal(env.Data, out)
}

// ValidSignature checks the webhook HMAC-SHA256 in constant time. It
// must run before any side effect of the payload.
func ValidSignature(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
