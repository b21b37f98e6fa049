// Package redemption is the REST client for the off-chain redemption
// service, which converts confirmed on-chain borrows into fiat bank
// transfers. Requests are validated locally before anything leaves the
// process and authenticated with HMAC headers.
package redemption

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/aurumfi/goldvault/internal/crypto"
	"github.com/aurumfi/goldvault/internal/domain"
)

// Client talks to the redemption service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       *crypto.HMACAuth
}

// NewClient creates a redemption client. auth may be nil for unauthenticated
// (local mock) deployments.
func NewClient(baseURL string, auth *crypto.HMACAuth) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		auth: auth,
	}
}

// SubmitSelfService submits a self-service redemption for a confirmed borrow
// transaction. Wallet, bank account, amount positivity, and the treasury
// ceiling are all validated before the request is sent.
func (c *Client) SubmitSelfService(ctx context.Context, txHash string, amount *big.Int, bankAccount, wallet string) (domain.Redemption, error) {
	if err := domain.ValidateWallet(wallet); err != nil {
		return domain.Redemption{}, err
	}
	if err := domain.ValidateBankAccount(bankAccount); err != nil {
		return domain.Redemption{}, err
	}
	if err := domain.ValidateRedemptionAmount(amount, true); err != nil {
		return domain.Redemption{}, err
	}

	body := apiSelfServiceRequest{
		TxHash:        txHash,
		Amount:        amount.String(),
		BankAccount:   bankAccount,
		WalletAddress: wallet,
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, "/v1/redemptions/self-service", body)
	if err != nil {
		return domain.Redemption{}, fmt.Errorf("redemption: submit self-service: %w", err)
	}

	var apiResp apiSelfServiceResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return domain.Redemption{}, fmt.Errorf("redemption: decode self-service response: %w", err)
	}

	return domain.Redemption{
		ID:              apiResp.ID,
		ReferenceNumber: apiResp.ReferenceNumber,
		Status:          domain.RedemptionStatus(apiResp.Status),
		Wallet:          wallet,
		TxHash:          txHash,
		Amount:          new(big.Int).Set(amount),
		BankAccount:     bankAccount,
		SubmittedAt:     time.Now().UTC(),
	}, nil
}

// SubmitTreasuryAssisted submits a large redemption for manual treasury
// processing. No ceiling applies on this path.
func (c *Client) SubmitTreasuryAssisted(ctx context.Context, amount *big.Int, bankAccount, wallet string) (domain.TreasuryReceipt, error) {
	if err := domain.ValidateWallet(wallet); err != nil {
		return domain.TreasuryReceipt{}, err
	}
	if err := domain.ValidateBankAccount(bankAccount); err != nil {
		return domain.TreasuryReceipt{}, err
	}
	if err := domain.ValidateRedemptionAmount(amount, false); err != nil {
		return domain.TreasuryReceipt{}, err
	}

	body := apiTreasuryRequest{
		Amount:        amount.String(),
		BankAccount:   bankAccount,
		WalletAddress: wallet,
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, "/v1/redemptions/treasury", body)
	if err != nil {
		return domain.TreasuryReceipt{}, fmt.Errorf("redemption: submit treasury-assisted: %w", err)
	}

	var apiResp apiTreasuryResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return domain.TreasuryReceipt{}, fmt.Errorf("redemption: decode treasury response: %w", err)
	}

	return domain.TreasuryReceipt{
		Status:                  domain.RedemptionStatus(apiResp.Status),
		EstimatedProcessingTime: time.Duration(apiResp.EstimatedProcessingSecs) * time.Second,
	}, nil
}

// CheckStatus fetches the current state of a submitted redemption.
func (c *Client) CheckStatus(ctx context.Context, id string) (domain.Redemption, error) {
	path := fmt.Sprintf("/v1/redemptions/%s", id)

	respBody, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.Redemption{}, fmt.Errorf("redemption: check status %s: %w", id, err)
	}

	var apiResp apiStatusResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return domain.Redemption{}, fmt.Errorf("redemption: decode status response: %w", err)
	}

	return apiResp.toDomain(), nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doRequest builds, signs, sends, and reads an HTTP request against the
// redemption API. It returns the raw response body.
func (c *Client) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.auth != nil {
		for k, v := range c.auth.Headers(method, path, bodyStr) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

// Compile-time interface check.
var _ domain.RedemptionClient = (*Client)(nil)
