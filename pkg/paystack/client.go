// Package paystack is a minimal client for the Paystack transaction API.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the production Paystack API.
const DefaultBaseURL = "https://api.paystack.co"

// TransactionSuccess is the status of a settled transaction.
const TransactionSuccess = "success"

// APIError carries the gateway's own message for a rejected request.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paystack: %s (status %d)", e.Message, e.StatusCode)
}

// Client calls Paystack with a secret key.
type Client struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a client. An empty baseURL uses DefaultBaseURL and a
// nil httpClient uses one with a 15 second timeout.
func NewClient(secretKey, baseURL string, httpClient *http.Client) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &Client{
		secretKey:  secretKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// InitializeRequest starts a transaction. Amount is in kobo.
type InitializeRequest struct {
	Email       string                 `json:"email"`
	Amount      int64                  `json:"amount"`
	Reference   string                 `json:"reference,omitempty"`
	CallbackURL string                 `json:"callback_url,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// InitializeData is the checkout handle returned by Paystack.
type InitializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// InitializeResponse is the envelope of /transaction/initialize.
type InitializeResponse struct {
	Status  bool           `json:"status"`
	Message string         `json:"message"`
	Data    InitializeData `json:"data"`
}

// Transaction is the verified transaction record.
type Transaction struct {
	ID        int64    `json:"id"`
	Status    string   `json:"status"`
	Reference string   `json:"reference"`
	Amount    int64    `json:"amount"`
	Currency  string   `json:"currency"`
	PaidAt    string   `json:"paid_at"`
	Metadata  Metadata `json:"metadata"`
}

// PaidTime parses PaidAt, reporting false when it is absent or malformed.
func (t Transaction) PaidTime() (time.Time, bool) {
	if strings.TrimSpace(t.PaidAt) == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339, t.PaidAt)
	if err != nil {
		return time.Time{}, false
	}
	return parsed.UTC(), true
}

// VerifyResponse is the envelope of /transaction/verify/:reference.
type VerifyResponse struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    Transaction `json:"data"`
}

// KoboFromNaira converts a naira amount to kobo, rounded to the nearest kobo.
func KoboFromNaira(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// Initialize starts a transaction.
func (c *Client) Initialize(ctx context.Context, payload InitializeRequest) (InitializeResponse, error) {
	var out InitializeResponse
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", payload, &out); err != nil {
		return InitializeResponse{}, err
	}
	return out, nil
}

// Verify fetches the current state of a transaction.
func (c *Client) Verify(ctx context.Context, reference string) (VerifyResponse, error) {
	var out VerifyResponse
	path := "/transaction/verify/" + url.PathEscape(reference)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return VerifyResponse{}, err
	}
	return out, nil
}

type envelope struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode paystack request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build paystack request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("paystack request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read paystack response: %w", err)
	}

	var head envelope
	decodeErr := json.Unmarshal(raw, &head)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || decodeErr != nil || !head.Status {
		message := strings.TrimSpace(head.Message)
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode paystack response: %w", err)
	}
	return nil
}
