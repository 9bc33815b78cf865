package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"trapkitchen/internal/apperr"
)

// HTTPClient talks to the payment processor's JSON API. Calls are bounded by
// the underlying client timeout; failures come back as retryable upstream
// errors rather than hanging the request.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type createChargeRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type createRefundRequest struct {
	Charge string `json:"charge"`
	Amount int64  `json:"amount"`
}

func (c *HTTPClient) CreateCharge(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Charge, error) {
	var charge Charge
	err := c.do(ctx, http.MethodPost, "/v1/charges", createChargeRequest{
		Amount:   amount,
		Currency: currency,
		Metadata: metadata,
	}, &charge)
	if err != nil {
		return nil, err
	}
	return &charge, nil
}

func (c *HTTPClient) RetrieveCharge(ctx context.Context, reference string) (*Charge, error) {
	var charge Charge
	if err := c.do(ctx, http.MethodGet, "/v1/charges/"+reference, nil, &charge); err != nil {
		return nil, err
	}
	return &charge, nil
}

func (c *HTTPClient) CreateRefund(ctx context.Context, reference string, amount int64) (*Refund, error) {
	var refund Refund
	err := c.do(ctx, http.MethodPost, "/v1/refunds", createRefundRequest{
		Charge: reference,
		Amount: amount,
	}, &refund)
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.ErrUpstream, err, "processor request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperr.Wrap(apperr.ErrUpstream, err, "decode processor response")
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return apperr.NotFoundf("processor object not found")
	default:
		payload, _ := io.ReadAll(resp.Body)
		return apperr.Upstreamf("unexpected processor status %d: %s", resp.StatusCode, string(payload))
	}
}
