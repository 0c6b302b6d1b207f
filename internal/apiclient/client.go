// Package apiclient is the HTTP side of order tracking: one-shot pull
// fetches and delay-notice submission against the backend REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"quickbite/backend/internal/model"
)

// ErrOrderNotFound is terminal: the caller shows a "not found" view and
// does not retry.
var ErrOrderNotFound = errors.New("order not found")

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: baseURL, token: token, httpClient: httpClient}
}

type orderEnvelope struct {
	Order model.Order `json:"order"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	return c.do(ctx, http.MethodGet, "/api/orders/"+orderID, nil)
}

func (c *Client) SubmitDelayNotice(ctx context.Context, orderID, reason string, additionalMinutes int) (*model.Order, error) {
	body := map[string]interface{}{"reason": reason}
	if additionalMinutes > 0 {
		body["additionalMinutes"] = additionalMinutes
	}
	return c.do(ctx, http.MethodPost, "/api/orders/"+orderID+"/delay-reason", body)
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*model.Order, error) {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrOrderNotFound
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr errorEnvelope
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("%s %s: %s (%s)", method, path, apiErr.Error.Message, apiErr.Error.Code)
		}
		return nil, fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	var envelope orderEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return &envelope.Order, nil
}
