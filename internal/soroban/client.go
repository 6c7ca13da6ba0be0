package soroban

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stellarstream/watcher/internal/core/domain"
)

// EventSource is the surface the poll loop needs from the ledger RPC.
type EventSource interface {
	LatestLedger(ctx context.Context) (uint32, error)
	Events(ctx context.Context, startLedger uint32, limit int) ([]*domain.RawEvent, error)
}

// Client speaks Soroban JSON-RPC over HTTP, filtered to one contract.
type Client struct {
	endpoint   string
	contractID string
	httpClient *http.Client
}

// NewClient creates a Soroban RPC client for a single contract.
func NewClient(endpoint, contractID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:   endpoint,
		contractID: contractID,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// LatestLedger returns the sequence of the most recently closed ledger.
func (c *Client) LatestLedger(ctx context.Context) (uint32, error) {
	var result struct {
		Sequence uint32 `json:"sequence"`
	}
	if err := c.call(ctx, "getLatestLedger", nil, &result); err != nil {
		return 0, err
	}
	return result.Sequence, nil
}

// Events fetches contract events starting at startLedger, oldest first. An
// absent events array in the response means no events, not an error.
func (c *Client) Events(ctx context.Context, startLedger uint32, limit int) ([]*domain.RawEvent, error) {
	params := map[string]any{
		"startLedger": startLedger,
		"filters": []map[string]any{
			{
				"type":        "contract",
				"contractIds": []string{c.contractID},
			},
		},
		"pagination": map[string]any{
			"limit": limit,
		},
	}

	var result struct {
		Events       []*domain.RawEvent `json:"events"`
		LatestLedger uint32             `json:"latestLedger"`
	}
	if err := c.call(ctx, "getEvents", params, &result); err != nil {
		return nil, err
	}
	return result.Events, nil
}

func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	reqBody := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"id":      1,
	}
	if params != nil {
		reqBody["params"] = params
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rpc call %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	if result != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("parse %s result: %w", method, err)
		}
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
