// Package bitcoinrpc is a minimal JSON-RPC client for a Bitcoin Core (or
// compatible) node, covering the getblocktemplate/submitblock/
// getblockchaininfo surface spec.md §6 requires of the node integration.
package bitcoinrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks JSON-RPC 1.0 to a Bitcoin node, following the teacher's
// LitecoinRPCClient shape with the node's own RPC surface (getblocktemplate,
// submitblock, getblockchaininfo) in place of Litecoin/mweb-specific calls.
type Client struct {
	url      string
	user     string
	password string
	client   *http.Client
}

// Config names a node's RPC endpoint.
type Config struct {
	URL      string
	User     string
	Password string
	Timeout  time.Duration
}

// DefaultConfig returns a Config pointing at a local regtest/mainnet node
// on the standard mainnet RPC port, for use as a base the caller overlays.
func DefaultConfig() Config {
	return Config{
		URL:     "http://127.0.0.1:8332",
		Timeout: 30 * time.Second,
	}
}

// NewClient builds a Client from cfg.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:      cfg.URL,
		user:     cfg.User,
		password: cfg.Password,
		client:   &http.Client{Timeout: timeout},
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	req := rpcRequest{JSONRPC: "1.0", ID: 1, Method: method, Params: params}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("bitcoinrpc: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("bitcoinrpc: create request: %w", err)
	}
	httpReq.SetBasicAuth(c.user, c.password)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("bitcoinrpc: call %s: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("bitcoinrpc: read response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("bitcoinrpc: unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("bitcoinrpc: %s returned error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

// GetBlockTemplateRules requested from the node. segwit is always asked
// for; longpoll is never requested (the core polls on its own refresh
// interval per spec.md §4.1's template-cache design).
var GetBlockTemplateRules = []string{"segwit"}

// GetBlockTemplate fetches a new candidate block template.
func (c *Client) GetBlockTemplate(ctx context.Context) (*BlockTemplate, error) {
	params := []interface{}{map[string]interface{}{"rules": GetBlockTemplateRules}}
	result, err := c.call(ctx, "getblocktemplate", params)
	if err != nil {
		return nil, err
	}
	var tmpl BlockTemplate
	if err := json.Unmarshal(result, &tmpl); err != nil {
		return nil, fmt.Errorf("bitcoinrpc: unmarshal template: %w", err)
	}
	return &tmpl, nil
}

// GetBlockchainInfo returns the node's current chain state.
func (c *Client) GetBlockchainInfo(ctx context.Context) (*BlockchainInfo, error) {
	result, err := c.call(ctx, "getblockchaininfo", nil)
	if err != nil {
		return nil, err
	}
	var info BlockchainInfo
	if err := json.Unmarshal(result, &info); err != nil {
		return nil, fmt.Errorf("bitcoinrpc: unmarshal blockchain info: %w", err)
	}
	return &info, nil
}

// SubmitBlock submits a fully assembled, hex-encoded block to the network.
func (c *Client) SubmitBlock(ctx context.Context, blockHex string) error {
	result, err := c.call(ctx, "submitblock", []interface{}{blockHex})
	if err != nil {
		return err
	}
	// submitblock returns null on success, or a rejection reason string.
	var reason *string
	if err := json.Unmarshal(result, &reason); err != nil {
		return fmt.Errorf("bitcoinrpc: unmarshal submitblock result: %w", err)
	}
	if reason != nil && *reason != "" {
		return fmt.Errorf("bitcoinrpc: block rejected: %s", *reason)
	}
	return nil
}

// GetBlockCount returns the current best chain height.
func (c *Client) GetBlockCount(ctx context.Context) (int64, error) {
	result, err := c.call(ctx, "getblockcount", nil)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := json.Unmarshal(result, &count); err != nil {
		return 0, fmt.Errorf("bitcoinrpc: unmarshal block count: %w", err)
	}
	return count, nil
}

// ValidateAddress checks an address and returns its scriptPubKey.
func (c *Client) ValidateAddress(ctx context.Context, address string) (*AddressValidation, error) {
	result, err := c.call(ctx, "validateaddress", []interface{}{address})
	if err != nil {
		return nil, err
	}
	var v AddressValidation
	if err := json.Unmarshal(result, &v); err != nil {
		return nil, fmt.Errorf("bitcoinrpc: unmarshal validation: %w", err)
	}
	return &v, nil
}

// TestConnection verifies the node is reachable and authenticated.
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.GetBlockCount(ctx)
	return err
}
