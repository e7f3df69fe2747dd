// Package tokensdk is a thin JSON-RPC client for yield-node: a single
// call()/JSONRPCRequest plumbing helper and one public method per
// token_* RPC method.
package tokensdk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/holiman/uint256"

	"yieldcore/core/types"
)

// Client talks to a yield-node's JSON-RPC endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a Client pointed at endpoint.
func NewClient(endpoint string) *Client {
	return &Client{endpoint: endpoint, httpClient: &http.Client{}}
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      int    `json:"id"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) call(method string, params any) (json.RawMessage, error) {
	req := request{JSONRPC: "2.0", Method: method, Params: params, ID: 1}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.httpClient.Post(c.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to make HTTP request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var rpcResp response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("rpc error: %s", rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

// Mint credits to with presentAmount present-value tokens.
func (c *Client) Mint(to types.Address, presentAmount *uint256.Int) error {
	_, err := c.call("token_mint", map[string]string{"to": to.Hex(), "amount": presentAmount.Dec()})
	return err
}

// Burn debits from by presentAmount present-value tokens.
func (c *Client) Burn(from types.Address, presentAmount *uint256.Int) error {
	_, err := c.call("token_burn", map[string]string{"from": from.Hex(), "amount": presentAmount.Dec()})
	return err
}

// Transfer moves presentAmount present-value tokens from `from` to `to`.
func (c *Client) Transfer(from, to types.Address, presentAmount *uint256.Int) error {
	_, err := c.call("token_transfer", map[string]string{"from": from.Hex(), "to": to.Hex(), "amount": presentAmount.Dec()})
	return err
}

// StartEarning enrolls addr in the earning cohort.
func (c *Client) StartEarning(addr types.Address, currentNonEarningBalance *uint256.Int) error {
	_, err := c.call("token_startEarning", map[string]string{"address": addr.Hex(), "currentNonEarningBalance": currentNonEarningBalance.Dec()})
	return err
}

// StopEarning removes addr from the earning cohort.
func (c *Client) StopEarning(addr types.Address) (present, principal *uint256.Int, err error) {
	raw, err := c.call("token_stopEarning", map[string]string{"address": addr.Hex()})
	if err != nil {
		return nil, nil, err
	}
	var out struct {
		PresentAmount string `json:"presentAmount"`
		Principal     string `json:"principal"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal stop_earning result: %w", err)
	}
	present = new(uint256.Int)
	if err := present.SetFromDecimal(out.PresentAmount); err != nil {
		return nil, nil, err
	}
	principal = new(uint256.Int)
	if err := principal.SetFromDecimal(out.Principal); err != nil {
		return nil, nil, err
	}
	return present, principal, nil
}

// Claim realizes addr's accrued interest.
func (c *Client) Claim(addr types.Address) (*uint256.Int, error) {
	raw, err := c.call("token_claim", map[string]string{"address": addr.Hex()})
	if err != nil {
		return nil, err
	}
	var out struct {
		PresentAmount string `json:"presentAmount"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal claim result: %w", err)
	}
	amount := new(uint256.Int)
	if err := amount.SetFromDecimal(out.PresentAmount); err != nil {
		return nil, err
	}
	return amount, nil
}

// BalanceOf returns addr's present-value balance if addr is earning. The
// node tracks only the non-earning aggregate, so a non-earning address
// reads as zero.
func (c *Client) BalanceOf(addr types.Address) (*uint256.Int, error) {
	raw, err := c.call("token_balanceOf", map[string]string{"address": addr.Hex()})
	if err != nil {
		return nil, err
	}
	var out struct {
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal balance result: %w", err)
	}
	balance := new(uint256.Int)
	if err := balance.SetFromDecimal(out.Balance); err != nil {
		return nil, err
	}
	return balance, nil
}

// IsEarning reports whether addr is in the earning cohort.
func (c *Client) IsEarning(addr types.Address) (bool, error) {
	raw, err := c.call("token_isEarning", map[string]string{"address": addr.Hex()})
	if err != nil {
		return false, err
	}
	var earning bool
	if err := json.Unmarshal(raw, &earning); err != nil {
		return false, fmt.Errorf("failed to unmarshal is_earning result: %w", err)
	}
	return earning, nil
}

// TotalSupply returns the token's current total supply.
func (c *Client) TotalSupply() (*uint256.Int, error) {
	raw, err := c.call("token_totalSupply", nil)
	if err != nil {
		return nil, err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal total_supply result: %w", err)
	}
	total := new(uint256.Int)
	if err := total.SetFromDecimal(s); err != nil {
		return nil, err
	}
	return total, nil
}

// CurrentIndex returns the token's current continuous-compounding index.
func (c *Client) CurrentIndex() (*uint256.Int, error) {
	raw, err := c.call("token_currentIndex", nil)
	if err != nil {
		return nil, err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal current_index result: %w", err)
	}
	idx := new(uint256.Int)
	if err := idx.SetFromDecimal(s); err != nil {
		return nil, err
	}
	return idx, nil
}
