package rpcfetch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/history"
	"github.com/fortiblox/X1-Duel/pkg/rpc"
	"github.com/fortiblox/X1-Duel/pkg/runtime"
)

// maxResponseSize bounds a single response body.
const maxResponseSize = 16 * 1024 * 1024

// RPCClient handles JSON-RPC requests to X1-Duel nodes.
type RPCClient struct {
	httpClient *http.Client
	pool       Pool
}

// NewRPCClient creates a new RPC client with the given pool.
func NewRPCClient(pool Pool, timeout time.Duration) *RPCClient {
	return &RPCClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		pool: pool,
	}
}

// Dial is a shorthand for a client against a single endpoint.
func Dial(url string) *RPCClient {
	return NewRPCClient(NewSimplePool([]string{url}), DefaultRequestTimeout)
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC error.
type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// call makes a JSON-RPC call to a healthy endpoint.
func (c *RPCClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	endpoint, err := c.pool.GetEndpoint(ctx)
	if err != nil {
		return fmt.Errorf("get endpoint: %w", err)
	}

	start := time.Now()

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.pool.MarkUnhealthy(endpoint.URL, err)
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.pool.MarkUnhealthy(endpoint.URL, err)
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.pool.MarkUnhealthy(endpoint.URL, fmt.Errorf("status %d", resp.StatusCode))
		return fmt.Errorf("http status %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		c.pool.MarkUnhealthy(endpoint.URL, err)
		return fmt.Errorf("unmarshal response: %w", err)
	}

	// RPC errors are not endpoint health issues.
	c.pool.MarkHealthy(endpoint.URL, time.Since(start))
	if rpcResp.Error != nil {
		return &RPCError{
			Code:    rpcResp.Error.Code,
			Message: rpcResp.Error.Message,
			Data:    rpcResp.Error.Data,
		}
	}

	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return nil
}

// contextValue decodes the {"context":..., "value":...} envelope.
type contextValue[T any] struct {
	Context rpc.Context `json:"context"`
	Value   T           `json:"value"`
}

func callValue[T any](ctx context.Context, c *RPCClient, method string, params []interface{}) (T, error) {
	var out contextValue[T]
	err := c.call(ctx, method, params, &out)
	return out.Value, err
}

// GetHealth returns nil when the node reports healthy.
func (c *RPCClient) GetHealth(ctx context.Context) error {
	return c.call(ctx, "getHealth", nil, nil)
}

// GetVersion returns the node software version.
func (c *RPCClient) GetVersion(ctx context.Context) (*rpc.VersionInfo, error) {
	var v rpc.VersionInfo
	if err := c.call(ctx, "getVersion", nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// GetSlot fetches the node's current slot.
func (c *RPCClient) GetSlot(ctx context.Context) (uint64, error) {
	var slot uint64
	if err := c.call(ctx, "getSlot", nil, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

// GetBalance returns the lamports held by key.
func (c *RPCClient) GetBalance(ctx context.Context, key types.Pubkey) (uint64, error) {
	return callValue[uint64](ctx, c, "getBalance", []interface{}{key.String()})
}

// Account is a decoded account as returned by getAccountInfo.
type Account struct {
	Lamports uint64
	Owner    types.Pubkey
	Data     []byte
}

// GetAccountInfo fetches an account with base64 data. It returns
// ErrAccountNotFound when the node has no such account.
func (c *RPCClient) GetAccountInfo(ctx context.Context, key types.Pubkey) (*Account, error) {
	info, err := callValue[*rpc.AccountInfo](ctx, c, "getAccountInfo", []interface{}{
		key.String(),
		map[string]interface{}{"encoding": "base64"},
	})
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, ErrAccountNotFound
	}

	owner, err := types.PubkeyFromBase58(info.Owner)
	if err != nil {
		return nil, fmt.Errorf("decode owner: %w", err)
	}
	pair, ok := info.Data.([]interface{})
	if !ok || len(pair) != 2 {
		return nil, fmt.Errorf("unexpected account data %v", info.Data)
	}
	encoded, _ := pair[0].(string)
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}
	return &Account{Lamports: info.Lamports, Owner: owner, Data: data}, nil
}

// GetMinimumBalanceForRentExemption returns the rent-exempt minimum for size bytes.
func (c *RPCClient) GetMinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error) {
	var lamports uint64
	if err := c.call(ctx, "getMinimumBalanceForRentExemption", []interface{}{size}, &lamports); err != nil {
		return 0, err
	}
	return lamports, nil
}

// SendTransaction submits a signed transaction and returns its signature.
// A transaction that executed but failed yields a *RPCError whose
// TransactionFailure carries the program error and logs.
func (c *RPCClient) SendTransaction(ctx context.Context, tx *runtime.Transaction) (types.Signature, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return types.Signature{}, fmt.Errorf("encode transaction: %w", err)
	}
	var sig string
	err = c.call(ctx, "sendTransaction", []interface{}{
		base64.StdEncoding.EncodeToString(raw),
		map[string]interface{}{"encoding": "base64"},
	}, &sig)
	if err != nil {
		return types.Signature{}, err
	}
	return types.SignatureFromBase58(sig)
}

// RequestAirdrop asks the node faucet for lamports.
func (c *RPCClient) RequestAirdrop(ctx context.Context, to types.Pubkey, lamports uint64) (types.Signature, error) {
	var sig string
	if err := c.call(ctx, "requestAirdrop", []interface{}{to.String(), lamports}, &sig); err != nil {
		return types.Signature{}, err
	}
	return types.SignatureFromBase58(sig)
}

// GetTransaction fetches an executed transaction. It returns
// ErrTransactionNotFound when the node has no record of it.
func (c *RPCClient) GetTransaction(ctx context.Context, sig types.Signature) (*rpc.TransactionResponse, error) {
	var tx *rpc.TransactionResponse
	if err := c.call(ctx, "getTransaction", []interface{}{sig.String(), map[string]interface{}{"encoding": "jsonParsed"}}, &tx); err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrTransactionNotFound
	}
	return tx, nil
}

// GetSignatureStatuses returns one entry per signature, nil for unknown ones.
func (c *RPCClient) GetSignatureStatuses(ctx context.Context, sigs ...types.Signature) ([]*rpc.SignatureStatus, error) {
	encoded := make([]string, len(sigs))
	for i, sig := range sigs {
		encoded[i] = sig.String()
	}
	return callValue[[]*rpc.SignatureStatus](ctx, c, "getSignatureStatuses", []interface{}{encoded})
}

// GetSignaturesForAddress lists transactions touching key, newest first.
func (c *RPCClient) GetSignaturesForAddress(ctx context.Context, key types.Pubkey, limit int) ([]rpc.SignatureInfo, error) {
	params := []interface{}{key.String()}
	if limit > 0 {
		params = append(params, rpc.SignaturesForAddressConfig{Limit: limit})
	}
	var out []rpc.SignatureInfo
	if err := c.call(ctx, "getSignaturesForAddress", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetPlatformConfig returns the platform view, or ErrPlatformNotInitialized.
func (c *RPCClient) GetPlatformConfig(ctx context.Context) (*rpc.PlatformView, error) {
	view, err := callValue[*rpc.PlatformView](ctx, c, "getPlatformConfig", nil)
	if err != nil {
		return nil, err
	}
	if view == nil {
		return nil, ErrPlatformNotInitialized
	}
	return view, nil
}

// GetMatch looks a match up by address or hex match id.
func (c *RPCClient) GetMatch(ctx context.Context, ref string) (*rpc.MatchView, error) {
	view, err := callValue[*rpc.MatchView](ctx, c, "getMatch", []interface{}{ref})
	if err != nil {
		return nil, err
	}
	if view == nil {
		return nil, ErrMatchNotFound
	}
	return view, nil
}

// GetOpenMatches lists joinable matches, oldest first.
func (c *RPCClient) GetOpenMatches(ctx context.Context, limit int) ([]*rpc.MatchView, error) {
	var params []interface{}
	if limit > 0 {
		params = []interface{}{map[string]int{"limit": limit}}
	}
	return callValue[[]*rpc.MatchView](ctx, c, "getOpenMatches", params)
}

// MatchHistory is the result of getMatchHistory.
type MatchHistory struct {
	Matches []*history.Match     `json:"matches"`
	Stats   *history.PlayerStats `json:"stats"`
}

// GetMatchHistory queries the node's history index.
func (c *RPCClient) GetMatchHistory(ctx context.Context, config rpc.MatchHistoryConfig) (*MatchHistory, error) {
	var out MatchHistory
	if err := c.call(ctx, "getMatchHistory", []interface{}{config}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
