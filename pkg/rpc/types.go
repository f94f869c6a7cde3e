package rpc

import (
	"encoding/json"

	"github.com/fortiblox/X1-Duel/pkg/svm"
)

// JSON-RPC 2.0 constants.
const (
	JSONRPCVersion = "2.0"
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Context provides slot context for RPC responses.
type Context struct {
	Slot       uint64 `json:"slot"`
	APIVersion string `json:"apiVersion,omitempty"`
}

// ResponseWithContext wraps a value with context.
type ResponseWithContext struct {
	Context Context     `json:"context"`
	Value   interface{} `json:"value"`
}

// Encoding types for account data.
type Encoding string

const (
	EncodingBase58     Encoding = "base58"
	EncodingBase64     Encoding = "base64"
	EncodingBase64Zstd Encoding = "base64+zstd"
	EncodingJSONParsed Encoding = "jsonParsed"
)

// DataSlice specifies a portion of account data to return.
type DataSlice struct {
	Offset uint64 `json:"offset"`
	Length uint64 `json:"length"`
}

// AccountInfoConfig configures getAccountInfo and getMultipleAccounts requests.
type AccountInfoConfig struct {
	Encoding       Encoding   `json:"encoding,omitempty"`
	DataSlice      *DataSlice `json:"dataSlice,omitempty"`
	MinContextSlot *uint64    `json:"minContextSlot,omitempty"`
}

// ProgramAccountsConfig configures getProgramAccounts requests.
type ProgramAccountsConfig struct {
	Encoding    Encoding               `json:"encoding,omitempty"`
	DataSlice   *DataSlice             `json:"dataSlice,omitempty"`
	Filters     []ProgramAccountFilter `json:"filters,omitempty"`
	WithContext bool                   `json:"withContext,omitempty"`
}

// ProgramAccountFilter filters program accounts.
type ProgramAccountFilter struct {
	Memcmp   *MemcmpFilter `json:"memcmp,omitempty"`
	DataSize *uint64       `json:"dataSize,omitempty"`
}

// MemcmpFilter matches account data at an offset.
type MemcmpFilter struct {
	Offset   uint64   `json:"offset"`
	Bytes    string   `json:"bytes"`
	Encoding Encoding `json:"encoding,omitempty"`
}

// TransactionConfig configures getTransaction requests.
type TransactionConfig struct {
	Encoding Encoding `json:"encoding,omitempty"`
}

// SendTransactionConfig configures sendTransaction requests.
type SendTransactionConfig struct {
	Encoding Encoding `json:"encoding,omitempty"`
}

// SignaturesForAddressConfig configures getSignaturesForAddress requests.
type SignaturesForAddressConfig struct {
	Limit  int    `json:"limit,omitempty"`
	Before string `json:"before,omitempty"`
	Until  string `json:"until,omitempty"`
}

// MatchHistoryConfig configures getMatchHistory requests.
type MatchHistoryConfig struct {
	Player string `json:"player,omitempty"`
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// AccountInfo represents account information returned by RPC.
type AccountInfo struct {
	Data       interface{} `json:"data"` // [encoded, encoding] or parsed JSON
	Executable bool        `json:"executable"`
	Lamports   uint64      `json:"lamports"`
	Owner      string      `json:"owner"`
	RentEpoch  uint64      `json:"rentEpoch"`
	Space      uint64      `json:"space"`
}

// KeyedAccountInfo wraps AccountInfo with its pubkey.
type KeyedAccountInfo struct {
	Pubkey  string       `json:"pubkey"`
	Account *AccountInfo `json:"account"`
}

// TransactionMeta contains transaction execution metadata.
type TransactionMeta struct {
	Err                  interface{} `json:"err"`
	Fee                  uint64      `json:"fee"`
	LogMessages          []string    `json:"logMessages"`
	ComputeUnitsConsumed uint64      `json:"computeUnitsConsumed"`
	Events               []svm.Event `json:"events,omitempty"`
}

// TransactionResponse represents a transaction returned by RPC.
type TransactionResponse struct {
	Slot        uint64           `json:"slot"`
	Transaction interface{}      `json:"transaction"` // [encoded, encoding] or parsed
	Meta        *TransactionMeta `json:"meta"`
	BlockTime   *int64           `json:"blockTime,omitempty"`
}

// ParsedTransaction is the jsonParsed form of a transaction.
type ParsedTransaction struct {
	Signatures []string      `json:"signatures"`
	Message    ParsedMessage `json:"message"`
}

// ParsedMessage is the jsonParsed form of a message.
type ParsedMessage struct {
	AccountKeys     []ParsedAccountKey  `json:"accountKeys"`
	RecentTimestamp int64               `json:"recentTimestamp"`
	Nonce           uint64              `json:"nonce"`
	Instructions    []ParsedInstruction `json:"instructions"`
}

// ParsedAccountKey represents an account key with metadata.
type ParsedAccountKey struct {
	Pubkey   string `json:"pubkey"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
}

// ParsedInstruction represents a parsed instruction.
type ParsedInstruction struct {
	Program   string   `json:"program,omitempty"`
	ProgramID string   `json:"programId"`
	Type      string   `json:"type,omitempty"`
	Accounts  []string `json:"accounts"`
	Data      string   `json:"data"`
}

// SignatureInfo represents signature information for getSignaturesForAddress.
type SignatureInfo struct {
	Signature          string      `json:"signature"`
	Slot               uint64      `json:"slot"`
	Err                interface{} `json:"err"`
	BlockTime          *int64      `json:"blockTime"`
	ConfirmationStatus string      `json:"confirmationStatus,omitempty"`
}

// SignatureStatus represents the status of a transaction signature.
type SignatureStatus struct {
	Slot               uint64      `json:"slot"`
	Confirmations      *uint64     `json:"confirmations"`
	Err                interface{} `json:"err"`
	ConfirmationStatus string      `json:"confirmationStatus,omitempty"`
}

// VersionInfo represents node version information.
type VersionInfo struct {
	Core       string `json:"x1-duel"`
	FeatureSet uint64 `json:"feature-set"`
}

// StateHash is the result of getStateHash.
type StateHash struct {
	Slot     uint64 `json:"slot"`
	Hash     string `json:"hash"`
	Accounts uint64 `json:"accounts"`
}
