package rpc

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/mr-tron/base58"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/accounts"
	"github.com/fortiblox/X1-Duel/pkg/blockstore"
	"github.com/fortiblox/X1-Duel/pkg/runtime"
	"github.com/fortiblox/X1-Duel/pkg/svm/programs/duel"
	"github.com/fortiblox/X1-Duel/pkg/svm/programs/system"
)

// Version information.
const (
	Version    = "x1-duel-1.0.0"
	FeatureSet = 1
)

// Request limits.
const (
	maxMultipleAccounts = 100
	maxSignatureStatus  = 256
)

// parseArgs splits positional params, requiring at least min of them.
func parseArgs(params json.RawMessage, min int, what string) ([]json.RawMessage, *RPCError) {
	var args []json.RawMessage
	if len(params) > 0 {
		if err := json.Unmarshal(params, &args); err != nil {
			return nil, InvalidParamsError("invalid params")
		}
	}
	if len(args) < min {
		return nil, InvalidParamsErrorf("missing %s parameter", what)
	}
	return args, nil
}

// parseConfig decodes the optional config object at args[i].
func parseConfig(args []json.RawMessage, i int, config interface{}) *RPCError {
	if len(args) <= i || string(args[i]) == "null" {
		return nil
	}
	if err := json.Unmarshal(args[i], config); err != nil {
		return InvalidParamsError("invalid config")
	}
	return nil
}

func parsePubkey(raw json.RawMessage, what string) (types.Pubkey, *RPCError) {
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return types.Pubkey{}, InvalidParamsErrorf("invalid %s", what)
	}
	pk, err := types.PubkeyFromBase58(str)
	if err != nil {
		return types.Pubkey{}, InvalidParamsErrorf("invalid %s format", what)
	}
	return pk, nil
}

// Account Methods

// getAccountInfo retrieves account information.
func (s *Server) getAccountInfo(params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params, 1, "pubkey")
	if rpcErr != nil {
		return nil, rpcErr
	}
	pubkey, rpcErr := parsePubkey(args[0], "pubkey")
	if rpcErr != nil {
		return nil, rpcErr
	}

	var config AccountInfoConfig
	if rpcErr := parseConfig(args, 1, &config); rpcErr != nil {
		return nil, rpcErr
	}
	if config.Encoding == "" {
		config.Encoding = EncodingBase64
	}

	currentSlot := s.currentSlot()
	if config.MinContextSlot != nil && *config.MinContextSlot > currentSlot {
		return nil, MinContextSlotError(*config.MinContextSlot, currentSlot)
	}

	account, err := s.accountsDB.GetAccount(pubkey)
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return ResponseWithContext{
				Context: Context{Slot: currentSlot},
				Value:   nil,
			}, nil
		}
		return nil, InternalServerErrorf("failed to get account: %v", err)
	}

	accountInfo, rpcErr := s.accountToAccountInfo(pubkey, account, config.Encoding, config.DataSlice)
	if rpcErr != nil {
		return nil, rpcErr
	}

	return ResponseWithContext{
		Context: Context{Slot: currentSlot},
		Value:   accountInfo,
	}, nil
}

// getBalance retrieves account balance.
func (s *Server) getBalance(params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params, 1, "pubkey")
	if rpcErr != nil {
		return nil, rpcErr
	}
	pubkey, rpcErr := parsePubkey(args[0], "pubkey")
	if rpcErr != nil {
		return nil, rpcErr
	}

	currentSlot := s.currentSlot()
	balance, rpcErr := s.balanceOf(pubkey)
	if rpcErr != nil {
		return nil, rpcErr
	}

	return ResponseWithContext{
		Context: Context{Slot: currentSlot},
		Value:   balance,
	}, nil
}

// getMultipleAccounts retrieves multiple accounts.
func (s *Server) getMultipleAccounts(params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params, 1, "pubkeys")
	if rpcErr != nil {
		return nil, rpcErr
	}

	var pubkeyStrs []string
	if err := json.Unmarshal(args[0], &pubkeyStrs); err != nil {
		return nil, InvalidParamsError("invalid pubkeys array")
	}
	if len(pubkeyStrs) > maxMultipleAccounts {
		return nil, InvalidParamsErrorf("too many pubkeys (max %d)", maxMultipleAccounts)
	}

	var config AccountInfoConfig
	if rpcErr := parseConfig(args, 1, &config); rpcErr != nil {
		return nil, rpcErr
	}
	if config.Encoding == "" {
		config.Encoding = EncodingBase64
	}

	currentSlot := s.currentSlot()
	if config.MinContextSlot != nil && *config.MinContextSlot > currentSlot {
		return nil, MinContextSlotError(*config.MinContextSlot, currentSlot)
	}

	accountInfos := make([]*AccountInfo, len(pubkeyStrs))
	for i, pubkeyStr := range pubkeyStrs {
		pubkey, err := types.PubkeyFromBase58(pubkeyStr)
		if err != nil {
			return nil, InvalidParamsErrorf("invalid pubkey at index %d", i)
		}

		account, err := s.accountsDB.GetAccount(pubkey)
		if err != nil {
			if errors.Is(err, accounts.ErrAccountNotFound) {
				continue
			}
			return nil, InternalServerErrorf("failed to get account: %v", err)
		}

		info, rpcErr := s.accountToAccountInfo(pubkey, account, config.Encoding, config.DataSlice)
		if rpcErr != nil {
			return nil, rpcErr
		}
		accountInfos[i] = info
	}

	return ResponseWithContext{
		Context: Context{Slot: currentSlot},
		Value:   accountInfos,
	}, nil
}

// getProgramAccounts retrieves accounts owned by a program.
func (s *Server) getProgramAccounts(params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params, 1, "program ID")
	if rpcErr != nil {
		return nil, rpcErr
	}
	programID, rpcErr := parsePubkey(args[0], "program ID")
	if rpcErr != nil {
		return nil, rpcErr
	}

	var config ProgramAccountsConfig
	if rpcErr := parseConfig(args, 1, &config); rpcErr != nil {
		return nil, rpcErr
	}
	if config.Encoding == "" {
		config.Encoding = EncodingBase64
	}

	filters, rpcErr := compileFilters(config.Filters)
	if rpcErr != nil {
		return nil, rpcErr
	}

	currentSlot := s.currentSlot()
	results := []KeyedAccountInfo{}
	err := s.accountsDB.IterateAccounts(func(pubkey types.Pubkey, account *accounts.Account) error {
		if account.Owner != programID || !filters.match(account.Data) {
			return nil
		}
		info, rpcErr := s.accountToAccountInfo(pubkey, account, config.Encoding, config.DataSlice)
		if rpcErr != nil {
			return rpcErr
		}
		results = append(results, KeyedAccountInfo{
			Pubkey:  pubkey.String(),
			Account: info,
		})
		return nil
	})
	if err != nil {
		return nil, NewRPCError(ScanError, err.Error())
	}

	if config.WithContext {
		return ResponseWithContext{
			Context: Context{Slot: currentSlot},
			Value:   results,
		}, nil
	}
	return results, nil
}

// Transaction Methods

// sendTransaction executes a signed wire transaction and returns its signature.
// A transaction that executes but fails is still recorded; the error carries
// its signature, error and logs.
func (s *Server) sendTransaction(params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params, 1, "transaction")
	if rpcErr != nil {
		return nil, rpcErr
	}
	var encoded string
	if err := json.Unmarshal(args[0], &encoded); err != nil {
		return nil, InvalidParamsError("invalid transaction")
	}
	var config SendTransactionConfig
	if rpcErr := parseConfig(args, 1, &config); rpcErr != nil {
		return nil, rpcErr
	}

	raw, err := DecodeTransaction(encoded, config.Encoding)
	if err != nil {
		return nil, InvalidParamsErrorf("failed to decode transaction: %v", err)
	}
	var tx runtime.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, InvalidParamsErrorf("failed to deserialize transaction: %v", err)
	}

	return s.submit(&tx)
}

func (s *Server) submit(tx *runtime.Transaction) (interface{}, *RPCError) {
	receipt, err := s.executor.Execute(tx)
	if err != nil {
		return nil, submitError(err)
	}
	if !receipt.Succeeded() {
		return nil, NewRPCErrorWithData(SendTransactionPreflightFailure,
			"Transaction failed: "+receipt.Err.Error(),
			map[string]interface{}{
				"signature":     receipt.Signature.String(),
				"err":           TransactionErrorJSON(receipt.Err),
				"logs":          receipt.Logs,
				"unitsConsumed": receipt.ComputeUnitsConsumed,
			})
	}
	return receipt.Signature.String(), nil
}

// getTransaction retrieves a transaction by signature.
func (s *Server) getTransaction(params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params, 1, "signature")
	if rpcErr != nil {
		return nil, rpcErr
	}
	var sigStr string
	if err := json.Unmarshal(args[0], &sigStr); err != nil {
		return nil, InvalidParamsError("invalid signature")
	}
	sig, err := types.SignatureFromBase58(sigStr)
	if err != nil {
		return nil, InvalidParamsError("invalid signature format")
	}

	var config TransactionConfig
	if rpcErr := parseConfig(args, 1, &config); rpcErr != nil {
		return nil, rpcErr
	}

	rec, err := s.ledger.GetTransaction(sig)
	if err != nil {
		if errors.Is(err, blockstore.ErrTransactionNotFound) {
			return nil, nil
		}
		return nil, InternalServerErrorf("failed to get transaction: %v", err)
	}
	return s.transactionToResponse(rec, config.Encoding)
}

// getSignaturesForAddress retrieves signatures for transactions involving an address.
func (s *Server) getSignaturesForAddress(params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params, 1, "address")
	if rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parsePubkey(args[0], "address")
	if rpcErr != nil {
		return nil, rpcErr
	}

	var config SignaturesForAddressConfig
	if rpcErr := parseConfig(args, 1, &config); rpcErr != nil {
		return nil, rpcErr
	}

	opts := &blockstore.SignatureQueryOptions{Limit: config.Limit}
	if config.Before != "" {
		sig, err := types.SignatureFromBase58(config.Before)
		if err != nil {
			return nil, InvalidParamsError("invalid before signature")
		}
		opts.Before = &sig
	}
	if config.Until != "" {
		sig, err := types.SignatureFromBase58(config.Until)
		if err != nil {
			return nil, InvalidParamsError("invalid until signature")
		}
		opts.Until = &sig
	}

	signatures, err := s.ledger.GetSignaturesForAddress(addr, opts)
	if err != nil {
		if errors.Is(err, blockstore.ErrTransactionNotFound) {
			return nil, InvalidParamsError("before/until signature not found")
		}
		return nil, InternalServerErrorf("failed to get signatures: %v", err)
	}

	results := make([]SignatureInfo, len(signatures))
	for i, sig := range signatures {
		blockTime := sig.BlockTime
		results[i] = SignatureInfo{
			Signature:          sig.Signature.String(),
			Slot:               sig.Slot,
			BlockTime:          &blockTime,
			ConfirmationStatus: "finalized",
		}
		if sig.Failed {
			status, err := s.ledger.GetTransactionStatus(sig.Signature)
			if err == nil {
				results[i].Err = TransactionErrorJSON(status.Err)
			}
		}
	}
	return results, nil
}

// getSignatureStatuses retrieves the status of signatures.
func (s *Server) getSignatureStatuses(params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params, 1, "signatures")
	if rpcErr != nil {
		return nil, rpcErr
	}

	var sigStrs []string
	if err := json.Unmarshal(args[0], &sigStrs); err != nil {
		return nil, InvalidParamsError("invalid signatures array")
	}
	if len(sigStrs) > maxSignatureStatus {
		return nil, InvalidParamsErrorf("too many signatures (max %d)", maxSignatureStatus)
	}

	currentSlot := s.currentSlot()
	statuses := make([]*SignatureStatus, len(sigStrs))
	for i, sigStr := range sigStrs {
		sig, err := types.SignatureFromBase58(sigStr)
		if err != nil {
			continue
		}
		status, err := s.ledger.GetTransactionStatus(sig)
		if err != nil {
			continue
		}
		statuses[i] = &SignatureStatus{
			Slot:               status.Slot,
			Err:                TransactionErrorJSON(status.Err),
			ConfirmationStatus: "finalized",
		}
	}

	return ResponseWithContext{
		Context: Context{Slot: currentSlot},
		Value:   statuses,
	}, nil
}

// Node Methods

// getHealth returns the node health status.
func (s *Server) getHealth(params json.RawMessage) (interface{}, *RPCError) {
	if !s.IsHealthy() {
		return nil, ErrNodeUnhealthy
	}
	return "ok", nil
}

// getVersion returns the node version.
func (s *Server) getVersion(params json.RawMessage) (interface{}, *RPCError) {
	return VersionInfo{
		Core:       Version,
		FeatureSet: FeatureSet,
	}, nil
}

// getSlot returns the slot of the last executed transaction.
func (s *Server) getSlot(params json.RawMessage) (interface{}, *RPCError) {
	return s.currentSlot(), nil
}

// getStateHash returns the blake3 digest over every account.
func (s *Server) getStateHash(params json.RawMessage) (interface{}, *RPCError) {
	slot := s.currentSlot()
	hash, err := accounts.NewHashComputer(s.accountsDB).ComputeAccountsHash()
	if err != nil {
		return nil, InternalServerErrorf("failed to hash accounts: %v", err)
	}
	count, err := s.accountsDB.AccountsCount()
	if err != nil {
		return nil, InternalServerErrorf("failed to count accounts: %v", err)
	}
	return StateHash{Slot: slot, Hash: hash.String(), Accounts: count}, nil
}

// getMinimumBalanceForRentExemption returns the minimum balance for rent exemption.
func (s *Server) getMinimumBalanceForRentExemption(params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params, 1, "data length")
	if rpcErr != nil {
		return nil, rpcErr
	}
	var dataLen uint64
	if err := json.Unmarshal(args[0], &dataLen); err != nil {
		return nil, InvalidParamsError("invalid data length")
	}
	return s.executor.Rent().MinimumBalance(dataLen), nil
}

// requestAirdrop transfers lamports from the node faucet.
func (s *Server) requestAirdrop(params json.RawMessage) (interface{}, *RPCError) {
	if s.config.AirdropLimit == 0 || s.config.Faucet == nil {
		return nil, ErrAirdropDisabled
	}
	args, rpcErr := parseArgs(params, 2, "pubkey and lamports")
	if rpcErr != nil {
		return nil, rpcErr
	}
	to, rpcErr := parsePubkey(args[0], "pubkey")
	if rpcErr != nil {
		return nil, rpcErr
	}
	var lamports uint64
	if err := json.Unmarshal(args[1], &lamports); err != nil || lamports == 0 {
		return nil, InvalidParamsError("invalid lamports")
	}
	if lamports > s.config.AirdropLimit {
		return nil, NewRPCError(AirdropUnavailable, "airdrop request exceeds limit of "+types.FormatSol(s.config.AirdropLimit)+" SOL")
	}

	faucet := s.config.Faucet
	tx := runtime.NewTransaction(faucet.Public, s.executor.Clock().Now(), s.airdropNonce.Add(1),
		system.Transfer(faucet.Public, to, lamports))
	if err := tx.Sign(faucet); err != nil {
		return nil, InternalServerErrorf("failed to sign airdrop: %v", err)
	}
	return s.submit(tx)
}

// Helper methods

func (s *Server) currentSlot() uint64 {
	if s.executor != nil {
		return s.executor.Slot()
	}
	return s.accountsDB.GetSlot()
}

func (s *Server) balanceOf(pubkey types.Pubkey) (uint64, *RPCError) {
	account, err := s.accountsDB.GetAccount(pubkey)
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return 0, nil
		}
		return 0, InternalServerErrorf("failed to get account: %v", err)
	}
	return account.Lamports, nil
}

// accountToAccountInfo converts an internal account to RPC AccountInfo.
func (s *Server) accountToAccountInfo(pubkey types.Pubkey, account *accounts.Account, encoding Encoding, dataSlice *DataSlice) (*AccountInfo, *RPCError) {
	info := &AccountInfo{
		Executable: account.Executable,
		Lamports:   account.Lamports,
		Owner:      account.Owner.String(),
		RentEpoch:  account.RentEpoch,
		Space:      uint64(len(account.Data)),
	}

	if encoding == EncodingJSONParsed && dataSlice == nil {
		if parsed, ok := s.parseAccount(pubkey, account); ok {
			info.Data = parsed
			return info, nil
		}
	}

	data := ApplyDataSlice(account.Data, dataSlice)
	encodedData, err := EncodeAccountData(data, encoding)
	if err != nil {
		return nil, InternalServerErrorf("failed to encode data: %v", err)
	}
	info.Data = encodedData
	return info, nil
}

// accountFilter is a compiled ProgramAccountFilter.
type accountFilter struct {
	dataSize *uint64
	offset   uint64
	bytes    []byte
}

type accountFilters []accountFilter

func compileFilters(filters []ProgramAccountFilter) (accountFilters, *RPCError) {
	out := make(accountFilters, 0, len(filters))
	for i, filter := range filters {
		if filter.DataSize != nil {
			out = append(out, accountFilter{dataSize: filter.DataSize})
		}
		if filter.Memcmp != nil {
			enc := EncodingBase58
			if filter.Memcmp.Encoding == EncodingBase64 {
				enc = EncodingBase64
			}
			cmpBytes, err := enc.decode(filter.Memcmp.Bytes)
			if err != nil {
				return nil, InvalidParamsErrorf("invalid memcmp bytes in filter %d", i)
			}
			out = append(out, accountFilter{offset: filter.Memcmp.Offset, bytes: cmpBytes})
		}
	}
	return out, nil
}

// match checks if account data satisfies every filter.
func (fs accountFilters) match(data []byte) bool {
	for _, f := range fs {
		if f.dataSize != nil {
			if uint64(len(data)) != *f.dataSize {
				return false
			}
			continue
		}
		end := f.offset + uint64(len(f.bytes))
		if end > uint64(len(data)) || !bytes.Equal(data[f.offset:end], f.bytes) {
			return false
		}
	}
	return true
}

// transactionToResponse converts a ledger record to the RPC form.
func (s *Server) transactionToResponse(rec *blockstore.TransactionRecord, encoding Encoding) (*TransactionResponse, *RPCError) {
	receipt := rec.Receipt
	blockTime := rec.BlockTime
	resp := &TransactionResponse{
		Slot:      rec.Slot,
		BlockTime: &blockTime,
		Meta: &TransactionMeta{
			Err:                  TransactionErrorJSON(receipt.Err),
			LogMessages:          receipt.Logs,
			ComputeUnitsConsumed: receipt.ComputeUnitsConsumed,
			Events:               receipt.Events,
		},
	}

	if encoding != EncodingJSONParsed {
		resp.Transaction = EncodeTransaction(rec.Transaction, encoding)
		return resp, nil
	}

	tx, err := rec.Decode()
	if err != nil {
		return nil, InternalServerErrorf("failed to decode stored transaction: %v", err)
	}
	resp.Transaction = parsedTransaction(tx)
	return resp, nil
}

func parsedTransaction(tx *runtime.Transaction) *ParsedTransaction {
	keys, writable := tx.Message.AccountKeys()
	signers := make(map[types.Pubkey]bool)
	for _, k := range tx.Message.Signers() {
		signers[k] = true
	}

	parsed := &ParsedTransaction{
		Signatures: make([]string, len(tx.Signatures)),
		Message: ParsedMessage{
			RecentTimestamp: tx.Message.RecentTimestamp,
			Nonce:           tx.Message.Nonce,
		},
	}
	for i, sig := range tx.Signatures {
		parsed.Signatures[i] = sig.String()
	}
	for _, k := range keys {
		parsed.Message.AccountKeys = append(parsed.Message.AccountKeys, ParsedAccountKey{
			Pubkey:   k.String(),
			Signer:   signers[k],
			Writable: writable[k],
		})
	}
	for _, ix := range tx.Message.Instructions {
		pi := ParsedInstruction{
			ProgramID: ix.ProgramID.String(),
			Data:      base58.Encode(ix.Data),
		}
		switch ix.ProgramID {
		case types.SystemProgramAddr:
			pi.Program = "system"
		case duel.ProgramID:
			pi.Program = "x1-duel"
			if kind, _, err := duel.DecodeInstruction(ix.Data); err == nil {
				pi.Type = string(kind)
			}
		}
		for _, meta := range ix.Accounts {
			pi.Accounts = append(pi.Accounts, meta.Pubkey.String())
		}
		parsed.Message.Instructions = append(parsed.Message.Instructions, pi)
	}
	return parsed
}
