package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/accounts"
	"github.com/fortiblox/X1-Duel/pkg/history"
	"github.com/fortiblox/X1-Duel/pkg/svm/programs/duel"
)

// PlatformView is the jsonParsed form of the platform config.
type PlatformView struct {
	Address               string  `json:"address"`
	Admin                 string  `json:"admin"`
	GameAuthority         string  `json:"gameAuthority"`
	Treasury              string  `json:"treasury"`
	FeeBps                uint16  `json:"feeBps"`
	FeePercent            string  `json:"feePercent"`
	Paused                bool    `json:"paused"`
	TotalMatches          uint64  `json:"totalMatches"`
	MatchesCompleted      uint64  `json:"matchesCompleted"`
	TotalVolume           uint64  `json:"totalVolume"`
	TotalVolumeSol        string  `json:"totalVolumeSol"`
	TotalFeesCollected    uint64  `json:"totalFeesCollected"`
	TotalFeesCollectedSol string  `json:"totalFeesCollectedSol"`
	TreasuryBalance       *uint64 `json:"treasuryBalance,omitempty"`
	WithdrawableFees      *uint64 `json:"withdrawableFees,omitempty"`
}

// MatchView is the jsonParsed form of a game match.
type MatchView struct {
	Address       string  `json:"address"`
	Escrow        string  `json:"escrow"`
	MatchID       string  `json:"matchId"`
	Player1       string  `json:"player1"`
	Player2       *string `json:"player2"`
	StakeAmount   uint64  `json:"stakeAmount"`
	StakeSol      string  `json:"stakeSol"`
	Status        string  `json:"status"`
	Winner        *string `json:"winner"`
	CreatedAt     int64   `json:"createdAt"`
	StartedAt     int64   `json:"startedAt"`
	EndedAt       int64   `json:"endedAt"`
	ExpiresAt     int64   `json:"expiresAt"`
	Expired       bool    `json:"expired"`
	FeeAmount     uint64  `json:"feeAmount"`
	PrizeAmount   uint64  `json:"prizeAmount"`
	EscrowBalance *uint64 `json:"escrowBalance,omitempty"`
}

// ParsedAccountData is the jsonParsed envelope for duel program accounts.
type ParsedAccountData struct {
	Program string       `json:"program"`
	Parsed  ParsedRecord `json:"parsed"`
	Space   uint64       `json:"space"`
}

// ParsedRecord names the record type and carries its fields.
type ParsedRecord struct {
	Type string      `json:"type"`
	Info interface{} `json:"info"`
}

func optionalKey(pk types.Pubkey) *string {
	if pk.IsZero() {
		return nil
	}
	s := pk.String()
	return &s
}

// NewPlatformView renders a platform config record.
func NewPlatformView(address types.Pubkey, cfg *duel.PlatformConfig) *PlatformView {
	return &PlatformView{
		Address:               address.String(),
		Admin:                 cfg.Admin.String(),
		GameAuthority:         cfg.GameAuthority.String(),
		Treasury:              cfg.Treasury.String(),
		FeeBps:                cfg.FeeBps,
		FeePercent:            decimal.New(int64(cfg.FeeBps), -2).String(),
		Paused:                cfg.Paused,
		TotalMatches:          cfg.TotalMatches,
		MatchesCompleted:      cfg.MatchesCompleted,
		TotalVolume:           cfg.TotalVolume,
		TotalVolumeSol:        types.FormatSol(cfg.TotalVolume),
		TotalFeesCollected:    cfg.TotalFeesCollected,
		TotalFeesCollectedSol: types.FormatSol(cfg.TotalFeesCollected),
	}
}

// NewMatchView renders a match record; now decides the expired flag.
func NewMatchView(address types.Pubkey, m *duel.GameMatch, now int64) *MatchView {
	view := &MatchView{
		Address:     address.String(),
		MatchID:     hex.EncodeToString(m.MatchID[:]),
		Player1:     m.Player1.String(),
		Player2:     optionalKey(m.Player2),
		StakeAmount: m.StakeAmount,
		StakeSol:    types.FormatSol(m.StakeAmount),
		Status:      m.Status.String(),
		Winner:      optionalKey(m.Winner),
		CreatedAt:   m.CreatedAt,
		StartedAt:   m.StartedAt,
		EndedAt:     m.EndedAt,
		ExpiresAt:   m.CreatedAt + duel.MatchExpiration,
		Expired:     m.IsExpired(now),
		FeeAmount:   m.FeeAmount,
		PrizeAmount: m.PrizeAmount,
	}
	if escrow, _, err := duel.EscrowAddress(address); err == nil {
		view.Escrow = escrow.String()
	}
	return view
}

// parseAccount renders duel records for the jsonParsed encoding.
func (s *Server) parseAccount(pubkey types.Pubkey, account *accounts.Account) (*ParsedAccountData, bool) {
	if account.Owner != duel.ProgramID || len(account.Data) < duel.DiscriminatorSize {
		return nil, false
	}
	out := &ParsedAccountData{Program: "x1-duel", Space: uint64(len(account.Data))}
	disc := account.Data[:duel.DiscriminatorSize]
	switch {
	case bytes.Equal(disc, duel.PlatformConfigDiscriminator[:]):
		cfg, err := duel.DecodePlatformConfig(account.Data)
		if err != nil {
			return nil, false
		}
		out.Parsed = ParsedRecord{Type: "platformConfig", Info: NewPlatformView(pubkey, cfg)}
	case bytes.Equal(disc, duel.GameMatchDiscriminator[:]):
		m, err := duel.DecodeGameMatch(account.Data)
		if err != nil {
			return nil, false
		}
		out.Parsed = ParsedRecord{Type: "gameMatch", Info: NewMatchView(pubkey, m, s.now())}
	case duel.IsVault(account.Data):
		out.Parsed = ParsedRecord{Type: "vault", Info: map[string]uint64{"lamports": account.Lamports}}
	default:
		return nil, false
	}
	return out, true
}

func (s *Server) now() int64 {
	if s.executor != nil {
		return s.executor.Clock().Now()
	}
	return 0
}

// getPlatformConfig returns the platform config with treasury balances, or
// null before InitializePlatform.
func (s *Server) getPlatformConfig(params json.RawMessage) (interface{}, *RPCError) {
	currentSlot := s.currentSlot()
	address, _, err := duel.PlatformConfigAddress()
	if err != nil {
		return nil, InternalServerErrorf("derive platform config: %v", err)
	}
	account, err := s.accountsDB.GetAccount(address)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return ResponseWithContext{Context: Context{Slot: currentSlot}, Value: nil}, nil
	}
	if err != nil {
		return nil, InternalServerErrorf("failed to get account: %v", err)
	}
	cfg, err := duel.DecodePlatformConfig(account.Data)
	if err != nil {
		return nil, InternalServerErrorf("failed to decode platform config: %v", err)
	}

	view := NewPlatformView(address, cfg)
	balance, rpcErr := s.balanceOf(cfg.Treasury)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var withdrawable uint64
	if reserve := s.executor.Rent().MinimumBalance(duel.VaultSize); balance > reserve {
		withdrawable = balance - reserve
	}
	view.TreasuryBalance = &balance
	view.WithdrawableFees = &withdrawable

	return ResponseWithContext{Context: Context{Slot: currentSlot}, Value: view}, nil
}

// getMatch looks a match up by account address (base58) or by match id
// (64 hex characters).
func (s *Server) getMatch(params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params, 1, "match")
	if rpcErr != nil {
		return nil, rpcErr
	}
	var ref string
	if err := json.Unmarshal(args[0], &ref); err != nil {
		return nil, InvalidParamsError("invalid match reference")
	}
	address, rpcErr := resolveMatch(ref)
	if rpcErr != nil {
		return nil, rpcErr
	}

	currentSlot := s.currentSlot()
	account, err := s.accountsDB.GetAccount(address)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return ResponseWithContext{Context: Context{Slot: currentSlot}, Value: nil}, nil
	}
	if err != nil {
		return nil, InternalServerErrorf("failed to get account: %v", err)
	}
	if account.Owner != duel.ProgramID {
		return nil, InvalidParamsError("account is not a duel match")
	}
	m, err := duel.DecodeGameMatch(account.Data)
	if err != nil {
		return nil, InvalidParamsErrorf("account is not a duel match: %v", err)
	}

	view := NewMatchView(address, m, s.now())
	if escrow, err := types.PubkeyFromBase58(view.Escrow); err == nil {
		balance, rpcErr := s.balanceOf(escrow)
		if rpcErr != nil {
			return nil, rpcErr
		}
		view.EscrowBalance = &balance
	}
	return ResponseWithContext{Context: Context{Slot: currentSlot}, Value: view}, nil
}

func resolveMatch(ref string) (types.Pubkey, *RPCError) {
	if len(ref) == 64 {
		raw, err := hex.DecodeString(strings.ToLower(ref))
		if err == nil {
			var id [32]byte
			copy(id[:], raw)
			address, _, err := duel.MatchAddress(id)
			if err != nil {
				return types.Pubkey{}, InternalServerErrorf("derive match address: %v", err)
			}
			return address, nil
		}
	}
	address, err := types.PubkeyFromBase58(ref)
	if err != nil {
		return types.Pubkey{}, InvalidParamsError("match must be an address or a 32-byte hex match id")
	}
	return address, nil
}

// getOpenMatches lists joinable matches, oldest first.
func (s *Server) getOpenMatches(params json.RawMessage) (interface{}, *RPCError) {
	var config struct {
		Limit int `json:"limit,omitempty"`
	}
	args, rpcErr := parseArgs(params, 0, "")
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := parseConfig(args, 0, &config); rpcErr != nil {
		return nil, rpcErr
	}

	currentSlot := s.currentSlot()
	now := s.now()
	open := []*MatchView{}
	err := s.accountsDB.IterateAccounts(func(pubkey types.Pubkey, account *accounts.Account) error {
		if account.Owner != duel.ProgramID || len(account.Data) != duel.GameMatchSize {
			return nil
		}
		if duel.MatchStatus(account.Data[duel.GameMatchStatusOffset]) != duel.StatusWaitingForOpponent {
			return nil
		}
		m, err := duel.DecodeGameMatch(account.Data)
		if err != nil || m.IsExpired(now) {
			return nil
		}
		open = append(open, NewMatchView(pubkey, m, now))
		return nil
	})
	if err != nil {
		return nil, NewRPCError(ScanError, err.Error())
	}

	sort.SliceStable(open, func(i, j int) bool { return open[i].CreatedAt < open[j].CreatedAt })
	if config.Limit > 0 && len(open) > config.Limit {
		open = open[:config.Limit]
	}
	return ResponseWithContext{Context: Context{Slot: currentSlot}, Value: open}, nil
}

// getMatchHistory queries the SQL history index.
func (s *Server) getMatchHistory(params json.RawMessage) (interface{}, *RPCError) {
	if s.history == nil {
		return nil, ErrHistoryNotAvailable
	}
	args, rpcErr := parseArgs(params, 0, "")
	if rpcErr != nil {
		return nil, rpcErr
	}
	var config MatchHistoryConfig
	if rpcErr := parseConfig(args, 0, &config); rpcErr != nil {
		return nil, rpcErr
	}

	q := history.Query{Status: config.Status, Limit: config.Limit, Offset: config.Offset}
	var stats *history.PlayerStats
	if config.Player != "" {
		player, err := types.PubkeyFromBase58(config.Player)
		if err != nil {
			return nil, InvalidParamsError("invalid player")
		}
		q.Player = &player
		if stats, err = s.history.GetPlayerStats(player); err != nil {
			return nil, InternalServerErrorf("failed to load player stats: %v", err)
		}
	}

	matches, err := s.history.ListMatches(q)
	if err != nil {
		return nil, InternalServerErrorf("failed to query history: %v", err)
	}
	if matches == nil {
		matches = []*history.Match{}
	}
	return map[string]interface{}{
		"matches": matches,
		"stats":   stats,
	}, nil
}
