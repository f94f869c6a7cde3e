package duel

import "github.com/fortiblox/X1-Duel/internal/types"

// Event names.
const (
	EventPlatformInitialized = "PlatformInitialized"
	EventMatchCreated        = "MatchCreated"
	EventMatchJoined         = "MatchJoined"
	EventMatchCancelled      = "MatchCancelled"
	EventResultSubmitted     = "ResultSubmitted"
	EventWinningsClaimed     = "WinningsClaimed"
	EventPlatformUpdated     = "PlatformUpdated"
	EventFeesWithdrawn       = "FeesWithdrawn"
)

type PlatformInitialized struct {
	Admin         types.Pubkey `json:"admin"`
	GameAuthority types.Pubkey `json:"gameAuthority"`
	Treasury      types.Pubkey `json:"treasury"`
	FeeBps        uint16       `json:"feeBps"`
}

type MatchCreated struct {
	Match       types.Pubkey `json:"match"`
	MatchID     [32]byte     `json:"matchId"`
	Player1     types.Pubkey `json:"player1"`
	StakeAmount uint64       `json:"stakeAmount"`
	CreatedAt   int64        `json:"createdAt"`
}

type MatchJoined struct {
	Match     types.Pubkey `json:"match"`
	MatchID   [32]byte     `json:"matchId"`
	Player1   types.Pubkey `json:"player1"`
	Player2   types.Pubkey `json:"player2"`
	Pot       uint64       `json:"pot"`
	StartedAt int64        `json:"startedAt"`
}

type MatchCancelled struct {
	Match    types.Pubkey `json:"match"`
	MatchID  [32]byte     `json:"matchId"`
	Player1  types.Pubkey `json:"player1"`
	Refunded uint64       `json:"refunded"`
}

type ResultSubmitted struct {
	Match       types.Pubkey `json:"match"`
	MatchID     [32]byte     `json:"matchId"`
	Winner      types.Pubkey `json:"winner"`
	FeeAmount   uint64       `json:"feeAmount"`
	PrizeAmount uint64       `json:"prizeAmount"`
	EndedAt     int64        `json:"endedAt"`
}

type WinningsClaimed struct {
	Match       types.Pubkey `json:"match"`
	MatchID     [32]byte     `json:"matchId"`
	Winner      types.Pubkey `json:"winner"`
	PrizeAmount uint64       `json:"prizeAmount"`
	FeeAmount   uint64       `json:"feeAmount"`
}

type PlatformUpdated struct {
	Admin         types.Pubkey `json:"admin"`
	GameAuthority types.Pubkey `json:"gameAuthority"`
	Paused        bool         `json:"paused"`
}

type FeesWithdrawn struct {
	Destination types.Pubkey `json:"destination"`
	Amount      uint64       `json:"amount"`
}
