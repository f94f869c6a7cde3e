package history

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fortiblox/X1-Duel/internal/types"
)

// MaxLimit caps the number of rows a single query returns.
const MaxLimit = 500

// Match is one row of the match history.
type Match struct {
	Address       types.Pubkey  `json:"address"`
	MatchID       string        `json:"matchId"`
	Player1       types.Pubkey  `json:"player1"`
	Player2       *types.Pubkey `json:"player2"`
	StakeAmount   uint64        `json:"stakeAmount"`
	Status        string        `json:"status"`
	Winner        *types.Pubkey `json:"winner"`
	FeeAmount     uint64        `json:"feeAmount"`
	PrizeAmount   uint64        `json:"prizeAmount"`
	Refunded      uint64        `json:"refunded"`
	CreatedAt     int64         `json:"createdAt"`
	StartedAt     int64         `json:"startedAt"`
	EndedAt       int64         `json:"endedAt"`
	ClaimedAt     int64         `json:"claimedAt"`
	CreatedSlot   uint64        `json:"createdSlot"`
	UpdatedSlot   uint64        `json:"updatedSlot"`
	LastSignature string        `json:"lastSignature"`
}

// Query filters ListMatches. Zero values match everything.
type Query struct {
	Player *types.Pubkey
	Status string
	Limit  int
	Offset int
}

// PlayerStats aggregates a player's finished matches.
type PlayerStats struct {
	Player   types.Pubkey `json:"player"`
	Played   uint64       `json:"played"`
	Won      uint64       `json:"won"`
	Lost     uint64       `json:"lost"`
	Wagered  uint64       `json:"wagered"`
	Winnings uint64       `json:"winnings"`
}

const matchColumns = `match_address, match_id, player1, player2, stake_amount, status, winner,
	fee_amount, prize_amount, refunded, created_at, started_at, ended_at, claimed_at,
	created_slot, updated_slot, last_signature`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMatch(row scanner) (*Match, error) {
	var (
		m                              Match
		addr, player1, player2, winner string
		stake, fee, prize, refunded    int64
		createdSlot, updatedSlot       int64
	)
	err := row.Scan(&addr, &m.MatchID, &player1, &player2, &stake, &m.Status, &winner,
		&fee, &prize, &refunded, &m.CreatedAt, &m.StartedAt, &m.EndedAt, &m.ClaimedAt,
		&createdSlot, &updatedSlot, &m.LastSignature)
	if err != nil {
		return nil, err
	}
	if m.Address, err = types.PubkeyFromBase58(addr); err != nil {
		return nil, fmt.Errorf("match address: %w", err)
	}
	if m.Player1, err = types.PubkeyFromBase58(player1); err != nil {
		return nil, fmt.Errorf("player1: %w", err)
	}
	if m.Player2, err = optionalPubkey(player2); err != nil {
		return nil, fmt.Errorf("player2: %w", err)
	}
	if m.Winner, err = optionalPubkey(winner); err != nil {
		return nil, fmt.Errorf("winner: %w", err)
	}
	m.StakeAmount = uint64(stake)
	m.FeeAmount = uint64(fee)
	m.PrizeAmount = uint64(prize)
	m.Refunded = uint64(refunded)
	m.CreatedSlot = uint64(createdSlot)
	m.UpdatedSlot = uint64(updatedSlot)
	return &m, nil
}

func optionalPubkey(s string) (*types.Pubkey, error) {
	if s == "" {
		return nil, nil
	}
	pk, err := types.PubkeyFromBase58(s)
	if err != nil {
		return nil, err
	}
	return &pk, nil
}

// GetMatch returns the history row of a match account.
func (s *Store) GetMatch(address types.Pubkey) (*Match, error) {
	m, err := scanMatch(s.queryRow(`SELECT `+matchColumns+` FROM matches WHERE match_address = ?`, address.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// ListMatches returns matches newest first.
func (s *Store) ListMatches(q Query) ([]*Match, error) {
	var (
		where []string
		args  []interface{}
	)
	if q.Player != nil {
		where = append(where, "(player1 = ? OR player2 = ?)")
		args = append(args, q.Player.String(), q.Player.String())
	}
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, q.Status)
	}
	limit := q.Limit
	if limit <= 0 || limit > MaxLimit {
		limit = MaxLimit
	}

	stmt := `SELECT ` + matchColumns + ` FROM matches`
	if len(where) > 0 {
		stmt += ` WHERE ` + strings.Join(where, " AND ")
	}
	stmt += ` ORDER BY created_slot DESC LIMIT ? OFFSET ?`
	args = append(args, limit, q.Offset)

	rows, err := s.query(stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetPlayerStats aggregates the completed and claimed matches of player.
func (s *Store) GetPlayerStats(player types.Pubkey) (*PlayerStats, error) {
	pk := player.String()
	var played, won, wagered, winnings int64
	err := s.queryRow(`SELECT
			COUNT(*),
			CAST(COALESCE(SUM(CASE WHEN winner = ? THEN 1 ELSE 0 END), 0) AS BIGINT),
			CAST(COALESCE(SUM(stake_amount), 0) AS BIGINT),
			CAST(COALESCE(SUM(CASE WHEN winner = ? THEN prize_amount ELSE 0 END), 0) AS BIGINT)
		FROM matches
		WHERE (player1 = ? OR player2 = ?) AND winner <> ''`,
		pk, pk, pk, pk).Scan(&played, &won, &wagered, &winnings)
	if err != nil {
		return nil, err
	}
	return &PlayerStats{
		Player:   player,
		Played:   uint64(played),
		Won:      uint64(won),
		Lost:     uint64(played - won),
		Wagered:  uint64(wagered),
		Winnings: uint64(winnings),
	}, nil
}

// TotalWithdrawn returns the sum of all treasury withdrawals.
func (s *Store) TotalWithdrawn() (uint64, error) {
	var total int64
	if err := s.queryRow(`SELECT CAST(COALESCE(SUM(amount), 0) AS BIGINT) FROM treasury_withdrawals`).Scan(&total); err != nil {
		return 0, err
	}
	return uint64(total), nil
}
