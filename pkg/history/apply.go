package history

import (
	"encoding/hex"
	"fmt"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/events"
	"github.com/fortiblox/X1-Duel/pkg/svm/programs/duel"
)

// Apply folds one committed event into the history tables. Events from
// other programs and platform-level events without a row are ignored.
func (s *Store) Apply(ev events.Event) error {
	if ev.Program != duel.ProgramID {
		return nil
	}
	sig := ev.Signature.String()
	slot := int64(ev.Slot)

	switch p := ev.Payload.(type) {
	case duel.MatchCreated:
		_, err := s.exec(`INSERT INTO matches
			(match_address, match_id, player1, stake_amount, status, created_at, created_slot, updated_slot, last_signature)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (match_address) DO NOTHING`,
			p.Match.String(), hex.EncodeToString(p.MatchID[:]), p.Player1.String(),
			int64(p.StakeAmount), duel.StatusWaitingForOpponent.String(), p.CreatedAt, slot, slot, sig)
		return err

	case duel.MatchJoined:
		return s.update(p.Match, `UPDATE matches SET player2 = ?, status = ?, started_at = ?, updated_slot = ?, last_signature = ?
			WHERE match_address = ?`,
			p.Player2.String(), duel.StatusInProgress.String(), p.StartedAt, slot, sig, p.Match.String())

	case duel.MatchCancelled:
		return s.update(p.Match, `UPDATE matches SET status = ?, refunded = ?, ended_at = ?, updated_slot = ?, last_signature = ?
			WHERE match_address = ?`,
			duel.StatusCancelled.String(), int64(p.Refunded), ev.BlockTime, slot, sig, p.Match.String())

	case duel.ResultSubmitted:
		return s.update(p.Match, `UPDATE matches SET status = ?, winner = ?, fee_amount = ?, prize_amount = ?, ended_at = ?, updated_slot = ?, last_signature = ?
			WHERE match_address = ?`,
			duel.StatusCompleted.String(), p.Winner.String(), int64(p.FeeAmount), int64(p.PrizeAmount), p.EndedAt, slot, sig, p.Match.String())

	case duel.WinningsClaimed:
		return s.update(p.Match, `UPDATE matches SET status = ?, claimed_at = ?, updated_slot = ?, last_signature = ?
			WHERE match_address = ?`,
			duel.StatusClaimed.String(), ev.BlockTime, slot, sig, p.Match.String())

	case duel.FeesWithdrawn:
		_, err := s.exec(`INSERT INTO treasury_withdrawals (signature, destination, amount, slot, block_time)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (signature) DO NOTHING`,
			sig, p.Destination.String(), int64(p.Amount), slot, ev.BlockTime)
		return err
	}
	return nil
}

func (s *Store) update(match types.Pubkey, query string, args ...interface{}) error {
	res, err := s.exec(query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, match)
	}
	return nil
}
