// Package duel implements the two-player wagering escrow program.
//
// Two players deposit equal stakes into a per-match escrow PDA. A trusted
// game authority reports the winner, who then claims the pot minus the
// platform fee. Fees accumulate in a treasury PDA that the admin can drain.
//
// Every handler validates all of its accounts and guards before mutating
// anything. A failed guard returns a *ProgramError and the executor discards
// the whole transaction.
package duel

import (
	"fmt"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/svm"
)

// Processor executes duel program instructions.
type Processor struct{}

// NewProcessor creates the duel program.
func NewProcessor() *Processor {
	return &Processor{}
}

// ID returns the duel program address.
func (p *Processor) ID() types.Pubkey {
	return ProgramID
}

// Process decodes the instruction selector and dispatches to its handler.
func (p *Processor) Process(ctx svm.InvokeContext, data []byte) error {
	if err := ctx.ConsumeCU(svm.CUDuelProgramDefault); err != nil {
		return err
	}
	kind, dec, err := DecodeInstruction(data)
	if err != nil {
		return err
	}
	ctx.Log("Instruction: %s", kind.title())

	switch kind {
	case KindInitializePlatform:
		return p.initializePlatform(ctx)
	case KindCreateMatch:
		var args CreateMatchArgs
		if err := args.decode(dec); err != nil {
			return err
		}
		return p.createMatch(ctx, args)
	case KindJoinMatch:
		return p.joinMatch(ctx)
	case KindCancelMatch:
		return p.cancelMatch(ctx)
	case KindSubmitResult:
		var args SubmitResultArgs
		if err := args.decode(dec); err != nil {
			return err
		}
		return p.submitResult(ctx, args)
	case KindClaimWinnings:
		return p.claimWinnings(ctx)
	case KindUpdatePlatform:
		var args UpdatePlatformArgs
		if err := args.decode(dec); err != nil {
			return err
		}
		return p.updatePlatform(ctx, args)
	case KindWithdrawFees:
		var args WithdrawFeesArgs
		if err := args.decode(dec); err != nil {
			return err
		}
		return p.withdrawFees(ctx, args)
	}
	return fmt.Errorf("%w: %s", ErrInstructionFallbackNotFound, kind)
}

// title turns snake_case into the CamelCase used in program logs.
func (k InstructionKind) title() string {
	out := make([]byte, 0, len(k))
	upper := true
	for i := 0; i < len(k); i++ {
		c := k[i]
		if c == '_' {
			upper = true
			continue
		}
		if upper && c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper = false
		out = append(out, c)
	}
	return string(out)
}

var _ svm.Program = (*Processor)(nil)
