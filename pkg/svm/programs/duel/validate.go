package duel

import (
	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/pda"
	"github.com/fortiblox/X1-Duel/pkg/svm"
	"github.com/fortiblox/X1-Duel/pkg/svm/programs/system"
)

func accountsN(ctx svm.InvokeContext, n int) ([]*svm.AccountInfo, error) {
	accts := ctx.Accounts()
	if len(accts) < n {
		return nil, ErrAccountNotEnoughKeys
	}
	return accts[:n], nil
}

func requireSigner(info *svm.AccountInfo) error {
	if !info.IsSigner {
		return ErrConstraintSigner
	}
	return nil
}

func requireWritable(info *svm.AccountInfo) error {
	if !info.IsWritable {
		return ErrConstraintMut
	}
	return nil
}

func requireOwned(info *svm.AccountInfo) error {
	if !info.IsAllocated() {
		return ErrAccountNotInitialized
	}
	if info.Owner != ProgramID {
		return ErrAccountOwnedByWrongProgram
	}
	return nil
}

func verifySeeds(ctx svm.InvokeContext, key types.Pubkey, seeds [][]byte, bump uint8) error {
	if err := ctx.ConsumeCU(svm.CUCreateProgramAddress); err != nil {
		return err
	}
	if !pda.Verify(key, seeds, bump, ProgramID) {
		return ErrConstraintSeeds
	}
	return nil
}

// findAddress derives a PDA and checks it matches the supplied account.
func findAddress(ctx svm.InvokeContext, info *svm.AccountInfo, seeds [][]byte) (uint8, error) {
	if err := ctx.ConsumeCU(svm.CUCreateProgramAddress); err != nil {
		return 0, err
	}
	addr, bump, err := pda.FindProgramAddress(seeds, ProgramID)
	if err != nil {
		return 0, err
	}
	if addr != info.Key {
		return 0, ErrConstraintSeeds
	}
	return bump, nil
}

func loadPlatform(ctx svm.InvokeContext, info *svm.AccountInfo) (*PlatformConfig, error) {
	if err := requireOwned(info); err != nil {
		return nil, err
	}
	cfg, err := DecodePlatformConfig(info.Data)
	if err != nil {
		return nil, err
	}
	if err := verifySeeds(ctx, info.Key, platformConfigSeeds(), cfg.Bump); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadMatch(ctx svm.InvokeContext, info *svm.AccountInfo) (*GameMatch, error) {
	if err := requireOwned(info); err != nil {
		return nil, err
	}
	m, err := DecodeGameMatch(info.Data)
	if err != nil {
		return nil, err
	}
	if err := verifySeeds(ctx, info.Key, matchSeeds(m.MatchID), m.Bump); err != nil {
		return nil, err
	}
	return m, nil
}

func checkEscrow(ctx svm.InvokeContext, info *svm.AccountInfo, gameMatch types.Pubkey, m *GameMatch) error {
	if err := verifySeeds(ctx, info.Key, escrowSeeds(gameMatch), m.EscrowBump); err != nil {
		return err
	}
	if err := requireOwned(info); err != nil {
		return err
	}
	if !IsVault(info.Data) {
		return ErrAccountDiscriminatorMismatch
	}
	return nil
}

func checkTreasury(info *svm.AccountInfo, cfg *PlatformConfig) error {
	if info.Key != cfg.Treasury {
		return ErrConstraintHasOne
	}
	if err := requireOwned(info); err != nil {
		return err
	}
	if !IsVault(info.Data) {
		return ErrAccountDiscriminatorMismatch
	}
	return nil
}

func storePlatform(info *svm.AccountInfo, cfg *PlatformConfig) error {
	data, err := EncodePlatformConfig(cfg)
	if err != nil {
		return err
	}
	info.Data = data
	return nil
}

func storeMatch(info *svm.AccountInfo, m *GameMatch) error {
	data, err := EncodeGameMatch(m)
	if err != nil {
		return err
	}
	info.Data = data
	return nil
}

func requireUnallocated(ctx svm.InvokeContext, info *svm.AccountInfo) error {
	if info.IsAllocated() {
		ctx.Log("Allocate: account %s already in use", info.Key)
		return system.ErrAccountAlreadyInUse
	}
	return nil
}

// createPDA makes target a rent-exempt account of space bytes owned by this
// program, paid for by payer and signed for with seeds. A target that already
// holds lamports is topped up to the rent minimum, then allocated and
// assigned.
func createPDA(ctx svm.InvokeContext, payer, target *svm.AccountInfo, space uint64, seeds [][]byte) error {
	signer := [][][]byte{seeds}
	required := ctx.Rent().MinimumBalance(space)
	if target.Lamports == 0 {
		return ctx.Invoke(system.CreateAccount(payer.Key, target.Key, required, space, ProgramID), signer)
	}

	if target.Lamports < required {
		ctx.Log("Allocate: topping up %s by %d lamports", target.Key, required-target.Lamports)
		if err := ctx.Invoke(system.Transfer(payer.Key, target.Key, required-target.Lamports), nil); err != nil {
			return err
		}
	}
	if err := ctx.Invoke(system.Allocate(target.Key, space), signer); err != nil {
		return err
	}
	return ctx.Invoke(system.Assign(target.Key, ProgramID), signer)
}

// debit moves lamports out of an account owned by this program.
func debit(from, to *svm.AccountInfo, lamports uint64) error {
	if from.Key == to.Key {
		return nil
	}
	left, ok := svm.CheckedSub(from.Lamports, lamports)
	if !ok {
		return ErrInsufficientEscrowFunds
	}
	credited, ok := svm.CheckedAdd(to.Lamports, lamports)
	if !ok {
		return ErrOverflow
	}
	from.Lamports = left
	to.Lamports = credited
	return nil
}

// closeInto drains an account into dest and hands it back to the system program.
func closeInto(info, dest *svm.AccountInfo) error {
	if err := debit(info, dest, info.Lamports); err != nil {
		return err
	}
	info.Data = nil
	info.Owner = types.SystemProgramAddr
	return nil
}

func checkedIncr(v *uint64, by uint64) error {
	sum, ok := svm.CheckedAdd(*v, by)
	if !ok {
		return ErrOverflow
	}
	*v = sum
	return nil
}
