package duel_test

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/accounts"
	"github.com/fortiblox/X1-Duel/pkg/events"
	"github.com/fortiblox/X1-Duel/pkg/runtime"
	"github.com/fortiblox/X1-Duel/pkg/svm"
	"github.com/fortiblox/X1-Duel/pkg/svm/programs/duel"
	"github.com/fortiblox/X1-Duel/pkg/svm/programs/system"
)

const sol = 1_000_000_000

type env struct {
	t         *testing.T
	db        *accounts.MemoryDB
	clock     *runtime.ManualClock
	exec      *runtime.Executor
	emitter   *events.Emitter
	admin     *types.Keypair
	authority *types.Keypair
	p1, p2    *types.Keypair
	nonce     uint64
	seq       int
	published []events.Event
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		t:       t,
		db:      accounts.NewMemoryDB(),
		clock:   runtime.NewManualClock(1_700_000_000),
		emitter: events.NewEmitter(),
	}
	e.emitter.Subscribe(events.Wildcard, func(ev events.Event) { e.published = append(e.published, ev) })
	e.exec = runtime.NewExecutor(e.db, e.clock, nil, e.emitter, runtime.DefaultConfig(),
		system.NewProcessor(), duel.NewProcessor())
	e.admin = e.wallet(100 * sol)
	e.authority = e.wallet(sol)
	e.p1 = e.wallet(1000 * sol)
	e.p2 = e.wallet(1000 * sol)
	return e
}

// newPlatform returns an env with the platform already initialized.
func newPlatform(t *testing.T) *env {
	e := newEnv(t)
	ix, err := duel.NewInitializePlatformInstruction(duel.InitializePlatformAccounts{
		Admin:         e.admin.Public,
		GameAuthority: e.authority.Public,
	})
	require.NoError(t, err)
	e.ok(e.send(e.admin, ix))
	return e
}

func (e *env) wallet(lamports uint64) *types.Keypair {
	kp, err := types.NewKeypair()
	require.NoError(e.t, err)
	require.NoError(e.t, e.db.SetAccount(kp.Public, &accounts.Account{Lamports: lamports, Owner: types.SystemProgramAddr}))
	return kp
}

func (e *env) send(signer *types.Keypair, ixs ...svm.Instruction) *runtime.Receipt {
	e.t.Helper()
	e.nonce++
	tx := runtime.NewTransaction(signer.Public, e.clock.Now(), e.nonce, ixs...)
	require.NoError(e.t, tx.Sign(signer))
	r, err := e.exec.Execute(tx)
	require.NoError(e.t, err)
	return r
}

func (e *env) ok(r *runtime.Receipt) {
	e.t.Helper()
	require.True(e.t, r.Succeeded(), "transaction failed: %v\n%v", r.Err, r.Logs)
}

func (e *env) fails(r *runtime.Receipt, want *duel.ProgramError) {
	e.t.Helper()
	require.False(e.t, r.Succeeded(), "expected %s", want.Name)
	code, ok := r.ProgramErrorCode()
	require.True(e.t, ok, "expected program error %s, got %v", want.Name, r.Err)
	assert.Equal(e.t, want.Code, code, "got %s, want %s", r.Err.Name, want.Name)
}

func (e *env) balance(key types.Pubkey) uint64 {
	acc, err := e.db.GetAccount(key)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return 0
	}
	require.NoError(e.t, err)
	return acc.Lamports
}

func (e *env) exists(key types.Pubkey) bool {
	ok, err := e.db.HasAccount(key)
	require.NoError(e.t, err)
	return ok
}

func (e *env) platform() *duel.PlatformConfig {
	addr, _, err := duel.PlatformConfigAddress()
	require.NoError(e.t, err)
	acc, err := e.db.GetAccount(addr)
	require.NoError(e.t, err)
	cfg, err := duel.DecodePlatformConfig(acc.Data)
	require.NoError(e.t, err)
	return cfg
}

func (e *env) match(id [32]byte) *duel.GameMatch {
	addr, _, err := duel.MatchAddress(id)
	require.NoError(e.t, err)
	acc, err := e.db.GetAccount(addr)
	require.NoError(e.t, err)
	m, err := duel.DecodeGameMatch(acc.Data)
	require.NoError(e.t, err)
	return m
}

func (e *env) escrow(id [32]byte) types.Pubkey {
	_, escrow, err := duel.MatchAddresses(id)
	require.NoError(e.t, err)
	return escrow
}

func (e *env) treasury() types.Pubkey {
	addr, _, err := duel.TreasuryAddress()
	require.NoError(e.t, err)
	return addr
}

func (e *env) newMatchID() [32]byte {
	e.seq++
	return sha256.Sum256([]byte(fmt.Sprintf("%s-%d", e.t.Name(), e.seq)))
}

func (e *env) create(player *types.Keypair, stake uint64, id [32]byte) *runtime.Receipt {
	ix, err := duel.NewCreateMatchInstruction(player.Public, duel.CreateMatchArgs{StakeAmount: stake, MatchID: id})
	require.NoError(e.t, err)
	return e.send(player, ix)
}

func (e *env) join(player *types.Keypair, id [32]byte) *runtime.Receipt {
	ix, err := duel.NewJoinMatchInstruction(player.Public, id)
	require.NoError(e.t, err)
	return e.send(player, ix)
}

func (e *env) cancel(player *types.Keypair, id [32]byte) *runtime.Receipt {
	ix, err := duel.NewCancelMatchInstruction(player.Public, id)
	require.NoError(e.t, err)
	return e.send(player, ix)
}

func (e *env) submit(signer *types.Keypair, id [32]byte, winner types.Pubkey) *runtime.Receipt {
	ix, err := duel.NewSubmitResultInstruction(signer.Public, id, winner)
	require.NoError(e.t, err)
	return e.send(signer, ix)
}

func (e *env) claim(player *types.Keypair, id [32]byte) *runtime.Receipt {
	ix, err := duel.NewClaimWinningsInstruction(player.Public, id)
	require.NoError(e.t, err)
	return e.send(player, ix)
}

func (e *env) update(signer *types.Keypair, args duel.UpdatePlatformArgs) *runtime.Receipt {
	ix, err := duel.NewUpdatePlatformInstruction(signer.Public, args)
	require.NoError(e.t, err)
	return e.send(signer, ix)
}

func (e *env) withdraw(signer *types.Keypair, dest types.Pubkey, amount uint64) *runtime.Receipt {
	ix, err := duel.NewWithdrawFeesInstruction(signer.Public, dest, amount)
	require.NoError(e.t, err)
	return e.send(signer, ix)
}

// started creates and joins a match.
func (e *env) started(stake uint64) [32]byte {
	id := e.newMatchID()
	e.ok(e.create(e.p1, stake, id))
	e.ok(e.join(e.p2, id))
	return id
}

func boolPtr(b bool) *bool { return &b }

func TestInitializePlatform(t *testing.T) {
	e := newPlatform(t)
	rent := accounts.DefaultRent()

	cfg := e.platform()
	assert.Equal(t, e.admin.Public, cfg.Admin)
	assert.Equal(t, e.authority.Public, cfg.GameAuthority)
	assert.Equal(t, e.treasury(), cfg.Treasury)
	assert.Equal(t, duel.DefaultFeeBps, cfg.FeeBps)
	assert.False(t, cfg.Paused)
	assert.Zero(t, cfg.TotalMatches)
	assert.Equal(t, rent.MinimumBalance(duel.VaultSize), e.balance(e.treasury()))
	assert.Equal(t, uint64(100*sol)-rent.MinimumBalance(duel.PlatformConfigSize)-rent.MinimumBalance(duel.VaultSize),
		e.balance(e.admin.Public))
}

func TestInitializePlatformTwiceFails(t *testing.T) {
	e := newPlatform(t)
	before := e.platform()

	other := e.wallet(10 * sol)
	ix, err := duel.NewInitializePlatformInstruction(duel.InitializePlatformAccounts{
		Admin:         other.Public,
		GameAuthority: other.Public,
	})
	require.NoError(t, err)
	r := e.send(other, ix)

	require.False(t, r.Succeeded())
	assert.Contains(t, r.Err.Message, system.ErrAccountAlreadyInUse.Error())
	assert.Equal(t, before, e.platform())
	assert.Equal(t, uint64(10*sol), e.balance(other.Public))
}

func TestEndToEndScenario(t *testing.T) {
	e := newPlatform(t)
	rent := accounts.DefaultRent()
	const stake = 100_000_000
	id := e.newMatchID()

	p1Start := e.balance(e.p1.Public)
	e.ok(e.create(e.p1, stake, id))
	escrow := e.escrow(id)
	assert.Equal(t, stake+rent.MinimumBalance(duel.VaultSize), e.balance(escrow))
	assert.Equal(t, p1Start-stake-rent.MinimumBalance(duel.GameMatchSize)-rent.MinimumBalance(duel.VaultSize),
		e.balance(e.p1.Public))
	m := e.match(id)
	assert.Equal(t, duel.StatusWaitingForOpponent, m.Status)
	assert.Equal(t, e.clock.Now(), m.CreatedAt)
	assert.Equal(t, uint64(1), e.platform().TotalMatches)

	e.clock.Advance(30 * time.Second)
	e.ok(e.join(e.p2, id))
	assert.Equal(t, 2*stake+rent.MinimumBalance(duel.VaultSize), e.balance(escrow))
	m = e.match(id)
	assert.Equal(t, duel.StatusInProgress, m.Status)
	assert.Equal(t, e.p2.Public, m.Player2)
	assert.Equal(t, e.clock.Now(), m.StartedAt)

	e.clock.Advance(time.Minute)
	e.ok(e.submit(e.authority, id, e.p1.Public))
	m = e.match(id)
	assert.Equal(t, duel.StatusCompleted, m.Status)
	assert.Equal(t, uint64(5_000_000), m.FeeAmount)
	assert.Equal(t, uint64(195_000_000), m.PrizeAmount)
	assert.Equal(t, uint64(2*stake), m.FeeAmount+m.PrizeAmount)
	cfg := e.platform()
	assert.Equal(t, uint64(1), cfg.MatchesCompleted)
	assert.Equal(t, uint64(2*stake), cfg.TotalVolume)
	assert.Equal(t, uint64(5_000_000), cfg.TotalFeesCollected)

	p1Before := e.balance(e.p1.Public)
	treasuryBefore := e.balance(e.treasury())
	e.ok(e.claim(e.p1, id))

	assert.Equal(t, p1Before+m.PrizeAmount+rent.MinimumBalance(duel.VaultSize), e.balance(e.p1.Public))
	assert.Equal(t, treasuryBefore+m.FeeAmount, e.balance(e.treasury()))
	assert.False(t, e.exists(escrow))
	assert.Equal(t, duel.StatusClaimed, e.match(id).Status)

	var names []string
	for _, ev := range e.published {
		names = append(names, ev.Name)
	}
	assert.Equal(t, []string{
		duel.EventPlatformInitialized,
		duel.EventMatchCreated,
		duel.EventMatchJoined,
		duel.EventResultSubmitted,
		duel.EventWinningsClaimed,
	}, names)
}

func TestCancelRefundsAndClosesEscrow(t *testing.T) {
	e := newPlatform(t)
	rent := accounts.DefaultRent()
	id := e.newMatchID()

	e.ok(e.create(e.p1, duel.MinStake, id))
	afterCreate := e.balance(e.p1.Public)
	escrow := e.escrow(id)

	e.fails(e.cancel(e.p2, id), duel.ErrOnlyCreatorCanCancel)
	e.ok(e.cancel(e.p1, id))

	assert.Equal(t, afterCreate+duel.MinStake+rent.MinimumBalance(duel.VaultSize), e.balance(e.p1.Public))
	assert.False(t, e.exists(escrow))
	assert.Equal(t, duel.StatusCancelled, e.match(id).Status)

	e.fails(e.cancel(e.p1, id), duel.ErrInvalidMatchState)
	e.fails(e.join(e.p2, id), duel.ErrInvalidMatchState)
}

func TestStateMachineRejectsOutOfOrder(t *testing.T) {
	e := newPlatform(t)
	id := e.newMatchID()
	e.ok(e.create(e.p1, sol, id))
	escrow := e.escrow(id)

	e.fails(e.submit(e.authority, id, e.p1.Public), duel.ErrInvalidMatchState)
	e.fails(e.claim(e.p1, id), duel.ErrInvalidMatchState)

	e.ok(e.join(e.p2, id))
	escrowBefore := e.balance(escrow)
	p1Before := e.balance(e.p1.Public)

	e.fails(e.claim(e.p1, id), duel.ErrInvalidMatchState)
	e.fails(e.cancel(e.p1, id), duel.ErrCannotCancelActiveMatch)
	assert.Equal(t, escrowBefore, e.balance(escrow))
	assert.Equal(t, p1Before, e.balance(e.p1.Public))

	e.ok(e.submit(e.authority, id, e.p2.Public))
	e.fails(e.submit(e.authority, id, e.p2.Public), duel.ErrInvalidMatchState)
	e.fails(e.cancel(e.p1, id), duel.ErrCannotCancelActiveMatch)
	e.fails(e.join(e.wallet(10*sol), id), duel.ErrMatchFull)

	e.ok(e.claim(e.p2, id))
	e.fails(e.claim(e.p2, id), duel.ErrInvalidMatchState)
	e.fails(e.cancel(e.p1, id), duel.ErrInvalidMatchState)
	e.fails(e.join(e.wallet(10*sol), id), duel.ErrInvalidMatchState)
}

func TestJoinGuards(t *testing.T) {
	e := newPlatform(t)
	id := e.newMatchID()
	e.ok(e.create(e.p1, sol, id))

	e.fails(e.join(e.p1, id), duel.ErrCannotJoinOwnMatch)

	e.ok(e.join(e.p2, id))
	e.fails(e.join(e.wallet(10*sol), id), duel.ErrMatchFull)
}

func TestJoinExpiredMatch(t *testing.T) {
	e := newPlatform(t)
	id := e.newMatchID()
	e.ok(e.create(e.p1, sol, id))

	e.clock.Advance(time.Duration(duel.MatchExpiration) * time.Second)
	e.ok(e.join(e.p2, id))

	id = e.newMatchID()
	e.ok(e.create(e.p1, sol, id))
	e.clock.Advance(time.Duration(duel.MatchExpiration+1) * time.Second)
	e.fails(e.join(e.p2, id), duel.ErrMatchExpired)
	e.ok(e.cancel(e.p1, id))
}

func TestStakeBounds(t *testing.T) {
	e := newPlatform(t)
	tests := []struct {
		stake uint64
		want  *duel.ProgramError
	}{
		{0, duel.ErrInvalidStakeAmount},
		{duel.MinStake - 1, duel.ErrStakeTooLow},
		{duel.MaxStake + 1, duel.ErrStakeTooHigh},
	}
	for _, tt := range tests {
		e.fails(e.create(e.p1, tt.stake, e.newMatchID()), tt.want)
	}
	assert.Zero(t, e.platform().TotalMatches)

	e.ok(e.create(e.p1, duel.MinStake, e.newMatchID()))
	e.ok(e.create(e.p1, duel.MaxStake, e.newMatchID()))
	assert.Equal(t, uint64(2), e.platform().TotalMatches)
}

func TestDuplicateMatchID(t *testing.T) {
	e := newPlatform(t)
	id := e.newMatchID()
	e.ok(e.create(e.p1, sol, id))

	r := e.create(e.p2, sol, id)
	require.False(t, r.Succeeded())
	assert.Contains(t, r.Err.Message, system.ErrAccountAlreadyInUse.Error())
	assert.Equal(t, e.p1.Public, e.match(id).Player1)
}

func (e *env) prefund(to types.Pubkey, lamports uint64) {
	e.t.Helper()
	donor := e.wallet(10 * sol)
	e.ok(e.send(donor, system.Transfer(donor.Public, to, lamports)))
}

func TestInitializePlatformOverFundedAddresses(t *testing.T) {
	e := newEnv(t)
	rent := accounts.DefaultRent()
	config, _, err := duel.PlatformConfigAddress()
	require.NoError(t, err)

	// The treasury already holds more than its rent minimum; the config
	// address holds less and needs a top-up.
	e.prefund(e.treasury(), 1_000_000)
	e.prefund(config, 900_000)

	ix, err := duel.NewInitializePlatformInstruction(duel.InitializePlatformAccounts{
		Admin:         e.admin.Public,
		GameAuthority: e.authority.Public,
	})
	require.NoError(t, err)
	e.ok(e.send(e.admin, ix))

	cfg := e.platform()
	assert.Equal(t, e.admin.Public, cfg.Admin)
	assert.Equal(t, e.treasury(), cfg.Treasury)
	assert.Equal(t, uint64(1_000_000), e.balance(e.treasury()))
	assert.Equal(t, rent.MinimumBalance(duel.PlatformConfigSize), e.balance(config))
	assert.Equal(t, uint64(100*sol)-(rent.MinimumBalance(duel.PlatformConfigSize)-900_000), e.balance(e.admin.Public))

	// Lamports above the treasury's rent minimum are withdrawable fees.
	spare := 1_000_000 - rent.MinimumBalance(duel.VaultSize)
	dest := e.wallet(sol)
	e.ok(e.withdraw(e.admin, dest.Public, spare))
	assert.Equal(t, uint64(sol)+spare, e.balance(dest.Public))
}

func TestCreateMatchOverFundedAddresses(t *testing.T) {
	e := newPlatform(t)
	rent := accounts.DefaultRent()
	id := e.newMatchID()
	gameMatch, escrow, err := duel.MatchAddresses(id)
	require.NoError(t, err)

	e.prefund(gameMatch, 900_000)
	e.prefund(escrow, 2_000_000)

	before := e.balance(e.p1.Public)
	e.ok(e.create(e.p1, sol, id))

	m := e.match(id)
	assert.Equal(t, duel.StatusWaitingForOpponent, m.Status)
	assert.Equal(t, e.p1.Public, m.Player1)
	assert.Equal(t, uint64(2_000_000+sol), e.balance(escrow))
	assert.Equal(t, rent.MinimumBalance(duel.GameMatchSize), e.balance(gameMatch))
	assert.Equal(t, before-sol-(rent.MinimumBalance(duel.GameMatchSize)-900_000), e.balance(e.p1.Public))

	// Cancelling returns the stake and everything else the escrow held.
	e.ok(e.cancel(e.p1, id))
	assert.False(t, e.exists(escrow))
	assert.Equal(t, before-(rent.MinimumBalance(duel.GameMatchSize)-900_000)+2_000_000, e.balance(e.p1.Public))
}

func TestCreateMatchOnAllocatedAddressFails(t *testing.T) {
	e := newPlatform(t)
	id := e.newMatchID()
	e.ok(e.create(e.p1, sol, id))
	e.ok(e.cancel(e.p1, id))

	// The match record outlives its escrow, so the id stays taken.
	r := e.create(e.p1, sol, id)
	require.False(t, r.Succeeded())
	assert.Contains(t, r.Err.Message, system.ErrAccountAlreadyInUse.Error())
}

func TestAuthorization(t *testing.T) {
	e := newPlatform(t)
	id := e.started(sol)

	e.fails(e.submit(e.p1, id, e.p1.Public), duel.ErrUnauthorizedGameAuthority)
	e.fails(e.submit(e.authority, id, e.authority.Public), duel.ErrInvalidWinner)
	e.ok(e.submit(e.authority, id, e.p1.Public))

	e.fails(e.claim(e.p2, id), duel.ErrNotWinner)
	e.fails(e.update(e.p1, duel.UpdatePlatformArgs{Paused: boolPtr(true)}), duel.ErrUnauthorizedAdmin)
	e.fails(e.withdraw(e.p1, e.p1.Public, 1), duel.ErrUnauthorizedAdmin)
}

func TestPauseSemantics(t *testing.T) {
	e := newPlatform(t)
	claimed := e.started(sol)
	e.ok(e.submit(e.authority, claimed, e.p1.Public))
	e.ok(e.claim(e.p1, claimed))
	completed := e.started(sol)
	e.ok(e.submit(e.authority, completed, e.p1.Public))
	waiting := e.newMatchID()
	e.ok(e.create(e.p1, sol, waiting))

	e.ok(e.update(e.admin, duel.UpdatePlatformArgs{Paused: boolPtr(true)}))
	require.True(t, e.platform().Paused)

	e.fails(e.create(e.p1, sol, e.newMatchID()), duel.ErrPlatformPaused)
	e.fails(e.join(e.p2, waiting), duel.ErrPlatformPaused)
	e.fails(e.claim(e.p1, completed), duel.ErrPlatformPaused)

	e.ok(e.withdraw(e.admin, e.admin.Public, e.match(claimed).FeeAmount))
	e.ok(e.cancel(e.p1, waiting))

	e.ok(e.update(e.admin, duel.UpdatePlatformArgs{Paused: boolPtr(false)}))
	e.ok(e.claim(e.p1, completed))
}

func TestUpdatePlatformPartial(t *testing.T) {
	e := newPlatform(t)
	newAuthority := e.wallet(sol)

	e.ok(e.update(e.admin, duel.UpdatePlatformArgs{NewGameAuthority: &newAuthority.Public}))
	cfg := e.platform()
	assert.Equal(t, e.admin.Public, cfg.Admin)
	assert.Equal(t, newAuthority.Public, cfg.GameAuthority)
	assert.False(t, cfg.Paused)

	id := e.started(sol)
	e.fails(e.submit(e.authority, id, e.p1.Public), duel.ErrUnauthorizedGameAuthority)
	e.ok(e.submit(newAuthority, id, e.p1.Public))

	newAdmin := e.wallet(sol)
	e.ok(e.update(e.admin, duel.UpdatePlatformArgs{NewAdmin: &newAdmin.Public}))
	assert.Equal(t, newAdmin.Public, e.platform().Admin)
	assert.Equal(t, newAuthority.Public, e.platform().GameAuthority)
	e.fails(e.update(e.admin, duel.UpdatePlatformArgs{}), duel.ErrUnauthorizedAdmin)
}

func TestWithdrawFees(t *testing.T) {
	e := newPlatform(t)
	id := e.started(sol)
	e.ok(e.submit(e.authority, id, e.p2.Public))
	e.ok(e.claim(e.p2, id))

	fees := e.platform().TotalFeesCollected
	require.Equal(t, uint64(100_000_000), fees)

	e.fails(e.withdraw(e.admin, e.admin.Public, fees+1), duel.ErrInsufficientEscrowFunds)

	adminBefore := e.balance(e.admin.Public)
	e.ok(e.withdraw(e.admin, e.admin.Public, fees))
	assert.Equal(t, adminBefore+fees, e.balance(e.admin.Public))
	assert.Equal(t, accounts.DefaultRent().MinimumBalance(duel.VaultSize), e.balance(e.treasury()))

	e.ok(e.withdraw(e.admin, e.admin.Public, 0))
}

func TestAccountSubstitutionRejected(t *testing.T) {
	e := newPlatform(t)
	a := e.newMatchID()
	b := e.newMatchID()
	e.ok(e.create(e.p1, sol, a))
	e.ok(e.create(e.p1, 2*sol, b))

	ix, err := duel.NewJoinMatchInstruction(e.p2.Public, a)
	require.NoError(t, err)
	ix.Accounts[2].Pubkey = e.escrow(b)
	e.fails(e.send(e.p2, ix), duel.ErrConstraintSeeds)

	e.ok(e.join(e.p2, a))
	e.ok(e.submit(e.authority, a, e.p1.Public))
	ix, err = duel.NewClaimWinningsInstruction(e.p1.Public, a)
	require.NoError(t, err)
	ix.Accounts[3].Pubkey = e.p1.Public
	e.fails(e.send(e.p1, ix), duel.ErrConstraintHasOne)
	assert.True(t, e.exists(e.escrow(a)))
}

func TestUnsignedPlayerRejected(t *testing.T) {
	e := newPlatform(t)
	id := e.newMatchID()

	ix, err := duel.NewCreateMatchInstruction(e.p1.Public, duel.CreateMatchArgs{StakeAmount: sol, MatchID: id})
	require.NoError(t, err)
	ix.Accounts[3].IsSigner = false
	e.fails(e.send(e.p2, ix), duel.ErrConstraintSigner)
	assert.Equal(t, uint64(1000*sol), e.balance(e.p1.Public))
}

func TestUnknownInstruction(t *testing.T) {
	e := newPlatform(t)
	r := e.send(e.p1, svm.Instruction{ProgramID: duel.ProgramID, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}})
	e.fails(r, duel.ErrInstructionFallbackNotFound)
}
