package duel

import (
	"github.com/fortiblox/X1-Duel/pkg/pda"
	"github.com/fortiblox/X1-Duel/pkg/svm"
	"github.com/fortiblox/X1-Duel/pkg/svm/programs/system"
)

// createMatch: [0] platformConfig, [1] gameMatch, [2] escrow, [3] player1.
func (p *Processor) createMatch(ctx svm.InvokeContext, args CreateMatchArgs) error {
	accts, err := accountsN(ctx, 4)
	if err != nil {
		return err
	}
	config, gameMatch, escrow, player1 := accts[0], accts[1], accts[2], accts[3]

	cfg, err := loadPlatform(ctx, config)
	if err != nil {
		return err
	}
	if cfg.Paused {
		return ErrPlatformPaused
	}
	matchBump, err := findAddress(ctx, gameMatch, matchSeeds(args.MatchID))
	if err != nil {
		return err
	}
	if err := requireUnallocated(ctx, gameMatch); err != nil {
		return err
	}
	escrowBump, err := findAddress(ctx, escrow, escrowSeeds(gameMatch.Key))
	if err != nil {
		return err
	}
	if err := requireUnallocated(ctx, escrow); err != nil {
		return err
	}
	for _, info := range []*svm.AccountInfo{config, gameMatch, escrow, player1} {
		if err := requireWritable(info); err != nil {
			return err
		}
	}
	if err := requireSigner(player1); err != nil {
		return err
	}
	if err := ValidateStake(args.StakeAmount); err != nil {
		return err
	}
	totalMatches := cfg.TotalMatches
	if err := checkedIncr(&totalMatches, 1); err != nil {
		return err
	}

	if err := createPDA(ctx, player1, gameMatch, GameMatchSize, pda.WithBump(matchSeeds(args.MatchID), matchBump)); err != nil {
		return err
	}
	if err := createPDA(ctx, player1, escrow, VaultSize, pda.WithBump(escrowSeeds(gameMatch.Key), escrowBump)); err != nil {
		return err
	}
	if err := ctx.Invoke(system.Transfer(player1.Key, escrow.Key, args.StakeAmount), nil); err != nil {
		return err
	}

	now := ctx.Now()
	m := &GameMatch{
		MatchID:     args.MatchID,
		Player1:     player1.Key,
		StakeAmount: args.StakeAmount,
		Status:      StatusWaitingForOpponent,
		CreatedAt:   now,
		Bump:        matchBump,
		EscrowBump:  escrowBump,
	}
	if err := storeMatch(gameMatch, m); err != nil {
		return err
	}
	escrow.Data = EncodeVault()
	cfg.TotalMatches = totalMatches
	if err := storePlatform(config, cfg); err != nil {
		return err
	}

	ctx.Log("Match created: %s stake=%d", gameMatch.Key, args.StakeAmount)
	ctx.Emit(EventMatchCreated, MatchCreated{
		Match:       gameMatch.Key,
		MatchID:     m.MatchID,
		Player1:     m.Player1,
		StakeAmount: m.StakeAmount,
		CreatedAt:   m.CreatedAt,
	})
	return nil
}

// joinMatch: [0] platformConfig, [1] gameMatch, [2] escrow, [3] player2.
func (p *Processor) joinMatch(ctx svm.InvokeContext) error {
	accts, err := accountsN(ctx, 4)
	if err != nil {
		return err
	}
	config, gameMatch, escrow, player2 := accts[0], accts[1], accts[2], accts[3]

	cfg, err := loadPlatform(ctx, config)
	if err != nil {
		return err
	}
	if cfg.Paused {
		return ErrPlatformPaused
	}
	m, err := loadMatch(ctx, gameMatch)
	if err != nil {
		return err
	}
	switch m.Status {
	case StatusWaitingForOpponent:
	case StatusInProgress, StatusCompleted:
		return ErrMatchFull
	default:
		return ErrInvalidMatchState
	}
	if err := checkEscrow(ctx, escrow, gameMatch.Key, m); err != nil {
		return err
	}
	for _, info := range []*svm.AccountInfo{gameMatch, escrow, player2} {
		if err := requireWritable(info); err != nil {
			return err
		}
	}
	if err := requireSigner(player2); err != nil {
		return err
	}
	now := ctx.Now()
	if m.IsExpired(now) {
		ctx.Log("Match %s expired at %d", gameMatch.Key, m.CreatedAt+MatchExpiration)
		return ErrMatchExpired
	}
	if player2.Key == m.Player1 {
		return ErrCannotJoinOwnMatch
	}
	pot, err := m.Pot()
	if err != nil {
		return err
	}

	if err := ctx.Invoke(system.Transfer(player2.Key, escrow.Key, m.StakeAmount), nil); err != nil {
		return err
	}
	m.Player2 = player2.Key
	m.Status = StatusInProgress
	m.StartedAt = now
	if err := storeMatch(gameMatch, m); err != nil {
		return err
	}

	ctx.Log("Match joined: %s by %s", gameMatch.Key, player2.Key)
	ctx.Emit(EventMatchJoined, MatchJoined{
		Match:     gameMatch.Key,
		MatchID:   m.MatchID,
		Player1:   m.Player1,
		Player2:   m.Player2,
		Pot:       pot,
		StartedAt: now,
	})
	return nil
}

// cancelMatch: [0] gameMatch, [1] escrow, [2] player1.
func (p *Processor) cancelMatch(ctx svm.InvokeContext) error {
	accts, err := accountsN(ctx, 3)
	if err != nil {
		return err
	}
	gameMatch, escrow, player1 := accts[0], accts[1], accts[2]

	m, err := loadMatch(ctx, gameMatch)
	if err != nil {
		return err
	}
	switch m.Status {
	case StatusWaitingForOpponent:
	case StatusInProgress, StatusCompleted:
		return ErrCannotCancelActiveMatch
	default:
		return ErrInvalidMatchState
	}
	if err := requireSigner(player1); err != nil {
		return err
	}
	if player1.Key != m.Player1 {
		return ErrOnlyCreatorCanCancel
	}
	if err := checkEscrow(ctx, escrow, gameMatch.Key, m); err != nil {
		return err
	}
	for _, info := range []*svm.AccountInfo{gameMatch, escrow, player1} {
		if err := requireWritable(info); err != nil {
			return err
		}
	}
	if escrow.Lamports < m.StakeAmount {
		return ErrInsufficientEscrowFunds
	}

	refunded := escrow.Lamports
	if err := closeInto(escrow, player1); err != nil {
		return err
	}
	m.Status = StatusCancelled
	m.EndedAt = ctx.Now()
	if err := storeMatch(gameMatch, m); err != nil {
		return err
	}

	ctx.Log("Match cancelled: %s refunded=%d", gameMatch.Key, refunded)
	ctx.Emit(EventMatchCancelled, MatchCancelled{
		Match:    gameMatch.Key,
		MatchID:  m.MatchID,
		Player1:  m.Player1,
		Refunded: refunded,
	})
	return nil
}

// submitResult: [0] platformConfig, [1] gameMatch, [2] gameAuthority.
func (p *Processor) submitResult(ctx svm.InvokeContext, args SubmitResultArgs) error {
	accts, err := accountsN(ctx, 3)
	if err != nil {
		return err
	}
	config, gameMatch, authority := accts[0], accts[1], accts[2]

	cfg, err := loadPlatform(ctx, config)
	if err != nil {
		return err
	}
	if !authority.IsSigner || !cfg.IsGameAuthority(authority.Key) {
		return ErrUnauthorizedGameAuthority
	}
	m, err := loadMatch(ctx, gameMatch)
	if err != nil {
		return err
	}
	if m.Status != StatusInProgress {
		return ErrInvalidMatchState
	}
	if !m.IsPlayer(args.Winner) {
		return ErrInvalidWinner
	}
	for _, info := range []*svm.AccountInfo{config, gameMatch} {
		if err := requireWritable(info); err != nil {
			return err
		}
	}

	pot, err := m.Pot()
	if err != nil {
		return err
	}
	fee, prize, err := ComputeFee(pot, cfg.FeeBps)
	if err != nil {
		return err
	}
	if err := checkedIncr(&cfg.MatchesCompleted, 1); err != nil {
		return err
	}
	if err := checkedIncr(&cfg.TotalVolume, pot); err != nil {
		return err
	}
	if err := checkedIncr(&cfg.TotalFeesCollected, fee); err != nil {
		return err
	}

	m.Winner = args.Winner
	m.FeeAmount = fee
	m.PrizeAmount = prize
	m.Status = StatusCompleted
	m.EndedAt = ctx.Now()
	if err := storeMatch(gameMatch, m); err != nil {
		return err
	}
	if err := storePlatform(config, cfg); err != nil {
		return err
	}

	ctx.Log("Result submitted: %s winner=%s fee=%d prize=%d", gameMatch.Key, m.Winner, fee, prize)
	ctx.Emit(EventResultSubmitted, ResultSubmitted{
		Match:       gameMatch.Key,
		MatchID:     m.MatchID,
		Winner:      m.Winner,
		FeeAmount:   fee,
		PrizeAmount: prize,
		EndedAt:     m.EndedAt,
	})
	return nil
}

// claimWinnings: [0] platformConfig, [1] gameMatch, [2] escrow, [3] treasury, [4] winner.
func (p *Processor) claimWinnings(ctx svm.InvokeContext) error {
	accts, err := accountsN(ctx, 5)
	if err != nil {
		return err
	}
	config, gameMatch, escrow, treasury, winner := accts[0], accts[1], accts[2], accts[3], accts[4]

	cfg, err := loadPlatform(ctx, config)
	if err != nil {
		return err
	}
	if cfg.Paused {
		return ErrPlatformPaused
	}
	m, err := loadMatch(ctx, gameMatch)
	if err != nil {
		return err
	}
	if m.Status != StatusCompleted {
		return ErrInvalidMatchState
	}
	if err := requireSigner(winner); err != nil {
		return err
	}
	if !m.IsWinner(winner.Key) {
		return ErrNotWinner
	}
	if err := checkEscrow(ctx, escrow, gameMatch.Key, m); err != nil {
		return err
	}
	if err := checkTreasury(treasury, cfg); err != nil {
		return err
	}
	for _, info := range []*svm.AccountInfo{gameMatch, escrow, treasury, winner} {
		if err := requireWritable(info); err != nil {
			return err
		}
	}
	owed, ok := svm.CheckedAdd(m.PrizeAmount, m.FeeAmount)
	if !ok {
		return ErrOverflow
	}
	if escrow.Lamports < owed {
		ctx.Log("Claim: escrow holds %d, owes %d", escrow.Lamports, owed)
		return ErrInsufficientEscrowFunds
	}

	if err := debit(escrow, treasury, m.FeeAmount); err != nil {
		return err
	}
	if err := closeInto(escrow, winner); err != nil {
		return err
	}
	m.Status = StatusClaimed
	if err := storeMatch(gameMatch, m); err != nil {
		return err
	}

	ctx.Log("Winnings claimed: %s prize=%d fee=%d", gameMatch.Key, m.PrizeAmount, m.FeeAmount)
	ctx.Emit(EventWinningsClaimed, WinningsClaimed{
		Match:       gameMatch.Key,
		MatchID:     m.MatchID,
		Winner:      m.Winner,
		PrizeAmount: m.PrizeAmount,
		FeeAmount:   m.FeeAmount,
	})
	return nil
}
