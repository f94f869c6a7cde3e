package duel

import (
	"github.com/fortiblox/X1-Duel/pkg/pda"
	"github.com/fortiblox/X1-Duel/pkg/svm"
)

// initializePlatform: [0] platformConfig, [1] treasury, [2] admin, [3] gameAuthority.
func (p *Processor) initializePlatform(ctx svm.InvokeContext) error {
	accts, err := accountsN(ctx, 4)
	if err != nil {
		return err
	}
	config, treasury, admin, authority := accts[0], accts[1], accts[2], accts[3]

	configBump, err := findAddress(ctx, config, platformConfigSeeds())
	if err != nil {
		return err
	}
	if err := requireUnallocated(ctx, config); err != nil {
		return err
	}
	treasuryBump, err := findAddress(ctx, treasury, treasurySeeds())
	if err != nil {
		return err
	}
	if err := requireUnallocated(ctx, treasury); err != nil {
		return err
	}
	for _, info := range []*svm.AccountInfo{config, treasury, admin} {
		if err := requireWritable(info); err != nil {
			return err
		}
	}
	if err := requireSigner(admin); err != nil {
		return err
	}

	if err := createPDA(ctx, admin, config, PlatformConfigSize, pda.WithBump(platformConfigSeeds(), configBump)); err != nil {
		return err
	}
	if err := createPDA(ctx, admin, treasury, VaultSize, pda.WithBump(treasurySeeds(), treasuryBump)); err != nil {
		return err
	}

	cfg := &PlatformConfig{
		Admin:         admin.Key,
		GameAuthority: authority.Key,
		Treasury:      treasury.Key,
		FeeBps:        DefaultFeeBps,
		Bump:          configBump,
	}
	if err := storePlatform(config, cfg); err != nil {
		return err
	}
	treasury.Data = EncodeVault()

	ctx.Log("Platform initialized: admin=%s authority=%s", cfg.Admin, cfg.GameAuthority)
	ctx.Emit(EventPlatformInitialized, PlatformInitialized{
		Admin:         cfg.Admin,
		GameAuthority: cfg.GameAuthority,
		Treasury:      cfg.Treasury,
		FeeBps:        cfg.FeeBps,
	})
	return nil
}

// updatePlatform: [0] platformConfig, [1] admin.
func (p *Processor) updatePlatform(ctx svm.InvokeContext, args UpdatePlatformArgs) error {
	accts, err := accountsN(ctx, 2)
	if err != nil {
		return err
	}
	config, admin := accts[0], accts[1]

	cfg, err := loadPlatform(ctx, config)
	if err != nil {
		return err
	}
	if err := requireWritable(config); err != nil {
		return err
	}
	if !admin.IsSigner || !cfg.IsAdmin(admin.Key) {
		return ErrUnauthorizedAdmin
	}

	if args.NewAdmin != nil {
		cfg.Admin = *args.NewAdmin
	}
	if args.NewGameAuthority != nil {
		cfg.GameAuthority = *args.NewGameAuthority
	}
	if args.Paused != nil {
		cfg.Paused = *args.Paused
	}
	if err := storePlatform(config, cfg); err != nil {
		return err
	}

	ctx.Log("Platform updated: admin=%s authority=%s paused=%t", cfg.Admin, cfg.GameAuthority, cfg.Paused)
	ctx.Emit(EventPlatformUpdated, PlatformUpdated{
		Admin:         cfg.Admin,
		GameAuthority: cfg.GameAuthority,
		Paused:        cfg.Paused,
	})
	return nil
}

// withdrawFees: [0] platformConfig, [1] treasury, [2] destination, [3] admin.
func (p *Processor) withdrawFees(ctx svm.InvokeContext, args WithdrawFeesArgs) error {
	accts, err := accountsN(ctx, 4)
	if err != nil {
		return err
	}
	config, treasury, dest, admin := accts[0], accts[1], accts[2], accts[3]

	cfg, err := loadPlatform(ctx, config)
	if err != nil {
		return err
	}
	if !admin.IsSigner || !cfg.IsAdmin(admin.Key) {
		return ErrUnauthorizedAdmin
	}
	if err := checkTreasury(treasury, cfg); err != nil {
		return err
	}
	for _, info := range []*svm.AccountInfo{treasury, dest} {
		if err := requireWritable(info); err != nil {
			return err
		}
	}

	spendable, _ := svm.CheckedSub(treasury.Lamports, ctx.Rent().MinimumBalance(uint64(len(treasury.Data))))
	if args.Amount > spendable {
		ctx.Log("Withdraw: requested %d, spendable %d", args.Amount, spendable)
		return ErrInsufficientEscrowFunds
	}
	if err := debit(treasury, dest, args.Amount); err != nil {
		return err
	}

	ctx.Log("Fees withdrawn: %d lamports to %s", args.Amount, dest.Key)
	ctx.Emit(EventFeesWithdrawn, FeesWithdrawn{Destination: dest.Key, Amount: args.Amount})
	return nil
}
