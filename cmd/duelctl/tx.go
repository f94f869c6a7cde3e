package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/runtime"
	"github.com/fortiblox/X1-Duel/pkg/svm"
	"github.com/fortiblox/X1-Duel/pkg/svm/programs/duel"
	"github.com/fortiblox/X1-Duel/pkg/svm/programs/system"
)

// send signs ixs with the local key as fee payer and submits them.
func (a *app) send(ctx context.Context, ixs ...svm.Instruction) (types.Signature, error) {
	kp, err := a.key()
	if err != nil {
		return types.Signature{}, err
	}
	now := time.Now()
	tx := runtime.NewTransaction(kp.Public, now.Unix(), uint64(now.UnixNano()), ixs...)
	if err := tx.Sign(kp); err != nil {
		return types.Signature{}, err
	}
	return a.client.SendTransaction(ctx, tx)
}

func (a *app) sendOne(ctx context.Context, ix svm.Instruction) error {
	sig, err := a.send(ctx, ix)
	if err != nil {
		return err
	}
	fmt.Println(sig)
	return nil
}

// matchIDFromLabel turns a create -id value into a match id. Hex ids are
// used as given, any other label is hashed.
func matchIDFromLabel(label string) [32]byte {
	if id, ok := parseHexID(label); ok {
		return id
	}
	return sha256.Sum256([]byte(label))
}

func parseHexID(s string) ([32]byte, bool) {
	var id [32]byte
	if len(s) != 64 {
		return id, false
	}
	raw, err := hex.DecodeString(strings.ToLower(s))
	if err != nil {
		return id, false
	}
	copy(id[:], raw)
	return id, true
}

// resolveMatchID accepts a hex match id or a match address. Addresses are
// looked up on the node.
func (a *app) resolveMatchID(ctx context.Context, ref string) ([32]byte, error) {
	if id, ok := parseHexID(ref); ok {
		return id, nil
	}
	if _, err := types.PubkeyFromBase58(ref); err != nil {
		return [32]byte{}, fmt.Errorf("%q is neither a match id nor an address", ref)
	}
	view, err := a.client.GetMatch(ctx, ref)
	if err != nil {
		return [32]byte{}, err
	}
	id, ok := parseHexID(view.MatchID)
	if !ok {
		return [32]byte{}, fmt.Errorf("node returned malformed match id %q", view.MatchID)
	}
	return id, nil
}

func cmdTransfer(ctx context.Context, a *app, args []string) error {
	if err := needArgs("transfer", args, 2); err != nil {
		return err
	}
	to, err := types.PubkeyFromBase58(args[0])
	if err != nil {
		return err
	}
	lamports, err := types.ParseSol(args[1])
	if err != nil {
		return err
	}
	kp, err := a.key()
	if err != nil {
		return err
	}
	return a.sendOne(ctx, system.Transfer(kp.Public, to, lamports))
}

func cmdAirdrop(ctx context.Context, a *app, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return needArgs("airdrop", args, 1)
	}
	lamports, err := types.ParseSol(args[0])
	if err != nil {
		return err
	}
	to, err := a.addressOrSelf(args, 1)
	if err != nil {
		return err
	}
	sig, err := a.client.RequestAirdrop(ctx, to, lamports)
	if err != nil {
		return err
	}
	fmt.Println(sig)
	return nil
}

func cmdInit(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	authority := fs.String("authority", "", "Game authority address (defaults to the signer)")
	if err := parseFlags("init", fs, args); err != nil {
		return err
	}
	kp, err := a.key()
	if err != nil {
		return err
	}
	accts := duel.InitializePlatformAccounts{Admin: kp.Public, GameAuthority: kp.Public}
	if *authority != "" {
		if accts.GameAuthority, err = types.PubkeyFromBase58(*authority); err != nil {
			return err
		}
	}
	ix, err := duel.NewInitializePlatformInstruction(accts)
	if err != nil {
		return err
	}
	return a.sendOne(ctx, ix)
}

func cmdCreate(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	label := fs.String("id", "", "Match id (64 hex characters) or a label to hash; random if empty")
	if err := parseFlags("create", fs, args); err != nil {
		return err
	}
	if err := needArgs("create", fs.Args(), 1); err != nil {
		return err
	}
	stake, err := types.ParseSol(fs.Arg(0))
	if err != nil {
		return err
	}
	if err := duel.ValidateStake(stake); err != nil {
		return err
	}
	kp, err := a.key()
	if err != nil {
		return err
	}

	if *label == "" {
		*label = uuid.NewString()
	}
	matchID := matchIDFromLabel(*label)
	ix, err := duel.NewCreateMatchInstruction(kp.Public, duel.CreateMatchArgs{StakeAmount: stake, MatchID: matchID})
	if err != nil {
		return err
	}
	sig, err := a.send(ctx, ix)
	if err != nil {
		return err
	}
	gameMatch, _, err := duel.MatchAddress(matchID)
	if err != nil {
		return err
	}
	fmt.Printf("Match:     %x\nAddress:   %s\nStake:     %s SOL\nSignature: %s\n",
		matchID, gameMatch, types.FormatSol(stake), sig)
	return nil
}

func cmdJoin(ctx context.Context, a *app, args []string) error {
	return a.matchAction(ctx, "join", args, duel.NewJoinMatchInstruction)
}

func cmdCancel(ctx context.Context, a *app, args []string) error {
	return a.matchAction(ctx, "cancel", args, duel.NewCancelMatchInstruction)
}

func cmdClaim(ctx context.Context, a *app, args []string) error {
	return a.matchAction(ctx, "claim", args, duel.NewClaimWinningsInstruction)
}

// matchAction runs an instruction that takes the signer and a match id.
func (a *app) matchAction(ctx context.Context, name string, args []string,
	build func(types.Pubkey, [32]byte) (svm.Instruction, error)) error {
	if err := needArgs(name, args, 1); err != nil {
		return err
	}
	matchID, err := a.resolveMatchID(ctx, args[0])
	if err != nil {
		return err
	}
	kp, err := a.key()
	if err != nil {
		return err
	}
	ix, err := build(kp.Public, matchID)
	if err != nil {
		return err
	}
	return a.sendOne(ctx, ix)
}

func cmdSubmit(ctx context.Context, a *app, args []string) error {
	if err := needArgs("submit", args, 2); err != nil {
		return err
	}
	matchID, err := a.resolveMatchID(ctx, args[0])
	if err != nil {
		return err
	}
	winner, err := types.PubkeyFromBase58(args[1])
	if err != nil {
		return err
	}
	kp, err := a.key()
	if err != nil {
		return err
	}
	ix, err := duel.NewSubmitResultInstruction(kp.Public, matchID, winner)
	if err != nil {
		return err
	}
	return a.sendOne(ctx, ix)
}

func cmdUpdate(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	newAdmin := fs.String("admin", "", "New admin address")
	newAuthority := fs.String("authority", "", "New game authority address")
	pause := fs.Bool("pause", false, "Pause match creation and joins")
	resume := fs.Bool("resume", false, "Resume the platform")
	if err := parseFlags("update", fs, args); err != nil {
		return err
	}
	if *pause && *resume {
		return errors.New("-pause and -resume are mutually exclusive")
	}

	var update duel.UpdatePlatformArgs
	for _, opt := range []struct {
		value string
		dst   **types.Pubkey
	}{{*newAdmin, &update.NewAdmin}, {*newAuthority, &update.NewGameAuthority}} {
		if opt.value == "" {
			continue
		}
		pk, err := types.PubkeyFromBase58(opt.value)
		if err != nil {
			return err
		}
		*opt.dst = &pk
	}
	if *pause || *resume {
		paused := *pause
		update.Paused = &paused
	}
	if update.NewAdmin == nil && update.NewGameAuthority == nil && update.Paused == nil {
		return errors.New("nothing to update")
	}

	kp, err := a.key()
	if err != nil {
		return err
	}
	ix, err := duel.NewUpdatePlatformInstruction(kp.Public, update)
	if err != nil {
		return err
	}
	return a.sendOne(ctx, ix)
}

func cmdWithdraw(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("withdraw", flag.ExitOnError)
	to := fs.String("to", "", "Destination address (defaults to the signer)")
	if err := parseFlags("withdraw", fs, args); err != nil {
		return err
	}
	if err := needArgs("withdraw", fs.Args(), 1); err != nil {
		return err
	}
	kp, err := a.key()
	if err != nil {
		return err
	}

	var amount uint64
	if fs.Arg(0) == "all" {
		platform, err := a.client.GetPlatformConfig(ctx)
		if err != nil {
			return err
		}
		if platform.WithdrawableFees == nil || *platform.WithdrawableFees == 0 {
			return errors.New("no fees to withdraw")
		}
		amount = *platform.WithdrawableFees
	} else if amount, err = types.ParseSol(fs.Arg(0)); err != nil {
		return err
	}

	destination := kp.Public
	if *to != "" {
		if destination, err = types.PubkeyFromBase58(*to); err != nil {
			return err
		}
	}
	ix, err := duel.NewWithdrawFeesInstruction(kp.Public, destination, amount)
	if err != nil {
		return err
	}
	return a.sendOne(ctx, ix)
}
