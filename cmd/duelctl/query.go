package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"k8s.io/klog/v2"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/rpc"
	"github.com/fortiblox/X1-Duel/pkg/rpcfetch"
	"github.com/fortiblox/X1-Duel/pkg/svm/programs/duel"
)

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sol(lamports uint64) string {
	return types.FormatSol(lamports) + " SOL"
}

func optional(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func timestamp(unix int64) string {
	if unix == 0 {
		return "-"
	}
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}

// describeError renders program failures by name.
func describeError(err error) string {
	tf, ok := rpcfetch.AsTransactionFailure(err)
	if !ok {
		return err.Error()
	}
	code, ok := tf.CustomCode()
	if !ok {
		return fmt.Sprintf("transaction %s failed: %s", tf.Signature, tf.Err)
	}
	if pe, ok := duel.ErrorByCode(code); ok {
		return fmt.Sprintf("transaction %s failed: %s (%d): %s", tf.Signature, pe.Name, pe.Code, pe.Msg)
	}
	return fmt.Sprintf("transaction %s failed with custom error %d", tf.Signature, code)
}

func cmdAddress(_ context.Context, a *app, args []string) error {
	if err := needArgs("address", args, 0); err != nil {
		return err
	}
	kp, err := a.key()
	if err != nil {
		return err
	}
	fmt.Println(kp.Public)
	return nil
}

func cmdBalance(ctx context.Context, a *app, args []string) error {
	if len(args) > 1 {
		return needArgs("balance", args, 1)
	}
	key, err := a.addressOrSelf(args, 0)
	if err != nil {
		return err
	}
	lamports, err := a.client.GetBalance(ctx, key)
	if err != nil {
		return err
	}
	if *jsonOutput {
		return printJSON(map[string]interface{}{"address": key.String(), "lamports": lamports})
	}
	fmt.Println(sol(lamports))
	return nil
}

func printMatch(m *rpc.MatchView) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Match:\t%s\n", m.MatchID)
	fmt.Fprintf(w, "Address:\t%s\n", m.Address)
	fmt.Fprintf(w, "Status:\t%s\n", m.Status)
	fmt.Fprintf(w, "Stake:\t%s\n", sol(m.StakeAmount))
	fmt.Fprintf(w, "Player 1:\t%s\n", m.Player1)
	fmt.Fprintf(w, "Player 2:\t%s\n", optional(m.Player2))
	fmt.Fprintf(w, "Winner:\t%s\n", optional(m.Winner))
	fmt.Fprintf(w, "Created:\t%s\n", timestamp(m.CreatedAt))
	fmt.Fprintf(w, "Started:\t%s\n", timestamp(m.StartedAt))
	fmt.Fprintf(w, "Ended:\t%s\n", timestamp(m.EndedAt))
	if m.Status == duel.StatusWaitingForOpponent.String() {
		expiry := timestamp(m.ExpiresAt)
		if m.Expired {
			expiry += " (expired)"
		}
		fmt.Fprintf(w, "Expires:\t%s\n", expiry)
	}
	if m.PrizeAmount > 0 {
		fmt.Fprintf(w, "Fee:\t%s\n", sol(m.FeeAmount))
		fmt.Fprintf(w, "Prize:\t%s\n", sol(m.PrizeAmount))
	}
	if m.EscrowBalance != nil {
		fmt.Fprintf(w, "Escrow:\t%s\n", sol(*m.EscrowBalance))
	}
	w.Flush()
}

func cmdMatch(ctx context.Context, a *app, args []string) error {
	if err := needArgs("match", args, 1); err != nil {
		return err
	}
	m, err := a.client.GetMatch(ctx, args[0])
	if err != nil {
		return err
	}
	if *jsonOutput {
		return printJSON(m)
	}
	printMatch(m)
	return nil
}

func cmdWatch(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	interval := fs.Duration("interval", rpcfetch.DefaultPollInterval, "Poll interval")
	if err := parseFlags("watch", fs, args); err != nil {
		return err
	}
	if err := needArgs("watch", fs.Args(), 1); err != nil {
		return err
	}

	config := rpcfetch.DefaultConfig()
	config.PollInterval = *interval
	config.RequestTimeout = *timeout
	config.OnError = func(err error) {
		klog.Warningf("poll failed: %v", err)
	}
	w, err := rpcfetch.NewWatcher(a.pool, fs.Arg(0), config)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Close()

	for m := range w.Updates() {
		if *jsonOutput {
			if err := printJSON(m); err != nil {
				return err
			}
			continue
		}
		escrow := "-"
		if m.EscrowBalance != nil {
			escrow = sol(*m.EscrowBalance)
		}
		fmt.Printf("%s  %-18s escrow=%s winner=%s\n",
			time.Now().Format(time.TimeOnly), m.Status, escrow, optional(m.Winner))
	}
	if ctx.Err() != nil {
		return nil
	}
	return w.Health().LastError
}

func cmdLobby(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("lobby", flag.ExitOnError)
	limit := fs.Int("limit", 50, "Maximum matches to list")
	if err := parseFlags("lobby", fs, args); err != nil {
		return err
	}
	matches, err := a.client.GetOpenMatches(ctx, *limit)
	if err != nil {
		return err
	}
	if *jsonOutput {
		return printJSON(matches)
	}
	if len(matches) == 0 {
		fmt.Println("No open matches")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MATCH\tSTAKE\tCREATOR\tEXPIRES")
	for _, m := range matches {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.MatchID, sol(m.StakeAmount), m.Player1, timestamp(m.ExpiresAt))
	}
	return w.Flush()
}

func cmdPlatform(ctx context.Context, a *app, args []string) error {
	if err := needArgs("platform", args, 0); err != nil {
		return err
	}
	p, err := a.client.GetPlatformConfig(ctx)
	if err != nil {
		return err
	}
	if *jsonOutput {
		return printJSON(p)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Config:\t%s\n", p.Address)
	fmt.Fprintf(w, "Admin:\t%s\n", p.Admin)
	fmt.Fprintf(w, "Game authority:\t%s\n", p.GameAuthority)
	fmt.Fprintf(w, "Treasury:\t%s\n", p.Treasury)
	fmt.Fprintf(w, "Fee:\t%s%%\n", p.FeePercent)
	fmt.Fprintf(w, "Paused:\t%t\n", p.Paused)
	fmt.Fprintf(w, "Matches:\t%d created, %d completed\n", p.TotalMatches, p.MatchesCompleted)
	fmt.Fprintf(w, "Volume:\t%s SOL\n", p.TotalVolumeSol)
	fmt.Fprintf(w, "Fees collected:\t%s SOL\n", p.TotalFeesCollectedSol)
	if p.TreasuryBalance != nil {
		fmt.Fprintf(w, "Treasury balance:\t%s\n", sol(*p.TreasuryBalance))
	}
	if p.WithdrawableFees != nil {
		fmt.Fprintf(w, "Withdrawable:\t%s\n", sol(*p.WithdrawableFees))
	}
	return w.Flush()
}

func cmdHistory(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	player := fs.String("player", "", "Only matches involving this address")
	status := fs.String("status", "", "Only matches with this status")
	limit := fs.Int("limit", 25, "Maximum matches to list")
	offset := fs.Int("offset", 0, "Matches to skip")
	if err := parseFlags("history", fs, args); err != nil {
		return err
	}

	h, err := a.client.GetMatchHistory(ctx, rpc.MatchHistoryConfig{
		Player: *player,
		Status: *status,
		Limit:  *limit,
		Offset: *offset,
	})
	if err != nil {
		return err
	}
	if *jsonOutput {
		return printJSON(h)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MATCH\tSTATUS\tSTAKE\tWINNER\tPRIZE\tENDED")
	for _, m := range h.Matches {
		winner := "-"
		if m.Winner != nil {
			winner = m.Winner.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			m.MatchID, m.Status, sol(m.StakeAmount), winner, sol(m.PrizeAmount), timestamp(m.EndedAt))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if s := h.Stats; s != nil {
		rate := decimal.Zero
		if s.Played > 0 {
			rate = decimal.NewFromInt(int64(s.Won)).Mul(decimal.NewFromInt(100)).
				Div(decimal.NewFromInt(int64(s.Played)))
		}
		net := types.LamportsToSol(s.Winnings).Sub(types.LamportsToSol(s.Wagered))
		fmt.Printf("\n%s: %d played, %d won (%s%%), %d lost, wagered %s, won %s, net %s SOL\n",
			s.Player, s.Played, s.Won, rate.StringFixed(1), s.Lost,
			sol(s.Wagered), sol(s.Winnings), net.String())
	}
	return nil
}

func cmdTx(ctx context.Context, a *app, args []string) error {
	if err := needArgs("tx", args, 1); err != nil {
		return err
	}
	sig, err := types.SignatureFromBase58(args[0])
	if err != nil {
		return err
	}
	tx, err := a.client.GetTransaction(ctx, sig)
	if err != nil {
		return err
	}
	if *jsonOutput {
		return printJSON(tx)
	}

	fmt.Printf("Slot:    %d\n", tx.Slot)
	if tx.BlockTime != nil {
		fmt.Printf("Time:    %s\n", timestamp(*tx.BlockTime))
	}
	if tx.Meta != nil {
		result := "success"
		if tx.Meta.Err != nil {
			raw, _ := json.Marshal(tx.Meta.Err)
			result = "failed " + string(raw)
		}
		fmt.Printf("Result:  %s\n", result)
		fmt.Printf("Compute: %d units\n", tx.Meta.ComputeUnitsConsumed)
		fmt.Println("Logs:")
		for _, line := range tx.Meta.LogMessages {
			fmt.Printf("  %s\n", line)
		}
	}
	return nil
}
