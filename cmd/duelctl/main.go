// duelctl is the command line client for an x1-duel node. It signs duel
// program transactions with a local keystore and queries matches, the
// platform configuration and match history over JSON-RPC.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"k8s.io/klog/v2"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/rpcfetch"
	"github.com/fortiblox/X1-Duel/pkg/rpcpool"
	"github.com/fortiblox/X1-Duel/pkg/wallet"
)

// Global flags
var (
	rpcURLs       = flag.String("url", "http://127.0.0.1:8899", "Comma-separated node RPC URLs")
	slotThreshold = flag.Uint64("slot-threshold", 50, "Max slots behind before an endpoint is skipped (multiple URLs)")
	keyPath       = flag.String("keystore", defaultKeyPath(), "Signing key (encrypted keystore or Solana keypair file)")
	passwordEnv   = flag.String("password-env", "X1DUEL_KEYSTORE_PASSWORD", "Environment variable holding the keystore password")
	timeout       = flag.Duration("timeout", 30*time.Second, "Request timeout")
	jsonOutput    = flag.Bool("json", false, "Print results as JSON")
)

type command struct {
	usage string
	help  string
	run   func(ctx context.Context, app *app, args []string) error
}

var commands map[string]command

// Registered in init: the command functions read the table for usage text.
func init() {
	commands = map[string]command{
		"address":  {"address", "Print the signing key's address", cmdAddress},
		"balance":  {"balance [ADDRESS]", "Show a wallet balance", cmdBalance},
		"airdrop":  {"airdrop AMOUNT [ADDRESS]", "Request SOL from the node faucet", cmdAirdrop},
		"transfer": {"transfer TO AMOUNT", "Send SOL to another wallet", cmdTransfer},
		"init":     {"init -authority KEY", "Initialize the platform (signer becomes admin)", cmdInit},
		"create":   {"create [-id ID] AMOUNT", "Open a match staking AMOUNT SOL", cmdCreate},
		"join":     {"join MATCH", "Join an open match", cmdJoin},
		"cancel":   {"cancel MATCH", "Cancel your unjoined match and take the stake back", cmdCancel},
		"submit":   {"submit MATCH WINNER", "Record the winner (game authority)", cmdSubmit},
		"claim":    {"claim MATCH", "Claim the prize of a match you won", cmdClaim},
		"update":   {"update [-admin KEY] [-authority KEY] [-pause|-resume]", "Change platform settings (admin)", cmdUpdate},
		"withdraw": {"withdraw [-to ADDRESS] AMOUNT", "Withdraw collected fees (admin)", cmdWithdraw},
		"match":    {"match MATCH", "Show a match", cmdMatch},
		"watch":    {"watch MATCH", "Follow a match until it settles", cmdWatch},
		"lobby":    {"lobby [-limit N]", "List matches waiting for an opponent", cmdLobby},
		"platform": {"platform", "Show the platform configuration and treasury", cmdPlatform},
		"history":  {"history [-player ADDRESS] [-status STATUS] [-limit N]", "Query settled matches", cmdHistory},
		"tx":       {"tx SIGNATURE", "Show a transaction and its logs", cmdTx},
	}
}

func defaultKeyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "duel.keystore"
	}
	return home + "/.config/x1-duel/id.keystore"
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: duelctl [flags] <command> [args]\n\nCommands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-55s %s\n", commands[name].usage, commands[name].help)
	}
	fmt.Fprintf(os.Stderr, "\nMATCH is a 64-character hex match id or the match account address.\n\nFlags:\n")
	flag.PrintDefaults()
}

func main() {
	klog.InitFlags(nil)
	flag.Usage = usage
	flag.Parse()
	defer klog.Flush()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", flag.Arg(0))
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer app.close()

	if err := cmd.run(ctx, app, flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", describeError(err))
		if tf, ok := rpcfetch.AsTransactionFailure(err); ok && klog.V(1).Enabled() {
			for _, line := range tf.Logs {
				fmt.Fprintf(os.Stderr, "  %s\n", line)
			}
		}
		os.Exit(1)
	}
}

// app holds what every command needs: a client over the endpoint pool and
// lazy access to the signing key.
type app struct {
	pool   rpcfetch.Pool
	client *rpcfetch.RPCClient
	signer *types.Keypair
	stop   func()
}

func newApp(ctx context.Context) (*app, error) {
	var urls []string
	for _, u := range strings.Split(*rpcURLs, ",") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return nil, rpcfetch.ErrNoEndpoints
	}

	a := &app{stop: func() {}}
	if len(urls) == 1 {
		a.pool = rpcfetch.NewSimplePool(urls)
	} else {
		pool := rpcpool.NewPool(*slotThreshold)
		pool.SetRequestTimeout(*timeout)
		pool.AddEndpoints(urls)
		pool.CheckNow(ctx)
		pool.Start(ctx)
		klog.V(1).Infof("%d/%d endpoints healthy", pool.HealthyCount(), pool.TotalCount())
		a.pool = pool
		a.stop = pool.Stop
	}
	a.client = rpcfetch.NewRPCClient(a.pool, *timeout)
	return a, nil
}

func (a *app) close() {
	a.stop()
	a.pool.Close()
}

// key loads the signing key on first use.
func (a *app) key() (*types.Keypair, error) {
	if a.signer != nil {
		return a.signer, nil
	}
	kp, err := wallet.LoadKey(*keyPath, os.Getenv(*passwordEnv))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no key at %s (create one with x1-duel keygen)", *keyPath)
		}
		return nil, err
	}
	a.signer = kp
	return kp, nil
}

// addressOrSelf parses an optional address argument, defaulting to the
// signing key.
func (a *app) addressOrSelf(args []string, i int) (types.Pubkey, error) {
	if len(args) > i {
		return types.PubkeyFromBase58(args[i])
	}
	kp, err := a.key()
	if err != nil {
		return types.Pubkey{}, err
	}
	return kp.Public, nil
}

func parseFlags(name string, fs *flag.FlagSet, args []string) error {
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: duelctl %s\n", commands[name].usage)
		fs.PrintDefaults()
	}
	return fs.Parse(args)
}

func needArgs(name string, args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("usage: duelctl %s", commands[name].usage)
	}
	return nil
}
