// x1-duel runs a wagering escrow node: the account runtime with the duel
// program, a transaction ledger, the match history index, and the JSON-RPC
// server clients talk to.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"k8s.io/klog/v2"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/node"
	"github.com/fortiblox/X1-Duel/pkg/wallet"
)

// Version information
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

// Global flags
var (
	configPath    = flag.String("config", "", "Path to YAML config file")
	envFile       = flag.String("env-file", ".env", "Environment file with X1DUEL_* overrides")
	dataDir       = flag.String("data-dir", "", "Data directory for ledger, accounts and history (overrides config)")
	rpcAddr       = flag.String("rpc-addr", "", "RPC server listen address (overrides config)")
	dashboardAddr = flag.String("dashboard-addr", "", "Serve the web dashboard on this address")
	inMemory      = flag.Bool("in-memory", false, "Keep accounts in memory only")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

const usage = `Usage: x1-duel [flags] <command> [args]

Commands:
  serve               Run the node (default)
  keygen -out FILE    Generate a key and write it as a keystore or Solana keygen file
  snapshot -out FILE  Write an account snapshot from the data directory
  version             Print version

Flags:
`

func main() {
	klog.InitFlags(nil)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	defer klog.Flush()

	if *showVersion {
		printVersion()
		return
	}

	cmd, args := "serve", []string(nil)
	if flag.NArg() > 0 {
		cmd, args = flag.Arg(0), flag.Args()[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = serve()
	case "keygen":
		err = keygen(args)
	case "snapshot":
		err = snapshot(args)
	case "version":
		printVersion()
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		klog.Errorf("%s: %v", cmd, err)
		klog.Flush()
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("x1-duel %s (%s)\n", Version, GitCommit)
}

// loadConfig layers the config file, environment and command line flags.
func loadConfig() (*node.Config, error) {
	cfg, err := node.LoadConfig(*configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(*envFile); err != nil {
		return nil, err
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *rpcAddr != "" {
		cfg.RPC.Server.Addr = *rpcAddr
	}
	if *dashboardAddr != "" {
		cfg.Dashboard.Enabled = true
		cfg.Dashboard.Server.Addr = *dashboardAddr
	}
	if *inMemory {
		cfg.InMemory = true
	}
	cfg.OnError = func(err error) {
		klog.Warningf("background error: %v", err)
	}
	return &cfg, nil
}

func serve() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	klog.Infof("Starting x1-duel %s", Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	n, err := node.New(cfg, nil)
	if err != nil {
		return err
	}
	if err := n.Start(ctx); err != nil {
		return err
	}
	if n.Faucet() != nil {
		klog.Infof("Faucet %s enabled (limit %s SOL per request)",
			n.Faucet().Public, types.FormatSol(cfg.RPC.Server.AirdropLimit))
	}

	sig := <-sigChan
	klog.Infof("Received signal %v, shutting down...", sig)
	cancel()

	status := n.Status()
	if err := n.Stop(); err != nil {
		return err
	}
	klog.Infof("Processed %d transactions (%d failed), final slot %d",
		status.TxsProcessed, status.TxsFailed, status.Slot)
	return nil
}

func keygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	out := fs.String("out", "", "Output file")
	solana := fs.Bool("solana", false, "Write an unencrypted Solana CLI keypair file")
	passwordEnv := fs.String("password-env", "X1DUEL_KEYSTORE_PASSWORD", "Environment variable holding the keystore password")
	iterations := fs.Int("iterations", wallet.DefaultIterations, "PBKDF2 iterations")
	fs.Parse(args)

	if *out == "" {
		return errors.New("-out is required")
	}

	kp, err := types.NewKeypair()
	if err != nil {
		return err
	}

	if *solana {
		err = wallet.ExportSolanaKeygen(*out, kp)
	} else {
		password := os.Getenv(*passwordEnv)
		if password == "" {
			return fmt.Errorf("%s is empty", *passwordEnv)
		}
		err = wallet.Save(*out, kp, password, *iterations)
	}
	if err != nil {
		return err
	}

	fmt.Println(kp.Public)
	return nil
}

func snapshot(args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	out := fs.String("out", "", "Snapshot output file")
	fs.Parse(args)

	if *out == "" {
		return errors.New("-out is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.InMemory {
		return errors.New("cannot snapshot an in-memory node from the command line")
	}
	// Open storage only.
	cfg.RPC.Enabled = false
	cfg.History.Enabled = false
	cfg.StatusInterval = 0
	cfg.Genesis = node.GenesisConfig{}
	cfg.RPC.FaucetKeyPath = ""
	cfg.RPC.Server.AirdropLimit = 0

	n, err := node.New(cfg, nil)
	if err != nil {
		return err
	}
	if err := n.Start(context.Background()); err != nil {
		return err
	}
	defer n.Stop()

	header, err := n.CreateSnapshot(*out)
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %d accounts at slot %d to %s\nAccounts hash: %s\n",
		header.AccountsCount, header.Slot, *out, header.AccountsHash)
	return nil
}
