package node

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/blockstore"
	"github.com/fortiblox/X1-Duel/pkg/dashboard"
	"github.com/fortiblox/X1-Duel/pkg/history"
	"github.com/fortiblox/X1-Duel/pkg/rpc"
	"github.com/fortiblox/X1-Duel/pkg/svm"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "X1DUEL_"

// Config holds node configuration. It is read from YAML, then overridden by
// X1DUEL_* environment variables, then by command-line flags.
type Config struct {
	// DataDir is the root directory for all node data.
	// Subdirectories are created for accounts, ledger and history.
	DataDir string `yaml:"data_dir"`

	// InMemory keeps account state in memory. The ledger and history still
	// live under DataDir.
	InMemory bool `yaml:"in_memory"`

	// SnapshotPath restores account state from a snapshot when the account
	// store is empty.
	SnapshotPath string `yaml:"snapshot_path"`

	Executor  ExecutorConfig  `yaml:"executor"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	History   HistoryConfig   `yaml:"history"`
	RPC       RPCConfig       `yaml:"rpc"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Genesis   GenesisConfig   `yaml:"genesis"`

	// StatusInterval is how often the node logs its status. Zero disables it.
	StatusInterval time.Duration `yaml:"status_interval"`

	// OnError is called for background errors (optional).
	OnError func(err error) `yaml:"-"`
}

// ExecutorConfig configures transaction execution.
type ExecutorConfig struct {
	ComputeLimit      uint64 `yaml:"compute_limit"`
	MaxTransactionAge int64  `yaml:"max_transaction_age"`
}

// LedgerConfig configures the transaction ledger.
type LedgerConfig struct {
	NoSync        bool          `yaml:"no_sync"`
	PruneEnabled  bool          `yaml:"prune_enabled"`
	PruneInterval time.Duration `yaml:"prune_interval"`
	RetainSlots   uint64        `yaml:"retain_slots"`
}

// HistoryConfig configures the SQL match-history index.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`

	// Driver is "sqlite" or "postgres". DSN defaults to a file under DataDir
	// for sqlite.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// RPCConfig configures the JSON-RPC server.
type RPCConfig struct {
	Enabled bool       `yaml:"enabled"`
	Server  rpc.Config `yaml:",inline"`

	// FaucetKeyPath is a Solana keygen file or an encrypted keystore funding
	// requestAirdrop. The keystore password is read from X1DUEL_FAUCET_PASSWORD.
	FaucetKeyPath string `yaml:"faucet_key_path"`
}

// DashboardConfig configures the operator web dashboard.
type DashboardConfig struct {
	Enabled bool             `yaml:"enabled"`
	Server  dashboard.Config `yaml:",inline"`
}

// GenesisConfig funds accounts the first time the node starts on an empty
// account store.
type GenesisConfig struct {
	Accounts []GenesisAccount `yaml:"accounts"`

	// FaucetLamports is credited to the faucet key, if configured.
	FaucetLamports uint64 `yaml:"faucet_lamports"`
}

// GenesisAccount is a system-owned wallet created at genesis. Amount is in
// SOL so configs stay readable ("12.5").
type GenesisAccount struct {
	Address string `yaml:"address"`
	Amount  string `yaml:"amount"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	rpcConfig := rpc.DefaultConfig()
	return Config{
		DataDir: "./data",
		Executor: ExecutorConfig{
			ComputeLimit:      svm.CUDefault,
			MaxTransactionAge: 150,
		},
		Ledger: LedgerConfig{
			PruneEnabled:  false,
			PruneInterval: time.Hour,
			RetainSlots:   blockstore.DefaultRetainSlots,
		},
		History: HistoryConfig{
			Enabled: true,
			Driver:  history.DriverSQLite,
		},
		RPC: RPCConfig{
			Enabled: true,
			Server:  rpcConfig,
		},
		Dashboard: DashboardConfig{
			Server: dashboard.DefaultConfig(),
		},
		StatusInterval: time.Minute,
	}
}

// LoadConfig reads a YAML config file over the defaults. An empty path
// returns the defaults.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("%w: parse %s: %v", ErrConfigInvalid, path, err)
	}
	return config, nil
}

// ApplyEnv loads envFile (if it exists) into the process environment and
// applies X1DUEL_* overrides.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var errs []error
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	unsigned := func(name string, dst *uint64) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}

	str("DATA_DIR", &c.DataDir)
	boolean("IN_MEMORY", &c.InMemory)
	str("SNAPSHOT_PATH", &c.SnapshotPath)
	boolean("HISTORY_ENABLED", &c.History.Enabled)
	str("HISTORY_DRIVER", &c.History.Driver)
	str("HISTORY_DSN", &c.History.DSN)
	boolean("RPC_ENABLED", &c.RPC.Enabled)
	str("RPC_ADDR", &c.RPC.Server.Addr)
	boolean("RPC_LOG_REQUESTS", &c.RPC.Server.LogRequests)
	unsigned("AIRDROP_LIMIT", &c.RPC.Server.AirdropLimit)
	boolean("DASHBOARD_ENABLED", &c.Dashboard.Enabled)
	str("DASHBOARD_ADDR", &c.Dashboard.Server.Addr)
	str("FAUCET_KEY_PATH", &c.RPC.FaucetKeyPath)
	unsigned("FAUCET_LAMPORTS", &c.Genesis.FaucetLamports)
	boolean("LEDGER_PRUNE", &c.Ledger.PruneEnabled)
	unsigned("LEDGER_RETAIN_SLOTS", &c.Ledger.RetainSlots)
	if v, ok := os.LookupEnv(EnvPrefix + "ALLOWED_ORIGINS"); ok {
		c.RPC.Server.AllowedOrigins = strings.Split(v, ",")
	}

	return errors.Join(errs...)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data directory is required", ErrConfigInvalid)
	}
	if c.Executor.ComputeLimit == 0 {
		return fmt.Errorf("%w: compute limit must be positive", ErrConfigInvalid)
	}
	if c.History.Enabled {
		switch c.History.Driver {
		case history.DriverSQLite:
		case history.DriverPostgres:
			if c.History.DSN == "" {
				return fmt.Errorf("%w: postgres history requires a dsn", ErrConfigInvalid)
			}
		default:
			return fmt.Errorf("%w: unknown history driver %q", ErrConfigInvalid, c.History.Driver)
		}
	}
	if c.RPC.Enabled && c.RPC.Server.Addr == "" {
		return fmt.Errorf("%w: rpc address is required", ErrConfigInvalid)
	}
	if c.Dashboard.Enabled && c.Dashboard.Server.Addr == "" {
		return fmt.Errorf("%w: dashboard address is required", ErrConfigInvalid)
	}
	if c.RPC.Enabled && c.Dashboard.Enabled && c.RPC.Server.Addr == c.Dashboard.Server.Addr {
		return fmt.Errorf("%w: rpc and dashboard share address %s", ErrConfigInvalid, c.RPC.Server.Addr)
	}
	if c.RPC.Server.AirdropLimit > 0 && c.RPC.FaucetKeyPath == "" {
		return fmt.Errorf("%w: airdrops need a faucet key", ErrConfigInvalid)
	}
	for _, acc := range c.Genesis.Accounts {
		if _, err := types.PubkeyFromBase58(acc.Address); err != nil {
			return fmt.Errorf("%w: genesis address %q: %v", ErrConfigInvalid, acc.Address, err)
		}
		if _, err := types.ParseSol(acc.Amount); err != nil {
			return fmt.Errorf("%w: genesis amount %q: %v", ErrConfigInvalid, acc.Amount, err)
		}
	}
	return nil
}
