// Package history keeps a queryable SQL index of duel matches, built from the
// events of committed transactions. SQLite is the default backend; PostgreSQL
// is used when the driver is "postgres".
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"k8s.io/klog/v2"

	"github.com/fortiblox/X1-Duel/pkg/events"
)

var (
	// ErrNotFound is returned when a match has no history row.
	ErrNotFound = errors.New("match not found in history")

	// ErrUnknownDriver is returned for unsupported database drivers.
	ErrUnknownDriver = errors.New("unknown history driver")
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects the history database.
type Config struct {
	// Driver is DriverSQLite or DriverPostgres.
	Driver string `yaml:"driver"`

	// DSN is a file path for SQLite or a connection string for PostgreSQL.
	DSN string `yaml:"dsn"`
}

// DefaultConfig returns a SQLite configuration stored at path.
func DefaultConfig(path string) Config {
	return Config{Driver: DriverSQLite, DSN: path}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Driver)
	}
	if c.DSN == "" {
		return errors.New("history dsn is empty")
	}
	return nil
}

// Store is the match history database.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the configured database and creates the schema.
func Open(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sqlDriver := "sqlite3"
	if cfg.Driver == DriverPostgres {
		sqlDriver = "pgx"
	}
	db, err := sql.Open(sqlDriver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == DriverSQLite {
		// SQLite serializes writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	s := &Store{db: db, driver: cfg.Driver}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	klog.Infof("[history] opened %s database", cfg.Driver)
	return s, nil
}

func (s *Store) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS matches (
			match_address TEXT PRIMARY KEY,
			match_id      TEXT NOT NULL,
			player1       TEXT NOT NULL,
			player2       TEXT NOT NULL DEFAULT '',
			stake_amount  BIGINT NOT NULL,
			status        TEXT NOT NULL,
			winner        TEXT NOT NULL DEFAULT '',
			fee_amount    BIGINT NOT NULL DEFAULT 0,
			prize_amount  BIGINT NOT NULL DEFAULT 0,
			refunded      BIGINT NOT NULL DEFAULT 0,
			created_at    BIGINT NOT NULL,
			started_at    BIGINT NOT NULL DEFAULT 0,
			ended_at      BIGINT NOT NULL DEFAULT 0,
			claimed_at    BIGINT NOT NULL DEFAULT 0,
			created_slot  BIGINT NOT NULL,
			updated_slot  BIGINT NOT NULL,
			last_signature TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_player1 ON matches (player1)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_player2 ON matches (player2)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_status ON matches (status)`,
		`CREATE TABLE IF NOT EXISTS treasury_withdrawals (
			signature   TEXT PRIMARY KEY,
			destination TEXT NOT NULL,
			amount      BIGINT NOT NULL,
			slot        BIGINT NOT NULL,
			block_time  BIGINT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Attach subscribes the store to every event published by em.
func (s *Store) Attach(em *events.Emitter) {
	em.Subscribe(events.Wildcard, func(ev events.Event) {
		if err := s.Apply(ev); err != nil {
			klog.Errorf("[history] failed to apply %s from %s: %v", ev.Name, ev.Signature, err)
		}
	})
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) exec(query string, args ...interface{}) (sql.Result, error) {
	return s.db.Exec(s.rebind(query), args...)
}

func (s *Store) query(query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.Query(s.rebind(query), args...)
}

func (s *Store) queryRow(query string, args ...interface{}) *sql.Row {
	return s.db.QueryRow(s.rebind(query), args...)
}
