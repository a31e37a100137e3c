/*
store.go - SQLite store: unit-of-work wrapper and statement retry layer

PURPOSE:
  The only place transactions are opened and closed. Every ledger
  operation runs inside exactly one WithTx scope, so a ledger row write
  and its paired stock adjustment(s) commit or roll back together.

UNIT OF WORK:
  WithTx acquires a slot, begins a transaction, runs the caller's
  function, commits on nil, rolls back on error, and always returns the
  slot to the pool. Engine busy/locked conditions are classified into
  ledger.ErrStoreBusy so the retry layer and the HTTP boundary can treat
  them specially.

RETRY LAYER:
  WithTxRetry retries the whole unit of work with exponential backoff,
  but ONLY on ErrStoreBusy. Version conflicts and business-rule errors
  propagate immediately: re-running those would reapply a delta computed
  against stale state and silently decide a race.

PRAGMAS:
  Handles are opened with WAL journaling (readers don't block on the
  writer), foreign keys on, NORMAL synchronous, and a short in-engine
  busy wait before SQLITE_BUSY is reported.

SCHEMA:
  Migration is PRAGMA user_version driven. ":memory:" is rewritten to a
  uniquely named shared-cache memory database so every pool slot sees
  the same data.

SEE ALSO:
  - pool.go: slot lifecycle
  - ledger/: domain logic executed inside WithTx scopes
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/agristock/ledger-engine/ledger"
)

// schemaVersion is bumped whenever migrate learns a new upgrade step.
const schemaVersion = 1

// Config carries every knob the store consumes at construction.
type Config struct {
	MaxConnections int
	AcquireTimeout time.Duration
	BusyTimeout    time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
}

// DefaultConfig matches a small deployment: a handful of concurrent
// clients against one data file.
func DefaultConfig() Config {
	return Config{
		MaxConnections: 10,
		AcquireTimeout: 30 * time.Second,
		BusyTimeout:    5 * time.Second,
		RetryAttempts:  3,
		RetryBaseDelay: 100 * time.Millisecond,
	}
}

// Store implements ledger.Runner on top of the connection pool.
type Store struct {
	pool *Pool
	cfg  Config
	log  *zap.Logger
}

var memorySeq atomic.Int64

// New opens (or creates) the database at path and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(path string, cfg Config, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	pool, err := NewPool(buildDSN(path, cfg), PoolConfig{
		MaxConnections: cfg.MaxConnections,
		AcquireTimeout: cfg.AcquireTimeout,
		BusyTimeout:    cfg.BusyTimeout,
	}, log)
	if err != nil {
		return nil, err
	}

	s := &Store{pool: pool, cfg: cfg, log: log}
	if err := s.migrate(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// buildDSN translates a path into a mattn/go-sqlite3 DSN. A plain
// ":memory:" database would be private to each pool slot, so it is
// rewritten to a shared-cache memory database with a unique name.
func buildDSN(path string, cfg Config) string {
	base := "file:" + path + "?"
	if path == ":memory:" {
		base = fmt.Sprintf("file:ledgermem%d?mode=memory&cache=shared&", memorySeq.Add(1))
	}
	return base + fmt.Sprintf(
		"_journal_mode=WAL&_foreign_keys=on&_synchronous=NORMAL&_busy_timeout=%d",
		cfg.BusyTimeout.Milliseconds())
}

// Close shuts the pool down. Called once at process shutdown.
func (s *Store) Close() {
	s.pool.Close()
}

// Stats exposes the pool's bookkeeping for the admin surface.
func (s *Store) Stats() PoolStats {
	return s.pool.Stats()
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

// WithTx runs fn inside one transaction on an exclusively-held slot.
// Commit on nil, rollback on error, slot released on every exit path.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Release(conn)

	tx, err := conn.db.BeginTx(ctx, nil)
	if err != nil {
		return s.classify(err)
	}
	conn.tx = tx
	defer func() {
		conn.tx = nil
		tx.Rollback() // no-op after commit
	}()

	if err := fn(tx); err != nil {
		return s.classify(err)
	}
	if err := tx.Commit(); err != nil {
		return s.classify(err)
	}
	return nil
}

// classify turns the engine's busy/locked signal into ErrStoreBusy and
// leaves every other failure untouched.
func (s *Store) classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ledger.ErrStoreBusy) {
		s.pool.noteBusy()
		return err
	}

	var se sqlite3.Error
	if errors.As(err, &se) {
		if se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked {
			s.pool.noteBusy()
			return fmt.Errorf("%w: %v", ledger.ErrStoreBusy, err)
		}
		return err
	}
	// Some paths only surface the engine's message text.
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked") {
		s.pool.noteBusy()
		return fmt.Errorf("%w: %v", ledger.ErrStoreBusy, err)
	}
	return err
}

// =============================================================================
// RETRY LAYER
// =============================================================================

// WithTxRetry runs fn as a unit of work, retrying up to the configured
// attempt bound with exponential backoff, strictly on ErrStoreBusy.
func (s *Store) WithTxRetry(ctx context.Context, fn func(tx *sql.Tx) error) error {
	attempts := s.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		err := s.WithTx(ctx, fn)
		if err == nil || !errors.Is(err, ledger.ErrStoreBusy) {
			return err
		}
		last = err

		if attempt == attempts-1 {
			break
		}
		s.pool.noteRetry()
		delay := s.cfg.RetryBaseDelay * (1 << attempt)
		s.log.Debug("store busy, backing off",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return last
}

// =============================================================================
// SCHEMA
// =============================================================================

func (s *Store) migrate(ctx context.Context) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		var version int
		if err := tx.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
			return err
		}
		if version >= schemaVersion {
			return nil
		}
		if version == 0 {
			if _, err := tx.ExecContext(ctx, schema); err != nil {
				return err
			}
		}
		// Future upgrade steps branch on version here.
		_, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion))
		if err == nil {
			s.log.Info("database schema ready", zap.Int("version", schemaVersion))
		}
		return err
	})
}

const schema = `
-- Accounts
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT (datetime('now')),
	last_login_at TEXT
);

-- Per-user preferences, one row per account, created on first read
CREATE TABLE IF NOT EXISTS user_settings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL UNIQUE,
	dark_mode INTEGER NOT NULL DEFAULT 0,
	auto_backup_enabled INTEGER NOT NULL DEFAULT 0,
	auto_backup_interval INTEGER NOT NULL DEFAULT 15,
	auto_backup_max_count INTEGER NOT NULL DEFAULT 20,
	last_backup_time TEXT,
	created_at TEXT NOT NULL DEFAULT (datetime('now')),
	updated_at TEXT NOT NULL DEFAULT (datetime('now')),
	FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
);

-- Tenants
CREATE TABLE IF NOT EXISTS workspaces (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	description TEXT,
	owner_id INTEGER NOT NULL,
	created_at TEXT NOT NULL DEFAULT (datetime('now')),
	FOREIGN KEY (owner_id) REFERENCES users (id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS workspace_members (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	workspace_id INTEGER NOT NULL,
	user_id INTEGER NOT NULL,
	role TEXT NOT NULL CHECK (role IN ('owner', 'admin', 'editor', 'viewer')),
	joined_at TEXT NOT NULL DEFAULT (datetime('now')),
	FOREIGN KEY (workspace_id) REFERENCES workspaces (id) ON DELETE CASCADE,
	FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE,
	UNIQUE (workspace_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_members_workspace ON workspace_members (workspace_id);
CREATE INDEX IF NOT EXISTS idx_members_user ON workspace_members (user_id);

-- Reference data
CREATE TABLE IF NOT EXISTS suppliers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	workspace_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	note TEXT,
	created_at TEXT NOT NULL DEFAULT (datetime('now')),
	updated_at TEXT NOT NULL DEFAULT (datetime('now')),
	FOREIGN KEY (workspace_id) REFERENCES workspaces (id) ON DELETE CASCADE,
	UNIQUE (workspace_id, name)
);

CREATE TABLE IF NOT EXISTS customers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	workspace_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	note TEXT,
	created_at TEXT NOT NULL DEFAULT (datetime('now')),
	updated_at TEXT NOT NULL DEFAULT (datetime('now')),
	FOREIGN KEY (workspace_id) REFERENCES workspaces (id) ON DELETE CASCADE,
	UNIQUE (workspace_id, name)
);

CREATE TABLE IF NOT EXISTS staff (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	workspace_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	note TEXT,
	created_at TEXT NOT NULL DEFAULT (datetime('now')),
	updated_at TEXT NOT NULL DEFAULT (datetime('now')),
	FOREIGN KEY (workspace_id) REFERENCES workspaces (id) ON DELETE CASCADE,
	UNIQUE (workspace_id, name)
);

-- Quantity-bearing entity. Stock moves only through the conditional
-- write protocol; version bumps by one per successful write.
CREATE TABLE IF NOT EXISTS products (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	workspace_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	description TEXT,
	stock REAL NOT NULL DEFAULT 0,
	unit TEXT NOT NULL,
	supplier_id INTEGER,
	version INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL DEFAULT (datetime('now')),
	updated_at TEXT NOT NULL DEFAULT (datetime('now')),
	FOREIGN KEY (workspace_id) REFERENCES workspaces (id) ON DELETE CASCADE,
	FOREIGN KEY (supplier_id) REFERENCES suppliers (id) ON DELETE SET NULL,
	UNIQUE (workspace_id, name)
);
CREATE INDEX IF NOT EXISTS idx_products_workspace ON products (workspace_id);

-- Stock-moving ledger rows. Product association is by name, resolved
-- at mutation time.
CREATE TABLE IF NOT EXISTS purchases (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	workspace_id INTEGER NOT NULL,
	product_name TEXT NOT NULL,
	quantity REAL NOT NULL,
	entry_date TEXT,
	supplier_id INTEGER,
	total_price TEXT,
	note TEXT,
	created_at TEXT NOT NULL DEFAULT (datetime('now')),
	FOREIGN KEY (workspace_id) REFERENCES workspaces (id) ON DELETE CASCADE,
	FOREIGN KEY (supplier_id) REFERENCES suppliers (id) ON DELETE SET NULL
);
CREATE INDEX IF NOT EXISTS idx_purchases_workspace ON purchases (workspace_id);

CREATE TABLE IF NOT EXISTS sales (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	workspace_id INTEGER NOT NULL,
	product_name TEXT NOT NULL,
	quantity REAL NOT NULL,
	entry_date TEXT,
	customer_id INTEGER,
	total_price TEXT,
	note TEXT,
	created_at TEXT NOT NULL DEFAULT (datetime('now')),
	FOREIGN KEY (workspace_id) REFERENCES workspaces (id) ON DELETE CASCADE,
	FOREIGN KEY (customer_id) REFERENCES customers (id) ON DELETE SET NULL
);
CREATE INDEX IF NOT EXISTS idx_sales_workspace ON sales (workspace_id);

CREATE TABLE IF NOT EXISTS returns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	workspace_id INTEGER NOT NULL,
	product_name TEXT NOT NULL,
	quantity REAL NOT NULL,
	entry_date TEXT,
	customer_id INTEGER,
	total_price TEXT,
	note TEXT,
	created_at TEXT NOT NULL DEFAULT (datetime('now')),
	FOREIGN KEY (workspace_id) REFERENCES workspaces (id) ON DELETE CASCADE,
	FOREIGN KEY (customer_id) REFERENCES customers (id) ON DELETE SET NULL
);
CREATE INDEX IF NOT EXISTS idx_returns_workspace ON returns (workspace_id);

-- Cash movements
CREATE TABLE IF NOT EXISTS income (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	workspace_id INTEGER NOT NULL,
	cash_date TEXT NOT NULL,
	customer_id INTEGER,
	amount TEXT NOT NULL,
	discount TEXT NOT NULL DEFAULT '0',
	staff_id INTEGER,
	payment_method TEXT NOT NULL CHECK (payment_method IN ('cash', 'wechat', 'bank')),
	note TEXT,
	created_at TEXT NOT NULL DEFAULT (datetime('now')),
	FOREIGN KEY (workspace_id) REFERENCES workspaces (id) ON DELETE CASCADE,
	FOREIGN KEY (customer_id) REFERENCES customers (id) ON DELETE SET NULL,
	FOREIGN KEY (staff_id) REFERENCES staff (id) ON DELETE SET NULL
);
CREATE INDEX IF NOT EXISTS idx_income_workspace ON income (workspace_id);

CREATE TABLE IF NOT EXISTS remittance (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	workspace_id INTEGER NOT NULL,
	cash_date TEXT NOT NULL,
	supplier_id INTEGER,
	amount TEXT NOT NULL,
	discount TEXT NOT NULL DEFAULT '0',
	staff_id INTEGER,
	payment_method TEXT NOT NULL CHECK (payment_method IN ('cash', 'wechat', 'bank')),
	note TEXT,
	created_at TEXT NOT NULL DEFAULT (datetime('now')),
	FOREIGN KEY (workspace_id) REFERENCES workspaces (id) ON DELETE CASCADE,
	FOREIGN KEY (supplier_id) REFERENCES suppliers (id) ON DELETE SET NULL,
	FOREIGN KEY (staff_id) REFERENCES staff (id) ON DELETE SET NULL
);
CREATE INDEX IF NOT EXISTS idx_remittance_workspace ON remittance (workspace_id);

-- Audit trail (append-only)
CREATE TABLE IF NOT EXISTS operation_logs (
	id TEXT PRIMARY KEY,
	workspace_id INTEGER,
	user_id INTEGER NOT NULL,
	username TEXT NOT NULL,
	action TEXT NOT NULL CHECK (action IN ('CREATE', 'UPDATE', 'DELETE')),
	entity_type TEXT NOT NULL,
	entity_id INTEGER,
	entity_name TEXT,
	old_data TEXT,
	new_data TEXT,
	note TEXT,
	created_at TEXT NOT NULL DEFAULT (datetime('now')),
	FOREIGN KEY (workspace_id) REFERENCES workspaces (id) ON DELETE SET NULL
);
CREATE INDEX IF NOT EXISTS idx_logs_workspace_time ON operation_logs (workspace_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_logs_entity ON operation_logs (entity_type, entity_id);
`
