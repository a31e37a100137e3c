package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agristock/ledger-engine/ledger"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T, path string, mutate func(*Config)) *Store {
	cfg := DefaultConfig()
	cfg.RetryBaseDelay = time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	store, err := New(path, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// =============================================================================
// UNIT OF WORK TESTS
// =============================================================================

func TestStore_WithTx_CommitsOnNil(t *testing.T) {
	store := newTestStore(t, ":memory:", nil)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO users (username, password_hash) VALUES ('alice', 'x')")
		return err
	})
	require.NoError(t, err)

	var count int
	err = store.WithTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	store := newTestStore(t, ":memory:", nil)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO users (username, password_hash) VALUES ('bob', 'x')"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, store.WithTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	}))
	assert.Equal(t, 0, count, "failed unit of work must leave nothing behind")
}

func TestStore_MemoryDatabaseSharedAcrossSlots(t *testing.T) {
	// A write on one pool slot must be visible on every other slot, even
	// for in-memory databases.
	store := newTestStore(t, ":memory:", nil)
	ctx := context.Background()

	require.NoError(t, store.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO users (username, password_hash) VALUES ('carol', 'x')")
		return err
	}))

	// Cycle through enough transactions to touch multiple slots.
	for i := 0; i < 5; i++ {
		var name string
		require.NoError(t, store.WithTx(ctx, func(tx *sql.Tx) error {
			return tx.QueryRowContext(ctx, "SELECT username FROM users WHERE username = 'carol'").Scan(&name)
		}))
		assert.Equal(t, "carol", name)
	}
}

// =============================================================================
// BUSY CLASSIFICATION TESTS
// =============================================================================

func TestStore_ClassifyBusyErrors(t *testing.T) {
	store := newTestStore(t, ":memory:", nil)

	busy := sqlite3.Error{Code: sqlite3.ErrBusy}
	assert.ErrorIs(t, store.classify(busy), ledger.ErrStoreBusy)

	locked := sqlite3.Error{Code: sqlite3.ErrLocked}
	assert.ErrorIs(t, store.classify(locked), ledger.ErrStoreBusy)

	textual := fmt.Errorf("exec failed: database is locked")
	assert.ErrorIs(t, store.classify(textual), ledger.ErrStoreBusy)

	other := errors.New("no such table: nope")
	assert.NotErrorIs(t, store.classify(other), ledger.ErrStoreBusy)

	assert.NoError(t, store.classify(nil))
}

func TestStore_ConcurrentWriterGetsBusy(t *testing.T) {
	// GIVEN: One writer holding the write lock on a file database
	// WHEN: A second writer exceeds its (short) busy timeout
	// THEN: The failure surfaces as ErrStoreBusy

	path := filepath.Join(t.TempDir(), "busy.db")
	store := newTestStore(t, path, func(cfg *Config) {
		cfg.BusyTimeout = 50 * time.Millisecond
	})
	ctx := context.Background()

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- store.WithTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, "INSERT INTO users (username, password_hash) VALUES ('holder', 'x')"); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()

	<-locked
	err := store.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO users (username, password_hash) VALUES ('blocked', 'x')")
		return err
	})
	close(release)

	assert.ErrorIs(t, err, ledger.ErrStoreBusy)
	assert.NoError(t, <-done)
	assert.Greater(t, store.Stats().BusyErrors, int64(0))
}

// =============================================================================
// RETRY LAYER TESTS
// =============================================================================

func TestStore_WithTxRetry_RetriesOnBusyOnly(t *testing.T) {
	store := newTestStore(t, ":memory:", func(cfg *Config) {
		cfg.RetryAttempts = 3
	})
	ctx := context.Background()

	calls := 0
	err := store.WithTxRetry(ctx, func(tx *sql.Tx) error {
		calls++
		return fmt.Errorf("%w: synthetic", ledger.ErrStoreBusy)
	})
	assert.ErrorIs(t, err, ledger.ErrStoreBusy)
	assert.Equal(t, 3, calls, "busy failures retry up to the attempt bound")
	assert.Equal(t, int64(2), store.Stats().Retries)
}

func TestStore_WithTxRetry_NoRetryOnOtherErrors(t *testing.T) {
	store := newTestStore(t, ":memory:", func(cfg *Config) {
		cfg.RetryAttempts = 3
	})
	ctx := context.Background()

	boom := errors.New("boom")
	calls := 0
	err := store.WithTxRetry(ctx, func(tx *sql.Tx) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls, "only busy failures are retried")
}

func TestStore_WithTxRetry_SucceedsAfterTransientBusy(t *testing.T) {
	store := newTestStore(t, ":memory:", func(cfg *Config) {
		cfg.RetryAttempts = 3
	})
	ctx := context.Background()

	calls := 0
	err := store.WithTxRetry(ctx, func(tx *sql.Tx) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("%w: synthetic", ledger.ErrStoreBusy)
		}
		_, err := tx.ExecContext(ctx, "INSERT INTO users (username, password_hash) VALUES ('dave', 'x')")
		return err
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

// =============================================================================
// MIGRATION TESTS
// =============================================================================

func TestStore_MigrationIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrate.db")

	first := newTestStore(t, path, nil)
	first.Close()

	// Reopening the same file must not re-run the schema.
	second := newTestStore(t, path, nil)
	ctx := context.Background()

	var version int
	require.NoError(t, second.WithTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version)
	}))
	assert.Equal(t, schemaVersion, version)
}
