/*
pool.go - Bounded SQLite connection pool with lazy growth

PURPOSE:
  SQLite serializes writers at the engine level, so piling unbounded
  handles onto one data file only converts contention into failures.
  The pool bounds how many handles exist, creates them lazily up to that
  bound, and makes callers wait (with a deadline) instead of failing
  outright when the file is busy.

SLOT MODEL:
  Each Conn owns a dedicated database/sql handle capped at one underlying
  connection, so a checked-out slot is exclusively the caller's: its
  PRAGMAs, its open transaction, its locks. Slots are never shared
  between two callers simultaneously.

ACQUIRE ALGORITHM:
  1. Take an idle slot if one is available.
  2. Otherwise create a new slot if active < maxConnections.
  3. Otherwise poll the idle queue in short intervals until the
     cumulative wait exceeds the acquire timeout.
  Lazy growth is deliberate: per-handle setup cost is non-trivial and
  most deployments run single-digit concurrent clients.

RELEASE ALGORITHM:
  Roll back any transaction left open, probe the slot with SELECT 1,
  discard it if the probe fails (a corrupted handle must never poison
  the pool), re-enqueue otherwise. The active decrement and the
  enqueue/discard decision happen in one locked step, so a stats
  snapshot never counts a slot as checked out after it became idle.

CONCURRENCY:
  activeCount and the idle queue are the only state touched by multiple
  goroutines; one mutex guards the counter, the buffered channel is the
  queue. A slot can never be simultaneously idle and checked out.

SEE ALSO:
  - store.go: unit-of-work and retry layers built on the pool
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agristock/ledger-engine/ledger"
)

// pollInterval is how long Acquire waits on the idle queue per round
// before re-checking whether it may create a slot or has timed out.
const pollInterval = 50 * time.Millisecond

// prewarmSlots is how many slots are created eagerly at startup.
const prewarmSlots = 3

// PoolConfig carries the scalar knobs the pool consumes at construction.
// No dynamic reconfiguration: the pool is built once per process.
type PoolConfig struct {
	MaxConnections int
	AcquireTimeout time.Duration
	BusyTimeout    time.Duration
}

// Conn is an exclusively-owned handle to the database. Between Acquire
// and Release exactly one caller touches it.
type Conn struct {
	db *sql.DB

	// tx is the transaction currently open on this slot, if any. Set by
	// the unit-of-work wrapper so Release can roll back defensively.
	tx *sql.Tx
}

// AcquireTimeoutError reports pool exhaustion past the deadline, with
// the counters a caller needs for observability.
type AcquireTimeoutError struct {
	Active int
	Max    int
	Waited time.Duration
}

func (e *AcquireTimeoutError) Error() string {
	return fmt.Sprintf("no connection available after %s (active %d/%d)",
		e.Waited, e.Active, e.Max)
}

func (e *AcquireTimeoutError) Unwrap() error {
	return ledger.ErrAcquireTimeout
}

// PoolStats is a point-in-time snapshot of pool bookkeeping.
type PoolStats struct {
	Active       int   `json:"active"`
	Idle         int   `json:"idle"`
	Max          int   `json:"max"`
	TotalCreated int64 `json:"totalCreated"`
	BusyErrors   int64 `json:"busyErrors"`
	Retries      int64 `json:"retries"`
}

// Pool owns a bounded multiset of Conns.
type Pool struct {
	dsn string
	cfg PoolConfig
	log *zap.Logger

	mu           sync.Mutex
	active       int
	totalCreated int64
	busyErrors   int64
	retries      int64
	closed       bool

	idle chan *Conn
}

// NewPool creates the pool and pre-warms a few slots so the first
// requests don't all pay the creation cost at once.
func NewPool(dsn string, cfg PoolConfig, log *zap.Logger) (*Pool, error) {
	if cfg.MaxConnections <= 0 {
		return nil, fmt.Errorf("max connections must be positive, got %d", cfg.MaxConnections)
	}

	p := &Pool{
		dsn:  dsn,
		cfg:  cfg,
		log:  log,
		idle: make(chan *Conn, cfg.MaxConnections),
	}

	warm := prewarmSlots
	if warm > cfg.MaxConnections {
		warm = cfg.MaxConnections
	}
	for i := 0; i < warm; i++ {
		conn, err := p.newConn()
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to pre-warm pool: %w", err)
		}
		p.idle <- conn
	}

	log.Info("connection pool ready",
		zap.Int("maxConnections", cfg.MaxConnections),
		zap.Int("prewarmed", warm))
	return p, nil
}

// newConn opens a dedicated handle. The single-connection cap is what
// makes a slot exclusive; the Ping forces the lazy open so creation
// failures surface here, not on first use.
func (p *Pool) newConn() (*Conn, error) {
	db, err := sql.Open("sqlite3", p.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database handle: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to establish connection: %w", err)
	}

	p.mu.Lock()
	p.totalCreated++
	p.mu.Unlock()

	return &Conn{db: db}, nil
}

// Acquire returns an exclusive slot, blocking with bounded wait.
// Past AcquireTimeout it fails with AcquireTimeoutError; the caller
// decides whether that becomes a service-busy response.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	start := time.Now()
	timer := time.NewTimer(pollInterval)
	defer timer.Stop()

	for {
		// Fast path: an idle slot is free.
		select {
		case conn := <-p.idle:
			p.checkOut()
			return conn, nil
		default:
		}

		// Grow lazily while under the bound. The counter is bumped
		// before the handle is opened so two racing callers cannot
		// both slip past maxConnections.
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, fmt.Errorf("pool is closed")
		}
		if p.active < p.cfg.MaxConnections {
			p.active++
			p.mu.Unlock()

			conn, err := p.newConn()
			if err != nil {
				p.mu.Lock()
				p.active--
				p.mu.Unlock()
				return nil, err
			}
			return conn, nil
		}
		p.mu.Unlock()

		// At capacity: wait for a release or the deadline.
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(pollInterval)

		select {
		case conn := <-p.idle:
			p.checkOut()
			return conn, nil
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if waited := time.Since(start); waited >= p.cfg.AcquireTimeout {
			p.mu.Lock()
			active := p.active
			p.mu.Unlock()
			p.log.Warn("connection acquire timed out",
				zap.Duration("waited", waited),
				zap.Int("active", active),
				zap.Int("max", p.cfg.MaxConnections))
			return nil, &AcquireTimeoutError{
				Active: active,
				Max:    p.cfg.MaxConnections,
				Waited: waited,
			}
		}
	}
}

func (p *Pool) checkOut() {
	p.mu.Lock()
	p.active++
	p.mu.Unlock()
}

// Release returns a slot to the pool. Any open transaction is rolled
// back, a broken slot is discarded silently (an internal pool-health
// event, never a user-visible error), and the active count always
// drops, whichever path was taken.
func (p *Pool) Release(conn *Conn) {
	if conn == nil {
		return
	}

	if conn.tx != nil {
		conn.tx.Rollback()
		conn.tx = nil
	}

	broken := false
	var alive int
	if err := conn.db.QueryRow("SELECT 1").Scan(&alive); err != nil {
		p.log.Warn("discarding broken connection", zap.Error(err))
		broken = true
	}

	// Decrement and enqueue under one lock: a slot handed back to the
	// queue must already have left the active count, or a concurrent
	// checkout could push a stats snapshot past maxConnections.
	p.mu.Lock()
	if !broken {
		select {
		case p.idle <- conn:
			conn = nil
		default:
			// Queue saturated: a race with concurrent creation. Close
			// rather than block.
		}
	}
	p.active--
	p.mu.Unlock()

	if conn != nil {
		conn.db.Close()
	}
}

// Close drains and closes every idle slot and resets counters. Called
// once at process shutdown; not safe concurrently with in-flight
// Acquire/Release.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.active = 0
	p.mu.Unlock()

	for {
		select {
		case conn := <-p.idle:
			conn.db.Close()
		default:
			return
		}
	}
}

// Stats returns a snapshot of the pool's bookkeeping.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Active:       p.active,
		Idle:         len(p.idle),
		Max:          p.cfg.MaxConnections,
		TotalCreated: p.totalCreated,
		BusyErrors:   p.busyErrors,
		Retries:      p.retries,
	}
}

func (p *Pool) noteBusy() {
	p.mu.Lock()
	p.busyErrors++
	p.mu.Unlock()
}

func (p *Pool) noteRetry() {
	p.mu.Lock()
	p.retries++
	p.mu.Unlock()
}
