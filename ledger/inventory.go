/*
inventory.go - Optimistic stock mutation protocol

PURPOSE:
  Serializes concurrent mutations of a product's stock across
  independently-issued ledger operations without locking readers.

PROTOCOL (per mutation attempt, inside the caller's transaction):
  1. Read (stock, version) of the target product.
  2. Compute newStock = stock + delta; reject if it would go negative.
  3. Conditional write: UPDATE ... SET stock, version = version + 1
     WHERE id = ? AND version = ? using the version from step 1.
  4. Verify: zero affected rows means another writer committed between
     steps 1 and 3 - fail with a version conflict.

  The losing writer of a race always observes the conflict; it is never
  silently overwritten. Conflicts are NOT retried here: the caller must
  re-fetch and re-decide, because reapplying a delta computed against
  stale state would mask the conflict instead of reporting it.

RE-ASSOCIATION:
  When a ledger row's product reference changes mid-update, the protocol
  runs twice in the same transaction - inverse delta on the old product,
  original delta on the new one. Either conditional write failing rolls
  the whole transaction back; a half-moved adjustment is never
  observable.

SEE ALSO:
  - entries.go: the ledger operations driving this protocol
  - errors.go: VersionConflictError, InsufficientStockError
*/
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// querier is the slice of *sql.Tx the protocol needs. Kept narrow so
// tests can drive it with anything transaction-shaped.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// productRow is the snapshot step 1 reads: the conflict token plus the
// value the delta applies to.
type productRow struct {
	ID      int64
	Name    string
	Stock   float64
	Version int64
}

func readProductByName(ctx context.Context, tx querier, workspaceID int64, name string) (*productRow, error) {
	var p productRow
	err := tx.QueryRowContext(ctx,
		"SELECT id, name, stock, version FROM products WHERE workspace_id = ? AND name = ?",
		workspaceID, name,
	).Scan(&p.ID, &p.Name, &p.Stock, &p.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrProductNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read product %q: %w", name, err)
	}
	return &p, nil
}

func readProductByID(ctx context.Context, tx querier, workspaceID, id int64) (*productRow, error) {
	var p productRow
	err := tx.QueryRowContext(ctx,
		"SELECT id, name, stock, version FROM products WHERE workspace_id = ? AND id = ?",
		workspaceID, id,
	).Scan(&p.ID, &p.Name, &p.Stock, &p.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrProductNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read product %d: %w", id, err)
	}
	return &p, nil
}

// writeStock performs steps 2-4 against a snapshot the caller already
// holds. The version in the WHERE clause is the whole point: the write
// succeeds only if nobody committed since the snapshot was taken.
func writeStock(ctx context.Context, tx querier, p *productRow, delta float64) (*StockResult, error) {
	newStock := p.Stock + delta
	if newStock < 0 {
		return nil, &InsufficientStockError{
			Product:   p.Name,
			Available: p.Stock,
			Requested: -delta,
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE products
		SET stock = ?, version = version + 1, updated_at = datetime('now')
		WHERE id = ? AND version = ?`,
		newStock, p.ID, p.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update stock of %q: %w", p.Name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, &VersionConflictError{Product: p.Name, ExpectedVersion: p.Version}
	}

	return &StockResult{
		ProductID:  p.ID,
		Product:    p.Name,
		NewStock:   newStock,
		NewVersion: p.Version + 1,
	}, nil
}

// adjustStock runs the full protocol for one product inside the
// caller's transaction: read, compute, conditional write, verify.
func adjustStock(ctx context.Context, tx querier, workspaceID int64, name string, delta float64) (*StockResult, error) {
	p, err := readProductByName(ctx, tx, workspaceID, name)
	if err != nil {
		return nil, err
	}
	return writeStock(ctx, tx, p, delta)
}

// moveAdjustment re-associates a ledger row's stock effect from one
// product to another: the old product's adjustment is reversed and the
// new product's applied, both conditionally, in the caller's (single)
// transaction. Any failure aborts the transaction, so the reversal is
// never observable without the application.
func moveAdjustment(ctx context.Context, tx querier, workspaceID int64, oldName string, oldDelta float64, newName string, newDelta float64) (*StockResult, error) {
	if _, err := adjustStock(ctx, tx, workspaceID, oldName, -oldDelta); err != nil {
		return nil, fmt.Errorf("reversing adjustment on %q: %w", oldName, err)
	}
	res, err := adjustStock(ctx, tx, workspaceID, newName, newDelta)
	if err != nil {
		return nil, fmt.Errorf("applying adjustment on %q: %w", newName, err)
	}
	return res, nil
}

// AdjustStock is the public conflict-token entry point: the caller
// supplies the version from its most recent read, and the write fails
// with a conflict if the product has moved on since. Used by the direct
// stock-correction endpoint.
func (s *Service) AdjustStock(ctx context.Context, actor Actor, workspaceID, productID int64, delta float64, expectedVersion int64) (*StockResult, error) {
	var result *StockResult
	err := s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		if err := s.requireRole(ctx, tx, workspaceID, actor, true); err != nil {
			return err
		}
		p, err := readProductByID(ctx, tx, workspaceID, productID)
		if err != nil {
			return err
		}
		if p.Version != expectedVersion {
			return &VersionConflictError{Product: p.Name, ExpectedVersion: expectedVersion}
		}
		result, err = writeStock(ctx, tx, p, delta)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, AuditEntry{
		WorkspaceID: workspaceID,
		UserID:      actor.UserID,
		Username:    actor.Username,
		Action:      AuditUpdate,
		EntityType:  "product",
		EntityID:    result.ProductID,
		EntityName:  result.Product,
		NewData:     fmt.Sprintf(`{"stock":%g,"version":%d}`, result.NewStock, result.NewVersion),
		Note:        "manual stock adjustment",
	})
	return result, nil
}
