// products.go - product CRUD.
//
// Only non-stock fields are editable here. Stock moves exclusively
// through the mutation protocol in inventory.go, so version stays an
// honest count of stock writes.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ProductInput carries the writable non-stock fields of a product.
// Pointer fields distinguish "leave unchanged" from "set to zero value".
type ProductInput struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Unit        *string `json:"unit,omitempty"`
	SupplierID  *int64  `json:"supplierId,omitempty"`
}

const productColumns = `id, workspace_id, name, COALESCE(description, ''), stock,
	COALESCE(unit, ''), supplier_id, version, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*Product, error) {
	var p Product
	var supplierID sql.NullInt64
	if err := row.Scan(&p.ID, &p.WorkspaceID, &p.Name, &p.Description, &p.Stock,
		&p.Unit, &supplierID, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.SupplierID = scanNullableID(supplierID)
	return &p, nil
}

// CreateProduct inserts a product with its opening stock. The version
// starts at 1; the first stock mutation bumps it to 2.
func (s *Service) CreateProduct(ctx context.Context, actor Actor, workspaceID int64, name, description, unit string, stock float64, supplierID *int64) (*Product, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: product name is required", ErrNoFields)
	}
	if stock < 0 {
		return nil, fmt.Errorf("%w: opening stock cannot be negative", ErrNoFields)
	}

	var p *Product
	err := s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		if err := s.requireRole(ctx, tx, workspaceID, actor, true); err != nil {
			return err
		}
		if supplierID != nil && *supplierID != 0 {
			if err := requirePartner(ctx, tx, workspaceID, "suppliers", *supplierID); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO products (workspace_id, name, description, stock, unit, supplier_id) VALUES (?, ?, ?, ?, ?, ?)",
			workspaceID, name, description, stock, unit, nullableID(supplierID),
		)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: product %q", ErrDuplicateName, name)
		}
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		p, err = scanProduct(tx.QueryRowContext(ctx,
			"SELECT "+productColumns+" FROM products WHERE id = ?", id))
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, AuditEntry{
		WorkspaceID: workspaceID,
		UserID:      actor.UserID,
		Username:    actor.Username,
		Action:      AuditCreate,
		EntityType:  "product",
		EntityID:    p.ID,
		EntityName:  p.Name,
		NewData:     mustJSON(p),
	})
	return p, nil
}

// ListProducts returns the workspace's products, optionally filtered by
// a case-insensitive name substring.
func (s *Service) ListProducts(ctx context.Context, actor Actor, workspaceID int64, search string) ([]Product, error) {
	var out []Product
	err := s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		if err := s.requireRole(ctx, tx, workspaceID, actor, false); err != nil {
			return err
		}

		query := "SELECT " + productColumns + " FROM products WHERE workspace_id = ?"
		args := []any{workspaceID}
		if search != "" {
			query += " AND name LIKE ?"
			args = append(args, "%"+search+"%")
		}
		query += " ORDER BY name"

		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			p, err := scanProduct(rows)
			if err != nil {
				return err
			}
			out = append(out, *p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetProduct returns one product, including the version a caller needs
// as its conflict token for a direct stock adjustment.
func (s *Service) GetProduct(ctx context.Context, actor Actor, workspaceID, id int64) (*Product, error) {
	var p *Product
	err := s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		if err := s.requireRole(ctx, tx, workspaceID, actor, false); err != nil {
			return err
		}
		var err error
		p, err = scanProduct(tx.QueryRowContext(ctx,
			"SELECT "+productColumns+" FROM products WHERE workspace_id = ? AND id = ?",
			workspaceID, id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: id %d", ErrProductNotFound, id)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateProduct patches the non-stock fields named in the input. An
// input with nothing set is rejected rather than silently ignored.
func (s *Service) UpdateProduct(ctx context.Context, actor Actor, workspaceID, id int64, in ProductInput) (*Product, error) {
	if in.Name == nil && in.Description == nil && in.Unit == nil && in.SupplierID == nil {
		return nil, fmt.Errorf("%w: no product fields to update", ErrNoFields)
	}
	if in.Name != nil && *in.Name == "" {
		return nil, fmt.Errorf("%w: product name cannot be empty", ErrNoFields)
	}

	var p *Product
	var old *Product
	err := s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		if err := s.requireRole(ctx, tx, workspaceID, actor, true); err != nil {
			return err
		}

		var err error
		old, err = scanProduct(tx.QueryRowContext(ctx,
			"SELECT "+productColumns+" FROM products WHERE workspace_id = ? AND id = ?",
			workspaceID, id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: id %d", ErrProductNotFound, id)
		}
		if err != nil {
			return err
		}

		var sets []string
		var args []any
		if in.Name != nil {
			sets = append(sets, "name = ?")
			args = append(args, *in.Name)
		}
		if in.Description != nil {
			sets = append(sets, "description = ?")
			args = append(args, *in.Description)
		}
		if in.Unit != nil {
			sets = append(sets, "unit = ?")
			args = append(args, *in.Unit)
		}
		if in.SupplierID != nil {
			if *in.SupplierID != 0 {
				if err := requirePartner(ctx, tx, workspaceID, "suppliers", *in.SupplierID); err != nil {
					return err
				}
			}
			sets = append(sets, "supplier_id = ?")
			args = append(args, nullableID(in.SupplierID))
		}
		sets = append(sets, "updated_at = datetime('now')")
		args = append(args, workspaceID, id)

		_, err = tx.ExecContext(ctx,
			"UPDATE products SET "+strings.Join(sets, ", ")+" WHERE workspace_id = ? AND id = ?",
			args...,
		)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: product %q", ErrDuplicateName, *in.Name)
		}
		if err != nil {
			return err
		}

		p, err = scanProduct(tx.QueryRowContext(ctx,
			"SELECT "+productColumns+" FROM products WHERE id = ?", id))
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
		EntityID:    p.ID,
		EntityName:  p.Name,
		OldData:     mustJSON(old),
		NewData:     mustJSON(p),
	})
	return p, nil
}

// DeleteProduct removes a product row. Ledger rows reference products by
// name and survive the deletion; later mutations against those rows will
// report the product as missing.
func (s *Service) DeleteProduct(ctx context.Context, actor Actor, workspaceID, id int64) error {
	var old *Product
	err := s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		if err := s.requireRole(ctx, tx, workspaceID, actor, true); err != nil {
			return err
		}
		var err error
		old, err = scanProduct(tx.QueryRowContext(ctx,
			"SELECT "+productColumns+" FROM products WHERE workspace_id = ? AND id = ?",
			workspaceID, id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: id %d", ErrProductNotFound, id)
		}
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"DELETE FROM products WHERE workspace_id = ? AND id = ?", workspaceID, id)
		return err
	})
	if err != nil {
		return err
	}

	s.audit(ctx, AuditEntry{
		WorkspaceID: workspaceID,
		UserID:      actor.UserID,
		Username:    actor.Username,
		Action:      AuditDelete,
		EntityType:  "product",
		EntityID:    old.ID,
		EntityName:  old.Name,
		OldData:     mustJSON(old),
	})
	return nil
}

// requirePartner checks a reference row exists in the workspace before
// something else points at it.
func requirePartner(ctx context.Context, tx querier, workspaceID int64, table string, id int64) error {
	var found int64
	err := tx.QueryRowContext(ctx,
		"SELECT id FROM "+table+" WHERE workspace_id = ? AND id = ?",
		workspaceID, id,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %d", ErrNotFound, strings.TrimSuffix(table, "s"), id)
	}
	return err
}
