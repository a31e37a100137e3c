/*
entries.go - Purchase, sale and return ledger operations

PURPOSE:
  One implementation drives all three stock-moving ledger row types.
  An entrySpec names the table, the partner column and the direction
  the row moves stock in; the create/update/delete logic is shared.

STOCK EFFECT:
  Purchases and returns add stock, sales remove it. Every row write and
  its paired stock adjustment commit in the same transaction; deleting a
  row applies the inverse adjustment. Changing a row's product moves the
  adjustment between products atomically.

SEE ALSO:
  - inventory.go: the conditional-write protocol the adjustments use
  - cash.go: the non-stock-moving cash movement tables
*/
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// entrySpec is everything that differs between the three entry kinds.
// A negative-quantity purchase is a purchase return (stock goes back to
// the supplier), so purchases alone accept negative quantities.
type entrySpec struct {
	table         string
	partnerCol    string
	partnerTable  string
	direction     float64
	allowNegative bool
}

var entrySpecs = map[EntryKind]entrySpec{
	EntryPurchase: {table: "purchases", partnerCol: "supplier_id", partnerTable: "suppliers", direction: +1, allowNegative: true},
	EntrySale:     {table: "sales", partnerCol: "customer_id", partnerTable: "customers", direction: -1},
	EntryReturn:   {table: "returns", partnerCol: "customer_id", partnerTable: "customers", direction: +1},
}

func (spec entrySpec) validQuantity(q float64) bool {
	if spec.allowNegative {
		return q != 0
	}
	return q > 0
}

func specFor(kind EntryKind) (entrySpec, error) {
	spec, ok := entrySpecs[kind]
	if !ok {
		return entrySpec{}, fmt.Errorf("%w: unknown entry kind %q", ErrNoFields, kind)
	}
	return spec, nil
}

// EntryInput carries the writable fields of an entry. Pointer fields
// distinguish "leave unchanged" from "set to zero value" on update; on
// create, nil pointers take defaults.
type EntryInput struct {
	ProductName *string          `json:"productName,omitempty"`
	Quantity    *float64         `json:"quantity,omitempty"`
	PartnerID   *int64           `json:"partnerId,omitempty"`
	EntryDate   *string          `json:"date,omitempty"`
	TotalPrice  *decimal.Decimal `json:"totalPrice,omitempty"`
	Note        *string          `json:"note,omitempty"`
}

func scanEntry(row interface{ Scan(...any) error }, kind EntryKind) (*Entry, error) {
	var e Entry
	var partnerID sql.NullInt64
	var entryDate, note, price sql.NullString
	if err := row.Scan(&e.ID, &e.WorkspaceID, &e.ProductName, &e.Quantity,
		&partnerID, &entryDate, &price, &note, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Kind = kind
	e.PartnerID = scanNullableID(partnerID)
	e.EntryDate = entryDate.String
	e.TotalPrice = parseDecimal(price)
	e.Note = note.String
	return &e, nil
}

func (spec entrySpec) selectColumns() string {
	return fmt.Sprintf(
		"id, workspace_id, product_name, quantity, %s, entry_date, total_price, note, created_at",
		spec.partnerCol,
	)
}

// CreateEntry writes a ledger row and applies its stock effect in one
// transaction. The row's StockResult is returned alongside so clients
// hold a fresh conflict token.
func (s *Service) CreateEntry(ctx context.Context, actor Actor, workspaceID int64, kind EntryKind, in EntryInput) (*Entry, *StockResult, error) {
	spec, err := specFor(kind)
	if err != nil {
		return nil, nil, err
	}
	if in.ProductName == nil || *in.ProductName == "" {
		return nil, nil, fmt.Errorf("%w: product name is required", ErrNoFields)
	}
	if in.Quantity == nil || !spec.validQuantity(*in.Quantity) {
		return nil, nil, fmt.Errorf("%w: invalid quantity", ErrNoFields)
	}
	if in.EntryDate != nil && !validDate(*in.EntryDate) {
		return nil, nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrNoFields)
	}

	price := decimal.Zero
	if in.TotalPrice != nil {
		price = *in.TotalPrice
	}
	var date, note string
	if in.EntryDate != nil {
		date = *in.EntryDate
	}
	if in.Note != nil {
		note = *in.Note
	}

	var entry *Entry
	var stock *StockResult
	err = s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		if err := s.requireRole(ctx, tx, workspaceID, actor, true); err != nil {
			return err
		}
		if in.PartnerID != nil && *in.PartnerID != 0 {
			if err := requirePartner(ctx, tx, workspaceID, spec.partnerTable, *in.PartnerID); err != nil {
				return err
			}
		}

		var err error
		stock, err = adjustStock(ctx, tx, workspaceID, *in.ProductName, spec.direction*(*in.Quantity))
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, fmt.Sprintf(
			"INSERT INTO %s (workspace_id, product_name, quantity, %s, entry_date, total_price, note) VALUES (?, ?, ?, ?, ?, ?, ?)",
			spec.table, spec.partnerCol),
			workspaceID, *in.ProductName, *in.Quantity, nullableID(in.PartnerID),
			date, decimalText(price), note,
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		entry, err = scanEntry(tx.QueryRowContext(ctx,
			"SELECT "+spec.selectColumns()+" FROM "+spec.table+" WHERE id = ?", id), kind)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.audit(ctx, AuditEntry{
		WorkspaceID: workspaceID,
		UserID:      actor.UserID,
		Username:    actor.Username,
		Action:      AuditCreate,
		EntityType:  string(kind),
		EntityID:    entry.ID,
		EntityName:  entry.ProductName,
		NewData:     mustJSON(entry),
	})
	return entry, stock, nil
}

// ListEntries returns the workspace's entries of one kind, optionally
// filtered by product name substring and date range, newest first.
func (s *Service) ListEntries(ctx context.Context, actor Actor, workspaceID int64, kind EntryKind, search, from, to string) ([]Entry, error) {
	spec, err := specFor(kind)
	if err != nil {
		return nil, err
	}
	if !validDate(from) || !validDate(to) {
		return nil, fmt.Errorf("%w: dates must be YYYY-MM-DD", ErrNoFields)
	}

	var out []Entry
	err = s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		if err := s.requireRole(ctx, tx, workspaceID, actor, false); err != nil {
			return err
		}

		query := "SELECT " + spec.selectColumns() + " FROM " + spec.table + " WHERE workspace_id = ?"
		args := []any{workspaceID}
		if search != "" {
			query += " AND product_name LIKE ?"
			args = append(args, "%"+search+"%")
		}
		if from != "" {
			query += " AND entry_date >= ?"
			args = append(args, from)
		}
		if to != "" {
			query += " AND entry_date <= ?"
			args = append(args, to)
		}
		query += " ORDER BY entry_date DESC, id DESC"

		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			e, err := scanEntry(rows, kind)
			if err != nil {
				return err
			}
			out = append(out, *e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetEntry returns one entry row.
func (s *Service) GetEntry(ctx context.Context, actor Actor, workspaceID int64, kind EntryKind, id int64) (*Entry, error) {
	spec, err := specFor(kind)
	if err != nil {
		return nil, err
	}
	var entry *Entry
	err = s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		if err := s.requireRole(ctx, tx, workspaceID, actor, false); err != nil {
			return err
		}
		var err error
		entry, err = scanEntry(tx.QueryRowContext(ctx,
			"SELECT "+spec.selectColumns()+" FROM "+spec.table+" WHERE workspace_id = ? AND id = ?",
			workspaceID, id), kind)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s %d", ErrNotFound, kind, id)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// UpdateEntry patches an entry and reconciles the stock effect of
// whatever changed:
//   - product changed: the old product's full adjustment is reversed and
//     the new product's applied, atomically (moveAdjustment);
//   - only quantity changed: the product absorbs the difference;
//   - neither changed: no stock write at all, so the product version is
//     untouched and concurrent stock writers are unaffected.
func (s *Service) UpdateEntry(ctx context.Context, actor Actor, workspaceID int64, kind EntryKind, id int64, in EntryInput) (*Entry, *StockResult, error) {
	spec, err := specFor(kind)
	if err != nil {
		return nil, nil, err
	}
	if in.ProductName == nil && in.Quantity == nil && in.PartnerID == nil &&
		in.EntryDate == nil && in.TotalPrice == nil && in.Note == nil {
		return nil, nil, fmt.Errorf("%w: no entry fields to update", ErrNoFields)
	}
	if in.ProductName != nil && *in.ProductName == "" {
		return nil, nil, fmt.Errorf("%w: product name cannot be empty", ErrNoFields)
	}
	if in.Quantity != nil && !spec.validQuantity(*in.Quantity) {
		return nil, nil, fmt.Errorf("%w: invalid quantity", ErrNoFields)
	}
	if in.EntryDate != nil && !validDate(*in.EntryDate) {
		return nil, nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrNoFields)
	}

	var entry *Entry
	var old *Entry
	var stock *StockResult
	err = s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		if err := s.requireRole(ctx, tx, workspaceID, actor, true); err != nil {
			return err
		}

		var err error
		old, err = scanEntry(tx.QueryRowContext(ctx,
			"SELECT "+spec.selectColumns()+" FROM "+spec.table+" WHERE workspace_id = ? AND id = ?",
			workspaceID, id), kind)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s %d", ErrNotFound, kind, id)
		}
		if err != nil {
			return err
		}

		newName := old.ProductName
		if in.ProductName != nil {
			newName = *in.ProductName
		}
		newQty := old.Quantity
		if in.Quantity != nil {
			newQty = *in.Quantity
		}

		switch {
		case newName != old.ProductName:
			stock, err = moveAdjustment(ctx, tx, workspaceID,
				old.ProductName, spec.direction*old.Quantity,
				newName, spec.direction*newQty)
			if err != nil {
				return err
			}
		case newQty != old.Quantity:
			stock, err = adjustStock(ctx, tx, workspaceID, newName, spec.direction*(newQty-old.Quantity))
			if err != nil {
				return err
			}
		}

		if in.PartnerID != nil && *in.PartnerID != 0 {
			if err := requirePartner(ctx, tx, workspaceID, spec.partnerTable, *in.PartnerID); err != nil {
				return err
			}
		}

		var sets []string
		var args []any
		if in.ProductName != nil {
			sets = append(sets, "product_name = ?")
			args = append(args, *in.ProductName)
		}
		if in.Quantity != nil {
			sets = append(sets, "quantity = ?")
			args = append(args, *in.Quantity)
		}
		if in.PartnerID != nil {
			sets = append(sets, spec.partnerCol+" = ?")
			args = append(args, nullableID(in.PartnerID))
		}
		if in.EntryDate != nil {
			sets = append(sets, "entry_date = ?")
			args = append(args, *in.EntryDate)
		}
		if in.TotalPrice != nil {
			sets = append(sets, "total_price = ?")
			args = append(args, decimalText(*in.TotalPrice))
		}
		if in.Note != nil {
			sets = append(sets, "note = ?")
			args = append(args, *in.Note)
		}
		args = append(args, workspaceID, id)

		if _, err := tx.ExecContext(ctx,
			"UPDATE "+spec.table+" SET "+strings.Join(sets, ", ")+" WHERE workspace_id = ? AND id = ?",
			args...,
		); err != nil {
			return err
		}

		entry, err = scanEntry(tx.QueryRowContext(ctx,
			"SELECT "+spec.selectColumns()+" FROM "+spec.table+" WHERE id = ?", id), kind)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.audit(ctx, AuditEntry{
		WorkspaceID: workspaceID,
		UserID:      actor.UserID,
		Username:    actor.Username,
		Action:      AuditUpdate,
		EntityType:  string(kind),
		EntityID:    entry.ID,
		EntityName:  entry.ProductName,
		OldData:     mustJSON(old),
		NewData:     mustJSON(entry),
	})
	return entry, stock, nil
}

// DeleteEntry removes a ledger row and reverses its stock effect. A row
// whose product has since been deleted (or renamed) still goes away: the
// reversal is skipped and the anomaly logged, because refusing the
// delete would strand the row forever.
func (s *Service) DeleteEntry(ctx context.Context, actor Actor, workspaceID int64, kind EntryKind, id int64) error {
	spec, err := specFor(kind)
	if err != nil {
		return err
	}

	var old *Entry
	var missingProduct bool
	err = s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		if err := s.requireRole(ctx, tx, workspaceID, actor, true); err != nil {
			return err
		}

		var err error
		old, err = scanEntry(tx.QueryRowContext(ctx,
			"SELECT "+spec.selectColumns()+" FROM "+spec.table+" WHERE workspace_id = ? AND id = ?",
			workspaceID, id), kind)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s %d", ErrNotFound, kind, id)
		}
		if err != nil {
			return err
		}

		missingProduct = false
		_, err = adjustStock(ctx, tx, workspaceID, old.ProductName, -spec.direction*old.Quantity)
		if errors.Is(err, ErrProductNotFound) {
			missingProduct = true
		} else if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			"DELETE FROM "+spec.table+" WHERE workspace_id = ? AND id = ?", workspaceID, id)
		return err
	})
	if err != nil {
		return err
	}

	note := ""
	if missingProduct {
		note = "stock reversal skipped: product no longer exists"
		s.log.Warn("deleted ledger row without stock reversal",
			zap.String("kind", string(kind)),
			zap.Int64("entryId", id),
			zap.String("product", old.ProductName),
			zap.Int64("workspaceId", workspaceID))
	}

	s.audit(ctx, AuditEntry{
		WorkspaceID: workspaceID,
		UserID:      actor.UserID,
		Username:    actor.Username,
		Action:      AuditDelete,
		EntityType:  string(kind),
		EntityID:    old.ID,
		EntityName:  old.ProductName,
		OldData:     mustJSON(old),
		Note:        note,
	})
	return nil
}
