// cash.go - income and remittance movements.
//
// Cash rows never touch stock, so they skip the inventory protocol
// entirely. One cashSpec-driven implementation covers both tables:
// income comes in from customers, remittance goes out to suppliers.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type cashSpec struct {
	table        string
	partnerCol   string
	partnerTable string
	hasDiscount  bool
}

var cashSpecs = map[CashKind]cashSpec{
	CashIncome:     {table: "income", partnerCol: "customer_id", partnerTable: "customers", hasDiscount: true},
	CashRemittance: {table: "remittance", partnerCol: "supplier_id", partnerTable: "suppliers"},
}

func cashSpecFor(kind CashKind) (cashSpec, error) {
	spec, ok := cashSpecs[kind]
	if !ok {
		return cashSpec{}, fmt.Errorf("%w: unknown cash kind %q", ErrNoFields, kind)
	}
	return spec, nil
}

// CashInput carries the writable fields of a cash movement.
type CashInput struct {
	Date      *string          `json:"date,omitempty"`
	PartnerID *int64           `json:"partnerId,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Discount  *decimal.Decimal `json:"discount,omitempty"`
	StaffID   *int64           `json:"staffId,omitempty"`
	Method    *PaymentMethod   `json:"paymentMethod,omitempty"`
	Note      *string          `json:"note,omitempty"`
}

func (spec cashSpec) selectColumns() string {
	return fmt.Sprintf(
		"id, workspace_id, cash_date, %s, amount, COALESCE(discount, '0'), staff_id, payment_method, note, created_at",
		spec.partnerCol,
	)
}

func scanCash(row interface{ Scan(...any) error }, kind CashKind) (*CashMovement, error) {
	var m CashMovement
	var partnerID, staffID sql.NullInt64
	var amount, discount, note sql.NullString
	if err := row.Scan(&m.ID, &m.WorkspaceID, &m.Date, &partnerID,
		&amount, &discount, &staffID, &m.Method, &note, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Kind = kind
	m.PartnerID = scanNullableID(partnerID)
	m.Amount = parseDecimal(amount)
	m.Discount = parseDecimal(discount)
	m.StaffID = scanNullableID(staffID)
	m.Note = note.String
	return &m, nil
}

func (spec cashSpec) validate(in CashInput, create bool) error {
	if create {
		if in.Date == nil || *in.Date == "" {
			return fmt.Errorf("%w: date is required", ErrNoFields)
		}
		if in.Amount == nil {
			return fmt.Errorf("%w: amount is required", ErrNoFields)
		}
		if in.Method == nil {
			return fmt.Errorf("%w: payment method is required", ErrNoFields)
		}
	}
	if in.Date != nil && !validDate(*in.Date) {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrNoFields)
	}
	if in.Amount != nil && in.Amount.IsNegative() {
		return fmt.Errorf("%w: amount cannot be negative", ErrNoFields)
	}
	if in.Method != nil && !in.Method.Valid() {
		return fmt.Errorf("%w: invalid payment method %q", ErrNoFields, *in.Method)
	}
	if in.Discount != nil && !spec.hasDiscount {
		return fmt.Errorf("%w: discount only applies to income", ErrNoFields)
	}
	if in.Discount != nil && in.Discount.IsNegative() {
		return fmt.Errorf("%w: discount cannot be negative", ErrNoFields)
	}
	return nil
}

func (spec cashSpec) checkRefs(ctx context.Context, tx querier, workspaceID int64, in CashInput) error {
	if in.PartnerID != nil && *in.PartnerID != 0 {
		if err := requirePartner(ctx, tx, workspaceID, spec.partnerTable, *in.PartnerID); err != nil {
			return err
		}
	}
	if in.StaffID != nil && *in.StaffID != 0 {
		if err := requirePartner(ctx, tx, workspaceID, "staff", *in.StaffID); err != nil {
			return err
		}
	}
	return nil
}

// CreateCashMovement writes one income or remittance row.
func (s *Service) CreateCashMovement(ctx context.Context, actor Actor, workspaceID int64, kind CashKind, in CashInput) (*CashMovement, error) {
	spec, err := cashSpecFor(kind)
	if err != nil {
		return nil, err
	}
	if err := spec.validate(in, true); err != nil {
		return nil, err
	}

	discount := decimal.Zero
	if in.Discount != nil {
		discount = *in.Discount
	}
	var note string
	if in.Note != nil {
		note = *in.Note
	}

	var mv *CashMovement
	err = s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		if err := s.requireRole(ctx, tx, workspaceID, actor, true); err != nil {
			return err
		}
		if err := spec.checkRefs(ctx, tx, workspaceID, in); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, fmt.Sprintf(
			"INSERT INTO %s (workspace_id, cash_date, %s, amount, discount, staff_id, payment_method, note) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			spec.table, spec.partnerCol),
			workspaceID, *in.Date, nullableID(in.PartnerID),
			decimalText(*in.Amount), decimalText(discount),
			nullableID(in.StaffID), *in.Method, note,
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		mv, err = scanCash(tx.QueryRowContext(ctx,
			"SELECT "+spec.selectColumns()+" FROM "+spec.table+" WHERE id = ?", id), kind)
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
		EntityType:  string(kind),
		EntityID:    mv.ID,
		NewData:     mustJSON(mv),
	})
	return mv, nil
}

// ListCashMovements returns cash rows of one kind, optionally bounded by
// a date range, newest first.
func (s *Service) ListCashMovements(ctx context.Context, actor Actor, workspaceID int64, kind CashKind, from, to string) ([]CashMovement, error) {
	spec, err := cashSpecFor(kind)
	if err != nil {
		return nil, err
	}
	if !validDate(from) || !validDate(to) {
		return nil, fmt.Errorf("%w: dates must be YYYY-MM-DD", ErrNoFields)
	}

	var out []CashMovement
	err = s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		if err := s.requireRole(ctx, tx, workspaceID, actor, false); err != nil {
			return err
		}

		query := "SELECT " + spec.selectColumns() + " FROM " + spec.table + " WHERE workspace_id = ?"
		args := []any{workspaceID}
		if from != "" {
			query += " AND cash_date >= ?"
			args = append(args, from)
		}
		if to != "" {
			query += " AND cash_date <= ?"
			args = append(args, to)
		}
		query += " ORDER BY cash_date DESC, id DESC"

		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			m, err := scanCash(rows, kind)
			if err != nil {
				return err
			}
			out = append(out, *m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetCashMovement returns one cash row.
func (s *Service) GetCashMovement(ctx context.Context, actor Actor, workspaceID int64, kind CashKind, id int64) (*CashMovement, error) {
	spec, err := cashSpecFor(kind)
	if err != nil {
		return nil, err
	}
	var mv *CashMovement
	err = s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		if err := s.requireRole(ctx, tx, workspaceID, actor, false); err != nil {
			return err
		}
		var err error
		mv, err = scanCash(tx.QueryRowContext(ctx,
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
	return mv, nil
}

// UpdateCashMovement patches the fields named in the input.
func (s *Service) UpdateCashMovement(ctx context.Context, actor Actor, workspaceID int64, kind CashKind, id int64, in CashInput) (*CashMovement, error) {
	spec, err := cashSpecFor(kind)
	if err != nil {
		return nil, err
	}
	if in.Date == nil && in.PartnerID == nil && in.Amount == nil &&
		in.Discount == nil && in.StaffID == nil && in.Method == nil && in.Note == nil {
		return nil, fmt.Errorf("%w: no cash fields to update", ErrNoFields)
	}
	if err := spec.validate(in, false); err != nil {
		return nil, err
	}

	var mv *CashMovement
	var old *CashMovement
	err = s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		if err := s.requireRole(ctx, tx, workspaceID, actor, true); err != nil {
			return err
		}

		var err error
		old, err = scanCash(tx.QueryRowContext(ctx,
			"SELECT "+spec.selectColumns()+" FROM "+spec.table+" WHERE workspace_id = ? AND id = ?",
			workspaceID, id), kind)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s %d", ErrNotFound, kind, id)
		}
		if err != nil {
			return err
		}

		if err := spec.checkRefs(ctx, tx, workspaceID, in); err != nil {
			return err
		}

		var sets []string
		var args []any
		if in.Date != nil {
			sets = append(sets, "cash_date = ?")
			args = append(args, *in.Date)
		}
		if in.PartnerID != nil {
			sets = append(sets, spec.partnerCol+" = ?")
			args = append(args, nullableID(in.PartnerID))
		}
		if in.Amount != nil {
			sets = append(sets, "amount = ?")
			args = append(args, decimalText(*in.Amount))
		}
		if in.Discount != nil {
			sets = append(sets, "discount = ?")
			args = append(args, decimalText(*in.Discount))
		}
		if in.StaffID != nil {
			sets = append(sets, "staff_id = ?")
			args = append(args, nullableID(in.StaffID))
		}
		if in.Method != nil {
			sets = append(sets, "payment_method = ?")
			args = append(args, *in.Method)
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

		mv, err = scanCash(tx.QueryRowContext(ctx,
			"SELECT "+spec.selectColumns()+" FROM "+spec.table+" WHERE id = ?", id), kind)
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
		EntityType:  string(kind),
		EntityID:    mv.ID,
		OldData:     mustJSON(old),
		NewData:     mustJSON(mv),
	})
	return mv, nil
}

// DeleteCashMovement removes one cash row. No stock effect to reverse.
func (s *Service) DeleteCashMovement(ctx context.Context, actor Actor, workspaceID int64, kind CashKind, id int64) error {
	spec, err := cashSpecFor(kind)
	if err != nil {
		return err
	}

	var old *CashMovement
	err = s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		if err := s.requireRole(ctx, tx, workspaceID, actor, true); err != nil {
			return err
		}
		var err error
		old, err = scanCash(tx.QueryRowContext(ctx,
			"SELECT "+spec.selectColumns()+" FROM "+spec.table+" WHERE workspace_id = ? AND id = ?",
			workspaceID, id), kind)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s %d", ErrNotFound, kind, id)
		}
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"DELETE FROM "+spec.table+" WHERE workspace_id = ? AND id = ?", workspaceID, id)
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
		EntityType:  string(kind),
		EntityID:    old.ID,
		OldData:     mustJSON(old),
	})
	return nil
}
