/*
settings.go - Per-user preferences and bulk workspace data import

PURPOSE:
  User settings hang off the account, not a workspace: dark mode and
  the client's auto-backup knobs. The companion operation is the other
  direction of backup: ImportData replaces a workspace's business data
  with an exported payload in one transaction.

IMPORT SEMANTICS:
  Overwrite mode. Every business row of the workspace is deleted, then
  the payload is inserted with fresh ids; partner references inside the
  payload are remapped from the exporter's ids to the new ones, and
  references to rows absent from the payload degrade to NULL. Product
  stock and version are taken from the payload as-is; the ledger rows
  are historical records, not replayed mutations. Any failure rolls the
  whole import back, leaving the previous data untouched.

SEE ALSO:
  - entries.go, cash.go, refdata.go: the live CRUD over the same tables
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

const settingsColumns = `id, user_id, dark_mode, auto_backup_enabled,
	auto_backup_interval, auto_backup_max_count, COALESCE(last_backup_time, ''),
	created_at, updated_at`

func scanSettings(row interface{ Scan(...any) error }) (*UserSettings, error) {
	var st UserSettings
	if err := row.Scan(&st.ID, &st.UserID, &st.DarkMode, &st.AutoBackupEnabled,
		&st.AutoBackupInterval, &st.AutoBackupMaxCount, &st.LastBackupTime,
		&st.CreatedAt, &st.UpdatedAt); err != nil {
		return nil, err
	}
	return &st, nil
}

// GetSettings returns the actor's settings, creating the row with
// defaults on first read.
func (s *Service) GetSettings(ctx context.Context, actor Actor) (*UserSettings, error) {
	var st *UserSettings
	err := s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		var err error
		st, err = scanSettings(tx.QueryRowContext(ctx,
			"SELECT "+settingsColumns+" FROM user_settings WHERE user_id = ?", actor.UserID))
		if errors.Is(err, sql.ErrNoRows) {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO user_settings (user_id) VALUES (?)", actor.UserID); err != nil {
				return err
			}
			st, err = scanSettings(tx.QueryRowContext(ctx,
				"SELECT "+settingsColumns+" FROM user_settings WHERE user_id = ?", actor.UserID))
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// SettingsInput carries the writable settings fields. Pointer fields
// distinguish "leave unchanged" from "set to zero value".
type SettingsInput struct {
	DarkMode           *bool   `json:"darkMode,omitempty"`
	AutoBackupEnabled  *bool   `json:"autoBackupEnabled,omitempty"`
	AutoBackupInterval *int    `json:"autoBackupInterval,omitempty"`
	AutoBackupMaxCount *int    `json:"autoBackupMaxCount,omitempty"`
	LastBackupTime     *string `json:"lastBackupTime,omitempty"`
}

// UpdateSettings patches the fields named in the input.
func (s *Service) UpdateSettings(ctx context.Context, actor Actor, in SettingsInput) (*UserSettings, error) {
	if in.DarkMode == nil && in.AutoBackupEnabled == nil && in.AutoBackupInterval == nil &&
		in.AutoBackupMaxCount == nil && in.LastBackupTime == nil {
		return nil, fmt.Errorf("%w: no settings fields to update", ErrNoFields)
	}
	if in.AutoBackupInterval != nil && *in.AutoBackupInterval <= 0 {
		return nil, fmt.Errorf("%w: backup interval must be positive", ErrNoFields)
	}
	if in.AutoBackupMaxCount != nil && *in.AutoBackupMaxCount <= 0 {
		return nil, fmt.Errorf("%w: backup count must be positive", ErrNoFields)
	}

	var st *UserSettings
	err := s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO user_settings (user_id) VALUES (?)", actor.UserID); err != nil {
			return err
		}

		var sets []string
		var args []any
		if in.DarkMode != nil {
			sets = append(sets, "dark_mode = ?")
			args = append(args, *in.DarkMode)
		}
		if in.AutoBackupEnabled != nil {
			sets = append(sets, "auto_backup_enabled = ?")
			args = append(args, *in.AutoBackupEnabled)
		}
		if in.AutoBackupInterval != nil {
			sets = append(sets, "auto_backup_interval = ?")
			args = append(args, *in.AutoBackupInterval)
		}
		if in.AutoBackupMaxCount != nil {
			sets = append(sets, "auto_backup_max_count = ?")
			args = append(args, *in.AutoBackupMaxCount)
		}
		if in.LastBackupTime != nil {
			sets = append(sets, "last_backup_time = ?")
			args = append(args, *in.LastBackupTime)
		}
		sets = append(sets, "updated_at = datetime('now')")
		args = append(args, actor.UserID)

		if _, err := tx.ExecContext(ctx,
			"UPDATE user_settings SET "+strings.Join(sets, ", ")+" WHERE user_id = ?",
			args...,
		); err != nil {
			return err
		}

		var err error
		st, err = scanSettings(tx.QueryRowContext(ctx,
			"SELECT "+settingsColumns+" FROM user_settings WHERE user_id = ?", actor.UserID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// =============================================================================
// BULK DATA IMPORT
// =============================================================================

// ImportRef is an exported supplier, customer or staff row. ID is the
// exporter's id, used only to remap references inside the payload.
type ImportRef struct {
	ID   int64   `json:"id,omitempty"`
	Name string  `json:"name"`
	Note *string `json:"note,omitempty"`
}

// ImportProduct is an exported product. Stock is restored as-is and
// the version restarts at 1; the imported ledger rows are history, not
// replayed mutations.
type ImportProduct struct {
	ID          int64   `json:"id,omitempty"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Stock       float64 `json:"stock"`
	Unit        string  `json:"unit"`
	SupplierID  *int64  `json:"supplierId,omitempty"`
}

// ImportEntry is an exported purchase, sale or return row.
type ImportEntry struct {
	ProductName string           `json:"productName"`
	Quantity    float64          `json:"quantity"`
	EntryDate   string           `json:"date,omitempty"`
	PartnerID   *int64           `json:"partnerId,omitempty"`
	TotalPrice  *decimal.Decimal `json:"totalPrice,omitempty"`
	Note        *string          `json:"note,omitempty"`
}

// ImportCash is an exported income or remittance row.
type ImportCash struct {
	Date      string           `json:"date"`
	PartnerID *int64           `json:"partnerId,omitempty"`
	Amount    decimal.Decimal  `json:"amount"`
	Discount  *decimal.Decimal `json:"discount,omitempty"`
	StaffID   *int64           `json:"staffId,omitempty"`
	Method    PaymentMethod    `json:"paymentMethod"`
	Note      *string          `json:"note,omitempty"`
}

// ImportPayload is a full workspace export.
type ImportPayload struct {
	Suppliers  []ImportRef     `json:"suppliers,omitempty"`
	Customers  []ImportRef     `json:"customers,omitempty"`
	Staff      []ImportRef     `json:"staff,omitempty"`
	Products   []ImportProduct `json:"products,omitempty"`
	Purchases  []ImportEntry   `json:"purchases,omitempty"`
	Sales      []ImportEntry   `json:"sales,omitempty"`
	Returns    []ImportEntry   `json:"returns,omitempty"`
	Income     []ImportCash    `json:"income,omitempty"`
	Remittance []ImportCash    `json:"remittance,omitempty"`
}

// remapID translates an exporter-side id through an old-to-new map.
// Unknown or zero ids degrade to NULL rather than failing the import.
func remapID(m map[int64]int64, id *int64) any {
	if id == nil || *id == 0 {
		return nil
	}
	if mapped, ok := m[*id]; ok {
		return mapped
	}
	return nil
}

// ImportData replaces the workspace's business data with the payload,
// all inside one transaction. Only owners and admins may run it; it is
// a destructive bulk overwrite, not an edit.
func (s *Service) ImportData(ctx context.Context, actor Actor, workspaceID int64, payload ImportPayload) (map[string]int, error) {
	var counts map[string]int
	err := s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		role, err := memberRole(ctx, tx, workspaceID, actor.UserID)
		if err != nil {
			return err
		}
		if role != RoleOwner && role != RoleAdmin {
			return fmt.Errorf("%w: role %s cannot replace workspace %d data", ErrPermissionDenied, role, workspaceID)
		}

		// Wipe in reverse dependency order so FK references never point
		// at a row deleted earlier in the same pass.
		for _, table := range []string{
			"remittance", "income", "returns", "sales", "purchases",
			"products", "staff", "customers", "suppliers",
		} {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM "+table+" WHERE workspace_id = ?", workspaceID); err != nil {
				return err
			}
		}

		supplierIDs, err := importRefs(ctx, tx, workspaceID, "suppliers", payload.Suppliers)
		if err != nil {
			return err
		}
		customerIDs, err := importRefs(ctx, tx, workspaceID, "customers", payload.Customers)
		if err != nil {
			return err
		}
		staffIDs, err := importRefs(ctx, tx, workspaceID, "staff", payload.Staff)
		if err != nil {
			return err
		}

		for _, p := range payload.Products {
			if p.Name == "" {
				return fmt.Errorf("%w: imported product without a name", ErrNoFields)
			}
			if p.Stock < 0 {
				return fmt.Errorf("%w: imported product %q with negative stock", ErrNoFields, p.Name)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO products (workspace_id, name, description, stock, unit, supplier_id) VALUES (?, ?, ?, ?, ?, ?)",
				workspaceID, p.Name, strOrNil(p.Description), p.Stock, p.Unit,
				remapID(supplierIDs, p.SupplierID),
			); err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%w: product %q", ErrDuplicateName, p.Name)
				}
				return err
			}
		}

		if err := importEntries(ctx, tx, workspaceID, EntryPurchase, payload.Purchases, supplierIDs); err != nil {
			return err
		}
		if err := importEntries(ctx, tx, workspaceID, EntrySale, payload.Sales, customerIDs); err != nil {
			return err
		}
		if err := importEntries(ctx, tx, workspaceID, EntryReturn, payload.Returns, customerIDs); err != nil {
			return err
		}
		if err := importCash(ctx, tx, workspaceID, CashIncome, payload.Income, customerIDs, staffIDs); err != nil {
			return err
		}
		if err := importCash(ctx, tx, workspaceID, CashRemittance, payload.Remittance, supplierIDs, staffIDs); err != nil {
			return err
		}

		counts = map[string]int{
			"suppliers":  len(payload.Suppliers),
			"customers":  len(payload.Customers),
			"staff":      len(payload.Staff),
			"products":   len(payload.Products),
			"purchases":  len(payload.Purchases),
			"sales":      len(payload.Sales),
			"returns":    len(payload.Returns),
			"income":     len(payload.Income),
			"remittance": len(payload.Remittance),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("workspace data imported",
		zap.Int64("workspaceId", workspaceID),
		zap.Int("products", counts["products"]))
	s.audit(ctx, AuditEntry{
		WorkspaceID: workspaceID,
		UserID:      actor.UserID,
		Username:    actor.Username,
		Action:      AuditUpdate,
		EntityType:  "workspace-data",
		EntityID:    workspaceID,
		NewData:     mustJSON(counts),
		Note:        "bulk import replaced workspace data",
	})
	return counts, nil
}

func importRefs(ctx context.Context, tx *sql.Tx, workspaceID int64, table string, refs []ImportRef) (map[int64]int64, error) {
	ids := make(map[int64]int64, len(refs))
	for _, r := range refs {
		if r.Name == "" {
			return nil, fmt.Errorf("%w: imported %s without a name", ErrNoFields, strings.TrimSuffix(table, "s"))
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO "+table+" (workspace_id, name, note) VALUES (?, ?, ?)",
			workspaceID, r.Name, strOrNil(r.Note),
		)
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s %q", ErrDuplicateName, strings.TrimSuffix(table, "s"), r.Name)
		}
		if err != nil {
			return nil, err
		}
		newID, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		if r.ID != 0 {
			ids[r.ID] = newID
		}
	}
	return ids, nil
}

func importEntries(ctx context.Context, tx *sql.Tx, workspaceID int64, kind EntryKind, entries []ImportEntry, partnerIDs map[int64]int64) error {
	spec, err := specFor(kind)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.ProductName == "" {
			return fmt.Errorf("%w: imported %s without a product name", ErrNoFields, kind)
		}
		if !spec.validQuantity(e.Quantity) {
			return fmt.Errorf("%w: imported %s with invalid quantity", ErrNoFields, kind)
		}
		if !validDate(e.EntryDate) {
			return fmt.Errorf("%w: imported %s date must be YYYY-MM-DD", ErrNoFields, kind)
		}
		price := decimal.Zero
		if e.TotalPrice != nil {
			price = *e.TotalPrice
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (workspace_id, product_name, quantity, entry_date, %s, total_price, note) VALUES (?, ?, ?, ?, ?, ?, ?)",
				spec.table, spec.partnerCol),
			workspaceID, e.ProductName, e.Quantity, e.EntryDate,
			remapID(partnerIDs, e.PartnerID), decimalText(price), strOrNil(e.Note),
		); err != nil {
			return err
		}
	}
	return nil
}

func importCash(ctx context.Context, tx *sql.Tx, workspaceID int64, kind CashKind, movements []ImportCash, partnerIDs, staffIDs map[int64]int64) error {
	spec, err := cashSpecFor(kind)
	if err != nil {
		return err
	}
	for _, m := range movements {
		if m.Date == "" || !validDate(m.Date) {
			return fmt.Errorf("%w: imported %s date must be YYYY-MM-DD", ErrNoFields, kind)
		}
		if m.Amount.IsNegative() {
			return fmt.Errorf("%w: imported %s amount cannot be negative", ErrNoFields, kind)
		}
		if !m.Method.Valid() {
			return fmt.Errorf("%w: imported %s payment method %q", ErrNoFields, kind, m.Method)
		}
		discount := decimal.Zero
		if spec.hasDiscount && m.Discount != nil {
			discount = *m.Discount
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (workspace_id, cash_date, %s, amount, discount, staff_id, payment_method, note) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
				spec.table, spec.partnerCol),
			workspaceID, m.Date, remapID(partnerIDs, m.PartnerID),
			decimalText(m.Amount), decimalText(discount),
			remapID(staffIDs, m.StaffID), string(m.Method), strOrNil(m.Note),
		); err != nil {
			return err
		}
	}
	return nil
}

// strOrNil maps an unset optional string to SQL NULL.
func strOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
