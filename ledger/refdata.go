// refdata.go - suppliers, customers and staff.
//
// Three structurally identical tables behind one implementation. Names
// are unique per workspace; the schema enforces it and the UNIQUE
// violation surfaces as ErrDuplicateName.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var refTables = map[RefKind]string{
	RefSupplier: "suppliers",
	RefCustomer: "customers",
	RefStaff:    "staff",
}

func refTableFor(kind RefKind) (string, error) {
	table, ok := refTables[kind]
	if !ok {
		return "", fmt.Errorf("%w: unknown reference kind %q", ErrNoFields, kind)
	}
	return table, nil
}

func scanRef(row interface{ Scan(...any) error }, kind RefKind) (*RefRecord, error) {
	var r RefRecord
	var note sql.NullString
	if err := row.Scan(&r.ID, &r.WorkspaceID, &r.Name, &note, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Kind = kind
	r.Note = note.String
	return &r, nil
}

const refColumns = "id, workspace_id, name, note, created_at, updated_at"

// CreateRef inserts one reference row.
func (s *Service) CreateRef(ctx context.Context, actor Actor, workspaceID int64, kind RefKind, name, note string) (*RefRecord, error) {
	table, err := refTableFor(kind)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: %s name is required", ErrNoFields, kind)
	}

	var rec *RefRecord
	err = s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		if err := s.requireRole(ctx, tx, workspaceID, actor, true); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO "+table+" (workspace_id, name, note) VALUES (?, ?, ?)",
			workspaceID, name, note,
		)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s %q", ErrDuplicateName, kind, name)
		}
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		rec, err = scanRef(tx.QueryRowContext(ctx,
			"SELECT "+refColumns+" FROM "+table+" WHERE id = ?", id), kind)
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
		EntityID:    rec.ID,
		EntityName:  rec.Name,
		NewData:     mustJSON(rec),
	})
	return rec, nil
}

// ListRefs returns the workspace's reference rows of one kind, with an
// optional case-insensitive name substring filter.
func (s *Service) ListRefs(ctx context.Context, actor Actor, workspaceID int64, kind RefKind, search string) ([]RefRecord, error) {
	table, err := refTableFor(kind)
	if err != nil {
		return nil, err
	}

	var out []RefRecord
	err = s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		if err := s.requireRole(ctx, tx, workspaceID, actor, false); err != nil {
			return err
		}

		query := "SELECT " + refColumns + " FROM " + table + " WHERE workspace_id = ?"
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
			r, err := scanRef(rows, kind)
			if err != nil {
				return err
			}
			out = append(out, *r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetRef returns one reference row.
func (s *Service) GetRef(ctx context.Context, actor Actor, workspaceID int64, kind RefKind, id int64) (*RefRecord, error) {
	table, err := refTableFor(kind)
	if err != nil {
		return nil, err
	}
	var rec *RefRecord
	err = s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		if err := s.requireRole(ctx, tx, workspaceID, actor, false); err != nil {
			return err
		}
		var err error
		rec, err = scanRef(tx.QueryRowContext(ctx,
			"SELECT "+refColumns+" FROM "+table+" WHERE workspace_id = ? AND id = ?",
			workspaceID, id), kind)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s %d", ErrNotFound, kind, id)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// RefInput carries the writable fields of a reference row.
type RefInput struct {
	Name *string `json:"name,omitempty"`
	Note *string `json:"note,omitempty"`
}

// UpdateRef patches a reference row.
func (s *Service) UpdateRef(ctx context.Context, actor Actor, workspaceID int64, kind RefKind, id int64, in RefInput) (*RefRecord, error) {
	table, err := refTableFor(kind)
	if err != nil {
		return nil, err
	}
	if in.Name == nil && in.Note == nil {
		return nil, fmt.Errorf("%w: no %s fields to update", ErrNoFields, kind)
	}
	if in.Name != nil && *in.Name == "" {
		return nil, fmt.Errorf("%w: %s name cannot be empty", ErrNoFields, kind)
	}

	var rec *RefRecord
	var old *RefRecord
	err = s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		if err := s.requireRole(ctx, tx, workspaceID, actor, true); err != nil {
			return err
		}

		var err error
		old, err = scanRef(tx.QueryRowContext(ctx,
			"SELECT "+refColumns+" FROM "+table+" WHERE workspace_id = ? AND id = ?",
			workspaceID, id), kind)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s %d", ErrNotFound, kind, id)
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
		if in.Note != nil {
			sets = append(sets, "note = ?")
			args = append(args, *in.Note)
		}
		sets = append(sets, "updated_at = datetime('now')")
		args = append(args, workspaceID, id)

		_, err = tx.ExecContext(ctx,
			"UPDATE "+table+" SET "+strings.Join(sets, ", ")+" WHERE workspace_id = ? AND id = ?",
			args...,
		)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s %q", ErrDuplicateName, kind, *in.Name)
		}
		if err != nil {
			return err
		}

		rec, err = scanRef(tx.QueryRowContext(ctx,
			"SELECT "+refColumns+" FROM "+table+" WHERE id = ?", id), kind)
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
		EntityID:    rec.ID,
		EntityName:  rec.Name,
		OldData:     mustJSON(old),
		NewData:     mustJSON(rec),
	})
	return rec, nil
}

// DeleteRef removes a reference row. Rows pointing at it keep working:
// supplier references on products are nulled by the schema, and ledger
// partner columns simply dangle (lists render them as unknown).
func (s *Service) DeleteRef(ctx context.Context, actor Actor, workspaceID int64, kind RefKind, id int64) error {
	table, err := refTableFor(kind)
	if err != nil {
		return err
	}

	var old *RefRecord
	err = s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		if err := s.requireRole(ctx, tx, workspaceID, actor, true); err != nil {
			return err
		}
		var err error
		old, err = scanRef(tx.QueryRowContext(ctx,
			"SELECT "+refColumns+" FROM "+table+" WHERE workspace_id = ? AND id = ?",
			workspaceID, id), kind)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s %d", ErrNotFound, kind, id)
		}
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE workspace_id = ? AND id = ?", workspaceID, id)
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
		EntityName:  old.Name,
		OldData:     mustJSON(old),
	})
	return nil
}
