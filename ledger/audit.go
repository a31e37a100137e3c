// audit.go - append-only operation log.
//
// Audit entries are written in their own unit of work AFTER the
// business transaction commits, mirroring who-did-what without ever
// holding up or failing the operation they describe.
package ledger

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// audit records an entry, logging (not returning) any failure.
func (s *Service) audit(ctx context.Context, e AuditEntry) {
	e.ID = uuid.NewString()
	err := s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO operation_logs
			(id, workspace_id, user_id, username, action, entity_type, entity_id, entity_name, old_data, new_data, note)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.WorkspaceID, e.UserID, e.Username, e.Action,
			e.EntityType, e.EntityID, e.EntityName,
			e.OldData, e.NewData, e.Note,
		)
		return err
	})
	if err != nil {
		s.log.Warn("failed to write audit entry",
			zap.String("entityType", e.EntityType),
			zap.Int64("entityId", e.EntityID),
			zap.Error(err))
	}
}

// AuditFilter narrows an audit query. Zero values mean "no filter".
type AuditFilter struct {
	EntityType string
	Action     AuditAction
	Limit      int
}

// ListAuditLogs returns the workspace's audit trail, newest first.
func (s *Service) ListAuditLogs(ctx context.Context, actor Actor, workspaceID int64, filter AuditFilter) ([]AuditEntry, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var entries []AuditEntry
	err := s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		if err := s.requireRole(ctx, tx, workspaceID, actor, false); err != nil {
			return err
		}

		query := `
			SELECT id, workspace_id, user_id, username, action, entity_type,
			       entity_id, entity_name, old_data, new_data, note, created_at
			FROM operation_logs
			WHERE workspace_id = ?`
		args := []any{workspaceID}
		if filter.EntityType != "" {
			query += " AND entity_type = ?"
			args = append(args, filter.EntityType)
		}
		if filter.Action != "" {
			query += " AND action = ?"
			args = append(args, filter.Action)
		}
		query += " ORDER BY created_at DESC LIMIT ?"
		args = append(args, limit)

		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		entries = entries[:0]
		for rows.Next() {
			var e AuditEntry
			var entityID sql.NullInt64
			var entityName, oldData, newData, note sql.NullString
			if err := rows.Scan(&e.ID, &e.WorkspaceID, &e.UserID, &e.Username,
				&e.Action, &e.EntityType, &entityID, &entityName,
				&oldData, &newData, &note, &e.CreatedAt); err != nil {
				return err
			}
			e.EntityID = entityID.Int64
			e.EntityName = entityName.String
			e.OldData = oldData.String
			e.NewData = newData.String
			e.Note = note.String
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
