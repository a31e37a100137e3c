// workspaces.go - tenant management.
//
// A workspace is the tenancy boundary: every business record belongs to
// exactly one, and visibility is decided by workspace membership alone.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateWorkspace creates a workspace with the actor as its owner.
func (s *Service) CreateWorkspace(ctx context.Context, actor Actor, name, description string) (*Workspace, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: workspace name is required", ErrNoFields)
	}

	var ws Workspace
	err := s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO workspaces (name, description, owner_id) VALUES (?, ?, ?)",
			name, description, actor.UserID,
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO workspace_members (workspace_id, user_id, role) VALUES (?, ?, ?)",
			id, actor.UserID, RoleOwner,
		); err != nil {
			return err
		}

		return tx.QueryRowContext(ctx,
			"SELECT id, name, COALESCE(description, ''), owner_id, created_at FROM workspaces WHERE id = ?",
			id,
		).Scan(&ws.ID, &ws.Name, &ws.Description, &ws.OwnerID, &ws.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	ws.Role = RoleOwner

	s.audit(ctx, AuditEntry{
		WorkspaceID: ws.ID,
		UserID:      actor.UserID,
		Username:    actor.Username,
		Action:      AuditCreate,
		EntityType:  "workspace",
		EntityID:    ws.ID,
		EntityName:  ws.Name,
		NewData:     mustJSON(ws),
	})
	return &ws, nil
}

// ListWorkspaces returns every workspace the actor is a member of,
// with the actor's role filled in.
func (s *Service) ListWorkspaces(ctx context.Context, actor Actor) ([]Workspace, error) {
	var out []Workspace
	err := s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT w.id, w.name, COALESCE(w.description, ''), w.owner_id, w.created_at, m.role
			FROM workspaces w
			JOIN workspace_members m ON m.workspace_id = w.id
			WHERE m.user_id = ?
			ORDER BY w.name`,
			actor.UserID,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var ws Workspace
			if err := rows.Scan(&ws.ID, &ws.Name, &ws.Description, &ws.OwnerID, &ws.CreatedAt, &ws.Role); err != nil {
				return err
			}
			out = append(out, ws)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetWorkspace returns one workspace if the actor is a member.
func (s *Service) GetWorkspace(ctx context.Context, actor Actor, workspaceID int64) (*Workspace, error) {
	var ws Workspace
	err := s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		role, err := memberRole(ctx, tx, workspaceID, actor.UserID)
		if err != nil {
			return err
		}
		ws.Role = role
		return tx.QueryRowContext(ctx,
			"SELECT id, name, COALESCE(description, ''), owner_id, created_at FROM workspaces WHERE id = ?",
			workspaceID,
		).Scan(&ws.ID, &ws.Name, &ws.Description, &ws.OwnerID, &ws.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

// AddMember grants a user a role in the workspace. Only owners and
// admins manage membership; nobody hands out the owner role.
func (s *Service) AddMember(ctx context.Context, actor Actor, workspaceID, userID int64, role Role) error {
	if role != RoleAdmin && role != RoleEditor && role != RoleViewer {
		return fmt.Errorf("%w: invalid member role %q", ErrNoFields, role)
	}

	err := s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		actorRole, err := memberRole(ctx, tx, workspaceID, actor.UserID)
		if err != nil {
			return err
		}
		if actorRole != RoleOwner && actorRole != RoleAdmin {
			return fmt.Errorf("%w: role %s cannot manage members", ErrPermissionDenied, actorRole)
		}

		var exists int64
		if err := tx.QueryRowContext(ctx, "SELECT id FROM users WHERE id = ?", userID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: user %d", ErrNotFound, userID)
			}
			return err
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO workspace_members (workspace_id, user_id, role) VALUES (?, ?, ?)",
			workspaceID, userID, role,
		)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user %d is already a member", ErrDuplicateName, userID)
		}
		return err
	})
	if err != nil {
		return err
	}

	s.audit(ctx, AuditEntry{
		WorkspaceID: workspaceID,
		UserID:      actor.UserID,
		Username:    actor.Username,
		Action:      AuditCreate,
		EntityType:  "member",
		EntityID:    userID,
		NewData:     fmt.Sprintf(`{"role":%q}`, role),
	})
	return nil
}

// RemoveMember revokes a user's membership. The owner cannot be removed.
func (s *Service) RemoveMember(ctx context.Context, actor Actor, workspaceID, userID int64) error {
	err := s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		actorRole, err := memberRole(ctx, tx, workspaceID, actor.UserID)
		if err != nil {
			return err
		}
		if actorRole != RoleOwner && actorRole != RoleAdmin {
			return fmt.Errorf("%w: role %s cannot manage members", ErrPermissionDenied, actorRole)
		}

		res, err := tx.ExecContext(ctx,
			"DELETE FROM workspace_members WHERE workspace_id = ? AND user_id = ? AND role != ?",
			workspaceID, userID, RoleOwner,
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("%w: member %d", ErrNotFound, userID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.audit(ctx, AuditEntry{
		WorkspaceID: workspaceID,
		UserID:      actor.UserID,
		Username:    actor.Username,
		Action:      AuditDelete,
		EntityType:  "member",
		EntityID:    userID,
	})
	return nil
}

// ListMembers returns the workspace's membership roster.
func (s *Service) ListMembers(ctx context.Context, actor Actor, workspaceID int64) ([]Member, error) {
	var out []Member
	err := s.db.WithTxRetry(ctx, func(tx *sql.Tx) error {
		if err := s.requireRole(ctx, tx, workspaceID, actor, false); err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx, `
			SELECT m.user_id, u.username, m.role, m.joined_at
			FROM workspace_members m
			JOIN users u ON u.id = m.user_id
			WHERE m.workspace_id = ?
			ORDER BY m.joined_at`,
			workspaceID,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var m Member
			if err := rows.Scan(&m.UserID, &m.Username, &m.Role, &m.JoinedAt); err != nil {
				return err
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
