/*
service.go - Ledger service wiring and shared helpers

PURPOSE:
  Service bundles the store runner and logger every ledger operation
  needs. Each public operation is exactly one retryable unit of work:
  the ledger row write and its paired stock adjustment(s) live in the
  same transaction.

PERMISSIONS:
  Every operation resolves the actor's workspace role inside the same
  transaction as its reads and writes. Viewers read, editors and above
  write; non-members see nothing.
*/
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service implements every ledger operation over a Runner.
type Service struct {
	db  Runner
	log *zap.Logger
}

// NewService creates a ledger service. A nil logger is replaced with a
// no-op one so tests can skip wiring.
func NewService(db Runner, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, log: log}
}

// memberRole returns the actor's role in the workspace, or ErrNotFound
// if the actor is not a member (a non-member must not be able to tell a
// missing workspace from a forbidden one).
func memberRole(ctx context.Context, tx querier, workspaceID int64, userID int64) (Role, error) {
	var role Role
	err := tx.QueryRowContext(ctx,
		"SELECT role FROM workspace_members WHERE workspace_id = ? AND user_id = ?",
		workspaceID, userID,
	).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: workspace %d", ErrNotFound, workspaceID)
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

func (s *Service) requireRole(ctx context.Context, tx querier, workspaceID int64, actor Actor, write bool) error {
	role, err := memberRole(ctx, tx, workspaceID, actor.UserID)
	if err != nil {
		return err
	}
	if write && !role.CanWrite() {
		return fmt.Errorf("%w: role %s cannot modify workspace %d", ErrPermissionDenied, role, workspaceID)
	}
	return nil
}

// isUniqueViolation matches the engine's UNIQUE constraint message, the
// same way the name-uniqueness invariant is enforced: by the schema,
// not by a racy pre-check.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// validDate accepts YYYY-MM-DD or empty (meaning "unset").
func validDate(s string) bool {
	return s == "" || dateRe.MatchString(s)
}

// nullableID maps "no partner" (nil or 0) to SQL NULL.
func nullableID(id *int64) any {
	if id == nil || *id == 0 {
		return nil
	}
	return *id
}

func scanNullableID(ns sql.NullInt64) *int64 {
	if !ns.Valid {
		return nil
	}
	v := ns.Int64
	return &v
}

// decimalText stores decimals the way the schema expects: as text.
func decimalText(d decimal.Decimal) string {
	return d.String()
}

func parseDecimal(ns sql.NullString) decimal.Decimal {
	if !ns.Valid || ns.String == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// mustJSON renders audit payloads; marshal failures degrade to empty.
func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
