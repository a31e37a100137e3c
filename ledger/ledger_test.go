package ledger_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agristock/ledger-engine/ledger"
	"github.com/agristock/ledger-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestService(t *testing.T) (*ledger.Service, *sqlite.Store) {
	cfg := sqlite.DefaultConfig()
	cfg.RetryBaseDelay = time.Millisecond
	store, err := sqlite.New(":memory:", cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return ledger.NewService(store, nil), store
}

// createUser inserts an account row directly; these tests exercise the
// ledger, not registration.
func createUser(t *testing.T, store *sqlite.Store, username string) ledger.Actor {
	var id int64
	err := store.WithTx(context.Background(), func(tx *sql.Tx) error {
		res, err := tx.ExecContext(context.Background(),
			"INSERT INTO users (username, password_hash) VALUES (?, 'test-hash')", username)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	require.NoError(t, err)
	return ledger.Actor{UserID: id, Username: username}
}

// newWorkspace creates a service, an owner and a workspace in one go.
func newWorkspace(t *testing.T) (*ledger.Service, *sqlite.Store, ledger.Actor, int64) {
	svc, store := newTestService(t)
	owner := createUser(t, store, "owner")
	ws, err := svc.CreateWorkspace(context.Background(), owner, "farm", "")
	require.NoError(t, err)
	return svc, store, owner, ws.ID
}

func createProduct(t *testing.T, svc *ledger.Service, actor ledger.Actor, wsID int64, name string, stock float64) *ledger.Product {
	p, err := svc.CreateProduct(context.Background(), actor, wsID, name, "", "kg", stock, nil)
	require.NoError(t, err)
	return p
}

func ptrStr(s string) *string   { return &s }
func ptrF64(f float64) *float64 { return &f }
func ptrI64(i int64) *int64     { return &i }
func ptrInt(i int) *int         { return &i }
func ptrBool(b bool) *bool      { return &b }
