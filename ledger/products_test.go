package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agristock/ledger-engine/ledger"
)

func TestCreateProduct_DuplicateNameRejected(t *testing.T) {
	svc, _, owner, wsID := newWorkspace(t)
	ctx := context.Background()

	createProduct(t, svc, owner, wsID, "wheat", 10)
	_, err := svc.CreateProduct(ctx, owner, wsID, "wheat", "", "kg", 5, nil)
	assert.ErrorIs(t, err, ledger.ErrDuplicateName)
}

func TestCreateProduct_SameNameInOtherWorkspace(t *testing.T) {
	// Name uniqueness is per workspace, not global.
	svc, _, owner, wsID := newWorkspace(t)
	ctx := context.Background()
	createProduct(t, svc, owner, wsID, "wheat", 10)

	other, err := svc.CreateWorkspace(ctx, owner, "second farm", "")
	require.NoError(t, err)

	_, err = svc.CreateProduct(ctx, owner, other.ID, "wheat", "", "kg", 5, nil)
	assert.NoError(t, err)
}

func TestCreateProduct_NegativeOpeningStockRejected(t *testing.T) {
	svc, _, owner, wsID := newWorkspace(t)

	_, err := svc.CreateProduct(context.Background(), owner, wsID, "wheat", "", "kg", -1, nil)
	assert.ErrorIs(t, err, ledger.ErrNoFields)
}

func TestUpdateProduct_PartialPatch(t *testing.T) {
	svc, _, owner, wsID := newWorkspace(t)
	ctx := context.Background()
	p := createProduct(t, svc, owner, wsID, "wheat", 10)

	updated, err := svc.UpdateProduct(ctx, owner, wsID, p.ID, ledger.ProductInput{
		Description: ptrStr("winter wheat"),
	})
	require.NoError(t, err)
	assert.Equal(t, "winter wheat", updated.Description)
	assert.Equal(t, "wheat", updated.Name, "unnamed fields stay put")
	assert.Equal(t, 10.0, updated.Stock)
	assert.Equal(t, int64(1), updated.Version, "metadata edits never touch the version")
}

func TestUpdateProduct_EmptyPatchRejected(t *testing.T) {
	svc, _, owner, wsID := newWorkspace(t)
	p := createProduct(t, svc, owner, wsID, "wheat", 10)

	_, err := svc.UpdateProduct(context.Background(), owner, wsID, p.ID, ledger.ProductInput{})
	assert.ErrorIs(t, err, ledger.ErrNoFields)
}

func TestUpdateProduct_UnknownSupplierRejected(t *testing.T) {
	svc, _, owner, wsID := newWorkspace(t)
	p := createProduct(t, svc, owner, wsID, "wheat", 10)

	_, err := svc.UpdateProduct(context.Background(), owner, wsID, p.ID, ledger.ProductInput{
		SupplierID: ptrI64(424242),
	})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestProduct_SupplierAssignment(t *testing.T) {
	svc, _, owner, wsID := newWorkspace(t)
	ctx := context.Background()

	sup, err := svc.CreateRef(ctx, owner, wsID, ledger.RefSupplier, "mill co", "")
	require.NoError(t, err)

	p, err := svc.CreateProduct(ctx, owner, wsID, "flour", "", "kg", 0, &sup.ID)
	require.NoError(t, err)
	require.NotNil(t, p.SupplierID)
	assert.Equal(t, sup.ID, *p.SupplierID)

	// Deleting the supplier detaches, not deletes, the product.
	require.NoError(t, svc.DeleteRef(ctx, owner, wsID, ledger.RefSupplier, sup.ID))
	fresh, err := svc.GetProduct(ctx, owner, wsID, p.ID)
	require.NoError(t, err)
	assert.Nil(t, fresh.SupplierID)
}

func TestDeleteProduct_LeavesLedgerRows(t *testing.T) {
	svc, _, owner, wsID := newWorkspace(t)
	ctx := context.Background()
	p := createProduct(t, svc, owner, wsID, "wheat", 10)

	entry, _, err := svc.CreateEntry(ctx, owner, wsID, ledger.EntryPurchase, ledger.EntryInput{
		ProductName: ptrStr("wheat"),
		Quantity:    ptrF64(2),
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteProduct(ctx, owner, wsID, p.ID))

	// The purchase row survives, referencing the name.
	got, err := svc.GetEntry(ctx, owner, wsID, ledger.EntryPurchase, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "wheat", got.ProductName)
}
