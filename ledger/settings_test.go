package ledger_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agristock/ledger-engine/ledger"
)

// =============================================================================
// USER SETTINGS TESTS
// =============================================================================

func TestSettings_DefaultsOnFirstRead(t *testing.T) {
	// GIVEN: A user who has never touched their settings
	// WHEN: Settings are read
	// THEN: A row with defaults is created and returned

	svc, store := newTestService(t)
	actor := createUser(t, store, "alice")

	st, err := svc.GetSettings(context.Background(), actor)
	require.NoError(t, err)

	assert.Equal(t, actor.UserID, st.UserID)
	assert.False(t, st.DarkMode)
	assert.False(t, st.AutoBackupEnabled)
	assert.Equal(t, 15, st.AutoBackupInterval)
	assert.Equal(t, 20, st.AutoBackupMaxCount)
	assert.Empty(t, st.LastBackupTime)

	// A second read returns the same row, not another default one.
	again, err := svc.GetSettings(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, st.ID, again.ID)
}

func TestSettings_PatchesOnlyNamedFields(t *testing.T) {
	svc, store := newTestService(t)
	actor := createUser(t, store, "alice")

	st, err := svc.UpdateSettings(context.Background(), actor, ledger.SettingsInput{
		DarkMode:           ptrBool(true),
		AutoBackupInterval: ptrInt(30),
	})
	require.NoError(t, err)

	assert.True(t, st.DarkMode)
	assert.Equal(t, 30, st.AutoBackupInterval)
	assert.Equal(t, 20, st.AutoBackupMaxCount, "untouched field keeps its default")

	st, err = svc.UpdateSettings(context.Background(), actor, ledger.SettingsInput{
		LastBackupTime: ptrStr("2026-08-30T12:00:00Z"),
	})
	require.NoError(t, err)
	assert.True(t, st.DarkMode, "earlier patch survives")
	assert.Equal(t, "2026-08-30T12:00:00Z", st.LastBackupTime)
}

func TestSettings_Validation(t *testing.T) {
	svc, store := newTestService(t)
	actor := createUser(t, store, "alice")

	_, err := svc.UpdateSettings(context.Background(), actor, ledger.SettingsInput{})
	assert.ErrorIs(t, err, ledger.ErrNoFields, "empty patch is rejected")

	_, err = svc.UpdateSettings(context.Background(), actor, ledger.SettingsInput{
		AutoBackupInterval: ptrInt(0),
	})
	assert.ErrorIs(t, err, ledger.ErrNoFields)

	_, err = svc.UpdateSettings(context.Background(), actor, ledger.SettingsInput{
		AutoBackupMaxCount: ptrInt(-1),
	})
	assert.ErrorIs(t, err, ledger.ErrNoFields)
}

// =============================================================================
// BULK DATA IMPORT TESTS
// =============================================================================

func TestImportData_ReplacesWorkspaceData(t *testing.T) {
	// GIVEN: A workspace already holding live data
	// WHEN: An exported payload is imported
	// THEN: The old data is gone, the payload's rows exist with fresh
	//       ids, and exporter-side references are remapped

	svc, _, owner, wsID := newWorkspace(t)
	ctx := context.Background()

	_, err := svc.CreateRef(ctx, owner, wsID, ledger.RefSupplier, "old supplier", "")
	require.NoError(t, err)
	createProduct(t, svc, owner, wsID, "old-product", 5)
	_, _, err = svc.CreateEntry(ctx, owner, wsID, ledger.EntryPurchase, ledger.EntryInput{
		ProductName: ptrStr("old-product"),
		Quantity:    ptrF64(3),
	})
	require.NoError(t, err)

	price := decimal.NewFromInt(120)
	counts, err := svc.ImportData(ctx, owner, wsID, ledger.ImportPayload{
		Suppliers: []ledger.ImportRef{{ID: 7, Name: "ACME Seeds"}},
		Customers: []ledger.ImportRef{{ID: 3, Name: "Blue Farm"}},
		Staff:     []ledger.ImportRef{{ID: 9, Name: "Wei"}},
		Products: []ledger.ImportProduct{
			{Name: "wheat", Stock: 12, Unit: "kg", SupplierID: ptrI64(7)},
		},
		Purchases: []ledger.ImportEntry{
			{ProductName: "wheat", Quantity: 5, EntryDate: "2026-01-15", PartnerID: ptrI64(7), TotalPrice: &price},
		},
		Sales: []ledger.ImportEntry{
			{ProductName: "wheat", Quantity: 2, EntryDate: "2026-01-20", PartnerID: ptrI64(3)},
		},
		Income: []ledger.ImportCash{
			{Date: "2026-01-21", PartnerID: ptrI64(3), Amount: decimal.NewFromInt(80), StaffID: ptrI64(9), Method: ledger.PayCash},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, counts["suppliers"])
	assert.Equal(t, 1, counts["products"])
	assert.Equal(t, 1, counts["purchases"])
	assert.Equal(t, 0, counts["remittance"])

	products, err := svc.ListProducts(ctx, owner, wsID, "")
	require.NoError(t, err)
	require.Len(t, products, 1, "pre-import product must be gone")
	assert.Equal(t, "wheat", products[0].Name)
	assert.Equal(t, 12.0, products[0].Stock)
	assert.Equal(t, int64(1), products[0].Version)

	suppliers, err := svc.ListRefs(ctx, owner, wsID, ledger.RefSupplier, "")
	require.NoError(t, err)
	require.Len(t, suppliers, 1)
	assert.Equal(t, "ACME Seeds", suppliers[0].Name)
	require.NotNil(t, products[0].SupplierID)
	assert.Equal(t, suppliers[0].ID, *products[0].SupplierID, "exporter id 7 remapped to the new row")

	purchases, err := svc.ListEntries(ctx, owner, wsID, ledger.EntryPurchase, "", "", "")
	require.NoError(t, err)
	require.Len(t, purchases, 1, "only the imported purchase remains")
	require.NotNil(t, purchases[0].PartnerID)
	assert.Equal(t, suppliers[0].ID, *purchases[0].PartnerID)
	assert.True(t, purchases[0].TotalPrice.Equal(price))

	income, err := svc.ListCashMovements(ctx, owner, wsID, ledger.CashIncome, "", "")
	require.NoError(t, err)
	require.Len(t, income, 1)

	logs, err := svc.ListAuditLogs(ctx, owner, wsID, ledger.AuditFilter{EntityType: "workspace-data"})
	require.NoError(t, err)
	require.Len(t, logs, 1, "the import leaves one audit entry")
	assert.Equal(t, ledger.AuditUpdate, logs[0].Action)
}

func TestImportData_UnknownReferenceDegradesToNull(t *testing.T) {
	svc, _, owner, wsID := newWorkspace(t)

	_, err := svc.ImportData(context.Background(), owner, wsID, ledger.ImportPayload{
		Products: []ledger.ImportProduct{
			{Name: "rice", Stock: 4, Unit: "kg", SupplierID: ptrI64(42)},
		},
	})
	require.NoError(t, err)

	products, err := svc.ListProducts(context.Background(), owner, wsID, "")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Nil(t, products[0].SupplierID, "a reference absent from the payload is dropped")
}

func TestImportData_RollsBackOnBadRow(t *testing.T) {
	// GIVEN: A workspace with live data and a payload whose last row is
	//        invalid
	// WHEN: The import fails
	// THEN: Nothing was deleted or inserted

	svc, _, owner, wsID := newWorkspace(t)
	ctx := context.Background()
	createProduct(t, svc, owner, wsID, "corn", 7)

	_, err := svc.ImportData(ctx, owner, wsID, ledger.ImportPayload{
		Suppliers: []ledger.ImportRef{{Name: "ACME Seeds"}},
		Income: []ledger.ImportCash{
			{Date: "2026-02-01", Amount: decimal.NewFromInt(10), Method: "barter"},
		},
	})
	require.ErrorIs(t, err, ledger.ErrNoFields)

	products, err := svc.ListProducts(ctx, owner, wsID, "")
	require.NoError(t, err)
	require.Len(t, products, 1, "pre-import data survives a failed import")
	assert.Equal(t, "corn", products[0].Name)

	suppliers, err := svc.ListRefs(ctx, owner, wsID, ledger.RefSupplier, "")
	require.NoError(t, err)
	assert.Empty(t, suppliers, "partial inserts are rolled back")
}

func TestImportData_RequiresOwnerOrAdmin(t *testing.T) {
	svc, store, owner, wsID := newWorkspace(t)
	ctx := context.Background()

	editor := createUser(t, store, "editor")
	require.NoError(t, svc.AddMember(ctx, owner, wsID, editor.UserID, ledger.RoleEditor))

	_, err := svc.ImportData(ctx, editor, wsID, ledger.ImportPayload{})
	assert.ErrorIs(t, err, ledger.ErrPermissionDenied, "an editor may write rows, not replace the workspace")

	admin := createUser(t, store, "admin")
	require.NoError(t, svc.AddMember(ctx, owner, wsID, admin.UserID, ledger.RoleAdmin))

	_, err = svc.ImportData(ctx, admin, wsID, ledger.ImportPayload{})
	assert.NoError(t, err)
}
