package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agristock/ledger-engine/api"
	"github.com/agristock/ledger-engine/auth"
	"github.com/agristock/ledger-engine/ledger"
	"github.com/agristock/ledger-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testAPI struct {
	t      *testing.T
	server *httptest.Server
	token  string
	wsID   int64
}

func newTestAPI(t *testing.T) *testAPI {
	cfg := sqlite.DefaultConfig()
	cfg.RetryBaseDelay = time.Millisecond
	store, err := sqlite.New(":memory:", cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	authSvc := auth.NewService(store, "test-secret", time.Hour, nil)
	ledgerSvc := ledger.NewService(store, nil)
	handler := api.NewHandler(ledgerSvc, authSvc, store, nil)
	server := httptest.NewServer(api.NewRouter(handler, zap.NewNop()))
	t.Cleanup(server.Close)

	return &testAPI{t: t, server: server}
}

// do sends a JSON request with auth and workspace headers applied.
func (a *testAPI) do(method, path string, body any) *http.Response {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.server.URL+path, &buf)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	if a.wsID != 0 {
		req.Header.Set("X-Workspace-ID", fmt.Sprintf("%d", a.wsID))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// signup registers, logs in and opens a workspace.
func (a *testAPI) signup(username string) {
	a.t.Helper()
	creds := api.CredentialsRequest{Username: username, Password: "hunter22"}

	resp := a.do(http.MethodPost, "/api/auth/register", creds)
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = a.do(http.MethodPost, "/api/auth/login", creds)
	require.Equal(a.t, http.StatusOK, resp.StatusCode)
	var tok api.TokenResponse
	decodeBody(a.t, resp, &tok)
	a.token = tok.Token

	resp = a.do(http.MethodPost, "/api/workspaces", api.WorkspaceRequest{Name: username + "'s farm"})
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)
	var ws ledger.Workspace
	decodeBody(a.t, resp, &ws)
	a.wsID = ws.ID
}

func (a *testAPI) createProduct(name string, stock float64) ledger.Product {
	a.t.Helper()
	resp := a.do(http.MethodPost, "/api/products", api.ProductCreateRequest{
		Name: name, Unit: "kg", Stock: stock,
	})
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)
	var p ledger.Product
	decodeBody(a.t, resp, &p)
	return p
}

// =============================================================================
// AUTH FLOW TESTS
// =============================================================================

func TestAPI_RequiresAuthentication(t *testing.T) {
	a := newTestAPI(t)

	resp := a.do(http.MethodGet, "/api/workspaces", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_LoginRejectsBadCredentials(t *testing.T) {
	a := newTestAPI(t)
	a.signup("alice")

	resp := a.do(http.MethodPost, "/api/auth/login", api.CredentialsRequest{
		Username: "alice", Password: "wrong",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_DuplicateUsernameConflicts(t *testing.T) {
	a := newTestAPI(t)
	a.signup("alice")

	resp := a.do(http.MethodPost, "/api/auth/register", api.CredentialsRequest{
		Username: "alice", Password: "hunter22",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

// =============================================================================
// LEDGER FLOW TESTS
// =============================================================================

func TestAPI_PurchaseFlow(t *testing.T) {
	a := newTestAPI(t)
	a.signup("alice")
	a.createProduct("wheat", 10)

	qty := 4.0
	name := "wheat"
	resp := a.do(http.MethodPost, "/api/purchases", ledger.EntryInput{
		ProductName: &name,
		Quantity:    &qty,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created api.EntryResponse
	decodeBody(t, resp, &created)
	assert.Equal(t, 14.0, created.Stock.NewStock)
	assert.Equal(t, int64(2), created.Stock.NewVersion)

	resp = a.do(http.MethodGet, "/api/purchases", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []ledger.Entry
	decodeBody(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "wheat", list[0].ProductName)
}

func TestAPI_StaleVersionMapsTo409(t *testing.T) {
	a := newTestAPI(t)
	a.signup("alice")
	p := a.createProduct("wheat", 10)

	resp := a.do(http.MethodPost, fmt.Sprintf("/api/products/%d/stock", p.ID), api.StockAdjustRequest{
		Delta: -1, ExpectedVersion: p.Version,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = a.do(http.MethodPost, fmt.Sprintf("/api/products/%d/stock", p.ID), api.StockAdjustRequest{
		Delta: -1, ExpectedVersion: p.Version,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_InsufficientStockMapsTo400(t *testing.T) {
	a := newTestAPI(t)
	a.signup("alice")
	a.createProduct("wheat", 3)

	qty := 100.0
	name := "wheat"
	resp := a.do(http.MethodPost, "/api/sales", ledger.EntryInput{
		ProductName: &name,
		Quantity:    &qty,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_UnknownRecordMapsTo404(t *testing.T) {
	a := newTestAPI(t)
	a.signup("alice")

	resp := a.do(http.MethodGet, "/api/products/999", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_MissingWorkspaceHeader(t *testing.T) {
	a := newTestAPI(t)
	a.signup("alice")
	a.wsID = 0

	resp := a.do(http.MethodGet, "/api/products", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_ForeignWorkspaceMapsTo404(t *testing.T) {
	a := newTestAPI(t)
	a.signup("alice")
	foreign := a.wsID

	b := newTestAPIUser(a, "bob")
	b.wsID = foreign

	resp := b.do(http.MethodGet, "/api/products", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// newTestAPIUser registers a second user against the same server.
func newTestAPIUser(a *testAPI, username string) *testAPI {
	b := &testAPI{t: a.t, server: a.server}
	b.signup(username)
	return b
}

func TestAPI_DuplicateProductNameMapsTo409(t *testing.T) {
	a := newTestAPI(t)
	a.signup("alice")
	a.createProduct("wheat", 10)

	resp := a.do(http.MethodPost, "/api/products", api.ProductCreateRequest{
		Name: "wheat", Unit: "kg",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_AuditLogAndStats(t *testing.T) {
	a := newTestAPI(t)
	a.signup("alice")
	a.createProduct("wheat", 10)

	resp := a.do(http.MethodGet, "/api/logs?entityType=product", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var logs []ledger.AuditEntry
	decodeBody(t, resp, &logs)
	require.Len(t, logs, 1)
	assert.Equal(t, ledger.AuditCreate, logs[0].Action)

	resp = a.do(http.MethodGet, "/api/admin/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats sqlite.PoolStats
	decodeBody(t, resp, &stats)
	assert.Equal(t, 10, stats.Max)
	assert.Greater(t, stats.TotalCreated, int64(0))
}

func TestAPI_SettingsAndImport(t *testing.T) {
	a := newTestAPI(t)
	a.signup("alice")
	a.createProduct("old-product", 3)

	// Settings materialize with defaults on first read.
	resp := a.do(http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st ledger.UserSettings
	decodeBody(t, resp, &st)
	assert.Equal(t, 15, st.AutoBackupInterval)
	assert.False(t, st.DarkMode)

	resp = a.do(http.MethodPut, "/api/settings", map[string]any{"darkMode": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &st)
	assert.True(t, st.DarkMode)

	// Import replaces the workspace's business data wholesale.
	resp = a.do(http.MethodPost, "/api/settings/import", map[string]any{
		"suppliers": []map[string]any{{"id": 7, "name": "ACME Seeds"}},
		"products": []map[string]any{
			{"name": "wheat", "stock": 9, "unit": "kg", "supplierId": 7},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var imported api.ImportResponse
	decodeBody(t, resp, &imported)
	assert.Equal(t, 1, imported.Counts["products"])

	resp = a.do(http.MethodGet, "/api/products", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var products []ledger.Product
	decodeBody(t, resp, &products)
	require.Len(t, products, 1)
	assert.Equal(t, "wheat", products[0].Name)
	assert.NotNil(t, products[0].SupplierID)
}
