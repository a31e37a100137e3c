/*
handlers.go - HTTP handlers for the ledger API

PURPOSE:
  Exposes the ledger engine via REST. Handlers parse HTTP, resolve the
  actor and workspace, delegate to the domain services, and map domain
  errors to status codes.

TENANCY:
  Workspace-scoped routes read the tenant from the X-Workspace-ID
  header. The domain layer re-checks membership inside each
  transaction; the header is routing, not authorization.

ERROR MAPPING:
  400  validation failures, insufficient stock
  401  missing/invalid token (middleware)
  403  insufficient workspace role
  404  unknown workspace, record, or product
  409  version conflict, duplicate name
  503  pool exhausted or store persistently busy

SEE ALSO:
  - server.go: router wiring
  - dto.go: request/response shapes
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/agristock/ledger-engine/auth"
	"github.com/agristock/ledger-engine/ledger"
	"github.com/agristock/ledger-engine/store/sqlite"
)

// Handler holds the services the HTTP layer fronts.
type Handler struct {
	Ledger *ledger.Service
	Auth   *auth.Service
	Store  *sqlite.Store
	Log    *zap.Logger
}

// NewHandler creates a handler. A nil logger is replaced with a no-op one.
func NewHandler(svc *ledger.Service, authSvc *auth.Service, store *sqlite.Store, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Ledger: svc, Auth: authSvc, Store: store, Log: log}
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (ledger.Actor, bool) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated", nil)
	}
	return actor, ok
}

func workspaceID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.Header.Get("X-Workspace-ID")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "Missing X-Workspace-ID header", nil)
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid X-Workspace-ID header", err)
		return 0, false
	}
	return id, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return false
	}
	return true
}

// writeDomainError maps domain sentinels to HTTP statuses. Order
// matters: the specific structured errors first, sentinels after.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var conflict *ledger.VersionConflictError
	var stock *ledger.InsufficientStockError
	switch {
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, "Concurrent modification, please retry with fresh data", err)
	case errors.As(err, &stock):
		writeError(w, http.StatusBadRequest, "Insufficient stock", err)
	case errors.Is(err, ledger.ErrDuplicateName):
		writeError(w, http.StatusConflict, "Name already in use", err)
	case errors.Is(err, ledger.ErrProductNotFound), errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, ledger.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "Insufficient permissions", err)
	case errors.Is(err, ledger.ErrNoFields):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case errors.Is(err, ledger.ErrStoreBusy), errors.Is(err, ledger.ErrAcquireTimeout):
		writeError(w, http.StatusServiceUnavailable, "Store busy, please retry", err)
	case errors.Is(err, auth.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "Username already taken", err)
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials", nil)
	default:
		h.Log.Error("unhandled domain error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// =============================================================================
// AUTH
// =============================================================================

// Register creates a user account.
// POST /api/auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decode(w, r, &req) {
		return
	}
	user, err := h.Auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUsernameTaken) {
			h.writeDomainError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, "Registration failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// Login verifies credentials and returns a bearer token.
// POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decode(w, r, &req) {
		return
	}
	token, user, err := h.Auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{Token: token, UserID: user.ID, Username: user.Username})
}

// =============================================================================
// WORKSPACES
// =============================================================================

func (h *Handler) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req WorkspaceRequest
	if !decode(w, r, &req) {
		return
	}
	ws, err := h.Ledger.CreateWorkspace(r.Context(), actor, req.Name, req.Description)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ws)
}

func (h *Handler) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	list, err := h.Ledger.ListWorkspaces(r.Context(), actor)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ws, err := h.Ledger.GetWorkspace(r.Context(), actor, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	members, err := h.Ledger.ListMembers(r.Context(), actor, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req MemberRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Ledger.AddMember(r.Context(), actor, id, req.UserID, req.Role); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "added"})
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	userID, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid user id", err)
		return
	}
	if err := h.Ledger.RemoveMember(r.Context(), actor, id, userID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// =============================================================================
// PRODUCTS
// =============================================================================

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	products, err := h.Ledger.ListProducts(r.Context(), actor, wsID, r.URL.Query().Get("search"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	var req ProductCreateRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.Ledger.CreateProduct(r.Context(), actor, wsID, req.Name, req.Description, req.Unit, req.Stock, req.SupplierID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.Ledger.GetProduct(r.Context(), actor, wsID, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ledger.ProductInput
	if !decode(w, r, &req) {
		return
	}
	p, err := h.Ledger.UpdateProduct(r.Context(), actor, wsID, id, req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Ledger.DeleteProduct(r.Context(), actor, wsID, id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// AdjustStock applies a direct stock correction guarded by the
// caller-supplied version.
// POST /api/products/{id}/stock
func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req StockAdjustRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := h.Ledger.AdjustStock(r.Context(), actor, wsID, id, req.Delta, req.ExpectedVersion)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// LEDGER ENTRIES (purchases, sales, returns)
// =============================================================================

func (h *Handler) listEntries(kind ledger.EntryKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}
		wsID, ok := workspaceID(w, r)
		if !ok {
			return
		}
		q := r.URL.Query()
		entries, err := h.Ledger.ListEntries(r.Context(), actor, wsID, kind,
			q.Get("search"), q.Get("from"), q.Get("to"))
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func (h *Handler) createEntry(kind ledger.EntryKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}
		wsID, ok := workspaceID(w, r)
		if !ok {
			return
		}
		var req ledger.EntryInput
		if !decode(w, r, &req) {
			return
		}
		entry, stock, err := h.Ledger.CreateEntry(r.Context(), actor, wsID, kind, req)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, EntryResponse{Entry: entry, Stock: stock})
	}
}

func (h *Handler) getEntry(kind ledger.EntryKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}
		wsID, ok := workspaceID(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		entry, err := h.Ledger.GetEntry(r.Context(), actor, wsID, kind, id)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

func (h *Handler) updateEntry(kind ledger.EntryKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}
		wsID, ok := workspaceID(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req ledger.EntryInput
		if !decode(w, r, &req) {
			return
		}
		entry, stock, err := h.Ledger.UpdateEntry(r.Context(), actor, wsID, kind, id, req)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, EntryResponse{Entry: entry, Stock: stock})
	}
}

func (h *Handler) deleteEntry(kind ledger.EntryKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}
		wsID, ok := workspaceID(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := h.Ledger.DeleteEntry(r.Context(), actor, wsID, kind, id); err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// =============================================================================
// CASH MOVEMENTS (income, remittance)
// =============================================================================

func (h *Handler) listCash(kind ledger.CashKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}
		wsID, ok := workspaceID(w, r)
		if !ok {
			return
		}
		q := r.URL.Query()
		list, err := h.Ledger.ListCashMovements(r.Context(), actor, wsID, kind, q.Get("from"), q.Get("to"))
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func (h *Handler) createCash(kind ledger.CashKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}
		wsID, ok := workspaceID(w, r)
		if !ok {
			return
		}
		var req ledger.CashInput
		if !decode(w, r, &req) {
			return
		}
		mv, err := h.Ledger.CreateCashMovement(r.Context(), actor, wsID, kind, req)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, mv)
	}
}

func (h *Handler) getCash(kind ledger.CashKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}
		wsID, ok := workspaceID(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		mv, err := h.Ledger.GetCashMovement(r.Context(), actor, wsID, kind, id)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, mv)
	}
}

func (h *Handler) updateCash(kind ledger.CashKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}
		wsID, ok := workspaceID(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req ledger.CashInput
		if !decode(w, r, &req) {
			return
		}
		mv, err := h.Ledger.UpdateCashMovement(r.Context(), actor, wsID, kind, id, req)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, mv)
	}
}

func (h *Handler) deleteCash(kind ledger.CashKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}
		wsID, ok := workspaceID(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := h.Ledger.DeleteCashMovement(r.Context(), actor, wsID, kind, id); err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// =============================================================================
// REFERENCE DATA (suppliers, customers, staff)
// =============================================================================

func (h *Handler) listRefs(kind ledger.RefKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}
		wsID, ok := workspaceID(w, r)
		if !ok {
			return
		}
		list, err := h.Ledger.ListRefs(r.Context(), actor, wsID, kind, r.URL.Query().Get("search"))
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func (h *Handler) createRef(kind ledger.RefKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}
		wsID, ok := workspaceID(w, r)
		if !ok {
			return
		}
		var req RefRequest
		if !decode(w, r, &req) {
			return
		}
		rec, err := h.Ledger.CreateRef(r.Context(), actor, wsID, kind, req.Name, req.Note)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	}
}

func (h *Handler) getRef(kind ledger.RefKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}
		wsID, ok := workspaceID(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		rec, err := h.Ledger.GetRef(r.Context(), actor, wsID, kind, id)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func (h *Handler) updateRef(kind ledger.RefKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}
		wsID, ok := workspaceID(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req ledger.RefInput
		if !decode(w, r, &req) {
			return
		}
		rec, err := h.Ledger.UpdateRef(r.Context(), actor, wsID, kind, id, req)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func (h *Handler) deleteRef(kind ledger.RefKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}
		wsID, ok := workspaceID(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := h.Ledger.DeleteRef(r.Context(), actor, wsID, kind, id); err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// =============================================================================
// USER SETTINGS AND DATA IMPORT
// =============================================================================

// GetSettings returns the caller's settings, creating defaults on
// first read.
// GET /api/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	st, err := h.Ledger.GetSettings(r.Context(), actor)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// UpdateSettings patches the caller's settings.
// PUT /api/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req ledger.SettingsInput
	if !decode(w, r, &req) {
		return
	}
	st, err := h.Ledger.UpdateSettings(r.Context(), actor, req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ImportData replaces the workspace's business data with an exported
// payload. Owner/admin only; the whole import is one transaction.
// POST /api/settings/import
func (h *Handler) ImportData(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	var req ledger.ImportPayload
	if !decode(w, r, &req) {
		return
	}
	counts, err := h.Ledger.ImportData(r.Context(), actor, wsID, req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ImportResponse{Counts: counts})
}

// =============================================================================
// AUDIT AND ADMIN
// =============================================================================

// ListAuditLogs returns the workspace's operation log, newest first.
// GET /api/logs
func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	logs, err := h.Ledger.ListAuditLogs(r.Context(), actor, wsID, ledger.AuditFilter{
		EntityType: q.Get("entityType"),
		Action:     ledger.AuditAction(q.Get("action")),
		Limit:      limit,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// GetStats reports connection pool counters.
// GET /api/admin/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.Store.Stats())
}
