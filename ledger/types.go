/*
types.go - Domain types for the multi-tenant business ledger

PURPOSE:
  Defines the records the ledger engine persists and the narrow database
  contract (Runner) the domain logic runs against. The concrete SQLite
  store implements Runner; domain code never sees the pool directly.

TENANCY:
  Every business record belongs to exactly one workspace. Names of
  reference data (products, suppliers, customers, staff) are unique per
  workspace, not globally.

SEE ALSO:
  - store/sqlite/store.go: Runner implementation
  - inventory.go: stock mutation protocol over these types
*/
package ledger

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
)

// Runner executes domain logic inside store transactions. WithTx gives a
// single attempt; WithTxRetry retries bounded times on ErrStoreBusy only.
type Runner interface {
	WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error
	WithTxRetry(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// Actor identifies the authenticated user performing an operation.
type Actor struct {
	UserID   int64
	Username string
}

// Role is a workspace membership level.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// CanWrite reports whether the role may create, update or delete records.
func (r Role) CanWrite() bool {
	return r == RoleOwner || r == RoleAdmin || r == RoleEditor
}

// PaymentMethod is how a cash movement was settled.
type PaymentMethod string

const (
	PayCash   PaymentMethod = "cash"
	PayWeChat PaymentMethod = "wechat"
	PayBank   PaymentMethod = "bank"
)

// Valid reports whether the payment method is one of the known values.
func (m PaymentMethod) Valid() bool {
	return m == PayCash || m == PayWeChat || m == PayBank
}

// UserSettings are per-account preferences, independent of any
// workspace. A row is created with defaults on first read.
type UserSettings struct {
	ID                 int64  `json:"id"`
	UserID             int64  `json:"userId"`
	DarkMode           bool   `json:"darkMode"`
	AutoBackupEnabled  bool   `json:"autoBackupEnabled"`
	AutoBackupInterval int    `json:"autoBackupInterval"`
	AutoBackupMaxCount int    `json:"autoBackupMaxCount"`
	LastBackupTime     string `json:"lastBackupTime,omitempty"`
	CreatedAt          string `json:"createdAt"`
	UpdatedAt          string `json:"updatedAt"`
}

// Workspace is a tenant boundary. All business records hang off one.
type Workspace struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	OwnerID     int64  `json:"ownerId"`
	Role        Role   `json:"role,omitempty"` // caller's role, filled on list/get
	CreatedAt   string `json:"createdAt"`
}

// Member is a user's membership in a workspace.
type Member struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	JoinedAt string `json:"joinedAt"`
}

// Product is the quantity-bearing entity of the system. Stock is mutated
// only through the inventory mutation protocol; Version increases by
// exactly one on every successful stock write.
type Product struct {
	ID          int64   `json:"id"`
	WorkspaceID int64   `json:"workspaceId"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Stock       float64 `json:"stock"`
	Unit        string  `json:"unit"`
	SupplierID  *int64  `json:"supplierId,omitempty"`
	Version     int64   `json:"version"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}

// StockResult is returned by every successful stock mutation: the state
// the caller must use as its next conflict token.
type StockResult struct {
	ProductID  int64   `json:"productId"`
	Product    string  `json:"product"`
	NewStock   float64 `json:"newStock"`
	NewVersion int64   `json:"newVersion"`
}

// EntryKind distinguishes the three stock-moving ledger row types.
type EntryKind string

const (
	EntryPurchase EntryKind = "purchase"
	EntrySale     EntryKind = "sale"
	EntryReturn   EntryKind = "return"
)

// Entry is one purchase, sale or return row. The product association is
// by name, resolved to a product row at mutation time. PartnerID points
// at a supplier (purchases) or customer (sales, returns).
type Entry struct {
	ID          int64           `json:"id"`
	WorkspaceID int64           `json:"workspaceId"`
	Kind        EntryKind       `json:"kind"`
	ProductName string          `json:"productName"`
	Quantity    float64         `json:"quantity"`
	PartnerID   *int64          `json:"partnerId,omitempty"`
	EntryDate   string          `json:"date,omitempty"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
	Note        string          `json:"note,omitempty"`
	CreatedAt   string          `json:"createdAt"`
}

// CashKind distinguishes the two cash movement tables.
type CashKind string

const (
	CashIncome     CashKind = "income"
	CashRemittance CashKind = "remittance"
)

// CashMovement is an income (from a customer) or remittance (to a
// supplier) row. Discount is only meaningful for income.
type CashMovement struct {
	ID          int64           `json:"id"`
	WorkspaceID int64           `json:"workspaceId"`
	Kind        CashKind        `json:"kind"`
	Date        string          `json:"date"`
	PartnerID   *int64          `json:"partnerId,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Discount    decimal.Decimal `json:"discount"`
	StaffID     *int64          `json:"staffId,omitempty"`
	Method      PaymentMethod   `json:"paymentMethod"`
	Note        string          `json:"note,omitempty"`
	CreatedAt   string          `json:"createdAt"`
}

// RefKind distinguishes the name-unique reference data tables.
type RefKind string

const (
	RefSupplier RefKind = "supplier"
	RefCustomer RefKind = "customer"
	RefStaff    RefKind = "staff"
)

// RefRecord is a supplier, customer or staff row.
type RefRecord struct {
	ID          int64   `json:"id"`
	WorkspaceID int64   `json:"workspaceId"`
	Kind        RefKind `json:"kind"`
	Name        string  `json:"name"`
	Note        string  `json:"note,omitempty"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}

// AuditAction is the kind of change an audit entry records.
type AuditAction string

const (
	AuditCreate AuditAction = "CREATE"
	AuditUpdate AuditAction = "UPDATE"
	AuditDelete AuditAction = "DELETE"
)

// AuditEntry records who changed what. Written after the business
// transaction commits; an audit write failure never fails the operation.
type AuditEntry struct {
	ID          string      `json:"id"`
	WorkspaceID int64       `json:"workspaceId"`
	UserID      int64       `json:"userId"`
	Username    string      `json:"username"`
	Action      AuditAction `json:"action"`
	EntityType  string      `json:"entityType"`
	EntityID    int64       `json:"entityId"`
	EntityName  string      `json:"entityName,omitempty"`
	OldData     string      `json:"oldData,omitempty"`
	NewData     string      `json:"newData,omitempty"`
	Note        string      `json:"note,omitempty"`
	CreatedAt   string      `json:"createdAt"`
}
