/*
dto.go - Request and response shapes for the HTTP API

PURPOSE:
  Defines the JSON bodies handlers parse and emit. Domain types carry
  their own JSON tags and are returned directly; this file holds only
  the shapes that exist purely at the HTTP boundary.

SEE ALSO:
  - handlers.go: where these are parsed and written
*/
package api

import "github.com/agristock/ledger-engine/ledger"

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// CredentialsRequest is the register/login body.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is returned by login.
type TokenResponse struct {
	Token    string `json:"token"`
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}

// WorkspaceRequest creates a workspace.
type WorkspaceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// MemberRequest adds a member to a workspace.
type MemberRequest struct {
	UserID int64       `json:"userId"`
	Role   ledger.Role `json:"role"`
}

// ProductCreateRequest creates a product with opening stock.
type ProductCreateRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Unit        string  `json:"unit"`
	Stock       float64 `json:"stock"`
	SupplierID  *int64  `json:"supplierId"`
}

// StockAdjustRequest is a direct stock correction. ExpectedVersion is
// the conflict token from the caller's latest read of the product.
type StockAdjustRequest struct {
	Delta           float64 `json:"delta"`
	ExpectedVersion int64   `json:"expectedVersion"`
}

// RefRequest creates or updates a supplier, customer or staff row.
type RefRequest struct {
	Name string `json:"name"`
	Note string `json:"note"`
}

// ImportResponse reports how many rows a bulk import wrote per table.
type ImportResponse struct {
	Counts map[string]int `json:"counts"`
}

// EntryResponse pairs a written ledger row with the stock state it
// produced, so clients hold a fresh conflict token without re-fetching.
type EntryResponse struct {
	Entry *ledger.Entry       `json:"entry"`
	Stock *ledger.StockResult `json:"stock,omitempty"`
}
