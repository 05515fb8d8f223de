package models

import (
	"time"
)

// User roles
const (
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

// Stock units accepted by the system. "kg" only appears in records written by
// old clients; new conversions always credit "kgs".
const (
	UnitBags     = "bags"
	UnitKgs      = "kgs"
	Unit50Kg     = "50kg"
	UnitLegacyKg = "kg"
)

// Profile represents a user of the system. Sellers are bound to exactly one
// shop; admins have no shop and implicitly see all of them.
type Profile struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"` // bcrypt hash, never returned in JSON
	DisplayName  string    `db:"display_name" json:"displayName"`
	Role         string    `db:"role" json:"role"`
	ShopID       *string   `db:"shop_id" json:"shopId,omitempty"`
	ShopName     *string   `db:"shop_name" json:"shopName,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// Shop is a tenant partition; every inventory item and sale belongs to one shop.
type Shop struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// InventoryItem is one (product, unit) stock record within a shop.
// DesiredQuantity is nullable: records written before the target-stock feature
// existed have none, and replenishment for them falls back to the old
// double-threshold policy.
type InventoryItem struct {
	ID              string    `db:"id" json:"id"`
	ShopID          string    `db:"shop_id" json:"shopId"`
	Product         string    `db:"product" json:"product"`
	Quantity        int       `db:"quantity" json:"quantity"`
	Unit            string    `db:"unit" json:"unit"`
	Threshold       int       `db:"threshold" json:"threshold"`
	DesiredQuantity *int      `db:"desired_quantity" json:"desiredQuantity,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}

// SaleItem is one product line within a sales transaction.
type SaleItem struct {
	ID            string `db:"id" json:"id,omitempty"`
	TransactionID string `db:"transaction_id" json:"-"`
	Product       string `db:"product" json:"product"`
	Quantity      int    `db:"quantity" json:"quantity"`
	Unit          string `db:"unit" json:"unit"`
	Position      int    `db:"position" json:"-"`
}

// SalesTransaction is a recorded sale: one customer, one date, one or more
// line items. Rows read from the legacy single-item sales table are
// normalized into this shape at the repository boundary, so consumers only
// ever see the items list.
type SalesTransaction struct {
	ID           string     `db:"id" json:"id"`
	ShopID       string     `db:"shop_id" json:"shopId"`
	CustomerName string     `db:"customer_name" json:"customerName"`
	SaleDate     string     `db:"sale_date" json:"date"` // ISO YYYY-MM-DD
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	Legacy       bool       `db:"-" json:"legacy,omitempty"`
	Items        []SaleItem `db:"-" json:"items"`
}

// InventoryEvent describes a row-level change to a shop's inventory,
// published over Postgres NOTIFY and fanned out to watchers.
type InventoryEvent struct {
	ShopID string `json:"shopId"`
	Op     string `json:"op"` // "insert", "update" or "delete"
	ItemID string `json:"itemId"`
}
