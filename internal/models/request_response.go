package models

// Request models
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type CreateUserRequest struct {
	Username    string `json:"username" binding:"required"`
	Password    string `json:"password" binding:"required,min=6"`
	DisplayName string `json:"displayName" binding:"required"`
	Role        string `json:"role" binding:"required,oneof=seller admin"`
	ShopID      string `json:"shopId"`
	ShopName    string `json:"shopName"`
}

type UpdateUserRequest struct {
	DisplayName string `json:"displayName"`
	Role        string `json:"role" binding:"omitempty,oneof=seller admin"`
	ShopID      string `json:"shopId"`
	ShopName    string `json:"shopName"`
}

type ResetPasswordRequest struct {
	NewPassword string `json:"newPassword" binding:"required,min=6"`
}

type CreateShopRequest struct {
	ID   string `json:"id" binding:"required"`
	Name string `json:"name" binding:"required"`
}

type UpdateShopRequest struct {
	Name string `json:"name" binding:"required"`
}

type AddStockRequest struct {
	Product  string `json:"product" binding:"required"`
	Quantity int    `json:"quantity" binding:"required"`
	Unit     string `json:"unit" binding:"required"`
}

type UpdateItemSettingsRequest struct {
	Threshold       int `json:"threshold"`
	DesiredQuantity int `json:"desiredQuantity"`
}

type UpdateInventoryItemRequest struct {
	Product         string `json:"product"`
	Quantity        *int   `json:"quantity"`
	Unit            string `json:"unit"`
	Threshold       *int   `json:"threshold"`
	DesiredQuantity *int   `json:"desiredQuantity"`
}

type ConvertUnitsRequest struct {
	Product  string `json:"product" binding:"required"`
	FromUnit string `json:"fromUnit" binding:"required"`
	Amount   int    `json:"amount" binding:"required"`
}

type SaleItemRequest struct {
	Product  string `json:"product" binding:"required"`
	Quantity int    `json:"quantity" binding:"required"`
	Unit     string `json:"unit" binding:"required"`
}

type RecordSaleRequest struct {
	CustomerName string            `json:"customerName" binding:"required"`
	Date         string            `json:"date"` // YYYY-MM-DD, defaults to today
	Items        []SaleItemRequest `json:"items" binding:"required,min=1,dive"`
}

type UpdateSaleRequest struct {
	CustomerName string `json:"customerName"`
	Date         string `json:"date"`
}

// Response models
type LoginResponse struct {
	Status    string   `json:"status"`
	Token     string   `json:"token"`
	ExpiresIn int      `json:"expiresIn"`
	Profile   *Profile `json:"profile"`
}

type ProfileResponse struct {
	Status  string   `json:"status"`
	Profile *Profile `json:"profile"`
}

type ProfileListResponse struct {
	Status   string    `json:"status"`
	Profiles []Profile `json:"profiles"`
}

type ShopListResponse struct {
	Status string `json:"status"`
	Shops  []Shop `json:"shops"`
}

type InventoryResponse struct {
	Status string          `json:"status"`
	ShopID string          `json:"shopId"`
	Items  []InventoryItem `json:"items"`
}

type InventoryItemResponse struct {
	Status string         `json:"status"`
	Item   *InventoryItem `json:"item"`
}

// LowStockEntry pairs an item at or below its threshold with the quantity
// needed to bring it back to its target level.
type LowStockEntry struct {
	Item          InventoryItem `json:"item"`
	Replenishment int           `json:"replenishment"`
}

type LowStockResponse struct {
	Status  string          `json:"status"`
	ShopID  string          `json:"shopId"`
	Entries []LowStockEntry `json:"entries"`
}

type ConvertUnitsResponse struct {
	Status       string `json:"status"`
	Product      string `json:"product"`
	FromUnit     string `json:"fromUnit"`
	Withdrawn    int    `json:"withdrawn"`
	KgEquivalent int    `json:"kgEquivalent"`
}

type SaleResponse struct {
	Status      string            `json:"status"`
	Transaction *SalesTransaction `json:"transaction"`
}

type SalesListResponse struct {
	Status        string             `json:"status"`
	ShopID        string             `json:"shopId"`
	Transactions  []SalesTransaction `json:"transactions"`
	TotalQuantity int                `json:"totalQuantity"`
}

// SalesDateGroup is one bucket of the grouped-by-date sales view.
type SalesDateGroup struct {
	Date          string             `json:"date"`
	Transactions  []SalesTransaction `json:"transactions"`
	TotalQuantity int                `json:"totalQuantity"`
	Customers     []string           `json:"customers"`
}

type SalesByDateResponse struct {
	Status string           `json:"status"`
	ShopID string           `json:"shopId"`
	Groups []SalesDateGroup `json:"groups"`
}

type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
