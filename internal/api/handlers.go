package api

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jkamau/duka-server/internal/models"
	"github.com/jkamau/duka-server/internal/notify"
	"github.com/jkamau/duka-server/internal/salesview"
	"github.com/jkamau/duka-server/internal/service"
	"github.com/jkamau/duka-server/internal/session"
	"github.com/jkamau/duka-server/internal/stock"
)

// Handler holds the dependencies for the API handlers
type Handler struct {
	svc      service.Service
	sessions *session.Store
	watcher  *notify.Listener
}

// NewHandler creates a new API handler. The watcher may be nil, in which
// case the inventory watch endpoint reports unavailable.
func NewHandler(svc service.Service, sessions *session.Store, watcher *notify.Listener) *Handler {
	return &Handler{
		svc:      svc,
		sessions: sessions,
		watcher:  watcher,
	}
}

// SetupRoutes registers all API routes on the router
func (h *Handler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api")

	// Public routes
	api.POST("/auth/login", h.Login)

	// Authenticated routes
	authed := api.Group("")
	authed.Use(AuthMiddleware(h.sessions))

	authed.POST("/auth/logout", h.Logout)
	authed.GET("/auth/me", h.Me)
	authed.GET("/shops", h.ListShops)

	// Shop-scoped routes: sellers only for their own shop, admins for any
	shop := authed.Group("/shops/:shopId")
	shop.Use(RequireShopAccess())

	shop.GET("/inventory", h.ListInventory)
	shop.POST("/inventory", h.AddStock)
	shop.GET("/inventory/low-stock", h.LowStockReport)
	shop.POST("/inventory/convert", h.ConvertUnits)
	shop.GET("/inventory/watch", h.WatchInventory)
	shop.PUT("/inventory/items/:itemId/settings", h.UpdateItemSettings)

	shop.POST("/sales", h.RecordSale)
	shop.GET("/sales", h.ListSales)
	shop.GET("/sales/by-date", h.SalesByDate)

	// Admin-only routes
	admin := authed.Group("/admin")
	admin.Use(RequireRole(models.RoleAdmin))

	admin.POST("/users", h.CreateUser)
	admin.GET("/users", h.ListUsers)
	admin.PUT("/users/:id", h.UpdateUser)
	admin.POST("/users/:id/reset-password", h.ResetPassword)
	admin.DELETE("/users/:id", h.DeleteUser)

	admin.POST("/shops", h.CreateShop)
	admin.PUT("/shops/:id", h.UpdateShop)
	admin.DELETE("/shops/:id", h.DeleteShop)

	admin.PUT("/inventory/:id", h.UpdateInventoryItem)
	admin.DELETE("/inventory/:id", h.DeleteInventoryItem)

	admin.PUT("/sales/:id", h.UpdateSale)
	admin.DELETE("/sales/:id", h.DeleteSale)
}

// Authentication handlers
func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	resp, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Logout(c *gin.Context) {
	tokenID := c.GetString("tokenId")
	if err := h.svc.Logout(c.Request.Context(), tokenID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.StatusResponse{
		Status:  "success",
		Message: "Logged out",
	})
}

func (h *Handler) Me(c *gin.Context) {
	profile, err := h.svc.GetProfile(c.Request.Context(), c.GetString("userId"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ProfileResponse{
		Status:  "success",
		Profile: profile,
	})
}

// User management handlers
func (h *Handler) CreateUser(c *gin.Context) {
	var req models.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	profile, err := h.svc.CreateUser(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.ProfileResponse{
		Status:  "success",
		Profile: profile,
	})
}

func (h *Handler) ListUsers(c *gin.Context) {
	profiles, err := h.svc.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ProfileListResponse{
		Status:   "success",
		Profiles: profiles,
	})
}

func (h *Handler) UpdateUser(c *gin.Context) {
	var req models.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	profile, err := h.svc.UpdateUser(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ProfileResponse{
		Status:  "success",
		Profile: profile,
	})
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var req models.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	if err := h.svc.ResetPassword(c.Request.Context(), c.Param("id"), req.NewPassword); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.StatusResponse{
		Status:  "success",
		Message: "Password reset",
	})
}

func (h *Handler) DeleteUser(c *gin.Context) {
	if err := h.svc.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.StatusResponse{
		Status:  "success",
		Message: "User deleted",
	})
}

// Shop handlers
func (h *Handler) CreateShop(c *gin.Context) {
	var req models.CreateShopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	shop, err := h.svc.CreateShop(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, shop)
}

func (h *Handler) ListShops(c *gin.Context) {
	shops, err := h.svc.ListShops(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ShopListResponse{
		Status: "success",
		Shops:  shops,
	})
}

func (h *Handler) UpdateShop(c *gin.Context) {
	var req models.UpdateShopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	shop, err := h.svc.UpdateShop(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, shop)
}

func (h *Handler) DeleteShop(c *gin.Context) {
	if err := h.svc.DeleteShop(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.StatusResponse{
		Status:  "success",
		Message: "Shop deleted",
	})
}

// Inventory handlers
func (h *Handler) ListInventory(c *gin.Context) {
	shopID := c.Param("shopId")
	items, err := h.svc.ListInventory(c.Request.Context(), shopID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.InventoryResponse{
		Status: "success",
		ShopID: shopID,
		Items:  items,
	})
}

func (h *Handler) AddStock(c *gin.Context) {
	var req models.AddStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	item, err := h.svc.AddStock(c.Request.Context(), c.Param("shopId"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.InventoryItemResponse{
		Status: "success",
		Item:   item,
	})
}

func (h *Handler) LowStockReport(c *gin.Context) {
	shopID := c.Param("shopId")
	entries, err := h.svc.LowStockReport(c.Request.Context(), shopID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.LowStockResponse{
		Status:  "success",
		ShopID:  shopID,
		Entries: entries,
	})
}

func (h *Handler) ConvertUnits(c *gin.Context) {
	var req models.ConvertUnitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	resp, err := h.svc.ConvertUnits(c.Request.Context(), c.Param("shopId"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) UpdateItemSettings(c *gin.Context) {
	var req models.UpdateItemSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	item, err := h.svc.UpdateItemSettings(c.Request.Context(), c.Param("shopId"), c.Param("itemId"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.InventoryItemResponse{
		Status: "success",
		Item:   item,
	})
}

func (h *Handler) UpdateInventoryItem(c *gin.Context) {
	var req models.UpdateInventoryItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	item, err := h.svc.UpdateInventoryItem(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.InventoryItemResponse{
		Status: "success",
		Item:   item,
	})
}

func (h *Handler) DeleteInventoryItem(c *gin.Context) {
	if err := h.svc.DeleteInventoryItem(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.StatusResponse{
		Status:  "success",
		Message: "Inventory item deleted",
	})
}

// WatchInventory streams inventory change events for the shop as
// server-sent events until the client disconnects.
func (h *Handler) WatchInventory(c *gin.Context) {
	if h.watcher == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
			Status:  "error",
			Code:    "UNAVAILABLE",
			Message: "Change notifications are not enabled",
		})
		return
	}

	shopID := c.Param("shopId")
	events := h.watcher.Subscribe(shopID)
	defer h.watcher.Unsubscribe(shopID, events)

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("inventory", event)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// Sales handlers
func (h *Handler) RecordSale(c *gin.Context) {
	var req models.RecordSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	txn, err := h.svc.RecordSale(c.Request.Context(), c.Param("shopId"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.SaleResponse{
		Status:      "success",
		Transaction: txn,
	})
}

func (h *Handler) ListSales(c *gin.Context) {
	shopID := c.Param("shopId")
	criteria := criteriaFromQuery(c)

	txns, total, err := h.svc.ListSales(c.Request.Context(), shopID, criteria, c.Query("sortBy"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SalesListResponse{
		Status:        "success",
		ShopID:        shopID,
		Transactions:  txns,
		TotalQuantity: total,
	})
}

func (h *Handler) SalesByDate(c *gin.Context) {
	shopID := c.Param("shopId")
	groups, err := h.svc.SalesByDate(c.Request.Context(), shopID, criteriaFromQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SalesByDateResponse{
		Status: "success",
		ShopID: shopID,
		Groups: groups,
	})
}

func (h *Handler) UpdateSale(c *gin.Context) {
	var req models.UpdateSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	if err := h.svc.UpdateSale(c.Request.Context(), c.Param("id"), req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.StatusResponse{
		Status:  "success",
		Message: "Sale updated",
	})
}

func (h *Handler) DeleteSale(c *gin.Context) {
	if err := h.svc.DeleteSale(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.StatusResponse{
		Status:  "success",
		Message: "Sale deleted",
	})
}

// Helpers
func criteriaFromQuery(c *gin.Context) salesview.Criteria {
	return salesview.Criteria{
		Search:   c.Query("search"),
		Product:  c.Query("product"),
		Customer: c.Query("customer"),
		DateFrom: c.Query("dateFrom"),
		DateTo:   c.Query("dateTo"),
	}
}

func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Status:  "error",
		Code:    "BAD_REQUEST",
		Message: err.Error(),
	})
}

// respondError maps service and stock errors to HTTP status codes. Anything
// unrecognized is a 500 with the detail kept out of the response.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Status: "error", Code: "INVALID_CREDENTIALS", Message: err.Error(),
		})
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Status: "error", Code: "VALIDATION", Message: err.Error(),
		})
	case errors.Is(err, stock.ErrUnsupportedUnit):
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
			Status: "error", Code: "UNSUPPORTED_UNIT", Message: err.Error(),
		})
	case errors.Is(err, stock.ErrProductNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Status: "error", Code: "PRODUCT_NOT_FOUND", Message: err.Error(),
		})
	case errors.Is(err, stock.ErrInsufficientStock):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Status: "error", Code: "INSUFFICIENT_STOCK", Message: err.Error(),
		})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Status: "error", Code: "NOT_FOUND", Message: err.Error(),
		})
	case errors.Is(err, service.ErrAlreadyExists):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Status: "error", Code: "ALREADY_EXISTS", Message: err.Error(),
		})
	default:
		log.Printf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Status: "error", Code: "INTERNAL", Message: "Internal server error",
		})
	}
}
