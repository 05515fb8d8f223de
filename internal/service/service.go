package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/jkamau/duka-server/internal/models"
	"github.com/jkamau/duka-server/internal/repository"
	"github.com/jkamau/duka-server/internal/salesview"
	"github.com/jkamau/duka-server/internal/session"
	"github.com/jkamau/duka-server/internal/stock"
)

var (
	// ErrInvalidCredentials carries no detail about which part of the
	// credential pair was wrong.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrValidation is returned for malformed input: negative quantities,
	// bad dates, role/shop mismatches.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned on unique-constraint conflicts such as a
	// taken username or shop ID.
	ErrAlreadyExists = errors.New("already exists")
)

// Service defines all the business logic operations
type Service interface {
	// Authentication
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
	Logout(ctx context.Context, tokenID string) error
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)

	// User management
	CreateUser(ctx context.Context, req models.CreateUserRequest) (*models.Profile, error)
	ListUsers(ctx context.Context) ([]models.Profile, error)
	UpdateUser(ctx context.Context, userID string, req models.UpdateUserRequest) (*models.Profile, error)
	ResetPassword(ctx context.Context, userID, newPassword string) error
	DeleteUser(ctx context.Context, userID string) error

	// Shop management
	CreateShop(ctx context.Context, req models.CreateShopRequest) (*models.Shop, error)
	ListShops(ctx context.Context) ([]models.Shop, error)
	UpdateShop(ctx context.Context, shopID, name string) (*models.Shop, error)
	DeleteShop(ctx context.Context, shopID string) error

	// Inventory
	ListInventory(ctx context.Context, shopID string) ([]models.InventoryItem, error)
	AddStock(ctx context.Context, shopID string, req models.AddStockRequest) (*models.InventoryItem, error)
	UpdateItemSettings(ctx context.Context, shopID, itemID string, req models.UpdateItemSettingsRequest) (*models.InventoryItem, error)
	UpdateInventoryItem(ctx context.Context, itemID string, req models.UpdateInventoryItemRequest) (*models.InventoryItem, error)
	DeleteInventoryItem(ctx context.Context, itemID string) error
	LowStockReport(ctx context.Context, shopID string) ([]models.LowStockEntry, error)
	ConvertUnits(ctx context.Context, shopID string, req models.ConvertUnitsRequest) (*models.ConvertUnitsResponse, error)

	// Sales
	RecordSale(ctx context.Context, shopID string, req models.RecordSaleRequest) (*models.SalesTransaction, error)
	ListSales(ctx context.Context, shopID string, criteria salesview.Criteria, sortKey string) ([]models.SalesTransaction, int, error)
	SalesByDate(ctx context.Context, shopID string, criteria salesview.Criteria) ([]models.SalesDateGroup, error)
	UpdateSale(ctx context.Context, saleID string, req models.UpdateSaleRequest) error
	DeleteSale(ctx context.Context, saleID string) error
}

// DefaultService implements the Service interface
type DefaultService struct {
	repo          repository.Repository
	sessions      *session.Store
	jwtSecret     []byte
	tokenDuration time.Duration
}

// NewDefaultService creates a new DefaultService
func NewDefaultService(repo repository.Repository, sessions *session.Store, jwtSecret string, tokenDuration time.Duration) Service {
	return &DefaultService{
		repo:          repo,
		sessions:      sessions,
		jwtSecret:     []byte(jwtSecret),
		tokenDuration: tokenDuration,
	}
}

// Authentication methods
func (s *DefaultService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	profile, err := s.repo.GetProfileByUsername(ctx, req.Username)
	if err != nil {
		return nil, fmt.Errorf("error getting profile: %w", err)
	}

	if profile == nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, tokenID, err := s.generateJWT(profile)
	if err != nil {
		return nil, fmt.Errorf("error generating token: %w", err)
	}

	// The serialized profile in the session store is the durable
	// current-user record; logout removes it and invalidates the token.
	if err := s.sessions.Save(ctx, tokenID, profile); err != nil {
		return nil, fmt.Errorf("error saving session: %w", err)
	}

	return &models.LoginResponse{
		Status:    "success",
		Token:     token,
		ExpiresIn: int(s.tokenDuration.Seconds()),
		Profile:   profile,
	}, nil
}

func (s *DefaultService) Logout(ctx context.Context, tokenID string) error {
	if err := s.sessions.Delete(ctx, tokenID); err != nil {
		return fmt.Errorf("error deleting session: %w", err)
	}
	return nil
}

func (s *DefaultService) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	profile, err := s.repo.GetProfileByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting profile: %w", err)
	}
	if profile == nil {
		return nil, ErrNotFound
	}
	return profile, nil
}

// User management
func (s *DefaultService) CreateUser(ctx context.Context, req models.CreateUserRequest) (*models.Profile, error) {
	existing, err := s.repo.GetProfileByUsername(ctx, req.Username)
	if err != nil {
		return nil, fmt.Errorf("error checking username: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: username %q", ErrAlreadyExists, req.Username)
	}

	profile := &models.Profile{
		ID:          uuid.New().String(),
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Role:        req.Role,
	}

	if err := s.applyShopBinding(ctx, profile, req.Role, req.ShopID, req.ShopName); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}
	profile.PasswordHash = string(hash)

	if err := s.repo.CreateProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("error creating profile: %w", err)
	}

	return profile, nil
}

func (s *DefaultService) ListUsers(ctx context.Context) ([]models.Profile, error) {
	profiles, err := s.repo.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing profiles: %w", err)
	}
	return profiles, nil
}

func (s *DefaultService) UpdateUser(ctx context.Context, userID string, req models.UpdateUserRequest) (*models.Profile, error) {
	profile, err := s.repo.GetProfileByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting profile: %w", err)
	}
	if profile == nil {
		return nil, ErrNotFound
	}

	if req.DisplayName != "" {
		profile.DisplayName = req.DisplayName
	}

	role := profile.Role
	if req.Role != "" {
		role = req.Role
	}
	profile.Role = role

	// Inherit the current shop binding only while the user stays a seller;
	// promoting to admin drops it.
	shopID := req.ShopID
	shopName := req.ShopName
	if role == models.RoleSeller {
		if shopID == "" && profile.ShopID != nil {
			shopID = *profile.ShopID
		}
		if shopName == "" && profile.ShopName != nil {
			shopName = *profile.ShopName
		}
	}
	if err := s.applyShopBinding(ctx, profile, role, shopID, shopName); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("error updating profile: %w", err)
	}

	return profile, nil
}

func (s *DefaultService) ResetPassword(ctx context.Context, userID, newPassword string) error {
	profile, err := s.repo.GetProfileByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("error getting profile: %w", err)
	}
	if profile == nil {
		return ErrNotFound
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}

	if err := s.repo.UpdateProfilePassword(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("error updating password: %w", err)
	}

	return nil
}

func (s *DefaultService) DeleteUser(ctx context.Context, userID string) error {
	profile, err := s.repo.GetProfileByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("error getting profile: %w", err)
	}
	if profile == nil {
		return ErrNotFound
	}

	if err := s.repo.DeleteProfile(ctx, userID); err != nil {
		return fmt.Errorf("error deleting profile: %w", err)
	}

	return nil
}

// applyShopBinding enforces the role/shop invariant: a seller has exactly one
// shop, an admin has none.
func (s *DefaultService) applyShopBinding(ctx context.Context, profile *models.Profile, role, shopID, shopName string) error {
	switch role {
	case models.RoleSeller:
		if shopID == "" {
			return fmt.Errorf("%w: seller requires a shop", ErrValidation)
		}
		shop, err := s.repo.GetShop(ctx, shopID)
		if err != nil {
			return fmt.Errorf("error getting shop: %w", err)
		}
		if shop == nil {
			return fmt.Errorf("%w: unknown shop %q", ErrValidation, shopID)
		}
		if shopName == "" {
			shopName = shop.Name
		}
		profile.ShopID = &shopID
		profile.ShopName = &shopName
	case models.RoleAdmin:
		if shopID != "" {
			return fmt.Errorf("%w: admin must not be bound to a shop", ErrValidation)
		}
		profile.ShopID = nil
		profile.ShopName = nil
	default:
		return fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	return nil
}

// Shop management
func (s *DefaultService) CreateShop(ctx context.Context, req models.CreateShopRequest) (*models.Shop, error) {
	existing, err := s.repo.GetShop(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("error checking shop: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: shop %q", ErrAlreadyExists, req.ID)
	}

	shop := &models.Shop{ID: req.ID, Name: req.Name}
	if err := s.repo.CreateShop(ctx, shop); err != nil {
		return nil, fmt.Errorf("error creating shop: %w", err)
	}

	return shop, nil
}

func (s *DefaultService) ListShops(ctx context.Context) ([]models.Shop, error) {
	shops, err := s.repo.ListShops(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing shops: %w", err)
	}
	return shops, nil
}

func (s *DefaultService) UpdateShop(ctx context.Context, shopID, name string) (*models.Shop, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: shop name required", ErrValidation)
	}

	shop := &models.Shop{ID: shopID, Name: name}
	if err := s.repo.UpdateShop(ctx, shop); err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error updating shop: %w", err)
	}

	return shop, nil
}

func (s *DefaultService) DeleteShop(ctx context.Context, shopID string) error {
	if err := s.repo.DeleteShop(ctx, shopID); err != nil {
		if isNoRows(err) {
			return ErrNotFound
		}
		return fmt.Errorf("error deleting shop: %w", err)
	}
	return nil
}

// Inventory
func (s *DefaultService) ListInventory(ctx context.Context, shopID string) ([]models.InventoryItem, error) {
	items, err := s.repo.ListInventory(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("error listing inventory: %w", err)
	}
	return items, nil
}

func (s *DefaultService) AddStock(ctx context.Context, shopID string, req models.AddStockRequest) (*models.InventoryItem, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if !stock.ValidUnit(req.Unit) {
		return nil, fmt.Errorf("%w: %q", stock.ErrUnsupportedUnit, req.Unit)
	}

	item, err := s.repo.AddStock(ctx, shopID, req.Product, req.Unit, req.Quantity)
	if err != nil {
		return nil, fmt.Errorf("error adding stock: %w", err)
	}

	return item, nil
}

func (s *DefaultService) UpdateItemSettings(ctx context.Context, shopID, itemID string, req models.UpdateItemSettingsRequest) (*models.InventoryItem, error) {
	if req.Threshold < 0 || req.DesiredQuantity < 0 {
		return nil, fmt.Errorf("%w: threshold and desired quantity must not be negative", ErrValidation)
	}

	item, err := s.repo.GetInventoryItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("error getting item: %w", err)
	}
	if item == nil || item.ShopID != shopID {
		return nil, ErrNotFound
	}

	if err := s.repo.UpdateItemSettings(ctx, itemID, req.Threshold, req.DesiredQuantity); err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error updating item settings: %w", err)
	}

	item, err = s.repo.GetInventoryItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("error getting item: %w", err)
	}
	return item, nil
}

func (s *DefaultService) UpdateInventoryItem(ctx context.Context, itemID string, req models.UpdateInventoryItemRequest) (*models.InventoryItem, error) {
	item, err := s.repo.GetInventoryItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("error getting item: %w", err)
	}
	if item == nil {
		return nil, ErrNotFound
	}

	if req.Product != "" {
		item.Product = req.Product
	}
	if req.Unit != "" {
		if !stock.ValidUnit(req.Unit) {
			return nil, fmt.Errorf("%w: %q", stock.ErrUnsupportedUnit, req.Unit)
		}
		item.Unit = req.Unit
	}
	if req.Quantity != nil {
		if *req.Quantity < 0 {
			return nil, fmt.Errorf("%w: quantity must not be negative", ErrValidation)
		}
		item.Quantity = *req.Quantity
	}
	if req.Threshold != nil {
		if *req.Threshold < 0 {
			return nil, fmt.Errorf("%w: threshold must not be negative", ErrValidation)
		}
		item.Threshold = *req.Threshold
	}
	if req.DesiredQuantity != nil {
		if *req.DesiredQuantity < 0 {
			return nil, fmt.Errorf("%w: desired quantity must not be negative", ErrValidation)
		}
		item.DesiredQuantity = req.DesiredQuantity
	}

	if err := s.repo.UpdateInventoryItem(ctx, item); err != nil {
		return nil, fmt.Errorf("error updating item: %w", err)
	}

	return item, nil
}

func (s *DefaultService) DeleteInventoryItem(ctx context.Context, itemID string) error {
	if err := s.repo.DeleteInventoryItem(ctx, itemID); err != nil {
		if isNoRows(err) {
			return ErrNotFound
		}
		return fmt.Errorf("error deleting item: %w", err)
	}
	return nil
}

// LowStockReport returns every item at or below its threshold together with
// the quantity needed to reach its target level.
func (s *DefaultService) LowStockReport(ctx context.Context, shopID string) ([]models.LowStockEntry, error) {
	items, err := s.repo.ListInventory(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("error listing inventory: %w", err)
	}

	entries := make([]models.LowStockEntry, 0)
	for _, item := range items {
		if stock.IsLowStock(item) {
			entries = append(entries, models.LowStockEntry{
				Item:          item,
				Replenishment: stock.ReplenishmentQuantity(item),
			})
		}
	}

	return entries, nil
}

func (s *DefaultService) ConvertUnits(ctx context.Context, shopID string, req models.ConvertUnitsRequest) (*models.ConvertUnitsResponse, error) {
	items, err := s.repo.ListInventory(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("error listing inventory: %w", err)
	}

	conv, err := stock.Convert(items, req.Product, req.FromUnit, req.Amount)
	if err != nil {
		return nil, err
	}

	if err := s.repo.ApplyConversion(ctx, conv); err != nil {
		if errors.Is(err, stock.ErrInsufficientStock) {
			return nil, err
		}
		return nil, fmt.Errorf("error applying conversion: %w", err)
	}

	return &models.ConvertUnitsResponse{
		Status:       "success",
		Product:      req.Product,
		FromUnit:     req.FromUnit,
		Withdrawn:    conv.Withdrawn,
		KgEquivalent: conv.KgEquivalent,
	}, nil
}

// Sales
func (s *DefaultService) RecordSale(ctx context.Context, shopID string, req models.RecordSaleRequest) (*models.SalesTransaction, error) {
	saleDate := req.Date
	if saleDate == "" {
		saleDate = time.Now().UTC().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", saleDate); err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation)
	}

	lines := make([]models.SaleItem, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
		}
		if !stock.ValidUnit(item.Unit) {
			return nil, fmt.Errorf("%w: %q", stock.ErrUnsupportedUnit, item.Unit)
		}
		lines[i] = models.SaleItem{
			Product:  item.Product,
			Quantity: item.Quantity,
			Unit:     item.Unit,
		}
	}

	// Validate the whole sale against current stock before writing anything.
	// The repository re-checks under row locks, so a concurrent sale in the
	// window between this check and the commit still cannot oversell.
	items, err := s.repo.ListInventory(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("error listing inventory: %w", err)
	}
	if _, err := stock.ApplySale(items, lines); err != nil {
		return nil, err
	}

	txn := &models.SalesTransaction{
		ShopID:       shopID,
		CustomerName: req.CustomerName,
		SaleDate:     saleDate,
		Items:        lines,
	}

	if err := s.repo.RecordSale(ctx, txn); err != nil {
		if errors.Is(err, stock.ErrInsufficientStock) || errors.Is(err, stock.ErrProductNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("error recording sale: %w", err)
	}

	return txn, nil
}

func (s *DefaultService) ListSales(ctx context.Context, shopID string, criteria salesview.Criteria, sortKey string) ([]models.SalesTransaction, int, error) {
	txns, err := s.repo.ListSales(ctx, shopID)
	if err != nil {
		return nil, 0, fmt.Errorf("error listing sales: %w", err)
	}

	filtered := salesview.Filter(txns, criteria)
	if sortKey != "" {
		filtered = salesview.Sort(filtered, sortKey)
	}

	return filtered, salesview.TotalQuantity(filtered, criteria.Product), nil
}

func (s *DefaultService) SalesByDate(ctx context.Context, shopID string, criteria salesview.Criteria) ([]models.SalesDateGroup, error) {
	txns, err := s.repo.ListSales(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("error listing sales: %w", err)
	}

	filtered := salesview.Filter(txns, criteria)
	return salesview.GroupByDate(filtered, criteria.Product), nil
}

func (s *DefaultService) UpdateSale(ctx context.Context, saleID string, req models.UpdateSaleRequest) error {
	existing, err := s.repo.GetSalesTransaction(ctx, saleID)
	if err != nil {
		return fmt.Errorf("error getting sale: %w", err)
	}
	if existing == nil {
		return ErrNotFound
	}

	customerName := existing.CustomerName
	if req.CustomerName != "" {
		customerName = req.CustomerName
	}

	saleDate := existing.SaleDate
	if req.Date != "" {
		if _, err := time.Parse("2006-01-02", req.Date); err != nil {
			return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation)
		}
		saleDate = req.Date
	}

	if err := s.repo.UpdateSalesTransaction(ctx, saleID, customerName, saleDate); err != nil {
		if isNoRows(err) {
			return ErrNotFound
		}
		return fmt.Errorf("error updating sale: %w", err)
	}

	return nil
}

// DeleteSale removes the transaction and its line items. Inventory is not
// restocked: deleting a record corrects the books, not the shelves.
func (s *DefaultService) DeleteSale(ctx context.Context, saleID string) error {
	if err := s.repo.DeleteSalesTransaction(ctx, saleID); err != nil {
		if isNoRows(err) {
			return ErrNotFound
		}
		return fmt.Errorf("error deleting sale: %w", err)
	}
	return nil
}

// Helper methods
func (s *DefaultService) generateJWT(profile *models.Profile) (string, string, error) {
	tokenID := uuid.New().String()
	expirationTime := time.Now().Add(s.tokenDuration)

	claims := jwt.MapClaims{
		"sub":  profile.ID, // subject
		"jti":  tokenID,    // keys the session record
		"role": profile.Role,
		"exp":  expirationTime.Unix(),
		"iat":  time.Now().Unix(), // issued at
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	return signed, tokenID, err
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
