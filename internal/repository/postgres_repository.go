package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jkamau/duka-server/internal/models"
	"github.com/jkamau/duka-server/internal/stock"
)

// InventoryChannel is the Postgres NOTIFY channel inventory writes are
// published on. Payloads are JSON-encoded models.InventoryEvent.
const InventoryChannel = "inventory_events"

// Repository interface defines the methods that any repository implementation must satisfy
type Repository interface {
	// Profile operations
	CreateProfile(ctx context.Context, profile *models.Profile) error
	GetProfileByUsername(ctx context.Context, username string) (*models.Profile, error)
	GetProfileByID(ctx context.Context, id string) (*models.Profile, error)
	ListProfiles(ctx context.Context) ([]models.Profile, error)
	UpdateProfile(ctx context.Context, profile *models.Profile) error
	UpdateProfilePassword(ctx context.Context, id, passwordHash string) error
	DeleteProfile(ctx context.Context, id string) error

	// Shop operations
	CreateShop(ctx context.Context, shop *models.Shop) error
	GetShop(ctx context.Context, id string) (*models.Shop, error)
	ListShops(ctx context.Context) ([]models.Shop, error)
	UpdateShop(ctx context.Context, shop *models.Shop) error
	DeleteShop(ctx context.Context, id string) error

	// Inventory operations
	ListInventory(ctx context.Context, shopID string) ([]models.InventoryItem, error)
	GetInventoryItem(ctx context.Context, id string) (*models.InventoryItem, error)
	AddStock(ctx context.Context, shopID, product, unit string, quantity int) (*models.InventoryItem, error)
	UpdateItemSettings(ctx context.Context, id string, threshold, desiredQuantity int) error
	UpdateInventoryItem(ctx context.Context, item *models.InventoryItem) error
	DeleteInventoryItem(ctx context.Context, id string) error
	ApplyConversion(ctx context.Context, conv *stock.Conversion) error

	// Sales operations
	RecordSale(ctx context.Context, txn *models.SalesTransaction) error
	ListSales(ctx context.Context, shopID string) ([]models.SalesTransaction, error)
	GetSalesTransaction(ctx context.Context, id string) (*models.SalesTransaction, error)
	UpdateSalesTransaction(ctx context.Context, id, customerName, saleDate string) error
	DeleteSalesTransaction(ctx context.Context, id string) error
}

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// GetDB returns the underlying database connection
func (r *PostgresRepository) GetDB() *sqlx.DB {
	return r.db
}

// Profile repository methods
func (r *PostgresRepository) CreateProfile(ctx context.Context, profile *models.Profile) error {
	query := `
		INSERT INTO profiles (id, username, password_hash, display_name, role, shop_id, shop_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	// Generate a new UUID if not provided
	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	profile.CreatedAt = now
	profile.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		profile.ID, profile.Username, profile.PasswordHash, profile.DisplayName,
		profile.Role, profile.ShopID, profile.ShopName, profile.CreatedAt, profile.UpdatedAt)

	return err
}

func (r *PostgresRepository) GetProfileByUsername(ctx context.Context, username string) (*models.Profile, error) {
	query := `SELECT * FROM profiles WHERE username = $1`

	var profile models.Profile
	err := r.db.GetContext(ctx, &profile, query, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Profile not found
		}
		return nil, err
	}

	return &profile, nil
}

func (r *PostgresRepository) GetProfileByID(ctx context.Context, id string) (*models.Profile, error) {
	query := `SELECT * FROM profiles WHERE id = $1`

	var profile models.Profile
	err := r.db.GetContext(ctx, &profile, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Profile not found
		}
		return nil, err
	}

	return &profile, nil
}

func (r *PostgresRepository) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	query := `SELECT * FROM profiles ORDER BY created_at DESC`

	var profiles []models.Profile
	err := r.db.SelectContext(ctx, &profiles, query)
	if err != nil {
		return nil, err
	}

	return profiles, nil
}

func (r *PostgresRepository) UpdateProfile(ctx context.Context, profile *models.Profile) error {
	query := `
		UPDATE profiles
		SET display_name = $1, role = $2, shop_id = $3, shop_name = $4, updated_at = $5
		WHERE id = $6
	`

	profile.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, query,
		profile.DisplayName, profile.Role, profile.ShopID, profile.ShopName,
		profile.UpdatedAt, profile.ID)
	if err != nil {
		return err
	}

	return requireRowsAffected(res)
}

func (r *PostgresRepository) UpdateProfilePassword(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE profiles SET password_hash = $1, updated_at = $2 WHERE id = $3`

	res, err := r.db.ExecContext(ctx, query, passwordHash, time.Now().UTC(), id)
	if err != nil {
		return err
	}

	return requireRowsAffected(res)
}

func (r *PostgresRepository) DeleteProfile(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return err
	}

	return requireRowsAffected(res)
}

// Shop repository methods
func (r *PostgresRepository) CreateShop(ctx context.Context, shop *models.Shop) error {
	query := `INSERT INTO shops (id, name, created_at) VALUES ($1, $2, $3)`

	shop.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, query, shop.ID, shop.Name, shop.CreatedAt)
	return err
}

func (r *PostgresRepository) GetShop(ctx context.Context, id string) (*models.Shop, error) {
	var shop models.Shop
	err := r.db.GetContext(ctx, &shop, `SELECT * FROM shops WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Shop not found
		}
		return nil, err
	}

	return &shop, nil
}

func (r *PostgresRepository) ListShops(ctx context.Context) ([]models.Shop, error) {
	var shops []models.Shop
	err := r.db.SelectContext(ctx, &shops, `SELECT * FROM shops ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}

	return shops, nil
}

func (r *PostgresRepository) UpdateShop(ctx context.Context, shop *models.Shop) error {
	res, err := r.db.ExecContext(ctx, `UPDATE shops SET name = $1 WHERE id = $2`, shop.Name, shop.ID)
	if err != nil {
		return err
	}

	return requireRowsAffected(res)
}

func (r *PostgresRepository) DeleteShop(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM shops WHERE id = $1`, id)
	if err != nil {
		return err
	}

	return requireRowsAffected(res)
}

// Inventory repository methods
func (r *PostgresRepository) ListInventory(ctx context.Context, shopID string) ([]models.InventoryItem, error) {
	query := `SELECT * FROM inventory WHERE shop_id = $1 ORDER BY created_at DESC`

	var items []models.InventoryItem
	err := r.db.SelectContext(ctx, &items, query, shopID)
	if err != nil {
		return nil, err
	}

	return items, nil
}

func (r *PostgresRepository) GetInventoryItem(ctx context.Context, id string) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := r.db.GetContext(ctx, &item, `SELECT * FROM inventory WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Item not found
		}
		return nil, err
	}

	return &item, nil
}

// AddStock merges the quantity into the shop's existing (product, unit)
// record, creating one with the default threshold when the shop has never
// stocked that product in that unit.
func (r *PostgresRepository) AddStock(ctx context.Context, shopID, product, unit string, quantity int) (*models.InventoryItem, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO inventory (id, shop_id, product, quantity, unit, threshold, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 10, $6, $6)
		ON CONFLICT (shop_id, product, unit)
		DO UPDATE SET quantity = inventory.quantity + EXCLUDED.quantity, updated_at = EXCLUDED.updated_at
		RETURNING *
	`

	var item models.InventoryItem
	err := r.db.GetContext(ctx, &item, query, uuid.New().String(), shopID, product, quantity, unit, now)
	if err != nil {
		return nil, err
	}

	if err := r.notifyInventory(ctx, r.db, shopID, "update", item.ID); err != nil {
		return nil, err
	}

	return &item, nil
}

func (r *PostgresRepository) UpdateItemSettings(ctx context.Context, id string, threshold, desiredQuantity int) error {
	// A zero desired quantity clears the target and falls back to the
	// double-threshold replenishment policy.
	query := `
		UPDATE inventory SET threshold = $1, desired_quantity = NULLIF($2, 0), updated_at = $3
		WHERE id = $4
		RETURNING shop_id
	`

	var shopID string
	err := r.db.QueryRowContext(ctx, query, threshold, desiredQuantity, time.Now().UTC(), id).Scan(&shopID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return err
	}

	return r.notifyInventory(ctx, r.db, shopID, "update", id)
}

func (r *PostgresRepository) UpdateInventoryItem(ctx context.Context, item *models.InventoryItem) error {
	query := `
		UPDATE inventory
		SET product = $1, quantity = $2, unit = $3, threshold = $4, desired_quantity = $5, updated_at = $6
		WHERE id = $7
	`

	item.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, query,
		item.Product, item.Quantity, item.Unit, item.Threshold,
		item.DesiredQuantity, item.UpdatedAt, item.ID)
	if err != nil {
		return err
	}

	if err := requireRowsAffected(res); err != nil {
		return err
	}

	return r.notifyInventory(ctx, r.db, item.ShopID, "update", item.ID)
}

func (r *PostgresRepository) DeleteInventoryItem(ctx context.Context, id string) error {
	query := `DELETE FROM inventory WHERE id = $1 RETURNING shop_id`

	var shopID string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&shopID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return err
	}

	return r.notifyInventory(ctx, r.db, shopID, "delete", id)
}

// ApplyConversion executes a planned unit conversion in one transaction:
// conditionally decrement the source record and credit (or create) the
// kilogram record. The condition re-checks the quantity, so a concurrent
// sale between planning and execution makes the conversion fail cleanly
// instead of driving stock negative.
func (r *PostgresRepository) ApplyConversion(ctx context.Context, conv *stock.Conversion) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
	}()

	now := time.Now().UTC()

	res, err := tx.ExecContext(ctx,
		`UPDATE inventory SET quantity = quantity - $1, updated_at = $2
		WHERE id = $3 AND quantity >= $1`,
		conv.Withdrawn, now, conv.Source.ID)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		err = fmt.Errorf("%w: %s (%s)", stock.ErrInsufficientStock, conv.Source.Product, conv.Source.Unit)
		return err
	}

	if conv.Credit.ID != "" {
		var credited sql.Result
		credited, err = tx.ExecContext(ctx,
			`UPDATE inventory SET quantity = quantity + $1, updated_at = $2 WHERE id = $3`,
			conv.KgEquivalent, now, conv.Credit.ID)
		if err == nil {
			// The planned credit record can disappear between planning and
			// execution; roll back rather than drop the withdrawn mass.
			if err = requireRowsAffected(credited); err != nil {
				err = fmt.Errorf("%w: %s (%s)", stock.ErrProductNotFound,
					conv.Credit.Product, conv.Credit.Unit)
			}
		}
	} else {
		conv.Credit.ID = uuid.New().String()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO inventory (id, shop_id, product, quantity, unit, threshold, desired_quantity, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
			conv.Credit.ID, conv.Credit.ShopID, conv.Credit.Product, conv.Credit.Quantity,
			conv.Credit.Unit, conv.Credit.Threshold, conv.Credit.DesiredQuantity, now)
	}
	if err != nil {
		return err
	}

	if err = r.notifyInventory(ctx, tx, conv.Source.ShopID, "update", conv.Source.ID); err != nil {
		return err
	}
	if err = r.notifyInventory(ctx, tx, conv.Credit.ShopID, "update", conv.Credit.ID); err != nil {
		return err
	}

	return tx.Commit()
}

// Sales repository methods

// RecordSale inserts the transaction with its line items and decrements the
// matching inventory rows, all in a single database transaction. Each
// decrement is conditional on sufficient remaining stock; if any line cannot
// be satisfied the whole sale rolls back and inventory is untouched.
func (r *PostgresRepository) RecordSale(ctx context.Context, txn *models.SalesTransaction) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
	}()

	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	txn.CreatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sales_transactions (id, shop_id, customer_name, sale_date, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		txn.ID, txn.ShopID, txn.CustomerName, txn.SaleDate, txn.CreatedAt)
	if err != nil {
		return err
	}

	for i := range txn.Items {
		item := &txn.Items[i]
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		item.TransactionID = txn.ID
		item.Position = i

		_, err = tx.ExecContext(ctx,
			`INSERT INTO sales_items (id, transaction_id, product, quantity, unit, position)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			item.ID, item.TransactionID, item.Product, item.Quantity, item.Unit, item.Position)
		if err != nil {
			return err
		}

		err = r.decrementStockTx(ctx, tx, txn.ShopID, item.Product, item.Unit, item.Quantity)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// decrementStockTx withdraws quantity from the shop's stock of product,
// preferring the record in the sold unit and falling back to the newest
// record of the product. The row is locked for the remainder of the
// transaction, so concurrent sales of the same product serialize instead of
// both reading the old quantity.
func (r *PostgresRepository) decrementStockTx(ctx context.Context, tx *sqlx.Tx, shopID, product, unit string, quantity int) error {
	var target struct {
		ID       string `db:"id"`
		Quantity int    `db:"quantity"`
	}

	err := tx.GetContext(ctx, &target,
		`SELECT id, quantity FROM inventory
		WHERE shop_id = $1 AND product = $2
		ORDER BY (unit = $3) DESC, created_at DESC
		LIMIT 1
		FOR UPDATE`,
		shopID, product, unit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", stock.ErrProductNotFound, product)
		}
		return err
	}

	if target.Quantity < quantity {
		return fmt.Errorf("%w: %s has %d, want %d",
			stock.ErrInsufficientStock, product, target.Quantity, quantity)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE inventory SET quantity = quantity - $1, updated_at = $2 WHERE id = $3`,
		quantity, time.Now().UTC(), target.ID)
	if err != nil {
		return err
	}

	return r.notifyInventory(ctx, tx, shopID, "update", target.ID)
}

// ListSales returns the shop's transactions newest first, merging rows from
// the legacy single-item sales table into the modern multi-item shape.
func (r *PostgresRepository) ListSales(ctx context.Context, shopID string) ([]models.SalesTransaction, error) {
	query := `
		SELECT id, shop_id, customer_name, to_char(sale_date, 'YYYY-MM-DD') AS sale_date, created_at
		FROM sales_transactions WHERE shop_id = $1
		ORDER BY created_at DESC
	`

	var txns []models.SalesTransaction
	err := r.db.SelectContext(ctx, &txns, query, shopID)
	if err != nil {
		return nil, err
	}

	if err := r.loadSaleItems(ctx, txns); err != nil {
		return nil, err
	}

	legacy, err := r.listLegacySales(ctx, shopID)
	if err != nil {
		return nil, err
	}

	// Merge preserving creation-time descending order across both tables.
	merged := make([]models.SalesTransaction, 0, len(txns)+len(legacy))
	i, j := 0, 0
	for i < len(txns) && j < len(legacy) {
		if txns[i].CreatedAt.After(legacy[j].CreatedAt) {
			merged = append(merged, txns[i])
			i++
		} else {
			merged = append(merged, legacy[j])
			j++
		}
	}
	merged = append(merged, txns[i:]...)
	merged = append(merged, legacy[j:]...)

	return merged, nil
}

func (r *PostgresRepository) loadSaleItems(ctx context.Context, txns []models.SalesTransaction) error {
	if len(txns) == 0 {
		return nil
	}

	ids := make([]string, len(txns))
	index := make(map[string]*models.SalesTransaction, len(txns))
	for i := range txns {
		ids[i] = txns[i].ID
		index[txns[i].ID] = &txns[i]
	}

	query, args, err := sqlx.In(
		`SELECT * FROM sales_items WHERE transaction_id IN (?) ORDER BY position ASC`, ids)
	if err != nil {
		return err
	}

	var items []models.SaleItem
	err = r.db.SelectContext(ctx, &items, r.db.Rebind(query), args...)
	if err != nil {
		return err
	}

	for _, item := range items {
		txn := index[item.TransactionID]
		txn.Items = append(txn.Items, item)
	}

	return nil
}

// listLegacySales reads the old single-item sales table and normalizes each
// row into a one-item transaction. This is the only place the legacy shape
// is visible; everything above the repository sees the items list.
func (r *PostgresRepository) listLegacySales(ctx context.Context, shopID string) ([]models.SalesTransaction, error) {
	type legacyRow struct {
		ID           string    `db:"id"`
		ShopID       string    `db:"shop_id"`
		Product      string    `db:"product"`
		Quantity     int       `db:"quantity"`
		Unit         string    `db:"unit"`
		CustomerName string    `db:"customer_name"`
		SaleDate     string    `db:"sale_date"`
		CreatedAt    time.Time `db:"created_at"`
	}

	query := `
		SELECT id, shop_id, product, quantity, unit, customer_name,
			to_char(sale_date, 'YYYY-MM-DD') AS sale_date, created_at
		FROM sales WHERE shop_id = $1
		ORDER BY created_at DESC
	`

	var rows []legacyRow
	err := r.db.SelectContext(ctx, &rows, query, shopID)
	if err != nil {
		return nil, err
	}

	txns := make([]models.SalesTransaction, 0, len(rows))
	for _, row := range rows {
		txns = append(txns, models.SalesTransaction{
			ID:           row.ID,
			ShopID:       row.ShopID,
			CustomerName: row.CustomerName,
			SaleDate:     row.SaleDate,
			CreatedAt:    row.CreatedAt,
			Legacy:       true,
			Items: []models.SaleItem{{
				TransactionID: row.ID,
				Product:       row.Product,
				Quantity:      row.Quantity,
				Unit:          row.Unit,
			}},
		})
	}

	return txns, nil
}

func (r *PostgresRepository) GetSalesTransaction(ctx context.Context, id string) (*models.SalesTransaction, error) {
	query := `
		SELECT id, shop_id, customer_name, to_char(sale_date, 'YYYY-MM-DD') AS sale_date, created_at
		FROM sales_transactions WHERE id = $1
	`

	var txn models.SalesTransaction
	err := r.db.GetContext(ctx, &txn, query, id)
	if err == nil {
		txns := []models.SalesTransaction{txn}
		if err := r.loadSaleItems(ctx, txns); err != nil {
			return nil, err
		}
		return &txns[0], nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	// Fall back to the legacy table
	legacyQuery := `
		SELECT id, shop_id, customer_name, to_char(sale_date, 'YYYY-MM-DD') AS sale_date, created_at
		FROM sales WHERE id = $1
	`
	err = r.db.GetContext(ctx, &txn, legacyQuery, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Transaction not found
		}
		return nil, err
	}

	var item models.SaleItem
	err = r.db.GetContext(ctx, &item,
		`SELECT product, quantity, unit FROM sales WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}

	item.TransactionID = txn.ID
	txn.Legacy = true
	txn.Items = []models.SaleItem{item}
	return &txn, nil
}

// UpdateSalesTransaction edits the transaction-level fields; line items are
// immutable once recorded. Legacy rows are editable the same way.
func (r *PostgresRepository) UpdateSalesTransaction(ctx context.Context, id, customerName, saleDate string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sales_transactions SET customer_name = $1, sale_date = $2 WHERE id = $3`,
		customerName, saleDate, id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	res, err = r.db.ExecContext(ctx,
		`UPDATE sales SET customer_name = $1, sale_date = $2 WHERE id = $3`,
		customerName, saleDate, id)
	if err != nil {
		return err
	}

	return requireRowsAffected(res)
}

func (r *PostgresRepository) DeleteSalesTransaction(ctx context.Context, id string) error {
	// Items cascade with the transaction row
	res, err := r.db.ExecContext(ctx, `DELETE FROM sales_transactions WHERE id = $1`, id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	res, err = r.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return err
	}

	return requireRowsAffected(res)
}

// notifyInventory publishes a row-level inventory change on the NOTIFY
// channel so watchers can re-fetch the shop's stock.
func (r *PostgresRepository) notifyInventory(ctx context.Context, execer sqlx.ExecerContext, shopID, op, itemID string) error {
	payload, err := json.Marshal(models.InventoryEvent{
		ShopID: shopID,
		Op:     op,
		ItemID: itemID,
	})
	if err != nil {
		return err
	}

	_, err = execer.ExecContext(ctx, `SELECT pg_notify($1, $2)`, InventoryChannel, string(payload))
	return err
}

func requireRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
