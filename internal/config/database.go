package config

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// SetupDatabase initializes the database connection
func SetupDatabase(cfg *Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	// Create tables if they don't exist
	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

// createTables creates the necessary tables in the database
func createTables(db *sqlx.DB) error {
	// Create shops table
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS shops (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Create profiles table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			id VARCHAR(36) PRIMARY KEY,
			username VARCHAR(255) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			display_name VARCHAR(255) NOT NULL,
			role VARCHAR(10) NOT NULL CHECK (role IN ('seller', 'admin')),
			shop_id VARCHAR(64) REFERENCES shops(id),
			shop_name VARCHAR(255),
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Create inventory table. The CHECK keeps quantities from ever going
	// negative even if a decrement slips past the conditional update.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS inventory (
			id VARCHAR(36) PRIMARY KEY,
			shop_id VARCHAR(64) NOT NULL REFERENCES shops(id) ON DELETE CASCADE,
			product VARCHAR(255) NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity >= 0),
			unit VARCHAR(10) NOT NULL CHECK (unit IN ('bags', 'kgs', '50kg', 'kg')),
			threshold INTEGER NOT NULL DEFAULT 10,
			desired_quantity INTEGER,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (shop_id, product, unit)
		)
	`)
	if err != nil {
		return err
	}

	// Create sales_transactions and sales_items tables
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sales_transactions (
			id VARCHAR(36) PRIMARY KEY,
			shop_id VARCHAR(64) NOT NULL REFERENCES shops(id) ON DELETE CASCADE,
			customer_name VARCHAR(255) NOT NULL,
			sale_date DATE NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sales_items (
			id VARCHAR(36) PRIMARY KEY,
			transaction_id VARCHAR(36) NOT NULL REFERENCES sales_transactions(id) ON DELETE CASCADE,
			product VARCHAR(255) NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			unit VARCHAR(10) NOT NULL,
			position INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return err
	}

	// Legacy single-item sales table. Old deployments wrote sales here with
	// the product directly on the row; readers normalize these into the
	// transaction shape. New sales never touch it.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sales (
			id VARCHAR(36) PRIMARY KEY,
			shop_id VARCHAR(64) NOT NULL,
			product VARCHAR(255) NOT NULL,
			quantity INTEGER NOT NULL,
			unit VARCHAR(10) NOT NULL,
			customer_name VARCHAR(255) NOT NULL,
			sale_date DATE NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Create indexes for better performance
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_inventory_shop_id ON inventory(shop_id)",
		"CREATE INDEX IF NOT EXISTS idx_sales_transactions_shop_id ON sales_transactions(shop_id)",
		"CREATE INDEX IF NOT EXISTS idx_sales_transactions_shop_date ON sales_transactions(shop_id, sale_date)",
		"CREATE INDEX IF NOT EXISTS idx_sales_items_transaction_id ON sales_items(transaction_id)",
		"CREATE INDEX IF NOT EXISTS idx_sales_shop_id ON sales(shop_id)",
	}

	for _, idx := range indexes {
		_, err = db.Exec(idx)
		if err != nil {
			log.Printf("Warning: Failed to create index: %v", err)
			// Don't return error here, indexes are not critical
		}
	}

	return nil
}
