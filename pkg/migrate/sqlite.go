package migrate

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// sqliteSchema mirrors the goose migrations for the SQLite development mode and the
// repository tests. Enum columns become TEXT, money columns TEXT so decimals round-trip exactly.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS companies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		credit_balance INTEGER NOT NULL DEFAULT 0 CHECK (credit_balance >= 0),
		is_test_account INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS brands (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS brand_sequences (
		brand_id TEXT PRIMARY KEY,
		last_value INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		order_number TEXT NOT NULL UNIQUE,
		company_id TEXT NOT NULL,
		brand_id TEXT NOT NULL,
		product_name TEXT NOT NULL,
		description TEXT,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		status TEXT NOT NULL DEFAULT 'pending_authorization',
		qr_codes_generated INTEGER NOT NULL DEFAULT 0,
		activated_count INTEGER NOT NULL DEFAULT 0,
		tracking_number TEXT,
		courier_name TEXT,
		dispatch_notes TEXT,
		dispatched_at DATETIME,
		created_by TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS order_history (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		status TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		actor_role TEXT NOT NULL,
		comment TEXT,
		created_at DATETIME
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_order_history_order_position ON order_history (order_id, position)`,
	`CREATE TABLE IF NOT EXISTS credit_transactions (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		type TEXT NOT NULL,
		amount INTEGER NOT NULL,
		balance_after INTEGER NOT NULL CHECK (balance_after >= 0),
		order_id TEXT,
		payment_id TEXT,
		performed_by TEXT,
		note TEXT,
		created_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		credits INTEGER NOT NULL,
		price TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS coupons (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		discount_type TEXT NOT NULL,
		value TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		expires_at DATETIME,
		created_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		type TEXT NOT NULL,
		plan_id TEXT,
		credits INTEGER NOT NULL,
		merchant_order_id TEXT NOT NULL UNIQUE,
		base_amount TEXT NOT NULL,
		coupon_code TEXT,
		coupon_discount TEXT NOT NULL,
		gst_amount TEXT NOT NULL,
		additional_charges TEXT NOT NULL,
		final_amount TEXT NOT NULL,
		charged_amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		gateway_session_id TEXT,
		gateway_transaction_id TEXT,
		redirect_url TEXT,
		credit_transaction_id TEXT,
		failure_reason TEXT,
		initiated_by TEXT NOT NULL,
		completed_at DATETIME,
		failed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		qr_code TEXT NOT NULL UNIQUE,
		sequence INTEGER NOT NULL,
		brand_id TEXT NOT NULL,
		order_id TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 0,
		scan_count INTEGER NOT NULL DEFAULT 0,
		activated_at DATETIME,
		created_at DATETIME
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_products_brand_sequence ON products (brand_id, sequence)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		published_at DATETIME,
		created_at DATETIME
	)`,
}

// ApplySQLite creates the schema on a SQLite connection.
func ApplySQLite(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	if name := conn.Dialector.Name(); name != "sqlite" {
		return fmt.Errorf("sqlite schema cannot be applied to %s", name)
	}
	for _, stmt := range sqliteSchema {
		if err := conn.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}
