// Package dbtest opens throwaway SQLite databases that mirror the Postgres
// schema closely enough for repository and service tests.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/rfqmarket-backend/pkg/db"
)

var dbCounter atomic.Int64

var schema = []string{
	`CREATE TABLE credit_accounts (
		supplier_id TEXT PRIMARY KEY,
		balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE credit_log_entries (
		id TEXT PRIMARY KEY,
		supplier_id TEXT NOT NULL,
		amount INTEGER NOT NULL,
		kind TEXT NOT NULL,
		description TEXT NOT NULL,
		reference_id TEXT,
		balance_after INTEGER NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TRIGGER credit_log_entries_no_update BEFORE UPDATE ON credit_log_entries
		BEGIN SELECT RAISE(ABORT, 'credit_log_entries is append-only'); END`,
	`CREATE TRIGGER credit_log_entries_no_delete BEFORE DELETE ON credit_log_entries
		BEGIN SELECT RAISE(ABORT, 'credit_log_entries is append-only'); END`,
	`CREATE TABLE rfqs (
		id TEXT PRIMARY KEY,
		buyer_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		quantity INTEGER NOT NULL,
		budget_min INTEGER,
		budget_max INTEGER,
		is_targeted BOOLEAN NOT NULL DEFAULT 0,
		target_supplier_id TEXT,
		status TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE quotes (
		id TEXT PRIMARY KEY,
		rfq_id TEXT NOT NULL,
		supplier_id TEXT NOT NULL,
		unit_price INTEGER NOT NULL,
		quantity INTEGER NOT NULL,
		total_price INTEGER NOT NULL,
		delivery_date DATETIME NOT NULL,
		note TEXT,
		commission_rate TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME,
		CONSTRAINT ux_quotes_rfq_supplier UNIQUE (rfq_id, supplier_id)
	)`,
	`CREATE TABLE chat_rooms (
		id TEXT PRIMARY KEY,
		quote_id TEXT NOT NULL UNIQUE,
		rfq_id TEXT NOT NULL,
		buyer_id TEXT NOT NULL,
		supplier_id TEXT NOT NULL,
		status TEXT NOT NULL,
		expires_at DATETIME NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		rfq_id TEXT NOT NULL,
		quote_id TEXT NOT NULL,
		chat_room_id TEXT NOT NULL UNIQUE,
		buyer_id TEXT NOT NULL,
		supplier_id TEXT NOT NULL,
		product_amount INTEGER NOT NULL,
		total_amount INTEGER NOT NULL,
		commission_amount INTEGER NOT NULL,
		supplier_fee INTEGER NOT NULL,
		status TEXT NOT NULL,
		payment_key TEXT,
		payment_method TEXT,
		paid_at DATETIME,
		cancelled_at DATETIME,
		cancel_reason TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE invoice_sequences (
		day TEXT PRIMARY KEY,
		last_value INTEGER NOT NULL
	)`,
	`CREATE TABLE invoices (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL UNIQUE,
		number TEXT NOT NULL UNIQUE,
		buyer_id TEXT NOT NULL,
		supplier_id TEXT NOT NULL,
		supply_amount INTEGER NOT NULL,
		commission_amount INTEGER NOT NULL,
		settlement_commission INTEGER NOT NULL DEFAULT 0,
		total_amount INTEGER NOT NULL,
		is_repeat_trade BOOLEAN NOT NULL DEFAULT 0,
		issued_at DATETIME NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		link TEXT,
		read_at DATETIME,
		created_at DATETIME
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME,
		created_at DATETIME
	)`,
}

// Open returns a gorm handle on a private in-memory database with the full
// schema applied. The pool is pinned to one connection so transactions
// serialize the way row locks would on Postgres.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_foreign_keys=1", name, dbCounter.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}

// OpenClient wraps Open in the production transaction runner.
func OpenClient(t testing.TB) *db.Client {
	t.Helper()
	return db.NewWithConn(Open(t))
}
