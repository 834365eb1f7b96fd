// Package snowflake is the optional purchase cross-validation reader: it
// queries a Snowflake-mirrored sales warehouse to corroborate a DDS order
// before the Transition Executor trusts it, the same role the teacher's
// internal/snowflake package plays for subscriber validation data,
// adapted here from validation-status rollups to order lookups.
package snowflake

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/snowflakedb/gosnowflake"

	"github.com/ignite/campaign-sync-engine/internal/pkg/apperror"
)

// Config holds Snowflake database configuration.
type Config struct {
	Account   string `yaml:"account"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Database  string `yaml:"database"`
	Schema    string `yaml:"schema"`
	Warehouse string `yaml:"warehouse"`
	Enabled   bool   `yaml:"enabled"`
}

// Client provides read-only access to the sales warehouse mirror.
type Client struct {
	db *sql.DB
}

// NewClient opens a connection using the DSN format
// user:password@account/database/schema?warehouse=xxx.
func NewClient(cfg Config) (*Client, error) {
	dsn := fmt.Sprintf("%s:%s@%s/%s/%s", cfg.User, cfg.Password, cfg.Account, cfg.Database, cfg.Schema)
	if cfg.Warehouse != "" {
		dsn += "?warehouse=" + cfg.Warehouse
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, apperror.Wrap(apperror.Configuration, err, "open snowflake connection")
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Client{db: db}, nil
}

// Close closes the underlying database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping tests the database connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// OrderRecord mirrors one row of the warehoused SALES_FACT table relevant
// to order cross-validation.
type OrderRecord struct {
	OrderID   string
	Email     string
	ProductID string
	SoldAt    time.Time
}

// LookupOrder returns the warehoused record for orderID, or (OrderRecord{},
// false, nil) if no matching row exists.
func (c *Client) LookupOrder(ctx context.Context, orderID string) (OrderRecord, bool, error) {
	const query = `
		SELECT ORDER_ID, EMAIL, PRODUCT_ID, SOLD_AT
		FROM SALES_FACT
		WHERE ORDER_ID = ?
	`
	var rec OrderRecord
	err := c.db.QueryRowContext(ctx, query, orderID).Scan(&rec.OrderID, &rec.Email, &rec.ProductID, &rec.SoldAt)
	if err == sql.ErrNoRows {
		return OrderRecord{}, false, nil
	}
	if err != nil {
		return OrderRecord{}, false, apperror.Wrap(apperror.TransientDB, err, "lookup order in warehouse")
	}
	return rec, true, nil
}

// CrossValidate reports whether the warehoused record for orderID agrees
// with the email and product DDS's live API reported, used as a second
// opinion before a large purchase-history backfill trusts DDS alone.
func (c *Client) CrossValidate(ctx context.Context, orderID, email, productID string) (bool, error) {
	rec, found, err := c.LookupOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	return rec.Email == email && rec.ProductID == productID, nil
}

// TotalOrderCount returns the number of rows in the sales warehouse
// mirror.
func (c *Client) TotalOrderCount(ctx context.Context) (int64, error) {
	var count int64
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM SALES_FACT`).Scan(&count)
	if err != nil {
		return 0, apperror.Wrap(apperror.TransientDB, err, "count sales warehouse rows")
	}
	return count, nil
}
