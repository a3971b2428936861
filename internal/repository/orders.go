package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/harlowfield/tradevine/internal/domain"
)

const orderExists = `SELECT EXISTS(SELECT 1 FROM orders WHERE external_payment_id = $1)`

// OrderExists is the pre-insert duplicate check for webhook redelivery.
// The unique index on external_payment_id still backs it up under races.
func (q *Queries) OrderExists(ctx context.Context, externalPaymentID string) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, orderExists, externalPaymentID).Scan(&exists)
	return exists, err
}

const getProductsByIDs = `
SELECT id, name, price, active, created_at FROM products WHERE id = ANY($1::uuid[]) AND active`

func (q *Queries) GetProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Product, error) {
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}
	rows, err := q.db.QueryContext(ctx, getProductsByIDs, pq.Array(strIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, &p)
	}
	return products, rows.Err()
}

const createOrder = `
INSERT INTO orders (id, external_payment_id, customer_email, subtotal, tax, shipping, total)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (external_payment_id) DO NOTHING`

type CreateOrderParams struct {
	ID                uuid.UUID
	ExternalPaymentID string
	CustomerEmail     string
	Subtotal          int64
	Tax               int64
	Shipping          int64
	Total             int64
}

// CreateOrder inserts an order keyed on the processor's payment ID.
// Returns false when a concurrent delivery already created it.
func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (bool, error) {
	res, err := q.db.ExecContext(ctx, createOrder,
		arg.ID, arg.ExternalPaymentID, arg.CustomerEmail,
		arg.Subtotal, arg.Tax, arg.Shipping, arg.Total)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

const createOrderItem = `
INSERT INTO order_items (order_id, product_id, name, quantity, unit_price)
VALUES ($1, $2, $3, $4, $5)`

type CreateOrderItemParams struct {
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Name      string
	Quantity  int64
	UnitPrice int64
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) error {
	_, err := q.db.ExecContext(ctx, createOrderItem,
		arg.OrderID, arg.ProductID, arg.Name, arg.Quantity, arg.UnitPrice)
	return err
}

// CreateOrderWithItems inserts the order and its items in one
// transaction, so a crash mid-insert never leaves a headless order.
// Returns false without writing anything when the order already exists.
func (q *Queries) CreateOrderWithItems(ctx context.Context, order CreateOrderParams, items []CreateOrderItemParams) (bool, error) {
	db, ok := q.db.(*sql.DB)
	if !ok {
		return false, fmt.Errorf("CreateOrderWithItems requires a root *sql.DB handle")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	qtx := q.WithTx(tx)
	inserted, err := qtx.CreateOrder(ctx, order)
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}
	for _, item := range items {
		item.OrderID = order.ID
		if err := qtx.CreateOrderItem(ctx, item); err != nil {
			return false, err
		}
	}
	return true, tx.Commit()
}
