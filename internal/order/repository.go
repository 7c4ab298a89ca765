package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type Repository interface {
	CreateOrderTx(ctx context.Context, o *Order, items []OrderItem) error
	GetByExternalID(ctx context.Context, externalID string) (*Order, error)
	GetDetail(ctx context.Context, externalID string) (*Order, error)

	// ConfirmPayment moves an awaiting_payment order to confirmed/paid and
	// decrements stock for its items in the same transaction. The update is
	// conditional on the current payment_status so a concurrent webhook or
	// sweeper can never double-apply it.
	ConfirmPayment(ctx context.Context, externalID string) (TransitionResult, error)

	// CancelPayment moves an awaiting_payment order to cancelled with the
	// given terminal payment status (failed or cancelled).
	CancelPayment(ctx context.Context, externalID string, ps PaymentStatus) (TransitionResult, error)

	FindStalePayments(ctx context.Context, olderThanMinutes int) ([]*Order, error)
	KitchenQueue(ctx context.Context) ([]*Order, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateOrderTx(ctx context.Context, o *Order, items []OrderItem) error {
	if len(items) == 0 {
		return ErrEmptyOrder
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// 1. Insert order; order_number comes from a sequence so numbers are
	// assigned once and never reused.
	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (
			external_id, order_number, status, payment_status, total_cents
		) VALUES ($1, nextval('order_number_seq'), $2, $3, $4)
		RETURNING id, order_number, created_at, updated_at
	`,
		o.ExternalID, o.Status, o.PaymentStatus, o.TotalCents,
	).Scan(&o.ID, &o.OrderNumber, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	// 2. Insert items with the price snapshot taken at order time.
	for i := range items {
		items[i].OrderID = o.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				order_id, menu_item_id, name, quantity, unit_price_cents
			) VALUES ($1, $2, $3, $4, $5)
		`,
			items[i].OrderID,
			items[i].MenuItemID,
			items[i].Name,
			items[i].Quantity,
			items[i].UnitPriceCents,
		)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	o.Items = items

	return tx.Commit()
}

func (r *repository) GetByExternalID(ctx context.Context, externalID string) (*Order, error) {
	var o Order
	err := r.db.QueryRowContext(ctx, `
		SELECT id, external_id, order_number, status, payment_status,
		       total_cents, created_at, updated_at
		FROM orders
		WHERE external_id = $1
	`, externalID).Scan(
		&o.ID, &o.ExternalID, &o.OrderNumber, &o.Status, &o.PaymentStatus,
		&o.TotalCents, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	return &o, nil
}

func (r *repository) GetDetail(ctx context.Context, externalID string) (*Order, error) {
	o, err := r.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, menu_item_id, name, quantity, unit_price_cents
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, o.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.Quantity, &it.UnitPriceCents); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}

	return o, rows.Err()
}

func (r *repository) ConfirmPayment(ctx context.Context, externalID string) (TransitionResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Superseded, err
	}
	defer tx.Rollback()

	// 1. Conditional transition. The WHERE clause closes the race window:
	// only the writer that finds the row still awaiting payment wins.
	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, updated_at = now()
		WHERE external_id = $1 AND payment_status = $4
	`, externalID, StatusConfirmed, PaymentPaid, PaymentAwaiting)
	if err != nil {
		return Superseded, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return Superseded, err
	}

	if n == 0 {
		return r.resolveNoop(ctx, tx, externalID, PaymentPaid)
	}

	// 2. Decrement stock exactly once, in the same transaction as the
	// winning transition.
	_, err = tx.ExecContext(ctx, `
		UPDATE menu_items m
		SET stock = m.stock - oi.quantity
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.external_id = $1 AND m.id = oi.menu_item_id
	`, externalID)
	if err != nil {
		return Superseded, fmt.Errorf("failed to decrement stock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Superseded, err
	}

	return Transitioned, nil
}

func (r *repository) CancelPayment(ctx context.Context, externalID string, ps PaymentStatus) (TransitionResult, error) {
	if !ps.Terminal() || ps == PaymentPaid {
		return Superseded, fmt.Errorf("invalid cancel payment status: %s", ps)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Superseded, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, updated_at = now()
		WHERE external_id = $1 AND payment_status = $4
	`, externalID, StatusCancelled, ps, PaymentAwaiting)
	if err != nil {
		return Superseded, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return Superseded, err
	}

	if n == 0 {
		return r.resolveNoop(ctx, tx, externalID, ps)
	}

	if err := tx.Commit(); err != nil {
		return Superseded, err
	}

	return Transitioned, nil
}

// resolveNoop classifies a zero-row conditional update: the order is either
// missing, already in the requested state, or stuck to another terminal state.
func (r *repository) resolveNoop(ctx context.Context, tx *sql.Tx, externalID string, want PaymentStatus) (TransitionResult, error) {
	var current PaymentStatus
	err := tx.QueryRowContext(ctx, `
		SELECT payment_status FROM orders WHERE external_id = $1
	`, externalID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return Superseded, ErrOrderNotFound
	}
	if err != nil {
		return Superseded, err
	}

	if current == want {
		return AlreadyInState, nil
	}
	return Superseded, nil
}

func (r *repository) FindStalePayments(ctx context.Context, olderThanMinutes int) ([]*Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, external_id, order_number, status, payment_status,
		       total_cents, created_at, updated_at
		FROM orders
		WHERE payment_status = $1
		  AND created_at < now() - ($2 * interval '1 minute')
		ORDER BY created_at
	`, PaymentAwaiting, olderThanMinutes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOrders(rows)
}

// KitchenQueue lists orders visible to kitchen/staff views. Draft and unpaid
// orders never appear here.
func (r *repository) KitchenQueue(ctx context.Context) ([]*Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, external_id, order_number, status, payment_status,
		       total_cents, created_at, updated_at
		FROM orders
		WHERE payment_status = $1 AND status IN ($2, $3, $4)
		ORDER BY order_number
	`, PaymentPaid, StatusConfirmed, StatusPreparing, StatusReady)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOrders(rows)
}

func scanOrders(rows *sql.Rows) ([]*Order, error) {
	var orders []*Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(
			&o.ID, &o.ExternalID, &o.OrderNumber, &o.Status, &o.PaymentStatus,
			&o.TotalCents, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, err
		}
		orders = append(orders, &o)
	}
	return orders, rows.Err()
}
