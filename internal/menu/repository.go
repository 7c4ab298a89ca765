package menu

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

var ErrMenuItemNotFound = errors.New("menu item not found")

type Repository interface {
	List(ctx context.Context) ([]*MenuItem, error)
	GetByID(ctx context.Context, id uint) (*MenuItem, error)
	// GetByIDs returns the items for a checkout; every requested id must
	// exist and be available.
	GetByIDs(ctx context.Context, ids []uint) (map[uint]*MenuItem, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context) ([]*MenuItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, price_cents, stock, available, created_at, updated_at
		FROM menu_items
		WHERE available = true
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*MenuItem
	for rows.Next() {
		var m MenuItem
		if err := rows.Scan(&m.ID, &m.Name, &m.PriceCents, &m.Stock, &m.Available, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, &m)
	}
	return items, rows.Err()
}

func (r *repository) GetByID(ctx context.Context, id uint) (*MenuItem, error) {
	var m MenuItem
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, price_cents, stock, available, created_at, updated_at
		FROM menu_items
		WHERE id = $1
	`, id).Scan(&m.ID, &m.Name, &m.PriceCents, &m.Stock, &m.Available, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMenuItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *repository) GetByIDs(ctx context.Context, ids []uint) (map[uint]*MenuItem, error) {
	raw := make([]int64, len(ids))
	for i, id := range ids {
		raw[i] = int64(id)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, price_cents, stock, available, created_at, updated_at
		FROM menu_items
		WHERE id = ANY($1)
	`, pq.Array(raw))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make(map[uint]*MenuItem, len(ids))
	for rows.Next() {
		var m MenuItem
		if err := rows.Scan(&m.ID, &m.Name, &m.PriceCents, &m.Stock, &m.Available, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		items[m.ID] = &m
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if _, ok := items[id]; !ok {
			return nil, ErrMenuItemNotFound
		}
	}

	return items, nil
}
