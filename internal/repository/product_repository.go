package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/model"
)

// ErrInsufficientStock is returned when a conditional stock decrement finds
// fewer units than the order needs.
var ErrInsufficientStock = errors.New("insufficient stock")

type ProductRepository interface {
	List(ctx context.Context, activeOnly bool) ([]model.Product, error)
	GetByID(ctx context.Context, id string) (*model.Product, error)
	GetBySlug(ctx context.Context, slug string) (*model.Product, error)
	Create(ctx context.Context, product *model.Product) error
	Update(ctx context.Context, product *model.Product) error
	Delete(ctx context.Context, id string) error
	SetImageURL(ctx context.Context, id, imageURL string) error
	// DecrementStock succeeds only while stock >= quantity.
	DecrementStock(ctx context.Context, id string, quantity int) error

	CreateOrder(ctx context.Context, order *model.Order) error
	GetOrderByID(ctx context.Context, id string) (*model.Order, error)
	// MarkOrderPaid flips a pending order to PAID; returns false when the
	// order was already paid.
	MarkOrderPaid(ctx context.Context, id string) (bool, error)
}

type SQLProductRepository struct {
	db *sqlx.DB
}

func NewProductRepository(db *sqlx.DB) ProductRepository {
	return &SQLProductRepository{db: db}
}

func (r *SQLProductRepository) List(ctx context.Context, activeOnly bool) ([]model.Product, error) {
	var products []model.Product
	query := `SELECT * FROM products ORDER BY name ASC`
	if activeOnly {
		query = `SELECT * FROM products WHERE active = TRUE ORDER BY name ASC`
	}
	err := r.db.SelectContext(ctx, &products, query)
	return products, err
}

func (r *SQLProductRepository) GetByID(ctx context.Context, id string) (*model.Product, error) {
	var product model.Product
	err := r.db.GetContext(ctx, &product, `SELECT * FROM products WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

func (r *SQLProductRepository) GetBySlug(ctx context.Context, slug string) (*model.Product, error) {
	var product model.Product
	err := r.db.GetContext(ctx, &product, `SELECT * FROM products WHERE slug = ?`, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

func (r *SQLProductRepository) Create(ctx context.Context, product *model.Product) error {
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	product.CreatedAt = time.Now()
	product.UpdatedAt = time.Now()

	query := `
		INSERT INTO products (
			id, slug, name, description, price_amount, currency,
			stock, image_url, active, created_at, updated_at
		) VALUES (
			:id, :slug, :name, :description, :price_amount, :currency,
			:stock, :image_url, :active, :created_at, :updated_at
		)
	`
	_, err := r.db.NamedExecContext(ctx, query, product)
	return err
}

func (r *SQLProductRepository) Update(ctx context.Context, product *model.Product) error {
	product.UpdatedAt = time.Now()

	query := `
		UPDATE products SET
			slug = :slug,
			name = :name,
			description = :description,
			price_amount = :price_amount,
			currency = :currency,
			stock = :stock,
			active = :active,
			updated_at = :updated_at
		WHERE id = :id
	`
	_, err := r.db.NamedExecContext(ctx, query, product)
	return err
}

func (r *SQLProductRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	return err
}

func (r *SQLProductRepository) SetImageURL(ctx context.Context, id, imageURL string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE products SET image_url = ?, updated_at = ? WHERE id = ?`,
		imageURL, time.Now(), id)
	return err
}

func (r *SQLProductRepository) DecrementStock(ctx context.Context, id string, quantity int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - ?, updated_at = ?
		WHERE id = ? AND stock >= ?
	`, quantity, time.Now(), id, quantity)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrInsufficientStock
	}
	return nil
}

func (r *SQLProductRepository) CreateOrder(ctx context.Context, order *model.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	order.CreatedAt = time.Now()
	order.UpdatedAt = time.Now()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	orderQuery := `
		INSERT INTO orders (
			id, user_id, order_ref, total_amount, currency, status, created_at, updated_at
		) VALUES (
			:id, :user_id, :order_ref, :total_amount, :currency, :status, :created_at, :updated_at
		)
	`
	if _, err := tx.NamedExecContext(ctx, orderQuery, order); err != nil {
		tx.Rollback()
		return err
	}

	itemQuery := `
		INSERT INTO order_items (id, order_id, product_id, quantity, unit_amount)
		VALUES (:id, :order_id, :product_id, :quantity, :unit_amount)
	`
	for i := range order.Items {
		item := &order.Items[i]
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		item.OrderID = order.ID
		if _, err := tx.NamedExecContext(ctx, itemQuery, item); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (r *SQLProductRepository) GetOrderByID(ctx context.Context, id string) (*model.Order, error) {
	var order model.Order
	err := r.db.GetContext(ctx, &order, `SELECT * FROM orders WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	err = r.db.SelectContext(ctx, &order.Items,
		`SELECT * FROM order_items WHERE order_id = ?`, id)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *SQLProductRepository) MarkOrderPaid(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		model.OrderStatusPaid, time.Now(), id, model.OrderStatusPending)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}
