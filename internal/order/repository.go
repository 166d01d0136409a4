package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrStatusChanged means the stored status no longer matches the one the
	// update was checked against.
	ErrStatusChanged = errors.New("order status changed concurrently")
)

// Orders are never deleted, so the repository has no delete.
type Repository interface {
	CreateOrder(ctx context.Context, order *Order) (uuid.UUID, error)
	GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]Order, error)
	// UpdateOrderStatus only writes when the stored status still equals
	// expectedStatus, the raw value the transition was checked against.
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, expectedStatus string, newStatus OrderStatus, trackingNumber *string) error
	ApproveOrder(ctx context.Context, orderID uuid.UUID) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const orderColumns = `
	id, user_id, status, payment_status, COALESCE(payment_method, ''), total_amount, shipping_cost,
	currency, shipping_address, COALESCE(shipping_method, ''), tracking_number, admin_approved,
	COALESCE(notes, ''), created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o             Order
		status        string
		paymentStatus string
	)
	err := row.Scan(
		&o.ID,
		&o.UserID,
		&status,
		&paymentStatus,
		&o.PaymentMethod,
		&o.TotalAmount,
		&o.ShippingCost,
		&o.Currency,
		&o.ShippingAddress,
		&o.ShippingMethod,
		&o.TrackingNumber,
		&o.AdminApproved,
		&o.Notes,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.RawStatus = status
	o.Status = ParseOrderStatus(status)
	o.PaymentStatus = ParsePaymentStatus(paymentStatus)
	o.Items = make([]OrderItem, 0)
	return &o, nil
}

func (r *postgresRepository) CreateOrder(ctx context.Context, orderInput *Order) (orderID uuid.UUID, err error) {
	if orderInput.ID == uuid.Nil {
		genID, genErr := uuid.NewV4()
		if genErr != nil {
			return uuid.Nil, fmt.Errorf("repository: failed to generate order ID: %w", genErr)
		}
		orderInput.ID = genID
	}
	finalOrderID := orderInput.ID

	tx, beginErr := r.db.Begin(ctx)
	if beginErr != nil {
		return uuid.Nil, fmt.Errorf("repository: failed to begin transaction: %w", beginErr)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			log.Warn().Err(err).Stringer("order_id_attempted", finalOrderID).Msg("Transaction for CreateOrder failed, rolling back")
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id_attempted", finalOrderID).Msg("Failed to rollback transaction")
			}
		} else if commitErr := tx.Commit(ctx); commitErr != nil {
			log.Error().Err(commitErr).Stringer("order_id", finalOrderID).Msg("Failed to commit transaction")
			err = fmt.Errorf("repository: failed to commit transaction: %w", commitErr)
		}
	}()

	now := time.Now().UTC()

	queryOrder := `
		INSERT INTO orders (id, user_id, status, payment_status, payment_method, total_amount, shipping_cost,
			currency, shipping_address, shipping_method, admin_approved, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, NULLIF($10, ''), FALSE, NULLIF($11, ''), $12, $12)
	`
	_, err = tx.Exec(ctx, queryOrder,
		finalOrderID,
		orderInput.UserID,
		orderInput.Status.String(),
		orderInput.PaymentStatus.String(),
		orderInput.PaymentMethod,
		orderInput.TotalAmount,
		orderInput.ShippingCost,
		orderInput.Currency,
		orderInput.ShippingAddress,
		orderInput.ShippingMethod,
		orderInput.Notes,
		now,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("repository: failed to insert order: %w", err)
	}
	orderInput.CreatedAt = now
	orderInput.UpdatedAt = now

	queryItem := `
		INSERT INTO order_items (id, order_id, product_id, product_name, unit_price, quantity, total_price, product_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for i := range orderInput.Items {
		item := &orderInput.Items[i]

		itemID, genErr := uuid.NewV4()
		if genErr != nil {
			return uuid.Nil, fmt.Errorf("repository: failed to generate order item ID: %w", genErr)
		}
		item.ID = itemID
		item.OrderID = finalOrderID
		item.CreatedAt = now

		_, err = tx.Exec(ctx, queryItem,
			item.ID,
			item.OrderID,
			item.ProductID,
			item.ProductName,
			item.UnitPrice,
			item.Quantity,
			item.TotalPrice,
			item.ProductData,
			item.CreatedAt,
		)
		if err != nil {
			return uuid.Nil, fmt.Errorf("repository: failed to insert order item for order %s: %w", finalOrderID, err)
		}
	}

	return finalOrderID, nil
}

func (r *postgresRepository) GetOrderByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", orderID, err)
	}

	orders := []*Order{order}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *postgresRepository) GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`

	orders, err := r.queryOrders(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for user id %s: %w", userID, err)
	}
	return orders, nil
}

func (r *postgresRepository) ListOrders(ctx context.Context, filter ListFilter) ([]Order, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	orders, err := r.queryOrders(ctx, query, string(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to list orders: %w", err)
	}
	return orders, nil
}

func (r *postgresRepository) queryOrders(ctx context.Context, query string, args ...interface{}) ([]Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating orders: %w", err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}

	result := make([]Order, 0, len(orders))
	for _, o := range orders {
		result = append(result, *o)
	}
	return result, nil
}

// attachItems loads the items of every order with a single query.
func (r *postgresRepository) attachItems(ctx context.Context, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*Order, len(orders))
	ids := make([]uuid.UUID, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	query := `
		SELECT id, order_id, product_id, product_name, unit_price, quantity, total_price, product_data, created_at
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY created_at, id
	`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("repository: failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.UnitPrice,
			&item.Quantity,
			&item.TotalPrice,
			&item.ProductData,
			&item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to scan order item: %w", err)
		}
		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("repository: failed iterating order items: %w", err)
	}
	return nil
}

func (r *postgresRepository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, expectedStatus string, newStatus OrderStatus, trackingNumber *string) error {
	query := `
		UPDATE orders
		SET status = $1, tracking_number = COALESCE($2, tracking_number), updated_at = $3
		WHERE id = $4 AND status = $5
	`

	cmdTag, err := r.db.Exec(ctx, query, newStatus.String(), trackingNumber, time.Now().UTC(), orderID, expectedStatus)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Stringer("new_status", newStatus).Msg("repository: failed to update order status")
		return fmt.Errorf("repository: failed to update order status %s: %w", orderID, err)
	}

	if cmdTag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return fmt.Errorf("repository: failed to check order %s: %w", orderID, err)
	}
	if !exists {
		return ErrOrderNotFound
	}

	log.Warn().Stringer("order_id", orderID).Str("expected_status", expectedStatus).Msg("repository: order status changed before update")
	return ErrStatusChanged
}

func (r *postgresRepository) ApproveOrder(ctx context.Context, orderID uuid.UUID) error {
	query := `
		UPDATE orders
		SET admin_approved = TRUE,
			status = CASE WHEN status = $1 THEN $2 ELSE status END,
			updated_at = $3
		WHERE id = $4
	`

	cmdTag, err := r.db.Exec(ctx, query, StatusPendingApproval.String(), StatusApproved.String(), time.Now().UTC(), orderID)
	if err != nil {
		return fmt.Errorf("repository: failed to approve order %s: %w", orderID, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	return nil
}
