package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var (
	ErrItemNotFound    = errors.New("cart item not found")
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	ErrInvalidProduct  = errors.New("product id is required")
)

type Item struct {
	ID        uuid.UUID `json:"id"`
	CartID    uuid.UUID `json:"cart_id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Cart is the single active cart of a user.
type Cart struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Items     []Item    `json:"items"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Cart) TotalQuantity() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

type Repository interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*Cart, error)
	Items(ctx context.Context, cartID uuid.UUID) ([]Item, error)
	// UpsertItem adds qty to the existing row for the product, or inserts one.
	UpsertItem(ctx context.Context, cartID, productID uuid.UUID, qty int) (*Item, error)
	SetQuantity(ctx context.Context, cartID, productID uuid.UUID, qty int) error
	DeleteItem(ctx context.Context, cartID, productID uuid.UUID) error
	Clear(ctx context.Context, cartID uuid.UUID) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*Cart, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("repository: failed to generate cart ID: %w", err)
	}

	// the no-op update makes RETURNING yield the existing row on conflict
	query := `
		INSERT INTO carts (id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id, user_id, created_at, updated_at
	`
	var c Cart
	if err := r.db.QueryRow(ctx, query, id, userID).Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, fmt.Errorf("repository: failed to get or create cart for user %s: %w", userID, err)
	}
	c.Items = make([]Item, 0)
	return &c, nil
}

func (r *postgresRepository) Items(ctx context.Context, cartID uuid.UUID) ([]Item, error) {
	query := `
		SELECT id, cart_id, product_id, quantity, created_at, updated_at
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY created_at, id
	`
	rows, err := r.db.Query(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query cart items: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan cart item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating cart items: %w", err)
	}
	return items, nil
}

func (r *postgresRepository) UpsertItem(ctx context.Context, cartID, productID uuid.UUID, qty int) (*Item, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("repository: failed to generate cart item ID: %w", err)
	}

	query := `
		INSERT INTO cart_items (id, cart_id, product_id, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = EXCLUDED.updated_at
		RETURNING id, cart_id, product_id, quantity, created_at, updated_at
	`
	var it Item
	err = r.db.QueryRow(ctx, query, id, cartID, productID, qty, time.Now().UTC()).
		Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to upsert cart item: %w", err)
	}
	return &it, nil
}

func (r *postgresRepository) SetQuantity(ctx context.Context, cartID, productID uuid.UUID, qty int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE cart_items SET quantity = $1, updated_at = $2 WHERE cart_id = $3 AND product_id = $4`,
		qty, time.Now().UTC(), cartID, productID,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update cart item quantity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *postgresRepository) DeleteItem(ctx context.Context, cartID, productID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`, cartID, productID)
	if err != nil {
		return fmt.Errorf("repository: failed to delete cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *postgresRepository) Clear(ctx context.Context, cartID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("repository: failed to clear cart: %w", err)
	}
	return nil
}

type Service interface {
	GetCart(ctx context.Context, userID uuid.UUID) (*Cart, error)
	AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*Cart, error)
	// UpdateQuantity sets an absolute quantity; zero or less removes the item.
	UpdateQuantity(ctx context.Context, userID, productID uuid.UUID, qty int) (*Cart, error)
	RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*Cart, error)
	Clear(ctx context.Context, userID uuid.UUID) error
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) load(ctx context.Context, userID uuid.UUID) (*Cart, error) {
	c, err := s.repo.GetOrCreate(ctx, userID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to get or create cart")
		return nil, fmt.Errorf("service: failed to load cart: %w", err)
	}
	return c, nil
}

func (s *service) withItems(ctx context.Context, c *Cart) (*Cart, error) {
	items, err := s.repo.Items(ctx, c.ID)
	if err != nil {
		log.Error().Err(err).Stringer("cart_id", c.ID).Msg("service: failed to load cart items")
		return nil, fmt.Errorf("service: failed to load cart items: %w", err)
	}
	c.Items = items
	return c, nil
}

func (s *service) GetCart(ctx context.Context, userID uuid.UUID) (*Cart, error) {
	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.withItems(ctx, c)
}

func (s *service) AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*Cart, error) {
	if productID == uuid.Nil {
		return nil, ErrInvalidProduct
	}
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	item, err := s.repo.UpsertItem(ctx, c.ID, productID, qty)
	if err != nil {
		log.Error().Err(err).Stringer("cart_id", c.ID).Stringer("product_id", productID).Msg("service: failed to add cart item")
		return nil, fmt.Errorf("service: failed to add cart item: %w", err)
	}

	log.Info().Stringer("cart_id", c.ID).Stringer("product_id", productID).Int("quantity", item.Quantity).Msg("service: cart item added")
	return s.withItems(ctx, c)
}

func (s *service) UpdateQuantity(ctx context.Context, userID, productID uuid.UUID, qty int) (*Cart, error) {
	if qty <= 0 {
		return s.RemoveItem(ctx, userID, productID)
	}

	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetQuantity(ctx, c.ID, productID, qty); err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("service: failed to update cart item: %w", err)
	}
	return s.withItems(ctx, c)
}

func (s *service) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*Cart, error) {
	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.DeleteItem(ctx, c.ID, productID); err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("service: failed to remove cart item: %w", err)
	}
	return s.withItems(ctx, c)
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) error {
	c, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.repo.Clear(ctx, c.ID); err != nil {
		log.Error().Err(err).Stringer("cart_id", c.ID).Msg("service: failed to clear cart")
		return fmt.Errorf("service: failed to clear cart: %w", err)
	}
	return nil
}
