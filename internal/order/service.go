package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/session"
)

const DefaultCurrency = "KES"

// forwardRank orders the non-cancelled statuses. Moving to a higher rank is
// always allowed, moving to a lower one never is.
var forwardRank = map[OrderStatus]int{
	StatusPendingApproval: 0,
	StatusApproved:        1,
	StatusProcessing:      2,
	StatusShipped:         3,
	StatusCompleted:       4,
}

var (
	ErrEmptyOrder              = errors.New("order must contain at least one item")
	ErrInvalidItem             = errors.New("invalid order item")
	ErrInvalidAmount           = errors.New("amount cannot be negative")
	ErrUnknownStatus           = errors.New("unknown order status")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
)

// CheckTransition reports whether an order may move from current to next.
// Orders stuck in an unrecognized status can be moved anywhere so an admin can
// repair them.
func CheckTransition(current, next OrderStatus) error {
	if next == StatusUnknown {
		return ErrUnknownStatus
	}
	if current == next || current == StatusUnknown {
		return nil
	}
	if current.IsTerminal() {
		return fmt.Errorf("%w: %s is final", ErrInvalidStatusTransition, current)
	}
	if next == StatusCancelled {
		return nil
	}
	if forwardRank[next] <= forwardRank[current] {
		return fmt.Errorf("%w: from %s to %s", ErrInvalidStatusTransition, current, next)
	}
	return nil
}

type Service interface {
	CreateOrder(ctx context.Context, orderInput *Order) (*Order, error)
	GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error)
	GetTracking(ctx context.Context, id uuid.UUID) (Tracking, error)
	ListOrders(ctx context.Context, auth session.AuthContext, filter ListFilter) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, auth session.AuthContext, orderID uuid.UUID, newStatus OrderStatus, trackingNumber *string) error
	ApproveOrder(ctx context.Context, auth session.AuthContext, orderID uuid.UUID) error
}

type service struct {
	orderRepo Repository
}

func NewService(orderRepo Repository) Service {
	return &service{
		orderRepo: orderRepo,
	}
}

func (s *service) CreateOrder(ctx context.Context, orderInput *Order) (*Order, error) {
	if len(orderInput.Items) == 0 {
		log.Warn().Msg("service: attempt to create order with no items")
		return nil, ErrEmptyOrder
	}
	if orderInput.ShippingCost.IsNegative() {
		return nil, fmt.Errorf("service: shipping cost: %w", ErrInvalidAmount)
	}

	orderInput.ID = uuid.Nil
	total := decimal.Zero

	for i := range orderInput.Items {
		item := &orderInput.Items[i]

		if item.ProductID == uuid.Nil {
			return nil, fmt.Errorf("service: %w: product id cannot be nil", ErrInvalidItem)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("service: %w: quantity for product %s must be greater than zero", ErrInvalidItem, item.ProductID)
		}
		if item.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("service: %w: unit price for product %s cannot be negative", ErrInvalidItem, item.ProductID)
		}

		item.ID = uuid.Nil
		item.OrderID = uuid.Nil
		item.TotalPrice = item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		total = total.Add(item.TotalPrice)
	}

	orderInput.Status = StatusPendingApproval
	orderInput.PaymentStatus = PaymentUnpaid
	orderInput.AdminApproved = false
	orderInput.TrackingNumber = nil
	orderInput.TotalAmount = total.Add(orderInput.ShippingCost)
	if orderInput.Currency == "" {
		orderInput.Currency = DefaultCurrency
	}

	if _, err := s.orderRepo.CreateOrder(ctx, orderInput); err != nil {
		log.Error().Err(err).Msg("service: failed to create order in repository")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	log.Info().
		Stringer("order_id", orderInput.ID).
		Stringer("user_id", orderInput.UserID).
		Str("total_amount", orderInput.TotalAmount.StringFixed(2)).
		Msg("service: order created")

	return orderInput, nil
}

func (s *service) GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	order, err := s.orderRepo.GetOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Stringer("order_id", id).Msg("service: order not found by id")
			return nil, ErrOrderNotFound
		}

		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to fetch order by id in repository")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}

	return order, nil
}

func (s *service) GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	orders, err := s.orderRepo.GetOrdersByUserID(ctx, userID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to fetch user orders in repository")
		return nil, fmt.Errorf("service: failed to fetch user orders: %w", err)
	}

	return orders, nil
}

func (s *service) GetTracking(ctx context.Context, id uuid.UUID) (Tracking, error) {
	order, err := s.GetOrderByID(ctx, id)
	if err != nil {
		return Tracking{}, err
	}
	return Track(order), nil
}

func (s *service) ListOrders(ctx context.Context, auth session.AuthContext, filter ListFilter) ([]Order, error) {
	if err := auth.RequireAdmin(); err != nil {
		return nil, err
	}

	orders, err := s.orderRepo.ListOrders(ctx, filter)
	if err != nil {
		log.Error().Err(err).Stringer("status_filter", filter.Status).Msg("service: failed to list orders")
		return nil, fmt.Errorf("service: failed to list orders: %w", err)
	}
	return orders, nil
}

func (s *service) UpdateOrderStatus(ctx context.Context, auth session.AuthContext, orderID uuid.UUID, newStatus OrderStatus, trackingNumber *string) error {
	if err := auth.RequireAdmin(); err != nil {
		log.Warn().Stringer("order_id", orderID).Msg("service: non-admin attempted to update order status")
		return err
	}

	currentOrder, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Stringer("order_id", orderID).Stringer("new_status", newStatus).Msg("service: order not found, cannot update status")
			return ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to get order for status update")
		return fmt.Errorf("service: failed to get order for status update: %w", err)
	}

	if currentOrder.Status == newStatus {
		if trackingNumber == nil {
			log.Info().Stringer("order_id", orderID).Stringer("status", newStatus).Msg("service: order status is already the same, no update needed")
			return nil
		}
		// a tracking number can only be attached to a shipped order
		if newStatus != StatusShipped {
			log.Warn().Stringer("order_id", orderID).Stringer("status", newStatus).Msg("service: tracking number rejected for non-shipped order")
			return fmt.Errorf("%w: tracking number needs status %s, order is %s", ErrInvalidStatusTransition, StatusShipped, newStatus)
		}
	}

	if err := CheckTransition(currentOrder.Status, newStatus); err != nil {
		log.Warn().
			Stringer("order_id", currentOrder.ID).
			Stringer("current_status", currentOrder.Status).
			Stringer("new_status", newStatus).
			Msg("service: invalid status transition attempt")
		return err
	}

	if err := s.orderRepo.UpdateOrderStatus(ctx, orderID, currentOrder.StoredStatus(), newStatus, trackingNumber); err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		if errors.Is(err, ErrStatusChanged) {
			return fmt.Errorf("%w: %w", ErrInvalidStatusTransition, err)
		}
		log.Error().Err(err).Stringer("order_id", orderID).Stringer("new_status", newStatus).Msg("service: failed to update order status in repository")
		return fmt.Errorf("service: failed to update order status: %w", err)
	}

	log.Info().
		Stringer("order_id", orderID).
		Stringer("old_status", currentOrder.Status).
		Stringer("new_status", newStatus).
		Stringer("admin_id", auth.SubjectID).
		Msg("service: order status updated")
	return nil
}

func (s *service) ApproveOrder(ctx context.Context, auth session.AuthContext, orderID uuid.UUID) error {
	if err := auth.RequireAdmin(); err != nil {
		return err
	}

	if err := s.orderRepo.ApproveOrder(ctx, orderID); err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Stringer("order_id", orderID).Msg("service: order not found, cannot approve")
			return ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to approve order")
		return fmt.Errorf("service: failed to approve order: %w", err)
	}

	log.Info().Stringer("order_id", orderID).Stringer("admin_id", auth.SubjectID).Msg("service: order approved")
	return nil
}
