package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/metrics"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/notify"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/order"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/session"
)

const confirmationTTL = 7 * 24 * time.Hour

var (
	ErrMissingTransactionID = errors.New("transaction id is required")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrMissingMethod        = errors.New("payment method is required")
	ErrIllegalVerification  = errors.New("verification status not allowed for this payment status")
)

// OrderLookup is the part of the order service used to address confirmations.
type OrderLookup interface {
	GetOrderByID(ctx context.Context, id uuid.UUID) (*order.Order, error)
}

type EmailQueue interface {
	Enqueue(email notify.Email) error
}

type Service interface {
	StartTransaction(ctx context.Context, input NewTransaction) (*Transaction, error)
	RecordCallback(ctx context.Context, cb Callback) (CallbackResult, error)
	Verify(ctx context.Context, auth session.AuthContext, id uuid.UUID, verification VerificationStatus, notes string) (*Transaction, error)
	ListTransactions(ctx context.Context, auth session.AuthContext, filter Filter) ([]Transaction, error)
	ListNeedsReview(ctx context.Context, auth session.AuthContext) ([]Transaction, error)
}

type service struct {
	repo      Repository
	orders    OrderLookup
	emails    EmailQueue
	store     IdempotencyStore
	signature string
	now       func() time.Time
}

func NewService(repo Repository, orders OrderLookup, emails EmailQueue, store IdempotencyStore, signature string) Service {
	return &service{
		repo:      repo,
		orders:    orders,
		emails:    emails,
		store:     store,
		signature: signature,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) StartTransaction(ctx context.Context, input NewTransaction) (*Transaction, error) {
	input.TransactionID = strings.TrimSpace(input.TransactionID)
	if input.TransactionID == "" {
		return nil, ErrMissingTransactionID
	}
	if !input.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if input.PaymentMethodCode == "" {
		return nil, ErrMissingMethod
	}
	if input.Currency == "" {
		input.Currency = order.DefaultCurrency
	}

	t := &Transaction{
		OrderID:            input.OrderID,
		TransactionID:      input.TransactionID,
		Amount:             input.Amount,
		Currency:           input.Currency,
		PaymentMethodCode:  input.PaymentMethodCode,
		PhoneNumber:        input.PhoneNumber,
		Status:             StatusPending,
		VerificationStatus: VerificationPending,
		CreatedAt:          s.now(),
	}

	if err := s.repo.Create(ctx, t); err != nil {
		if errors.Is(err, ErrDuplicateTransaction) {
			log.Warn().Str("transaction_id", t.TransactionID).Msg("service: duplicate payment transaction")
			return nil, ErrDuplicateTransaction
		}
		log.Error().Err(err).Str("transaction_id", t.TransactionID).Msg("service: failed to record payment transaction")
		return nil, fmt.Errorf("service: failed to start transaction: %w", err)
	}

	log.Info().Stringer("payment_id", t.ID).Str("transaction_id", t.TransactionID).Msg("service: payment transaction started")
	return t, nil
}

// RecordCallback is safe to call any number of times for the same delivery.
// Only the first authoritative delivery changes state or sends email.
func (s *service) RecordCallback(ctx context.Context, cb Callback) (CallbackResult, error) {
	cb.TransactionID = strings.TrimSpace(cb.TransactionID)
	if cb.TransactionID == "" {
		return CallbackResult{}, ErrMissingTransactionID
	}
	if len(cb.RawPayload) > 0 && !json.Valid(cb.RawPayload) {
		// store the bytes as a JSON string and route the delivery to review
		quoted, _ := json.Marshal(string(cb.RawPayload))
		cb.RawPayload = quoted
		cb.Status = ""
	}

	result, err := s.repo.ApplyCallback(ctx, cb, s.now())
	if err != nil {
		log.Error().Err(err).Str("transaction_id", cb.TransactionID).Msg("service: failed to apply payment callback")
		return CallbackResult{}, fmt.Errorf("service: failed to record callback: %w", err)
	}

	metrics.PaymentCallbacks.WithLabelValues(string(result.Outcome)).Inc()

	event := log.Info()
	if result.Outcome == OutcomeNeedsReview || result.Outcome == OutcomeUnknownTransaction {
		event = log.Warn()
	}
	event.
		Str("transaction_id", cb.TransactionID).
		Str("reported_status", cb.Status).
		Str("outcome", string(result.Outcome)).
		Bool("order_marked_paid", result.OrderMarkedPaid).
		Msg("service: payment callback recorded")

	if result.Applied() && result.Transaction.Status == StatusSuccess {
		s.sendConfirmation(ctx, result.Transaction)
	}

	return result, nil
}

// sendConfirmation runs after the callback committed. Nothing here may fail the callback.
func (s *service) sendConfirmation(ctx context.Context, t *Transaction) {
	if t.OrderID == nil || s.emails == nil {
		return
	}

	logger := log.With().Str("transaction_id", t.TransactionID).Stringer("order_id", t.OrderID).Logger()

	if s.store != nil {
		first, err := s.store.Claim(ctx, "payment-confirmation:"+t.TransactionID, confirmationTTL)
		if err != nil {
			logger.Warn().Err(err).Msg("service: idempotency store unavailable, sending confirmation anyway")
		} else if !first {
			logger.Info().Msg("service: confirmation already sent")
			return
		}
	}

	o, err := s.orders.GetOrderByID(ctx, *t.OrderID)
	if err != nil {
		logger.Error().Err(err).Msg("service: cannot load order for payment confirmation")
		return
	}
	if o.ShippingAddress.Email == "" {
		logger.Warn().Msg("service: order has no contact email, skipping confirmation")
		return
	}

	email, err := notify.PaymentConfirmationEmail(notify.PaymentConfirmation{
		OrderID:   o.ID.String(),
		Email:     o.ShippingAddress.Email,
		Amount:    t.Amount.StringFixed(2),
		Currency:  t.Currency,
		Receipt:   t.ReceiptNumber,
		Signature: s.signature,
	})
	if err != nil {
		logger.Error().Err(err).Msg("service: failed to render payment confirmation")
		return
	}

	if err := s.emails.Enqueue(email); err != nil {
		logger.Error().Err(err).Msg("service: failed to enqueue payment confirmation")
	}
}

func (s *service) Verify(ctx context.Context, auth session.AuthContext, id uuid.UUID, verification VerificationStatus, notes string) (*Transaction, error) {
	if err := auth.RequireAdmin(); err != nil {
		return nil, err
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return nil, ErrTransactionNotFound
		}
		log.Error().Err(err).Stringer("payment_id", id).Msg("service: failed to load transaction for verification")
		return nil, fmt.Errorf("service: failed to verify transaction: %w", err)
	}

	if !Legal(current.Status, verification) {
		log.Warn().
			Stringer("payment_id", id).
			Str("status", current.Status.String()).
			Str("verification", verification.String()).
			Msg("service: illegal verification attempt")
		return nil, fmt.Errorf("%w: %s with %s", ErrIllegalVerification, current.Status, verification)
	}

	updated, err := s.repo.SetVerification(ctx, id, verification, auth.SubjectID, notes, s.now())
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return nil, ErrTransactionNotFound
		}
		log.Error().Err(err).Stringer("payment_id", id).Msg("service: failed to store verification")
		return nil, fmt.Errorf("service: failed to verify transaction: %w", err)
	}

	log.Info().
		Stringer("payment_id", id).
		Str("verification", verification.String()).
		Stringer("admin_id", auth.SubjectID).
		Msg("service: payment verification recorded")
	return updated, nil
}

func (s *service) ListTransactions(ctx context.Context, auth session.AuthContext, filter Filter) ([]Transaction, error) {
	if err := auth.RequireAdmin(); err != nil {
		return nil, err
	}

	txs, err := s.repo.List(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list payment transactions")
		return nil, fmt.Errorf("service: failed to list transactions: %w", err)
	}
	return txs, nil
}

func (s *service) ListNeedsReview(ctx context.Context, auth session.AuthContext) ([]Transaction, error) {
	if err := auth.RequireAdmin(); err != nil {
		return nil, err
	}

	txs, err := s.repo.ListNeedsReview(ctx)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list transactions needing review")
		return nil, fmt.Errorf("service: failed to list transactions needing review: %w", err)
	}
	return txs, nil
}
