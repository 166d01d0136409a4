package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var (
	ErrTransactionNotFound  = errors.New("payment transaction not found")
	ErrDuplicateTransaction = errors.New("payment transaction already exists")
)

type Repository interface {
	Create(ctx context.Context, t *Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	List(ctx context.Context, filter Filter) ([]Transaction, error)
	ListNeedsReview(ctx context.Context) ([]Transaction, error)
	// ApplyCallback records cb in one database transaction, including the
	// linked order's payment status.
	ApplyCallback(ctx context.Context, cb Callback, now time.Time) (CallbackResult, error)
	SetVerification(ctx context.Context, id uuid.UUID, v VerificationStatus, adminID uuid.UUID, notes string, now time.Time) (*Transaction, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const transactionColumns = `
	id, order_id, transaction_id, amount, currency, payment_method_code, COALESCE(phone_number, ''),
	status, verification_status, COALESCE(receipt_number, ''), COALESCE(transaction_reference, ''),
	callback_data, callback_history, needs_review, processed_at, verified_by, verified_at, COALESCE(verification_notes, ''),
	created_at, updated_at`

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var (
		t            Transaction
		status       string
		verification string
	)
	err := row.Scan(
		&t.ID,
		&t.OrderID,
		&t.TransactionID,
		&t.Amount,
		&t.Currency,
		&t.PaymentMethodCode,
		&t.PhoneNumber,
		&status,
		&verification,
		&t.ReceiptNumber,
		&t.TransactionReference,
		&t.CallbackData,
		&t.CallbackHistory,
		&t.NeedsReview,
		&t.ProcessedAt,
		&t.VerifiedBy,
		&t.VerifiedAt,
		&t.VerificationNotes,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = ParseTransactionStatus(status)
	t.VerificationStatus = ParseVerificationStatus(verification)
	return &t, nil
}

func (r *postgresRepository) Create(ctx context.Context, t *Transaction) error {
	if t.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate transaction ID: %w", err)
		}
		t.ID = id
	}

	query := `
		INSERT INTO payment_transactions (id, order_id, transaction_id, amount, currency, payment_method_code,
			phone_number, status, verification_status, needs_review, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, FALSE, $10, $10)
	`
	_, err := r.db.Exec(ctx, query,
		t.ID,
		t.OrderID,
		t.TransactionID,
		t.Amount,
		t.Currency,
		t.PaymentMethodCode,
		t.PhoneNumber,
		t.Status.String(),
		t.VerificationStatus.String(),
		t.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrDuplicateTransaction
		}
		return fmt.Errorf("repository: failed to insert payment transaction: %w", err)
	}

	t.UpdatedAt = t.CreatedAt
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE id = $1`

	t, err := scanTransaction(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("repository: failed to select payment transaction %s: %w", id, err)
	}
	return t, nil
}

func (r *postgresRepository) List(ctx context.Context, filter Filter) ([]Transaction, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `SELECT ` + transactionColumns + `
		FROM payment_transactions
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR verification_status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	return r.query(ctx, query, string(filter.Status), string(filter.Verification), limit, filter.Offset)
}

func (r *postgresRepository) ListNeedsReview(ctx context.Context) ([]Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM payment_transactions
		WHERE needs_review
		ORDER BY updated_at DESC`

	return r.query(ctx, query)
}

func (r *postgresRepository) query(ctx context.Context, query string, args ...interface{}) ([]Transaction, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query payment transactions: %w", err)
	}
	defer rows.Close()

	result := make([]Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan payment transaction: %w", err)
		}
		result = append(result, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating payment transactions: %w", err)
	}
	return result, nil
}

func (r *postgresRepository) ApplyCallback(ctx context.Context, cb Callback, now time.Time) (result CallbackResult, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return CallbackResult{}, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Str("transaction_id", cb.TransactionID).Msg("Failed to rollback callback transaction")
			}
		} else if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("repository: failed to commit callback: %w", commitErr)
		}
	}()

	current, err := lockByTransactionID(ctx, tx, cb.TransactionID)
	if errors.Is(err, pgx.ErrNoRows) {
		inserted, insErr := insertUnattached(ctx, tx, cb, now)
		if insErr == nil {
			return CallbackResult{Transaction: inserted, Outcome: OutcomeUnknownTransaction}, nil
		}
		if !errors.Is(insErr, pgx.ErrNoRows) {
			return CallbackResult{}, insErr
		}
		// lost an insert race with StartTransaction, the row exists now
		current, err = lockByTransactionID(ctx, tx, cb.TransactionID)
	}
	if err != nil {
		return CallbackResult{}, fmt.Errorf("repository: failed to load transaction %s: %w", cb.TransactionID, err)
	}

	if current.ProcessedAt != nil {
		return CallbackResult{Transaction: current, Outcome: OutcomeDuplicate}, nil
	}

	res := Resolve(current, cb)

	var processedAt *time.Time
	if res.MarkProcessed {
		processedAt = &now
	}

	updateQuery := `
		UPDATE payment_transactions
		SET status = $1,
			verification_status = $2,
			needs_review = needs_review OR $3,
			callback_data = CASE WHEN $7::timestamptz IS NOT NULL OR callback_data IS NULL THEN $4::jsonb ELSE callback_data END,
			callback_history = CASE WHEN $4::jsonb IS NULL THEN callback_history
				ELSE callback_history || jsonb_build_array($4::jsonb) END,
			receipt_number = COALESCE(NULLIF($5, ''), receipt_number),
			transaction_reference = COALESCE(NULLIF($6, ''), transaction_reference),
			processed_at = $7,
			updated_at = $8
		WHERE id = $9 AND processed_at IS NULL
		RETURNING ` + transactionColumns

	updated, err := scanTransaction(tx.QueryRow(ctx, updateQuery,
		res.Status.String(),
		res.Verification.String(),
		res.NeedsReview,
		cb.RawPayload,
		cb.ReceiptNumber,
		cb.TransactionReference,
		processedAt,
		now,
		current.ID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return CallbackResult{Transaction: current, Outcome: OutcomeDuplicate}, nil
	}
	if err != nil {
		return CallbackResult{}, fmt.Errorf("repository: failed to apply callback to %s: %w", cb.TransactionID, err)
	}

	if !res.MarkProcessed {
		return CallbackResult{Transaction: updated, Outcome: OutcomeNeedsReview}, nil
	}

	result = CallbackResult{Transaction: updated, Outcome: OutcomeApplied}

	if updated.Status == StatusSuccess && updated.OrderID != nil {
		tag, err := tx.Exec(ctx,
			`UPDATE orders SET payment_status = 'paid', updated_at = $1 WHERE id = $2 AND payment_status <> 'paid'`,
			now, *updated.OrderID,
		)
		if err != nil {
			return CallbackResult{}, fmt.Errorf("repository: failed to mark order %s paid: %w", updated.OrderID, err)
		}
		result.OrderMarkedPaid = tag.RowsAffected() > 0
	}

	return result, nil
}

func lockByTransactionID(ctx context.Context, tx pgx.Tx, transactionID string) (*Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE transaction_id = $1 FOR UPDATE`
	return scanTransaction(tx.QueryRow(ctx, query, transactionID))
}

// insertUnattached keeps a callback for a transaction we never started so an
// admin can reconcile it. The row is stored as processed so later deliveries
// for the same ID are duplicates until an admin verifies it. Returns
// pgx.ErrNoRows when the row already exists.
func insertUnattached(ctx context.Context, tx pgx.Tx, cb Callback, now time.Time) (*Transaction, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("repository: failed to generate transaction ID: %w", err)
	}

	query := `
		INSERT INTO payment_transactions (id, transaction_id, payment_method_code, status, verification_status,
			receipt_number, transaction_reference, callback_data, callback_history, needs_review,
			processed_at, created_at, updated_at)
		VALUES ($1, $2, 'unknown', $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7,
			CASE WHEN $7::jsonb IS NULL THEN '[]'::jsonb ELSE jsonb_build_array($7::jsonb) END,
			TRUE, $8, $8, $8)
		ON CONFLICT (transaction_id) DO NOTHING
		RETURNING ` + transactionColumns

	t, err := scanTransaction(tx.QueryRow(ctx, query,
		id,
		cb.TransactionID,
		StatusPending.String(),
		VerificationPending.String(),
		cb.ReceiptNumber,
		cb.TransactionReference,
		cb.RawPayload,
		now,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("repository: failed to record unknown transaction %s: %w", cb.TransactionID, err)
	}
	return t, nil
}

func (r *postgresRepository) SetVerification(ctx context.Context, id uuid.UUID, v VerificationStatus, adminID uuid.UUID, notes string, now time.Time) (*Transaction, error) {
	query := `
		UPDATE payment_transactions
		SET verification_status = $1,
			verified_by = $2,
			verified_at = $3,
			verification_notes = NULLIF($4, ''),
			needs_review = FALSE,
			updated_at = $3
		WHERE id = $5
		RETURNING ` + transactionColumns

	t, err := scanTransaction(r.db.QueryRow(ctx, query, v.String(), adminID, now, notes, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("repository: failed to set verification on %s: %w", id, err)
	}
	return t, nil
}
