package support

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
	ErrTicketNotFound = errors.New("support ticket not found")
	ErrAdminNotFound  = errors.New("admin not found")
)

type Repository interface {
	// CreateTicket stores the ticket and its first message together.
	CreateTicket(ctx context.Context, t *Ticket, first *Message) error
	GetTicket(ctx context.Context, id uuid.UUID) (*Ticket, error)
	ListTickets(ctx context.Context, filter TicketFilter) ([]Ticket, error)
	InsertMessage(ctx context.Context, m *Message) error
	ListMessages(ctx context.Context, ticketID uuid.UUID) ([]Message, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status TicketStatus) (*Ticket, error)
	Assign(ctx context.Context, id uuid.UUID, adminID *uuid.UUID) (*Ticket, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const ticketColumns = `id, user_id, email, subject, category, priority, status, assigned_to, created_at, updated_at`

func scanTicket(row pgx.Row) (*Ticket, error) {
	var (
		t        Ticket
		priority string
		status   string
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Email, &t.Subject, &t.Category, &priority, &status, &t.AssignedTo, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Priority = ParsePriority(priority)
	t.Status = ParseTicketStatus(status)
	return &t, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation
}

const insertMessageQuery = `
	INSERT INTO support_messages (id, ticket_id, sender_type, sender_id, message, is_read)
	VALUES ($1, $2, $3, $4, $5, FALSE)
	RETURNING created_at
`

func (r *postgresRepository) CreateTicket(ctx context.Context, t *Ticket, first *Message) (err error) {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("repository: failed to generate ticket ID: %w", err)
	}
	msgID, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("repository: failed to generate message ID: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Msg("Failed to rollback ticket transaction")
			}
		} else if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("repository: failed to commit ticket: %w", commitErr)
		}
	}()

	query := `
		INSERT INTO support_tickets (id, user_id, email, subject, category, priority, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err = tx.QueryRow(ctx, query, id, t.UserID, t.Email, t.Subject, t.Category, string(t.Priority), t.Status.String()).
		Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository: failed to insert ticket: %w", err)
	}
	t.ID = id

	first.ID = msgID
	first.TicketID = id
	err = tx.QueryRow(ctx, insertMessageQuery, first.ID, first.TicketID, string(first.SenderType), first.SenderID, first.Message).
		Scan(&first.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository: failed to insert first message: %w", err)
	}

	return nil
}

func (r *postgresRepository) GetTicket(ctx context.Context, id uuid.UUID) (*Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM support_tickets WHERE id = $1`

	t, err := scanTicket(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("repository: failed to select ticket %s: %w", id, err)
	}
	return t, nil
}

func (r *postgresRepository) ListTickets(ctx context.Context, filter TicketFilter) ([]Ticket, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `SELECT ` + ticketColumns + `
		FROM support_tickets
		WHERE ($1 = '' OR status = $1) AND ($2::uuid IS NULL OR user_id = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	rows, err := r.db.Query(ctx, query, string(filter.Status), filter.UserID, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query tickets: %w", err)
	}
	defer rows.Close()

	tickets := make([]Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan ticket: %w", err)
		}
		tickets = append(tickets, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating tickets: %w", err)
	}
	return tickets, nil
}

func (r *postgresRepository) InsertMessage(ctx context.Context, m *Message) error {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("repository: failed to generate message ID: %w", err)
	}
	m.ID = id

	err = r.db.QueryRow(ctx, insertMessageQuery, m.ID, m.TicketID, string(m.SenderType), m.SenderID, m.Message).
		Scan(&m.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrTicketNotFound
		}
		return fmt.Errorf("repository: failed to insert message for ticket %s: %w", m.TicketID, err)
	}

	if _, err := r.db.Exec(ctx, `UPDATE support_tickets SET updated_at = $1 WHERE id = $2`, m.CreatedAt, m.TicketID); err != nil {
		log.Warn().Err(err).Stringer("ticket_id", m.TicketID).Msg("repository: failed to touch ticket after message")
	}
	return nil
}

func (r *postgresRepository) ListMessages(ctx context.Context, ticketID uuid.UUID) ([]Message, error) {
	query := `
		SELECT id, ticket_id, sender_type, sender_id, message, is_read, created_at
		FROM support_messages
		WHERE ticket_id = $1
		ORDER BY created_at, id
	`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query messages for ticket %s: %w", ticketID, err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var (
			m      Message
			sender string
		)
		if err := rows.Scan(&m.ID, &m.TicketID, &sender, &m.SenderID, &m.Message, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan message: %w", err)
		}
		m.SenderType = ParseSenderType(sender)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating messages: %w", err)
	}
	return messages, nil
}

func (r *postgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status TicketStatus) (*Ticket, error) {
	query := `UPDATE support_tickets SET status = $1, updated_at = $2 WHERE id = $3 RETURNING ` + ticketColumns

	t, err := scanTicket(r.db.QueryRow(ctx, query, status.String(), time.Now().UTC(), id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("repository: failed to update ticket %s status: %w", id, err)
	}
	return t, nil
}

func (r *postgresRepository) Assign(ctx context.Context, id uuid.UUID, adminID *uuid.UUID) (*Ticket, error) {
	query := `UPDATE support_tickets SET assigned_to = $1, updated_at = $2 WHERE id = $3 RETURNING ` + ticketColumns

	t, err := scanTicket(r.db.QueryRow(ctx, query, adminID, time.Now().UTC(), id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		if isForeignKeyViolation(err) {
			return nil, ErrAdminNotFound
		}
		return nil, fmt.Errorf("repository: failed to assign ticket %s: %w", id, err)
	}
	return t, nil
}
