package support

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/metrics"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/notify"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/realtime"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/session"
)

const publishTimeout = 2 * time.Second

var validate = validator.New()

var (
	ErrMissingField    = errors.New("required field is missing")
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrInvalidPriority = errors.New("invalid ticket priority")
	ErrInvalidStatus   = errors.New("invalid ticket status")
	ErrInvalidSender   = errors.New("invalid sender type")
)

type EmailQueue interface {
	Enqueue(email notify.Email) error
}

type Service interface {
	CreateTicket(ctx context.Context, input NewTicket) (*Ticket, error)
	GetTicket(ctx context.Context, id uuid.UUID) (*Ticket, error)
	ListTickets(ctx context.Context, auth session.AuthContext, filter TicketFilter) ([]Ticket, error)
	PostMessage(ctx context.Context, auth session.AuthContext, ticketID uuid.UUID, sender SenderType, body string) (*Message, error)
	Messages(ctx context.Context, ticketID uuid.UUID) ([]Message, error)
	UpdateStatus(ctx context.Context, auth session.AuthContext, ticketID uuid.UUID, status TicketStatus) (*Ticket, error)
	Assign(ctx context.Context, auth session.AuthContext, ticketID uuid.UUID, adminID *uuid.UUID) (*Ticket, error)
	// Subscribe streams new messages of one ticket. The caller must Close the
	// subscription. Messages sent before subscribing are only available from Messages.
	Subscribe(ctx context.Context, ticketID uuid.UUID) (*realtime.Subscription, error)
}

type service struct {
	repo      Repository
	broker    realtime.Broker
	emails    EmailQueue
	signature string
}

func NewService(repo Repository, broker realtime.Broker, emails EmailQueue, signature string) Service {
	return &service{
		repo:      repo,
		broker:    broker,
		emails:    emails,
		signature: signature,
	}
}

func (s *service) CreateTicket(ctx context.Context, input NewTicket) (*Ticket, error) {
	input.Email = strings.TrimSpace(input.Email)
	input.Subject = strings.TrimSpace(input.Subject)
	input.Message = strings.TrimSpace(input.Message)

	switch {
	case input.Email == "":
		return nil, fmt.Errorf("%w: email", ErrMissingField)
	case input.Subject == "":
		return nil, fmt.Errorf("%w: subject", ErrMissingField)
	case input.Message == "":
		return nil, fmt.Errorf("%w: message", ErrMissingField)
	}
	if err := validate.Var(input.Email, "email"); err != nil {
		return nil, ErrInvalidEmail
	}

	priority := PriorityMedium
	if input.Priority != "" {
		priority = ParsePriority(input.Priority)
		if priority == PriorityUnknown {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPriority, input.Priority)
		}
	}

	ticket := &Ticket{
		UserID:   input.UserID,
		Email:    input.Email,
		Subject:  input.Subject,
		Category: input.Category,
		Priority: priority,
		Status:   StatusOpen,
	}
	first := &Message{
		SenderType: SenderUser,
		SenderID:   input.UserID,
		Message:    input.Message,
	}

	if err := s.repo.CreateTicket(ctx, ticket, first); err != nil {
		log.Error().Err(err).Str("subject", ticket.Subject).Msg("service: failed to create ticket")
		return nil, fmt.Errorf("service: failed to create ticket: %w", err)
	}

	metrics.TicketMessages.WithLabelValues(string(SenderUser)).Inc()
	log.Info().Stringer("ticket_id", ticket.ID).Str("priority", string(ticket.Priority)).Msg("service: ticket created")

	s.publish(ctx, first)
	return ticket, nil
}

func (s *service) GetTicket(ctx context.Context, id uuid.UUID) (*Ticket, error) {
	t, err := s.repo.GetTicket(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTicketNotFound) {
			return nil, ErrTicketNotFound
		}
		log.Error().Err(err).Stringer("ticket_id", id).Msg("service: failed to load ticket")
		return nil, fmt.Errorf("service: failed to load ticket: %w", err)
	}
	return t, nil
}

// ListTickets returns newest tickets first. Non-admins must scope the list to
// their own user id.
func (s *service) ListTickets(ctx context.Context, auth session.AuthContext, filter TicketFilter) ([]Ticket, error) {
	if !auth.IsAdmin && filter.UserID == nil {
		return nil, session.ErrForbidden
	}

	tickets, err := s.repo.ListTickets(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list tickets")
		return nil, fmt.Errorf("service: failed to list tickets: %w", err)
	}
	return tickets, nil
}

func (s *service) PostMessage(ctx context.Context, auth session.AuthContext, ticketID uuid.UUID, sender SenderType, body string) (*Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: message", ErrMissingField)
	}

	msg := &Message{TicketID: ticketID, SenderType: sender, Message: body}
	switch sender {
	case SenderAdmin:
		if err := auth.RequireAdmin(); err != nil {
			return nil, err
		}
		adminID := auth.SubjectID
		msg.SenderID = &adminID
	case SenderUser:
	default:
		return nil, ErrInvalidSender
	}

	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.InsertMessage(ctx, msg); err != nil {
		if errors.Is(err, ErrTicketNotFound) {
			return nil, ErrTicketNotFound
		}
		log.Error().Err(err).Stringer("ticket_id", ticketID).Msg("service: failed to append message")
		return nil, fmt.Errorf("service: failed to append message: %w", err)
	}

	metrics.TicketMessages.WithLabelValues(string(sender)).Inc()
	log.Info().Stringer("ticket_id", ticketID).Str("sender_type", string(sender)).Stringer("message_id", msg.ID).Msg("service: message appended")

	s.publish(ctx, msg)
	if sender == SenderAdmin {
		s.notifyReply(ticket, msg)
	}

	return msg, nil
}

// publish fans the stored message out to live viewers. Failures are logged;
// viewers recover by re-reading the history.
func (s *service) publish(ctx context.Context, msg *Message) {
	if s.broker == nil {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Stringer("message_id", msg.ID).Msg("service: failed to encode message for realtime")
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.broker.Publish(pubCtx, realtime.TicketTopic(msg.TicketID.String()), data); err != nil {
		metrics.RealtimePublishFailures.Inc()
		log.Warn().Err(err).Stringer("ticket_id", msg.TicketID).Msg("service: failed to publish message")
	}
}

func (s *service) notifyReply(ticket *Ticket, msg *Message) {
	if s.emails == nil {
		return
	}

	email, err := notify.TicketReplyEmail(notify.TicketReply{
		TicketID:  ticket.ID.String(),
		Email:     ticket.Email,
		Subject:   ticket.Subject,
		Message:   msg.Message,
		Signature: s.signature,
	})
	if err != nil {
		log.Error().Err(err).Stringer("ticket_id", ticket.ID).Msg("service: failed to render reply email")
		return
	}

	if err := s.emails.Enqueue(email); err != nil {
		log.Error().Err(err).Stringer("ticket_id", ticket.ID).Msg("service: failed to enqueue reply email")
	}
}

func (s *service) Messages(ctx context.Context, ticketID uuid.UUID) ([]Message, error) {
	messages, err := s.repo.ListMessages(ctx, ticketID)
	if err != nil {
		log.Error().Err(err).Stringer("ticket_id", ticketID).Msg("service: failed to list messages")
		return nil, fmt.Errorf("service: failed to list messages: %w", err)
	}

	sort.SliceStable(messages, func(i, j int) bool { return messageLess(messages[i], messages[j]) })
	return messages, nil
}

func (s *service) UpdateStatus(ctx context.Context, auth session.AuthContext, ticketID uuid.UUID, status TicketStatus) (*Ticket, error) {
	if err := auth.RequireAdmin(); err != nil {
		return nil, err
	}
	if status == StatusUnknown || status == "" {
		return nil, ErrInvalidStatus
	}

	t, err := s.repo.UpdateStatus(ctx, ticketID, status)
	if err != nil {
		if errors.Is(err, ErrTicketNotFound) {
			return nil, ErrTicketNotFound
		}
		log.Error().Err(err).Stringer("ticket_id", ticketID).Msg("service: failed to update ticket status")
		return nil, fmt.Errorf("service: failed to update ticket status: %w", err)
	}

	log.Info().Stringer("ticket_id", ticketID).Str("status", status.String()).Stringer("admin_id", auth.SubjectID).Msg("service: ticket status updated")
	return t, nil
}

// Assign sets the responsible admin. A nil adminID unassigns the ticket.
func (s *service) Assign(ctx context.Context, auth session.AuthContext, ticketID uuid.UUID, adminID *uuid.UUID) (*Ticket, error) {
	if err := auth.RequireAdmin(); err != nil {
		return nil, err
	}

	t, err := s.repo.Assign(ctx, ticketID, adminID)
	if err != nil {
		if errors.Is(err, ErrTicketNotFound) || errors.Is(err, ErrAdminNotFound) {
			return nil, err
		}
		log.Error().Err(err).Stringer("ticket_id", ticketID).Msg("service: failed to assign ticket")
		return nil, fmt.Errorf("service: failed to assign ticket: %w", err)
	}
	return t, nil
}

func (s *service) Subscribe(ctx context.Context, ticketID uuid.UUID) (*realtime.Subscription, error) {
	sub, err := s.broker.Subscribe(ctx, realtime.TicketTopic(ticketID.String()))
	if err != nil {
		return nil, fmt.Errorf("service: failed to subscribe to ticket %s: %w", ticketID, err)
	}
	return sub, nil
}
