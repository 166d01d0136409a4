package support

import (
	"bytes"
	"time"

	"github.com/gofrs/uuid"
)

type TicketStatus string

const (
	StatusOpen       TicketStatus = "open"
	StatusInProgress TicketStatus = "in-progress"
	StatusResolved   TicketStatus = "resolved"
	StatusClosed     TicketStatus = "closed"
	StatusUnknown    TicketStatus = "unknown"
)

func (s TicketStatus) String() string {
	return string(s)
}

func ParseTicketStatus(s string) TicketStatus {
	switch st := TicketStatus(s); st {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return st
	default:
		return StatusUnknown
	}
}

type Priority string

const (
	PriorityLow     Priority = "low"
	PriorityMedium  Priority = "medium"
	PriorityHigh    Priority = "high"
	PriorityUrgent  Priority = "urgent"
	PriorityUnknown Priority = "unknown"
)

func ParsePriority(s string) Priority {
	switch p := Priority(s); p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return p
	default:
		return PriorityUnknown
	}
}

type SenderType string

const (
	SenderUser    SenderType = "user"
	SenderAdmin   SenderType = "admin"
	SenderUnknown SenderType = "unknown"
)

func ParseSenderType(s string) SenderType {
	switch st := SenderType(s); st {
	case SenderUser, SenderAdmin:
		return st
	default:
		return SenderUnknown
	}
}

type Ticket struct {
	ID         uuid.UUID    `json:"id"`
	UserID     *uuid.UUID   `json:"user_id,omitempty"`
	Email      string       `json:"email"`
	Subject    string       `json:"subject"`
	Category   string       `json:"category"`
	Priority   Priority     `json:"priority"`
	Status     TicketStatus `json:"status"`
	AssignedTo *uuid.UUID   `json:"assigned_to,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Message is append-only. CreatedAt is assigned by the database clock.
type Message struct {
	ID         uuid.UUID  `json:"id"`
	TicketID   uuid.UUID  `json:"ticket_id"`
	SenderType SenderType `json:"sender_type"`
	SenderID   *uuid.UUID `json:"sender_id,omitempty"`
	Message    string     `json:"message"`
	IsRead     bool       `json:"is_read"`
	CreatedAt  time.Time  `json:"created_at"`
}

type NewTicket struct {
	UserID   *uuid.UUID
	Email    string
	Subject  string
	Category string
	Priority string
	Message  string
}

type TicketFilter struct {
	Status TicketStatus
	UserID *uuid.UUID
	Limit  int
	Offset int
}

// messageLess orders by creation time, then by id so ties are stable.
func messageLess(a, b Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return bytes.Compare(a.ID.Bytes(), b.ID.Bytes()) < 0
}
