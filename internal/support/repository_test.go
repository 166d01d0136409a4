package support_test

import (
	"context"
	"sync"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/db/dbtest"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/support"
)

func TestPostgresRepository_TicketConversation(t *testing.T) {
	pool := dbtest.Open(t, "support_messages", "support_tickets")
	repo := support.NewRepository(pool)
	ctx := context.Background()

	ticket := &support.Ticket{Email: "c@example.com", Subject: "Where is my order", Priority: support.PriorityHigh, Status: support.StatusOpen}
	first := &support.Message{SenderType: support.SenderUser, Message: "It has been a week"}
	require.NoError(t, repo.CreateTicket(ctx, ticket, first))
	require.NotEqual(t, uuid.Nil, ticket.ID)
	assert.Equal(t, ticket.ID, first.TicketID)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.InsertMessage(ctx, &support.Message{TicketID: ticket.ID, SenderType: support.SenderAdmin, Message: "on it"}))
		}()
	}
	wg.Wait()

	messages, err := repo.ListMessages(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, messages, 6)
	assert.Equal(t, first.ID, messages[0].ID)
	for i := 1; i < len(messages); i++ {
		assert.False(t, messages[i].CreatedAt.Before(messages[i-1].CreatedAt))
	}

	err = repo.InsertMessage(ctx, &support.Message{TicketID: uuid.Must(uuid.NewV4()), SenderType: support.SenderUser, Message: "orphan"})
	require.ErrorIs(t, err, support.ErrTicketNotFound)

	updated, err := repo.UpdateStatus(ctx, ticket.ID, support.StatusResolved)
	require.NoError(t, err)
	assert.Equal(t, support.StatusResolved, updated.Status)

	_, err = repo.Assign(ctx, ticket.ID, func() *uuid.UUID { id := uuid.Must(uuid.NewV4()); return &id }())
	require.ErrorIs(t, err, support.ErrAdminNotFound)
}
