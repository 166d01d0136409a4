package http_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	storefronthttp "github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/handler/http"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/realtime"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/session"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/support"
)

func TestSupportHandler_handleCreateTicket(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ts := newTestServer(t)
		ticketID := uuid.Must(uuid.NewV4())
		ts.support.On("CreateTicket", mock.Anything, support.NewTicket{
			Email:    "amina@example.com",
			Subject:  "Late delivery",
			Priority: "high",
			Message:  "Where is my sofa?",
		}).Return(&support.Ticket{ID: ticketID, Status: support.StatusOpen, Priority: support.PriorityHigh}, nil).Once()

		rr := ts.do(http.MethodPost, "/tickets", `{"email": "amina@example.com", "subject": "Late delivery", "priority": "high", "message": "Where is my sofa?"}`, "")

		require.Equal(t, http.StatusCreated, rr.Code)
		var got support.Ticket
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
		assert.Equal(t, ticketID, got.ID)
		ts.assertExpectations(t)
	})

	t.Run("invalid email", func(t *testing.T) {
		ts := newTestServer(t)

		rr := ts.do(http.MethodPost, "/tickets", `{"email": "not-an-email", "subject": "Hi", "message": "Hello"}`, "")

		require.Equal(t, http.StatusBadRequest, rr.Code)
		var resp storefronthttp.ValidationErrorResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, "Field 'Email' must be a valid email address", resp.Details["Email"])
		ts.support.AssertNotCalled(t, "CreateTicket", mock.Anything, mock.Anything)
	})
}

func TestSupportHandler_handleListTickets_AnonymousNeedsUser(t *testing.T) {
	ts := newTestServer(t)
	ts.support.On("ListTickets", mock.Anything, session.Anonymous(), support.TicketFilter{}).
		Return(nil, session.ErrForbidden).Once()

	rr := ts.do(http.MethodGet, "/tickets", "", "")

	assert.Equal(t, http.StatusForbidden, rr.Code)
	ts.assertExpectations(t)
}

func TestSupportHandler_handlePostMessage_SenderFollowsRoute(t *testing.T) {
	ticketID := uuid.Must(uuid.NewV4())
	adminID := uuid.Must(uuid.NewV4())

	t.Run("user route", func(t *testing.T) {
		ts := newTestServer(t)
		ts.support.On("PostMessage", mock.Anything, session.Anonymous(), ticketID, support.SenderUser, "Any update?").
			Return(&support.Message{ID: uuid.Must(uuid.NewV4()), TicketID: ticketID, SenderType: support.SenderUser}, nil).Once()

		rr := ts.do(http.MethodPost, "/tickets/"+ticketID.String()+"/messages", `{"message": "Any update?"}`, "")

		require.Equal(t, http.StatusCreated, rr.Code)
		ts.assertExpectations(t)
	})

	t.Run("admin route", func(t *testing.T) {
		ts := newTestServer(t)
		ts.support.On("PostMessage", mock.Anything, session.Admin(adminID), ticketID, support.SenderAdmin, "Shipped today").
			Return(&support.Message{ID: uuid.Must(uuid.NewV4()), TicketID: ticketID, SenderType: support.SenderAdmin, SenderID: &adminID}, nil).Once()

		rr := ts.do(http.MethodPost, "/admin/tickets/"+ticketID.String()+"/messages", `{"message": "Shipped today"}`, ts.adminToken(t, adminID))

		require.Equal(t, http.StatusCreated, rr.Code)
		ts.assertExpectations(t)
	})
}

func TestSupportHandler_handleUpdateStatus(t *testing.T) {
	ts := newTestServer(t)
	ticketID := uuid.Must(uuid.NewV4())
	adminID := uuid.Must(uuid.NewV4())
	ts.support.On("UpdateStatus", mock.Anything, session.Admin(adminID), ticketID, support.StatusResolved).
		Return(&support.Ticket{ID: ticketID, Status: support.StatusResolved}, nil).Once()

	rr := ts.do(http.MethodPatch, "/admin/tickets/"+ticketID.String()+"/status", `{"status": "resolved"}`, ts.adminToken(t, adminID))

	require.Equal(t, http.StatusOK, rr.Code)
	ts.assertExpectations(t)
}

func TestSupportHandler_handleStream_NotFound(t *testing.T) {
	ts := newTestServer(t)
	ticketID := uuid.Must(uuid.NewV4())
	ts.support.On("GetTicket", mock.Anything, ticketID).Return(nil, support.ErrTicketNotFound).Once()

	rr := ts.do(http.MethodGet, "/tickets/"+ticketID.String()+"/stream", "", "")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	ts.support.AssertNotCalled(t, "Subscribe", mock.Anything, mock.Anything)
}

type sseEvent struct {
	name string
	data string
}

func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.name != "" {
				return ev
			}
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestSupportHandler_handleStream(t *testing.T) {
	ts := newTestServer(t)
	ticketID := uuid.Must(uuid.NewV4())
	topic := realtime.TicketTopic(ticketID.String())

	broker := realtime.NewMemoryBroker()
	defer broker.Close()
	sub, err := broker.Subscribe(context.Background(), topic)
	require.NoError(t, err)

	first := support.Message{ID: uuid.Must(uuid.NewV4()), TicketID: ticketID, SenderType: support.SenderUser, Message: "Hello"}
	reply := support.Message{ID: uuid.Must(uuid.NewV4()), TicketID: ticketID, SenderType: support.SenderAdmin, Message: "Hi there"}

	ts.support.On("GetTicket", mock.Anything, ticketID).Return(&support.Ticket{ID: ticketID}, nil).Once()
	ts.support.On("Subscribe", mock.Anything, ticketID).Return(sub, nil).Once()
	ts.support.On("Messages", mock.Anything, ticketID).Return([]support.Message{first}, nil).Once()

	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/tickets/"+ticketID.String()+"/stream", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)

	history := readEvent(t, reader)
	require.Equal(t, "history", history.name)
	var got []support.Message
	require.NoError(t, json.Unmarshal([]byte(history.data), &got))
	require.Len(t, got, 1)
	assert.Equal(t, first.ID, got[0].ID)

	for _, m := range []support.Message{first, reply} {
		data, err := json.Marshal(m)
		require.NoError(t, err)
		require.NoError(t, broker.Publish(ctx, topic, data))
	}

	next := readEvent(t, reader)
	require.Equal(t, "message", next.name)
	var live support.Message
	require.NoError(t, json.Unmarshal([]byte(next.data), &live))
	assert.Equal(t, reply.ID, live.ID)
	assert.Equal(t, "Hi there", live.Message)

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription was not closed after the client left")
	}
	ts.assertExpectations(t)
}
