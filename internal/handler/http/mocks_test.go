package http_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/admin"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/analytics"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/cart"
	storefronthttp "github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/handler/http"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/order"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/payment"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/realtime"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/session"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/support"
)

type MockOrderService struct{ mock.Mock }

func (m *MockOrderService) CreateOrder(ctx context.Context, o *order.Order) (*order.Order, error) {
	args := m.Called(ctx, o)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) GetOrderByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]order.Order, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderService) GetTracking(ctx context.Context, id uuid.UUID) (order.Tracking, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(order.Tracking), args.Error(1)
}

func (m *MockOrderService) ListOrders(ctx context.Context, auth session.AuthContext, filter order.ListFilter) ([]order.Order, error) {
	args := m.Called(ctx, auth, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderService) UpdateOrderStatus(ctx context.Context, auth session.AuthContext, id uuid.UUID, status order.OrderStatus, tracking *string) error {
	return m.Called(ctx, auth, id, status, tracking).Error(0)
}

func (m *MockOrderService) ApproveOrder(ctx context.Context, auth session.AuthContext, id uuid.UUID) error {
	return m.Called(ctx, auth, id).Error(0)
}

type MockPaymentService struct{ mock.Mock }

func (m *MockPaymentService) StartTransaction(ctx context.Context, input payment.NewTransaction) (*payment.Transaction, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Transaction), args.Error(1)
}

func (m *MockPaymentService) RecordCallback(ctx context.Context, cb payment.Callback) (payment.CallbackResult, error) {
	args := m.Called(ctx, cb)
	return args.Get(0).(payment.CallbackResult), args.Error(1)
}

func (m *MockPaymentService) Verify(ctx context.Context, auth session.AuthContext, id uuid.UUID, v payment.VerificationStatus, notes string) (*payment.Transaction, error) {
	args := m.Called(ctx, auth, id, v, notes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Transaction), args.Error(1)
}

func (m *MockPaymentService) ListTransactions(ctx context.Context, auth session.AuthContext, filter payment.Filter) ([]payment.Transaction, error) {
	args := m.Called(ctx, auth, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]payment.Transaction), args.Error(1)
}

func (m *MockPaymentService) ListNeedsReview(ctx context.Context, auth session.AuthContext) ([]payment.Transaction, error) {
	args := m.Called(ctx, auth)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]payment.Transaction), args.Error(1)
}

type MockSupportService struct{ mock.Mock }

func (m *MockSupportService) CreateTicket(ctx context.Context, input support.NewTicket) (*support.Ticket, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*support.Ticket), args.Error(1)
}

func (m *MockSupportService) GetTicket(ctx context.Context, id uuid.UUID) (*support.Ticket, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*support.Ticket), args.Error(1)
}

func (m *MockSupportService) ListTickets(ctx context.Context, auth session.AuthContext, filter support.TicketFilter) ([]support.Ticket, error) {
	args := m.Called(ctx, auth, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]support.Ticket), args.Error(1)
}

func (m *MockSupportService) PostMessage(ctx context.Context, auth session.AuthContext, ticketID uuid.UUID, sender support.SenderType, body string) (*support.Message, error) {
	args := m.Called(ctx, auth, ticketID, sender, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*support.Message), args.Error(1)
}

func (m *MockSupportService) Messages(ctx context.Context, ticketID uuid.UUID) ([]support.Message, error) {
	args := m.Called(ctx, ticketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]support.Message), args.Error(1)
}

func (m *MockSupportService) UpdateStatus(ctx context.Context, auth session.AuthContext, ticketID uuid.UUID, status support.TicketStatus) (*support.Ticket, error) {
	args := m.Called(ctx, auth, ticketID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*support.Ticket), args.Error(1)
}

func (m *MockSupportService) Assign(ctx context.Context, auth session.AuthContext, ticketID uuid.UUID, adminID *uuid.UUID) (*support.Ticket, error) {
	args := m.Called(ctx, auth, ticketID, adminID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*support.Ticket), args.Error(1)
}

func (m *MockSupportService) Subscribe(ctx context.Context, ticketID uuid.UUID) (*realtime.Subscription, error) {
	args := m.Called(ctx, ticketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*realtime.Subscription), args.Error(1)
}

type MockCartService struct{ mock.Mock }

func (m *MockCartService) GetCart(ctx context.Context, userID uuid.UUID) (*cart.Cart, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartService) AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*cart.Cart, error) {
	args := m.Called(ctx, userID, productID, qty)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartService) UpdateQuantity(ctx context.Context, userID, productID uuid.UUID, qty int) (*cart.Cart, error) {
	args := m.Called(ctx, userID, productID, qty)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartService) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*cart.Cart, error) {
	args := m.Called(ctx, userID, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartService) Clear(ctx context.Context, userID uuid.UUID) error {
	return m.Called(ctx, userID).Error(0)
}

type MockAdminService struct{ mock.Mock }

func (m *MockAdminService) CreateAdmin(ctx context.Context, a *admin.Admin, password string) (*admin.Admin, error) {
	args := m.Called(ctx, a, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*admin.Admin), args.Error(1)
}

func (m *MockAdminService) GetAdminByID(ctx context.Context, id uuid.UUID) (*admin.Admin, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*admin.Admin), args.Error(1)
}

func (m *MockAdminService) Authenticate(ctx context.Context, email, password string) (*admin.Admin, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*admin.Admin), args.Error(1)
}

type MockAnalyticsService struct{ mock.Mock }

func (m *MockAnalyticsService) DashboardStats(ctx context.Context, auth session.AuthContext) (*analytics.DashboardStats, error) {
	args := m.Called(ctx, auth)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analytics.DashboardStats), args.Error(1)
}

var fixedNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

type testServer struct {
	router   chi.Router
	sessions *session.Manager

	orders    *MockOrderService
	payments  *MockPaymentService
	support   *MockSupportService
	carts     *MockCartService
	admins    *MockAdminService
	analytics *MockAnalyticsService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		sessions:  session.NewManager("test-secret", session.MaxAge),
		orders:    new(MockOrderService),
		payments:  new(MockPaymentService),
		support:   new(MockSupportService),
		carts:     new(MockCartService),
		admins:    new(MockAdminService),
		analytics: new(MockAnalyticsService),
	}
	ts.router = storefronthttp.NewRouter(storefronthttp.Services{
		Orders:    ts.orders,
		Payments:  ts.payments,
		Support:   ts.support,
		Carts:     ts.carts,
		Admins:    ts.admins,
		Analytics: ts.analytics,
	}, storefronthttp.RouterConfig{
		Sessions:   ts.sessions,
		SessionTTL: session.MaxAge,
		Now:        func() time.Time { return fixedNow },
	})
	return ts
}

func (ts *testServer) adminToken(t *testing.T, adminID uuid.UUID) string {
	t.Helper()
	token, err := ts.sessions.Issue(adminID, fixedNow.Add(-time.Hour))
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) assertExpectations(t *testing.T) {
	t.Helper()
	ts.orders.AssertExpectations(t)
	ts.payments.AssertExpectations(t)
	ts.support.AssertExpectations(t)
	ts.carts.AssertExpectations(t)
	ts.admins.AssertExpectations(t)
	ts.analytics.AssertExpectations(t)
}
