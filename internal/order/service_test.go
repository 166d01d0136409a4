package order_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/order"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/session"
)

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) CreateOrder(ctx context.Context, o *order.Order) (uuid.UUID, error) {
	args := m.Called(ctx, o)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockOrderRepository) GetOrderByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderRepository) GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]order.Order, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderRepository) ListOrders(ctx context.Context, filter order.ListFilter) ([]order.Order, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderRepository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, expected string, status order.OrderStatus, tracking *string) error {
	args := m.Called(ctx, id, expected, status, tracking)
	return args.Error(0)
}

func (m *MockOrderRepository) ApproveOrder(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

var adminAuth = session.Admin(uuid.Must(uuid.NewV4()))

func TestOrderService_CreateOrder_Success(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	svc := order.NewService(mockRepo)

	input := &order.Order{
		UserID:       uuid.Must(uuid.NewV4()),
		ShippingCost: decimal.RequireFromString("250.00"),
		Items: []order.OrderItem{
			{ProductID: uuid.Must(uuid.NewV4()), ProductName: "Headphones", UnitPrice: decimal.RequireFromString("1999.99"), Quantity: 2},
			{ProductID: uuid.Must(uuid.NewV4()), ProductName: "Cable", UnitPrice: decimal.RequireFromString("0.10"), Quantity: 3},
		},
	}
	newID := uuid.Must(uuid.NewV4())

	mockRepo.On("CreateOrder", mock.Anything, mock.AnythingOfType("*order.Order")).
		Run(func(args mock.Arguments) { args.Get(1).(*order.Order).ID = newID }).
		Return(newID, nil).
		Once()

	created, err := svc.CreateOrder(context.Background(), input)

	require.NoError(t, err)
	assert.Equal(t, newID, created.ID)
	assert.Equal(t, order.StatusPendingApproval, created.Status)
	assert.Equal(t, order.PaymentUnpaid, created.PaymentStatus)
	assert.Equal(t, order.DefaultCurrency, created.Currency)
	assert.Equal(t, "3999.98", created.Items[0].TotalPrice.StringFixed(2))
	assert.Equal(t, "0.30", created.Items[1].TotalPrice.StringFixed(2))
	assert.Equal(t, "4250.28", created.TotalAmount.StringFixed(2))
	mockRepo.AssertExpectations(t)
}

func TestOrderService_CreateOrder_Validation(t *testing.T) {
	productID := uuid.Must(uuid.NewV4())
	tests := []struct {
		name    string
		input   *order.Order
		wantErr error
	}{
		{"no items", &order.Order{}, order.ErrEmptyOrder},
		{"zero quantity", &order.Order{Items: []order.OrderItem{{ProductID: productID, Quantity: 0}}}, order.ErrInvalidItem},
		{"negative price", &order.Order{Items: []order.OrderItem{{ProductID: productID, Quantity: 1, UnitPrice: decimal.NewFromInt(-1)}}}, order.ErrInvalidItem},
		{"nil product", &order.Order{Items: []order.OrderItem{{Quantity: 1}}}, order.ErrInvalidItem},
		{"negative shipping", &order.Order{ShippingCost: decimal.NewFromInt(-5), Items: []order.OrderItem{{ProductID: productID, Quantity: 1}}}, order.ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockOrderRepository)
			svc := order.NewService(mockRepo)

			created, err := svc.CreateOrder(context.Background(), tt.input)

			require.ErrorIs(t, err, tt.wantErr)
			require.Nil(t, created)
			mockRepo.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
		})
	}
}

func TestOrderService_GetOrderByID(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	svc := order.NewService(mockRepo)

	id := uuid.Must(uuid.NewV4())
	expected := order.Order{ID: id, Status: order.StatusApproved, Items: []order.OrderItem{}}

	mockRepo.On("GetOrderByID", mock.Anything, id).Return(&expected, nil).Once()

	found, err := svc.GetOrderByID(context.Background(), id)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(expected, *found))
	mockRepo.AssertExpectations(t)
}

func TestOrderService_GetOrderByID_NotFound(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	svc := order.NewService(mockRepo)

	id := uuid.Must(uuid.NewV4())
	mockRepo.On("GetOrderByID", mock.Anything, id).Return(nil, order.ErrOrderNotFound).Once()

	found, err := svc.GetOrderByID(context.Background(), id)
	require.ErrorIs(t, err, order.ErrOrderNotFound)
	require.Nil(t, found)
}

func TestOrderService_GetTracking(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	svc := order.NewService(mockRepo)

	id := uuid.Must(uuid.NewV4())
	trk := "TRK123"
	mockRepo.On("GetOrderByID", mock.Anything, id).
		Return(&order.Order{ID: id, Status: order.StatusShipped, TrackingNumber: &trk}, nil).
		Once()

	tracking, err := svc.GetTracking(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 70, tracking.Progress)
	assert.Equal(t, "TRK123", tracking.TrackingNumber)
}

func TestOrderService_UpdateOrderStatus_PendingApprovalToShipped(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	svc := order.NewService(mockRepo)

	id := uuid.Must(uuid.NewV4())
	trk := "TRK123"
	mockRepo.On("GetOrderByID", mock.Anything, id).
		Return(&order.Order{ID: id, Status: order.StatusPendingApproval}, nil).
		Once()
	mockRepo.On("UpdateOrderStatus", mock.Anything, id, "pending_approval", order.StatusShipped, &trk).Return(nil).Once()

	err := svc.UpdateOrderStatus(context.Background(), adminAuth, id, order.StatusShipped, &trk)
	require.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestOrderService_UpdateOrderStatus_Rejections(t *testing.T) {
	id := uuid.Must(uuid.NewV4())

	t.Run("requires admin", func(t *testing.T) {
		mockRepo := new(MockOrderRepository)
		svc := order.NewService(mockRepo)

		err := svc.UpdateOrderStatus(context.Background(), session.Anonymous(), id, order.StatusShipped, nil)
		require.ErrorIs(t, err, session.ErrForbidden)
		mockRepo.AssertNotCalled(t, "GetOrderByID", mock.Anything, mock.Anything)
	})

	t.Run("backward move", func(t *testing.T) {
		mockRepo := new(MockOrderRepository)
		svc := order.NewService(mockRepo)
		mockRepo.On("GetOrderByID", mock.Anything, id).Return(&order.Order{ID: id, Status: order.StatusShipped}, nil).Once()

		err := svc.UpdateOrderStatus(context.Background(), adminAuth, id, order.StatusApproved, nil)
		require.ErrorIs(t, err, order.ErrInvalidStatusTransition)
		mockRepo.AssertNotCalled(t, "UpdateOrderStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		mockRepo := new(MockOrderRepository)
		svc := order.NewService(mockRepo)
		mockRepo.On("GetOrderByID", mock.Anything, id).Return(&order.Order{ID: id, Status: order.StatusProcessing}, nil).Once()

		err := svc.UpdateOrderStatus(context.Background(), adminAuth, id, order.StatusProcessing, nil)
		require.NoError(t, err)
		mockRepo.AssertNotCalled(t, "UpdateOrderStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("repository failure is wrapped", func(t *testing.T) {
		mockRepo := new(MockOrderRepository)
		svc := order.NewService(mockRepo)
		dbErr := errors.New("connection reset")
		mockRepo.On("GetOrderByID", mock.Anything, id).Return(&order.Order{ID: id, Status: order.StatusApproved}, nil).Once()
		mockRepo.On("UpdateOrderStatus", mock.Anything, id, "approved", order.StatusProcessing, (*string)(nil)).Return(dbErr).Once()

		err := svc.UpdateOrderStatus(context.Background(), adminAuth, id, order.StatusProcessing, nil)
		require.ErrorIs(t, err, dbErr)
	})
}

func TestOrderService_UpdateOrderStatus_TrackingNumberOnSameStatus(t *testing.T) {
	id := uuid.Must(uuid.NewV4())
	trk := "TRK999"

	tests := []struct {
		name    string
		status  order.OrderStatus
		wantErr error
	}{
		{"shipped accepts a new tracking number", order.StatusShipped, nil},
		{"completed is rejected", order.StatusCompleted, order.ErrInvalidStatusTransition},
		{"cancelled is rejected", order.StatusCancelled, order.ErrInvalidStatusTransition},
		{"processing is rejected", order.StatusProcessing, order.ErrInvalidStatusTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockOrderRepository)
			svc := order.NewService(mockRepo)
			mockRepo.On("GetOrderByID", mock.Anything, id).
				Return(&order.Order{ID: id, Status: tt.status, RawStatus: tt.status.String()}, nil).
				Once()
			if tt.wantErr == nil {
				mockRepo.On("UpdateOrderStatus", mock.Anything, id, tt.status.String(), tt.status, &trk).Return(nil).Once()
			}

			err := svc.UpdateOrderStatus(context.Background(), adminAuth, id, tt.status, &trk)
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tt.wantErr)
				mockRepo.AssertNotCalled(t, "UpdateOrderStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			}
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestOrderService_UpdateOrderStatus_StatusChangedUnderneath(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	svc := order.NewService(mockRepo)

	id := uuid.Must(uuid.NewV4())
	mockRepo.On("GetOrderByID", mock.Anything, id).
		Return(&order.Order{ID: id, Status: order.StatusPendingApproval, RawStatus: "pending_approval"}, nil).
		Once()
	mockRepo.On("UpdateOrderStatus", mock.Anything, id, "pending_approval", order.StatusProcessing, (*string)(nil)).
		Return(order.ErrStatusChanged).
		Once()

	err := svc.UpdateOrderStatus(context.Background(), adminAuth, id, order.StatusProcessing, nil)
	require.ErrorIs(t, err, order.ErrInvalidStatusTransition)
	require.ErrorIs(t, err, order.ErrStatusChanged)
	mockRepo.AssertExpectations(t)
}

func TestOrderService_UpdateOrderStatus_RepairsLegacyStatus(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	svc := order.NewService(mockRepo)

	id := uuid.Must(uuid.NewV4())
	mockRepo.On("GetOrderByID", mock.Anything, id).
		Return(&order.Order{ID: id, Status: order.StatusUnknown, RawStatus: "delivered"}, nil).
		Once()
	mockRepo.On("UpdateOrderStatus", mock.Anything, id, "delivered", order.StatusCompleted, (*string)(nil)).Return(nil).Once()

	require.NoError(t, svc.UpdateOrderStatus(context.Background(), adminAuth, id, order.StatusCompleted, nil))
	mockRepo.AssertExpectations(t)
}

func TestOrderService_ApproveOrder(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	svc := order.NewService(mockRepo)

	id := uuid.Must(uuid.NewV4())
	mockRepo.On("ApproveOrder", mock.Anything, id).Return(nil).Once()

	require.NoError(t, svc.ApproveOrder(context.Background(), adminAuth, id))
	require.ErrorIs(t, svc.ApproveOrder(context.Background(), session.Anonymous(), id), session.ErrForbidden)
	mockRepo.AssertExpectations(t)
}

func TestOrderService_ListOrders(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	svc := order.NewService(mockRepo)

	filter := order.ListFilter{Status: order.StatusShipped}
	mockRepo.On("ListOrders", mock.Anything, filter).Return([]order.Order{{Status: order.StatusShipped}}, nil).Once()

	orders, err := svc.ListOrders(context.Background(), adminAuth, filter)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	_, err = svc.ListOrders(context.Background(), session.Anonymous(), filter)
	require.ErrorIs(t, err, session.ErrForbidden)
	mockRepo.AssertExpectations(t)
}
