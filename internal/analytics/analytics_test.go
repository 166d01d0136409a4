package analytics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofrs/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/analytics"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/session"
)

var dashboardColumns = []string{
	"total_revenue", "orders_count", "total_users", "active_products",
	"revenue_current", "revenue_previous",
	"orders_current", "orders_previous",
	"users_current", "users_previous",
	"products_current", "products_previous",
}

func newMockRepository(t *testing.T) (analytics.Repository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return analytics.NewRepository(sqlx.NewDb(mockDB, "sqlmock")), mock
}

func TestSqlxRepository_DashboardStats(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(dashboardColumns).
		AddRow("15000.00", int64(12), int64(40), int64(25), "6000.00", "4000.00", int64(6), int64(6), int64(10), int64(0), int64(2), int64(4))
	mock.ExpectQuery(`FROM orders`).
		WithArgs(now.Add(-analytics.Window), now.Add(-2*analytics.Window)).
		WillReturnRows(rows)

	stats, err := repo.DashboardStats(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, "15000.00", stats.TotalRevenue.StringFixed(2))
	assert.Equal(t, int64(12), stats.OrdersCount)
	assert.Equal(t, int64(40), stats.TotalUsers)
	assert.Equal(t, int64(25), stats.ActiveProducts)
	assert.Equal(t, 50.0, stats.RevenueGrowthPercentage)
	assert.Equal(t, 0.0, stats.OrdersGrowthPercentage)
	assert.Equal(t, 100.0, stats.UserGrowthPercentage)
	assert.Equal(t, -50.0, stats.ProductsGrowthPercentage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSqlxRepository_DashboardStats_QueryError(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery(`FROM orders`).WillReturnError(errors.New("relation does not exist"))

	_, err := repo.DashboardStats(context.Background(), time.Now())

	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGrowth(t *testing.T) {
	testCases := []struct {
		current, previous, want float64
	}{
		{current: 0, previous: 0, want: 0},
		{current: 3, previous: 0, want: 100},
		{current: 3, previous: 3, want: 0},
		{current: 1, previous: 3, want: -66.7},
		{current: 5, previous: 4, want: 25},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.want, analytics.Growth(tc.current, tc.previous), "Growth(%v, %v)", tc.current, tc.previous)
	}
}

func TestService_DashboardStats_RequiresAdmin(t *testing.T) {
	repo, mock := newMockRepository(t)
	svc := analytics.NewService(repo)

	_, err := svc.DashboardStats(context.Background(), session.Anonymous())

	require.ErrorIs(t, err, session.ErrForbidden)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_DashboardStats_Admin(t *testing.T) {
	repo, mock := newMockRepository(t)
	svc := analytics.NewService(repo)

	rows := sqlmock.NewRows(dashboardColumns).
		AddRow("0", int64(0), int64(0), int64(0), "0", "0", int64(0), int64(0), int64(0), int64(0), int64(0), int64(0))
	mock.ExpectQuery(`FROM orders`).WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnRows(rows)

	stats, err := svc.DashboardStats(context.Background(), session.Admin(uuid.Must(uuid.NewV4())))

	require.NoError(t, err)
	assert.True(t, stats.TotalRevenue.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
