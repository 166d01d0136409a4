// Package analytics aggregates the admin dashboard figures.
package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/session"
)

// Window is the length of the period growth figures compare.
const Window = 30 * 24 * time.Hour

type DashboardStats struct {
	TotalRevenue             decimal.Decimal `json:"total_revenue"`
	OrdersCount              int64           `json:"orders_count"`
	TotalUsers               int64           `json:"total_users"`
	ActiveProducts           int64           `json:"active_products"`
	RevenueGrowthPercentage  float64         `json:"revenue_growth_percentage"`
	OrdersGrowthPercentage   float64         `json:"orders_growth_percentage"`
	UserGrowthPercentage     float64         `json:"user_growth_percentage"`
	ProductsGrowthPercentage float64         `json:"products_growth_percentage"`
}

type dashboardRow struct {
	TotalRevenue     decimal.Decimal `db:"total_revenue"`
	OrdersCount      int64           `db:"orders_count"`
	TotalUsers       int64           `db:"total_users"`
	ActiveProducts   int64           `db:"active_products"`
	RevenueCurrent   decimal.Decimal `db:"revenue_current"`
	RevenuePrevious  decimal.Decimal `db:"revenue_previous"`
	OrdersCurrent    int64           `db:"orders_current"`
	OrdersPrevious   int64           `db:"orders_previous"`
	UsersCurrent     int64           `db:"users_current"`
	UsersPrevious    int64           `db:"users_previous"`
	ProductsCurrent  int64           `db:"products_current"`
	ProductsPrevious int64           `db:"products_previous"`
}

type Repository interface {
	DashboardStats(ctx context.Context, now time.Time) (*DashboardStats, error)
}

type sqlxRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &sqlxRepository{db: db}
}

// cancelled orders never count as revenue
const dashboardQuery = `
	SELECT
		(SELECT COALESCE(SUM(total_amount), 0) FROM orders WHERE status <> 'cancelled') AS total_revenue,
		(SELECT COUNT(*) FROM orders) AS orders_count,
		(SELECT COUNT(*) FROM profiles) AS total_users,
		(SELECT COUNT(*) FROM products WHERE is_active) AS active_products,
		(SELECT COALESCE(SUM(total_amount), 0) FROM orders WHERE status <> 'cancelled' AND created_at >= $1) AS revenue_current,
		(SELECT COALESCE(SUM(total_amount), 0) FROM orders WHERE status <> 'cancelled' AND created_at >= $2 AND created_at < $1) AS revenue_previous,
		(SELECT COUNT(*) FROM orders WHERE created_at >= $1) AS orders_current,
		(SELECT COUNT(*) FROM orders WHERE created_at >= $2 AND created_at < $1) AS orders_previous,
		(SELECT COUNT(*) FROM profiles WHERE created_at >= $1) AS users_current,
		(SELECT COUNT(*) FROM profiles WHERE created_at >= $2 AND created_at < $1) AS users_previous,
		(SELECT COUNT(*) FROM products WHERE is_active AND created_at >= $1) AS products_current,
		(SELECT COUNT(*) FROM products WHERE is_active AND created_at >= $2 AND created_at < $1) AS products_previous
`

func (r *sqlxRepository) DashboardStats(ctx context.Context, now time.Time) (*DashboardStats, error) {
	currentStart := now.Add(-Window)
	previousStart := now.Add(-2 * Window)

	var row dashboardRow
	if err := r.db.GetContext(ctx, &row, dashboardQuery, currentStart, previousStart); err != nil {
		return nil, fmt.Errorf("repository: failed to query dashboard stats: %w", err)
	}

	return &DashboardStats{
		TotalRevenue:             row.TotalRevenue,
		OrdersCount:              row.OrdersCount,
		TotalUsers:               row.TotalUsers,
		ActiveProducts:           row.ActiveProducts,
		RevenueGrowthPercentage:  growthDecimal(row.RevenueCurrent, row.RevenuePrevious),
		OrdersGrowthPercentage:   Growth(float64(row.OrdersCurrent), float64(row.OrdersPrevious)),
		UserGrowthPercentage:     Growth(float64(row.UsersCurrent), float64(row.UsersPrevious)),
		ProductsGrowthPercentage: Growth(float64(row.ProductsCurrent), float64(row.ProductsPrevious)),
	}, nil
}

// Growth is the percentage change from previous to current, rounded to one
// decimal. Growth from zero is 100 when anything was added and 0 otherwise.
func Growth(current, previous float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return math.Round((current-previous)/previous*1000) / 10
}

func growthDecimal(current, previous decimal.Decimal) float64 {
	return Growth(current.InexactFloat64(), previous.InexactFloat64())
}

type Service interface {
	DashboardStats(ctx context.Context, auth session.AuthContext) (*DashboardStats, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) Service {
	return &service{repo: repo, now: time.Now}
}

func (s *service) DashboardStats(ctx context.Context, auth session.AuthContext) (*DashboardStats, error) {
	if err := auth.RequireAdmin(); err != nil {
		return nil, err
	}

	stats, err := s.repo.DashboardStats(ctx, s.now().UTC())
	if err != nil {
		log.Error().Err(err).Msg("service: failed to load dashboard stats")
		return nil, fmt.Errorf("service: failed to load dashboard stats: %w", err)
	}
	return stats, nil
}
