package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/admin"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/analytics"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/metrics"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/order"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/payment"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/session"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/support"
)

type Services struct {
	Orders    order.Service
	Payments  payment.Service
	Support   support.Service
	Carts     cart.Service
	Admins    admin.Service
	Analytics analytics.Service
}

type RouterConfig struct {
	Sessions   *session.Manager
	SessionTTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

func NewRouter(svc Services, cfg RouterConfig) chi.Router {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	orders := NewOrderHandler(svc.Orders)
	payments := NewPaymentHandler(svc.Payments)
	tickets := NewSupportHandler(svc.Support)
	carts := NewCartHandler(svc.Carts)
	admins := NewAdminHandler(svc.Admins, svc.Analytics, cfg.Sessions, cfg.SessionTTL, now)

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(cfg.Sessions, now))

		orders.RegisterRoutes(r)
		payments.RegisterRoutes(r)
		tickets.RegisterRoutes(r)
		carts.RegisterRoutes(r)

		r.Route("/admin", func(r chi.Router) {
			admins.RegisterRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin)
				orders.RegisterAdminRoutes(r)
				payments.RegisterAdminRoutes(r)
				tickets.RegisterAdminRoutes(r)
				admins.RegisterAdminRoutes(r)
			})
		})
	})

	return r
}
