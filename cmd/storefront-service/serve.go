package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/admin"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/analytics"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/config"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/db"
	storefronthttp "github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/handler/http"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/notify"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/order"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/payment"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/realtime"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/session"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/support"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	var migrateFirst bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if migrateFirst {
				if err := migrateUp(cfg.Postgres); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg)
		},
	}

	cmd.Flags().BoolVar(&migrateFirst, "migrate", false, "apply pending migrations before starting")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	log.Info().Msg("Storefront service starting...")

	pg, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pg.Close()

	sqlxConn, err := db.Connect(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("failed to open reporting connection: %w", err)
	}
	defer sqlxConn.Close()

	broker, err := newBroker(cfg)
	if err != nil {
		return err
	}
	closeBroker := sync.OnceFunc(func() {
		if err := broker.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close realtime broker")
		}
	})
	defer closeBroker()

	store, closeStore := newIdempotencyStore(ctx, cfg.Redis)
	defer closeStore()

	dispatcher := notify.NewDispatcher(newNotifier(cfg.Notify), notify.DispatcherConfig{
		Workers:     cfg.Notify.Workers,
		QueueSize:   cfg.Notify.QueueSize,
		MaxRetries:  cfg.Notify.MaxRetries,
		SendTimeout: cfg.Notify.Timeout,
	})

	orderSvc := order.NewService(order.NewRepository(pg.Pool))
	services := storefronthttp.Services{
		Orders:    orderSvc,
		Payments:  payment.NewService(payment.NewRepository(pg.Pool), orderSvc, dispatcher, store, cfg.Notify.FromName),
		Support:   support.NewService(support.NewRepository(pg.Pool), broker, dispatcher, cfg.Notify.FromName),
		Carts:     cart.NewService(cart.NewRepository(pg.Pool)),
		Admins:    admin.NewService(admin.NewRepository(pg.Pool)),
		Analytics: analytics.NewService(analytics.NewRepository(sqlxConn)),
	}

	router := storefronthttp.NewRouter(services, storefronthttp.RouterConfig{
		Sessions:   session.NewManager(cfg.Session.Secret, cfg.Session.TTL),
		SessionTTL: cfg.Session.TTL,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// SSE streams only end once the broker is closed
	closeBroker()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Email dispatcher did not drain before shutdown")
	}

	log.Info().Msg("Storefront service stopped gracefully")
	return nil
}

func newBroker(cfg *config.Config) (realtime.Broker, error) {
	if cfg.NATS.URL == "" {
		log.Info().Msg("NATS_URL not set, using in-process realtime broker")
		return realtime.NewMemoryBroker(), nil
	}

	broker, err := realtime.NewNATSBroker(cfg.NATS.URL, cfg.App.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return broker, nil
}

// newIdempotencyStore falls back to process memory when Redis is not
// configured or not reachable at startup.
func newIdempotencyStore(ctx context.Context, cfg config.RedisConfig) (payment.IdempotencyStore, func()) {
	if cfg.Addr == "" {
		return payment.NewMemoryStore(), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Addr).Msg("Redis unreachable, using in-memory idempotency store")
		_ = client.Close()
		return payment.NewMemoryStore(), func() {}
	}

	log.Info().Str("addr", cfg.Addr).Msg("Connected to Redis")
	return payment.NewRedisStore(client, "storefront:payment:"), func() {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}
}

func newNotifier(cfg config.NotifyConfig) notify.Notifier {
	if cfg.FunctionURL == "" {
		log.Info().Msg("NOTIFY_FUNCTION_URL not set, emails will only be logged")
		return notify.LogNotifier{}
	}
	return notify.NewFunctionClient(cfg.FunctionURL, cfg.APIKey, cfg.Timeout)
}
