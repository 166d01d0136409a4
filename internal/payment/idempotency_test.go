package payment_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/payment"
)

func TestRedisStore_Claim(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR_TEST")
	if addr == "" {
		t.Skip("REDIS_ADDR_TEST not set, skipping redis test")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	store := payment.NewRedisStore(client, "storefront:test:")
	key := uuid.Must(uuid.NewV4()).String()
	ctx := context.Background()

	first, err := store.Claim(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := store.Claim(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, again)
}
