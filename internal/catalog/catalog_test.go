package catalog

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iurnickita/cashback/internal/catalog/config"
	"github.com/iurnickita/cashback/internal/model"
	"github.com/iurnickita/cashback/internal/store"
)

func seededStore(t *testing.T, partnerID string) store.Store {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.PartnerPut(ctx, model.Partner{
		ID:           partnerID,
		Name:         "Coffee",
		CashbackRate: decimal.NewNullDecimal(decimal.NewFromInt(5)),
		Active:       true,
	}))
	require.NoError(t, st.ProductPut(ctx, model.Product{ID: partnerID + "-latte", PartnerID: partnerID, Name: "Latte", Price: decimal.RequireFromString("3.50"), Available: true}))
	require.NoError(t, st.ProductPut(ctx, model.Product{ID: partnerID + "-bun", PartnerID: partnerID, Name: "Bun", Price: decimal.RequireFromString("1.20"), Available: false}))
	return st
}

func TestStoreCatalog(t *testing.T) {
	ctx := context.Background()
	c := NewStoreCatalog(seededStore(t, "1001"))

	partner, err := c.Partner(ctx, "1001")
	require.NoError(t, err)
	require.Equal(t, "Coffee", partner.Name)

	_, err = c.Partner(ctx, "1002")
	require.ErrorIs(t, err, ErrNotFound)

	products, err := c.Products(ctx, "1001", []string{"1001-bun", "1001-latte"})
	require.NoError(t, err)
	require.Len(t, products, 2)
	require.Equal(t, "Bun", products[0].Name)
	require.False(t, products[0].Available)

	_, err = c.Products(ctx, "1001", []string{"1001-tea"})
	require.ErrorIs(t, err, ErrNotFound)
}

// countingCatalog считает обращения к источнику
type countingCatalog struct {
	Catalog
	partners int
	products int
}

func (c *countingCatalog) Partner(ctx context.Context, partnerID string) (model.Partner, error) {
	c.partners++
	return c.Catalog.Partner(ctx, partnerID)
}

func (c *countingCatalog) Products(ctx context.Context, partnerID string, productIDs []string) ([]model.Product, error) {
	c.products++
	return c.Catalog.Products(ctx, partnerID, productIDs)
}

// Нужен запущенный Redis: REDIS_ADDR=localhost:6379
func TestRedisCache(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR is not set")
	}
	ctx := context.Background()

	rdb, err := ConnectRedis(ctx, config.Config{RedisAddr: addr})
	require.NoError(t, err)
	defer rdb.Close()

	partnerID := uuid.NewString()
	source := &countingCatalog{Catalog: NewStoreCatalog(seededStore(t, partnerID))}
	c := NewRedisCache(source, rdb, time.Minute, zaptest.NewLogger(t))

	for i := 0; i < 3; i++ {
		partner, err := c.Partner(ctx, partnerID)
		require.NoError(t, err)
		require.True(t, partner.CashbackRate.Valid)
		require.Equal(t, "5", partner.CashbackRate.Decimal.String())

		products, err := c.Products(ctx, partnerID, []string{partnerID + "-latte"})
		require.NoError(t, err)
		require.Len(t, products, 1)
		require.Equal(t, "3.50", products[0].Price.StringFixed(2))
	}
	require.Equal(t, 1, source.partners)
	require.Equal(t, 1, source.products)

	// промахи не кэшируются
	_, err = c.Partner(ctx, uuid.NewString())
	require.ErrorIs(t, err, ErrNotFound)
}

// closedAddr - адрес, на котором никто не слушает
func closedAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestRedisCacheUnavailable(t *testing.T) {
	ctx := context.Background()
	addr := closedAddr(t)

	_, err := ConnectRedis(ctx, config.Config{RedisAddr: addr})
	require.Error(t, err)

	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	source := &countingCatalog{Catalog: NewStoreCatalog(seededStore(t, "1001"))}
	c := NewRedisCache(source, rdb, time.Minute, zap.New(core))

	for i := 0; i < 2; i++ {
		partner, err := c.Partner(ctx, "1001")
		require.NoError(t, err)
		require.Equal(t, "Coffee", partner.Name)

		products, err := c.Products(ctx, "1001", []string{"1001-latte"})
		require.NoError(t, err)
		require.Len(t, products, 1)
		require.Equal(t, "3.50", products[0].Price.StringFixed(2))
	}
	// без кэша каждый запрос уходит в источник
	require.Equal(t, 2, source.partners)
	require.Equal(t, 2, source.products)

	// ошибки источника не маскируются
	_, err = c.Partner(ctx, "1002")
	require.ErrorIs(t, err, ErrNotFound)

	require.NotZero(t, logs.FilterMessage("catalog cache read failed").Len())
	require.NotZero(t, logs.FilterMessage("catalog cache write failed").Len())
}
