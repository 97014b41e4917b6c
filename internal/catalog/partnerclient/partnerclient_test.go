package partnerclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iurnickita/cashback/internal/catalog"
)

func newPartnerService(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/partners/1001", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1001","name":"Coffee","cashback_rate":"5.00","active":true}`))
	})
	mux.HandleFunc("/api/partners/1002", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1002","name":"Bakery","cashback_rate":null,"active":false}`))
	})
	mux.HandleFunc("/api/partners/1001/products", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Contains(t, r.URL.Query().Get("ids"), "latte")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"bun","name":"Bun","price":"1.20","available":false},` +
			`{"id":"latte","name":"Latte","price":"3.50","available":true}]`))
	})
	mux.HandleFunc("/api/partners/1003", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestPartner(t *testing.T) {
	var hits atomic.Int32
	server := newPartnerService(t, &hits)
	client := NewPartnerClient(server.URL, time.Second)
	ctx := context.Background()

	partner, err := client.Partner(ctx, "1001")
	require.NoError(t, err)
	require.Equal(t, "Coffee", partner.Name)
	require.True(t, partner.Active)
	require.True(t, partner.CashbackRate.Valid)
	require.Equal(t, "5.00", partner.CashbackRate.Decimal.StringFixed(2))

	partner, err = client.Partner(ctx, "1002")
	require.NoError(t, err)
	require.False(t, partner.CashbackRate.Valid)
	require.False(t, partner.Active)

	_, err = client.Partner(ctx, "9999")
	require.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = client.Partner(ctx, "1003")
	require.Error(t, err)
	require.NotErrorIs(t, err, catalog.ErrNotFound)
}

func TestProducts(t *testing.T) {
	var hits atomic.Int32
	server := newPartnerService(t, &hits)
	client := NewPartnerClient(server.URL, time.Second)

	products, err := client.Products(context.Background(), "1001", []string{"latte", "bun"})
	require.NoError(t, err)
	require.Len(t, products, 2)
	// порядок запроса, а не ответа
	require.Equal(t, "latte", products[0].ID)
	require.Equal(t, "1001", products[0].PartnerID)
	require.Equal(t, "3.50", products[0].Price.StringFixed(2))
	require.False(t, products[1].Available)

	_, err = client.Products(context.Background(), "1001", []string{"latte", "tea"})
	require.ErrorIs(t, err, catalog.ErrNotFound)
	require.Equal(t, int32(2), hits.Load())
}

func TestPartnerIDEscaped(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		paths = append(paths, r.URL.EscapedPath())
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)
	client := NewPartnerClient(server.URL, time.Second)

	_, err := client.Partner(context.Background(), "1001/products")
	require.ErrorIs(t, err, catalog.ErrNotFound)
	_, err = client.Products(context.Background(), "../1002", []string{"latte"})
	require.ErrorIs(t, err, catalog.ErrNotFound)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{
		"/api/partners/1001%2Fproducts",
		"/api/partners/..%2F1002/products",
	}, paths)
}

func TestProductIDWithComma(t *testing.T) {
	var hits atomic.Int32
	server := newPartnerService(t, &hits)
	client := NewPartnerClient(server.URL, time.Second)

	_, err := client.Products(context.Background(), "1001", []string{"latte,bun"})
	require.ErrorIs(t, err, catalog.ErrNotFound)
	_, err = client.Products(context.Background(), "1001", []string{""})
	require.ErrorIs(t, err, catalog.ErrNotFound)
	require.Zero(t, hits.Load())
}
