package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rann-Studio/TokenGuardAI/internal/models"
	"github.com/Rann-Studio/TokenGuardAI/internal/store"
)

func newTestCatalog(t *testing.T) (*Catalog, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	cat, err := New(mem, 30*time.Minute, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(cat.Close)
	return cat, mem
}

func seedCatalog(t *testing.T, mem *store.Memory) {
	t.Helper()
	require.NoError(t, mem.UpsertCoinBatch(context.Background(), []models.CoinListing{
		{ID: "bitcoin", Symbol: "btc", Name: "bitcoin"},
		{
			ID:     "ethereum",
			Symbol: "eth",
			Name:   "ethereum",
			Platforms: []models.Platform{
				{Chain: "ethereum", Address: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"},
			},
		},
	}))
}

func TestCatalogFindBySymbolOrName(t *testing.T) {
	ctx := context.Background()
	cat, mem := newTestCatalog(t)
	seedCatalog(t, mem)

	t.Run("by symbol", func(t *testing.T) {
		coin, err := cat.FindBySymbolOrName(ctx, "symbol", "btc")
		require.NoError(t, err)
		require.NotNil(t, coin)
		assert.Equal(t, "bitcoin", coin.ID)
	})

	t.Run("by name", func(t *testing.T) {
		coin, err := cat.FindBySymbolOrName(ctx, "name", "ethereum")
		require.NoError(t, err)
		require.NotNil(t, coin)
		assert.Equal(t, "eth", coin.Symbol)
	})

	t.Run("unknown keyword", func(t *testing.T) {
		coin, err := cat.FindBySymbolOrName(ctx, "symbol", "nope")
		require.NoError(t, err)
		assert.Nil(t, coin)
	})

	t.Run("invalid method", func(t *testing.T) {
		_, err := cat.FindBySymbolOrName(ctx, "address", "0xabc")
		assert.Error(t, err)
	})
}

func TestCatalogFindByAddress(t *testing.T) {
	ctx := context.Background()
	cat, mem := newTestCatalog(t)
	seedCatalog(t, mem)

	binding, coin, err := cat.FindByAddress(ctx, "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	require.NoError(t, err)
	require.NotNil(t, binding)
	require.NotNil(t, coin)
	assert.Equal(t, "ethereum", binding.Chain)
	assert.Equal(t, "ethereum", coin.ID)

	binding, coin, err = cat.FindByAddress(ctx, "0xdead")
	require.NoError(t, err)
	assert.Nil(t, binding)
	assert.Nil(t, coin)
}

func TestCatalogCoin(t *testing.T) {
	ctx := context.Background()
	cat, mem := newTestCatalog(t)
	seedCatalog(t, mem)

	coin, err := cat.Coin(ctx, "bitcoin")
	require.NoError(t, err)
	require.NotNil(t, coin)
	assert.Equal(t, "btc", coin.Symbol)

	coin, err = cat.Coin(ctx, "dogecoin")
	require.NoError(t, err)
	assert.Nil(t, coin)
}

// countingStore verifies the hot cache serves repeat lookups without going
// back to the backing store.
type countingStore struct {
	store.Store
	findCoinCalls int
}

func (c *countingStore) FindCoin(ctx context.Context, method, keyword string) (*models.Coin, error) {
	c.findCoinCalls++
	return c.Store.FindCoin(ctx, method, keyword)
}

func TestCatalogHotCache(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	seedCatalog(t, mem)
	counting := &countingStore{Store: mem}

	cat, err := New(counting, 30*time.Minute, zerolog.Nop())
	require.NoError(t, err)
	defer cat.Close()

	coin, err := cat.FindBySymbolOrName(ctx, "symbol", "btc")
	require.NoError(t, err)
	require.NotNil(t, coin)
	require.Equal(t, 1, counting.findCoinCalls)

	// ristretto admits asynchronously
	cat.cache.Wait()

	coin, err = cat.FindBySymbolOrName(ctx, "symbol", "btc")
	require.NoError(t, err)
	require.NotNil(t, coin)
	assert.Equal(t, 1, counting.findCoinCalls, "second lookup should hit the hot cache")
}

func TestCatalogDoesNotCacheMisses(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	counting := &countingStore{Store: mem}

	cat, err := New(counting, 30*time.Minute, zerolog.Nop())
	require.NoError(t, err)
	defer cat.Close()

	_, err = cat.FindBySymbolOrName(ctx, "symbol", "btc")
	require.NoError(t, err)
	cat.cache.Wait()

	// The coin shows up after a sync; a cached miss would hide it
	seedCatalog(t, mem)

	coin, err := cat.FindBySymbolOrName(ctx, "symbol", "btc")
	require.NoError(t, err)
	require.NotNil(t, coin)
	assert.Equal(t, 2, counting.findCoinCalls)
}
