package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rann-Studio/TokenGuardAI/internal/models"
)

func testBatch() []models.CoinListing {
	return []models.CoinListing{
		{
			ID:     "bitcoin",
			Symbol: "btc",
			Name:   "bitcoin",
		},
		{
			ID:     "ethereum",
			Symbol: "eth",
			Name:   "ethereum",
			Platforms: []models.Platform{
				{Chain: "ethereum", Address: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"},
			},
		},
		{
			ID:     "wrapped-bitcoin",
			Symbol: "wbtc",
			Name:   "wrapped bitcoin",
			Platforms: []models.Platform{
				{Chain: "ethereum", Address: "0x2260fac5e5542a773aa44fbcfedf7c193bc2c599"},
				{Chain: "polygon-pos", Address: "0x1bfd67037b42cf73acf2047067bd4f2c47d9bfd6"},
			},
		},
	}
}

func TestMemoryFingerprintCaches(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	t.Run("intent roundtrip", func(t *testing.T) {
		hash := "aaaa"
		rec, err := m.Intent(ctx, hash)
		require.NoError(t, err)
		assert.Nil(t, rec, "missing key should return nil record")

		intent := models.Intent{Kind: models.IntentPrice, Symbol: "btc"}
		require.NoError(t, m.UpsertIntent(ctx, hash, intent))

		rec, err = m.Intent(ctx, hash)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, intent, rec.Intent)
		assert.False(t, rec.UpdatedAt.IsZero())
	})

	t.Run("analysis roundtrip", func(t *testing.T) {
		hash := "bbbb"
		require.NoError(t, m.UpsertAnalysis(ctx, AnalysisRecord{
			Hash:    hash,
			CoinID:  "ethereum",
			Risk:    &models.Risk{Score: 12, Explanation: "established asset"},
			Insight: []string{"high liquidity"},
		}))

		rec, err := m.Analysis(ctx, hash)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, "ethereum", rec.CoinID)
		require.NotNil(t, rec.Risk)
		assert.Equal(t, 12, rec.Risk.Score)
	})

	t.Run("upsert overwrites", func(t *testing.T) {
		hash := "cccc"
		require.NoError(t, m.UpsertAnswer(ctx, hash, "first"))
		require.NoError(t, m.UpsertAnswer(ctx, hash, "second"))

		rec, err := m.Answer(ctx, hash)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, "second", rec.Text)
	})
}

func TestMemoryCoinCatalog(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.UpsertCoinBatch(ctx, testBatch()))

	t.Run("lookup by id", func(t *testing.T) {
		coin, err := m.Coin(ctx, "ethereum")
		require.NoError(t, err)
		require.NotNil(t, coin)
		assert.Equal(t, "eth", coin.Symbol)
	})

	t.Run("lookup by symbol", func(t *testing.T) {
		coin, err := m.FindCoin(ctx, "symbol", "wbtc")
		require.NoError(t, err)
		require.NotNil(t, coin)
		assert.Equal(t, "wrapped-bitcoin", coin.ID)
	})

	t.Run("lookup by name", func(t *testing.T) {
		coin, err := m.FindCoin(ctx, "name", "wrapped bitcoin")
		require.NoError(t, err)
		require.NotNil(t, coin)
		assert.Equal(t, "wrapped-bitcoin", coin.ID)
	})

	t.Run("unknown keyword returns nil", func(t *testing.T) {
		coin, err := m.FindCoin(ctx, "symbol", "doesnotexist")
		require.NoError(t, err)
		assert.Nil(t, coin)
	})

	t.Run("lookup by address", func(t *testing.T) {
		binding, coin, err := m.FindPlatform(ctx, "0x2260fac5e5542a773aa44fbcfedf7c193bc2c599")
		require.NoError(t, err)
		require.NotNil(t, binding)
		require.NotNil(t, coin)
		assert.Equal(t, "ethereum", binding.Chain)
		assert.Equal(t, "wrapped-bitcoin", coin.ID)
	})

	t.Run("unknown address returns nil", func(t *testing.T) {
		binding, coin, err := m.FindPlatform(ctx, "0xdead")
		require.NoError(t, err)
		assert.Nil(t, binding)
		assert.Nil(t, coin)
	})
}

func TestMemoryFirstMatchWins(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	// Two listings share the symbol; the earlier ingested one must win
	require.NoError(t, m.UpsertCoinBatch(ctx, []models.CoinListing{
		{ID: "usd-coin", Symbol: "usdc", Name: "usdc"},
		{ID: "bridged-usdc", Symbol: "usdc", Name: "bridged usdc"},
	}))

	coin, err := m.FindCoin(ctx, "symbol", "usdc")
	require.NoError(t, err)
	require.NotNil(t, coin)
	assert.Equal(t, "usd-coin", coin.ID)
}

func TestMemoryBatchIdempotence(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	batch := testBatch()

	require.NoError(t, m.UpsertCoinBatch(ctx, batch))
	require.NoError(t, m.UpsertCoinBatch(ctx, batch))

	// Re-ingesting must not duplicate platform bindings
	binding, coin, err := m.FindPlatform(ctx, "0x1bfd67037b42cf73acf2047067bd4f2c47d9bfd6")
	require.NoError(t, err)
	require.NotNil(t, binding)
	assert.Equal(t, "wrapped-bitcoin", coin.ID)
	assert.Len(t, m.platforms, 3)
}

func TestMemoryMarketCache(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	rec, err := m.Market(ctx, "bitcoin")
	require.NoError(t, err)
	assert.Nil(t, rec)

	price := 61234.5
	info := models.MarketInfo{Price: models.Price{CurrentPrice: &price}}
	written, err := m.UpsertMarket(ctx, "bitcoin", info)
	require.NoError(t, err)
	require.NotNil(t, written)
	assert.False(t, written.UpdatedAt.IsZero())

	rec, err = m.Market(ctx, "bitcoin")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.NotNil(t, rec.Info.Price.CurrentPrice)
	assert.Equal(t, price, *rec.Info.Price.CurrentPrice)
}

func TestMemoryClock(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	frozen := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return frozen })

	require.NoError(t, m.UpsertAnswer(ctx, "dddd", "hello"))
	rec, err := m.Answer(ctx, "dddd")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.UpdatedAt.Equal(frozen))
}
