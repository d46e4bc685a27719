package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rs/zerolog"

	"github.com/Rann-Studio/TokenGuardAI/internal/models"
	"github.com/Rann-Studio/TokenGuardAI/internal/store"
)

// lookupResult is what the hot cache stores per catalog key
type lookupResult struct {
	coin    *models.Coin
	binding *models.Platform
}

// Catalog exposes read access to the reference coin table. Lookups are exact
// single-key matches against lower-cased keys; when several coins share a
// symbol or name the first match per store iteration order wins. A small
// in-process ristretto cache fronts the store because the catalog only
// changes on periodic syncs, so bounded staleness is acceptable.
type Catalog struct {
	store  store.Store
	cache  *ristretto.Cache[string, lookupResult]
	ttl    time.Duration
	logger zerolog.Logger
}

// New creates a catalog over the given store. The ttl bounds how long hot
// cache entries may lag behind the synchronizer.
func New(st store.Store, ttl time.Duration, logger zerolog.Logger) (*Catalog, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, lookupResult]{
		NumCounters: 100_000,
		MaxCost:     10_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog cache: %w", err)
	}
	return &Catalog{
		store:  st,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With().Str("component", "catalog").Logger(),
	}, nil
}

// FindBySymbolOrName looks up a coin by exact symbol or name match. The
// method must be "symbol" or "name" and the keyword must be lower-cased by
// the caller. Returns nil when no coin matches.
func (c *Catalog) FindBySymbolOrName(ctx context.Context, method, keyword string) (*models.Coin, error) {
	if method != "symbol" && method != "name" {
		return nil, fmt.Errorf("unsupported search method: %s", method)
	}
	key := method + ":" + keyword
	if cached, ok := c.cache.Get(key); ok {
		return cached.coin, nil
	}

	coin, err := c.store.FindCoin(ctx, method, keyword)
	if err != nil {
		return nil, err
	}
	if coin != nil {
		c.cache.SetWithTTL(key, lookupResult{coin: coin}, 1, c.ttl)
	}
	return coin, nil
}

// FindByAddress looks up a platform binding and its owning coin by on-chain
// address. The address must be lower-cased by the caller. Returns nils when
// the address is not in the catalog.
func (c *Catalog) FindByAddress(ctx context.Context, address string) (*models.Platform, *models.Coin, error) {
	key := "address:" + address
	if cached, ok := c.cache.Get(key); ok {
		return cached.binding, cached.coin, nil
	}

	binding, coin, err := c.store.FindPlatform(ctx, address)
	if err != nil {
		return nil, nil, err
	}
	if binding != nil && coin != nil {
		c.cache.SetWithTTL(key, lookupResult{coin: coin, binding: binding}, 1, c.ttl)
	}
	return binding, coin, nil
}

// Coin looks up a catalog entry by its canonical identifier
func (c *Catalog) Coin(ctx context.Context, id string) (*models.Coin, error) {
	key := "id:" + id
	if cached, ok := c.cache.Get(key); ok {
		return cached.coin, nil
	}

	coin, err := c.store.Coin(ctx, id)
	if err != nil {
		return nil, err
	}
	if coin != nil {
		c.cache.SetWithTTL(key, lookupResult{coin: coin}, 1, c.ttl)
	}
	return coin, nil
}

// Close releases the hot cache resources
func (c *Catalog) Close() {
	c.cache.Close()
}
