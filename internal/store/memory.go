package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Rann-Studio/TokenGuardAI/internal/models"
)

// Memory is an in-process Store used by tests and as a development fallback
// when no DATABASE_URL or REDIS_URL is configured. Catalog lookups scan in
// insertion order so first-match-wins behaves like the SQL implementation.
type Memory struct {
	mu        sync.RWMutex
	intents   map[string]IntentRecord
	analyses  map[string]AnalysisRecord
	answers   map[string]AnswerRecord
	coins     map[string]models.Coin
	coinOrder []string
	platforms []models.Platform
	markets   map[string]MarketRecord

	// now is swappable for tests
	now func() time.Time
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		intents:  make(map[string]IntentRecord),
		analyses: make(map[string]AnalysisRecord),
		answers:  make(map[string]AnswerRecord),
		coins:    make(map[string]models.Coin),
		markets:  make(map[string]MarketRecord),
		now:      time.Now,
	}
}

// SetClock overrides the store clock, for freshness tests
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) Intent(ctx context.Context, hash string) (*IntentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec, ok := m.intents[hash]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (m *Memory) UpsertIntent(ctx context.Context, hash string, intent models.Intent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intents[hash] = IntentRecord{Hash: hash, Intent: intent, UpdatedAt: m.now()}
	return nil
}

func (m *Memory) Analysis(ctx context.Context, hash string) (*AnalysisRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec, ok := m.analyses[hash]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (m *Memory) UpsertAnalysis(ctx context.Context, rec AnalysisRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.UpdatedAt = m.now()
	m.analyses[rec.Hash] = rec
	return nil
}

func (m *Memory) Answer(ctx context.Context, hash string) (*AnswerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec, ok := m.answers[hash]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (m *Memory) UpsertAnswer(ctx context.Context, hash, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers[hash] = AnswerRecord{Hash: hash, Text: text, UpdatedAt: m.now()}
	return nil
}

func (m *Memory) Coin(ctx context.Context, id string) (*models.Coin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if coin, ok := m.coins[id]; ok {
		return &coin, nil
	}
	return nil, nil
}

func (m *Memory) FindCoin(ctx context.Context, method, keyword string) (*models.Coin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.coinOrder {
		coin := m.coins[id]
		switch method {
		case "symbol":
			if coin.Symbol == keyword {
				return &coin, nil
			}
		case "name":
			if coin.Name == keyword {
				return &coin, nil
			}
		}
	}
	return nil, nil
}

func (m *Memory) FindPlatform(ctx context.Context, address string) (*models.Platform, *models.Coin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.platforms {
		if p.Address == address {
			coin, ok := m.coins[p.CoinID]
			if !ok {
				return nil, nil, nil
			}
			binding := p
			return &binding, &coin, nil
		}
	}
	return nil, nil, nil
}

func (m *Memory) UpsertCoinBatch(ctx context.Context, batch []models.CoinListing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, listing := range batch {
		id := strings.ToLower(listing.ID)
		if _, exists := m.coins[id]; !exists {
			m.coinOrder = append(m.coinOrder, id)
		}
		m.coins[id] = models.Coin{ID: id, Symbol: listing.Symbol, Name: listing.Name}
		for _, p := range listing.Platforms {
			m.upsertPlatform(models.Platform{CoinID: id, Chain: p.Chain, Address: p.Address})
		}
	}
	return nil
}

// upsertPlatform keeps the (coin, chain, address) triple unique
func (m *Memory) upsertPlatform(binding models.Platform) {
	for _, p := range m.platforms {
		if p.CoinID == binding.CoinID && p.Chain == binding.Chain && p.Address == binding.Address {
			return
		}
	}
	m.platforms = append(m.platforms, binding)
}

func (m *Memory) Market(ctx context.Context, coinID string) (*MarketRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec, ok := m.markets[coinID]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (m *Memory) UpsertMarket(ctx context.Context, coinID string, info models.MarketInfo) (*MarketRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := MarketRecord{CoinID: coinID, Info: info, UpdatedAt: m.now()}
	m.markets[coinID] = rec
	return &rec, nil
}

func (m *Memory) Close() {}
