package store

import (
	"context"
	"time"

	"github.com/Rann-Studio/TokenGuardAI/internal/models"
)

// IntentRecord caches a classified intent keyed by the query fingerprint
type IntentRecord struct {
	Hash      string        `json:"hash"`
	Intent    models.Intent `json:"intent"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// AnalysisRecord caches the outcome of a resolution keyed by the query
// fingerprint. For price/marketcap resolutions only CoinID is set; for
// analyze resolutions Risk and Insight carry the generator output.
type AnalysisRecord struct {
	Hash      string       `json:"hash"`
	CoinID    string       `json:"coin_id"`
	Risk      *models.Risk `json:"risk,omitempty"`
	Insight   []string     `json:"insight,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// AnswerRecord caches a free-text chat answer keyed by the query fingerprint
type AnswerRecord struct {
	Hash      string    `json:"hash"`
	Text      string    `json:"text"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MarketRecord is the cached market statistics for one coin
type MarketRecord struct {
	CoinID    string            `json:"coin_id"`
	Info      models.MarketInfo `json:"info"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Store is the persistent backend shared by the resolution engine and the
// catalog synchronizer. Every lookup returns (nil, nil) when the key is
// absent; every write is an idempotent upsert, safe under concurrent
// writers. Implementations: Postgres, Redis, and an in-memory store for
// tests and development.
type Store interface {
	// Fingerprint caches
	Intent(ctx context.Context, hash string) (*IntentRecord, error)
	UpsertIntent(ctx context.Context, hash string, intent models.Intent) error
	Analysis(ctx context.Context, hash string) (*AnalysisRecord, error)
	UpsertAnalysis(ctx context.Context, rec AnalysisRecord) error
	Answer(ctx context.Context, hash string) (*AnswerRecord, error)
	UpsertAnswer(ctx context.Context, hash, text string) error

	// Coin catalog. FindCoin matches on exactly one of method "symbol" or
	// "name"; first match per store iteration order wins. Keys are stored
	// lower-cased and must be queried lower-cased.
	Coin(ctx context.Context, id string) (*models.Coin, error)
	FindCoin(ctx context.Context, method, keyword string) (*models.Coin, error)
	FindPlatform(ctx context.Context, address string) (*models.Platform, *models.Coin, error)

	// UpsertCoinBatch atomically upserts a batch of catalog listings and
	// their platform bindings in one transaction.
	UpsertCoinBatch(ctx context.Context, batch []models.CoinListing) error

	// Market info cache; Market returns the most recently updated record
	Market(ctx context.Context, coinID string) (*MarketRecord, error)
	UpsertMarket(ctx context.Context, coinID string, info models.MarketInfo) (*MarketRecord, error)

	Close()
}
