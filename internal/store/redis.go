package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Rann-Studio/TokenGuardAI/internal/models"
)

// Key patterns for the Redis store
const (
	intentKeyPattern   = "tokenguard:intent:%s"      // tokenguard:intent:<hash>
	analysisKeyPattern = "tokenguard:analysis:%s"    // tokenguard:analysis:<hash>
	answerKeyPattern   = "tokenguard:answer:%s"      // tokenguard:answer:<hash>
	coinKeyPattern     = "tokenguard:coin:%s"        // tokenguard:coin:<id>
	symbolKeyPattern   = "tokenguard:coin-symbol:%s" // tokenguard:coin-symbol:<symbol> -> id
	nameKeyPattern     = "tokenguard:coin-name:%s"   // tokenguard:coin-name:<name> -> id
	platformKeyPattern = "tokenguard:platform:%s"    // tokenguard:platform:<address>
	marketKeyPattern   = "tokenguard:market:%s"      // tokenguard:market:<coin id>
)

// Redis implements Store on a Redis server. Records are stored as JSON
// values without server-side expiry: freshness is decided by the caller from
// the embedded timestamps, and stale rows are kept for history. Symbol and
// name lookups go through SET NX index keys so the first ingested match for
// a keyword stays stable across repeated syncs.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an existing Redis client as a Store
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) getJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (r *Redis) setJSON(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Intent(ctx context.Context, hash string) (*IntentRecord, error) {
	var rec IntentRecord
	ok, err := r.getJSON(ctx, fmt.Sprintf(intentKeyPattern, hash), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

func (r *Redis) UpsertIntent(ctx context.Context, hash string, intent models.Intent) error {
	rec := IntentRecord{Hash: hash, Intent: intent, UpdatedAt: time.Now()}
	return r.setJSON(ctx, fmt.Sprintf(intentKeyPattern, hash), rec)
}

func (r *Redis) Analysis(ctx context.Context, hash string) (*AnalysisRecord, error) {
	var rec AnalysisRecord
	ok, err := r.getJSON(ctx, fmt.Sprintf(analysisKeyPattern, hash), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

func (r *Redis) UpsertAnalysis(ctx context.Context, rec AnalysisRecord) error {
	rec.UpdatedAt = time.Now()
	return r.setJSON(ctx, fmt.Sprintf(analysisKeyPattern, rec.Hash), rec)
}

func (r *Redis) Answer(ctx context.Context, hash string) (*AnswerRecord, error) {
	var rec AnswerRecord
	ok, err := r.getJSON(ctx, fmt.Sprintf(answerKeyPattern, hash), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

func (r *Redis) UpsertAnswer(ctx context.Context, hash, text string) error {
	rec := AnswerRecord{Hash: hash, Text: text, UpdatedAt: time.Now()}
	return r.setJSON(ctx, fmt.Sprintf(answerKeyPattern, hash), rec)
}

func (r *Redis) Coin(ctx context.Context, id string) (*models.Coin, error) {
	var coin models.Coin
	ok, err := r.getJSON(ctx, fmt.Sprintf(coinKeyPattern, id), &coin)
	if err != nil || !ok {
		return nil, err
	}
	return &coin, nil
}

func (r *Redis) FindCoin(ctx context.Context, method, keyword string) (*models.Coin, error) {
	var indexKey string
	switch method {
	case "symbol":
		indexKey = fmt.Sprintf(symbolKeyPattern, keyword)
	case "name":
		indexKey = fmt.Sprintf(nameKeyPattern, keyword)
	default:
		return nil, fmt.Errorf("unsupported search method: %s", method)
	}
	id, err := r.client.Get(ctx, indexKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", indexKey, err)
	}
	return r.Coin(ctx, id)
}

func (r *Redis) FindPlatform(ctx context.Context, address string) (*models.Platform, *models.Coin, error) {
	var binding models.Platform
	ok, err := r.getJSON(ctx, fmt.Sprintf(platformKeyPattern, address), &binding)
	if err != nil || !ok {
		return nil, nil, err
	}
	coin, err := r.Coin(ctx, binding.CoinID)
	if err != nil {
		return nil, nil, err
	}
	if coin == nil {
		return nil, nil, nil
	}
	return &binding, coin, nil
}

// UpsertCoinBatch writes one batch of catalog listings atomically via a
// MULTI/EXEC pipeline. Index keys use SET NX so re-ingesting a listing is a
// no-op and the first match for a shared symbol or name stays stable.
func (r *Redis) UpsertCoinBatch(ctx context.Context, batch []models.CoinListing) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, listing := range batch {
			coin := models.Coin{ID: listing.ID, Symbol: listing.Symbol, Name: listing.Name}
			raw, err := json.Marshal(coin)
			if err != nil {
				return fmt.Errorf("failed to encode coin %s: %w", listing.ID, err)
			}
			pipe.Set(ctx, fmt.Sprintf(coinKeyPattern, listing.ID), raw, 0)
			pipe.SetNX(ctx, fmt.Sprintf(symbolKeyPattern, listing.Symbol), listing.ID, 0)
			pipe.SetNX(ctx, fmt.Sprintf(nameKeyPattern, listing.Name), listing.ID, 0)
			for _, platform := range listing.Platforms {
				binding := models.Platform{CoinID: listing.ID, Chain: platform.Chain, Address: platform.Address}
				rawBinding, err := json.Marshal(binding)
				if err != nil {
					return fmt.Errorf("failed to encode platform %s/%s: %w", listing.ID, platform.Chain, err)
				}
				pipe.SetNX(ctx, fmt.Sprintf(platformKeyPattern, platform.Address), rawBinding, 0)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert coin batch: %w", err)
	}
	return nil
}

func (r *Redis) Market(ctx context.Context, coinID string) (*MarketRecord, error) {
	var rec MarketRecord
	ok, err := r.getJSON(ctx, fmt.Sprintf(marketKeyPattern, coinID), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

func (r *Redis) UpsertMarket(ctx context.Context, coinID string, info models.MarketInfo) (*MarketRecord, error) {
	rec := MarketRecord{CoinID: coinID, Info: info, UpdatedAt: time.Now()}
	if err := r.setJSON(ctx, fmt.Sprintf(marketKeyPattern, coinID), rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Redis) Close() {
	_ = r.client.Close()
}
