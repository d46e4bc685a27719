package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/Rann-Studio/TokenGuardAI/internal/models"
)

// Postgres implements Store on top of a pgx connection pool. All writes are
// INSERT ... ON CONFLICT upserts so concurrent writers converge on a
// last-writer-wins state without explicit locking.
type Postgres struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS chat_intents (
	hash        TEXT PRIMARY KEY,
	intent      JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS message_responses (
	hash        TEXT PRIMARY KEY,
	coin_id     TEXT NOT NULL,
	risk        JSONB,
	insight     JSONB,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS chat_answers (
	hash        TEXT PRIMARY KEY,
	answer      TEXT NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS coins (
	id      TEXT PRIMARY KEY,
	symbol  TEXT NOT NULL,
	name    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS coins_symbol_idx ON coins (symbol);
CREATE INDEX IF NOT EXISTS coins_name_idx ON coins (name);
CREATE TABLE IF NOT EXISTS coin_platforms (
	coin_id  TEXT NOT NULL,
	chain    TEXT NOT NULL,
	address  TEXT NOT NULL,
	PRIMARY KEY (coin_id, chain, address)
);
CREATE INDEX IF NOT EXISTS coin_platforms_address_idx ON coin_platforms (address);
CREATE TABLE IF NOT EXISTS coin_markets (
	coin_id     TEXT PRIMARY KEY,
	info        JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
`

// NewPostgres connects to the database and ensures the schema exists
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Intent(ctx context.Context, hash string) (*IntentRecord, error) {
	rec := IntentRecord{Hash: hash}
	var raw []byte
	err := p.pool.QueryRow(ctx,
		`SELECT intent, updated_at FROM chat_intents WHERE hash = $1`, hash,
	).Scan(&raw, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query intent: %w", err)
	}
	if err := json.Unmarshal(raw, &rec.Intent); err != nil {
		return nil, fmt.Errorf("failed to decode cached intent: %w", err)
	}
	return &rec, nil
}

func (p *Postgres) UpsertIntent(ctx context.Context, hash string, intent models.Intent) error {
	raw, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("failed to encode intent: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO chat_intents (hash, intent, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (hash) DO UPDATE SET intent = EXCLUDED.intent, updated_at = EXCLUDED.updated_at`,
		hash, raw, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert intent: %w", err)
	}
	return nil
}

func (p *Postgres) Analysis(ctx context.Context, hash string) (*AnalysisRecord, error) {
	rec := AnalysisRecord{Hash: hash}
	var risk, insight []byte
	err := p.pool.QueryRow(ctx,
		`SELECT coin_id, risk, insight, updated_at FROM message_responses WHERE hash = $1`, hash,
	).Scan(&rec.CoinID, &risk, &insight, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis: %w", err)
	}
	if len(risk) > 0 {
		rec.Risk = &models.Risk{}
		if err := json.Unmarshal(risk, rec.Risk); err != nil {
			return nil, fmt.Errorf("failed to decode cached risk: %w", err)
		}
	}
	if len(insight) > 0 {
		if err := json.Unmarshal(insight, &rec.Insight); err != nil {
			return nil, fmt.Errorf("failed to decode cached insight: %w", err)
		}
	}
	return &rec, nil
}

func (p *Postgres) UpsertAnalysis(ctx context.Context, rec AnalysisRecord) error {
	var risk, insight []byte
	var err error
	if rec.Risk != nil {
		if risk, err = json.Marshal(rec.Risk); err != nil {
			return fmt.Errorf("failed to encode risk: %w", err)
		}
	}
	if rec.Insight != nil {
		if insight, err = json.Marshal(rec.Insight); err != nil {
			return fmt.Errorf("failed to encode insight: %w", err)
		}
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO message_responses (hash, coin_id, risk, insight, updated_at) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (hash) DO UPDATE SET
			coin_id = EXCLUDED.coin_id, risk = EXCLUDED.risk,
			insight = EXCLUDED.insight, updated_at = EXCLUDED.updated_at`,
		rec.Hash, rec.CoinID, risk, insight, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert analysis: %w", err)
	}
	return nil
}

func (p *Postgres) Answer(ctx context.Context, hash string) (*AnswerRecord, error) {
	rec := AnswerRecord{Hash: hash}
	err := p.pool.QueryRow(ctx,
		`SELECT answer, updated_at FROM chat_answers WHERE hash = $1`, hash,
	).Scan(&rec.Text, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query answer: %w", err)
	}
	return &rec, nil
}

func (p *Postgres) UpsertAnswer(ctx context.Context, hash, text string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO chat_answers (hash, answer, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (hash) DO UPDATE SET answer = EXCLUDED.answer, updated_at = EXCLUDED.updated_at`,
		hash, text, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert answer: %w", err)
	}
	return nil
}

func (p *Postgres) Coin(ctx context.Context, id string) (*models.Coin, error) {
	var coin models.Coin
	err := p.pool.QueryRow(ctx,
		`SELECT id, symbol, name FROM coins WHERE id = $1`, id,
	).Scan(&coin.ID, &coin.Symbol, &coin.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query coin: %w", err)
	}
	return &coin, nil
}

func (p *Postgres) FindCoin(ctx context.Context, method, keyword string) (*models.Coin, error) {
	var query string
	switch method {
	case "symbol":
		query = `SELECT id, symbol, name FROM coins WHERE symbol = $1 LIMIT 1`
	case "name":
		query = `SELECT id, symbol, name FROM coins WHERE name = $1 LIMIT 1`
	default:
		return nil, fmt.Errorf("unsupported search method: %s", method)
	}
	var coin models.Coin
	err := p.pool.QueryRow(ctx, query, keyword).Scan(&coin.ID, &coin.Symbol, &coin.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find coin by %s: %w", method, err)
	}
	return &coin, nil
}

func (p *Postgres) FindPlatform(ctx context.Context, address string) (*models.Platform, *models.Coin, error) {
	var binding models.Platform
	var coin models.Coin
	err := p.pool.QueryRow(ctx, `
		SELECT cp.coin_id, cp.chain, cp.address, c.id, c.symbol, c.name
		FROM coin_platforms cp JOIN coins c ON c.id = cp.coin_id
		WHERE cp.address = $1 LIMIT 1`, address,
	).Scan(&binding.CoinID, &binding.Chain, &binding.Address, &coin.ID, &coin.Symbol, &coin.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find platform by address: %w", err)
	}
	return &binding, &coin, nil
}

// UpsertCoinBatch writes one batch of catalog listings in a single
// transaction, keeping a failed batch from leaving partial state behind.
func (p *Postgres) UpsertCoinBatch(ctx context.Context, batch []models.CoinListing) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin batch transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, listing := range batch {
		if _, err := tx.Exec(ctx, `
			INSERT INTO coins (id, symbol, name) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET symbol = EXCLUDED.symbol, name = EXCLUDED.name`,
			listing.ID, listing.Symbol, listing.Name); err != nil {
			return fmt.Errorf("failed to upsert coin %s: %w", listing.ID, err)
		}
		for _, platform := range listing.Platforms {
			if _, err := tx.Exec(ctx, `
				INSERT INTO coin_platforms (coin_id, chain, address) VALUES ($1, $2, $3)
				ON CONFLICT (coin_id, chain, address) DO NOTHING`,
				listing.ID, platform.Chain, platform.Address); err != nil {
				return fmt.Errorf("failed to upsert platform %s/%s: %w", listing.ID, platform.Chain, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func (p *Postgres) Market(ctx context.Context, coinID string) (*MarketRecord, error) {
	rec := MarketRecord{CoinID: coinID}
	var raw []byte
	err := p.pool.QueryRow(ctx,
		`SELECT info, updated_at FROM coin_markets WHERE coin_id = $1 ORDER BY updated_at DESC LIMIT 1`, coinID,
	).Scan(&raw, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query market info: %w", err)
	}
	if err := json.Unmarshal(raw, &rec.Info); err != nil {
		return nil, fmt.Errorf("failed to decode cached market info: %w", err)
	}
	return &rec, nil
}

func (p *Postgres) UpsertMarket(ctx context.Context, coinID string, info models.MarketInfo) (*MarketRecord, error) {
	raw, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("failed to encode market info: %w", err)
	}
	now := time.Now()
	_, err = p.pool.Exec(ctx, `
		INSERT INTO coin_markets (coin_id, info, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (coin_id) DO UPDATE SET info = EXCLUDED.info, updated_at = EXCLUDED.updated_at`,
		coinID, raw, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert market info: %w", err)
	}
	return &MarketRecord{CoinID: coinID, Info: info, UpdatedAt: now}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}
