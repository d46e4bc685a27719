package engine

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/Rann-Studio/TokenGuardAI/internal/cache"
	"github.com/Rann-Studio/TokenGuardAI/internal/catalog"
	"github.com/Rann-Studio/TokenGuardAI/internal/llm"
	"github.com/Rann-Studio/TokenGuardAI/internal/models"
	"github.com/Rann-Studio/TokenGuardAI/internal/store"
)

// MarketFetcher fetches market statistics for one coin from upstream
type MarketFetcher interface {
	FetchMarketInfo(ctx context.Context, coinID string) (*models.MarketInfo, error)
}

// Engine resolves classified intents against the tiered cache: fingerprint
// cache first, then coin catalog and market info cache, then the upstream
// market API and the generator on a miss. Every write is an upsert and every
// branch returns a tagged result, never an error.
type Engine struct {
	store     store.Store
	catalog   *catalog.Catalog
	markets   MarketFetcher
	generator llm.Generator
	policy    cache.Policy

	// group coalesces concurrent resolutions of the same fingerprint so a
	// cache-miss race costs one upstream round trip instead of several
	group  singleflight.Group
	logger zerolog.Logger
	tracer trace.Tracer
}

// New creates a resolution engine
func New(st store.Store, cat *catalog.Catalog, markets MarketFetcher, generator llm.Generator, policy cache.Policy, logger zerolog.Logger) *Engine {
	return &Engine{
		store:     st,
		catalog:   cat,
		markets:   markets,
		generator: generator,
		policy:    policy,
		logger:    logger.With().Str("component", "engine").Logger(),
		tracer:    otel.Tracer("tokenguard/engine"),
	}
}

// Resolve dispatches one classified intent to its branch. Concurrent calls
// for the same kind and fingerprint share a single resolution; the
// singleflight entry is released on completion so later queries retry
// independently.
func (e *Engine) Resolve(ctx context.Context, intent models.Intent, hash string) *models.Result {
	ctx, span := e.tracer.Start(ctx, "engine.Resolve",
		trace.WithAttributes(attribute.String("intent.kind", string(intent.Kind))))
	defer span.End()

	key := string(intent.Kind) + ":" + hash
	result, _, _ := e.group.Do(key, func() (interface{}, error) {
		return e.resolve(ctx, intent, hash), nil
	})
	return result.(*models.Result)
}

func (e *Engine) resolve(ctx context.Context, intent models.Intent, hash string) *models.Result {
	switch intent.Kind {
	case models.IntentAnalyze:
		return e.resolveAnalyze(ctx, intent, hash)
	case models.IntentPrice:
		return e.resolvePrice(ctx, intent, hash)
	case models.IntentMarketcap:
		return e.resolveMarketcap(ctx, intent, hash)
	case models.IntentAsk:
		return e.resolveAsk(ctx, intent, hash)
	default:
		return &models.Result{
			StatusCode: http.StatusUnprocessableEntity,
			Error:      "Unprocessable Entity",
			Message:    "I'm sorry, I don't understand your request. Please ask me something related to cryptocurrency, such as 'What is the price of Bitcoin?' or 'What is the market cap of Ethereum?'",
		}
	}
}

// resolveAnalyze handles the analyze branch: catalog lookup by address,
// fingerprint cache check, market info refresh, then generator invocation.
func (e *Engine) resolveAnalyze(ctx context.Context, intent models.Intent, hash string) *models.Result {
	if intent.Address == "" {
		return &models.Result{
			StatusCode: http.StatusBadRequest,
			Error:      "Bad Request",
			Message:    "Sorry, I can't analyze this token. Please provide a valid address.",
		}
	}
	address := strings.ToLower(intent.Address)

	notFound := &models.Result{
		StatusCode: http.StatusNotFound,
		Error:      "Not Found",
		Message:    "Sorry, I can't analyze this token. The address you provided is not available in our database.",
	}

	cached, err := e.store.Analysis(ctx, hash)
	if err != nil {
		e.logger.Error().Err(err).Str("hash", hash).Msg("analysis cache lookup failed")
	}
	if cached != nil && cached.Risk != nil && e.policy.Fresh(cached.UpdatedAt) {
		// Coin display metadata is never cached in the fingerprint
		// payload; re-resolve it fresh from the catalog.
		binding, coin, err := e.catalog.FindByAddress(ctx, address)
		if err != nil {
			e.logger.Error().Err(err).Str("address", address).Msg("catalog lookup failed")
			return notFound
		}
		if binding == nil {
			return notFound
		}
		market, err := e.store.Market(ctx, cached.CoinID)
		if err != nil {
			e.logger.Error().Err(err).Str("coin_id", cached.CoinID).Msg("market cache lookup failed")
		}
		if market != nil {
			return &models.Result{
				StatusCode: http.StatusOK,
				Message:    "Analysis completed",
				Data: models.AnalyzeData{
					Code: models.CodeAnalyze,
					Coin: models.CoinRef{
						Name:     coin.Name,
						Symbol:   coin.Symbol,
						Platform: binding.Chain,
						Address:  binding.Address,
					},
					Market:  market.Info.View(),
					Risk:    *cached.Risk,
					Insight: cached.Insight,
				},
			}
		}
		// cached analysis without market info falls through to a refetch
	}

	binding, coin, err := e.catalog.FindByAddress(ctx, address)
	if err != nil {
		e.logger.Error().Err(err).Str("address", address).Msg("catalog lookup failed")
		return notFound
	}
	if binding == nil {
		return notFound
	}

	market, result := e.freshMarket(ctx, binding.CoinID, notFound)
	if result != nil {
		return result
	}

	analysis, err := e.generator.GenerateAnalysis(ctx, models.AnalysisInput{
		Name:        coin.Name,
		Symbol:      coin.Symbol,
		Chain:       binding.Chain,
		FDV:         market.Info.FDV,
		Price:       market.Info.Price,
		MarketCap:   market.Info.MarketCap,
		Supply:      market.Info.Supply,
		AllTimeHigh: market.Info.AllTimeHigh,
		AllTimeLow:  market.Info.AllTimeLow,
	})
	if err != nil {
		e.logger.Error().Err(err).Str("coin_id", binding.CoinID).Msg("analysis generation failed")
		return &models.Result{
			StatusCode: http.StatusInternalServerError,
			Error:      "Internal Server Error",
			Message:    "Analysis failed. Please try again later.",
		}
	}

	if err := e.store.UpsertAnalysis(ctx, store.AnalysisRecord{
		Hash:    hash,
		CoinID:  binding.CoinID,
		Risk:    &analysis.Risk,
		Insight: analysis.Insight,
	}); err != nil {
		e.logger.Error().Err(err).Str("hash", hash).Msg("failed to persist analysis")
	}

	return &models.Result{
		StatusCode: http.StatusOK,
		Message:    "Analysis completed",
		Data: models.AnalyzeData{
			Code: models.CodeAnalyze,
			Coin: models.CoinRef{
				Name:     coin.Name,
				Symbol:   coin.Symbol,
				Platform: binding.Chain,
				Address:  binding.Address,
			},
			Market:  market.Info.View(),
			Risk:    analysis.Risk,
			Insight: analysis.Insight,
		},
	}
}

// resolvePrice handles the price branch through the three-tier ladder:
// fingerprint cache, market info cache, upstream fetch.
func (e *Engine) resolvePrice(ctx context.Context, intent models.Intent, hash string) *models.Result {
	coin, market, result := e.resolveMarket(ctx, intent, hash,
		"Sorry, I can't get the price for this token. Please provide a valid symbol or name.",
		"Sorry, I can't get the price for this token. The symbol or name you provided is not available in our database.")
	if result != nil {
		return result
	}
	return &models.Result{
		StatusCode: http.StatusOK,
		Message:    "Get price successfully",
		Data: models.PriceData{
			Code:  models.CodePrice,
			Coin:  models.CoinRef{Name: coin.Name, Symbol: coin.Symbol},
			Price: market.Info.Price,
		},
	}
}

// resolveMarketcap mirrors resolvePrice but projects the market cap fields
func (e *Engine) resolveMarketcap(ctx context.Context, intent models.Intent, hash string) *models.Result {
	coin, market, result := e.resolveMarket(ctx, intent, hash,
		"Sorry, I can't get the marketcap for this token. Please provide a valid symbol or name.",
		"Sorry, I can't get the marketcap for this token. The symbol or name you provided is not available in our database.")
	if result != nil {
		return result
	}
	return &models.Result{
		StatusCode: http.StatusOK,
		Message:    "Get marketcap successfully",
		Data: models.MarketcapData{
			Code:      models.CodeMarketcap,
			Coin:      models.CoinRef{Name: coin.Name, Symbol: coin.Symbol},
			MarketCap: market.Info.MarketCap,
		},
	}
}

// resolveMarket runs the shared price/marketcap resolution ladder. It
// returns either a coin with a market record, or a terminal result.
func (e *Engine) resolveMarket(ctx context.Context, intent models.Intent, hash, badRequestMsg, notFoundMsg string) (*models.Coin, *store.MarketRecord, *models.Result) {
	// Input validation happens before any store or upstream interaction
	method, keyword := intent.SearchMethod()
	if method == "" {
		return nil, nil, &models.Result{
			StatusCode: http.StatusBadRequest,
			Error:      "Bad Request",
			Message:    badRequestMsg,
		}
	}

	notFound := &models.Result{
		StatusCode: http.StatusNotFound,
		Error:      "Not Found",
		Message:    notFoundMsg,
	}

	// Tier 1: a prior resolution of this exact query already pinned a coin
	cached, err := e.store.Analysis(ctx, hash)
	if err != nil {
		e.logger.Error().Err(err).Str("hash", hash).Msg("fingerprint cache lookup failed")
	}
	if cached != nil && cached.CoinID != "" && e.policy.Fresh(cached.UpdatedAt) {
		coin, err := e.catalog.Coin(ctx, cached.CoinID)
		if err != nil {
			e.logger.Error().Err(err).Str("coin_id", cached.CoinID).Msg("catalog lookup failed")
			return nil, nil, notFound
		}
		if coin == nil {
			return nil, nil, notFound
		}
		market, err := e.store.Market(ctx, cached.CoinID)
		if err != nil {
			e.logger.Error().Err(err).Str("coin_id", cached.CoinID).Msg("market cache lookup failed")
		}
		if market != nil {
			return coin, market, nil
		}
		// fingerprint hit without a market record falls through to tier 2
	}

	coin, err := e.catalog.FindBySymbolOrName(ctx, method, keyword)
	if err != nil {
		e.logger.Error().Err(err).Str("method", method).Str("keyword", keyword).Msg("catalog lookup failed")
		return nil, nil, notFound
	}
	if coin == nil {
		return nil, nil, notFound
	}

	// Tier 2: per-coin market cache; tier 3: upstream fetch on miss
	market, result := e.freshMarket(ctx, coin.ID, notFound)
	if result != nil {
		return nil, nil, result
	}

	// Minimal fingerprint marker so future identical queries hit tier 1
	if err := e.store.UpsertAnalysis(ctx, store.AnalysisRecord{Hash: hash, CoinID: coin.ID}); err != nil {
		e.logger.Error().Err(err).Str("hash", hash).Msg("failed to persist fingerprint marker")
	}

	return coin, market, nil
}

// freshMarket returns a fresh market record for the coin, fetching from
// upstream and writing through the cache when the stored record is stale or
// absent. Fetch failure is masked as the provided not-found result: the user
// sees data unavailable, operators get the logged error.
func (e *Engine) freshMarket(ctx context.Context, coinID string, notFound *models.Result) (*store.MarketRecord, *models.Result) {
	market, err := e.store.Market(ctx, coinID)
	if err != nil {
		e.logger.Error().Err(err).Str("coin_id", coinID).Msg("market cache lookup failed")
	}
	if market != nil && e.policy.Fresh(market.UpdatedAt) {
		return market, nil
	}

	info, err := e.markets.FetchMarketInfo(ctx, coinID)
	if err != nil {
		e.logger.Error().Err(err).Str("coin_id", coinID).Msg("upstream market fetch failed")
		return nil, notFound
	}

	market, err = e.store.UpsertMarket(ctx, coinID, *info)
	if err != nil {
		e.logger.Error().Err(err).Str("coin_id", coinID).Msg("failed to persist market info")
		return nil, notFound
	}
	return market, nil
}

// resolveAsk handles the ask branch: fingerprint cache of prior answers,
// then the answer generator.
func (e *Engine) resolveAsk(ctx context.Context, intent models.Intent, hash string) *models.Result {
	if intent.Query == "" {
		return &models.Result{
			StatusCode: http.StatusBadRequest,
			Error:      "Bad Request",
			Message:    "Sorry, I can't answer this question. Please provide a valid question.",
		}
	}

	cached, err := e.store.Answer(ctx, hash)
	if err != nil {
		e.logger.Error().Err(err).Str("hash", hash).Msg("answer cache lookup failed")
	}
	if cached != nil && e.policy.Fresh(cached.UpdatedAt) {
		return &models.Result{
			StatusCode: http.StatusOK,
			Message:    "Answer from AI",
			Data:       models.AskData{Code: models.CodeAsk, Text: cached.Text},
		}
	}

	answer, err := e.generator.GenerateAnswer(ctx, intent.Query)
	if err != nil {
		e.logger.Error().Err(err).Msg("answer generation failed")
		return &models.Result{
			StatusCode: http.StatusInternalServerError,
			Error:      "Internal Server Error",
			Message:    "Answer failed. Please try again later.",
		}
	}

	if err := e.store.UpsertAnswer(ctx, hash, answer.Text); err != nil {
		e.logger.Error().Err(err).Str("hash", hash).Msg("failed to persist answer")
	}

	return &models.Result{
		StatusCode: http.StatusOK,
		Message:    "Answer from AI",
		Data:       models.AskData{Code: models.CodeAsk, Text: answer.Text},
	}
}
