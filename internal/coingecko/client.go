package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Rann-Studio/TokenGuardAI/internal/models"
)

// DefaultBaseURL is the public CoinGecko API endpoint
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

// Client centralizes all CoinGecko API interactions
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
	tracer     trace.Tracer
}

// coinListEntry is the wire shape of one /coins/list entry
type coinListEntry struct {
	ID        string            `json:"id"`
	Symbol    string            `json:"symbol"`
	Name      string            `json:"name"`
	Platforms map[string]string `json:"platforms"`
}

// marketEntry is the wire shape of one /coins/markets entry
type marketEntry struct {
	FullyDilutedValuation    *float64 `json:"fully_diluted_valuation"`
	CurrentPrice             *float64 `json:"current_price"`
	High24h                  *float64 `json:"high_24h"`
	Low24h                   *float64 `json:"low_24h"`
	PriceChange24h           *float64 `json:"price_change_24h"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
	MarketCap                *float64 `json:"market_cap"`
	MarketCapRank            *float64 `json:"market_cap_rank"`
	MarketCapChange24h       *float64 `json:"market_cap_change_24h"`
	MarketCapChangePct24h    *float64 `json:"market_cap_change_percentage_24h"`
	CirculatingSupply        *float64 `json:"circulating_supply"`
	TotalSupply              *float64 `json:"total_supply"`
	MaxSupply                *float64 `json:"max_supply"`
	ATH                      *float64 `json:"ath"`
	ATHChangePercentage      *float64 `json:"ath_change_percentage"`
	ATHDate                  string   `json:"ath_date"`
	ATL                      *float64 `json:"atl"`
	ATLChangePercentage      *float64 `json:"atl_change_percentage"`
	ATLDate                  string   `json:"atl_date"`
}

// NewClient creates a new CoinGecko client. An empty baseURL selects the
// public API endpoint.
func NewClient(baseURL, apiKey string, logger zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With().Str("component", "coingecko").Logger(),
		tracer: otel.Tracer("tokenguard/coingecko"),
	}
}

// FetchCoinList fetches the full upstream coin listing with platform
// bindings. Every id, symbol, name, chain and address is lower-cased before
// being returned so catalog keys compare case-insensitively by construction.
func (c *Client) FetchCoinList(ctx context.Context) ([]models.CoinListing, error) {
	ctx, span := c.tracer.Start(ctx, "coingecko.FetchCoinList")
	defer span.End()

	body, err := c.makeRequest(ctx, c.baseURL+"/coins/list?include_platform=true")
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to fetch coin list")
		return nil, err
	}

	var entries []coinListEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		c.logger.Error().Err(err).Msg("failed to parse coin list response")
		return nil, fmt.Errorf("failed to parse coin list response: %w", err)
	}

	listings := make([]models.CoinListing, 0, len(entries))
	for _, entry := range entries {
		listing := models.CoinListing{
			ID:     strings.ToLower(entry.ID),
			Symbol: strings.ToLower(entry.Symbol),
			Name:   strings.ToLower(entry.Name),
		}
		for chain, address := range entry.Platforms {
			listing.Platforms = append(listing.Platforms, models.Platform{
				CoinID:  listing.ID,
				Chain:   strings.ToLower(chain),
				Address: strings.ToLower(address),
			})
		}
		listings = append(listings, listing)
	}

	span.SetAttributes(attribute.Int("coins.count", len(listings)))
	return listings, nil
}

// FetchMarketInfo fetches USD market statistics for one coin. An empty
// upstream result is an error: the caller treats it as data unavailable.
func (c *Client) FetchMarketInfo(ctx context.Context, coinID string) (*models.MarketInfo, error) {
	ctx, span := c.tracer.Start(ctx, "coingecko.FetchMarketInfo",
		trace.WithAttributes(attribute.String("coin.id", coinID)))
	defer span.End()

	endpoint := fmt.Sprintf("%s/coins/markets?vs_currency=usd&ids=%s", c.baseURL, url.QueryEscape(coinID))
	body, err := c.makeRequest(ctx, endpoint)
	if err != nil {
		c.logger.Error().Err(err).Str("coin_id", coinID).Msg("failed to fetch market info")
		return nil, err
	}

	var entries []marketEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		c.logger.Error().Err(err).Str("coin_id", coinID).Msg("failed to parse market info response")
		return nil, fmt.Errorf("failed to parse market info response: %w", err)
	}
	if len(entries) == 0 {
		c.logger.Warn().Str("coin_id", coinID).Msg("no market info found")
		return nil, fmt.Errorf("no market info found for coin %s", coinID)
	}

	entry := entries[0]
	info := &models.MarketInfo{
		FDV: entry.FullyDilutedValuation,
		Price: models.Price{
			CurrentPrice:             entry.CurrentPrice,
			HighPrice24h:             entry.High24h,
			LowPrice24h:              entry.Low24h,
			PriceChange24h:           entry.PriceChange24h,
			PriceChangePercentage24h: entry.PriceChangePercentage24h,
		},
		MarketCap: models.MarketCap{
			MarketCap:                    entry.MarketCap,
			MarketCapRank:                entry.MarketCapRank,
			MarketCapChange24h:           entry.MarketCapChange24h,
			MarketCapChangePercentage24h: entry.MarketCapChangePct24h,
		},
		Supply: models.Supply{
			CirculatingSupply: entry.CirculatingSupply,
			TotalSupply:       entry.TotalSupply,
			MaxSupply:         entry.MaxSupply,
		},
		AllTimeHigh: models.AllTimeHigh{
			ATH:           entry.ATH,
			ATHPercentage: entry.ATHChangePercentage,
			ATHDate:       entry.ATHDate,
		},
		AllTimeLow: models.AllTimeLow{
			ATL:           entry.ATL,
			ATLPercentage: entry.ATLChangePercentage,
			ATLDate:       entry.ATLDate,
		},
	}
	return info, nil
}

// makeRequest makes an authenticated GET request to the CoinGecko API
func (c *Client) makeRequest(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("x-cg-demo-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}
