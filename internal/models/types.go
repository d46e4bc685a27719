package models

import (
	"encoding/json"
	"strings"
)

// IntentKind is the classified purpose of an inbound query
type IntentKind string

const (
	IntentAnalyze   IntentKind = "analyze"
	IntentPrice     IntentKind = "price"
	IntentMarketcap IntentKind = "marketcap"
	IntentAsk       IntentKind = "ask"
	IntentUnknown   IntentKind = "unknown"
)

// Intent is the structured output of intent classification. Exactly the
// fields relevant to the detected kind are populated; the rest stay empty.
type Intent struct {
	Kind    IntentKind `json:"intent"`
	Symbol  string     `json:"symbol,omitempty"`
	Name    string     `json:"name,omitempty"`
	Address string     `json:"address,omitempty"`
	Query   string     `json:"query,omitempty"`
}

// SearchMethod returns which catalog lookup key the intent carries, symbol
// taking precedence over name. The returned keyword is lower-cased. Empty
// method means neither field is present.
func (i *Intent) SearchMethod() (method, keyword string) {
	if i.Symbol != "" {
		return "symbol", strings.ToLower(i.Symbol)
	}
	if i.Name != "" {
		return "name", strings.ToLower(i.Name)
	}
	return "", ""
}

// Coin is a catalog entry: a coin known to the upstream listing
type Coin struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// Platform binds a coin to an on-chain address on a named chain
type Platform struct {
	CoinID  string `json:"coin_id"`
	Chain   string `json:"chain"`
	Address string `json:"address"`
}

// CoinListing is one entry of the upstream coin list used by the catalog
// synchronizer. All fields arrive lower-cased from the client.
type CoinListing struct {
	ID        string     `json:"id"`
	Symbol    string     `json:"symbol"`
	Name      string     `json:"name"`
	Platforms []Platform `json:"platforms"`
}

// Price holds 24h price statistics. Fields the upstream omits stay nil.
type Price struct {
	CurrentPrice             *float64 `json:"currentPrice"`
	HighPrice24h             *float64 `json:"highPrice24h"`
	LowPrice24h              *float64 `json:"lowPrice24h"`
	PriceChange24h           *float64 `json:"priceChange24h"`
	PriceChangePercentage24h *float64 `json:"priceChangePercentage24h"`
}

// MarketCap holds market capitalization statistics
type MarketCap struct {
	MarketCap                    *float64 `json:"marketCap"`
	MarketCapRank                *float64 `json:"marketCapRank"`
	MarketCapChange24h           *float64 `json:"marketCapChange24h"`
	MarketCapChangePercentage24h *float64 `json:"marketCapChangePercentage24h"`
}

// Supply holds circulating/total/max supply figures
type Supply struct {
	CirculatingSupply *float64 `json:"circulatingSupply"`
	TotalSupply       *float64 `json:"totalSupply"`
	MaxSupply         *float64 `json:"maxSupply"`
}

// AllTimeHigh holds the all-time-high extreme
type AllTimeHigh struct {
	ATH           *float64 `json:"ath"`
	ATHPercentage *float64 `json:"athPercentage"`
	ATHDate       string   `json:"athDate"`
}

// AllTimeLow holds the all-time-low extreme
type AllTimeLow struct {
	ATL           *float64 `json:"atl"`
	ATLPercentage *float64 `json:"atlPercentage"`
	ATLDate       string   `json:"atlDate"`
}

// MarketInfo aggregates per-coin market statistics as fetched upstream.
// Unknown numerics are nil, never zero; the zero fallback for FDV is applied
// only when building the external MarketView.
type MarketInfo struct {
	FDV         *float64    `json:"fdv"`
	Price       Price       `json:"price"`
	MarketCap   MarketCap   `json:"marketCap"`
	Supply      Supply      `json:"supply"`
	AllTimeHigh AllTimeHigh `json:"allTimeHigh"`
	AllTimeLow  AllTimeLow  `json:"allTimeLow"`
}

// MarketView is the externally-serialized form of MarketInfo: identical
// except FDV defaults to zero when upstream omitted it.
type MarketView struct {
	FDV         float64     `json:"fdv"`
	Price       Price       `json:"price"`
	MarketCap   MarketCap   `json:"marketCap"`
	Supply      Supply      `json:"supply"`
	AllTimeHigh AllTimeHigh `json:"allTimeHigh"`
	AllTimeLow  AllTimeLow  `json:"allTimeLow"`
}

// View converts stored market info into its response form
func (m *MarketInfo) View() MarketView {
	view := MarketView{
		Price:       m.Price,
		MarketCap:   m.MarketCap,
		Supply:      m.Supply,
		AllTimeHigh: m.AllTimeHigh,
		AllTimeLow:  m.AllTimeLow,
	}
	if m.FDV != nil {
		view.FDV = *m.FDV
	}
	return view
}

// Risk is the generator's risk assessment for a token
type Risk struct {
	Score       int    `json:"score"` // 0 (no risk) .. 100 (extreme risk)
	Explanation string `json:"explanation"`
}

// Analysis is the generator's full output for an analyze intent
type Analysis struct {
	Risk    Risk     `json:"risk"`
	Insight []string `json:"insight"`
}

// Answer is the generator's output for an ask intent
type Answer struct {
	Text string `json:"text"`
}

// AnalysisInput is the structured prompt input for the analysis generator,
// assembled from catalog metadata and market statistics.
type AnalysisInput struct {
	Name        string      `json:"name"`
	Symbol      string      `json:"symbol"`
	Chain       string      `json:"chain"`
	FDV         *float64    `json:"fdv"`
	Price       Price       `json:"price"`
	MarketCap   MarketCap   `json:"marketCap"`
	Supply      Supply      `json:"supply"`
	AllTimeHigh AllTimeHigh `json:"allTimeHigh"`
	AllTimeLow  AllTimeLow  `json:"allTimeLow"`
}

// Response data codes, one per successful intent kind
const (
	CodeAnalyze   = "ANALYZE"
	CodePrice     = "PRICE"
	CodeMarketcap = "MARKETCAP"
	CodeAsk       = "ASK"
)

// CoinRef identifies a coin in response payloads. Platform and Address are
// only set for analyze responses.
type CoinRef struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Platform string `json:"platform,omitempty"`
	Address  string `json:"address,omitempty"`
}

// AnalyzeData is the payload of a successful analyze resolution
type AnalyzeData struct {
	Code    string     `json:"code"`
	Coin    CoinRef    `json:"coin"`
	Market  MarketView `json:"market"`
	Risk    Risk       `json:"risk"`
	Insight []string   `json:"insight"`
}

// PriceData is the payload of a successful price resolution
type PriceData struct {
	Code string  `json:"code"`
	Coin CoinRef `json:"coin"`
	Price
}

// MarketcapData is the payload of a successful marketcap resolution
type MarketcapData struct {
	Code string  `json:"code"`
	Coin CoinRef `json:"coin"`
	MarketCap
}

// AskData is the payload of a successful ask resolution
type AskData struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

// Result is the tagged outcome of one resolution: an HTTP-style status code,
// a human-readable message, and a kind-specific payload on success.
type Result struct {
	StatusCode int         `json:"statusCode"`
	Error      string      `json:"error,omitempty"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
}

// ToJSON converts any struct to JSON string
func ToJSON(v interface{}) string {
	bytes, _ := json.Marshal(v)
	return string(bytes)
}
