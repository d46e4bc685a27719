package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rann-Studio/TokenGuardAI/internal/models"
)

func TestParseJSONObject(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantErr  bool
		want     models.Intent
	}{
		{
			name:     "bare JSON",
			response: `{"intent": "price", "symbol": "btc"}`,
			want:     models.Intent{Kind: models.IntentPrice, Symbol: "btc"},
		},
		{
			name:     "markdown fenced",
			response: "```json\n{\"intent\": \"analyze\", \"address\": \"0xabc\"}\n```",
			want:     models.Intent{Kind: models.IntentAnalyze, Address: "0xabc"},
		},
		{
			name:     "surrounding prose",
			response: `Sure! Here is the result: {"intent": "ask", "query": "who made btc?"} Hope that helps.`,
			want:     models.Intent{Kind: models.IntentAsk, Query: "who made btc?"},
		},
		{
			name:     "null fields decode to zero values",
			response: `{"intent": "marketcap", "symbol": null, "name": "ethereum", "address": null, "query": null}`,
			want:     models.Intent{Kind: models.IntentMarketcap, Name: "ethereum"},
		},
		{
			name:     "no JSON at all",
			response: "I cannot help with that.",
			wantErr:  true,
		},
		{
			name:     "empty response",
			response: "",
			wantErr:  true,
		},
		{
			name:     "truncated JSON",
			response: `{"intent": "price"`,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var intent models.Intent
			err := parseJSONObject(tt.response, &intent)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, intent)
		})
	}
}

func TestParseJSONObjectAnalysis(t *testing.T) {
	response := "```json\n" + `{
		"risk": {"score": 35, "explanation": "moderate volatility"},
		"insight": ["liquidity looks healthy", "watch the 24h swing"]
	}` + "\n```"

	var analysis models.Analysis
	require.NoError(t, parseJSONObject(response, &analysis))
	assert.Equal(t, 35, analysis.Risk.Score)
	assert.Equal(t, "moderate volatility", analysis.Risk.Explanation)
	assert.Len(t, analysis.Insight, 2)
}

func TestBuildAnalysisPrompt(t *testing.T) {
	price := 1.5
	rank := 120.0

	prompt := buildAnalysisPrompt(models.AnalysisInput{
		Name:   "sometoken",
		Symbol: "stk",
		Chain:  "ethereum",
		Price:  models.Price{CurrentPrice: &price},
		MarketCap: models.MarketCap{
			MarketCapRank: &rank,
		},
	})

	assert.Contains(t, prompt, "Name: sometoken\n")
	assert.Contains(t, prompt, "Symbol: stk\n")
	assert.Contains(t, prompt, "Chain: ethereum\n")
	assert.Contains(t, prompt, "Current Price: $1.5\n")
	assert.Contains(t, prompt, "Market Cap Rank: 120\n")

	// Missing statistics render as unknown instead of zero
	assert.Contains(t, prompt, "Market Cap: $unknown\n")
	assert.Contains(t, prompt, "Max Supply: unknown\n")
	assert.Contains(t, prompt, "Fully Diluted Valuation: $unknown\n")
}

func TestFormatNullable(t *testing.T) {
	v := func(f float64) *float64 { return &f }

	assert.Equal(t, "unknown", formatNullable(nil))
	assert.Equal(t, "0", formatNullable(v(0)))
	assert.Equal(t, "61234.5", formatNullable(v(61234.5)))
	assert.Equal(t, "1.5", formatNullable(v(1.50000)))
	assert.Equal(t, "100", formatNullable(v(100)))
}
