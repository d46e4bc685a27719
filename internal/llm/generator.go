package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/Rann-Studio/TokenGuardAI/internal/models"
)

// CallTimeout bounds every single generator invocation. Exceeding it is a
// generator failure, not a hang.
const CallTimeout = 30 * time.Second

// Generator is the capability interface for every AI-backed operation the
// resolution engine consumes. Implementations are swappable so tests can use
// a deterministic fake instead of live network calls.
type Generator interface {
	// ClassifyIntent extracts the user intent and relevant coin fields
	// from a raw chat message
	ClassifyIntent(ctx context.Context, query string) (*models.Intent, error)

	// GenerateAnalysis produces a risk assessment and insights from coin
	// metadata and market statistics
	GenerateAnalysis(ctx context.Context, input models.AnalysisInput) (*models.Analysis, error)

	// GenerateAnswer produces a free-text answer to a crypto question
	GenerateAnswer(ctx context.Context, query string) (*models.Answer, error)
}

// OpenAI implements Generator using an OpenAI chat model via langchaingo
type OpenAI struct {
	llm    llms.Model
	logger zerolog.Logger
}

// NewOpenAI creates a generator backed by gpt-4o-mini
func NewOpenAI(apiKey string, logger zerolog.Logger) (*OpenAI, error) {
	model, err := openai.New(
		openai.WithModel("gpt-4o-mini"),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}
	return &OpenAI{
		llm:    model,
		logger: logger.With().Str("component", "llm").Logger(),
	}, nil
}

const intentSystemPrompt = `You are an assistant that extracts user intent and relevant data from chat messages.

Possible intents:
analyze: When the user wants to analyze a specific coin or token. (e.g., "Analyze Bitcoin", "What do you think about Ethereum?", "0xcb50350ab555ed5d56265e096288536e8cac41eb")
price: When the user is asking for the current price of a coin or token. (e.g., "What is the price of Bitcoin?", "How much is Ethereum right now?")
marketcap: When the user is asking for the market cap of a coin or token. (e.g., "What is the market cap of Bitcoin?", "How much is Ethereum worth?")
ask: When the user is asking a question that relates to a coin or token but does not fit into the other categories. (e.g., "Who created Bitcoin?", "What is the purpose of Ethereum?")
unknown: When the user is asking for something that is not related to any coin or token. (e.g., "Tell me a joke", "What is the weather like?")

Return the result strictly in this JSON format, no extra keys, no additional text or formatting, no explanations outside JSON:
{
    "intent": "analyze" | "price" | "marketcap" | "ask" | "unknown",
    "symbol": string | null,
    "name": string | null,
    "address": string | null,
    "query": string | null
}

intent: choose one of "analyze", "price", "marketcap", "ask", "unknown"
symbol: lowercase string of the coin symbol (e.g., "btc", "eth") if and only if the user explicitly mentions the symbol, not the name
name: lowercase string of the coin name (e.g., "bitcoin", "ethereum") if and only if the user explicitly mentions the coin name, not the symbol
address: lowercase string of the coin full address if and only if the user explicitly mentions the address, not the symbol or name
query: the raw chat message if and only if the user is asking a question that does not fit into the other categories, otherwise null

Examples:
how much is the price of bitcoin? -> {"intent": "price", "symbol": null, "name": "bitcoin", "address": null, "query": null}
how much is the price of btc? -> {"intent": "price", "symbol": "btc", "name": null, "address": null, "query": null}
how much is the price of 0xcb50350ab555ed5d56265e096288536e8cac41eb? -> {"intent": "price", "symbol": null, "name": null, "address": "0xcb50350ab555ed5d56265e096288536e8cac41eb", "query": null}
who is the creator of bitcoin? -> {"intent": "ask", "symbol": null, "name": null, "address": null, "query": "who is the creator of bitcoin?"}`

// ClassifyIntent extracts the user intent from a raw query
func (o *OpenAI) ClassifyIntent(ctx context.Context, query string) (*models.Intent, error) {
	response, err := o.generate(ctx, intentSystemPrompt, query)
	if err != nil {
		o.logger.Error().Err(err).Msg("intent classification failed")
		return nil, err
	}

	var intent models.Intent
	if err := parseJSONObject(response, &intent); err != nil {
		o.logger.Error().Err(err).Str("response", response).Msg("failed to parse intent response")
		return nil, fmt.Errorf("failed to parse intent response: %w", err)
	}
	if intent.Kind == "" {
		intent.Kind = models.IntentUnknown
	}
	return &intent, nil
}

const analysisSystemPrompt = `You are a crypto analyst AI. You will be given data about a cryptocurrency token.
Analyze the data and provide a risk score from 0 to 100, where 0 means no risk and 100 means extremely high risk. Also, provide an explanation of the score in natural language. The explanation should be clear and easy to understand for a retail investor. Use simple language and avoid technical jargon. The insights should be actionable and concise, helping the user understand the token's market health.
The explanation should sound natural, like how a real person would explain it. Don't make it too formal or stiff, just keep it relaxed, like you're chatting with a friend.

Return the result strictly in this JSON format, no extra keys, no additional text or formatting, no explanations outside JSON:
{
    "risk": {
        "score": 35,
        "explanation": "This token has a healthy trading volume and decent liquidity, indicating strong community interest. However, price volatility suggests short-term risks. Proceed with caution."
    },
    "insight": [
        "High liquidity indicates a lower risk of sudden price drops.",
        "Strong trading activity suggests a strong community interest."
    ]
}

risk:
 - score: integer between 0 and 100
 - explanation: string, a natural language explanation of the risk score
insight: array of strings, each string is an actionable insight`

// GenerateAnalysis produces a risk assessment for a token
func (o *OpenAI) GenerateAnalysis(ctx context.Context, input models.AnalysisInput) (*models.Analysis, error) {
	response, err := o.generate(ctx, analysisSystemPrompt, buildAnalysisPrompt(input))
	if err != nil {
		o.logger.Error().Err(err).Str("coin", input.Name).Msg("analysis generation failed")
		return nil, err
	}

	var analysis models.Analysis
	if err := parseJSONObject(response, &analysis); err != nil {
		o.logger.Error().Err(err).Str("response", response).Msg("failed to parse analysis response")
		return nil, fmt.Errorf("failed to parse analysis response: %w", err)
	}
	return &analysis, nil
}

const answerSystemPrompt = `You are a crypto assistant AI. You will be given a question about cryptocurrency.
Answer the question in a clear and concise manner, using simple language and avoiding technical jargon. The answer should be actionable and easy to understand for a retail investor. The answer should be no more than 3 sentences long.
The answer should sound natural, like how a real person would explain it. Don't make it too formal or stiff, just keep it relaxed, like you're chatting with a friend.

Return the result strictly in this JSON format, no extra keys, no additional text or formatting, no explanations outside JSON:
{
    "text": "This is the answer to the question."
}

text: string, the answer to the question`

// GenerateAnswer produces a free-text answer to a crypto question
func (o *OpenAI) GenerateAnswer(ctx context.Context, query string) (*models.Answer, error) {
	response, err := o.generate(ctx, answerSystemPrompt, query)
	if err != nil {
		o.logger.Error().Err(err).Msg("answer generation failed")
		return nil, err
	}

	var answer models.Answer
	if err := parseJSONObject(response, &answer); err != nil {
		o.logger.Error().Err(err).Str("response", response).Msg("failed to parse answer response")
		return nil, fmt.Errorf("failed to parse answer response: %w", err)
	}
	return &answer, nil
}

// generate runs one bounded chat completion and returns the raw text
func (o *OpenAI) generate(ctx context.Context, systemPrompt, humanPrompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	response, err := o.llm.GenerateContent(callCtx, []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(humanPrompt)},
		},
	}, llms.WithTemperature(0.7), llms.WithMaxTokens(1000))
	if err != nil {
		return "", fmt.Errorf("LLM call failed: %w", err)
	}
	if response == nil || len(response.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}
	return response.Choices[0].Content, nil
}

// buildAnalysisPrompt renders the structured prompt input as the token data
// block the analysis prompt expects
func buildAnalysisPrompt(input models.AnalysisInput) string {
	var b strings.Builder
	b.WriteString("Token Data:\n")
	fmt.Fprintf(&b, "Name: %s\n", input.Name)
	fmt.Fprintf(&b, "Symbol: %s\n", input.Symbol)
	fmt.Fprintf(&b, "Chain: %s\n", input.Chain)
	fmt.Fprintf(&b, "Current Price: $%s\n", formatNullable(input.Price.CurrentPrice))
	fmt.Fprintf(&b, "High Price 24h: $%s\n", formatNullable(input.Price.HighPrice24h))
	fmt.Fprintf(&b, "Low Price 24h: $%s\n", formatNullable(input.Price.LowPrice24h))
	fmt.Fprintf(&b, "Price Change 24h: $%s\n", formatNullable(input.Price.PriceChange24h))
	fmt.Fprintf(&b, "Price Change Percentage 24h: %s%%\n", formatNullable(input.Price.PriceChangePercentage24h))
	fmt.Fprintf(&b, "Market Cap: $%s\n", formatNullable(input.MarketCap.MarketCap))
	fmt.Fprintf(&b, "Market Cap Rank: %s\n", formatNullable(input.MarketCap.MarketCapRank))
	fmt.Fprintf(&b, "Market Cap Change 24h: $%s\n", formatNullable(input.MarketCap.MarketCapChange24h))
	fmt.Fprintf(&b, "Market Cap Change Percentage 24h: %s%%\n", formatNullable(input.MarketCap.MarketCapChangePercentage24h))
	fmt.Fprintf(&b, "Circulating Supply: %s\n", formatNullable(input.Supply.CirculatingSupply))
	fmt.Fprintf(&b, "Total Supply: %s\n", formatNullable(input.Supply.TotalSupply))
	fmt.Fprintf(&b, "Max Supply: %s\n", formatNullable(input.Supply.MaxSupply))
	fmt.Fprintf(&b, "All Time High: $%s\n", formatNullable(input.AllTimeHigh.ATH))
	fmt.Fprintf(&b, "All Time High Percentage: %s%%\n", formatNullable(input.AllTimeHigh.ATHPercentage))
	fmt.Fprintf(&b, "All Time High Date: %s\n", input.AllTimeHigh.ATHDate)
	fmt.Fprintf(&b, "All Time Low: $%s\n", formatNullable(input.AllTimeLow.ATL))
	fmt.Fprintf(&b, "All Time Low Percentage: %s%%\n", formatNullable(input.AllTimeLow.ATLPercentage))
	fmt.Fprintf(&b, "All Time Low Date: %s\n", input.AllTimeLow.ATLDate)
	fmt.Fprintf(&b, "Fully Diluted Valuation: $%s\n", formatNullable(input.FDV))
	return b.String()
}

func formatNullable(v *float64) string {
	if v == nil {
		return "unknown"
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", *v), "0"), ".")
}

// parseJSONObject extracts the first JSON object from an LLM response and
// unmarshals it, tolerating markdown fences or stray prose around the JSON
func parseJSONObject(response string, dest interface{}) error {
	response = strings.TrimSpace(response)

	jsonStart := strings.Index(response, "{")
	jsonEnd := strings.LastIndex(response, "}")
	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		return fmt.Errorf("no valid JSON object found in response")
	}

	return json.Unmarshal([]byte(response[jsonStart:jsonEnd+1]), dest)
}
