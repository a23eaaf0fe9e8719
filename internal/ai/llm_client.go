package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"research-board-platform/internal/config"
	"research-board-platform/internal/logger"
)

// Answer is one model reply with its measured token cost.
type Answer struct {
	Text       string
	TokensUsed int
}

// chatProvider is the raw provider call, without guards.
type chatProvider interface {
	generate(ctx context.Context, systemPrompt, userPrompt string) (*Answer, error)
	close() error
}

// LLMClient wraps a chat provider with a circuit breaker, a request
// rate limiter and token budget accounting.
type LLMClient struct {
	breaker      *gobreaker.CircuitBreaker
	rateLimiter  *rate.Limiter
	tokenCounter *TokenCounter
	provider     chatProvider
	model        string
}

type TokenCounter struct {
	mu              sync.Mutex
	limits          RateLimits
	minuteTokens    int
	dailyTokens     int
	minuteRequests  int
	dailyRequests   int
	lastMinuteReset time.Time
	lastDayReset    time.Time
}

type RateLimits struct {
	RPM int // Requests per minute
	TPM int // Tokens per minute
	RPD int // Requests per day
}

// NewLLMClient builds the guarded chat client for the configured
// provider.
func NewLLMClient(cfg *config.Config) (*LLMClient, error) {
	var (
		provider chatProvider
		model    string
		err      error
	)
	switch cfg.AIProvider {
	case "google", "":
		provider, err = newGeminiChat(cfg)
		model = cfg.GeminiModel
	case "openai":
		provider, err = newOpenAIChat(cfg)
		model = cfg.OpenAIChatModel
	default:
		return nil, errors.New("unknown AI provider: " + cfg.AIProvider)
	}
	if err != nil {
		return nil, err
	}

	limits := getRateLimits(cfg.AITier)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "LLMProvider",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
			if to == gobreaker.StateOpen {
				logger.Error("LLM provider circuit breaker opened, answers degraded")
			}
		},
	})

	// RPM limit with some buffer
	burst := limits.RPM / 10
	if burst < 1 {
		burst = 1
	}
	rateLimiter := rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), burst)

	return &LLMClient{
		breaker:      breaker,
		rateLimiter:  rateLimiter,
		tokenCounter: NewTokenCounter(limits),
		provider:     provider,
		model:        model,
	}, nil
}

func getRateLimits(tier string) RateLimits {
	switch tier {
	case "free":
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	case "tier1":
		return RateLimits{RPM: 1000, TPM: 1000000, RPD: 10000}
	case "tier2":
		return RateLimits{RPM: 2000, TPM: 4000000, RPD: 50000}
	default:
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	}
}

// Generate produces an answer for the given prompts. When the breaker
// is open a canned degradation notice is returned instead of an error
// so chat keeps responding.
func (c *LLMClient) Generate(ctx context.Context, systemPrompt, userPrompt string) (*Answer, error) {
	tracer := otel.Tracer("llm-client")
	ctx, span := tracer.Start(ctx, "llm.generate_answer")
	defer span.End()

	estimatedTokens := estimateTokens(systemPrompt, userPrompt)
	span.SetAttributes(
		attribute.Int("llm.estimated_tokens", estimatedTokens),
		attribute.String("llm.model", c.model),
	)

	if !c.tokenCounter.CanConsume(estimatedTokens, 1) {
		span.SetAttributes(attribute.Bool("llm.rate_limited", true))
		return nil, errors.New("rate limit exceeded: wait before retry")
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("llm.rate_limited", true))
		return nil, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		ans, err := c.provider.generate(ctx, systemPrompt, userPrompt)
		if err != nil {
			span.SetAttributes(attribute.Bool("llm.error", true))
			span.SetAttributes(attribute.String("llm.error_message", err.Error()))
			return nil, err
		}

		c.tokenCounter.RecordUsage(ans.TokensUsed, 1)
		span.SetAttributes(attribute.Int("llm.actual_tokens", ans.TokensUsed))
		return ans, nil
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			span.SetAttributes(attribute.Bool("llm.circuit_breaker_open", true))
			return c.getFallbackAnswer(), nil
		}
		span.SetAttributes(attribute.Bool("llm.error", true))
		return nil, err
	}

	span.SetAttributes(attribute.Bool("llm.success", true))
	return result.(*Answer), nil
}

// Close releases provider resources.
func (c *LLMClient) Close() error {
	return c.provider.close()
}

func NewTokenCounter(limits RateLimits) *TokenCounter {
	return &TokenCounter{limits: limits}
}

func (tc *TokenCounter) CanConsume(tokens, requests int) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	now := time.Now()

	// Reset counters if time windows expired
	if now.Sub(tc.lastMinuteReset) >= time.Minute {
		tc.minuteTokens = 0
		tc.minuteRequests = 0
		tc.lastMinuteReset = now
	}

	if now.Sub(tc.lastDayReset) >= 24*time.Hour {
		tc.dailyTokens = 0
		tc.dailyRequests = 0
		tc.lastDayReset = now
	}

	if tc.minuteRequests+requests > tc.limits.RPM {
		return false
	}
	if tc.minuteTokens+tokens > tc.limits.TPM {
		return false
	}
	if tc.dailyRequests+requests > tc.limits.RPD {
		return false
	}

	return true
}

func (tc *TokenCounter) RecordUsage(tokens, requests int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.minuteTokens += tokens
	tc.minuteRequests += requests
	tc.dailyTokens += tokens
	tc.dailyRequests += requests
}

// Fallback when the provider is unavailable
func (c *LLMClient) getFallbackAnswer() *Answer {
	return &Answer{
		Text: "I'm experiencing high demand right now. Please try again in a moment.",
	}
}

// Rough estimation: 1 token ≈ 4 characters
func estimateTokens(systemPrompt, userPrompt string) int {
	estimated := (len(systemPrompt) + len(userPrompt)) / 4
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}

type geminiChat struct {
	client *genai.Client
	model  string
}

func newGeminiChat(cfg *config.Config) (*geminiChat, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, errors.New("missing GEMINI_API_KEY for chat")
	}
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, err
	}
	return &geminiChat{client: client, model: cfg.GeminiModel}, nil
}

func (g *geminiChat) generate(ctx context.Context, systemPrompt, userPrompt string) (*Answer, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(0.2)
	model.SetMaxOutputTokens(2048)
	if systemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return nil, err
	}

	text := firstCandidateText(resp)
	if text == "" {
		return nil, errors.New("model returned no text")
	}
	return &Answer{Text: text, TokensUsed: extractTokenUsage(resp)}, nil
}

func (g *geminiChat) close() error { return g.client.Close() }

func firstCandidateText(resp *genai.GenerateContentResponse) string {
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		if s := strings.TrimSpace(sb.String()); s != "" {
			return s
		}
	}
	return ""
}

// Extract token usage from the response, estimating when the provider
// omits usage metadata.
func extractTokenUsage(resp *genai.GenerateContentResponse) int {
	if resp.UsageMetadata != nil {
		return int(resp.UsageMetadata.TotalTokenCount)
	}

	estimated := len(firstCandidateText(resp)) / 4
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}

type openaiChat struct {
	llm *openai.LLM
}

func newOpenAIChat(cfg *config.Config) (*openaiChat, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, errors.New("missing OPENAI_API_KEY for chat")
	}
	opts := []openai.Option{
		openai.WithToken(cfg.OpenAIAPIKey),
		openai.WithModel(cfg.OpenAIChatModel),
	}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	return &openaiChat{llm: llm}, nil
}

func (o *openaiChat) generate(ctx context.Context, systemPrompt, userPrompt string) (*Answer, error) {
	messages := make([]llms.MessageContent, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextContent{Text: systemPrompt}},
		})
	}
	messages = append(messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextContent{Text: userPrompt}},
	})

	resp, err := o.llm.GenerateContent(ctx, messages,
		llms.WithTemperature(0.2),
		llms.WithMaxTokens(2048),
	)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("model returned no choices")
	}

	choice := resp.Choices[0]
	tokens := 0
	if v, ok := choice.GenerationInfo["TotalTokens"]; ok {
		if n, ok := v.(int); ok {
			tokens = n
		}
	}
	if tokens == 0 {
		tokens = estimateTokens("", choice.Content)
	}
	return &Answer{Text: strings.TrimSpace(choice.Content), TokensUsed: tokens}, nil
}

func (o *openaiChat) close() error { return nil }
