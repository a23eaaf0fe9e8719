package ai

import (
	"context"
	"fmt"

	"research-board-platform/internal/config"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"google.golang.org/api/option"
)

// Embedder turns text into vectors. Implementations are safe for
// concurrent use.
type Embedder interface {
	// EmbedTexts embeds a batch of documents, one vector per input.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Close() error
}

// NewEmbedder returns the embedder for the configured provider.
// Default provider is Google Generative AI (text-embedding-004).
func NewEmbedder(cfg *config.Config) (Embedder, error) {
	switch cfg.EmbeddingsProvider {
	case "google", "":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
		}
		client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.GeminiAPIKey))
		if err != nil {
			return nil, err
		}
		return &googleEmbedder{client: client, model: cfg.GoogleEmbeddingsModel}, nil

	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("missing OPENAI_API_KEY for embeddings")
		}
		opts := []openai.Option{
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.OpenAIEmbeddingsModel),
			openai.WithEmbeddingModel(cfg.OpenAIEmbeddingsModel),
		}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, err
		}
		embedder, err := embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, err
		}
		return &openaiEmbedder{embedder: embedder}, nil

	default:
		return nil, fmt.Errorf("unknown embeddings provider: %s", cfg.EmbeddingsProvider)
	}
}

type googleEmbedder struct {
	client *genai.Client
	model  string
}

// The batch embedding endpoint accepts at most 100 contents per request.
const googleEmbedBatchSize = 100

func (g *googleEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	model := g.client.EmbeddingModel(g.model)
	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += googleEmbedBatchSize {
		end := start + googleEmbedBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := model.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}
		resp, err := model.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, err
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", end-start, len(resp.Embeddings))
		}
		for i, e := range resp.Embeddings {
			if e == nil {
				return nil, fmt.Errorf("no embedding returned for input %d", start+i)
			}
			vectors = append(vectors, e.Values)
		}
	}
	return vectors, nil
}

func (g *googleEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	model := g.client.EmbeddingModel(g.model)
	resp, err := model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	if resp.Embedding == nil {
		return nil, fmt.Errorf("no embedding returned")
	}
	return resp.Embedding.Values, nil
}

func (g *googleEmbedder) Close() error { return g.client.Close() }

type openaiEmbedder struct {
	embedder *embeddings.EmbedderImpl
}

func (o *openaiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return o.embedder.EmbedDocuments(ctx, texts)
}

func (o *openaiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return o.embedder.EmbedQuery(ctx, text)
}

func (o *openaiEmbedder) Close() error { return nil }
