package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/sakuin/internal/models"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOpenAIModel is used when OpenAIConfig.Model is empty.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // optional, for self-hosted compatible servers and tests
	Model   string
	// Dimensions is the expected vector size. It is sent as the dimensions parameter
	// and every returned vector is checked against it.
	Dimensions int
	MaxRetries int
}

// OpenAIEmbedder calls the embeddings endpoint of the OpenAI API or a compatible server.
type OpenAIEmbedder struct {
	client     openaisdk.Client
	model      string
	dimensions int
}

// NewOpenAIEmbedder creates an embedder. Returns an error if the API key or dimensions are missing.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, models.InvalidInputf("openai: missing api_key in config")
	}
	if cfg.Dimensions <= 0 {
		return nil, models.InvalidInputf("openai: dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIEmbedder{
		client:     openaisdk.NewClient(opts...),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}, nil
}

// Embed returns the embedding of a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch sends all texts in one request. Results are placed by the response index.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input:      openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:      openaisdk.EmbeddingModel(e.model),
		Dimensions: openaisdk.Int(int64(e.dimensions)),
	})
	if err != nil {
		return nil, &models.EmbeddingError{Err: fmt.Errorf("openai embeddings: %w", err)}
	}
	if len(resp.Data) != len(texts) {
		return nil, &models.EmbeddingError{Err: fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))}
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(texts) {
			return nil, &models.EmbeddingError{Err: fmt.Errorf("openai embeddings: index %d out of range", d.Index)}
		}
		if len(d.Embedding) != e.dimensions {
			return nil, &models.EmbeddingError{Err: &models.DimensionError{Expected: e.dimensions, Actual: len(d.Embedding)}}
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	for i, vec := range out {
		if vec == nil {
			return nil, &models.EmbeddingError{Err: fmt.Errorf("openai embeddings: missing vector for input %d", i)}
		}
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
