// Package embedding turns text into vectors. Adapters wrap ONNX Runtime, an OpenAI-compatible
// HTTP API, and a deterministic mock; CachedEmbedder and EmbedAll sit in front of any of them.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/sakuin/internal/models"
	"github.com/sourcegraph/conc/pool"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Provider names accepted by New.
const (
	ProviderMock   = "mock"
	ProviderONNX   = "onnx"
	ProviderOpenAI = "openai"
)

// DefaultWorkers bounds EmbedAll when no worker count is given.
const DefaultWorkers = 3

// Options selects and configures an embedding adapter.
type Options struct {
	Provider   string
	Model      string
	ModelPath  string
	APIKey     string
	BaseURL    string
	Dimensions int
	MaxTokens  int
}

// New builds the adapter named by opts.Provider. An empty provider selects ONNX when a
// model path is set and the mock otherwise.
func New(opts Options) (Embedder, error) {
	provider := strings.ToLower(strings.TrimSpace(opts.Provider))
	if provider == "" {
		provider = ProviderMock
		if opts.ModelPath != "" {
			provider = ProviderONNX
		}
	}
	switch provider {
	case ProviderMock:
		return NewMockEmbedder(opts.Dimensions), nil
	case ProviderONNX:
		e, err := NewONNXEmbedder(opts.ModelPath, opts.Dimensions, opts.MaxTokens)
		if err != nil {
			return nil, err
		}
		return e, nil
	case ProviderOpenAI:
		e, err := NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     opts.APIKey,
			BaseURL:    opts.BaseURL,
			Model:      opts.Model,
			Dimensions: opts.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider: %s (supported: mock, onnx, openai)",
			models.ErrInvalidInput, opts.Provider)
	}
}

// EmbedAll embeds texts with at most workers concurrent Embed calls. Results keep input
// order. The first failure cancels the remaining work and is returned as an EmbeddingError.
func EmbedAll(ctx context.Context, e Embedder, texts []string, workers int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	out := make([][]float32, len(texts))
	p := pool.New().WithContext(ctx).WithMaxGoroutines(workers).WithCancelOnError().WithFirstError()
	for i, text := range texts {
		p.Go(func(ctx context.Context) error {
			vec, err := e.Embed(ctx, text)
			if err != nil {
				return err
			}
			out[i] = vec
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, wrapEmbeddingError(err)
	}
	return out, nil
}

func wrapEmbeddingError(err error) error {
	if err == nil {
		return nil
	}
	var embErr *models.EmbeddingError
	if errors.As(err, &embErr) {
		return err
	}
	return &models.EmbeddingError{Err: err}
}
